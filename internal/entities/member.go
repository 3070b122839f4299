package entities

import "time"

// Member is a library patron. Admins are members with IsAdmin set.
type Member struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	Name           string     `gorm:"size:255;not null" json:"name"`
	Username       string     `gorm:"uniqueIndex;size:100;not null" json:"username"`
	Email          *string    `gorm:"uniqueIndex;size:255" json:"email"`
	PasswordHash   string     `gorm:"size:255" json:"-"`
	IsAdmin        bool       `gorm:"not null;default:false" json:"isAdmin"`
	MembershipDate time.Time  `gorm:"index" json:"membershipDate"`
	AdminRating    *int       `json:"adminRating"`
	AdminNotes     string     `gorm:"type:text" json:"adminNotes"`
	EmailVerified  bool       `gorm:"not null;default:false" json:"emailVerified"`
	LastLoginAt    *time.Time `json:"lastLoginAt,omitempty"`

	// Stored as a SHA-256 hash; the plaintext only travels in the email.
	EmailVerificationToken   *string    `gorm:"uniqueIndex;size:64" json:"-"`
	EmailVerificationExpires *time.Time `json:"-"`

	FailedLoginCount int        `gorm:"not null;default:0" json:"-"`
	LockedUntil      *time.Time `json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Member) TableName() string {
	return "members"
}

// EmailAddress returns the member's email or "" when none is on file.
func (m Member) EmailAddress() string {
	if m.Email == nil {
		return ""
	}
	return *m.Email
}

// HasPassword reports whether the member can log in.
func (m Member) HasPassword() bool {
	return m.PasswordHash != ""
}
