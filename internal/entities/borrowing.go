package entities

import "time"

type BorrowingStatus string

const (
	BorrowingStatusBorrowed BorrowingStatus = "borrowed"
	BorrowingStatusReturned BorrowingStatus = "returned"
	// BorrowingStatusOverdue is derived from the due date and never persisted.
	// Rows written by older releases may still carry it.
	BorrowingStatusOverdue BorrowingStatus = "overdue"
)

// Valid reports whether s is a status clients may send.
func (s BorrowingStatus) Valid() bool {
	switch s {
	case BorrowingStatusBorrowed, BorrowingStatusReturned, BorrowingStatusOverdue:
		return true
	}
	return false
}

// Stored maps a client-facing status to the persisted one.
func (s BorrowingStatus) Stored() BorrowingStatus {
	if s == BorrowingStatusOverdue {
		return BorrowingStatusBorrowed
	}
	return s
}

type Borrowing struct {
	ID                 uint            `gorm:"primaryKey" json:"id"`
	BookID             uint            `gorm:"index;not null" json:"bookId"`
	UserID             uint            `gorm:"index;not null" json:"userId"`
	Book               *Book           `gorm:"foreignKey:BookID" json:"book,omitempty"`
	User               *Member         `gorm:"foreignKey:UserID" json:"user,omitempty"`
	BorrowDate         time.Time       `gorm:"not null;index" json:"borrowDate"`
	DueDate            time.Time       `gorm:"not null;index" json:"dueDate"`
	ReturnDate         *time.Time      `gorm:"index" json:"returnDate"`
	Status             BorrowingStatus `gorm:"size:20;not null;index" json:"status"`
	ExtensionRequested bool            `gorm:"not null;default:false" json:"extensionRequested"`
	Notes              string          `gorm:"type:text" json:"notes"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

func (Borrowing) TableName() string {
	return "borrowings"
}

// IsActive reports whether the copy is still out.
func (b Borrowing) IsActive() bool {
	return b.Status.Stored() == BorrowingStatusBorrowed
}

// IsOverdue reports whether the loan is active and its due date lies before today.
// today must be a value produced by DateOf.
func (b Borrowing) IsOverdue(today time.Time) bool {
	return b.IsActive() && DateOf(b.DueDate).Before(today)
}

// EffectiveStatus is the status shown to clients.
func (b Borrowing) EffectiveStatus(today time.Time) BorrowingStatus {
	if b.IsOverdue(today) {
		return BorrowingStatusOverdue
	}
	return b.Status.Stored()
}

// DaysBorrowed returns whole days between borrow and return (or today if
// still out), counting calendar days in loc.
func (b Borrowing) DaysBorrowed(today time.Time, loc *time.Location) int {
	end := today
	if b.ReturnDate != nil {
		end = DateIn(*b.ReturnDate, loc)
	}
	return int(end.Sub(DateIn(b.BorrowDate, loc)).Hours() / 24)
}

// DateOf truncates t to its calendar date, expressed as UTC midnight.
// Due dates are stored this way so string comparison in SQLite is chronological.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateIn is the calendar date of the instant t as seen in loc, in the same
// representation as DateOf. Borrow and return timestamps come back from
// SQLite in UTC, so they must go through DateIn rather than DateOf.
func DateIn(t time.Time, loc *time.Location) time.Time {
	return DateOf(t.In(loc))
}
