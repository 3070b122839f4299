// Package members provides database operations for library members.
//
// # Usage
//
//	repo := members.NewRepository(db)
//	member, err := repo.GetMemberByIdentifier(ctx, "ann@example.com")
package members

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/librarydesk/librarydesk/internal/database"
	"github.com/librarydesk/librarydesk/internal/entities"
)

// Repository handles all member database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new members repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Update carries a partial member update. Nil fields are left unchanged.
// An empty Email clears it; a zero AdminRating clears the rating.
type Update struct {
	Name          *string
	Username      *string
	Email         *string
	PasswordHash  *string
	IsAdmin       *bool
	AdminRating   *int
	AdminNotes    *string
	EmailVerified *bool
}

// ListMembers returns a page of members ordered by name. query matches
// name, username or email.
func (r *Repository) ListMembers(ctx context.Context, query string, page database.Page) ([]entities.Member, int64, error) {
	var members []entities.Member
	var total int64

	q := r.db.WithContext(ctx).Model(&entities.Member{})
	if query != "" {
		pattern := database.LikePattern(query)
		q = q.Where(
			`LOWER(name) LIKE ? ESCAPE '\' OR LOWER(username) LIKE ? ESCAPE '\' OR LOWER(email) LIKE ? ESCAPE '\'`,
			pattern, pattern, pattern,
		)
	}

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count members: %w", err)
	}
	err := q.Order("LOWER(name) ASC, id ASC").Limit(page.Size).Offset(page.Offset()).Find(&members).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list members: %w", err)
	}
	return members, total, nil
}

// GetMemberByID retrieves a member by ID.
func (r *Repository) GetMemberByID(ctx context.Context, id uint) (*entities.Member, error) {
	var member entities.Member
	if err := r.db.WithContext(ctx).First(&member, id).Error; err != nil {
		return nil, err
	}
	return &member, nil
}

// GetMemberByIdentifier looks a member up by username or email.
func (r *Repository) GetMemberByIdentifier(ctx context.Context, identifier string) (*entities.Member, error) {
	var member entities.Member
	identifier = strings.TrimSpace(identifier)
	err := r.db.WithContext(ctx).
		Where("username = ? OR LOWER(email) = ?", identifier, strings.ToLower(identifier)).
		First(&member).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// GetMemberByEmail retrieves a member by email, case-insensitively.
func (r *Repository) GetMemberByEmail(ctx context.Context, email string) (*entities.Member, error) {
	var member entities.Member
	err := r.db.WithContext(ctx).Where("LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email))).First(&member).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// CreateMember inserts a member after checking username and email are free.
func (r *Repository) CreateMember(ctx context.Context, member *entities.Member) error {
	member.Email = normalizeEmail(member.Email)
	if member.MembershipDate.IsZero() {
		member.MembershipDate = time.Now().UTC()
	}
	if err := checkAdminCredentials(member); err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkUnique(tx, 0, member.Username, member.Email); err != nil {
			return err
		}
		err := tx.Create(member).Error
		if database.IsUniqueViolation(err) {
			return database.NewDomainError(database.ReasonDuplicateUsername, "username or email already taken")
		}
		return err
	})
}

// UpdateMember applies a partial update.
func (r *Repository) UpdateMember(ctx context.Context, id uint, upd Update) (*entities.Member, error) {
	var member entities.Member
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&member, id).Error; err != nil {
			return err
		}

		if upd.Name != nil {
			member.Name = *upd.Name
		}
		if upd.Username != nil {
			member.Username = *upd.Username
		}
		if upd.Email != nil {
			newEmail := normalizeEmail(upd.Email)
			if !strings.EqualFold(member.EmailAddress(), valueOf(newEmail)) {
				member.EmailVerified = false
			}
			member.Email = newEmail
		}
		if upd.PasswordHash != nil {
			member.PasswordHash = *upd.PasswordHash
		}
		if upd.IsAdmin != nil {
			member.IsAdmin = *upd.IsAdmin
		}
		if upd.AdminRating != nil {
			if *upd.AdminRating == 0 {
				member.AdminRating = nil
			} else {
				rating := *upd.AdminRating
				member.AdminRating = &rating
			}
		}
		if upd.AdminNotes != nil {
			member.AdminNotes = *upd.AdminNotes
		}
		if upd.EmailVerified != nil {
			member.EmailVerified = *upd.EmailVerified
		}

		if err := checkAdminCredentials(&member); err != nil {
			return err
		}
		if err := checkUnique(tx, member.ID, member.Username, member.Email); err != nil {
			return err
		}

		err := tx.Save(&member).Error
		if database.IsUniqueViolation(err) {
			return database.NewDomainError(database.ReasonDuplicateUsername, "username or email already taken")
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// DeleteMember removes a member who has never borrowed anything.
func (r *Repository) DeleteMember(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var member entities.Member
		if err := tx.First(&member, id).Error; err != nil {
			return err
		}

		var active, history int64
		if err := tx.Model(&entities.Borrowing{}).
			Where("user_id = ? AND status <> ?", id, entities.BorrowingStatusReturned).
			Count(&active).Error; err != nil {
			return err
		}
		if active > 0 {
			return database.NewDomainError(database.ReasonMemberHasActiveBorrowing,
				fmt.Sprintf("member has %d active borrowings", active))
		}
		if err := tx.Model(&entities.Borrowing{}).Where("user_id = ?", id).Count(&history).Error; err != nil {
			return err
		}
		if history > 0 {
			return errHasHistory
		}

		err := tx.Delete(&entities.Member{}, id).Error
		if database.IsForeignKeyViolation(err) {
			return errHasHistory
		}
		return err
	})
}

var errHasHistory = database.NewDomainError(database.ReasonMemberHasHistory,
	"member has borrowing history and cannot be deleted")

// CountMembers returns the number of members.
func (r *Repository) CountMembers(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entities.Member{}).Count(&count).Error
	return count, err
}

// CountAdmins returns the number of admin members.
func (r *Repository) CountAdmins(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entities.Member{}).Where("is_admin = ?", true).Count(&count).Error
	return count, err
}

// SetVerificationToken stores a hashed verification token and its expiry.
func (r *Repository) SetVerificationToken(ctx context.Context, id uint, tokenHash string, expires time.Time) error {
	result := r.db.WithContext(ctx).Model(&entities.Member{}).Where("id = ?", id).Updates(map[string]any{
		"email_verification_token":   tokenHash,
		"email_verification_expires": expires.UTC(),
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return database.ErrNotFound
	}
	return nil
}

// GetMemberByVerificationToken finds the member holding a hashed token.
func (r *Repository) GetMemberByVerificationToken(ctx context.Context, tokenHash string) (*entities.Member, error) {
	var member entities.Member
	err := r.db.WithContext(ctx).Where("email_verification_token = ?", tokenHash).First(&member).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// MarkEmailVerified flags the email as verified and clears the token.
func (r *Repository) MarkEmailVerified(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Model(&entities.Member{}).Where("id = ?", id).Updates(map[string]any{
		"email_verified":             true,
		"email_verification_token":   nil,
		"email_verification_expires": nil,
	}).Error
}

// ClearExpiredVerificationTokens drops tokens that expired before now.
// Returns the number of members affected.
func (r *Repository) ClearExpiredVerificationTokens(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&entities.Member{}).
		Where("email_verification_token IS NOT NULL AND email_verification_expires < ?", now.UTC()).
		Updates(map[string]any{
			"email_verification_token":   nil,
			"email_verification_expires": nil,
		})
	return result.RowsAffected, result.Error
}

// RecordLogin resets the failure counter and stamps the login time.
func (r *Repository) RecordLogin(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&entities.Member{}).Where("id = ?", id).Updates(map[string]any{
		"last_login_at":      at.UTC(),
		"failed_login_count": 0,
		"locked_until":       nil,
	}).Error
}

// RecordFailedLogin increments the failure counter, optionally locking the account.
func (r *Repository) RecordFailedLogin(ctx context.Context, id uint, lockedUntil *time.Time) error {
	updates := map[string]any{
		"failed_login_count": gorm.Expr("failed_login_count + 1"),
	}
	if lockedUntil != nil {
		updates["locked_until"] = lockedUntil.UTC()
	}
	return r.db.WithContext(ctx).Model(&entities.Member{}).Where("id = ?", id).Updates(updates).Error
}

func checkUnique(tx *gorm.DB, selfID uint, username string, email *string) error {
	var existing entities.Member
	err := tx.Where("username = ? AND id <> ?", username, selfID).First(&existing).Error
	if err == nil {
		return database.NewDomainError(database.ReasonDuplicateUsername, "username already taken")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to check existing username: %w", err)
	}

	if email == nil {
		return nil
	}
	err = tx.Where("LOWER(email) = ? AND id <> ?", strings.ToLower(*email), selfID).First(&existing).Error
	if err == nil {
		return database.NewDomainError(database.ReasonDuplicateEmail, "email already registered")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to check existing email: %w", err)
	}
	return nil
}

// Admins sign in, so they need both an email and a password.
func checkAdminCredentials(member *entities.Member) error {
	if !member.IsAdmin {
		return nil
	}
	if member.Email == nil || !member.HasPassword() {
		return database.NewDomainError(database.ReasonAdminCredentials, "admins need an email and a password")
	}
	return nil
}

func normalizeEmail(email *string) *string {
	if email == nil {
		return nil
	}
	v := strings.ToLower(strings.TrimSpace(*email))
	if v == "" {
		return nil
	}
	return &v
}

func valueOf(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
