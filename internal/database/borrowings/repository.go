// Package borrowings owns the loan lifecycle: lending a copy, returning it,
// extending the due date and deleting records. Every mutation that touches
// both a borrowing and its book's copy counts runs in one transaction.
//
// # Usage
//
//	repo := borrowings.NewRepository(db)
//	loan, err := repo.Borrow(ctx, borrowings.BorrowInput{BookID: 1, UserID: 2, LoanDays: 14})
package borrowings

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/librarydesk/librarydesk/internal/database"
	"github.com/librarydesk/librarydesk/internal/entities"
)

// ErrNotBorrower is returned when a member acts on someone else's loan.
var ErrNotBorrower = errors.New("borrowing belongs to another member")

// Scope selects a slice of the borrowing table.
type Scope string

const (
	ScopeAll      Scope = ""
	ScopeActive   Scope = "active"
	ScopeOverdue  Scope = "overdue"
	ScopeReturned Scope = "returned"
)

// activeStatuses includes the legacy overdue value for rows written before
// startup normalization ran.
var activeStatuses = []string{
	string(entities.BorrowingStatusBorrowed),
	string(entities.BorrowingStatusOverdue),
}

// ListFilter narrows a borrowing listing. Zero values match everything.
type ListFilter struct {
	Scope  Scope
	Query  string // book title/author, member name/username, or notes
	BookID uint
	UserID uint
}

// BorrowInput describes a new loan. DueDate wins over LoanDays; one of them
// must be set.
type BorrowInput struct {
	BookID     uint
	UserID     uint
	BorrowDate *time.Time
	DueDate    *time.Time
	LoanDays   int
	Notes      string
}

// Update carries a partial borrowing update. Nil fields are left unchanged.
type Update struct {
	Status             *entities.BorrowingStatus
	DueDate            *time.Time
	Notes              *string
	ExtensionRequested *bool
}

// Repository handles borrowing persistence and copy accounting.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRepository creates a new borrowings repository using the system clock.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// WithClock returns a copy of the repository reading time from now.
func (r *Repository) WithClock(now func() time.Time) *Repository {
	return &Repository{db: r.db, now: now}
}

// Today is the current calendar date in the representation due dates are stored in.
func (r *Repository) Today() time.Time {
	return entities.DateOf(r.now())
}

// Location is the time zone calendar dates are reckoned in: the clock's.
func (r *Repository) Location() *time.Location {
	return r.now().Location()
}

// dateOf places a stored timestamp on the clock's calendar.
func (r *Repository) dateOf(t time.Time) time.Time {
	return entities.DateIn(t, r.Location())
}

// Borrow lends one copy of a book to a member.
func (r *Repository) Borrow(ctx context.Context, in BorrowInput) (*entities.Borrowing, error) {
	borrowDate := r.now()
	if in.BorrowDate != nil {
		borrowDate = *in.BorrowDate
	}

	borrowDay := r.dateOf(borrowDate)
	var due time.Time
	switch {
	case in.DueDate != nil:
		due = entities.DateOf(*in.DueDate)
	case in.LoanDays > 0:
		due = borrowDay.AddDate(0, 0, in.LoanDays)
	default:
		return nil, database.NewDomainError(database.ReasonInvalidDueDate, "due date is required")
	}
	if due.Before(borrowDay) {
		return nil, database.NewDomainError(database.ReasonInvalidDueDate, "due date cannot be before the borrow date")
	}

	borrowing := entities.Borrowing{
		BookID:     in.BookID,
		UserID:     in.UserID,
		BorrowDate: borrowDate.UTC(),
		DueDate:    due,
		Status:     entities.BorrowingStatusBorrowed,
		Notes:      in.Notes,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var book entities.Book
		if err := tx.Select("id").First(&book, in.BookID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return database.NewDomainError(database.ReasonBookNotFound, "book not found")
			}
			return fmt.Errorf("load book: %w", err)
		}

		var members int64
		if err := tx.Model(&entities.Member{}).Where("id = ?", in.UserID).Count(&members).Error; err != nil {
			return fmt.Errorf("load member: %w", err)
		}
		if members == 0 {
			return database.NewDomainError(database.ReasonMemberNotFound, "member not found")
		}

		result := tx.Model(&entities.Book{}).
			Where("id = ? AND available_copies > 0", in.BookID).
			Update("available_copies", gorm.Expr("available_copies - 1"))
		if result.Error != nil {
			return fmt.Errorf("decrement copies: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return database.NewDomainError(database.ReasonNoAvailableCopies, "no copies of this book are available")
		}

		if err := tx.Create(&borrowing).Error; err != nil {
			return fmt.Errorf("create borrowing: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, borrowing.ID)
}

// Get loads a borrowing with its book and member.
func (r *Repository) Get(ctx context.Context, id uint) (*entities.Borrowing, error) {
	var borrowing entities.Borrowing
	err := r.db.WithContext(ctx).Preload("Book").Preload("User").First(&borrowing, id).Error
	if err != nil {
		return nil, err
	}
	return &borrowing, nil
}

// List returns a page of borrowings. Overdue listings are ordered by due
// date, oldest first; everything else by borrow date, newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter, page database.Page) ([]entities.Borrowing, int64, error) {
	var borrowings []entities.Borrowing
	var total int64
	today := r.Today()

	query := r.db.WithContext(ctx).Model(&entities.Borrowing{})
	switch filter.Scope {
	case ScopeActive:
		query = query.Where("status IN ? AND due_date >= ?", activeStatuses, today)
	case ScopeOverdue:
		query = query.Where("status IN ? AND due_date < ?", activeStatuses, today)
	case ScopeReturned:
		query = query.Where("status = ?", entities.BorrowingStatusReturned)
	}
	if filter.BookID != 0 {
		query = query.Where("book_id = ?", filter.BookID)
	}
	if filter.UserID != 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.Query != "" {
		pattern := database.LikePattern(filter.Query)
		bookIDs := r.db.Model(&entities.Book{}).Select("id").
			Where(`LOWER(title) LIKE ? ESCAPE '\' OR LOWER(author) LIKE ? ESCAPE '\'`, pattern, pattern)
		memberIDs := r.db.Model(&entities.Member{}).Select("id").
			Where(`LOWER(name) LIKE ? ESCAPE '\' OR LOWER(username) LIKE ? ESCAPE '\'`, pattern, pattern)
		query = query.Where(`book_id IN (?) OR user_id IN (?) OR LOWER(notes) LIKE ? ESCAPE '\'`, bookIDs, memberIDs, pattern)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count borrowings: %w", err)
	}

	order := "borrow_date DESC, id DESC"
	if filter.Scope == ScopeOverdue {
		order = "due_date ASC, id ASC"
	}
	err := query.Preload("Book").Preload("User").
		Order(order).Limit(page.Size).Offset(page.Offset()).
		Find(&borrowings).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list borrowings: %w", err)
	}
	return borrowings, total, nil
}

// UpdateBorrowing applies a partial update. Setting status to returned on an
// active loan performs a return; moving a returned loan back is rejected.
func (r *Repository) UpdateBorrowing(ctx context.Context, id uint, upd Update) (*entities.Borrowing, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var b entities.Borrowing
		if err := tx.First(&b, id).Error; err != nil {
			return err
		}

		if upd.Status != nil && !upd.Status.Valid() {
			return database.NewDomainError(database.ReasonInvalidStatusTransition,
				fmt.Sprintf("unknown status %q", *upd.Status))
		}
		if upd.Status != nil && !b.IsActive() && upd.Status.Stored() == entities.BorrowingStatusBorrowed {
			return database.NewDomainError(database.ReasonInvalidStatusTransition,
				"a returned borrowing cannot be borrowed again")
		}

		if upd.Notes != nil {
			b.Notes = *upd.Notes
		}
		if upd.ExtensionRequested != nil {
			b.ExtensionRequested = *upd.ExtensionRequested
		}
		if upd.DueDate != nil {
			if err := r.setDueDate(&b, *upd.DueDate); err != nil {
				return err
			}
		}
		if upd.Status != nil && *upd.Status == entities.BorrowingStatusReturned && b.IsActive() {
			if err := markReturned(tx, &b, r.now()); err != nil {
				return err
			}
		}

		return tx.Save(&b).Error
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// Return closes an active loan. Returning a returned loan is a no-op.
func (r *Repository) Return(ctx context.Context, id uint) (*entities.Borrowing, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var b entities.Borrowing
		if err := tx.First(&b, id).Error; err != nil {
			return err
		}
		if !b.IsActive() {
			return nil
		}
		if err := markReturned(tx, &b, r.now()); err != nil {
			return err
		}
		return tx.Save(&b).Error
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// Extend pushes the due date of an active loan by days and clears any
// pending extension request.
func (r *Repository) Extend(ctx context.Context, id uint, days int) (*entities.Borrowing, error) {
	if days <= 0 {
		return nil, database.NewDomainError(database.ReasonInvalidDueDate, "extension must be at least one day")
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var b entities.Borrowing
		if err := tx.First(&b, id).Error; err != nil {
			return err
		}
		if err := r.setDueDate(&b, entities.DateOf(b.DueDate).AddDate(0, 0, days)); err != nil {
			return err
		}
		return tx.Save(&b).Error
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// RequestExtension flags an active loan for staff review. When memberID is
// non-zero the loan must belong to that member.
func (r *Repository) RequestExtension(ctx context.Context, id, memberID uint) (*entities.Borrowing, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var b entities.Borrowing
		if err := tx.First(&b, id).Error; err != nil {
			return err
		}
		if memberID != 0 && b.UserID != memberID {
			return ErrNotBorrower
		}
		if !b.IsActive() {
			return database.NewDomainError(database.ReasonAlreadyReturned, "borrowing has already been returned")
		}
		return tx.Model(&b).Update("extension_requested", true).Error
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// Delete removes a borrowing, putting the copy back on the shelf first
// if the loan was still active.
func (r *Repository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var b entities.Borrowing
		if err := tx.First(&b, id).Error; err != nil {
			return err
		}
		if b.IsActive() {
			if err := restoreCopy(tx, b.BookID); err != nil {
				return err
			}
		}
		return tx.Delete(&entities.Borrowing{}, id).Error
	})
}

func (r *Repository) setDueDate(b *entities.Borrowing, due time.Time) error {
	if !b.IsActive() {
		return database.NewDomainError(database.ReasonAlreadyReturned, "borrowing has already been returned")
	}
	due = entities.DateOf(due)
	if due.Before(r.dateOf(b.BorrowDate)) {
		return database.NewDomainError(database.ReasonInvalidDueDate, "due date cannot be before the borrow date")
	}
	b.DueDate = due
	b.ExtensionRequested = false
	return nil
}

// markReturned must run inside the transaction that saves b.
func markReturned(tx *gorm.DB, b *entities.Borrowing, at time.Time) error {
	if err := restoreCopy(tx, b.BookID); err != nil {
		return err
	}
	returned := at.UTC()
	b.Status = entities.BorrowingStatusReturned
	b.ReturnDate = &returned
	b.ExtensionRequested = false
	return nil
}

func restoreCopy(tx *gorm.DB, bookID uint) error {
	result := tx.Model(&entities.Book{}).
		Where("id = ? AND available_copies < total_copies", bookID).
		Update("available_copies", gorm.Expr("available_copies + 1"))
	if result.Error != nil {
		return fmt.Errorf("increment copies: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		log.Printf("Book %d already has all copies on the shelf; not incrementing", bookID)
	}
	return nil
}
