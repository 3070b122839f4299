package database

import (
	"errors"

	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

// ErrNotFound is returned by repositories when a record does not exist.
var ErrNotFound = gorm.ErrRecordNotFound

// Reasons reported to API clients alongside a DomainError.
const (
	ReasonBookNotFound             = "book_not_found"
	ReasonMemberNotFound           = "member_not_found"
	ReasonNoAvailableCopies        = "no_available_copies"
	ReasonInvalidDueDate           = "invalid_due_date"
	ReasonInvalidStatusTransition  = "invalid_status_transition"
	ReasonAlreadyReturned          = "already_returned"
	ReasonInvalidCopyCounts        = "invalid_copy_counts"
	ReasonDuplicateISBN            = "duplicate_isbn"
	ReasonDuplicateUsername        = "duplicate_username"
	ReasonDuplicateEmail           = "duplicate_email"
	ReasonBookHasActiveBorrowings  = "book_has_active_borrowings"
	ReasonBookHasHistory           = "book_has_borrowing_history"
	ReasonMemberHasActiveBorrowing = "member_has_active_borrowings"
	ReasonMemberHasHistory         = "member_has_borrowing_history"
	ReasonAdminCredentials         = "admin_requires_credentials"
)

// DomainError is a business rule violation with a machine-readable reason.
type DomainError struct {
	Reason  string
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

func NewDomainError(reason, message string) *DomainError {
	return &DomainError{Reason: reason, Message: message}
}

// AsDomainError unwraps err into a DomainError when it is one.
func AsDomainError(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// IsUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY constraint failure.
func IsUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// IsForeignKeyViolation reports whether err is a FOREIGN KEY constraint failure.
func IsForeignKeyViolation(err error) bool {
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	return false
}
