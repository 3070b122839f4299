package http

import (
	"context"
	"time"

	"github.com/librarydesk/librarydesk/internal/audit"
	"github.com/librarydesk/librarydesk/internal/database"
	auditrepo "github.com/librarydesk/librarydesk/internal/database/audit"
	"github.com/librarydesk/librarydesk/internal/database/books"
	"github.com/librarydesk/librarydesk/internal/database/borrowings"
	"github.com/librarydesk/librarydesk/internal/database/members"
	"github.com/librarydesk/librarydesk/internal/database/stats"
	"github.com/librarydesk/librarydesk/internal/entities"
	"github.com/librarydesk/librarydesk/internal/settingsstore"
)

// This file consolidates the store interfaces used by HTTP controllers.
// Each controller depends only on the operations it calls.

// BookStore is the catalog persistence used by BooksController.
type BookStore interface {
	ListBooks(ctx context.Context, filter books.Filter, page database.Page) ([]entities.Book, int64, error)
	GetBookByID(ctx context.Context, id uint) (*entities.Book, error)
	CreateBook(ctx context.Context, book *entities.Book) error
	UpdateBook(ctx context.Context, id uint, upd books.Update) (*entities.Book, error)
	DeleteBook(ctx context.Context, id uint) error
	ListGenres(ctx context.Context) ([]string, error)
}

// MemberStore is the membership persistence used by MembersController.
type MemberStore interface {
	ListMembers(ctx context.Context, query string, page database.Page) ([]entities.Member, int64, error)
	GetMemberByID(ctx context.Context, id uint) (*entities.Member, error)
	CreateMember(ctx context.Context, member *entities.Member) error
	UpdateMember(ctx context.Context, id uint, upd members.Update) (*entities.Member, error)
	DeleteMember(ctx context.Context, id uint) error
}

// BorrowingStore is the loan lifecycle used by BorrowingsController and the
// per-book and per-member borrowing listings.
type BorrowingStore interface {
	Borrow(ctx context.Context, in borrowings.BorrowInput) (*entities.Borrowing, error)
	Get(ctx context.Context, id uint) (*entities.Borrowing, error)
	List(ctx context.Context, filter borrowings.ListFilter, page database.Page) ([]entities.Borrowing, int64, error)
	UpdateBorrowing(ctx context.Context, id uint, upd borrowings.Update) (*entities.Borrowing, error)
	Return(ctx context.Context, id uint) (*entities.Borrowing, error)
	Extend(ctx context.Context, id uint, days int) (*entities.Borrowing, error)
	RequestExtension(ctx context.Context, id, memberID uint) (*entities.Borrowing, error)
	Delete(ctx context.Context, id uint) error
	Today() time.Time
	Location() *time.Location
}

// StatsStore provides the dashboard aggregates.
type StatsStore interface {
	Dashboard(ctx context.Context) (*stats.Dashboard, error)
	MostBorrowedBooks(ctx context.Context, limit int) ([]stats.BookCount, error)
	MostActiveMembers(ctx context.Context, limit int) ([]stats.MemberCount, error)
	WeeklyActivity(ctx context.Context) ([]stats.DayActivity, error)
	GenreDistribution(ctx context.Context) ([]stats.GenreCount, error)
	ActivityFeed(ctx context.Context, page database.Page) ([]stats.Activity, int64, error)
}

// LoanPolicyStore reads and writes the runtime loan policy.
type LoanPolicyStore interface {
	GetLoanPolicy(ctx context.Context) settingsstore.LoanPolicy
	GetLoanPolicyInfo(ctx context.Context) settingsstore.LoanPolicyInfo
	SetLoanPolicy(ctx context.Context, policy settingsstore.LoanPolicy) error
	ClearLoanPolicy(ctx context.Context) error
}

// AuditLog reads audit events.
type AuditLog interface {
	GetEvents(ctx context.Context, filter auditrepo.Filter, page database.Page) ([]entities.AuditEvent, int64, error)
}

// Auditor records changes made through the API. All methods must not block.
type Auditor interface {
	LogCirculation(actor audit.Actor, action string, b *entities.Borrowing)
	LogCatalog(actor audit.Actor, action string, book *entities.Book)
	LogMembership(actor audit.Actor, action string, member *entities.Member)
	LogDelete(actor audit.Actor, entityType string, entityID uint, entityName string)
	LogSettings(actor audit.Actor, action, description string)
}

// PasswordHasher hashes member passwords set by admins.
type PasswordHasher interface {
	HashPassword(password string) (string, error)
}

// nopAuditor is used when no audit service is configured.
type nopAuditor struct{}

func (nopAuditor) LogCirculation(audit.Actor, string, *entities.Borrowing) {}
func (nopAuditor) LogCatalog(audit.Actor, string, *entities.Book) {}
func (nopAuditor) LogMembership(audit.Actor, string, *entities.Member) {}
func (nopAuditor) LogDelete(audit.Actor, string, uint, string) {}
func (nopAuditor) LogSettings(audit.Actor, string, string) {}

func auditorOrNop(a Auditor) Auditor {
	if a == nil {
		return nopAuditor{}
	}
	return a
}
