package borrowings

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/librarydesk/librarydesk/internal/database"
	"github.com/librarydesk/librarydesk/internal/entities"
)

var fixedNow = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

type fixture struct {
	repo   *Repository
	db     *gorm.DB
	book   entities.Book
	member entities.Member
}

func setupTestDB(t *testing.T, copies int) *fixture {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "borrowings.db"), logger.Silent)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		repo:   NewRepository(db.DB).WithClock(func() time.Time { return fixedNow }),
		db:     db.DB,
		book:   entities.Book{Title: "Dune", Author: "Frank Herbert", TotalCopies: copies, AvailableCopies: copies},
		member: entities.Member{Name: "Ann Lee", Username: "ann", MembershipDate: fixedNow},
	}
	require.NoError(t, f.db.Create(&f.book).Error)
	require.NoError(t, f.db.Create(&f.member).Error)
	return f
}

func (f *fixture) available(t *testing.T) int {
	t.Helper()
	var book entities.Book
	require.NoError(t, f.db.First(&book, f.book.ID).Error)
	return book.AvailableCopies
}

func (f *fixture) borrow(t *testing.T) *entities.Borrowing {
	t.Helper()
	b, err := f.repo.Borrow(context.Background(), BorrowInput{BookID: f.book.ID, UserID: f.member.ID, LoanDays: 14})
	require.NoError(t, err)
	return b
}

func requireReason(t *testing.T, err error, reason string) {
	t.Helper()
	de, ok := database.AsDomainError(err)
	require.True(t, ok, "expected domain error, got %v", err)
	assert.Equal(t, reason, de.Reason)
}

func TestBorrow_DefaultsAndPreloads(t *testing.T) {
	f := setupTestDB(t, 3)

	b := f.borrow(t)

	assert.Equal(t, entities.BorrowingStatusBorrowed, b.Status)
	assert.True(t, fixedNow.Equal(b.BorrowDate))
	assert.True(t, time.Date(2024, 3, 29, 0, 0, 0, 0, time.UTC).Equal(b.DueDate))
	assert.Nil(t, b.ReturnDate)
	require.NotNil(t, b.Book)
	require.NotNil(t, b.User)
	assert.Equal(t, "Dune", b.Book.Title)
	assert.Equal(t, "ann", b.User.Username)
	assert.Equal(t, 2, f.available(t))
}

func TestBorrow_Preconditions(t *testing.T) {
	f := setupTestDB(t, 1)
	ctx := context.Background()

	_, err := f.repo.Borrow(ctx, BorrowInput{BookID: 999, UserID: f.member.ID, LoanDays: 14})
	requireReason(t, err, database.ReasonBookNotFound)

	_, err = f.repo.Borrow(ctx, BorrowInput{BookID: f.book.ID, UserID: 999, LoanDays: 14})
	requireReason(t, err, database.ReasonMemberNotFound)

	early := fixedNow.AddDate(0, 0, -1)
	_, err = f.repo.Borrow(ctx, BorrowInput{BookID: f.book.ID, UserID: f.member.ID, DueDate: &early})
	requireReason(t, err, database.ReasonInvalidDueDate)

	_, err = f.repo.Borrow(ctx, BorrowInput{BookID: f.book.ID, UserID: f.member.ID})
	requireReason(t, err, database.ReasonInvalidDueDate)

	assert.Equal(t, 1, f.available(t), "failed borrows must not consume copies")
}

func TestBorrow_TwoCopyScenario(t *testing.T) {
	f := setupTestDB(t, 2)
	ctx := context.Background()

	first := f.borrow(t)
	f.borrow(t)
	assert.Equal(t, 0, f.available(t))

	_, err := f.repo.Borrow(ctx, BorrowInput{BookID: f.book.ID, UserID: f.member.ID, LoanDays: 14})
	requireReason(t, err, database.ReasonNoAvailableCopies)

	var count int64
	require.NoError(t, f.db.Model(&entities.Borrowing{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)

	_, err = f.repo.Return(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.available(t))
}

func TestBorrow_CopyAccounting(t *testing.T) {
	f := setupTestDB(t, 5)
	ctx := context.Background()

	var loans []*entities.Borrowing
	for i := 0; i < 4; i++ {
		loans = append(loans, f.borrow(t))
	}
	for _, b := range loans[:3] {
		_, err := f.repo.Return(ctx, b.ID)
		require.NoError(t, err)
	}

	// 4 borrows, 3 returns
	assert.Equal(t, 5-(4-3), f.available(t))
}

func TestBorrow_ConcurrentNeverNegative(t *testing.T) {
	f := setupTestDB(t, 3)
	ctx := context.Background()

	const attempts = 10
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.repo.Borrow(ctx, BorrowInput{BookID: f.book.ID, UserID: f.member.ID, LoanDays: 7})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		requireReason(t, err, database.ReasonNoAvailableCopies)
	}
	assert.Equal(t, 3, succeeded)
	assert.Equal(t, 0, f.available(t))
}

func TestReturn_UsesServerTimeAndIsIdempotent(t *testing.T) {
	f := setupTestDB(t, 1)
	ctx := context.Background()
	b := f.borrow(t)

	later := fixedNow.Add(48 * time.Hour)
	repo := f.repo.WithClock(func() time.Time { return later })

	returned, err := repo.Return(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.BorrowingStatusReturned, returned.Status)
	require.NotNil(t, returned.ReturnDate)
	assert.True(t, later.Equal(*returned.ReturnDate))
	assert.Equal(t, 1, f.available(t))

	again, err := repo.WithClock(func() time.Time { return later.Add(time.Hour) }).Return(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, later.Equal(*again.ReturnDate), "second return keeps the first return date")
	assert.Equal(t, 1, f.available(t))
}

func TestUpdateBorrowing_StatusTransitions(t *testing.T) {
	f := setupTestDB(t, 1)
	ctx := context.Background()
	b := f.borrow(t)

	overdue := entities.BorrowingStatusOverdue
	updated, err := f.repo.UpdateBorrowing(ctx, b.ID, Update{Status: &overdue})
	require.NoError(t, err)
	assert.Equal(t, entities.BorrowingStatusBorrowed, updated.Status, "overdue is never stored")

	returned := entities.BorrowingStatusReturned
	updated, err = f.repo.UpdateBorrowing(ctx, b.ID, Update{Status: &returned})
	require.NoError(t, err)
	assert.Equal(t, entities.BorrowingStatusReturned, updated.Status)
	require.NotNil(t, updated.ReturnDate)
	assert.True(t, fixedNow.Equal(*updated.ReturnDate))
	assert.Equal(t, 1, f.available(t))

	_, err = f.repo.UpdateBorrowing(ctx, b.ID, Update{Status: &returned})
	require.NoError(t, err)
	assert.Equal(t, 1, f.available(t))

	borrowed := entities.BorrowingStatusBorrowed
	_, err = f.repo.UpdateBorrowing(ctx, b.ID, Update{Status: &borrowed})
	requireReason(t, err, database.ReasonInvalidStatusTransition)

	bogus := entities.BorrowingStatus("lost")
	_, err = f.repo.UpdateBorrowing(ctx, b.ID, Update{Status: &bogus})
	requireReason(t, err, database.ReasonInvalidStatusTransition)
}

func TestUpdateBorrowing_DueDate(t *testing.T) {
	f := setupTestDB(t, 2)
	ctx := context.Background()
	b := f.borrow(t)

	_, err := f.repo.RequestExtension(ctx, b.ID, f.member.ID)
	require.NoError(t, err)

	due := time.Date(2024, 4, 10, 15, 0, 0, 0, time.UTC)
	notes := "renewed at desk"
	updated, err := f.repo.UpdateBorrowing(ctx, b.ID, Update{DueDate: &due, Notes: &notes})
	require.NoError(t, err)
	assert.True(t, time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC).Equal(updated.DueDate))
	assert.False(t, updated.ExtensionRequested)
	assert.Equal(t, notes, updated.Notes)

	before := fixedNow.AddDate(0, 0, -3)
	_, err = f.repo.UpdateBorrowing(ctx, b.ID, Update{DueDate: &before})
	requireReason(t, err, database.ReasonInvalidDueDate)

	_, err = f.repo.Return(ctx, b.ID)
	require.NoError(t, err)
	_, err = f.repo.UpdateBorrowing(ctx, b.ID, Update{DueDate: &due})
	requireReason(t, err, database.ReasonAlreadyReturned)
}

func TestDueDates_UseClockCalendar(t *testing.T) {
	f := setupTestDB(t, 2)
	ctx := context.Background()

	// 21:00 on Mar 10 in UTC-5 is 02:00 on Mar 11 in UTC
	eastCoast := time.FixedZone("UTC-5", -5*60*60)
	evening := time.Date(2024, 3, 10, 21, 0, 0, 0, eastCoast)
	repo := f.repo.WithClock(func() time.Time { return evening })

	sameDay := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	b, err := repo.Borrow(ctx, BorrowInput{BookID: f.book.ID, UserID: f.member.ID, DueDate: &sameDay})
	require.NoError(t, err)
	assert.True(t, sameDay.Equal(b.DueDate))

	_, err = repo.UpdateBorrowing(ctx, b.ID, Update{DueDate: &sameDay})
	require.NoError(t, err, "the stored borrow date must read back as Mar 10")

	dayBefore := sameDay.AddDate(0, 0, -1)
	_, err = repo.UpdateBorrowing(ctx, b.ID, Update{DueDate: &dayBefore})
	requireReason(t, err, database.ReasonInvalidDueDate)

	defaulted, err := repo.Borrow(ctx, BorrowInput{BookID: f.book.ID, UserID: f.member.ID, LoanDays: 14})
	require.NoError(t, err)
	assert.True(t, time.Date(2024, 3, 24, 0, 0, 0, 0, time.UTC).Equal(defaulted.DueDate))
	assert.Equal(t, 0, defaulted.DaysBorrowed(repo.Today(), repo.Location()))
}

func TestExtendAndRequestExtension(t *testing.T) {
	f := setupTestDB(t, 1)
	ctx := context.Background()
	b := f.borrow(t)

	other := entities.Member{Name: "Bob", Username: "bob", MembershipDate: fixedNow}
	require.NoError(t, f.db.Create(&other).Error)

	_, err := f.repo.RequestExtension(ctx, b.ID, other.ID)
	assert.ErrorIs(t, err, ErrNotBorrower)

	requested, err := f.repo.RequestExtension(ctx, b.ID, f.member.ID)
	require.NoError(t, err)
	assert.True(t, requested.ExtensionRequested)

	extended, err := f.repo.Extend(ctx, b.ID, 7)
	require.NoError(t, err)
	assert.True(t, b.DueDate.AddDate(0, 0, 7).Equal(extended.DueDate))
	assert.False(t, extended.ExtensionRequested)

	_, err = f.repo.Extend(ctx, b.ID, 0)
	requireReason(t, err, database.ReasonInvalidDueDate)

	_, err = f.repo.Return(ctx, b.ID)
	require.NoError(t, err)
	_, err = f.repo.Extend(ctx, b.ID, 7)
	requireReason(t, err, database.ReasonAlreadyReturned)
	_, err = f.repo.RequestExtension(ctx, b.ID, 0)
	requireReason(t, err, database.ReasonAlreadyReturned)
}

func TestDelete_RestoresCopyOnlyWhenActive(t *testing.T) {
	f := setupTestDB(t, 2)
	ctx := context.Background()

	active := f.borrow(t)
	returned := f.borrow(t)
	_, err := f.repo.Return(ctx, returned.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.available(t))

	require.NoError(t, f.repo.Delete(ctx, returned.ID))
	assert.Equal(t, 1, f.available(t))

	require.NoError(t, f.repo.Delete(ctx, active.ID))
	assert.Equal(t, 2, f.available(t))

	assert.ErrorIs(t, f.repo.Delete(ctx, active.ID), database.ErrNotFound)
}

func TestList_Scopes(t *testing.T) {
	f := setupTestDB(t, 5)
	ctx := context.Background()

	pastBorrow := fixedNow.AddDate(0, 0, -20)
	pastDue := fixedNow.AddDate(0, 0, -6)
	overdue, err := f.repo.Borrow(ctx, BorrowInput{BookID: f.book.ID, UserID: f.member.ID, BorrowDate: &pastBorrow, DueDate: &pastDue})
	require.NoError(t, err)

	dueToday := fixedNow
	onTime, err := f.repo.Borrow(ctx, BorrowInput{BookID: f.book.ID, UserID: f.member.ID, DueDate: &dueToday})
	require.NoError(t, err)

	done := f.borrow(t)
	_, err = f.repo.Return(ctx, done.ID)
	require.NoError(t, err)

	page := database.NewPage(1, 10)
	ids := func(scope Scope) []uint {
		rows, _, err := f.repo.List(ctx, ListFilter{Scope: scope}, page)
		require.NoError(t, err)
		var out []uint
		for _, b := range rows {
			out = append(out, b.ID)
		}
		return out
	}

	assert.Equal(t, []uint{overdue.ID}, ids(ScopeOverdue))
	assert.Equal(t, []uint{onTime.ID}, ids(ScopeActive), "due today is still active")
	assert.Equal(t, []uint{done.ID}, ids(ScopeReturned))
	assert.Len(t, ids(ScopeAll), 3)

	rows, _, err := f.repo.List(ctx, ListFilter{Scope: ScopeOverdue}, page)
	require.NoError(t, err)
	assert.True(t, rows[0].IsOverdue(f.repo.Today()))
	assert.Equal(t, entities.BorrowingStatusOverdue, rows[0].EffectiveStatus(f.repo.Today()))
}

func TestList_SearchAndFilters(t *testing.T) {
	f := setupTestDB(t, 5)
	ctx := context.Background()

	other := entities.Book{Title: "Emma", Author: "Jane Austen", TotalCopies: 1, AvailableCopies: 1}
	require.NoError(t, f.db.Create(&other).Error)
	bob := entities.Member{Name: "Bob Stone", Username: "bstone", MembershipDate: fixedNow}
	require.NoError(t, f.db.Create(&bob).Error)

	f.borrow(t)
	_, err := f.repo.Borrow(ctx, BorrowInput{BookID: other.ID, UserID: bob.ID, LoanDays: 14, Notes: "gift_wrap"})
	require.NoError(t, err)

	page := database.NewPage(1, 10)
	cases := []struct {
		name   string
		filter ListFilter
		want   int64
	}{
		{"by title", ListFilter{Query: "dune"}, 1},
		{"by author", ListFilter{Query: "AUSTEN"}, 1},
		{"by member", ListFilter{Query: "stone"}, 1},
		{"by notes", ListFilter{Query: "gift_"}, 1},
		{"underscore is literal", ListFilter{Query: "t_w"}, 1},
		{"no match", ListFilter{Query: "zzz"}, 0},
		{"by book", ListFilter{BookID: f.book.ID}, 1},
		{"by member id", ListFilter{UserID: bob.ID}, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, total, err := f.repo.List(ctx, tc.filter, page)
			require.NoError(t, err)
			assert.Equal(t, tc.want, total)
		})
	}
}
