package books

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/librarydesk/librarydesk/internal/database"
	"github.com/librarydesk/librarydesk/internal/entities"
)

func setupTestDB(t *testing.T) (*Repository, *gorm.DB) {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "books.db"), logger.Silent)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(db.DB), db.DB
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int { return &i }

func newBook(title, genre string, copies int) *entities.Book {
	return &entities.Book{
		Title:           title,
		Author:          "Author of " + title,
		Genre:           genre,
		TotalCopies:     copies,
		AvailableCopies: copies,
	}
}

func TestRepository_CreateBook(t *testing.T) {
	repo, _ := setupTestDB(t)
	ctx := context.Background()

	book := newBook("Dune", "Science Fiction", 3)
	book.ISBN = strPtr(" 9780441013593 ")

	require.NoError(t, repo.CreateBook(ctx, book))
	assert.NotZero(t, book.ID)
	assert.Equal(t, "9780441013593", *book.ISBN)

	dup := newBook("Dune (reprint)", "", 1)
	dup.ISBN = strPtr("9780441013593")
	err := repo.CreateBook(ctx, dup)

	de, ok := database.AsDomainError(err)
	require.True(t, ok)
	assert.Equal(t, database.ReasonDuplicateISBN, de.Reason)
}

func TestRepository_CreateBook_EmptyISBNsDoNotCollide(t *testing.T) {
	repo, _ := setupTestDB(t)
	ctx := context.Background()

	a := newBook("A", "", 1)
	a.ISBN = strPtr("")
	b := newBook("B", "", 1)

	require.NoError(t, repo.CreateBook(ctx, a))
	require.NoError(t, repo.CreateBook(ctx, b))
	assert.Nil(t, a.ISBN)
}

func TestRepository_CreateBook_InvalidCopies(t *testing.T) {
	repo, _ := setupTestDB(t)

	book := newBook("Too many", "", 2)
	book.AvailableCopies = 3

	_, ok := database.AsDomainError(repo.CreateBook(context.Background(), book))
	assert.True(t, ok)
}

func TestRepository_ListBooks(t *testing.T) {
	repo, _ := setupTestDB(t)
	ctx := context.Background()

	for _, b := range []*entities.Book{
		newBook("Dune", "Science Fiction", 1),
		newBook("Emma", "Romance, Classic", 1),
		newBook("100% Pure", "Cooking", 0),
	} {
		require.NoError(t, repo.CreateBook(ctx, b))
	}

	all, total, err := repo.ListBooks(ctx, Filter{}, database.NewPage(1, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, all, 2)

	found, total, err := repo.ListBooks(ctx, Filter{Query: "EMMA"}, database.NewPage(1, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "Emma", found[0].Title)

	found, _, err = repo.ListBooks(ctx, Filter{Query: "100%"}, database.NewPage(1, 10))
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "100% Pure", found[0].Title)

	found, _, err = repo.ListBooks(ctx, Filter{Genre: "classic"}, database.NewPage(1, 10))
	require.NoError(t, err)
	require.Len(t, found, 1)

	found, total, err = repo.ListBooks(ctx, Filter{AvailableOnly: true}, database.NewPage(1, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestRepository_UpdateBook_ShiftsAvailableWithTotal(t *testing.T) {
	repo, db := setupTestDB(t)
	ctx := context.Background()

	book := newBook("Dune", "", 3)
	require.NoError(t, repo.CreateBook(ctx, book))
	// two copies out
	require.NoError(t, db.Model(book).Update("available_copies", 1).Error)

	updated, err := repo.UpdateBook(ctx, book.ID, Update{TotalCopies: intPtr(5), Title: strPtr("Dune Messiah")})
	require.NoError(t, err)
	assert.Equal(t, 5, updated.TotalCopies)
	assert.Equal(t, 3, updated.AvailableCopies)
	assert.Equal(t, "Dune Messiah", updated.Title)

	_, err = repo.UpdateBook(ctx, book.ID, Update{TotalCopies: intPtr(1)})
	de, ok := database.AsDomainError(err)
	require.True(t, ok)
	assert.Equal(t, database.ReasonInvalidCopyCounts, de.Reason)
}

func TestRepository_UpdateBook_AvailableCopiesFollowLoans(t *testing.T) {
	repo, db := setupTestDB(t)
	ctx := context.Background()

	book := newBook("Dune", "", 2)
	require.NoError(t, repo.CreateBook(ctx, book))
	// both copies out
	require.NoError(t, db.Model(book).Update("available_copies", 0).Error)

	_, err := repo.UpdateBook(ctx, book.ID, Update{AvailableCopies: intPtr(2)})
	de, ok := database.AsDomainError(err)
	require.True(t, ok)
	assert.Equal(t, database.ReasonInvalidCopyCounts, de.Reason)

	stored, err := repo.GetBookByID(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.AvailableCopies, "loaned copies stay off the shelf")

	updated, err := repo.UpdateBook(ctx, book.ID, Update{TotalCopies: intPtr(3), AvailableCopies: intPtr(1)})
	require.NoError(t, err)
	assert.Equal(t, 3, updated.TotalCopies)
	assert.Equal(t, 1, updated.AvailableCopies)
}

func TestRepository_UpdateBook_NotFound(t *testing.T) {
	repo, _ := setupTestDB(t)

	_, err := repo.UpdateBook(context.Background(), 42, Update{Title: strPtr("x")})
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestRepository_DeleteBook(t *testing.T) {
	repo, db := setupTestDB(t)
	ctx := context.Background()

	member := entities.Member{Name: "Ann", Username: "ann", MembershipDate: time.Now()}
	require.NoError(t, db.Create(&member).Error)

	free := newBook("Free", "", 1)
	lent := newBook("Lent", "", 1)
	old := newBook("Old", "", 1)
	for _, b := range []*entities.Book{free, lent, old} {
		require.NoError(t, repo.CreateBook(ctx, b))
	}

	now := time.Now()
	require.NoError(t, db.Create(&entities.Borrowing{
		BookID: lent.ID, UserID: member.ID, BorrowDate: now, DueDate: now, Status: entities.BorrowingStatusBorrowed,
	}).Error)
	require.NoError(t, db.Create(&entities.Borrowing{
		BookID: old.ID, UserID: member.ID, BorrowDate: now, DueDate: now, ReturnDate: &now, Status: entities.BorrowingStatusReturned,
	}).Error)

	require.NoError(t, repo.DeleteBook(ctx, free.ID))
	_, err := repo.GetBookByID(ctx, free.ID)
	assert.ErrorIs(t, err, database.ErrNotFound)

	de, ok := database.AsDomainError(repo.DeleteBook(ctx, lent.ID))
	require.True(t, ok)
	assert.Equal(t, database.ReasonBookHasActiveBorrowings, de.Reason)

	de, ok = database.AsDomainError(repo.DeleteBook(ctx, old.ID))
	require.True(t, ok)
	assert.Equal(t, database.ReasonBookHasHistory, de.Reason)

	assert.ErrorIs(t, repo.DeleteBook(ctx, 999), database.ErrNotFound)
}

func TestRepository_ListGenres(t *testing.T) {
	repo, _ := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateBook(ctx, newBook("A", "Fiction, Mystery", 1)))
	require.NoError(t, repo.CreateBook(ctx, newBook("B", "mystery,Biography", 1)))
	require.NoError(t, repo.CreateBook(ctx, newBook("C", "", 1)))

	genres, err := repo.ListGenres(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Biography", "Fiction", "Mystery"}, genres)
}
