// Package books provides database operations for the catalog.
//
// # Usage
//
//	repo := books.NewRepository(db)
//	book, err := repo.GetBookByID(ctx, 123)
package books

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"

	"github.com/librarydesk/librarydesk/internal/database"
	"github.com/librarydesk/librarydesk/internal/entities"
)

// Repository handles all book database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new books repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Filter narrows a book listing. Zero values match everything.
type Filter struct {
	Query         string // title, author, ISBN or genre substring
	Genre         string
	AvailableOnly bool
}

// Update carries a partial book update. Nil fields are left unchanged.
// An empty ISBN clears it.
type Update struct {
	Title           *string
	Author          *string
	ISBN            *string
	Genre           *string
	PublishYear     *int
	ShelfNumber     *string
	PageCount       *int
	TotalCopies     *int
	AvailableCopies *int
}

// ListBooks returns a page of books, newest first.
func (r *Repository) ListBooks(ctx context.Context, filter Filter, page database.Page) ([]entities.Book, int64, error) {
	var books []entities.Book
	var total int64

	query := r.db.WithContext(ctx).Model(&entities.Book{})
	if filter.Query != "" {
		pattern := database.LikePattern(filter.Query)
		query = query.Where(
			`LOWER(title) LIKE ? ESCAPE '\' OR LOWER(author) LIKE ? ESCAPE '\' OR LOWER(isbn) LIKE ? ESCAPE '\' OR LOWER(genre) LIKE ? ESCAPE '\'`,
			pattern, pattern, pattern, pattern,
		)
	}
	if filter.Genre != "" {
		query = query.Where(`LOWER(genre) LIKE ? ESCAPE '\'`, database.LikePattern(filter.Genre))
	}
	if filter.AvailableOnly {
		query = query.Where("available_copies > 0")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count books: %w", err)
	}

	err := query.Order("created_at DESC, id DESC").
		Limit(page.Size).Offset(page.Offset()).
		Find(&books).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list books: %w", err)
	}
	return books, total, nil
}

// GetBookByID retrieves a book by its ID.
func (r *Repository) GetBookByID(ctx context.Context, id uint) (*entities.Book, error) {
	var book entities.Book
	if err := r.db.WithContext(ctx).First(&book, id).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

// CreateBook inserts a book. AvailableCopies must already be set by the caller.
func (r *Repository) CreateBook(ctx context.Context, book *entities.Book) error {
	book.ISBN = normalizeISBN(book.ISBN)
	if err := checkCopies(book.AvailableCopies, book.TotalCopies); err != nil {
		return err
	}

	err := r.db.WithContext(ctx).Create(book).Error
	if database.IsUniqueViolation(err) {
		return database.NewDomainError(database.ReasonDuplicateISBN, "a book with this ISBN already exists")
	}
	return err
}

// UpdateBook applies a partial update. Changing TotalCopies shifts
// AvailableCopies by the same amount so copies on loan stay accounted for.
// An explicit AvailableCopies is accepted only when it matches that count.
func (r *Repository) UpdateBook(ctx context.Context, id uint, upd Update) (*entities.Book, error) {
	var book entities.Book
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&book, id).Error; err != nil {
			return err
		}
		onLoan := book.OnLoan()

		if upd.Title != nil {
			book.Title = *upd.Title
		}
		if upd.Author != nil {
			book.Author = *upd.Author
		}
		if upd.ISBN != nil {
			book.ISBN = normalizeISBN(upd.ISBN)
		}
		if upd.Genre != nil {
			book.Genre = *upd.Genre
		}
		if upd.PublishYear != nil {
			book.PublishYear = upd.PublishYear
		}
		if upd.ShelfNumber != nil {
			book.ShelfNumber = *upd.ShelfNumber
		}
		if upd.PageCount != nil {
			book.PageCount = upd.PageCount
		}
		if upd.TotalCopies != nil {
			if *upd.TotalCopies < onLoan {
				return database.NewDomainError(database.ReasonInvalidCopyCounts,
					fmt.Sprintf("total copies cannot be lower than the %d copies on loan", onLoan))
			}
			book.TotalCopies = *upd.TotalCopies
			book.AvailableCopies = book.TotalCopies - onLoan
		}
		// Copies on loan only come back through a return.
		if upd.AvailableCopies != nil && *upd.AvailableCopies != book.TotalCopies-onLoan {
			return database.NewDomainError(database.ReasonInvalidCopyCounts,
				fmt.Sprintf("available copies must equal total copies minus the %d on loan", onLoan))
		}
		if err := checkCopies(book.AvailableCopies, book.TotalCopies); err != nil {
			return err
		}

		err := tx.Save(&book).Error
		if database.IsUniqueViolation(err) {
			return database.NewDomainError(database.ReasonDuplicateISBN, "a book with this ISBN already exists")
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &book, nil
}

// DeleteBook removes a book that has never been lent out.
func (r *Repository) DeleteBook(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var book entities.Book
		if err := tx.First(&book, id).Error; err != nil {
			return err
		}

		var active, history int64
		if err := tx.Model(&entities.Borrowing{}).
			Where("book_id = ? AND status <> ?", id, entities.BorrowingStatusReturned).
			Count(&active).Error; err != nil {
			return err
		}
		if active > 0 {
			return database.NewDomainError(database.ReasonBookHasActiveBorrowings,
				fmt.Sprintf("book has %d active borrowings", active))
		}
		if err := tx.Model(&entities.Borrowing{}).Where("book_id = ?", id).Count(&history).Error; err != nil {
			return err
		}
		if history > 0 {
			return errHasHistory
		}

		err := tx.Delete(&entities.Book{}, id).Error
		if database.IsForeignKeyViolation(err) {
			return errHasHistory
		}
		return err
	})
}

var errHasHistory = database.NewDomainError(database.ReasonBookHasHistory,
	"book has borrowing history and cannot be deleted")

// ListGenres returns the distinct genres across the catalog, sorted.
// Genres differing only in case are merged under the first spelling seen.
func (r *Repository) ListGenres(ctx context.Context) ([]string, error) {
	var raw []string
	err := r.db.WithContext(ctx).Model(&entities.Book{}).
		Where("genre <> ''").Order("id").Pluck("genre", &raw).Error
	if err != nil {
		return nil, fmt.Errorf("list genres: %w", err)
	}

	seen := make(map[string]bool)
	genres := []string{}
	for _, g := range raw {
		for _, name := range entities.SplitGenres(g) {
			key := strings.ToLower(name)
			if seen[key] {
				continue
			}
			seen[key] = true
			genres = append(genres, name)
		}
	}
	sort.Slice(genres, func(i, j int) bool {
		return strings.ToLower(genres[i]) < strings.ToLower(genres[j])
	})
	return genres, nil
}

func checkCopies(available, total int) error {
	if total < 0 || available < 0 || available > total {
		return database.NewDomainError(database.ReasonInvalidCopyCounts,
			"available copies must be between 0 and total copies")
	}
	return nil
}

func normalizeISBN(isbn *string) *string {
	if isbn == nil {
		return nil
	}
	v := strings.TrimSpace(*isbn)
	if v == "" {
		return nil
	}
	return &v
}
