package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/librarydesk/librarydesk/internal/auth"
	"github.com/librarydesk/librarydesk/internal/database/books"
	"github.com/librarydesk/librarydesk/internal/database/borrowings"
	"github.com/librarydesk/librarydesk/internal/entities"
	"github.com/librarydesk/librarydesk/internal/validation"
)

// BooksController handles the catalog endpoints.
type BooksController struct {
	store      BookStore
	borrowings BorrowingStore
	auditor    Auditor
}

func NewBooksController(store BookStore, borrowings BorrowingStore, auditor Auditor) *BooksController {
	return &BooksController{store: store, borrowings: borrowings, auditor: auditorOrNop(auditor)}
}

type createBookRequest struct {
	Title           string  `json:"title" binding:"required,max=512"`
	Author          string  `json:"author" binding:"required,max=256"`
	ISBN            *string `json:"isbn" binding:"omitempty,max=20"`
	Genre           string  `json:"genre" binding:"max=256"`
	PublishYear     *int    `json:"publishYear" binding:"omitempty,gte=0,lte=9999"`
	ShelfNumber     string  `json:"shelfNumber" binding:"max=50"`
	PageCount       *int    `json:"pageCount" binding:"omitempty,gte=1"`
	TotalCopies     *int    `json:"totalCopies" binding:"omitempty,gte=0,lte=10000"`
	AvailableCopies *int    `json:"availableCopies" binding:"omitempty,gte=0"`
}

type updateBookRequest struct {
	Title           *string `json:"title" binding:"omitempty,max=512"`
	Author          *string `json:"author" binding:"omitempty,max=256"`
	ISBN            *string `json:"isbn" binding:"omitempty,max=20"`
	Genre           *string `json:"genre" binding:"omitempty,max=256"`
	PublishYear     *int    `json:"publishYear" binding:"omitempty,gte=0,lte=9999"`
	ShelfNumber     *string `json:"shelfNumber" binding:"omitempty,max=50"`
	PageCount       *int    `json:"pageCount" binding:"omitempty,gte=1"`
	TotalCopies     *int    `json:"totalCopies" binding:"omitempty,gte=0,lte=10000"`
	AvailableCopies *int    `json:"availableCopies" binding:"omitempty,gte=0"`
}

// ListBooks handles GET /api/books
// Optional filters: q, genre, available=true.
func (bc *BooksController) ListBooks(c *gin.Context) {
	bc.list(c, books.Filter{
		Query:         strings.TrimSpace(c.Query("q")),
		Genre:         strings.TrimSpace(c.Query("genre")),
		AvailableOnly: c.Query("available") == "true",
	})
}

// SearchBooks handles GET /api/books/search?q=
// Matches title, author, ISBN or genre.
func (bc *BooksController) SearchBooks(c *gin.Context) {
	q, ok := searchQuery(c)
	if !ok {
		return
	}
	bc.list(c, books.Filter{Query: q})
}

func (bc *BooksController) list(c *gin.Context, filter books.Filter) {
	page, ok := parsePage(c)
	if !ok {
		return
	}
	list, total, err := bc.store.ListBooks(c.Request.Context(), filter, page)
	if err != nil {
		respondInternalError(c, err, "list books")
		return
	}
	c.JSON(http.StatusOK, newPaginatedResponse(list, page, total))
}

// ListGenres handles GET /api/books/genres
func (bc *BooksController) ListGenres(c *gin.Context) {
	genres, err := bc.store.ListGenres(c.Request.Context())
	if err != nil {
		respondInternalError(c, err, "list genres")
		return
	}
	c.JSON(http.StatusOK, gin.H{"genres": genres})
}

// GetBook handles GET /api/books/:id
func (bc *BooksController) GetBook(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	book, err := bc.store.GetBookByID(c.Request.Context(), id)
	if err != nil {
		respondStoreError(c, err, "book")
		return
	}
	c.JSON(http.StatusOK, book)
}

// GetBookBorrowings handles GET /api/books/:id/borrowings
func (bc *BooksController) GetBookBorrowings(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if _, err := bc.store.GetBookByID(c.Request.Context(), id); err != nil {
		respondStoreError(c, err, "book")
		return
	}
	listBorrowings(c, bc.borrowings, borrowings.ListFilter{BookID: id})
}

// CreateBook handles POST /api/books
// totalCopies defaults to 1 and availableCopies to totalCopies.
func (bc *BooksController) CreateBook(c *gin.Context) {
	var req createBookRequest
	if !bindJSON(c, &req) {
		return
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Author) == "" {
		respondValidation(c, blankFields(map[string]*string{"title": &req.Title, "author": &req.Author})...)
		return
	}

	book := &entities.Book{
		Title:       strings.TrimSpace(req.Title),
		Author:      strings.TrimSpace(req.Author),
		ISBN:        req.ISBN,
		Genre:       strings.TrimSpace(req.Genre),
		PublishYear: req.PublishYear,
		ShelfNumber: strings.TrimSpace(req.ShelfNumber),
		PageCount:   req.PageCount,
		TotalCopies: 1,
	}
	if req.TotalCopies != nil {
		book.TotalCopies = *req.TotalCopies
	}
	book.AvailableCopies = book.TotalCopies
	if req.AvailableCopies != nil {
		book.AvailableCopies = *req.AvailableCopies
	}

	if err := bc.store.CreateBook(c.Request.Context(), book); err != nil {
		respondStoreError(c, err, "book")
		return
	}
	bc.auditor.LogCatalog(auth.AuditActor(c), "book_create", book)
	c.JSON(http.StatusCreated, book)
}

// UpdateBook handles PUT /api/books/:id
// Only fields present in the body change.
func (bc *BooksController) UpdateBook(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req updateBookRequest
	if !bindJSON(c, &req) {
		return
	}
	if errs := blankFields(map[string]*string{"title": req.Title, "author": req.Author}); len(errs) > 0 {
		respondValidation(c, errs...)
		return
	}

	book, err := bc.store.UpdateBook(c.Request.Context(), id, books.Update{
		Title:           trimmed(req.Title),
		Author:          trimmed(req.Author),
		ISBN:            req.ISBN,
		Genre:           trimmed(req.Genre),
		PublishYear:     req.PublishYear,
		ShelfNumber:     trimmed(req.ShelfNumber),
		PageCount:       req.PageCount,
		TotalCopies:     req.TotalCopies,
		AvailableCopies: req.AvailableCopies,
	})
	if err != nil {
		respondStoreError(c, err, "book")
		return
	}
	bc.auditor.LogCatalog(auth.AuditActor(c), "book_update", book)
	c.JSON(http.StatusOK, book)
}

// DeleteBook handles DELETE /api/books/:id
// Books that were ever lent out are kept for the circulation history.
func (bc *BooksController) DeleteBook(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	book, err := bc.store.GetBookByID(c.Request.Context(), id)
	if err != nil {
		respondStoreError(c, err, "book")
		return
	}
	if err := bc.store.DeleteBook(c.Request.Context(), id); err != nil {
		respondStoreError(c, err, "book")
		return
	}
	bc.auditor.LogDelete(auth.AuditActor(c), "book", id, book.Title)
	c.JSON(http.StatusOK, gin.H{"message": "book deleted"})
}

// blankFields reports present-but-blank string fields. Nil entries are skipped.
func blankFields(fields map[string]*string) []validation.FieldError {
	var errs []validation.FieldError
	for _, name := range sortedKeys(fields) {
		if v := fields[name]; v != nil && strings.TrimSpace(*v) == "" {
			errs = append(errs, validation.FieldError{Field: name, Message: "is required"})
		}
	}
	return errs
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	return &t
}
