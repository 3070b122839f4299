package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/librarydesk/librarydesk/internal/auth"
	"github.com/librarydesk/librarydesk/internal/config"
	"github.com/librarydesk/librarydesk/internal/database/borrowings"
	"github.com/librarydesk/librarydesk/internal/entities"
	"github.com/librarydesk/librarydesk/internal/settingsstore"
	"github.com/librarydesk/librarydesk/internal/validation"
)

// BorrowingView is a borrowing as returned to clients: the status is the
// effective one, so active loans past their due date read "overdue".
type BorrowingView struct {
	entities.Borrowing
	Status       entities.BorrowingStatus `json:"status"`
	IsOverdue    bool                     `json:"isOverdue"`
	DaysBorrowed int                      `json:"daysBorrowed"`
}

func newBorrowingView(c *gin.Context, b entities.Borrowing, today time.Time, loc *time.Location) BorrowingView {
	if b.User != nil && !auth.IsAdmin(c) {
		member := *b.User
		member.AdminRating = nil
		member.AdminNotes = ""
		b.User = &member
	}
	return BorrowingView{
		Borrowing:    b,
		Status:       b.EffectiveStatus(today),
		IsOverdue:    b.IsOverdue(today),
		DaysBorrowed: b.DaysBorrowed(today, loc),
	}
}

// BorrowingsController handles the circulation endpoints.
type BorrowingsController struct {
	store   BorrowingStore
	policy  LoanPolicyStore
	auditor Auditor
}

// NewBorrowingsController creates a BorrowingsController. policy may be nil,
// in which case the built-in loan lengths apply.
func NewBorrowingsController(store BorrowingStore, policy LoanPolicyStore, auditor Auditor) *BorrowingsController {
	return &BorrowingsController{store: store, policy: policy, auditor: auditorOrNop(auditor)}
}

type createBorrowingRequest struct {
	BookID     uint                     `json:"bookId" binding:"required"`
	UserID     uint                     `json:"userId" binding:"required"`
	BorrowDate *Date                    `json:"borrowDate"`
	DueDate    *Date                    `json:"dueDate"`
	Status     entities.BorrowingStatus `json:"status" binding:"omitempty,oneof=borrowed overdue"`
	Notes      string                   `json:"notes" binding:"max=2000"`
}

// returnDate is accepted so existing clients keep working; the server
// always records its own time.
type updateBorrowingRequest struct {
	Status             *entities.BorrowingStatus `json:"status" binding:"omitempty,oneof=borrowed overdue returned"`
	DueDate            *Date                     `json:"dueDate"`
	ReturnDate         *Date                     `json:"returnDate"`
	Notes              *string                   `json:"notes" binding:"omitempty,max=2000"`
	ExtensionRequested *bool                     `json:"extensionRequested"`
}

type extendRequest struct {
	Days *int `json:"days" binding:"omitempty,gte=1"`
}

func (bc *BorrowingsController) loanPolicy(c *gin.Context) settingsstore.LoanPolicy {
	if bc.policy == nil {
		return settingsstore.LoanPolicy{DefaultLoanDays: config.DefaultLoanDays, ExtensionDays: config.DefaultExtensionDays}
	}
	return bc.policy.GetLoanPolicy(c.Request.Context())
}

// ListBorrowings handles GET /api/borrowings
// Optional filters: status (active|overdue|returned), bookId, userId.
func (bc *BorrowingsController) ListBorrowings(c *gin.Context) {
	scope, ok := parseScope(c)
	if !ok {
		return
	}
	bookID, ok := parseOptionalQueryID(c, "bookId")
	if !ok {
		return
	}
	userID, ok := parseOptionalQueryID(c, "userId")
	if !ok {
		return
	}
	listBorrowings(c, bc.store, borrowings.ListFilter{
		Scope:  scope,
		Query:  strings.TrimSpace(c.Query("q")),
		BookID: bookID,
		UserID: userID,
	})
}

// ListActive handles GET /api/borrowings/active
func (bc *BorrowingsController) ListActive(c *gin.Context) {
	listBorrowings(c, bc.store, borrowings.ListFilter{Scope: borrowings.ScopeActive})
}

// ListOverdue handles GET /api/borrowings/overdue
// Oldest due date first.
func (bc *BorrowingsController) ListOverdue(c *gin.Context) {
	listBorrowings(c, bc.store, borrowings.ListFilter{Scope: borrowings.ScopeOverdue})
}

// ListReturned handles GET /api/borrowings/returned
func (bc *BorrowingsController) ListReturned(c *gin.Context) {
	listBorrowings(c, bc.store, borrowings.ListFilter{Scope: borrowings.ScopeReturned})
}

// SearchBorrowings handles GET /api/borrowings/search?q=
// Matches book title or author, member name or username, and notes.
func (bc *BorrowingsController) SearchBorrowings(c *gin.Context) {
	q, ok := searchQuery(c)
	if !ok {
		return
	}
	scope, ok := parseScope(c)
	if !ok {
		return
	}
	listBorrowings(c, bc.store, borrowings.ListFilter{Query: q, Scope: scope})
}

// GetBorrowing handles GET /api/borrowings/:id
// Members may read their own loans.
func (bc *BorrowingsController) GetBorrowing(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	b, err := bc.store.Get(c.Request.Context(), id)
	if err != nil {
		respondStoreError(c, err, "borrowing")
		return
	}
	if !auth.IsAdmin(c) && b.UserID != auth.GetUserID(c) {
		// Hide other members' loans entirely.
		respondNotFound(c, "borrowing")
		return
	}
	c.JSON(http.StatusOK, newBorrowingView(c, *b, bc.store.Today(), bc.store.Location()))
}

// CreateBorrowing handles POST /api/borrowings
// Lends one copy; dueDate defaults to borrowDate plus the loan policy length.
func (bc *BorrowingsController) CreateBorrowing(c *gin.Context) {
	var req createBorrowingRequest
	if !bindJSON(c, &req) {
		return
	}

	in := borrowings.BorrowInput{
		BookID:     req.BookID,
		UserID:     req.UserID,
		BorrowDate: req.BorrowDate.timePtr(),
		DueDate:    req.DueDate.timePtr(),
		Notes:      strings.TrimSpace(req.Notes),
	}
	if in.DueDate == nil {
		in.LoanDays = bc.loanPolicy(c).DefaultLoanDays
	}

	b, err := bc.store.Borrow(c.Request.Context(), in)
	if err != nil {
		respondStoreError(c, err, "borrowing")
		return
	}
	bc.auditor.LogCirculation(auth.AuditActor(c), "borrow", b)
	c.JSON(http.StatusCreated, newBorrowingView(c, *b, bc.store.Today(), bc.store.Location()))
}

// UpdateBorrowing handles PUT /api/borrowings/:id
// status "returned" performs a return; a client-supplied returnDate is ignored.
func (bc *BorrowingsController) UpdateBorrowing(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req updateBorrowingRequest
	if !bindJSON(c, &req) {
		return
	}

	upd := borrowings.Update{
		Status:             req.Status,
		DueDate:            req.DueDate.timePtr(),
		Notes:              trimmed(req.Notes),
		ExtensionRequested: req.ExtensionRequested,
	}
	b, err := bc.store.UpdateBorrowing(c.Request.Context(), id, upd)
	if err != nil {
		respondStoreError(c, err, "borrowing")
		return
	}

	action := "borrowing_update"
	if req.Status != nil && *req.Status == entities.BorrowingStatusReturned {
		action = "return"
	}
	bc.auditor.LogCirculation(auth.AuditActor(c), action, b)
	c.JSON(http.StatusOK, newBorrowingView(c, *b, bc.store.Today(), bc.store.Location()))
}

// ReturnBorrowing handles POST /api/borrowings/:id/return
// Returning twice is harmless.
func (bc *BorrowingsController) ReturnBorrowing(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	b, err := bc.store.Return(c.Request.Context(), id)
	if err != nil {
		respondStoreError(c, err, "borrowing")
		return
	}
	bc.auditor.LogCirculation(auth.AuditActor(c), "return", b)
	c.JSON(http.StatusOK, newBorrowingView(c, *b, bc.store.Today(), bc.store.Location()))
}

// ExtendBorrowing handles POST /api/borrowings/:id/extend
// Body {days} is optional and defaults to the policy's extension length.
func (bc *BorrowingsController) ExtendBorrowing(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req extendRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	days := bc.loanPolicy(c).ExtensionDays
	if req.Days != nil {
		days = *req.Days
	}
	if days > settingsstore.MaxPolicyDays {
		respondValidation(c, validation.FieldError{Field: "days", Message: "must be at most 365"})
		return
	}

	b, err := bc.store.Extend(c.Request.Context(), id, days)
	if err != nil {
		respondStoreError(c, err, "borrowing")
		return
	}
	bc.auditor.LogCirculation(auth.AuditActor(c), "extend", b)
	c.JSON(http.StatusOK, newBorrowingView(c, *b, bc.store.Today(), bc.store.Location()))
}

// RequestExtension handles POST /api/borrowings/:id/request-extension
// Members flag their own active loans; admins may flag any.
func (bc *BorrowingsController) RequestExtension(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var memberID uint
	if !auth.IsAdmin(c) {
		memberID = auth.GetUserID(c)
	}
	b, err := bc.store.RequestExtension(c.Request.Context(), id, memberID)
	if err != nil {
		respondStoreError(c, err, "borrowing")
		return
	}
	bc.auditor.LogCirculation(auth.AuditActor(c), "request_extension", b)
	c.JSON(http.StatusOK, newBorrowingView(c, *b, bc.store.Today(), bc.store.Location()))
}

// DeleteBorrowing handles DELETE /api/borrowings/:id
// An active loan puts its copy back on the shelf.
func (bc *BorrowingsController) DeleteBorrowing(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	b, err := bc.store.Get(c.Request.Context(), id)
	if err != nil {
		respondStoreError(c, err, "borrowing")
		return
	}
	if err := bc.store.Delete(c.Request.Context(), id); err != nil {
		respondStoreError(c, err, "borrowing")
		return
	}
	name := "borrowing"
	if b.Book != nil {
		name = b.Book.Title
	}
	bc.auditor.LogDelete(auth.AuditActor(c), "borrowing", id, name)
	c.JSON(http.StatusOK, gin.H{"message": "borrowing deleted"})
}

// listBorrowings writes one page of borrowings matching filter.
func listBorrowings(c *gin.Context, store BorrowingStore, filter borrowings.ListFilter) {
	page, ok := parsePage(c)
	if !ok {
		return
	}
	list, total, err := store.List(c.Request.Context(), filter, page)
	if err != nil {
		respondInternalError(c, err, "list borrowings")
		return
	}

	today, loc := store.Today(), store.Location()
	views := make([]BorrowingView, 0, len(list))
	for _, b := range list {
		views = append(views, newBorrowingView(c, b, today, loc))
	}
	c.JSON(http.StatusOK, newPaginatedResponse(views, page, total))
}

// parseScope reads the optional status filter.
func parseScope(c *gin.Context) (borrowings.Scope, bool) {
	switch scope := borrowings.Scope(c.Query("status")); scope {
	case borrowings.ScopeAll, borrowings.ScopeActive, borrowings.ScopeOverdue, borrowings.ScopeReturned:
		return scope, true
	}
	respondValidation(c, validation.FieldError{Field: "status", Message: "must be one of: active, overdue, returned"})
	return "", false
}
