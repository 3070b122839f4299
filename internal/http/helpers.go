package http

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/librarydesk/librarydesk/internal/audit"
	"github.com/librarydesk/librarydesk/internal/database"
	"github.com/librarydesk/librarydesk/internal/database/borrowings"
	"github.com/librarydesk/librarydesk/internal/validation"
)

// --- Response Types ---

// ErrorResponse is the standard error response format for all API errors.
type ErrorResponse struct {
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"` // machine-readable error code
}

// Pagination describes where a page sits in the full result set.
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
	HasNext    bool  `json:"hasNext"`
	HasPrev    bool  `json:"hasPrev"`
}

// PaginatedResponse wraps paginated data with metadata.
type PaginatedResponse struct {
	Data       any        `json:"data"`
	Pagination Pagination `json:"pagination"`
}

func newPaginatedResponse(data any, page database.Page, total int64) PaginatedResponse {
	totalPages := page.TotalPages(total)
	return PaginatedResponse{
		Data: data,
		Pagination: Pagination{
			Page:       page.Number,
			Limit:      page.Size,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page.Number < totalPages,
			HasPrev:    page.Number > 1,
		},
	}
}

// deleteBlocked lists reasons that mean the record is still referenced.
var deleteBlocked = map[string]bool{
	database.ReasonBookHasActiveBorrowings:  true,
	database.ReasonBookHasHistory:           true,
	database.ReasonMemberHasActiveBorrowing: true,
	database.ReasonMemberHasHistory:         true,
}

// --- Error Response Helpers ---

// respondBadRequest sends a 400 Bad Request response.
func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Message: message})
}

// respondNotFound sends a 404 Not Found response.
func respondNotFound(c *gin.Context, resource string) {
	c.JSON(http.StatusNotFound, ErrorResponse{Message: resource + " not found"})
}

func respondForbidden(c *gin.Context, message string) {
	c.JSON(http.StatusForbidden, ErrorResponse{Message: message})
}

// respondValidation sends a 400 with per-field errors.
func respondValidation(c *gin.Context, errs ...validation.FieldError) {
	c.JSON(http.StatusBadRequest, validation.NewResponse(errs))
}

// respondInternalError logs the error and sends a 500 Internal Server Error response.
// The actual error is logged but not exposed to the client.
func respondInternalError(c *gin.Context, err error, context string) {
	log.Printf("[%s] Internal error (%s): %v", c.GetString(audit.RequestIDContextKey), context, err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "internal server error"})
}

// respondStoreError maps repository errors to responses. resource names the
// record looked up by id, for the 404 message.
func respondStoreError(c *gin.Context, err error, resource string) {
	if de, ok := database.AsDomainError(err); ok {
		status := http.StatusBadRequest
		if deleteBlocked[de.Reason] {
			status = http.StatusConflict
		}
		c.JSON(status, ErrorResponse{Message: de.Message, Reason: de.Reason})
		return
	}
	switch {
	case errors.Is(err, database.ErrNotFound):
		respondNotFound(c, resource)
	case errors.Is(err, borrowings.ErrNotBorrower):
		respondForbidden(c, err.Error())
	default:
		respondInternalError(c, err, resource)
	}
}

// --- Request Parsing ---

// bindJSON binds and validates the request body, responding with a
// validation error on failure.
func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		if errors.Is(err, errInvalidDate) {
			respondValidation(c, validation.FieldError{Field: "body", Message: err.Error()})
			return false
		}
		fields, ok := validation.Fields(err)
		if !ok {
			fields = []validation.FieldError{{Field: "body", Message: "is invalid"}}
		}
		respondValidation(c, fields...)
		return false
	}
	return true
}

// parseIDParam extracts and validates an unsigned integer ID from URL parameters.
// Returns the parsed ID or responds with a 400 error and returns 0, false.
func parseIDParam(c *gin.Context, paramName string) (uint, bool) {
	idStr := c.Param(paramName)
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil || id == 0 {
		respondBadRequest(c, "invalid "+paramName)
		return 0, false
	}
	return uint(id), true
}

// parseOptionalQueryID reads an optional positive id from the query string.
func parseOptionalQueryID(c *gin.Context, name string) (uint, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		respondValidation(c, validation.FieldError{Field: name, Message: "must be a positive integer"})
		return 0, false
	}
	return uint(id), true
}

// parsePage reads page and limit from the query string. Missing or
// out-of-range values fall back to defaults; non-numeric values are rejected.
func parsePage(c *gin.Context) (database.Page, bool) {
	number, ok := queryInt(c, "page", 1)
	if !ok {
		return database.Page{}, false
	}
	size, ok := queryInt(c, "limit", database.DefaultPageSize)
	if !ok {
		return database.Page{}, false
	}
	return database.NewPage(number, size), true
}

// queryInt reads an integer query parameter, responding with a validation
// error when it is not a number.
func queryInt(c *gin.Context, name string, def int) (int, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		respondValidation(c, validation.FieldError{Field: name, Message: "must be an integer"})
		return 0, false
	}
	return n, true
}

// searchQuery returns the q parameter, responding 400 when it is blank.
func searchQuery(c *gin.Context) (string, bool) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		respondValidation(c, validation.FieldError{Field: "q", Message: "is required"})
		return "", false
	}
	return q, true
}

var errInvalidDate = errors.New("dates must be YYYY-MM-DD or RFC 3339 timestamps")

// Date accepts either a calendar date ("2024-05-01") or an RFC 3339
// timestamp in request bodies.
type Date struct {
	time.Time
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}
	// A bare date is a calendar day on the server's clock
	if t, err := time.ParseInLocation("2006-01-02", s, time.Local); err == nil {
		d.Time = t
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("%w: %q", errInvalidDate, s)
	}
	d.Time = t
	return nil
}

// timePtr returns nil for an absent or empty date.
func (d *Date) timePtr() *time.Time {
	if d == nil || d.IsZero() {
		return nil
	}
	t := d.Time
	return &t
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
