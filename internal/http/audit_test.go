package http

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/librarydesk/librarydesk/internal/entities"
)

func TestAuditController(t *testing.T) {
	env := newTestEnv(t)

	w := env.asAdmin(http.MethodPost, "/api/books", gin.H{"title": "Neuromancer", "author": "William Gibson"})
	require.Equal(t, http.StatusCreated, w.Code)
	book := decodeJSON[entities.Book](t, w)
	loan := env.borrow(gin.H{"bookId": book.ID, "userId": env.reader.ID})
	env.auditor.Wait()
	w = env.asAdmin(http.MethodPost, fmt.Sprintf("/api/borrowings/%d/return", loan.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	env.auditor.Wait()

	w = env.asAdmin(http.MethodGet, "/api/audit?type=circulation", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	page := decodeJSON[pageBody[entities.AuditEvent]](t, w)
	require.Len(t, page.Data, 2)
	assert.Equal(t, "return", page.Data[0].Action, "newest first")
	assert.Equal(t, "borrow", page.Data[1].Action)
	for _, e := range page.Data {
		assert.Equal(t, env.admin.ID, e.UserID)
		assert.NotEmpty(t, e.RequestID)
		require.NotNil(t, e.EntityID)
		assert.Equal(t, loan.ID, *e.EntityID)
	}

	w = env.asAdmin(http.MethodGet, fmt.Sprintf("/api/audit?entityType=book&entityId=%d", book.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	page = decodeJSON[pageBody[entities.AuditEvent]](t, w)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "book_create", page.Data[0].Action)

	w = env.asAdmin(http.MethodGet, fmt.Sprintf("/api/audit?type=auth&userId=%d", env.reader.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decodeJSON[pageBody[entities.AuditEvent]](t, w).Data, "logins are recorded")

	w = env.asAdmin(http.MethodGet, "/api/audit?type=gossip", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = env.asReader(http.MethodGet, "/api/audit", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
