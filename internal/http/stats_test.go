package http

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/librarydesk/librarydesk/internal/database/stats"
)

func TestStatsController(t *testing.T) {
	env := newTestEnv(t)

	w := env.asReader(http.MethodGet, "/api/stats/most-borrowed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String(), "empty library reports an empty list")

	popular := env.addBook("Frankenstein", 3)
	quiet := env.addBook("The Last Man", 1)
	env.borrow(gin.H{"bookId": popular.ID, "userId": env.reader.ID})
	env.borrow(gin.H{"bookId": popular.ID, "userId": env.admin.ID})
	env.borrow(gin.H{"bookId": quiet.ID, "userId": env.reader.ID, "borrowDate": "2020-01-01", "dueDate": "2020-01-10"})

	t.Run("dashboard", func(t *testing.T) {
		w := env.asAdmin(http.MethodGet, "/api/stats/dashboard", nil)
		require.Equal(t, http.StatusOK, w.Code)
		d := decodeJSON[stats.Dashboard](t, w)
		assert.Equal(t, int64(2), d.TotalBooks)
		assert.Equal(t, int64(4), d.TotalCopies)
		assert.Equal(t, int64(1), d.AvailableCopies)
		assert.Equal(t, int64(2), d.TotalMembers)
		assert.Equal(t, int64(2), d.ActiveBorrowings)
		assert.Equal(t, int64(1), d.OverdueBorrowings)

		w = env.asReader(http.MethodGet, "/api/stats/dashboard", nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("most borrowed", func(t *testing.T) {
		w := env.asReader(http.MethodGet, "/api/stats/most-borrowed?limit=1", nil)
		require.Equal(t, http.StatusOK, w.Code)
		top := decodeJSON[[]stats.BookCount](t, w)
		require.Len(t, top, 1)
		assert.Equal(t, popular.ID, top[0].BookID)
		assert.Equal(t, int64(2), top[0].BorrowCount)

		w = env.asReader(http.MethodGet, "/api/stats/most-borrowed?limit=many", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("most active members", func(t *testing.T) {
		w := env.asAdmin(http.MethodGet, "/api/stats/most-active-members", nil)
		require.Equal(t, http.StatusOK, w.Code)
		top := decodeJSON[[]stats.MemberCount](t, w)
		require.Len(t, top, 2)
		assert.Equal(t, env.reader.ID, top[0].UserID)
		assert.Equal(t, int64(2), top[0].BorrowCount)

		w = env.asReader(http.MethodGet, "/api/stats/most-active-members", nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("weekly activity", func(t *testing.T) {
		w := env.asReader(http.MethodGet, "/api/stats/weekly-activity", nil)
		require.Equal(t, http.StatusOK, w.Code)
		days := decodeJSON[[]stats.DayActivity](t, w)
		require.Len(t, days, 7)
		assert.Equal(t, 2, days[6].Borrows)
	})

	t.Run("genres", func(t *testing.T) {
		w := env.asReader(http.MethodGet, "/api/stats/genres", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []stats.GenreCount{{Genre: "Fiction", Count: 2}}, decodeJSON[[]stats.GenreCount](t, w))
	})

	t.Run("activity", func(t *testing.T) {
		w := env.asAdmin(http.MethodGet, "/api/stats/activity?limit=2", nil)
		require.Equal(t, http.StatusOK, w.Code)
		page := decodeJSON[pageBody[stats.Activity]](t, w)
		assert.Len(t, page.Data, 2)
		assert.Equal(t, 2, page.Pagination.Limit)
		assert.Greater(t, page.Pagination.Total, int64(2))
	})
}
