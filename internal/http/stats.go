package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	defaultTopLimit = 5
	maxTopLimit     = 50
)

// StatsController serves the dashboard aggregates.
type StatsController struct {
	store StatsStore
}

func NewStatsController(store StatsStore) *StatsController {
	return &StatsController{store: store}
}

// Dashboard handles GET /api/stats/dashboard
func (sc *StatsController) Dashboard(c *gin.Context) {
	dashboard, err := sc.store.Dashboard(c.Request.Context())
	if err != nil {
		respondInternalError(c, err, "dashboard stats")
		return
	}
	c.JSON(http.StatusOK, dashboard)
}

// MostBorrowed handles GET /api/stats/most-borrowed?limit=
func (sc *StatsController) MostBorrowed(c *gin.Context) {
	limit, ok := topLimit(c)
	if !ok {
		return
	}
	list, err := sc.store.MostBorrowedBooks(c.Request.Context(), limit)
	if err != nil {
		respondInternalError(c, err, "most borrowed books")
		return
	}
	c.JSON(http.StatusOK, list)
}

// MostActiveMembers handles GET /api/stats/most-active-members?limit=
func (sc *StatsController) MostActiveMembers(c *gin.Context) {
	limit, ok := topLimit(c)
	if !ok {
		return
	}
	list, err := sc.store.MostActiveMembers(c.Request.Context(), limit)
	if err != nil {
		respondInternalError(c, err, "most active members")
		return
	}
	c.JSON(http.StatusOK, list)
}

// WeeklyActivity handles GET /api/stats/weekly-activity
// Seven entries, oldest day first.
func (sc *StatsController) WeeklyActivity(c *gin.Context) {
	days, err := sc.store.WeeklyActivity(c.Request.Context())
	if err != nil {
		respondInternalError(c, err, "weekly activity")
		return
	}
	c.JSON(http.StatusOK, days)
}

// Genres handles GET /api/stats/genres
func (sc *StatsController) Genres(c *gin.Context) {
	genres, err := sc.store.GenreDistribution(c.Request.Context())
	if err != nil {
		respondInternalError(c, err, "genre distribution")
		return
	}
	c.JSON(http.StatusOK, genres)
}

// Activity handles GET /api/stats/activity?page=&limit=
func (sc *StatsController) Activity(c *gin.Context) {
	page, ok := parsePage(c)
	if !ok {
		return
	}
	feed, total, err := sc.store.ActivityFeed(c.Request.Context(), page)
	if err != nil {
		respondInternalError(c, err, "activity feed")
		return
	}
	c.JSON(http.StatusOK, newPaginatedResponse(feed, page, total))
}

func topLimit(c *gin.Context) (int, bool) {
	limit, ok := queryInt(c, "limit", defaultTopLimit)
	if !ok {
		return 0, false
	}
	if limit < 1 {
		limit = defaultTopLimit
	}
	if limit > maxTopLimit {
		limit = maxTopLimit
	}
	return limit, true
}
