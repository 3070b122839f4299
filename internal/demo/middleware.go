package demo

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ReasonDemoMode is reported when a write is refused.
const ReasonDemoMode = "demo_mode"

// Middleware blocks write operations in demo mode.
// Read-only operations (GET) are always allowed, as is signing in and out.
type Middleware struct {
	enabled bool
}

// NewMiddleware creates a demo mode middleware.
func NewMiddleware(enabled bool) *Middleware {
	return &Middleware{enabled: enabled}
}

// IsEnabled returns whether demo mode is active.
func (m *Middleware) IsEnabled() bool {
	return m.enabled
}

// Handler returns a Gin middleware that blocks write operations.
func (m *Middleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.enabled {
			c.Next()
			return
		}

		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}

		if m.isAllowedPath(c.Request.URL.Path) {
			c.Next()
			return
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"message": "This action is disabled in demo mode",
			"reason":  ReasonDemoMode,
		})
	}
}

// isAllowedPath checks if a path is allowed for write operations in demo mode.
// Only the session endpoints pass; signup and setup would create accounts.
func (m *Middleware) isAllowedPath(path string) bool {
	allowedPaths := []string{
		"/api/auth/login",
		"/api/auth/logout",
	}

	for _, allowed := range allowedPaths {
		if strings.TrimRight(path, "/") == allowed {
			return true
		}
	}
	return false
}
