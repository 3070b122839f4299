package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/librarydesk/librarydesk/internal/entities"
)

// Context keys for member data
const (
	ContextKeyUserID   = "auth_user_id"
	ContextKeyUsername = "auth_username"
	ContextKeyIsAdmin  = "auth_is_admin"
)

// Middleware authenticates requests from the session cookie.
type Middleware struct {
	service        *Service
	sessionManager *SessionManager
	publicPaths    map[string]bool
}

// NewMiddleware creates a new authentication middleware.
func NewMiddleware(service *Service, sessionManager *SessionManager) *Middleware {
	publicPaths := map[string]bool{
		"/health":                       true,
		"/ping":                         true,
		"/api/auth/login":               true,
		"/api/auth/signup":              true,
		"/api/auth/logout":              true,
		"/api/auth/setup":               true,
		"/api/auth/verify-email":        true,
		"/api/auth/resend-verification": true,
		"/api/auth/csrf":                true,
	}

	return &Middleware{
		service:        service,
		sessionManager: sessionManager,
		publicPaths:    publicPaths,
	}
}

// Handler loads the session member into the context and rejects
// unauthenticated API requests outside the public paths.
func (m *Middleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if user := m.trySessionAuth(c); user != nil {
			c.Set(ContextKeyUserID, user.ID)
			c.Set(ContextKeyUsername, user.Username)
			c.Set(ContextKeyIsAdmin, user.IsAdmin)
			c.Next()
			return
		}

		if m.isPublicPath(c.Request.URL.Path) || !isAPIRequest(c) || c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		abortUnauthorized(c)
	}
}

// trySessionAuth resolves the session to a member. The member is reloaded
// so revoked admin rights and deleted accounts take effect immediately.
func (m *Middleware) trySessionAuth(c *gin.Context) *entities.Member {
	if m.sessionManager == nil {
		return nil
	}

	userID := m.sessionManager.GetUserID(c.Request)
	if userID == 0 {
		return nil
	}

	member, err := m.service.GetMemberByID(c.Request.Context(), userID)
	if err != nil {
		return nil
	}
	return member
}

func (m *Middleware) isPublicPath(path string) bool {
	return m.publicPaths[strings.TrimSuffix(path, "/")]
}

func isAPIRequest(c *gin.Context) bool {
	return strings.HasPrefix(c.Request.URL.Path, "/api/")
}

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"message": "authentication required",
	})
}

// RequireAuth rejects requests without a logged-in member.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetUserID(c) == 0 {
			abortUnauthorized(c)
			return
		}
		c.Next()
	}
}

// RequireAdmin rejects requests from anyone but a logged-in admin.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetUserID(c) == 0 {
			abortUnauthorized(c)
			return
		}
		if !IsAdmin(c) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"message": "admin access required",
			})
			return
		}
		c.Next()
	}
}

// GetUserID retrieves the authenticated member's ID from the context.
// Returns 0 if not authenticated.
func GetUserID(c *gin.Context) uint {
	if id, exists := c.Get(ContextKeyUserID); exists {
		if userID, ok := id.(uint); ok {
			return userID
		}
	}
	return 0
}

// GetUsername retrieves the authenticated member's username from the context.
func GetUsername(c *gin.Context) string {
	return c.GetString(ContextKeyUsername)
}

// IsAdmin reports whether the authenticated member is an admin.
func IsAdmin(c *gin.Context) bool {
	return c.GetBool(ContextKeyIsAdmin)
}
