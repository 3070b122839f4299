package auth

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/librarydesk/librarydesk/internal/audit"
	"github.com/librarydesk/librarydesk/internal/config"
	"github.com/librarydesk/librarydesk/internal/database"
	"github.com/librarydesk/librarydesk/internal/entities"
	"github.com/librarydesk/librarydesk/internal/validation"
)

// Reasons reported by the auth endpoints.
const (
	ReasonInvalidToken    = "invalid_token"
	ReasonTokenExpired    = "token_expired"
	ReasonAlreadyVerified = "already_verified"
	ReasonSetupComplete   = "setup_complete"
)

// setupMutex serializes setup requests to prevent race conditions.
var setupMutex sync.Mutex

// VerificationNotifier delivers the verification email for a member.
type VerificationNotifier interface {
	NotifyVerification(ctx context.Context, memberID uint) error
}

// AuthController handles authentication-related HTTP endpoints.
type AuthController struct {
	service        *Service
	sessionManager *SessionManager
	rateLimiter    *RateLimiter
	notifier       VerificationNotifier
	auditor        *audit.Service
}

// NewAuthController creates a new authentication controller. notifier and
// auditor may be nil.
func NewAuthController(service *Service, sessionManager *SessionManager, cfg config.Auth, notifier VerificationNotifier, auditor *audit.Service) *AuthController {
	validation.Setup()

	rateLimiter := NewRateLimiter(RateLimitConfig{
		MaxAttempts:     cfg.MaxLoginAttempts,
		WindowDuration:  cfg.RateLimitWindow,
		LockoutDuration: cfg.LockoutDuration,
	})

	return &AuthController{
		service:        service,
		sessionManager: sessionManager,
		rateLimiter:    rateLimiter,
		notifier:       notifier,
		auditor:        auditor,
	}
}

// RegisterRoutes registers authentication routes on the /api/auth group.
func (ac *AuthController) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("/login", ac.Login)
	group.POST("/signup", ac.Signup)
	group.POST("/logout", ac.Logout)
	group.POST("/setup", ac.Setup)
	group.GET("/verify-email", ac.VerifyEmail)
	group.POST("/resend-verification", ac.ResendVerification)
	group.GET("/me", RequireAuth(), ac.Me)
	group.GET("/csrf", ac.CSRF)
}

// Stop cleans up resources (rate limiter background goroutine).
func (ac *AuthController) Stop() {
	if ac.rateLimiter != nil {
		ac.rateLimiter.Stop()
	}
}

type loginRequest struct {
	Identifier string `json:"identifier" binding:"required,max=255"`
	Password   string `json:"password" binding:"required,max=255"`
}

type signupRequest struct {
	Name     string `json:"name" binding:"required,max=255"`
	Username string `json:"username" binding:"required,username"`
	Email    string `json:"email" binding:"required,email,max=254"`
	Password string `json:"password" binding:"required,min=8,max=72"`
}

type setupRequest struct {
	Name     string `json:"name" binding:"max=255"`
	Username string `json:"username" binding:"required,username"`
	Email    string `json:"email" binding:"required,email,max=254"`
	Password string `json:"password" binding:"required,min=8,max=72"`
}

type resendRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type userResponse struct {
	Message string           `json:"message"`
	User    *entities.Member `json:"user"`
}

// Login handles a username-or-email login.
func (ac *AuthController) Login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}
	clientIP := c.ClientIP()

	// Check rate limiting before attempting authentication
	if ac.rateLimiter != nil {
		if allowed, retryAfter := ac.rateLimiter.Allow(clientIP, req.Identifier); !allowed {
			tooManyAttempts(c, retryAfter)
			return
		}
	}

	member, err := ac.service.Authenticate(c.Request.Context(), req.Identifier, req.Password)
	if err != nil {
		var locked *LockedError
		switch {
		case errors.Is(err, ErrEmailNotVerified):
			c.JSON(http.StatusForbidden, gin.H{
				"message":          "Please verify your email address before logging in",
				"emailNotVerified": true,
				"email":            member.EmailAddress(),
			})
		case errors.As(err, &locked):
			ac.logAuth(c, "login", 0, false)
			tooManyAttempts(c, locked.RetryAfter)
		case errors.Is(err, ErrInvalidCredentials):
			if ac.rateLimiter != nil {
				ac.rateLimiter.RecordFailure(clientIP, req.Identifier)
			}
			ac.logAuth(c, "login", 0, false)
			c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid username/email or password"})
		default:
			internalError(c, "login", err)
		}
		return
	}

	// Record successful login (clears rate limit tracking)
	if ac.rateLimiter != nil {
		ac.rateLimiter.RecordSuccess(clientIP, req.Identifier)
	}

	if err := ac.sessionManager.CreateSession(c.Request, member); err != nil {
		internalError(c, "create session", err)
		return
	}
	ac.logAuth(c, "login", member.ID, true)

	c.JSON(http.StatusOK, userResponse{Message: "Logged in", User: member})
}

// Signup registers an unverified member and sends the verification email.
func (ac *AuthController) Signup(c *gin.Context) {
	var req signupRequest
	if !bindJSON(c, &req) {
		return
	}

	member, err := ac.service.Signup(c.Request.Context(), SignupInput{
		Name:     req.Name,
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		respondAccountError(c, "signup", err)
		return
	}
	ac.logAuth(c, "signup", member.ID, true)
	ac.notify(c, member.ID)

	c.JSON(http.StatusCreated, userResponse{
		Message: "Signup successful. Please check your email to verify your account.",
		User:    member,
	})
}

// Logout destroys the session.
func (ac *AuthController) Logout(c *gin.Context) {
	userID := ac.sessionManager.GetUserID(c.Request)
	if err := ac.sessionManager.DestroySession(c.Request); err != nil {
		internalError(c, "logout", err)
		return
	}
	if userID != 0 {
		ac.logAuth(c, "logout", userID, true)
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// Setup creates the first admin account and logs it in.
// Uses a mutex so concurrent requests cannot both pass the empty-table check.
func (ac *AuthController) Setup(c *gin.Context) {
	var req setupRequest
	if !bindJSON(c, &req) {
		return
	}

	setupMutex.Lock()
	defer setupMutex.Unlock()

	member, err := ac.service.Setup(c.Request.Context(), SignupInput{
		Name:     req.Name,
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		if errors.Is(err, ErrSetupComplete) {
			c.JSON(http.StatusForbidden, gin.H{"message": "Setup has already been completed", "reason": ReasonSetupComplete})
			return
		}
		respondAccountError(c, "setup", err)
		return
	}

	if err := ac.sessionManager.CreateSession(c.Request, member); err != nil {
		internalError(c, "create session", err)
		return
	}
	ac.logAuth(c, "setup", member.ID, true)

	c.JSON(http.StatusCreated, userResponse{Message: "Administrator account created", User: member})
}

// VerifyEmail consumes a verification token from the emailed link.
func (ac *AuthController) VerifyEmail(c *gin.Context) {
	member, err := ac.service.VerifyEmail(c.Request.Context(), c.Query("token"))
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidToken):
			c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid verification token", "reason": ReasonInvalidToken})
		case errors.Is(err, ErrTokenExpired):
			c.JSON(http.StatusBadRequest, gin.H{"message": "Verification token has expired", "reason": ReasonTokenExpired})
		default:
			internalError(c, "verify email", err)
		}
		return
	}
	ac.logAuth(c, "verify_email", member.ID, true)

	c.JSON(http.StatusOK, userResponse{Message: "Email verified. You can now log in.", User: member})
}

// ResendVerification sends a fresh verification email. Unknown addresses get
// the same response as known ones.
func (ac *AuthController) ResendVerification(c *gin.Context) {
	var req resendRequest
	if !bindJSON(c, &req) {
		return
	}

	const sent = "If an account with that email exists, a verification email has been sent"

	member, err := ac.service.MemberForResend(c.Request.Context(), req.Email)
	if err != nil {
		switch {
		case errors.Is(err, ErrUserNotFound):
			c.JSON(http.StatusOK, gin.H{"message": sent})
		case errors.Is(err, ErrAlreadyVerified):
			c.JSON(http.StatusBadRequest, gin.H{"message": "Email address is already verified", "reason": ReasonAlreadyVerified})
		default:
			internalError(c, "resend verification", err)
		}
		return
	}
	ac.notify(c, member.ID)

	c.JSON(http.StatusOK, gin.H{"message": sent})
}

// Me returns the logged-in member.
func (ac *AuthController) Me(c *gin.Context) {
	member, err := ac.service.GetMemberByID(c.Request.Context(), GetUserID(c))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			abortUnauthorized(c)
			return
		}
		internalError(c, "load member", err)
		return
	}
	c.JSON(http.StatusOK, member)
}

// CSRF returns the token clients send back in the X-CSRF-Token header.
// The token is empty when CSRF protection is disabled.
func (ac *AuthController) CSRF(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"csrfToken": GetCSRFToken(c), "header": CSRFTokenHeader})
}

func (ac *AuthController) notify(c *gin.Context, memberID uint) {
	if ac.notifier == nil {
		return
	}
	// The account exists either way; the member can ask for a resend.
	if err := ac.notifier.NotifyVerification(c.Request.Context(), memberID); err != nil {
		log.Printf("Failed to send verification email to member %d: %v", memberID, err)
	}
}

func (ac *AuthController) logAuth(c *gin.Context, action string, userID uint, success bool) {
	if ac.auditor == nil {
		return
	}
	actor := AuditActor(c)
	if actor.UserID == 0 {
		actor.UserID = userID
	}
	ac.auditor.LogAuth(actor, action, success)
}

// AuditActor describes the caller of the current request for audit events.
func AuditActor(c *gin.Context) audit.Actor {
	return audit.Actor{
		UserID:    GetUserID(c),
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		RequestID: c.GetString(audit.RequestIDContextKey),
	}
}

func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		fields, ok := validation.Fields(err)
		if !ok {
			fields = []validation.FieldError{{Field: "body", Message: "is invalid"}}
		}
		c.JSON(http.StatusBadRequest, validation.NewResponse(fields))
		return false
	}
	return true
}

func tooManyAttempts(c *gin.Context, retryAfter time.Duration) {
	c.Header("Retry-After", RetryAfterSeconds(retryAfter))
	c.JSON(http.StatusTooManyRequests, gin.H{"message": "Too many login attempts. Please try again later."})
}

// respondAccountError maps signup and setup failures to responses.
func respondAccountError(c *gin.Context, op string, err error) {
	if de, ok := database.AsDomainError(err); ok {
		c.JSON(http.StatusBadRequest, gin.H{"message": de.Message, "reason": de.Reason})
		return
	}

	var field string
	switch {
	case errors.Is(err, ErrNameRequired):
		field = "name"
	case errors.Is(err, ErrUsernameInvalid):
		field = "username"
	case errors.Is(err, ErrEmailInvalid):
		field = "email"
	case errors.Is(err, ErrPasswordTooShort), errors.Is(err, ErrPasswordTooLong):
		field = "password"
	default:
		internalError(c, op, err)
		return
	}
	c.JSON(http.StatusBadRequest, validation.NewResponse([]validation.FieldError{{Field: field, Message: err.Error()}}))
}

func internalError(c *gin.Context, op string, err error) {
	log.Printf("[%s] %s failed: %v", c.GetString(audit.RequestIDContextKey), op, err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "internal server error"})
}
