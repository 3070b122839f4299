package http

import (
	"github.com/gin-gonic/gin"

	"github.com/librarydesk/librarydesk/internal/auth"
	"github.com/librarydesk/librarydesk/internal/demo"
	"github.com/librarydesk/librarydesk/internal/validation"
)

const hstsMaxAge = 31536000

// NewRouter creates and configures the HTTP router with all endpoints.
// Uses RouterConfig to receive all dependencies, improving testability
// and reducing parameter count.
func NewRouter(cfg RouterConfig) *gin.Engine {
	validation.Setup()

	router := gin.New()
	router.Use(RequestIDMiddleware())
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// Apply security headers to all responses
	router.Use(auth.SecurityHeadersMiddleware())
	if cfg.SecureCookies {
		router.Use(auth.StrictTransportSecurityMiddleware(hstsMaxAge))
	}

	// CORS answers preflight requests before CSRF or auth look at them
	router.Use(CORSMiddleware(cfg.CORSOrigins))

	router.Use(demo.NewMiddleware(cfg.DemoMode).Handler())

	// CSRF must run before session so that session context is preserved
	if len(cfg.CSRFSecret) > 0 {
		router.Use(auth.CSRFMiddleware(cfg.CSRFSecret, cfg.SecureCookies, cfg.CORSOrigins))
	}

	// Session runs after CSRF so session context isn't overwritten by CSRF's request replacement
	if cfg.SessionManager != nil {
		router.Use(cfg.SessionManager.SessionLoadSave())
		router.Use(auth.NewMiddleware(cfg.AuthService, cfg.SessionManager).Handler())
	}

	member := auth.RequireAuth()
	admin := auth.RequireAdmin()

	// Health endpoints
	health := NewHealthController(cfg.Database, cfg.Version)
	router.GET("/health", health.Status)
	router.GET("/ping", health.Ping)

	api := router.Group("/api")

	if cfg.AuthController != nil {
		cfg.AuthController.RegisterRoutes(api.Group("/auth"))
	}

	// Catalog
	booksController := NewBooksController(cfg.Books, cfg.Borrowings, cfg.Auditor)
	books := api.Group("/books", member)
	books.GET("", booksController.ListBooks)
	books.GET("/search", booksController.SearchBooks)
	books.GET("/genres", booksController.ListGenres)
	books.GET("/:id", booksController.GetBook)
	books.GET("/:id/borrowings", admin, booksController.GetBookBorrowings)
	books.POST("", admin, booksController.CreateBook)
	books.PUT("/:id", admin, booksController.UpdateBook)
	books.DELETE("/:id", admin, booksController.DeleteBook)

	// Membership
	membersController := NewMembersController(cfg.Members, cfg.Borrowings, cfg.AuthService, cfg.Auditor)
	members := api.Group("/members", member)
	members.GET("", admin, membersController.ListMembers)
	members.GET("/search", admin, membersController.SearchMembers)
	members.GET("/:id", membersController.GetMember)
	members.GET("/:id/borrowings", membersController.GetMemberBorrowings)
	members.POST("", admin, membersController.CreateMember)
	members.PUT("/:id", admin, membersController.UpdateMember)
	members.DELETE("/:id", admin, membersController.DeleteMember)

	// Circulation
	borrowingsController := NewBorrowingsController(cfg.Borrowings, cfg.LoanPolicy, cfg.Auditor)
	borrowings := api.Group("/borrowings", member)
	borrowings.GET("", admin, borrowingsController.ListBorrowings)
	borrowings.GET("/active", admin, borrowingsController.ListActive)
	borrowings.GET("/overdue", admin, borrowingsController.ListOverdue)
	borrowings.GET("/returned", admin, borrowingsController.ListReturned)
	borrowings.GET("/search", admin, borrowingsController.SearchBorrowings)
	borrowings.GET("/:id", borrowingsController.GetBorrowing)
	borrowings.POST("", admin, borrowingsController.CreateBorrowing)
	borrowings.PUT("/:id", admin, borrowingsController.UpdateBorrowing)
	borrowings.DELETE("/:id", admin, borrowingsController.DeleteBorrowing)
	borrowings.POST("/:id/return", admin, borrowingsController.ReturnBorrowing)
	borrowings.POST("/:id/extend", admin, borrowingsController.ExtendBorrowing)
	borrowings.POST("/:id/request-extension", borrowingsController.RequestExtension)

	// Statistics
	statsController := NewStatsController(cfg.Stats)
	stats := api.Group("/stats", member)
	stats.GET("/dashboard", admin, statsController.Dashboard)
	stats.GET("/most-borrowed", statsController.MostBorrowed)
	stats.GET("/most-active-members", admin, statsController.MostActiveMembers)
	stats.GET("/weekly-activity", statsController.WeeklyActivity)
	stats.GET("/genres", statsController.Genres)
	stats.GET("/activity", admin, statsController.Activity)

	// Runtime settings
	if cfg.LoanPolicy != nil {
		settingsController := NewSettingsController(cfg.LoanPolicy, cfg.Auditor)
		api.GET("/settings/loan-policy", member, settingsController.GetLoanPolicy)
		api.PUT("/settings/loan-policy", admin, settingsController.UpdateLoanPolicy)
		api.DELETE("/settings/loan-policy", admin, settingsController.ResetLoanPolicy)
	}

	// Audit log
	if cfg.AuditLog != nil {
		auditController := NewAuditController(cfg.AuditLog)
		api.GET("/audit", admin, auditController.GetAuditEvents)
	}

	// Task management endpoints
	if cfg.TaskQueue != nil {
		tasksController := NewTasksController(cfg.TaskQueue, cfg.AuditRetentionDays)
		tasksGroup := api.Group("/tasks", admin)
		tasksGroup.GET("/types", tasksController.ListTaskTypes)
		tasksGroup.GET("/:id", tasksController.GetTaskStatus)
		tasksGroup.POST("/:type/run", tasksController.RunTask)
	}

	return router
}
