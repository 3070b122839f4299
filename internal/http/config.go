package http

import (
	"github.com/librarydesk/librarydesk/internal/auth"
)

// RouterConfig contains all dependencies and configuration needed
// to create the HTTP router.
type RouterConfig struct {
	// Core dependencies
	Database   Pinger
	Books      BookStore
	Members    MemberStore
	Borrowings BorrowingStore
	Stats      StatsStore
	LoanPolicy LoanPolicyStore

	// Audit trail; Auditor may be nil to disable recording
	AuditLog AuditLog
	Auditor  Auditor

	// Authentication
	AuthService    *auth.Service
	SessionManager *auth.SessionManager
	AuthController *auth.AuthController

	// Browser security
	CORSOrigins   []string
	CSRFSecret    []byte // CSRF protection is off when empty
	SecureCookies bool

	// DemoMode rejects writes other than signing in and out
	DemoMode bool

	// Task queue (optional)
	TaskQueue          TaskQueue
	AuditRetentionDays int

	// Application info
	Version string
}
