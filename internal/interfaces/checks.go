package interfaces

// This file contains compile-time interface implementation checks.
// These ensure that concrete types satisfy their interfaces at compile time,
// catching missing methods before runtime.
//
// To verify all checks pass: go build ./internal/interfaces/...

import (
	"github.com/librarydesk/librarydesk/internal/audit"
	"github.com/librarydesk/librarydesk/internal/auth"
	"github.com/librarydesk/librarydesk/internal/database"
	"github.com/librarydesk/librarydesk/internal/database/books"
	"github.com/librarydesk/librarydesk/internal/database/borrowings"
	"github.com/librarydesk/librarydesk/internal/database/members"
	"github.com/librarydesk/librarydesk/internal/database/stats"
	"github.com/librarydesk/librarydesk/internal/http"
	"github.com/librarydesk/librarydesk/internal/mail"
	"github.com/librarydesk/librarydesk/internal/scheduler"
	"github.com/librarydesk/librarydesk/internal/settingsstore"
	"github.com/librarydesk/librarydesk/internal/tasks"
)

// =============================================================================
// Data Access Layer
// =============================================================================

var _ http.BookStore = (*books.Repository)(nil)
var _ http.MemberStore = (*members.Repository)(nil)
var _ http.BorrowingStore = (*borrowings.Repository)(nil)
var _ http.StatsStore = (*stats.Repository)(nil)
var _ http.LoanPolicyStore = (*settingsstore.SettingsStore)(nil)
var _ http.Pinger = (*database.Database)(nil)

// auth.MemberStore is the credential side of the members table
var _ auth.MemberStore = (*members.Repository)(nil)

// =============================================================================
// Audit Trail
// =============================================================================

var _ http.AuditLog = (*audit.Service)(nil)
var _ http.Auditor = (*audit.Service)(nil)
var _ tasks.AuditEventCleaner = (*audit.Service)(nil)
var _ tasks.MaintenanceReporter = (*audit.Service)(nil)

// =============================================================================
// Authentication
// =============================================================================

var _ http.PasswordHasher = (*auth.Service)(nil)
var _ tasks.TokenIssuer = (*auth.Service)(nil)
var _ auth.VerificationNotifier = (*tasks.VerificationNotifier)(nil)

// =============================================================================
// Background Tasks
// =============================================================================

var _ http.TaskQueue = (*tasks.Client)(nil)
var _ scheduler.Enqueuer = (*tasks.Client)(nil)
var _ tasks.VerificationTokenCleaner = (*members.Repository)(nil)
var _ mail.Mailer = (*mail.SMTPMailer)(nil)
