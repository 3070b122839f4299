// Package interfaces documents the core abstractions used throughout the application.
//
// # Interface Categories
//
// ## Data Access Interfaces
//
//   - BookStore: Catalog persistence (internal/http/stores.go)
//   - MemberStore: Membership persistence (internal/http/stores.go)
//   - BorrowingStore: Loan lifecycle and copy accounting (internal/http/stores.go)
//   - StatsStore: Dashboard aggregates (internal/http/stores.go)
//   - LoanPolicyStore: Runtime loan policy (internal/http/stores.go)
//   - auth.MemberStore: Credentials and verification tokens (internal/auth/service.go)
//
// ## Audit Interfaces
//
//   - Auditor: Non-blocking change recording (internal/http/stores.go)
//   - AuditLog: Event queries (internal/http/stores.go)
//   - MaintenanceReporter: Outcome of cleanup runs (internal/tasks/queues.go)
//
// ## Background Work Interfaces
//
//   - TaskQueue: Enqueue and inspect tasks (internal/http/tasks.go)
//   - Enqueuer: Used by the cron scheduler (internal/scheduler/maintenance.go)
//   - VerificationNotifier: Deliver verification emails (internal/auth/handlers.go)
//   - Mailer: Outgoing mail (internal/mail/mail.go)
//
// # Adding a New Database Domain
//
// To add a new data domain (e.g., reservations):
//
//  1. Create sub-package: internal/database/reservations/
//
//  2. Define repository:
//
//     type Repository struct { db *gorm.DB }
//
//     func NewRepository(db *gorm.DB) *Repository
//
//  3. Declare the store interface next to the controller that consumes it,
//     in internal/http/stores.go
//
//  4. Add compile-time check in checks.go:
//
//     var _ http.ReservationStore = (*reservations.Repository)(nil)
//
// # Adding a Maintenance Task
//
//  1. Define the task and its queue in internal/tasks/, reporting through
//     MaintenanceReporter
//
//  2. Register the queue in Client.RegisterAll
//
//  3. Enqueue it from the scheduler or expose it through TasksController
//
// # Compile-Time Interface Checks
//
// All implementations should include compile-time checks to ensure they satisfy
// their interfaces. This catches missing methods at compile time rather than runtime:
//
//	var _ SomeInterface = (*MyImplementation)(nil)
//
// See checks.go for the full list.
package interfaces
