package config

// Default paths for databases
const (
	// DefaultDatabasePath is the default path for the main application database
	DefaultDatabasePath = "./library.db"

	// DefaultSessionCookieName matches the cookie name the web client expects
	DefaultSessionCookieName = "library.sid"

	// DefaultMaintenanceSchedule runs the nightly cleanups at 03:00
	DefaultMaintenanceSchedule = "0 3 * * *"
)

// Loan policy defaults
const (
	DefaultLoanDays      = 14
	DefaultExtensionDays = 7
)
