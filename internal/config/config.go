package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		HTTP
		Frontend
		Audit
		Global
		Database
		Redis
		Email
		Loans
		Maintenance
		Tasks
		Auth
		Admin
		Demo
	}

	HTTP struct {
		Port int32
		Host string
	}
	Frontend struct {
		URL string
		// CORSOrigins is the comma-separated CORS_ORIGIN value, split.
		CORSOrigins []string
	}
	Audit struct {
		RetentionDays int // Days to keep audit events (default: 90)
	}

	Global struct {
		ShutdownTimeoutInSeconds int
	}
	Database struct {
		Path string
	}
	// Redis is accepted for deployment compatibility; the session store is SQLite.
	Redis struct {
		URL string
	}
	Email struct {
		Host     string
		Port     int
		User     string
		Password string
		From     string
	}
	Loans struct {
		DefaultLoanDays int
		ExtensionDays   int
	}
	Maintenance struct {
		Enabled  bool
		Schedule string // Cron format: "0 3 * * *" = nightly at 03:00
	}
	Tasks struct {
		Enabled         bool
		Workers         int
		ReleaseAfter    time.Duration
		CleanupInterval time.Duration
	}
	Auth struct {
		SessionSecret        string
		SessionLifetime      time.Duration
		SessionCookieName    string
		VerificationTokenTTL time.Duration
		BcryptCost           int
		SecureCookies        bool // Set to false for local dev without HTTPS
		CSRFEnabled          bool

		// Rate limiting configuration
		MaxLoginAttempts int           // Max failed attempts before lockout (default: 5)
		RateLimitWindow  time.Duration // Time window for counting attempts (default: 15m)
		LockoutDuration  time.Duration // How long to lock out (default: 30m)
	}
	// Admin holds optional bootstrap credentials applied when no admin exists.
	Admin struct {
		Username string
		Email    string
		Password string
	}
	// Demo turns the API read-only apart from signing in and out.
	Demo struct {
		Enabled bool
	}
)

// SMTPConfigured reports whether outgoing mail can be delivered.
func (e Email) SMTPConfigured() bool {
	return e.User != "" && e.Password != ""
}

// Sender returns the From address, falling back to the SMTP user.
func (e Email) Sender() string {
	if e.From != "" {
		return e.From
	}
	return e.User
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// NewConfig loads configuration from the environment. A .env file in the
// working directory is loaded first when present; real environment variables win.
func NewConfig() *Config {
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment from .env")
	}
	return newConfig(viper.New())
}

func newConfig(v *viper.Viper) *Config {
	v.AutomaticEnv()
	v.SetDefault("port", 5000)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("shutdown_timeout_in_seconds", 5)
	v.SetDefault("database_path", DefaultDatabasePath)
	v.SetDefault("audit_retention_days", 90)
	v.SetDefault("frontend_url", "http://localhost:3000")
	v.SetDefault("cors_origin", "http://localhost:3000")
	v.SetDefault("redis_url", "")

	// Email defaults
	v.SetDefault("email_host", "smtp.gmail.com")
	v.SetDefault("email_port", 587)
	v.SetDefault("email_user", "")
	v.SetDefault("email_pass", "")
	v.SetDefault("email_from", "")

	// Loan policy defaults, overridable at runtime via the settings store
	v.SetDefault("default_loan_days", DefaultLoanDays)
	v.SetDefault("extension_days", DefaultExtensionDays)

	v.SetDefault("maintenance_enabled", true)
	v.SetDefault("maintenance_schedule", DefaultMaintenanceSchedule)

	// Auth defaults
	v.SetDefault("session_secret", "")       // Auto-generated if empty
	v.SetDefault("session_lifetime", "168h") // 7 days
	v.SetDefault("session_cookie_name", DefaultSessionCookieName)
	v.SetDefault("verification_token_ttl", "24h")
	v.SetDefault("bcrypt_cost", 12)
	v.SetDefault("secure_cookies", false)
	v.SetDefault("csrf_enabled", false)
	v.SetDefault("max_login_attempts", 5)
	v.SetDefault("rate_limit_window", "15m")
	v.SetDefault("lockout_duration", "30m")

	// Task queue defaults
	v.SetDefault("tasks_enabled", true)
	v.SetDefault("task_workers", 2)
	v.SetDefault("task_release_after", "15m")
	v.SetDefault("task_cleanup_interval", "1h")

	v.SetDefault("demo_mode", false)

	return &Config{
		HTTP: HTTP{
			Port: v.GetInt32("PORT"),
			Host: v.GetString("HOST"),
		},
		Frontend: Frontend{
			URL:         strings.TrimRight(v.GetString("FRONTEND_URL"), "/"),
			CORSOrigins: splitOrigins(v.GetString("CORS_ORIGIN")),
		},
		Audit: Audit{
			RetentionDays: v.GetInt("AUDIT_RETENTION_DAYS"),
		},
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("SHUTDOWN_TIMEOUT_IN_SECONDS"),
		},
		Database: Database{
			Path: v.GetString("DATABASE_PATH"),
		},
		Redis: Redis{
			URL: v.GetString("REDIS_URL"),
		},
		Email: Email{
			Host:     v.GetString("EMAIL_HOST"),
			Port:     v.GetInt("EMAIL_PORT"),
			User:     v.GetString("EMAIL_USER"),
			Password: v.GetString("EMAIL_PASS"),
			From:     v.GetString("EMAIL_FROM"),
		},
		Loans: Loans{
			DefaultLoanDays: v.GetInt("DEFAULT_LOAN_DAYS"),
			ExtensionDays:   v.GetInt("EXTENSION_DAYS"),
		},
		Maintenance: Maintenance{
			Enabled:  v.GetBool("MAINTENANCE_ENABLED"),
			Schedule: v.GetString("MAINTENANCE_SCHEDULE"),
		},
		Tasks: Tasks{
			Enabled:         v.GetBool("TASKS_ENABLED"),
			Workers:         v.GetInt("TASK_WORKERS"),
			ReleaseAfter:    v.GetDuration("TASK_RELEASE_AFTER"),
			CleanupInterval: v.GetDuration("TASK_CLEANUP_INTERVAL"),
		},
		Auth: Auth{
			SessionSecret:        v.GetString("SESSION_SECRET"),
			SessionLifetime:      v.GetDuration("SESSION_LIFETIME"),
			SessionCookieName:    v.GetString("SESSION_COOKIE_NAME"),
			VerificationTokenTTL: v.GetDuration("VERIFICATION_TOKEN_TTL"),
			BcryptCost:           v.GetInt("BCRYPT_COST"),
			SecureCookies:        v.GetBool("SECURE_COOKIES"),
			CSRFEnabled:          v.GetBool("CSRF_ENABLED"),
			MaxLoginAttempts:     v.GetInt("MAX_LOGIN_ATTEMPTS"),
			RateLimitWindow:      v.GetDuration("RATE_LIMIT_WINDOW"),
			LockoutDuration:      v.GetDuration("LOCKOUT_DURATION"),
		},
		Admin: Admin{
			Username: v.GetString("ADMIN_USERNAME"),
			Email:    v.GetString("ADMIN_EMAIL"),
			Password: v.GetString("ADMIN_PASSWORD"),
		},
		Demo: Demo{
			Enabled: v.GetBool("DEMO_MODE"),
		},
	}
}
