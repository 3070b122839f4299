package entrypoint

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/librarydesk/librarydesk/internal/audit"
	"github.com/librarydesk/librarydesk/internal/auth"
	"github.com/librarydesk/librarydesk/internal/config"
	"github.com/librarydesk/librarydesk/internal/database"
	auditrepo "github.com/librarydesk/librarydesk/internal/database/audit"
	"github.com/librarydesk/librarydesk/internal/database/books"
	"github.com/librarydesk/librarydesk/internal/database/borrowings"
	"github.com/librarydesk/librarydesk/internal/database/members"
	"github.com/librarydesk/librarydesk/internal/database/settings"
	"github.com/librarydesk/librarydesk/internal/database/stats"
	http_controllers "github.com/librarydesk/librarydesk/internal/http"
	"github.com/librarydesk/librarydesk/internal/mail"
	"github.com/librarydesk/librarydesk/internal/scheduler"
	"github.com/librarydesk/librarydesk/internal/settingsstore"
	"github.com/librarydesk/librarydesk/internal/tasks"
)

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

func Serve(router *gin.Engine, cfg *config.Config, onShutdown ShutdownFunc) {
	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting server at %s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// kill (no param) sends SIGTERM, kill -2 is SIGINT
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("Shutdown Server, waiting %v before killing\n", timeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Stop accepting requests before the workers they feed go away
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server Shutdown: %v", err)
	}

	if onShutdown != nil {
		onShutdown(ctx)
	}

	log.Println("Server exiting")
}

func Run(cfg *config.Config, version string) {
	log.Printf("Starting Library Desk v%s", version)

	if cfg.Redis.URL != "" {
		log.Printf("REDIS_URL is set but unused: sessions and tasks are stored in SQLite")
	}

	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()

	memberRepo := members.NewRepository(db.DB)
	auditService := audit.NewService(auditrepo.NewRepository(db.DB))
	loanPolicy := settingsstore.New(settings.NewRepository(db.DB), cfg.Loans)

	authService := auth.NewService(memberRepo, cfg.Auth)
	sqlDB, err := db.DB.DB()
	if err != nil {
		log.Fatalf("Failed to get SQL DB for sessions: %v", err)
	}
	sessionManager, err := auth.NewSessionManager(sqlDB, cfg.Auth)
	if err != nil {
		log.Fatalf("Failed to initialize session manager: %v", err)
	}

	if err := bootstrapAdmin(context.Background(), authService, memberRepo, cfg.Admin); err != nil {
		log.Fatalf("Failed to create admin from ADMIN_* settings: %v", err)
	}

	mailer := mail.New(cfg.Email)
	if !cfg.Email.SMTPConfigured() {
		log.Printf("WARNING: EMAIL_USER/EMAIL_PASS not set. Verification emails will be logged instead of sent.")
	}
	sender := tasks.NewVerificationSender(authService, mailer, cfg.Frontend.URL, cfg.Auth.VerificationTokenTTL)

	// Background work; the router only sees a task queue when workers run
	var taskClient *tasks.Client
	var taskQueue http_controllers.TaskQueue
	var maintenance *scheduler.MaintenanceScheduler
	var workersCancel context.CancelFunc
	if cfg.Tasks.Enabled {
		taskClient, err = tasks.NewClient(cfg.Database.Path, tasks.ConfigFrom(cfg.Tasks))
		if err != nil {
			log.Fatalf("Failed to initialize task queue: %v", err)
		}
		defer func() {
			if err := taskClient.Close(); err != nil {
				log.Printf("Error closing task client: %v", err)
			}
		}()

		taskClient.RegisterAll(tasks.Dependencies{
			Verification:  sender,
			Verifications: memberRepo,
			AuditEvents:   auditService,
			Reporter:      auditService,
		})

		var workersCtx context.Context
		workersCtx, workersCancel = context.WithCancel(context.Background())
		go taskClient.Start(workersCtx)
		taskQueue = taskClient

		maintenance = scheduler.NewMaintenanceScheduler(taskClient, cfg.Maintenance, cfg.Audit.RetentionDays)
		if err := maintenance.Start(workersCtx); err != nil {
			log.Fatalf("Failed to start maintenance scheduler: %v", err)
		}
	} else {
		log.Printf("Task queue disabled: verification emails are sent inline and nightly maintenance is off")
	}

	authController := auth.NewAuthController(authService, sessionManager, cfg.Auth,
		tasks.NewVerificationNotifier(taskClient, sender), auditService)

	var csrfSecret []byte
	if cfg.Auth.CSRFEnabled {
		csrfSecret, err = csrfSecretFrom(cfg.Auth.SessionSecret)
		if err != nil {
			log.Fatalf("Failed to generate CSRF secret: %v", err)
		}
	}

	borrowingRepo := borrowings.NewRepository(db.DB)
	router := http_controllers.NewRouter(http_controllers.RouterConfig{
		Database:           db,
		Books:              books.NewRepository(db.DB),
		Members:            memberRepo,
		Borrowings:         borrowingRepo,
		Stats:              stats.NewRepository(db.DB),
		LoanPolicy:         loanPolicy,
		AuditLog:           auditService,
		Auditor:            auditService,
		AuthService:        authService,
		SessionManager:     sessionManager,
		AuthController:     authController,
		CORSOrigins:        cfg.Frontend.CORSOrigins,
		CSRFSecret:         csrfSecret,
		SecureCookies:      cfg.Auth.SecureCookies,
		DemoMode:           cfg.Demo.Enabled,
		TaskQueue:          taskQueue,
		AuditRetentionDays: cfg.Audit.RetentionDays,
		Version:            version,
	})

	if cfg.Demo.Enabled {
		log.Printf("Demo mode enabled: write operations are rejected")
	}

	hasMembers, err := authService.HasMembers(context.Background())
	if err == nil && !hasMembers {
		log.Printf("No members found. POST /api/auth/setup to create the first administrator.")
	}

	onShutdown := func(ctx context.Context) {
		if maintenance != nil {
			maintenance.Stop()
		}
		if taskClient != nil {
			taskClient.Stop(ctx)
			workersCancel()
		}
		authController.Stop()
		auditService.Wait()
	}

	Serve(router, cfg, onShutdown)
}

// csrfSecretFrom decodes a hex SESSION_SECRET, falls back to its raw bytes,
// and generates a per-process secret when none is configured.
func csrfSecretFrom(sessionSecret string) ([]byte, error) {
	if sessionSecret != "" {
		if secret, err := hex.DecodeString(sessionSecret); err == nil {
			return secret, nil
		}
		return []byte(sessionSecret), nil
	}

	secret, err := auth.GenerateSessionSecret()
	if err != nil {
		return nil, err
	}
	log.Printf("Generated CSRF secret (set SESSION_SECRET to persist across restarts)")
	return hex.DecodeString(secret)
}

// adminCounter reports how many admins exist.
type adminCounter interface {
	CountAdmins(ctx context.Context) (int64, error)
}

// bootstrapAdmin creates the ADMIN_* account when credentials are configured
// and the library has no admin yet.
func bootstrapAdmin(ctx context.Context, svc *auth.Service, repo adminCounter, admin config.Admin) error {
	if admin.Username == "" || admin.Password == "" {
		return nil
	}
	count, err := repo.CountAdmins(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	member, err := svc.CreateAdmin(ctx, auth.SignupInput{
		Username: admin.Username,
		Email:    admin.Email,
		Password: admin.Password,
	})
	if err != nil {
		return err
	}
	log.Printf("Created admin %q from ADMIN_* settings", member.Username)
	return nil
}
