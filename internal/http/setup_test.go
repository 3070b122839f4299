package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm/logger"

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
	"github.com/librarydesk/librarydesk/internal/entities"
	"github.com/librarydesk/librarydesk/internal/settingsstore"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testPassword = "correct-horse"

type testEnv struct {
	t          *testing.T
	db         *database.Database
	router     *gin.Engine
	books      *books.Repository
	members    *members.Repository
	borrowings *borrowings.Repository
	auditor    *audit.Service
	authSvc    *auth.Service
	admin      *entities.Member
	reader     *entities.Member
	adminAuth  *http.Cookie
	readerAuth *http.Cookie
}

type envOption func(*RouterConfig)

func withTaskQueue(q TaskQueue) envOption {
	return func(cfg *RouterConfig) {
		cfg.TaskQueue = q
		cfg.AuditRetentionDays = 30
	}
}

func withDemoMode() envOption {
	return func(cfg *RouterConfig) { cfg.DemoMode = true }
}

// newTestEnv wires the full router against a fresh database with one
// admin ("admin") and one verified member ("reader"), both logged in.
func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(filepath.Join(t.TempDir(), "library.db"), logger.Silent)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	authCfg := config.Auth{
		SessionLifetime:      time.Hour,
		VerificationTokenTTL: 24 * time.Hour,
		BcryptCost:           bcrypt.MinCost,
		MaxLoginAttempts:     5,
		RateLimitWindow:      time.Minute,
		LockoutDuration:      time.Minute,
	}

	memberRepo := members.NewRepository(db.DB)
	authSvc := auth.NewService(memberRepo, authCfg)
	sqlDB, err := db.DB.DB()
	require.NoError(t, err)
	sessions, err := auth.NewSessionManager(sqlDB, authCfg)
	require.NoError(t, err)

	auditSvc := audit.NewService(auditrepo.NewRepository(db.DB))
	t.Cleanup(auditSvc.Wait)

	authController := auth.NewAuthController(authSvc, sessions, authCfg, nil, auditSvc)
	t.Cleanup(authController.Stop)

	env := &testEnv{
		t:          t,
		db:         db,
		books:      books.NewRepository(db.DB),
		members:    memberRepo,
		borrowings: borrowings.NewRepository(db.DB),
		auditor:    auditSvc,
		authSvc:    authSvc,
	}

	cfg := RouterConfig{
		Database:       db,
		Books:          env.books,
		Members:        memberRepo,
		Borrowings:     env.borrowings,
		Stats:          stats.NewRepository(db.DB),
		LoanPolicy:     settingsstore.New(settings.NewRepository(db.DB), config.Loans{}),
		AuditLog:       auditSvc,
		Auditor:        auditSvc,
		AuthService:    authSvc,
		SessionManager: sessions,
		AuthController: authController,
		CORSOrigins:    []string{"http://localhost:3000"},
		Version:        "test",
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	env.router = NewRouter(cfg)

	env.admin, err = authSvc.CreateAdmin(ctx, auth.SignupInput{
		Name: "Head Librarian", Username: "admin", Email: "admin@example.com", Password: testPassword,
	})
	require.NoError(t, err)
	env.reader, err = authSvc.Signup(ctx, auth.SignupInput{
		Name: "Rita Reader", Username: "reader", Email: "reader@example.com", Password: testPassword,
	})
	require.NoError(t, err)
	require.NoError(t, memberRepo.MarkEmailVerified(ctx, env.reader.ID))

	env.adminAuth = env.login("admin")
	env.readerAuth = env.login("reader")
	return env
}

func (e *testEnv) login(identifier string) *http.Cookie {
	e.t.Helper()
	w := e.do(http.MethodPost, "/api/auth/login", gin.H{"identifier": identifier, "password": testPassword}, nil)
	require.Equal(e.t, http.StatusOK, w.Code, w.Body.String())
	for _, c := range w.Result().Cookies() {
		if c.Name == config.DefaultSessionCookieName {
			return c
		}
	}
	e.t.Fatalf("login for %s set no session cookie", identifier)
	return nil
}

func (e *testEnv) do(method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) asAdmin(method, path string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	return e.do(method, path, body, e.adminAuth)
}

func (e *testEnv) asReader(method, path string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	return e.do(method, path, body, e.readerAuth)
}

// addBook inserts a book directly with all copies on the shelf.
func (e *testEnv) addBook(title string, copies int) *entities.Book {
	e.t.Helper()
	book := &entities.Book{Title: title, Author: "Test Author", Genre: "Fiction", TotalCopies: copies, AvailableCopies: copies}
	require.NoError(e.t, e.books.CreateBook(context.Background(), book))
	return book
}

func (e *testEnv) bookCopies(id uint) int {
	e.t.Helper()
	book, err := e.books.GetBookByID(context.Background(), id)
	require.NoError(e.t, err)
	return book.AvailableCopies
}

func decodeJSON[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type pageBody[T any] struct {
	Data       []T        `json:"data"`
	Pagination Pagination `json:"pagination"`
}

type errorBody struct {
	Message string `json:"message"`
	Reason  string `json:"reason"`
	Errors  []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"errors"`
}

func (b errorBody) fields() []string {
	out := make([]string, 0, len(b.Errors))
	for _, e := range b.Errors {
		out = append(out, e.Field)
	}
	return out
}
