// Package auth provides authentication and authorization for the library API.
//
// Members log in with their username or email and a password; the session
// lives in an scs cookie backed by the SQLite sessions table. Self-service
// signups must verify their email address before the first login.
//
// # Configuration
//
//	SESSION_SECRET=<base64-32-bytes>  # CSRF key, auto-generated if empty
//	SESSION_LIFETIME=168h             # Session duration
//	SESSION_COOKIE_NAME=library.sid
//	VERIFICATION_TOKEN_TTL=24h
//	BCRYPT_COST=12
//	SECURE_COOKIES=true               # HTTPS-only cookies
//	MAX_LOGIN_ATTEMPTS=5
//
// # Usage
//
//	authService := auth.NewService(memberRepo, cfg.Auth)
//	authMiddleware := auth.NewMiddleware(authService, sessionManager)
//	router.Use(sessionManager.SessionLoadSave(), authMiddleware.Handler())
//	books.POST("", auth.RequireAdmin(), controller.Create)
//
// Extract the member in handlers:
//
//	userID := auth.GetUserID(c) // 0 when not logged in
package auth
