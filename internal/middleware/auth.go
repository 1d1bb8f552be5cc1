// Package middleware contains HTTP middleware for the DevRo API.
//
// Middleware functions follow the standard Go pattern of wrapping http.Handler.
// They are designed to be composed using a middleware stack approach.
package middleware

import (
	"log/slog"
	"net/http"

	"github.com/devro-ai/devro/internal/auth"
	"github.com/devro-ai/devro/internal/handler"
	"github.com/devro-ai/devro/internal/service"
	"github.com/devro-ai/devro/internal/session"
)

// =============================================================================
// Auth Middleware
// =============================================================================

// AuthMiddleware provides session-cookie authentication middleware.
//
// Create one instance and use its methods as middleware.
type AuthMiddleware struct {
	accounts service.AccountService
	logger   *slog.Logger
	isSecure bool // Whether to set Secure flag on cookies (true in production)
}

// NewAuthMiddleware creates a new AuthMiddleware instance.
func NewAuthMiddleware(accounts service.AccountService, logger *slog.Logger, isSecure bool) *AuthMiddleware {
	return &AuthMiddleware{
		accounts: accounts,
		logger:   logger,
		isSecure: isSecure,
	}
}

// WithAccount attempts to load the account from the session cookie.
//
// If a valid session exists the account is stored in the request context;
// either way the next handler runs. An invalid or expired cookie is cleared
// on the way through.
//
// Handlers retrieve the account with auth.GetAccount(r.Context()).
func (m *AuthMiddleware) WithAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(session.CookieName)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		account, err := m.accounts.GetBySessionToken(r.Context(), cookie.Value)
		if err != nil {
			ClearSessionCookie(w, m.isSecure)
			next.ServeHTTP(w, r)
			return
		}

		r = r.WithContext(auth.SetAccount(r.Context(), account))
		next.ServeHTTP(w, r)
	})
}

// RequireAccount rejects unauthenticated requests with a 401 JSON error.
//
// Must run AFTER WithAccount in the middleware chain:
//
//	stack := Stack(authMw.WithAccount, authMw.RequireAccount)
//	mux.Handle("GET /api/profile", stack(profileHandler))
func (m *AuthMiddleware) RequireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.GetAccount(r.Context()) == nil {
			handler.UnauthorizedResponse(w, r, m.logger)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Cookie Helpers
// =============================================================================

// SetSessionCookie sets the session cookie on the response.
//
// HttpOnly keeps the token away from scripts; SameSite Lax blocks cross-site
// POSTs while allowing normal navigation. Secure is enabled in production.
func SetSessionCookie(w http.ResponseWriter, token string, isSecure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    token,
		Path:     session.CookiePath,
		MaxAge:   session.CookieMaxAge,
		HttpOnly: true,
		Secure:   isSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie removes the session cookie from the client by setting
// MaxAge to -1.
func ClearSessionCookie(w http.ResponseWriter, isSecure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    "",
		Path:     session.CookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   isSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// =============================================================================
// Middleware Stack Helpers
// =============================================================================

// Stack composes multiple middleware functions into a single middleware.
//
// Middleware is applied in the order provided: the first middleware in the
// slice is the outermost (runs first on request, last on response).
//
//	stack := Stack(loggingMw, authMw.WithAccount, authMw.RequireAccount)
//	mux.Handle("POST /api/generate", stack(generateHandler))
func Stack(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}
