package handler

import (
	"log/slog"
	"net/http"

	"github.com/devro-ai/devro/internal/domain"
	"github.com/devro-ai/devro/internal/service"
	"github.com/devro-ai/devro/internal/session"
)

// AuthHandler serves the signup, login and logout endpoints.
//
// Routes:
//   - POST /api/auth/signup
//   - POST /api/auth/login
//   - POST /api/auth/logout
type AuthHandler struct {
	accounts service.AccountService
	policy   domain.Policy
	logger   *slog.Logger
	isSecure bool
}

// NewAuthHandler creates a new AuthHandler. Set isSecure in production to
// mark session cookies Secure.
func NewAuthHandler(accounts service.AccountService, policy domain.Policy, logger *slog.Logger, isSecure bool) *AuthHandler {
	return &AuthHandler{
		accounts: accounts,
		policy:   policy,
		logger:   logger,
		isSecure: isSecure,
	}
}

type signupRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	GenderTag string `json:"gender_tag,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type accountResponse struct {
	Account AccountPayload `json:"account"`
}

// Signup registers a new account and logs it in. The response carries the
// account with its freshly seeded FREE allowance; the session token travels
// only in the cookie.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	_, err := h.accounts.Register(r.Context(), domain.RegisterParams{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.Name,
		GenderTag:   req.GenderTag,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	// Mint a session immediately so signup doubles as login.
	result, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	h.setSessionCookie(w, result.Token)
	writeJSON(w, http.StatusCreated, accountResponse{
		Account: accountPayload(result.Account, h.policy),
	})
}

// Login authenticates an account and sets the session cookie.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	result, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	h.setSessionCookie(w, result.Token)
	writeJSON(w, http.StatusOK, accountResponse{
		Account: accountPayload(result.Account, h.policy),
	})
}

// Logout invalidates the session and clears the cookie. Idempotent: a
// missing or stale cookie still yields 204.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(session.CookieName); err == nil {
		if err := h.accounts.Logout(r.Context(), cookie.Value); err != nil {
			h.logger.Warn("logout failed", "error", err)
		}
	}

	h.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    token,
		Path:     session.CookiePath,
		MaxAge:   session.CookieMaxAge,
		HttpOnly: true,
		Secure:   h.isSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    "",
		Path:     session.CookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.isSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
