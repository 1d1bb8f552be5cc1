// Package service contains the business logic layer.
//
// Services orchestrate interactions between stores, external APIs, and
// domain logic. They are responsible for:
// - Input validation
// - Business rule enforcement
// - Error translation (store errors -> domain errors)
package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/devro-ai/devro/internal/domain"
	"github.com/devro-ai/devro/internal/ledger"
	"github.com/devro-ai/devro/internal/store"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// =============================================================================
// Configuration Constants
// =============================================================================

const (
	// BcryptCost is the cost factor for bcrypt password hashing.
	// Cost 12 provides good security (~250ms on modern hardware) while being
	// fast enough for login flows.
	BcryptCost = 12

	// SessionTokenBytes is the number of random bytes for session tokens.
	// 32 bytes = 256 bits of entropy; hex-encoded to 64 characters.
	SessionTokenBytes = 32

	// SessionDuration is how long a session remains valid.
	SessionDuration = 7 * 24 * time.Hour

	// MinPasswordLength is the minimum password length.
	MinPasswordLength = 8

	// MaxPasswordLength prevents DoS via bcrypt on very long passwords.
	// bcrypt has a 72-byte limit anyway, but we cap earlier for clarity.
	MaxPasswordLength = 72
)

// =============================================================================
// Interface Definition
// =============================================================================

// AccountService defines account registration, authentication and profile
// operations. The credit ledger owns tier/subscription/usage; this service
// never writes those fields except through account creation defaults.
type AccountService interface {
	// Register creates a new account seeded with the FREE tier's full
	// allowance. Returns domain.ECONFLICT if the email is taken,
	// domain.EINVALID for validation errors.
	Register(ctx context.Context, params domain.RegisterParams) (*domain.Account, error)

	// Login authenticates and creates a session. Returns the account and the
	// raw session token. Returns domain.EUNAUTHORIZED on bad credentials.
	Login(ctx context.Context, email, password string) (*domain.LoginResult, error)

	// Logout invalidates a session by raw token. Idempotent.
	Logout(ctx context.Context, token string) error

	// GetBySessionToken validates a session token and returns the account.
	// Returns domain.EUNAUTHORIZED if the token is invalid or expired.
	GetBySessionToken(ctx context.Context, token string) (*domain.Account, error)

	// UpdateProfile updates display name and gender tag only.
	UpdateProfile(ctx context.Context, id uuid.UUID, displayName, genderTag string) error

	// DeleteExpiredSessions removes expired sessions. Called periodically.
	DeleteExpiredSessions(ctx context.Context) error
}

// =============================================================================
// Implementation
// =============================================================================

type accountService struct {
	store  store.Store
	policy domain.Policy
	loc    *time.Location
	now    func() time.Time
	logger *slog.Logger
}

// NewAccountService creates a new AccountService.
func NewAccountService(st store.Store, policy domain.Policy, loc *time.Location, logger *slog.Logger) AccountService {
	if loc == nil {
		loc = time.UTC
	}
	return &accountService{
		store:  st,
		policy: policy,
		loc:    loc,
		now:    time.Now,
		logger: logger,
	}
}

// Register creates a new account.
//
// Security notes:
// - Password is hashed with bcrypt cost 12; the raw password is never logged.
// - On duplicate email we still hash, to keep timing comparable.
func (s *accountService) Register(ctx context.Context, params domain.RegisterParams) (*domain.Account, error) {
	const op = "AccountService.Register"

	params.Email = strings.ToLower(strings.TrimSpace(params.Email))
	params.DisplayName = strings.TrimSpace(params.DisplayName)
	params.GenderTag = strings.TrimSpace(strings.ToLower(params.GenderTag))

	if err := validateEmail(params.Email); err != nil {
		return nil, domain.Wrap(err, domain.EINVALID, op, "Invalid email address")
	}
	if params.DisplayName == "" {
		return nil, domain.Invalid(op, "Name is required")
	}
	if err := validatePassword(params.Password); err != nil {
		return nil, domain.Wrap(err, domain.EINVALID, op, "Invalid password")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(params.Password), BcryptCost)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to hash password")
	}

	now := s.now().UTC()
	account := &domain.Account{
		ID:           uuid.New(),
		DisplayName:  params.DisplayName,
		Email:        params.Email,
		PasswordHash: string(passwordHash),
		GenderTag:    params.GenderTag,
		Tier:         domain.TierFree,
		Usage:        ledger.NewAccountDefaults(s.policy, now, s.loc),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.Create(ctx, account); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return nil, domain.Conflict(op, "Email already registered")
		}
		return nil, domain.Internal(err, op, "Failed to create account")
	}

	// Clear password hash before returning (security precaution)
	out := *account
	out.PasswordHash = ""

	s.logger.Info("account registered", "account_id", account.ID, "email", account.Email)
	return &out, nil
}

// Login authenticates an account and creates a new session.
//
// Security notes:
// - Constant-time password comparison via bcrypt.
// - Generic error message prevents email enumeration.
// - The session token is hashed before storage and only returned once.
func (s *accountService) Login(ctx context.Context, email, password string) (*domain.LoginResult, error) {
	const op = "AccountService.Login"

	email = strings.ToLower(strings.TrimSpace(email))

	account, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Burn a comparison to keep timing similar to the found path.
			dummyHash := "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW" // bcrypt hash of "dummy"
			_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
			return nil, domain.Unauthorized(op, "Invalid email or password")
		}
		return nil, domain.Internal(err, op, "Failed to retrieve account")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, domain.Unauthorized(op, "Invalid email or password")
	}

	token, err := generateSessionToken()
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to generate session token")
	}

	session := &domain.Session{
		ID:        uuid.New(),
		AccountID: account.ID,
		TokenHash: hashSessionToken(token),
		ExpiresAt: s.now().Add(SessionDuration),
		CreatedAt: s.now(),
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, domain.Internal(err, op, "Failed to create session")
	}

	account.PasswordHash = ""

	s.logger.Info("account logged in", "account_id", account.ID, "email", account.Email)
	return &domain.LoginResult{
		Account: account,
		Token:   token,
	}, nil
}

// Logout invalidates a session. Idempotent: an unknown or malformed token is
// not an error.
func (s *accountService) Logout(ctx context.Context, token string) error {
	if token == "" || len(token) != 64 {
		return nil
	}

	session, err := s.store.GetSessionByTokenHash(ctx, hashSessionToken(token))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("failed to look up session", "error", err)
		}
		return nil
	}
	if err := s.store.DeleteSession(ctx, session.ID); err != nil {
		s.logger.Warn("failed to delete session", "error", err)
	}

	s.logger.Debug("session invalidated")
	return nil
}

// GetBySessionToken validates a session and returns the associated account.
func (s *accountService) GetBySessionToken(ctx context.Context, token string) (*domain.Account, error) {
	const op = "AccountService.GetBySessionToken"

	if token == "" || len(token) != 64 {
		return nil, domain.Unauthorized(op, "Invalid session")
	}

	session, err := s.store.GetSessionByTokenHash(ctx, hashSessionToken(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.Unauthorized(op, "Invalid session")
		}
		return nil, domain.Internal(err, op, "Failed to look up session")
	}
	if session.IsExpired() {
		// Opportunistic cleanup; failure to delete doesn't block the caller.
		_ = s.store.DeleteSession(ctx, session.ID)
		return nil, domain.Unauthorized(op, "Session expired")
	}

	account, err := s.store.Get(ctx, session.AccountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.Unauthorized(op, "Invalid session")
		}
		return nil, domain.Internal(err, op, "Failed to retrieve account")
	}

	account.PasswordHash = ""
	return account, nil
}

// UpdateProfile updates display name and gender tag.
func (s *accountService) UpdateProfile(ctx context.Context, id uuid.UUID, displayName, genderTag string) error {
	const op = "AccountService.UpdateProfile"

	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return domain.Invalid(op, "Name is required")
	}

	err := s.store.UpdateProfile(ctx, id, displayName, strings.TrimSpace(strings.ToLower(genderTag)))
	if errors.Is(err, store.ErrNotFound) {
		return domain.NotFound(op, "account", id.String())
	}
	if err != nil {
		return domain.Internal(err, op, "Failed to update profile")
	}
	return nil
}

// DeleteExpiredSessions removes expired sessions from the store.
func (s *accountService) DeleteExpiredSessions(ctx context.Context) error {
	const op = "AccountService.DeleteExpiredSessions"

	n, err := s.store.DeleteExpiredSessions(ctx)
	if err != nil {
		return domain.Internal(err, op, "Failed to delete expired sessions")
	}
	if n > 0 {
		s.logger.Info("expired sessions deleted", "count", n)
	}
	return nil
}

// =============================================================================
// Helpers
// =============================================================================

// generateSessionToken creates a cryptographically secure random token.
func generateSessionToken() (string, error) {
	bytes := make([]byte, SessionTokenBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// hashSessionToken creates a SHA-256 hash of a session token. Session tokens
// are high-entropy random values, so SHA-256 is sufficient; bcrypt would be
// overkill for per-request validation.
func hashSessionToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// validateEmail performs basic email format validation: exactly one @, a
// non-empty local part, and a dot in the domain part.
func validateEmail(email string) error {
	if email == "" {
		return domain.Invalid("", "Email is required")
	}
	if len(email) > 254 {
		return domain.Invalid("", "Email must be 254 characters or less")
	}

	atIndex := strings.Index(email, "@")
	if atIndex != strings.LastIndex(email, "@") || atIndex <= 0 || atIndex == len(email)-1 {
		return domain.Invalid("", "Email address is malformed")
	}
	if !strings.Contains(email[atIndex+1:], ".") {
		return domain.Invalid("", "Email domain is malformed")
	}
	return nil
}

// validatePassword enforces length bounds only; composition rules push users
// toward predictable patterns.
func validatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return domain.Invalid("", "Password must be at least 8 characters")
	}
	if len(password) > MaxPasswordLength {
		return domain.Invalid("", "Password must be 72 characters or less")
	}
	return nil
}
