// Package store contains durable persistence adapters for accounts, sessions
// and generated-project metadata.
//
// Three implementations exist: Postgres (primary), Mongo (document-store
// deployments), and an in-memory store used by tests and local development.
// All of them expose the same atomic primitives the ledger depends on: a
// single conditional decrement for consumption, and a compare-and-set
// entitlement write for lazy reconciliation. The ledger never does a
// read-then-write pair against the store for anything that must not race.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/devro-ai/devro/internal/domain"
	"github.com/google/uuid"
)

// Sentinel errors returned by store adapters. Services translate these into
// domain errors; adapters never construct user-facing messages themselves.
var (
	// ErrNotFound indicates the account (or session) does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrDuplicateEmail indicates an account with that email already exists.
	ErrDuplicateEmail = errors.New("store: email already registered")

	// ErrDailyExhausted is returned by ConsumeUnit when the daily window
	// precondition (remaining > 0) failed.
	ErrDailyExhausted = errors.New("store: daily allowance exhausted")

	// ErrMonthlyExhausted is returned by ConsumeUnit when the monthly window
	// precondition failed.
	ErrMonthlyExhausted = errors.New("store: monthly allowance exhausted")

	// ErrStale is returned by UpdateEntitlement when the observed snapshot no
	// longer matches the stored record. The caller re-reads; a concurrent
	// writer already applied an equivalent or newer state.
	ErrStale = errors.New("store: entitlement snapshot is stale")
)

// EntitlementGuard captures the sub-fields a reconciliation pass observed
// before computing its update. UpdateEntitlement only applies when the stored
// record still matches the guard, which makes reconciliation safe to run
// concurrently from multiple tabs or devices.
type EntitlementGuard struct {
	Tier           domain.Tier
	DailyResetAt   time.Time
	MonthlyResetAt time.Time
}

// EntitlementUpdate is the scoped write reconciliation and upgrades issue.
// It deliberately carries only tier/subscription/usage: profile metadata has
// its own update path and must never be clobbered by ledger writes.
type EntitlementUpdate struct {
	Tier         domain.Tier
	Subscription *domain.Subscription
	Usage        domain.UsageWindow
}

// AccountStore is the durable per-account record store.
type AccountStore interface {
	// Get returns the account by ID, or ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*domain.Account, error)

	// GetByEmail returns the account by email, or ErrNotFound.
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)

	// Create persists a new account. Returns ErrDuplicateEmail when the email
	// is taken.
	Create(ctx context.Context, account *domain.Account) error

	// UpdateProfile writes profile metadata only. Disjoint from every ledger
	// write path.
	UpdateProfile(ctx context.Context, id uuid.UUID, displayName, genderTag string) error

	// UpdateEntitlement applies a scoped tier/subscription/usage write,
	// conditional on the guard still matching. Returns ErrStale when a
	// concurrent writer got there first, ErrNotFound when the account is gone.
	UpdateEntitlement(ctx context.Context, id uuid.UUID, guard EntitlementGuard, upd EntitlementUpdate) error

	// ConsumeUnit atomically decrements dailyRemaining (when decDaily) and
	// monthlyRemaining (when decMonthly) by 1 and increments lifetimeTotal,
	// all in one conditional operation that the store rejects when an
	// enforced balance is already zero. Unlimited tiers pass false for both
	// flags and still record the lifetime unit. Never issued as separate
	// read and write calls.
	ConsumeUnit(ctx context.Context, id uuid.UUID, decDaily, decMonthly bool) error
}

// SessionStore persists authenticated sessions keyed by hashed token.
type SessionStore interface {
	CreateSession(ctx context.Context, session *domain.Session) error
	GetSessionByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error)
	DeleteSession(ctx context.Context, id uuid.UUID) error
	DeleteExpiredSessions(ctx context.Context) (int64, error)
}

// ProjectStore persists metadata for generated projects. The ZIP artifacts
// themselves live in object storage, keyed by Project.ArtifactKey.
type ProjectStore interface {
	CreateProject(ctx context.Context, project *domain.Project) error

	// GetProject returns the project by ID, or ErrNotFound.
	GetProject(ctx context.Context, id uuid.UUID) (*domain.Project, error)

	// ListProjects returns the account's projects, newest first.
	ListProjects(ctx context.Context, accountID uuid.UUID) ([]*domain.Project, error)
}

// Store combines the account, session and project stores; every concrete
// adapter in this package implements all three.
type Store interface {
	AccountStore
	SessionStore
	ProjectStore
}
