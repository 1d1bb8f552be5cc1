// Package ledger implements the credit ledger: the usage-quota and
// entitlement accounting that decides, on every generation attempt, whether
// an account may proceed, what its remaining allowance is, how allowances
// reset over time, and how a paid upgrade replaces the allowance structure.
//
// Reconciliation is lazy: elapsed window resets and subscription expiry are
// detected and applied during reads, not by a background sweeper. Every write
// the ledger issues is a single conditional store operation, so concurrent
// calls from different tabs or devices cannot double-spend a final unit or
// lose a reset.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/devro-ai/devro/internal/domain"
	"github.com/devro-ai/devro/internal/metrics"
	"github.com/devro-ai/devro/internal/store"
	"github.com/google/uuid"
)

// maxWriteAttempts bounds the reconcile/upgrade retry loop. A retry only
// happens when a concurrent writer changed the record between our read and
// our guarded write; the loop re-reads and recomputes from fresh state.
const maxWriteAttempts = 3

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the ledger operations exposed to the rest of the system.
// The account ID is always an explicit argument; the ledger holds no notion
// of a "current" user.
type Service interface {
	// GetEntitlement returns the account after lazy reconciliation: expired
	// PRO subscriptions are collapsed to FREE, elapsed daily/monthly windows
	// are refilled, and a corrupt lifetime total is normalized. At most one
	// store write is issued, and only when something actually changed.
	GetEntitlement(ctx context.Context, accountID uuid.UUID) (*domain.Account, error)

	// TryConsume spends one generation unit. It reconciles first, then issues
	// a single atomic conditional decrement. Returns a quota error
	// (EQUOTADAILY or EQUOTAMONTHLY) when the relevant window is exhausted;
	// a rejected consume changes no state. Call this strictly after the
	// generation artifact has been produced, never before.
	TryConsume(ctx context.Context, accountID uuid.UUID) error

	// ApplyUpgrade switches the account to PRO after confirmed payment. The
	// subscription block is written fresh and the usage block is replaced
	// wholesale with PRO limits; unused FREE units are discarded by design.
	ApplyUpgrade(ctx context.Context, accountID uuid.UUID, provider string) error
}

// =============================================================================
// Implementation
// =============================================================================

type ledgerService struct {
	accounts store.AccountStore
	policy   domain.Policy
	loc      *time.Location
	now      func() time.Time
	logger   *slog.Logger
}

// Config carries the ledger's dependencies and knobs.
type Config struct {
	Accounts store.AccountStore
	Policy   domain.Policy
	Location *time.Location  // reference zone for window boundaries; nil means UTC
	Now      func() time.Time // injectable clock; nil means time.Now
	Logger   *slog.Logger
}

// New creates the ledger service.
func New(cfg Config) Service {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &ledgerService{
		accounts: cfg.Accounts,
		policy:   cfg.Policy,
		loc:      loc,
		now:      now,
		logger:   cfg.Logger,
	}
}

// NewAccountDefaults returns the usage window a fresh FREE account starts
// with: full allowances and boundaries computed from now.
func NewAccountDefaults(policy domain.Policy, now time.Time, loc *time.Location) domain.UsageWindow {
	limits := policy.LimitsFor(domain.TierFree)
	return domain.UsageWindow{
		DailyRemaining:   limits.Daily,
		DailyResetAt:     domain.NextMidnight(now, loc),
		MonthlyRemaining: limits.Monthly,
		MonthlyResetAt:   domain.NextMonthStart(now, loc),
		LifetimeTotal:    0,
	}
}

func (s *ledgerService) GetEntitlement(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	const op = "ledger.get_entitlement"
	return s.reconciled(ctx, op, accountID)
}

// reconciled reads the account, applies pending reconciliation, and persists
// the result under the observed-snapshot guard. Losing the guarded write to
// a concurrent caller is not an error: the other writer applied an
// equivalent reconciliation, so we re-read and try again from fresh state.
func (s *ledgerService) reconciled(ctx context.Context, op string, accountID uuid.UUID) (*domain.Account, error) {
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		account, err := s.accounts.Get(ctx, accountID)
		if err != nil {
			return nil, s.storeErr(err, op, accountID)
		}

		guard := store.EntitlementGuard{
			Tier:           account.Tier,
			DailyResetAt:   account.Usage.DailyResetAt,
			MonthlyResetAt: account.Usage.MonthlyResetAt,
		}
		changed := s.reconcile(account, s.now())
		if !changed {
			return account, nil
		}

		err = s.accounts.UpdateEntitlement(ctx, accountID, guard, store.EntitlementUpdate{
			Tier:         account.Tier,
			Subscription: account.Subscription,
			Usage:        account.Usage,
		})
		switch {
		case err == nil:
			// Counted only on the write that won, so a lost race does not
			// record the same expiry twice.
			if guard.Tier == domain.TierPro && account.Tier == domain.TierFree {
				metrics.SubscriptionExpired()
			}
			return account, nil
		case errors.Is(err, store.ErrStale):
			continue
		default:
			return nil, s.storeErr(err, op, accountID)
		}
	}
	return nil, domain.Unavailable(nil, op, "account is being updated concurrently, try again")
}

// reconcile applies, in order: PRO-expiry collapse, daily window refresh,
// monthly window refresh, lifetime-total normalization. It mutates account in
// place and reports whether anything changed. Checks that have not elapsed
// are no-ops, which is what makes repeated reconciliation idempotent.
func (s *ledgerService) reconcile(account *domain.Account, now time.Time) bool {
	changed := false

	// (a) Expired PRO collapses to FREE immediately: status flips to
	// EXPIRED and the usage block is re-based to FREE's full allowance, not
	// left to be lazily re-derived later.
	if account.Tier == domain.TierPro &&
		account.Subscription != nil &&
		account.Subscription.ExpiredBy(now) {
		account.Tier = domain.TierFree
		account.Subscription.Status = domain.SubscriptionStatusExpired
		limits := s.policy.LimitsFor(domain.TierFree)
		account.Usage.DailyRemaining = limits.Daily
		account.Usage.DailyResetAt = domain.NextMidnight(now, s.loc)
		account.Usage.MonthlyRemaining = limits.Monthly
		account.Usage.MonthlyResetAt = domain.NextMonthStart(now, s.loc)
		changed = true

		if s.logger != nil {
			s.logger.Info("pro subscription expired",
				"account_id", account.ID,
				"expired_at", account.Subscription.ExpiresAt,
			)
		}
	}

	// Window refreshes refill to the allowance of the tier held at the
	// moment of reset, never a stale one.
	limits := s.policy.LimitsFor(account.Tier)

	// (b) Daily window.
	if !now.Before(account.Usage.DailyResetAt) {
		account.Usage.DailyRemaining = limits.Daily
		account.Usage.DailyResetAt = domain.NextMidnight(now, s.loc)
		changed = true
	}

	// (c) Monthly window.
	if !now.Before(account.Usage.MonthlyResetAt) {
		account.Usage.MonthlyRemaining = limits.Monthly
		account.Usage.MonthlyResetAt = domain.NextMonthStart(now, s.loc)
		changed = true
	}

	// (d) A corrupt lifetime total is coerced to zero rather than raised.
	if account.Usage.LifetimeTotal < 0 {
		account.Usage.LifetimeTotal = 0
		changed = true
	}

	return changed
}

func (s *ledgerService) TryConsume(ctx context.Context, accountID uuid.UUID) error {
	const op = "ledger.consume"

	// Reconcile from the persisted record first; a caller-supplied snapshot
	// is never trusted.
	account, err := s.reconciled(ctx, op, accountID)
	if err != nil {
		return err
	}

	limits := s.policy.LimitsFor(account.Tier)
	decDaily := limits.Enforced()
	decMonthly := limits.Enforced()

	err = s.accounts.ConsumeUnit(ctx, accountID, decDaily, decMonthly)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrDailyExhausted):
		if s.logger != nil {
			s.logger.Info("daily quota exceeded",
				"account_id", accountID,
				"tier", account.Tier,
				"reset_at", account.Usage.DailyResetAt,
			)
		}
		return domain.DailyLimitExceeded(op, account.Usage.DailyResetAt)
	case errors.Is(err, store.ErrMonthlyExhausted):
		if s.logger != nil {
			s.logger.Info("monthly quota exceeded",
				"account_id", accountID,
				"tier", account.Tier,
				"reset_at", account.Usage.MonthlyResetAt,
			)
		}
		return domain.MonthlyLimitExceeded(op, account.Usage.MonthlyResetAt)
	default:
		return s.storeErr(err, op, accountID)
	}
}

func (s *ledgerService) ApplyUpgrade(ctx context.Context, accountID uuid.UUID, provider string) error {
	const op = "ledger.upgrade"

	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		account, err := s.accounts.Get(ctx, accountID)
		if err != nil {
			return s.storeErr(err, op, accountID)
		}

		now := s.now()
		limits := s.policy.LimitsFor(domain.TierPro)

		// Full overwrite, not a merge: a fresh subscription block and a
		// usage block re-based to PRO limits with fresh boundaries. Unused
		// FREE units are discarded.
		upd := store.EntitlementUpdate{
			Tier: domain.TierPro,
			Subscription: &domain.Subscription{
				Provider:    provider,
				Status:      domain.SubscriptionStatusActive,
				ActivatedAt: now,
				ExpiresAt:   domain.ProExpiry(now, domain.ProDurationDays),
			},
			Usage: domain.UsageWindow{
				DailyRemaining:   limits.Daily,
				DailyResetAt:     domain.NextMidnight(now, s.loc),
				MonthlyRemaining: limits.Monthly,
				MonthlyResetAt:   domain.NextMonthStart(now, s.loc),
				LifetimeTotal:    account.Usage.LifetimeTotal,
			},
		}
		guard := store.EntitlementGuard{
			Tier:           account.Tier,
			DailyResetAt:   account.Usage.DailyResetAt,
			MonthlyResetAt: account.Usage.MonthlyResetAt,
		}

		err = s.accounts.UpdateEntitlement(ctx, accountID, guard, upd)
		switch {
		case err == nil:
			if s.logger != nil {
				s.logger.Info("account upgraded to pro",
					"account_id", accountID,
					"provider", provider,
					"expires_at", upd.Subscription.ExpiresAt,
				)
			}
			return nil
		case errors.Is(err, store.ErrStale):
			// A racing reconcile or consume moved the record; the paid
			// upgrade must not be dropped, so retry from fresh state.
			continue
		default:
			return s.storeErr(err, op, accountID)
		}
	}
	return domain.Unavailable(nil, op, "account is being updated concurrently, try again")
}

// storeErr translates store sentinel errors into domain errors.
func (s *ledgerService) storeErr(err error, op string, accountID uuid.UUID) error {
	if errors.Is(err, store.ErrNotFound) {
		return domain.NotFound(op, "account", accountID.String())
	}
	return domain.Unavailable(err, op, "account store is unavailable")
}
