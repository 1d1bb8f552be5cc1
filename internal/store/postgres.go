package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/devro-ai/devro/internal/domain"
	"github.com/google/uuid"
)

// PostgresStore implements Store on top of a Postgres database accessed
// through database/sql with the pgx stdlib driver.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgresStore. The caller owns the *sql.DB
// lifecycle (ping, close, migrations).
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const accountColumns = `
	id, display_name, email, password_hash, gender_tag, tier,
	sub_provider, sub_status, sub_activated_at, sub_expires_at,
	daily_remaining, daily_reset_at, monthly_remaining, monthly_reset_at,
	lifetime_total, created_at, updated_at`

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT`+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT`+accountColumns+` FROM accounts WHERE email = $1`, email)
	return scanAccount(row)
}

func (s *PostgresStore) Create(ctx context.Context, account *domain.Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (
			id, display_name, email, password_hash, gender_tag, tier,
			sub_provider, sub_status, sub_activated_at, sub_expires_at,
			daily_remaining, daily_reset_at, monthly_remaining, monthly_reset_at,
			lifetime_total, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		account.ID, account.DisplayName, account.Email, account.PasswordHash,
		account.GenderTag, account.Tier,
		subProvider(account.Subscription), subStatus(account.Subscription),
		subActivatedAt(account.Subscription), subExpiresAt(account.Subscription),
		account.Usage.DailyRemaining, account.Usage.DailyResetAt,
		account.Usage.MonthlyRemaining, account.Usage.MonthlyResetAt,
		account.Usage.LifetimeTotal, account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateProfile(ctx context.Context, id uuid.UUID, displayName, genderTag string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts
		SET display_name = $2, gender_tag = $3, updated_at = now()
		WHERE id = $1`,
		id, displayName, genderTag)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return requireRow(res)
}

// UpdateEntitlement writes tier/subscription/usage in one statement, guarded
// by the snapshot the caller observed. A zero rows-affected result with the
// account still present means a concurrent writer won the race.
func (s *PostgresStore) UpdateEntitlement(ctx context.Context, id uuid.UUID, guard EntitlementGuard, upd EntitlementUpdate) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET
			tier = $2,
			sub_provider = $3, sub_status = $4, sub_activated_at = $5, sub_expires_at = $6,
			daily_remaining = $7, daily_reset_at = $8,
			monthly_remaining = $9, monthly_reset_at = $10,
			lifetime_total = $11,
			updated_at = now()
		WHERE id = $1
		  AND tier = $12
		  AND daily_reset_at = $13
		  AND monthly_reset_at = $14`,
		id, upd.Tier,
		subProvider(upd.Subscription), subStatus(upd.Subscription),
		subActivatedAt(upd.Subscription), subExpiresAt(upd.Subscription),
		upd.Usage.DailyRemaining, upd.Usage.DailyResetAt,
		upd.Usage.MonthlyRemaining, upd.Usage.MonthlyResetAt,
		upd.Usage.LifetimeTotal,
		guard.Tier, guard.DailyResetAt, guard.MonthlyResetAt,
	)
	if err != nil {
		return fmt.Errorf("update entitlement: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update entitlement rows: %w", err)
	}
	if n > 0 {
		return nil
	}

	// Distinguish a lost race from a deleted account.
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("update entitlement exists check: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrStale
}

// ConsumeUnit is the single conditional decrement. The WHERE clause carries
// the balance preconditions, so two racing calls can never both succeed on a
// final unit.
func (s *PostgresStore) ConsumeUnit(ctx context.Context, id uuid.UUID, decDaily, decMonthly bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET
			daily_remaining = daily_remaining - CASE WHEN $2 THEN 1 ELSE 0 END,
			monthly_remaining = monthly_remaining - CASE WHEN $3 THEN 1 ELSE 0 END,
			lifetime_total = lifetime_total + 1,
			updated_at = now()
		WHERE id = $1
		  AND (NOT $2 OR daily_remaining > 0)
		  AND (NOT $3 OR monthly_remaining > 0)`,
		id, decDaily, decMonthly)
	if err != nil {
		return fmt.Errorf("consume unit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("consume unit rows: %w", err)
	}
	if n > 0 {
		return nil
	}

	// The precondition failed; classify why. This extra read is on the
	// rejection path only and changes nothing.
	var daily, monthly int
	err = s.db.QueryRowContext(ctx,
		`SELECT daily_remaining, monthly_remaining FROM accounts WHERE id = $1`, id).
		Scan(&daily, &monthly)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("consume unit classify: %w", err)
	}
	if daily <= 0 {
		return ErrDailyExhausted
	}
	return ErrMonthlyExhausted
}

// =============================================================================
// Sessions
// =============================================================================

func (s *PostgresStore) CreateSession(ctx context.Context, session *domain.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, account_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		session.ID, session.AccountID, session.TokenHash, session.ExpiresAt, session.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSessionByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	var sess domain.Session
	err := s.db.QueryRowContext(ctx, `
		SELECT id, account_id, token_hash, expires_at, created_at
		FROM sessions WHERE token_hash = $1`, tokenHash).
		Scan(&sess.ID, &sess.AccountID, &sess.TokenHash, &sess.ExpiresAt, &sess.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &sess, nil
}

func (s *PostgresStore) DeleteSession(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < now()`)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}

// =============================================================================
// Projects
// =============================================================================

const projectColumns = `
	id, account_id, title, kind, prompt, artifact_key, size_bytes, file_count,
	model, created_at`

func (s *PostgresStore) CreateProject(ctx context.Context, project *domain.Project) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (
			id, account_id, title, kind, prompt, artifact_key, size_bytes,
			file_count, model, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		project.ID, project.AccountID, project.Title, project.Kind,
		project.Prompt, project.ArtifactKey, project.SizeBytes,
		project.FileCount, project.Model, project.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetProject(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT`+projectColumns+` FROM projects WHERE id = $1`, id)
	return scanProject(row)
}

func (s *PostgresStore) ListProjects(ctx context.Context, accountID uuid.UUID) ([]*domain.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT`+projectColumns+` FROM projects WHERE account_id = $1 ORDER BY created_at DESC`,
		accountID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []*domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

// =============================================================================
// Scan helpers
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var (
		a              domain.Account
		tier           string
		subProvider    sql.NullString
		subStatus      sql.NullString
		subActivatedAt sql.NullTime
		subExpiresAt   sql.NullTime
	)
	err := row.Scan(
		&a.ID, &a.DisplayName, &a.Email, &a.PasswordHash, &a.GenderTag, &tier,
		&subProvider, &subStatus, &subActivatedAt, &subExpiresAt,
		&a.Usage.DailyRemaining, &a.Usage.DailyResetAt,
		&a.Usage.MonthlyRemaining, &a.Usage.MonthlyResetAt,
		&a.Usage.LifetimeTotal, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}
	a.Tier = domain.Tier(tier)
	if subStatus.Valid {
		a.Subscription = &domain.Subscription{
			Provider:    subProvider.String,
			Status:      domain.SubscriptionStatus(subStatus.String),
			ActivatedAt: subActivatedAt.Time,
			ExpiresAt:   subExpiresAt.Time,
		}
	}
	return &a, nil
}

func scanProject(row rowScanner) (*domain.Project, error) {
	var (
		p    domain.Project
		kind string
	)
	err := row.Scan(
		&p.ID, &p.AccountID, &p.Title, &kind, &p.Prompt, &p.ArtifactKey,
		&p.SizeBytes, &p.FileCount, &p.Model, &p.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan project: %w", err)
	}
	p.Kind = domain.ProjectKind(kind)
	return &p, nil
}

func subProvider(s *domain.Subscription) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: s.Provider, Valid: true}
}

func subStatus(s *domain.Subscription) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(s.Status), Valid: true}
}

func subActivatedAt(s *domain.Subscription) sql.NullTime {
	if s == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: s.ActivatedAt, Valid: true}
}

func subExpiresAt(s *domain.Subscription) sql.NullTime {
	if s == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: s.ExpiresAt, Valid: true}
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// isUniqueViolation detects a Postgres unique constraint error (SQLSTATE
// 23505) without depending on driver-specific error types.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}

var _ Store = (*PostgresStore)(nil)
