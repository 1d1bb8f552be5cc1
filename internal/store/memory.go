package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/devro-ai/devro/internal/domain"
	"github.com/google/uuid"
)

// MemoryStore is a mutex-guarded in-memory Store. It backs service tests and
// the zero-dependency development mode. All mutations happen under one lock,
// which gives it the same atomicity the SQL and Mongo adapters get from
// single conditional statements.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*domain.Account
	sessions map[uuid.UUID]*domain.Session
	projects map[uuid.UUID]*domain.Project
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[uuid.UUID]*domain.Account),
		sessions: make(map[uuid.UUID]*domain.Session),
		projects: make(map[uuid.UUID]*domain.Project),
	}
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneAccount(a), nil
}

func (s *MemoryStore) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Email == email {
			return cloneAccount(a), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) Create(_ context.Context, account *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Email == account.Email {
			return ErrDuplicateEmail
		}
	}
	s.accounts[account.ID] = cloneAccount(account)
	return nil
}

func (s *MemoryStore) UpdateProfile(_ context.Context, id uuid.UUID, displayName, genderTag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return ErrNotFound
	}
	a.DisplayName = displayName
	a.GenderTag = genderTag
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) UpdateEntitlement(_ context.Context, id uuid.UUID, guard EntitlementGuard, upd EntitlementUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return ErrNotFound
	}
	if a.Tier != guard.Tier ||
		!a.Usage.DailyResetAt.Equal(guard.DailyResetAt) ||
		!a.Usage.MonthlyResetAt.Equal(guard.MonthlyResetAt) {
		return ErrStale
	}
	a.Tier = upd.Tier
	a.Usage = upd.Usage
	if upd.Subscription != nil {
		sub := *upd.Subscription
		a.Subscription = &sub
	} else {
		a.Subscription = nil
	}
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) ConsumeUnit(_ context.Context, id uuid.UUID, decDaily, decMonthly bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return ErrNotFound
	}
	if decDaily && a.Usage.DailyRemaining <= 0 {
		return ErrDailyExhausted
	}
	if decMonthly && a.Usage.MonthlyRemaining <= 0 {
		return ErrMonthlyExhausted
	}
	if decDaily {
		a.Usage.DailyRemaining--
	}
	if decMonthly {
		a.Usage.MonthlyRemaining--
	}
	a.Usage.LifetimeTotal++
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) CreateSession(_ context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := *session
	s.sessions[session.ID] = &sess
	return nil
}

func (s *MemoryStore) GetSessionByTokenHash(_ context.Context, tokenHash string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.TokenHash == tokenHash {
			out := *sess
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) DeleteSession(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *MemoryStore) DeleteExpiredSessions(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var n int64
	for id, sess := range s.sessions {
		if now.After(sess.ExpiresAt) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) CreateProject(_ context.Context, project *domain.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := *project
	s.projects[project.ID] = &p
	return nil
}

func (s *MemoryStore) GetProject(_ context.Context, id uuid.UUID) (*domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *p
	return &out, nil
}

func (s *MemoryStore) ListProjects(_ context.Context, accountID uuid.UUID) ([]*domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var projects []*domain.Project
	for _, p := range s.projects {
		if p.AccountID == accountID {
			out := *p
			projects = append(projects, &out)
		}
	}
	// Newest first, matching the SQL and Mongo adapters.
	sort.Slice(projects, func(i, j int) bool {
		return projects[i].CreatedAt.After(projects[j].CreatedAt)
	})
	return projects, nil
}

func cloneAccount(a *domain.Account) *domain.Account {
	out := *a
	if a.Subscription != nil {
		sub := *a.Subscription
		out.Subscription = &sub
	}
	return &out
}

var _ Store = (*MemoryStore)(nil)
