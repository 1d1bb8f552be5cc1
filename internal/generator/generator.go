// Package generator orchestrates project generation: prompt in, stored ZIP
// artifact and project record out.
//
// The ordering here is load-bearing. A generation unit is charged strictly
// after the artifact has been produced and stored; a provider failure or a
// rejected consume leaves the ledger untouched, and a rejected consume also
// removes the stored artifact so nothing is delivered for free.
package generator

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/devro-ai/devro/internal/ai"
	"github.com/devro-ai/devro/internal/domain"
	"github.com/devro-ai/devro/internal/ledger"
	"github.com/devro-ai/devro/internal/metrics"
	"github.com/devro-ai/devro/internal/storage"
	"github.com/devro-ai/devro/internal/store"
	"github.com/google/uuid"
)

// MaxArtifactSize caps a packaged ZIP at 10MB. Generated sites are text;
// anything larger means the provider went off the rails.
const MaxArtifactSize = 10 * 1024 * 1024

// Result is the outcome of a successful generation.
type Result struct {
	Project *domain.Project
	Usage   domain.UsageWindow // Remaining allowance after the consume
	Tier    domain.Tier
}

// Artifact is a stored project ZIP opened for download.
type Artifact struct {
	Project *domain.Project
	Body    io.ReadCloser
	Info    storage.ObjectInfo
}

// Service defines generation and artifact retrieval operations.
type Service interface {
	// Generate runs the full pipeline: provider call, ZIP packaging, artifact
	// storage, quota consume, metadata record. Returns a quota error when the
	// account's window is exhausted; the artifact is not delivered in that
	// case.
	Generate(ctx context.Context, accountID uuid.UUID, prompt string, kind domain.ProjectKind) (*Result, error)

	// GetArtifact opens the stored ZIP for download. Returns ENOTFOUND when
	// the project doesn't exist or belongs to another account.
	GetArtifact(ctx context.Context, accountID, projectID uuid.UUID) (*Artifact, error)

	// ListProjects returns the account's generated projects, newest first.
	ListProjects(ctx context.Context, accountID uuid.UUID) ([]*domain.Project, error)
}

type generatorService struct {
	provider ai.Provider
	ledger   ledger.Service
	projects store.ProjectStore
	storage  storage.Storage
	policy   domain.Policy
	now      func() time.Time
	logger   *slog.Logger
}

// Config carries the generator's dependencies.
type Config struct {
	Provider ai.Provider
	Ledger   ledger.Service
	Projects store.ProjectStore
	Storage  storage.Storage
	Policy   domain.Policy
	Now      func() time.Time // injectable clock; nil means time.Now
	Logger   *slog.Logger
}

// New creates the generator service.
func New(cfg Config) Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &generatorService{
		provider: cfg.Provider,
		ledger:   cfg.Ledger,
		projects: cfg.Projects,
		storage:  cfg.Storage,
		policy:   cfg.Policy,
		now:      now,
		logger:   cfg.Logger,
	}
}

func (s *generatorService) Generate(ctx context.Context, accountID uuid.UUID, prompt string, kind domain.ProjectKind) (*Result, error) {
	const op = "generator.generate"
	startTime := s.now()

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, domain.Invalid(op, "Describe the site you want to generate")
	}
	if len(prompt) > ai.MaxPromptLength {
		return nil, domain.Invalid(op, "Description is too long")
	}
	if !kind.Valid() {
		return nil, domain.Invalid(op, "Project kind must be html or react")
	}

	// Cheap pre-check against the reconciled entitlement so an exhausted
	// account doesn't burn a provider call. The atomic consume below remains
	// the authoritative gate.
	account, err := s.ledger.GetEntitlement(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if err := s.precheck(op, account); err != nil {
		s.recordDenial(kind, err)
		return nil, err
	}

	generated, err := s.provider.GenerateProject(ctx, ai.GenerateParams{
		Prompt:    prompt,
		Kind:      ai.ProjectKind(kind),
		AccountID: accountID,
	})
	if err != nil {
		metrics.GenerationFailed(string(kind), "provider_error")
		return nil, s.providerErr(err, op)
	}

	zipBytes, err := packageProject(generated)
	if err != nil {
		metrics.GenerationFailed(string(kind), "packaging_error")
		return nil, domain.Internal(err, op, "Failed to package the generated project")
	}
	if int64(len(zipBytes)) > MaxArtifactSize {
		metrics.GenerationFailed(string(kind), "packaging_error")
		return nil, domain.Internal(nil, op, "Generated project is too large")
	}

	projectID := uuid.New()
	key := storage.ArtifactKey(accountID, projectID)
	err = s.storage.Put(ctx, key, bytes.NewReader(zipBytes), storage.PutOptions{
		ContentType: storage.ContentTypeZIP,
		MaxSize:     MaxArtifactSize,
	})
	if err != nil {
		metrics.GenerationFailed(string(kind), "storage_error")
		return nil, domain.Unavailable(err, op, "Artifact storage is unavailable")
	}

	// The artifact exists; only now is the unit charged. A rejected consume
	// means a concurrent generation spent the last unit first, so the
	// artifact is removed and the quota error propagated.
	if err := s.ledger.TryConsume(ctx, accountID); err != nil {
		if delErr := s.storage.Delete(ctx, key); delErr != nil {
			s.logger.Warn("failed to remove undelivered artifact", "key", key, "error", delErr)
		}
		s.recordDenial(kind, err)
		return nil, err
	}

	project := &domain.Project{
		ID:          projectID,
		AccountID:   accountID,
		Title:       deriveTitle(prompt),
		Kind:        kind,
		Prompt:      prompt,
		ArtifactKey: key,
		SizeBytes:   int64(len(zipBytes)),
		FileCount:   len(generated.Files),
		Model:       generated.Usage.Model,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.projects.CreateProject(ctx, project); err != nil {
		// The unit is already spent and the artifact exists; losing the
		// metadata row is the least bad failure, but it must be loud.
		s.logger.Error("failed to record generated project",
			"account_id", accountID,
			"project_id", projectID,
			"error", err,
		)
		return nil, domain.Internal(err, op, "Failed to record the generated project")
	}

	// Fresh read for the post-consume remaining allowance.
	account, err = s.ledger.GetEntitlement(ctx, accountID)
	if err != nil {
		return nil, err
	}

	metrics.GenerationSucceeded(string(kind), s.now().Sub(startTime),
		project.SizeBytes, generated.Usage.InputTokens, generated.Usage.OutputTokens)

	s.logger.Info("project generated",
		"account_id", accountID,
		"project_id", projectID,
		"kind", kind,
		"title", project.Title,
		"size_bytes", project.SizeBytes,
		"daily_remaining", account.Usage.DailyRemaining,
		"monthly_remaining", account.Usage.MonthlyRemaining,
	)

	return &Result{
		Project: project,
		Usage:   account.Usage,
		Tier:    account.Tier,
	}, nil
}

// precheck rejects an already-exhausted account before the provider call.
func (s *generatorService) precheck(op string, account *domain.Account) error {
	if !s.policy.LimitsFor(account.Tier).Enforced() {
		return nil
	}
	if account.Usage.DailyRemaining <= 0 {
		return domain.DailyLimitExceeded(op, account.Usage.DailyResetAt)
	}
	if account.Usage.MonthlyRemaining <= 0 {
		return domain.MonthlyLimitExceeded(op, account.Usage.MonthlyResetAt)
	}
	return nil
}

func (s *generatorService) recordDenial(kind domain.ProjectKind, err error) {
	switch domain.ErrorCode(err) {
	case domain.EQUOTADAILY:
		metrics.QuotaDenied("daily")
		metrics.GenerationFailed(string(kind), "quota_denied")
	case domain.EQUOTAMONTHLY:
		metrics.QuotaDenied("monthly")
		metrics.GenerationFailed(string(kind), "quota_denied")
	}
}

// providerErr translates provider errors into domain errors.
func (s *generatorService) providerErr(err error, op string) error {
	switch {
	case errors.Is(err, ai.EAIInvalidPrompt):
		return domain.Wrap(err, domain.EINVALID, op, "The description could not be used for generation")
	case errors.Is(err, ai.EAIUnauthorized):
		return domain.Internal(err, op, "Generation provider rejected credentials")
	case errors.Is(err, ai.EAIBadOutput):
		return domain.Unavailable(err, op, "The generator produced unusable output, try again")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return domain.Unavailable(err, op, "Generation timed out")
	default:
		return domain.Unavailable(err, op, "Generation provider is unavailable")
	}
}

func (s *generatorService) GetArtifact(ctx context.Context, accountID, projectID uuid.UUID) (*Artifact, error) {
	const op = "generator.get_artifact"

	project, err := s.projects.GetProject(ctx, projectID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, domain.NotFound(op, "project", projectID.String())
	}
	if err != nil {
		return nil, domain.Unavailable(err, op, "Project store is unavailable")
	}
	// Another account's project is indistinguishable from a missing one.
	if project.AccountID != accountID {
		return nil, domain.NotFound(op, "project", projectID.String())
	}

	body, info, err := s.storage.Get(ctx, project.ArtifactKey)
	if storage.IsNotFound(err) {
		return nil, domain.NotFound(op, "project", projectID.String())
	}
	if err != nil {
		return nil, domain.Unavailable(err, op, "Artifact storage is unavailable")
	}

	return &Artifact{Project: project, Body: body, Info: info}, nil
}

func (s *generatorService) ListProjects(ctx context.Context, accountID uuid.UUID) ([]*domain.Project, error) {
	const op = "generator.list_projects"

	projects, err := s.projects.ListProjects(ctx, accountID)
	if err != nil {
		return nil, domain.Unavailable(err, op, "Project store is unavailable")
	}
	return projects, nil
}
