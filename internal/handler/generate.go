package handler

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/devro-ai/devro/internal/auth"
	"github.com/devro-ai/devro/internal/domain"
	"github.com/devro-ai/devro/internal/generator"
	"github.com/google/uuid"
)

// GenerateHandler serves project generation and artifact download.
//
// Routes:
//   - POST /api/generate
//   - GET  /api/projects
//   - GET  /api/projects/{id}/download
type GenerateHandler struct {
	generator generator.Service
	policy    domain.Policy
	logger    *slog.Logger
}

// NewGenerateHandler creates a new GenerateHandler.
func NewGenerateHandler(gen generator.Service, policy domain.Policy, logger *slog.Logger) *GenerateHandler {
	return &GenerateHandler{
		generator: gen,
		policy:    policy,
		logger:    logger,
	}
}

type generateRequest struct {
	Prompt string `json:"prompt"`
	Kind   string `json:"kind"`
}

type generateResponse struct {
	Project ProjectPayload `json:"project"`
	Tier    string         `json:"tier"`
	Usage   UsagePayload   `json:"usage"`
}

type listProjectsResponse struct {
	Projects []ProjectPayload `json:"projects"`
}

// Generate runs the generation pipeline and returns the new project together
// with the remaining allowance. Quota exhaustion surfaces as 429 with the
// window's reset time in the error body.
func (h *GenerateHandler) Generate(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccount(r.Context())
	if account == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	var req generateRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	result, err := h.generator.Generate(r.Context(), account.ID, req.Prompt, domain.ProjectKind(req.Kind))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, generateResponse{
		Project: projectPayload(result.Project),
		Tier:    string(result.Tier),
		Usage: UsagePayload{
			DailyRemaining:   result.Usage.DailyRemaining,
			DailyResetAt:     result.Usage.DailyResetAt,
			MonthlyRemaining: result.Usage.MonthlyRemaining,
			MonthlyResetAt:   result.Usage.MonthlyResetAt,
			LifetimeTotal:    result.Usage.LifetimeTotal,
			Unlimited:        !h.policy.LimitsFor(result.Tier).Enforced(),
		},
	})
}

// ListProjects returns the account's generated projects, newest first.
func (h *GenerateHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccount(r.Context())
	if account == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	projects, err := h.generator.ListProjects(r.Context(), account.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	payloads := make([]ProjectPayload, 0, len(projects))
	for _, p := range projects {
		payloads = append(payloads, projectPayload(p))
	}
	writeJSON(w, http.StatusOK, listProjectsResponse{Projects: payloads})
}

// Download streams the project's ZIP artifact.
func (h *GenerateHandler) Download(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccount(r.Context())
	if account == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	projectID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid("", "Invalid project ID"))
		return
	}

	artifact, err := h.generator.GetArtifact(r.Context(), account.ID, projectID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	defer artifact.Body.Close()

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+downloadFilename(artifact.Project.Title)+`"`)
	if artifact.Info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(artifact.Info.Size, 10))
	}

	if _, err := io.Copy(w, artifact.Body); err != nil {
		// Headers are gone; nothing left to do but note the broken transfer.
		h.logger.Warn("artifact download interrupted",
			"project_id", projectID,
			"error", err,
		)
	}
}

// downloadFilename turns a project title into a safe ZIP filename.
// "My Coffee Shop" becomes "my-coffee-shop.zip".
func downloadFilename(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('-')
		}
	}
	name := strings.Trim(b.String(), "-")
	if name == "" {
		name = "project"
	}
	return name + ".zip"
}
