package handler

import (
	"log/slog"
	"net/http"

	"github.com/devro-ai/devro/internal/auth"
	"github.com/devro-ai/devro/internal/domain"
	"github.com/devro-ai/devro/internal/ledger"
	"github.com/devro-ai/devro/internal/service"
)

// ProfileHandler serves the authenticated account's profile and entitlement.
//
// Routes:
//   - GET /api/profile
//   - PUT /api/profile
//
// Reads go through the ledger so the returned allowance reflects any window
// reset or subscription expiry that happened since the last request.
type ProfileHandler struct {
	accounts service.AccountService
	ledger   ledger.Service
	policy   domain.Policy
	logger   *slog.Logger
}

// NewProfileHandler creates a new ProfileHandler.
func NewProfileHandler(accounts service.AccountService, ledgerSvc ledger.Service, policy domain.Policy, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{
		accounts: accounts,
		ledger:   ledgerSvc,
		policy:   policy,
		logger:   logger,
	}
}

type updateProfileRequest struct {
	Name      string `json:"name"`
	GenderTag string `json:"gender_tag,omitempty"`
}

// Get returns the account with its reconciled entitlement.
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccount(r.Context())
	if account == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	reconciled, err := h.ledger.GetEntitlement(r.Context(), account.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, accountResponse{
		Account: accountPayload(reconciled, h.policy),
	})
}

// Update changes display name and gender tag, then returns the fresh view.
// Tier, subscription and usage are ledger-owned and not writable here.
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccount(r.Context())
	if account == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	var req updateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	if err := h.accounts.UpdateProfile(r.Context(), account.ID, req.Name, req.GenderTag); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	reconciled, err := h.ledger.GetEntitlement(r.Context(), account.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, accountResponse{
		Account: accountPayload(reconciled, h.policy),
	})
}
