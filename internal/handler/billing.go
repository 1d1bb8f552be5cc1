package handler

import (
	"log/slog"
	"net/http"

	"github.com/devro-ai/devro/internal/auth"
	"github.com/devro-ai/devro/internal/billing"
	"github.com/devro-ai/devro/internal/domain"
)

// BillingHandler serves the PRO upgrade checkout endpoint.
//
// Routes:
//   - POST /api/billing/checkout
//
// The checkout URL is the only thing handed to the client. The upgrade
// itself is applied by the Stripe webhook, never by the success redirect.
type BillingHandler struct {
	billing billing.Service
	baseURL string
	logger  *slog.Logger
}

// NewBillingHandler creates a new BillingHandler. billingService may be nil
// when Stripe is not configured; checkout then returns 503.
func NewBillingHandler(billingService billing.Service, baseURL string, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{
		billing: billingService,
		baseURL: baseURL,
		logger:  logger,
	}
}

type checkoutResponse struct {
	CheckoutURL string `json:"checkout_url"`
}

// CreateCheckout creates a Stripe Checkout session for the 30-day PRO
// purchase and returns its URL.
func (h *BillingHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccount(r.Context())
	if account == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	if h.billing == nil {
		ErrorResponse(w, r, h.logger,
			domain.Unavailable(nil, "billing.checkout", "Billing is not configured"))
		return
	}

	url, err := h.billing.CreateCheckoutSession(
		account.ID,
		account.Email,
		h.baseURL+"/upgrade/success",
		h.baseURL+"/upgrade/cancelled",
	)
	if err != nil {
		ErrorResponse(w, r, h.logger,
			domain.Unavailable(err, "billing.checkout", "Failed to start checkout"))
		return
	}

	h.logger.Info("checkout session created", "account_id", account.ID)
	writeJSON(w, http.StatusOK, checkoutResponse{CheckoutURL: url})
}
