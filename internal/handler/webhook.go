// This file implements the Stripe webhook handler.
//
// Route:
//   - POST /webhooks/stripe
//
// The route is PUBLIC (no auth middleware) because Stripe calls it directly.
// Authentication is the webhook signature; an unverifiable payload is
// rejected before any of it is parsed.
package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/devro-ai/devro/internal/billing"
	"github.com/devro-ai/devro/internal/ledger"
	"github.com/devro-ai/devro/internal/metrics"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
)

// WebhookHandler handles incoming webhook events from Stripe.
type WebhookHandler struct {
	billing billing.Service
	ledger  ledger.Service
	logger  *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
// billingService may be nil when Stripe is not configured.
func NewWebhookHandler(billingService billing.Service, ledgerSvc ledger.Service, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		billing: billingService,
		ledger:  ledgerSvc,
		logger:  logger,
	}
}

// HandleStripeWebhook processes incoming Stripe webhook events.
func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.billing == nil {
		h.logger.Warn("stripe webhook received but billing is not configured")
		w.WriteHeader(http.StatusOK)
		return
	}

	// Read body (limit to 64KB)
	body, err := io.ReadAll(io.LimitReader(r.Body, 65536))
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	event, err := h.billing.VerifyWebhookSignature(body, signature)
	if err != nil {
		h.logger.Warn("webhook signature verification failed", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	h.logger.Info("stripe webhook received", "type", event.Type, "id", event.ID)

	switch event.Type {
	case "checkout.session.completed":
		h.handleCheckoutCompleted(event)
	default:
		h.logger.Debug("unhandled webhook event type", "type", event.Type)
	}

	// Always 200 after verification: Stripe retries non-2xx responses, and a
	// malformed-but-authentic event will not get better on retry.
	w.WriteHeader(http.StatusOK)
}

// handleCheckoutCompleted applies the PRO upgrade for a paid checkout. The
// account is identified by the client reference ID set when the session was
// created.
func (h *WebhookHandler) handleCheckoutCompleted(event stripe.Event) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		h.logger.Error("failed to parse checkout session", "error", err)
		return
	}

	if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		h.logger.Warn("checkout completed without payment",
			"session_id", session.ID, "payment_status", session.PaymentStatus)
		return
	}

	accountID, err := uuid.Parse(session.ClientReferenceID)
	if err != nil {
		h.logger.Error("checkout session carries no usable account reference",
			"session_id", session.ID, "client_reference_id", session.ClientReferenceID)
		return
	}

	// Webhooks are async events with no user request context.
	if err := h.ledger.ApplyUpgrade(context.Background(), accountID, "stripe"); err != nil {
		h.logger.Error("failed to apply upgrade", "error", err, "account_id", accountID)
		return
	}

	metrics.UpgradeApplied()
	h.logger.Info("pro upgrade applied", "account_id", accountID, "session_id", session.ID)
}
