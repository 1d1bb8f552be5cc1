// Package billing provides the Stripe integration for the PRO upgrade.
//
// The product sells a single one-time purchase: 30 days of PRO. Checkout runs
// in payment mode with the account ID carried as the client reference, and
// the upgrade is applied only when the signature-verified
// checkout.session.completed webhook arrives. The client-side success
// redirect is never trusted.
package billing

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/webhook"
)

// Service defines the interface for billing operations.
type Service interface {
	// CreateCheckoutSession creates a Stripe Checkout session for the PRO
	// purchase. Returns the checkout URL to redirect the user to.
	CreateCheckoutSession(accountID uuid.UUID, email, successURL, cancelURL string) (string, error)

	// VerifyWebhookSignature verifies the Stripe webhook signature and
	// returns the event.
	VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error)
}

// Config holds the Stripe keys and the PRO price.
type Config struct {
	SecretKey     string
	WebhookSecret string
	ProPriceID    string
}

// stripeService is the concrete implementation of Service.
type stripeService struct {
	webhookSecret string
	proPriceID    string
}

// NewStripeService creates a new Stripe billing service.
func NewStripeService(cfg Config) Service {
	stripe.Key = cfg.SecretKey
	return &stripeService{
		webhookSecret: cfg.WebhookSecret,
		proPriceID:    cfg.ProPriceID,
	}
}

func (s *stripeService) CreateCheckoutSession(accountID uuid.UUID, email, successURL, cancelURL string) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(s.proPriceID),
				Quantity: stripe.Int64(1),
			},
		},
		// The webhook maps the completed session back to the account through
		// this reference.
		ClientReferenceID: stripe.String(accountID.String()),
		CustomerEmail:     stripe.String(email),
		SuccessURL:        stripe.String(successURL),
		CancelURL:         stripe.String(cancelURL),
	}
	sess, err := checkoutsession.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create checkout session: %w", err)
	}
	return sess.URL, nil
}

func (s *stripeService) VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error) {
	event, err := webhook.ConstructEvent(payload, signature, s.webhookSecret)
	if err != nil {
		return stripe.Event{}, fmt.Errorf("stripe webhook signature verification failed: %w", err)
	}
	return event, nil
}
