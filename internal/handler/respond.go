// Package handler contains the HTTP handlers for the DevRo API.
//
// All endpoints speak JSON. Handlers decode and validate input, call the
// service layer, and translate domain errors into HTTP responses via
// ErrorResponse. Business rules live in the services, not here.
package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/devro-ai/devro/internal/domain"
)

// maxRequestBody caps JSON request bodies at 64KB. The largest legitimate
// payload is a generation prompt, which is capped far below this.
const maxRequestBody = 64 * 1024

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads the request body into dst. Returns a domain EINVALID
// error on malformed input so callers can pass it straight to ErrorResponse.
func decodeJSON(r *http.Request, dst any) error {
	body := io.LimitReader(r.Body, maxRequestBody)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.Wrap(err, domain.EINVALID, "", "Request body must be valid JSON")
	}
	return nil
}

// =============================================================================
// Shared response payloads
// =============================================================================

// AccountPayload is the JSON representation of an account with its current
// entitlement. The password hash never appears here.
type AccountPayload struct {
	ID           string               `json:"id"`
	Name         string               `json:"name"`
	Email        string               `json:"email"`
	GenderTag    string               `json:"gender_tag,omitempty"`
	Tier         string               `json:"tier"`
	Subscription *SubscriptionPayload `json:"subscription,omitempty"`
	Usage        UsagePayload         `json:"usage"`
	CreatedAt    time.Time            `json:"created_at"`
}

// SubscriptionPayload describes the paid block on a PRO account.
type SubscriptionPayload struct {
	Provider    string    `json:"provider"`
	Status      string    `json:"status"`
	ActivatedAt time.Time `json:"activated_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// UsagePayload describes the remaining generation allowance. Unlimited
// accounts report their nominal counters; clients should key off the flag.
type UsagePayload struct {
	DailyRemaining   int       `json:"daily_remaining"`
	DailyResetAt     time.Time `json:"daily_reset_at"`
	MonthlyRemaining int       `json:"monthly_remaining"`
	MonthlyResetAt   time.Time `json:"monthly_reset_at"`
	LifetimeTotal    int64     `json:"lifetime_total"`
	Unlimited        bool      `json:"unlimited"`
}

// accountPayload builds the JSON view of an account under the given policy.
func accountPayload(account *domain.Account, policy domain.Policy) AccountPayload {
	p := AccountPayload{
		ID:        account.ID.String(),
		Name:      account.DisplayName,
		Email:     account.Email,
		GenderTag: account.GenderTag,
		Tier:      string(account.Tier),
		Usage:     usagePayload(account, policy),
		CreatedAt: account.CreatedAt,
	}
	if account.Subscription != nil {
		p.Subscription = &SubscriptionPayload{
			Provider:    account.Subscription.Provider,
			Status:      string(account.Subscription.Status),
			ActivatedAt: account.Subscription.ActivatedAt,
			ExpiresAt:   account.Subscription.ExpiresAt,
		}
	}
	return p
}

func usagePayload(account *domain.Account, policy domain.Policy) UsagePayload {
	return UsagePayload{
		DailyRemaining:   account.Usage.DailyRemaining,
		DailyResetAt:     account.Usage.DailyResetAt,
		MonthlyRemaining: account.Usage.MonthlyRemaining,
		MonthlyResetAt:   account.Usage.MonthlyResetAt,
		LifetimeTotal:    account.Usage.LifetimeTotal,
		Unlimited:        !policy.LimitsFor(account.Tier).Enforced(),
	}
}

// ProjectPayload is the JSON representation of a generated project.
type ProjectPayload struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Kind      string    `json:"kind"`
	Prompt    string    `json:"prompt"`
	SizeBytes int64     `json:"size_bytes"`
	FileCount int       `json:"file_count"`
	CreatedAt time.Time `json:"created_at"`
}

func projectPayload(p *domain.Project) ProjectPayload {
	return ProjectPayload{
		ID:        p.ID.String(),
		Title:     p.Title,
		Kind:      string(p.Kind),
		Prompt:    p.Prompt,
		SizeBytes: p.SizeBytes,
		FileCount: p.FileCount,
		CreatedAt: p.CreatedAt,
	}
}
