package metrics

import "time"

// GenerationSucceeded records a completed generation.
func GenerationSucceeded(kind string, duration time.Duration, artifactBytes int64, inputTokens, outputTokens int) {
	GenerationsTotal.WithLabelValues(kind, "success").Inc()
	GenerationDuration.WithLabelValues(kind).Observe(duration.Seconds())
	ArtifactBytesTotal.Add(float64(artifactBytes))
	AITokensTotal.WithLabelValues("input").Add(float64(inputTokens))
	AITokensTotal.WithLabelValues("output").Add(float64(outputTokens))
}

// GenerationFailed records a failed generation attempt. status distinguishes
// provider errors from storage errors from quota denials.
func GenerationFailed(kind, status string) {
	GenerationsTotal.WithLabelValues(kind, status).Inc()
}

// QuotaDenied records a consume rejected by an exhausted window.
func QuotaDenied(window string) {
	QuotaDenialsTotal.WithLabelValues(window).Inc()
}

// UpgradeApplied records a PRO upgrade.
func UpgradeApplied() {
	UpgradesTotal.Inc()
}

// SubscriptionExpired records a PRO subscription collapsing to FREE.
func SubscriptionExpired() {
	SubscriptionExpiriesTotal.Inc()
}
