// Package domain contains core business types and interfaces.
//
// This file defines the Account domain type: the per-user record the credit
// ledger operates on. The account embeds the usage window (daily/monthly
// remaining allowances) and the optional paid subscription block.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Tier represents the account's entitlement class.
type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
)

// Valid checks if the tier is a known value.
func (t Tier) Valid() bool {
	return t == TierFree || t == TierPro
}

// SubscriptionStatus represents the possible states of a paid subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusActive  SubscriptionStatus = "active"
	SubscriptionStatusExpired SubscriptionStatus = "expired"
)

// Subscription is the paid-tier block on an account. It is present only when
// the account has ever been PRO; a FREE account that never upgraded has none.
type Subscription struct {
	Provider    string
	Status      SubscriptionStatus
	ActivatedAt time.Time
	ExpiresAt   time.Time
}

// ExpiredBy reports whether the subscription has lapsed as of now.
func (s *Subscription) ExpiredBy(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// UsageWindow tracks consumable generation units over recurring time windows.
//
// DailyRemaining and MonthlyRemaining never go negative. LifetimeTotal only
// increases, and only as a direct result of a successful consumption — a
// window reset never touches it.
type UsageWindow struct {
	DailyRemaining   int
	DailyResetAt     time.Time
	MonthlyRemaining int
	MonthlyResetAt   time.Time
	LifetimeTotal    int64
}

// Account represents a registered user of the DevRo platform.
//
// This is the domain representation, designed for use in business logic. The
// ledger only ever mutates Tier, Subscription and Usage; profile metadata
// (DisplayName, Email, GenderTag) belongs to the user and is written through
// separate, disjoint update paths.
type Account struct {
	ID           uuid.UUID
	DisplayName  string
	Email        string
	PasswordHash string // Never expose this in API responses
	GenderTag    string
	Tier         Tier
	Subscription *Subscription
	Usage        UsageWindow
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsPro returns true if the account currently holds the paid tier.
func (a *Account) IsPro() bool {
	return a.Tier == TierPro
}

// HasActiveSubscription returns true if a subscription block exists and has
// not expired as of now.
func (a *Account) HasActiveSubscription(now time.Time) bool {
	return a.Subscription != nil &&
		a.Subscription.Status == SubscriptionStatusActive &&
		!a.Subscription.ExpiredBy(now)
}

// Session represents an authenticated session.
//
// Sessions are stored with a hashed token; the raw token is only given to the
// client once, at login.
type Session struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	TokenHash string // SHA-256 hash of the session token
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired returns true if the session has expired.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// RegisterParams contains the validated parameters for account registration.
type RegisterParams struct {
	Email       string
	Password    string // Raw password, hashed by the service
	DisplayName string
	GenderTag   string // Optional
}

// LoginResult contains the result of a successful login.
type LoginResult struct {
	Account *Account
	Token   string // Raw session token (not hashed) - only returned once
}
