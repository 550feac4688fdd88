// Package domain contains core business types and interfaces.
//
// This file defines the Account domain type: the tenant entity that owns
// clients, orders, photos, and the subscription state that gates access
// to all of them.
package domain

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus represents the possible states of an account's subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusNone     SubscriptionStatus = "none"
	SubscriptionStatusTrialing SubscriptionStatus = "trialing"
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

// SubscriptionTier represents the pricing tier of a subscription.
type SubscriptionTier string

const (
	SubscriptionTierFree  SubscriptionTier = "free"
	SubscriptionTierStart SubscriptionTier = "start"
	SubscriptionTierPro   SubscriptionTier = "pro"
)

// TrialDays is the length of the free trial granted to every new account,
// measured from created_at.
const TrialDays = 60

// Account represents a registered workshop owner.
//
// This is the domain representation of an account, designed for use in
// business logic. It uses proper Go types instead of sql.Null* types and
// carries the subscription fields that the entitlement and webhook
// subsystems read and write.
type Account struct {
	ID                 uuid.UUID
	Email              string
	PasswordHash       string // Never expose this in responses
	Name               string
	WorkshopName       string
	Phone              string
	StripeCustomerID   string
	SubscriptionStatus SubscriptionStatus
	SubscriptionTier   SubscriptionTier
	SubscriptionID     string
	CurrentPeriodEnd   *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsEntitled returns true if the account's subscription grants access to
// the protected application: an active subscription or a running trial.
// This is the single condition the route-level guard evaluates.
func (a *Account) IsEntitled() bool {
	return a.SubscriptionStatus == SubscriptionStatusActive ||
		a.SubscriptionStatus == SubscriptionStatusTrialing
}

// EffectiveTier returns the plan actually honored right now.
//
// Paid quotas apply only while the subscription is trialing or active;
// any other status collapses to free regardless of the stored tier, so a
// lapsed payment never requires clearing the tier field. Unrecognized
// tier values also collapse to free.
func (a *Account) EffectiveTier() SubscriptionTier {
	if !a.IsEntitled() {
		return SubscriptionTierFree
	}
	switch a.SubscriptionTier {
	case SubscriptionTierStart, SubscriptionTierPro:
		return a.SubscriptionTier
	default:
		return SubscriptionTierFree
	}
}

// TrialDaysLeft computes the remaining trial days at the given instant.
//
// The result may be negative once the trial window has elapsed. This value
// is informational only: expiry of the countdown does not itself revoke
// access. Only a subscription status change (via a webhook or the trial
// sweep job) revokes access; the access guard never consults this value.
func (a *Account) TrialDaysLeft(now time.Time) int {
	elapsed := now.Sub(a.CreatedAt)
	days := int(elapsed / (24 * time.Hour))
	if elapsed%(24*time.Hour) > 0 {
		days++
	}
	return TrialDays - days
}

// ShowTrialCountdown reports whether the UI should display the trial
// countdown: only while the account has not reached a paid state.
func (a *Account) ShowTrialCountdown() bool {
	switch a.SubscriptionStatus {
	case SubscriptionStatusActive, SubscriptionStatusPastDue:
		return false
	default:
		return true
	}
}

// DisplayName returns the account holder's name or email if name is empty.
func (a *Account) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	return a.Email
}

// Session represents an authenticated session.
//
// Sessions are stored in the database with a hashed token. The raw token
// is only given to the client once (at login).
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
	Email        string
	Password     string // Raw password, hashed by the service
	Name         string
	WorkshopName string // Optional
	Phone        string // Optional
}

// LoginResult contains the result of a successful login.
type LoginResult struct {
	Account *Account
	Token   string // Raw session token (not hashed) - only returned once
}

// PasswordChangeParams contains parameters for changing an account password.
type PasswordChangeParams struct {
	AccountID       uuid.UUID
	CurrentPassword string
	NewPassword     string
}

// ProfileUpdateParams contains parameters for updating an account profile.
type ProfileUpdateParams struct {
	AccountID    uuid.UUID
	Name         string
	WorkshopName string
	Phone        string
}

// =============================================================================
// Conversion helpers from repository types
// =============================================================================

// NullStringValue safely extracts a string from sql.NullString.
func NullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// NullTimeValue safely extracts a time pointer from sql.NullTime.
func NullTimeValue(nt sql.NullTime) *time.Time {
	if nt.Valid {
		return &nt.Time
	}
	return nil
}

// ToNullString converts a string to sql.NullString.
func ToNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

// ToNullTime converts a time pointer to sql.NullTime.
func ToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{Valid: false}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// ToNullUUID converts a uuid pointer to uuid.NullUUID.
func ToNullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{Valid: false}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}
