package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAccount_EffectiveTier(t *testing.T) {
	tests := []struct {
		name   string
		status SubscriptionStatus
		tier   SubscriptionTier
		want   SubscriptionTier
	}{
		// Entitled statuses honor the stored tier
		{"active pro", SubscriptionStatusActive, SubscriptionTierPro, SubscriptionTierPro},
		{"active start", SubscriptionStatusActive, SubscriptionTierStart, SubscriptionTierStart},
		{"trialing start", SubscriptionStatusTrialing, SubscriptionTierStart, SubscriptionTierStart},
		{"trialing free", SubscriptionStatusTrialing, SubscriptionTierFree, SubscriptionTierFree},

		// Any other status collapses to free regardless of stored tier
		{"none pro", SubscriptionStatusNone, SubscriptionTierPro, SubscriptionTierFree},
		{"past_due pro", SubscriptionStatusPastDue, SubscriptionTierPro, SubscriptionTierFree},
		{"past_due start", SubscriptionStatusPastDue, SubscriptionTierStart, SubscriptionTierFree},
		{"canceled pro", SubscriptionStatusCanceled, SubscriptionTierPro, SubscriptionTierFree},
		{"canceled start", SubscriptionStatusCanceled, SubscriptionTierStart, SubscriptionTierFree},

		// Unrecognized values collapse to free even when entitled
		{"active unknown tier", SubscriptionStatusActive, SubscriptionTier("premium_plus"), SubscriptionTierFree},
		{"active empty tier", SubscriptionStatusActive, SubscriptionTier(""), SubscriptionTierFree},
		{"unknown status pro", SubscriptionStatus("paused"), SubscriptionTierPro, SubscriptionTierFree},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &Account{SubscriptionStatus: tt.status, SubscriptionTier: tt.tier}
			assert.Equal(t, tt.want, a.EffectiveTier())
		})
	}
}

func TestAccount_IsEntitled(t *testing.T) {
	entitled := []SubscriptionStatus{SubscriptionStatusTrialing, SubscriptionStatusActive}
	denied := []SubscriptionStatus{SubscriptionStatusNone, SubscriptionStatusPastDue, SubscriptionStatusCanceled, ""}

	for _, s := range entitled {
		a := &Account{SubscriptionStatus: s}
		assert.True(t, a.IsEntitled(), "status %q should be entitled", s)
	}
	for _, s := range denied {
		a := &Account{SubscriptionStatus: s}
		assert.False(t, a.IsEntitled(), "status %q should not be entitled", s)
	}
}

func TestAccount_TrialDaysLeft(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		createdAt time.Time
		want      int
	}{
		{"brand new account", now, 60},
		{"half a day in counts as one", now.Add(-12 * time.Hour), 59},
		{"exactly one day", now.AddDate(0, 0, -1), 59},
		{"fifty-nine days", now.AddDate(0, 0, -59), 1},
		{"sixty days, trial over", now.AddDate(0, 0, -60), 0},
		{"sixty-one days, negative", now.AddDate(0, 0, -61), -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &Account{CreatedAt: tt.createdAt}
			assert.Equal(t, tt.want, a.TrialDaysLeft(now))
		})
	}
}

func TestAccount_TrialCountdownDoesNotAffectEntitlement(t *testing.T) {
	// An expired countdown on a still-trialing account must not flip the
	// entitlement decision; only a status change revokes access.
	now := time.Now()
	a := &Account{
		SubscriptionStatus: SubscriptionStatusTrialing,
		SubscriptionTier:   SubscriptionTierStart,
		CreatedAt:          now.AddDate(0, 0, -61),
	}

	assert.LessOrEqual(t, a.TrialDaysLeft(now), 0)
	assert.True(t, a.IsEntitled())
	assert.Equal(t, SubscriptionTierStart, a.EffectiveTier())
}

func TestAccount_ShowTrialCountdown(t *testing.T) {
	assert.True(t, (&Account{SubscriptionStatus: SubscriptionStatusTrialing}).ShowTrialCountdown())
	assert.True(t, (&Account{SubscriptionStatus: SubscriptionStatusNone}).ShowTrialCountdown())
	assert.True(t, (&Account{SubscriptionStatus: SubscriptionStatusCanceled}).ShowTrialCountdown())
	assert.False(t, (&Account{SubscriptionStatus: SubscriptionStatusActive}).ShowTrialCountdown())
	assert.False(t, (&Account{SubscriptionStatus: SubscriptionStatusPastDue}).ShowTrialCountdown())
}
