package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesura-app/mesura/internal/domain"
)

func TestApply_CheckoutCompleted(t *testing.T) {
	cur := Subscription{
		Status: domain.SubscriptionStatusTrialing,
		Tier:   domain.SubscriptionTierFree,
	}
	end := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	ev := Event{
		Provider:       ProviderStripe,
		Kind:           EventCheckoutCompleted,
		CustomerID:     "cus_123",
		SubscriptionID: "sub_abc",
		Tier:           domain.SubscriptionTierPro,
		PeriodEnd:      &end,
	}

	next, ok := Apply(cur, ev)
	require.True(t, ok)
	assert.Equal(t, domain.SubscriptionStatusActive, next.Status)
	assert.Equal(t, domain.SubscriptionTierPro, next.Tier)
	assert.Equal(t, "cus_123", next.CustomerID)
	assert.Equal(t, "sub_abc", next.SubscriptionID)
	assert.Equal(t, &end, next.PeriodEnd)
}

func TestApply_IsIdempotent(t *testing.T) {
	end := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	events := []Event{
		{Kind: EventCheckoutCompleted, CustomerID: "cus_1", SubscriptionID: "sub_1", Tier: domain.SubscriptionTierStart, PeriodEnd: &end},
		{Kind: EventPaymentSucceeded, CustomerID: "cus_1"},
		{Kind: EventPaymentFailed, CustomerID: "cus_1"},
		{Kind: EventSubscriptionDeleted, SubscriptionID: "sub_1"},
		{Kind: EventProviderPayment, SubscriptionID: "paystack_tx1", Tier: domain.SubscriptionTierStart, PeriodEnd: &end},
	}

	for _, ev := range events {
		t.Run(string(ev.Kind), func(t *testing.T) {
			cur := Subscription{
				Status:         domain.SubscriptionStatusActive,
				Tier:           domain.SubscriptionTierStart,
				CustomerID:     "cus_1",
				SubscriptionID: "sub_1",
			}
			once, _ := Apply(cur, ev)
			twice, _ := Apply(once, ev)
			assert.Equal(t, once, twice, "second application must not change state")
		})
	}
}

func TestApply_PaymentSucceededRecoversPastDue(t *testing.T) {
	cur := Subscription{
		Status:         domain.SubscriptionStatusPastDue,
		Tier:           domain.SubscriptionTierPro,
		CustomerID:     "cus_9",
		SubscriptionID: "sub_9",
	}

	next, ok := Apply(cur, Event{Kind: EventPaymentSucceeded, CustomerID: "cus_9"})
	require.True(t, ok)
	assert.Equal(t, domain.SubscriptionStatusActive, next.Status)
	// Tier and refs untouched by a recurring payment
	assert.Equal(t, domain.SubscriptionTierPro, next.Tier)
	assert.Equal(t, "sub_9", next.SubscriptionID)
}

func TestApply_PaymentFailedKeepsTier(t *testing.T) {
	cur := Subscription{
		Status:         domain.SubscriptionStatusActive,
		Tier:           domain.SubscriptionTierPro,
		SubscriptionID: "sub_9",
	}

	next, ok := Apply(cur, Event{Kind: EventPaymentFailed, CustomerID: "cus_9"})
	require.True(t, ok)
	assert.Equal(t, domain.SubscriptionStatusPastDue, next.Status)
	assert.Equal(t, domain.SubscriptionTierPro, next.Tier)

	// The effective tier is what collapses to free, not the stored tier.
	a := &domain.Account{SubscriptionStatus: next.Status, SubscriptionTier: next.Tier}
	assert.Equal(t, domain.SubscriptionTierFree, a.EffectiveTier())
}

func TestApply_SubscriptionDeleted(t *testing.T) {
	cur := Subscription{
		Status:         domain.SubscriptionStatusActive,
		Tier:           domain.SubscriptionTierStart,
		CustomerID:     "cus_2",
		SubscriptionID: "sub_r",
	}

	next, ok := Apply(cur, Event{Kind: EventSubscriptionDeleted, SubscriptionID: "sub_r"})
	require.True(t, ok)
	assert.Equal(t, domain.SubscriptionStatusCanceled, next.Status)
	assert.Equal(t, domain.SubscriptionTierFree, next.Tier)
	assert.Empty(t, next.SubscriptionID)
	// Customer ref survives so a fresh checkout can reuse the customer.
	assert.Equal(t, "cus_2", next.CustomerID)
}

func TestApply_StaleCycleDeletionIsDiscarded(t *testing.T) {
	// A new checkout already started cycle sub_new; the delayed deletion of
	// sub_old must not cancel it.
	cur := Subscription{
		Status:         domain.SubscriptionStatusActive,
		Tier:           domain.SubscriptionTierPro,
		SubscriptionID: "sub_new",
	}

	next, ok := Apply(cur, Event{Kind: EventSubscriptionDeleted, SubscriptionID: "sub_old"})
	assert.False(t, ok)
	assert.Equal(t, cur, next)
}

func TestApply_ProviderPayment(t *testing.T) {
	end := time.Now().Add(30 * 24 * time.Hour).Truncate(time.Second)
	cur := Subscription{Status: domain.SubscriptionStatusNone, Tier: domain.SubscriptionTierFree}

	ev := Event{
		Provider:       ProviderPaystack,
		Kind:           EventProviderPayment,
		ID:             "tx1",
		SubscriptionID: "paystack_tx1",
		Tier:           domain.SubscriptionTierStart,
		PeriodEnd:      &end,
	}

	next, ok := Apply(cur, ev)
	require.True(t, ok)
	assert.Equal(t, domain.SubscriptionStatusActive, next.Status)
	assert.Equal(t, domain.SubscriptionTierStart, next.Tier)
	assert.Equal(t, "paystack_tx1", next.SubscriptionID)
	assert.Equal(t, &end, next.PeriodEnd)

	// Redelivery of the identical transaction is discarded outright.
	again, ok := Apply(next, ev)
	assert.False(t, ok)
	assert.Equal(t, next, again)
}

func TestApply_ProviderPaymentRedeliveryKeepsPeriodEnd(t *testing.T) {
	// The adapter stamps PeriodEnd from its own clock, so a provider
	// retry carries a slightly later window than the first delivery.
	// The transaction-ref guard has to keep the first window.
	firstEnd := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	retryEnd := firstEnd.Add(45 * time.Second)

	cur := Subscription{Status: domain.SubscriptionStatusTrialing, Tier: domain.SubscriptionTierFree}

	first := Event{Kind: EventProviderPayment, SubscriptionID: "paystack_tx9", Tier: domain.SubscriptionTierStart, PeriodEnd: &firstEnd}
	retry := Event{Kind: EventProviderPayment, SubscriptionID: "paystack_tx9", Tier: domain.SubscriptionTierStart, PeriodEnd: &retryEnd}

	next, ok := Apply(cur, first)
	require.True(t, ok)
	require.Equal(t, &firstEnd, next.PeriodEnd)

	after, ok := Apply(next, retry)
	assert.False(t, ok)
	assert.Equal(t, next, after)
	assert.Equal(t, firstEnd, *after.PeriodEnd)

	// A later distinct transaction still rolls the window forward.
	renewEnd := firstEnd.Add(30 * 24 * time.Hour)
	renewal := Event{Kind: EventProviderPayment, SubscriptionID: "paystack_tx10", Tier: domain.SubscriptionTierStart, PeriodEnd: &renewEnd}
	renewed, ok := Apply(after, renewal)
	require.True(t, ok)
	assert.Equal(t, "paystack_tx10", renewed.SubscriptionID)
	assert.Equal(t, &renewEnd, renewed.PeriodEnd)
}

func TestApply_UnknownKindIsNoOp(t *testing.T) {
	cur := Subscription{Status: domain.SubscriptionStatusActive, Tier: domain.SubscriptionTierPro}
	next, ok := Apply(cur, Event{Kind: EventKind("invoice.finalized")})
	assert.False(t, ok)
	assert.Equal(t, cur, next)
}
