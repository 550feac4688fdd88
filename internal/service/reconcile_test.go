package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesura-app/mesura/internal/billing"
	"github.com/mesura-app/mesura/internal/domain"
	"github.com/mesura-app/mesura/internal/repository"
)

// mockReconcileStore holds a single account and records mutations.
type mockReconcileStore struct {
	account   repository.Account
	hasRow    bool
	updates   []repository.UpdateAccountSubscriptionParams
	audits    []repository.InsertWebhookEventParams
	updateErr error
}

func (m *mockReconcileStore) GetAccountByID(_ context.Context, id uuid.UUID) (repository.Account, error) {
	if m.hasRow && m.account.ID == id {
		return m.account, nil
	}
	return repository.Account{}, sql.ErrNoRows
}

func (m *mockReconcileStore) GetAccountByStripeCustomerID(_ context.Context, customerID sql.NullString) (repository.Account, error) {
	if m.hasRow && m.account.StripeCustomerID.Valid && m.account.StripeCustomerID == customerID {
		return m.account, nil
	}
	return repository.Account{}, sql.ErrNoRows
}

func (m *mockReconcileStore) GetAccountBySubscriptionRef(_ context.Context, ref sql.NullString) (repository.Account, error) {
	if m.hasRow && m.account.StripeSubscriptionID.Valid && m.account.StripeSubscriptionID == ref {
		return m.account, nil
	}
	return repository.Account{}, sql.ErrNoRows
}

func (m *mockReconcileStore) UpdateAccountSubscription(_ context.Context, arg repository.UpdateAccountSubscriptionParams) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.updates = append(m.updates, arg)
	// Mirror the persisted state so redeliveries see the new row,
	// including the COALESCE on the customer ref.
	m.account.SubscriptionStatus = arg.SubscriptionStatus
	m.account.SubscriptionTier = arg.SubscriptionTier
	if arg.StripeCustomerID.Valid {
		m.account.StripeCustomerID = arg.StripeCustomerID
	}
	m.account.StripeSubscriptionID = arg.StripeSubscriptionID
	m.account.CurrentPeriodEnd = arg.CurrentPeriodEnd
	return nil
}

func (m *mockReconcileStore) InsertWebhookEvent(_ context.Context, arg repository.InsertWebhookEventParams) (repository.WebhookEvent, error) {
	m.audits = append(m.audits, arg)
	return repository.WebhookEvent{ID: uuid.New()}, nil
}

func newTrialingStore() (*mockReconcileStore, uuid.UUID) {
	accountID := uuid.New()
	return &mockReconcileStore{
		hasRow: true,
		account: repository.Account{
			ID:                 accountID,
			Email:              "tailor@example.com",
			SubscriptionStatus: "trialing",
			SubscriptionTier:   "free",
			CreatedAt:          time.Now().Add(-10 * 24 * time.Hour),
		},
	}, accountID
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestReconcileCheckoutCompleted(t *testing.T) {
	store, accountID := newTrialingStore()
	svc := NewReconcileService(store, nil, testLogger())

	periodEnd := time.Now().Add(30 * 24 * time.Hour)
	ev := billing.Event{
		Provider:       billing.ProviderStripe,
		Kind:           billing.EventCheckoutCompleted,
		ID:             "evt_1",
		AccountID:      accountID,
		CustomerID:     "cus_123",
		SubscriptionID: "sub_123",
		Tier:           domain.SubscriptionTierPro,
		PeriodEnd:      &periodEnd,
	}

	err := svc.Process(context.Background(), ev, []byte(`{"id":"evt_1"}`))
	require.NoError(t, err)

	require.Len(t, store.updates, 1)
	update := store.updates[0]
	assert.Equal(t, accountID, update.ID)
	assert.Equal(t, "active", update.SubscriptionStatus)
	assert.Equal(t, "pro", update.SubscriptionTier)
	assert.Equal(t, "cus_123", update.StripeCustomerID.String)
	assert.Equal(t, "sub_123", update.StripeSubscriptionID.String)

	require.Len(t, store.audits, 1)
	assert.Equal(t, OutcomeApplied, store.audits[0].Outcome)
	assert.Equal(t, "stripe", store.audits[0].Provider)
	require.True(t, store.audits[0].AccountID.Valid)
	assert.Equal(t, accountID, store.audits[0].AccountID.UUID)
}

func TestReconcileRedeliveryIsIdempotent(t *testing.T) {
	store, accountID := newTrialingStore()
	svc := NewReconcileService(store, nil, testLogger())

	ev := billing.Event{
		Provider:       billing.ProviderStripe,
		Kind:           billing.EventCheckoutCompleted,
		ID:             "evt_1",
		AccountID:      accountID,
		CustomerID:     "cus_123",
		SubscriptionID: "sub_123",
		Tier:           domain.SubscriptionTierStart,
	}

	require.NoError(t, svc.Process(context.Background(), ev, nil))
	require.NoError(t, svc.Process(context.Background(), ev, nil))

	assert.Equal(t, "active", store.account.SubscriptionStatus)
	assert.Equal(t, "start", store.account.SubscriptionTier)
	assert.Equal(t, "sub_123", store.account.StripeSubscriptionID.String)
}

func TestReconcileCorrelatesByCustomerRef(t *testing.T) {
	store, _ := newTrialingStore()
	store.account.SubscriptionStatus = "active"
	store.account.SubscriptionTier = "start"
	store.account.StripeCustomerID = sql.NullString{String: "cus_123", Valid: true}
	store.account.StripeSubscriptionID = sql.NullString{String: "sub_123", Valid: true}
	svc := NewReconcileService(store, nil, testLogger())

	ev := billing.Event{
		Provider:   billing.ProviderStripe,
		Kind:       billing.EventPaymentFailed,
		ID:         "evt_2",
		CustomerID: "cus_123",
	}

	require.NoError(t, svc.Process(context.Background(), ev, nil))

	require.Len(t, store.updates, 1)
	assert.Equal(t, "past_due", store.updates[0].SubscriptionStatus)
	// Payment failure keeps the stored tier; entitlement collapse happens
	// at read time via EffectiveTier.
	assert.Equal(t, "start", store.updates[0].SubscriptionTier)
}

func TestReconcileStaleCycleDeletionDiscarded(t *testing.T) {
	store, _ := newTrialingStore()
	store.account.SubscriptionStatus = "active"
	store.account.SubscriptionTier = "pro"
	store.account.StripeCustomerID = sql.NullString{String: "cus_123", Valid: true}
	store.account.StripeSubscriptionID = sql.NullString{String: "sub_new", Valid: true}
	svc := NewReconcileService(store, nil, testLogger())

	// Deletion for a superseded cycle arrives after the new checkout
	ev := billing.Event{
		Provider:       billing.ProviderStripe,
		Kind:           billing.EventSubscriptionDeleted,
		ID:             "evt_3",
		CustomerID:     "cus_123",
		SubscriptionID: "sub_old",
	}

	require.NoError(t, svc.Process(context.Background(), ev, nil))

	assert.Empty(t, store.updates, "stale deletion must not be persisted")
	require.Len(t, store.audits, 1)
	assert.Equal(t, OutcomeNoop, store.audits[0].Outcome)
	assert.Equal(t, "active", store.account.SubscriptionStatus)
	assert.Equal(t, "pro", store.account.SubscriptionTier)
}

func TestReconcileDeletionKeepsCustomerRef(t *testing.T) {
	store, _ := newTrialingStore()
	store.account.SubscriptionStatus = "active"
	store.account.SubscriptionTier = "pro"
	store.account.StripeCustomerID = sql.NullString{String: "cus_123", Valid: true}
	store.account.StripeSubscriptionID = sql.NullString{String: "sub_123", Valid: true}
	svc := NewReconcileService(store, nil, testLogger())

	ev := billing.Event{
		Provider:       billing.ProviderStripe,
		Kind:           billing.EventSubscriptionDeleted,
		ID:             "evt_4",
		CustomerID:     "cus_123",
		SubscriptionID: "sub_123",
	}

	require.NoError(t, svc.Process(context.Background(), ev, nil))

	assert.Equal(t, "canceled", store.account.SubscriptionStatus)
	assert.Equal(t, "free", store.account.SubscriptionTier)
	assert.False(t, store.account.StripeSubscriptionID.Valid, "subscription ref must be cleared")
	// The customer ref survives for future checkouts
	assert.Equal(t, "cus_123", store.account.StripeCustomerID.String)
}

func TestReconcileUnmatchedEventAcknowledged(t *testing.T) {
	store := &mockReconcileStore{}
	svc := NewReconcileService(store, nil, testLogger())

	ev := billing.Event{
		Provider:   billing.ProviderStripe,
		Kind:       billing.EventPaymentSucceeded,
		ID:         "evt_5",
		CustomerID: "cus_unknown",
	}

	// No matching account is not an error: the delivery is recorded and
	// acknowledged so the provider stops retrying.
	require.NoError(t, svc.Process(context.Background(), ev, nil))

	assert.Empty(t, store.updates)
	require.Len(t, store.audits, 1)
	assert.Equal(t, OutcomeUnmatched, store.audits[0].Outcome)
	assert.False(t, store.audits[0].AccountID.Valid)
}

func TestReconcilePersistenceFailureReturnsError(t *testing.T) {
	store, accountID := newTrialingStore()
	store.updateErr = errors.New("connection reset")
	svc := NewReconcileService(store, nil, testLogger())

	ev := billing.Event{
		Provider:       billing.ProviderStripe,
		Kind:           billing.EventCheckoutCompleted,
		ID:             "evt_6",
		AccountID:      accountID,
		SubscriptionID: "sub_123",
		Tier:           domain.SubscriptionTierStart,
	}

	err := svc.Process(context.Background(), ev, nil)
	require.Error(t, err)
	assert.Equal(t, domain.EINTERNAL, domain.ErrorCode(err))
}

func TestReconcileProviderPayment(t *testing.T) {
	store, accountID := newTrialingStore()
	svc := NewReconcileService(store, nil, testLogger())

	periodEnd := time.Now().Add(30 * 24 * time.Hour)
	ev := billing.Event{
		Provider:       billing.ProviderPaystack,
		Kind:           billing.EventProviderPayment,
		ID:             "ref_42",
		AccountID:      accountID,
		SubscriptionID: "paystack_ref_42",
		Tier:           domain.SubscriptionTierStart,
		PeriodEnd:      &periodEnd,
	}

	require.NoError(t, svc.Process(context.Background(), ev, nil))

	require.Len(t, store.updates, 1)
	assert.Equal(t, "active", store.updates[0].SubscriptionStatus)
	assert.Equal(t, "start", store.updates[0].SubscriptionTier)
	assert.Equal(t, "paystack_ref_42", store.updates[0].StripeSubscriptionID.String)
	require.True(t, store.updates[0].CurrentPeriodEnd.Valid)
}

func TestReconcileProviderPaymentRedeliveryDoesNotExtendWindow(t *testing.T) {
	store, accountID := newTrialingStore()
	svc := NewReconcileService(store, nil, testLogger())

	firstEnd := time.Date(2025, 8, 15, 9, 0, 0, 0, time.UTC)
	ev := billing.Event{
		Provider:       billing.ProviderPaystack,
		Kind:           billing.EventProviderPayment,
		ID:             "ref_77",
		AccountID:      accountID,
		SubscriptionID: "paystack_ref_77",
		Tier:           domain.SubscriptionTierStart,
		PeriodEnd:      &firstEnd,
	}
	require.NoError(t, svc.Process(context.Background(), ev, nil))

	// The adapter stamps PeriodEnd from its own clock, so the provider's
	// retry of the same transaction carries a later window. It must not
	// be persisted.
	retryEnd := firstEnd.Add(90 * time.Second)
	retry := ev
	retry.PeriodEnd = &retryEnd
	require.NoError(t, svc.Process(context.Background(), retry, nil))

	require.Len(t, store.updates, 1)
	assert.True(t, firstEnd.Equal(store.updates[0].CurrentPeriodEnd.Time))
}

// mockNotifier records billing mail sends.
type mockNotifier struct {
	failed   int
	canceled int
}

func (m *mockNotifier) SendPaymentFailed(context.Context, *domain.Account) error {
	m.failed++
	return nil
}

func (m *mockNotifier) SendSubscriptionCanceled(context.Context, *domain.Account) error {
	m.canceled++
	return nil
}

func TestReconcileNotifiesOnPaymentFailure(t *testing.T) {
	store, _ := newTrialingStore()
	store.account.SubscriptionStatus = "active"
	store.account.SubscriptionTier = "start"
	store.account.StripeCustomerID = sql.NullString{String: "cus_123", Valid: true}
	notifier := &mockNotifier{}
	svc := NewReconcileService(store, notifier, testLogger())

	ev := billing.Event{
		Provider:   billing.ProviderStripe,
		Kind:       billing.EventPaymentFailed,
		ID:         "evt_7",
		CustomerID: "cus_123",
	}

	require.NoError(t, svc.Process(context.Background(), ev, nil))
	assert.Equal(t, 1, notifier.failed)
	assert.Equal(t, 0, notifier.canceled)
}
