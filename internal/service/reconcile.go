package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"github.com/mesura-app/mesura/internal/billing"
	"github.com/mesura-app/mesura/internal/domain"
	"github.com/mesura-app/mesura/internal/metrics"
	"github.com/mesura-app/mesura/internal/repository"
)

// Reconcile outcomes recorded in the webhook audit trail.
const (
	OutcomeApplied   = "applied"
	OutcomeNoop      = "noop"
	OutcomeUnmatched = "unmatched"
)

// ReconcileStore is the slice of the repository the reconciler needs.
// Narrowed for testability.
type ReconcileStore interface {
	GetAccountByID(ctx context.Context, id uuid.UUID) (repository.Account, error)
	GetAccountByStripeCustomerID(ctx context.Context, customerID sql.NullString) (repository.Account, error)
	GetAccountBySubscriptionRef(ctx context.Context, ref sql.NullString) (repository.Account, error)
	UpdateAccountSubscription(ctx context.Context, arg repository.UpdateAccountSubscriptionParams) error
	InsertWebhookEvent(ctx context.Context, arg repository.InsertWebhookEventParams) (repository.WebhookEvent, error)
}

// BillingNotifier sends account-facing mail for billing state changes.
type BillingNotifier interface {
	SendPaymentFailed(ctx context.Context, account *domain.Account) error
	SendSubscriptionCanceled(ctx context.Context, account *domain.Account) error
}

// ReconcileService applies normalized billing events to account state.
//
// Both webhook endpoints feed into Process after signature verification
// and payload normalization; nothing provider-specific survives past the
// adapters. Process is safe to call with redelivered or reordered
// events: the transition core is idempotent and the cycle-ref guard
// discards deletions for superseded cycles.
type ReconcileService interface {
	// Process correlates the event to an account, applies the state
	// transition, persists the result, and records the delivery in the
	// audit trail.
	//
	// An event that matches no account is recorded as unmatched and
	// returns nil: the provider delivered it correctly, we just have
	// nothing to apply it to. An error return means persistence failed
	// and the provider should redeliver.
	Process(ctx context.Context, ev billing.Event, rawPayload []byte) error
}

type reconcileService struct {
	store    ReconcileStore
	notifier BillingNotifier // optional, may be nil
	logger   *slog.Logger
}

// NewReconcileService creates a ReconcileService. notifier may be nil to
// disable billing mail.
func NewReconcileService(store ReconcileStore, notifier BillingNotifier, logger *slog.Logger) ReconcileService {
	return &reconcileService{
		store:    store,
		notifier: notifier,
		logger:   logger,
	}
}

func (s *reconcileService) Process(ctx context.Context, ev billing.Event, rawPayload []byte) error {
	const op = "ReconcileService.Process"

	logger := s.logger.With("provider", ev.Provider, "kind", ev.Kind, "event_id", ev.ID)

	account, err := s.findAccount(ctx, ev)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// No account to apply the event to. Record and acknowledge so
			// the provider stops redelivering.
			logger.Warn("webhook event matched no account")
			s.audit(ctx, ev, rawPayload, uuid.NullUUID{}, OutcomeUnmatched)
			metrics.WebhookEventsTotal.WithLabelValues(string(ev.Provider), string(ev.Kind), OutcomeUnmatched).Inc()
			return nil
		}
		return domain.Internal(err, op, "Failed to look up account for event")
	}

	logger = logger.With("account_id", account.ID)

	cur := billing.Subscription{
		Status:         domain.SubscriptionStatus(account.SubscriptionStatus),
		Tier:           domain.SubscriptionTier(account.SubscriptionTier),
		CustomerID:     domain.NullStringValue(account.StripeCustomerID),
		SubscriptionID: domain.NullStringValue(account.StripeSubscriptionID),
		PeriodEnd:      domain.NullTimeValue(account.CurrentPeriodEnd),
	}

	next, changed := billing.Apply(cur, ev)
	if !changed {
		logger.Info("webhook event produced no state change")
		s.audit(ctx, ev, rawPayload, uuid.NullUUID{UUID: account.ID, Valid: true}, OutcomeNoop)
		metrics.WebhookEventsTotal.WithLabelValues(string(ev.Provider), string(ev.Kind), OutcomeNoop).Inc()
		return nil
	}

	err = s.store.UpdateAccountSubscription(ctx, repository.UpdateAccountSubscriptionParams{
		ID:                   account.ID,
		SubscriptionStatus:   string(next.Status),
		SubscriptionTier:     string(next.Tier),
		StripeCustomerID:     domain.ToNullString(next.CustomerID),
		StripeSubscriptionID: domain.ToNullString(next.SubscriptionID),
		CurrentPeriodEnd:     domain.ToNullTime(next.PeriodEnd),
	})
	if err != nil {
		return domain.Internal(err, op, "Failed to persist subscription state")
	}

	logger.Info("subscription state updated",
		"status", next.Status,
		"tier", next.Tier,
		"subscription_id", next.SubscriptionID,
	)

	s.audit(ctx, ev, rawPayload, uuid.NullUUID{UUID: account.ID, Valid: true}, OutcomeApplied)
	metrics.WebhookEventsTotal.WithLabelValues(string(ev.Provider), string(ev.Kind), OutcomeApplied).Inc()

	s.notify(ctx, ev, account)

	return nil
}

// findAccount resolves the event to an account row.
//
// Metadata-keyed kinds carry the account id directly; everything else
// correlates through the stored provider refs, trying the customer ref
// first and falling back to the subscription ref.
func (s *reconcileService) findAccount(ctx context.Context, ev billing.Event) (repository.Account, error) {
	if ev.KeyedByAccount() && ev.AccountID != uuid.Nil {
		return s.store.GetAccountByID(ctx, ev.AccountID)
	}

	if ev.CustomerID != "" {
		account, err := s.store.GetAccountByStripeCustomerID(ctx, domain.ToNullString(ev.CustomerID))
		if err == nil || !errors.Is(err, sql.ErrNoRows) {
			return account, err
		}
	}

	if ev.SubscriptionID != "" {
		return s.store.GetAccountBySubscriptionRef(ctx, domain.ToNullString(ev.SubscriptionID))
	}

	return repository.Account{}, sql.ErrNoRows
}

// audit records the delivery. Audit failures are logged, never returned:
// the subscription update is the operation that matters.
func (s *reconcileService) audit(ctx context.Context, ev billing.Event, rawPayload []byte, accountID uuid.NullUUID, outcome string) {
	payload := pqtype.NullRawMessage{}
	if len(rawPayload) > 0 {
		payload = pqtype.NullRawMessage{RawMessage: rawPayload, Valid: true}
	}

	_, err := s.store.InsertWebhookEvent(ctx, repository.InsertWebhookEventParams{
		Provider:   string(ev.Provider),
		EventKind:  string(ev.Kind),
		ProviderID: domain.ToNullString(ev.ID),
		AccountID:  accountID,
		Payload:    payload,
		Outcome:    outcome,
	})
	if err != nil {
		s.logger.Warn("failed to record webhook audit entry", "provider", ev.Provider, "event_id", ev.ID, "error", err)
	}
}

// notify sends billing mail for the events the account holder should
// hear about. Mail failures are logged, never returned.
func (s *reconcileService) notify(ctx context.Context, ev billing.Event, account repository.Account) {
	if s.notifier == nil {
		return
	}

	domAccount := RepoAccountToDomain(account)
	domAccount.PasswordHash = ""

	var err error
	switch ev.Kind {
	case billing.EventPaymentFailed:
		err = s.notifier.SendPaymentFailed(ctx, domAccount)
	case billing.EventSubscriptionDeleted:
		err = s.notifier.SendSubscriptionCanceled(ctx, domAccount)
	default:
		return
	}
	if err != nil {
		s.logger.Warn("failed to send billing notification", "account_id", account.ID, "kind", ev.Kind, "error", err)
	}
}

var _ ReconcileService = (*reconcileService)(nil)
