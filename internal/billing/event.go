// Package billing integrates the two payment providers (Stripe and
// Paystack) behind one normalized event vocabulary and one shared
// state-transition core.
//
// Provider adapters do three things only: verify the delivery signature,
// normalize the provider's event kind, and extract the correlation key.
// Everything that mutates account state goes through Apply.
package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/mesura-app/mesura/internal/domain"
)

// Provider identifies which payment provider emitted an event.
type Provider string

const (
	ProviderStripe   Provider = "stripe"
	ProviderPaystack Provider = "paystack"
)

// EventKind is the provider-agnostic classification of a billing event.
type EventKind string

const (
	// EventCheckoutCompleted is the event that creates the provider-to-
	// account linkage. It is keyed by the account id carried in event
	// metadata; every later event for that provider keys off the stored
	// billing ref instead.
	EventCheckoutCompleted EventKind = "checkout_completed"

	// EventPaymentSucceeded is a recurring payment success. No tier change.
	EventPaymentSucceeded EventKind = "payment_succeeded"

	// EventPaymentFailed is a recurring payment failure. No tier change.
	EventPaymentFailed EventKind = "payment_failed"

	// EventSubscriptionDeleted ends the current subscription cycle.
	EventSubscriptionDeleted EventKind = "subscription_deleted"

	// EventProviderPayment is the alternate provider's one-shot success:
	// it grants a fixed plan for a fixed 30-day period, keyed by the
	// account id in event metadata.
	EventProviderPayment EventKind = "provider_payment"
)

// Event is the single strict shape every provider payload is normalized
// into before it reaches the transition core. The core never sees raw
// provider payloads and never branches on payload shape.
type Event struct {
	Provider Provider
	Kind     EventKind
	ID       string // Provider event id or transaction reference

	// Correlation. AccountID is set only for the metadata-keyed kinds
	// (checkout_completed, provider_payment); CustomerID carries the
	// provider customer ref used to look up accounts for the rest.
	AccountID  uuid.UUID
	CustomerID string

	// Payload fields consumed by the transition table.
	SubscriptionID string // Billing ref for this subscription cycle
	Tier           domain.SubscriptionTier
	PeriodEnd      *time.Time
}

// KeyedByAccount reports whether the event correlates via the
// application-supplied account id rather than a stored billing ref.
func (e Event) KeyedByAccount() bool {
	return e.Kind == EventCheckoutCompleted || e.Kind == EventProviderPayment
}
