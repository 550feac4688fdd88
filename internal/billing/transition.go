package billing

import (
	"time"

	"github.com/mesura-app/mesura/internal/domain"
)

// Subscription is the slice of account state the transition core reads
// and writes. It mirrors the persisted columns one-to-one.
type Subscription struct {
	Status         domain.SubscriptionStatus
	Tier           domain.SubscriptionTier
	CustomerID     string // Provider customer ref
	SubscriptionID string // Billing ref for the current cycle
	PeriodEnd      *time.Time
}

// Apply computes the subscription state after ev. It is a pure function:
// no I/O, no side effects, safe to call on any input. The second return
// value reports whether the event applies at all; when false the input
// state is returned unchanged and nothing should be persisted.
//
// Applying the same event twice always lands in the same end state:
// transitions assign values carried by the event, and the one field
// stamped by the adapter rather than the provider (the alternate
// provider's PeriodEnd) is shielded by the transaction-ref guard in the
// provider_payment case. Events for
// the same cycle commute under the delivery reordering the providers are
// allowed to do. The one known exception: a subscription_deleted for an
// old cycle that arrives before the delayed checkout_completed of a new
// cycle will cancel first and be repaired when the checkout lands; a
// deleted that arrives after the new checkout is discarded by the
// cycle-ref guard below. There is no cycle stamp in the data model, so
// the early-arrival ordering is accepted as-is.
func Apply(cur Subscription, ev Event) (Subscription, bool) {
	next := cur

	switch ev.Kind {
	case EventCheckoutCompleted:
		next.Status = domain.SubscriptionStatusActive
		next.Tier = ev.Tier
		if ev.CustomerID != "" {
			next.CustomerID = ev.CustomerID
		}
		next.SubscriptionID = ev.SubscriptionID
		if ev.PeriodEnd != nil {
			next.PeriodEnd = ev.PeriodEnd
		}
		return next, true

	case EventPaymentSucceeded:
		// Recovery from past_due included; tier untouched.
		next.Status = domain.SubscriptionStatusActive
		if ev.PeriodEnd != nil {
			next.PeriodEnd = ev.PeriodEnd
		}
		return next, true

	case EventPaymentFailed:
		next.Status = domain.SubscriptionStatusPastDue
		return next, true

	case EventSubscriptionDeleted:
		// Cycle-ref guard: a deletion naming a subscription ref other than
		// the stored one belongs to a superseded cycle and must not cancel
		// the current one.
		if ev.SubscriptionID != "" && cur.SubscriptionID != "" && ev.SubscriptionID != cur.SubscriptionID {
			return cur, false
		}
		next.Status = domain.SubscriptionStatusCanceled
		next.Tier = domain.SubscriptionTierFree
		next.SubscriptionID = ""
		return next, true

	case EventProviderPayment:
		// The synthetic billing ref encodes the provider transaction, and
		// PeriodEnd is stamped at parse time. A redelivered transaction
		// must be discarded here or each retry would push the paid window
		// forward by the retry delay.
		if ev.SubscriptionID != "" && cur.SubscriptionID == ev.SubscriptionID {
			return cur, false
		}
		next.Status = domain.SubscriptionStatusActive
		next.Tier = ev.Tier
		next.SubscriptionID = ev.SubscriptionID
		next.PeriodEnd = ev.PeriodEnd
		return next, true
	}

	return cur, false
}
