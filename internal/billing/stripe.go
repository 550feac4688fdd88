package billing

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
	billingportalsession "github.com/stripe/stripe-go/v79/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/customer"
	"github.com/stripe/stripe-go/v79/subscription"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/mesura-app/mesura/internal/domain"
)

// PricingZone selects which price list a checkout uses.
type PricingZone string

const (
	// ZoneDomestic is the workshop's home market; checkout restricts
	// shipping-address collection to the configured country allow-list.
	ZoneDomestic PricingZone = "domestic"

	// ZoneInternational has no shipping restriction.
	ZoneInternational PricingZone = "international"
)

// StripeService defines the interface for Stripe operations.
type StripeService interface {
	// CreateCustomer creates a new Stripe customer for the given email.
	CreateCustomer(email, name string) (string, error)

	// CreateCheckoutSession creates a Stripe Checkout session for subscribing.
	// Returns the checkout URL to redirect the user to.
	CreateCheckoutSession(params CheckoutParams) (string, error)

	// CreatePortalSession creates a Stripe Customer Portal session.
	CreatePortalSession(customerID, returnURL string) (string, error)

	// GetSubscription retrieves a Stripe subscription by ID.
	GetSubscription(subscriptionID string) (*stripe.Subscription, error)

	// CancelSubscription sets a subscription to cancel at period end.
	CancelSubscription(subscriptionID string) error

	// ReactivateSubscription removes the cancel_at_period_end flag.
	ReactivateSubscription(subscriptionID string) error

	// VerifyWebhookSignature verifies the Stripe webhook signature over the
	// raw payload and returns the parsed event.
	VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error)

	// NormalizeEvent maps a verified Stripe event onto the provider-agnostic
	// Event shape. The second return value is false for event kinds this
	// subsystem ignores; an error means the event is recognized but missing
	// the data needed to correlate it to an account.
	NormalizeEvent(event stripe.Event) (Event, bool, error)

	// PriceIDFor returns the configured price for a tier and zone, or ""
	// when that combination is not sold.
	PriceIDFor(tier domain.SubscriptionTier, zone PricingZone) string

	// TierForPriceID returns the subscription tier for a Stripe price ID.
	TierForPriceID(priceID string) domain.SubscriptionTier
}

// StripePriceConfig holds the Stripe price IDs for each tier and zone.
type StripePriceConfig struct {
	StartDomesticPriceID      string
	StartInternationalPriceID string
	ProDomesticPriceID        string
	ProInternationalPriceID   string

	// DomesticCountries is the shipping-address allow-list applied to
	// domestic-zone checkouts (ISO 3166-1 alpha-2 codes).
	DomesticCountries []string
}

// CheckoutParams are the inputs for creating a checkout session.
type CheckoutParams struct {
	AccountID  uuid.UUID // Carried as client_reference_id for the webhook
	CustomerID string
	Tier       domain.SubscriptionTier
	Zone       PricingZone
	SuccessURL string
	CancelURL  string
}

// stripeService is the concrete implementation of StripeService.
type stripeService struct {
	webhookSecret string
	prices        StripePriceConfig
	priceToTier   map[string]domain.SubscriptionTier
}

// NewStripeService creates a new Stripe billing service.
//
// The secretKey authenticates Stripe API calls. The webhookSecret verifies
// incoming webhook signatures. The prices configure which Stripe price IDs
// map to which tier/zone combinations.
func NewStripeService(secretKey, webhookSecret string, prices StripePriceConfig) StripeService {
	stripe.Key = secretKey

	priceToTier := make(map[string]domain.SubscriptionTier)
	if prices.StartDomesticPriceID != "" {
		priceToTier[prices.StartDomesticPriceID] = domain.SubscriptionTierStart
	}
	if prices.StartInternationalPriceID != "" {
		priceToTier[prices.StartInternationalPriceID] = domain.SubscriptionTierStart
	}
	if prices.ProDomesticPriceID != "" {
		priceToTier[prices.ProDomesticPriceID] = domain.SubscriptionTierPro
	}
	if prices.ProInternationalPriceID != "" {
		priceToTier[prices.ProInternationalPriceID] = domain.SubscriptionTierPro
	}

	return &stripeService{
		webhookSecret: webhookSecret,
		prices:        prices,
		priceToTier:   priceToTier,
	}
}

func (s *stripeService) CreateCustomer(email, name string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
	}
	c, err := customer.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create customer: %w", err)
	}
	return c.ID, nil
}

func (s *stripeService) CreateCheckoutSession(p CheckoutParams) (string, error) {
	priceID := s.PriceIDFor(p.Tier, p.Zone)
	if priceID == "" {
		return "", fmt.Errorf("no price configured for tier %q in zone %q", p.Tier, p.Zone)
	}

	params := &stripe.CheckoutSessionParams{
		Customer:          stripe.String(p.CustomerID),
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		ClientReferenceID: stripe.String(p.AccountID.String()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(p.SuccessURL),
		CancelURL:  stripe.String(p.CancelURL),
	}
	params.AddMetadata("tier", string(p.Tier))

	if p.Zone == ZoneDomestic && len(s.prices.DomesticCountries) > 0 {
		countries := make([]*string, len(s.prices.DomesticCountries))
		for i, c := range s.prices.DomesticCountries {
			countries[i] = stripe.String(c)
		}
		params.ShippingAddressCollection = &stripe.CheckoutSessionShippingAddressCollectionParams{
			AllowedCountries: countries,
		}
	}

	sess, err := checkoutsession.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create checkout session: %w", err)
	}
	return sess.URL, nil
}

func (s *stripeService) CreatePortalSession(customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	sess, err := billingportalsession.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create portal session: %w", err)
	}
	return sess.URL, nil
}

func (s *stripeService) GetSubscription(subscriptionID string) (*stripe.Subscription, error) {
	sub, err := subscription.Get(subscriptionID, nil)
	if err != nil {
		return nil, fmt.Errorf("stripe get subscription: %w", err)
	}
	return sub, nil
}

func (s *stripeService) CancelSubscription(subscriptionID string) error {
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	}
	_, err := subscription.Update(subscriptionID, params)
	if err != nil {
		return fmt.Errorf("stripe cancel subscription: %w", err)
	}
	return nil
}

func (s *stripeService) ReactivateSubscription(subscriptionID string) error {
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(false),
	}
	_, err := subscription.Update(subscriptionID, params)
	if err != nil {
		return fmt.Errorf("stripe reactivate subscription: %w", err)
	}
	return nil
}

func (s *stripeService) VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error) {
	event, err := webhook.ConstructEvent(payload, signature, s.webhookSecret)
	if err != nil {
		return stripe.Event{}, fmt.Errorf("stripe webhook signature verification failed: %w", err)
	}
	return event, nil
}

func (s *stripeService) PriceIDFor(tier domain.SubscriptionTier, zone PricingZone) string {
	switch {
	case tier == domain.SubscriptionTierStart && zone == ZoneDomestic:
		return s.prices.StartDomesticPriceID
	case tier == domain.SubscriptionTierStart && zone == ZoneInternational:
		return s.prices.StartInternationalPriceID
	case tier == domain.SubscriptionTierPro && zone == ZoneDomestic:
		return s.prices.ProDomesticPriceID
	case tier == domain.SubscriptionTierPro && zone == ZoneInternational:
		return s.prices.ProInternationalPriceID
	}
	return ""
}

func (s *stripeService) TierForPriceID(priceID string) domain.SubscriptionTier {
	return s.priceToTier[priceID]
}

// NormalizeEvent maps Stripe event kinds onto the shared vocabulary.
func (s *stripeService) NormalizeEvent(event stripe.Event) (Event, bool, error) {
	switch event.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return Event{}, true, fmt.Errorf("parse checkout session: %w", err)
		}
		if session.Customer == nil || session.Subscription == nil {
			return Event{}, true, fmt.Errorf("checkout session %s missing customer or subscription", session.ID)
		}
		accountID, err := uuid.Parse(session.ClientReferenceID)
		if err != nil {
			return Event{}, true, fmt.Errorf("checkout session %s has no usable client reference: %w", session.ID, err)
		}
		tier := domain.SubscriptionTier(session.Metadata["tier"])
		if tier == "" {
			tier = domain.SubscriptionTierStart
		}
		return Event{
			Provider:       ProviderStripe,
			Kind:           EventCheckoutCompleted,
			ID:             event.ID,
			AccountID:      accountID,
			CustomerID:     session.Customer.ID,
			SubscriptionID: session.Subscription.ID,
			Tier:           tier,
		}, true, nil

	case "invoice.payment_succeeded":
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			return Event{}, true, fmt.Errorf("parse invoice: %w", err)
		}
		if invoice.Customer == nil {
			return Event{}, true, fmt.Errorf("invoice %s missing customer", invoice.ID)
		}
		return Event{
			Provider:   ProviderStripe,
			Kind:       EventPaymentSucceeded,
			ID:         event.ID,
			CustomerID: invoice.Customer.ID,
		}, true, nil

	case "invoice.payment_failed":
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			return Event{}, true, fmt.Errorf("parse invoice: %w", err)
		}
		if invoice.Customer == nil {
			return Event{}, true, fmt.Errorf("invoice %s missing customer", invoice.ID)
		}
		return Event{
			Provider:   ProviderStripe,
			Kind:       EventPaymentFailed,
			ID:         event.ID,
			CustomerID: invoice.Customer.ID,
		}, true, nil

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return Event{}, true, fmt.Errorf("parse subscription: %w", err)
		}
		if sub.Customer == nil {
			return Event{}, true, fmt.Errorf("subscription %s missing customer", sub.ID)
		}
		return Event{
			Provider:       ProviderStripe,
			Kind:           EventSubscriptionDeleted,
			ID:             event.ID,
			CustomerID:     sub.Customer.ID,
			SubscriptionID: sub.ID,
		}, true, nil
	}

	// Providers send many event kinds irrelevant to this subsystem.
	return Event{}, false, nil
}
