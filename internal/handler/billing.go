// Package handler contains HTTP handlers for the Mesura application.
//
// This file implements billing/subscription management handlers backed
// by Stripe. Paystack payments arrive only through the webhook; there is
// no Paystack-initiated flow here.
//
// Routes handled:
//   - GET  /settings/billing            -> ShowBilling
//   - POST /settings/billing/checkout   -> CreateCheckout
//   - POST /settings/billing/portal     -> OpenPortal
//   - POST /settings/billing/cancel     -> CancelSubscription
//   - POST /settings/billing/reactivate -> ReactivateSubscription
//   - GET  /settings/billing/success    -> CheckoutSuccess
//
// These routes require a logged-in account but NOT entitlement: an
// account whose trial ran out lands here to subscribe, so wiring them
// behind the entitlement guard would lock expired accounts out of the
// only page that can fix their state.
package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mesura-app/mesura/internal/auth"
	"github.com/mesura-app/mesura/internal/billing"
	"github.com/mesura-app/mesura/internal/csrf"
	"github.com/mesura-app/mesura/internal/domain"
	"github.com/mesura-app/mesura/internal/metrics"
	"github.com/mesura-app/mesura/internal/service"
)

// PlanInfo summarizes the account's subscription for the billing page.
type PlanInfo struct {
	Tier   string
	Status string

	// TrialDaysLeft is informational only; access decisions come from
	// the subscription status, never from this number.
	TrialDaysLeft      int
	ShowTrialCountdown bool

	// PeriodEnd and CancelAtEnd come live from Stripe when a
	// subscription exists; both are zero-valued otherwise.
	PeriodEnd   string
	CancelAtEnd bool
}

// BillingPageData contains data for the billing settings page.
type BillingPageData struct {
	CurrentPath string
	Account     *domain.Account
	Plan        PlanInfo
	Flash       *Flash
	CSRFToken   string
}

// BillingHandler handles billing and subscription management requests.
type BillingHandler struct {
	stripe   billing.StripeService
	accounts service.AccountService
	renderer TemplateRenderer
	baseURL  string
	logger   *slog.Logger
}

// NewBillingHandler creates a new BillingHandler.
// stripe may be nil when Stripe is not configured (development mode).
func NewBillingHandler(
	stripe billing.StripeService,
	accounts service.AccountService,
	renderer TemplateRenderer,
	baseURL string,
	logger *slog.Logger,
) *BillingHandler {
	return &BillingHandler{
		stripe:   stripe,
		accounts: accounts,
		renderer: renderer,
		baseURL:  baseURL,
		logger:   logger,
	}
}

// RegisterRoutes registers billing routes on the provided mux. The
// guard should require a logged-in account only, not entitlement.
func (h *BillingHandler) RegisterRoutes(mux *http.ServeMux, guard func(http.Handler) http.Handler) {
	mux.Handle("GET /settings/billing", guard(http.HandlerFunc(h.ShowBilling)))
	mux.Handle("GET /settings/billing/success", guard(http.HandlerFunc(h.CheckoutSuccess)))
	mux.Handle("POST /settings/billing/checkout", guard(http.HandlerFunc(h.CreateCheckout)))
	mux.Handle("POST /settings/billing/portal", guard(http.HandlerFunc(h.OpenPortal)))
	mux.Handle("POST /settings/billing/cancel", guard(http.HandlerFunc(h.CancelSubscription)))
	mux.Handle("POST /settings/billing/reactivate", guard(http.HandlerFunc(h.ReactivateSubscription)))
}

// ShowBilling renders the billing settings page with current plan info.
func (h *BillingHandler) ShowBilling(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromRequest(r)
	if account == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	plan := PlanInfo{
		Tier:               string(account.SubscriptionTier),
		Status:             string(account.SubscriptionStatus),
		TrialDaysLeft:      account.TrialDaysLeft(time.Now()),
		ShowTrialCountdown: account.ShowTrialCountdown(),
	}

	// Fetch live subscription details from Stripe when available.
	// Paystack subscriptions carry a synthetic reference, not a Stripe
	// subscription ID, so those stay on the stored status.
	if h.stripe != nil && account.SubscriptionID != "" && !strings.HasPrefix(account.SubscriptionID, "paystack_") {
		sub, err := h.stripe.GetSubscription(account.SubscriptionID)
		if err != nil {
			h.logger.Warn("failed to fetch stripe subscription",
				"error", err,
				"subscription_id", account.SubscriptionID,
			)
		} else {
			plan.PeriodEnd = time.Unix(sub.CurrentPeriodEnd, 0).Format("January 2, 2006")
			plan.CancelAtEnd = sub.CancelAtPeriodEnd
			plan.Status = string(sub.Status)
		}
	}

	var flash *Flash
	switch {
	case r.URL.Query().Get("updated") == "1":
		flash = &Flash{Type: "success", Message: "Subscription updated successfully."}
	case r.URL.Query().Get("canceled") == "1":
		flash = &Flash{Type: "success", Message: "Your subscription has been canceled. You keep access until the end of your billing period."}
	case r.URL.Query().Get("expired") == "1":
		flash = &Flash{Type: "error", Message: "Your trial has ended. Choose a plan to keep using Mesura."}
	}

	data := BillingPageData{
		CurrentPath: "/settings/billing",
		Account:     account,
		Plan:        plan,
		Flash:       flash,
		CSRFToken:   csrf.GetTokenFromRequest(r),
	}

	h.renderer.RenderHTTP(w, "settings/billing", data)
}

// CreateCheckout creates a Stripe Checkout session and redirects to it.
//
// Form Fields:
//   - tier (required): "start" or "pro"
//   - zone (required): "domestic" or "international"
func (h *BillingHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromRequest(r)
	if account == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	if h.stripe == nil {
		h.logger.Warn("checkout attempted but stripe is not configured")
		http.Redirect(w, r, "/settings/billing", http.StatusSeeOther)
		return
	}

	if err := r.ParseForm(); err != nil {
		h.logger.Error("failed to parse checkout form", "error", err, "account_id", account.ID)
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}
	tier := domain.SubscriptionTier(r.FormValue("tier"))
	zone := billing.PricingZone(r.FormValue("zone"))
	if zone == "" {
		zone = billing.ZoneDomestic
	}

	if h.stripe.PriceIDFor(tier, zone) == "" {
		h.logger.Warn("checkout attempted for unsold plan",
			"account_id", account.ID,
			"tier", string(tier),
			"zone", string(zone),
		)
		http.Error(w, "The selected plan is not available", http.StatusUnprocessableEntity)
		return
	}

	// Ensure the account has a Stripe customer.
	customerID := account.StripeCustomerID
	if customerID == "" {
		var err error
		customerID, err = h.stripe.CreateCustomer(account.Email, account.Name)
		if err != nil {
			h.logger.Error("failed to create stripe customer", "error", err, "account_id", account.ID)
			http.Error(w, "Failed to initialize billing", http.StatusInternalServerError)
			return
		}
		if err := h.accounts.UpdateStripeCustomer(r.Context(), account.ID, customerID); err != nil {
			h.logger.Error("failed to save stripe customer id", "error", err, "account_id", account.ID)
		}
	}

	successURL := fmt.Sprintf("%s/settings/billing/success?session_id={CHECKOUT_SESSION_ID}", h.baseURL)
	cancelURL := fmt.Sprintf("%s/settings/billing", h.baseURL)

	checkoutURL, err := h.stripe.CreateCheckoutSession(billing.CheckoutParams{
		AccountID:  account.ID,
		CustomerID: customerID,
		Tier:       tier,
		Zone:       zone,
		SuccessURL: successURL,
		CancelURL:  cancelURL,
	})
	if err != nil {
		h.logger.Error("failed to create checkout session", "error", err, "account_id", account.ID)
		http.Error(w, "Failed to create checkout session", http.StatusInternalServerError)
		return
	}

	metrics.CheckoutSessionsCreated.WithLabelValues(string(tier), string(zone)).Inc()

	http.Redirect(w, r, checkoutURL, http.StatusSeeOther)
}

// OpenPortal creates a Stripe Customer Portal session and redirects to it.
func (h *BillingHandler) OpenPortal(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromRequest(r)
	if account == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	if h.stripe == nil {
		h.logger.Warn("portal requested but stripe is not configured")
		http.Redirect(w, r, "/settings/billing", http.StatusSeeOther)
		return
	}

	if account.StripeCustomerID == "" {
		h.logger.Warn("portal requested but account has no stripe customer", "account_id", account.ID)
		http.Redirect(w, r, "/settings/billing", http.StatusSeeOther)
		return
	}

	returnURL := fmt.Sprintf("%s/settings/billing", h.baseURL)
	portalURL, err := h.stripe.CreatePortalSession(account.StripeCustomerID, returnURL)
	if err != nil {
		h.logger.Error("failed to create portal session", "error", err, "account_id", account.ID)
		http.Error(w, "Failed to open billing portal", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, portalURL, http.StatusSeeOther)
}

// CancelSubscription sets the subscription to cancel at period end.
// The status flips to canceled only when the deletion webhook arrives.
func (h *BillingHandler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromRequest(r)
	if account == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	if h.stripe == nil {
		h.billingActionError(w, "Billing is not configured.", http.StatusBadRequest)
		return
	}

	if account.SubscriptionID == "" || strings.HasPrefix(account.SubscriptionID, "paystack_") {
		h.billingActionError(w, "No active subscription to cancel.", http.StatusBadRequest)
		return
	}

	if err := h.stripe.CancelSubscription(account.SubscriptionID); err != nil {
		h.logger.Error("failed to cancel subscription", "error", err, "account_id", account.ID)
		h.billingActionError(w, "Failed to cancel subscription. Please try again.", http.StatusInternalServerError)
		return
	}

	w.Header().Set("HX-Redirect", "/settings/billing?canceled=1")
	w.WriteHeader(http.StatusOK)
}

// ReactivateSubscription removes the cancel-at-period-end flag.
func (h *BillingHandler) ReactivateSubscription(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromRequest(r)
	if account == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	if h.stripe == nil {
		h.billingActionError(w, "Billing is not configured.", http.StatusBadRequest)
		return
	}

	if account.SubscriptionID == "" || strings.HasPrefix(account.SubscriptionID, "paystack_") {
		h.billingActionError(w, "No subscription to reactivate.", http.StatusBadRequest)
		return
	}

	if err := h.stripe.ReactivateSubscription(account.SubscriptionID); err != nil {
		h.logger.Error("failed to reactivate subscription", "error", err, "account_id", account.ID)
		h.billingActionError(w, "Failed to reactivate subscription. Please try again.", http.StatusInternalServerError)
		return
	}

	w.Header().Set("HX-Redirect", "/settings/billing?updated=1")
	w.WriteHeader(http.StatusOK)
}

// CheckoutSuccess handles the return from Stripe Checkout. The webhook
// is the authoritative update path; this only lands the user somewhere
// sensible while it arrives.
func (h *BillingHandler) CheckoutSuccess(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromRequest(r)
	if account == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	h.logger.Info("checkout success return", "account_id", account.ID, "session_id", sessionID)

	http.Redirect(w, r, "/settings/billing?updated=1", http.StatusSeeOther)
}

// billingActionError responds to an htmx billing action with a toast.
func (h *BillingHandler) billingActionError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("HX-Trigger", fmt.Sprintf(`{"showToast": {"message": %q, "type": "error"}}`, message))
	w.WriteHeader(status)
}
