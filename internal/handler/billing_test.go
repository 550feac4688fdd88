package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"

	"github.com/mesura-app/mesura/internal/auth"
	"github.com/mesura-app/mesura/internal/billing"
	"github.com/mesura-app/mesura/internal/domain"
	"github.com/mesura-app/mesura/internal/service"
)

// mockBillingStripe stubs the StripeService methods the billing
// handlers use. Unstubbed methods panic via the embedded nil interface.
type mockBillingStripe struct {
	billing.StripeService

	priceIDs map[string]string // "tier/zone" -> price id

	createdCustomerID string
	checkoutURL       string
	checkoutParams    []billing.CheckoutParams

	portalURL string

	canceled    []string
	reactivated []string

	subscription *stripe.Subscription
}

func (m *mockBillingStripe) PriceIDFor(tier domain.SubscriptionTier, zone billing.PricingZone) string {
	return m.priceIDs[string(tier)+"/"+string(zone)]
}

func (m *mockBillingStripe) CreateCustomer(email, name string) (string, error) {
	return m.createdCustomerID, nil
}

func (m *mockBillingStripe) CreateCheckoutSession(params billing.CheckoutParams) (string, error) {
	m.checkoutParams = append(m.checkoutParams, params)
	return m.checkoutURL, nil
}

func (m *mockBillingStripe) CreatePortalSession(customerID, returnURL string) (string, error) {
	return m.portalURL, nil
}

func (m *mockBillingStripe) CancelSubscription(subscriptionID string) error {
	m.canceled = append(m.canceled, subscriptionID)
	return nil
}

func (m *mockBillingStripe) ReactivateSubscription(subscriptionID string) error {
	m.reactivated = append(m.reactivated, subscriptionID)
	return nil
}

func (m *mockBillingStripe) GetSubscription(subscriptionID string) (*stripe.Subscription, error) {
	return m.subscription, nil
}

// mockBillingAccounts records stripe customer updates.
type mockBillingAccounts struct {
	service.AccountService

	customerUpdates map[uuid.UUID]string
}

func (m *mockBillingAccounts) UpdateStripeCustomer(_ context.Context, accountID uuid.UUID, customerID string) error {
	if m.customerUpdates == nil {
		m.customerUpdates = make(map[uuid.UUID]string)
	}
	m.customerUpdates[accountID] = customerID
	return nil
}

// mockRenderer records rendered template names and data.
type mockRenderer struct {
	names []string
	data  []interface{}
}

func (m *mockRenderer) RenderHTTP(w http.ResponseWriter, name string, data interface{}) {
	m.names = append(m.names, name)
	m.data = append(m.data, data)
	w.WriteHeader(http.StatusOK)
}

func (m *mockRenderer) RenderHTTPWithToast(w http.ResponseWriter, name string, data interface{}, toast ToastData) {
	m.names = append(m.names, name)
	m.data = append(m.data, data)
	w.WriteHeader(http.StatusOK)
}

func (m *mockRenderer) RenderPartial(w http.ResponseWriter, name string, data interface{}) {
	m.names = append(m.names, name)
	m.data = append(m.data, data)
	w.WriteHeader(http.StatusOK)
}

func billingTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func trialingAccount() *domain.Account {
	return &domain.Account{
		ID:                 uuid.New(),
		Email:              "tailor@example.com",
		Name:               "Amara",
		SubscriptionStatus: domain.SubscriptionStatusTrialing,
		SubscriptionTier:   domain.SubscriptionTierFree,
		CreatedAt:          time.Now().Add(-24 * time.Hour),
	}
}

func requestWithAccount(method, target string, body io.Reader, account *domain.Account) *http.Request {
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	return req.WithContext(auth.SetAccount(req.Context(), account))
}

func TestCreateCheckout_RedirectsToStripe(t *testing.T) {
	account := trialingAccount()
	account.StripeCustomerID = "cus_existing"

	stripeMock := &mockBillingStripe{
		priceIDs:    map[string]string{"pro/domestic": "price_pro_dom"},
		checkoutURL: "https://checkout.stripe.test/session",
	}
	accounts := &mockBillingAccounts{}
	h := NewBillingHandler(stripeMock, accounts, &mockRenderer{}, "https://mesura.test", billingTestLogger())

	form := url.Values{"tier": {"pro"}, "zone": {"domestic"}}
	req := requestWithAccount(http.MethodPost, "/settings/billing/checkout", strings.NewReader(form.Encode()), account)
	rec := httptest.NewRecorder()

	h.CreateCheckout(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusSeeOther)
	}
	if loc := rec.Header().Get("Location"); loc != "https://checkout.stripe.test/session" {
		t.Errorf("Location = %q, want checkout URL", loc)
	}
	if len(stripeMock.checkoutParams) != 1 {
		t.Fatalf("created %d checkout sessions, want 1", len(stripeMock.checkoutParams))
	}
	params := stripeMock.checkoutParams[0]
	if params.Tier != domain.SubscriptionTierPro {
		t.Errorf("Tier = %s, want pro", params.Tier)
	}
	if params.CustomerID != "cus_existing" {
		t.Errorf("CustomerID = %q, want existing customer reused", params.CustomerID)
	}
	if !strings.Contains(params.SuccessURL, "{CHECKOUT_SESSION_ID}") {
		t.Errorf("SuccessURL = %q, want session id placeholder", params.SuccessURL)
	}
}

func TestCreateCheckout_CreatesCustomerWhenMissing(t *testing.T) {
	account := trialingAccount()

	stripeMock := &mockBillingStripe{
		priceIDs:          map[string]string{"start/domestic": "price_start_dom"},
		createdCustomerID: "cus_new",
		checkoutURL:       "https://checkout.stripe.test/session",
	}
	accounts := &mockBillingAccounts{}
	h := NewBillingHandler(stripeMock, accounts, &mockRenderer{}, "https://mesura.test", billingTestLogger())

	// Zone omitted: the handler defaults to domestic.
	form := url.Values{"tier": {"start"}}
	req := requestWithAccount(http.MethodPost, "/settings/billing/checkout", strings.NewReader(form.Encode()), account)
	rec := httptest.NewRecorder()

	h.CreateCheckout(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusSeeOther)
	}
	if accounts.customerUpdates[account.ID] != "cus_new" {
		t.Errorf("stripe customer id was not saved on the account")
	}
	if len(stripeMock.checkoutParams) != 1 {
		t.Fatalf("created %d checkout sessions, want 1", len(stripeMock.checkoutParams))
	}
	if zone := stripeMock.checkoutParams[0].Zone; zone != billing.ZoneDomestic {
		t.Errorf("Zone = %s, want domestic default", zone)
	}
}

func TestCreateCheckout_UnsoldPlanIsRejected(t *testing.T) {
	account := trialingAccount()
	stripeMock := &mockBillingStripe{priceIDs: map[string]string{}}
	h := NewBillingHandler(stripeMock, &mockBillingAccounts{}, &mockRenderer{}, "https://mesura.test", billingTestLogger())

	form := url.Values{"tier": {"free"}, "zone": {"domestic"}}
	req := requestWithAccount(http.MethodPost, "/settings/billing/checkout", strings.NewReader(form.Encode()), account)
	rec := httptest.NewRecorder()

	h.CreateCheckout(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnprocessableEntity)
	}
	if body := rec.Body.String(); !strings.Contains(body, "not available") {
		t.Errorf("body = %q, want an error message naming the unavailable plan", body)
	}
	if len(stripeMock.checkoutParams) != 0 {
		t.Errorf("no checkout session should be created for an unsold plan")
	}
}

func TestCancelSubscription_Success(t *testing.T) {
	account := trialingAccount()
	account.SubscriptionStatus = domain.SubscriptionStatusActive
	account.SubscriptionID = "sub_123"

	stripeMock := &mockBillingStripe{}
	h := NewBillingHandler(stripeMock, &mockBillingAccounts{}, &mockRenderer{}, "https://mesura.test", billingTestLogger())

	req := requestWithAccount(http.MethodPost, "/settings/billing/cancel", nil, account)
	rec := httptest.NewRecorder()

	h.CancelSubscription(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if len(stripeMock.canceled) != 1 || stripeMock.canceled[0] != "sub_123" {
		t.Errorf("canceled = %v, want [sub_123]", stripeMock.canceled)
	}
	if redirect := rec.Header().Get("HX-Redirect"); redirect != "/settings/billing?canceled=1" {
		t.Errorf("HX-Redirect = %q", redirect)
	}
}

func TestCancelSubscription_PaystackSubscriptionRejected(t *testing.T) {
	account := trialingAccount()
	account.SubscriptionStatus = domain.SubscriptionStatusActive
	account.SubscriptionID = "paystack_tx_99"

	stripeMock := &mockBillingStripe{}
	h := NewBillingHandler(stripeMock, &mockBillingAccounts{}, &mockRenderer{}, "https://mesura.test", billingTestLogger())

	req := requestWithAccount(http.MethodPost, "/settings/billing/cancel", nil, account)
	rec := httptest.NewRecorder()

	h.CancelSubscription(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if len(stripeMock.canceled) != 0 {
		t.Errorf("paystack subscription must not hit the stripe cancel API")
	}
	if trigger := rec.Header().Get("HX-Trigger"); !strings.Contains(trigger, "showToast") {
		t.Errorf("HX-Trigger = %q, want a showToast payload", trigger)
	}
}

func TestReactivateSubscription_Success(t *testing.T) {
	account := trialingAccount()
	account.SubscriptionStatus = domain.SubscriptionStatusActive
	account.SubscriptionID = "sub_456"

	stripeMock := &mockBillingStripe{}
	h := NewBillingHandler(stripeMock, &mockBillingAccounts{}, &mockRenderer{}, "https://mesura.test", billingTestLogger())

	req := requestWithAccount(http.MethodPost, "/settings/billing/reactivate", nil, account)
	rec := httptest.NewRecorder()

	h.ReactivateSubscription(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if len(stripeMock.reactivated) != 1 || stripeMock.reactivated[0] != "sub_456" {
		t.Errorf("reactivated = %v, want [sub_456]", stripeMock.reactivated)
	}
	if redirect := rec.Header().Get("HX-Redirect"); redirect != "/settings/billing?updated=1" {
		t.Errorf("HX-Redirect = %q", redirect)
	}
}

func TestShowBilling_TrialingAccount(t *testing.T) {
	account := trialingAccount()
	renderer := &mockRenderer{}
	h := NewBillingHandler(nil, &mockBillingAccounts{}, renderer, "https://mesura.test", billingTestLogger())

	req := requestWithAccount(http.MethodGet, "/settings/billing", nil, account)
	rec := httptest.NewRecorder()

	h.ShowBilling(rec, req)

	if len(renderer.names) != 1 || renderer.names[0] != "settings/billing" {
		t.Fatalf("rendered %v, want [settings/billing]", renderer.names)
	}
	data, ok := renderer.data[0].(BillingPageData)
	if !ok {
		t.Fatalf("data is %T, want BillingPageData", renderer.data[0])
	}
	if !data.Plan.ShowTrialCountdown {
		t.Error("trialing account should show the trial countdown")
	}
	if data.Plan.TrialDaysLeft <= 0 {
		t.Errorf("TrialDaysLeft = %d, want positive for a day-old trial", data.Plan.TrialDaysLeft)
	}
}

func TestShowBilling_PaystackSubscriptionSkipsStripeLookup(t *testing.T) {
	account := trialingAccount()
	account.SubscriptionStatus = domain.SubscriptionStatusActive
	account.SubscriptionID = "paystack_tx_1"

	// GetSubscription returning nil would panic on field access; the
	// paystack prefix must keep the handler away from it entirely.
	stripeMock := &mockBillingStripe{subscription: nil}
	renderer := &mockRenderer{}
	h := NewBillingHandler(stripeMock, &mockBillingAccounts{}, renderer, "https://mesura.test", billingTestLogger())

	req := requestWithAccount(http.MethodGet, "/settings/billing", nil, account)
	rec := httptest.NewRecorder()

	h.ShowBilling(rec, req)

	data := renderer.data[0].(BillingPageData)
	if data.Plan.Status != string(domain.SubscriptionStatusActive) {
		t.Errorf("Status = %q, want stored status", data.Plan.Status)
	}
	if data.Plan.PeriodEnd != "" {
		t.Errorf("PeriodEnd = %q, want empty for paystack subscription", data.Plan.PeriodEnd)
	}
}

func TestCheckoutSuccess_RedirectsToBilling(t *testing.T) {
	account := trialingAccount()
	h := NewBillingHandler(nil, &mockBillingAccounts{}, &mockRenderer{}, "https://mesura.test", billingTestLogger())

	req := requestWithAccount(http.MethodGet, "/settings/billing/success?session_id=cs_test", nil, account)
	rec := httptest.NewRecorder()

	h.CheckoutSuccess(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusSeeOther)
	}
	if loc := rec.Header().Get("Location"); loc != "/settings/billing?updated=1" {
		t.Errorf("Location = %q", loc)
	}
}
