package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mesura-app/mesura/internal/auth"
	"github.com/mesura-app/mesura/internal/domain"
	"github.com/mesura-app/mesura/internal/session"
)

// mockAccountService implements the service.AccountService interface for testing.
type mockAccountService struct {
	GetBySessionTokenFunc func(ctx context.Context, token string) (*domain.Account, error)
	LogoutFunc            func(ctx context.Context, token string) error
}

func (m *mockAccountService) Register(ctx context.Context, params domain.RegisterParams) (*domain.Account, error) {
	return nil, errors.New("not implemented")
}

func (m *mockAccountService) Login(ctx context.Context, email, password string) (*domain.LoginResult, error) {
	return nil, errors.New("not implemented")
}

func (m *mockAccountService) Logout(ctx context.Context, token string) error {
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx, token)
	}
	return nil
}

func (m *mockAccountService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return nil, errors.New("not implemented")
}

func (m *mockAccountService) GetBySessionToken(ctx context.Context, token string) (*domain.Account, error) {
	if m.GetBySessionTokenFunc != nil {
		return m.GetBySessionTokenFunc(ctx, token)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAccountService) UpdateProfile(ctx context.Context, params domain.ProfileUpdateParams) error {
	return errors.New("not implemented")
}

func (m *mockAccountService) ChangePassword(ctx context.Context, params domain.PasswordChangeParams) error {
	return errors.New("not implemented")
}

func (m *mockAccountService) DeleteExpiredSessions(ctx context.Context) error {
	return errors.New("not implemented")
}

func (m *mockAccountService) UpdateStripeCustomer(ctx context.Context, accountID uuid.UUID, stripeCustomerID string) error {
	return nil
}

// newTestLogger creates a logger that only shows errors during tests.
func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// newTestAuthMiddleware creates an AuthMiddleware with mock service for testing.
func newTestAuthMiddleware(mock *mockAccountService) *AuthMiddleware {
	return NewAuthMiddleware(mock, newTestLogger(), false)
}

func accountWithStatus(status domain.SubscriptionStatus, tier domain.SubscriptionTier, createdAt time.Time) *domain.Account {
	return &domain.Account{
		ID:                 uuid.New(),
		Email:              "amara@example.com",
		Name:               "Amara",
		SubscriptionStatus: status,
		SubscriptionTier:   tier,
		CreatedAt:          createdAt,
	}
}

func TestWithAccount_NoCookie_ContinuesWithoutAccount(t *testing.T) {
	mock := &mockAccountService{}
	mw := newTestAuthMiddleware(mock)

	handlerCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true

		if account := auth.GetAccount(r.Context()); account != nil {
			t.Errorf("expected nil account, got %+v", account)
		}

		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/test", nil)
	rec := httptest.NewRecorder()

	mw.WithAccount(next).ServeHTTP(rec, req)

	if !handlerCalled {
		t.Error("handler was not called")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status code = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestWithAccount_ValidCookie_SetsAccountInContext(t *testing.T) {
	want := accountWithStatus(domain.SubscriptionStatusTrialing, domain.SubscriptionTierFree, time.Now())
	mock := &mockAccountService{
		GetBySessionTokenFunc: func(ctx context.Context, token string) (*domain.Account, error) {
			if token != "valid-token" {
				t.Errorf("token = %q, want %q", token, "valid-token")
			}
			return want, nil
		},
	}
	mw := newTestAuthMiddleware(mock)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := auth.GetAccount(r.Context())
		if got == nil {
			t.Fatal("expected account in context")
		}
		if got.ID != want.ID {
			t.Errorf("account ID = %v, want %v", got.ID, want.ID)
		}
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/test", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "valid-token"})
	rec := httptest.NewRecorder()

	mw.WithAccount(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status code = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestWithAccount_InvalidCookie_ClearsAndContinues(t *testing.T) {
	mock := &mockAccountService{
		GetBySessionTokenFunc: func(ctx context.Context, token string) (*domain.Account, error) {
			return nil, domain.Unauthorized("", "Invalid or expired session")
		},
	}
	mw := newTestAuthMiddleware(mock)

	handlerCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		if account := auth.GetAccount(r.Context()); account != nil {
			t.Errorf("expected nil account, got %+v", account)
		}
	})

	req := httptest.NewRequest("GET", "/test", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "stale-token"})
	rec := httptest.NewRecorder()

	mw.WithAccount(next).ServeHTTP(rec, req)

	if !handlerCalled {
		t.Error("handler was not called")
	}

	var cleared bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Error("expected session cookie to be cleared")
	}
}

func TestRequireAccount_WithAccount_ContinuesToHandler(t *testing.T) {
	mw := newTestAuthMiddleware(&mockAccountService{})

	handlerCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusOK)
	})

	account := accountWithStatus(domain.SubscriptionStatusActive, domain.SubscriptionTierStart, time.Now())
	req := httptest.NewRequest("GET", "/clients", nil)
	req = req.WithContext(auth.SetAccount(req.Context(), account))
	rec := httptest.NewRecorder()

	mw.RequireAccount(next).ServeHTTP(rec, req)

	if !handlerCalled {
		t.Error("handler was not called")
	}
}

func TestRequireAccount_NoAccount_HTMLRequest_Redirects(t *testing.T) {
	mw := newTestAuthMiddleware(&mockAccountService{})

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	})

	req := httptest.NewRequest("GET", "/clients?page=2", nil)
	rec := httptest.NewRecorder()

	mw.RequireAccount(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Errorf("status code = %d, want %d", rec.Code, http.StatusSeeOther)
	}
	location := rec.Header().Get("Location")
	if !strings.HasPrefix(location, "/login?return_to=") {
		t.Errorf("Location = %q, want /login?return_to=... prefix", location)
	}
	if !strings.Contains(location, "/clients") {
		t.Errorf("Location = %q, want return_to to carry original path", location)
	}
}

func TestRequireAccount_NoAccount_APIRequest_Returns401(t *testing.T) {
	mw := newTestAuthMiddleware(&mockAccountService{})

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	})

	req := httptest.NewRequest("GET", "/api/clients", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()

	mw.RequireAccount(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status code = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireEntitlement_StatusDrivesTheDecision(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name        string
		account     *domain.Account
		wantAllowed bool
	}{
		{
			name:        "trialing account passes",
			account:     accountWithStatus(domain.SubscriptionStatusTrialing, domain.SubscriptionTierFree, now),
			wantAllowed: true,
		},
		{
			name:        "active subscriber passes",
			account:     accountWithStatus(domain.SubscriptionStatusActive, domain.SubscriptionTierPro, now.AddDate(0, -6, 0)),
			wantAllowed: true,
		},
		{
			// The countdown hit zero long ago but the sweep has not
			// flipped the status yet. Status alone decides, so the
			// account still passes.
			name:        "trialing account past day 60 still passes",
			account:     accountWithStatus(domain.SubscriptionStatusTrialing, domain.SubscriptionTierFree, now.AddDate(0, 0, -100)),
			wantAllowed: true,
		},
		{
			// Young account whose subscription was canceled: plenty of
			// calendar days since creation remain, none of that matters.
			name:        "recently canceled account blocked despite young account",
			account:     accountWithStatus(domain.SubscriptionStatusCanceled, domain.SubscriptionTierFree, now.AddDate(0, 0, -3)),
			wantAllowed: false,
		},
		{
			name:        "past due account blocked",
			account:     accountWithStatus(domain.SubscriptionStatusPastDue, domain.SubscriptionTierStart, now.AddDate(0, -2, 0)),
			wantAllowed: false,
		},
		{
			name:        "no subscription status blocked",
			account:     accountWithStatus(domain.SubscriptionStatusNone, domain.SubscriptionTierFree, now),
			wantAllowed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mw := newTestAuthMiddleware(&mockAccountService{})

			handlerCalled := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handlerCalled = true
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest("POST", "/clients", nil)
			req = req.WithContext(auth.SetAccount(req.Context(), tt.account))
			rec := httptest.NewRecorder()

			mw.RequireEntitlement(next).ServeHTTP(rec, req)

			if handlerCalled != tt.wantAllowed {
				t.Errorf("handler called = %v, want %v", handlerCalled, tt.wantAllowed)
			}
			if !tt.wantAllowed {
				if rec.Code != http.StatusSeeOther {
					t.Errorf("status code = %d, want %d", rec.Code, http.StatusSeeOther)
				}
				if location := rec.Header().Get("Location"); location != "/settings/billing?expired=1" {
					t.Errorf("Location = %q, want /settings/billing?expired=1", location)
				}
			}
		})
	}
}

func TestRequireEntitlement_APIRequest_Returns402(t *testing.T) {
	mw := newTestAuthMiddleware(&mockAccountService{})

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	})

	account := accountWithStatus(domain.SubscriptionStatusCanceled, domain.SubscriptionTierFree, time.Now())
	req := httptest.NewRequest("POST", "/api/orders", nil)
	req.Header.Set("Accept", "application/json")
	req = req.WithContext(auth.SetAccount(req.Context(), account))
	rec := httptest.NewRecorder()

	mw.RequireEntitlement(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusPaymentRequired {
		t.Errorf("status code = %d, want %d", rec.Code, http.StatusPaymentRequired)
	}
}

func TestRequireEntitlement_NoAccount_RedirectsToLogin(t *testing.T) {
	mw := newTestAuthMiddleware(&mockAccountService{})

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	})

	req := httptest.NewRequest("GET", "/orders", nil)
	rec := httptest.NewRecorder()

	mw.RequireEntitlement(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Errorf("status code = %d, want %d", rec.Code, http.StatusSeeOther)
	}
	if location := rec.Header().Get("Location"); location != "/login" {
		t.Errorf("Location = %q, want /login", location)
	}
}

func TestSetSessionCookie_Flags(t *testing.T) {
	rec := httptest.NewRecorder()
	SetSessionCookie(rec, "token-value", true)

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("got %d cookies, want 1", len(cookies))
	}

	c := cookies[0]
	if c.Name != session.CookieName {
		t.Errorf("Name = %q, want %q", c.Name, session.CookieName)
	}
	if !c.HttpOnly {
		t.Error("cookie should be HttpOnly")
	}
	if !c.Secure {
		t.Error("cookie should be Secure when isSecure is true")
	}
	if c.SameSite != http.SameSiteLaxMode {
		t.Errorf("SameSite = %v, want Lax", c.SameSite)
	}
	if c.MaxAge != session.CookieMaxAge {
		t.Errorf("MaxAge = %d, want %d", c.MaxAge, session.CookieMaxAge)
	}
}

func TestStack_AppliesInOrder(t *testing.T) {
	var order []string

	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	stack := Stack(mark("outer"), mark("middle"), mark("inner"))
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	})

	req := httptest.NewRequest("GET", "/", nil)
	stack(final).ServeHTTP(httptest.NewRecorder(), req)

	want := []string{"outer", "middle", "inner", "handler"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}
