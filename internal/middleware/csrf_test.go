package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/mesura-app/mesura/internal/csrf"
)

func csrfTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

func TestCSRFProtect_GetEnsuresCookie(t *testing.T) {
	m := NewCSRFMiddleware(csrfTestLogger(), false)
	var called bool
	handler := m.Protect(okHandler(&called))

	req := httptest.NewRequest(http.MethodGet, "/clients", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called {
		t.Fatal("next handler was not called")
	}
	var found bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == csrf.CookieName && c.Value != "" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected %s cookie on GET response", csrf.CookieName)
	}
}

func TestCSRFProtect_PostWithoutTokenRejected(t *testing.T) {
	m := NewCSRFMiddleware(csrfTestLogger(), false)
	var called bool
	handler := m.Protect(okHandler(&called))

	req := httptest.NewRequest(http.MethodPost, "/clients", strings.NewReader("name=Ada"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if called {
		t.Error("next handler should not run without a token")
	}
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestCSRFProtect_PostWithFormToken(t *testing.T) {
	m := NewCSRFMiddleware(csrfTestLogger(), false)
	var called bool
	handler := m.Protect(okHandler(&called))

	token := csrf.MustGenerateToken()
	form := url.Values{csrf.FormFieldName: {token}, "name": {"Ada"}}
	req := httptest.NewRequest(http.MethodPost, "/clients", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: csrf.CookieName, Value: token})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called {
		t.Error("next handler should run with a matching form token")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestCSRFProtect_PutWithHeaderToken(t *testing.T) {
	m := NewCSRFMiddleware(csrfTestLogger(), false)
	var called bool
	handler := m.Protect(okHandler(&called))

	token := csrf.MustGenerateToken()
	req := httptest.NewRequest(http.MethodPut, "/orders/abc/status", strings.NewReader("status=done"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-CSRF-Token", token)
	req.AddCookie(&http.Cookie{Name: csrf.CookieName, Value: token})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called {
		t.Error("next handler should run with a matching header token")
	}
}

func TestCSRFProtect_MismatchedHeaderRejected(t *testing.T) {
	m := NewCSRFMiddleware(csrfTestLogger(), false)
	var called bool
	handler := m.Protect(okHandler(&called))

	req := httptest.NewRequest(http.MethodDelete, "/clients/abc", nil)
	req.Header.Set("X-CSRF-Token", csrf.MustGenerateToken())
	req.AddCookie(&http.Cookie{Name: csrf.CookieName, Value: csrf.MustGenerateToken()})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if called {
		t.Error("next handler should not run with mismatched tokens")
	}
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestCSRFProtect_JSONRequestGetsJSONError(t *testing.T) {
	m := NewCSRFMiddleware(csrfTestLogger(), false)
	var called bool
	handler := m.Protect(okHandler(&called))

	req := httptest.NewRequest(http.MethodPost, "/clients", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}
