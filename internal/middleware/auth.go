// Package middleware contains HTTP middleware for the Mesura application.
//
// Middleware functions follow the standard Go pattern of wrapping http.Handler.
// They are designed to be composed using a middleware stack approach.
package middleware

import (
	"net/http"
	"strings"

	"github.com/mesura-app/mesura/internal/auth"
	"github.com/mesura-app/mesura/internal/handler"
	"github.com/mesura-app/mesura/internal/service"
	"github.com/mesura-app/mesura/internal/session"

	"log/slog"
)

// AuthMiddleware provides authentication and entitlement middleware.
//
// This struct holds dependencies needed by auth middleware functions.
// Create one instance and use its methods as middleware.
type AuthMiddleware struct {
	accounts service.AccountService
	logger   *slog.Logger
	isSecure bool // Whether to set Secure flag on cookies (true in production)
}

// NewAuthMiddleware creates a new AuthMiddleware instance.
func NewAuthMiddleware(accounts service.AccountService, logger *slog.Logger, isSecure bool) *AuthMiddleware {
	return &AuthMiddleware{
		accounts: accounts,
		logger:   logger,
		isSecure: isSecure,
	}
}

// WithAccount is middleware that attempts to load the account from the
// session cookie.
//
// It continues to the next handler regardless of authentication status,
// so it is safe on routes that work both logged in and logged out. The
// account can be retrieved in handlers with auth.GetAccount(r.Context()).
func (m *AuthMiddleware) WithAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(session.CookieName)
		if err != nil {
			// No cookie found - continue without account
			next.ServeHTTP(w, r)
			return
		}

		account, err := m.accounts.GetBySessionToken(r.Context(), cookie.Value)
		if err != nil {
			// Invalid or expired session - clear the cookie and continue
			ClearSessionCookie(w, m.isSecure)
			next.ServeHTTP(w, r)
			return
		}

		r = r.WithContext(auth.SetAccount(r.Context(), account))
		next.ServeHTTP(w, r)
	})
}

// RequireAccount is middleware that requires an authenticated account.
//
// Unauthenticated requests are redirected to /login (HTML) or receive a
// 401 (JSON). Must be used AFTER WithAccount in the middleware chain.
func (m *AuthMiddleware) RequireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account := auth.GetAccount(r.Context())
		if account == nil {
			if isAPIRequest(r) {
				handler.UnauthorizedResponse(w, r, m.logger)
				return
			}

			// Include return_to parameter for post-login redirect
			returnTo := r.URL.Path
			if r.URL.RawQuery != "" {
				returnTo += "?" + r.URL.RawQuery
			}
			http.Redirect(w, r, "/login?return_to="+returnTo, http.StatusSeeOther)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequireEntitlement is middleware that gates paid features.
//
// The decision rests on the subscription status alone: a trialing or
// active account passes, everything else is sent to the billing page
// (HTML) or receives 402 Payment Required (JSON). The remaining trial
// days are presentation only and never consulted here.
//
// Must be used AFTER RequireAccount in the middleware chain.
func (m *AuthMiddleware) RequireEntitlement(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account := auth.GetAccount(r.Context())
		if account == nil {
			m.logger.Error("RequireEntitlement called without account in context")
			if isAPIRequest(r) {
				handler.UnauthorizedResponse(w, r, m.logger)
			} else {
				http.Redirect(w, r, "/login", http.StatusSeeOther)
			}
			return
		}

		if !account.IsEntitled() {
			if isAPIRequest(r) {
				handler.PaymentRequiredResponse(w, r, m.logger)
				return
			}

			http.Redirect(w, r, "/settings/billing?expired=1", http.StatusSeeOther)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// SetSessionCookie sets the session cookie on the response.
//
// Cookie settings:
// - HttpOnly: true - Prevents JavaScript access (XSS protection)
// - Secure: configurable - Set true in production (HTTPS only)
// - SameSite: Lax - Prevents CSRF while allowing normal navigation
// - MaxAge: 7 days - Matches session duration
func SetSessionCookie(w http.ResponseWriter, token string, isSecure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    token,
		Path:     session.CookiePath,
		MaxAge:   session.CookieMaxAge,
		HttpOnly: true,
		Secure:   isSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie removes the session cookie from the client by
// setting MaxAge to -1.
func ClearSessionCookie(w http.ResponseWriter, isSecure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    "",
		Path:     session.CookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   isSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// isAPIRequest determines if the request expects a JSON response.
//
// This is used to decide whether to redirect (HTML) or return JSON errors (API).
func isAPIRequest(r *http.Request) bool {
	// htmx requests want HTML fragments
	if r.Header.Get("HX-Request") == "true" {
		return false
	}

	accept := r.Header.Get("Accept")
	if strings.Contains(accept, "application/json") {
		return true
	}

	contentType := r.Header.Get("Content-Type")
	if strings.Contains(contentType, "application/json") {
		return true
	}

	if strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}

	return false
}

// Stack composes multiple middleware functions into a single middleware.
//
// Middleware is applied in the order provided, meaning the first middleware
// in the slice is the outermost (runs first on request, last on response).
//
// Example:
//
//	stack := Stack(loggingMw, authMw.WithAccount, authMw.RequireAccount)
//	mux.Handle("GET /dashboard", stack(dashboardHandler))
func Stack(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// Ensure middleware functions have correct signature
var (
	_ func(http.Handler) http.Handler = (&AuthMiddleware{}).WithAccount
	_ func(http.Handler) http.Handler = (&AuthMiddleware{}).RequireAccount
	_ func(http.Handler) http.Handler = (&AuthMiddleware{}).RequireEntitlement
)
