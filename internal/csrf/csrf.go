// Package csrf implements double-submit cookie CSRF protection.
//
// A random token lives in a cookie and is echoed back in every
// mutating request, either as a hidden form field or as a header on
// htmx requests. A cross-origin attacker can make the browser send the
// cookie but cannot read it, so it cannot reproduce the token in the
// request body.
package csrf

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
)

const (
	// CookieName is the CSRF token cookie. The middleware and the
	// csrfField template helper both key off it.
	CookieName = "csrf_token"

	// FormFieldName is the hidden form field carrying the token.
	FormFieldName = "csrf_token"

	// TokenLength is the number of random bytes per token.
	TokenLength = 32

	// CookieMaxAge keeps the token cookie shorter-lived than the
	// session cookie; a fresh one is minted on the next page view.
	CookieMaxAge = 3600
)

// GenerateToken returns TokenLength random bytes, base64 URL-encoded.
func GenerateToken() (string, error) {
	b := make([]byte, TokenLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// MustGenerateToken is GenerateToken for callers that cannot proceed
// without a token. crypto/rand failure is unrecoverable here.
func MustGenerateToken() string {
	token, err := GenerateToken()
	if err != nil {
		panic("csrf: failed to generate token: " + err.Error())
	}
	return token
}

// ValidateToken compares two tokens in constant time. Empty tokens
// never match anything, including each other.
func ValidateToken(cookieToken, submittedToken string) bool {
	if cookieToken == "" || submittedToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(cookieToken), []byte(submittedToken)) == 1
}

// ValidateRequest checks the token cookie against the form field.
// ParseForm must have run already.
func ValidateRequest(r *http.Request) bool {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return false
	}
	return ValidateToken(cookie.Value, r.FormValue(FormFieldName))
}

// SetCookie writes the token cookie. It is intentionally not HttpOnly:
// the htmx hx-headers snippets read it to attach X-CSRF-Token.
func SetCookie(w http.ResponseWriter, token string, isSecure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   CookieMaxAge,
		HttpOnly: false,
		Secure:   isSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

// GetTokenFromRequest returns the token cookie value, or "" when there
// is none.
func GetTokenFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// EnsureToken returns the request's existing token or mints a new one
// and sets its cookie. Handlers call this on GET so forms always have
// a token to embed.
func EnsureToken(w http.ResponseWriter, r *http.Request, isSecure bool) string {
	if existing := GetTokenFromRequest(r); existing != "" {
		return existing
	}
	token := MustGenerateToken()
	SetCookie(w, token, isSecure)
	return token
}

// RefreshToken mints a new token and sets its cookie. Called after
// login and registration so the token does not survive the privilege
// change.
func RefreshToken(w http.ResponseWriter, isSecure bool) string {
	token := MustGenerateToken()
	SetCookie(w, token, isSecure)
	return token
}
