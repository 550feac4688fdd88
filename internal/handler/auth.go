// Package handler contains HTTP handlers for the Mesura application.
//
// This file implements authentication handlers for account registration,
// login, and logout.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mesura-app/mesura/internal/csrf"
	"github.com/mesura-app/mesura/internal/domain"
	"github.com/mesura-app/mesura/internal/email"
	"github.com/mesura-app/mesura/internal/service"
	"github.com/mesura-app/mesura/internal/session"
)

// TemplateRenderer is the interface for rendering HTML templates.
// This interface allows for mocking in tests.
type TemplateRenderer interface {
	RenderHTTP(w http.ResponseWriter, name string, data interface{})
	RenderHTTPWithToast(w http.ResponseWriter, name string, data interface{}, toast ToastData)
	RenderPartial(w http.ResponseWriter, name string, data interface{})
}

// LoginThrottle records login outcomes so repeated failures from one
// address can be slowed down. The middleware package provides the
// implementation; the interface lives here because middleware imports
// handler for error responses and the dependency cannot run both ways.
type LoginThrottle interface {
	RecordFailedLogin(ip string)
	ResetLogin(ip string)
}

// AuthHandler handles authentication-related HTTP requests.
//
// Routes handled:
// - GET  /register -> ShowRegister
// - POST /register -> Register
// - GET  /login    -> ShowLogin
// - POST /login    -> Login
// - POST /logout   -> Logout
type AuthHandler struct {
	accounts service.AccountService
	emails   email.EmailService
	throttle LoginThrottle
	renderer TemplateRenderer
	logger   *slog.Logger
	isSecure bool
}

// NewAuthHandler creates a new AuthHandler with the required dependencies.
// throttle may be nil, in which case failed logins are not recorded.
func NewAuthHandler(
	accounts service.AccountService,
	emails email.EmailService,
	throttle LoginThrottle,
	renderer TemplateRenderer,
	logger *slog.Logger,
	isSecure bool,
) *AuthHandler {
	return &AuthHandler{
		accounts: accounts,
		emails:   emails,
		throttle: throttle,
		renderer: renderer,
		logger:   logger,
		isSecure: isSecure,
	}
}

// Flash represents a flash message to display to the user.
//
// The Type field determines styling in templates:
// - "success" -> green background
// - "error"   -> red background
// - "info"    -> blue background
type Flash struct {
	Type    string // "success", "error", or "info"
	Message string
}

// AuthPageData contains common data for authentication pages.
// This struct is passed to the login and register templates.
type AuthPageData struct {
	CurrentPath string            // Current URL path for navigation highlighting
	CSRFToken   string            // CSRF token for form protection
	Form        map[string]string // Form field values for re-populating on error
	Errors      map[string]string // Field-level validation errors
	Flash       *Flash            // Flash message to display
	ReturnTo    string            // URL to redirect to after successful login
}

// RegisterRoutes registers all auth routes on the provided ServeMux.
func (h *AuthHandler) RegisterRoutes(mux *http.ServeMux, limitLogin, limitRegister func(http.Handler) http.Handler) {
	if limitLogin == nil {
		limitLogin = passthrough
	}
	if limitRegister == nil {
		limitRegister = passthrough
	}
	mux.HandleFunc("GET /register", h.ShowRegister)
	mux.Handle("POST /register", limitRegister(http.HandlerFunc(h.Register)))
	mux.HandleFunc("GET /login", h.ShowLogin)
	mux.Handle("POST /login", limitLogin(http.HandlerFunc(h.Login)))
	mux.HandleFunc("POST /logout", h.Logout)
}

func passthrough(next http.Handler) http.Handler { return next }

// ShowRegister renders the registration form.
func (h *AuthHandler) ShowRegister(w http.ResponseWriter, r *http.Request) {
	token := csrf.EnsureToken(w, r, h.isSecure)

	data := AuthPageData{
		CurrentPath: r.URL.Path,
		CSRFToken:   token,
		Form:        make(map[string]string),
		Errors:      make(map[string]string),
		ReturnTo:    r.URL.Query().Get("return_to"),
	}

	h.renderer.RenderHTTP(w, "auth/register", data)
}

// Register processes the registration form submission.
//
// On success the account is created, a welcome email is sent
// asynchronously, the account is logged in, and the browser is redirected
// to the dashboard. New accounts start their trial immediately; there is
// no email verification step and no payment method is required.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.logger.Error("failed to parse form", "error", err)
		h.renderRegisterError(w, r, nil, nil, &Flash{
			Type:    "error",
			Message: "Invalid form submission. Please try again.",
		})
		return
	}

	if !csrf.ValidateRequest(r) {
		h.renderRegisterError(w, r, nil, nil, &Flash{
			Type:    "error",
			Message: "Invalid security token. Please try again.",
		})
		return
	}

	name := strings.TrimSpace(r.FormValue("name"))
	emailAddr := strings.ToLower(strings.TrimSpace(r.FormValue("email")))
	workshopName := strings.TrimSpace(r.FormValue("workshop_name"))
	phone := strings.TrimSpace(r.FormValue("phone"))
	password := r.FormValue("password")
	passwordConfirmation := r.FormValue("password_confirmation")
	terms := r.FormValue("terms")
	returnTo := r.FormValue("return_to")

	// Form values for re-rendering. Passwords are never echoed back.
	formValues := map[string]string{
		"name":          name,
		"email":         emailAddr,
		"workshop_name": workshopName,
		"phone":         phone,
	}

	errors := make(map[string]string)

	if name == "" {
		errors["name"] = "Name is required"
	}

	if emailAddr == "" {
		errors["email"] = "Email is required"
	} else if !isValidEmail(emailAddr) {
		errors["email"] = "Please enter a valid email address"
	}

	if password == "" {
		errors["password"] = "Password is required"
	} else if len(password) < 8 {
		errors["password"] = "Password must be at least 8 characters"
	}

	if passwordConfirmation == "" {
		errors["password_confirmation"] = "Please confirm your password"
	} else if password != passwordConfirmation {
		errors["password_confirmation"] = "Passwords do not match"
	}

	if terms != "on" {
		errors["terms"] = "You must accept the Terms of Service"
	}

	if len(errors) > 0 {
		h.renderRegisterError(w, r, formValues, errors, nil)
		return
	}

	account, err := h.accounts.Register(r.Context(), domain.RegisterParams{
		Email:        emailAddr,
		Password:     password,
		Name:         name,
		WorkshopName: workshopName,
		Phone:        phone,
	})
	if err != nil {
		switch domain.ErrorCode(err) {
		case domain.ECONFLICT:
			errors["email"] = "An account with this email already exists"
			h.renderRegisterError(w, r, formValues, errors, nil)
		case domain.EINVALID:
			h.renderRegisterError(w, r, formValues, nil, &Flash{
				Type:    "error",
				Message: domain.ErrorMessage(err),
			})
		default:
			h.logger.Error("registration failed", "error", err, "email", emailAddr)
			h.renderRegisterError(w, r, formValues, nil, &Flash{
				Type:    "error",
				Message: "Registration failed. Please try again later.",
			})
		}
		return
	}

	go h.sendWelcomeEmail(account.Email, account.DisplayName())

	// Registration succeeded; log the account in automatically.
	loginResult, err := h.accounts.Login(r.Context(), emailAddr, password)
	if err != nil {
		h.logger.Error("auto-login after registration failed", "error", err, "email", emailAddr)
		http.Redirect(w, r, "/login?registered=1", http.StatusSeeOther)
		return
	}

	setSessionCookie(w, loginResult.Token, h.isSecure)

	h.logger.Info("account registered and logged in",
		"account_id", loginResult.Account.ID,
		"email", loginResult.Account.Email,
	)

	redirectURL := "/dashboard"
	if returnTo != "" && isSafeRedirectURL(returnTo) {
		redirectURL = returnTo
	}
	http.Redirect(w, r, redirectURL, http.StatusSeeOther)
}

// renderRegisterError re-renders the registration form with errors.
func (h *AuthHandler) renderRegisterError(
	w http.ResponseWriter,
	r *http.Request,
	formValues map[string]string,
	errors map[string]string,
	flash *Flash,
) {
	if formValues == nil {
		formValues = make(map[string]string)
	}
	if errors == nil {
		errors = make(map[string]string)
	}

	data := AuthPageData{
		CurrentPath: "/register",
		CSRFToken:   csrf.RefreshToken(w, h.isSecure),
		Form:        formValues,
		Errors:      errors,
		Flash:       flash,
		ReturnTo:    r.FormValue("return_to"),
	}

	h.renderer.RenderHTTP(w, "auth/register", data)
}

// ShowLogin renders the login form.
//
// Query Parameters:
// - return_to (optional): URL to redirect to after successful login
// - registered (optional): If "1", show success message for new registration
// - logout (optional): If "1", show signed-out message
func (h *AuthHandler) ShowLogin(w http.ResponseWriter, r *http.Request) {
	token := csrf.EnsureToken(w, r, h.isSecure)

	var flash *Flash
	if r.URL.Query().Get("registered") == "1" {
		flash = &Flash{
			Type:    "success",
			Message: "Account created successfully! Please sign in.",
		}
	} else if r.URL.Query().Get("logout") == "1" {
		flash = &Flash{
			Type:    "success",
			Message: "You have been signed out.",
		}
	}

	data := AuthPageData{
		CurrentPath: r.URL.Path,
		CSRFToken:   token,
		Form:        make(map[string]string),
		Errors:      make(map[string]string),
		Flash:       flash,
		ReturnTo:    r.URL.Query().Get("return_to"),
	}

	h.renderer.RenderHTTP(w, "auth/login", data)
}

// Login processes the login form submission.
//
// Failed attempts always produce the same generic message so the response
// does not reveal whether the email exists. Failures are reported to the
// throttle; a success resets it.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.logger.Error("failed to parse form", "error", err)
		h.renderLoginError(w, r, nil, nil, &Flash{
			Type:    "error",
			Message: "Invalid form submission. Please try again.",
		})
		return
	}

	if !csrf.ValidateRequest(r) {
		h.renderLoginError(w, r, nil, nil, &Flash{
			Type:    "error",
			Message: "Invalid security token. Please try again.",
		})
		return
	}

	emailAddr := strings.ToLower(strings.TrimSpace(r.FormValue("email")))
	password := r.FormValue("password")
	returnTo := r.FormValue("return_to")

	formValues := map[string]string{
		"email": emailAddr,
	}

	errors := make(map[string]string)

	if emailAddr == "" {
		errors["email"] = "Email is required"
	}

	if password == "" {
		errors["password"] = "Password is required"
	}

	if len(errors) > 0 {
		h.renderLoginError(w, r, formValues, errors, nil)
		return
	}

	loginResult, err := h.accounts.Login(r.Context(), emailAddr, password)
	if err != nil {
		switch domain.ErrorCode(err) {
		case domain.EUNAUTHORIZED:
			if h.throttle != nil {
				h.throttle.RecordFailedLogin(clientIP(r))
			}
			h.renderLoginError(w, r, formValues, nil, &Flash{
				Type:    "error",
				Message: "Invalid email or password",
			})
		default:
			h.logger.Error("login failed", "error", err, "email", emailAddr)
			h.renderLoginError(w, r, formValues, nil, &Flash{
				Type:    "error",
				Message: "Login failed. Please try again later.",
			})
		}
		return
	}

	if h.throttle != nil {
		h.throttle.ResetLogin(clientIP(r))
	}

	setSessionCookie(w, loginResult.Token, h.isSecure)

	h.logger.Info("account logged in",
		"account_id", loginResult.Account.ID,
		"email", loginResult.Account.Email,
	)

	redirectURL := "/dashboard"
	if returnTo != "" && isSafeRedirectURL(returnTo) {
		redirectURL = returnTo
	}
	http.Redirect(w, r, redirectURL, http.StatusSeeOther)
}

// renderLoginError re-renders the login form with errors.
func (h *AuthHandler) renderLoginError(
	w http.ResponseWriter,
	r *http.Request,
	formValues map[string]string,
	errors map[string]string,
	flash *Flash,
) {
	if formValues == nil {
		formValues = make(map[string]string)
	}
	if errors == nil {
		errors = make(map[string]string)
	}

	data := AuthPageData{
		CurrentPath: "/login",
		CSRFToken:   csrf.RefreshToken(w, h.isSecure),
		Form:        formValues,
		Errors:      errors,
		Flash:       flash,
		ReturnTo:    r.FormValue("return_to"),
	}

	h.renderer.RenderHTTP(w, "auth/login", data)
}

// Logout invalidates the session and clears the session cookie.
//
// The operation is idempotent. The cookie is cleared even when the
// database invalidation fails.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(session.CookieName)
	if err == nil && cookie.Value != "" {
		if err := h.accounts.Logout(r.Context(), cookie.Value); err != nil {
			h.logger.Warn("failed to invalidate session in database", "error", err)
		}
	}

	clearSessionCookie(w, h.isSecure)

	http.Redirect(w, r, "/login?logout=1", http.StatusSeeOther)
}

// sendWelcomeEmail sends the welcome email in the background with its own
// timeout, detached from the request context.
func (h *AuthHandler) sendWelcomeEmail(emailAddr, name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := h.emails.SendWelcomeEmail(ctx, emailAddr, name); err != nil {
		h.logger.Error("failed to send welcome email", "error", err, "email", emailAddr)
		return
	}

	h.logger.Info("welcome email sent", "email", emailAddr)
}

// =============================================================================
// Session Cookie Helpers
// =============================================================================

// setSessionCookie sets the session cookie on the response.
//
// HttpOnly keeps the token away from JavaScript; SameSite=Lax prevents
// cross-site POSTs from carrying the cookie while allowing normal
// navigation.
func setSessionCookie(w http.ResponseWriter, token string, isSecure bool) {
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

// clearSessionCookie removes the session cookie from the client.
func clearSessionCookie(w http.ResponseWriter, isSecure bool) {
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

// =============================================================================
// Helper Functions
// =============================================================================

// isValidEmail performs basic email format validation.
//
// The account service performs the authoritative validation; this check
// exists to give immediate field-level feedback.
func isValidEmail(email string) bool {
	atIndex := strings.Index(email, "@")
	if atIndex < 1 {
		return false
	}
	if atIndex >= len(email)-1 {
		return false
	}

	domainPart := email[atIndex+1:]
	return strings.Contains(domainPart, ".")
}

// isSafeRedirectURL checks if a URL is safe to redirect to.
//
// This prevents open redirects by requiring a relative URL with no
// scheme or host:
//   - "/dashboard"            -> true
//   - "/settings?tab=profile" -> true
//   - "//evil.com"            -> false (protocol-relative)
//   - "https://evil.com"      -> false (absolute external URL)
//   - "javascript:alert(1)"   -> false
func isSafeRedirectURL(rawURL string) bool {
	if !strings.HasPrefix(rawURL, "/") {
		return false
	}

	if strings.HasPrefix(rawURL, "//") {
		return false
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	if parsed.Scheme != "" {
		return false
	}

	return parsed.Host == ""
}

// clientIP extracts the client address for throttle bookkeeping. It
// trusts X-Forwarded-For because the app runs behind a reverse proxy.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		host = host[:idx]
	}
	return host
}
