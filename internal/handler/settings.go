// Package handler contains HTTP handlers for the Mesura application.
//
// This file implements the account settings pages: workshop profile and
// password change. Billing settings live in billing.go.
//
// Routes handled:
//   - GET  /settings          -> ShowSettings (redirects to profile)
//   - GET  /settings/profile  -> ShowProfile
//   - PUT  /settings/profile  -> UpdateProfile
//   - GET  /settings/password -> ShowPassword
//   - PUT  /settings/password -> ChangePassword
package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/mesura-app/mesura/internal/auth"
	"github.com/mesura-app/mesura/internal/csrf"
	"github.com/mesura-app/mesura/internal/domain"
	"github.com/mesura-app/mesura/internal/service"
)

// SettingsPageData contains data for the settings pages.
type SettingsPageData struct {
	CurrentPath string
	Account     *domain.Account
	Form        map[string]string
	Errors      map[string]string
	Flash       *Flash
	CSRFToken   string
}

// SettingsHandler handles account settings HTTP requests.
type SettingsHandler struct {
	accounts service.AccountService
	renderer TemplateRenderer
	logger   *slog.Logger
}

// NewSettingsHandler creates a new SettingsHandler.
func NewSettingsHandler(
	accounts service.AccountService,
	renderer TemplateRenderer,
	logger *slog.Logger,
) *SettingsHandler {
	return &SettingsHandler{
		accounts: accounts,
		renderer: renderer,
		logger:   logger,
	}
}

// RegisterRoutes registers settings routes on the provided mux. Like the
// billing routes, these require a logged-in account but not entitlement,
// so a lapsed account can still manage its profile and password.
func (h *SettingsHandler) RegisterRoutes(mux *http.ServeMux, guard func(http.Handler) http.Handler) {
	mux.Handle("GET /settings", guard(http.HandlerFunc(h.ShowSettings)))
	mux.Handle("GET /settings/profile", guard(http.HandlerFunc(h.ShowProfile)))
	mux.Handle("PUT /settings/profile", guard(http.HandlerFunc(h.UpdateProfile)))
	mux.Handle("GET /settings/password", guard(http.HandlerFunc(h.ShowPassword)))
	mux.Handle("PUT /settings/password", guard(http.HandlerFunc(h.ChangePassword)))
}

// ShowSettings redirects the bare settings path to the profile tab.
func (h *SettingsHandler) ShowSettings(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/settings/profile", http.StatusSeeOther)
}

// ShowProfile renders the workshop profile form.
func (h *SettingsHandler) ShowProfile(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromRequest(r)
	if account == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	var flash *Flash
	if r.URL.Query().Get("updated") == "1" {
		flash = &Flash{Type: "success", Message: "Profile updated."}
	}

	data := SettingsPageData{
		CurrentPath: r.URL.Path,
		Account:     account,
		Form: map[string]string{
			"name":          account.Name,
			"workshop_name": account.WorkshopName,
			"phone":         account.Phone,
		},
		Errors:    make(map[string]string),
		Flash:     flash,
		CSRFToken: csrf.GetTokenFromRequest(r),
	}

	h.renderer.RenderHTTP(w, "settings/profile", data)
}

// UpdateProfile processes the workshop profile form.
func (h *SettingsHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromRequest(r)
	if account == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	if err := r.ParseForm(); err != nil {
		h.logger.Error("failed to parse form", "error", err)
		http.Redirect(w, r, "/settings/profile", http.StatusSeeOther)
		return
	}

	formValues := map[string]string{
		"name":          strings.TrimSpace(r.FormValue("name")),
		"workshop_name": strings.TrimSpace(r.FormValue("workshop_name")),
		"phone":         strings.TrimSpace(r.FormValue("phone")),
	}

	errors := make(map[string]string)
	if formValues["name"] == "" {
		errors["name"] = "Name is required"
	} else if len(formValues["name"]) > 200 {
		errors["name"] = "Name must be 200 characters or less"
	}
	if len(formValues["workshop_name"]) > 200 {
		errors["workshop_name"] = "Workshop name must be 200 characters or less"
	}

	if len(errors) > 0 {
		h.renderProfile(w, r, account, formValues, errors, nil)
		return
	}

	err := h.accounts.UpdateProfile(r.Context(), domain.ProfileUpdateParams{
		AccountID:    account.ID,
		Name:         formValues["name"],
		WorkshopName: formValues["workshop_name"],
		Phone:        formValues["phone"],
	})
	if err != nil {
		if domain.ErrorCode(err) == domain.EINVALID {
			errors["_form"] = domain.ErrorMessage(err)
			h.renderProfile(w, r, account, formValues, errors, nil)
			return
		}
		h.logger.Error("failed to update profile", "error", err, "account_id", account.ID)
		h.renderProfile(w, r, account, formValues, errors, &Flash{
			Type:    "error",
			Message: "Failed to update profile. Please try again.",
		})
		return
	}

	h.logger.Info("profile updated", "account_id", account.ID)

	http.Redirect(w, r, "/settings/profile?updated=1", http.StatusSeeOther)
}

// ShowPassword renders the password change form.
func (h *SettingsHandler) ShowPassword(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromRequest(r)
	if account == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	var flash *Flash
	if r.URL.Query().Get("updated") == "1" {
		flash = &Flash{Type: "success", Message: "Password changed."}
	}

	data := SettingsPageData{
		CurrentPath: r.URL.Path,
		Account:     account,
		Form:        make(map[string]string),
		Errors:      make(map[string]string),
		Flash:       flash,
		CSRFToken:   csrf.GetTokenFromRequest(r),
	}

	h.renderer.RenderHTTP(w, "settings/password", data)
}

// ChangePassword processes the password change form.
//
// Form Fields:
//   - current_password (required)
//   - new_password (required, min 8 characters)
//   - confirm_password (required, must match)
func (h *SettingsHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromRequest(r)
	if account == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	if err := r.ParseForm(); err != nil {
		h.logger.Error("failed to parse form", "error", err)
		http.Redirect(w, r, "/settings/password", http.StatusSeeOther)
		return
	}

	current := r.FormValue("current_password")
	newPassword := r.FormValue("new_password")
	confirm := r.FormValue("confirm_password")

	errors := make(map[string]string)
	if current == "" {
		errors["current_password"] = "Current password is required"
	}
	if len(newPassword) < 8 {
		errors["new_password"] = "Password must be at least 8 characters"
	}
	if newPassword != confirm {
		errors["confirm_password"] = "Passwords do not match"
	}

	if len(errors) > 0 {
		h.renderPassword(w, r, account, errors, nil)
		return
	}

	err := h.accounts.ChangePassword(r.Context(), domain.PasswordChangeParams{
		AccountID:       account.ID,
		CurrentPassword: current,
		NewPassword:     newPassword,
	})
	if err != nil {
		switch domain.ErrorCode(err) {
		case domain.EUNAUTHORIZED:
			errors["current_password"] = "Current password is incorrect"
			h.renderPassword(w, r, account, errors, nil)
		case domain.EINVALID:
			errors["new_password"] = domain.ErrorMessage(err)
			h.renderPassword(w, r, account, errors, nil)
		default:
			h.logger.Error("failed to change password", "error", err, "account_id", account.ID)
			h.renderPassword(w, r, account, errors, &Flash{
				Type:    "error",
				Message: "Failed to change password. Please try again.",
			})
		}
		return
	}

	h.logger.Info("password changed", "account_id", account.ID)

	http.Redirect(w, r, "/settings/password?updated=1", http.StatusSeeOther)
}

// renderProfile renders the profile form with the given state.
func (h *SettingsHandler) renderProfile(w http.ResponseWriter, r *http.Request, account *domain.Account, form, errors map[string]string, flash *Flash) {
	data := SettingsPageData{
		CurrentPath: r.URL.Path,
		Account:     account,
		Form:        form,
		Errors:      errors,
		Flash:       flash,
		CSRFToken:   csrf.GetTokenFromRequest(r),
	}
	h.renderer.RenderHTTP(w, "settings/profile", data)
}

// renderPassword renders the password form with the given state.
func (h *SettingsHandler) renderPassword(w http.ResponseWriter, r *http.Request, account *domain.Account, errors map[string]string, flash *Flash) {
	data := SettingsPageData{
		CurrentPath: r.URL.Path,
		Account:     account,
		Form:        make(map[string]string),
		Errors:      errors,
		Flash:       flash,
		CSRFToken:   csrf.GetTokenFromRequest(r),
	}
	h.renderer.RenderHTTP(w, "settings/password", data)
}
