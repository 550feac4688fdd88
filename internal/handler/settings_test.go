package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/mesura-app/mesura/internal/domain"
	"github.com/mesura-app/mesura/internal/service"
)

// mockSettingsAccounts records profile and password changes.
type mockSettingsAccounts struct {
	service.AccountService

	profileUpdates  []domain.ProfileUpdateParams
	passwordChanges []domain.PasswordChangeParams
	passwordErr     error
}

func (m *mockSettingsAccounts) UpdateProfile(_ context.Context, params domain.ProfileUpdateParams) error {
	m.profileUpdates = append(m.profileUpdates, params)
	return nil
}

func (m *mockSettingsAccounts) ChangePassword(_ context.Context, params domain.PasswordChangeParams) error {
	if m.passwordErr != nil {
		return m.passwordErr
	}
	m.passwordChanges = append(m.passwordChanges, params)
	return nil
}

func TestUpdateProfile_Success(t *testing.T) {
	account := trialingAccount()
	accounts := &mockSettingsAccounts{}
	h := NewSettingsHandler(accounts, &mockRenderer{}, billingTestLogger())

	form := url.Values{
		"name":          {"Amara Diallo"},
		"workshop_name": {"Atelier Diallo"},
		"phone":         {"+221 77 000 0000"},
	}
	req := requestWithAccount(http.MethodPut, "/settings/profile", strings.NewReader(form.Encode()), account)
	rec := httptest.NewRecorder()

	h.UpdateProfile(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusSeeOther)
	}
	if loc := rec.Header().Get("Location"); loc != "/settings/profile?updated=1" {
		t.Errorf("Location = %q", loc)
	}
	if len(accounts.profileUpdates) != 1 {
		t.Fatalf("recorded %d profile updates, want 1", len(accounts.profileUpdates))
	}
	got := accounts.profileUpdates[0]
	if got.Name != "Amara Diallo" || got.WorkshopName != "Atelier Diallo" {
		t.Errorf("params = %+v", got)
	}
}

func TestUpdateProfile_MissingNameRerendersForm(t *testing.T) {
	account := trialingAccount()
	accounts := &mockSettingsAccounts{}
	renderer := &mockRenderer{}
	h := NewSettingsHandler(accounts, renderer, billingTestLogger())

	form := url.Values{"name": {"   "}}
	req := requestWithAccount(http.MethodPut, "/settings/profile", strings.NewReader(form.Encode()), account)
	rec := httptest.NewRecorder()

	h.UpdateProfile(rec, req)

	if len(accounts.profileUpdates) != 0 {
		t.Error("invalid form must not reach the account service")
	}
	if len(renderer.names) != 1 || renderer.names[0] != "settings/profile" {
		t.Fatalf("rendered %v, want [settings/profile]", renderer.names)
	}
	data := renderer.data[0].(SettingsPageData)
	if data.Errors["name"] == "" {
		t.Error("expected a name validation error")
	}
}

func TestChangePassword_Success(t *testing.T) {
	account := trialingAccount()
	accounts := &mockSettingsAccounts{}
	h := NewSettingsHandler(accounts, &mockRenderer{}, billingTestLogger())

	form := url.Values{
		"current_password": {"old-password"},
		"new_password":     {"brand-new-password"},
		"confirm_password": {"brand-new-password"},
	}
	req := requestWithAccount(http.MethodPut, "/settings/password", strings.NewReader(form.Encode()), account)
	rec := httptest.NewRecorder()

	h.ChangePassword(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusSeeOther)
	}
	if len(accounts.passwordChanges) != 1 {
		t.Fatalf("recorded %d password changes, want 1", len(accounts.passwordChanges))
	}
	if accounts.passwordChanges[0].NewPassword != "brand-new-password" {
		t.Errorf("NewPassword = %q", accounts.passwordChanges[0].NewPassword)
	}
}

func TestChangePassword_MismatchedConfirmation(t *testing.T) {
	account := trialingAccount()
	accounts := &mockSettingsAccounts{}
	renderer := &mockRenderer{}
	h := NewSettingsHandler(accounts, renderer, billingTestLogger())

	form := url.Values{
		"current_password": {"old-password"},
		"new_password":     {"brand-new-password"},
		"confirm_password": {"different-password"},
	}
	req := requestWithAccount(http.MethodPut, "/settings/password", strings.NewReader(form.Encode()), account)
	rec := httptest.NewRecorder()

	h.ChangePassword(rec, req)

	if len(accounts.passwordChanges) != 0 {
		t.Error("mismatched confirmation must not reach the account service")
	}
	data := renderer.data[0].(SettingsPageData)
	if data.Errors["confirm_password"] == "" {
		t.Error("expected a confirmation validation error")
	}
}

func TestChangePassword_WrongCurrentPassword(t *testing.T) {
	account := trialingAccount()
	accounts := &mockSettingsAccounts{
		passwordErr: &domain.Error{Code: domain.EUNAUTHORIZED, Message: "invalid credentials"},
	}
	renderer := &mockRenderer{}
	h := NewSettingsHandler(accounts, renderer, billingTestLogger())

	form := url.Values{
		"current_password": {"wrong-password"},
		"new_password":     {"brand-new-password"},
		"confirm_password": {"brand-new-password"},
	}
	req := requestWithAccount(http.MethodPut, "/settings/password", strings.NewReader(form.Encode()), account)
	rec := httptest.NewRecorder()

	h.ChangePassword(rec, req)

	data := renderer.data[0].(SettingsPageData)
	if data.Errors["current_password"] != "Current password is incorrect" {
		t.Errorf("current_password error = %q", data.Errors["current_password"])
	}
}
