// Package handler contains HTTP handlers for the Mesura application.
//
// This file implements client CRUD handlers plus the measurements form.
package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/mesura-app/mesura/internal/auth"
	"github.com/mesura-app/mesura/internal/csrf"
	"github.com/mesura-app/mesura/internal/domain"
	"github.com/mesura-app/mesura/internal/service"
)

// defaultClientPageSize is the page size for the clients list.
const defaultClientPageSize = 25

// =============================================================================
// Template Data Types
// =============================================================================

// ClientListPageData contains data for the clients list page.
type ClientListPageData struct {
	CurrentPath string
	Account     *domain.Account
	Result      *domain.ListClientsResult
	Flash       *Flash
	CSRFToken   string
}

// ClientFormPageData contains data for the client create/edit form.
type ClientFormPageData struct {
	CurrentPath string
	Account     *domain.Account
	Client      *domain.Client // Client being edited (nil for create)
	Form        map[string]string
	Errors      map[string]string
	Flash       *Flash
	IsEdit      bool
	IsModal     bool // true if rendering in modal (htmx)
	// QuotaNotice, when set, replaces the form with a blocking notice
	// and an upgrade link.
	QuotaNotice string
	CSRFToken   string
}

// ClientShowPageData contains data for the client detail page.
type ClientShowPageData struct {
	CurrentPath  string
	Account      *domain.Account
	Client       *domain.Client
	Measurements *domain.Measurements
	Flash        *Flash
	CSRFToken    string
}

// MeasurementsFormPageData contains data for the measurements form.
type MeasurementsFormPageData struct {
	CurrentPath  string
	Account      *domain.Account
	Client       *domain.Client
	Measurements *domain.Measurements
	Errors       map[string]string
	Flash        *Flash
	CSRFToken    string
}

// =============================================================================
// Handler Configuration
// =============================================================================

// ClientHandler handles client-related HTTP requests.
type ClientHandler struct {
	clients  service.ClientService
	quotas   service.QuotaService
	renderer TemplateRenderer
	logger   *slog.Logger
}

// NewClientHandler creates a new ClientHandler.
func NewClientHandler(
	clients service.ClientService,
	quotas service.QuotaService,
	renderer TemplateRenderer,
	logger *slog.Logger,
) *ClientHandler {
	return &ClientHandler{
		clients:  clients,
		quotas:   quotas,
		renderer: renderer,
		logger:   logger,
	}
}

// RegisterRoutes registers all client routes with the provided mux.
// The guard parameter wraps each route; callers pass the authenticated
// and entitled middleware stack.
func (h *ClientHandler) RegisterRoutes(mux *http.ServeMux, guard func(http.Handler) http.Handler) {
	mux.Handle("GET /clients", guard(http.HandlerFunc(h.Index)))
	mux.Handle("GET /clients/new", guard(http.HandlerFunc(h.New)))
	mux.Handle("POST /clients", guard(http.HandlerFunc(h.Create)))
	mux.Handle("GET /clients/{id}", guard(http.HandlerFunc(h.Show)))
	mux.Handle("GET /clients/{id}/edit", guard(http.HandlerFunc(h.Edit)))
	mux.Handle("PUT /clients/{id}", guard(http.HandlerFunc(h.Update)))
	mux.Handle("DELETE /clients/{id}", guard(http.HandlerFunc(h.Delete)))
	mux.Handle("GET /clients/{id}/measurements", guard(http.HandlerFunc(h.ShowMeasurements)))
	mux.Handle("PUT /clients/{id}/measurements", guard(http.HandlerFunc(h.SaveMeasurements)))
}

// =============================================================================
// GET /clients - List Clients
// =============================================================================

// Index displays a paginated list of the account's clients.
func (h *ClientHandler) Index(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromRequest(r)
	if account == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	page := parsePageParam(r)
	result, err := h.clients.List(r.Context(), domain.ListClientsParams{
		AccountID: account.ID,
		Limit:     defaultClientPageSize,
		Offset:    (page - 1) * defaultClientPageSize,
	})
	if err != nil {
		h.logger.Error("failed to list clients", "error", err, "account_id", account.ID)
		h.renderListError(w, r, account, "Failed to load clients. Please try again.")
		return
	}

	var flash *Flash
	if r.URL.Query().Get("deleted") == "1" {
		flash = &Flash{Type: "success", Message: "Client deleted."}
	}

	data := ClientListPageData{
		CurrentPath: r.URL.Path,
		Account:     account,
		Result:      result,
		Flash:       flash,
		CSRFToken:   csrf.GetTokenFromRequest(r),
	}

	h.renderer.RenderHTTP(w, "clients/index", data)
}

// =============================================================================
// GET /clients/new - Show Create Form
// =============================================================================

// New displays the client creation form.
//
// The tier quota is consulted before the form renders. An account at
// its client limit gets a blocking notice with an upgrade link instead
// of a form it could only submit into a rejection.
func (h *ClientHandler) New(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromRequest(r)
	if account == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	isModal := r.URL.Query().Get("modal") == "true"

	if err := h.quotas.CheckClientQuota(r.Context(), account.ID, account.EffectiveTier()); err != nil {
		if domain.IsQuotaExceeded(err) {
			h.renderQuotaBlocked(w, account, domain.ErrorMessage(err), isModal)
			return
		}
		// A count failure should not block the form; the write
		// boundary checks again on submit.
		h.logger.Error("failed to check client quota", "error", err, "account_id", account.ID)
	}

	data := ClientFormPageData{
		CurrentPath: r.URL.Path,
		Account:     account,
		Form:        make(map[string]string),
		Errors:      make(map[string]string),
		IsModal:     isModal,
		CSRFToken:   csrf.GetTokenFromRequest(r),
	}

	if isModal {
		h.renderer.RenderPartial(w, "client_form", data)
	} else {
		h.renderer.RenderHTTP(w, "clients/new", data)
	}
}

// renderQuotaBlocked renders the creation form's blocking quota notice.
func (h *ClientHandler) renderQuotaBlocked(w http.ResponseWriter, account *domain.Account, message string, isModal bool) {
	data := ClientFormPageData{
		CurrentPath: "/clients/new",
		Account:     account,
		Form:        make(map[string]string),
		Errors:      make(map[string]string),
		IsModal:     isModal,
		QuotaNotice: message,
	}
	if isModal {
		h.renderer.RenderPartial(w, "client_form", data)
	} else {
		h.renderer.RenderHTTP(w, "clients/new", data)
	}
}

// =============================================================================
// POST /clients - Create Client
// =============================================================================

// Create processes the client creation form.
//
// The client service checks the tier quota at this write boundary. A
// quota rejection renders the form with an upgrade prompt rather than a
// bare error.
func (h *ClientHandler) Create(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromRequest(r)
	if account == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	if err := r.ParseForm(); err != nil {
		h.logger.Error("failed to parse form", "error", err)
		h.renderFormError(w, r, account, nil, "Invalid form data")
		return
	}

	isModal := r.URL.Query().Get("modal") == "true"

	formValues := map[string]string{
		"name":  strings.TrimSpace(r.FormValue("name")),
		"email": strings.ToLower(strings.TrimSpace(r.FormValue("email"))),
		"phone": strings.TrimSpace(r.FormValue("phone")),
		"notes": strings.TrimSpace(r.FormValue("notes")),
	}

	errors := h.validateClientForm(formValues)
	if len(errors) > 0 {
		h.renderFormWithErrors(w, r, account, nil, formValues, errors, isModal)
		return
	}

	client, err := h.clients.Create(r.Context(), domain.CreateClientParams{
		AccountID: account.ID,
		Name:      formValues["name"],
		Email:     formValues["email"],
		Phone:     formValues["phone"],
		Notes:     formValues["notes"],
	}, account.EffectiveTier())
	if err != nil {
		switch domain.ErrorCode(err) {
		case domain.EQUOTA:
			h.renderQuotaBlocked(w, account, domain.ErrorMessage(err), isModal)
		case domain.EINVALID:
			errors["_form"] = domain.ErrorMessage(err)
			h.renderFormWithErrors(w, r, account, nil, formValues, errors, isModal)
		default:
			h.logger.Error("failed to create client", "error", err, "account_id", account.ID)
			h.renderFormError(w, r, account, nil, "Failed to create client. Please try again.")
		}
		return
	}

	h.logger.Info("client created", "client_id", client.ID, "account_id", account.ID)

	// Modal requests get the new dropdown option back for htmx to swap in.
	if isModal {
		h.renderer.RenderPartial(w, "client_select_option", client)
		return
	}

	http.Redirect(w, r, "/clients/"+client.ID.String(), http.StatusSeeOther)
}

// =============================================================================
// GET /clients/{id} - Client Detail
// =============================================================================

// Show displays a client with its measurements.
func (h *ClientHandler) Show(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromRequest(r)
	if account == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Redirect(w, r, "/clients", http.StatusSeeOther)
		return
	}

	client, err := h.clients.GetByID(r.Context(), id, account.ID)
	if err != nil {
		if domain.ErrorCode(err) == domain.ENOTFOUND {
			http.Redirect(w, r, "/clients", http.StatusSeeOther)
			return
		}
		h.logger.Error("failed to get client", "error", err, "client_id", id)
		h.renderListError(w, r, account, "Failed to load client. Please try again.")
		return
	}

	measurements, err := h.clients.GetMeasurements(r.Context(), id, account.ID)
	if err != nil {
		h.logger.Error("failed to get measurements", "error", err, "client_id", id)
		measurements = &domain.Measurements{ClientID: id}
	}

	var flash *Flash
	if r.URL.Query().Get("saved") == "1" {
		flash = &Flash{Type: "success", Message: "Measurements saved."}
	}

	data := ClientShowPageData{
		CurrentPath:  r.URL.Path,
		Account:      account,
		Client:       client,
		Measurements: measurements,
		Flash:        flash,
		CSRFToken:    csrf.GetTokenFromRequest(r),
	}

	h.renderer.RenderHTTP(w, "clients/show", data)
}

// =============================================================================
// GET /clients/{id}/edit - Show Edit Form
// =============================================================================

// Edit displays the client edit form.
func (h *ClientHandler) Edit(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromRequest(r)
	if account == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Redirect(w, r, "/clients", http.StatusSeeOther)
		return
	}

	client, err := h.clients.GetByID(r.Context(), id, account.ID)
	if err != nil {
		if domain.ErrorCode(err) == domain.ENOTFOUND {
			http.Redirect(w, r, "/clients", http.StatusSeeOther)
			return
		}
		h.logger.Error("failed to get client", "error", err, "client_id", id)
		h.renderListError(w, r, account, "Failed to load client. Please try again.")
		return
	}

	formValues := map[string]string{
		"name":  client.Name,
		"email": client.Email,
		"phone": client.Phone,
		"notes": client.Notes,
	}

	data := ClientFormPageData{
		CurrentPath: r.URL.Path,
		Account:     account,
		Client:      client,
		Form:        formValues,
		Errors:      make(map[string]string),
		IsEdit:      true,
		CSRFToken:   csrf.GetTokenFromRequest(r),
	}

	h.renderer.RenderHTTP(w, "clients/edit", data)
}

// =============================================================================
// PUT /clients/{id} - Update Client
// =============================================================================

// Update processes the client update form.
func (h *ClientHandler) Update(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromRequest(r)
	if account == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Redirect(w, r, "/clients", http.StatusSeeOther)
		return
	}

	client, err := h.clients.GetByID(r.Context(), id, account.ID)
	if err != nil {
		if domain.ErrorCode(err) == domain.ENOTFOUND {
			http.Redirect(w, r, "/clients", http.StatusSeeOther)
			return
		}
		h.logger.Error("failed to get client for update", "error", err, "client_id", id)
		h.renderListError(w, r, account, "Failed to load client. Please try again.")
		return
	}

	if err := r.ParseForm(); err != nil {
		h.logger.Error("failed to parse form", "error", err)
		h.renderFormError(w, r, account, client, "Invalid form data")
		return
	}

	formValues := map[string]string{
		"name":  strings.TrimSpace(r.FormValue("name")),
		"email": strings.ToLower(strings.TrimSpace(r.FormValue("email"))),
		"phone": strings.TrimSpace(r.FormValue("phone")),
		"notes": strings.TrimSpace(r.FormValue("notes")),
	}

	errors := h.validateClientForm(formValues)
	if len(errors) > 0 {
		h.renderFormWithErrors(w, r, account, client, formValues, errors, false)
		return
	}

	_, err = h.clients.Update(r.Context(), domain.UpdateClientParams{
		ID:        id,
		AccountID: account.ID,
		Name:      formValues["name"],
		Email:     formValues["email"],
		Phone:     formValues["phone"],
		Notes:     formValues["notes"],
	})
	if err != nil {
		if domain.ErrorCode(err) == domain.EINVALID {
			errors["_form"] = domain.ErrorMessage(err)
			h.renderFormWithErrors(w, r, account, client, formValues, errors, false)
			return
		}
		h.logger.Error("failed to update client", "error", err, "client_id", id)
		h.renderFormError(w, r, account, client, "Failed to update client. Please try again.")
		return
	}

	h.logger.Info("client updated", "client_id", id, "account_id", account.ID)

	http.Redirect(w, r, "/clients/"+id.String(), http.StatusSeeOther)
}

// =============================================================================
// DELETE /clients/{id} - Delete Client
// =============================================================================

// Delete removes a client. A client with active orders is rejected with
// a conflict; the list page shows why.
func (h *ClientHandler) Delete(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromRequest(r)
	if account == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Redirect(w, r, "/clients", http.StatusSeeOther)
		return
	}

	err = h.clients.Delete(r.Context(), id, account.ID)
	if err != nil {
		switch domain.ErrorCode(err) {
		case domain.ENOTFOUND:
			// Already deleted or never existed.
			http.Redirect(w, r, "/clients", http.StatusSeeOther)
			return
		case domain.ECONFLICT:
			if r.Header.Get("HX-Request") == "true" {
				h.renderer.RenderHTTPWithToast(w, "clients/index", nil, ToastData{
					Type:    "error",
					Message: "This client has active orders. Finish or cancel them first.",
				})
				return
			}
			h.renderListError(w, r, account, "This client has active orders. Finish or cancel them first.")
			return
		default:
			h.logger.Error("failed to delete client", "error", err, "client_id", id)
			http.Redirect(w, r, "/clients", http.StatusSeeOther)
			return
		}
	}

	h.logger.Info("client deleted", "client_id", id, "account_id", account.ID)

	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", "/clients?deleted=1")
		w.WriteHeader(http.StatusOK)
		return
	}

	http.Redirect(w, r, "/clients?deleted=1", http.StatusSeeOther)
}

// =============================================================================
// GET /clients/{id}/measurements - Show Measurements Form
// =============================================================================

// ShowMeasurements displays the measurements form for a client.
func (h *ClientHandler) ShowMeasurements(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromRequest(r)
	if account == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Redirect(w, r, "/clients", http.StatusSeeOther)
		return
	}

	client, err := h.clients.GetByID(r.Context(), id, account.ID)
	if err != nil {
		if domain.ErrorCode(err) == domain.ENOTFOUND {
			http.Redirect(w, r, "/clients", http.StatusSeeOther)
			return
		}
		h.logger.Error("failed to get client", "error", err, "client_id", id)
		h.renderListError(w, r, account, "Failed to load client. Please try again.")
		return
	}

	measurements, err := h.clients.GetMeasurements(r.Context(), id, account.ID)
	if err != nil {
		h.logger.Error("failed to get measurements", "error", err, "client_id", id)
		measurements = &domain.Measurements{ClientID: id}
	}

	data := MeasurementsFormPageData{
		CurrentPath:  r.URL.Path,
		Account:      account,
		Client:       client,
		Measurements: measurements,
		Errors:       make(map[string]string),
		CSRFToken:    csrf.GetTokenFromRequest(r),
	}

	h.renderer.RenderHTTP(w, "clients/measurements", data)
}

// =============================================================================
// PUT /clients/{id}/measurements - Save Measurements
// =============================================================================

// measurementFields lists the standard form field names. All values are
// centimeters; blank fields mean not recorded.
var measurementFields = []string{
	"neck", "chest", "waist", "hips", "shoulder", "sleeve_len", "inseam",
}

// SaveMeasurements processes the measurements form.
func (h *ClientHandler) SaveMeasurements(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromRequest(r)
	if account == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Redirect(w, r, "/clients", http.StatusSeeOther)
		return
	}

	client, err := h.clients.GetByID(r.Context(), id, account.ID)
	if err != nil {
		if domain.ErrorCode(err) == domain.ENOTFOUND {
			http.Redirect(w, r, "/clients", http.StatusSeeOther)
			return
		}
		h.logger.Error("failed to get client", "error", err, "client_id", id)
		h.renderListError(w, r, account, "Failed to load client. Please try again.")
		return
	}

	if err := r.ParseForm(); err != nil {
		h.logger.Error("failed to parse form", "error", err)
		h.renderMeasurementsError(w, r, account, client, "Invalid form data")
		return
	}

	errors := make(map[string]string)
	parsed := make(map[string]float64, len(measurementFields))
	for _, field := range measurementFields {
		raw := strings.TrimSpace(r.FormValue(field))
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			errors[field] = "Enter a valid measurement in centimeters"
			continue
		}
		parsed[field] = v
	}

	if len(errors) > 0 {
		measurements, _ := h.clients.GetMeasurements(r.Context(), id, account.ID)
		if measurements == nil {
			measurements = &domain.Measurements{ClientID: id}
		}
		data := MeasurementsFormPageData{
			CurrentPath:  r.URL.Path,
			Account:      account,
			Client:       client,
			Measurements: measurements,
			Errors:       errors,
			CSRFToken:    csrf.GetTokenFromRequest(r),
		}
		h.renderer.RenderHTTP(w, "clients/measurements", data)
		return
	}

	values := domain.Measurements{
		ClientID:  id,
		Neck:      parsed["neck"],
		Chest:     parsed["chest"],
		Waist:     parsed["waist"],
		Hips:      parsed["hips"],
		Shoulder:  parsed["shoulder"],
		SleeveLen: parsed["sleeve_len"],
		Inseam:    parsed["inseam"],
	}

	err = h.clients.SaveMeasurements(r.Context(), domain.SaveMeasurementsParams{
		ClientID:  id,
		AccountID: account.ID,
		Values:    values,
	})
	if err != nil {
		h.logger.Error("failed to save measurements", "error", err, "client_id", id)
		h.renderMeasurementsError(w, r, account, client, "Failed to save measurements. Please try again.")
		return
	}

	h.logger.Info("measurements saved", "client_id", id, "account_id", account.ID)

	http.Redirect(w, r, "/clients/"+id.String()+"?saved=1", http.StatusSeeOther)
}

// =============================================================================
// Helper Methods
// =============================================================================

// validateClientForm validates the client form fields.
func (h *ClientHandler) validateClientForm(form map[string]string) map[string]string {
	errors := make(map[string]string)

	if form["name"] == "" {
		errors["name"] = "Client name is required"
	} else if len(form["name"]) > 200 {
		errors["name"] = "Client name must be 200 characters or less"
	}

	if form["email"] != "" && !isValidEmail(form["email"]) {
		errors["email"] = "Please enter a valid email address"
	}

	return errors
}

// parsePageParam extracts the 1-indexed page query parameter.
func parsePageParam(r *http.Request) int32 {
	raw := r.URL.Query().Get("page")
	if raw == "" {
		return 1
	}
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		return 1
	}
	return int32(page)
}

// renderListError renders the clients list with an error flash.
func (h *ClientHandler) renderListError(w http.ResponseWriter, r *http.Request, account *domain.Account, message string) {
	data := ClientListPageData{
		CurrentPath: r.URL.Path,
		Account:     account,
		Result:      &domain.ListClientsResult{},
		Flash: &Flash{
			Type:    "error",
			Message: message,
		},
		CSRFToken: csrf.GetTokenFromRequest(r),
	}
	h.renderer.RenderHTTP(w, "clients/index", data)
}

// renderFormError renders the form with a generic error.
func (h *ClientHandler) renderFormError(w http.ResponseWriter, r *http.Request, account *domain.Account, client *domain.Client, message string) {
	template := "clients/new"
	isEdit := false
	if client != nil {
		template = "clients/edit"
		isEdit = true
	}

	data := ClientFormPageData{
		CurrentPath: r.URL.Path,
		Account:     account,
		Client:      client,
		Form:        make(map[string]string),
		Errors:      make(map[string]string),
		Flash: &Flash{
			Type:    "error",
			Message: message,
		},
		IsEdit:    isEdit,
		CSRFToken: csrf.GetTokenFromRequest(r),
	}
	h.renderer.RenderHTTP(w, template, data)
}

// renderFormWithErrors renders the form with validation errors.
func (h *ClientHandler) renderFormWithErrors(w http.ResponseWriter, r *http.Request, account *domain.Account, client *domain.Client, form map[string]string, errors map[string]string, isModal bool) {
	template := "clients/new"
	isEdit := false
	if client != nil {
		template = "clients/edit"
		isEdit = true
	}

	data := ClientFormPageData{
		CurrentPath: r.URL.Path,
		Account:     account,
		Client:      client,
		Form:        form,
		Errors:      errors,
		IsEdit:      isEdit,
		IsModal:     isModal,
		CSRFToken:   csrf.GetTokenFromRequest(r),
	}

	if isModal {
		h.renderer.RenderPartial(w, "client_form", data)
	} else {
		h.renderer.RenderHTTP(w, template, data)
	}
}

// renderMeasurementsError renders the measurements form with an error flash.
func (h *ClientHandler) renderMeasurementsError(w http.ResponseWriter, r *http.Request, account *domain.Account, client *domain.Client, message string) {
	measurements, _ := h.clients.GetMeasurements(r.Context(), client.ID, account.ID)
	if measurements == nil {
		measurements = &domain.Measurements{ClientID: client.ID}
	}
	data := MeasurementsFormPageData{
		CurrentPath:  r.URL.Path,
		Account:      account,
		Client:       client,
		Measurements: measurements,
		Errors:       make(map[string]string),
		Flash: &Flash{
			Type:    "error",
			Message: message,
		},
		CSRFToken: csrf.GetTokenFromRequest(r),
	}
	h.renderer.RenderHTTP(w, "clients/measurements", data)
}
