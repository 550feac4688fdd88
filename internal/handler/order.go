// Package handler contains HTTP handlers for the Mesura application.
//
// This file implements order CRUD handlers and the order status
// lifecycle endpoint.
package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mesura-app/mesura/internal/auth"
	"github.com/mesura-app/mesura/internal/csrf"
	"github.com/mesura-app/mesura/internal/domain"
	"github.com/mesura-app/mesura/internal/service"
)

// defaultOrderPageSize is the page size for the orders list.
const defaultOrderPageSize = 25

// clientDropdownLimit caps the client dropdown on the order form.
// Workshops large enough to hit this use the search on the clients page.
const clientDropdownLimit = 200

// =============================================================================
// Template Data Types
// =============================================================================

// OrderListPageData contains data for the orders list page.
type OrderListPageData struct {
	CurrentPath  string
	Account      *domain.Account
	Result       *domain.ListOrdersResult
	StatusFilter string // Current status filter ("" = all)
	ActiveOnly   bool
	Flash        *Flash
	CSRFToken    string
}

// OrderFormPageData contains data for the order create/edit form.
type OrderFormPageData struct {
	CurrentPath string
	Account     *domain.Account
	Order       *domain.Order // Order being edited (nil for create)
	Clients     []domain.Client
	Form        map[string]string
	Errors      map[string]string
	Flash       *Flash
	IsEdit      bool
	// QuotaNotice, when set, replaces the form with a blocking notice
	// and an upgrade link.
	QuotaNotice string
	CSRFToken   string
}

// OrderShowPageData contains data for the order detail page.
type OrderShowPageData struct {
	CurrentPath string
	Account     *domain.Account
	Order       *domain.Order
	// NextStatuses are the lifecycle moves available from the current
	// status, for the transition buttons.
	NextStatuses []domain.OrderStatus
	Flash        *Flash
	CSRFToken    string
}

// =============================================================================
// Handler Configuration
// =============================================================================

// OrderHandler handles order-related HTTP requests.
type OrderHandler struct {
	orders   service.OrderService
	clients  service.ClientService
	quotas   service.QuotaService
	renderer TemplateRenderer
	logger   *slog.Logger
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(
	orders service.OrderService,
	clients service.ClientService,
	quotas service.QuotaService,
	renderer TemplateRenderer,
	logger *slog.Logger,
) *OrderHandler {
	return &OrderHandler{
		orders:   orders,
		clients:  clients,
		quotas:   quotas,
		renderer: renderer,
		logger:   logger,
	}
}

// RegisterRoutes registers all order routes with the provided mux.
func (h *OrderHandler) RegisterRoutes(mux *http.ServeMux, guard func(http.Handler) http.Handler) {
	mux.Handle("GET /orders", guard(http.HandlerFunc(h.Index)))
	mux.Handle("GET /orders/new", guard(http.HandlerFunc(h.New)))
	mux.Handle("POST /orders", guard(http.HandlerFunc(h.Create)))
	mux.Handle("GET /orders/{id}", guard(http.HandlerFunc(h.Show)))
	mux.Handle("GET /orders/{id}/edit", guard(http.HandlerFunc(h.Edit)))
	mux.Handle("PUT /orders/{id}", guard(http.HandlerFunc(h.Update)))
	mux.Handle("PUT /orders/{id}/status", guard(http.HandlerFunc(h.UpdateStatus)))
	mux.Handle("DELETE /orders/{id}", guard(http.HandlerFunc(h.Delete)))
}

// =============================================================================
// GET /orders - List Orders
// =============================================================================

// Index displays a paginated list of the account's orders.
//
// Query Parameters:
// - status (optional): filter to a single lifecycle status
// - active (optional): "1" restricts to non-terminal orders
// - page (optional): 1-indexed page number
func (h *OrderHandler) Index(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromRequest(r)
	if account == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	statusFilter := r.URL.Query().Get("status")
	activeOnly := r.URL.Query().Get("active") == "1"
	page := parsePageParam(r)

	result, err := h.orders.List(r.Context(), domain.ListOrdersParams{
		AccountID:  account.ID,
		Status:     domain.OrderStatus(statusFilter),
		ActiveOnly: activeOnly,
		Limit:      defaultOrderPageSize,
		Offset:     (page - 1) * defaultOrderPageSize,
	})
	if err != nil {
		h.logger.Error("failed to list orders", "error", err, "account_id", account.ID)
		h.renderOrderListError(w, r, account, "Failed to load orders. Please try again.")
		return
	}

	var flash *Flash
	if r.URL.Query().Get("deleted") == "1" {
		flash = &Flash{Type: "success", Message: "Order deleted."}
	}

	data := OrderListPageData{
		CurrentPath:  r.URL.Path,
		Account:      account,
		Result:       result,
		StatusFilter: statusFilter,
		ActiveOnly:   activeOnly,
		Flash:        flash,
		CSRFToken:    csrf.GetTokenFromRequest(r),
	}

	h.renderer.RenderHTTP(w, "orders/index", data)
}

// =============================================================================
// GET /orders/new - Show Create Form
// =============================================================================

// New displays the order creation form.
//
// The active-order quota is consulted before the form renders; an
// account at its limit gets a blocking notice with an upgrade link.
//
// Query Parameters:
// - client_id (optional): preselects the client, used from the client
//   detail page's "New order" button.
func (h *OrderHandler) New(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromRequest(r)
	if account == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	if err := h.quotas.CheckOrderQuota(r.Context(), account.ID, account.EffectiveTier()); err != nil {
		if domain.IsQuotaExceeded(err) {
			h.renderQuotaBlocked(w, account, domain.ErrorMessage(err))
			return
		}
		// A count failure should not block the form; the write
		// boundary checks again on submit.
		h.logger.Error("failed to check order quota", "error", err, "account_id", account.ID)
	}

	form := make(map[string]string)
	if preselect := r.URL.Query().Get("client_id"); preselect != "" {
		form["client_id"] = preselect
	}

	data := OrderFormPageData{
		CurrentPath: r.URL.Path,
		Account:     account,
		Clients:     h.listClientsForDropdown(r, account.ID),
		Form:        form,
		Errors:      make(map[string]string),
		CSRFToken:   csrf.GetTokenFromRequest(r),
	}

	h.renderer.RenderHTTP(w, "orders/new", data)
}

// renderQuotaBlocked renders the creation form's blocking quota notice.
func (h *OrderHandler) renderQuotaBlocked(w http.ResponseWriter, account *domain.Account, message string) {
	data := OrderFormPageData{
		CurrentPath: "/orders/new",
		Account:     account,
		Form:        make(map[string]string),
		Errors:      make(map[string]string),
		QuotaNotice: message,
	}
	h.renderer.RenderHTTP(w, "orders/new", data)
}

// =============================================================================
// POST /orders - Create Order
// =============================================================================

// Create processes the order creation form.
//
// The order service checks the active-order quota at this write
// boundary; a quota rejection renders the form with an upgrade prompt.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromRequest(r)
	if account == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	if err := r.ParseForm(); err != nil {
		h.logger.Error("failed to parse form", "error", err)
		h.renderOrderFormError(w, r, account, nil, "Invalid form data")
		return
	}

	formValues := orderFormValues(r)

	errors := h.validateOrderForm(formValues)
	if len(errors) > 0 {
		h.renderOrderFormWithErrors(w, r, account, nil, formValues, errors)
		return
	}

	params := domain.CreateOrderParams{
		AccountID:  account.ID,
		Garment:    formValues["garment"],
		Notes:      formValues["notes"],
		PriceCents: parsePriceCents(formValues["price"]),
		ClientID:   parseOptionalUUID(formValues["client_id"]),
		DueDate:    parseOptionalDate(formValues["due_date"]),
	}

	order, err := h.orders.Create(r.Context(), params, account.EffectiveTier())
	if err != nil {
		switch domain.ErrorCode(err) {
		case domain.EQUOTA:
			h.renderQuotaBlocked(w, account, domain.ErrorMessage(err))
		case domain.EINVALID, domain.ENOTFOUND:
			errors["_form"] = domain.ErrorMessage(err)
			h.renderOrderFormWithErrors(w, r, account, nil, formValues, errors)
		default:
			h.logger.Error("failed to create order", "error", err, "account_id", account.ID)
			h.renderOrderFormError(w, r, account, nil, "Failed to create order. Please try again.")
		}
		return
	}

	h.logger.Info("order created", "order_id", order.ID, "account_id", account.ID)

	http.Redirect(w, r, "/orders/"+order.ID.String(), http.StatusSeeOther)
}

// =============================================================================
// GET /orders/{id} - Order Detail
// =============================================================================

// Show displays an order with its available lifecycle moves.
func (h *OrderHandler) Show(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromRequest(r)
	if account == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Redirect(w, r, "/orders", http.StatusSeeOther)
		return
	}

	order, err := h.orders.GetByID(r.Context(), id, account.ID)
	if err != nil {
		if domain.ErrorCode(err) == domain.ENOTFOUND {
			http.Redirect(w, r, "/orders", http.StatusSeeOther)
			return
		}
		h.logger.Error("failed to get order", "error", err, "order_id", id)
		h.renderOrderListError(w, r, account, "Failed to load order. Please try again.")
		return
	}

	var flash *Flash
	switch {
	case r.URL.Query().Get("created") == "1":
		flash = &Flash{Type: "success", Message: "Order created."}
	case r.URL.Query().Get("updated") == "1":
		flash = &Flash{Type: "success", Message: "Order updated."}
	}

	data := OrderShowPageData{
		CurrentPath:  r.URL.Path,
		Account:      account,
		Order:        order,
		NextStatuses: nextOrderStatuses(order.Status),
		Flash:        flash,
		CSRFToken:    csrf.GetTokenFromRequest(r),
	}

	h.renderer.RenderHTTP(w, "orders/show", data)
}

// =============================================================================
// GET /orders/{id}/edit - Show Edit Form
// =============================================================================

// Edit displays the order edit form.
func (h *OrderHandler) Edit(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromRequest(r)
	if account == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Redirect(w, r, "/orders", http.StatusSeeOther)
		return
	}

	order, err := h.orders.GetByID(r.Context(), id, account.ID)
	if err != nil {
		if domain.ErrorCode(err) == domain.ENOTFOUND {
			http.Redirect(w, r, "/orders", http.StatusSeeOther)
			return
		}
		h.logger.Error("failed to get order", "error", err, "order_id", id)
		h.renderOrderListError(w, r, account, "Failed to load order. Please try again.")
		return
	}

	clientIDStr := ""
	if order.ClientID != nil {
		clientIDStr = order.ClientID.String()
	}
	dueDateStr := ""
	if order.DueDate != nil {
		dueDateStr = order.DueDate.Format("2006-01-02")
	}

	formValues := map[string]string{
		"garment":   order.Garment,
		"notes":     order.Notes,
		"price":     formatPrice(order.PriceCents),
		"client_id": clientIDStr,
		"due_date":  dueDateStr,
	}

	data := OrderFormPageData{
		CurrentPath: r.URL.Path,
		Account:     account,
		Order:       order,
		Clients:     h.listClientsForDropdown(r, account.ID),
		Form:        formValues,
		Errors:      make(map[string]string),
		IsEdit:      true,
		CSRFToken:   csrf.GetTokenFromRequest(r),
	}

	h.renderer.RenderHTTP(w, "orders/edit", data)
}

// =============================================================================
// PUT /orders/{id} - Update Order
// =============================================================================

// Update processes the order update form. Status is not changed here.
func (h *OrderHandler) Update(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromRequest(r)
	if account == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Redirect(w, r, "/orders", http.StatusSeeOther)
		return
	}

	order, err := h.orders.GetByID(r.Context(), id, account.ID)
	if err != nil {
		if domain.ErrorCode(err) == domain.ENOTFOUND {
			http.Redirect(w, r, "/orders", http.StatusSeeOther)
			return
		}
		h.logger.Error("failed to get order for update", "error", err, "order_id", id)
		h.renderOrderListError(w, r, account, "Failed to load order. Please try again.")
		return
	}

	if err := r.ParseForm(); err != nil {
		h.logger.Error("failed to parse form", "error", err)
		h.renderOrderFormError(w, r, account, order, "Invalid form data")
		return
	}

	formValues := orderFormValues(r)

	errors := h.validateOrderForm(formValues)
	if len(errors) > 0 {
		h.renderOrderFormWithErrors(w, r, account, order, formValues, errors)
		return
	}

	_, err = h.orders.Update(r.Context(), domain.UpdateOrderParams{
		ID:         id,
		AccountID:  account.ID,
		Garment:    formValues["garment"],
		Notes:      formValues["notes"],
		PriceCents: parsePriceCents(formValues["price"]),
		ClientID:   parseOptionalUUID(formValues["client_id"]),
		DueDate:    parseOptionalDate(formValues["due_date"]),
	})
	if err != nil {
		switch domain.ErrorCode(err) {
		case domain.EINVALID, domain.ENOTFOUND:
			errors["_form"] = domain.ErrorMessage(err)
			h.renderOrderFormWithErrors(w, r, account, order, formValues, errors)
		default:
			h.logger.Error("failed to update order", "error", err, "order_id", id)
			h.renderOrderFormError(w, r, account, order, "Failed to update order. Please try again.")
		}
		return
	}

	h.logger.Info("order updated", "order_id", id, "account_id", account.ID)

	http.Redirect(w, r, "/orders/"+id.String()+"?updated=1", http.StatusSeeOther)
}

// =============================================================================
// PUT /orders/{id}/status - Lifecycle Transition
// =============================================================================

// UpdateStatus moves an order through its lifecycle.
//
// Form Fields:
// - status (required): the target status
//
// A disallowed transition returns to the detail page with an error
// flash; htmx requests get the refreshed status partial instead.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromRequest(r)
	if account == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Redirect(w, r, "/orders", http.StatusSeeOther)
		return
	}

	if err := r.ParseForm(); err != nil {
		h.logger.Error("failed to parse form", "error", err)
		http.Redirect(w, r, "/orders/"+id.String(), http.StatusSeeOther)
		return
	}

	next := domain.OrderStatus(strings.TrimSpace(r.FormValue("status")))

	order, err := h.orders.UpdateStatus(r.Context(), id, account.ID, next)
	if err != nil {
		switch domain.ErrorCode(err) {
		case domain.ENOTFOUND:
			http.Redirect(w, r, "/orders", http.StatusSeeOther)
		case domain.EINVALID:
			h.logger.Warn("invalid order transition",
				"order_id", id,
				"requested_status", string(next),
			)
			if r.Header.Get("HX-Request") == "true" {
				h.renderer.RenderHTTPWithToast(w, "orders/show", nil, ToastData{
					Type:    "error",
					Message: domain.ErrorMessage(err),
				})
				return
			}
			http.Redirect(w, r, "/orders/"+id.String(), http.StatusSeeOther)
		default:
			h.logger.Error("failed to update order status", "error", err, "order_id", id)
			http.Redirect(w, r, "/orders/"+id.String(), http.StatusSeeOther)
		}
		return
	}

	h.logger.Info("order status updated",
		"order_id", id,
		"account_id", account.ID,
		"status", string(order.Status),
	)

	if r.Header.Get("HX-Request") == "true" {
		h.renderer.RenderPartial(w, "order_status", OrderShowPageData{
			CurrentPath:  r.URL.Path,
			Account:      account,
			Order:        order,
			NextStatuses: nextOrderStatuses(order.Status),
			CSRFToken:    csrf.GetTokenFromRequest(r),
		})
		return
	}

	http.Redirect(w, r, "/orders/"+id.String(), http.StatusSeeOther)
}

// =============================================================================
// DELETE /orders/{id} - Delete Order
// =============================================================================

// Delete removes an order.
func (h *OrderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromRequest(r)
	if account == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Redirect(w, r, "/orders", http.StatusSeeOther)
		return
	}

	if err := h.orders.Delete(r.Context(), id, account.ID); err != nil {
		if domain.ErrorCode(err) != domain.ENOTFOUND {
			h.logger.Error("failed to delete order", "error", err, "order_id", id)
		}
		http.Redirect(w, r, "/orders", http.StatusSeeOther)
		return
	}

	h.logger.Info("order deleted", "order_id", id, "account_id", account.ID)

	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", "/orders?deleted=1")
		w.WriteHeader(http.StatusOK)
		return
	}

	http.Redirect(w, r, "/orders?deleted=1", http.StatusSeeOther)
}

// =============================================================================
// Helper Methods
// =============================================================================

// orderFormValues extracts and normalizes the order form fields.
func orderFormValues(r *http.Request) map[string]string {
	return map[string]string{
		"garment":   strings.TrimSpace(r.FormValue("garment")),
		"notes":     strings.TrimSpace(r.FormValue("notes")),
		"price":     strings.TrimSpace(r.FormValue("price")),
		"client_id": strings.TrimSpace(r.FormValue("client_id")),
		"due_date":  strings.TrimSpace(r.FormValue("due_date")),
	}
}

// validateOrderForm validates the order form fields.
func (h *OrderHandler) validateOrderForm(form map[string]string) map[string]string {
	errors := make(map[string]string)

	if form["garment"] == "" {
		errors["garment"] = "Garment description is required"
	} else if len(form["garment"]) > 200 {
		errors["garment"] = "Garment description must be 200 characters or less"
	}

	if form["price"] != "" {
		if cents := parsePriceCents(form["price"]); cents < 0 {
			errors["price"] = "Enter a valid price"
		}
	}

	if form["due_date"] != "" && parseOptionalDate(form["due_date"]) == nil {
		errors["due_date"] = "Enter a valid date"
	}

	if form["client_id"] != "" && parseOptionalUUID(form["client_id"]) == nil {
		errors["client_id"] = "Select a valid client"
	}

	return errors
}

// parsePriceCents converts a decimal price string to cents. Returns -1
// for unparseable input and 0 for the empty string.
func parsePriceCents(raw string) int64 {
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return -1
	}
	return int64(v*100 + 0.5)
}

// formatPrice converts cents back to a decimal string for form fields.
func formatPrice(cents int64) string {
	if cents == 0 {
		return ""
	}
	return strconv.FormatFloat(float64(cents)/100, 'f', 2, 64)
}

// parseOptionalUUID parses a UUID form value, nil when empty or invalid.
func parseOptionalUUID(raw string) *uuid.UUID {
	if raw == "" {
		return nil
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &parsed
}

// parseOptionalDate parses a YYYY-MM-DD form value, nil when empty or invalid.
func parseOptionalDate(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil
	}
	return &t
}

// nextOrderStatuses lists the lifecycle moves available from a status.
func nextOrderStatuses(current domain.OrderStatus) []domain.OrderStatus {
	switch current {
	case domain.OrderStatusPending:
		return []domain.OrderStatus{domain.OrderStatusInProgress, domain.OrderStatusCancelled}
	case domain.OrderStatusInProgress:
		return []domain.OrderStatus{domain.OrderStatusFitting, domain.OrderStatusDone, domain.OrderStatusCancelled}
	case domain.OrderStatusFitting:
		return []domain.OrderStatus{domain.OrderStatusInProgress, domain.OrderStatusDone, domain.OrderStatusCancelled}
	default:
		return nil
	}
}

// listClientsForDropdown fetches clients for the order form dropdown.
// Failures degrade to an empty dropdown rather than failing the page.
func (h *OrderHandler) listClientsForDropdown(r *http.Request, accountID uuid.UUID) []domain.Client {
	result, err := h.clients.List(r.Context(), domain.ListClientsParams{
		AccountID: accountID,
		Limit:     clientDropdownLimit,
	})
	if err != nil {
		h.logger.Error("failed to list clients for order form", "error", err, "account_id", accountID)
		return []domain.Client{}
	}
	return result.Clients
}

// renderOrderListError renders the orders list with an error flash.
func (h *OrderHandler) renderOrderListError(w http.ResponseWriter, r *http.Request, account *domain.Account, message string) {
	data := OrderListPageData{
		CurrentPath: r.URL.Path,
		Account:     account,
		Result:      &domain.ListOrdersResult{},
		Flash: &Flash{
			Type:    "error",
			Message: message,
		},
		CSRFToken: csrf.GetTokenFromRequest(r),
	}
	h.renderer.RenderHTTP(w, "orders/index", data)
}

// renderOrderFormError renders the form with a generic error.
func (h *OrderHandler) renderOrderFormError(w http.ResponseWriter, r *http.Request, account *domain.Account, order *domain.Order, message string) {
	template := "orders/new"
	isEdit := false
	if order != nil {
		template = "orders/edit"
		isEdit = true
	}

	data := OrderFormPageData{
		CurrentPath: r.URL.Path,
		Account:     account,
		Order:       order,
		Clients:     h.listClientsForDropdown(r, account.ID),
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

// renderOrderFormWithErrors renders the form with validation errors.
func (h *OrderHandler) renderOrderFormWithErrors(w http.ResponseWriter, r *http.Request, account *domain.Account, order *domain.Order, form map[string]string, errors map[string]string) {
	template := "orders/new"
	isEdit := false
	if order != nil {
		template = "orders/edit"
		isEdit = true
	}

	data := OrderFormPageData{
		CurrentPath: r.URL.Path,
		Account:     account,
		Order:       order,
		Clients:     h.listClientsForDropdown(r, account.ID),
		Form:        form,
		Errors:      errors,
		IsEdit:      isEdit,
		CSRFToken:   csrf.GetTokenFromRequest(r),
	}
	h.renderer.RenderHTTP(w, template, data)
}
