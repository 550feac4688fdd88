// Package handler contains HTTP handlers for the Mesura application.
//
// This file implements the public home page and the workshop dashboard.
//
// Routes handled:
//   - GET /          -> Home (public)
//   - GET /dashboard -> Dashboard (requires entitlement)
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/mesura-app/mesura/internal/auth"
	"github.com/mesura-app/mesura/internal/csrf"
	"github.com/mesura-app/mesura/internal/domain"
	"github.com/mesura-app/mesura/internal/service"
)

// recentOrdersLimit caps the recent-orders list on the dashboard.
const recentOrdersLimit = 5

// HomePageData contains data for the public landing page.
type HomePageData struct {
	CurrentPath string
	Account     *domain.Account // nil for anonymous visitors
}

// DashboardPageData contains data for the workshop dashboard.
type DashboardPageData struct {
	CurrentPath  string
	Account      *domain.Account
	ActiveOrders int64
	TotalClients int64
	TotalPhotos  int64
	RecentOrders []domain.Order

	// TrialDaysLeft feeds the countdown banner. Informational only;
	// the entitlement guard already ran before this page rendered.
	TrialDaysLeft      int
	ShowTrialCountdown bool

	Flash     *Flash
	CSRFToken string
}

// DashboardHandler handles the home page and dashboard requests.
type DashboardHandler struct {
	orders   service.OrderService
	clients  service.ClientService
	photos   service.PhotoService
	renderer TemplateRenderer
	logger   *slog.Logger
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(
	orders service.OrderService,
	clients service.ClientService,
	photos service.PhotoService,
	renderer TemplateRenderer,
	logger *slog.Logger,
) *DashboardHandler {
	return &DashboardHandler{
		orders:   orders,
		clients:  clients,
		photos:   photos,
		renderer: renderer,
		logger:   logger,
	}
}

// RegisterRoutes registers the home and dashboard routes. The home page
// is public; withAccount only resolves the session so the nav can show
// the right links. The dashboard goes behind the full guard.
func (h *DashboardHandler) RegisterRoutes(mux *http.ServeMux, withAccount, guard func(http.Handler) http.Handler) {
	mux.Handle("GET /{$}", withAccount(http.HandlerFunc(h.Home)))
	mux.Handle("GET /dashboard", guard(http.HandlerFunc(h.Dashboard)))
}

// Home renders the public landing page. Logged-in visitors are sent
// straight to the dashboard.
func (h *DashboardHandler) Home(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromRequest(r)
	if account != nil {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}

	data := HomePageData{
		CurrentPath: r.URL.Path,
	}

	h.renderer.RenderHTTP(w, "public/home", data)
}

// Dashboard renders the workshop overview: counts, recent orders, and
// the trial countdown banner.
func (h *DashboardHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromRequest(r)
	if account == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	data := DashboardPageData{
		CurrentPath:        r.URL.Path,
		Account:            account,
		TrialDaysLeft:      account.TrialDaysLeft(time.Now()),
		ShowTrialCountdown: account.ShowTrialCountdown(),
		CSRFToken:          csrf.GetTokenFromRequest(r),
	}

	// Each lookup degrades to a zero count rather than failing the page.
	activeOrders, err := h.orders.List(r.Context(), domain.ListOrdersParams{
		AccountID:  account.ID,
		ActiveOnly: true,
		Limit:      recentOrdersLimit,
	})
	if err != nil {
		h.logger.Error("failed to load dashboard orders", "error", err, "account_id", account.ID)
	} else {
		data.ActiveOrders = activeOrders.Total
		data.RecentOrders = activeOrders.Orders
	}

	clients, err := h.clients.List(r.Context(), domain.ListClientsParams{
		AccountID: account.ID,
		Limit:     1,
	})
	if err != nil {
		h.logger.Error("failed to load dashboard clients", "error", err, "account_id", account.ID)
	} else {
		data.TotalClients = clients.Total
	}

	_, totalPhotos, err := h.photos.List(r.Context(), account.ID, 1, 0)
	if err != nil {
		h.logger.Error("failed to load dashboard photos", "error", err, "account_id", account.ID)
	} else {
		data.TotalPhotos = totalPhotos
	}

	h.renderer.RenderHTTP(w, "dashboard", data)
}
