package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mesura-app/mesura/internal/domain"
	"github.com/mesura-app/mesura/internal/service"
)

type mockDashboardOrders struct {
	service.OrderService

	result  *domain.ListOrdersResult
	listErr error
}

func (m *mockDashboardOrders) List(_ context.Context, params domain.ListOrdersParams) (*domain.ListOrdersResult, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.result, nil
}

type mockDashboardClients struct {
	service.ClientService

	result *domain.ListClientsResult
}

func (m *mockDashboardClients) List(_ context.Context, params domain.ListClientsParams) (*domain.ListClientsResult, error) {
	return m.result, nil
}

type mockDashboardPhotos struct {
	service.PhotoService

	total int64
}

func (m *mockDashboardPhotos) List(_ context.Context, accountID uuid.UUID, limit, offset int32) ([]domain.Photo, int64, error) {
	return nil, m.total, nil
}

func TestDashboard_RendersCounts(t *testing.T) {
	account := trialingAccount()
	orders := &mockDashboardOrders{
		result: &domain.ListOrdersResult{
			Orders: []domain.Order{
				{ID: uuid.New(), Garment: "Linen suit", Status: domain.OrderStatusInProgress},
				{ID: uuid.New(), Garment: "Wedding dress", Status: domain.OrderStatusFitting},
			},
			Total: 7,
		},
	}
	clients := &mockDashboardClients{result: &domain.ListClientsResult{Total: 12}}
	photos := &mockDashboardPhotos{total: 31}
	renderer := &mockRenderer{}
	h := NewDashboardHandler(orders, clients, photos, renderer, billingTestLogger())

	req := requestWithAccount(http.MethodGet, "/dashboard", nil, account)
	rec := httptest.NewRecorder()

	h.Dashboard(rec, req)

	if len(renderer.names) != 1 || renderer.names[0] != "dashboard" {
		t.Fatalf("rendered %v, want [dashboard]", renderer.names)
	}
	data := renderer.data[0].(DashboardPageData)
	if data.ActiveOrders != 7 {
		t.Errorf("ActiveOrders = %d, want 7", data.ActiveOrders)
	}
	if data.TotalClients != 12 {
		t.Errorf("TotalClients = %d, want 12", data.TotalClients)
	}
	if data.TotalPhotos != 31 {
		t.Errorf("TotalPhotos = %d, want 31", data.TotalPhotos)
	}
	if len(data.RecentOrders) != 2 {
		t.Errorf("RecentOrders = %d entries, want 2", len(data.RecentOrders))
	}
	if !data.ShowTrialCountdown {
		t.Error("trialing account should show the countdown")
	}
}

func TestDashboard_DegradesOnOrderError(t *testing.T) {
	account := trialingAccount()
	orders := &mockDashboardOrders{listErr: errors.New("db is down")}
	clients := &mockDashboardClients{result: &domain.ListClientsResult{Total: 3}}
	photos := &mockDashboardPhotos{total: 0}
	renderer := &mockRenderer{}
	h := NewDashboardHandler(orders, clients, photos, renderer, billingTestLogger())

	req := requestWithAccount(http.MethodGet, "/dashboard", nil, account)
	rec := httptest.NewRecorder()

	h.Dashboard(rec, req)

	// The page still renders; the failed lookup shows as zero.
	if len(renderer.names) != 1 {
		t.Fatalf("rendered %v, want one template", renderer.names)
	}
	data := renderer.data[0].(DashboardPageData)
	if data.ActiveOrders != 0 || len(data.RecentOrders) != 0 {
		t.Errorf("order counts should be zero after a lookup failure, got %+v", data)
	}
	if data.TotalClients != 3 {
		t.Errorf("TotalClients = %d, want 3", data.TotalClients)
	}
}

func TestHome_RedirectsLoggedInVisitors(t *testing.T) {
	account := trialingAccount()
	h := NewDashboardHandler(nil, nil, nil, &mockRenderer{}, billingTestLogger())

	req := requestWithAccount(http.MethodGet, "/", nil, account)
	rec := httptest.NewRecorder()

	h.Home(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusSeeOther)
	}
	if loc := rec.Header().Get("Location"); loc != "/dashboard" {
		t.Errorf("Location = %q, want /dashboard", loc)
	}
}

func TestHome_RendersLandingForAnonymous(t *testing.T) {
	renderer := &mockRenderer{}
	h := NewDashboardHandler(nil, nil, nil, renderer, billingTestLogger())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	h.Home(rec, req)

	if len(renderer.names) != 1 || renderer.names[0] != "public/home" {
		t.Fatalf("rendered %v, want [public/home]", renderer.names)
	}
}

// Guard against drift between the countdown banner and the trial length.
func TestDashboard_TrialDaysLeftMatchesWindow(t *testing.T) {
	account := trialingAccount()
	// Partial days count against the trial, so nine days and change
	// elapsed means ten days consumed.
	account.CreatedAt = time.Now().Add(-9*24*time.Hour - time.Hour)

	orders := &mockDashboardOrders{result: &domain.ListOrdersResult{}}
	clients := &mockDashboardClients{result: &domain.ListClientsResult{}}
	photos := &mockDashboardPhotos{}
	renderer := &mockRenderer{}
	h := NewDashboardHandler(orders, clients, photos, renderer, billingTestLogger())

	req := requestWithAccount(http.MethodGet, "/dashboard", nil, account)
	rec := httptest.NewRecorder()

	h.Dashboard(rec, req)

	data := renderer.data[0].(DashboardPageData)
	if data.TrialDaysLeft != domain.TrialDays-10 {
		t.Errorf("TrialDaysLeft = %d, want %d", data.TrialDaysLeft, domain.TrialDays-10)
	}
}
