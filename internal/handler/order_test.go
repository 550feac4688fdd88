package handler

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesura-app/mesura/internal/domain"
	"github.com/mesura-app/mesura/internal/service"
)

type mockOrderClients struct {
	service.ClientService
	listResult *domain.ListClientsResult
}

func (m *mockOrderClients) List(context.Context, domain.ListClientsParams) (*domain.ListClientsResult, error) {
	return m.listResult, nil
}

func TestOrderNew_AtQuotaShowsUpgradeNotice(t *testing.T) {
	account := trialingAccount()
	quotas := &mockQuotaService{orderErr: domain.QuotaExceeded("quota.check_orders", domain.QuotaTypeOrders, 3, 3)}
	renderer := &mockRenderer{}
	// Order and client services stay nil: the blocked path must not
	// touch either, not even for the client dropdown.
	h := NewOrderHandler(nil, nil, quotas, renderer, billingTestLogger())

	rec := httptest.NewRecorder()
	h.New(rec, requestWithAccount("GET", "/orders/new", nil, account))

	require.Equal(t, []string{"orders/new"}, renderer.names)
	data, ok := renderer.data[0].(OrderFormPageData)
	require.True(t, ok)
	assert.Contains(t, data.QuotaNotice, "limit has been reached")
	assert.Empty(t, data.Clients)
}

func TestOrderNew_UnderQuotaRendersForm(t *testing.T) {
	account := trialingAccount()
	clients := &mockOrderClients{listResult: &domain.ListClientsResult{
		Clients: []domain.Client{{Name: "Ngozi A."}},
	}}
	renderer := &mockRenderer{}
	h := NewOrderHandler(nil, clients, &mockQuotaService{}, renderer, billingTestLogger())

	rec := httptest.NewRecorder()
	h.New(rec, requestWithAccount("GET", "/orders/new", nil, account))

	require.Equal(t, []string{"orders/new"}, renderer.names)
	data, ok := renderer.data[0].(OrderFormPageData)
	require.True(t, ok)
	assert.Empty(t, data.QuotaNotice)
	require.Len(t, data.Clients, 1)
}
