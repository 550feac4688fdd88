package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mesura-app/mesura/internal/domain"
	"github.com/mesura-app/mesura/internal/metrics"
	"github.com/mesura-app/mesura/internal/repository"
)

// OrderService defines operations on garment orders.
type OrderService interface {
	// Create adds a new order in the pending status. The caller's tier
	// quota on active orders is checked at this write boundary;
	// domain.EQUOTA is returned when the account has reached its limit.
	Create(ctx context.Context, params domain.CreateOrderParams, tier domain.SubscriptionTier) (*domain.Order, error)

	// GetByID retrieves an order scoped to its owning account.
	GetByID(ctx context.Context, id, accountID uuid.UUID) (*domain.Order, error)

	// List returns a page of the account's orders, nearest due date first.
	List(ctx context.Context, params domain.ListOrdersParams) (*domain.ListOrdersResult, error)

	// Update modifies an order's details. The status is not changed here;
	// use UpdateStatus for lifecycle moves.
	Update(ctx context.Context, params domain.UpdateOrderParams) (*domain.Order, error)

	// UpdateStatus moves an order through its lifecycle, validating the
	// transition. Moving to done stamps the completion time.
	// Returns domain.EINVALID for a disallowed transition.
	UpdateStatus(ctx context.Context, id, accountID uuid.UUID, next domain.OrderStatus) (*domain.Order, error)

	// Delete removes an order.
	Delete(ctx context.Context, id, accountID uuid.UUID) error
}

type orderService struct {
	queries *repository.Queries
	quotas  QuotaService
	logger  *slog.Logger
}

// NewOrderService creates a new OrderService.
func NewOrderService(queries *repository.Queries, quotas QuotaService, logger *slog.Logger) OrderService {
	return &orderService{
		queries: queries,
		quotas:  quotas,
		logger:  logger,
	}
}

func (s *orderService) Create(ctx context.Context, params domain.CreateOrderParams, tier domain.SubscriptionTier) (*domain.Order, error) {
	const op = "OrderService.Create"

	params.Garment = strings.TrimSpace(params.Garment)
	if params.Garment == "" {
		return nil, domain.Invalid(op, "Garment description is required")
	}
	if params.PriceCents < 0 {
		return nil, domain.Invalid(op, "Price cannot be negative")
	}

	// A referenced client must belong to the same account
	if params.ClientID != nil {
		if _, err := s.queries.GetClient(ctx, *params.ClientID, params.AccountID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, domain.NotFound(op, "client", params.ClientID.String())
			}
			return nil, domain.Internal(err, op, "Failed to verify client")
		}
	}

	// Quota gate on active orders
	if err := s.quotas.CheckOrderQuota(ctx, params.AccountID, tier); err != nil {
		return nil, err
	}

	repoOrder, err := s.queries.CreateOrder(ctx, repository.CreateOrderParams{
		AccountID:  params.AccountID,
		ClientID:   domain.ToNullUUID(params.ClientID),
		Garment:    params.Garment,
		Notes:      domain.ToNullString(params.Notes),
		PriceCents: params.PriceCents,
		DueDate:    domain.ToNullTime(params.DueDate),
	})
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to create order")
	}

	metrics.OrdersCreated.Inc()
	s.logger.Info("order created", "order_id", repoOrder.ID, "account_id", params.AccountID)

	return s.withClientName(ctx, repoOrderToDomain(repoOrder)), nil
}

func (s *orderService) GetByID(ctx context.Context, id, accountID uuid.UUID) (*domain.Order, error) {
	const op = "OrderService.GetByID"

	repoOrder, err := s.queries.GetOrder(ctx, id, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "order", id.String())
		}
		return nil, domain.Internal(err, op, "Failed to retrieve order")
	}

	return s.withClientName(ctx, repoOrderToDomain(repoOrder)), nil
}

func (s *orderService) List(ctx context.Context, params domain.ListOrdersParams) (*domain.ListOrdersResult, error) {
	const op = "OrderService.List"

	if params.Limit <= 0 || params.Limit > 100 {
		params.Limit = 25
	}
	if params.Offset < 0 {
		params.Offset = 0
	}

	var statusFilter sql.NullString
	if params.Status != "" {
		statusFilter = domain.ToNullString(string(params.Status))
	}

	repoOrders, err := s.queries.ListOrders(ctx, repository.ListOrdersParams{
		AccountID:  params.AccountID,
		Status:     statusFilter,
		ActiveOnly: params.ActiveOnly,
		Limit:      params.Limit,
		Offset:     params.Offset,
	})
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to list orders")
	}

	total, err := s.queries.CountOrders(ctx, repository.CountOrdersParams{
		AccountID:  params.AccountID,
		Status:     statusFilter,
		ActiveOnly: params.ActiveOnly,
	})
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to count orders")
	}

	orders := make([]domain.Order, 0, len(repoOrders))
	for _, ro := range repoOrders {
		orders = append(orders, *s.withClientName(ctx, repoOrderToDomain(ro)))
	}

	return &domain.ListOrdersResult{
		Orders: orders,
		Total:  total,
		Limit:  params.Limit,
		Offset: params.Offset,
	}, nil
}

func (s *orderService) Update(ctx context.Context, params domain.UpdateOrderParams) (*domain.Order, error) {
	const op = "OrderService.Update"

	params.Garment = strings.TrimSpace(params.Garment)
	if params.Garment == "" {
		return nil, domain.Invalid(op, "Garment description is required")
	}
	if params.PriceCents < 0 {
		return nil, domain.Invalid(op, "Price cannot be negative")
	}

	if params.ClientID != nil {
		if _, err := s.queries.GetClient(ctx, *params.ClientID, params.AccountID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, domain.NotFound(op, "client", params.ClientID.String())
			}
			return nil, domain.Internal(err, op, "Failed to verify client")
		}
	}

	err := s.queries.UpdateOrder(ctx, repository.UpdateOrderParams{
		ID:         params.ID,
		AccountID:  params.AccountID,
		ClientID:   domain.ToNullUUID(params.ClientID),
		Garment:    params.Garment,
		Notes:      domain.ToNullString(params.Notes),
		PriceCents: params.PriceCents,
		DueDate:    domain.ToNullTime(params.DueDate),
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "order", params.ID.String())
		}
		return nil, domain.Internal(err, op, "Failed to update order")
	}

	return s.GetByID(ctx, params.ID, params.AccountID)
}

// UpdateStatus validates the lifecycle move in the domain and persists
// the result. The transition table guarantees terminal orders stay
// terminal; moving into done records the completion time, which also
// drops the order out of the active-order quota count.
func (s *orderService) UpdateStatus(ctx context.Context, id, accountID uuid.UUID, next domain.OrderStatus) (*domain.Order, error) {
	const op = "OrderService.UpdateStatus"

	order, err := s.GetByID(ctx, id, accountID)
	if err != nil {
		return nil, err
	}

	prev := order.Status
	if err := order.TransitionTo(next); err != nil {
		return nil, domain.Wrap(err, domain.EINVALID, op, "Invalid status transition")
	}
	if order.Status == prev {
		// Same-status no-op
		return order, nil
	}

	var completedAt sql.NullTime
	if order.Status == domain.OrderStatusDone {
		completedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	}

	err = s.queries.UpdateOrderStatus(ctx, repository.UpdateOrderStatusParams{
		ID:          id,
		AccountID:   accountID,
		Status:      string(order.Status),
		CompletedAt: completedAt,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "order", id.String())
		}
		return nil, domain.Internal(err, op, "Failed to update order status")
	}

	s.logger.Info("order status updated",
		"order_id", id,
		"account_id", accountID,
		"from", prev,
		"to", order.Status,
	)

	return s.GetByID(ctx, id, accountID)
}

func (s *orderService) Delete(ctx context.Context, id, accountID uuid.UUID) error {
	const op = "OrderService.Delete"

	if err := s.queries.DeleteOrder(ctx, id, accountID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFound(op, "order", id.String())
		}
		return domain.Internal(err, op, "Failed to delete order")
	}

	s.logger.Info("order deleted", "order_id", id, "account_id", accountID)
	return nil
}

// withClientName resolves the joined client name for display. Lookup
// failures leave the name empty rather than failing the operation.
func (s *orderService) withClientName(ctx context.Context, order *domain.Order) *domain.Order {
	if order.ClientID == nil {
		return order
	}
	name, err := s.queries.GetClientName(ctx, *order.ClientID)
	if err == nil {
		order.ClientName = name
	}
	return order
}

// repoOrderToDomain converts a repository.Order to domain.Order.
func repoOrderToDomain(o repository.Order) *domain.Order {
	var clientID *uuid.UUID
	if o.ClientID.Valid {
		id := o.ClientID.UUID
		clientID = &id
	}
	return &domain.Order{
		ID:          o.ID,
		AccountID:   o.AccountID,
		ClientID:    clientID,
		Garment:     o.Garment,
		Notes:       domain.NullStringValue(o.Notes),
		Status:      domain.OrderStatus(o.Status),
		PriceCents:  o.PriceCents,
		DueDate:     domain.NullTimeValue(o.DueDate),
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
		CompletedAt: domain.NullTimeValue(o.CompletedAt),
	}
}

var _ OrderService = (*orderService)(nil)
