// Package service contains the business logic layer.
//
// This file implements the quota service enforcing per-tier limits on
// client and active-order counts.
package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/mesura-app/mesura/internal/domain"
	"github.com/mesura-app/mesura/internal/metrics"
)

// QuotaStore is the slice of the repository the quota service needs.
type QuotaStore interface {
	CountClients(ctx context.Context, accountID uuid.UUID) (int64, error)
	CountActiveOrders(ctx context.Context, accountID uuid.UUID) (int64, error)
}

// QuotaService defines operations for checking quota limits.
//
// Quotas are evaluated against live counts at every write boundary, so
// the effective limit follows the account's current tier immediately.
// Existing rows above a shrunken limit are never deleted; the account
// just cannot add more until it is back under the limit.
type QuotaService interface {
	// GetUsage returns the current quota usage for an account.
	GetUsage(ctx context.Context, accountID uuid.UUID, tier domain.SubscriptionTier) (*domain.QuotaUsage, error)

	// CheckClientQuota checks whether the account may add another client.
	// Returns nil if allowed, or a QuotaExceeded error if the client
	// count has reached the tier limit.
	CheckClientQuota(ctx context.Context, accountID uuid.UUID, tier domain.SubscriptionTier) error

	// CheckOrderQuota checks whether the account may add another active
	// order. Only non-terminal orders count toward the limit.
	CheckOrderQuota(ctx context.Context, accountID uuid.UUID, tier domain.SubscriptionTier) error
}

type quotaService struct {
	store  QuotaStore
	logger *slog.Logger
}

// NewQuotaService creates a new QuotaService.
func NewQuotaService(store QuotaStore, logger *slog.Logger) QuotaService {
	return &quotaService{
		store:  store,
		logger: logger,
	}
}

// GetUsage returns the current quota usage for an account.
func (s *quotaService) GetUsage(ctx context.Context, accountID uuid.UUID, tier domain.SubscriptionTier) (*domain.QuotaUsage, error) {
	const op = "quota.get_usage"

	quota := domain.GetTierQuota(tier)

	clientCount, err := s.store.CountClients(ctx, accountID)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to count clients")
	}

	orderCount, err := s.store.CountActiveOrders(ctx, accountID)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to count active orders")
	}

	if quota.Unlimited {
		return &domain.QuotaUsage{
			ClientsUsed:      clientCount,
			ActiveOrdersUsed: orderCount,
			IsUnlimited:      true,
		}, nil
	}

	return &domain.QuotaUsage{
		ClientsUsed:       clientCount,
		ClientsLimit:      int64(quota.MaxClients),
		ActiveOrdersUsed:  orderCount,
		ActiveOrdersLimit: int64(quota.MaxActiveOrders),
	}, nil
}

// CheckClientQuota checks whether the account may add another client.
func (s *quotaService) CheckClientQuota(ctx context.Context, accountID uuid.UUID, tier domain.SubscriptionTier) error {
	const op = "quota.check_clients"

	quota := domain.GetTierQuota(tier)
	if quota.Unlimited {
		return nil
	}

	count, err := s.store.CountClients(ctx, accountID)
	if err != nil {
		return domain.Internal(err, op, "failed to count clients")
	}

	limit := int64(quota.MaxClients)
	if count >= limit {
		s.logger.Info("client quota exceeded",
			"account_id", accountID,
			"tier", tier,
			"used", count,
			"limit", limit,
		)
		metrics.QuotaDenials.WithLabelValues(string(domain.QuotaTypeClients), string(tier)).Inc()
		return domain.QuotaExceeded(op, domain.QuotaTypeClients, count, limit)
	}

	return nil
}

// CheckOrderQuota checks whether the account may add another active order.
func (s *quotaService) CheckOrderQuota(ctx context.Context, accountID uuid.UUID, tier domain.SubscriptionTier) error {
	const op = "quota.check_orders"

	quota := domain.GetTierQuota(tier)
	if quota.Unlimited {
		return nil
	}

	count, err := s.store.CountActiveOrders(ctx, accountID)
	if err != nil {
		return domain.Internal(err, op, "failed to count active orders")
	}

	limit := int64(quota.MaxActiveOrders)
	if count >= limit {
		s.logger.Info("order quota exceeded",
			"account_id", accountID,
			"tier", tier,
			"used", count,
			"limit", limit,
		)
		metrics.QuotaDenials.WithLabelValues(string(domain.QuotaTypeOrders), string(tier)).Inc()
		return domain.QuotaExceeded(op, domain.QuotaTypeOrders, count, limit)
	}

	return nil
}

var _ QuotaService = (*quotaService)(nil)
