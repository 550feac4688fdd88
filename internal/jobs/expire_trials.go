package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mesura-app/mesura/internal/domain"
	"github.com/mesura-app/mesura/internal/metrics"
	"github.com/mesura-app/mesura/internal/repository"
	"github.com/mesura-app/mesura/internal/worker"
)

// defaultExpireBatchSize bounds a sweep when the payload leaves it unset.
const defaultExpireBatchSize = 100

// ExpireTrialsHandler downgrades accounts whose trial window lapsed
// without a subscription ever being attached.
//
// The access guard reads only the subscription status, never the trial
// countdown, so this sweep is what actually revokes access: it flips
// trialing accounts past the window to canceled. Until a sweep runs an
// overdue trial keeps working, which is the accepted cost of keeping
// the guard a pure status check.
type ExpireTrialsHandler struct {
	queries *repository.Queries
	logger  *slog.Logger
}

// NewExpireTrialsHandler creates a new handler for trial expiry sweeps.
func NewExpireTrialsHandler(queries *repository.Queries, logger *slog.Logger) *ExpireTrialsHandler {
	return &ExpireTrialsHandler{
		queries: queries,
		logger:  logger,
	}
}

// Type returns the job type identifier.
func (h *ExpireTrialsHandler) Type() string {
	return worker.JobTypeExpireTrials
}

// Handle runs one batch of the trial expiry sweep.
func (h *ExpireTrialsHandler) Handle(ctx context.Context, payload []byte) error {
	var p worker.ExpireTrialsPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return worker.NewPermanentError(fmt.Errorf("invalid payload: %w", err))
	}
	if p.BatchSize <= 0 {
		p.BatchSize = defaultExpireBatchSize
	}

	cutoff := time.Now().AddDate(0, 0, -domain.TrialDays)

	accounts, err := h.queries.ListExpiredTrialAccounts(ctx, cutoff, p.BatchSize)
	if err != nil {
		return fmt.Errorf("list expired trials: %w", err)
	}
	if len(accounts) == 0 {
		return nil
	}

	var expired int
	for _, account := range accounts {
		downgraded, err := h.queries.ExpireTrialAccount(ctx, account.ID)
		if err != nil {
			// Keep sweeping; the account is picked up again next run
			h.logger.Error("Failed to expire trial account", "account_id", account.ID, "error", err)
			continue
		}
		if !downgraded {
			// Account subscribed between the list query and the update
			continue
		}
		expired++
		metrics.TrialsExpired.Inc()
		h.logger.Info("Trial expired", "account_id", account.ID, "created_at", account.CreatedAt)
	}

	h.logger.Info("Trial expiry sweep completed", "candidates", len(accounts), "expired", expired)
	return nil
}
