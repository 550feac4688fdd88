package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mesura-app/mesura/internal/repository"
	"github.com/mesura-app/mesura/internal/worker"
)

// CleanupSessionsHandler deletes sessions that are past their expiry.
// Expired sessions are already rejected at login lookup; the sweep just
// keeps the table from growing without bound.
type CleanupSessionsHandler struct {
	queries *repository.Queries
	logger  *slog.Logger
}

// NewCleanupSessionsHandler creates a new handler for session cleanup sweeps.
func NewCleanupSessionsHandler(queries *repository.Queries, logger *slog.Logger) *CleanupSessionsHandler {
	return &CleanupSessionsHandler{
		queries: queries,
		logger:  logger,
	}
}

// Type returns the job type identifier.
func (h *CleanupSessionsHandler) Type() string {
	return worker.JobTypeCleanupSessions
}

// Handle deletes all expired sessions.
func (h *CleanupSessionsHandler) Handle(ctx context.Context, payload []byte) error {
	deleted, err := h.queries.DeleteExpiredSessions(ctx)
	if err != nil {
		return fmt.Errorf("delete expired sessions: %w", err)
	}

	if deleted > 0 {
		h.logger.Info("Expired sessions deleted", "count", deleted)
	}
	return nil
}
