package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mesura-app/mesura/internal/repository"
	"github.com/sqlc-dev/pqtype"
)

// Job type constants - these must match the JobHandler.Type() values
const (
	JobTypeGenerateThumbnail = "generate_thumbnail"
	JobTypeExpireTrials      = "expire_trials"
	JobTypeCleanupSessions   = "cleanup_sessions"
)

// Priority constants for job scheduling
const (
	PriorityLow    = 0
	PriorityNormal = 10
	PriorityHigh   = 20
)

// GenerateThumbnailPayload is the payload for photo thumbnail jobs.
type GenerateThumbnailPayload struct {
	PhotoID uuid.UUID `json:"photo_id"`
}

// ExpireTrialsPayload is the payload for the trial expiry sweep.
// BatchSize limits how many accounts a single run downgrades.
type ExpireTrialsPayload struct {
	BatchSize int32 `json:"batch_size"`
}

// CleanupSessionsPayload is the payload for the session cleanup sweep.
// The sweep takes no parameters; the payload exists so every job carries
// valid JSON.
type CleanupSessionsPayload struct{}

// EnqueueOption is a functional option for customizing job enqueue parameters.
type EnqueueOption func(*repository.EnqueueJobParams)

// WithPriority sets the job priority.
func WithPriority(priority int32) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.Priority = priority
	}
}

// WithMaxAttempts sets the maximum number of retry attempts.
func WithMaxAttempts(attempts int32) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.MaxAttempts = attempts
	}
}

// WithDelay schedules the job to run after a delay.
func WithDelay(delay time.Duration) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.ScheduledAt = sql.NullTime{Time: time.Now().Add(delay), Valid: true}
	}
}

// Enqueue is a generic helper for enqueuing jobs with custom options.
func Enqueue(
	ctx context.Context,
	queries *repository.Queries,
	jobType string,
	payload interface{},
	opts ...EnqueueOption,
) (repository.Job, error) {
	// Marshal the payload to JSON
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return repository.Job{}, fmt.Errorf("marshal payload: %w", err)
	}

	// Default parameters
	params := repository.EnqueueJobParams{
		JobType:     jobType,
		Payload:     pqtype.NullRawMessage{RawMessage: payloadJSON, Valid: true},
		Priority:    PriorityNormal,
		MaxAttempts: 3,
	}

	// Apply options
	for _, opt := range opts {
		opt(&params)
	}

	// Enqueue the job
	job, err := queries.EnqueueJob(ctx, params)
	if err != nil {
		return repository.Job{}, fmt.Errorf("enqueue job: %w", err)
	}

	return job, nil
}

// EnqueueGenerateThumbnail enqueues a job to render a photo's thumbnail.
// This is typically called right after a photo upload is stored.
func EnqueueGenerateThumbnail(
	ctx context.Context,
	queries *repository.Queries,
	photoID uuid.UUID,
	opts ...EnqueueOption,
) (repository.Job, error) {
	payload := GenerateThumbnailPayload{
		PhotoID: photoID,
	}

	return Enqueue(ctx, queries, JobTypeGenerateThumbnail, payload, opts...)
}

// EnqueueExpireTrials enqueues a sweep that downgrades accounts whose
// trial window has lapsed without a subscription.
func EnqueueExpireTrials(
	ctx context.Context,
	queries *repository.Queries,
	batchSize int32,
	opts ...EnqueueOption,
) (repository.Job, error) {
	payload := ExpireTrialsPayload{
		BatchSize: batchSize,
	}

	return Enqueue(ctx, queries, JobTypeExpireTrials, payload, opts...)
}

// EnqueueCleanupSessions enqueues a sweep that deletes expired sessions.
func EnqueueCleanupSessions(
	ctx context.Context,
	queries *repository.Queries,
	opts ...EnqueueOption,
) (repository.Job, error) {
	return Enqueue(ctx, queries, JobTypeCleanupSessions, CleanupSessionsPayload{}, opts...)
}
