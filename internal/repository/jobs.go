package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

const jobColumns = `id, job_type, payload, status, priority, attempts, max_attempts, last_error, scheduled_at, started_at, completed_at, created_at`

func scanJob(row interface{ Scan(...any) error }) (Job, error) {
	var j Job
	err := row.Scan(
		&j.ID,
		&j.JobType,
		&j.Payload,
		&j.Status,
		&j.Priority,
		&j.Attempts,
		&j.MaxAttempts,
		&j.LastError,
		&j.ScheduledAt,
		&j.StartedAt,
		&j.CompletedAt,
		&j.CreatedAt,
	)
	return j, err
}

const enqueueJob = `
INSERT INTO jobs (job_type, payload, priority, max_attempts, scheduled_at)
VALUES ($1, $2, $3, $4, COALESCE($5, now()))
RETURNING ` + jobColumns

type EnqueueJobParams struct {
	JobType     string
	Payload     pqtype.NullRawMessage
	Priority    int32
	MaxAttempts int32
	ScheduledAt sql.NullTime
}

// EnqueueJob inserts a pending job into the queue.
func (q *Queries) EnqueueJob(ctx context.Context, arg EnqueueJobParams) (Job, error) {
	row := q.db.QueryRowContext(ctx, enqueueJob,
		arg.JobType,
		arg.Payload,
		arg.Priority,
		arg.MaxAttempts,
		arg.ScheduledAt,
	)
	return scanJob(row)
}

const dequeueJob = `
SELECT ` + jobColumns + `
FROM jobs
WHERE status = 'pending'
  AND scheduled_at <= now()
ORDER BY priority DESC, scheduled_at ASC
LIMIT 1
FOR UPDATE SKIP LOCKED`

// DequeueJob selects the next runnable job. It must be called inside a
// transaction so the row lock holds until UpdateJobStarted commits.
// Returns sql.ErrNoRows when the queue is empty.
func (q *Queries) DequeueJob(ctx context.Context) (Job, error) {
	row := q.db.QueryRowContext(ctx, dequeueJob)
	return scanJob(row)
}

const updateJobStarted = `
UPDATE jobs
SET status = 'running',
    attempts = attempts + 1,
    started_at = now()
WHERE id = $1`

// UpdateJobStarted marks a dequeued job as running and counts the attempt.
func (q *Queries) UpdateJobStarted(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, updateJobStarted, id)
	return err
}

const updateJobCompleted = `
UPDATE jobs
SET status = 'completed',
    completed_at = now()
WHERE id = $1`

// UpdateJobCompleted marks a job as successfully finished.
func (q *Queries) UpdateJobCompleted(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, updateJobCompleted, id)
	return err
}

const updateJobFailed = `
UPDATE jobs
SET status = CASE WHEN attempts >= max_attempts THEN 'failed' ELSE 'pending' END,
    last_error = $2,
    scheduled_at = CASE WHEN attempts >= max_attempts THEN scheduled_at
                        ELSE now() + (interval '1 minute' * power(2, attempts)) END,
    started_at = NULL
WHERE id = $1`

type UpdateJobFailedParams struct {
	ID           uuid.UUID
	ErrorMessage sql.NullString
}

// UpdateJobFailed records a failure. Jobs with attempts remaining are
// rescheduled with exponential backoff, otherwise marked failed for good.
func (q *Queries) UpdateJobFailed(ctx context.Context, arg UpdateJobFailedParams) error {
	_, err := q.db.ExecContext(ctx, updateJobFailed, arg.ID, arg.ErrorMessage)
	return err
}

const markJobFailedPermanently = `
UPDATE jobs
SET status = 'failed',
    last_error = $2
WHERE id = $1`

// MarkJobFailedPermanently fails a job without scheduling a retry.
func (q *Queries) MarkJobFailedPermanently(ctx context.Context, arg UpdateJobFailedParams) error {
	_, err := q.db.ExecContext(ctx, markJobFailedPermanently, arg.ID, arg.ErrorMessage)
	return err
}

const recoverStaleJobs = `
UPDATE jobs
SET status = 'pending',
    started_at = NULL
WHERE status = 'running'
  AND started_at < now() - ($1 * interval '1 second')`

// RecoverStaleJobs resets running jobs whose worker likely crashed.
// thresholdSeconds is how long a job may run before it counts as stale.
// Returns the number of jobs recovered.
func (q *Queries) RecoverStaleJobs(ctx context.Context, thresholdSeconds float64) (int64, error) {
	res, err := q.db.ExecContext(ctx, recoverStaleJobs, thresholdSeconds)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
