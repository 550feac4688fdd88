package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

const insertWebhookEvent = `
INSERT INTO webhook_events (provider, event_kind, provider_id, account_id, payload, outcome)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, provider, event_kind, provider_id, account_id, payload, outcome, created_at`

type InsertWebhookEventParams struct {
	Provider   string
	EventKind  string
	ProviderID sql.NullString
	AccountID  uuid.NullUUID
	Payload    pqtype.NullRawMessage
	Outcome    string
}

// InsertWebhookEvent records a processed provider delivery for auditing.
func (q *Queries) InsertWebhookEvent(ctx context.Context, arg InsertWebhookEventParams) (WebhookEvent, error) {
	row := q.db.QueryRowContext(ctx, insertWebhookEvent,
		arg.Provider,
		arg.EventKind,
		arg.ProviderID,
		arg.AccountID,
		arg.Payload,
		arg.Outcome,
	)
	var e WebhookEvent
	err := row.Scan(
		&e.ID,
		&e.Provider,
		&e.EventKind,
		&e.ProviderID,
		&e.AccountID,
		&e.Payload,
		&e.Outcome,
		&e.CreatedAt,
	)
	return e, err
}

const listWebhookEvents = `
SELECT id, provider, event_kind, provider_id, account_id, payload, outcome, created_at
FROM webhook_events
ORDER BY created_at DESC
LIMIT $1`

// ListWebhookEvents returns the most recent deliveries, newest first.
func (q *Queries) ListWebhookEvents(ctx context.Context, limit int32) ([]WebhookEvent, error) {
	rows, err := q.db.QueryContext(ctx, listWebhookEvents, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []WebhookEvent
	for rows.Next() {
		var e WebhookEvent
		if err := rows.Scan(
			&e.ID,
			&e.Provider,
			&e.EventKind,
			&e.ProviderID,
			&e.AccountID,
			&e.Payload,
			&e.Outcome,
			&e.CreatedAt,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
