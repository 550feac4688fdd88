package repository

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

// Account is the accounts table row.
type Account struct {
	ID                   uuid.UUID
	Email                string
	PasswordHash         string
	Name                 string
	WorkshopName         sql.NullString
	Phone                sql.NullString
	StripeCustomerID     sql.NullString
	SubscriptionStatus   string
	SubscriptionTier     string
	StripeSubscriptionID sql.NullString
	CurrentPeriodEnd     sql.NullTime
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Session is the sessions table row.
type Session struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Client is the clients table row.
type Client struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	Name      string
	Email     sql.NullString
	Phone     sql.NullString
	Notes     sql.NullString
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ClientMeasurements is the client_measurements table row. Extra holds
// free-form garment-specific values as jsonb.
type ClientMeasurements struct {
	ClientID  uuid.UUID
	Neck      sql.NullFloat64
	Chest     sql.NullFloat64
	Waist     sql.NullFloat64
	Hips      sql.NullFloat64
	Shoulder  sql.NullFloat64
	SleeveLen sql.NullFloat64
	Inseam    sql.NullFloat64
	Extra     pqtype.NullRawMessage
	UpdatedAt time.Time
}

// Order is the orders table row.
type Order struct {
	ID          uuid.UUID
	AccountID   uuid.UUID
	ClientID    uuid.NullUUID
	Garment     string
	Notes       sql.NullString
	Status      string
	PriceCents  int64
	DueDate     sql.NullTime
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt sql.NullTime
}

// Photo is the photos table row.
type Photo struct {
	ID           uuid.UUID
	AccountID    uuid.UUID
	OrderID      uuid.NullUUID
	Caption      sql.NullString
	StorageKey   string
	ThumbnailKey sql.NullString
	ContentType  string
	SizeBytes    int64
	CreatedAt    time.Time
}

// Job is the jobs table row for the background worker queue.
type Job struct {
	ID          uuid.UUID
	JobType     string
	Payload     pqtype.NullRawMessage
	Status      string
	Priority    int32
	Attempts    int32
	MaxAttempts int32
	LastError   sql.NullString
	ScheduledAt time.Time
	StartedAt   sql.NullTime
	CompletedAt sql.NullTime
	CreatedAt   time.Time
}

// WebhookEvent is the webhook_events audit table row. Payload keeps the
// raw provider delivery for replay debugging.
type WebhookEvent struct {
	ID         uuid.UUID
	Provider   string
	EventKind  string
	ProviderID sql.NullString
	AccountID  uuid.NullUUID
	Payload    pqtype.NullRawMessage
	Outcome    string
	CreatedAt  time.Time
}
