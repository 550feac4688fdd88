package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CreateSessionParams are the inputs for CreateSession.
type CreateSessionParams struct {
	AccountID uuid.UUID
	TokenHash string
	ExpiresAt time.Time
}

const createSession = `
INSERT INTO sessions (account_id, token_hash, expires_at)
VALUES ($1, $2, $3)
RETURNING id, account_id, token_hash, expires_at, created_at`

func (q *Queries) CreateSession(ctx context.Context, arg CreateSessionParams) (Session, error) {
	var s Session
	err := q.db.QueryRowContext(ctx, createSession, arg.AccountID, arg.TokenHash, arg.ExpiresAt).
		Scan(&s.ID, &s.AccountID, &s.TokenHash, &s.ExpiresAt, &s.CreatedAt)
	return s, err
}

const deleteSession = `DELETE FROM sessions WHERE token_hash = $1`

func (q *Queries) DeleteSession(ctx context.Context, tokenHash string) error {
	_, err := q.db.ExecContext(ctx, deleteSession, tokenHash)
	return err
}

const deleteSessionsForAccount = `DELETE FROM sessions WHERE account_id = $1`

// DeleteSessionsForAccount invalidates every session an account holds,
// used after password changes.
func (q *Queries) DeleteSessionsForAccount(ctx context.Context, accountID uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, deleteSessionsForAccount, accountID)
	return err
}

const deleteExpiredSessions = `DELETE FROM sessions WHERE expires_at < now()`

func (q *Queries) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteExpiredSessions)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
