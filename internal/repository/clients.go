package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

const clientColumns = `id, account_id, name, email, phone, notes, created_at, updated_at`

func scanClient(row interface{ Scan(...interface{}) error }) (Client, error) {
	var c Client
	err := row.Scan(&c.ID, &c.AccountID, &c.Name, &c.Email, &c.Phone, &c.Notes, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// CreateClientParams are the inputs for CreateClient.
type CreateClientParams struct {
	AccountID uuid.UUID
	Name      string
	Email     sql.NullString
	Phone     sql.NullString
	Notes     sql.NullString
}

const createClient = `
INSERT INTO clients (account_id, name, email, phone, notes)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + clientColumns

func (q *Queries) CreateClient(ctx context.Context, arg CreateClientParams) (Client, error) {
	row := q.db.QueryRowContext(ctx, createClient,
		arg.AccountID, arg.Name, arg.Email, arg.Phone, arg.Notes)
	return scanClient(row)
}

const getClient = `
SELECT ` + clientColumns + ` FROM clients WHERE id = $1 AND account_id = $2`

// GetClient retrieves a client scoped to its owning account.
func (q *Queries) GetClient(ctx context.Context, id, accountID uuid.UUID) (Client, error) {
	return scanClient(q.db.QueryRowContext(ctx, getClient, id, accountID))
}

// ListClientsParams are the inputs for ListClients.
type ListClientsParams struct {
	AccountID uuid.UUID
	Limit     int32
	Offset    int32
}

const listClients = `
SELECT ` + clientColumns + `
FROM clients
WHERE account_id = $1
ORDER BY name ASC
LIMIT $2 OFFSET $3`

func (q *Queries) ListClients(ctx context.Context, arg ListClientsParams) ([]Client, error) {
	rows, err := q.db.QueryContext(ctx, listClients, arg.AccountID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

const listAllClients = `
SELECT ` + clientColumns + ` FROM clients WHERE account_id = $1 ORDER BY name ASC`

// ListAllClients returns every client for an account, for dropdowns.
func (q *Queries) ListAllClients(ctx context.Context, accountID uuid.UUID) ([]Client, error) {
	rows, err := q.db.QueryContext(ctx, listAllClients, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

const countClients = `SELECT count(*) FROM clients WHERE account_id = $1`

// CountClients returns the live client count for quota checks. Always
// queried at call time; never cached.
func (q *Queries) CountClients(ctx context.Context, accountID uuid.UUID) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, countClients, accountID).Scan(&count)
	return count, err
}

// UpdateClientParams are the inputs for UpdateClient.
type UpdateClientParams struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	Name      string
	Email     sql.NullString
	Phone     sql.NullString
	Notes     sql.NullString
}

const updateClient = `
UPDATE clients
SET name = $3, email = $4, phone = $5, notes = $6, updated_at = now()
WHERE id = $1 AND account_id = $2`

func (q *Queries) UpdateClient(ctx context.Context, arg UpdateClientParams) error {
	result, err := q.db.ExecContext(ctx, updateClient,
		arg.ID, arg.AccountID, arg.Name, arg.Email, arg.Phone, arg.Notes)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

const countActiveOrdersForClient = `
SELECT count(*) FROM orders
WHERE client_id = $1 AND status NOT IN ('done', 'cancelled')`

// CountActiveOrdersForClient counts non-terminal orders referencing a
// client. A client with active orders cannot be deleted.
func (q *Queries) CountActiveOrdersForClient(ctx context.Context, clientID uuid.UUID) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, countActiveOrdersForClient, clientID).Scan(&count)
	return count, err
}

const detachOrdersForClient = `
UPDATE orders SET client_id = NULL, updated_at = now() WHERE client_id = $1`

// DetachOrdersForClient clears the client reference on (terminal) orders
// before the client row is deleted, so history survives the delete.
func (q *Queries) DetachOrdersForClient(ctx context.Context, clientID uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, detachOrdersForClient, clientID)
	return err
}

const deleteClient = `DELETE FROM clients WHERE id = $1 AND account_id = $2`

func (q *Queries) DeleteClient(ctx context.Context, id, accountID uuid.UUID) error {
	result, err := q.db.ExecContext(ctx, deleteClient, id, accountID)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// =============================================================================
// Measurements
// =============================================================================

// UpsertMeasurementsParams are the inputs for UpsertMeasurements.
type UpsertMeasurementsParams struct {
	ClientID  uuid.UUID
	Neck      sql.NullFloat64
	Chest     sql.NullFloat64
	Waist     sql.NullFloat64
	Hips      sql.NullFloat64
	Shoulder  sql.NullFloat64
	SleeveLen sql.NullFloat64
	Inseam    sql.NullFloat64
	Extra     pqtype.NullRawMessage
}

const upsertMeasurements = `
INSERT INTO client_measurements (client_id, neck, chest, waist, hips, shoulder, sleeve_len, inseam, extra)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (client_id) DO UPDATE
SET neck = $2, chest = $3, waist = $4, hips = $5, shoulder = $6,
    sleeve_len = $7, inseam = $8, extra = $9, updated_at = now()`

func (q *Queries) UpsertMeasurements(ctx context.Context, arg UpsertMeasurementsParams) error {
	_, err := q.db.ExecContext(ctx, upsertMeasurements,
		arg.ClientID, arg.Neck, arg.Chest, arg.Waist, arg.Hips,
		arg.Shoulder, arg.SleeveLen, arg.Inseam, arg.Extra)
	return err
}

const getMeasurements = `
SELECT client_id, neck, chest, waist, hips, shoulder, sleeve_len, inseam, extra, updated_at
FROM client_measurements WHERE client_id = $1`

func (q *Queries) GetMeasurements(ctx context.Context, clientID uuid.UUID) (ClientMeasurements, error) {
	var m ClientMeasurements
	err := q.db.QueryRowContext(ctx, getMeasurements, clientID).Scan(
		&m.ClientID, &m.Neck, &m.Chest, &m.Waist, &m.Hips,
		&m.Shoulder, &m.SleeveLen, &m.Inseam, &m.Extra, &m.UpdatedAt)
	return m, err
}
