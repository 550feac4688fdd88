package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

const orderColumns = `id, account_id, client_id, garment, notes, status,
	price_cents, due_date, created_at, updated_at, completed_at`

func scanOrder(row interface{ Scan(...interface{}) error }) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.AccountID, &o.ClientID, &o.Garment, &o.Notes, &o.Status,
		&o.PriceCents, &o.DueDate, &o.CreatedAt, &o.UpdatedAt, &o.CompletedAt)
	return o, err
}

// CreateOrderParams are the inputs for CreateOrder.
type CreateOrderParams struct {
	AccountID  uuid.UUID
	ClientID   uuid.NullUUID
	Garment    string
	Notes      sql.NullString
	PriceCents int64
	DueDate    sql.NullTime
}

const createOrder = `
INSERT INTO orders (account_id, client_id, garment, notes, status, price_cents, due_date)
VALUES ($1, $2, $3, $4, 'pending', $5, $6)
RETURNING ` + orderColumns

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRowContext(ctx, createOrder,
		arg.AccountID, arg.ClientID, arg.Garment, arg.Notes, arg.PriceCents, arg.DueDate)
	return scanOrder(row)
}

const getOrder = `
SELECT ` + orderColumns + ` FROM orders WHERE id = $1 AND account_id = $2`

func (q *Queries) GetOrder(ctx context.Context, id, accountID uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRowContext(ctx, getOrder, id, accountID))
}

// ListOrdersParams are the inputs for ListOrders.
type ListOrdersParams struct {
	AccountID  uuid.UUID
	Status     sql.NullString // Filter to one status when valid
	ActiveOnly bool           // Restrict to non-terminal statuses
	Limit      int32
	Offset     int32
}

const listOrders = `
SELECT ` + orderColumns + `
FROM orders
WHERE account_id = $1
  AND ($2::text IS NULL OR status = $2)
  AND (NOT $3::bool OR status NOT IN ('done', 'cancelled'))
ORDER BY due_date ASC NULLS LAST, created_at DESC
LIMIT $4 OFFSET $5`

func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]Order, error) {
	rows, err := q.db.QueryContext(ctx, listOrders,
		arg.AccountID, arg.Status, arg.ActiveOnly, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// CountOrdersParams are the inputs for CountOrders.
type CountOrdersParams struct {
	AccountID  uuid.UUID
	Status     sql.NullString
	ActiveOnly bool
}

const countOrders = `
SELECT count(*)
FROM orders
WHERE account_id = $1
  AND ($2::text IS NULL OR status = $2)
  AND (NOT $3::bool OR status NOT IN ('done', 'cancelled'))`

func (q *Queries) CountOrders(ctx context.Context, arg CountOrdersParams) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, countOrders, arg.AccountID, arg.Status, arg.ActiveOnly).Scan(&count)
	return count, err
}

const countActiveOrders = `
SELECT count(*) FROM orders
WHERE account_id = $1 AND status NOT IN ('done', 'cancelled')`

// CountActiveOrders returns the live non-terminal order count for quota
// checks. Always queried at call time; never cached.
func (q *Queries) CountActiveOrders(ctx context.Context, accountID uuid.UUID) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, countActiveOrders, accountID).Scan(&count)
	return count, err
}

// UpdateOrderParams are the inputs for UpdateOrder.
type UpdateOrderParams struct {
	ID         uuid.UUID
	AccountID  uuid.UUID
	ClientID   uuid.NullUUID
	Garment    string
	Notes      sql.NullString
	PriceCents int64
	DueDate    sql.NullTime
}

const updateOrder = `
UPDATE orders
SET client_id = $3, garment = $4, notes = $5, price_cents = $6, due_date = $7, updated_at = now()
WHERE id = $1 AND account_id = $2`

func (q *Queries) UpdateOrder(ctx context.Context, arg UpdateOrderParams) error {
	result, err := q.db.ExecContext(ctx, updateOrder,
		arg.ID, arg.AccountID, arg.ClientID, arg.Garment, arg.Notes, arg.PriceCents, arg.DueDate)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateOrderStatusParams are the inputs for UpdateOrderStatus.
type UpdateOrderStatusParams struct {
	ID          uuid.UUID
	AccountID   uuid.UUID
	Status      string
	CompletedAt sql.NullTime
}

const updateOrderStatus = `
UPDATE orders
SET status = $3, completed_at = $4, updated_at = now()
WHERE id = $1 AND account_id = $2`

func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) error {
	result, err := q.db.ExecContext(ctx, updateOrderStatus,
		arg.ID, arg.AccountID, arg.Status, arg.CompletedAt)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

const deleteOrder = `DELETE FROM orders WHERE id = $1 AND account_id = $2`

func (q *Queries) DeleteOrder(ctx context.Context, id, accountID uuid.UUID) error {
	result, err := q.db.ExecContext(ctx, deleteOrder, id, accountID)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

const getClientName = `SELECT name FROM clients WHERE id = $1`

// GetClientName resolves a client name for order display joins.
func (q *Queries) GetClientName(ctx context.Context, clientID uuid.UUID) (string, error) {
	var name string
	err := q.db.QueryRowContext(ctx, getClientName, clientID).Scan(&name)
	return name, err
}
