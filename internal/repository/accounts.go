package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const accountColumns = `id, email, password_hash, name, workshop_name, phone,
	stripe_customer_id, subscription_status, subscription_tier,
	stripe_subscription_id, current_period_end, created_at, updated_at`

func scanAccount(row interface{ Scan(...interface{}) error }) (Account, error) {
	var a Account
	err := row.Scan(
		&a.ID, &a.Email, &a.PasswordHash, &a.Name, &a.WorkshopName, &a.Phone,
		&a.StripeCustomerID, &a.SubscriptionStatus, &a.SubscriptionTier,
		&a.StripeSubscriptionID, &a.CurrentPeriodEnd, &a.CreatedAt, &a.UpdatedAt,
	)
	return a, err
}

// CreateAccountParams are the inputs for CreateAccount.
type CreateAccountParams struct {
	Email        string
	PasswordHash string
	Name         string
	WorkshopName sql.NullString
	Phone        sql.NullString
}

const createAccount = `
INSERT INTO accounts (email, password_hash, name, workshop_name, phone, subscription_status, subscription_tier)
VALUES ($1, $2, $3, $4, $5, 'trialing', 'free')
RETURNING ` + accountColumns

// CreateAccount inserts a new account. New accounts start trialing on the
// free tier; the trial window is measured from created_at.
func (q *Queries) CreateAccount(ctx context.Context, arg CreateAccountParams) (Account, error) {
	row := q.db.QueryRowContext(ctx, createAccount,
		arg.Email, arg.PasswordHash, arg.Name, arg.WorkshopName, arg.Phone)
	return scanAccount(row)
}

const getAccountByID = `
SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

func (q *Queries) GetAccountByID(ctx context.Context, id uuid.UUID) (Account, error) {
	return scanAccount(q.db.QueryRowContext(ctx, getAccountByID, id))
}

const getAccountByEmail = `
SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`

func (q *Queries) GetAccountByEmail(ctx context.Context, email string) (Account, error) {
	return scanAccount(q.db.QueryRowContext(ctx, getAccountByEmail, email))
}

const getAccountByStripeCustomerID = `
SELECT ` + accountColumns + ` FROM accounts WHERE stripe_customer_id = $1`

func (q *Queries) GetAccountByStripeCustomerID(ctx context.Context, customerID sql.NullString) (Account, error) {
	return scanAccount(q.db.QueryRowContext(ctx, getAccountByStripeCustomerID, customerID))
}

const getAccountBySubscriptionRef = `
SELECT ` + accountColumns + ` FROM accounts WHERE stripe_subscription_id = $1`

// GetAccountBySubscriptionRef looks an account up by its stored billing
// ref (Stripe subscription id or synthetic alternate-provider ref).
func (q *Queries) GetAccountBySubscriptionRef(ctx context.Context, ref sql.NullString) (Account, error) {
	return scanAccount(q.db.QueryRowContext(ctx, getAccountBySubscriptionRef, ref))
}

const getAccountBySessionTokenHash = `
SELECT ` + accountColumns + `
FROM accounts
JOIN sessions ON sessions.account_id = accounts.id
WHERE sessions.token_hash = $1 AND sessions.expires_at > now()`

// GetAccountBySessionTokenHash resolves a session token hash to its
// account, rejecting expired sessions at the database level.
func (q *Queries) GetAccountBySessionTokenHash(ctx context.Context, tokenHash string) (Account, error) {
	return scanAccount(q.db.QueryRowContext(ctx, getAccountBySessionTokenHash, tokenHash))
}

// UpdateAccountSubscriptionParams are the inputs for UpdateAccountSubscription.
type UpdateAccountSubscriptionParams struct {
	ID                   uuid.UUID
	SubscriptionStatus   string
	SubscriptionTier     string
	StripeCustomerID     sql.NullString
	StripeSubscriptionID sql.NullString
	CurrentPeriodEnd     sql.NullTime
}

const updateAccountSubscription = `
UPDATE accounts
SET subscription_status = $2,
    subscription_tier = $3,
    stripe_customer_id = COALESCE($4, stripe_customer_id),
    stripe_subscription_id = $5,
    current_period_end = $6,
    updated_at = now()
WHERE id = $1`

// UpdateAccountSubscription writes the full billing snapshot in one
// single-row update. The customer ref is only overwritten when the new
// value is non-null, so ref-clearing transitions keep the customer
// linkage for future checkouts.
func (q *Queries) UpdateAccountSubscription(ctx context.Context, arg UpdateAccountSubscriptionParams) error {
	result, err := q.db.ExecContext(ctx, updateAccountSubscription,
		arg.ID, arg.SubscriptionStatus, arg.SubscriptionTier,
		arg.StripeCustomerID, arg.StripeSubscriptionID, arg.CurrentPeriodEnd)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

const updateAccountStripeCustomer = `
UPDATE accounts SET stripe_customer_id = $2, updated_at = now() WHERE id = $1`

func (q *Queries) UpdateAccountStripeCustomer(ctx context.Context, id uuid.UUID, customerID sql.NullString) error {
	_, err := q.db.ExecContext(ctx, updateAccountStripeCustomer, id, customerID)
	return err
}

// UpdateAccountProfileParams are the inputs for UpdateAccountProfile.
type UpdateAccountProfileParams struct {
	ID           uuid.UUID
	Name         string
	WorkshopName sql.NullString
	Phone        sql.NullString
}

const updateAccountProfile = `
UPDATE accounts SET name = $2, workshop_name = $3, phone = $4, updated_at = now() WHERE id = $1`

func (q *Queries) UpdateAccountProfile(ctx context.Context, arg UpdateAccountProfileParams) error {
	result, err := q.db.ExecContext(ctx, updateAccountProfile,
		arg.ID, arg.Name, arg.WorkshopName, arg.Phone)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

const updateAccountPassword = `
UPDATE accounts SET password_hash = $2, updated_at = now() WHERE id = $1`

func (q *Queries) UpdateAccountPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	_, err := q.db.ExecContext(ctx, updateAccountPassword, id, passwordHash)
	return err
}

const listExpiredTrialAccounts = `
SELECT ` + accountColumns + `
FROM accounts
WHERE subscription_status = 'trialing'
  AND stripe_subscription_id IS NULL
  AND created_at < $1
LIMIT $2`

// ListExpiredTrialAccounts returns trialing accounts created before the
// cutoff that never attached a billing ref. Used by the trial sweep job.
func (q *Queries) ListExpiredTrialAccounts(ctx context.Context, cutoff time.Time, limit int32) ([]Account, error) {
	rows, err := q.db.QueryContext(ctx, listExpiredTrialAccounts, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

const expireTrialAccount = `
UPDATE accounts
SET subscription_status = 'canceled', updated_at = now()
WHERE id = $1 AND subscription_status = 'trialing' AND stripe_subscription_id IS NULL`

// ExpireTrialAccount flips an overdue trial to canceled. The conditional
// WHERE keeps the sweep from clobbering an account that paid between the
// list query and this update.
func (q *Queries) ExpireTrialAccount(ctx context.Context, id uuid.UUID) (bool, error) {
	result, err := q.db.ExecContext(ctx, expireTrialAccount, id)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}
