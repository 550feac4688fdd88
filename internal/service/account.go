// Package service contains the business logic layer.
//
// Services orchestrate interactions between repositories, external APIs,
// and domain logic. They are responsible for:
// - Input validation
// - Business rule enforcement
// - Transaction coordination
// - Error translation (database errors -> domain errors)
package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mesura-app/mesura/internal/domain"
	"github.com/mesura-app/mesura/internal/repository"
)

const (
	// BcryptCost is the cost factor for bcrypt password hashing.
	// Cost 12 provides good security (~250ms on modern hardware) while being
	// fast enough for login flows. NIST recommends cost 10+.
	//
	// SECURITY NOTE: This should NOT be configurable at runtime to prevent
	// accidental weakening. If you need to change it, do so here and redeploy.
	BcryptCost = 12

	// SessionTokenBytes is the number of random bytes for session tokens.
	// 32 bytes = 256 bits of entropy, hex-encoded to 64 characters.
	SessionTokenBytes = 32

	// SessionDuration is how long a session remains valid.
	SessionDuration = 7 * 24 * time.Hour

	// MinPasswordLength is the minimum password length.
	// NIST SP 800-63B recommends 8+ characters minimum.
	MinPasswordLength = 8

	// MaxPasswordLength prevents DoS via bcrypt on very long passwords.
	// bcrypt has a 72-byte limit anyway, but we cap earlier for clarity.
	MaxPasswordLength = 72
)

// AccountService defines the interface for account-related operations.
type AccountService interface {
	// Register creates a new workshop account. New accounts start in the
	// trial window on the free tier.
	// Returns domain.ECONFLICT if email already exists.
	// Returns domain.EINVALID for validation errors.
	Register(ctx context.Context, params domain.RegisterParams) (*domain.Account, error)

	// Login authenticates an account and creates a new session.
	// Returns the account and raw session token on success.
	// Returns domain.EUNAUTHORIZED for invalid credentials.
	Login(ctx context.Context, email, password string) (*domain.LoginResult, error)

	// Logout invalidates a session by its raw token.
	// This is idempotent - calling with an invalid token is not an error.
	Logout(ctx context.Context, token string) error

	// GetByID retrieves an account by its ID.
	// Returns domain.ENOTFOUND if the account does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)

	// GetBySessionToken retrieves an account by a raw session token.
	// Returns domain.EUNAUTHORIZED if the token is invalid or expired.
	GetBySessionToken(ctx context.Context, token string) (*domain.Account, error)

	// UpdateProfile updates an account's profile information.
	// Returns domain.ENOTFOUND if the account does not exist.
	UpdateProfile(ctx context.Context, params domain.ProfileUpdateParams) error

	// ChangePassword changes an account's password.
	// Validates the current password before allowing the change.
	// Invalidates all existing sessions after password change.
	// Returns domain.EUNAUTHORIZED if the current password is wrong.
	ChangePassword(ctx context.Context, params domain.PasswordChangeParams) error

	// DeleteExpiredSessions removes all expired sessions from the database.
	// This should be called periodically (e.g., daily) to clean up.
	DeleteExpiredSessions(ctx context.Context) error

	// UpdateStripeCustomer saves the Stripe customer ID for an account.
	UpdateStripeCustomer(ctx context.Context, accountID uuid.UUID, stripeCustomerID string) error
}

// accountService is the concrete implementation of AccountService.
type accountService struct {
	queries *repository.Queries
	logger  *slog.Logger
}

// NewAccountService creates a new AccountService instance.
func NewAccountService(queries *repository.Queries, logger *slog.Logger) AccountService {
	return &accountService{
		queries: queries,
		logger:  logger,
	}
}

// Register creates a new workshop account.
//
// Security considerations:
// - Password is hashed with bcrypt cost 12
// - Timing attacks are mitigated by always hashing even on duplicate email
// - The raw password is never logged or stored
func (s *accountService) Register(ctx context.Context, params domain.RegisterParams) (*domain.Account, error) {
	const op = "AccountService.Register"

	params.Email = strings.ToLower(strings.TrimSpace(params.Email))
	params.Name = strings.TrimSpace(params.Name)
	params.WorkshopName = strings.TrimSpace(params.WorkshopName)
	params.Phone = strings.TrimSpace(params.Phone)

	if err := validateEmail(params.Email); err != nil {
		return nil, domain.Wrap(err, domain.EINVALID, op, "Invalid email address")
	}
	if params.Name == "" {
		return nil, domain.Invalid(op, "Name is required")
	}
	if err := validatePassword(params.Password); err != nil {
		return nil, domain.Wrap(err, domain.EINVALID, op, "Invalid password")
	}

	// Check if email already exists
	_, err := s.queries.GetAccountByEmail(ctx, params.Email)
	if err == nil {
		// Account exists - hash the password anyway to keep timing uniform
		_, _ = bcrypt.GenerateFromPassword([]byte(params.Password), BcryptCost)
		return nil, domain.Conflict(op, "Email already registered")
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, domain.Internal(err, op, "Failed to check email availability")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(params.Password), BcryptCost)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to hash password")
	}

	repoAccount, err := s.queries.CreateAccount(ctx, repository.CreateAccountParams{
		Email:        params.Email,
		PasswordHash: string(passwordHash),
		Name:         params.Name,
		WorkshopName: domain.ToNullString(params.WorkshopName),
		Phone:        domain.ToNullString(params.Phone),
	})
	if err != nil {
		// Check for unique constraint violation (race condition)
		if strings.Contains(err.Error(), "unique") || strings.Contains(err.Error(), "duplicate") {
			return nil, domain.Conflict(op, "Email already registered")
		}
		return nil, domain.Internal(err, op, "Failed to create account")
	}

	account := RepoAccountToDomain(repoAccount)
	account.PasswordHash = ""

	s.logger.Info("account registered", "account_id", account.ID, "email", account.Email)

	return account, nil
}

// Login authenticates an account and creates a new session.
//
// Security considerations:
// - Constant-time password comparison via bcrypt
// - Generic error message prevents email enumeration
// - The session token is only returned once; only its hash is stored
func (s *accountService) Login(ctx context.Context, email, password string) (*domain.LoginResult, error) {
	const op = "AccountService.Login"

	email = strings.ToLower(strings.TrimSpace(email))

	repoAccount, err := s.queries.GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Compare against a dummy hash to keep timing uniform
			dummyHash := "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW" // bcrypt hash of "dummy"
			_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
			return nil, domain.Unauthorized(op, "Invalid email or password")
		}
		return nil, domain.Internal(err, op, "Failed to retrieve account")
	}

	err = bcrypt.CompareHashAndPassword([]byte(repoAccount.PasswordHash), []byte(password))
	if err != nil {
		// Same error message as account not found
		return nil, domain.Unauthorized(op, "Invalid email or password")
	}

	token, err := generateSessionToken()
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to generate session token")
	}
	tokenHash := hashSessionToken(token)
	expiresAt := time.Now().Add(SessionDuration)

	_, err = s.queries.CreateSession(ctx, repository.CreateSessionParams{
		AccountID: repoAccount.ID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to create session")
	}

	account := RepoAccountToDomain(repoAccount)
	account.PasswordHash = ""

	s.logger.Info("account logged in", "account_id", account.ID, "email", account.Email)

	return &domain.LoginResult{
		Account: account,
		Token:   token,
	}, nil
}

// Logout invalidates a session. The operation is idempotent: an invalid
// or already-deleted token simply does nothing.
func (s *accountService) Logout(ctx context.Context, token string) error {
	if token == "" || len(token) != 64 {
		return nil
	}

	tokenHash := hashSessionToken(token)
	if err := s.queries.DeleteSession(ctx, tokenHash); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("failed to delete session", "error", err)
		}
	}

	s.logger.Debug("session invalidated")
	return nil
}

// GetByID retrieves an account by its ID.
func (s *accountService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	const op = "AccountService.GetByID"

	repoAccount, err := s.queries.GetAccountByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "account", id.String())
		}
		return nil, domain.Internal(err, op, "Failed to retrieve account")
	}

	account := RepoAccountToDomain(repoAccount)
	account.PasswordHash = ""
	return account, nil
}

// GetBySessionToken retrieves an account by a raw session token.
//
// The token is hashed before the database lookup; the query itself
// filters out expired sessions.
func (s *accountService) GetBySessionToken(ctx context.Context, token string) (*domain.Account, error) {
	const op = "AccountService.GetBySessionToken"

	if token == "" || len(token) != 64 {
		return nil, domain.Unauthorized(op, "Invalid or expired session")
	}

	tokenHash := hashSessionToken(token)

	repoAccount, err := s.queries.GetAccountBySessionTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.Unauthorized(op, "Invalid or expired session")
		}
		return nil, domain.Internal(err, op, "Failed to retrieve session")
	}

	account := RepoAccountToDomain(repoAccount)
	account.PasswordHash = ""
	return account, nil
}

// UpdateProfile updates an account's profile information.
func (s *accountService) UpdateProfile(ctx context.Context, params domain.ProfileUpdateParams) error {
	const op = "AccountService.UpdateProfile"

	params.Name = strings.TrimSpace(params.Name)
	params.WorkshopName = strings.TrimSpace(params.WorkshopName)
	params.Phone = strings.TrimSpace(params.Phone)

	if params.Name == "" {
		return domain.Invalid(op, "Name is required")
	}

	err := s.queries.UpdateAccountProfile(ctx, repository.UpdateAccountProfileParams{
		ID:           params.AccountID,
		Name:         params.Name,
		WorkshopName: domain.ToNullString(params.WorkshopName),
		Phone:        domain.ToNullString(params.Phone),
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFound(op, "account", params.AccountID.String())
		}
		return domain.Internal(err, op, "Failed to update profile")
	}

	s.logger.Info("account profile updated", "account_id", params.AccountID)
	return nil
}

// ChangePassword changes an account's password.
//
// The current password must be verified first, and all sessions are
// invalidated afterwards to force re-authentication.
func (s *accountService) ChangePassword(ctx context.Context, params domain.PasswordChangeParams) error {
	const op = "AccountService.ChangePassword"

	if err := validatePassword(params.NewPassword); err != nil {
		return domain.Wrap(err, domain.EINVALID, op, "Invalid new password")
	}

	repoAccount, err := s.queries.GetAccountByID(ctx, params.AccountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFound(op, "account", params.AccountID.String())
		}
		return domain.Internal(err, op, "Failed to retrieve account")
	}

	err = bcrypt.CompareHashAndPassword([]byte(repoAccount.PasswordHash), []byte(params.CurrentPassword))
	if err != nil {
		return domain.Unauthorized(op, "Current password is incorrect")
	}

	newPasswordHash, err := bcrypt.GenerateFromPassword([]byte(params.NewPassword), BcryptCost)
	if err != nil {
		return domain.Internal(err, op, "Failed to hash new password")
	}

	if err := s.queries.UpdateAccountPassword(ctx, params.AccountID, string(newPasswordHash)); err != nil {
		return domain.Internal(err, op, "Failed to update password")
	}

	// Invalidate all sessions (force re-authentication)
	if err := s.queries.DeleteSessionsForAccount(ctx, params.AccountID); err != nil {
		// Log but don't fail - password was changed successfully
		s.logger.Warn("failed to delete sessions after password change", "account_id", params.AccountID, "error", err)
	}

	s.logger.Info("account password changed", "account_id", params.AccountID)
	return nil
}

// DeleteExpiredSessions removes all expired sessions.
func (s *accountService) DeleteExpiredSessions(ctx context.Context) error {
	const op = "AccountService.DeleteExpiredSessions"

	count, err := s.queries.DeleteExpiredSessions(ctx)
	if err != nil {
		return domain.Internal(err, op, "Failed to delete expired sessions")
	}

	s.logger.Info("expired sessions cleaned up", "count", count)
	return nil
}

// UpdateStripeCustomer saves the Stripe customer ID for an account.
func (s *accountService) UpdateStripeCustomer(ctx context.Context, accountID uuid.UUID, stripeCustomerID string) error {
	const op = "AccountService.UpdateStripeCustomer"

	err := s.queries.UpdateAccountStripeCustomer(ctx, accountID, domain.ToNullString(stripeCustomerID))
	if err != nil {
		return domain.Internal(err, op, "Failed to update Stripe customer ID")
	}

	s.logger.Info("stripe customer ID updated", "account_id", accountID, "stripe_customer_id", stripeCustomerID)
	return nil
}

// generateSessionToken creates a cryptographically secure session token,
// hex-encoded from SessionTokenBytes of crypto/rand output.
func generateSessionToken() (string, error) {
	bytes := make([]byte, SessionTokenBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// hashSessionToken creates a SHA-256 hash of a session token.
//
// Session tokens are high-entropy random values, so a fast hash is
// sufficient here; bcrypt would add nothing but latency per request.
func hashSessionToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// RepoAccountToDomain converts a repository.Account to domain.Account,
// unwrapping sql.Null* types along the way.
func RepoAccountToDomain(a repository.Account) *domain.Account {
	return &domain.Account{
		ID:                 a.ID,
		Email:              a.Email,
		PasswordHash:       a.PasswordHash,
		Name:               a.Name,
		WorkshopName:       domain.NullStringValue(a.WorkshopName),
		Phone:              domain.NullStringValue(a.Phone),
		StripeCustomerID:   domain.NullStringValue(a.StripeCustomerID),
		SubscriptionStatus: domain.SubscriptionStatus(a.SubscriptionStatus),
		SubscriptionTier:   domain.SubscriptionTier(a.SubscriptionTier),
		SubscriptionID:     domain.NullStringValue(a.StripeSubscriptionID),
		CurrentPeriodEnd:   domain.NullTimeValue(a.CurrentPeriodEnd),
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
}

// validateEmail validates an email address format.
//
// This is intentionally loose: the definitive check is the confirmation
// the address receives mail, which we do not do. We only reject values
// that cannot possibly be addresses.
func validateEmail(email string) error {
	if email == "" {
		return errors.New("email is required")
	}
	if len(email) > 254 {
		return errors.New("email is too long")
	}
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return errors.New("email format is invalid")
	}
	if !strings.Contains(email[at+1:], ".") {
		return errors.New("email domain is invalid")
	}
	return nil
}

// validatePassword checks password strength requirements.
func validatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return errors.New("password must be at least 8 characters")
	}
	if len(password) > MaxPasswordLength {
		return errors.New("password must be at most 72 characters")
	}
	return nil
}

// Ensure accountService implements AccountService
var _ AccountService = (*accountService)(nil)
