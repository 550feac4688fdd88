package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"github.com/mesura-app/mesura/internal/domain"
	"github.com/mesura-app/mesura/internal/metrics"
	"github.com/mesura-app/mesura/internal/repository"
)

// ClientService defines operations on workshop clients.
//
// Every operation is scoped to the owning account; a client id from a
// different account behaves exactly like a missing client.
type ClientService interface {
	// Create adds a new client. The caller's tier quota is checked at
	// this write boundary; domain.EQUOTA is returned when the account
	// has reached its client limit.
	Create(ctx context.Context, params domain.CreateClientParams, tier domain.SubscriptionTier) (*domain.Client, error)

	// GetByID retrieves a client with its active-order count.
	GetByID(ctx context.Context, id, accountID uuid.UUID) (*domain.Client, error)

	// List returns a page of the account's clients ordered by name.
	List(ctx context.Context, params domain.ListClientsParams) (*domain.ListClientsResult, error)

	// Update modifies a client's contact details.
	Update(ctx context.Context, params domain.UpdateClientParams) (*domain.Client, error)

	// Delete removes a client. A client with non-terminal orders cannot
	// be deleted (domain.ECONFLICT); terminal orders are detached so
	// order history survives the delete.
	Delete(ctx context.Context, id, accountID uuid.UUID) error

	// SaveMeasurements records or replaces the client's measurements.
	SaveMeasurements(ctx context.Context, params domain.SaveMeasurementsParams) error

	// GetMeasurements retrieves the client's measurements. A client with
	// no recorded measurements returns an empty Measurements value.
	GetMeasurements(ctx context.Context, clientID, accountID uuid.UUID) (*domain.Measurements, error)
}

type clientService struct {
	queries *repository.Queries
	quotas  QuotaService
	logger  *slog.Logger
}

// NewClientService creates a new ClientService.
func NewClientService(queries *repository.Queries, quotas QuotaService, logger *slog.Logger) ClientService {
	return &clientService{
		queries: queries,
		quotas:  quotas,
		logger:  logger,
	}
}

func (s *clientService) Create(ctx context.Context, params domain.CreateClientParams, tier domain.SubscriptionTier) (*domain.Client, error) {
	const op = "ClientService.Create"

	params.Name = strings.TrimSpace(params.Name)
	params.Email = strings.ToLower(strings.TrimSpace(params.Email))
	params.Phone = strings.TrimSpace(params.Phone)

	if params.Name == "" {
		return nil, domain.Invalid(op, "Client name is required")
	}
	if params.Email != "" {
		if err := validateEmail(params.Email); err != nil {
			return nil, domain.Wrap(err, domain.EINVALID, op, "Invalid email address")
		}
	}

	// Quota gate. Checked against the live count so tier changes take
	// effect immediately.
	if err := s.quotas.CheckClientQuota(ctx, params.AccountID, tier); err != nil {
		return nil, err
	}

	repoClient, err := s.queries.CreateClient(ctx, repository.CreateClientParams{
		AccountID: params.AccountID,
		Name:      params.Name,
		Email:     domain.ToNullString(params.Email),
		Phone:     domain.ToNullString(params.Phone),
		Notes:     domain.ToNullString(params.Notes),
	})
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to create client")
	}

	metrics.ClientsCreated.Inc()
	s.logger.Info("client created", "client_id", repoClient.ID, "account_id", params.AccountID)

	return repoClientToDomain(repoClient), nil
}

func (s *clientService) GetByID(ctx context.Context, id, accountID uuid.UUID) (*domain.Client, error) {
	const op = "ClientService.GetByID"

	repoClient, err := s.queries.GetClient(ctx, id, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "client", id.String())
		}
		return nil, domain.Internal(err, op, "Failed to retrieve client")
	}

	client := repoClientToDomain(repoClient)

	activeCount, err := s.queries.CountActiveOrdersForClient(ctx, id)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to count client orders")
	}
	client.ActiveOrderCount = int(activeCount)

	return client, nil
}

func (s *clientService) List(ctx context.Context, params domain.ListClientsParams) (*domain.ListClientsResult, error) {
	const op = "ClientService.List"

	if params.Limit <= 0 || params.Limit > 100 {
		params.Limit = 25
	}
	if params.Offset < 0 {
		params.Offset = 0
	}

	repoClients, err := s.queries.ListClients(ctx, repository.ListClientsParams{
		AccountID: params.AccountID,
		Limit:     params.Limit,
		Offset:    params.Offset,
	})
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to list clients")
	}

	total, err := s.queries.CountClients(ctx, params.AccountID)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to count clients")
	}

	clients := make([]domain.Client, 0, len(repoClients))
	for _, rc := range repoClients {
		clients = append(clients, *repoClientToDomain(rc))
	}

	return &domain.ListClientsResult{
		Clients: clients,
		Total:   total,
		Limit:   params.Limit,
		Offset:  params.Offset,
	}, nil
}

func (s *clientService) Update(ctx context.Context, params domain.UpdateClientParams) (*domain.Client, error) {
	const op = "ClientService.Update"

	params.Name = strings.TrimSpace(params.Name)
	params.Email = strings.ToLower(strings.TrimSpace(params.Email))
	params.Phone = strings.TrimSpace(params.Phone)

	if params.Name == "" {
		return nil, domain.Invalid(op, "Client name is required")
	}
	if params.Email != "" {
		if err := validateEmail(params.Email); err != nil {
			return nil, domain.Wrap(err, domain.EINVALID, op, "Invalid email address")
		}
	}

	err := s.queries.UpdateClient(ctx, repository.UpdateClientParams{
		ID:        params.ID,
		AccountID: params.AccountID,
		Name:      params.Name,
		Email:     domain.ToNullString(params.Email),
		Phone:     domain.ToNullString(params.Phone),
		Notes:     domain.ToNullString(params.Notes),
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "client", params.ID.String())
		}
		return nil, domain.Internal(err, op, "Failed to update client")
	}

	return s.GetByID(ctx, params.ID, params.AccountID)
}

// Delete removes a client after detaching its terminal orders.
//
// Non-terminal orders block the delete entirely: an order still being
// worked on keeps its client reference until it is done or cancelled.
func (s *clientService) Delete(ctx context.Context, id, accountID uuid.UUID) error {
	const op = "ClientService.Delete"

	// Ownership check before any mutation
	if _, err := s.queries.GetClient(ctx, id, accountID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFound(op, "client", id.String())
		}
		return domain.Internal(err, op, "Failed to retrieve client")
	}

	activeCount, err := s.queries.CountActiveOrdersForClient(ctx, id)
	if err != nil {
		return domain.Internal(err, op, "Failed to count client orders")
	}
	if activeCount > 0 {
		return domain.Conflict(op, "Client has active orders and cannot be deleted")
	}

	if err := s.queries.DetachOrdersForClient(ctx, id); err != nil {
		return domain.Internal(err, op, "Failed to detach client orders")
	}

	if err := s.queries.DeleteClient(ctx, id, accountID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFound(op, "client", id.String())
		}
		return domain.Internal(err, op, "Failed to delete client")
	}

	s.logger.Info("client deleted", "client_id", id, "account_id", accountID)
	return nil
}

func (s *clientService) SaveMeasurements(ctx context.Context, params domain.SaveMeasurementsParams) error {
	const op = "ClientService.SaveMeasurements"

	// Ownership check
	if _, err := s.queries.GetClient(ctx, params.ClientID, params.AccountID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFound(op, "client", params.ClientID.String())
		}
		return domain.Internal(err, op, "Failed to retrieve client")
	}

	v := params.Values
	for name, value := range map[string]float64{
		"neck": v.Neck, "chest": v.Chest, "waist": v.Waist, "hips": v.Hips,
		"shoulder": v.Shoulder, "sleeve length": v.SleeveLen, "inseam": v.Inseam,
	} {
		if value < 0 || value > 400 {
			return domain.Invalid(op, "Measurement out of range: "+name)
		}
	}

	extra := pqtype.NullRawMessage{}
	if len(v.Extra) > 0 {
		raw, err := json.Marshal(v.Extra)
		if err != nil {
			return domain.Internal(err, op, "Failed to encode extra measurements")
		}
		extra = pqtype.NullRawMessage{RawMessage: raw, Valid: true}
	}

	err := s.queries.UpsertMeasurements(ctx, repository.UpsertMeasurementsParams{
		ClientID:  params.ClientID,
		Neck:      toNullFloat(v.Neck),
		Chest:     toNullFloat(v.Chest),
		Waist:     toNullFloat(v.Waist),
		Hips:      toNullFloat(v.Hips),
		Shoulder:  toNullFloat(v.Shoulder),
		SleeveLen: toNullFloat(v.SleeveLen),
		Inseam:    toNullFloat(v.Inseam),
		Extra:     extra,
	})
	if err != nil {
		return domain.Internal(err, op, "Failed to save measurements")
	}

	s.logger.Info("measurements saved", "client_id", params.ClientID)
	return nil
}

func (s *clientService) GetMeasurements(ctx context.Context, clientID, accountID uuid.UUID) (*domain.Measurements, error) {
	const op = "ClientService.GetMeasurements"

	// Ownership check
	if _, err := s.queries.GetClient(ctx, clientID, accountID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "client", clientID.String())
		}
		return nil, domain.Internal(err, op, "Failed to retrieve client")
	}

	m, err := s.queries.GetMeasurements(ctx, clientID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Nothing recorded yet
			return &domain.Measurements{ClientID: clientID}, nil
		}
		return nil, domain.Internal(err, op, "Failed to retrieve measurements")
	}

	result := &domain.Measurements{
		ClientID:  m.ClientID,
		Neck:      nullFloatValue(m.Neck),
		Chest:     nullFloatValue(m.Chest),
		Waist:     nullFloatValue(m.Waist),
		Hips:      nullFloatValue(m.Hips),
		Shoulder:  nullFloatValue(m.Shoulder),
		SleeveLen: nullFloatValue(m.SleeveLen),
		Inseam:    nullFloatValue(m.Inseam),
		UpdatedAt: m.UpdatedAt,
	}
	if m.Extra.Valid {
		if err := json.Unmarshal(m.Extra.RawMessage, &result.Extra); err != nil {
			s.logger.Warn("invalid extra measurements json", "client_id", clientID, "error", err)
		}
	}
	return result, nil
}

// repoClientToDomain converts a repository.Client to domain.Client.
func repoClientToDomain(c repository.Client) *domain.Client {
	return &domain.Client{
		ID:        c.ID,
		AccountID: c.AccountID,
		Name:      c.Name,
		Email:     domain.NullStringValue(c.Email),
		Phone:     domain.NullStringValue(c.Phone),
		Notes:     domain.NullStringValue(c.Notes),
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func toNullFloat(v float64) sql.NullFloat64 {
	if v == 0 {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func nullFloatValue(v sql.NullFloat64) float64 {
	if v.Valid {
		return v.Float64
	}
	return 0
}

var _ ClientService = (*clientService)(nil)
