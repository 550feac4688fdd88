// Package domain contains core business types and interfaces.
//
// This file defines the Client domain type and the body measurements
// recorded per client.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Client Domain Type
// =============================================================================

// Client represents a customer of the workshop.
//
// Clients are owned by exactly one Account. Orders may reference a client;
// a client with non-terminal orders cannot be deleted (terminal orders are
// detached on delete instead of being removed).
type Client struct {
	ID        uuid.UUID
	AccountID uuid.UUID // Owner of the client record
	Name      string
	Email     string
	Phone     string
	Notes     string
	CreatedAt time.Time
	UpdatedAt time.Time

	// Computed fields (not stored in the clients table)
	ActiveOrderCount int // Orders referencing this client in a non-terminal status
}

// Measurements holds the body measurements recorded for a client.
// All values are centimeters; zero means not recorded. Extra carries
// free-form garment-specific measurements.
type Measurements struct {
	ClientID  uuid.UUID
	Neck      float64
	Chest     float64
	Waist     float64
	Hips      float64
	Shoulder  float64
	SleeveLen float64
	Inseam    float64
	Extra     map[string]float64
	UpdatedAt time.Time
}

// =============================================================================
// Client Service Parameters
// =============================================================================

// CreateClientParams contains validated parameters for creating a client.
type CreateClientParams struct {
	AccountID uuid.UUID // Owner of the client (from auth context)
	Name      string    // Required
	Email     string    // Optional
	Phone     string    // Optional
	Notes     string    // Optional
}

// UpdateClientParams contains validated parameters for updating a client.
type UpdateClientParams struct {
	ID        uuid.UUID // Client to update
	AccountID uuid.UUID // Owner (for authorization)
	Name      string    // Required
	Email     string    // Optional
	Phone     string    // Optional
	Notes     string    // Optional
}

// SaveMeasurementsParams contains parameters for recording measurements.
type SaveMeasurementsParams struct {
	ClientID  uuid.UUID
	AccountID uuid.UUID // Owner (for authorization)
	Values    Measurements
}

// ListClientsParams contains parameters for listing clients.
type ListClientsParams struct {
	AccountID uuid.UUID
	Limit     int32
	Offset    int32
}

// =============================================================================
// List Result with Pagination
// =============================================================================

// ListClientsResult contains the result of a paginated client list query.
type ListClientsResult struct {
	Clients []Client
	Total   int64
	Limit   int32
	Offset  int32
}

// HasMore returns true if there are more results available.
func (r *ListClientsResult) HasMore() bool {
	return int64(r.Offset+r.Limit) < r.Total
}

// HasPrevious returns true if there are previous results available.
func (r *ListClientsResult) HasPrevious() bool {
	return r.Offset > 0
}

// CurrentPage returns the current page number (1-indexed).
func (r *ListClientsResult) CurrentPage() int {
	if r.Limit == 0 {
		return 1
	}
	return int(r.Offset/r.Limit) + 1
}

// TotalPages returns the total number of pages.
func (r *ListClientsResult) TotalPages() int {
	if r.Limit == 0 {
		return 1
	}
	pages := r.Total / int64(r.Limit)
	if r.Total%int64(r.Limit) > 0 {
		pages++
	}
	return int(pages)
}
