// Package domain contains core business types and interfaces.
//
// This file defines the Order domain type and its status lifecycle.
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusInProgress OrderStatus = "in_progress"
	OrderStatusFitting    OrderStatus = "fitting"
	OrderStatusDone       OrderStatus = "done"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// IsTerminal reports whether the status is in the terminal set.
// Orders in a terminal status do not count against the active-order quota.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDone || s == OrderStatusCancelled
}

// ActiveOrderStatuses lists every non-terminal status, in lifecycle order.
var ActiveOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusInProgress,
	OrderStatusFitting,
}

// validOrderTransitions maps each status to the statuses it may move to.
// Terminal statuses have no outgoing transitions: done and cancelled
// orders cannot be reopened.
var validOrderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusInProgress, OrderStatusCancelled},
	OrderStatusInProgress: {OrderStatusFitting, OrderStatusDone, OrderStatusCancelled},
	OrderStatusFitting:    {OrderStatusInProgress, OrderStatusDone, OrderStatusCancelled},
}

// Order represents a garment order placed with the workshop.
//
// Orders are owned by exactly one Account and optionally reference a
// Client. PriceCents is stored in the workshop's currency minor unit.
type Order struct {
	ID          uuid.UUID
	AccountID   uuid.UUID
	ClientID    *uuid.UUID // Optional client reference
	Garment     string     // What is being made
	Notes       string
	Status      OrderStatus
	PriceCents  int64
	DueDate     *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time

	// Computed (joined) fields
	ClientName string
}

// IsActive reports whether the order counts against the active-order quota.
func (o *Order) IsActive() bool {
	return !o.Status.IsTerminal()
}

// TransitionTo moves the order to the given status, validating the move
// against the lifecycle table. The status is unchanged on error.
func (o *Order) TransitionTo(next OrderStatus) error {
	if o.Status == next {
		return nil
	}
	for _, allowed := range validOrderTransitions[o.Status] {
		if allowed == next {
			o.Status = next
			return nil
		}
	}
	return fmt.Errorf("cannot transition order from %s to %s", o.Status, next)
}

// =============================================================================
// Order Service Parameters
// =============================================================================

// CreateOrderParams contains validated parameters for creating an order.
type CreateOrderParams struct {
	AccountID  uuid.UUID
	ClientID   *uuid.UUID // Optional
	Garment    string     // Required
	Notes      string     // Optional
	PriceCents int64      // Optional
	DueDate    *time.Time // Optional
}

// UpdateOrderParams contains validated parameters for updating an order.
type UpdateOrderParams struct {
	ID         uuid.UUID
	AccountID  uuid.UUID
	ClientID   *uuid.UUID
	Garment    string
	Notes      string
	PriceCents int64
	DueDate    *time.Time
}

// ListOrdersParams contains parameters for listing orders.
type ListOrdersParams struct {
	AccountID  uuid.UUID
	Status     OrderStatus // Empty means all statuses
	ActiveOnly bool        // Restrict to non-terminal statuses
	Limit      int32
	Offset     int32
}

// ListOrdersResult contains the result of a paginated order list query.
type ListOrdersResult struct {
	Orders []Order
	Total  int64
	Limit  int32
	Offset int32
}

// HasMore returns true if there are more results available.
func (r *ListOrdersResult) HasMore() bool {
	return int64(r.Offset+r.Limit) < r.Total
}

// HasPrevious returns true if there are previous results available.
func (r *ListOrdersResult) HasPrevious() bool {
	return r.Offset > 0
}

// CurrentPage returns the current page number (1-indexed).
func (r *ListOrdersResult) CurrentPage() int {
	if r.Limit <= 0 {
		return 1
	}
	return int(r.Offset/r.Limit) + 1
}

// TotalPages returns the total number of pages.
func (r *ListOrdersResult) TotalPages() int {
	if r.Limit <= 0 || r.Total == 0 {
		return 1
	}
	return int((r.Total + int64(r.Limit) - 1) / int64(r.Limit))
}
