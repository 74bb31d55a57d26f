package repository

import (
	"context"

	"glamtrack/internal/domain"
)

// OrderRepository defines the persistence operations for tracked orders.
type OrderRepository interface {
	// GetByID retrieves an order with its last known positions.
	GetByID(ctx context.Context, id string) (*domain.Order, error)

	// UpdateStatus records a server-pushed status change.
	UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) error

	// UpdateLastKnownPosition stores the latest position of one subject.
	UpdateLastKnownPosition(ctx context.Context, id string, subject domain.Subject, point domain.GeoPoint) error
}
