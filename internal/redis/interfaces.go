package redis

import (
	"context"
	"time"

	"glamtrack/internal/domain"
)

// PositionStoreInterface defines the last-known position operations.
type PositionStoreInterface interface {
	UpdatePosition(ctx context.Context, orderID string, subject domain.Subject, point domain.GeoPoint) error
	GetPositions(ctx context.Context, orderID string) (map[domain.Subject]domain.GeoPoint, error)
	RemoveOrder(ctx context.Context, orderID string) error
}

// LockStoreInterface defines the distributed locking operations.
type LockStoreInterface interface {
	AcquireOrderLock(ctx context.Context, orderID string, ttl time.Duration) (bool, error)
	ReleaseOrderLock(ctx context.Context, orderID string) error
}

// ResponseCacheInterface defines the idempotent response replay store.
type ResponseCacheInterface interface {
	GetResponse(ctx context.Context, key string) ([]byte, bool, error)
	SetResponse(ctx context.Context, key string, data []byte, ttl time.Duration) error
}

// Ensure concrete types implement interfaces.
var (
	_ PositionStoreInterface = (*PositionStore)(nil)
	_ LockStoreInterface     = (*LockStore)(nil)
	_ ResponseCacheInterface = (*ResponseCache)(nil)
)
