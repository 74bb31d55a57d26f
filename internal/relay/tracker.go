package relay

import (
	"context"
	"errors"
	"log"
	"time"

	"glamtrack/internal/domain"
	"glamtrack/internal/redis"
	"glamtrack/internal/repository"
	"glamtrack/internal/wire"
)

// statusLockTTL bounds how long a crashed writer can hold an order's
// status lock.
const statusLockTTL = 5 * time.Second

// Tracker is the relay-side tracking service: it persists last-known
// positions, fans them out to order rooms and applies order-status
// changes coming from the backend.
type Tracker struct {
	hub       *Hub
	positions redis.PositionStoreInterface
	locks     redis.LockStoreInterface
	orders    repository.OrderRepository
}

// NewTracker creates a new Tracker. locks may be nil when status writes
// have a single ingest path.
func NewTracker(hub *Hub, positions redis.PositionStoreInterface, locks redis.LockStoreInterface, orders repository.OrderRepository) *Tracker {
	return &Tracker{
		hub:       hub,
		positions: positions,
		locks:     locks,
		orders:    orders,
	}
}

// HandleLocationUpdate processes one position update from a client:
// persist the latest point, then fan professional positions out to the
// rest of the room.
func (t *Tracker) HandleLocationUpdate(ctx context.Context, client *Client, payload wire.LocationPayload) {
	if payload.OrderID == "" {
		return
	}
	if !domain.IsValidLatitude(payload.Latitude) || !domain.IsValidLongitude(payload.Longitude) {
		log.Printf("relay: rejecting out-of-range position for order=%s", payload.OrderID)
		return
	}

	point := domain.GeoPoint{
		Latitude:       payload.Latitude,
		Longitude:      payload.Longitude,
		HeadingDegrees: payload.Heading,
		SpeedMS:        payload.Speed,
		Timestamp:      time.Now(),
	}

	// Redis holds the live copy; Postgres keeps the seed for future
	// sessions. Both writes are best-effort.
	if err := t.positions.UpdatePosition(ctx, payload.OrderID, client.Role, point); err != nil {
		log.Printf("relay: failed to store position order=%s: %v", payload.OrderID, err)
	}
	if err := t.orders.UpdateLastKnownPosition(ctx, payload.OrderID, client.Role, point); err != nil && !errors.Is(err, repository.ErrNotFound) {
		log.Printf("relay: failed to persist position order=%s: %v", payload.OrderID, err)
	}

	if client.Role == domain.SubjectProfessional {
		t.hub.BroadcastToRoom(payload.OrderID, client, wire.EventProfessionalLocationUpdated, wire.ProfessionalLocationPayload{
			Latitude:  point.Latitude,
			Longitude: point.Longitude,
			Heading:   point.HeadingDegrees,
			Speed:     point.SpeedMS,
			Timestamp: point.Timestamp.UnixMilli(),
		})
	}
}

// HandleOrderStatus applies a backend status change: persist it,
// broadcast it into the order room, and drop live positions once the
// order is terminal.
func (t *Tracker) HandleOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) error {
	// Status can arrive over AMQP and HTTP at once; the order lock keeps
	// the two writers from interleaving.
	if t.locks != nil {
		if acquired, err := t.lockOrder(ctx, orderID); err == nil && acquired {
			defer func() {
				if err := t.locks.ReleaseOrderLock(ctx, orderID); err != nil {
					log.Printf("relay: failed to release status lock order=%s: %v", orderID, err)
				}
			}()
		}
	}

	if err := t.orders.UpdateStatus(ctx, orderID, status); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	t.hub.BroadcastToRoom(orderID, nil, wire.EventOrderStatusUpdated, wire.OrderStatusPayload{
		OrderID: orderID,
		Status:  string(status),
	})

	switch status {
	case domain.OrderStatusCompleted, domain.OrderStatusDelivered, domain.OrderStatusCancelled:
		if err := t.positions.RemoveOrder(ctx, orderID); err != nil {
			log.Printf("relay: failed to drop positions for order=%s: %v", orderID, err)
		}
	}

	return nil
}

// HandleProfessionalAssigned announces an assignment to the order room.
func (t *Tracker) HandleProfessionalAssigned(ctx context.Context, orderID string, payload wire.ProfessionalAssignedPayload) {
	t.hub.BroadcastToRoom(orderID, nil, wire.EventProfessionalAssigned, payload)

	if payload.TrackingStarted {
		t.hub.BroadcastToRoom(orderID, nil, wire.EventTrackingStarted, nil)
	}
}

// lockOrder tries a few times to take the order's status lock. On
// sustained contention the write proceeds anyway; the lock narrows the
// race window, it does not promise exclusion forever.
func (t *Tracker) lockOrder(ctx context.Context, orderID string) (bool, error) {
	for attempt := 0; attempt < 3; attempt++ {
		acquired, err := t.locks.AcquireOrderLock(ctx, orderID, statusLockTTL)
		if err != nil {
			return false, err
		}
		if acquired {
			return true, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
	return false, nil
}

// Seed returns the order with live positions overlaid on the persisted
// last-known ones, for clients starting a session.
func (t *Tracker) Seed(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := t.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	live, err := t.positions.GetPositions(ctx, orderID)
	if err != nil {
		// Redis being down only degrades freshness.
		log.Printf("relay: live positions unavailable for order=%s: %v", orderID, err)
		return order, nil
	}

	if point, ok := live[domain.SubjectCustomer]; ok {
		p := point
		order.CustomerPoint = &p
	}
	if point, ok := live[domain.SubjectProfessional]; ok {
		p := point
		order.ProfessionalPoint = &p
	}

	return order, nil
}
