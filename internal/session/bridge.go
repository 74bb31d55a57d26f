package session

import (
	"log"
	"strings"

	"glamtrack/internal/domain"
)

// StatusAction is what a server-pushed order status does to the session.
type StatusAction int

const (
	// ActionIgnore drops the status silently.
	ActionIgnore StatusAction = iota

	// ActionNotify passes the status through to the consumer as a
	// remote notification without a state transition.
	ActionNotify

	// ActionComplete ends tracking: the order reached a terminal
	// fulfilled status.
	ActionComplete

	// ActionFail ends tracking with a failure, e.g. a cancelled order.
	ActionFail
)

// StatusMap maps raw backend status strings to session actions. The
// mapping is explicit configuration so the backend contract can adjust
// it without code changes.
type StatusMap map[domain.OrderStatus]StatusAction

// DefaultStatusMap is the canonical mapping agreed with the backend.
func DefaultStatusMap() StatusMap {
	return StatusMap{
		domain.OrderStatusPending:        ActionNotify,
		domain.OrderStatusConfirmed:      ActionNotify,
		domain.OrderStatusAccepted:       ActionNotify,
		domain.OrderStatusInProgress:     ActionNotify,
		domain.OrderStatusOutForDelivery: ActionNotify,
		domain.OrderStatusCompleted:      ActionComplete,
		domain.OrderStatusDelivered:      ActionComplete,
		domain.OrderStatusCancelled:      ActionFail,
	}
}

// Bridge folds server-pushed order-status events into session actions.
type Bridge struct {
	table StatusMap
}

// NewBridge creates a bridge with the given mapping table; nil uses the
// default table.
func NewBridge(table StatusMap) *Bridge {
	if table == nil {
		table = DefaultStatusMap()
	}
	return &Bridge{table: table}
}

// ActionFor resolves the action for a raw status string. Unknown
// statuses are logged and ignored, never fatal.
func (b *Bridge) ActionFor(status string) StatusAction {
	normalized := domain.OrderStatus(strings.ToLower(strings.TrimSpace(status)))
	action, ok := b.table[normalized]
	if !ok {
		log.Printf("session: ignoring unknown order status %q", status)
		return ActionIgnore
	}
	return action
}
