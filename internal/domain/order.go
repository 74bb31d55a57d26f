package domain

import "time"

// OrderStatus represents the current status of a service order as pushed
// by the commerce backend. The raw strings are part of the backend contract.
type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "pending"
	OrderStatusConfirmed      OrderStatus = "confirmed"
	OrderStatusAccepted       OrderStatus = "accepted"
	OrderStatusInProgress     OrderStatus = "in_progress"
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	OrderStatusCompleted      OrderStatus = "completed"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

// OrderRef identifies the order a tracking session belongs to.
// It is immutable for the session lifetime; ProfessionalID may be empty
// until a professional is assigned.
type OrderRef struct {
	OrderID        string
	CustomerID     string
	ProfessionalID string
}

// Order is the relay-side view of a service order: its status plus the
// last known position of each party, used to seed new tracking sessions.
type Order struct {
	OrderID           string
	CustomerID        string
	ProfessionalID    string
	Status            OrderStatus
	CustomerPoint     *GeoPoint
	ProfessionalPoint *GeoPoint
	UpdatedAt         time.Time
}
