// Package wire defines the realtime protocol shared by the tracking
// engine and the relay: event names and their JSON payloads. Both ends
// treat this package as the protocol contract.
package wire

import "encoding/json"

// Event names carried in the envelope. The strings are part of the
// backend contract and must not change without coordination.
const (
	EventJoinOrder  = "join-order"
	EventLeaveOrder = "leave-order"

	// Outbound position updates. EventUpdateUserLocation is the compact
	// form; EventLocationUpdate carries heading and speed as well.
	EventUpdateUserLocation = "update-user-location"
	EventLocationUpdate     = "location:update"

	// Inbound events pushed by the relay.
	EventProfessionalLocationUpdated = "professional-location-updated"
	EventOrderStatusUpdated          = "order-status-updated"
	EventTrackingStarted             = "tracking-started"
	EventTrackingStopped             = "tracking-stopped"
	EventProfessionalAssigned        = "professional-assigned-notification"

	// EventArrived is emitted once when the professional first enters
	// the arrival radius.
	EventArrived = "arrived"
)

// Envelope frames every message on the wire.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// RoomPayload scopes join/leave events to one order room.
type RoomPayload struct {
	OrderID string `json:"orderId"`
}

// LocationPayload is the full outbound position update.
type LocationPayload struct {
	OrderID   string   `json:"orderId"`
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Heading   *float64 `json:"heading,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
}

// UserLocationPayload is the compact outbound position update.
type UserLocationPayload struct {
	OrderID   string  `json:"orderId"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ProfessionalLocationPayload is the remote party's position as fanned
// out by the relay.
type ProfessionalLocationPayload struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Heading   *float64 `json:"heading,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
	Timestamp int64    `json:"timestamp,omitempty"` // Unix milliseconds
}

// OrderStatusPayload carries a server-pushed order status change.
type OrderStatusPayload struct {
	OrderID string `json:"orderId,omitempty"`
	Status  string `json:"status"`
}

// ProfessionalAssignedPayload announces that a professional was assigned
// to the order.
type ProfessionalAssignedPayload struct {
	ProfessionalID   string `json:"professionalId,omitempty"`
	ProfessionalName string `json:"professionalName"`
	TrackingStarted  bool   `json:"trackingStarted"`
}

// ArrivedPayload marks the arrival of the professional at the customer.
type ArrivedPayload struct {
	OrderID string `json:"orderId"`
}

// NewEnvelope marshals payload and wraps it with the event name.
func NewEnvelope(event string, payload interface{}) (Envelope, error) {
	if payload == nil {
		return Envelope{Event: event}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: data}, nil
}
