package domain

import "time"

// TrackingEventType represents the type of event emitted by a session.
type TrackingEventType string

const (
	EventStateChanged         TrackingEventType = "STATE_CHANGED"
	EventProximityUpdated     TrackingEventType = "PROXIMITY_UPDATED"
	EventProfessionalAssigned TrackingEventType = "PROFESSIONAL_ASSIGNED"
	EventRemoteNotification   TrackingEventType = "REMOTE_NOTIFICATION"
)

// TrackingEvent is one element of a session's output stream. Consumers
// (map UI, banners) observe these; the engine never renders or navigates.
type TrackingEvent struct {
	Type       TrackingEventType
	State      SessionState
	Snapshot   *ProximitySnapshot // Set on PROXIMITY_UPDATED
	Reason     FailReason         // Set when State is FAILED
	Detail     string             // Human-readable context for the consumer
	OccurredAt time.Time
}
