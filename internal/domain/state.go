package domain

// SessionState represents the current state of a tracking session.
// Exactly one value is active at a time, owned exclusively by the session.
type SessionState string

const (
	SessionStateIdle              SessionState = "IDLE"
	SessionStatePermissionPending SessionState = "PERMISSION_PENDING"
	SessionStateInitializing      SessionState = "INITIALIZING"
	SessionStateActive            SessionState = "ACTIVE"
	SessionStateArrived           SessionState = "ARRIVED"
	SessionStateCompleted         SessionState = "COMPLETED"
	SessionStateFailed            SessionState = "FAILED"
)

// IsTerminal reports whether no further transitions are possible.
func (s SessionState) IsTerminal() bool {
	return s == SessionStateCompleted || s == SessionStateFailed
}

// ConnectionStatus represents the realtime channel's connection state.
// It is owned by the channel and only observed by the session.
type ConnectionStatus string

const (
	ConnectionDisconnected ConnectionStatus = "DISCONNECTED"
	ConnectionConnecting   ConnectionStatus = "CONNECTING"
	ConnectionConnected    ConnectionStatus = "CONNECTED"
)

// FailReason classifies why a session reached the FAILED state.
type FailReason string

const (
	FailPermissionDenied       FailReason = "PERMISSION_DENIED"
	FailConnectionTimeout      FailReason = "CONNECTION_TIMEOUT"
	FailConnectionLost         FailReason = "CONNECTION_LOST"
	FailGeolocationUnavailable FailReason = "GEOLOCATION_UNAVAILABLE"
	FailOrderCancelled         FailReason = "ORDER_CANCELLED"
)
