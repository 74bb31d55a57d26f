// Package session implements the tracking session state machine: it
// composes the position source, the realtime channel and the proximity
// math, reconciles local and server state, and emits a typed event
// stream for consumers.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"glamtrack/internal/domain"
	"glamtrack/internal/geo"
	"glamtrack/internal/position"
	"glamtrack/internal/wire"
)

// Channel is the realtime connection the session owns. Implemented by
// channel.Client; mocked in tests.
type Channel interface {
	Connect(ctx context.Context) error
	JoinRoom(roomID string)
	LeaveRoom(roomID string)
	Send(event string, payload interface{})
	Subscribe(event string) <-chan json.RawMessage
	Status() domain.ConnectionStatus
	StatusChanges() <-chan domain.ConnectionStatus
	Err() error
	Disconnect()
}

// PositionSource is the open position stream the session owns.
// Implemented by position.Source; mocked in tests.
type PositionSource interface {
	Samples() <-chan position.Sample
	Close()
}

// PositionOpener requests location permission and opens the stream.
// It must fail with position.ErrPermissionDenied before starting any
// platform stream when permission is not granted.
type PositionOpener func(ctx context.Context) (PositionSource, error)

const eventBuffer = 64

// Config carries the per-order session parameters.
type Config struct {
	Order   domain.OrderRef
	Subject domain.Subject // which party this session represents

	ArrivalRadiusKm float64 // 0 uses geo.DefaultArrivalRadiusKm
	DefaultSpeedKmh float64 // 0 uses geo.DefaultSpeedKmh

	// Optional REST-seeded positions known before the live stream
	// takes over.
	InitialCustomerPoint     *domain.GeoPoint
	InitialProfessionalPoint *domain.GeoPoint

	// StatusMap overrides the canonical order-status mapping; nil uses
	// DefaultStatusMap.
	StatusMap StatusMap
}

// Deps are the collaborators the session exclusively owns. Handles must
// not be shared across sessions.
type Deps struct {
	OpenPositions PositionOpener
	Channel       Channel
}

// Session drives tracking for one order. All state transitions are
// serialized; streams are consumed by a single internal loop.
type Session struct {
	cfg    Config
	deps   Deps
	bridge *Bridge

	mu           sync.Mutex
	state        domain.SessionState
	snapshot     *domain.ProximitySnapshot
	local        *domain.GeoPoint
	remote       *domain.GeoPoint
	professional string // assigned professional id, may arrive mid-session
	arrivedFired bool

	source   PositionSource
	events   chan domain.TrackingEvent
	loopStop context.CancelFunc
	loopDone chan struct{}
	teardown sync.Once
}

// New creates an idle session for one order.
func New(cfg Config, deps Deps) *Session {
	if cfg.ArrivalRadiusKm <= 0 {
		cfg.ArrivalRadiusKm = geo.DefaultArrivalRadiusKm
	}
	if cfg.DefaultSpeedKmh <= 0 {
		cfg.DefaultSpeedKmh = geo.DefaultSpeedKmh
	}
	return &Session{
		cfg:          cfg,
		deps:         deps,
		bridge:       NewBridge(cfg.StatusMap),
		state:        domain.SessionStateIdle,
		professional: cfg.Order.ProfessionalID,
		events:       make(chan domain.TrackingEvent, eventBuffer),
	}
}

// Start drives Idle → PermissionPending → Initializing and suspends
// until permission is resolved and the channel handshake completes.
// A non-idle session is rejected with ErrInvalidState.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != domain.SessionStateIdle {
		s.mu.Unlock()
		return ErrInvalidState
	}
	s.setStateLocked(domain.SessionStatePermissionPending, "", "")
	s.mu.Unlock()

	source, err := s.deps.OpenPositions(ctx)
	if err != nil {
		if errors.Is(err, position.ErrPermissionDenied) {
			s.fail(domain.FailPermissionDenied, err.Error())
		} else {
			s.fail(domain.FailGeolocationUnavailable, err.Error())
		}
		return err
	}

	s.mu.Lock()
	s.source = source
	s.setStateLocked(domain.SessionStateInitializing, "", "")
	if s.cfg.InitialCustomerPoint != nil {
		s.setSubjectPointLocked(domain.SubjectCustomer, *s.cfg.InitialCustomerPoint)
	}
	if s.cfg.InitialProfessionalPoint != nil {
		s.setSubjectPointLocked(domain.SubjectProfessional, *s.cfg.InitialProfessionalPoint)
	}
	s.mu.Unlock()

	if err := s.deps.Channel.Connect(ctx); err != nil {
		s.fail(domain.FailConnectionTimeout, err.Error())
		return err
	}

	s.deps.Channel.JoinRoom(s.cfg.Order.OrderID)

	loopCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.loopStop = cancel
	s.loopDone = make(chan struct{})
	s.mu.Unlock()

	go s.loop(loopCtx, source)

	// Seeded positions may already satisfy the Active precondition.
	s.mu.Lock()
	s.recomputeLocked()
	s.mu.Unlock()

	return nil
}

// Stop tears the session down gracefully. It is idempotent, never
// returns an error, and is effective immediately: no events are emitted
// after it returns even though resource teardown completes in the
// background.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.state.IsTerminal() {
		s.mu.Unlock()
		return
	}
	s.setStateLocked(domain.SessionStateCompleted, "", "stopped by consumer")
	s.mu.Unlock()

	s.release()
}

// MarkArrived is the manual arrival override. It is guarded by subject
// role: only the professional may trigger it.
func (s *Session) MarkArrived() error {
	if s.cfg.Subject != domain.SubjectProfessional {
		return ErrNotProfessional
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != domain.SessionStateActive {
		return ErrInvalidState
	}
	s.transitionToArrivedLocked()
	return nil
}

// CompleteService finishes tracking once the service is done.
func (s *Session) CompleteService() error {
	s.mu.Lock()
	if s.state != domain.SessionStateActive && s.state != domain.SessionStateArrived {
		s.mu.Unlock()
		return ErrInvalidState
	}
	s.setStateLocked(domain.SessionStateCompleted, "", "service completed")
	s.mu.Unlock()

	s.release()
	return nil
}

// Snapshot returns the last computed proximity snapshot. It keeps
// working after the session ends, using the last known values.
func (s *Session) Snapshot() (domain.ProximitySnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot == nil {
		return domain.ProximitySnapshot{}, false
	}
	return *s.snapshot, true
}

// State returns the current session state.
func (s *Session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Events returns the typed output stream: state changes, proximity
// updates and remote notifications.
func (s *Session) Events() <-chan domain.TrackingEvent {
	return s.events
}

// loop is the single consumer of all input streams. Stream callbacks
// never mutate state directly; everything funnels through the locked
// transition helpers.
func (s *Session) loop(ctx context.Context, source PositionSource) {
	defer close(s.loopDone)

	remoteLocations := s.deps.Channel.Subscribe(wire.EventProfessionalLocationUpdated)
	statusUpdates := s.deps.Channel.Subscribe(wire.EventOrderStatusUpdated)
	assigned := s.deps.Channel.Subscribe(wire.EventProfessionalAssigned)
	trackingStarted := s.deps.Channel.Subscribe(wire.EventTrackingStarted)
	trackingStopped := s.deps.Channel.Subscribe(wire.EventTrackingStopped)
	samples := source.Samples()

	for {
		select {
		case <-ctx.Done():
			return

		case smp, ok := <-samples:
			if !ok {
				// The stream closed without a terminal error. Stop
				// selecting on it; a closed channel is always ready.
				samples = nil
				continue
			}
			if smp.Err != nil {
				s.fail(domain.FailGeolocationUnavailable, smp.Err.Error())
				return
			}
			s.handleLocalSample(smp.Point)

		case raw := <-remoteLocations:
			s.handleRemoteLocation(raw)

		case raw := <-statusUpdates:
			s.handleOrderStatus(raw)

		case raw := <-assigned:
			s.handleProfessionalAssigned(raw)

		case <-trackingStarted:
			s.notify("tracking started")

		case <-trackingStopped:
			s.notify("tracking stopped")

		case status := <-s.deps.Channel.StatusChanges():
			if status == domain.ConnectionDisconnected && s.deps.Channel.Err() != nil {
				s.fail(domain.FailConnectionLost, s.deps.Channel.Err().Error())
				return
			}
		}
	}
}

// handleLocalSample folds one local position in: forward outbound,
// recompute proximity.
func (s *Session) handleLocalSample(point domain.GeoPoint) {
	s.mu.Lock()
	if s.state.IsTerminal() {
		s.mu.Unlock()
		return
	}
	s.setSubjectPointLocked(s.cfg.Subject, point)
	s.recomputeLocked()
	s.mu.Unlock()

	// Outbound update for self only; delivery is best-effort.
	s.deps.Channel.Send(wire.EventLocationUpdate, wire.LocationPayload{
		OrderID:   s.cfg.Order.OrderID,
		Latitude:  point.Latitude,
		Longitude: point.Longitude,
		Heading:   point.HeadingDegrees,
		Speed:     point.SpeedMS,
	})
}

// handleRemoteLocation folds in the other party's position pushed by
// the relay.
func (s *Session) handleRemoteLocation(raw json.RawMessage) {
	var payload wire.ProfessionalLocationPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Printf("session: dropping malformed remote location: %v", err)
		return
	}

	point := domain.GeoPoint{
		Latitude:       payload.Latitude,
		Longitude:      payload.Longitude,
		HeadingDegrees: payload.Heading,
		SpeedMS:        payload.Speed,
		Timestamp:      time.Now(),
	}
	if payload.Timestamp > 0 {
		point.Timestamp = time.UnixMilli(payload.Timestamp)
	}
	if point.Validate() != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.IsTerminal() {
		return
	}
	s.setSubjectPointLocked(s.cfg.Subject.Other(), point)
	s.recomputeLocked()
}

// handleOrderStatus applies the bridge mapping to a server-pushed
// status change.
func (s *Session) handleOrderStatus(raw json.RawMessage) {
	var payload wire.OrderStatusPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Printf("session: dropping malformed order status: %v", err)
		return
	}

	switch s.bridge.ActionFor(payload.Status) {
	case ActionComplete:
		s.mu.Lock()
		if s.state.IsTerminal() {
			s.mu.Unlock()
			return
		}
		s.setStateLocked(domain.SessionStateCompleted, "", "order "+payload.Status)
		s.mu.Unlock()
		s.release()

	case ActionFail:
		s.fail(domain.FailOrderCancelled, "order "+payload.Status)

	case ActionNotify:
		s.notify("order " + payload.Status)

	case ActionIgnore:
	}
}

// handleProfessionalAssigned records the assignment and surfaces it to
// the consumer.
func (s *Session) handleProfessionalAssigned(raw json.RawMessage) {
	var payload wire.ProfessionalAssignedPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Printf("session: dropping malformed assignment: %v", err)
		return
	}

	s.mu.Lock()
	if s.state.IsTerminal() {
		s.mu.Unlock()
		return
	}
	if payload.ProfessionalID != "" {
		s.professional = payload.ProfessionalID
	}
	state := s.state
	s.mu.Unlock()

	s.emit(domain.TrackingEvent{
		Type:       domain.EventProfessionalAssigned,
		State:      state,
		Detail:     payload.ProfessionalName,
		OccurredAt: time.Now(),
	})
}

// setSubjectPointLocked stores the newest point for one subject.
func (s *Session) setSubjectPointLocked(subject domain.Subject, point domain.GeoPoint) {
	p := point
	if subject == s.cfg.Subject {
		s.local = &p
	} else {
		s.remote = &p
	}
}

// customerAndProfessionalLocked resolves the stored pair into the
// customer/professional orientation used by the proximity math.
func (s *Session) customerAndProfessionalLocked() (customer, professional *domain.GeoPoint) {
	if s.cfg.Subject == domain.SubjectCustomer {
		return s.local, s.remote
	}
	return s.remote, s.local
}

// recomputeLocked recomputes the proximity snapshot from the latest
// known pair and drives the Initializing→Active and Active→Arrived
// transitions.
func (s *Session) recomputeLocked() {
	customer, professional := s.customerAndProfessionalLocked()
	if customer == nil || professional == nil {
		return
	}

	distance := geo.DistanceKm(*customer, *professional)

	speed := s.cfg.DefaultSpeedKmh
	if kmh, ok := professional.SpeedKmh(); ok && kmh > 0 {
		speed = kmh
	}

	eta, hasETA := geo.ETAMinutes(distance, speed)
	snapshot := domain.ProximitySnapshot{
		DistanceKm: distance,
		ETAMinutes: eta,
		HasETA:     hasETA,
		ComputedAt: time.Now(),
	}
	s.snapshot = &snapshot

	if s.state == domain.SessionStateInitializing {
		s.setStateLocked(domain.SessionStateActive, "", "both positions known")
	}

	s.emit(domain.TrackingEvent{
		Type:       domain.EventProximityUpdated,
		State:      s.state,
		Snapshot:   &snapshot,
		OccurredAt: snapshot.ComputedAt,
	})

	if s.state == domain.SessionStateActive && !s.arrivedFired &&
		geo.WithinRadius(distance, s.cfg.ArrivalRadiusKm) {
		s.transitionToArrivedLocked()
	}
}

// transitionToArrivedLocked fires the arrival transition exactly once.
func (s *Session) transitionToArrivedLocked() {
	if s.arrivedFired {
		return
	}
	s.arrivedFired = true
	s.setStateLocked(domain.SessionStateArrived, "", "within arrival radius")

	// Announce arrival to the room; best-effort like any other send.
	go s.deps.Channel.Send(wire.EventArrived, wire.ArrivedPayload{OrderID: s.cfg.Order.OrderID})
}

// setStateLocked performs a state transition and emits the change.
func (s *Session) setStateLocked(state domain.SessionState, reason domain.FailReason, detail string) {
	if s.state == state {
		return
	}
	s.state = state
	s.emit(domain.TrackingEvent{
		Type:       domain.EventStateChanged,
		State:      state,
		Reason:     reason,
		Detail:     detail,
		OccurredAt: time.Now(),
	})
}

// fail moves any non-terminal session to Failed and releases resources.
func (s *Session) fail(reason domain.FailReason, detail string) {
	s.mu.Lock()
	if s.state.IsTerminal() {
		s.mu.Unlock()
		return
	}
	s.setStateLocked(domain.SessionStateFailed, reason, detail)
	s.mu.Unlock()

	s.release()
}

// notify passes a server-side notification through to the consumer.
func (s *Session) notify(detail string) {
	s.mu.Lock()
	if s.state.IsTerminal() {
		s.mu.Unlock()
		return
	}
	state := s.state
	s.mu.Unlock()

	s.emit(domain.TrackingEvent{
		Type:       domain.EventRemoteNotification,
		State:      state,
		Detail:     detail,
		OccurredAt: time.Now(),
	})
}

// release tears down owned resources exactly once. Teardown runs in the
// background but is guaranteed to run; the event stream closes when the
// loop has fully stopped.
func (s *Session) release() {
	s.teardown.Do(func() {
		s.mu.Lock()
		source := s.source
		stop := s.loopStop
		done := s.loopDone
		s.mu.Unlock()

		go func() {
			if stop != nil {
				stop()
			}
			if done != nil {
				<-done
			}
			if source != nil {
				source.Close()
			}
			s.deps.Channel.Disconnect()
			close(s.events)
		}()
	})
}

// emit delivers an event without ever blocking a transition; when the
// consumer lags the oldest buffered event is dropped.
func (s *Session) emit(event domain.TrackingEvent) {
	for {
		select {
		case s.events <- event:
			return
		default:
		}
		select {
		case <-s.events:
		default:
		}
	}
}
