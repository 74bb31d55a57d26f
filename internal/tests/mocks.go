package tests

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"glamtrack/internal/domain"
	"glamtrack/internal/position"
	internalRedis "glamtrack/internal/redis"
	"glamtrack/internal/repository"
	"glamtrack/internal/session"
)

// ──────────────────────────────────────────────
// MOCK REALTIME CHANNEL
// ──────────────────────────────────────────────

// SentEvent records one outbound event for assertions.
type SentEvent struct {
	Event   string
	Payload interface{}
}

// MockChannel is a mock implementation of session.Channel.
type MockChannel struct {
	mu     sync.RWMutex
	status domain.ConnectionStatus
	subs   map[string]chan json.RawMessage
	rooms  map[string]struct{}
	sent   []SentEvent
	err    error

	statusC chan domain.ConnectionStatus

	// Counters for verification
	ConnectCallCount    int32
	DisconnectCallCount int32

	// Error injection
	ConnectError error
}

// NewMockChannel creates a new mock channel.
func NewMockChannel() *MockChannel {
	return &MockChannel{
		status:  domain.ConnectionDisconnected,
		subs:    make(map[string]chan json.RawMessage),
		rooms:   make(map[string]struct{}),
		statusC: make(chan domain.ConnectionStatus, 8),
	}
}

func (m *MockChannel) Connect(ctx context.Context) error {
	atomic.AddInt32(&m.ConnectCallCount, 1)
	if m.ConnectError != nil {
		return m.ConnectError
	}
	m.mu.Lock()
	m.status = domain.ConnectionConnected
	m.mu.Unlock()
	return nil
}

func (m *MockChannel) JoinRoom(roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[roomID] = struct{}{}
}

func (m *MockChannel) LeaveRoom(roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, roomID)
}

func (m *MockChannel) Send(event string, payload interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, SentEvent{Event: event, Payload: payload})
}

func (m *MockChannel) Subscribe(event string) <-chan json.RawMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := m.subs[event]; ok {
		return ch
	}
	ch := make(chan json.RawMessage, 16)
	m.subs[event] = ch
	return ch
}

func (m *MockChannel) Status() domain.ConnectionStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *MockChannel) StatusChanges() <-chan domain.ConnectionStatus {
	return m.statusC
}

func (m *MockChannel) Err() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.err
}

func (m *MockChannel) Disconnect() {
	atomic.AddInt32(&m.DisconnectCallCount, 1)
	m.mu.Lock()
	m.status = domain.ConnectionDisconnected
	m.mu.Unlock()
}

// PushEvent injects an inbound event as if the relay had sent it.
// Pushing before the session subscribes is fine: the event is buffered
// on the subscription channel.
func (m *MockChannel) PushEvent(t interface{ Fatalf(string, ...interface{}) }, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal %s payload: %v", event, err)
	}

	m.mu.Lock()
	ch, ok := m.subs[event]
	if !ok {
		ch = make(chan json.RawMessage, 16)
		m.subs[event] = ch
	}
	m.mu.Unlock()

	ch <- data
}

// PushStatus injects a connection status change.
func (m *MockChannel) PushStatus(status domain.ConnectionStatus) {
	m.mu.Lock()
	m.status = status
	m.mu.Unlock()
	m.statusC <- status
}

// SetErr sets the terminal channel error returned by Err.
func (m *MockChannel) SetErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Sent returns a copy of the outbound events for assertions.
func (m *MockChannel) Sent() []SentEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]SentEvent, len(m.sent))
	copy(out, m.sent)
	return out
}

// InRoom reports whether the channel currently holds room membership.
func (m *MockChannel) InRoom(roomID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.rooms[roomID]
	return ok
}

// ──────────────────────────────────────────────
// MOCK POSITION SOURCE
// ──────────────────────────────────────────────

// MockPositionSource is a mock implementation of session.PositionSource.
type MockPositionSource struct {
	samples chan position.Sample

	closeOnce sync.Once

	// Counters for verification
	CloseCallCount int32
}

// NewMockPositionSource creates a new mock position source.
func NewMockPositionSource() *MockPositionSource {
	return &MockPositionSource{
		samples: make(chan position.Sample, 16),
	}
}

func (m *MockPositionSource) Samples() <-chan position.Sample {
	return m.samples
}

func (m *MockPositionSource) Close() {
	atomic.AddInt32(&m.CloseCallCount, 1)
	m.closeOnce.Do(func() {
		close(m.samples)
	})
}

// Push injects a local position sample.
func (m *MockPositionSource) Push(point domain.GeoPoint) {
	m.samples <- position.Sample{Point: point}
}

// PushErr injects a terminal stream error.
func (m *MockPositionSource) PushErr(err error) {
	m.samples <- position.Sample{Err: err}
}

// OpenerReturning builds a PositionOpener that hands out the given source.
func OpenerReturning(source *MockPositionSource) session.PositionOpener {
	return func(ctx context.Context) (session.PositionSource, error) {
		return source, nil
	}
}

// OpenerFailing builds a PositionOpener that always fails.
func OpenerFailing(err error) session.PositionOpener {
	return func(ctx context.Context) (session.PositionSource, error) {
		return nil, err
	}
}

// ──────────────────────────────────────────────
// MOCK ORDER REPOSITORY
// ──────────────────────────────────────────────

// MockOrderRepository is a mock implementation of repository.OrderRepository.
type MockOrderRepository struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order

	// Counters for verification
	UpdateStatusCallCount   int32
	UpdatePositionCallCount int32

	// Error injection
	UpdateStatusError   error
	UpdatePositionError error
}

// NewMockOrderRepository creates a new mock order repository.
func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{
		orders: make(map[string]*domain.Order),
	}
}

// AddOrder adds an order to the mock repository.
func (m *MockOrderRepository) AddOrder(order *domain.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.OrderID] = order
}

func (m *MockOrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	order, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	// Return a copy to avoid mutation issues.
	copy := *order
	return &copy, nil
}

func (m *MockOrderRepository) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) error {
	atomic.AddInt32(&m.UpdateStatusCallCount, 1)
	if m.UpdateStatusError != nil {
		return m.UpdateStatusError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok {
		return repository.ErrNotFound
	}
	order.Status = status
	return nil
}

func (m *MockOrderRepository) UpdateLastKnownPosition(ctx context.Context, id string, subject domain.Subject, point domain.GeoPoint) error {
	atomic.AddInt32(&m.UpdatePositionCallCount, 1)
	if m.UpdatePositionError != nil {
		return m.UpdatePositionError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok {
		return repository.ErrNotFound
	}
	p := point
	if subject == domain.SubjectCustomer {
		order.CustomerPoint = &p
	} else {
		order.ProfessionalPoint = &p
	}
	return nil
}

// GetOrder returns an order for test assertions.
func (m *MockOrderRepository) GetOrder(id string) *domain.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.orders[id]
}

// ──────────────────────────────────────────────
// MOCK POSITION STORE
// ──────────────────────────────────────────────

// MockPositionStore is a mock implementation of redis.PositionStoreInterface.
type MockPositionStore struct {
	mu        sync.RWMutex
	positions map[string]map[domain.Subject]domain.GeoPoint

	// Counters for verification
	UpdateCallCount int32
	RemoveCallCount int32

	// Error injection
	UpdateError error
	GetError    error
}

// NewMockPositionStore creates a new mock position store.
func NewMockPositionStore() *MockPositionStore {
	return &MockPositionStore{
		positions: make(map[string]map[domain.Subject]domain.GeoPoint),
	}
}

func (m *MockPositionStore) UpdatePosition(ctx context.Context, orderID string, subject domain.Subject, point domain.GeoPoint) error {
	atomic.AddInt32(&m.UpdateCallCount, 1)
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.positions[orderID] == nil {
		m.positions[orderID] = make(map[domain.Subject]domain.GeoPoint)
	}
	m.positions[orderID][subject] = point
	return nil
}

func (m *MockPositionStore) GetPositions(ctx context.Context, orderID string) (map[domain.Subject]domain.GeoPoint, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[domain.Subject]domain.GeoPoint)
	for subject, point := range m.positions[orderID] {
		out[subject] = point
	}
	return out, nil
}

func (m *MockPositionStore) RemoveOrder(ctx context.Context, orderID string) error {
	atomic.AddInt32(&m.RemoveCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.positions, orderID)
	return nil
}

// HasPosition reports whether a subject position is stored for an order.
func (m *MockPositionStore) HasPosition(orderID string, subject domain.Subject) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.positions[orderID][subject]
	return ok
}

// Interface conformance checks.
var (
	_ session.Channel                      = (*MockChannel)(nil)
	_ session.PositionSource               = (*MockPositionSource)(nil)
	_ repository.OrderRepository           = (*MockOrderRepository)(nil)
	_ internalRedis.PositionStoreInterface = (*MockPositionStore)(nil)
)
