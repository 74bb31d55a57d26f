package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"glamtrack/internal/domain"
	"glamtrack/internal/repository"
	"glamtrack/internal/wire"
)

// stubStore is an in-memory stand-in for the Redis position store.
type stubStore struct {
	mu        sync.Mutex
	positions map[string]map[domain.Subject]domain.GeoPoint

	updateCalls int32
	removeCalls int32
}

func newStubStore() *stubStore {
	return &stubStore{positions: make(map[string]map[domain.Subject]domain.GeoPoint)}
}

func (s *stubStore) UpdatePosition(ctx context.Context, orderID string, subject domain.Subject, point domain.GeoPoint) error {
	atomic.AddInt32(&s.updateCalls, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.positions[orderID] == nil {
		s.positions[orderID] = make(map[domain.Subject]domain.GeoPoint)
	}
	s.positions[orderID][subject] = point
	return nil
}

func (s *stubStore) GetPositions(ctx context.Context, orderID string) (map[domain.Subject]domain.GeoPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.Subject]domain.GeoPoint)
	for subject, point := range s.positions[orderID] {
		out[subject] = point
	}
	return out, nil
}

func (s *stubStore) RemoveOrder(ctx context.Context, orderID string) error {
	atomic.AddInt32(&s.removeCalls, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.positions, orderID)
	return nil
}

// stubRepo is an in-memory stand-in for the order repository.
type stubRepo struct {
	mu     sync.Mutex
	orders map[string]*domain.Order
}

func newStubRepo() *stubRepo {
	return &stubRepo{orders: make(map[string]*domain.Order)}
}

func (r *stubRepo) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *order
	return &copy, nil
}

func (r *stubRepo) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return repository.ErrNotFound
	}
	order.Status = status
	return nil
}

func (r *stubRepo) UpdateLastKnownPosition(ctx context.Context, id string, subject domain.Subject, point domain.GeoPoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
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

// newTestClient builds a client that is never attached to a socket;
// only its send buffer is exercised.
func newTestClient(userID string, role domain.Subject, hub *Hub, tracker *Tracker) *Client {
	return NewClient(userID, role, nil, hub, tracker)
}

// receiveEnvelope waits for one envelope on a client's send buffer.
func receiveEnvelope(t *testing.T, client *Client) wire.Envelope {
	t.Helper()
	select {
	case data := <-client.send:
		var env wire.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("malformed envelope: %v", err)
		}
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("no envelope delivered")
		return wire.Envelope{}
	}
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func TestHub_BroadcastExcludesSender(t *testing.T) {
	t.Parallel()

	hub := startHub(t)
	tracker := NewTracker(hub, newStubStore(), nil, newStubRepo())

	sender := newTestClient("user-1", domain.SubjectProfessional, hub, tracker)
	receiver := newTestClient("user-2", domain.SubjectCustomer, hub, tracker)
	hub.Join(sender, "order-7")
	hub.Join(receiver, "order-7")

	hub.BroadcastToRoom("order-7", sender, wire.EventArrived, wire.ArrivedPayload{OrderID: "order-7"})

	env := receiveEnvelope(t, receiver)
	if env.Event != wire.EventArrived {
		t.Errorf("expected %s, got %s", wire.EventArrived, env.Event)
	}

	select {
	case <-sender.send:
		t.Error("sender must not receive its own broadcast")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_LeaveStopsDelivery(t *testing.T) {
	t.Parallel()

	hub := startHub(t)
	tracker := NewTracker(hub, newStubStore(), nil, newStubRepo())

	client := newTestClient("user-1", domain.SubjectCustomer, hub, tracker)
	hub.Join(client, "order-7")
	hub.Leave(client, "order-7")

	if got := hub.RoomSize("order-7"); got != 0 {
		t.Fatalf("expected empty room, got %d members", got)
	}

	hub.BroadcastToRoom("order-7", nil, wire.EventTrackingStopped, nil)
	select {
	case <-client.send:
		t.Error("client received a broadcast after leaving the room")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_SlowClientsAreDroppedWithoutStallingTheLoop(t *testing.T) {
	t.Parallel()

	hub := startHub(t)
	tracker := NewTracker(hub, newStubStore(), nil, newStubRepo())

	// More stalled clients in one room than the unregister buffer
	// holds; dropping them must not wedge the hub loop.
	for i := 0; i < 17; i++ {
		slow := newTestClient(fmt.Sprintf("slow-%d", i), domain.SubjectCustomer, hub, tracker)
		for len(slow.send) < cap(slow.send) {
			slow.send <- []byte(`{}`)
		}
		hub.Join(slow, "order-slow")
	}
	healthy := newTestClient("user-ok", domain.SubjectCustomer, hub, tracker)
	hub.Join(healthy, "order-ok")

	hub.BroadcastToRoom("order-slow", nil, wire.EventTrackingStarted, nil)
	hub.BroadcastToRoom("order-ok", nil, wire.EventTrackingStarted, nil)

	// Broadcasts are processed in order: delivery to the healthy room
	// proves the stalled room was fully handled first.
	env := receiveEnvelope(t, healthy)
	if env.Event != wire.EventTrackingStarted {
		t.Fatalf("expected %s, got %s", wire.EventTrackingStarted, env.Event)
	}
	if got := hub.RoomSize("order-slow"); got != 0 {
		t.Errorf("expected every stalled client dropped, %d still joined", got)
	}
}

func TestTracker_ProfessionalLocationFansOutToRoom(t *testing.T) {
	t.Parallel()

	hub := startHub(t)
	store := newStubStore()
	repo := newStubRepo()
	repo.orders["order-7"] = &domain.Order{OrderID: "order-7", CustomerID: "user-2", Status: domain.OrderStatusAccepted}
	tracker := NewTracker(hub, store, nil, repo)

	professional := newTestClient("user-1", domain.SubjectProfessional, hub, tracker)
	customer := newTestClient("user-2", domain.SubjectCustomer, hub, tracker)
	hub.Join(professional, "order-7")
	hub.Join(customer, "order-7")

	tracker.HandleLocationUpdate(context.Background(), professional, wire.LocationPayload{
		OrderID:   "order-7",
		Latitude:  30.9100,
		Longitude: 75.8600,
	})

	env := receiveEnvelope(t, customer)
	if env.Event != wire.EventProfessionalLocationUpdated {
		t.Fatalf("expected %s, got %s", wire.EventProfessionalLocationUpdated, env.Event)
	}

	var payload wire.ProfessionalLocationPayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload.Latitude != 30.9100 || payload.Longitude != 75.8600 {
		t.Errorf("unexpected coordinates %.4f,%.4f", payload.Latitude, payload.Longitude)
	}

	if !store.has("order-7", domain.SubjectProfessional) {
		t.Error("expected the live position to be stored")
	}
	if repo.orders["order-7"].ProfessionalPoint == nil {
		t.Error("expected the last known position to be persisted")
	}
}

func TestTracker_CustomerLocationIsStoredButNotFannedOut(t *testing.T) {
	t.Parallel()

	hub := startHub(t)
	store := newStubStore()
	repo := newStubRepo()
	repo.orders["order-7"] = &domain.Order{OrderID: "order-7", CustomerID: "user-2"}
	tracker := NewTracker(hub, store, nil, repo)

	customer := newTestClient("user-2", domain.SubjectCustomer, hub, tracker)
	other := newTestClient("user-3", domain.SubjectProfessional, hub, tracker)
	hub.Join(customer, "order-7")
	hub.Join(other, "order-7")

	tracker.HandleLocationUpdate(context.Background(), customer, wire.LocationPayload{
		OrderID:   "order-7",
		Latitude:  30.9010,
		Longitude: 75.8573,
	})

	if !store.has("order-7", domain.SubjectCustomer) {
		t.Error("expected the customer position to be stored")
	}
	select {
	case <-other.send:
		t.Error("customer positions must not be fanned out")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTracker_RejectsOutOfRangeCoordinates(t *testing.T) {
	t.Parallel()

	hub := startHub(t)
	store := newStubStore()
	tracker := NewTracker(hub, store, nil, newStubRepo())
	client := newTestClient("user-1", domain.SubjectProfessional, hub, tracker)

	tracker.HandleLocationUpdate(context.Background(), client, wire.LocationPayload{
		OrderID:   "order-7",
		Latitude:  95,
		Longitude: 75.8573,
	})

	if got := atomic.LoadInt32(&store.updateCalls); got != 0 {
		t.Errorf("invalid coordinates must not be stored, got %d updates", got)
	}
}

func TestTracker_TerminalStatusClearsLivePositions(t *testing.T) {
	t.Parallel()

	hub := startHub(t)
	store := newStubStore()
	repo := newStubRepo()
	repo.orders["order-7"] = &domain.Order{OrderID: "order-7", Status: domain.OrderStatusInProgress}
	tracker := NewTracker(hub, store, nil, repo)

	member := newTestClient("user-2", domain.SubjectCustomer, hub, tracker)
	hub.Join(member, "order-7")

	if err := tracker.HandleOrderStatus(context.Background(), "order-7", domain.OrderStatusCompleted); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	env := receiveEnvelope(t, member)
	if env.Event != wire.EventOrderStatusUpdated {
		t.Fatalf("expected %s, got %s", wire.EventOrderStatusUpdated, env.Event)
	}
	if repo.orders["order-7"].Status != domain.OrderStatusCompleted {
		t.Errorf("expected persisted status, got %s", repo.orders["order-7"].Status)
	}
	if got := atomic.LoadInt32(&store.removeCalls); got != 1 {
		t.Errorf("expected live positions cleared once, got %d", got)
	}
}

func TestTracker_SeedOverlaysLivePositions(t *testing.T) {
	t.Parallel()

	hub := startHub(t)
	store := newStubStore()
	repo := newStubRepo()

	stale := domain.GeoPoint{Latitude: 30.0, Longitude: 75.0, Timestamp: time.Now().Add(-time.Hour)}
	repo.orders["order-7"] = &domain.Order{
		OrderID:           "order-7",
		Status:            domain.OrderStatusInProgress,
		ProfessionalPoint: &stale,
	}

	live := domain.GeoPoint{Latitude: 30.9100, Longitude: 75.8600, Timestamp: time.Now()}
	_ = store.UpdatePosition(context.Background(), "order-7", domain.SubjectProfessional, live)

	tracker := NewTracker(hub, store, nil, repo)
	order, err := tracker.Seed(context.Background(), "order-7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if order.ProfessionalPoint == nil || order.ProfessionalPoint.Latitude != 30.9100 {
		t.Errorf("expected the live position to win, got %+v", order.ProfessionalPoint)
	}
}

// has reports whether a subject position is stored for an order.
func (s *stubStore) has(orderID string, subject domain.Subject) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.positions[orderID][subject]
	return ok
}
