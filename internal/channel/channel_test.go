package channel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"glamtrack/internal/domain"
	"glamtrack/internal/wire"
)

// testRelay is a minimal in-process relay: it upgrades connections,
// records inbound envelopes and exposes hooks to push events and drop
// connections.
type testRelay struct {
	t        *testing.T
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	tokens   []string
	received []wire.Envelope
	conns    []*websocket.Conn

	connected chan *websocket.Conn
}

func newTestRelay(t *testing.T) *testRelay {
	relay := &testRelay{
		t:         t,
		connected: make(chan *websocket.Conn, 8),
	}
	relay.srv = httptest.NewServer(http.HandlerFunc(relay.handle))
	t.Cleanup(relay.srv.Close)
	return relay
}

func (r *testRelay) handle(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	r.tokens = append(r.tokens, req.URL.Query().Get("token"))
	r.mu.Unlock()

	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}

	r.mu.Lock()
	r.conns = append(r.conns, conn)
	r.mu.Unlock()
	r.connected <- conn

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env wire.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		r.mu.Lock()
		r.received = append(r.received, env)
		r.mu.Unlock()
	}
}

func (r *testRelay) endpoint() string {
	return "ws" + strings.TrimPrefix(r.srv.URL, "http")
}

// waitForEnvelope polls until an envelope with the given event arrives,
// returning how many of them were seen.
func (r *testRelay) waitForEnvelope(event string, want int) int {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		count := 0
		r.mu.Lock()
		for _, env := range r.received {
			if env.Event == event {
				count++
			}
		}
		r.mu.Unlock()
		if count >= want {
			return count
		}
		time.Sleep(5 * time.Millisecond)
	}
	r.t.Fatalf("relay never received %d %s envelope(s)", want, event)
	return 0
}

func (r *testRelay) lastToken() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.tokens) == 0 {
		return ""
	}
	return r.tokens[len(r.tokens)-1]
}

func waitForStatus(t *testing.T, c *Client, want domain.ConnectionStatus) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if c.Status() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("client never reached status %s, stuck in %s", want, c.Status())
}

func TestClient_ConnectAttachesTokenAndJoinsRooms(t *testing.T) {
	t.Parallel()

	relay := newTestRelay(t)
	client := New(Config{
		Endpoint: relay.endpoint(),
		Token:    func() (string, bool) { return "tok-1", true },
	})
	defer client.Disconnect()

	// Membership requested before connecting is replayed on handshake.
	client.JoinRoom("order-7")

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := client.Status(); got != domain.ConnectionConnected {
		t.Errorf("expected CONNECTED, got %s", got)
	}
	if got := relay.lastToken(); got != "tok-1" {
		t.Errorf("expected token on handshake, got %q", got)
	}
	relay.waitForEnvelope(wire.EventJoinOrder, 1)
}

func TestClient_ConnectFailureWrapsTimeout(t *testing.T) {
	t.Parallel()

	// Nothing listens here.
	client := New(Config{
		Endpoint:         "ws://127.0.0.1:1",
		HandshakeTimeout: 200 * time.Millisecond,
	})

	err := client.Connect(context.Background())
	if !errors.Is(err, ErrConnectionTimeout) {
		t.Fatalf("expected ErrConnectionTimeout, got %v", err)
	}
	if got := client.Status(); got != domain.ConnectionDisconnected {
		t.Errorf("expected DISCONNECTED after failed handshake, got %s", got)
	}
}

func TestClient_ReconnectRejoinsRooms(t *testing.T) {
	t.Parallel()

	relay := newTestRelay(t)
	client := New(Config{
		Endpoint:       relay.endpoint(),
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     50 * time.Millisecond,
	})
	defer client.Disconnect()

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first := <-relay.connected

	client.JoinRoom("order-7")
	relay.waitForEnvelope(wire.EventJoinOrder, 1)

	// Kill the connection server-side; the client must come back and
	// rejoin its room without any caller involvement.
	_ = first.Close()
	<-relay.connected
	waitForStatus(t, client, domain.ConnectionConnected)

	relay.waitForEnvelope(wire.EventJoinOrder, 2)
	if err := client.Err(); err != nil {
		t.Errorf("expected no terminal error after successful reconnect, got %v", err)
	}
}

func TestClient_SendOnDisconnectedChannelIsNoop(t *testing.T) {
	t.Parallel()

	client := New(Config{Endpoint: "ws://127.0.0.1:1"})

	// Must not panic or block.
	client.Send(wire.EventLocationUpdate, wire.LocationPayload{OrderID: "order-7"})

	if err := client.Err(); err != nil {
		t.Errorf("send on a disconnected channel must be silent, got %v", err)
	}
}

func TestClient_RetriesExhaustedSetsTerminalError(t *testing.T) {
	t.Parallel()

	relay := newTestRelay(t)
	client := New(Config{
		Endpoint:             relay.endpoint(),
		MaxReconnectAttempts: 2,
		InitialBackoff:       10 * time.Millisecond,
		MaxBackoff:           20 * time.Millisecond,
	})
	defer client.Disconnect()

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	conn := <-relay.connected

	// Take the server away entirely so every reconnect attempt fails.
	relay.srv.CloseClientConnections()
	relay.srv.Close()
	_ = conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if errors.Is(client.Err(), ErrRetriesExhausted) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !errors.Is(client.Err(), ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", client.Err())
	}
	if got := client.Status(); got != domain.ConnectionDisconnected {
		t.Errorf("expected DISCONNECTED after giving up, got %s", got)
	}
}

func TestClient_SubscribeDeliversLatestEvent(t *testing.T) {
	t.Parallel()

	relay := newTestRelay(t)
	client := New(Config{Endpoint: relay.endpoint()})
	defer client.Disconnect()

	updates := client.Subscribe(wire.EventOrderStatusUpdated)

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	conn := <-relay.connected

	env, err := wire.NewEnvelope(wire.EventOrderStatusUpdated, wire.OrderStatusPayload{
		OrderID: "order-7",
		Status:  "confirmed",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := conn.WriteJSON(env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case raw := <-updates:
		var payload wire.OrderStatusPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if payload.Status != "confirmed" {
			t.Errorf("expected confirmed, got %q", payload.Status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscribed event never delivered")
	}
}

func TestClient_ConnectionAdoptedAfterDisconnectIsDiscarded(t *testing.T) {
	t.Parallel()

	relay := newTestRelay(t)
	client := New(Config{Endpoint: relay.endpoint()})
	client.JoinRoom("order-7")
	client.Disconnect()

	// Simulate a reconnect dial that was already in flight when
	// Disconnect landed: the late connection must be discarded, not
	// installed.
	conn, _, err := websocket.DefaultDialer.Dial(relay.endpoint(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	client.adopt(conn)

	if got := client.Status(); got != domain.ConnectionDisconnected {
		t.Fatalf("expected %s after disconnect, got %s", domain.ConnectionDisconnected, got)
	}

	// The discarded connection was closed, not leaked.
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected the discarded connection to be closed")
	}
}
