// Package channel manages one bidirectional event connection to the
// tracking relay: authentication, room membership, reconnection with
// backoff, and inbound/outbound event dispatch.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"glamtrack/internal/domain"
	"glamtrack/internal/wire"
)

var (
	// ErrConnectionTimeout is returned when the initial handshake does
	// not complete within the configured timeout.
	ErrConnectionTimeout = errors.New("connection timeout")

	// ErrRetriesExhausted is recorded when automatic reconnection gives
	// up after the configured attempt cap.
	ErrRetriesExhausted = errors.New("reconnect attempts exhausted")

	// ErrChannelClosed is returned when connecting a disconnected channel.
	ErrChannelClosed = errors.New("channel closed")
)

const (
	defaultHandshakeTimeout = 15 * time.Second
	defaultMaxReconnects    = 5
	defaultInitialBackoff   = 500 * time.Millisecond
	defaultMaxBackoff       = 15 * time.Second

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// TokenFunc supplies the current access token. It is consulted at
// connect time and again on every reconnect attempt; false means no
// token is available.
type TokenFunc func() (string, bool)

// Config controls the connection to the relay.
type Config struct {
	Endpoint             string // ws:// or wss:// URL of the relay
	Token                TokenFunc
	HandshakeTimeout     time.Duration
	MaxReconnectAttempts int
	InitialBackoff       time.Duration
	MaxBackoff           time.Duration
}

func (c Config) withDefaults() Config {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = defaultHandshakeTimeout
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = defaultMaxReconnects
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = defaultInitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = defaultMaxBackoff
	}
	return c
}

// Client is a realtime channel to the relay. The zero value is not
// usable; create one with New.
type Client struct {
	cfg Config

	mu      sync.Mutex
	conn    *websocket.Conn
	status  domain.ConnectionStatus
	rooms   map[string]struct{}
	subs    map[string]chan json.RawMessage
	statusC chan domain.ConnectionStatus
	err     error
	closed  bool

	writeMu sync.Mutex
}

// New creates a disconnected channel client.
func New(cfg Config) *Client {
	return &Client{
		cfg:     cfg.withDefaults(),
		status:  domain.ConnectionDisconnected,
		rooms:   make(map[string]struct{}),
		subs:    make(map[string]chan json.RawMessage),
		statusC: make(chan domain.ConnectionStatus, 1),
	}
}

// Connect performs the initial handshake. It suspends until the
// handshake completes or times out, and starts the read and ping loops
// on success. Reconnection after a later drop is automatic.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	c.setStatusLocked(domain.ConnectionConnecting)
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		c.mu.Lock()
		c.setStatusLocked(domain.ConnectionDisconnected)
		c.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrConnectionTimeout, err)
	}

	c.adopt(conn)
	return nil
}

// Status returns the current connection status.
func (c *Client) Status() domain.ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// StatusChanges returns a bounded latest-wins stream of status updates.
func (c *Client) StatusChanges() <-chan domain.ConnectionStatus {
	return c.statusC
}

// Err returns the terminal channel error, if any. It is set once
// reconnection gives up.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// JoinRoom joins an order room. Membership is remembered and restored
// automatically after a reconnect.
func (c *Client) JoinRoom(roomID string) {
	c.mu.Lock()
	c.rooms[roomID] = struct{}{}
	connected := c.status == domain.ConnectionConnected
	c.mu.Unlock()

	if connected {
		c.Send(wire.EventJoinOrder, wire.RoomPayload{OrderID: roomID})
	}
}

// LeaveRoom leaves an order room.
func (c *Client) LeaveRoom(roomID string) {
	c.mu.Lock()
	delete(c.rooms, roomID)
	connected := c.status == domain.ConnectionConnected
	c.mu.Unlock()

	if connected {
		c.Send(wire.EventLeaveOrder, wire.RoomPayload{OrderID: roomID})
	}
}

// Send emits an event to the relay. On a disconnected channel it is a
// silent no-op: delivery is at most once and periodic position updates
// provide eventual consistency.
func (c *Client) Send(event string, payload interface{}) {
	c.mu.Lock()
	conn := c.conn
	connected := c.status == domain.ConnectionConnected
	c.mu.Unlock()

	if !connected || conn == nil {
		return
	}

	env, err := wire.NewEnvelope(event, payload)
	if err != nil {
		log.Printf("channel: dropping unencodable %s event: %v", event, err)
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	// Write errors are swallowed: the read loop notices the broken
	// connection and drives reconnection.
	_ = conn.WriteJSON(env)
}

// Subscribe returns the inbound stream for one event name. Delivery is
// bounded latest-wins; events nobody subscribed to are discarded.
func (c *Client) Subscribe(event string) <-chan json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ch, ok := c.subs[event]; ok {
		return ch
	}
	ch := make(chan json.RawMessage, 1)
	c.subs[event] = ch
	return ch
}

// Disconnect leaves all joined rooms best-effort and closes the
// connection. It is idempotent and stops any reconnection in flight.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	connected := c.status == domain.ConnectionConnected
	c.setStatusLocked(domain.ConnectionDisconnected)
	c.mu.Unlock()

	if conn != nil {
		if connected {
			for _, room := range rooms {
				env, err := wire.NewEnvelope(wire.EventLeaveOrder, wire.RoomPayload{OrderID: room})
				if err != nil {
					continue
				}
				c.writeMu.Lock()
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteJSON(env)
				c.writeMu.Unlock()
			}
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		_ = conn.Close()
	}
}

// dial opens the websocket with the current access token attached.
func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	endpoint := c.cfg.Endpoint
	if c.cfg.Token != nil {
		if token, ok := c.cfg.Token(); ok {
			u, err := url.Parse(endpoint)
			if err != nil {
				return nil, err
			}
			q := u.Query()
			q.Set("token", token)
			u.RawQuery = q.Encode()
			endpoint = u.String()
		}
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
	defer cancel()

	conn, _, err := dialer.DialContext(dialCtx, endpoint, nil)
	return conn, err
}

// adopt installs a freshly dialed connection, rejoins remembered rooms
// and only then flips the status to Connected. A Disconnect that lands
// while the dial was in flight wins: the connection is discarded.
func (c *Client) adopt(conn *websocket.Conn) {
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	c.mu.Unlock()

	for _, room := range rooms {
		env, err := wire.NewEnvelope(wire.EventJoinOrder, wire.RoomPayload{OrderID: room})
		if err != nil {
			continue
		}
		c.writeMu.Lock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteJSON(env)
		c.writeMu.Unlock()
	}

	c.mu.Lock()
	if c.closed {
		// Disconnect raced the room rejoin; it already closed the
		// connection, so just refuse to go Connected.
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.setStatusLocked(domain.ConnectionConnected)
	c.mu.Unlock()

	go c.readLoop(conn)
	go c.pingLoop(conn)
}

// readLoop dispatches inbound envelopes until the connection breaks,
// then hands over to the reconnect loop.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleDrop(conn, err)
			return
		}

		var env wire.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Printf("channel: dropping malformed frame: %v", err)
			continue
		}

		c.dispatch(env)
	}
}

// pingLoop keeps the connection alive; a failed ping surfaces in the
// read loop as a broken connection.
func (c *Client) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		current := c.conn
		c.mu.Unlock()
		if current != conn {
			return
		}
		if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
			return
		}
	}
}

// dispatch delivers one inbound event, superseding a stale undelivered
// payload rather than blocking the read loop.
func (c *Client) dispatch(env wire.Envelope) {
	c.mu.Lock()
	ch, ok := c.subs[env.Event]
	c.mu.Unlock()
	if !ok {
		return
	}

	for {
		select {
		case ch <- env.Data:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// handleDrop reacts to a broken connection: either the channel was
// closed deliberately, or reconnection starts.
func (c *Client) handleDrop(conn *websocket.Conn, cause error) {
	_ = conn.Close()

	c.mu.Lock()
	if c.closed || c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.setStatusLocked(domain.ConnectionConnecting)
	c.mu.Unlock()

	log.Printf("channel: connection lost: %v", cause)
	c.reconnect()
}

// reconnect retries with exponential backoff up to the attempt cap,
// consulting the token supplier on every attempt.
func (c *Client) reconnect() {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.InitialBackoff
	bo.MaxInterval = c.cfg.MaxBackoff
	bo.MaxElapsedTime = 0

	for attempt := 1; attempt <= c.cfg.MaxReconnectAttempts; attempt++ {
		time.Sleep(bo.NextBackOff())

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		conn, err := c.dial(context.Background())
		if err != nil {
			log.Printf("channel: reconnect attempt %d/%d failed: %v", attempt, c.cfg.MaxReconnectAttempts, err)
			continue
		}

		c.adopt(conn)
		return
	}

	c.mu.Lock()
	if !c.closed {
		c.err = ErrRetriesExhausted
		c.setStatusLocked(domain.ConnectionDisconnected)
	}
	c.mu.Unlock()
}

// setStatusLocked updates the status and pushes it into the bounded
// latest-wins status stream. Callers must hold c.mu.
func (c *Client) setStatusLocked(status domain.ConnectionStatus) {
	if c.status == status {
		return
	}
	c.status = status

	for {
		select {
		case c.statusC <- status:
			return
		default:
		}
		select {
		case <-c.statusC:
		default:
		}
	}
}
