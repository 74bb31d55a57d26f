package relay

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"glamtrack/internal/domain"
	"glamtrack/internal/wire"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait).
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

// Client represents one websocket connection to the relay.
type Client struct {
	UserID string
	Role   domain.Subject

	conn    *websocket.Conn
	hub     *Hub
	tracker *Tracker
	send    chan []byte

	closeOnce sync.Once
}

// NewClient creates a relay client for an upgraded connection.
func NewClient(userID string, role domain.Subject, conn *websocket.Conn, hub *Hub, tracker *Tracker) *Client {
	return &Client{
		UserID:  userID,
		Role:    role,
		conn:    conn,
		hub:     hub,
		tracker: tracker,
		send:    make(chan []byte, 256),
	}
}

// ReadPump reads envelopes from the connection and dispatches them.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("relay: read error user=%s: %v", c.UserID, err)
			}
			return
		}

		var env wire.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			log.Printf("relay: invalid envelope from user=%s: %v", c.UserID, err)
			continue
		}

		c.handle(env)
	}
}

// WritePump flushes the send buffer to the connection and keeps it
// alive with periodic pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handle dispatches one inbound envelope.
func (c *Client) handle(env wire.Envelope) {
	ctx := context.Background()

	switch env.Event {
	case wire.EventJoinOrder:
		var payload wire.RoomPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil || payload.OrderID == "" {
			return
		}
		c.hub.Join(c, payload.OrderID)

	case wire.EventLeaveOrder:
		var payload wire.RoomPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil || payload.OrderID == "" {
			return
		}
		c.hub.Leave(c, payload.OrderID)

	case wire.EventLocationUpdate:
		var payload wire.LocationPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return
		}
		c.tracker.HandleLocationUpdate(ctx, c, payload)

	case wire.EventUpdateUserLocation:
		// Compact legacy form of the same update.
		var payload wire.UserLocationPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return
		}
		c.tracker.HandleLocationUpdate(ctx, c, wire.LocationPayload{
			OrderID:   payload.OrderID,
			Latitude:  payload.Latitude,
			Longitude: payload.Longitude,
		})

	case wire.EventArrived:
		var payload wire.ArrivedPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil || payload.OrderID == "" {
			return
		}
		c.hub.BroadcastToRoom(payload.OrderID, c, wire.EventArrived, payload)

	default:
		log.Printf("relay: ignoring unknown event %q from user=%s", env.Event, c.UserID)
	}
}

// closeSend closes the outbound buffer exactly once.
func (c *Client) closeSend() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}
