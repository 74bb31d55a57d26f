// Package relay is the server side of the tracking wire protocol: it
// accepts authenticated websocket clients, scopes them into per-order
// rooms, fans position updates out to the other room members and
// broadcasts order-status events ingested from the backend.
package relay

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"glamtrack/internal/wire"
)

// roomMessage targets every member of one order room except the sender.
type roomMessage struct {
	orderID string
	exclude *Client
	data    []byte
}

// Hub maintains the active clients and their room membership.
type Hub struct {
	// rooms maps orderID to the clients currently joined.
	rooms map[string]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan *roomMessage

	// Mutex for thread-safe room map access from Broadcast callers.
	mu sync.RWMutex
}

// NewHub creates a new Hub instance.
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]struct{}),
		register:   make(chan *Client, 16),
		unregister: make(chan *Client, 16),
		broadcast:  make(chan *roomMessage, 256),
	}
}

// Run starts the hub's main loop. It returns when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			log.Printf("relay: client connected user=%s role=%s", client.UserID, client.Role)

		case client := <-h.unregister:
			h.remove(client)
			log.Printf("relay: client disconnected user=%s", client.UserID)

		case message := <-h.broadcast:
			h.deliver(message)
		}
	}
}

// Join adds a client to an order room.
func (h *Hub) Join(client *Client, orderID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[orderID]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[orderID] = members
	}
	members[client] = struct{}{}
}

// Leave removes a client from an order room.
func (h *Hub) Leave(client *Client, orderID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[orderID]
	if !ok {
		return
	}
	delete(members, client)
	if len(members) == 0 {
		delete(h.rooms, orderID)
	}
}

// BroadcastToRoom sends an event to every member of an order room,
// optionally excluding the sender.
func (h *Hub) BroadcastToRoom(orderID string, exclude *Client, event string, payload interface{}) {
	env, err := wire.NewEnvelope(event, payload)
	if err != nil {
		log.Printf("relay: failed to marshal %s event: %v", event, err)
		return
	}
	data, err := json.Marshal(env)
	if err != nil {
		log.Printf("relay: failed to marshal envelope: %v", err)
		return
	}

	h.broadcast <- &roomMessage{orderID: orderID, exclude: exclude, data: data}
}

// RoomSize returns the number of clients in an order room.
func (h *Hub) RoomSize(orderID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[orderID])
}

// remove evicts a client from every room and closes its send buffer.
func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	for orderID, members := range h.rooms {
		if _, ok := members[client]; ok {
			delete(members, client)
			if len(members) == 0 {
				delete(h.rooms, orderID)
			}
		}
	}
	h.mu.Unlock()
	client.closeSend()
}

// deliver pushes a room message to every member's send buffer. Slow
// clients are dropped rather than allowed to stall the hub. Removal
// happens inline: deliver runs on the Run goroutine, so it must never
// send to the channels that goroutine drains.
func (h *Hub) deliver(message *roomMessage) {
	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[message.orderID]))
	for client := range h.rooms[message.orderID] {
		if client != message.exclude {
			members = append(members, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range members {
		select {
		case client.send <- message.data:
		default:
			log.Printf("relay: client buffer full, disconnecting user=%s", client.UserID)
			h.remove(client)
		}
	}
}
