// Package hub manages the set of live-view observers connected over
// WebSocket. Membership changes on connect/disconnect race with broadcast
// fan-out, so the conn set and all writes share one mutex; that single
// write path is also what keeps pushes in broadcast order for any one
// observer.
package hub

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

type Hub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]bool
}

func New() *Hub {
	return &Hub{conns: make(map[*websocket.Conn]bool)}
}

// Register adds a newly connected observer.
func (h *Hub) Register(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn] = true
}

// Unregister removes an observer and closes its connection.
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.drop(conn)
}

// Count returns the number of connected observers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Broadcast pushes v to every connected observer. Delivery is best effort:
// an observer whose write fails is dropped and the fan-out continues with
// the rest.
func (h *Hub) Broadcast(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[ws] failed to marshal broadcast: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.conns {
		if err := h.write(conn, data); err != nil {
			log.Printf("[ws] dropping observer: %v", err)
			h.drop(conn)
		}
	}
}

// SendTo pushes v to a single observer, used for the initial-state sync
// right after connect. Failures drop that observer only.
func (h *Hub) SendTo(conn *websocket.Conn, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[ws] failed to marshal message: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.conns[conn] {
		return
	}
	if err := h.write(conn, data); err != nil {
		log.Printf("[ws] dropping observer: %v", err)
		h.drop(conn)
	}
}

func (h *Hub) write(conn *websocket.Conn, data []byte) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// drop must be called with h.mu held.
func (h *Hub) drop(conn *websocket.Conn) {
	if h.conns[conn] {
		delete(h.conns, conn)
		conn.Close()
	}
}
