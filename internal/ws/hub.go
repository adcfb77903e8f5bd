// Package ws streams footfall and presence events to WebSocket clients.
package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"zvision/internal/pipeline"
)

// AllCameras subscribes a client to events from every camera
const AllCameras = "all"

// client wraps a connection with a write mutex. Broadcasts arrive from
// every camera's detection worker plus the handler's ping loop, and
// gorilla permits only one concurrent writer per connection.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteMessage(messageType, data)
}

// EventHub manages WebSocket connections for real-time event streaming.
// It implements pipeline.EventSink, so subscribing it to the event bus
// forwards everything the pipelines emit.
type EventHub struct {
	// clients maps camera_id -> set of connections
	clients map[string]map[*websocket.Conn]*client
	mu      sync.RWMutex
}

// NewEventHub creates a new event hub
func NewEventHub() *EventHub {
	return &EventHub{
		clients: make(map[string]map[*websocket.Conn]*client),
	}
}

// Register adds a connection for a specific camera (or AllCameras) and
// returns the wrapper all writes to that connection must go through
func (h *EventHub) Register(cameraID string, conn *websocket.Conn) *client {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[cameraID] == nil {
		h.clients[cameraID] = make(map[*websocket.Conn]*client)
	}
	c := &client{conn: conn}
	h.clients[cameraID][conn] = c
	log.Printf("[WS] Client registered for camera %s (total: %d)", cameraID, len(h.clients[cameraID]))
	return c
}

// Unregister removes a connection
func (h *EventHub) Unregister(cameraID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.clients[cameraID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.clients, cameraID)
		}
		log.Printf("[WS] Client unregistered for camera %s", cameraID)
	}
}

// ClientCount returns the total number of connected clients
func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, conns := range h.clients {
		count += len(conns)
	}
	return count
}

// OnFootfall broadcasts a footfall event to the camera's subscribers
func (h *EventHub) OnFootfall(event *pipeline.FootfallEvent) {
	h.broadcast(event.CameraID, NewFootfallMessage(event))
}

// OnPresence broadcasts a presence change to the camera's subscribers
func (h *EventHub) OnPresence(update pipeline.PresenceUpdate) {
	h.broadcast(update.CameraID, NewPresenceMessage(update))
}

// OnSnapshot broadcasts a snapshot notification to the camera's subscribers
func (h *EventHub) OnSnapshot(record pipeline.SnapshotRecord) {
	h.broadcast(record.CameraID, NewSnapshotMessage(record))
}

// broadcast serializes once and sends to the camera's subscribers plus the
// all-cameras subscribers
func (h *EventHub) broadcast(cameraID string, msg any) {
	h.mu.RLock()
	targets := make(map[*websocket.Conn]*client, len(h.clients[cameraID])+len(h.clients[AllCameras]))
	origin := make(map[*websocket.Conn]string)
	for conn, c := range h.clients[cameraID] {
		targets[conn] = c
		origin[conn] = cameraID
	}
	for conn, c := range h.clients[AllCameras] {
		if _, seen := targets[conn]; !seen {
			targets[conn] = c
			origin[conn] = AllCameras
		}
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[WS] Error marshaling message: %v", err)
		return
	}

	for conn, c := range targets {
		if err := c.write(websocket.TextMessage, data); err != nil {
			log.Printf("[WS] Error sending to client: %v", err)
			h.Unregister(origin[conn], conn)
			conn.Close()
		}
	}
}

var _ pipeline.EventSink = (*EventHub)(nil)
