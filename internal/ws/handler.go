package ws

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins for development
		return true
	},
}

// Handler upgrades HTTP requests to WebSocket event subscriptions
type Handler struct {
	hub *EventHub
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *EventHub) *Handler {
	return &Handler{hub: hub}
}

// ServeHTTP handles WebSocket upgrade requests.
// Expected URL format: /ws/events/{camera_id}, with "all" subscribing to
// every camera.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cameraID := r.PathValue("camera_id")
	if cameraID == "" {
		http.Error(w, "camera_id required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] Upgrade error: %v", err)
		return
	}

	log.Printf("[WS] New connection for camera %s from %s", cameraID, r.RemoteAddr)
	c := h.hub.Register(cameraID, conn)
	go h.readPump(cameraID, c)
}

// readPump keeps the connection alive and detects client disconnection
func (h *Handler) readPump(cameraID string, c *client) {
	conn := c.conn
	defer func() {
		h.hub.Unregister(cameraID, conn)
		conn.Close()
	}()

	conn.SetReadLimit(512) // clients are not expected to send anything
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	go func() {
		for range ticker.C {
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[WS] Read error for camera %s: %v", cameraID, err)
			}
			break
		}
	}
}
