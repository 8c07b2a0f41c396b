package websocket

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Message types
const (
	TypeSnapshotRefreshed = "snapshot_refreshed"
	TypePing              = "ping"
	TypePong              = "pong"
	TypeLatest            = "latest"
	TypeError             = "error"
)

// Message represents a WebSocket message
type Message struct {
	Type       string     `json:"type"`
	Generation uint64     `json:"generation,omitempty"`
	Players    int        `json:"players,omitempty"`
	FetchedAt  *time.Time `json:"fetched_at,omitempty"`
	Message    string     `json:"message,omitempty"`
}

// IncomingMessage represents a message from the client
type IncomingMessage struct {
	Type string `json:"type"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the CORS layer in front of the router.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades requests to live feed connections and processes what
// clients send.
type Handler struct {
	hub *Hub
}

// NewHandler creates a new message handler
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// ServeHTTP upgrades the connection and starts the client's pumps.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an error response.
		h.hub.logger.Debug("upgrade failed", "tag", "live", "error", err)
		return
	}

	client := newClient(uuid.NewString(), h.hub, h, conn)
	select {
	case h.hub.register <- client:
	case <-h.hub.done:
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}

// HandleMessage processes an incoming message
func (h *Handler) HandleMessage(client *Client, data []byte) {
	var msg IncomingMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		client.sendMessage(Message{Type: TypeError, Message: "Invalid message format"})
		return
	}

	switch msg.Type {
	case TypePing:
		client.sendMessage(Message{Type: TypePong})
	case TypeLatest:
		if last := h.hub.lastRefresh(); last != nil {
			client.trySend(last)
			return
		}
		client.sendMessage(Message{Type: TypeError, Message: "No snapshot fetched yet"})
	default:
		client.sendMessage(Message{Type: TypeError, Message: "Unknown message type: " + msg.Type})
	}
}
