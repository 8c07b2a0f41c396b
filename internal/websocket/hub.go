// Package websocket pushes snapshot refresh notifications to connected
// dashboards so they know when to re-query the ranking routes.
package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/playerstats-proxy/internal/metrics"
	"github.com/playerstats-proxy/internal/storage"
)

// Hub maintains the set of active clients and broadcasts messages
type Hub struct {
	// Registered clients by id
	clients map[string]*Client

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Outbound messages for every client
	broadcast chan []byte

	// Closed when Run returns
	done chan struct{}

	// Last refresh announced, replayed to new clients
	last []byte

	metrics *metrics.Metrics
	logger  *slog.Logger

	mu sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub(m *metrics.Metrics, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 16),
		done:       make(chan struct{}),
		metrics:    m,
		logger:     logger,
	}
}

// Run starts the hub's main loop. It returns when ctx is done, closing every
// client's send channel.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			last := h.last
			h.mu.Unlock()
			h.metrics.SetLiveClients(h.ClientCount())
			h.logger.Debug("client registered", "tag", "live", "client", client.id)

			if last != nil {
				client.trySend(last)
			}

		case client := <-h.unregister:
			h.remove(client)
			h.logger.Debug("client unregistered", "tag", "live", "client", client.id)

		case data := <-h.broadcast:
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for _, c := range h.clients {
				clients = append(clients, c)
			}
			h.mu.RUnlock()

			for _, c := range clients {
				if !c.trySend(data) {
					h.logger.Warn("dropping slow client", "tag", "live", "client", c.id)
					h.remove(c)
				}
			}

		case <-ctx.Done():
			h.mu.Lock()
			for id, c := range h.clients {
				delete(h.clients, id)
				c.close()
			}
			h.mu.Unlock()
			h.metrics.SetLiveClients(0)
			return
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client.id]; ok {
		delete(h.clients, client.id)
		client.close()
	}
	n := len(h.clients)
	h.mu.Unlock()
	h.metrics.SetLiveClients(n)
}

// BroadcastRefresh announces a new snapshot to every client. It is shaped to
// be registered with storage.Store.OnRefresh and never blocks.
func (h *Hub) BroadcastRefresh(ev storage.RefreshEvent) {
	fetchedAt := ev.FetchedAt
	data, err := json.Marshal(Message{
		Type:       TypeSnapshotRefreshed,
		Generation: ev.Generation,
		Players:    ev.Players,
		FetchedAt:  &fetchedAt,
	})
	if err != nil {
		h.logger.Error("marshal refresh message", "tag", "live", "error", err)
		return
	}

	h.mu.Lock()
	h.last = data
	h.mu.Unlock()

	select {
	case h.broadcast <- data:
	case <-h.done:
	default:
		h.logger.Warn("broadcast queue full, refresh not announced", "tag", "live", "generation", ev.Generation)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// lastRefresh returns the most recent refresh message, if any.
func (h *Hub) lastRefresh() []byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.last
}
