package presence

import (
	"context"
	"sync"

	"github.com/AlibekovAA/webpush-relay/internal/common/logger"
	"github.com/AlibekovAA/webpush-relay/internal/observability/metrics"
)

var shutdownMessage = []byte(`{"type":"shutdown"}`)

// Hub tracks which session tokens of a user hold a live connection. A token
// stays attached while at least one of its connections is open.
type Hub struct {
	mu     sync.RWMutex
	users  map[string]map[string]map[*Client]struct{}
	closed bool
	log    *logger.Logger
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		users: make(map[string]map[string]map[*Client]struct{}),
		log:   log,
	}
}

// Register returns false once the hub has shut down.
func (h *Hub) Register(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		client.stop()
		return false
	}

	tokens, ok := h.users[client.userID]
	if !ok {
		tokens = make(map[string]map[*Client]struct{})
		h.users[client.userID] = tokens
	}
	clients, ok := tokens[client.token]
	if !ok {
		clients = make(map[*Client]struct{})
		tokens[client.token] = clients
	}
	clients[client] = struct{}{}

	metrics.PresenceConnectionsActive.Inc()
	metrics.PresenceConnectionsTotal.Inc()
	h.log.WithFields(context.Background(), logger.Fields{
		"user_id":     client.userID,
		"username":    client.username,
		"connections": len(clients),
		"action":      "presence_register",
	}).Debug("presence client registered")
	return true
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	tokens, ok := h.users[client.userID]
	if !ok {
		return
	}
	clients, ok := tokens[client.token]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}

	delete(clients, client)
	if len(clients) == 0 {
		delete(tokens, client.token)
	}
	if len(tokens) == 0 {
		delete(h.users, client.userID)
	}
	client.stop()

	metrics.PresenceConnectionsActive.Dec()
	h.log.WithFields(context.Background(), logger.Fields{
		"user_id":  client.userID,
		"username": client.username,
		"action":   "presence_unregister",
	}).Debug("presence client unregistered")
}

// AttachedTokens returns a snapshot; callers may keep it.
func (h *Hub) AttachedTokens(userID string) map[string]struct{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	tokens := h.users[userID]
	out := make(map[string]struct{}, len(tokens))
	for token := range tokens {
		out[token] = struct{}{}
	}
	return out
}

// Run blocks until ctx is done, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.Close()
}

func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	count := 0
	for _, tokens := range h.users {
		for _, clients := range tokens {
			for client := range clients {
				select {
				case client.send <- shutdownMessage:
				default:
				}
				client.stop()
				count++
			}
		}
	}
	h.users = make(map[string]map[string]map[*Client]struct{})
	metrics.PresenceConnectionsActive.Sub(float64(count))

	h.log.WithFields(context.Background(), logger.Fields{
		"clients": count,
		"action":  "presence_hub_shutdown",
	}).Info("presence hub shutdown completed")
}
