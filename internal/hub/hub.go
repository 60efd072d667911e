package hub

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"incubator_messaging/pkg/logger"
)

// Hub keeps one logical channel per user id: a session subscribed there
// receives events for every thread the user participates in, so the
// publishing side only needs the participant list of a thread. A user with
// several open sessions receives the same event on each; clients are
// expected to be idempotent on message id.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]map[*Client]bool

	sendBuffer int
	log        logger.Logger
}

func New(sendBuffer int, log logger.Logger) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]bool),
		sendBuffer: sendBuffer,
		log:        log,
	}
}

// Run blocks until ctx is cancelled, then closes every session.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, sessions := range h.clients {
		for client := range sessions {
			client.closeSend()
		}
		delete(h.clients, userID)
	}
	h.log.Info("Hub stopped")
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.userID]; !ok {
		h.clients[client.userID] = make(map[*Client]bool)
	}
	h.clients[client.userID][client] = true
	h.log.Debug("Socket session registered", "user_id", client.userID, "sessions", len(h.clients[client.userID]))
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sessions, ok := h.clients[client.userID]
	if !ok {
		return
	}
	if _, ok := sessions[client]; !ok {
		return
	}

	delete(sessions, client)
	client.closeSend()
	if len(sessions) == 0 {
		delete(h.clients, client.userID)
	}
	h.log.Debug("Socket session unregistered", "user_id", client.userID)
}

// Publish fans a payload out to every session of the user. The publisher
// never blocks: a session whose outbound queue is full is disconnected
// (the socket path is a notification overlay, клиент догонит по REST).
func (h *Hub) Publish(userID uuid.UUID, payload []byte) {
	h.mu.RLock()
	var slow []*Client
	for client := range h.clients[userID] {
		if !client.enqueue(payload) {
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.log.Warn("Socket session outbound queue full, disconnecting", "user_id", client.userID)
		h.Unregister(client)
	}
}

// SessionCount reports active sessions for a user. Used by tests.
func (h *Hub) SessionCount(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}
