package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/KevinKickass/PumpFleet/internal/auth"
	"github.com/KevinKickass/PumpFleet/internal/collection"
)

// TokenValidator checks the token sent in the auth handshake.
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// envelope is a message addressed to one user, or to everyone when owner
// is empty.
type envelope struct {
	owner string
	msg   Message
}

// Hub maintains authenticated WebSocket clients and routes messages to them
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Inbound messages to deliver
	broadcast chan envelope

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Closed when Run returns
	done chan struct{}

	mu        sync.RWMutex
	logger    *zap.Logger
	validator TokenValidator
}

// NewHub creates a new Hub instance
func NewHub(logger *zap.Logger, validator TokenValidator) *Hub {
	return &Hub{
		broadcast:  make(chan envelope, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		logger:     logger,
		validator:  validator,
	}
}

// Run starts the hub's main event loop. It disconnects every client when
// ctx is done.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("WebSocket Hub started")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("WebSocket Hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("WebSocket client registered",
				zap.String("username", client.username),
				zap.Int("total_clients", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.logger.Info("WebSocket client unregistered",
					zap.String("username", client.username),
					zap.Int("total_clients", len(h.clients)))
			}
			h.mu.Unlock()

		case env := <-h.broadcast:
			data, err := json.Marshal(env.msg)
			if err != nil {
				h.logger.Error("Failed to marshal broadcast message",
					zap.Error(err))
				continue
			}

			h.mu.Lock()
			for client := range h.clients {
				if env.owner != "" && client.username != env.owner {
					continue
				}
				select {
				case client.send <- data:
				default:
					// Client send channel full - unregister slow/dead client
					close(client.send)
					delete(h.clients, client)
					h.logger.Warn("Client send buffer full, unregistering",
						zap.String("username", client.username))
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast sends a message to all connected clients
func (h *Hub) Broadcast(msg Message) {
	h.enqueue(envelope{msg: msg})
}

// SendTo sends a message to every connection of one user
func (h *Hub) SendTo(username string, msg Message) {
	if username == "" {
		return
	}
	h.enqueue(envelope{owner: username, msg: msg})
}

// CollectionChanged forwards controller changes to the owning user.
func (h *Hub) CollectionChanged(owner string, change collection.Change) {
	h.SendTo(owner, NewCollectionMessage(change))
}

func (h *Hub) enqueue(env envelope) {
	select {
	case h.broadcast <- env:
	default:
		h.logger.Warn("Hub broadcast channel full, message dropped",
			zap.String("message_type", string(env.msg.Type)))
	}
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

var _ collection.Listener = (*Hub)(nil)
