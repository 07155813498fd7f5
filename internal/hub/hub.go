package hub

import (
	"encoding/json"
	"sync"

	"github.com/velvetcast/session-service/internal/log"
	"github.com/velvetcast/session-service/internal/registry"
)

// Hub owns the socket connections. It deliberately knows nothing about
// rooms: the membership registry is the authority on who is where, and
// fan-out callers pass the member snapshot they took under the room
// lock.
type Hub struct {
	clients    map[string]*Client // connectionID -> client
	register   chan *Client
	unregister chan *Client
	broadcast  chan *memberMessage
	mu         sync.RWMutex
}

type memberMessage struct {
	connectionIDs []string
	message       []byte
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *memberMessage, 256),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			l := log.L()
			l.Debug().Str(log.FieldConnectionID, client.ID).Msg("client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(client.Send)
			}
			h.mu.Unlock()
			l := log.L()
			l.Debug().Str(log.FieldConnectionID, client.ID).Msg("client unregistered")

		case msg := <-h.broadcast:
			h.mu.RLock()
			for _, connID := range msg.connectionIDs {
				client, ok := h.clients[connID]
				if !ok {
					continue
				}
				select {
				case client.Send <- msg.message:
				default:
					go h.removeClient(client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// BroadcastToMembers fans a message out to the given member snapshot.
func (h *Hub) BroadcastToMembers(members []registry.Member, message interface{}) {
	if len(members) == 0 {
		return
	}

	data, err := json.Marshal(message)
	if err != nil {
		l := log.L()
		l.Error().Err(err).Msg("failed to marshal broadcast message")
		return
	}

	connIDs := make([]string, 0, len(members))
	for _, m := range members {
		connIDs = append(connIDs, m.ConnectionID)
	}

	h.broadcast <- &memberMessage{connectionIDs: connIDs, message: data}
}

// SendToConnection delivers a message to a single connection. Unknown
// connections are silently skipped (the socket may already be gone).
func (h *Hub) SendToConnection(connectionID string, message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		l := log.L()
		l.Error().Err(err).Msg("failed to marshal direct message")
		return
	}
	h.broadcast <- &memberMessage{connectionIDs: []string{connectionID}, message: data}
}

// ClientCount returns the number of registered connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) removeClient(client *Client) {
	h.unregister <- client
}
