package services

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type      string   `json:"type"`
	Timestamp int64    `json:"timestamp,omitempty"`
	EventID   string   `json:"event_id,omitempty"`
	EventName string   `json:"event_name,omitempty"`
	FamilyIDs []string `json:"family_ids,omitempty"`
	ActorID   string   `json:"actor_id,omitempty"`
	Message   string   `json:"message,omitempty"`
}

// wsClient serializes writes to one connection
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// WSHub manages WebSocket connections, one per user
type WSHub struct {
	mu      sync.RWMutex
	clients map[string]*wsClient
}

// NewWSHub creates a new WebSocket hub
func NewWSHub() *WSHub {
	return &WSHub{
		clients: make(map[string]*wsClient),
	}
}

// Register registers a connection for a user, replacing any previous one
func (h *WSHub) Register(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if existing, ok := h.clients[userID]; ok {
		existing.conn.Close()
	}
	h.clients[userID] = &wsClient{conn: conn}

	log.Info().Str("user_id", userID).Msg("WebSocket connection registered")
}

// Unregister removes a user's connection if it is still conn
func (h *WSHub) Unregister(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client, ok := h.clients[userID]; ok && client.conn == conn {
		client.conn.Close()
		delete(h.clients, userID)
		log.Info().Str("user_id", userID).Msg("WebSocket connection unregistered")
	}
}

// SendToUser sends a message to a specific user
func (h *WSHub) SendToUser(userID string, message WSMessage) error {
	h.mu.RLock()
	client, ok := h.clients[userID]
	h.mu.RUnlock()

	if !ok {
		return fmt.Errorf("user %s is not connected", userID)
	}

	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := client.write(data); err != nil {
		h.Unregister(userID, client.conn)
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Broadcast sends message to every connected user in userIDs and returns how
// many received it.
func (h *WSHub) Broadcast(userIDs []string, message WSMessage) int {
	sent := 0
	for _, userID := range userIDs {
		if !h.IsOnline(userID) {
			continue
		}
		if err := h.SendToUser(userID, message); err != nil {
			log.Error().Err(err).Str("user_id", userID).Str("type", message.Type).Msg("Failed to notify user")
			continue
		}
		sent++
	}
	return sent
}

// IsOnline checks if a user is connected
func (h *WSHub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}
