package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"family-calendar-backend/internal/middleware"
	"family-calendar-backend/internal/services"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler handles WebSocket connections
type WebSocketHandler struct {
	hub            *services.WSHub
	sessionService *services.SessionService
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(hub *services.WSHub, sessionService *services.SessionService) *WebSocketHandler {
	return &WebSocketHandler{
		hub:            hub,
		sessionService: sessionService,
	}
}

// HandleWebSocket handles GET /ws?token=. The connection receives change
// notifications for events shared with the user's families.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sess, err := middleware.ValidateWebSocketToken(r.URL.Query().Get("token"), h.sessionService)
	if err != nil {
		respondError(w, "invalid token", http.StatusUnauthorized)
		return
	}
	userID := sess.UserID

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	h.hub.Register(userID, conn)
	defer h.hub.Unregister(userID, conn)

	log.Info().Str("user_id", userID).Msg("WebSocket connection established")

	for {
		_, messageBytes, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("user_id", userID).Msg("WebSocket error")
			}
			break
		}

		var msg services.WSMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			h.reply(userID, services.WSMessage{Type: "error", Message: "Invalid message format"})
			continue
		}

		switch msg.Type {
		case "ping":
			h.reply(userID, services.WSMessage{Type: "pong", Timestamp: time.Now().UnixMilli()})
		default:
			h.reply(userID, services.WSMessage{Type: "error", Message: "Unknown message type"})
		}
	}
}

func (h *WebSocketHandler) reply(userID string, msg services.WSMessage) {
	if err := h.hub.SendToUser(userID, msg); err != nil {
		log.Error().Err(err).Str("user_id", userID).Str("type", msg.Type).Msg("Failed to send WebSocket reply")
	}
}
