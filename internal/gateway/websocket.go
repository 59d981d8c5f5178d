package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ashureev/pacifica-bot/internal/bot"
	"github.com/ashureev/pacifica-bot/internal/domain"
	"github.com/ashureev/pacifica-bot/internal/identity"
	"github.com/coder/websocket"
)

// Handler processes one chat message.
type Handler interface {
	Handle(ctx context.Context, msg bot.Message) []bot.Reply
}

// WebSocketHandler serves chat sessions over WebSocket.
type WebSocketHandler struct {
	hub            *Hub
	handler        Handler
	allowedOrigins []string
	logger         *slog.Logger
}

// NewWebSocketHandler creates a new WebSocket handler. An origin of "*"
// allows any.
func NewWebSocketHandler(hub *Hub, handler Handler, allowedOrigins []string, logger *slog.Logger) *WebSocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketHandler{
		hub:            hub,
		handler:        handler,
		allowedOrigins: allowedOrigins,
		logger:         logger,
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	h.logger.Info("Chat connection request", "user_id", userID, "session_id", sessionID, "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	h.hub.Register(userID, sessionID, ws)
	defer h.hub.Unregister(userID, sessionID, ws)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	for _, reply := range h.hub.Drain(userID) {
		if err := writeReply(ctx, ws, reply); err != nil {
			h.logger.Debug("Failed to flush mailbox", "error", err, "user_id", userID)
			return
		}
	}

	h.inputLoop(ctx, ws, userID)
	h.logger.Info("Chat session ended", "user_id", userID)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range h.allowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	h.logger.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigins)
	return false
}

// inputLoop reads frames until the client goes away. A frame that is not
// JSON is taken as message text. Message text is never logged.
func (h *WebSocketHandler) inputLoop(ctx context.Context, ws *websocket.Conn, userID int64) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				h.logger.Debug("WebSocket closed by client", "user_id", userID)
			} else if ctx.Err() == nil {
				h.logger.Warn("WebSocket read error", "error", err, "user_id", userID)
			}
			return
		}

		var in frame
		if err := json.Unmarshal(data, &in); err != nil {
			in = frame{Type: "message", Text: string(data)}
		}

		switch in.Type {
		case "message":
			replies := h.handler.Handle(ctx, Message(userID, in.Text))
			for _, reply := range replies {
				if err := writeReply(ctx, ws, reply); err != nil {
					h.logger.Debug("Failed to send reply", "error", err, "user_id", userID)
					return
				}
			}
		case "ping":
			if err := writeFrame(ctx, ws, frame{Type: "pong"}); err != nil {
				h.logger.Debug("Failed to send pong", "error", err)
			}
		default:
			if err := writeFrame(ctx, ws, frame{Type: "error", Text: "unknown frame type"}); err != nil {
				h.logger.Debug("Failed to send error frame", "error", err)
			}
		}
	}
}

// Message builds a dispatcher message for a gateway user.
func Message(userID int64, text string) bot.Message {
	return bot.Message{
		UserID:  userID,
		Channel: Channel,
		Profile: domain.Profile{TelegramID: userID},
		Text:    text,
	}
}
