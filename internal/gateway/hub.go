// Package gateway serves the chat dispatcher over WebSocket and plain HTTP
// for clients other than Telegram.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/pacifica-bot/internal/bot"
	"github.com/ashureev/pacifica-bot/internal/flow"
	"github.com/coder/websocket"
)

// Channel names this transport in bot messages.
const Channel = "gateway"

const (
	defaultMailboxSize = 50
	writeTimeout       = 5 * time.Second
)

// frame is the JSON message exchanged over a connection.
type frame struct {
	Type    string        `json:"type"`
	Text    string        `json:"text,omitempty"`
	Options []flow.Option `json:"options,omitempty"`
}

// Hub tracks the live connections of each user and holds replies for users
// with none until they are fetched.
type Hub struct {
	mu          sync.RWMutex
	active      map[int64]map[string]*websocket.Conn
	mailbox     map[int64][]bot.Reply
	mailboxSize int
	logger      *slog.Logger
}

// NewHub creates a hub that keeps at most mailboxSize undelivered replies
// per user, dropping the oldest first.
func NewHub(mailboxSize int, logger *slog.Logger) *Hub {
	if mailboxSize <= 0 {
		mailboxSize = defaultMailboxSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		active:      make(map[int64]map[string]*websocket.Conn),
		mailbox:     make(map[int64][]bot.Reply),
		mailboxSize: mailboxSize,
		logger:      logger,
	}
}

// Register adds a connection for a user/session, closing any connection it
// replaces.
func (h *Hub) Register(userID int64, sessionID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.active[userID]; !exists {
		h.active[userID] = make(map[string]*websocket.Conn)
	}
	if existing, exists := h.active[userID][sessionID]; exists && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "session replaced")
	}
	h.active[userID][sessionID] = conn
	h.logger.Info("Chat connection registered", "user_id", userID, "session_id", sessionID)
}

// Unregister removes a connection for a user/session.
func (h *Hub) Unregister(userID int64, sessionID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sessions, ok := h.active[userID]; ok {
		if current, exists := sessions[sessionID]; exists && current == conn {
			delete(sessions, sessionID)
			if len(sessions) == 0 {
				delete(h.active, userID)
			}
			h.logger.Info("Chat connection unregistered", "user_id", userID, "session_id", sessionID)
		}
	}
}

// CloseAll closes every connection.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, sessions := range h.active {
		for _, conn := range sessions {
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		}
		delete(h.active, userID)
	}
}

// Notify implements bot.Notifier. Without a live connection the reply is
// kept in the user's mailbox.
func (h *Hub) Notify(ctx context.Context, userID int64, r bot.Reply) error {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.active[userID]))
	for _, c := range h.active[userID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	if len(conns) == 0 {
		h.store(userID, r)
		return nil
	}

	var delivered bool
	for _, c := range conns {
		if err := writeReply(ctx, c, r); err != nil {
			h.logger.Debug("Chat write failed", "user_id", userID, "error", err)
			continue
		}
		delivered = true
	}
	if !delivered {
		h.store(userID, r)
	}
	return nil
}

func (h *Hub) store(userID int64, r bot.Reply) {
	h.mu.Lock()
	defer h.mu.Unlock()

	box := append(h.mailbox[userID], r)
	if over := len(box) - h.mailboxSize; over > 0 {
		box = box[over:]
	}
	h.mailbox[userID] = box
}

// Drain returns and clears the user's undelivered replies.
func (h *Hub) Drain(userID int64) []bot.Reply {
	h.mu.Lock()
	defer h.mu.Unlock()

	box := h.mailbox[userID]
	delete(h.mailbox, userID)
	return box
}

func writeReply(ctx context.Context, c *websocket.Conn, r bot.Reply) error {
	return writeFrame(ctx, c, frame{Type: "reply", Text: r.Text, Options: r.Options})
}

func writeFrame(ctx context.Context, c *websocket.Conn, f frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.Write(ctx, websocket.MessageText, data)
}
