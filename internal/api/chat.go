package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ashureev/pacifica-bot/internal/bot"
	"github.com/ashureev/pacifica-bot/internal/gateway"
	"github.com/ashureev/pacifica-bot/internal/identity"
	"github.com/go-chi/chi/v5"
)

const maxMessageBytes = 4096

// ChatHandler exposes the dispatcher over plain HTTP for clients that cannot
// hold a WebSocket open.
type ChatHandler struct {
	handler gateway.Handler
	hub     *gateway.Hub
}

// NewChatHandler creates a chat handler.
func NewChatHandler(handler gateway.Handler, hub *gateway.Hub) *ChatHandler {
	return &ChatHandler{handler: handler, hub: hub}
}

type postMessageRequest struct {
	Text string `json:"text"`
}

type repliesResponse struct {
	Replies []bot.Reply `json:"replies"`
}

// PostMessage handles one message and returns the immediate replies. Later
// replies are collected with GetMessages or pushed over the WebSocket.
func (h *ChatHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req postMessageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBytes)).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		Error(w, http.StatusBadRequest, "text is required")
		return
	}

	userID := identity.UserIDFromContext(r.Context())
	replies := h.handler.Handle(r.Context(), gateway.Message(userID, req.Text))
	JSON(w, http.StatusOK, repliesResponse{Replies: nonNil(replies)})
}

// GetMessages returns and clears the replies waiting for the caller.
func (h *ChatHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	JSON(w, http.StatusOK, repliesResponse{Replies: nonNil(h.hub.Drain(userID))})
}

// RegisterRoutes registers chat routes.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/chat", func(r chi.Router) {
		r.Post("/messages", h.PostMessage)
		r.Get("/messages", h.GetMessages)
	})
}

func nonNil(rs []bot.Reply) []bot.Reply {
	if rs == nil {
		return []bot.Reply{}
	}
	return rs
}
