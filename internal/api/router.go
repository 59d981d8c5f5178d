package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/pacifica-bot/internal/gateway"
	"github.com/ashureev/pacifica-bot/internal/identity"
	"github.com/ashureev/pacifica-bot/internal/metrics"
	"github.com/ashureev/pacifica-bot/internal/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// RouterConfig holds what the router serves.
type RouterConfig struct {
	Repo               Pinger
	HealthCheckTimeout time.Duration
	// Chat is the message handler behind the gateway. The gateway routes
	// are mounted only when both Chat and GatewayToken are set.
	Chat           gateway.Handler
	Hub            *gateway.Hub
	GatewayToken   string
	AllowedOrigins []string
	Logger         *slog.Logger
}

// NewRouter builds the HTTP handler.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	NewHealthHandler(cfg.Repo, cfg.HealthCheckTimeout).RegisterHealth(r)
	r.Handle("/metrics", metrics.Handler())

	if cfg.Chat != nil && cfg.Hub != nil && cfg.GatewayToken != "" {
		ws := gateway.NewWebSocketHandler(cfg.Hub, cfg.Chat, cfg.AllowedOrigins, cfg.Logger)
		chat := NewChatHandler(cfg.Chat, cfg.Hub)

		r.Group(func(r chi.Router) {
			r.Use(identity.Middleware(cfg.GatewayToken))
			chat.RegisterRoutes(r)
			r.Get("/ws/chat", ws.ServeHTTP)
		})
	}

	return r
}
