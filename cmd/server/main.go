// Pacifica trading bot server: Telegram transport, chat gateway and
// operational endpoints.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/pacifica-bot/internal/api"
	"github.com/ashureev/pacifica-bot/internal/bot"
	"github.com/ashureev/pacifica-bot/internal/config"
	"github.com/ashureev/pacifica-bot/internal/credentials"
	"github.com/ashureev/pacifica-bot/internal/gateway"
	"github.com/ashureev/pacifica-bot/internal/pacifica"
	"github.com/ashureev/pacifica-bot/internal/session"
	"github.com/ashureev/pacifica-bot/internal/store"
	"github.com/ashureev/pacifica-bot/internal/telegram"
	"github.com/ashureev/pacifica-bot/internal/worker"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		var fce *config.FatalConfigError
		if errors.As(err, &fce) {
			slog.Error("Fatal configuration error", "variable", fce.Var, "error", fce.Err)
		} else {
			slog.Error("Failed to load configuration", "error", err)
		}
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	slog.Info("Starting server", "port", cfg.Port, "telegram", cfg.TelegramEnabled(), "gateway", cfg.GatewayEnabled())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	count, err := repo.CountCredentials(context.Background())
	if err != nil {
		slog.Error("Failed to count credentials", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected", "connected_users", count)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Jobs outlive the signal context so queued actions can finish on shutdown.
	workCtx, cancelWork := context.WithCancel(context.Background())
	defer cancelWork()
	pool := worker.NewPool(workCtx, cfg.Worker.PoolSize, cfg.Worker.QueueSize, logger)

	sessions := session.NewRegistry(cfg.Session.TTL, session.WithLogger(logger))
	sessions.StartSweeper(ctx, cfg.Session.SweepInterval)

	client := pacifica.NewClient(cfg.PacificaURL, cfg.PacificaTimeout, logger)
	prices := pacifica.NewPriceCache(client, cfg.PriceCacheTTL)
	creds := credentials.NewService(repo, cfg.MasterKey(), logger)

	fallback := gateway.Channel
	if cfg.TelegramEnabled() {
		fallback = telegram.Channel
	}
	switchboard := bot.NewSwitchboard(fallback)

	dispatcher := bot.NewDispatcher(bot.Deps{
		Sessions:    sessions,
		Credentials: creds,
		Exchange:    client,
		Prices:      prices,
		Queue:       pool,
		Notifier:    switchboard,
	}, logger)

	hub := gateway.NewHub(0, logger)
	switchboard.Register(gateway.Channel, hub)

	var tg *telegram.Transport
	if cfg.TelegramEnabled() {
		tg, err = telegram.New(ctx, telegram.Settings{Token: cfg.TelegramToken}, dispatcher, logger)
		if err != nil {
			slog.Error("Failed to initialize Telegram transport", "error", err)
			os.Exit(1)
		}
		switchboard.Register(telegram.Channel, tg)
		tg.Start()
	} else {
		slog.Info("Telegram transport disabled (TELEGRAM_BOT_TOKEN not set)")
	}

	router := api.NewRouter(api.RouterConfig{
		Repo:           repo,
		Chat:           dispatcher,
		Hub:            hub,
		GatewayToken:   cfg.GatewayToken,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
	})

	// WebSocket connections are long lived, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	if tg != nil {
		tg.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hub.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	pool.Stop()
	slog.Info("Server stopped successfully")
}
