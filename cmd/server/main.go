// Chatwire - real-time messaging server
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

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/avdeev/chatwire/internal/api"
	"github.com/avdeev/chatwire/internal/auth"
	"github.com/avdeev/chatwire/internal/config"
	"github.com/avdeev/chatwire/internal/delivery"
	"github.com/avdeev/chatwire/internal/middleware"
	"github.com/avdeev/chatwire/internal/realtime"
	"github.com/avdeev/chatwire/internal/store"
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
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

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
	slog.Info("Database connected")

	tokens, err := auth.NewService(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		slog.Error("Failed to initialize token service", "error", err)
		os.Exit(1)
	}

	// Presence, rooms, and fan-out live in one in-process hub; connection
	// state is rebuilt from scratch on restart.
	hub := realtime.NewHub()
	coord := delivery.NewCoordinator(repo, hub)

	apiHandler := api.NewHandler(repo, hub, coord, tokens)
	wsHandler := realtime.NewWebSocketHandler(repo, hub, tokens, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))

	apiHandler.RegisterRoutes(r)

	// WebSocket endpoint (authenticates its own bearer credential).
	r.Get("/ws", wsHandler.ServeHTTP)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // 0 = no timeout; WebSocket connections are long-lived
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server.
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
