// Package server assembles the HTTP API: routes, middleware chain, and the
// websocket endpoint.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/predictd/internal/server/handler"
	"github.com/alanyoungcy/predictd/internal/server/middleware"
	"github.com/alanyoungcy/predictd/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health        *handler.HealthHandler
	Rounds        *handler.RoundHandler
	Tasks         *handler.TaskHandler
	Notifications *handler.NotificationHandler
}

// Server is the HTTP + WebSocket API server for the prediction game backend.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// The health check and websocket endpoint are public; everything else sits
// behind the bearer-token auth gate.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, users middleware.UserLookup, logger *slog.Logger) *Server {
	// Protected API routes.
	api := http.NewServeMux()
	api.HandleFunc("POST /api/rounds", handlers.Rounds.CreateRound)
	api.HandleFunc("GET /api/rounds/active", handlers.Rounds.GetActiveRound)
	api.HandleFunc("GET /api/rounds/{id}", handlers.Rounds.GetRound)
	api.HandleFunc("POST /api/rounds/{id}/resolve", handlers.Rounds.ResolveRound)

	api.HandleFunc("POST /api/tasks", handlers.Tasks.ScheduleTask)
	api.HandleFunc("GET /api/tasks/pending", handlers.Tasks.ListPending)
	api.HandleFunc("POST /api/tasks/{id}/complete", handlers.Tasks.CompleteTask)

	api.HandleFunc("GET /api/notifications", handlers.Notifications.ListNotifications)
	api.HandleFunc("POST /api/notifications", handlers.Notifications.CreateNotification)
	api.HandleFunc("POST /api/notifications/{id}/read", handlers.Notifications.MarkRead)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}
	mux.Handle("/api/", middleware.Auth(users)(api))

	// Build the middleware chain.
	var h http.Handler = mux
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
