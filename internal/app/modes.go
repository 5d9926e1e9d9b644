package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/predictd/internal/resolver"
	"github.com/alanyoungcy/predictd/internal/server"
	"github.com/alanyoungcy/predictd/internal/server/handler"
	"github.com/alanyoungcy/predictd/internal/server/ws"
	"github.com/alanyoungcy/predictd/internal/service"
)

const shutdownTimeout = 15 * time.Second

// runServe runs the HTTP API and websocket gateway.
func (a *App) runServe(ctx context.Context, deps *Dependencies) error {
	g, gctx := errgroup.WithContext(ctx)
	a.startServe(gctx, g, deps)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("app: serve: %w", err)
	}
	return nil
}

// runResolve runs the resolution driver, and the archiver when enabled.
func (a *App) runResolve(ctx context.Context, deps *Dependencies) error {
	g, gctx := errgroup.WithContext(ctx)
	a.startResolve(gctx, g, deps)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("app: resolve: %w", err)
	}
	return nil
}

// runFull runs the API server and the resolution driver in one process.
func (a *App) runFull(ctx context.Context, deps *Dependencies) error {
	g, gctx := errgroup.WithContext(ctx)
	a.startServe(gctx, g, deps)
	a.startResolve(gctx, g, deps)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("app: full: %w", err)
	}
	return nil
}

// startServe constructs the services, handlers, and websocket hub and launches
// the HTTP server on the group. The server shuts down gracefully when the
// group context is cancelled.
func (a *App) startServe(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	roundSvc := service.NewRoundService(
		deps.RoundStore,
		deps.TaskStore,
		deps.RoundCache,
		deps.SignalBus,
		a.cfg.Game.ResolveAfter(),
		a.logger,
	)
	taskSvc := service.NewTaskService(deps.TaskStore, a.logger)
	notificationSvc := service.NewNotificationService(deps.NotificationStore, deps.SignalBus, a.logger)

	hub := ws.NewHub(deps.SignalBus, roundSvc, deps.UserStore, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
		},
		server.Handlers{
			Health:        handler.NewHealthHandler(a.logger),
			Rounds:        handler.NewRoundHandler(roundSvc, a.logger),
			Tasks:         handler.NewTaskHandler(taskSvc, a.logger),
			Notifications: handler.NewNotificationHandler(notificationSvc, a.logger),
		},
		hub,
		deps.UserStore,
		a.logger,
	)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "http server listening", slog.Int("port", a.cfg.Server.Port))
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// startResolve launches the resolution driver on the group, plus the archiver
// when retention archiving is enabled.
func (a *App) startResolve(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	r := resolver.New(
		resolver.Config{
			PollInterval: a.cfg.Resolver.PollInterval.Duration,
			AssetID:      a.cfg.Resolver.AssetID,
			LockTTL:      a.cfg.Resolver.LockTTL.Duration,
		},
		deps.TaskStore,
		deps.RoundResolver,
		deps.PriceFeed,
		deps.RoundCache,
		deps.SignalBus,
		deps.LockManager,
		deps.Notifier,
		clockwork.NewRealClock(),
		a.logger,
	)
	g.Go(func() error {
		return r.Run(ctx)
	})

	if deps.Archiver != nil {
		interval := a.cfg.Archive.Interval.Duration
		g.Go(func() error {
			return deps.Archiver.Run(ctx, interval)
		})
	}
}
