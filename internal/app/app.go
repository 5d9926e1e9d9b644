// Package app wires configuration, stores, and services into runnable
// application modes.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/predictd/internal/config"
	"github.com/alanyoungcy/predictd/internal/notify"
)

// App is the top-level application. It owns dependency wiring and dispatches
// to the mode selected by configuration.
type App struct {
	cfg    *config.Config
	logger *slog.Logger
}

// New creates an App from validated configuration.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{cfg: cfg, logger: logger}
}

// Run wires dependencies and runs the configured mode until the context is
// cancelled. It blocks for the lifetime of the application.
func (a *App) Run(ctx context.Context) error {
	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	defer cleanup()

	a.logger.InfoContext(ctx, "starting",
		slog.String("mode", a.cfg.Mode),
		slog.Bool("archive", a.cfg.Archive.Enabled),
	)

	if err := deps.Notifier.Notify(ctx, notify.EventStartup, "predictd started",
		fmt.Sprintf("mode=%s", a.cfg.Mode)); err != nil {
		a.logger.WarnContext(ctx, "startup notification failed", slog.String("error", err.Error()))
	}

	switch a.cfg.Mode {
	case config.ModeServe:
		return a.runServe(ctx, deps)
	case config.ModeResolve:
		return a.runResolve(ctx, deps)
	case config.ModeFull:
		return a.runFull(ctx, deps)
	default:
		return fmt.Errorf("app: unknown mode %q", a.cfg.Mode)
	}
}
