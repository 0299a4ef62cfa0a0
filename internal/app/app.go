// Package app owns the application lifecycle: it wires the dependency graph
// from configuration, runs scan cycles in the configured mode, and tears
// everything down in reverse order on shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/halcyonlabs/oraclebridge/internal/config"
)

// App is the root application object.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires the dependencies and runs cycles until the context is cancelled
// (mode "loop") or a single cycle completes (mode "once").
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting oracle bridge",
		slog.String("mode", a.cfg.Mode),
		slog.String("network", a.cfg.Provider.Network),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	a.logger.InfoContext(ctx, "wallet ready", slog.String("address", deps.Wallet.Address()))

	switch strings.ToLower(a.cfg.Mode) {
	case "once":
		return a.runOnce(ctx, deps)
	case "loop":
		return a.runLoop(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close tears down all resources in reverse registration order. Safe to call
// more than once.
func (a *App) Close() {
	a.logger.Info("shutting down")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
