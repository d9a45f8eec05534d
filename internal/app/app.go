package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"telemetry-pipeline/internal/config"
	"telemetry-pipeline/pkg/logging"
)

const bootstrapTimeout = 30 * time.Second

// App is the pipeline process: one ingest loop and one detection loop
// sharing a store connection and a bus connection.
type App struct {
	config       *config.Config
	logger       *slog.Logger
	providers    *ProviderContainer
	shutdownOnce sync.Once
}

// New wires the full dependency graph and bootstraps the analytic store's
// schema, but does not start the workers.
func New(cfg *config.Config) (*App, error) {
	logger := logging.NewLoggerWithFormat(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	)

	core, err := ProvideCore(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize core: %w", err)
	}

	bootstrapCtx, cancel := context.WithTimeout(context.Background(), bootstrapTimeout)
	defer cancel()
	if err := core.Store.Bootstrap(bootstrapCtx); err != nil {
		return nil, fmt.Errorf("failed to bootstrap analytic store schema: %w", err)
	}

	if err := core.Bus.EnsureGroups(bootstrapCtx); err != nil {
		return nil, fmt.Errorf("failed to ensure bus consumer groups: %w", err)
	}

	services := ProvideServices(core)

	if err := services.Alerts.LoadActive(bootstrapCtx); err != nil {
		return nil, fmt.Errorf("failed to load active alerts: %w", err)
	}

	workers := ProvideWorkers(core, services)

	return &App{
		config: cfg,
		logger: logger,
		providers: &ProviderContainer{
			Core:     core,
			Services: services,
			Workers:  workers,
		},
	}, nil
}

// Start launches the ingest and detection loops concurrently. Both
// Start methods are non-blocking (they spawn their own goroutine), so
// errgroup here is just the teacher's idiom for a uniform launch/error
// path rather than anything that actually blocks.
func (a *App) Start() error {
	a.logger.Info("starting telemetry pipeline")

	var g errgroup.Group

	g.Go(func() error {
		a.providers.Workers.Ingest.Start()
		return nil
	})

	g.Go(func() error {
		a.providers.Workers.Detection.Start()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	a.logger.Info("telemetry pipeline started")
	return nil
}

// Shutdown stops both workers (draining their current iteration) and
// closes the store and bus connections. Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.shutdownOnce.Do(func() {
		shutdownErr = a.doShutdown(ctx)
	})
	return shutdownErr
}

func (a *App) doShutdown(ctx context.Context) error {
	a.logger.Info("shutting down telemetry pipeline")

	var g errgroup.Group

	g.Go(func() error {
		a.providers.Workers.Ingest.Stop()
		return nil
	})

	g.Go(func() error {
		a.providers.Workers.Detection.Stop()
		return nil
	})

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			a.logger.Error("error while stopping workers", "error", err)
		}
	case <-ctx.Done():
		a.logger.Warn("shutdown timeout exceeded while waiting for workers to stop")
	}

	if err := a.providers.Shutdown(); err != nil {
		a.logger.Error("failed to shut down providers", "error", err)
		return err
	}

	a.logger.Info("telemetry pipeline shutdown complete")
	return nil
}

// Health reports the health of the pipeline's dependencies.
func (a *App) Health(ctx context.Context) map[string]string {
	if a.providers == nil {
		return map[string]string{"status": "providers not initialized"}
	}
	return a.providers.HealthCheck(ctx)
}

// GetConfig returns the application configuration.
func (a *App) GetConfig() *config.Config {
	return a.config
}

// GetLogger returns the application logger.
func (a *App) GetLogger() *slog.Logger {
	return a.logger
}
