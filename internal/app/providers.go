// Package app wires the pipeline's components into one process: the
// analytic store and message bus, the five detection-engine services
// (C5-C9), and the two long-running workers (ingest, detection).
package app

import (
	"context"
	"log/slog"

	"telemetry-pipeline/internal/bus"
	"telemetry-pipeline/internal/config"
	"telemetry-pipeline/internal/services/alertmanager"
	"telemetry-pipeline/internal/services/anomaly"
	"telemetry-pipeline/internal/services/baseline"
	"telemetry-pipeline/internal/services/batch"
	"telemetry-pipeline/internal/services/decode"
	"telemetry-pipeline/internal/services/investigator"
	"telemetry-pipeline/internal/services/threshold"
	"telemetry-pipeline/internal/store"
	"telemetry-pipeline/internal/workers"
)

// CoreContainer holds the two infrastructure connections everything else
// is built from.
type CoreContainer struct {
	Config *config.Config
	Logger *slog.Logger
	Store  *store.Store
	Bus    *bus.Bus
}

// ServiceContainer holds C1/C2 and C5-C9, wired against the store.
type ServiceContainer struct {
	Decoder      *decode.Decoder
	Buffer       *batch.Buffer
	Computer     *baseline.Computer
	ThresholdMgr *threshold.Manager
	Detector     *anomaly.Detector
	Alerts       *alertmanager.Manager
	Investigator *investigator.Investigator
}

// WorkerContainer holds the two cooperative loops.
type WorkerContainer struct {
	Ingest    *workers.Ingest
	Detection *workers.Detection
}

// ProviderContainer is the root of the dependency graph.
type ProviderContainer struct {
	Core     *CoreContainer
	Services *ServiceContainer
	Workers  *WorkerContainer
}

// ProvideCore opens the store and bus connections.
func ProvideCore(cfg *config.Config, logger *slog.Logger) (*CoreContainer, error) {
	analyticStore, err := store.New(&cfg.Store, logger)
	if err != nil {
		return nil, err
	}

	messageBus, err := bus.New(&cfg.Bus, logger)
	if err != nil {
		return nil, err
	}

	return &CoreContainer{
		Config: cfg,
		Logger: logger,
		Store:  analyticStore,
		Bus:    messageBus,
	}, nil
}

// ProvideServices builds C1/C2 and C5-C9 against the core connections.
func ProvideServices(core *CoreContainer) *ServiceContainer {
	cfg := core.Config
	logger := core.Logger
	s := core.Store

	decoder := decode.New(logger)
	buffer := batch.New(&cfg.Batch, s, logger)
	computer := baseline.New(s, &cfg.Detection, &cfg.Threshold, logger)
	thresholdMgr := threshold.New(&cfg.RootCause, &cfg.Threshold, s, logger)
	detector := anomaly.New(s, thresholdMgr, computer, &cfg.Threshold, logger)
	alerts := alertmanager.New(s, cfg.Threshold.CooldownDuration(), logger)
	inv := investigator.New(s, &cfg.LLM, logger)

	return &ServiceContainer{
		Decoder:      decoder,
		Buffer:       buffer,
		Computer:     computer,
		ThresholdMgr: thresholdMgr,
		Detector:     detector,
		Alerts:       alerts,
		Investigator: inv,
	}
}

// ProvideWorkers builds the ingest and detection loops from the service
// container. The detection worker's dedup cache must be seeded by the
// caller (alerts.LoadActive) before Start is called.
func ProvideWorkers(core *CoreContainer, services *ServiceContainer) *WorkerContainer {
	ingest := workers.NewIngest(core.Bus, &core.Config.Bus, services.Decoder, services.Buffer, core.Logger)

	detection := workers.NewDetection(
		core.Store,
		&core.Config.Detection,
		services.Computer,
		services.Detector,
		services.ThresholdMgr,
		services.Alerts,
		services.Investigator,
		core.Logger,
	)

	return &WorkerContainer{
		Ingest:    ingest,
		Detection: detection,
	}
}

// HealthCheck reports the health of the store and bus connections.
func (pc *ProviderContainer) HealthCheck(ctx context.Context) map[string]string {
	health := make(map[string]string)

	if pc.Core == nil {
		health["status"] = "providers not initialized"
		return health
	}

	if err := pc.Core.Store.Health(ctx); err != nil {
		health["store"] = "unhealthy: " + err.Error()
	} else {
		health["store"] = "healthy"
	}

	if err := pc.Core.Bus.Health(ctx); err != nil {
		health["bus"] = "unhealthy: " + err.Error()
	} else {
		health["bus"] = "healthy"
	}

	return health
}

// Shutdown closes the store and bus connections. Workers must already be
// stopped by the caller.
func (pc *ProviderContainer) Shutdown() error {
	var lastErr error
	logger := pc.Core.Logger

	if err := pc.Core.Bus.Close(); err != nil {
		logger.Error("failed to close bus connection", "error", err)
		lastErr = err
	}

	if err := pc.Core.Store.Close(); err != nil {
		logger.Error("failed to close store connection", "error", err)
		lastErr = err
	}

	return lastErr
}
