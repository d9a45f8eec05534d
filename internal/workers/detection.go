package workers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"telemetry-pipeline/internal/config"
	"telemetry-pipeline/internal/domain/engine"
	"telemetry-pipeline/internal/services/alertmanager"
	"telemetry-pipeline/internal/services/anomaly"
	"telemetry-pipeline/internal/services/baseline"
	"telemetry-pipeline/internal/services/investigator"
	"telemetry-pipeline/internal/services/threshold"
)

// DetectionStore is the subset of the store the detection loop itself
// needs beyond what its component services already narrow down to.
type DetectionStore interface {
	ActiveServices(ctx context.Context, windowHours int) ([]string, error)
}

// Detection runs C5-C9 on a fixed interval: baseline recomputation (when
// overdue), anomaly detection per active service, alert lifecycle
// management, and sequential investigation dispatch for new alerts
// (spec §5: "investigations run on the same loop to simplify rate-limit
// accounting").
type Detection struct {
	store DetectionStore
	cfg   *config.DetectionConfig

	computer     *baseline.Computer
	detector     *anomaly.Detector
	thresholdMgr *threshold.Manager
	alerts       *alertmanager.Manager
	investigator *investigator.Investigator

	logger *slog.Logger

	quit sync.Once
	stop chan struct{}
	wg   sync.WaitGroup

	lastBaselineRun time.Time
}

func NewDetection(
	store DetectionStore,
	cfg *config.DetectionConfig,
	computer *baseline.Computer,
	detector *anomaly.Detector,
	thresholdMgr *threshold.Manager,
	alerts *alertmanager.Manager,
	inv *investigator.Investigator,
	logger *slog.Logger,
) *Detection {
	return &Detection{
		store:        store,
		cfg:          cfg,
		computer:     computer,
		detector:     detector,
		thresholdMgr: thresholdMgr,
		alerts:       alerts,
		investigator: inv,
		logger:       logger,
		stop:         make(chan struct{}),
	}
}

// Start launches the detection loop in its own goroutine. The caller must
// have already called alerts.LoadActive to seed the dedup cache.
func (d *Detection) Start() {
	d.logger.Info("starting detection loop", "interval", d.cfg.DetectionInterval())
	d.wg.Add(1)
	go d.mainLoop()
}

// Stop signals the loop to exit and waits for the current tick to finish.
func (d *Detection) Stop() {
	d.quit.Do(func() { close(d.stop) })
	d.wg.Wait()
	d.logger.Info("detection loop stopped")
}

func (d *Detection) mainLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.cfg.DetectionInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.tick()
		case <-d.stop:
			return
		}
	}
}

func (d *Detection) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.DetectionInterval())
	defer cancel()

	baselineJustRecomputed := false
	if d.baselineOverdue() {
		if err := d.computer.Run(ctx); err != nil {
			d.logger.Error("baseline recomputation failed", "error", err)
		} else {
			d.lastBaselineRun = time.Now()
			baselineJustRecomputed = true
		}
	}

	services, err := d.store.ActiveServices(ctx, d.cfg.BaselineWindowHours)
	if err != nil {
		d.logger.Error("failed to list active services for detection", "error", err)
		return
	}

	var allFindings []anomaly.Finding
	for _, service := range services {
		findings := d.detector.Run(ctx, service)
		allFindings = append(allFindings, findings...)
	}

	newAlerts, seenKeys := d.alerts.ProcessFindings(ctx, allFindings)
	d.alerts.AutoResolve(ctx, seenKeys)

	for _, na := range newAlerts {
		d.investigator.Investigate(ctx, na.Alert)
	}

	if baselineJustRecomputed {
		d.learnFromPass(ctx, allFindings)
	}
}

func (d *Detection) baselineOverdue() bool {
	if d.lastBaselineRun.IsZero() {
		return true
	}
	return time.Since(d.lastBaselineRun) >= d.cfg.BaselineInterval()
}

var rootCauseCategories = map[engine.AlertType]bool{
	engine.CategoryDBSlowQueries:     true,
	engine.CategoryDBConnFailure:     true,
	engine.CategoryDependencyLatency: true,
	engine.CategoryDependencyFailure: true,
	engine.CategoryExceptionSurge:    true,
	engine.CategoryNewExceptionType:  true,
}

func (d *Detection) learnFromPass(ctx context.Context, findings []anomaly.Finding) {
	seen := map[threshold.CategoryMetricPair]bool{}
	var pairs []threshold.CategoryMetricPair
	for _, f := range findings {
		if !rootCauseCategories[f.AlertType] {
			continue
		}
		pair := threshold.CategoryMetricPair{AlertType: f.AlertType, MetricType: f.MetricType}
		if seen[pair] {
			continue
		}
		seen[pair] = true
		pairs = append(pairs, pair)
	}
	if len(pairs) == 0 {
		return
	}
	d.thresholdMgr.LearnFromHistory(ctx, pairs)
}
