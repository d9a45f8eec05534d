// Package threshold implements C7, the adaptive threshold manager: a base
// Z-score threshold adjusted per root-cause category by a configured
// multiplier and a learned delta derived from recent alert-resolution
// history.
package threshold

import (
	"context"
	"log/slog"
	"math"
	"time"

	"telemetry-pipeline/internal/config"
	"telemetry-pipeline/internal/domain/engine"
)

const (
	minAlertsForLearning = 5
	highAutoResolveRate  = 0.7
	lowAutoResolveRate   = 0.3
	rootCauseSummaryRate = 0.3
	learningWindow       = 7 * 24 * time.Hour
)

// Store is the alert-history read the manager needs to learn from.
type Store interface {
	AlertHistorySince(ctx context.Context, alertType engine.AlertType, metricType engine.MetricType, since time.Time) ([]engine.AlertRow, error)
	InvestigationHasRootCause(ctx context.Context, alertID string) (bool, error)
}

// CategoryMetricPair is one (alert_type, metric_type) pair whose alert
// history LearnFromHistory reads. Dependency/db metric names are dynamic
// per resource, so the detection loop supplies the concrete pairs it has
// just seen findings for; the learned delta is stored per alert_type.
type CategoryMetricPair struct {
	AlertType  engine.AlertType
	MetricType engine.MetricType
}

// Manager computes the effective Z-score threshold for a root-cause
// category and gates which categories are allowed to alert at all.
type Manager struct {
	cfg    *config.RootCauseConfig
	thresh *config.ThresholdConfig
	store  Store
	logger *slog.Logger

	learnedDelta map[engine.AlertType]float64
}

func New(cfg *config.RootCauseConfig, thresh *config.ThresholdConfig, store Store, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:          cfg,
		thresh:       thresh,
		store:        store,
		logger:       logger,
		learnedDelta: make(map[engine.AlertType]float64),
	}
}

// IsEnabled reports whether category is allowed to alert at all. An empty
// configured set means every category is enabled.
func (m *Manager) IsEnabled(category engine.RootCauseCategory) bool {
	if !m.cfg.Enabled {
		return false
	}
	enabled := m.cfg.EnabledSet()
	if len(enabled) == 0 {
		return true
	}
	return enabled[string(category)]
}

// EffectiveThreshold returns the Z-score threshold for category: the base
// threshold times the category's configured multiplier (default 1.0), plus
// the learned delta, floored at 1.0.
func (m *Manager) EffectiveThreshold(category engine.RootCauseCategory) float64 {
	base := m.thresh.ZScoreThreshold
	mult, ok := m.cfg.Multipliers()[string(category)]
	if !ok {
		mult = 1.0
	}
	effective := base*mult + m.learnedDelta[category]
	if effective < 1.0 {
		effective = 1.0
	}
	return effective
}

// LearnFromHistory re-aggregates the last 7 days of alerts for each
// (alert_type, metric_type) pair supplied by the caller and updates the
// learned delta for categories with enough history (spec §4.7).
//
// pairs is supplied by the caller (typically the set of category/metric
// combinations the detector has raised anomalies for recently) since the
// store has no efficient "distinct categories" query across dynamic
// per-service metric names.
func (m *Manager) LearnFromHistory(ctx context.Context, pairs []CategoryMetricPair) {
	if !m.cfg.AdaptiveThresholdsEnabled {
		return
	}
	since := time.Now().UTC().Add(-learningWindow)

	for _, pair := range pairs {
		history, err := m.store.AlertHistorySince(ctx, pair.AlertType, pair.MetricType, since)
		if err != nil {
			m.logger.Error("alert history read failed", "alert_type", pair.AlertType, "error", err)
			continue
		}
		if len(history) < minAlertsForLearning {
			continue
		}
		m.applyLearning(ctx, pair.AlertType, history)
	}
}

func (m *Manager) applyLearning(ctx context.Context, alertType engine.AlertType, history []engine.AlertRow) {
	autoResolved := 0
	withInvestigation := 0
	for _, a := range history {
		if a.AutoResolved {
			autoResolved++
		}
		has, err := m.store.InvestigationHasRootCause(ctx, a.AlertID)
		if err == nil && has {
			withInvestigation++
		}
	}
	autoResolveRate := float64(autoResolved) / float64(len(history))
	investigationRate := float64(withInvestigation) / float64(len(history))

	adjustment := m.cfg.AdaptiveThresholdAdjustment
	delta := m.learnedDelta[alertType]

	switch {
	case autoResolveRate > highAutoResolveRate:
		delta += adjustment
	case autoResolveRate < lowAutoResolveRate && investigationRate > rootCauseSummaryRate:
		delta -= 0.5 * adjustment
	}

	delta = math.Max(-1.0, math.Min(1.0, delta))
	m.learnedDelta[alertType] = delta
}

// LearnedDelta exposes the current learned delta for a category, for tests
// and diagnostics.
func (m *Manager) LearnedDelta(category engine.AlertType) float64 {
	return m.learnedDelta[category]
}
