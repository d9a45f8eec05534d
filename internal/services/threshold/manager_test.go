package threshold

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telemetry-pipeline/internal/config"
	"telemetry-pipeline/internal/domain/engine"
)

type fakeStore struct {
	history      []engine.AlertRow
	hasRootCause map[string]bool
}

func (f *fakeStore) AlertHistorySince(ctx context.Context, alertType engine.AlertType, metricType engine.MetricType, since time.Time) ([]engine.AlertRow, error) {
	return f.history, nil
}

func (f *fakeStore) InvestigationHasRootCause(ctx context.Context, alertID string) (bool, error) {
	return f.hasRootCause[alertID], nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEffectiveThreshold_AppliesMultiplier(t *testing.T) {
	cfg := &config.RootCauseConfig{Enabled: true, ThresholdMultipliers: "db_connection_failure:0.8"}
	thresh := &config.ThresholdConfig{ZScoreThreshold: 3.0}
	m := New(cfg, thresh, &fakeStore{}, testLogger())

	got := m.EffectiveThreshold(engine.AlertTypeDBConnFailure)
	assert.InDelta(t, 2.4, got, 0.001)
}

func TestEffectiveThreshold_FlooredAtOne(t *testing.T) {
	cfg := &config.RootCauseConfig{Enabled: true, ThresholdMultipliers: "db_connection_failure:0.1"}
	thresh := &config.ThresholdConfig{ZScoreThreshold: 3.0}
	m := New(cfg, thresh, &fakeStore{}, testLogger())

	got := m.EffectiveThreshold(engine.AlertTypeDBConnFailure)
	assert.Equal(t, 1.0, got)
}

func TestIsEnabled_EmptySetMeansAllEnabled(t *testing.T) {
	cfg := &config.RootCauseConfig{Enabled: true, Types: ""}
	m := New(cfg, &config.ThresholdConfig{ZScoreThreshold: 3.0}, &fakeStore{}, testLogger())
	assert.True(t, m.IsEnabled(engine.AlertTypeDBSlowQueries))
}

func TestIsEnabled_RestrictsToConfiguredSet(t *testing.T) {
	cfg := &config.RootCauseConfig{Enabled: true, Types: "db_slow_queries"}
	m := New(cfg, &config.ThresholdConfig{ZScoreThreshold: 3.0}, &fakeStore{}, testLogger())
	assert.True(t, m.IsEnabled(engine.AlertTypeDBSlowQueries))
	assert.False(t, m.IsEnabled(engine.AlertTypeDependencyFailure))
}

func TestLearnFromHistory_HighAutoResolveRateIncreasesDelta(t *testing.T) {
	history := make([]engine.AlertRow, 10)
	for i := range history {
		history[i] = engine.AlertRow{AlertID: "a", AutoResolved: i < 9}
	}
	store := &fakeStore{history: history}
	cfg := &config.RootCauseConfig{Enabled: true, AdaptiveThresholdsEnabled: true, AdaptiveThresholdAdjustment: 0.1}
	m := New(cfg, &config.ThresholdConfig{ZScoreThreshold: 3.0}, store, testLogger())

	m.LearnFromHistory(context.Background(), []CategoryMetricPair{
		{AlertType: engine.AlertTypeDBConnFailure, MetricType: "db_postgresql_error_rate"},
	})

	assert.InDelta(t, 0.1, m.LearnedDelta(engine.AlertTypeDBConnFailure), 0.0001)
}

func TestLearnFromHistory_LowAutoResolveWithInvestigationsDecreasesDelta(t *testing.T) {
	history := make([]engine.AlertRow, 10)
	for i := range history {
		history[i] = engine.AlertRow{AlertID: "alert-" + string(rune('a'+i)), AutoResolved: i < 2}
	}
	hasRoot := map[string]bool{}
	for i := 0; i < 5; i++ {
		hasRoot["alert-"+string(rune('a'+i))] = true
	}
	store := &fakeStore{history: history, hasRootCause: hasRoot}
	cfg := &config.RootCauseConfig{Enabled: true, AdaptiveThresholdsEnabled: true, AdaptiveThresholdAdjustment: 0.1}
	m := New(cfg, &config.ThresholdConfig{ZScoreThreshold: 3.0}, store, testLogger())

	m.LearnFromHistory(context.Background(), []CategoryMetricPair{
		{AlertType: engine.AlertTypeDBConnFailure, MetricType: "db_postgresql_error_rate"},
	})

	require.InDelta(t, -0.05, m.LearnedDelta(engine.AlertTypeDBConnFailure), 0.0001)
}

func TestLearnFromHistory_BelowMinimumAlertsSkipsLearning(t *testing.T) {
	store := &fakeStore{history: []engine.AlertRow{{AlertID: "a", AutoResolved: true}}}
	cfg := &config.RootCauseConfig{Enabled: true, AdaptiveThresholdsEnabled: true, AdaptiveThresholdAdjustment: 0.1}
	m := New(cfg, &config.ThresholdConfig{ZScoreThreshold: 3.0}, store, testLogger())

	m.LearnFromHistory(context.Background(), []CategoryMetricPair{
		{AlertType: engine.AlertTypeDBConnFailure, MetricType: "db_postgresql_error_rate"},
	})

	assert.Equal(t, 0.0, m.LearnedDelta(engine.AlertTypeDBConnFailure))
}
