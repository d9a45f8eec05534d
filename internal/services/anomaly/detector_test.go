package anomaly

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telemetry-pipeline/internal/config"
	"telemetry-pipeline/internal/domain/engine"
)

type fakeStore struct {
	baselines map[engine.MetricType]*engine.ServiceBaselineRow
	total     int64
	errors    int64
	p95       float64
	p95N      int64
	requests  int64
	hasSpans  bool
}

func (f *fakeStore) LatestBaseline(ctx context.Context, serviceName string, metricType engine.MetricType) (*engine.ServiceBaselineRow, error) {
	return f.baselines[metricType], nil
}
func (f *fakeStore) ErrorRateWindow(ctx context.Context, serviceName string, minutes int) (int64, int64, error) {
	return f.total, f.errors, nil
}
func (f *fakeStore) LatencyP95Window(ctx context.Context, serviceName string, minutes int) (float64, int64, error) {
	return f.p95, f.p95N, nil
}
func (f *fakeStore) ThroughputWindow(ctx context.Context, serviceName string, minutes int) (int64, error) {
	return f.requests, nil
}
func (f *fakeStore) HasRecentSpans(ctx context.Context, serviceName string, withinHours int) (bool, error) {
	return f.hasSpans, nil
}
func (f *fakeStore) DBSystemsForService(ctx context.Context, serviceName string, windowHours int) ([]string, error) {
	return nil, nil
}
func (f *fakeStore) DBLatencyErrorWindow(ctx context.Context, serviceName, dbSystem string, minutes int) (float64, float64, int64, error) {
	return 0, 0, 0, nil
}
func (f *fakeStore) DownstreamServices(ctx context.Context, serviceName string, windowHours int) ([]string, error) {
	return nil, nil
}
func (f *fakeStore) DependencyLatencyErrorWindow(ctx context.Context, serviceName, downstream string, minutes int) (float64, float64, int64, error) {
	return 0, 0, 0, nil
}
func (f *fakeStore) ExceptionCountWindow(ctx context.Context, serviceName string, minutes int) (int64, error) {
	return 0, nil
}
func (f *fakeStore) NewExceptionTypesWindow(ctx context.Context, serviceName string, minutes int, minOccurrences int) ([]string, error) {
	return nil, nil
}
func (f *fakeStore) InsertAnomalyScore(ctx context.Context, row engine.AnomalyScoreRow) bool {
	return true
}

type fakeThreshold struct{}

func (fakeThreshold) IsEnabled(engine.RootCauseCategory) bool        { return true }
func (fakeThreshold) EffectiveThreshold(engine.RootCauseCategory) float64 { return 3.0 }

type fakeKnown struct{ m map[string]bool }

func (f fakeKnown) KnownExceptionTypes(serviceName string) map[string]bool { return f.m }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCheckErrorRate_CriticalSpike(t *testing.T) {
	store := &fakeStore{
		baselines: map[engine.MetricType]*engine.ServiceBaselineRow{
			"error_rate": {BaselineMean: 0.01, BaselineStddev: 0.005},
		},
		total: 20, errors: 6,
	}
	cfg := &config.ThresholdConfig{ZScoreThreshold: 3.0, ErrorRateWarning: 0.05, ErrorRateCritical: 0.20}
	d := New(store, fakeThreshold{}, fakeKnown{}, cfg, testLogger())

	findings := d.Run(context.Background(), "checkout")
	require.NotEmpty(t, findings)

	var found *Finding
	for i := range findings {
		if findings[i].AlertType == engine.AlertTypeErrorSpike {
			found = &findings[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, engine.SeverityCritical, found.Severity)
	assert.InDelta(t, 58.0, found.ZScore, 0.01)
}

func TestCheckErrorRate_BelowMinSpansSkipped(t *testing.T) {
	store := &fakeStore{
		baselines: map[engine.MetricType]*engine.ServiceBaselineRow{
			"error_rate": {BaselineMean: 0.01, BaselineStddev: 0.005},
		},
		total: 3, errors: 3,
	}
	cfg := &config.ThresholdConfig{ZScoreThreshold: 3.0, ErrorRateWarning: 0.05, ErrorRateCritical: 0.20}
	d := New(store, fakeThreshold{}, fakeKnown{}, cfg, testLogger())

	findings := d.Run(context.Background(), "checkout")
	for _, f := range findings {
		assert.NotEqual(t, engine.AlertTypeErrorSpike, f.AlertType)
	}
}

func TestCheckThroughputDrop_CriticalDrop(t *testing.T) {
	store := &fakeStore{
		baselines: map[engine.MetricType]*engine.ServiceBaselineRow{
			"throughput": {BaselineMean: 1000, BaselineStddev: 50},
		},
		requests: 500, // 5-minute window -> 100/min
		total:    0, errors: 0,
	}
	cfg := &config.ThresholdConfig{ZScoreThreshold: 3.0}
	d := New(store, fakeThreshold{}, fakeKnown{}, cfg, testLogger())

	findings := d.Run(context.Background(), "checkout")
	var found *Finding
	for i := range findings {
		if findings[i].AlertType == engine.AlertTypeThroughputDrop {
			found = &findings[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, engine.SeverityCritical, found.Severity)
	assert.InDelta(t, -18.0, found.ZScore, 0.01)
}

func TestCheckServiceDown_NoRecentSpans(t *testing.T) {
	store := &fakeStore{hasSpans: false}
	cfg := &config.ThresholdConfig{ZScoreThreshold: 3.0}
	d := New(store, fakeThreshold{}, fakeKnown{}, cfg, testLogger())

	findings := d.Run(context.Background(), "emailservice")
	var found bool
	for _, f := range findings {
		if f.AlertType == engine.AlertTypeServiceDown {
			found = true
			assert.Equal(t, engine.SeverityCritical, f.Severity)
		}
	}
	assert.True(t, found)
}

func TestCheckServiceDown_RecentSpansNoAlert(t *testing.T) {
	store := &fakeStore{hasSpans: true}
	cfg := &config.ThresholdConfig{ZScoreThreshold: 3.0}
	d := New(store, fakeThreshold{}, fakeKnown{}, cfg, testLogger())

	findings := d.Run(context.Background(), "checkout")
	for _, f := range findings {
		assert.NotEqual(t, engine.AlertTypeServiceDown, f.AlertType)
	}
}

func TestAnomalyScore_ClampedAtOne(t *testing.T) {
	assert.Equal(t, 1.0, anomalyScore(58))
	assert.InDelta(t, 0.6, anomalyScore(3), 0.0001)
}

func TestZScore_ZeroStddevGuarded(t *testing.T) {
	_, ok := zScore(1.0, 0.5, 0)
	assert.False(t, ok)
}
