package alertmanager

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telemetry-pipeline/internal/domain/engine"
	"telemetry-pipeline/internal/services/anomaly"
)

type fakeStore struct {
	active         []engine.AlertRow
	lastResolved   map[engine.DedupKey]*time.Time
	inserted       []engine.AlertRow
	updated        []engine.AlertRow
	insertErr      bool
	updateErr      bool
}

func (f *fakeStore) ActiveAlerts(ctx context.Context) ([]engine.AlertRow, error) {
	return f.active, nil
}

func (f *fakeStore) LastResolvedOrArchived(ctx context.Context, key engine.DedupKey) (*time.Time, error) {
	if f.lastResolved == nil {
		return nil, nil
	}
	return f.lastResolved[key], nil
}

func (f *fakeStore) InsertAlert(ctx context.Context, row engine.AlertRow) bool {
	if f.insertErr {
		return false
	}
	f.inserted = append(f.inserted, row)
	return true
}

func (f *fakeStore) UpdateAlert(ctx context.Context, row engine.AlertRow) bool {
	if f.updateErr {
		return false
	}
	f.updated = append(f.updated, row)
	return true
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleFinding() anomaly.Finding {
	return anomaly.Finding{
		ServiceName:    "checkout",
		AlertType:      engine.AlertTypeErrorSpike,
		MetricType:     "error_rate",
		Severity:       engine.SeverityCritical,
		CurrentValue:   0.3,
		ExpectedValue:  0.01,
		ThresholdValue: 3.0,
		ZScore:         58,
	}
}

func TestProcessFindings_CreatesNewAlert(t *testing.T) {
	store := &fakeStore{}
	m := New(store, time.Hour, testLogger())
	require.NoError(t, m.LoadActive(context.Background()))

	newAlerts, seen := m.ProcessFindings(context.Background(), []anomaly.Finding{sampleFinding()})

	require.Len(t, newAlerts, 1)
	assert.Equal(t, "checkout", newAlerts[0].Alert.ServiceName)
	assert.Len(t, store.inserted, 1)
	assert.True(t, seen[engine.DedupKey{ServiceName: "checkout", AlertType: engine.AlertTypeErrorSpike, MetricType: "error_rate"}])
}

func TestProcessFindings_DedupUpdatesExistingActive(t *testing.T) {
	existing := engine.AlertRow{
		AlertID: "abc123", ServiceName: "checkout", AlertType: engine.AlertTypeErrorSpike,
		MetricType: "error_rate", Status: engine.AlertStatusActive, Severity: engine.SeverityWarning,
	}
	store := &fakeStore{active: []engine.AlertRow{existing}}
	m := New(store, time.Hour, testLogger())
	require.NoError(t, m.LoadActive(context.Background()))

	finding := sampleFinding()
	newAlerts, _ := m.ProcessFindings(context.Background(), []anomaly.Finding{finding})

	assert.Empty(t, newAlerts, "dedup should update, not create")
	require.Len(t, store.updated, 1)
	assert.Equal(t, "abc123", store.updated[0].AlertID)
	assert.Equal(t, engine.SeverityCritical, store.updated[0].Severity)
}

func TestProcessFindings_CooldownSuppressesNewAlert(t *testing.T) {
	key := engine.DedupKey{ServiceName: "checkout", AlertType: engine.AlertTypeErrorSpike, MetricType: "error_rate"}
	recent := time.Now().UTC().Add(-1 * time.Minute)
	store := &fakeStore{lastResolved: map[engine.DedupKey]*time.Time{key: &recent}}
	m := New(store, time.Hour, testLogger())
	require.NoError(t, m.LoadActive(context.Background()))

	newAlerts, _ := m.ProcessFindings(context.Background(), []anomaly.Finding{sampleFinding()})

	assert.Empty(t, newAlerts)
	assert.Empty(t, store.inserted)
}

func TestProcessFindings_CooldownExpiredAllowsNewAlert(t *testing.T) {
	key := engine.DedupKey{ServiceName: "checkout", AlertType: engine.AlertTypeErrorSpike, MetricType: "error_rate"}
	old := time.Now().UTC().Add(-2 * time.Hour)
	store := &fakeStore{lastResolved: map[engine.DedupKey]*time.Time{key: &old}}
	m := New(store, time.Hour, testLogger())
	require.NoError(t, m.LoadActive(context.Background()))

	newAlerts, _ := m.ProcessFindings(context.Background(), []anomaly.Finding{sampleFinding()})

	assert.Len(t, newAlerts, 1)
}

func TestAutoResolve_ResolvesUnseenActiveAlerts(t *testing.T) {
	existing := engine.AlertRow{
		AlertID: "abc123", ServiceName: "checkout", AlertType: engine.AlertTypeErrorSpike,
		MetricType: "error_rate", Status: engine.AlertStatusActive,
	}
	store := &fakeStore{active: []engine.AlertRow{existing}}
	m := New(store, time.Hour, testLogger())
	require.NoError(t, m.LoadActive(context.Background()))

	m.AutoResolve(context.Background(), map[engine.DedupKey]bool{})

	require.Len(t, store.updated, 1)
	assert.Equal(t, engine.AlertStatusResolved, store.updated[0].Status)
	assert.True(t, store.updated[0].AutoResolved)
	assert.NotNil(t, store.updated[0].ResolvedAt)
}

func TestAutoResolve_LeavesSeenAlertsActive(t *testing.T) {
	key := engine.DedupKey{ServiceName: "checkout", AlertType: engine.AlertTypeErrorSpike, MetricType: "error_rate"}
	existing := engine.AlertRow{
		AlertID: "abc123", ServiceName: "checkout", AlertType: engine.AlertTypeErrorSpike,
		MetricType: "error_rate", Status: engine.AlertStatusActive,
	}
	store := &fakeStore{active: []engine.AlertRow{existing}}
	m := New(store, time.Hour, testLogger())
	require.NoError(t, m.LoadActive(context.Background()))

	m.AutoResolve(context.Background(), map[engine.DedupKey]bool{key: true})

	assert.Empty(t, store.updated)
}

func TestAcknowledge_TransitionsAndRemovesFromActive(t *testing.T) {
	existing := engine.AlertRow{
		AlertID: "abc123", ServiceName: "checkout", AlertType: engine.AlertTypeErrorSpike,
		MetricType: "error_rate", Status: engine.AlertStatusActive,
	}
	store := &fakeStore{active: []engine.AlertRow{existing}}
	m := New(store, time.Hour, testLogger())
	require.NoError(t, m.LoadActive(context.Background()))

	ok := m.Acknowledge(context.Background(), "abc123")
	assert.True(t, ok)
	require.Len(t, store.updated, 1)
	assert.Equal(t, engine.AlertStatusAcknowledged, store.updated[0].Status)
	assert.NotContains(t, m.active, dedupKeyOf(existing))

	ok = m.Resolve(context.Background(), "nonexistent")
	assert.False(t, ok)
}

func TestProcessFindings_InsertFailureReturnsNoNewAlert(t *testing.T) {
	store := &fakeStore{insertErr: true}
	m := New(store, time.Hour, testLogger())
	require.NoError(t, m.LoadActive(context.Background()))

	newAlerts, seen := m.ProcessFindings(context.Background(), []anomaly.Finding{sampleFinding()})

	assert.Empty(t, newAlerts)
	assert.True(t, seen[engine.DedupKey{ServiceName: "checkout", AlertType: engine.AlertTypeErrorSpike, MetricType: "error_rate"}])
}
