package investigator

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
	recentTimestamps []time.Time
	lastForService   *time.Time
	exists           bool
	inserted         []engine.AlertInvestigationRow
}

func (f *fakeStore) QueryJSON(ctx context.Context, sqlText string, maxRows int) ([]map[string]any, error) {
	return nil, nil
}
func (f *fakeStore) RecentInvestigationTimestamps(ctx context.Context, since time.Time) ([]time.Time, error) {
	return f.recentTimestamps, nil
}
func (f *fakeStore) LastInvestigationForService(ctx context.Context, serviceName string) (*time.Time, error) {
	return f.lastForService, nil
}
func (f *fakeStore) InvestigationExists(ctx context.Context, alertID string) (bool, error) {
	return f.exists, nil
}
func (f *fakeStore) InsertInvestigation(ctx context.Context, row engine.AlertInvestigationRow) bool {
	f.inserted = append(f.inserted, row)
	return true
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func baseLLMConfig() *config.LLMConfig {
	return &config.LLMConfig{
		Enabled:                             true,
		APIKey:                              "sk-ant-test",
		Model:                               "claude-sonnet-4-20250514",
		MaxInvestigationsPerHour:            5,
		InvestigationServiceCooldownMinutes: 30,
		MaxTokens:                           1024,
	}
}

func sampleAlert() engine.AlertRow {
	return engine.AlertRow{AlertID: "abc123", ServiceName: "checkout", AlertType: engine.AlertTypeErrorSpike, Severity: engine.SeverityCritical}
}

func TestCheckGates_AlreadyInvestigatedRejects(t *testing.T) {
	store := &fakeStore{exists: true}
	inv := New(store, baseLLMConfig(), testLogger())

	allowed, err := inv.checkGates(context.Background(), sampleAlert())
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestCheckGates_HourlyRateLimitRejects(t *testing.T) {
	timestamps := make([]time.Time, 5)
	for i := range timestamps {
		timestamps[i] = time.Now().UTC()
	}
	store := &fakeStore{recentTimestamps: timestamps}
	inv := New(store, baseLLMConfig(), testLogger())

	allowed, err := inv.checkGates(context.Background(), sampleAlert())
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestCheckGates_ServiceCooldownRejects(t *testing.T) {
	recent := time.Now().UTC().Add(-5 * time.Minute)
	store := &fakeStore{lastForService: &recent}
	inv := New(store, baseLLMConfig(), testLogger())

	allowed, err := inv.checkGates(context.Background(), sampleAlert())
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestCheckGates_NoObstructionsAllows(t *testing.T) {
	store := &fakeStore{}
	inv := New(store, baseLLMConfig(), testLogger())

	allowed, err := inv.checkGates(context.Background(), sampleAlert())
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestInvestigate_CriticalOnlySkipsWarning(t *testing.T) {
	store := &fakeStore{}
	cfg := baseLLMConfig()
	cfg.InvestigateCriticalOnly = true
	inv := New(store, cfg, testLogger())

	alert := sampleAlert()
	alert.Severity = engine.SeverityWarning
	inv.Investigate(context.Background(), alert)

	assert.Empty(t, store.inserted)
}

func TestInvestigate_DisabledIsNoop(t *testing.T) {
	store := &fakeStore{}
	cfg := baseLLMConfig()
	cfg.Enabled = false
	inv := New(store, cfg, testLogger())

	inv.Investigate(context.Background(), sampleAlert())
	assert.Empty(t, store.inserted)
}

func TestParseFinalAnswer_ExtractsAllThreeSections(t *testing.T) {
	text := "ROOT CAUSE: the database connection pool was exhausted.\n" +
		"EVIDENCE: error rate spiked to 30% while db_postgresql_error_rate rose in tandem.\n" +
		"RECOMMENDED ACTIONS: increase the connection pool size and add retry backoff."

	rootCause, evidence, actions := parseFinalAnswer(text)

	assert.Contains(t, rootCause, "connection pool was exhausted")
	assert.Contains(t, evidence, "error rate spiked")
	assert.Contains(t, actions, "increase the connection pool size")
}

func TestParseFinalAnswer_FallsBackToFirstSentence(t *testing.T) {
	text := "The service appears to be failing due to a downstream timeout. More details follow."

	rootCause, _, _ := parseFinalAnswer(text)

	assert.Equal(t, "The service appears to be failing due to a downstream timeout.", rootCause)
}

func TestIsSelectOnly(t *testing.T) {
	assert.True(t, isSelectOnly("SELECT * FROM spans"))
	assert.True(t, isSelectOnly("with x as (select 1) select * from x"))
	assert.False(t, isSelectOnly("DROP TABLE spans"))
	assert.False(t, isSelectOnly("INSERT INTO spans VALUES (1)"))
}

func TestFormatRows_EmptyIsBracketPair(t *testing.T) {
	assert.Equal(t, "[]", formatRows(nil))
}

func TestFormatRows_NonEmptyProducesJSONLikeOutput(t *testing.T) {
	rows := []map[string]any{{"service_name": "checkout", "count": 42}}
	out := formatRows(rows)
	assert.Contains(t, out, `"service_name"`)
	assert.Contains(t, out, "checkout")
}
