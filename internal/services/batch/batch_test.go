package batch

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telemetry-pipeline/internal/config"
	"telemetry-pipeline/internal/domain/telemetry"
)

type fakeSink struct {
	calls []telemetry.Batch
	err   error
}

func (f *fakeSink) AppendBatch(ctx context.Context, b telemetry.Batch) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, b)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuffer_SizeTriggerFires(t *testing.T) {
	sink := &fakeSink{}
	cfg := &config.BatchConfig{BatchSize: 2, BatchTimeoutSeconds: 5}
	buf := New(cfg, sink, testLogger())

	due := buf.Add(telemetry.Batch{Logs: []telemetry.LogRow{{}, {}}})
	assert.True(t, due)

	require.NoError(t, buf.Flush(context.Background()))
	require.Len(t, sink.calls, 1)
	assert.Len(t, sink.calls[0].Logs, 2)
}

func TestBuffer_BelowThresholdDoesNotTrigger(t *testing.T) {
	sink := &fakeSink{}
	cfg := &config.BatchConfig{BatchSize: 100, BatchTimeoutSeconds: 5}
	buf := New(cfg, sink, testLogger())

	due := buf.Add(telemetry.Batch{Logs: []telemetry.LogRow{{}}})
	assert.False(t, due)
	assert.False(t, buf.DueForTimeFlush())
}

func TestBuffer_TimeoutTriggerFires(t *testing.T) {
	sink := &fakeSink{}
	cfg := &config.BatchConfig{BatchSize: 1000, BatchTimeoutSeconds: 0}
	buf := New(cfg, sink, testLogger())

	buf.Add(telemetry.Batch{Logs: []telemetry.LogRow{{}}})
	time.Sleep(time.Millisecond)
	assert.True(t, buf.DueForTimeFlush())
}

func TestBuffer_FlushFailureRetainsRows(t *testing.T) {
	sink := &fakeSink{err: assert.AnError}
	cfg := &config.BatchConfig{BatchSize: 1000, BatchTimeoutSeconds: 5}
	buf := New(cfg, sink, testLogger())

	buf.Add(telemetry.Batch{Logs: []telemetry.LogRow{{}}})
	err := buf.Flush(context.Background())
	require.Error(t, err)

	assert.False(t, buf.oldest.IsZero()) // rows still pending, so the time trigger stays armed
	assert.Equal(t, 1, buf.rowCountLocked())
}

func TestBuffer_FlushEmptyIsNoop(t *testing.T) {
	sink := &fakeSink{}
	cfg := &config.BatchConfig{BatchSize: 10, BatchTimeoutSeconds: 5}
	buf := New(cfg, sink, testLogger())

	require.NoError(t, buf.Flush(context.Background()))
	assert.Empty(t, sink.calls)
}
