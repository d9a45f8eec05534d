// Package batch implements C2, the batch buffer: per-table in-memory row
// accumulators that flush to the store on a size or time trigger, whichever
// comes first. Flush reports success or failure, so the caller, which keeps
// its own pending bus offsets, acknowledges them only once the flush to the
// store has actually succeeded (spec §4.2, at-least-once delivery).
package batch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"telemetry-pipeline/internal/config"
	"telemetry-pipeline/internal/domain/telemetry"
)

// Sink persists a flushed batch. The store's AppendBatch satisfies this.
type Sink interface {
	AppendBatch(ctx context.Context, b telemetry.Batch) error
}

// Buffer accumulates decoded rows across table types and flushes them as one
// telemetry.Batch once BatchSize rows have accumulated in any single table
// or BatchTimeout has elapsed since the oldest unflushed row, whichever
// happens first.
type Buffer struct {
	mu     sync.Mutex
	pend   telemetry.Batch
	oldest time.Time

	sink   Sink
	logger *slog.Logger

	batchSize int
	timeout   time.Duration
}

// New constructs a Buffer against cfg's size/timeout trigger thresholds.
func New(cfg *config.BatchConfig, sink Sink, logger *slog.Logger) *Buffer {
	return &Buffer{
		sink:      sink,
		logger:    logger,
		batchSize: cfg.BatchSize,
		timeout:   cfg.Timeout(),
	}
}

// Add appends a decoded batch's rows to the buffer. It returns true if a
// size-trigger flush is now due (the caller should call Flush).
func (b *Buffer) Add(rows telemetry.Batch) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.oldest.IsZero() && b.rowCountLocked() == 0 && totalRows(rows) > 0 {
		b.oldest = time.Now()
	}

	b.pend.Logs = append(b.pend.Logs, rows.Logs...)
	b.pend.Metrics = append(b.pend.Metrics, rows.Metrics...)
	b.pend.Spans = append(b.pend.Spans, rows.Spans...)
	b.pend.SpanEvents = append(b.pend.SpanEvents, rows.SpanEvents...)
	b.pend.SpanLinks = append(b.pend.SpanLinks, rows.SpanLinks...)

	return b.sizeTriggerLocked()
}

// DueForTimeFlush reports whether the oldest unflushed row has been pending
// at least as long as the configured batch timeout.
func (b *Buffer) DueForTimeFlush() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.oldest.IsZero() {
		return false
	}
	return time.Since(b.oldest) >= b.timeout
}

func (b *Buffer) sizeTriggerLocked() bool {
	for _, n := range b.tableCountsLocked() {
		if n >= b.batchSize {
			return true
		}
	}
	return false
}

func (b *Buffer) tableCountsLocked() []int {
	return []int{len(b.pend.Logs), len(b.pend.Metrics), len(b.pend.Spans), len(b.pend.SpanEvents), len(b.pend.SpanLinks)}
}

func (b *Buffer) rowCountLocked() int {
	total := 0
	for _, n := range b.tableCountsLocked() {
		total += n
	}
	return total
}

// Flush sends the accumulated batch to the sink and clears the buffer only
// if the sink succeeds. On failure the buffer is left intact so the caller
// can retry on the next tick without losing rows or acking bus offsets
// prematurely.
func (b *Buffer) Flush(ctx context.Context) error {
	b.mu.Lock()
	pending := b.pend
	empty := b.rowCountLocked() == 0
	b.mu.Unlock()

	if empty {
		return nil
	}

	if err := b.sink.AppendBatch(ctx, pending); err != nil {
		b.logger.Error("batch flush failed, retaining rows for retry", "error", err)
		return err
	}

	b.mu.Lock()
	b.pend = telemetry.Batch{}
	b.oldest = time.Time{}
	b.mu.Unlock()

	b.logger.Debug("batch flushed",
		"logs", len(pending.Logs), "metrics", len(pending.Metrics),
		"spans", len(pending.Spans), "span_events", len(pending.SpanEvents),
		"span_links", len(pending.SpanLinks))
	return nil
}

func totalRows(b telemetry.Batch) int {
	return len(b.Logs) + len(b.Metrics) + len(b.Spans) + len(b.SpanEvents) + len(b.SpanLinks)
}
