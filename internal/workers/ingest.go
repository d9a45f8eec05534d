// Package workers holds the two cooperative long-running loops: the
// ingest loop (bus -> decode -> batch -> store) and the detection loop
// (baseline -> anomaly -> alert -> investigate).
package workers

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"telemetry-pipeline/internal/bus"
	"telemetry-pipeline/internal/config"
	"telemetry-pipeline/internal/domain/telemetry"
	"telemetry-pipeline/internal/services/batch"
	"telemetry-pipeline/internal/services/decode"
)

const (
	ingestReadCount      = 500
	ingestBlockDuration  = 1 * time.Second
	ingestPollBackoff    = 500 * time.Millisecond
	ingestConsumerIDName = "ingest-1"
)

// Ingest runs C1+C2 against the bus: it blocks on the three OTLP topics,
// dispatches each message to the decoder for its topic, accumulates rows
// in the batch buffer, and flushes synchronously on a size or time
// trigger — acking bus offsets only once the flush has actually
// succeeded (spec §4.2/§5: "no new message is consumed until the
// current flush completes").
type Ingest struct {
	bus     *bus.Bus
	busCfg  *config.BusConfig
	decoder *decode.Decoder
	buffer  *batch.Buffer
	logger  *slog.Logger

	quit sync.Once
	stop chan struct{}
	wg   sync.WaitGroup

	pendingAcks []bus.Message
}

func NewIngest(b *bus.Bus, busCfg *config.BusConfig, decoder *decode.Decoder, buffer *batch.Buffer, logger *slog.Logger) *Ingest {
	return &Ingest{
		bus:     b,
		busCfg:  busCfg,
		decoder: decoder,
		buffer:  buffer,
		logger:  logger,
		stop:    make(chan struct{}),
	}
}

// Start launches the ingest loop in its own goroutine.
func (in *Ingest) Start() {
	in.logger.Info("starting ingest loop")
	in.wg.Add(1)
	go in.mainLoop()
}

// Stop signals the loop to exit and blocks until it has drained its
// current iteration (including a final flush attempt).
func (in *Ingest) Stop() {
	in.quit.Do(func() { close(in.stop) })
	in.wg.Wait()
	in.logger.Info("ingest loop stopped")
}

func (in *Ingest) mainLoop() {
	defer in.wg.Done()

	for {
		select {
		case <-in.stop:
			in.drainFinalFlush()
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), ingestBlockDuration+2*time.Second)
		msgs, err := in.bus.ReadBatch(ctx, ingestConsumerIDName, ingestReadCount, ingestBlockDuration)
		cancel()
		if err != nil {
			in.logger.Error("ingest read failed", "error", err)
			time.Sleep(ingestPollBackoff)
			continue
		}

		for _, m := range msgs {
			in.handleMessage(m)
		}

		if in.buffer.DueForTimeFlush() {
			in.flush()
		}
	}
}

func (in *Ingest) handleMessage(m bus.Message) {
	ctx := context.Background()

	if !json.Valid([]byte(m.Body)) {
		if err := in.bus.SendToDLQ(ctx, m.Topic, m, "invalid JSON payload"); err != nil {
			in.logger.Error("failed to send message to DLQ", "topic", m.Topic, "error", err)
			return
		}
		if err := in.bus.Ack(ctx, []bus.Message{m}); err != nil {
			in.logger.Error("failed to ack DLQ'd message", "topic", m.Topic, "error", err)
		}
		return
	}

	rows := in.decodeMessage(m)
	trigger := in.buffer.Add(rows)
	in.pendingAcks = append(in.pendingAcks, m)

	if trigger {
		in.flush()
	}
}

func (in *Ingest) decodeMessage(m bus.Message) telemetry.Batch {
	body := []byte(m.Body)
	switch m.Topic {
	case in.busCfg.LogsTopic:
		return in.decoder.DecodeLogs(body)
	case in.busCfg.MetricsTopic:
		return in.decoder.DecodeMetrics(body)
	case in.busCfg.TracesTopic:
		return in.decoder.DecodeSpans(body)
	default:
		in.logger.Warn("message on unrecognized topic", "topic", m.Topic)
		return telemetry.Batch{}
	}
}

func (in *Ingest) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := in.buffer.Flush(ctx); err != nil {
		return
	}
	if len(in.pendingAcks) == 0 {
		return
	}
	if err := in.bus.Ack(ctx, in.pendingAcks); err != nil {
		in.logger.Error("failed to ack flushed messages", "error", err)
		return
	}
	in.pendingAcks = in.pendingAcks[:0]
}

func (in *Ingest) drainFinalFlush() {
	in.flush()
}
