// Package bus wraps the message bus (C4's input, and the ingest loop's
// offset-commit point) on top of Redis Streams consumer groups: three OTLP
// topics, one consumer group, automatic offset commit after a successful
// flush, and a dead-letter stream for messages whose body is not valid
// JSON.
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"telemetry-pipeline/internal/config"
)

const (
	dlqStreamPrefix    = "telemetry:dlq:batches"
	dlqRetentionPeriod = 7 * 24 * time.Hour
	dlqMaxLength       = 1000
)

// Bus is the Redis-Streams-backed message bus connection.
type Bus struct {
	client *redis.Client
	cfg    *config.BusConfig
	logger *slog.Logger
}

// New dials Redis and pings it. Connection settings are grounded on the
// teacher's RedisDB bootstrap (DialTimeout 5s, ReadTimeout/WriteTimeout 3s,
// PoolSize 10).
func New(cfg *config.BusConfig, logger *slog.Logger) (*Bus, error) {
	opt := &redis.Options{
		Addr:         cfg.BootstrapServers,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		PoolTimeout:  30 * time.Second,
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping message bus: %w", err)
	}

	logger.Info("connected to message bus", "addr", cfg.BootstrapServers)
	return &Bus{client: client, cfg: cfg, logger: logger}, nil
}

// Close closes the bus connection.
func (b *Bus) Close() error {
	b.logger.Info("closing message bus connection")
	return b.client.Close()
}

// Health pings the bus.
func (b *Bus) Health(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Topics returns the three OTLP topic (stream) names in a stable order.
func (b *Bus) Topics() []string {
	return []string{b.cfg.LogsTopic, b.cfg.TracesTopic, b.cfg.MetricsTopic}
}

// EnsureGroups creates the consumer group on each topic stream if it does
// not already exist, tolerating a BUSYGROUP error (group already present).
func (b *Bus) EnsureGroups(ctx context.Context) error {
	for _, topic := range b.Topics() {
		err := b.client.XGroupCreateMkStream(ctx, topic, b.cfg.GroupID, "0").Err()
		if err != nil && !isBusyGroup(err) {
			return fmt.Errorf("create consumer group for %s: %w", topic, err)
		}
	}
	return nil
}

func isBusyGroup(err error) bool {
	return err != nil && len(err.Error()) >= 9 && err.Error()[:9] == "BUSYGROUP"
}

// Message is one entry read off a topic stream.
type Message struct {
	Topic string
	ID    string
	Body  string
}

// ReadBatch blocks up to blockDuration for up to count new messages across
// all three topics for this consumer.
func (b *Bus) ReadBatch(ctx context.Context, consumerID string, count int, blockDuration time.Duration) ([]Message, error) {
	streams := make([]string, 0, len(b.Topics())*2)
	for _, topic := range b.Topics() {
		streams = append(streams, topic)
	}
	for range b.Topics() {
		streams = append(streams, ">")
	}

	res, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    b.cfg.GroupID,
		Consumer: consumerID,
		Streams:  streams,
		Count:    int64(count),
		Block:    blockDuration,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var out []Message
	for _, stream := range res {
		for _, entry := range stream.Messages {
			body, _ := entry.Values["body"].(string)
			out = append(out, Message{Topic: stream.Stream, ID: entry.ID, Body: body})
		}
	}
	return out, nil
}

// Ack commits offsets for the given messages, grouped by topic. This is
// the bus's "offset committed only after a successful store append"
// mechanism (spec §4.2/§6.1).
func (b *Bus) Ack(ctx context.Context, msgs []Message) error {
	byTopic := map[string][]string{}
	for _, m := range msgs {
		byTopic[m.Topic] = append(byTopic[m.Topic], m.ID)
	}
	for topic, ids := range byTopic {
		if err := b.client.XAck(ctx, topic, b.cfg.GroupID, ids...).Err(); err != nil {
			return fmt.Errorf("ack %s: %w", topic, err)
		}
	}
	return nil
}

// Publish appends a message to a topic stream (used by tests and by any
// upstream producer role the bus plays in integration tests).
func (b *Bus) Publish(ctx context.Context, topic, body string) (string, error) {
	return b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: topic,
		Values: map[string]any{"body": body},
	}).Result()
}

// SendToDLQ appends an unprocessable message to the dead-letter stream for
// its topic, capped at dlqMaxLength with dlqRetentionPeriod as an
// informational TTL hint recorded alongside the entry.
func (b *Bus) SendToDLQ(ctx context.Context, topic string, msg Message, reason string) error {
	dlqStream := dlqStreamPrefix + ":" + topic
	return b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: dlqStream,
		MaxLen: dlqMaxLength,
		Approx: true,
		Values: map[string]any{
			"original_id": msg.ID,
			"body":        msg.Body,
			"reason":      reason,
			"expires_at":  time.Now().Add(dlqRetentionPeriod).Unix(),
		},
	}).Err()
}
