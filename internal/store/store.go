// Package store wraps the analytic store connection (C3, Store Writer):
// idempotent schema bootstrap, typed batch append for the five analytic
// tables, row-level mutation for alerts, and the execute/execute_write
// query surface the detection components read and write through.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"telemetry-pipeline/internal/config"
)

// Store is the analytic store connection.
type Store struct {
	conn   driver.Conn
	cfg    *config.StoreConfig
	logger *slog.Logger
}

// New opens and pings the analytic store connection.
func New(cfg *config.StoreConfig, logger *slog.Logger) (*Store, error) {
	options := &clickhouse.Options{
		Addr: []string{cfg.Addr()},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
			"max_memory_usage":   "10000000000",
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to analytic store: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping analytic store: %w", err)
	}

	logger.Info("connected to analytic store", "addr", cfg.Addr(), "database", cfg.Database)

	return &Store{conn: conn, cfg: cfg, logger: logger}, nil
}

// Close closes the store connection.
func (s *Store) Close() error {
	s.logger.Info("closing analytic store connection")
	return s.conn.Close()
}

// Health pings the store.
func (s *Store) Health(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Execute runs a read query and returns the raw driver rows (C3's
// `execute(sql) → rows`).
func (s *Store) Execute(ctx context.Context, query string, args ...any) (driver.Rows, error) {
	return s.conn.Query(ctx, query, args...)
}

// QueryRow runs a read query expected to return a single row.
func (s *Store) QueryRow(ctx context.Context, query string, args ...any) driver.Row {
	return s.conn.QueryRow(ctx, query, args...)
}

// ExecuteWrite runs a mutation statement (C3's `execute_write(sql) → bool`).
// It returns false (not an error) on failure, matching the spec's boolean
// success contract; the error is still logged for operators.
func (s *Store) ExecuteWrite(ctx context.Context, query string, args ...any) bool {
	if err := s.conn.Exec(ctx, query, args...); err != nil {
		s.logger.Error("engine write failed", "error", err, "query", query)
		return false
	}
	return true
}

// Bootstrap idempotently creates the five analytic tables and four engine
// tables. Safe to call on every startup (CREATE TABLE IF NOT EXISTS).
func (s *Store) Bootstrap(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if err := s.conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema bootstrap failed: %w", err)
		}
	}
	return nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS logs (
		timestamp DateTime64(9),
		service_name String,
		severity_number Int32,
		severity_text String,
		body_text String,
		trace_id String,
		span_id String,
		attributes_json String
	) ENGINE = MergeTree ORDER BY (service_name, timestamp)`,

	`CREATE TABLE IF NOT EXISTS metrics (
		timestamp DateTime64(9),
		service_name String,
		metric_name String,
		metric_unit String,
		value_double Float64,
		attributes_flat String
	) ENGINE = MergeTree ORDER BY (service_name, metric_name, timestamp)`,

	`CREATE TABLE IF NOT EXISTS spans (
		trace_id String,
		span_id String,
		parent_span_id String,
		start_time DateTime64(9),
		duration_ns Int64,
		service_name String,
		span_name String,
		span_kind String,
		status_code String,
		http_status Nullable(Int32),
		db_system String
	) ENGINE = MergeTree ORDER BY (service_name, start_time)`,

	`CREATE TABLE IF NOT EXISTS span_events (
		timestamp DateTime64(9),
		trace_id String,
		span_id String,
		service_name String,
		span_name String,
		event_name String,
		event_attributes_json String,
		exception_type String,
		exception_message String,
		exception_stacktrace String,
		gen_ai_system String,
		gen_ai_operation_name String,
		gen_ai_request_model String,
		gen_ai_response_model String,
		gen_ai_usage_input_tokens Int64,
		gen_ai_usage_output_tokens Int64
	) ENGINE = MergeTree ORDER BY (service_name, timestamp)`,

	`CREATE TABLE IF NOT EXISTS span_links (
		trace_id String,
		span_id String,
		service_name String,
		span_name String,
		linked_trace_id String,
		linked_span_id String,
		linked_trace_state String,
		link_attributes_json String
	) ENGINE = MergeTree ORDER BY (service_name, trace_id)`,

	`CREATE TABLE IF NOT EXISTS service_baselines (
		computed_at DateTime64(9),
		service_name String,
		metric_type String,
		baseline_mean Float64,
		baseline_stddev Float64,
		baseline_min Float64,
		baseline_max Float64,
		baseline_p50 Float64,
		baseline_p95 Float64,
		baseline_p99 Float64,
		sample_count Int32,
		window_hours Int32
	) ENGINE = MergeTree ORDER BY (service_name, metric_type, computed_at)`,

	`CREATE TABLE IF NOT EXISTS anomaly_scores (
		timestamp DateTime64(9),
		service_name String,
		metric_type String,
		current_value Float64,
		expected_value Float64,
		baseline_mean Float64,
		baseline_stddev Float64,
		z_score Float64,
		anomaly_score Float64,
		is_anomaly UInt8,
		detection_method String
	) ENGINE = MergeTree ORDER BY (service_name, metric_type, timestamp)`,

	`CREATE TABLE IF NOT EXISTS alerts (
		alert_id String,
		created_at DateTime64(9),
		updated_at DateTime64(9),
		service_name String,
		alert_type String,
		severity String,
		title String,
		description String,
		metric_type String,
		current_value Float64,
		threshold_value Float64,
		baseline_value Float64,
		z_score Float64,
		status String,
		resolved_at Nullable(DateTime64(9)),
		auto_resolved UInt8
	) ENGINE = MergeTree ORDER BY (alert_id)`,

	`CREATE TABLE IF NOT EXISTS alert_investigations (
		investigation_id String,
		alert_id String,
		investigated_at DateTime64(9),
		service_name String,
		alert_type String,
		model_used String,
		root_cause_summary String,
		recommended_actions String,
		supporting_evidence String,
		queries_executed Int32,
		tokens_used Int32
	) ENGINE = MergeTree ORDER BY (alert_id)`,
}
