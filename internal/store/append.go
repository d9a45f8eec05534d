package store

import (
	"context"
	"fmt"

	"telemetry-pipeline/internal/domain/telemetry"
)

// AppendBatch writes a decoded telemetry.Batch as typed columnar blocks, one
// PrepareBatch per non-empty table. If any table's append fails, the whole
// call returns an error and the caller must not advance bus offsets for
// this flush window. Tables are sent one after another and nothing is
// rolled back: rows of tables sent before the failing one stay written, so
// a retried flush writes them again.
func (s *Store) AppendBatch(ctx context.Context, b telemetry.Batch) error {
	if len(b.Logs) > 0 {
		if err := s.appendLogs(ctx, b.Logs); err != nil {
			return fmt.Errorf("append logs: %w", err)
		}
	}
	if len(b.Metrics) > 0 {
		if err := s.appendMetrics(ctx, b.Metrics); err != nil {
			return fmt.Errorf("append metrics: %w", err)
		}
	}
	if len(b.Spans) > 0 {
		if err := s.appendSpans(ctx, b.Spans); err != nil {
			return fmt.Errorf("append spans: %w", err)
		}
	}
	if len(b.SpanEvents) > 0 {
		if err := s.appendSpanEvents(ctx, b.SpanEvents); err != nil {
			return fmt.Errorf("append span_events: %w", err)
		}
	}
	if len(b.SpanLinks) > 0 {
		if err := s.appendSpanLinks(ctx, b.SpanLinks); err != nil {
			return fmt.Errorf("append span_links: %w", err)
		}
	}
	return nil
}

func (s *Store) appendLogs(ctx context.Context, rows []telemetry.LogRow) error {
	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO logs")
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := batch.Append(r.Timestamp, r.ServiceName, r.SeverityNumber, r.SeverityText,
			r.BodyText, r.TraceID, r.SpanID, r.AttributesJSON); err != nil {
			return err
		}
	}
	return batch.Send()
}

func (s *Store) appendMetrics(ctx context.Context, rows []telemetry.MetricRow) error {
	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO metrics")
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := batch.Append(r.Timestamp, r.ServiceName, r.MetricName, r.MetricUnit,
			r.ValueDouble, r.AttributesFlat); err != nil {
			return err
		}
	}
	return batch.Send()
}

func (s *Store) appendSpans(ctx context.Context, rows []telemetry.SpanRow) error {
	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO spans")
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := batch.Append(r.TraceID, r.SpanID, r.ParentSpanID, r.StartTime, r.DurationNs,
			r.ServiceName, r.SpanName, string(r.SpanKind), string(r.StatusCode), r.HTTPStatus,
			r.DBSystem); err != nil {
			return err
		}
	}
	return batch.Send()
}

func (s *Store) appendSpanEvents(ctx context.Context, rows []telemetry.SpanEventRow) error {
	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO span_events")
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := batch.Append(r.Timestamp, r.TraceID, r.SpanID, r.ServiceName, r.SpanName,
			r.EventName, r.EventAttributesJSON, r.ExceptionType, r.ExceptionMessage,
			r.ExceptionStacktrace, r.GenAISystem, r.GenAIOperationName, r.GenAIRequestModel,
			r.GenAIResponseModel, r.GenAIUsageInputTokens, r.GenAIUsageOutputTokens); err != nil {
			return err
		}
	}
	return batch.Send()
}

func (s *Store) appendSpanLinks(ctx context.Context, rows []telemetry.SpanLinkRow) error {
	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO span_links")
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := batch.Append(r.TraceID, r.SpanID, r.ServiceName, r.SpanName, r.LinkedTraceID,
			r.LinkedSpanID, r.LinkedTraceState, r.LinkAttributesJSON); err != nil {
			return err
		}
	}
	return batch.Send()
}
