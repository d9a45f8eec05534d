// Package decode implements C1, the OTLP Decoder: pure functions that
// translate one OTLP-JSON export request into row records for the five
// analytic tables. Each request is unmarshalled as a whole: if any part of
// it fails to parse, a warning is logged and the whole request yields an
// empty batch; single malformed sub-records are not skipped on their own.
// Numeric fields that cannot be parsed decode as zero values.
package decode

import (
	"encoding/json"
	"log/slog"

	"telemetry-pipeline/internal/domain/otlp"
	"telemetry-pipeline/internal/domain/telemetry"
)

// Decoder translates OTLP-JSON requests into telemetry.Batch row sets.
type Decoder struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Decoder {
	return &Decoder{logger: logger}
}

// DecodeLogs translates one ExportLogsServiceRequest JSON payload.
func (d *Decoder) DecodeLogs(raw []byte) telemetry.Batch {
	var req otlp.ExportLogsServiceRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		d.logger.Warn("malformed logs export request", "error", err)
		return telemetry.Batch{}
	}

	var rows []telemetry.LogRow
	for _, rl := range req.ResourceLogs {
		resourceAttrs := rl.Resource.AttributeMap()
		serviceName, resourceAttrs := resourceAttrs.ExtractServiceName()

		for _, sl := range rl.ScopeLogs {
			scopeAttrs := sl.Scope.AttributeMap()
			namespacedScope := namespaceScopeAttrs(sl.Scope.Name, sl.Scope.Version, scopeAttrs)

			for _, lr := range sl.LogRecords {
				merged := resourceAttrs.Merge(namespacedScope).Merge(lr.AttributeMap())

				sevNum, _ := otlp.SafeInt(rawToAny(lr.SeverityNumber))
				ts := timeFromUnixNano(rawToAny(lr.TimeUnixNano))

				rows = append(rows, telemetry.LogRow{
					Timestamp:      ts,
					ServiceName:    serviceName,
					SeverityNumber: int32(sevNum),
					SeverityText:   lr.SeverityText,
					BodyText:       lr.BodyValue().AsString(),
					TraceID:        lr.TraceID,
					SpanID:         lr.SpanID,
					AttributesJSON: merged.JSON(),
				})
			}
		}
	}
	return telemetry.Batch{Logs: rows}
}

// namespaceScopeAttrs merges a scope's own name/version/attributes into the
// "otel.scope.*" namespace per spec §4.1's resource-merge rule.
func namespaceScopeAttrs(name, version string, attrs otlp.AttributeMap) otlp.AttributeMap {
	out := make(otlp.AttributeMap, len(attrs)+2)
	if name != "" {
		out["otel.scope.name"] = otlp.AnyValue{Kind: otlp.KindString, String: name}
	}
	if version != "" {
		out["otel.scope.version"] = otlp.AnyValue{Kind: otlp.KindString, String: version}
	}
	for k, v := range attrs {
		out["otel.scope."+k] = v
	}
	return out
}

// rawToAny decodes a json.RawMessage holding an OTLP numeric field (which
// may be a quoted string or a bare number) into a plain string/json.Number
// suitable for otlp.SafeInt/otlp.SafeFloat.
func rawToAny(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	return nil
}
