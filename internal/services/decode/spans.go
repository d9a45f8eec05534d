package decode

import (
	"encoding/json"

	"telemetry-pipeline/internal/domain/otlp"
	"telemetry-pipeline/internal/domain/telemetry"
)

// DecodeSpans translates one ExportTraceServiceRequest JSON payload into
// span, span_event, and span_link rows (spec §3.1/§4.1).
func (d *Decoder) DecodeSpans(raw []byte) telemetry.Batch {
	var req otlp.ExportTraceServiceRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		d.logger.Warn("malformed trace export request", "error", err)
		return telemetry.Batch{}
	}

	var spans []telemetry.SpanRow
	var events []telemetry.SpanEventRow
	var links []telemetry.SpanLinkRow

	for _, rs := range req.ResourceSpans {
		resourceAttrs := rs.Resource.AttributeMap()
		serviceName, resourceAttrs := resourceAttrs.ExtractServiceName()

		for _, ss := range rs.ScopeSpans {
			for _, sp := range ss.Spans {
				merged := resourceAttrs.Merge(sp.AttributeMap())

				start := timeFromUnixNano(rawToAny(sp.StartTimeUnixNano))
				end := timeFromUnixNano(rawToAny(sp.EndTimeUnixNano))
				var durationNs int64
				if !start.IsZero() && !end.IsZero() {
					durationNs = end.UnixNano() - start.UnixNano()
				}

				kindNum, _ := otlp.SafeInt(rawToAny(sp.Kind))
				var statusNum int64
				if sp.Status != nil {
					statusNum, _ = otlp.SafeInt(rawToAny(sp.Status.Code))
				}

				spans = append(spans, telemetry.SpanRow{
					TraceID:      sp.TraceID,
					SpanID:       sp.SpanID,
					ParentSpanID: sp.ParentSpanID,
					StartTime:    start,
					DurationNs:   durationNs,
					ServiceName:  serviceName,
					SpanName:     sp.Name,
					SpanKind:     telemetry.SpanKindFromOTLP(kindNum),
					StatusCode:   telemetry.StatusCodeFromOTLP(statusNum),
					HTTPStatus:   httpStatus(merged),
					DBSystem:     stringAttr(merged, "db.system"),
				})

				for _, ev := range sp.Events {
					events = append(events, decodeSpanEvent(serviceName, sp, ev))
				}
				for _, ln := range sp.Links {
					links = append(links, decodeSpanLink(serviceName, sp, ln))
				}
			}
		}
	}

	return telemetry.Batch{Spans: spans, SpanEvents: events, SpanLinks: links}
}

// httpStatus promotes http.status_code / http.response.status_code to a
// dedicated column, preferring the newer semantic-convention name.
func httpStatus(attrs otlp.AttributeMap) *int32 {
	for _, key := range []string{"http.response.status_code", "http.status_code"} {
		if v, ok := attrs.Get(key); ok {
			if i, ok := otlp.SafeInt(v.Native()); ok {
				status := int32(i)
				return &status
			}
		}
	}
	return nil
}

func stringAttr(attrs otlp.AttributeMap, key string) string {
	if v, ok := attrs.Get(key); ok {
		return v.AsString()
	}
	return ""
}

func int64Attr(attrs otlp.AttributeMap, key string) int64 {
	if v, ok := attrs.Get(key); ok {
		if i, ok := otlp.SafeInt(v.Native()); ok {
			return i
		}
	}
	return 0
}

// decodeSpanEvent translates one OTLP span event, promoting
// exception.*/gen_ai.* well-known attributes to dedicated columns while
// preserving the full attribute set in event_attributes_json.
func decodeSpanEvent(serviceName string, sp otlp.Span, ev otlp.SpanEvent) telemetry.SpanEventRow {
	attrs := ev.AttributeMap()
	return telemetry.SpanEventRow{
		Timestamp:           timeFromUnixNano(rawToAny(ev.TimeUnixNano)),
		TraceID:             sp.TraceID,
		SpanID:              sp.SpanID,
		ServiceName:         serviceName,
		SpanName:            sp.Name,
		EventName:           ev.Name,
		EventAttributesJSON: attrs.JSON(),
		ExceptionType:       stringAttr(attrs, "exception.type"),
		ExceptionMessage:    stringAttr(attrs, "exception.message"),
		ExceptionStacktrace: stringAttr(attrs, "exception.stacktrace"),
		GenAISystem:         stringAttr(attrs, "gen_ai.system"),
		GenAIOperationName:  stringAttr(attrs, "gen_ai.operation.name"),
		GenAIRequestModel:   stringAttr(attrs, "gen_ai.request.model"),
		GenAIResponseModel:  stringAttr(attrs, "gen_ai.response.model"),
		GenAIUsageInputTokens:  int64Attr(attrs, "gen_ai.usage.input_tokens"),
		GenAIUsageOutputTokens: int64Attr(attrs, "gen_ai.usage.output_tokens"),
	}
}

func decodeSpanLink(serviceName string, sp otlp.Span, ln otlp.SpanLink) telemetry.SpanLinkRow {
	return telemetry.SpanLinkRow{
		TraceID:            sp.TraceID,
		SpanID:             sp.SpanID,
		ServiceName:        serviceName,
		SpanName:           sp.Name,
		LinkedTraceID:      ln.TraceID,
		LinkedSpanID:       ln.SpanID,
		LinkedTraceState:   ln.TraceState,
		LinkAttributesJSON: ln.AttributeMap().JSON(),
	}
}
