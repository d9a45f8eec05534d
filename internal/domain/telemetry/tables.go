// Package telemetry holds the row types for the five analytic tables C1
// produces and C3 persists: logs, metrics, spans, span_events, span_links.
package telemetry

import "time"

// SpanKind mirrors OTLP's span kind enum.
type SpanKind string

const (
	SpanKindUnspecified SpanKind = "UNSPECIFIED"
	SpanKindInternal    SpanKind = "INTERNAL"
	SpanKindServer      SpanKind = "SERVER"
	SpanKindClient      SpanKind = "CLIENT"
	SpanKindProducer    SpanKind = "PRODUCER"
	SpanKindConsumer    SpanKind = "CONSUMER"
)

// spanKindByNumber maps OTLP's numeric span kind to its name. Unknown
// numbers map to SpanKindUnspecified.
var spanKindByNumber = map[int64]SpanKind{
	0: SpanKindUnspecified,
	1: SpanKindInternal,
	2: SpanKindServer,
	3: SpanKindClient,
	4: SpanKindProducer,
	5: SpanKindConsumer,
}

// SpanKindFromOTLP converts OTLP's numeric span kind to SpanKind.
func SpanKindFromOTLP(n int64) SpanKind {
	if k, ok := spanKindByNumber[n]; ok {
		return k
	}
	return SpanKindUnspecified
}

// StatusCode mirrors OTLP's span status code enum.
type StatusCode string

const (
	StatusCodeUnset StatusCode = "UNSET"
	StatusCodeOK    StatusCode = "OK"
	StatusCodeError StatusCode = "ERROR"
)

var statusCodeByNumber = map[int64]StatusCode{
	0: StatusCodeUnset,
	1: StatusCodeOK,
	2: StatusCodeError,
}

// StatusCodeFromOTLP converts OTLP's numeric status code to StatusCode.
func StatusCodeFromOTLP(n int64) StatusCode {
	if c, ok := statusCodeByNumber[n]; ok {
		return c
	}
	return StatusCodeUnset
}

// LogRow is one row of the logs table: one per OTLP log record.
type LogRow struct {
	Timestamp      time.Time
	ServiceName    string
	SeverityNumber int32
	SeverityText   string
	BodyText       string
	TraceID        string
	SpanID         string
	AttributesJSON string
}

// MetricRow is one row of the metrics table. A single OTLP data point may
// expand into several MetricRow values (histogram/summary fan-out).
type MetricRow struct {
	Timestamp      time.Time
	ServiceName    string
	MetricName     string
	MetricUnit     string
	ValueDouble    float64
	AttributesFlat string
}

// SpanRow is one row of the spans table: one per OTLP span.
type SpanRow struct {
	TraceID       string
	SpanID        string
	ParentSpanID  string
	StartTime     time.Time
	DurationNs    int64
	ServiceName   string
	SpanName      string
	SpanKind      SpanKind
	StatusCode    StatusCode
	HTTPStatus    *int32
	DBSystem      string
}

// SpanEventRow is one row of the span_events table: one per OTLP span
// event, with exception/gen_ai fields promoted to dedicated columns.
type SpanEventRow struct {
	Timestamp           time.Time
	TraceID             string
	SpanID              string
	ServiceName         string
	SpanName            string
	EventName           string
	EventAttributesJSON string
	ExceptionType       string
	ExceptionMessage    string
	ExceptionStacktrace string
	GenAISystem         string
	GenAIOperationName  string
	GenAIRequestModel   string
	GenAIResponseModel  string
	GenAIUsageInputTokens  int64
	GenAIUsageOutputTokens int64
}

// SpanLinkRow is one row of the span_links table: one per OTLP span link.
type SpanLinkRow struct {
	TraceID           string
	SpanID            string
	ServiceName       string
	SpanName          string
	LinkedTraceID     string
	LinkedSpanID      string
	LinkedTraceState  string
	LinkAttributesJSON string
}

// Batch groups the rows decoded from one OTLP export request, one slice per
// target table, so C2 can enqueue them together.
type Batch struct {
	Logs       []LogRow
	Metrics    []MetricRow
	Spans      []SpanRow
	SpanEvents []SpanEventRow
	SpanLinks  []SpanLinkRow
}
