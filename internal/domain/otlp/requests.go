package otlp

import "encoding/json"

// ExportLogsServiceRequest is the OTLP-JSON shape for a logs export batch.
type ExportLogsServiceRequest struct {
	ResourceLogs []ResourceLogs `json:"resourceLogs"`
}

type ResourceLogs struct {
	Resource   Resource    `json:"resource"`
	ScopeLogs  []ScopeLogs `json:"scopeLogs"`
}

type ScopeLogs struct {
	Scope      InstrumentationScope `json:"scope"`
	LogRecords []LogRecord          `json:"logRecords"`
}

type LogRecord struct {
	TimeUnixNano         json.RawMessage `json:"timeUnixNano"`
	ObservedTimeUnixNano json.RawMessage `json:"observedTimeUnixNano"`
	SeverityNumber       json.RawMessage `json:"severityNumber"`
	SeverityText         string          `json:"severityText"`
	Body                 *rawAnyValue    `json:"body"`
	Attributes           []rawKeyValue   `json:"attributes"`
	TraceID              string          `json:"traceId"`
	SpanID               string          `json:"spanId"`
}

// ExportMetricsServiceRequest is the OTLP-JSON shape for a metrics export
// batch.
type ExportMetricsServiceRequest struct {
	ResourceMetrics []ResourceMetrics `json:"resourceMetrics"`
}

type ResourceMetrics struct {
	Resource      Resource       `json:"resource"`
	ScopeMetrics  []ScopeMetrics `json:"scopeMetrics"`
}

type ScopeMetrics struct {
	Scope   InstrumentationScope `json:"scope"`
	Metrics []Metric             `json:"metrics"`
}

type Metric struct {
	Name        string           `json:"name"`
	Unit        string           `json:"unit"`
	Gauge       *NumberDataPoints `json:"gauge"`
	Sum         *NumberDataPoints `json:"sum"`
	Histogram   *HistogramPoints  `json:"histogram"`
	Summary     *SummaryPoints    `json:"summary"`
}

type NumberDataPoints struct {
	DataPoints []NumberDataPoint `json:"dataPoints"`
}

type NumberDataPoint struct {
	TimeUnixNano json.RawMessage `json:"timeUnixNano"`
	AsDouble     json.RawMessage `json:"asDouble"`
	AsInt        json.RawMessage `json:"asInt"`
	Attributes   []rawKeyValue   `json:"attributes"`
}

type HistogramPoints struct {
	DataPoints []HistogramDataPoint `json:"dataPoints"`
}

type HistogramDataPoint struct {
	TimeUnixNano json.RawMessage `json:"timeUnixNano"`
	Count        json.RawMessage `json:"count"`
	Sum          json.RawMessage `json:"sum"`
	Min          json.RawMessage `json:"min"`
	Max          json.RawMessage `json:"max"`
	Attributes   []rawKeyValue   `json:"attributes"`
}

type SummaryPoints struct {
	DataPoints []SummaryDataPoint `json:"dataPoints"`
}

type SummaryDataPoint struct {
	TimeUnixNano   json.RawMessage      `json:"timeUnixNano"`
	Count          json.RawMessage      `json:"count"`
	Sum            json.RawMessage      `json:"sum"`
	QuantileValues []SummaryQuantile    `json:"quantileValues"`
	Attributes     []rawKeyValue        `json:"attributes"`
}

type SummaryQuantile struct {
	Quantile json.RawMessage `json:"quantile"`
	Value    json.RawMessage `json:"value"`
}

// ExportTraceServiceRequest is the OTLP-JSON shape for a trace export batch.
type ExportTraceServiceRequest struct {
	ResourceSpans []ResourceSpans `json:"resourceSpans"`
}

type ResourceSpans struct {
	Resource   Resource    `json:"resource"`
	ScopeSpans []ScopeSpans `json:"scopeSpans"`
}

type ScopeSpans struct {
	Scope InstrumentationScope `json:"scope"`
	Spans []Span               `json:"spans"`
}

type Span struct {
	TraceID           string          `json:"traceId"`
	SpanID            string          `json:"spanId"`
	ParentSpanID      string          `json:"parentSpanId"`
	Name              string          `json:"name"`
	Kind              json.RawMessage `json:"kind"`
	StartTimeUnixNano json.RawMessage `json:"startTimeUnixNano"`
	EndTimeUnixNano   json.RawMessage `json:"endTimeUnixNano"`
	Attributes        []rawKeyValue   `json:"attributes"`
	Status            *SpanStatus     `json:"status"`
	Events            []SpanEvent     `json:"events"`
	Links             []SpanLink      `json:"links"`
}

type SpanStatus struct {
	Code    json.RawMessage `json:"code"`
	Message string          `json:"message"`
}

type SpanEvent struct {
	TimeUnixNano json.RawMessage `json:"timeUnixNano"`
	Name         string          `json:"name"`
	Attributes   []rawKeyValue   `json:"attributes"`
}

type SpanLink struct {
	TraceID    string        `json:"traceId"`
	SpanID     string        `json:"spanId"`
	TraceState string        `json:"traceState"`
	Attributes []rawKeyValue `json:"attributes"`
}

// Resource is OTLP's resource wrapper: a flat attribute bag describing the
// process/service that produced the telemetry.
type Resource struct {
	Attributes []rawKeyValue `json:"attributes"`
}

func (r Resource) AttributeMap() AttributeMap {
	return parseAttributes(r.Attributes)
}

type InstrumentationScope struct {
	Name       string        `json:"name"`
	Version    string        `json:"version"`
	Attributes []rawKeyValue `json:"attributes"`
}

func (s InstrumentationScope) AttributeMap() AttributeMap {
	return parseAttributes(s.Attributes)
}

// AttributeMap decodes a record/span/event/link's own attributes list.
func attrMap(raw []rawKeyValue) AttributeMap {
	return parseAttributes(raw)
}

func (l LogRecord) AttributeMap() AttributeMap    { return attrMap(l.Attributes) }
func (n NumberDataPoint) AttributeMap() AttributeMap { return attrMap(n.Attributes) }
func (h HistogramDataPoint) AttributeMap() AttributeMap { return attrMap(h.Attributes) }
func (s SummaryDataPoint) AttributeMap() AttributeMap { return attrMap(s.Attributes) }
func (s Span) AttributeMap() AttributeMap         { return attrMap(s.Attributes) }
func (e SpanEvent) AttributeMap() AttributeMap    { return attrMap(e.Attributes) }
func (l SpanLink) AttributeMap() AttributeMap     { return attrMap(l.Attributes) }

func (l LogRecord) BodyValue() AnyValue {
	if l.Body == nil {
		return AnyValue{Kind: KindNone}
	}
	return fromRaw(*l.Body)
}
