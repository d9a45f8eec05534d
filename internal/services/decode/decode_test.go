package decode

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDecoder() *Decoder {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestDecodeLogs_ExtractsServiceNameAndAttributes(t *testing.T) {
	d := testDecoder()
	raw := []byte(`{
		"resourceLogs": [{
			"resource": {"attributes": [{"key": "service.name", "value": {"stringValue": "checkout"}}]},
			"scopeLogs": [{
				"scope": {"name": "otel.logger", "version": "1.0"},
				"logRecords": [{
					"timeUnixNano": "1700000000000000000",
					"severityNumber": 9,
					"severityText": "INFO",
					"body": {"stringValue": "order placed"},
					"traceId": "trace-1",
					"spanId": "span-1",
					"attributes": [{"key": "order.id", "value": {"intValue": "42"}}]
				}]
			}]
		}]
	}`)

	batch := d.DecodeLogs(raw)
	require.Len(t, batch.Logs, 1)
	row := batch.Logs[0]
	assert.Equal(t, "checkout", row.ServiceName)
	assert.Equal(t, int32(9), row.SeverityNumber)
	assert.Equal(t, "INFO", row.SeverityText)
	assert.Equal(t, "order placed", row.BodyText)
	assert.Equal(t, "trace-1", row.TraceID)
	assert.Contains(t, row.AttributesJSON, "order.id")
	assert.Contains(t, row.AttributesJSON, "otel.scope.name")
	assert.NotContains(t, row.AttributesJSON, "service.name")
}

func TestDecodeLogs_MalformedPayloadReturnsEmptyBatch(t *testing.T) {
	d := testDecoder()
	batch := d.DecodeLogs([]byte(`not json`))
	assert.Empty(t, batch.Logs)
}

func TestDecodeMetrics_GaugeDirectValue(t *testing.T) {
	d := testDecoder()
	raw := []byte(`{
		"resourceMetrics": [{
			"resource": {"attributes": [{"key": "service.name", "value": {"stringValue": "api"}}]},
			"scopeMetrics": [{
				"metrics": [{
					"name": "queue.depth",
					"unit": "1",
					"gauge": {"dataPoints": [{"timeUnixNano": "1700000000000000000", "asInt": "7"}]}
				}]
			}]
		}]
	}`)

	batch := d.DecodeMetrics(raw)
	require.Len(t, batch.Metrics, 1)
	row := batch.Metrics[0]
	assert.Equal(t, "api", row.ServiceName)
	assert.Equal(t, "queue.depth", row.MetricName)
	assert.Equal(t, float64(7), row.ValueDouble)
}

func TestDecodeMetrics_HistogramFansOutIntoFourRows(t *testing.T) {
	d := testDecoder()
	raw := []byte(`{
		"resourceMetrics": [{
			"resource": {"attributes": [{"key": "service.name", "value": {"stringValue": "api"}}]},
			"scopeMetrics": [{
				"metrics": [{
					"name": "http.server.duration",
					"unit": "ms",
					"histogram": {"dataPoints": [{
						"timeUnixNano": "1700000000000000000",
						"count": "100",
						"sum": "5000.5",
						"min": "1.2",
						"max": "200.7",
						"attributes": [{"key": "route", "value": {"stringValue": "/checkout"}}]
					}]}
				}]
			}]
		}]
	}`)

	batch := d.DecodeMetrics(raw)
	require.Len(t, batch.Metrics, 4)

	names := map[string]float64{}
	flat := batch.Metrics[0].AttributesFlat
	for _, row := range batch.Metrics {
		names[row.MetricName] = row.ValueDouble
		assert.Equal(t, flat, row.AttributesFlat, "fan-out rows share identical attributes_flat")
	}
	assert.Equal(t, float64(100), names["http.server.duration.count"])
	assert.Equal(t, 5000.5, names["http.server.duration.sum"])
	assert.Equal(t, 1.2, names["http.server.duration.min"])
	assert.Equal(t, 200.7, names["http.server.duration.max"])
}

func TestDecodeMetrics_SummaryFansOutQuantiles(t *testing.T) {
	d := testDecoder()
	raw := []byte(`{
		"resourceMetrics": [{
			"resource": {"attributes": [{"key": "service.name", "value": {"stringValue": "api"}}]},
			"scopeMetrics": [{
				"metrics": [{
					"name": "rpc.duration",
					"summary": {"dataPoints": [{
						"timeUnixNano": "1700000000000000000",
						"count": "10",
						"sum": "100",
						"quantileValues": [{"quantile": "0.95", "value": "42.0"}, {"quantile": "0.99", "value": "88.0"}]
					}]}
				}]
			}]
		}]
	}`)

	batch := d.DecodeMetrics(raw)
	require.Len(t, batch.Metrics, 4)
	var sawP95, sawP99 bool
	for _, row := range batch.Metrics {
		switch row.MetricName {
		case "rpc.duration.p95":
			sawP95 = true
			assert.Equal(t, float64(42), row.ValueDouble)
		case "rpc.duration.p99":
			sawP99 = true
			assert.Equal(t, float64(88), row.ValueDouble)
		}
	}
	assert.True(t, sawP95)
	assert.True(t, sawP99)
}

func TestDecodeSpans_DurationKindStatusAndPromotedAttributes(t *testing.T) {
	d := testDecoder()
	raw := []byte(`{
		"resourceSpans": [{
			"resource": {"attributes": [{"key": "service.name", "value": {"stringValue": "checkout"}}]},
			"scopeSpans": [{
				"spans": [{
					"traceId": "t1",
					"spanId": "s1",
					"parentSpanId": "",
					"name": "POST /checkout",
					"kind": 2,
					"startTimeUnixNano": "1700000000000000000",
					"endTimeUnixNano": "1700000000150000000",
					"attributes": [
						{"key": "http.response.status_code", "value": {"intValue": "500"}},
						{"key": "db.system", "value": {"stringValue": "postgresql"}}
					],
					"status": {"code": 2, "message": "failed"},
					"events": [{
						"timeUnixNano": "1700000000100000000",
						"name": "exception",
						"attributes": [
							{"key": "exception.type", "value": {"stringValue": "SQLTimeout"}},
							{"key": "exception.message", "value": {"stringValue": "timed out"}}
						]
					}],
					"links": [{
						"traceId": "t0",
						"spanId": "s0",
						"traceState": "",
						"attributes": []
					}]
				}]
			}]
		}]
	}`)

	batch := d.DecodeSpans(raw)
	require.Len(t, batch.Spans, 1)
	span := batch.Spans[0]
	assert.Equal(t, int64(150000000), span.DurationNs)
	assert.Equal(t, "checkout", span.ServiceName)
	require.NotNil(t, span.HTTPStatus)
	assert.Equal(t, int32(500), *span.HTTPStatus)
	assert.Equal(t, "postgresql", span.DBSystem)

	require.Len(t, batch.SpanEvents, 1)
	ev := batch.SpanEvents[0]
	assert.Equal(t, "SQLTimeout", ev.ExceptionType)
	assert.Equal(t, "timed out", ev.ExceptionMessage)

	require.Len(t, batch.SpanLinks, 1)
	link := batch.SpanLinks[0]
	assert.Equal(t, "t0", link.LinkedTraceID)
	assert.Equal(t, "s0", link.LinkedSpanID)
}
