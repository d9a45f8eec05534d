package decode

import (
	"encoding/json"
	"strconv"

	"telemetry-pipeline/internal/domain/otlp"
	"telemetry-pipeline/internal/domain/telemetry"
)

// DecodeMetrics translates one ExportMetricsServiceRequest JSON payload,
// fanning out histogram/summary data points into multiple named rows
// (spec §3.1/§4.1/§8.4 scenario 5).
func (d *Decoder) DecodeMetrics(raw []byte) telemetry.Batch {
	var req otlp.ExportMetricsServiceRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		d.logger.Warn("malformed metrics export request", "error", err)
		return telemetry.Batch{}
	}

	var rows []telemetry.MetricRow
	for _, rm := range req.ResourceMetrics {
		resourceAttrs := rm.Resource.AttributeMap()
		serviceName, resourceAttrs := resourceAttrs.ExtractServiceName()

		for _, sm := range rm.ScopeMetrics {
			for _, metric := range sm.Metrics {
				rows = append(rows, d.decodeMetric(serviceName, resourceAttrs, metric)...)
			}
		}
	}
	return telemetry.Batch{Metrics: rows}
}

func (d *Decoder) decodeMetric(serviceName string, resourceAttrs otlp.AttributeMap, m otlp.Metric) []telemetry.MetricRow {
	var out []telemetry.MetricRow

	switch {
	case m.Gauge != nil:
		for _, dp := range m.Gauge.DataPoints {
			v := numberValue(dp)
			out = append(out, d.metricRow(serviceName, resourceAttrs, m.Name, m.Unit, v, dp.TimeUnixNano, dp.AttributeMap()))
		}
	case m.Sum != nil:
		for _, dp := range m.Sum.DataPoints {
			v := numberValue(dp)
			out = append(out, d.metricRow(serviceName, resourceAttrs, m.Name, m.Unit, v, dp.TimeUnixNano, dp.AttributeMap()))
		}
	case m.Histogram != nil:
		for _, dp := range m.Histogram.DataPoints {
			out = append(out, d.histogramRows(serviceName, resourceAttrs, m.Name, m.Unit, dp)...)
		}
	case m.Summary != nil:
		for _, dp := range m.Summary.DataPoints {
			out = append(out, d.summaryRows(serviceName, resourceAttrs, m.Name, m.Unit, dp)...)
		}
	}
	return out
}

func (d *Decoder) metricRow(serviceName string, resourceAttrs otlp.AttributeMap, name, unit string, value float64, ts json.RawMessage, attrs otlp.AttributeMap) telemetry.MetricRow {
	merged := resourceAttrs.Merge(attrs)
	return telemetry.MetricRow{
		Timestamp:      timeFromUnixNano(rawToAny(ts)),
		ServiceName:    serviceName,
		MetricName:     name,
		MetricUnit:     unit,
		ValueDouble:    value,
		AttributesFlat: merged.FlattenSorted(),
	}
}

func numberValue(dp otlp.NumberDataPoint) float64 {
	if f, ok := otlp.SafeFloat(rawToAny(dp.AsDouble)); ok {
		return f
	}
	if i, ok := otlp.SafeInt(rawToAny(dp.AsInt)); ok {
		return float64(i)
	}
	return 0
}

// histogramRows fans a single histogram data point out into
// .count/.sum/.min/.max rows, each sharing the data point's attributes_flat.
func (d *Decoder) histogramRows(serviceName string, resourceAttrs otlp.AttributeMap, name, unit string, dp otlp.HistogramDataPoint) []telemetry.MetricRow {
	merged := resourceAttrs.Merge(dp.AttributeMap())
	flat := merged.FlattenSorted()
	ts := timeFromUnixNano(rawToAny(dp.TimeUnixNano))

	var rows []telemetry.MetricRow
	if count, ok := otlp.SafeFloat(rawToAny(dp.Count)); ok {
		rows = append(rows, telemetry.MetricRow{Timestamp: ts, ServiceName: serviceName, MetricName: name + ".count", MetricUnit: unit, ValueDouble: count, AttributesFlat: flat})
	}
	if sum, ok := otlp.SafeFloat(rawToAny(dp.Sum)); ok {
		rows = append(rows, telemetry.MetricRow{Timestamp: ts, ServiceName: serviceName, MetricName: name + ".sum", MetricUnit: unit, ValueDouble: sum, AttributesFlat: flat})
	}
	if min, ok := otlp.SafeFloat(rawToAny(dp.Min)); ok {
		rows = append(rows, telemetry.MetricRow{Timestamp: ts, ServiceName: serviceName, MetricName: name + ".min", MetricUnit: unit, ValueDouble: min, AttributesFlat: flat})
	}
	if max, ok := otlp.SafeFloat(rawToAny(dp.Max)); ok {
		rows = append(rows, telemetry.MetricRow{Timestamp: ts, ServiceName: serviceName, MetricName: name + ".max", MetricUnit: unit, ValueDouble: max, AttributesFlat: flat})
	}
	return rows
}

// summaryRows fans a single summary data point out into .count/.sum/.pN
// rows, one per quantile value present.
func (d *Decoder) summaryRows(serviceName string, resourceAttrs otlp.AttributeMap, name, unit string, dp otlp.SummaryDataPoint) []telemetry.MetricRow {
	merged := resourceAttrs.Merge(dp.AttributeMap())
	flat := merged.FlattenSorted()
	ts := timeFromUnixNano(rawToAny(dp.TimeUnixNano))

	var rows []telemetry.MetricRow
	if count, ok := otlp.SafeFloat(rawToAny(dp.Count)); ok {
		rows = append(rows, telemetry.MetricRow{Timestamp: ts, ServiceName: serviceName, MetricName: name + ".count", MetricUnit: unit, ValueDouble: count, AttributesFlat: flat})
	}
	if sum, ok := otlp.SafeFloat(rawToAny(dp.Sum)); ok {
		rows = append(rows, telemetry.MetricRow{Timestamp: ts, ServiceName: serviceName, MetricName: name + ".sum", MetricUnit: unit, ValueDouble: sum, AttributesFlat: flat})
	}
	for _, q := range dp.QuantileValues {
		quantile, ok := otlp.SafeFloat(rawToAny(q.Quantile))
		if !ok {
			continue
		}
		value, ok := otlp.SafeFloat(rawToAny(q.Value))
		if !ok {
			continue
		}
		suffix := quantileSuffix(quantile)
		rows = append(rows, telemetry.MetricRow{Timestamp: ts, ServiceName: serviceName, MetricName: name + "." + suffix, MetricUnit: unit, ValueDouble: value, AttributesFlat: flat})
	}
	return rows
}

// quantileSuffix renders a quantile (0.0-1.0) as "pNN", e.g. 0.95 -> "p95".
func quantileSuffix(q float64) string {
	pct := int(q*100 + 0.5)
	return "p" + strconv.Itoa(pct)
}
