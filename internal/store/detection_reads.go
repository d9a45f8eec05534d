package store

import (
	"context"
)

// ErrorRateWindow reads total spans and error-status spans for a service
// over the trailing window (minutes), for C6 step 1.
func (s *Store) ErrorRateWindow(ctx context.Context, serviceName string, minutes int) (total, errors int64, err error) {
	row := s.QueryRow(ctx, `SELECT count() AS total,
		countIf(status_code = 'ERROR') AS errors
		FROM spans WHERE service_name = ? AND start_time >= now() - INTERVAL ? MINUTE`,
		serviceName, minutes)
	err = row.Scan(&total, &errors)
	return total, errors, err
}

// LatencyP95Window reads the approximate P95 duration (ms) over the
// trailing window for spans of any kind with duration_ns > 0, for C6 step 2.
func (s *Store) LatencyP95Window(ctx context.Context, serviceName string, minutes int) (p95Ms float64, sampleCount int64, err error) {
	row := s.QueryRow(ctx, `SELECT quantile(0.95)(duration_ns / 1000000.0) AS p95, count() AS n
		FROM spans WHERE service_name = ? AND duration_ns > 0
		AND start_time >= now() - INTERVAL ? MINUTE`, serviceName, minutes)
	err = row.Scan(&p95Ms, &sampleCount)
	return p95Ms, sampleCount, err
}

// ThroughputWindow reads the SERVER-span request count over the trailing
// window, for C6 step 3 (normalized to per-minute by the caller per the
// spec's requests/5.0 design choice).
func (s *Store) ThroughputWindow(ctx context.Context, serviceName string, minutes int) (requestCount int64, err error) {
	row := s.QueryRow(ctx, `SELECT count() FROM spans
		WHERE service_name = ? AND span_kind = 'SERVER'
		AND start_time >= now() - INTERVAL ? MINUTE`, serviceName, minutes)
	err = row.Scan(&requestCount)
	return requestCount, err
}

// HasRecentSpans reports whether the service has at least one span that
// started within the last withinHours hours, for C6 step 4 (service down).
func (s *Store) HasRecentSpans(ctx context.Context, serviceName string, withinHours int) (bool, error) {
	row := s.QueryRow(ctx, `SELECT count() FROM spans
		WHERE service_name = ? AND start_time >= now() - INTERVAL ? HOUR`, serviceName, withinHours)
	var count uint64
	if err := row.Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// DBLatencyErrorWindow reads the current-window {latency_ms, error_rate,
// sample_count} for a service's calls against a db_system, for C6's
// DB_SLOW_QUERIES/DB_CONNECTION_FAILURE root-cause checks.
func (s *Store) DBLatencyErrorWindow(ctx context.Context, serviceName, dbSystem string, minutes int) (latencyMs, errorRate float64, sampleCount int64, err error) {
	row := s.QueryRow(ctx, `SELECT
		avg(duration_ns / 1000000.0) AS latency_ms,
		countIf(status_code = 'ERROR') / count() AS error_rate,
		count() AS n
		FROM spans WHERE service_name = ? AND db_system = ?
		AND start_time >= now() - INTERVAL ? MINUTE`, serviceName, dbSystem, minutes)
	err = row.Scan(&latencyMs, &errorRate, &sampleCount)
	return latencyMs, errorRate, sampleCount, err
}

// DependencyLatencyErrorWindow reads the current-window {latency_ms,
// error_rate, sample_count} for calls from serviceName to downstream, for
// C6's DEPENDENCY_LATENCY/DEPENDENCY_FAILURE root-cause checks.
func (s *Store) DependencyLatencyErrorWindow(ctx context.Context, serviceName, downstream string, minutes int) (latencyMs, errorRate float64, sampleCount int64, err error) {
	row := s.QueryRow(ctx, `SELECT
		avg(child.duration_ns / 1000000.0) AS latency_ms,
		countIf(child.status_code = 'ERROR') / count() AS error_rate,
		count() AS n
		FROM spans AS parent
		INNER JOIN spans AS child
		ON parent.trace_id = child.trace_id AND parent.span_id = child.parent_span_id
		WHERE parent.service_name = ? AND child.service_name = ?
		AND parent.start_time >= now() - INTERVAL ? MINUTE`, serviceName, downstream, minutes)
	err = row.Scan(&latencyMs, &errorRate, &sampleCount)
	return latencyMs, errorRate, sampleCount, err
}

// ActiveServices lists distinct service_name values seen in the baseline
// window, the universe C5/C6 iterate over.
func (s *Store) ActiveServices(ctx context.Context, windowHours int) ([]string, error) {
	rows, err := s.Execute(ctx, `SELECT DISTINCT service_name FROM spans
		WHERE start_time >= now() - INTERVAL ? HOUR AND service_name != ''`, windowHours)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// DBSystemsForService lists distinct db_system values observed for a
// service in the baseline window.
func (s *Store) DBSystemsForService(ctx context.Context, serviceName string, windowHours int) ([]string, error) {
	rows, err := s.Execute(ctx, `SELECT DISTINCT db_system FROM spans
		WHERE service_name = ? AND db_system != ''
		AND start_time >= now() - INTERVAL ? HOUR`, serviceName, windowHours)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// DBLatencyErrorHourlyBuckets returns per-hour {latency_ms, error_rate}
// samples for a service's spans against a given db_system, for C5's
// db_<system>_latency/error_rate baselines.
func (s *Store) DBLatencyErrorHourlyBuckets(ctx context.Context, serviceName, dbSystem string, windowHours int) (latencies, errorRates []float64, err error) {
	rows, err := s.Execute(ctx, `SELECT
		avg(duration_ns / 1000000.0) AS latency_ms,
		countIf(status_code = 'ERROR') / count() AS error_rate
		FROM spans
		WHERE service_name = ? AND db_system = ?
		AND start_time >= now() - INTERVAL ? HOUR
		GROUP BY toStartOfHour(start_time)
		HAVING count() >= 10`, serviceName, dbSystem, windowHours)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var lat, er float64
		if err := rows.Scan(&lat, &er); err != nil {
			return nil, nil, err
		}
		latencies = append(latencies, lat)
		errorRates = append(errorRates, er)
	}
	return latencies, errorRates, rows.Err()
}

// DownstreamServices lists distinct service names reached as a child span
// of serviceName's spans within the same trace (parent.span_id =
// child.parent_span_id), for C5's dep_<service>_* baselines.
func (s *Store) DownstreamServices(ctx context.Context, serviceName string, windowHours int) ([]string, error) {
	rows, err := s.Execute(ctx, `SELECT DISTINCT child.service_name
		FROM spans AS parent
		INNER JOIN spans AS child
		ON parent.trace_id = child.trace_id AND parent.span_id = child.parent_span_id
		WHERE parent.service_name = ? AND child.service_name != ?
		AND parent.start_time >= now() - INTERVAL ? HOUR`, serviceName, serviceName, windowHours)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// DependencyHourlyBuckets returns per-hour {latency_ms, error_rate} samples
// for calls from serviceName to downstream, for C5's dep_<service>_* baselines.
func (s *Store) DependencyHourlyBuckets(ctx context.Context, serviceName, downstream string, windowHours int) (latencies, errorRates []float64, err error) {
	rows, err := s.Execute(ctx, `SELECT
		avg(child.duration_ns / 1000000.0) AS latency_ms,
		countIf(child.status_code = 'ERROR') / count() AS error_rate
		FROM spans AS parent
		INNER JOIN spans AS child
		ON parent.trace_id = child.trace_id AND parent.span_id = child.parent_span_id
		WHERE parent.service_name = ? AND child.service_name = ?
		AND parent.start_time >= now() - INTERVAL ? HOUR
		GROUP BY toStartOfHour(parent.start_time)
		HAVING count() >= 10`, serviceName, downstream, windowHours)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var lat, er float64
		if err := rows.Scan(&lat, &er); err != nil {
			return nil, nil, err
		}
		latencies = append(latencies, lat)
		errorRates = append(errorRates, er)
	}
	return latencies, errorRates, rows.Err()
}

// ErrorRateHourlyBuckets returns per-hour error_rate samples over the
// window for a service, for C5's error_rate baseline.
func (s *Store) ErrorRateHourlyBuckets(ctx context.Context, serviceName string, windowHours int) ([]float64, error) {
	rows, err := s.Execute(ctx, `SELECT countIf(status_code = 'ERROR') / count() AS error_rate
		FROM spans WHERE service_name = ? AND start_time >= now() - INTERVAL ? HOUR
		GROUP BY toStartOfHour(start_time) HAVING count() >= 10`, serviceName, windowHours)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// LatencyPercentileHourlyBuckets returns per-hour approximate-percentile
// samples (p50/p95/p99) for a service's spans, for C5's latency baselines.
func (s *Store) LatencyPercentileHourlyBuckets(ctx context.Context, serviceName string, quantile float64, windowHours int) ([]float64, error) {
	rows, err := s.Execute(ctx, `SELECT quantile(?)(duration_ns / 1000000.0) AS p
		FROM spans WHERE service_name = ? AND duration_ns > 0
		AND start_time >= now() - INTERVAL ? HOUR
		GROUP BY toStartOfHour(start_time) HAVING count() >= 10`, quantile, serviceName, windowHours)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ThroughputMinuteBuckets returns per-minute SERVER-span request counts
// over the window, for C5's throughput baseline.
func (s *Store) ThroughputMinuteBuckets(ctx context.Context, serviceName string, windowHours int) ([]float64, error) {
	rows, err := s.Execute(ctx, `SELECT count() AS requests
		FROM spans WHERE service_name = ? AND span_kind = 'SERVER'
		AND start_time >= now() - INTERVAL ? HOUR
		GROUP BY toStartOfMinute(start_time)`, serviceName, windowHours)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ExceptionRateHourlyBuckets returns per-hour exception-event counts for a
// service, for C5's exception_rate baseline.
func (s *Store) ExceptionRateHourlyBuckets(ctx context.Context, serviceName string, windowHours int) ([]float64, error) {
	rows, err := s.Execute(ctx, `SELECT count() AS n
		FROM span_events WHERE service_name = ? AND exception_type != ''
		AND timestamp >= now() - INTERVAL ? HOUR
		GROUP BY toStartOfHour(timestamp)`, serviceName, windowHours)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// KnownExceptionTypes returns exception types with >= minOccurrences in the
// window, for C5's "known exception types" set.
func (s *Store) KnownExceptionTypes(ctx context.Context, serviceName string, windowHours int, minOccurrences int) ([]string, error) {
	rows, err := s.Execute(ctx, `SELECT exception_type FROM span_events
		WHERE service_name = ? AND exception_type != ''
		AND timestamp >= now() - INTERVAL ? HOUR
		GROUP BY exception_type HAVING count() >= ?`, serviceName, windowHours, minOccurrences)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ExceptionCountWindow returns the exception-event count for a service in
// the trailing window, for C6's EXCEPTION_SURGE check.
func (s *Store) ExceptionCountWindow(ctx context.Context, serviceName string, minutes int) (int64, error) {
	row := s.QueryRow(ctx, `SELECT count() FROM span_events
		WHERE service_name = ? AND exception_type != ''
		AND timestamp >= now() - INTERVAL ? MINUTE`, serviceName, minutes)
	var count int64
	err := row.Scan(&count)
	return count, err
}

// NewExceptionTypesWindow returns exception types with >= minOccurrences in
// the trailing window for a service, for C6's NEW_EXCEPTION_TYPE check.
func (s *Store) NewExceptionTypesWindow(ctx context.Context, serviceName string, minutes int, minOccurrences int) ([]string, error) {
	rows, err := s.Execute(ctx, `SELECT exception_type FROM span_events
		WHERE service_name = ? AND exception_type != ''
		AND timestamp >= now() - INTERVAL ? MINUTE
		GROUP BY exception_type HAVING count() >= ?`, serviceName, minutes, minOccurrences)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
