package store

import (
	"context"
	"database/sql"
	"time"

	"telemetry-pipeline/internal/domain/engine"
)

// LatestBaseline returns the most recent service_baselines row for
// (serviceName, metricType), or nil if none exists.
func (s *Store) LatestBaseline(ctx context.Context, serviceName string, metricType engine.MetricType) (*engine.ServiceBaselineRow, error) {
	row := s.QueryRow(ctx, `SELECT computed_at, service_name, metric_type, baseline_mean,
		baseline_stddev, baseline_min, baseline_max, baseline_p50, baseline_p95, baseline_p99,
		sample_count, window_hours FROM service_baselines
		WHERE service_name = ? AND metric_type = ?
		ORDER BY computed_at DESC LIMIT 1`, serviceName, string(metricType))

	var out engine.ServiceBaselineRow
	var mt string
	err := row.Scan(&out.ComputedAt, &out.ServiceName, &mt, &out.BaselineMean, &out.BaselineStddev,
		&out.BaselineMin, &out.BaselineMax, &out.BaselineP50, &out.BaselineP95, &out.BaselineP99,
		&out.SampleCount, &out.WindowHours)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	out.MetricType = engine.MetricType(mt)
	return &out, nil
}

// ActiveAlerts returns every alerts row currently in the `active` status,
// used by C8 at startup to rebuild its in-memory dedup cache (spec §9:
// "source-of-truth is the store; this is a cache rebuilt on startup").
func (s *Store) ActiveAlerts(ctx context.Context) ([]engine.AlertRow, error) {
	rows, err := s.Execute(ctx, `SELECT alert_id, created_at, updated_at, service_name,
		alert_type, severity, title, description, metric_type, current_value,
		threshold_value, baseline_value, z_score, status, resolved_at, auto_resolved
		FROM alerts WHERE status = 'active'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.AlertRow
	for rows.Next() {
		var a engine.AlertRow
		var alertType, severity, status string
		var resolvedAt *time.Time
		var autoResolved uint8
		if err := rows.Scan(&a.AlertID, &a.CreatedAt, &a.UpdatedAt, &a.ServiceName, &alertType,
			&severity, &a.Title, &a.Description, &a.MetricType, &a.CurrentValue,
			&a.ThresholdValue, &a.BaselineValue, &a.ZScore, &status, &resolvedAt,
			&autoResolved); err != nil {
			return nil, err
		}
		a.AlertType = engine.AlertType(alertType)
		a.Severity = engine.Severity(severity)
		a.Status = engine.AlertStatus(status)
		a.ResolvedAt = resolvedAt
		a.AutoResolved = autoResolved != 0
		out = append(out, a)
	}
	return out, rows.Err()
}

// LastResolvedOrArchived returns the most recent resolved_at among
// resolved/archived alerts for a dedup key, used by C8's cooldown check
// (archived treated as cooldown-equivalent to resolved per the resolved
// open question -- see DESIGN.md).
func (s *Store) LastResolvedOrArchived(ctx context.Context, key engine.DedupKey) (*time.Time, error) {
	row := s.QueryRow(ctx, `SELECT resolved_at FROM alerts
		WHERE service_name = ? AND alert_type = ? AND metric_type = ?
		AND status IN ('resolved', 'archived') AND resolved_at IS NOT NULL
		ORDER BY resolved_at DESC LIMIT 1`, key.ServiceName, string(key.AlertType), string(key.MetricType))

	var resolvedAt time.Time
	if err := row.Scan(&resolvedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &resolvedAt, nil
}

// AlertHistorySince returns alerts of a given (alert_type, metric_type)
// created since `since`, for C7's learned-adjustment aggregation.
func (s *Store) AlertHistorySince(ctx context.Context, alertType engine.AlertType, metricType engine.MetricType, since time.Time) ([]engine.AlertRow, error) {
	rows, err := s.Execute(ctx, `SELECT alert_id, created_at, updated_at, service_name,
		alert_type, severity, title, description, metric_type, current_value,
		threshold_value, baseline_value, z_score, status, resolved_at, auto_resolved
		FROM alerts WHERE alert_type = ? AND metric_type = ? AND created_at >= ?`,
		string(alertType), string(metricType), since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.AlertRow
	for rows.Next() {
		var a engine.AlertRow
		var at, sev, status string
		var resolvedAt *time.Time
		var autoResolved uint8
		if err := rows.Scan(&a.AlertID, &a.CreatedAt, &a.UpdatedAt, &a.ServiceName, &at,
			&sev, &a.Title, &a.Description, &a.MetricType, &a.CurrentValue,
			&a.ThresholdValue, &a.BaselineValue, &a.ZScore, &status, &resolvedAt,
			&autoResolved); err != nil {
			return nil, err
		}
		a.AlertType = engine.AlertType(at)
		a.Severity = engine.Severity(sev)
		a.Status = engine.AlertStatus(status)
		a.ResolvedAt = resolvedAt
		a.AutoResolved = autoResolved != 0
		out = append(out, a)
	}
	return out, rows.Err()
}

// InvestigationExists reports whether alert_investigations already has a
// row for alertID (C9's idempotent re-trigger rejection).
func (s *Store) InvestigationExists(ctx context.Context, alertID string) (bool, error) {
	row := s.QueryRow(ctx, `SELECT count() FROM alert_investigations WHERE alert_id = ?`, alertID)
	var count uint64
	if err := row.Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// InvestigationHasRootCause reports whether alertID has an investigation
// row with a non-empty root_cause_summary, for C7's learned-adjustment
// aggregation (spec §4.7: "investigations with non-empty root_cause_summary").
func (s *Store) InvestigationHasRootCause(ctx context.Context, alertID string) (bool, error) {
	row := s.QueryRow(ctx, `SELECT count() FROM alert_investigations
		WHERE alert_id = ? AND root_cause_summary != ''`, alertID)
	var count uint64
	if err := row.Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// RecentInvestigationTimestamps returns investigated_at for investigations
// in the last `since` window, for C9's hourly rate-limit sliding window.
func (s *Store) RecentInvestigationTimestamps(ctx context.Context, since time.Time) ([]time.Time, error) {
	rows, err := s.Execute(ctx, `SELECT investigated_at FROM alert_investigations WHERE investigated_at >= ?`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// LastInvestigationForService returns the most recent investigated_at for
// a service, for C9's per-service cooldown.
func (s *Store) LastInvestigationForService(ctx context.Context, serviceName string) (*time.Time, error) {
	row := s.QueryRow(ctx, `SELECT investigated_at FROM alert_investigations
		WHERE service_name = ? ORDER BY investigated_at DESC LIMIT 1`, serviceName)
	var t time.Time
	if err := row.Scan(&t); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}
