package store

import (
	"context"

	"telemetry-pipeline/internal/domain/engine"
)

// InsertBaseline appends one service_baselines row. Baselines are
// append-only; the latest row per (service_name, metric_type) is the
// current baseline (enforced by how readers query, not by the schema).
func (s *Store) InsertBaseline(ctx context.Context, row engine.ServiceBaselineRow) bool {
	return s.ExecuteWrite(ctx, `INSERT INTO service_baselines
		(computed_at, service_name, metric_type, baseline_mean, baseline_stddev,
		 baseline_min, baseline_max, baseline_p50, baseline_p95, baseline_p99,
		 sample_count, window_hours) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ComputedAt, row.ServiceName, string(row.MetricType), row.BaselineMean,
		row.BaselineStddev, row.BaselineMin, row.BaselineMax, row.BaselineP50,
		row.BaselineP95, row.BaselineP99, row.SampleCount, row.WindowHours)
}

// InsertAnomalyScore appends one anomaly_scores row.
func (s *Store) InsertAnomalyScore(ctx context.Context, row engine.AnomalyScoreRow) bool {
	isAnomaly := uint8(0)
	if row.IsAnomaly {
		isAnomaly = 1
	}
	return s.ExecuteWrite(ctx, `INSERT INTO anomaly_scores
		(timestamp, service_name, metric_type, current_value, expected_value,
		 baseline_mean, baseline_stddev, z_score, anomaly_score, is_anomaly,
		 detection_method) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.Timestamp, row.ServiceName, string(row.MetricType), row.CurrentValue,
		row.ExpectedValue, row.BaselineMean, row.BaselineStddev, row.ZScore,
		row.AnomalyScore, isAnomaly, row.DetectionMethod)
}

// InsertAlert appends a brand-new alerts row (dedup key not currently
// active).
func (s *Store) InsertAlert(ctx context.Context, row engine.AlertRow) bool {
	autoResolved := uint8(0)
	if row.AutoResolved {
		autoResolved = 1
	}
	return s.ExecuteWrite(ctx, `INSERT INTO alerts
		(alert_id, created_at, updated_at, service_name, alert_type, severity, title,
		 description, metric_type, current_value, threshold_value, baseline_value,
		 z_score, status, resolved_at, auto_resolved)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.AlertID, row.CreatedAt, row.UpdatedAt, row.ServiceName, string(row.AlertType),
		string(row.Severity), row.Title, row.Description, string(row.MetricType),
		row.CurrentValue, row.ThresholdValue, row.BaselineValue, row.ZScore,
		string(row.Status), row.ResolvedAt, autoResolved)
}

// UpdateAlert mutates the given alert_id's row in place via ClickHouse's
// ALTER TABLE ... UPDATE mutation, the store's row-level UPDATE mechanism
// for the one mutable table (spec §3.3: "Engine tables use row-level UPDATE
// only on alerts").
func (s *Store) UpdateAlert(ctx context.Context, row engine.AlertRow) bool {
	var resolvedAtExpr any = row.ResolvedAt
	autoResolved := uint8(0)
	if row.AutoResolved {
		autoResolved = 1
	}
	return s.ExecuteWrite(ctx, `ALTER TABLE alerts UPDATE
		updated_at = ?, severity = ?, title = ?, description = ?, current_value = ?,
		threshold_value = ?, baseline_value = ?, z_score = ?, status = ?,
		resolved_at = ?, auto_resolved = ?
		WHERE alert_id = ?`,
		row.UpdatedAt, string(row.Severity), row.Title, row.Description, row.CurrentValue,
		row.ThresholdValue, row.BaselineValue, row.ZScore, string(row.Status),
		resolvedAtExpr, autoResolved, row.AlertID)
}

// InsertInvestigation appends one alert_investigations row. The caller (C9)
// is responsible for the "at most once per alert" idempotence invariant.
func (s *Store) InsertInvestigation(ctx context.Context, row engine.AlertInvestigationRow) bool {
	return s.ExecuteWrite(ctx, `INSERT INTO alert_investigations
		(investigation_id, alert_id, investigated_at, service_name, alert_type,
		 model_used, root_cause_summary, recommended_actions, supporting_evidence,
		 queries_executed, tokens_used) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.InvestigationID, row.AlertID, row.InvestigatedAt, row.ServiceName,
		string(row.AlertType), row.ModelUsed, row.RootCauseSummary, row.RecommendedActions,
		row.SupportingEvidence, row.QueriesExecuted, row.TokensUsed)
}
