// Package alertmanager implements C8, the alert manager: it turns C6's
// anomalous findings into alerts table rows, enforcing the dedup key
// (service_name, alert_type, metric_type), the active/acknowledged/
// resolved/archived state machine, and the post-resolve cooldown.
package alertmanager

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"telemetry-pipeline/internal/domain/engine"
	"telemetry-pipeline/internal/services/anomaly"
	"telemetry-pipeline/pkg/ulid"
)

// Store is the read/write surface C8 needs from the analytic store.
type Store interface {
	ActiveAlerts(ctx context.Context) ([]engine.AlertRow, error)
	LastResolvedOrArchived(ctx context.Context, key engine.DedupKey) (*time.Time, error)
	InsertAlert(ctx context.Context, row engine.AlertRow) bool
	UpdateAlert(ctx context.Context, row engine.AlertRow) bool
}

// NewAlert is a freshly created alert, returned so C9 can decide whether to
// investigate it (investigations run only on new alerts, never updates).
type NewAlert struct {
	Alert engine.AlertRow
}

// Manager owns the in-memory cache of currently-active alerts, rebuilt from
// the store at startup and kept in sync by ProcessFindings/AutoResolve.
type Manager struct {
	store    Store
	cooldown time.Duration
	logger   *slog.Logger

	active map[engine.DedupKey]engine.AlertRow
}

func New(store Store, cooldown time.Duration, logger *slog.Logger) *Manager {
	return &Manager{store: store, cooldown: cooldown, logger: logger, active: make(map[engine.DedupKey]engine.AlertRow)}
}

// LoadActive rebuilds the in-memory dedup cache from the store's current
// active alerts. Call once at startup (spec §9: "source-of-truth is the
// store; this is a cache rebuilt on startup").
func (m *Manager) LoadActive(ctx context.Context) error {
	rows, err := m.store.ActiveAlerts(ctx)
	if err != nil {
		return err
	}
	m.active = make(map[engine.DedupKey]engine.AlertRow, len(rows))
	for _, row := range rows {
		m.active[dedupKeyOf(row)] = row
	}
	return nil
}

func dedupKeyOf(row engine.AlertRow) engine.DedupKey {
	return engine.DedupKey{ServiceName: row.ServiceName, AlertType: row.AlertType, MetricType: row.MetricType}
}

// ProcessFindings applies one detection pass's findings to the alert state
// machine: new keys become active alerts (unless in cooldown), existing
// active keys are updated, and every finding's key is returned in seenKeys
// so the caller can auto-resolve anything absent. Newly created alerts are
// returned for C9 to consider investigating.
func (m *Manager) ProcessFindings(ctx context.Context, findings []anomaly.Finding) (newAlerts []NewAlert, seenKeys map[engine.DedupKey]bool) {
	seenKeys = make(map[engine.DedupKey]bool, len(findings))
	now := time.Now().UTC()

	for _, f := range findings {
		key := engine.DedupKey{ServiceName: f.ServiceName, AlertType: f.AlertType, MetricType: f.MetricType}
		seenKeys[key] = true

		if existing, ok := m.active[key]; ok {
			m.updateAlert(ctx, existing, f, now)
			continue
		}

		if m.inCooldown(ctx, key, now) {
			continue
		}

		row := m.createAlert(ctx, f, now)
		if row != nil {
			newAlerts = append(newAlerts, NewAlert{Alert: *row})
		}
	}
	return newAlerts, seenKeys
}

func (m *Manager) inCooldown(ctx context.Context, key engine.DedupKey, now time.Time) bool {
	if m.cooldown <= 0 {
		return false
	}
	lastResolved, err := m.store.LastResolvedOrArchived(ctx, key)
	if err != nil {
		m.logger.Error("cooldown check failed", "service", key.ServiceName, "alert_type", key.AlertType, "error", err)
		return false
	}
	if lastResolved == nil {
		return false
	}
	return now.Sub(*lastResolved) < m.cooldown
}

func (m *Manager) createAlert(ctx context.Context, f anomaly.Finding, now time.Time) *engine.AlertRow {
	row := engine.AlertRow{
		AlertID:        ulid.NewShortHex(),
		CreatedAt:      now,
		UpdatedAt:      now,
		ServiceName:    f.ServiceName,
		AlertType:      f.AlertType,
		Severity:       f.Severity,
		Title:          titleFor(f),
		Description:    descriptionFor(f),
		MetricType:     f.MetricType,
		CurrentValue:   f.CurrentValue,
		ThresholdValue: f.ThresholdValue,
		BaselineValue:  f.ExpectedValue,
		ZScore:         f.ZScore,
		Status:         engine.AlertStatusActive,
	}
	if !m.store.InsertAlert(ctx, row) {
		m.logger.Error("failed to insert alert", "service", f.ServiceName, "alert_type", f.AlertType)
		return nil
	}
	m.active[dedupKeyOf(row)] = row
	return &row
}

func (m *Manager) updateAlert(ctx context.Context, existing engine.AlertRow, f anomaly.Finding, now time.Time) {
	existing.UpdatedAt = now
	existing.CurrentValue = f.CurrentValue
	existing.ZScore = f.ZScore
	existing.Severity = f.Severity
	existing.ThresholdValue = f.ThresholdValue
	existing.BaselineValue = f.ExpectedValue

	if !m.store.UpdateAlert(ctx, existing) {
		m.logger.Error("failed to update alert", "alert_id", existing.AlertID)
		return
	}
	m.active[dedupKeyOf(existing)] = existing
}

// AutoResolve transitions every active alert whose key is absent from
// seenKeys to resolved/auto_resolved=true, and removes it from the active
// cache (spec §4.8: "at the end of each detection pass").
func (m *Manager) AutoResolve(ctx context.Context, seenKeys map[engine.DedupKey]bool) {
	now := time.Now().UTC()
	for key, row := range m.active {
		if seenKeys[key] {
			continue
		}
		row.Status = engine.AlertStatusResolved
		row.AutoResolved = true
		row.ResolvedAt = &now
		row.UpdatedAt = now
		if !m.store.UpdateAlert(ctx, row) {
			m.logger.Error("failed to auto-resolve alert", "alert_id", row.AlertID)
			continue
		}
		delete(m.active, key)
	}
}

// Acknowledge transitions an active alert to acknowledged (user-driven).
func (m *Manager) Acknowledge(ctx context.Context, alertID string) bool {
	return m.transitionByID(ctx, alertID, engine.AlertStatusAcknowledged, false)
}

// Resolve transitions an active alert to resolved with auto_resolved=false
// (user-driven, as opposed to AutoResolve's pass-based resolution).
func (m *Manager) Resolve(ctx context.Context, alertID string) bool {
	return m.transitionByID(ctx, alertID, engine.AlertStatusResolved, false)
}

// Archive transitions an alert to the terminal archived state.
func (m *Manager) Archive(ctx context.Context, alertID string) bool {
	return m.transitionByID(ctx, alertID, engine.AlertStatusArchived, false)
}

func (m *Manager) transitionByID(ctx context.Context, alertID string, status engine.AlertStatus, autoResolved bool) bool {
	for key, row := range m.active {
		if row.AlertID != alertID {
			continue
		}
		now := time.Now().UTC()
		row.Status = status
		row.UpdatedAt = now
		row.AutoResolved = autoResolved
		if status == engine.AlertStatusResolved || status == engine.AlertStatusArchived {
			row.ResolvedAt = &now
		}
		if !m.store.UpdateAlert(ctx, row) {
			m.logger.Error("failed to transition alert", "alert_id", alertID, "status", status)
			return false
		}
		if status != engine.AlertStatusActive {
			delete(m.active, key)
		}
		return true
	}
	return false
}

func titleFor(f anomaly.Finding) string {
	return fmt.Sprintf("%s: %s on %s", severityLabel(f.Severity), alertTypeLabel(f.AlertType), f.ServiceName)
}

func descriptionFor(f anomaly.Finding) string {
	return fmt.Sprintf("%s observed %.4f for %s (baseline %.4f, z=%.2f)",
		f.ServiceName, f.CurrentValue, f.MetricType, f.ExpectedValue, f.ZScore)
}

func severityLabel(s engine.Severity) string {
	switch s {
	case engine.SeverityCritical:
		return "Critical"
	case engine.SeverityWarning:
		return "Warning"
	default:
		return "Info"
	}
}

func alertTypeLabel(t engine.AlertType) string {
	switch t {
	case engine.AlertTypeErrorSpike:
		return "error spike"
	case engine.AlertTypeLatencySpike:
		return "latency spike"
	case engine.AlertTypeThroughputDrop:
		return "throughput drop"
	case engine.AlertTypeServiceDown:
		return "service down"
	case engine.AlertTypeDBSlowQueries:
		return "slow database queries"
	case engine.AlertTypeDBConnFailure:
		return "database connection failures"
	case engine.AlertTypeDependencyLatency:
		return "dependency latency"
	case engine.AlertTypeDependencyFailure:
		return "dependency failures"
	case engine.AlertTypeExceptionSurge:
		return "exception surge"
	case engine.AlertTypeNewExceptionType:
		return "new exception type"
	default:
		return string(t)
	}
}
