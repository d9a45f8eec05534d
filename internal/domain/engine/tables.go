// Package engine holds the row types for the four engine tables the
// predictive alert components (C5-C9) read and write: service_baselines,
// anomaly_scores, alerts, and alert_investigations.
package engine

import "time"

// MetricType names the statistic a baseline/anomaly row is about: one of
// the fixed metrics C5 computes ("error_rate", "latency_p95", ...) or a
// dynamic "db_<system>_latency"/"dep_<service>_latency" style name.
type MetricType string

// Severity is an alert's urgency.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// AlertStatus is a position in the alert state machine.
type AlertStatus string

const (
	AlertStatusActive       AlertStatus = "active"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusResolved     AlertStatus = "resolved"
	AlertStatusArchived     AlertStatus = "archived"
)

// AlertType names the symptom or root-cause category that produced an
// alert (e.g. "error_spike", "throughput_drop", "service_down",
// "db_slow_queries", "new_exception_type").
type AlertType string

const (
	AlertTypeErrorSpike       AlertType = "error_spike"
	AlertTypeLatencySpike     AlertType = "latency_spike"
	AlertTypeThroughputDrop   AlertType = "throughput_drop"
	AlertTypeServiceDown      AlertType = "service_down"
	AlertTypeDBSlowQueries    AlertType = "db_slow_queries"
	AlertTypeDBConnFailure    AlertType = "db_connection_failure"
	AlertTypeDependencyLatency AlertType = "dependency_latency"
	AlertTypeDependencyFailure AlertType = "dependency_failure"
	AlertTypeExceptionSurge   AlertType = "exception_surge"
	AlertTypeNewExceptionType AlertType = "new_exception_type"
)

// RootCauseCategory is the subset of AlertType produced by C6 step 5 (the
// optional, threshold-manager-gated root-cause checks), as distinct from
// the always-on symptom checks (steps 1-4).
type RootCauseCategory = AlertType

const (
	CategoryDBSlowQueries     = AlertTypeDBSlowQueries
	CategoryDBConnFailure     = AlertTypeDBConnFailure
	CategoryDependencyLatency = AlertTypeDependencyLatency
	CategoryDependencyFailure = AlertTypeDependencyFailure
	CategoryExceptionSurge    = AlertTypeExceptionSurge
	CategoryNewExceptionType  = AlertTypeNewExceptionType
)

// DetectionMethod names how an anomaly_scores row was produced. Z-score is
// the only method spec'd; the field exists so a future method does not
// require a schema change.
const DetectionMethodZScore = "zscore"

// ServiceBaselineRow is one row of service_baselines: a statistical summary
// of a metric over a historical window, computed by C5. Rows are
// append-only; the latest row per (ServiceName, MetricType) is the current
// baseline.
type ServiceBaselineRow struct {
	ComputedAt    time.Time
	ServiceName   string
	MetricType    MetricType
	BaselineMean  float64
	BaselineStddev float64
	BaselineMin   float64
	BaselineMax   float64
	BaselineP50   float64
	BaselineP95   float64
	BaselineP99   float64
	SampleCount   int32
	WindowHours   int32
}

// AnomalyScoreRow is one row of anomaly_scores: a single detection finding
// persisted by C6, whether or not it crossed the alerting threshold.
type AnomalyScoreRow struct {
	Timestamp      time.Time
	ServiceName    string
	MetricType     MetricType
	CurrentValue   float64
	ExpectedValue  float64
	BaselineMean   float64
	BaselineStddev float64
	ZScore         float64
	AnomalyScore   float64
	IsAnomaly      bool
	DetectionMethod string
}

// AlertRow is one row of the alerts table. AlertID is an 8-hex-character
// identifier (pkg/ulid.NewShortHex). Dedup key is
// (ServiceName, AlertType, MetricType).
type AlertRow struct {
	AlertID       string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ServiceName   string
	AlertType     AlertType
	Severity      Severity
	Title         string
	Description   string
	MetricType    MetricType
	CurrentValue  float64
	ThresholdValue float64
	BaselineValue float64
	ZScore        float64
	Status        AlertStatus
	ResolvedAt    *time.Time
	AutoResolved  bool
}

// DedupKey is the triple identifying at most one active alert.
type DedupKey struct {
	ServiceName string
	AlertType   AlertType
	MetricType  MetricType
}

// AlertInvestigationRow is one row of alert_investigations: the result of
// C9's root-cause loop for a single alert. At most one row exists per
// AlertID.
type AlertInvestigationRow struct {
	InvestigationID    string
	AlertID            string
	InvestigatedAt     time.Time
	ServiceName        string
	AlertType          AlertType
	ModelUsed          string
	RootCauseSummary   string
	RecommendedActions string
	SupportingEvidence string
	QueriesExecuted    int32
	TokensUsed         int32
}
