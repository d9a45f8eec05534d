// Package anomaly implements C6, the anomaly detector: every detection
// tick, it checks each service with a baseline against five symptom/root-
// cause categories, persists anomaly_scores rows for the checks that
// produce a score (see Run), and
// reports the anomalous ones for C8 to turn into alerts.
package anomaly

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"telemetry-pipeline/internal/config"
	"telemetry-pipeline/internal/domain/engine"
)

const (
	symptomWindowMinutes        = 5
	serviceDownWindowHours      = 1
	exceptionSurgeWindowMinutes = 5
	newExceptionWindowMinutes   = 15
	newExceptionMinOccurrences  = 2
	minSpansForErrorRate        = 5
)

// Store is the read/write surface C6 needs from the analytic store.
type Store interface {
	LatestBaseline(ctx context.Context, serviceName string, metricType engine.MetricType) (*engine.ServiceBaselineRow, error)
	ErrorRateWindow(ctx context.Context, serviceName string, minutes int) (total, errors int64, err error)
	LatencyP95Window(ctx context.Context, serviceName string, minutes int) (p95Ms float64, sampleCount int64, err error)
	ThroughputWindow(ctx context.Context, serviceName string, minutes int) (requestCount int64, err error)
	HasRecentSpans(ctx context.Context, serviceName string, withinHours int) (bool, error)
	DBSystemsForService(ctx context.Context, serviceName string, windowHours int) ([]string, error)
	DBLatencyErrorWindow(ctx context.Context, serviceName, dbSystem string, minutes int) (latencyMs, errorRate float64, sampleCount int64, err error)
	DownstreamServices(ctx context.Context, serviceName string, windowHours int) ([]string, error)
	DependencyLatencyErrorWindow(ctx context.Context, serviceName, downstream string, minutes int) (latencyMs, errorRate float64, sampleCount int64, err error)
	ExceptionCountWindow(ctx context.Context, serviceName string, minutes int) (int64, error)
	NewExceptionTypesWindow(ctx context.Context, serviceName string, minutes int, minOccurrences int) ([]string, error)
	InsertAnomalyScore(ctx context.Context, row engine.AnomalyScoreRow) bool
}

// ThresholdManager is C7's gating/threshold surface.
type ThresholdManager interface {
	IsEnabled(category engine.RootCauseCategory) bool
	EffectiveThreshold(category engine.RootCauseCategory) float64
}

// KnownExceptions exposes C5's per-service known-exception-type set.
type KnownExceptions interface {
	KnownExceptionTypes(serviceName string) map[string]bool
}

// Finding is one anomalous check result, ready for C8 to dedup into an
// alert.
type Finding struct {
	ServiceName   string
	AlertType     engine.AlertType
	MetricType    engine.MetricType
	Severity      engine.Severity
	CurrentValue  float64
	ExpectedValue float64
	ThresholdValue float64
	ZScore        float64
}

// Detector runs C6's five checks against every service with a baseline.
type Detector struct {
	store     Store
	threshold ThresholdManager
	known     KnownExceptions
	cfg       *config.ThresholdConfig
	logger    *slog.Logger
}

func New(store Store, threshold ThresholdManager, known KnownExceptions, cfg *config.ThresholdConfig, logger *slog.Logger) *Detector {
	return &Detector{store: store, threshold: threshold, known: known, cfg: cfg, logger: logger}
}

// Run evaluates all five checks for serviceName and returns the anomalous
// findings. The error-rate, latency and throughput checks persist one
// anomaly_scores row whenever they are evaluated (anomalous or not, z=0 when
// no Z-score can be computed); the db, dependency and exception-surge checks
// persist a row only when the baseline stddev is non-zero; the new-exception
// check persists one row per new type; the service-down check persists none.
func (d *Detector) Run(ctx context.Context, serviceName string) []Finding {
	var findings []Finding

	if f := d.checkErrorRate(ctx, serviceName); f != nil {
		findings = append(findings, *f)
	}
	if f := d.checkLatency(ctx, serviceName); f != nil {
		findings = append(findings, *f)
	}
	if f := d.checkThroughputDrop(ctx, serviceName); f != nil {
		findings = append(findings, *f)
	}
	if f := d.checkServiceDown(ctx, serviceName); f != nil {
		findings = append(findings, *f)
	}
	findings = append(findings, d.checkRootCauseCategories(ctx, serviceName)...)

	return findings
}

// zScoreSeverity maps a Z-score to a severity using threshold theta, with
// critical at 1.5*theta (spec §4.6 steps 1-3).
func zScoreSeverity(absZ, theta float64) (engine.Severity, bool) {
	switch {
	case absZ > 1.5*theta:
		return engine.SeverityCritical, true
	case absZ > theta:
		return engine.SeverityWarning, true
	default:
		return "", false
	}
}

func (d *Detector) persistScore(ctx context.Context, serviceName string, metricType engine.MetricType, current, expected, mean, stddev, z, score float64, isAnomaly bool) {
	row := engine.AnomalyScoreRow{
		Timestamp:       time.Now().UTC(),
		ServiceName:     serviceName,
		MetricType:      metricType,
		CurrentValue:    current,
		ExpectedValue:   expected,
		BaselineMean:    mean,
		BaselineStddev:  stddev,
		ZScore:          z,
		AnomalyScore:    score,
		IsAnomaly:       isAnomaly,
		DetectionMethod: engine.DetectionMethodZScore,
	}
	if !d.store.InsertAnomalyScore(ctx, row) {
		d.logger.Error("failed to persist anomaly score", "service", serviceName, "metric_type", metricType)
	}
}

// anomalyScore computes spec §8.1's anomaly_score = min(1.0, |z|/5).
func anomalyScore(z float64) float64 {
	s := absf(z) / 5.0
	if s > 1.0 {
		return 1.0
	}
	return s
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// zScore computes (current-mean)/stddev, returning ok=false if stddev is
// zero (spec §8.3: "stddev == 0 -> no Z-score-based anomaly").
func zScore(current, mean, stddev float64) (float64, bool) {
	if stddev <= 0 {
		return 0, false
	}
	return (current - mean) / stddev, true
}

func (d *Detector) checkErrorRate(ctx context.Context, serviceName string) *Finding {
	baseline, err := d.store.LatestBaseline(ctx, serviceName, "error_rate")
	if err != nil {
		d.logger.Error("error_rate baseline read failed", "service", serviceName, "error", err)
		return nil
	}
	if baseline == nil {
		return nil
	}

	total, errs, err := d.store.ErrorRateWindow(ctx, serviceName, symptomWindowMinutes)
	if err != nil {
		d.logger.Error("error_rate window read failed", "service", serviceName, "error", err)
		return nil
	}
	if total < minSpansForErrorRate {
		return nil
	}
	rate := float64(errs) / float64(total)

	z, hasZ := zScore(rate, baseline.BaselineMean, baseline.BaselineStddev)
	severity, anomalous := "", false
	if hasZ {
		if sev, ok := zScoreSeverity(absf(z), d.cfg.ZScoreThreshold); ok {
			severity, anomalous = string(sev), true
		}
	}
	if rate >= d.cfg.ErrorRateCritical {
		severity, anomalous = string(engine.SeverityCritical), true
	} else if rate >= d.cfg.ErrorRateWarning && !anomalous {
		severity, anomalous = string(engine.SeverityWarning), true
	}

	d.persistScore(ctx, serviceName, "error_rate", rate, baseline.BaselineMean, baseline.BaselineMean, baseline.BaselineStddev, z, anomalyScore(z), anomalous)
	if !anomalous {
		return nil
	}
	return &Finding{
		ServiceName: serviceName, AlertType: engine.AlertTypeErrorSpike, MetricType: "error_rate",
		Severity: engine.Severity(severity), CurrentValue: rate, ExpectedValue: baseline.BaselineMean,
		ThresholdValue: d.cfg.ZScoreThreshold, ZScore: z,
	}
}

func (d *Detector) checkLatency(ctx context.Context, serviceName string) *Finding {
	baseline, err := d.store.LatestBaseline(ctx, serviceName, "latency_p95")
	if err != nil {
		d.logger.Error("latency_p95 baseline read failed", "service", serviceName, "error", err)
		return nil
	}
	if baseline == nil {
		return nil
	}

	p95, n, err := d.store.LatencyP95Window(ctx, serviceName, symptomWindowMinutes)
	if err != nil {
		d.logger.Error("latency window read failed", "service", serviceName, "error", err)
		return nil
	}
	if n < minSpansForErrorRate {
		return nil
	}

	z, hasZ := zScore(p95, baseline.BaselineMean, baseline.BaselineStddev)
	if !hasZ {
		d.persistScore(ctx, serviceName, "latency_p95", p95, baseline.BaselineMean, baseline.BaselineMean, baseline.BaselineStddev, 0, 0, false)
		return nil
	}

	sev, anomalous := zScoreSeverity(absf(z), d.cfg.ZScoreThreshold)
	d.persistScore(ctx, serviceName, "latency_p95", p95, baseline.BaselineMean, baseline.BaselineMean, baseline.BaselineStddev, z, anomalyScore(z), anomalous)
	if !anomalous {
		return nil
	}
	return &Finding{
		ServiceName: serviceName, AlertType: engine.AlertTypeLatencySpike, MetricType: "latency_p95",
		Severity: sev, CurrentValue: p95, ExpectedValue: baseline.BaselineMean,
		ThresholdValue: d.cfg.ZScoreThreshold, ZScore: z,
	}
}

func (d *Detector) checkThroughputDrop(ctx context.Context, serviceName string) *Finding {
	baseline, err := d.store.LatestBaseline(ctx, serviceName, "throughput")
	if err != nil {
		d.logger.Error("throughput baseline read failed", "service", serviceName, "error", err)
		return nil
	}
	if baseline == nil || baseline.BaselineMean < 1.0 {
		return nil
	}

	requests, err := d.store.ThroughputWindow(ctx, serviceName, symptomWindowMinutes)
	if err != nil {
		d.logger.Error("throughput window read failed", "service", serviceName, "error", err)
		return nil
	}
	perMinute := float64(requests) / float64(symptomWindowMinutes)

	z, hasZ := zScore(perMinute, baseline.BaselineMean, baseline.BaselineStddev)
	if !hasZ {
		d.persistScore(ctx, serviceName, "throughput", perMinute, baseline.BaselineMean, baseline.BaselineMean, baseline.BaselineStddev, 0, 0, false)
		return nil
	}

	anomalous := z < -d.cfg.ZScoreThreshold
	sev := engine.SeverityWarning
	if z < -1.5*d.cfg.ZScoreThreshold {
		sev = engine.SeverityCritical
	}
	d.persistScore(ctx, serviceName, "throughput", perMinute, baseline.BaselineMean, baseline.BaselineMean, baseline.BaselineStddev, z, anomalyScore(z), anomalous)
	if !anomalous {
		return nil
	}
	return &Finding{
		ServiceName: serviceName, AlertType: engine.AlertTypeThroughputDrop, MetricType: "throughput",
		Severity: sev, CurrentValue: perMinute, ExpectedValue: baseline.BaselineMean,
		ThresholdValue: d.cfg.ZScoreThreshold, ZScore: z,
	}
}

func (d *Detector) checkServiceDown(ctx context.Context, serviceName string) *Finding {
	hasRecent, err := d.store.HasRecentSpans(ctx, serviceName, serviceDownWindowHours)
	if err != nil {
		d.logger.Error("service-down span check failed", "service", serviceName, "error", err)
		return nil
	}
	if hasRecent {
		return nil
	}
	return &Finding{
		ServiceName: serviceName, AlertType: engine.AlertTypeServiceDown, MetricType: "availability",
		Severity: engine.SeverityCritical, CurrentValue: 0, ExpectedValue: 1,
	}
}

func (d *Detector) checkRootCauseCategories(ctx context.Context, serviceName string) []Finding {
	var out []Finding
	out = append(out, d.checkDBCategories(ctx, serviceName)...)
	out = append(out, d.checkDependencyCategories(ctx, serviceName)...)
	if f := d.checkExceptionSurge(ctx, serviceName); f != nil {
		out = append(out, *f)
	}
	out = append(out, d.checkNewExceptionTypes(ctx, serviceName)...)
	return out
}

func (d *Detector) checkDBCategories(ctx context.Context, serviceName string) []Finding {
	var out []Finding
	systems, err := d.store.DBSystemsForService(ctx, serviceName, 24)
	if err != nil {
		d.logger.Error("db systems read failed", "service", serviceName, "error", err)
		return nil
	}
	for _, system := range systems {
		out = append(out, d.checkDBSystem(ctx, serviceName, system)...)
	}
	return out
}

// checkDBSystem evaluates the DB_SLOW_QUERIES (latency) and
// DB_CONNECTION_FAILURE (error_rate) categories for one service/db_system
// pair against their respective baselines, using C7's effective threshold.
func (d *Detector) checkDBSystem(ctx context.Context, serviceName, system string) []Finding {
	var out []Finding

	latBaseline, err := d.store.LatestBaseline(ctx, serviceName, engine.MetricType(fmt.Sprintf("db_%s_latency", system)))
	if err != nil {
		d.logger.Error("db latency baseline read failed", "service", serviceName, "db_system", system, "error", err)
		latBaseline = nil
	}
	errBaseline, err := d.store.LatestBaseline(ctx, serviceName, engine.MetricType(fmt.Sprintf("db_%s_error_rate", system)))
	if err != nil {
		d.logger.Error("db error_rate baseline read failed", "service", serviceName, "db_system", system, "error", err)
		errBaseline = nil
	}
	if latBaseline == nil && errBaseline == nil {
		return nil
	}

	latencyMs, errorRate, n, err := d.store.DBLatencyErrorWindow(ctx, serviceName, system, symptomWindowMinutes)
	if err != nil {
		d.logger.Error("db window read failed", "service", serviceName, "db_system", system, "error", err)
		return nil
	}
	if n < minSpansForErrorRate {
		return nil
	}

	if d.threshold.IsEnabled(engine.AlertTypeDBSlowQueries) && latBaseline != nil {
		metricType := engine.MetricType(fmt.Sprintf("db_%s_latency", system))
		theta := d.threshold.EffectiveThreshold(engine.AlertTypeDBSlowQueries)
		if z, ok := zScore(latencyMs, latBaseline.BaselineMean, latBaseline.BaselineStddev); ok {
			sev, anomalous := zScoreSeverity(absf(z), theta)
			d.persistScore(ctx, serviceName, metricType, latencyMs, latBaseline.BaselineMean, latBaseline.BaselineMean, latBaseline.BaselineStddev, z, anomalyScore(z), anomalous)
			if anomalous {
				out = append(out, Finding{
					ServiceName: serviceName, AlertType: engine.AlertTypeDBSlowQueries, MetricType: metricType,
					Severity: sev, CurrentValue: latencyMs, ExpectedValue: latBaseline.BaselineMean,
					ThresholdValue: theta, ZScore: z,
				})
			}
		}
	}

	if d.threshold.IsEnabled(engine.AlertTypeDBConnFailure) && errBaseline != nil {
		metricType := engine.MetricType(fmt.Sprintf("db_%s_error_rate", system))
		theta := d.threshold.EffectiveThreshold(engine.AlertTypeDBConnFailure)
		if z, ok := zScore(errorRate, errBaseline.BaselineMean, errBaseline.BaselineStddev); ok {
			sev, anomalous := zScoreSeverity(absf(z), theta)
			d.persistScore(ctx, serviceName, metricType, errorRate, errBaseline.BaselineMean, errBaseline.BaselineMean, errBaseline.BaselineStddev, z, anomalyScore(z), anomalous)
			if anomalous {
				out = append(out, Finding{
					ServiceName: serviceName, AlertType: engine.AlertTypeDBConnFailure, MetricType: metricType,
					Severity: sev, CurrentValue: errorRate, ExpectedValue: errBaseline.BaselineMean,
					ThresholdValue: theta, ZScore: z,
				})
			}
		}
	}

	return out
}

func (d *Detector) checkDependencyCategories(ctx context.Context, serviceName string) []Finding {
	var out []Finding
	downstreams, err := d.store.DownstreamServices(ctx, serviceName, 24)
	if err != nil {
		d.logger.Error("downstream services read failed", "service", serviceName, "error", err)
		return nil
	}
	for _, downstream := range downstreams {
		out = append(out, d.checkDependency(ctx, serviceName, downstream)...)
	}
	return out
}

// checkDependency evaluates DEPENDENCY_LATENCY and DEPENDENCY_FAILURE for
// one service/downstream pair against their respective baselines.
func (d *Detector) checkDependency(ctx context.Context, serviceName, downstream string) []Finding {
	var out []Finding

	latBaseline, err := d.store.LatestBaseline(ctx, serviceName, engine.MetricType(fmt.Sprintf("dep_%s_latency", downstream)))
	if err != nil {
		d.logger.Error("dependency latency baseline read failed", "service", serviceName, "downstream", downstream, "error", err)
		latBaseline = nil
	}
	errBaseline, err := d.store.LatestBaseline(ctx, serviceName, engine.MetricType(fmt.Sprintf("dep_%s_error_rate", downstream)))
	if err != nil {
		d.logger.Error("dependency error_rate baseline read failed", "service", serviceName, "downstream", downstream, "error", err)
		errBaseline = nil
	}
	if latBaseline == nil && errBaseline == nil {
		return nil
	}

	latencyMs, errorRate, n, err := d.store.DependencyLatencyErrorWindow(ctx, serviceName, downstream, symptomWindowMinutes)
	if err != nil {
		d.logger.Error("dependency window read failed", "service", serviceName, "downstream", downstream, "error", err)
		return nil
	}
	if n < minSpansForErrorRate {
		return nil
	}

	if d.threshold.IsEnabled(engine.AlertTypeDependencyLatency) && latBaseline != nil {
		metricType := engine.MetricType(fmt.Sprintf("dep_%s_latency", downstream))
		theta := d.threshold.EffectiveThreshold(engine.AlertTypeDependencyLatency)
		if z, ok := zScore(latencyMs, latBaseline.BaselineMean, latBaseline.BaselineStddev); ok {
			sev, anomalous := zScoreSeverity(absf(z), theta)
			d.persistScore(ctx, serviceName, metricType, latencyMs, latBaseline.BaselineMean, latBaseline.BaselineMean, latBaseline.BaselineStddev, z, anomalyScore(z), anomalous)
			if anomalous {
				out = append(out, Finding{
					ServiceName: serviceName, AlertType: engine.AlertTypeDependencyLatency, MetricType: metricType,
					Severity: sev, CurrentValue: latencyMs, ExpectedValue: latBaseline.BaselineMean,
					ThresholdValue: theta, ZScore: z,
				})
			}
		}
	}

	if d.threshold.IsEnabled(engine.AlertTypeDependencyFailure) && errBaseline != nil {
		metricType := engine.MetricType(fmt.Sprintf("dep_%s_error_rate", downstream))
		theta := d.threshold.EffectiveThreshold(engine.AlertTypeDependencyFailure)
		if z, ok := zScore(errorRate, errBaseline.BaselineMean, errBaseline.BaselineStddev); ok {
			sev, anomalous := zScoreSeverity(absf(z), theta)
			d.persistScore(ctx, serviceName, metricType, errorRate, errBaseline.BaselineMean, errBaseline.BaselineMean, errBaseline.BaselineStddev, z, anomalyScore(z), anomalous)
			if anomalous {
				out = append(out, Finding{
					ServiceName: serviceName, AlertType: engine.AlertTypeDependencyFailure, MetricType: metricType,
					Severity: sev, CurrentValue: errorRate, ExpectedValue: errBaseline.BaselineMean,
					ThresholdValue: theta, ZScore: z,
				})
			}
		}
	}

	return out
}

func (d *Detector) checkExceptionSurge(ctx context.Context, serviceName string) *Finding {
	if !d.threshold.IsEnabled(engine.AlertTypeExceptionSurge) {
		return nil
	}
	baseline, err := d.store.LatestBaseline(ctx, serviceName, "exception_rate")
	if err != nil || baseline == nil {
		return nil
	}

	count5Min, err := d.store.ExceptionCountWindow(ctx, serviceName, exceptionSurgeWindowMinutes)
	if err != nil {
		d.logger.Error("exception count window read failed", "service", serviceName, "error", err)
		return nil
	}
	hourlyEquivalent := float64(count5Min) * 12.0

	z, hasZ := zScore(hourlyEquivalent, baseline.BaselineMean, baseline.BaselineStddev)
	if !hasZ {
		return nil
	}
	theta := d.threshold.EffectiveThreshold(engine.AlertTypeExceptionSurge)
	sev, anomalous := zScoreSeverity(absf(z), theta)
	d.persistScore(ctx, serviceName, "exception_rate", hourlyEquivalent, baseline.BaselineMean, baseline.BaselineMean, baseline.BaselineStddev, z, anomalyScore(z), anomalous)
	if !anomalous {
		return nil
	}
	return &Finding{
		ServiceName: serviceName, AlertType: engine.AlertTypeExceptionSurge, MetricType: "exception_rate",
		Severity: sev, CurrentValue: hourlyEquivalent, ExpectedValue: baseline.BaselineMean,
		ThresholdValue: theta, ZScore: z,
	}
}

func (d *Detector) checkNewExceptionTypes(ctx context.Context, serviceName string) []Finding {
	if !d.threshold.IsEnabled(engine.AlertTypeNewExceptionType) {
		return nil
	}
	seen, err := d.store.NewExceptionTypesWindow(ctx, serviceName, newExceptionWindowMinutes, newExceptionMinOccurrences)
	if err != nil {
		d.logger.Error("new exception types read failed", "service", serviceName, "error", err)
		return nil
	}
	known := d.known.KnownExceptionTypes(serviceName)

	var out []Finding
	for _, excType := range seen {
		if known[excType] {
			continue
		}
		metricType := engine.MetricType("exception_type_" + excType)
		d.persistScore(ctx, serviceName, metricType, 1, 0, 0, 0, 0, 1.0, true)
		out = append(out, Finding{
			ServiceName: serviceName, AlertType: engine.AlertTypeNewExceptionType,
			MetricType: metricType, Severity: engine.SeverityWarning,
			CurrentValue: 1, ExpectedValue: 0,
		})
	}
	return out
}
