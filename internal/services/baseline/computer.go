package baseline

import (
	"context"
	"log/slog"
	"time"

	"telemetry-pipeline/internal/config"
	"telemetry-pipeline/internal/domain/engine"
)

// Store is the read/write surface the baseline computer needs from the
// analytic store.
type Store interface {
	ActiveServices(ctx context.Context, windowHours int) ([]string, error)
	DBSystemsForService(ctx context.Context, serviceName string, windowHours int) ([]string, error)
	DBLatencyErrorHourlyBuckets(ctx context.Context, serviceName, dbSystem string, windowHours int) (latencies, errorRates []float64, err error)
	DownstreamServices(ctx context.Context, serviceName string, windowHours int) ([]string, error)
	DependencyHourlyBuckets(ctx context.Context, serviceName, downstream string, windowHours int) (latencies, errorRates []float64, err error)
	ErrorRateHourlyBuckets(ctx context.Context, serviceName string, windowHours int) ([]float64, error)
	LatencyPercentileHourlyBuckets(ctx context.Context, serviceName string, quantile float64, windowHours int) ([]float64, error)
	ThroughputMinuteBuckets(ctx context.Context, serviceName string, windowHours int) ([]float64, error)
	ExceptionRateHourlyBuckets(ctx context.Context, serviceName string, windowHours int) ([]float64, error)
	KnownExceptionTypes(ctx context.Context, serviceName string, windowHours int, minOccurrences int) ([]string, error)
	InsertBaseline(ctx context.Context, row engine.ServiceBaselineRow) bool
}

const knownExceptionMinOccurrences = 3

// Computer runs C5: computing and persisting per-service baselines, and
// tracking each service's set of "known" exception types.
type Computer struct {
	store  Store
	cfg    *config.DetectionConfig
	thresh *config.ThresholdConfig
	logger *slog.Logger

	knownExceptions map[string]map[string]bool
}

func New(store Store, cfg *config.DetectionConfig, thresh *config.ThresholdConfig, logger *slog.Logger) *Computer {
	return &Computer{
		store:           store,
		cfg:             cfg,
		thresh:          thresh,
		logger:          logger,
		knownExceptions: make(map[string]map[string]bool),
	}
}

// KnownExceptionTypes returns the set of exception types already seen often
// enough to be "known" for a service, for C6's NEW_EXCEPTION_TYPE check.
func (c *Computer) KnownExceptionTypes(serviceName string) map[string]bool {
	return c.knownExceptions[serviceName]
}

// Run computes baselines for every active service and persists one
// service_baselines row per metric that reaches the minimum sample count
// (spec §4.5).
func (c *Computer) Run(ctx context.Context) error {
	windowHours := c.cfg.BaselineWindowHours
	minSamples := c.thresh.MinSamplesForBaseline
	now := time.Now().UTC()

	services, err := c.store.ActiveServices(ctx, windowHours)
	if err != nil {
		return err
	}

	for _, svc := range services {
		c.computeService(ctx, svc, windowHours, minSamples, now)
	}
	return nil
}

func (c *Computer) computeService(ctx context.Context, svc string, windowHours, minSamples int, now time.Time) {
	c.computeErrorRate(ctx, svc, windowHours, minSamples, now)
	c.computeLatency(ctx, svc, windowHours, minSamples, now)
	c.computeThroughput(ctx, svc, windowHours, minSamples, now)
	c.computeDBMetrics(ctx, svc, windowHours, minSamples, now)
	c.computeDependencyMetrics(ctx, svc, windowHours, minSamples, now)
	c.computeExceptionRate(ctx, svc, windowHours, minSamples, now)
	c.refreshKnownExceptions(ctx, svc, windowHours)
}

func (c *Computer) persist(ctx context.Context, svc string, metricType engine.MetricType, s summary, windowHours int, now time.Time) {
	row := engine.ServiceBaselineRow{
		ComputedAt:     now,
		ServiceName:    svc,
		MetricType:     metricType,
		BaselineMean:   s.mean,
		BaselineStddev: s.stddev,
		BaselineMin:    s.min,
		BaselineMax:    s.max,
		BaselineP50:    s.p50,
		BaselineP95:    s.p95,
		BaselineP99:    s.p99,
		SampleCount:    int32(s.sampleCount),
		WindowHours:    int32(windowHours),
	}
	if !c.store.InsertBaseline(ctx, row) {
		c.logger.Error("failed to persist baseline", "service", svc, "metric_type", metricType)
	}
}

func (c *Computer) summarizeAndPersist(ctx context.Context, svc string, metricType engine.MetricType, values []float64, minSamples, windowHours int, now time.Time) {
	if len(values) < minSamples {
		return
	}
	s, ok := summarize(values)
	if !ok {
		return
	}
	c.persist(ctx, svc, metricType, s, windowHours, now)
}

func (c *Computer) computeErrorRate(ctx context.Context, svc string, windowHours, minSamples int, now time.Time) {
	values, err := c.store.ErrorRateHourlyBuckets(ctx, svc, windowHours)
	if err != nil {
		c.logger.Error("error_rate baseline read failed", "service", svc, "error", err)
		return
	}
	c.summarizeAndPersist(ctx, svc, "error_rate", values, minSamples, windowHours, now)
}

func (c *Computer) computeLatency(ctx context.Context, svc string, windowHours, minSamples int, now time.Time) {
	for metricType, q := range map[engine.MetricType]float64{
		"latency_p50": 0.50,
		"latency_p95": 0.95,
		"latency_p99": 0.99,
	} {
		values, err := c.store.LatencyPercentileHourlyBuckets(ctx, svc, q, windowHours)
		if err != nil {
			c.logger.Error("latency baseline read failed", "service", svc, "metric_type", metricType, "error", err)
			continue
		}
		c.summarizeAndPersist(ctx, svc, metricType, values, minSamples, windowHours, now)
	}
}

func (c *Computer) computeThroughput(ctx context.Context, svc string, windowHours, minSamples int, now time.Time) {
	values, err := c.store.ThroughputMinuteBuckets(ctx, svc, windowHours)
	if err != nil {
		c.logger.Error("throughput baseline read failed", "service", svc, "error", err)
		return
	}
	c.summarizeAndPersist(ctx, svc, "throughput", values, minSamples, windowHours, now)
}

func (c *Computer) computeDBMetrics(ctx context.Context, svc string, windowHours, minSamples int, now time.Time) {
	systems, err := c.store.DBSystemsForService(ctx, svc, windowHours)
	if err != nil {
		c.logger.Error("db_system list read failed", "service", svc, "error", err)
		return
	}
	for _, system := range systems {
		latencies, errorRates, err := c.store.DBLatencyErrorHourlyBuckets(ctx, svc, system, windowHours)
		if err != nil {
			c.logger.Error("db latency/error baseline read failed", "service", svc, "db_system", system, "error", err)
			continue
		}
		c.summarizeAndPersist(ctx, svc, engine.MetricType("db_"+system+"_latency"), latencies, minSamples, windowHours, now)
		c.summarizeAndPersist(ctx, svc, engine.MetricType("db_"+system+"_error_rate"), errorRates, minSamples, windowHours, now)
	}
}

func (c *Computer) computeDependencyMetrics(ctx context.Context, svc string, windowHours, minSamples int, now time.Time) {
	downstreams, err := c.store.DownstreamServices(ctx, svc, windowHours)
	if err != nil {
		c.logger.Error("downstream service list read failed", "service", svc, "error", err)
		return
	}
	for _, downstream := range downstreams {
		latencies, errorRates, err := c.store.DependencyHourlyBuckets(ctx, svc, downstream, windowHours)
		if err != nil {
			c.logger.Error("dependency baseline read failed", "service", svc, "downstream", downstream, "error", err)
			continue
		}
		c.summarizeAndPersist(ctx, svc, engine.MetricType("dep_"+downstream+"_latency"), latencies, minSamples, windowHours, now)
		c.summarizeAndPersist(ctx, svc, engine.MetricType("dep_"+downstream+"_error_rate"), errorRates, minSamples, windowHours, now)
	}
}

func (c *Computer) computeExceptionRate(ctx context.Context, svc string, windowHours, minSamples int, now time.Time) {
	values, err := c.store.ExceptionRateHourlyBuckets(ctx, svc, windowHours)
	if err != nil {
		c.logger.Error("exception_rate baseline read failed", "service", svc, "error", err)
		return
	}
	c.summarizeAndPersist(ctx, svc, "exception_rate", values, minSamples, windowHours, now)
}

func (c *Computer) refreshKnownExceptions(ctx context.Context, svc string, windowHours int) {
	types, err := c.store.KnownExceptionTypes(ctx, svc, windowHours, knownExceptionMinOccurrences)
	if err != nil {
		c.logger.Error("known exception types read failed", "service", svc, "error", err)
		return
	}
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	c.knownExceptions[svc] = set
}
