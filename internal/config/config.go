// Package config provides configuration management for the telemetry
// pipeline.
//
// Configuration is loaded from two sources, env vars taking precedence:
// 1. A local .env file (optional, for local development).
// 2. Process environment variables.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the complete pipeline configuration.
type Config struct {
	Bus       BusConfig       `mapstructure:"bus"`
	Store     StoreConfig     `mapstructure:"store"`
	Batch     BatchConfig     `mapstructure:"batch"`
	Detection DetectionConfig `mapstructure:"detection"`
	Threshold ThresholdConfig `mapstructure:"threshold"`
	RootCause RootCauseConfig `mapstructure:"root_cause"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// BusConfig describes the message bus: three OTLP topics consumed by a
// single consumer group.
type BusConfig struct {
	BootstrapServers string `mapstructure:"bootstrap_servers"`
	GroupID          string `mapstructure:"group_id"`
	LogsTopic        string `mapstructure:"logs_topic"`
	TracesTopic      string `mapstructure:"traces_topic"`
	MetricsTopic     string `mapstructure:"metrics_topic"`
}

func (bc *BusConfig) Validate() error {
	if bc.BootstrapServers == "" {
		return fmt.Errorf("bus.bootstrap_servers (BUS_BOOTSTRAP_SERVERS) is required")
	}
	if bc.GroupID == "" {
		return fmt.Errorf("bus.group_id (BUS_GROUP_ID) is required")
	}
	if bc.LogsTopic == "" || bc.TracesTopic == "" || bc.MetricsTopic == "" {
		return fmt.Errorf("bus topic names must not be empty")
	}
	return nil
}

// StoreConfig describes the analytic store connection.
type StoreConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	Catalog  string `mapstructure:"catalog"`
	Schema   string `mapstructure:"schema"`
	Bucket   string `mapstructure:"bucket"`
}

func (sc *StoreConfig) Validate() error {
	if sc.Host == "" {
		return fmt.Errorf("store.host (STORE_HOST) is required")
	}
	if sc.Database == "" {
		return fmt.Errorf("store.database (STORE_DATABASE) is required")
	}
	return nil
}

// Addr returns the "host:port" dial address.
func (sc *StoreConfig) Addr() string {
	return sc.Host + ":" + strconv.Itoa(sc.Port)
}

// BatchConfig governs C2's per-table flush cadence.
type BatchConfig struct {
	BatchSize            int     `mapstructure:"batch_size"`
	BatchTimeoutSeconds   float64 `mapstructure:"batch_timeout_seconds"`
}

func (bc *BatchConfig) Validate() error {
	if bc.BatchSize <= 0 {
		return fmt.Errorf("batch.batch_size must be positive")
	}
	if bc.BatchTimeoutSeconds <= 0 {
		return fmt.Errorf("batch.batch_timeout_seconds must be positive")
	}
	return nil
}

func (bc *BatchConfig) Timeout() time.Duration {
	return time.Duration(bc.BatchTimeoutSeconds * float64(time.Second))
}

// DetectionConfig governs C5/C6 cadence.
type DetectionConfig struct {
	DetectionIntervalSeconds  int `mapstructure:"detection_interval_seconds"`
	BaselineIntervalSeconds   int `mapstructure:"baseline_interval_seconds"`
	BaselineWindowHours       int `mapstructure:"baseline_window_hours"`
}

func (dc *DetectionConfig) Validate() error {
	if dc.DetectionIntervalSeconds <= 0 {
		return fmt.Errorf("detection.detection_interval_seconds must be positive")
	}
	if dc.BaselineIntervalSeconds <= 0 {
		return fmt.Errorf("detection.baseline_interval_seconds must be positive")
	}
	if dc.BaselineWindowHours <= 0 {
		return fmt.Errorf("detection.baseline_window_hours must be positive")
	}
	return nil
}

func (dc *DetectionConfig) DetectionInterval() time.Duration {
	return time.Duration(dc.DetectionIntervalSeconds) * time.Second
}

func (dc *DetectionConfig) BaselineInterval() time.Duration {
	return time.Duration(dc.BaselineIntervalSeconds) * time.Second
}

// ThresholdConfig governs C6's Z-score thresholds and C5's baseline
// sample-size gate.
type ThresholdConfig struct {
	ZScoreThreshold       float64 `mapstructure:"zscore_threshold"`
	ErrorRateWarning      float64 `mapstructure:"error_rate_warning"`
	ErrorRateCritical     float64 `mapstructure:"error_rate_critical"`
	MinSamplesForBaseline int     `mapstructure:"min_samples_for_baseline"`
	AlertCooldownMinutes  int     `mapstructure:"alert_cooldown_minutes"`
}

func (tc *ThresholdConfig) Validate() error {
	if tc.ZScoreThreshold <= 0 {
		return fmt.Errorf("threshold.zscore_threshold must be positive")
	}
	if tc.ErrorRateCritical < tc.ErrorRateWarning {
		return fmt.Errorf("threshold.error_rate_critical must be >= error_rate_warning")
	}
	if tc.MinSamplesForBaseline < 1 {
		return fmt.Errorf("threshold.min_samples_for_baseline must be positive")
	}
	return nil
}

func (tc *ThresholdConfig) CooldownDuration() time.Duration {
	return time.Duration(tc.AlertCooldownMinutes) * time.Minute
}

// RootCauseConfig governs C7's category gating and adaptive learning.
type RootCauseConfig struct {
	Enabled                     bool    `mapstructure:"enabled"`
	Types                       string  `mapstructure:"types"`                         // CSV; empty = all
	ThresholdMultipliers        string  `mapstructure:"threshold_multipliers"`         // CSV key:mult
	AdaptiveThresholdsEnabled   bool    `mapstructure:"adaptive_thresholds_enabled"`
	AdaptiveThresholdAdjustment float64 `mapstructure:"adaptive_threshold_adjustment"`
}

func (rc *RootCauseConfig) Validate() error {
	if rc.AdaptiveThresholdAdjustment < 0 {
		return fmt.Errorf("root_cause.adaptive_threshold_adjustment must be >= 0")
	}
	return nil
}

// EnabledSet parses Types into a set; an empty set means "all enabled".
func (rc *RootCauseConfig) EnabledSet() map[string]bool {
	return parseSet(rc.Types)
}

// Multipliers parses ThresholdMultipliers ("db_connection_failure:0.8,dependency_failure:0.9").
// Keys are matched by threshold.Manager against exact alert-type names; a
// grouped key standing for several alert types is not recognised.
func (rc *RootCauseConfig) Multipliers() map[string]float64 {
	out := map[string]float64{}
	for _, part := range strings.Split(rc.ThresholdMultipliers, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, ":", 2)
		if len(kv) != 2 {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(kv[1]), 64)
		if err != nil {
			continue
		}
		out[strings.TrimSpace(kv[0])] = f
	}
	return out
}

func parseSet(csv string) map[string]bool {
	out := map[string]bool{}
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out[part] = true
		}
	}
	return out
}

// LLMConfig governs C9, the optional investigator.
type LLMConfig struct {
	Enabled                           bool   `mapstructure:"enabled"`
	APIKey                            string `mapstructure:"api_key"`
	Model                             string `mapstructure:"model"`
	MaxInvestigationsPerHour          int    `mapstructure:"max_investigations_per_hour"`
	InvestigationServiceCooldownMinutes int  `mapstructure:"investigation_service_cooldown_minutes"`
	InvestigateCriticalOnly           bool   `mapstructure:"investigate_critical_only"`
	MaxTokens                         int    `mapstructure:"max_tokens"`
}

func (lc *LLMConfig) Validate() error {
	if !lc.Enabled {
		return nil
	}
	if lc.APIKey == "" {
		return fmt.Errorf("llm.api_key (LLM_API_KEY) is required when llm.enabled is true")
	}
	if lc.MaxInvestigationsPerHour <= 0 {
		return fmt.Errorf("llm.max_investigations_per_hour must be positive")
	}
	return nil
}

func (lc *LLMConfig) ServiceCooldown() time.Duration {
	return time.Duration(lc.InvestigationServiceCooldownMinutes) * time.Minute
}

// LoggingConfig governs slog handler selection.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func (lc *LoggingConfig) Validate() error {
	return nil
}

// Validate runs every sub-config's Validate, short-circuiting on the first
// error (matching the teacher's aggregate-validation pattern).
func (c *Config) Validate() error {
	validators := []func() error{
		c.Bus.Validate,
		c.Store.Validate,
		c.Batch.Validate,
		c.Detection.Validate,
		c.Threshold.Validate,
		c.RootCause.Validate,
		c.LLM.Validate,
		c.Logging.Validate,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

// Load reads configuration from .env (if present) and the environment,
// applying spec defaults, then validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("bus.bootstrap_servers", "localhost:6379")
	viper.SetDefault("bus.group_id", "telemetry-pipeline")
	viper.SetDefault("bus.logs_topic", "otel-logs")
	viper.SetDefault("bus.traces_topic", "otel-traces")
	viper.SetDefault("bus.metrics_topic", "otel-metrics")

	viper.SetDefault("store.host", "localhost")
	viper.SetDefault("store.port", 9440)
	viper.SetDefault("store.database", "observability")
	viper.SetDefault("store.catalog", "observability")
	viper.SetDefault("store.schema", "otel")
	viper.SetDefault("store.bucket", "observability")

	viper.SetDefault("batch.batch_size", 1000)
	viper.SetDefault("batch.batch_timeout_seconds", 5.0)

	viper.SetDefault("detection.detection_interval_seconds", 60)
	viper.SetDefault("detection.baseline_interval_seconds", 3600)
	viper.SetDefault("detection.baseline_window_hours", 24)

	viper.SetDefault("threshold.zscore_threshold", 3.0)
	viper.SetDefault("threshold.error_rate_warning", 0.05)
	viper.SetDefault("threshold.error_rate_critical", 0.20)
	viper.SetDefault("threshold.min_samples_for_baseline", 10)
	viper.SetDefault("threshold.alert_cooldown_minutes", 15)

	viper.SetDefault("root_cause.enabled", true)
	viper.SetDefault("root_cause.types", "")
	viper.SetDefault("root_cause.threshold_multipliers", "")
	viper.SetDefault("root_cause.adaptive_thresholds_enabled", true)
	viper.SetDefault("root_cause.adaptive_threshold_adjustment", 0.1)

	viper.SetDefault("llm.enabled", false)
	viper.SetDefault("llm.model", "claude-sonnet-4-20250514")
	viper.SetDefault("llm.max_investigations_per_hour", 5)
	viper.SetDefault("llm.investigation_service_cooldown_minutes", 30)
	viper.SetDefault("llm.investigate_critical_only", false)
	viper.SetDefault("llm.max_tokens", 1024)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	bind := map[string]string{
		"bus.bootstrap_servers":                    "BUS_BOOTSTRAP_SERVERS",
		"bus.group_id":                              "BUS_GROUP_ID",
		"bus.logs_topic":                            "BUS_LOGS_TOPIC",
		"bus.traces_topic":                          "BUS_TRACES_TOPIC",
		"bus.metrics_topic":                         "BUS_METRICS_TOPIC",
		"store.host":                                "STORE_HOST",
		"store.port":                                "STORE_PORT",
		"store.user":                                "STORE_USER",
		"store.password":                            "STORE_PASSWORD",
		"store.database":                            "STORE_DATABASE",
		"store.catalog":                             "STORE_CATALOG",
		"store.schema":                              "STORE_SCHEMA",
		"store.bucket":                              "STORE_BUCKET",
		"batch.batch_size":                          "BATCH_SIZE",
		"batch.batch_timeout_seconds":               "BATCH_TIMEOUT_SECONDS",
		"detection.detection_interval_seconds":      "DETECTION_INTERVAL",
		"detection.baseline_interval_seconds":       "BASELINE_INTERVAL",
		"detection.baseline_window_hours":           "BASELINE_WINDOW_HOURS",
		"threshold.zscore_threshold":                "ZSCORE_THRESHOLD",
		"threshold.error_rate_warning":              "ERROR_RATE_WARNING",
		"threshold.error_rate_critical":             "ERROR_RATE_CRITICAL",
		"threshold.min_samples_for_baseline":        "MIN_SAMPLES_FOR_BASELINE",
		"threshold.alert_cooldown_minutes":          "ALERT_COOLDOWN_MINUTES",
		"root_cause.enabled":                        "ROOT_CAUSE_ENABLED",
		"root_cause.types":                          "ROOT_CAUSE_TYPES",
		"root_cause.threshold_multipliers":          "ROOT_CAUSE_THRESHOLD_MULTIPLIERS",
		"root_cause.adaptive_thresholds_enabled":    "ADAPTIVE_THRESHOLDS_ENABLED",
		"root_cause.adaptive_threshold_adjustment":  "ADAPTIVE_THRESHOLD_ADJUSTMENT",
		"llm.enabled":                                "LLM_ENABLED",
		"llm.api_key":                                "LLM_API_KEY",
		"llm.model":                                  "LLM_MODEL",
		"llm.max_investigations_per_hour":            "LLM_MAX_INVESTIGATIONS_PER_HOUR",
		"llm.investigation_service_cooldown_minutes": "LLM_INVESTIGATION_SERVICE_COOLDOWN_MINUTES",
		"llm.investigate_critical_only":              "LLM_INVESTIGATE_CRITICAL_ONLY",
		"llm.max_tokens":                             "LLM_MAX_TOKENS",
		"logging.level":                               "LOG_LEVEL",
		"logging.format":                              "LOG_FORMAT",
	}
	for key, env := range bind {
		//nolint:errcheck // BindEnv only errors with invalid args, safe with string literals
		viper.BindEnv(key, env)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
