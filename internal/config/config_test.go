package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Bus: BusConfig{
			BootstrapServers: "localhost:6379",
			GroupID:          "telemetry-pipeline",
			LogsTopic:        "otel-logs",
			TracesTopic:      "otel-traces",
			MetricsTopic:     "otel-metrics",
		},
		Store: StoreConfig{
			Host:     "localhost",
			Port:     9440,
			Database: "observability",
		},
		Batch: BatchConfig{
			BatchSize:          1000,
			BatchTimeoutSeconds: 5.0,
		},
		Detection: DetectionConfig{
			DetectionIntervalSeconds: 60,
			BaselineIntervalSeconds:  3600,
			BaselineWindowHours:      24,
		},
		Threshold: ThresholdConfig{
			ZScoreThreshold:       3.0,
			ErrorRateWarning:      0.05,
			ErrorRateCritical:     0.20,
			MinSamplesForBaseline: 10,
			AlertCooldownMinutes:  15,
		},
		RootCause: RootCauseConfig{Enabled: true, AdaptiveThresholdAdjustment: 0.1},
		LLM:       LLMConfig{Enabled: false},
		Logging:   LoggingConfig{Level: "info", Format: "json"},
	}
}

func TestConfigValidate_OK(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestConfigValidate_MissingBusServers(t *testing.T) {
	cfg := validConfig()
	cfg.Bus.BootstrapServers = ""
	assert.Error(t, cfg.Validate())
}

func TestConfigValidate_LLMRequiresAPIKeyWhenEnabled(t *testing.T) {
	cfg := validConfig()
	cfg.LLM.Enabled = true
	cfg.LLM.APIKey = ""
	cfg.LLM.MaxInvestigationsPerHour = 5
	assert.Error(t, cfg.Validate())

	cfg.LLM.APIKey = "sk-test"
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidate_ErrorRateCriticalMustBeAboveWarning(t *testing.T) {
	cfg := validConfig()
	cfg.Threshold.ErrorRateCritical = 0.01
	cfg.Threshold.ErrorRateWarning = 0.05
	assert.Error(t, cfg.Validate())
}

func TestRootCauseConfig_Multipliers(t *testing.T) {
	rc := RootCauseConfig{ThresholdMultipliers: "db_error:0.8, dependency_error:0.9"}
	m := rc.Multipliers()
	assert.Equal(t, 0.8, m["db_error"])
	assert.Equal(t, 0.9, m["dependency_error"])
}

func TestRootCauseConfig_EnabledSetEmptyMeansAll(t *testing.T) {
	rc := RootCauseConfig{Types: ""}
	assert.Empty(t, rc.EnabledSet())
}

func TestBatchConfig_Timeout(t *testing.T) {
	bc := BatchConfig{BatchTimeoutSeconds: 5.0}
	assert.Equal(t, "5s", bc.Timeout().String())
}
