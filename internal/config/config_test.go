package config

import (
	"errors"
	"testing"
	"time"

	"github.com/lpm-labs/dlmm-lpm/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("LPM_API_URL", "http://localhost:9000")
	t.Setenv("LPM_TRACKED_POSITIONS", " posA, ,posB ")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_DSN", ":memory:")
}

func TestLoadConfig(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MONITOR_INTERVAL", "30s")
	t.Setenv("AUTO_REBALANCE", "true")

	require.NoError(t, LoadConfig())
	assert.Equal(t, []string{"posA", "posB"}, TrackedPositions)
	assert.Equal(t, "sqlite", DBDriver)
	assert.Equal(t, 30*time.Second, MonitorInterval)
	assert.True(t, AutoRebalance)
	assert.Equal(t, "http://localhost:9000", DataAPI)
	assert.Equal(t, uint64(3), DataAPIMaxRetries)
	assert.Equal(t, DefaultStrategyPreset.Name, DefaultStrategy)
}

func TestLoadConfigMissingRequired(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DB_DRIVER", "mysql")
	assert.Error(t, LoadConfig())
}

func TestLoadConfigTrackedOwners(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LPM_TRACKED_POSITIONS", "")
	t.Setenv("LPM_TRACKED_OWNERS", "walletA,walletB")
	require.NoError(t, LoadConfig())
	assert.Empty(t, TrackedPositions)
	assert.Equal(t, []string{"walletA", "walletB"}, TrackedOwners)

	t.Setenv("LPM_TRACKED_OWNERS", " , ")
	assert.Error(t, LoadConfig())
}

func TestLoadConfigInvalidDuration(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MONITOR_INTERVAL", "soon")
	assert.Error(t, LoadConfig())
}

func TestLoadClientConfigNeedsOnlyEndpoint(t *testing.T) {
	t.Setenv("LPM_API_URL", "http://localhost:9000")
	t.Setenv("LPM_TRACKED_POSITIONS", "")
	t.Setenv("DB_DRIVER", "")
	t.Setenv("LPM_API_RPS", "2.5")

	require.NoError(t, LoadClientConfig())
	assert.Equal(t, 2.5, DataAPIRequestsPerSecond)
	assert.Equal(t, "config/strategies.yaml", StrategyFile)
	assert.Error(t, LoadDatabaseConfig())
}

func TestParseStrategies(t *testing.T) {
	doc := []byte(`
strategies:
  - name: tight
    type: concentrated
    rebalance_threshold: 3
    min_bin_spread: 6
    max_bin_spread: 30
    concentration_factor: 4
    spread_tolerance: 1
health:
  deviation: {warning: 5, critical: 15, warning_severity: medium, critical_severity: high}
  healthy_score: 90
  warning_score: 60
`)
	strategies, thresholds, err := ParseStrategies(doc)
	require.NoError(t, err)
	require.Len(t, strategies, 1)
	assert.Equal(t, types.StrategyConcentrated, strategies[0].Type)
	require.NotNil(t, strategies[0].SpreadTolerance)
	assert.Equal(t, int32(1), *strategies[0].SpreadTolerance)
	assert.Equal(t, 5.0, thresholds.Deviation.Warning)
	assert.Equal(t, 90.0, thresholds.HealthyScore)
	assert.Equal(t, DefaultHealthThresholds.Coverage, thresholds.Coverage)

	found, err := FindStrategy(strategies, "tight")
	require.NoError(t, err)
	assert.Equal(t, 4.0, found.ConcentrationFactor)

	_, err = FindStrategy(strategies, "missing")
	assert.True(t, errors.Is(err, ErrStrategyNotFound))
}

func TestParseStrategiesDefaultsThresholds(t *testing.T) {
	strategies, thresholds, err := ParseStrategies([]byte("strategies:\n  - {name: a, type: symmetric, min_bin_spread: 5, max_bin_spread: 20}\n"))
	require.NoError(t, err)
	assert.Len(t, strategies, 1)
	assert.Equal(t, DefaultHealthThresholds, thresholds)
}

func TestValidateStrategy(t *testing.T) {
	cases := []struct {
		name     string
		strategy types.RebalanceStrategy
	}{
		{"max below min", types.RebalanceStrategy{Name: "x", Type: types.StrategySymmetric, MinBinSpread: 10, MaxBinSpread: 5}},
		{"unknown type", types.RebalanceStrategy{Name: "x", Type: "spiral", MinBinSpread: 1, MaxBinSpread: 5}},
		{"concentrated without factor", types.RebalanceStrategy{Name: "x", Type: types.StrategyConcentrated, MinBinSpread: 1, MaxBinSpread: 5}},
		{"empty name", types.RebalanceStrategy{Type: types.StrategySymmetric, MinBinSpread: 1, MaxBinSpread: 5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateStrategy(tc.strategy)
			assert.True(t, errors.Is(err, types.ErrInvalidStrategyConfig), "got %v", err)
		})
	}
	assert.NoError(t, ValidateStrategy(DefaultStrategyPreset))
}
