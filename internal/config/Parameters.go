/*

This file contains the default parameters for position evaluation.

The health thresholds mirror the levels used by the position health dashboard. The strategy
presets are used when neither the strategy file nor the database provides one.

*/

package config

import (
	"github.com/lpm-labs/dlmm-lpm/internal/types"
)

// DefaultHealthThresholds provides the warning and critical levels of the five health checks.
var DefaultHealthThresholds = types.HealthThresholds{
	Deviation: types.CheckThresholds{
		Warning: 10, Critical: 20, // Percent drift of the range centre from the active bin
		WarningSeverity: types.SeverityMedium, CriticalSeverity: types.SeverityHigh,
	},
	Utilization: types.CheckThresholds{
		Warning: 40, Critical: 20, // Share of liquidity sitting in the active bin
		WarningSeverity: types.SeverityMedium, CriticalSeverity: types.SeverityHigh,
	},
	Distribution: types.CheckThresholds{
		Warning: 50, Critical: 25, // Similarity to a bell curve around the active bin
		WarningSeverity: types.SeverityLow, CriticalSeverity: types.SeverityMedium,
	},
	Coverage: types.CheckThresholds{
		Warning: 60, Critical: 30, // Range width against floor(2/binStep)
		WarningSeverity: types.SeverityLow, CriticalSeverity: types.SeverityMedium,
	},
	Volatility: types.CheckThresholds{
		Warning: 0.05, Critical: 0.1, // Liquidity-weighted coefficient of variation of bin prices
		WarningSeverity: types.SeverityMedium, CriticalSeverity: types.SeverityHigh,
	},
	HealthyScore: 80,
	WarningScore: 50,
}

// DefaultStrategyPreset is used when no strategy file or stored strategy is available.
var DefaultStrategyPreset = types.RebalanceStrategy{
	Name:               "balanced",
	Type:               types.StrategySymmetric,
	TargetUtilization:  60,
	RebalanceThreshold: 5,
	MinBinSpread:       10,
	MaxBinSpread:       40,
}

// Backtest defaults.
const (
	DefaultRebalanceCost     = 0.001 // 0.1% of position value per rebalance
	DefaultRebalanceRangePct = 0.05  // New range is price ±5%
	DefaultRiskFreeRate      = 0.02
	DefaultPeriodsPerYear    = 365 // Daily steps
)

// Spread tolerance (in bins) per strategy type when a strategy does not set its own.
var DefaultSpreadTolerance = map[types.StrategyType]int32{
	types.StrategySymmetric:    0,
	types.StrategyConcentrated: 0,
	types.StrategyDynamic:      2,
}

// DefaultRankingWeights balances health against yield when comparing positions.
var DefaultRankingWeights = types.RankingWeights{
	Health: 0.6,
	APR:    0.4,
}
