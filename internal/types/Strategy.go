/*

This file contains the types for rebalance strategies and the decisions taken from them.

*/

package types

// StrategyType selects how the target bin spread is computed.
type StrategyType string

const (
	StrategySymmetric    StrategyType = "symmetric"
	StrategyDynamic      StrategyType = "dynamic"
	StrategyConcentrated StrategyType = "concentrated"
)

// RebalanceStrategy is the user-editable configuration of a rebalancing strategy.
type RebalanceStrategy struct {
	Name                string       `json:"name" yaml:"name"`
	Type                StrategyType `json:"type" yaml:"type"`
	TargetUtilization   float64      `json:"target_utilization" yaml:"target_utilization"`
	RebalanceThreshold  float64      `json:"rebalance_threshold" yaml:"rebalance_threshold"` // Bins of centre drift tolerated
	MinBinSpread        int32        `json:"min_bin_spread" yaml:"min_bin_spread"`
	MaxBinSpread        int32        `json:"max_bin_spread" yaml:"max_bin_spread"`
	ConcentrationFactor float64      `json:"concentration_factor,omitempty" yaml:"concentration_factor,omitempty"`
	SpreadTolerance     *int32       `json:"spread_tolerance,omitempty" yaml:"spread_tolerance,omitempty"` // Nil uses the per-type default
}

// RebalanceDecision is the outcome of a rebalance check.
type RebalanceDecision struct {
	Needed        bool      `json:"needed"`
	Reason        string    `json:"reason,omitempty"`
	SuggestedBins *BinRange `json:"suggested_bins,omitempty"`
	Deviation     float64   `json:"deviation"`
	CurrentSpread int32     `json:"current_spread"`
	TargetSpread  int32     `json:"target_spread"`
}

// RangeAdjustment is a request to move a position to a new bin range.
type RangeAdjustment struct {
	Position string   `json:"position"`
	Pool     string   `json:"pool"`
	Owner    string   `json:"owner"`
	From     BinRange `json:"from"`
	To       BinRange `json:"to"`
	Reason   string   `json:"reason"`
}

// RebalanceOutcome reports what RebalancePosition did.
type RebalanceOutcome struct {
	Decision  RebalanceDecision `json:"decision"`
	Executed  bool              `json:"executed"`
	Signature string            `json:"signature,omitempty"`
}
