/*

This file contains the types for DLMM liquidity positions and the values derived from them.

*/

package types

import (
	"fmt"
	"math"
	"time"

	sdkmath "cosmossdk.io/math"
)

// Position is a liquidity provider's stake in one DLMM pool.
type Position struct {
	Address         string      `json:"address"`
	Pool            string      `json:"pool"`
	Owner           string      `json:"owner"`
	LowerBinID      int32       `json:"lower_bin_id"`
	UpperBinID      int32       `json:"upper_bin_id"`
	TokenXDeposited sdkmath.Int `json:"token_x_deposited"`
	TokenYDeposited sdkmath.Int `json:"token_y_deposited"`
	FeesEarnedX     sdkmath.Int `json:"fees_earned_x"`
	FeesEarnedY     sdkmath.Int `json:"fees_earned_y"`
	OpenedAt        time.Time   `json:"opened_at,omitempty"` // Zero when upstream does not report it
	LastUpdatedAt   time.Time   `json:"last_updated_at"`
	HealthFactor    float64     `json:"health_factor"` // Informational only
}

// ValidateRange checks the lower < upper invariant and that both bounds are valid bin ids.
func (p Position) ValidateRange() error {
	if !ValidBinID(p.LowerBinID) || !ValidBinID(p.UpperBinID) {
		return fmt.Errorf("%w: position %s bins %d..%d outside [%d, %d]",
			ErrInvalidRange, p.Address, p.LowerBinID, p.UpperBinID, MinBinID, MaxBinID)
	}
	if p.LowerBinID >= p.UpperBinID {
		return fmt.Errorf("%w: position %s has lower bin %d >= upper bin %d",
			ErrInvalidRange, p.Address, p.LowerBinID, p.UpperBinID)
	}
	return nil
}

// Center returns the midpoint of the bin range.
func (p Position) Center() float64 {
	return (float64(p.LowerBinID) + float64(p.UpperBinID)) / 2
}

// Spread returns the number of bins between the range bounds. It is exact for ranges that pass
// ValidateRange and saturates otherwise.
func (p Position) Spread() int32 {
	width := int64(p.UpperBinID) - int64(p.LowerBinID)
	if width > math.MaxInt32 {
		return math.MaxInt32
	}
	if width < math.MinInt32 {
		return math.MinInt32
	}
	return int32(width)
}

// BinCount returns the number of bins covered by the range, bounds included.
func (p Position) BinCount() int {
	return int(int64(p.UpperBinID)-int64(p.LowerBinID)) + 1
}

// Contains reports whether binID lies inside the position range.
func (p Position) Contains(binID int32) bool {
	return binID >= p.LowerBinID && binID <= p.UpperBinID
}

// BinRange is an inclusive range of bin ids.
type BinRange struct {
	Lower int32 `json:"lower"`
	Upper int32 `json:"upper"`
}

// PriceRange is the price interval covered by a position.
type PriceRange struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Metrics that are left at zero and listed in PositionMetrics.Unavailable when their inputs are
// unknown.
const (
	MetricAPR             = "apr"
	MetricImpermanentLoss = "impermanent_loss"
)

// InitialPriceSource records where the entry price of a position came from.
type InitialPriceSource string

const (
	InitialPriceAtOpening     InitialPriceSource = "price_at_opening"
	InitialPriceFirstObserved InitialPriceSource = "first_observed"
	InitialPriceUnavailable   InitialPriceSource = "unavailable"
)

// PositionMetrics holds values derived from a position and pool snapshot.
// It is recomputed on demand and replaced wholesale, never mutated.
type PositionMetrics struct {
	TVL                float64    `json:"tvl"`
	FeesEarned         float64    `json:"fees_earned"`
	Volume24h          float64    `json:"volume_24h"`
	APR                float64    `json:"apr"`
	ImpermanentLoss    float64    `json:"impermanent_loss"`     // In the Y numeraire, <= 0
	ImpermanentLossPct float64    `json:"impermanent_loss_pct"` // Percent of value at entry
	PriceRange         PriceRange `json:"price_range"`
	Utilization        float64    `json:"utilization"`  // 0-100
	HealthScore        float64    `json:"health_score"` // 0-100, filled from a health check
	Unavailable        []string   `json:"unavailable,omitempty"`
	ComputedAt         time.Time  `json:"computed_at"`
}

// Available reports whether the named metric was computed.
func (m PositionMetrics) Available(name string) bool {
	for _, u := range m.Unavailable {
		if u == name {
			return false
		}
	}
	return true
}

// WithHealthScore returns a copy of the metrics carrying the given health score.
func (m PositionMetrics) WithHealthScore(score float64) PositionMetrics {
	m.HealthScore = score
	return m
}

// PositionReport is the outcome of one monitor evaluation of a position.
type PositionReport struct {
	CycleID            string             `json:"cycle_id,omitempty"`
	Position           Position           `json:"position"`
	Pool               PoolSnapshot       `json:"pool"`
	Metrics            PositionMetrics    `json:"metrics"`
	Health             HealthCheckResult  `json:"health"`
	Rebalance          RebalanceDecision  `json:"rebalance"`
	InitialPrice       float64            `json:"initial_price"` // Zero when the source is unavailable
	InitialPriceSource InitialPriceSource `json:"initial_price_source"`
	EvaluatedAt        time.Time          `json:"evaluated_at"`
}

// PositionRanking is one entry of a position comparison.
type PositionRanking struct {
	Rank        int     `json:"rank"`
	Address     string  `json:"address"`
	Score       float64 `json:"score"`
	HealthScore float64 `json:"health_score"`
	APR         float64 `json:"apr"`
	TVL         float64 `json:"tvl"`
}

// RankingWeights weights the components of the position comparison score.
type RankingWeights struct {
	Health float64 `json:"health" yaml:"health"`
	APR    float64 `json:"apr" yaml:"apr"`
}
