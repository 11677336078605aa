/*

This file contains the position metrics calculator: TVL, fees, APR, impermanent loss, bin
utilization and price range of a position, valued in token Y.

*/

package analyzer

import (
	"fmt"
	"math"
	"time"

	"github.com/lpm-labs/dlmm-lpm/internal/logger"
	"github.com/lpm-labs/dlmm-lpm/internal/types"
	"github.com/lpm-labs/dlmm-lpm/internal/utils"
)

const secondsPerYear = 365 * 24 * 60 * 60

// MetricsInput bundles the snapshots a metrics computation is derived from.
type MetricsInput struct {
	Position     types.Position
	Pool         types.PoolSnapshot
	Bins         []types.Bin
	CurrentPrice float64 // Price of X in Y
	InitialPrice float64 // Price of X in Y when the position was opened, zero when unknown
	AsOf         time.Time
}

// ComputeMetrics derives the metrics of a position. It has no side effects and identical inputs
// always produce identical metrics.
//
// Impermanent loss uses the constant-product formula 2·√r/(1+r) − 1 with r = current/initial.
// DLMM liquidity sits in discrete geometric bins, so this is an approximation of the real loss.
// Without an initial price the loss, and without an opening time the APR, is left at zero and
// named in Unavailable.
func ComputeMetrics(in MetricsInput) (types.PositionMetrics, error) {
	pos := in.Position
	if err := pos.ValidateRange(); err != nil {
		return types.PositionMetrics{}, err
	}
	if in.CurrentPrice <= 0 || in.InitialPrice < 0 ||
		utils.CheckFinite("current price", in.CurrentPrice) != nil ||
		utils.CheckFinite("initial price", in.InitialPrice) != nil {
		return types.PositionMetrics{}, fmt.Errorf("%w: prices must be positive and finite (current %f, initial %f)",
			types.ErrInsufficientData, in.CurrentPrice, in.InitialPrice)
	}
	if in.Pool.BinStep == 0 {
		return types.PositionMetrics{}, fmt.Errorf("%w: pool %s has no bin step", types.ErrInsufficientData, in.Pool.Address)
	}
	if len(in.Bins) == 0 {
		return types.PositionMetrics{}, fmt.Errorf("%w: no bins for position %s", types.ErrInsufficientData, pos.Address)
	}
	if in.AsOf.IsZero() {
		return types.PositionMetrics{}, fmt.Errorf("%w: evaluation time is not set", types.ErrInsufficientData)
	}

	amountX, err := utils.TokenAmountToFloat64(pos.TokenXDeposited, in.Pool.TokenXDecimals)
	if err != nil {
		return types.PositionMetrics{}, fmt.Errorf("%w: token X deposit: %w", types.ErrInsufficientData, err)
	}
	amountY, err := utils.TokenAmountToFloat64(pos.TokenYDeposited, in.Pool.TokenYDecimals)
	if err != nil {
		return types.PositionMetrics{}, fmt.Errorf("%w: token Y deposit: %w", types.ErrInsufficientData, err)
	}
	feesX, err := utils.TokenAmountToFloat64(pos.FeesEarnedX, in.Pool.TokenXDecimals)
	if err != nil {
		return types.PositionMetrics{}, fmt.Errorf("%w: token X fees: %w", types.ErrInsufficientData, err)
	}
	feesY, err := utils.TokenAmountToFloat64(pos.FeesEarnedY, in.Pool.TokenYDecimals)
	if err != nil {
		return types.PositionMetrics{}, fmt.Errorf("%w: token Y fees: %w", types.ErrInsufficientData, err)
	}

	tvl := amountX*in.CurrentPrice + amountY
	feeValue := feesX*in.CurrentPrice + feesY

	var unavailable []string
	var ilFactor, entryValue float64
	if in.InitialPrice > 0 {
		ilFactor = ImpermanentLossFactor(in.CurrentPrice / in.InitialPrice)
		entryValue = amountX*in.InitialPrice + amountY
	} else {
		unavailable = append(unavailable, types.MetricImpermanentLoss)
	}

	elapsed := time.Duration(0)
	if pos.OpenedAt.IsZero() {
		unavailable = append(unavailable, types.MetricAPR)
	} else {
		elapsed = in.AsOf.Sub(pos.OpenedAt)
	}

	frac := in.Pool.BinStepFraction()
	liquidity := binsInRange(pos, in.Bins)
	nonEmpty := 0
	for _, l := range liquidity {
		if l > 0 {
			nonEmpty++
		}
	}

	var volume float64
	for _, b := range in.Bins {
		if pos.Contains(b.BinID) {
			volume += b.Volume24h
		}
	}

	metrics := types.PositionMetrics{
		TVL:                tvl,
		FeesEarned:         feeValue,
		Volume24h:          volume,
		APR:                CalculateAPR(feeValue, tvl, elapsed),
		ImpermanentLoss:    entryValue * ilFactor,
		ImpermanentLossPct: ilFactor * 100,
		PriceRange: types.PriceRange{
			Lower: BinPrice(in.CurrentPrice, frac, pos.LowerBinID, in.Pool.ActiveID),
			Upper: BinPrice(in.CurrentPrice, frac, pos.UpperBinID, in.Pool.ActiveID),
		},
		Utilization: float64(nonEmpty) / float64(len(liquidity)) * 100,
		Unavailable: unavailable,
		ComputedAt:  in.AsOf,
	}

	checks := []struct {
		name  string
		value float64
	}{
		{"tvl", metrics.TVL},
		{"apr", metrics.APR},
		{"impermanent loss", metrics.ImpermanentLoss},
		{"lower price", metrics.PriceRange.Lower},
		{"upper price", metrics.PriceRange.Upper},
	}
	for _, c := range checks {
		if err := utils.CheckFinite(c.name, c.value); err != nil {
			return types.PositionMetrics{}, fmt.Errorf("position %s: %w", pos.Address, err)
		}
	}

	log := logger.GetForComponent("analyzer")
	log.Debug().
		Str("position", pos.Address).
		Float64("tvl", metrics.TVL).
		Float64("apr", metrics.APR).
		Float64("ilPct", metrics.ImpermanentLossPct).
		Float64("utilization", metrics.Utilization).
		Msg("Computed position metrics")

	return metrics, nil
}

// ImpermanentLossFactor returns 2·√r/(1+r) − 1, the fractional loss versus holding for a price ratio r.
// The factor is 0 at r = 1 and negative otherwise.
func ImpermanentLossFactor(r float64) float64 {
	if r <= 0 {
		return -1
	}
	return 2*math.Sqrt(r)/(1+r) - 1
}

// CalculateAPR annualizes the fee yield: (fees ÷ TVL) ÷ elapsed years × 100.
// A zero TVL or a non-positive elapsed time yields 0.
func CalculateAPR(feeValue, tvl float64, elapsed time.Duration) float64 {
	if tvl <= 0 || elapsed <= 0 {
		return 0
	}
	years := elapsed.Seconds() / secondsPerYear
	return feeValue / tvl / years * 100
}
