package analyzer

import (
	"fmt"
	"math"
	"sort"

	"github.com/lpm-labs/dlmm-lpm/internal/logger"
	"github.com/lpm-labs/dlmm-lpm/internal/types"
)

// PriceVolatility returns the annualized standard deviation of the log returns of a price series,
// in percent. Points are taken in timestamp order without reordering the input, and pairs with a
// non-positive price are skipped. periodsPerYear must match the spacing of the series, e.g. 365
// for daily points or 8760 for hourly ones.
func PriceVolatility(prices []types.PriceData, periodsPerYear float64) (float64, error) {
	if len(prices) < 2 {
		return 0, fmt.Errorf("%w: need at least 2 prices for volatility, got %d", types.ErrInsufficientData, len(prices))
	}
	if periodsPerYear <= 0 {
		return 0, fmt.Errorf("%w: periods per year must be positive, got %f", types.ErrInsufficientData, periodsPerYear)
	}

	order := make([]int, len(prices))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return prices[order[a]].Timestamp.Before(prices[order[b]].Timestamp)
	})

	logReturns := make([]float64, 0, len(prices)-1)
	skipped := 0
	for k := 1; k < len(order); k++ {
		prev, cur := prices[order[k-1]].Price, prices[order[k]].Price
		if prev <= 0 || cur <= 0 {
			skipped++
			continue
		}
		logReturns = append(logReturns, math.Log(cur/prev))
	}
	if skipped > 0 {
		log := logger.GetForComponent("analyzer")
		log.Warn().Int("skipped", skipped).Msg("Skipped price pairs with non-positive prices")
	}
	if len(logReturns) == 0 {
		return 0, fmt.Errorf("%w: no valid price pairs", types.ErrInsufficientData)
	}

	return StdDev(logReturns) * math.Sqrt(periodsPerYear) * 100, nil
}

// WeightedBinVolatility measures how spread out liquidity is in price terms: the liquidity-weighted
// standard deviation of the bin prices divided by their weighted mean. Prices are taken relative to
// the active bin, which leaves the ratio unchanged.
func WeightedBinVolatility(pool types.PoolSnapshot, bins []types.Bin) (float64, error) {
	if len(bins) == 0 {
		return 0, fmt.Errorf("%w: no bins for pool %s", types.ErrInsufficientData, pool.Address)
	}
	if pool.BinStep == 0 {
		return 0, fmt.Errorf("%w: pool %s has no bin step", types.ErrInsufficientData, pool.Address)
	}

	frac := pool.BinStepFraction()
	var totalWeight, weightedSum float64
	prices := make([]float64, len(bins))
	for i, b := range bins {
		prices[i] = BinPrice(1, frac, b.BinID, pool.ActiveID)
		totalWeight += b.Liquidity
		weightedSum += b.Liquidity * prices[i]
	}
	if totalWeight <= 0 {
		return 0, nil
	}

	mean := weightedSum / totalWeight
	var weightedSqDiff float64
	for i, b := range bins {
		d := prices[i] - mean
		weightedSqDiff += b.Liquidity * d * d
	}
	return math.Sqrt(weightedSqDiff/totalWeight) / mean, nil
}

// StdDev returns the population standard deviation.
func StdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := sum(values) / float64(len(values))
	var sumSqDiff float64
	for _, v := range values {
		sumSqDiff += (v - mean) * (v - mean)
	}
	return math.Sqrt(sumSqDiff / float64(len(values)))
}
