/*

This file contains the position health check. Five independent checks compare a computed value
against a warning and a critical threshold; every triggered check becomes an issue that feeds the
composite 0-100 score.

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

const (
	recRebalance   = "Rebalance the position around the active bin"
	recConcentrate = "Concentrate liquidity closer to the active bin"
	recReshape     = "Redistribute liquidity toward a bell curve centred on the active bin"
	recWiden       = "Widen the position range"
	recReduce      = "Reduce exposure until bin prices stabilise"
)

// CheckHealth scores a position from its pool snapshot and bins. checkedAt stamps the result.
func CheckHealth(position types.Position, pool types.PoolSnapshot, bins []types.Bin, thresholds types.HealthThresholds, checkedAt time.Time) (types.HealthCheckResult, error) {
	if err := position.ValidateRange(); err != nil {
		return types.HealthCheckResult{}, err
	}
	if pool.BinStep == 0 {
		return types.HealthCheckResult{}, fmt.Errorf("%w: pool %s has no bin step", types.ErrInsufficientData, pool.Address)
	}
	if len(bins) == 0 {
		return types.HealthCheckResult{}, fmt.Errorf("%w: no bins for position %s", types.ErrInsufficientData, position.Address)
	}

	deviation := DeviationPct(position, pool)
	utilization := ActiveBinUtilization(position, pool, bins)
	distribution := DistributionScore(position, pool, bins)
	coverage := RangeCoverage(position, pool)
	volatility, err := WeightedBinVolatility(pool, inRange(position, bins))
	if err != nil {
		volatility = 0 // No in-range bins: nothing to spread
	}

	var issues []types.HealthIssue
	var recommendations []string
	add := func(issue *types.HealthIssue, recs ...string) {
		if issue == nil {
			return
		}
		issues = append(issues, *issue)
		recommendations = append(recommendations, recs...)
	}

	add(higherIsWorse(types.IssueDeviation, deviation, thresholds.Deviation,
		"Position centre is %.2f%% away from the active bin"), recRebalance)
	add(lowerIsWorse(types.IssueUtilization, utilization, thresholds.Utilization,
		"Only %.2f%% of liquidity sits in the active bin"), recConcentrate, recRebalance)
	add(lowerIsWorse(types.IssueDistribution, distribution, thresholds.Distribution,
		"Liquidity distribution scores %.2f against a bell curve"), recReshape)
	add(lowerIsWorse(types.IssueCoverage, coverage, thresholds.Coverage,
		"Range covers %.2f%% of the ideal width"), recWiden)
	add(higherIsWorse(types.IssueVolatility, volatility, thresholds.Volatility,
		"Bin price volatility is %.4f"), recWiden, recReduce)

	score := HealthScore(issues)
	result := types.HealthCheckResult{
		Score:           score,
		Status:          HealthStatusFor(score, thresholds),
		Issues:          issues,
		Recommendations: dedupe(recommendations),
		CheckedAt:       checkedAt,
	}
	if result.Issues == nil {
		result.Issues = []types.HealthIssue{}
	}

	log := logger.GetForComponent("analyzer")
	log.Debug().
		Str("position", position.Address).
		Float64("score", result.Score).
		Str("status", string(result.Status)).
		Int("issues", len(result.Issues)).
		Msg("Checked position health")

	return result, nil
}

// DeviationPct is |centre − activeBin| × binStep × 100, in percent.
func DeviationPct(position types.Position, pool types.PoolSnapshot) float64 {
	// binStepFraction × 100 is the bin step in basis points ÷ 100
	return math.Abs(position.Center()-float64(pool.ActiveID)) * float64(pool.BinStep) / 100
}

// ActiveBinUtilization is the share of the position's liquidity held by the active bin, in percent.
func ActiveBinUtilization(position types.Position, pool types.PoolSnapshot, bins []types.Bin) float64 {
	liquidity := binsInRange(position, bins)
	total := sum(liquidity)
	if total <= 0 || !position.Contains(pool.ActiveID) {
		return 0
	}
	return liquidity[pool.ActiveID-position.LowerBinID] / total * 100
}

// DistributionScore compares the liquidity shape with a normal curve centred on the active bin
// (clamped into the range) with σ = max(1, binCount/4): 100 − Σ|actual − optimal| ÷ binCount × 100.
func DistributionScore(position types.Position, pool types.PoolSnapshot, bins []types.Bin) float64 {
	liquidity := binsInRange(position, bins)
	n := len(liquidity)
	total := sum(liquidity)

	centre := float64(pool.ActiveID)
	centre = math.Max(float64(position.LowerBinID), math.Min(float64(position.UpperBinID), centre))
	sigma := math.Max(1, float64(n)/4)

	optimal := make([]float64, n)
	for i := range optimal {
		z := (float64(position.LowerBinID) + float64(i) - centre) / sigma
		optimal[i] = math.Exp(-0.5 * z * z)
	}
	optimalTotal := sum(optimal)

	var diff float64
	for i := range liquidity {
		actual := 0.0
		if total > 0 {
			actual = liquidity[i] / total
		}
		diff += math.Abs(actual - optimal[i]/optimalTotal)
	}
	return 100 - diff/float64(n)*100
}

// RangeCoverage is the range width against the ideal width floor(2/binStepFraction), in percent.
func RangeCoverage(position types.Position, pool types.PoolSnapshot) float64 {
	ideal := math.Floor(2 / pool.BinStepFraction())
	if ideal < 1 {
		ideal = 1
	}
	return float64(position.Spread()) / ideal * 100
}

// HealthScore folds issues into a 0-100 score:
// 100 − Σ(value/threshold × weight) ÷ Σweight × 100, clamped. No issues scores 100.
func HealthScore(issues []types.HealthIssue) float64 {
	if len(issues) == 0 {
		return 100
	}
	var weighted, weights float64
	for _, issue := range issues {
		w := issue.Severity.Weight()
		if issue.Threshold != 0 {
			weighted += issue.Value / issue.Threshold * w
		}
		weights += w
	}
	if weights == 0 {
		return 100
	}
	return utils.Clamp(100-weighted/weights*100, 0, 100)
}

// HealthStatusFor maps a score to a status; both boundaries are inclusive.
func HealthStatusFor(score float64, thresholds types.HealthThresholds) types.HealthStatus {
	switch {
	case score >= thresholds.HealthyScore:
		return types.HealthStatusHealthy
	case score >= thresholds.WarningScore:
		return types.HealthStatusWarning
	default:
		return types.HealthStatusCritical
	}
}

func higherIsWorse(kind types.HealthIssueType, value float64, t types.CheckThresholds, format string) *types.HealthIssue {
	switch {
	case value >= t.Critical:
		return &types.HealthIssue{Type: kind, Severity: t.CriticalSeverity, Message: fmt.Sprintf(format, value), Value: value, Threshold: t.Critical}
	case value >= t.Warning:
		return &types.HealthIssue{Type: kind, Severity: t.WarningSeverity, Message: fmt.Sprintf(format, value), Value: value, Threshold: t.Warning}
	}
	return nil
}

func lowerIsWorse(kind types.HealthIssueType, value float64, t types.CheckThresholds, format string) *types.HealthIssue {
	switch {
	case value <= t.Critical:
		return &types.HealthIssue{Type: kind, Severity: t.CriticalSeverity, Message: fmt.Sprintf(format, value), Value: value, Threshold: t.Critical}
	case value <= t.Warning:
		return &types.HealthIssue{Type: kind, Severity: t.WarningSeverity, Message: fmt.Sprintf(format, value), Value: value, Threshold: t.Warning}
	}
	return nil
}

func inRange(position types.Position, bins []types.Bin) []types.Bin {
	out := make([]types.Bin, 0, len(bins))
	for _, b := range bins {
		if position.Contains(b.BinID) {
			out = append(out, b)
		}
	}
	return out
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
