package analyzer

import (
	"errors"
	"math"
	"testing"

	"github.com/lpm-labs/dlmm-lpm/internal/config"
	"github.com/lpm-labs/dlmm-lpm/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findIssue(result types.HealthCheckResult, kind types.HealthIssueType) (types.HealthIssue, bool) {
	for _, issue := range result.Issues {
		if issue.Type == kind {
			return issue, true
		}
	}
	return types.HealthIssue{}, false
}

func TestCheckHealthHealthyPosition(t *testing.T) {
	// Wide range, all liquidity in the active bin
	result, err := CheckHealth(testPosition(39, 161), testPool(100, 100),
		[]types.Bin{{BinID: 100, Liquidity: 1000}}, config.DefaultHealthThresholds, asOf)
	require.NoError(t, err)

	assert.Equal(t, 100.0, result.Score)
	assert.Equal(t, types.HealthStatusHealthy, result.Status)
	assert.Empty(t, result.Issues)
	assert.Empty(t, result.Recommendations)
	assert.Equal(t, asOf, result.CheckedAt)
}

func TestCheckHealthDeviationBoundaryIsInclusive(t *testing.T) {
	// Centre 90, active 100, 1% bin step: deviation is exactly 10
	result, err := CheckHealth(testPosition(80, 100), testPool(100, 100),
		uniformBins(80, 100, 1), config.DefaultHealthThresholds, asOf)
	require.NoError(t, err)

	issue, ok := findIssue(result, types.IssueDeviation)
	require.True(t, ok)
	assert.Equal(t, 10.0, issue.Value)
	assert.Equal(t, types.SeverityMedium, issue.Severity)
	assert.Equal(t, 10.0, issue.Threshold)

	result, err = CheckHealth(testPosition(60, 100), testPool(100, 100),
		uniformBins(60, 100, 1), config.DefaultHealthThresholds, asOf)
	require.NoError(t, err)
	issue, ok = findIssue(result, types.IssueDeviation)
	require.True(t, ok)
	assert.Equal(t, types.SeverityHigh, issue.Severity)
	assert.Equal(t, 20.0, issue.Threshold)
}

func TestCheckHealthCriticalPosition(t *testing.T) {
	result, err := CheckHealth(testPosition(60, 100), testPool(100, 100),
		uniformBins(60, 70, 10), config.DefaultHealthThresholds, asOf)
	require.NoError(t, err)

	for _, kind := range []types.HealthIssueType{types.IssueDeviation, types.IssueUtilization, types.IssueCoverage} {
		_, ok := findIssue(result, kind)
		assert.True(t, ok, "expected %s issue", kind)
	}
	assert.Equal(t, types.HealthStatusCritical, result.Status)
	assert.GreaterOrEqual(t, result.Score, 0.0)
	assert.Less(t, result.Score, 50.0)

	// Deviation and utilization both recommend a rebalance; it is listed once
	assert.Equal(t, recRebalance, result.Recommendations[0])
	seen := map[string]bool{}
	for _, r := range result.Recommendations {
		assert.False(t, seen[r], "duplicate recommendation %q", r)
		seen[r] = true
	}
}

func TestCheckHealthScoreAndStatusAreConsistent(t *testing.T) {
	thresholds := config.DefaultHealthThresholds
	cases := []struct {
		lower, upper, active int32
		binStep              uint16
		bins                 []types.Bin
	}{
		{95, 105, 100, 1, uniformBins(95, 105, 1)},
		{10, 20, 100, 50, uniformBins(10, 20, 3)},
		{0, 400, 200, 10, uniformBins(150, 250, 2)},
		{-50, 50, -10, 25, []types.Bin{{BinID: -10, Liquidity: 7}, {BinID: 30, Liquidity: 1}}},
	}
	for _, tc := range cases {
		result, err := CheckHealth(testPosition(tc.lower, tc.upper), testPool(tc.active, tc.binStep), tc.bins, thresholds, asOf)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, result.Score, 0.0)
		assert.LessOrEqual(t, result.Score, 100.0)
		assert.Equal(t, HealthStatusFor(result.Score, thresholds), result.Status)
	}
}

func TestCheckHealthErrors(t *testing.T) {
	_, err := CheckHealth(testPosition(100, 90), testPool(100, 100), uniformBins(90, 100, 1), config.DefaultHealthThresholds, asOf)
	assert.True(t, errors.Is(err, types.ErrInvalidRange))

	_, err = CheckHealth(testPosition(90, 110), testPool(100, 100), nil, config.DefaultHealthThresholds, asOf)
	assert.True(t, errors.Is(err, types.ErrInsufficientData))

	_, err = CheckHealth(testPosition(90, 110), testPool(100, 0), uniformBins(90, 110, 1), config.DefaultHealthThresholds, asOf)
	assert.True(t, errors.Is(err, types.ErrInsufficientData))
}

func TestHealthScore(t *testing.T) {
	assert.Equal(t, 100.0, HealthScore(nil))
	assert.Equal(t, 0.0, HealthScore([]types.HealthIssue{{Value: 10, Threshold: 10, Severity: types.SeverityMedium}}))
	assert.InDelta(t, 25.0, HealthScore([]types.HealthIssue{{Value: 30, Threshold: 40, Severity: types.SeverityHigh}}), 1e-9)
	assert.Equal(t, 0.0, HealthScore([]types.HealthIssue{{Value: 50, Threshold: 10, Severity: types.SeverityLow}}))
}

func TestHealthStatusFor(t *testing.T) {
	th := config.DefaultHealthThresholds
	assert.Equal(t, types.HealthStatusHealthy, HealthStatusFor(80, th))
	assert.Equal(t, types.HealthStatusWarning, HealthStatusFor(79.99, th))
	assert.Equal(t, types.HealthStatusWarning, HealthStatusFor(50, th))
	assert.Equal(t, types.HealthStatusCritical, HealthStatusFor(49.99, th))
}

func TestDistributionScore(t *testing.T) {
	pool := testPool(100, 100)
	pos := testPosition(96, 104)
	bell := DistributionScore(pos, pool, []types.Bin{
		{BinID: 97, Liquidity: 1}, {BinID: 98, Liquidity: 4}, {BinID: 99, Liquidity: 8},
		{BinID: 100, Liquidity: 10}, {BinID: 101, Liquidity: 8}, {BinID: 102, Liquidity: 4}, {BinID: 103, Liquidity: 1},
	})
	edge := DistributionScore(pos, pool, []types.Bin{{BinID: 96, Liquidity: 10}})
	assert.Greater(t, bell, edge)
	assert.LessOrEqual(t, bell, 100.0)
}

func TestOutOfDomainBinRangeIsRejected(t *testing.T) {
	huge := testPosition(-2_000_000_000, 2_000_000_000)
	require.True(t, errors.Is(huge.ValidateRange(), types.ErrInvalidRange))
	assert.Equal(t, int32(math.MaxInt32), huge.Spread())
	assert.Equal(t, 4_000_000_001, huge.BinCount())

	_, err := CheckHealth(huge, testPool(0, 100), nil, config.DefaultHealthThresholds, asOf)
	assert.True(t, errors.Is(err, types.ErrInvalidRange))

	in := metricsInput()
	in.Position = huge
	_, err = ComputeMetrics(in)
	assert.True(t, errors.Is(err, types.ErrInvalidRange))

	edge := testPosition(types.MinBinID, types.MaxBinID)
	require.NoError(t, edge.ValidateRange())
	assert.Equal(t, int32(2*types.MaxBinID), edge.Spread())
	assert.Error(t, testPosition(types.MaxBinID, types.MaxBinID+1).ValidateRange())
}
