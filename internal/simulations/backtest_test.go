package simulations

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/lpm-labs/dlmm-lpm/internal/analyzer"
	"github.com/lpm-labs/dlmm-lpm/internal/config"
	"github.com/lpm-labs/dlmm-lpm/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

type neverRebalance struct{}

func (neverRebalance) Evaluate(SimulationState) (bool, error) { return false, nil }
func (neverRebalance) Execute(SimulationState) (bool, error)  { return true, nil }

type failingStrategy struct{}

func (failingStrategy) Evaluate(SimulationState) (bool, error) { return false, errors.New("boom") }
func (failingStrategy) Execute(SimulationState) (bool, error)  { return false, nil }

type rejectingStrategy struct{}

func (rejectingStrategy) Evaluate(SimulationState) (bool, error) { return true, nil }
func (rejectingStrategy) Execute(SimulationState) (bool, error)  { return false, nil }

func daily(prices ...float64) []types.PriceData {
	out := make([]types.PriceData, len(prices))
	for i, p := range prices {
		out[i] = types.PriceData{Timestamp: start.Add(time.Duration(i) * 24 * time.Hour), Price: p}
	}
	return out
}

func ptr(v float64) *float64 { return &v }

func params(prices []types.PriceData, strategy Strategy) BacktestParams {
	return BacktestParams{
		Prices:           prices,
		InitialLiquidity: 10000,
		SwapFee:          0.003,
		HostFee:          0.1,
		Strategy:         strategy,
	}
}

func TestRunBacktestFlatSeries(t *testing.T) {
	result, err := RunBacktest(params(daily(100, 100, 100, 100), RangeExitStrategy{}))
	require.NoError(t, err)

	assert.Equal(t, 0, result.TotalTrades)
	assert.Equal(t, 0.0, result.FeesEarned)
	assert.Equal(t, 0.0, result.MaxDrawdown)
	assert.Equal(t, 0.0, result.Returns)
	assert.Equal(t, 0.0, result.Volatility)
	assert.Equal(t, 0.0, result.PriceVolatility)
	assert.Equal(t, 0.0, result.SharpeRatio)
	assert.Equal(t, 10000.0, result.FinalValue)
	assert.Len(t, result.Snapshots, 4)
	assert.Len(t, result.Metrics, 4)
}

func TestRunBacktestFeeArithmetic(t *testing.T) {
	result, err := RunBacktest(params(daily(100, 110), neverRebalance{}))
	require.NoError(t, err)

	// |0.1| × 10000 × 0.003 × (1 − 0.1)
	assert.InDelta(t, 2.7, result.FeesEarned, 1e-9)
	assert.InDelta(t, 10000*math.Sqrt(1.1)+2.7, result.FinalValue, 1e-9)
	assert.Equal(t, 0, result.TotalTrades)
	assert.InDelta(t, (2*math.Sqrt(1.1)/2.1-1)*100, result.ImpermanentLoss, 1e-12)
}

func TestRunBacktestRangeExitRebalances(t *testing.T) {
	result, err := RunBacktest(params(daily(100, 110), RangeExitStrategy{}))
	require.NoError(t, err)

	assert.Equal(t, 1, result.TotalTrades)
	assert.Equal(t, 1, result.SuccessfulTrades)
	grown := 10000*math.Sqrt(1.1) + 2.7
	assert.InDelta(t, grown*(1-0.001), result.FinalValue, 1e-9)

	last := result.Snapshots[len(result.Snapshots)-1]
	assert.True(t, last.Rebalanced)
	assert.InDelta(t, 110*0.95, last.LowerPrice, 1e-9)
	assert.InDelta(t, 110*1.05, last.UpperPrice, 1e-9)
}

func TestRunBacktestRejectedExecutionKeepsRange(t *testing.T) {
	result, err := RunBacktest(params(daily(100, 110), rejectingStrategy{}))
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalTrades)
	assert.Equal(t, 0, result.SuccessfulTrades)
	assert.InDelta(t, 10000*math.Sqrt(1.1)+2.7, result.FinalValue, 1e-9)
	assert.False(t, result.Snapshots[1].Rebalanced)
}

func TestRunBacktestStatistics(t *testing.T) {
	prices := daily(100, 120, 90, 105, 100)
	result, err := RunBacktest(params(prices, neverRebalance{}))
	require.NoError(t, err)

	values := []float64{}
	for _, s := range result.Snapshots {
		values = append(values, s.PositionValue)
	}
	max, min := values[0], values[0]
	for _, v := range values {
		max = math.Max(max, v)
		min = math.Min(min, v)
	}
	assert.InDelta(t, (max-min)/max*100, result.MaxDrawdown, 1e-9)
	assert.Greater(t, result.Volatility, 0.0)
	assert.Greater(t, result.PriceVolatility, result.Volatility, "the position moves with √price")

	years := 4.0 / 365.0
	assert.InDelta(t, result.Returns/years, result.APR, 1e-6)
	assert.InDelta(t, (result.APR/100-0.02)/(result.Volatility/100), result.SharpeRatio, 1e-9)
	assert.Equal(t, start, result.StartTime)
	assert.Equal(t, start.Add(4*24*time.Hour), result.EndTime)
}

func TestRunBacktestWindow(t *testing.T) {
	p := params(daily(100, 101, 102, 103), neverRebalance{})
	p.From = start.Add(24 * time.Hour)
	p.To = start.Add(2 * 24 * time.Hour)
	result, err := RunBacktest(p)
	require.NoError(t, err)
	require.Len(t, result.Snapshots, 2)
	assert.Equal(t, 101.0, result.Snapshots[0].Price)

	p.To = p.From
	_, err = RunBacktest(p)
	assert.True(t, errors.Is(err, types.ErrInsufficientData))
}

func TestRunBacktestErrors(t *testing.T) {
	_, err := RunBacktest(params(daily(100), RangeExitStrategy{}))
	assert.True(t, errors.Is(err, types.ErrInsufficientData))

	_, err = RunBacktest(params(daily(100, 0), RangeExitStrategy{}))
	assert.True(t, errors.Is(err, types.ErrInsufficientData))

	_, err = RunBacktest(params(daily(100, 101), nil))
	assert.True(t, errors.Is(err, ErrInvalidParams))

	bad := params(daily(100, 101), RangeExitStrategy{})
	bad.InitialLiquidity = 0
	_, err = RunBacktest(bad)
	assert.True(t, errors.Is(err, ErrInvalidParams))

	_, err = RunBacktest(params(daily(100, 101), failingStrategy{}))
	assert.True(t, errors.Is(err, ErrStrategy))
}

func TestPlannerStrategy(t *testing.T) {
	strategy := PlannerStrategy{
		Strategy: types.RebalanceStrategy{Name: "sym", Type: types.StrategySymmetric, RebalanceThreshold: 3, MinBinSpread: 5, MaxBinSpread: 40},
		BinStep:  100,
	}
	// ±5% around 100 is about 10 bins of 1%, short of the clamped target of 40
	needed, err := strategy.Evaluate(SimulationState{Price: 100, LowerPrice: 95, UpperPrice: 105, PositionValue: 1000})
	require.NoError(t, err)
	assert.True(t, needed)

	strategy.Strategy.MinBinSpread, strategy.Strategy.MaxBinSpread = 10, 10
	strategy.Strategy.SpreadTolerance = new(int32)
	*strategy.Strategy.SpreadTolerance = 1
	needed, err = strategy.Evaluate(SimulationState{Price: 100, LowerPrice: 95, UpperPrice: 105, PositionValue: 1000})
	require.NoError(t, err)
	assert.False(t, needed)

	result, err := RunBacktest(params(daily(100, 100, 100), strategy))
	require.NoError(t, err)
	assert.Equal(t, 0, result.TotalTrades)

	_, err = PlannerStrategy{Strategy: strategy.Strategy}.Evaluate(SimulationState{Price: 1, LowerPrice: 0.9, UpperPrice: 1.1})
	assert.True(t, errors.Is(err, ErrInvalidParams))
}

func TestStrategyFor(t *testing.T) {
	presets := []types.RebalanceStrategy{{Name: "balanced", Type: types.StrategySymmetric, MinBinSpread: 10, MaxBinSpread: 40}}

	s, err := StrategyFor("", presets, 0)
	require.NoError(t, err)
	assert.IsType(t, RangeExitStrategy{}, s)

	s, err = StrategyFor("balanced", presets, 25)
	require.NoError(t, err)
	require.IsType(t, PlannerStrategy{}, s)
	assert.Equal(t, uint16(25), s.(PlannerStrategy).BinStep)

	_, err = StrategyFor("balanced", presets, 0)
	assert.True(t, errors.Is(err, ErrInvalidParams))

	_, err = StrategyFor("unknown", presets, 25)
	assert.True(t, errors.Is(err, config.ErrStrategyNotFound))
}

func TestReadPricesCSV(t *testing.T) {
	input := "timestamp,price\n2025-01-01T00:00:00Z,100\n1735776000, 101.5\n"
	prices, err := ReadPricesCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, prices, 2)
	assert.Equal(t, start, prices[0].Timestamp)
	assert.Equal(t, start.Add(24*time.Hour), prices[1].Timestamp)
	assert.Equal(t, 101.5, prices[1].Price)

	_, err = ReadPricesCSV(strings.NewReader("2025-01-01T00:00:00Z,100\nyesterday,1\n"))
	assert.Error(t, err)
	_, err = ReadPricesCSV(strings.NewReader("a,b\n2025-01-01T00:00:00Z,abc\n"))
	assert.Error(t, err)
}

func TestRunBacktestGeometricSeriesHasNoVolatility(t *testing.T) {
	result, err := RunBacktest(params(daily(100, 110, 121, 133.1, 146.41), neverRebalance{}))
	require.NoError(t, err)

	assert.Greater(t, result.Returns, 0.0)
	assert.Equal(t, 0.0, result.Volatility)
	assert.Equal(t, 0.0, result.SharpeRatio)
}

func TestRunBacktestExplicitZeroCost(t *testing.T) {
	p := params(daily(100, 110), RangeExitStrategy{})
	p.RebalanceCost = ptr(0)
	result, err := RunBacktest(p)
	require.NoError(t, err)
	assert.Equal(t, 1, result.SuccessfulTrades)
	assert.InDelta(t, 10000*math.Sqrt(1.1)+2.7, result.FinalValue, 1e-9)

	p.RebalanceRangePct = ptr(0)
	_, err = RunBacktest(p)
	assert.True(t, errors.Is(err, ErrInvalidParams))
}

func TestRunBacktestPresetsOnFlatSeries(t *testing.T) {
	presets, _, err := config.LoadStrategies("../../config/strategies.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, presets)

	for _, preset := range presets {
		t.Run(preset.Name, func(t *testing.T) {
			strategy, err := StrategyFor(preset.Name, presets, 25)
			require.NoError(t, err)

			p := params(daily(100, 100, 100, 100, 100, 100), strategy)
			p.StrategyName = preset.Name
			result, err := RunBacktest(p)
			require.NoError(t, err)

			assert.Equal(t, 0, result.TotalTrades)
			assert.Equal(t, 0.0, result.MaxDrawdown)
			assert.Equal(t, 0.0, result.SharpeRatio)
			assert.Equal(t, 10000.0, result.FinalValue)
		})
	}
}

func TestRunBacktestPlannerStrategyUsesSuggestedRange(t *testing.T) {
	tight := types.RebalanceStrategy{Name: "tight", Type: types.StrategyConcentrated, RebalanceThreshold: 3, MinBinSpread: 6, MaxBinSpread: 30, ConcentrationFactor: 4}
	strategy := PlannerStrategy{Strategy: tight, BinStep: 25}
	frac := 25.0 / types.BasisPointMax

	result, err := RunBacktest(params(daily(100, 100, 110, 110), strategy))
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalTrades)

	for _, snap := range result.Snapshots {
		lower := analyzer.BinForPrice(snap.LowerPrice, 1, frac, 0)
		upper := analyzer.BinForPrice(snap.UpperPrice, 1, frac, 0)
		assert.Equal(t, int32(30), upper-lower)
		active := analyzer.BinForPrice(snap.Price, 1, frac, 0)
		assert.Equal(t, active-10, lower)
	}
	assert.True(t, result.Snapshots[2].Rebalanced)
	assert.False(t, result.Snapshots[3].Rebalanced)
}
