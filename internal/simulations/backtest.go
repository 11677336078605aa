/*

This file contains the backtest engine. It replays a historical price series against a strategy's
evaluate/execute contract and summarises the simulated position: return, fees, drawdown,
volatility and Sharpe ratio.

*/

package simulations

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/lpm-labs/dlmm-lpm/internal/analyzer"
	"github.com/lpm-labs/dlmm-lpm/internal/config"
	"github.com/lpm-labs/dlmm-lpm/internal/logger"
	"github.com/lpm-labs/dlmm-lpm/internal/types"
	"github.com/lpm-labs/dlmm-lpm/internal/utils"
)

var (
	ErrInvalidParams = errors.New("invalid backtest parameters")
	ErrStrategy      = errors.New("strategy failed")
)

const (
	yearDuration      = 365 * 24 * time.Hour
	volatilityEpsilon = 1e-9 // Annualized percent
)

// SimulationState is the view of the simulated position handed to a strategy after each step.
type SimulationState struct {
	Step          int
	Timestamp     time.Time
	Price         float64
	PreviousPrice float64
	PositionValue float64
	LowerPrice    float64
	UpperPrice    float64
}

// Strategy decides when the simulated position is rebalanced.
type Strategy interface {
	// Evaluate reports whether the position should be rebalanced at this step.
	Evaluate(state SimulationState) (bool, error)
	// Execute performs the rebalance and reports whether it went through.
	Execute(state SimulationState) (bool, error)
}

// RangeProvider is implemented by strategies that choose the price range a position opens with
// and moves to when rebalanced.
type RangeProvider interface {
	RangeFor(state SimulationState) (lower, upper float64, err error)
}

// BacktestParams configures a replay. Nil optional fields take the defaults from the config
// package; an explicit zero is kept.
type BacktestParams struct {
	Prices           []types.PriceData
	From             time.Time // Optional window start, inclusive
	To               time.Time // Optional window end, inclusive
	InitialLiquidity float64
	SwapFee          float64 // Fraction of volume, e.g. 0.003
	HostFee          float64 // Fraction of the swap fee kept by the protocol
	Strategy         Strategy
	StrategyName     string

	RebalanceCost     *float64 // Fraction of position value lost per rebalance
	RebalanceRangePct *float64 // Range is price × (1 ± pct) unless the strategy supplies one
	RiskFreeRate      *float64
	PeriodsPerYear    *float64 // Steps per year used to annualize volatility
}

// settings are the resolved optional parameters of a replay.
type settings struct {
	rebalanceCost  float64
	rangePct       float64
	riskFreeRate   float64
	periodsPerYear float64
}

func (p BacktestParams) settings() settings {
	return settings{
		rebalanceCost:  valueOr(p.RebalanceCost, config.DefaultRebalanceCost),
		rangePct:       valueOr(p.RebalanceRangePct, config.DefaultRebalanceRangePct),
		riskFreeRate:   valueOr(p.RiskFreeRate, config.DefaultRiskFreeRate),
		periodsPerYear: valueOr(p.PeriodsPerYear, config.DefaultPeriodsPerYear),
	}
}

func valueOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func (p BacktestParams) validate(set settings) error {
	if p.Strategy == nil {
		return fmt.Errorf("%w: strategy is required", ErrInvalidParams)
	}
	checks := []struct {
		name  string
		value float64
		ok    bool
	}{
		{"initial liquidity", p.InitialLiquidity, p.InitialLiquidity > 0},
		{"swap fee", p.SwapFee, p.SwapFee >= 0 && p.SwapFee < 1},
		{"host fee", p.HostFee, p.HostFee >= 0 && p.HostFee <= 1},
		{"rebalance cost", set.rebalanceCost, set.rebalanceCost >= 0 && set.rebalanceCost < 1},
		{"rebalance range", set.rangePct, set.rangePct > 0 && set.rangePct < 1},
		{"risk free rate", set.riskFreeRate, true},
		{"periods per year", set.periodsPerYear, set.periodsPerYear > 0},
	}
	for _, c := range checks {
		if err := utils.CheckFinite(c.name, c.value); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidParams, err)
		}
		if !c.ok {
			return fmt.Errorf("%w: %s out of range: %f", ErrInvalidParams, c.name, c.value)
		}
	}
	return nil
}

// RunBacktest replays the price series in the requested window. Each step:
//
//	change = (p_t − p_{t−1}) / p_{t−1}
//	fee    = |change| × value × swapFee × (1 − hostFee)
//	value  = value × √(1 + change) + fee
//
// and, when the strategy rebalances, value loses RebalanceCost and the range resets. A strategy
// implementing RangeProvider picks the opening and reset ranges; otherwise the range is
// price × (1 ± RebalanceRangePct). The fixed fallback range and the fee model (volume proportional
// to the price move) are approximations. Volatility is annualized with PeriodsPerYear, which assumes
// evenly spaced points; the spacing of the series is not verified.
func RunBacktest(params BacktestParams) (types.BacktestResult, error) {
	set := params.settings()
	if err := params.validate(set); err != nil {
		return types.BacktestResult{}, err
	}

	prices := window(params.Prices, params.From, params.To)
	if len(prices) < 2 {
		return types.BacktestResult{}, fmt.Errorf("%w: backtest needs at least 2 prices in window, got %d",
			types.ErrInsufficientData, len(prices))
	}
	for _, p := range prices {
		if p.Price <= 0 || utils.CheckFinite("price", p.Price) != nil {
			return types.BacktestResult{}, fmt.Errorf("%w: invalid price %f at %s",
				types.ErrInsufficientData, p.Price, p.Timestamp.Format(time.RFC3339))
		}
	}

	first := prices[0]
	value := params.InitialLiquidity
	provider, _ := params.Strategy.(RangeProvider)
	lower, upper := rangeAround(first.Price, set.rangePct)
	if provider != nil {
		var err error
		lower, upper, err = provider.RangeFor(SimulationState{
			Timestamp:     first.Timestamp,
			Price:         first.Price,
			PreviousPrice: first.Price,
			PositionValue: value,
			LowerPrice:    lower,
			UpperPrice:    upper,
		})
		if err != nil {
			return types.BacktestResult{}, fmt.Errorf("%w: opening range: %w", ErrStrategy, err)
		}
	}

	result := types.BacktestResult{
		StrategyName: params.StrategyName,
		StartTime:    first.Timestamp,
		EndTime:      prices[len(prices)-1].Timestamp,
		Snapshots:    make([]types.BacktestSnapshot, 0, len(prices)),
		Metrics:      make([]types.BacktestMetricPoint, 0, len(prices)),
	}
	result.Snapshots = append(result.Snapshots, types.BacktestSnapshot{
		Timestamp: first.Timestamp, Price: first.Price, PositionValue: value, LowerPrice: lower, UpperPrice: upper,
	})
	result.Metrics = append(result.Metrics, types.BacktestMetricPoint{Timestamp: first.Timestamp, Value: value})

	maxValue, minValue, runningMax := value, value, value
	returns := make([]float64, 0, len(prices)-1)

	for i := 1; i < len(prices); i++ {
		prev, cur := prices[i-1].Price, prices[i].Price
		startValue := value

		change := (cur - prev) / prev
		volume := math.Abs(change) * value
		fee := volume * params.SwapFee * (1 - params.HostFee)
		value *= math.Sqrt(change + 1)
		value += fee
		result.FeesEarned += fee

		state := SimulationState{
			Step:          i,
			Timestamp:     prices[i].Timestamp,
			Price:         cur,
			PreviousPrice: prev,
			PositionValue: value,
			LowerPrice:    lower,
			UpperPrice:    upper,
		}
		rebalance, err := params.Strategy.Evaluate(state)
		if err != nil {
			return types.BacktestResult{}, fmt.Errorf("%w: evaluate at step %d: %w", ErrStrategy, i, err)
		}
		rebalanced := false
		if rebalance {
			result.TotalTrades++
			executed, err := params.Strategy.Execute(state)
			if err != nil {
				return types.BacktestResult{}, fmt.Errorf("%w: execute at step %d: %w", ErrStrategy, i, err)
			}
			if executed {
				result.SuccessfulTrades++
				value -= value * set.rebalanceCost
				state.PositionValue = value
				if lower, upper, err = nextRange(provider, state, set.rangePct); err != nil {
					return types.BacktestResult{}, fmt.Errorf("%w: range at step %d: %w", ErrStrategy, i, err)
				}
				rebalanced = true
			}
		}

		returns = append(returns, (value-startValue)/startValue)
		maxValue = math.Max(maxValue, value)
		minValue = math.Min(minValue, value)
		runningMax = math.Max(runningMax, value)

		result.Snapshots = append(result.Snapshots, types.BacktestSnapshot{
			Timestamp:     prices[i].Timestamp,
			Price:         cur,
			PositionValue: value,
			FeesEarned:    result.FeesEarned,
			LowerPrice:    lower,
			UpperPrice:    upper,
			Rebalanced:    rebalanced,
		})
		result.Metrics = append(result.Metrics, types.BacktestMetricPoint{
			Timestamp:        prices[i].Timestamp,
			Value:            value,
			CumulativeReturn: (value/params.InitialLiquidity - 1) * 100,
			Drawdown:         (runningMax - value) / runningMax * 100,
		})
	}

	result.FinalValue = value
	result.Returns = (value - params.InitialLiquidity) / params.InitialLiquidity * 100
	if years := float64(result.EndTime.Sub(result.StartTime)) / float64(yearDuration); years > 0 {
		result.APR = result.Returns / years
	}
	result.ImpermanentLoss = analyzer.ImpermanentLossFactor(prices[len(prices)-1].Price/first.Price) * 100
	result.MaxDrawdown = (maxValue - minValue) / maxValue * 100
	priceVolatility, err := analyzer.PriceVolatility(prices, set.periodsPerYear)
	if err != nil {
		return types.BacktestResult{}, err
	}
	result.PriceVolatility = priceVolatility
	result.Volatility = analyzer.StdDev(returns) * math.Sqrt(set.periodsPerYear) * 100
	if result.Volatility < volatilityEpsilon {
		// Constant per-step returns leave only rounding noise
		result.Volatility = 0
	} else {
		result.SharpeRatio = (result.APR/100 - set.riskFreeRate) / (result.Volatility / 100)
	}

	log := logger.GetForComponent("backtest")
	log.Info().
		Str("strategy", params.StrategyName).
		Int("points", len(prices)).
		Float64("returns", result.Returns).
		Float64("fees", result.FeesEarned).
		Int("trades", result.TotalTrades).
		Float64("maxDrawdown", result.MaxDrawdown).
		Float64("sharpe", result.SharpeRatio).
		Msg("Backtest complete")

	return result, nil
}

// window returns the chronologically sorted prices inside [from, to]; zero bounds are open.
func window(prices []types.PriceData, from, to time.Time) []types.PriceData {
	out := make([]types.PriceData, 0, len(prices))
	for _, p := range prices {
		if !from.IsZero() && p.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && p.Timestamp.After(to) {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

func nextRange(provider RangeProvider, state SimulationState, pct float64) (float64, float64, error) {
	if provider == nil {
		lower, upper := rangeAround(state.Price, pct)
		return lower, upper, nil
	}
	return provider.RangeFor(state)
}

func rangeAround(price, pct float64) (float64, float64) {
	return price * (1 - pct), price * (1 + pct)
}
