package simulations

import (
	"fmt"

	"github.com/lpm-labs/dlmm-lpm/internal/analyzer"
	"github.com/lpm-labs/dlmm-lpm/internal/config"
	"github.com/lpm-labs/dlmm-lpm/internal/planner"
	"github.com/lpm-labs/dlmm-lpm/internal/types"
)

// RangeExitStrategyName selects RangeExitStrategy in StrategyFor.
const RangeExitStrategyName = "range_exit"

// StrategyFor resolves a strategy name to a backtest strategy. An empty name or
// RangeExitStrategyName selects RangeExitStrategy; any other name must be one of the presets and
// is replayed through the planner on a pool with the given bin step.
func StrategyFor(name string, presets []types.RebalanceStrategy, binStep uint16) (Strategy, error) {
	if name == "" || name == RangeExitStrategyName {
		return RangeExitStrategy{}, nil
	}
	preset, err := config.FindStrategy(presets, name)
	if err != nil {
		return nil, err
	}
	if binStep == 0 {
		return nil, fmt.Errorf("%w: strategy %q needs a bin step", ErrInvalidParams, name)
	}
	return PlannerStrategy{Strategy: preset, BinStep: binStep}, nil
}

// RangeExitStrategy rebalances whenever the price leaves the simulated range.
type RangeExitStrategy struct{}

func (RangeExitStrategy) Evaluate(state SimulationState) (bool, error) {
	return state.Price < state.LowerPrice || state.Price > state.UpperPrice, nil
}

func (RangeExitStrategy) Execute(SimulationState) (bool, error) {
	return true, nil
}

// PlannerStrategy maps the simulated price range onto DLMM bins and asks the rebalance planner
// whether the configured strategy would move the position.
type PlannerStrategy struct {
	Strategy types.RebalanceStrategy
	BinStep  uint16 // Basis points
}

func (s PlannerStrategy) Evaluate(state SimulationState) (bool, error) {
	pool, position, bins, err := s.synthesize(state)
	if err != nil {
		return false, err
	}
	decision, err := planner.CheckRebalanceNeeded(pool, position, s.Strategy, bins)
	if err != nil {
		return false, err
	}
	return decision.Needed, nil
}

func (s PlannerStrategy) Execute(SimulationState) (bool, error) {
	return true, nil
}

// RangeFor places the strategy's target spread around the bin holding the current price, the
// same way the planner suggests a live range, and maps the bounds back to prices.
func (s PlannerStrategy) RangeFor(state SimulationState) (float64, float64, error) {
	pool, _, bins, err := s.synthesize(state)
	if err != nil {
		return 0, 0, err
	}
	target, err := planner.TargetSpread(pool, s.Strategy, bins)
	if err != nil {
		return 0, 0, err
	}
	suggested := planner.SuggestRange(pool, s.Strategy, target)
	frac := pool.BinStepFraction()
	return analyzer.BinPrice(1, frac, suggested.Lower, 0), analyzer.BinPrice(1, frac, suggested.Upper, 0), nil
}

// synthesize builds a pool snapshot, position and uniform bins for the simulated state.
// Bin 0 sits at price 1.
func (s PlannerStrategy) synthesize(state SimulationState) (types.PoolSnapshot, types.Position, []types.Bin, error) {
	if s.BinStep == 0 {
		return types.PoolSnapshot{}, types.Position{}, nil, fmt.Errorf("%w: planner strategy needs a bin step", ErrInvalidParams)
	}
	frac := float64(s.BinStep) / types.BasisPointMax
	if state.Price <= 0 || state.LowerPrice <= 0 || state.UpperPrice <= 0 {
		return types.PoolSnapshot{}, types.Position{}, nil, fmt.Errorf("%w: prices must be positive", ErrInvalidParams)
	}

	pool := types.PoolSnapshot{
		Address:      "backtest",
		ActiveID:     analyzer.BinForPrice(state.Price, 1, frac, 0),
		BinStep:      s.BinStep,
		CurrentPrice: state.Price,
		FetchedAt:    state.Timestamp,
	}
	lower := analyzer.BinForPrice(state.LowerPrice, 1, frac, 0)
	upper := analyzer.BinForPrice(state.UpperPrice, 1, frac, 0)
	if upper <= lower {
		upper = lower + 1
	}
	position := types.Position{Address: "backtest", Pool: pool.Address, LowerBinID: lower, UpperBinID: upper}

	bins := make([]types.Bin, 0, upper-lower+1)
	for id := lower; id <= upper; id++ {
		bins = append(bins, types.Bin{BinID: id, Liquidity: state.PositionValue / float64(upper-lower+1)})
	}
	return pool, position, bins, nil
}
