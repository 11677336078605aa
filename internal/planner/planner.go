package planner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/lpm-labs/dlmm-lpm/internal/analyzer"
	"github.com/lpm-labs/dlmm-lpm/internal/config"
	"github.com/lpm-labs/dlmm-lpm/internal/logger"
	"github.com/lpm-labs/dlmm-lpm/internal/types"
	"github.com/lpm-labs/dlmm-lpm/internal/vault"
	"github.com/rs/zerolog"
)

var (
	ErrNoPositionManager = errors.New("no position manager configured")
	ErrAdjustmentFailed  = errors.New("range adjustment failed")
)

// Planner evaluates rebalance decisions and executes them through a PositionManager.
type Planner struct {
	manager vault.PositionManager
	logger  zerolog.Logger
}

// New creates a Planner. A nil manager is allowed for evaluation-only use.
func New(manager vault.PositionManager) *Planner {
	return &Planner{manager: manager, logger: logger.GetForComponent("rebalance_planner")}
}

// CheckRebalanceNeeded decides whether the position's bin range has drifted enough from the
// pool's active bin, or has the wrong width for the strategy, to warrant an adjustment.
//
// Trigger: |centre − anchor| > RebalanceThreshold, or |currentSpread − targetSpread| > tolerance.
// The anchor is the centre of the range SuggestRange would place, so a freshly placed range never
// triggers on its own offset from the active bin.
func CheckRebalanceNeeded(pool types.PoolSnapshot, position types.Position, strategy types.RebalanceStrategy, bins []types.Bin) (types.RebalanceDecision, error) {
	if err := validateInputs(pool, position, strategy); err != nil {
		return types.RebalanceDecision{}, err
	}

	target, err := TargetSpread(pool, strategy, bins)
	if err != nil {
		return types.RebalanceDecision{}, err
	}

	deviation := math.Abs(position.Center() - float64(pool.ActiveID))
	drift := math.Abs(position.Center() - float64(pool.ActiveID) - anchorOffset(strategy, target))
	currentSpread := position.Spread()
	tolerance := SpreadTolerance(strategy)

	decision := types.RebalanceDecision{
		Deviation:     deviation,
		CurrentSpread: currentSpread,
		TargetSpread:  target,
	}

	var reasons []string
	if drift > strategy.RebalanceThreshold {
		reasons = append(reasons, fmt.Sprintf("range centre is %.1f bins from its anchor (threshold %.1f)",
			drift, strategy.RebalanceThreshold))
	}
	if spreadGap := absInt32(currentSpread - target); spreadGap > tolerance {
		reasons = append(reasons, fmt.Sprintf("bin spread %d differs from target %d by more than %d",
			currentSpread, target, tolerance))
	}

	if len(reasons) > 0 {
		suggested := SuggestRange(pool, strategy, target)
		decision.Needed = true
		decision.Reason = strings.Join(reasons, "; ")
		decision.SuggestedBins = &suggested
	}

	log := logger.GetForComponent("rebalance_planner")
	log.Debug().
		Str("position", position.Address).
		Str("strategy", strategy.Name).
		Float64("deviation", deviation).
		Int32("currentSpread", currentSpread).
		Int32("targetSpread", target).
		Bool("needed", decision.Needed).
		Msg("Evaluated rebalance need")

	return decision, nil
}

// TargetSpread computes the bin count a strategy wants, clamped to [MinBinSpread, MaxBinSpread].
//
//	symmetric:    floor(1 / binStep)
//	dynamic:      floor(volatility × 100), volatility as in the health check
//	concentrated: floor(1 / (binStep × concentrationFactor))
func TargetSpread(pool types.PoolSnapshot, strategy types.RebalanceStrategy, bins []types.Bin) (int32, error) {
	if err := config.ValidateStrategy(strategy); err != nil {
		return 0, err
	}
	if pool.BinStep == 0 {
		return 0, fmt.Errorf("%w: pool %s has no bin step", types.ErrInsufficientData, pool.Address)
	}

	var raw float64
	switch strategy.Type {
	case types.StrategySymmetric:
		// 1/binStepFraction in integer basis points avoids float artifacts
		raw = float64(types.BasisPointMax / int(pool.BinStep))
	case types.StrategyDynamic:
		volatility, err := analyzer.WeightedBinVolatility(pool, bins)
		if err != nil {
			return 0, fmt.Errorf("dynamic spread for pool %s: %w", pool.Address, err)
		}
		raw = math.Floor(volatility * 100)
	case types.StrategyConcentrated:
		raw = math.Floor(types.BasisPointMax / (float64(pool.BinStep) * strategy.ConcentrationFactor))
	}

	return int32(math.Max(float64(strategy.MinBinSpread), math.Min(float64(strategy.MaxBinSpread), raw))), nil
}

// SuggestRange places a range of the target width around the active bin. Symmetric and dynamic
// strategies centre it; concentrated strategies put one third below and two thirds above.
func SuggestRange(pool types.PoolSnapshot, strategy types.RebalanceStrategy, target int32) types.BinRange {
	lower := pool.ActiveID - binsBelow(strategy, target)
	return types.BinRange{Lower: lower, Upper: lower + target}
}

func binsBelow(strategy types.RebalanceStrategy, target int32) int32 {
	if strategy.Type == types.StrategyConcentrated {
		return target / 3
	}
	return target / 2
}

// anchorOffset is how far above the active bin SuggestRange centres a range of the target width.
func anchorOffset(strategy types.RebalanceStrategy, target int32) float64 {
	return float64(target)/2 - float64(binsBelow(strategy, target))
}

// SpreadTolerance returns the strategy's spread tolerance, or the default for its type.
func SpreadTolerance(strategy types.RebalanceStrategy) int32 {
	if strategy.SpreadTolerance != nil {
		return *strategy.SpreadTolerance
	}
	return config.DefaultSpreadTolerance[strategy.Type]
}

// RebalancePosition evaluates the position and, when a rebalance is needed, asks the position
// manager to move it to the suggested range.
func (p *Planner) RebalancePosition(ctx context.Context, pool types.PoolSnapshot, position types.Position, strategy types.RebalanceStrategy, bins []types.Bin) (types.RebalanceOutcome, error) {
	decision, err := CheckRebalanceNeeded(pool, position, strategy, bins)
	if err != nil {
		p.logger.Error().Err(err).Str("position", position.Address).Msg("Rebalance evaluation failed")
		return types.RebalanceOutcome{}, err
	}

	outcome := types.RebalanceOutcome{Decision: decision}
	if !decision.Needed {
		p.logger.Debug().Str("position", position.Address).Msg("No rebalance needed")
		return outcome, nil
	}
	if p.manager == nil {
		return outcome, ErrNoPositionManager
	}

	adjustment := types.RangeAdjustment{
		Position: position.Address,
		Pool:     pool.Address,
		Owner:    position.Owner,
		From:     types.BinRange{Lower: position.LowerBinID, Upper: position.UpperBinID},
		To:       *decision.SuggestedBins,
		Reason:   decision.Reason,
	}

	p.logger.Info().
		Str("position", position.Address).
		Int32("toLower", adjustment.To.Lower).
		Int32("toUpper", adjustment.To.Upper).
		Str("reason", decision.Reason).
		Msg("Submitting range adjustment")

	signature, err := p.manager.AdjustRange(ctx, adjustment)
	if err != nil {
		p.logger.Error().Err(err).Str("position", position.Address).Msg("Range adjustment failed")
		return outcome, errors.Join(ErrAdjustmentFailed, err)
	}

	outcome.Executed = true
	outcome.Signature = signature
	return outcome, nil
}

func validateInputs(pool types.PoolSnapshot, position types.Position, strategy types.RebalanceStrategy) error {
	if pool.Address == "" {
		return fmt.Errorf("%w: pool metadata is missing", types.ErrInsufficientData)
	}
	if position.Address == "" {
		return fmt.Errorf("%w: position data is missing", types.ErrInsufficientData)
	}
	if pool.BinStep == 0 {
		return fmt.Errorf("%w: pool %s has no bin step", types.ErrInsufficientData, pool.Address)
	}
	if err := position.ValidateRange(); err != nil {
		return err
	}
	return config.ValidateStrategy(strategy)
}

func absInt32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
