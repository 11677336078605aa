package state

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/lpm-labs/dlmm-lpm/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	store, err := Open(ctx, "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.EnsureSchema(ctx))
	// Applying the schema twice must be harmless
	require.NoError(t, store.EnsureSchema(ctx))
	return store
}

func testReport(address string, at time.Time, price, score float64, needed bool) types.PositionReport {
	return types.PositionReport{
		Position: types.Position{
			Address:         address,
			Pool:            "pool-1",
			LowerBinID:      95,
			UpperBinID:      105,
			TokenXDeposited: sdkmath.NewInt(1_000_000),
			TokenYDeposited: sdkmath.NewInt(2_000_000),
			FeesEarnedX:     sdkmath.ZeroInt(),
			FeesEarnedY:     sdkmath.ZeroInt(),
		},
		Pool: types.PoolSnapshot{
			Address:      "pool-1",
			ActiveID:     100,
			BinStep:      25,
			ReserveX:     sdkmath.NewInt(10),
			ReserveY:     sdkmath.NewInt(20),
			FeesX:        sdkmath.ZeroInt(),
			FeesY:        sdkmath.ZeroInt(),
			CurrentPrice: price,
		},
		Metrics:      types.PositionMetrics{TVL: 3, APR: 12.5, HealthScore: score},
		Health:       types.HealthCheckResult{Score: score, Status: types.HealthStatusHealthy},
		Rebalance:    types.RebalanceDecision{Needed: needed},
		InitialPrice: price,
		EvaluatedAt:  at,
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "dsn")
	assert.Error(t, err)
}

func TestCycleCounter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	current, err := store.GetCurrentCycleNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, current)

	next, err := store.IncrementCycleNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, next)

	next, err = store.IncrementCycleNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, next)

	require.NoError(t, store.ResetCycleNumber(ctx, 10))
	current, err = store.GetCurrentCycleNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, current)

	assert.Error(t, store.ResetCycleNumber(ctx, -1))
}

func TestSnapshotsRoundTripAndOrdering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := store.SavePositionSnapshot(ctx, 1, testReport("pos-a", base, 1.5, 90, false))
	require.NoError(t, err)
	_, err = store.SavePositionSnapshot(ctx, 2, testReport("pos-a", base.Add(time.Hour), 1.7, 40, true))
	require.NoError(t, err)
	_, err = store.SavePositionSnapshot(ctx, 2, testReport("pos-b", base, 9, 70, false))
	require.NoError(t, err)

	snapshots, err := store.GetRecentSnapshots(ctx, "pos-a", 10)
	require.NoError(t, err)
	require.Len(t, snapshots, 2)
	assert.Equal(t, 2, snapshots[0].CycleNumber)
	assert.Equal(t, 40.0, snapshots[0].Report.Health.Score)
	assert.True(t, snapshots[0].Report.Rebalance.Needed)
	assert.True(t, snapshots[0].Report.Position.TokenYDeposited.Equal(sdkmath.NewInt(2_000_000)))
	assert.True(t, snapshots[1].Report.EvaluatedAt.Equal(base))

	price, at, err := store.FirstObservedPrice(ctx, "pos-a")
	require.NoError(t, err)
	assert.Equal(t, 1.5, price)
	assert.True(t, at.Equal(base))

	_, _, err = store.FirstObservedPrice(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestPositionSummary(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	empty, err := store.GetPositionSummary(ctx, "pos-a")
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Evaluations)
	assert.True(t, empty.LastSeen.IsZero())

	_, err = store.SavePositionSnapshot(ctx, 1, testReport("pos-a", base, 1.5, 90, false))
	require.NoError(t, err)
	_, err = store.SavePositionSnapshot(ctx, 2, testReport("pos-a", base.Add(time.Hour), 1.7, 40, true))
	require.NoError(t, err)

	summary, err := store.GetPositionSummary(ctx, "pos-a")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Evaluations)
	assert.InDelta(t, 65.0, summary.AvgHealthScore, 1e-9)
	assert.Equal(t, 40.0, summary.MinHealthScore)
	assert.Equal(t, 40.0, summary.LatestHealthScore)
	assert.Equal(t, 1, summary.RebalancesFlagged)
	assert.True(t, summary.FirstSeen.Equal(base))
	assert.True(t, summary.LastSeen.Equal(base.Add(time.Hour)))
}

func TestBacktestRuns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	result := types.BacktestResult{
		StrategyName: "balanced",
		Returns:      4.2,
		SharpeRatio:  1.1,
		TotalTrades:  3,
		Snapshots:    []types.BacktestSnapshot{{Price: 1, PositionValue: 100}},
	}
	id, err := store.SaveBacktestRun(ctx, result)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	loaded, err := store.GetBacktestRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, loaded.ID)
	assert.Equal(t, 3, loaded.TotalTrades)
	require.Len(t, loaded.Snapshots, 1)

	runs, err := store.ListBacktestRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "balanced", runs[0].StrategyName)

	_, err = store.GetBacktestRun(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStrategiesActivation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.LoadActiveStrategy(ctx)
	assert.True(t, errors.Is(err, ErrNotFound))

	balanced := types.RebalanceStrategy{Name: "balanced", Type: types.StrategySymmetric, MinBinSpread: 10, MaxBinSpread: 40}
	tight := types.RebalanceStrategy{Name: "tight", Type: types.StrategyConcentrated, ConcentrationFactor: 4, MinBinSpread: 2, MaxBinSpread: 20}

	require.NoError(t, store.SaveStrategy(ctx, balanced, true))
	require.NoError(t, store.SaveStrategy(ctx, tight, false))

	active, err := store.LoadActiveStrategy(ctx)
	require.NoError(t, err)
	assert.Equal(t, "balanced", active.Name)

	require.NoError(t, store.SaveStrategy(ctx, tight, true))
	active, err = store.LoadActiveStrategy(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tight", active.Name)
	assert.Equal(t, 4.0, active.ConcentrationFactor)

	all, err := store.ListStrategies(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "balanced", all[0].Name)
}

func TestDropSchema(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.DropSchema(ctx))
	_, err := store.GetCurrentCycleNumber(ctx)
	assert.Error(t, err)
}
