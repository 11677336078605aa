package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/lpm-labs/dlmm-lpm/internal/analyzer"
	"github.com/lpm-labs/dlmm-lpm/internal/logger"
	"github.com/lpm-labs/dlmm-lpm/internal/planner"
	"github.com/lpm-labs/dlmm-lpm/internal/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// maxConcurrentEvaluations bounds the upstream fan-out of a cycle or comparison.
const maxConcurrentEvaluations = 4

// Fetcher provides the upstream snapshots an evaluation is derived from.
type Fetcher interface {
	GetPosition(ctx context.Context, address string) (types.Position, error)
	GetPoolSnapshot(ctx context.Context, pool string) (types.PoolSnapshot, error)
	GetBins(ctx context.Context, pool string, lowerBinID, upperBinID int32) ([]types.Bin, error)
	GetPriceHistory(ctx context.Context, pool string, from, to time.Time) ([]types.PriceData, error)
	GetPositionsByOwner(ctx context.Context, owner string) ([]types.Position, error)
}

// SnapshotStore persists evaluations and the cycle counter.
type SnapshotStore interface {
	SavePositionSnapshot(ctx context.Context, cycleNumber int, report types.PositionReport) (string, error)
	FirstObservedPrice(ctx context.Context, address string) (float64, time.Time, error)
	IncrementCycleNumber(ctx context.Context) (int, error)
}

// Monitor evaluates tracked positions and optionally rebalances them.
type Monitor struct {
	logger        zerolog.Logger
	fetcher       Fetcher
	store         SnapshotStore
	planner       *planner.Planner
	metrics       *Metrics
	thresholds    types.HealthThresholds
	tracked       []string
	owners        []string
	autoRebalance bool
	now           func() time.Time

	mu       sync.RWMutex
	strategy types.RebalanceStrategy

	inflight   singleflight.Group
	localCycle atomic.Int64
}

// Config holds the dependencies for creating a new Monitor.
type Config struct {
	Fetcher       Fetcher
	Store         SnapshotStore    // Optional, snapshots are not persisted when nil
	Planner       *planner.Planner // Required when AutoRebalance is set
	Metrics       *Metrics         // Optional
	Thresholds    types.HealthThresholds
	Strategy      types.RebalanceStrategy
	Tracked       []string
	Owners        []string // Wallets whose positions are discovered every cycle
	AutoRebalance bool
	Now           func() time.Time
}

// CycleSummary reports the outcome of one monitor cycle.
type CycleSummary struct {
	CycleID     string
	CycleNumber int
	Evaluated   int
	Failed      int
	Rebalanced  int
	Reports     []types.PositionReport
}

// evaluation keeps the bins next to the report so a rebalance can reuse them.
type evaluation struct {
	report types.PositionReport
	bins   []types.Bin
}

// New creates a Monitor with dependency injection.
func New(cfg Config) (*Monitor, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("monitor configuration validation failed: %w", err)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	m := &Monitor{
		logger:        logger.GetForComponent("monitor"),
		fetcher:       cfg.Fetcher,
		store:         cfg.Store,
		planner:       cfg.Planner,
		metrics:       cfg.Metrics,
		thresholds:    cfg.Thresholds,
		tracked:       append([]string(nil), cfg.Tracked...),
		owners:        append([]string(nil), cfg.Owners...),
		autoRebalance: cfg.AutoRebalance,
		now:           now,
		strategy:      cfg.Strategy,
	}

	m.logger.Info().
		Int("trackedPositions", len(m.tracked)).
		Int("trackedOwners", len(m.owners)).
		Str("strategy", cfg.Strategy.Name).
		Bool("autoRebalance", m.autoRebalance).
		Msg("Monitor created")

	return m, nil
}

func validateConfig(cfg Config) error {
	if cfg.Fetcher == nil {
		return fmt.Errorf("fetcher cannot be nil")
	}
	if cfg.AutoRebalance && cfg.Planner == nil {
		return fmt.Errorf("auto rebalance requires a planner")
	}
	if cfg.Strategy.Name == "" {
		return fmt.Errorf("strategy cannot be empty")
	}
	return nil
}

// Strategy returns the strategy used for rebalance decisions.
func (m *Monitor) Strategy() types.RebalanceStrategy {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.strategy
}

// SetStrategy replaces the strategy used by subsequent evaluations.
func (m *Monitor) SetStrategy(strategy types.RebalanceStrategy) {
	m.mu.Lock()
	m.strategy = strategy
	m.mu.Unlock()
	m.logger.Info().Str("strategy", strategy.Name).Msg("Active strategy changed")
}

// Evaluate fetches a position and computes its metrics, health and rebalance decision.
// Concurrent calls for the same address share a single in-flight evaluation.
func (m *Monitor) Evaluate(ctx context.Context, address string) (types.PositionReport, error) {
	ev, err := m.evaluateShared(ctx, address)
	if err != nil {
		return types.PositionReport{}, err
	}
	return ev.report, nil
}

// ComparePositions evaluates the given positions and ranks them.
func (m *Monitor) ComparePositions(ctx context.Context, addresses []string, weights types.RankingWeights) ([]types.PositionRanking, error) {
	if len(addresses) == 0 {
		return nil, analyzer.ErrNoPositions
	}

	reports := make([]types.PositionReport, len(addresses))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentEvaluations)
	for i, address := range addresses {
		i, address := i, address
		g.Go(func() error {
			report, err := m.Evaluate(gctx, address)
			if err != nil {
				return fmt.Errorf("position %s: %w", address, err)
			}
			reports[i] = report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return analyzer.RankPositions(reports, weights)
}

func (m *Monitor) evaluateShared(ctx context.Context, address string) (evaluation, error) {
	v, err, shared := m.inflight.Do(address, func() (any, error) {
		return m.evaluate(ctx, address)
	})
	if shared {
		m.logger.Debug().Str("position", address).Msg("Joined in-flight evaluation")
	}
	if err != nil {
		if !shared {
			m.observeFailure()
		}
		return evaluation{}, err
	}
	return v.(evaluation), nil
}

func (m *Monitor) evaluate(ctx context.Context, address string) (evaluation, error) {
	log := m.logger.With().Str("position", address).Logger()

	position, err := m.fetcher.GetPosition(ctx, address)
	if err != nil {
		return evaluation{}, upstream("position", err)
	}
	pool, err := m.fetcher.GetPoolSnapshot(ctx, position.Pool)
	if err != nil {
		return evaluation{}, upstream("pool snapshot", err)
	}

	lower, upper := position.LowerBinID, position.UpperBinID
	if pool.ActiveID < lower {
		lower = pool.ActiveID
	}
	if pool.ActiveID > upper {
		upper = pool.ActiveID
	}
	bins, err := m.fetcher.GetBins(ctx, pool.Address, lower, upper)
	if err != nil {
		return evaluation{}, upstream("bins", err)
	}

	evaluatedAt := m.now()
	initialPrice, priceSource := m.initialPrice(ctx, position, pool, log)

	metrics, err := analyzer.ComputeMetrics(analyzer.MetricsInput{
		Position:     position,
		Pool:         pool,
		Bins:         bins,
		CurrentPrice: pool.CurrentPrice,
		InitialPrice: initialPrice,
		AsOf:         evaluatedAt,
	})
	if err != nil {
		return evaluation{}, fmt.Errorf("metrics: %w", err)
	}

	health, err := analyzer.CheckHealth(position, pool, bins, m.thresholds, evaluatedAt)
	if err != nil {
		return evaluation{}, fmt.Errorf("health check: %w", err)
	}

	decision, err := planner.CheckRebalanceNeeded(pool, position, m.Strategy(), bins)
	if err != nil {
		return evaluation{}, fmt.Errorf("rebalance check: %w", err)
	}

	report := types.PositionReport{
		Position:           position,
		Pool:               pool,
		Metrics:            metrics.WithHealthScore(health.Score),
		Health:             health,
		Rebalance:          decision,
		InitialPrice:       initialPrice,
		InitialPriceSource: priceSource,
		EvaluatedAt:        evaluatedAt,
	}
	m.observeReport(report)

	log.Info().
		Float64("healthScore", health.Score).
		Str("status", string(health.Status)).
		Int("issues", len(health.Issues)).
		Float64("apr", metrics.APR).
		Bool("rebalanceNeeded", decision.Needed).
		Msg("Position evaluated")

	return evaluation{report: report, bins: bins}, nil
}

// initialPrice resolves the entry price used for impermanent loss: the pool price when the
// position was opened, else the first price this monitor recorded. Without either the price is 0
// and the loss is reported unavailable.
func (m *Monitor) initialPrice(ctx context.Context, position types.Position, pool types.PoolSnapshot, log zerolog.Logger) (float64, types.InitialPriceSource) {
	if !position.OpenedAt.IsZero() {
		history, err := m.fetcher.GetPriceHistory(ctx, pool.Address, position.OpenedAt, position.OpenedAt.Add(time.Hour))
		if err == nil && len(history) > 0 {
			return history[0].Price, types.InitialPriceAtOpening
		}
		if err != nil {
			log.Warn().Err(err).Msg("Price history at position opening unavailable")
		}
	}

	if m.store != nil {
		price, _, err := m.store.FirstObservedPrice(ctx, position.Address)
		if err == nil && price > 0 {
			return price, types.InitialPriceFirstObserved
		}
	}

	log.Warn().Msg("No entry price known, impermanent loss unavailable")
	return 0, types.InitialPriceUnavailable
}

// RunLoop starts the monitor loop with the specified interval.
func (m *Monitor) RunLoop(ctx context.Context, interval time.Duration) {
	m.logger.Info().Dur("interval", interval).Msg("Starting monitor loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run first cycle immediately
	m.RunCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("Monitor loop stopped due to context cancellation")
			return
		case <-ticker.C:
			m.RunCycle(ctx)
		}
	}
}

// RunCycle evaluates every tracked position once, persists the reports and executes the
// rebalances that are needed when auto rebalance is enabled.
func (m *Monitor) RunCycle(ctx context.Context) CycleSummary {
	cycleStartTime := time.Now()

	// Unique cycle ID for tracing logs across the entire cycle
	cycleID := uuid.New().String()
	cycleLogger := m.logger.With().Str("cycle_id", cycleID).Logger()

	summary := CycleSummary{CycleID: cycleID, CycleNumber: m.nextCycleNumber(ctx, cycleLogger)}
	cycleLogger.Info().Int("cycleNumber", summary.CycleNumber).Msg("--- Starting monitor cycle ---")

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(maxConcurrentEvaluations)

	addresses, failedOwners := m.trackedAddresses(ctx, cycleLogger)
	summary.Failed += failedOwners

	for _, address := range addresses {
		address := address
		g.Go(func() error {
			ev, err := m.evaluateShared(ctx, address)
			if err != nil {
				cycleLogger.Error().Err(err).Str("position", address).Msg("Position evaluation failed")
				mu.Lock()
				summary.Failed++
				mu.Unlock()
				return nil
			}
			ev.report.CycleID = cycleID

			m.persist(ctx, summary.CycleNumber, ev.report, cycleLogger)
			rebalanced := m.maybeRebalance(ctx, ev, cycleLogger)

			mu.Lock()
			summary.Evaluated++
			if rebalanced {
				summary.Rebalanced++
			}
			summary.Reports = append(summary.Reports, ev.report)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	elapsed := time.Since(cycleStartTime)
	if m.metrics != nil {
		m.metrics.CycleDuration.Observe(elapsed.Seconds())
	}

	cycleLogger.Info().
		Int("evaluated", summary.Evaluated).
		Int("failed", summary.Failed).
		Int("rebalanced", summary.Rebalanced).
		Dur("duration", elapsed).
		Msg("--- Monitor cycle complete ---")

	return summary
}

// trackedAddresses returns the configured positions followed by those discovered for the tracked
// owners, without duplicates. Owners whose positions could not be listed are counted.
func (m *Monitor) trackedAddresses(ctx context.Context, log zerolog.Logger) ([]string, int) {
	seen := make(map[string]bool, len(m.tracked))
	addresses := make([]string, 0, len(m.tracked))
	add := func(address string) {
		if !seen[address] {
			seen[address] = true
			addresses = append(addresses, address)
		}
	}
	for _, address := range m.tracked {
		add(address)
	}

	failed := 0
	for _, owner := range m.owners {
		positions, err := m.fetcher.GetPositionsByOwner(ctx, owner)
		if err != nil {
			log.Error().Err(err).Str("owner", owner).Msg("Failed to list owner positions")
			failed++
			continue
		}
		for _, position := range positions {
			add(position.Address)
		}
		log.Debug().Str("owner", owner).Int("positions", len(positions)).Msg("Discovered owner positions")
	}
	return addresses, failed
}

func (m *Monitor) nextCycleNumber(ctx context.Context, log zerolog.Logger) int {
	if m.store != nil {
		n, err := m.store.IncrementCycleNumber(ctx)
		if err == nil {
			m.localCycle.Store(int64(n))
			return n
		}
		log.Error().Err(err).Msg("Failed to increment persistent cycle counter, using local counter")
	}
	return int(m.localCycle.Add(1))
}

func (m *Monitor) persist(ctx context.Context, cycleNumber int, report types.PositionReport, log zerolog.Logger) {
	if m.store == nil {
		return
	}
	if _, err := m.store.SavePositionSnapshot(ctx, cycleNumber, report); err != nil {
		log.Error().Err(err).Str("position", report.Position.Address).Msg("Failed to save position snapshot")
	}
}

func (m *Monitor) maybeRebalance(ctx context.Context, ev evaluation, log zerolog.Logger) bool {
	if !m.autoRebalance || !ev.report.Rebalance.Needed {
		return false
	}

	outcome, err := m.planner.RebalancePosition(ctx, ev.report.Pool, ev.report.Position, m.Strategy(), ev.bins)
	if err != nil {
		log.Error().Err(err).Str("position", ev.report.Position.Address).Msg("Rebalance failed")
		return false
	}
	if !outcome.Executed {
		return false
	}

	if m.metrics != nil {
		m.metrics.RebalancesExecuted.Inc()
	}
	log.Info().
		Str("position", ev.report.Position.Address).
		Str("signature", outcome.Signature).
		Msg("Rebalance submitted")
	return true
}

func (m *Monitor) observeReport(report types.PositionReport) {
	if m.metrics == nil {
		return
	}
	address := report.Position.Address
	m.metrics.Evaluations.WithLabelValues("ok").Inc()
	m.metrics.HealthScore.WithLabelValues(address).Set(report.Health.Score)
	m.metrics.DeviationPct.WithLabelValues(address).Set(analyzer.DeviationPct(report.Position, report.Pool))
	if report.Metrics.Available(types.MetricAPR) {
		m.metrics.APR.WithLabelValues(address).Set(report.Metrics.APR)
	} else {
		m.metrics.APR.DeleteLabelValues(address)
	}
}

func (m *Monitor) observeFailure() {
	if m.metrics != nil {
		m.metrics.Evaluations.WithLabelValues("error").Inc()
	}
}

// upstream keeps typed errors from the fetcher and tags anything else as an upstream failure.
func upstream(what string, err error) error {
	if errors.Is(err, types.ErrUpstreamFetch) || errors.Is(err, types.ErrInsufficientData) || errors.Is(err, types.ErrInvalidRange) {
		return fmt.Errorf("fetch %s: %w", what, err)
	}
	return fmt.Errorf("fetch %s: %w: %w", what, types.ErrUpstreamFetch, err)
}
