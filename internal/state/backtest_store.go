package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lpm-labs/dlmm-lpm/internal/types"
)

// BacktestRunSummary is the listing view of a stored backtest.
type BacktestRunSummary struct {
	ID           string    `json:"id"`
	StrategyName string    `json:"strategy_name"`
	Returns      float64   `json:"returns"`
	SharpeRatio  float64   `json:"sharpe_ratio"`
	CreatedAt    time.Time `json:"created_at"`
}

// SaveBacktestRun stores a backtest result and returns its id. A result without an id gets a new one.
func (s *Store) SaveBacktestRun(ctx context.Context, result types.BacktestResult) (string, error) {
	if result.ID == "" {
		result.ID = uuid.NewString()
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("failed to marshal backtest result: %w", err)
	}

	query := s.db.Rebind(`
		INSERT INTO backtest_runs (run_id, strategy_name, created_at, returns, sharpe_ratio, result)
		VALUES (?, ?, ?, ?, ?, ?)`)

	if _, err := s.db.ExecContext(ctx, query,
		result.ID, result.StrategyName, time.Now().Unix(), result.Returns, result.SharpeRatio, string(resultJSON),
	); err != nil {
		return "", fmt.Errorf("failed to save backtest run: %w", err)
	}

	s.logger.Info().
		Str("run_id", result.ID).
		Str("strategy", result.StrategyName).
		Float64("returns", result.Returns).
		Msg("Backtest run saved to database")

	return result.ID, nil
}

// GetBacktestRun loads a stored backtest result by id.
func (s *Store) GetBacktestRun(ctx context.Context, id string) (types.BacktestResult, error) {
	var raw string
	query := s.db.Rebind(`SELECT result FROM backtest_runs WHERE run_id = ?`)
	if err := s.db.GetContext(ctx, &raw, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.BacktestResult{}, fmt.Errorf("%w: backtest run %s", ErrNotFound, id)
		}
		return types.BacktestResult{}, fmt.Errorf("failed to query backtest run %s: %w", id, err)
	}

	var result types.BacktestResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return types.BacktestResult{}, fmt.Errorf("failed to unmarshal backtest run %s: %w", id, err)
	}
	return result, nil
}

// ListBacktestRuns returns the most recent backtest runs, newest first.
func (s *Store) ListBacktestRuns(ctx context.Context, limit int) ([]BacktestRunSummary, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := s.db.Rebind(`
		SELECT run_id, strategy_name, returns, sharpe_ratio, created_at
		FROM backtest_runs
		ORDER BY created_at DESC
		LIMIT ?`)

	rows, err := s.db.QueryxContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query backtest runs: %w", err)
	}
	defer rows.Close()

	runs := make([]BacktestRunSummary, 0)
	for rows.Next() {
		var run BacktestRunSummary
		var createdAt int64
		if err := rows.Scan(&run.ID, &run.StrategyName, &run.Returns, &run.SharpeRatio, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan backtest run: %w", err)
		}
		run.CreatedAt = time.Unix(createdAt, 0).UTC()
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating backtest runs: %w", err)
	}
	return runs, nil
}
