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

// PositionSnapshot is a persisted monitor evaluation.
type PositionSnapshot struct {
	ID          string               `json:"id"`
	CycleNumber int                  `json:"cycle_number"`
	Report      types.PositionReport `json:"report"`
}

type snapshotRow struct {
	ID          string `db:"snapshot_id"`
	CycleNumber int    `db:"cycle_number"`
	Report      string `db:"report"`
}

// SavePositionSnapshot saves a position evaluation to the database.
func (s *Store) SavePositionSnapshot(ctx context.Context, cycleNumber int, report types.PositionReport) (string, error) {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}

	rebalanceNeeded := 0
	if report.Rebalance.Needed {
		rebalanceNeeded = 1
	}

	id := uuid.NewString()
	query := s.db.Rebind(`
		INSERT INTO position_snapshots (
			snapshot_id, cycle_number, position_address, pool_address, evaluated_at,
			current_price, initial_price, tvl, apr, health_score, health_status,
			rebalance_needed, report
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err = s.db.ExecContext(ctx, query,
		id, cycleNumber, report.Position.Address, report.Pool.Address, report.EvaluatedAt.Unix(),
		report.Pool.CurrentPrice, report.InitialPrice, report.Metrics.TVL, report.Metrics.APR,
		report.Health.Score, string(report.Health.Status), rebalanceNeeded, string(reportJSON),
	)
	if err != nil {
		return "", fmt.Errorf("failed to save position snapshot: %w", err)
	}

	s.logger.Info().
		Str("snapshot_id", id).
		Int("cycle_number", cycleNumber).
		Str("position", report.Position.Address).
		Float64("health_score", report.Health.Score).
		Msg("Position snapshot saved to database")

	return id, nil
}

// GetRecentSnapshots returns the latest snapshots of a position, newest first.
func (s *Store) GetRecentSnapshots(ctx context.Context, address string, limit int) ([]PositionSnapshot, error) {
	if limit <= 0 || limit > 500 {
		limit = 50 // Default limit
	}

	query := s.db.Rebind(`
		SELECT snapshot_id, cycle_number, report
		FROM position_snapshots
		WHERE position_address = ?
		ORDER BY evaluated_at DESC, cycle_number DESC
		LIMIT ?`)

	var rows []snapshotRow
	if err := s.db.SelectContext(ctx, &rows, query, address, limit); err != nil {
		return nil, fmt.Errorf("failed to query snapshots for %s: %w", address, err)
	}

	snapshots := make([]PositionSnapshot, 0, len(rows))
	for _, row := range rows {
		snapshot := PositionSnapshot{ID: row.ID, CycleNumber: row.CycleNumber}
		if err := json.Unmarshal([]byte(row.Report), &snapshot.Report); err != nil {
			return nil, fmt.Errorf("failed to unmarshal snapshot %s: %w", row.ID, err)
		}
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, nil
}

// FirstObservedPrice returns the pool price recorded by the earliest snapshot of a position.
func (s *Store) FirstObservedPrice(ctx context.Context, address string) (float64, time.Time, error) {
	query := s.db.Rebind(`
		SELECT current_price, evaluated_at
		FROM position_snapshots
		WHERE position_address = ?
		ORDER BY evaluated_at ASC
		LIMIT 1`)

	var row struct {
		Price       float64 `db:"current_price"`
		EvaluatedAt int64   `db:"evaluated_at"`
	}
	if err := s.db.GetContext(ctx, &row, query, address); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, time.Time{}, fmt.Errorf("%w: no snapshots for %s", ErrNotFound, address)
		}
		return 0, time.Time{}, fmt.Errorf("failed to query first price for %s: %w", address, err)
	}
	return row.Price, time.Unix(row.EvaluatedAt, 0).UTC(), nil
}
