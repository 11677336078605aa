package state

import (
	"context"
	"fmt"
	"time"
)

// PositionSummary aggregates the stored evaluations of one position.
type PositionSummary struct {
	Address           string    `json:"address"`
	Evaluations       int       `json:"evaluations"`
	AvgHealthScore    float64   `json:"avg_health_score"`
	MinHealthScore    float64   `json:"min_health_score"`
	LatestHealthScore float64   `json:"latest_health_score"`
	RebalancesFlagged int       `json:"rebalances_flagged"`
	FirstSeen         time.Time `json:"first_seen,omitempty"`
	LastSeen          time.Time `json:"last_seen,omitempty"`
}

// GetPositionSummary aggregates health statistics over all snapshots of a position.
func (s *Store) GetPositionSummary(ctx context.Context, address string) (*PositionSummary, error) {
	query := s.db.Rebind(`
		SELECT
			COUNT(*) AS evaluations,
			COALESCE(AVG(health_score), 0) AS avg_health_score,
			COALESCE(MIN(health_score), 0) AS min_health_score,
			COALESCE(SUM(rebalance_needed), 0) AS rebalances_flagged,
			COALESCE(MIN(evaluated_at), 0) AS first_seen,
			COALESCE(MAX(evaluated_at), 0) AS last_seen
		FROM position_snapshots
		WHERE position_address = ?`)

	var row struct {
		Evaluations       int     `db:"evaluations"`
		AvgHealthScore    float64 `db:"avg_health_score"`
		MinHealthScore    float64 `db:"min_health_score"`
		RebalancesFlagged int     `db:"rebalances_flagged"`
		FirstSeen         int64   `db:"first_seen"`
		LastSeen          int64   `db:"last_seen"`
	}
	if err := s.db.GetContext(ctx, &row, query, address); err != nil {
		return nil, fmt.Errorf("failed to get summary for %s: %w", address, err)
	}

	summary := &PositionSummary{
		Address:           address,
		Evaluations:       row.Evaluations,
		AvgHealthScore:    row.AvgHealthScore,
		MinHealthScore:    row.MinHealthScore,
		RebalancesFlagged: row.RebalancesFlagged,
	}
	if row.Evaluations == 0 {
		return summary, nil
	}
	summary.FirstSeen = time.Unix(row.FirstSeen, 0).UTC()
	summary.LastSeen = time.Unix(row.LastSeen, 0).UTC()

	latest := s.db.Rebind(`
		SELECT health_score FROM position_snapshots
		WHERE position_address = ?
		ORDER BY evaluated_at DESC, cycle_number DESC
		LIMIT 1`)
	if err := s.db.GetContext(ctx, &summary.LatestHealthScore, latest, address); err != nil {
		return nil, fmt.Errorf("failed to get latest health score for %s: %w", address, err)
	}

	s.logger.Debug().
		Str("position", address).
		Int("evaluations", summary.Evaluations).
		Float64("avgHealthScore", summary.AvgHealthScore).
		Msg("Retrieved position summary")
	return summary, nil
}
