package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lpm-labs/dlmm-lpm/internal/types"
)

// SaveStrategy upserts a strategy by name. When activate is set, the strategy becomes the only active one.
func (s *Store) SaveStrategy(ctx context.Context, strategy types.RebalanceStrategy, activate bool) (err error) {
	configJSON, err := json.Marshal(strategy)
	if err != nil {
		return fmt.Errorf("failed to marshal strategy %s: %w", strategy.Name, err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	active := 0
	if activate {
		active = 1
		if _, err = tx.ExecContext(ctx, `UPDATE strategies SET is_active = 0 WHERE is_active = 1`); err != nil {
			return fmt.Errorf("failed to deactivate previous strategy: %w", err)
		}
	}

	query := tx.Rebind(`
		INSERT INTO strategies (name, config, is_active, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			config = excluded.config,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`)

	if _, err = tx.ExecContext(ctx, query, strategy.Name, string(configJSON), active, time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to save strategy %s: %w", strategy.Name, err)
	}

	s.logger.Info().Str("strategy", strategy.Name).Bool("active", activate).Msg("Strategy saved to database")
	return nil
}

// LoadActiveStrategy returns the strategy currently marked active.
func (s *Store) LoadActiveStrategy(ctx context.Context) (types.RebalanceStrategy, error) {
	var raw string
	err := s.db.GetContext(ctx, &raw, `SELECT config FROM strategies WHERE is_active = 1 LIMIT 1`)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.RebalanceStrategy{}, fmt.Errorf("%w: no active strategy", ErrNotFound)
		}
		return types.RebalanceStrategy{}, fmt.Errorf("failed to query active strategy: %w", err)
	}

	var strategy types.RebalanceStrategy
	if err := json.Unmarshal([]byte(raw), &strategy); err != nil {
		return types.RebalanceStrategy{}, fmt.Errorf("failed to unmarshal active strategy: %w", err)
	}
	return strategy, nil
}

// ListStrategies returns every stored strategy ordered by name.
func (s *Store) ListStrategies(ctx context.Context) ([]types.RebalanceStrategy, error) {
	var raws []string
	if err := s.db.SelectContext(ctx, &raws, `SELECT config FROM strategies ORDER BY name`); err != nil {
		return nil, fmt.Errorf("failed to query strategies: %w", err)
	}

	strategies := make([]types.RebalanceStrategy, 0, len(raws))
	for _, raw := range raws {
		var strategy types.RebalanceStrategy
		if err := json.Unmarshal([]byte(raw), &strategy); err != nil {
			return nil, fmt.Errorf("failed to unmarshal strategy: %w", err)
		}
		strategies = append(strategies, strategy)
	}
	return strategies, nil
}
