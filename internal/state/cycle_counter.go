/*

This file manages the persistent global cycle counter for the position monitor.
The cycle counter is stored in the database to ensure continuity across restarts.

*/

package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetCurrentCycleNumber retrieves the current cycle number from the database
func (s *Store) GetCurrentCycleNumber(ctx context.Context) (int, error) {
	var currentCycle int
	err := s.db.GetContext(ctx, &currentCycle, `SELECT current_cycle FROM cycle_counter WHERE id = 1`)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// This should not happen due to the INSERT in EnsureSchema
			s.logger.Warn().Msg("No cycle counter row found, initializing to 0")
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get current cycle number: %w", err)
	}

	s.logger.Debug().Int("currentCycle", currentCycle).Msg("Retrieved current cycle number")
	return currentCycle, nil
}

// IncrementCycleNumber increments the cycle counter and returns the new value
func (s *Store) IncrementCycleNumber(ctx context.Context) (int, error) {
	query := s.db.Rebind(`
		UPDATE cycle_counter
		SET current_cycle = current_cycle + 1,
		    updated_at = ?
		WHERE id = 1
		RETURNING current_cycle`)

	var newCycle int
	if err := s.db.GetContext(ctx, &newCycle, query, time.Now().Unix()); err != nil {
		return 0, fmt.Errorf("failed to increment cycle number: %w", err)
	}

	s.logger.Info().Int("newCycle", newCycle).Msg("Incremented cycle counter")
	return newCycle, nil
}

// ResetCycleNumber resets the cycle counter to a specific value (for testing/maintenance)
func (s *Store) ResetCycleNumber(ctx context.Context, cycleNumber int) error {
	if cycleNumber < 0 {
		return fmt.Errorf("cycle number cannot be negative: %d", cycleNumber)
	}

	query := s.db.Rebind(`UPDATE cycle_counter SET current_cycle = ?, updated_at = ? WHERE id = 1`)
	result, err := s.db.ExecContext(ctx, query, cycleNumber, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to reset cycle number to %d: %w", cycleNumber, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("no rows updated when resetting cycle number")
	}

	s.logger.Warn().Int("cycleNumber", cycleNumber).Msg("Reset cycle counter")
	return nil
}
