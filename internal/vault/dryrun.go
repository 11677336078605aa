package vault

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/lpm-labs/dlmm-lpm/internal/logger"
	"github.com/lpm-labs/dlmm-lpm/internal/types"
	"github.com/rs/zerolog"
)

var (
	ErrInvalidAddress = errors.New("invalid account address")
	ErrManagerClosed  = errors.New("position manager is closed")
)

// DryRunManager validates range adjustments and records them without submitting anything.
type DryRunManager struct {
	mu      sync.Mutex
	planned []types.RangeAdjustment
	closed  bool
	logger  zerolog.Logger
}

// NewDryRunManager creates a DryRunManager.
func NewDryRunManager() *DryRunManager {
	return &DryRunManager{logger: logger.GetForComponent("dry_run_manager")}
}

// AdjustRange validates the adjustment, logs the plan and returns a synthetic signature.
func (m *DryRunManager) AdjustRange(ctx context.Context, adjustment types.RangeAdjustment) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := ValidateAdjustment(adjustment); err != nil {
		m.logger.Error().Err(err).Str("position", adjustment.Position).Msg("Rejected range adjustment")
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", ErrManagerClosed
	}
	m.planned = append(m.planned, adjustment)

	signature := "dry-run-" + uuid.NewString()
	m.logger.Info().
		Str("position", adjustment.Position).
		Str("pool", adjustment.Pool).
		Int32("fromLower", adjustment.From.Lower).
		Int32("fromUpper", adjustment.From.Upper).
		Int32("toLower", adjustment.To.Lower).
		Int32("toUpper", adjustment.To.Upper).
		Str("reason", adjustment.Reason).
		Str("signature", signature).
		Msg("Dry run: range adjustment planned")
	return signature, nil
}

// Planned returns a copy of the adjustments recorded so far.
func (m *DryRunManager) Planned() []types.RangeAdjustment {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.RangeAdjustment, len(m.planned))
	copy(out, m.planned)
	return out
}

// Close marks the manager closed; later adjustments fail.
func (m *DryRunManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// ValidateAdjustment checks the account addresses and the target range of an adjustment.
func ValidateAdjustment(adjustment types.RangeAdjustment) error {
	accounts := [][2]string{
		{"position", adjustment.Position},
		{"pool", adjustment.Pool},
		{"owner", adjustment.Owner},
	}
	for _, account := range accounts {
		if _, err := solana.PublicKeyFromBase58(account[1]); err != nil {
			return fmt.Errorf("%w: %s %q: %w", ErrInvalidAddress, account[0], account[1], err)
		}
	}
	if adjustment.To.Lower >= adjustment.To.Upper {
		return fmt.Errorf("%w: target range [%d, %d]", types.ErrInvalidRange, adjustment.To.Lower, adjustment.To.Upper)
	}
	return nil
}
