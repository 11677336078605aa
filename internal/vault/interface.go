package vault

import (
	"context"

	"github.com/lpm-labs/dlmm-lpm/internal/types"
)

// PositionManager defines the interface for mutating DLMM positions.
// This interface abstracts away the transaction building and signing, allowing for different
// implementations (live SDK bridge, dry run, test doubles).
type PositionManager interface {
	// AdjustRange moves a position to a new bin range and returns the transaction signature.
	AdjustRange(ctx context.Context, adjustment types.RangeAdjustment) (string, error)

	// Close cleans up any resources used by the position manager.
	Close() error
}
