package datafetcher

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/lpm-labs/dlmm-lpm/internal/types"
)

type binsResponse struct {
	Bins []rawBin `json:"bins"`
}

// GetPoolSnapshot fetches and normalizes the current state of a pool.
func (c *Client) GetPoolSnapshot(ctx context.Context, pool string) (types.PoolSnapshot, error) {
	if err := ValidateAddress(pool); err != nil {
		return types.PoolSnapshot{}, err
	}

	var raw rawPool
	if err := c.getJSON(ctx, "/pools/"+url.PathEscape(pool), nil, &raw); err != nil {
		return types.PoolSnapshot{}, err
	}

	snapshot, err := normalizePool(raw, c.now().UTC())
	if err != nil {
		c.logger.Error().Err(err).Str("pool", pool).Msg("Failed to normalize pool")
		return types.PoolSnapshot{}, err
	}

	c.logger.Debug().
		Str("pool", pool).
		Int32("activeId", snapshot.ActiveID).
		Uint16("binStep", snapshot.BinStep).
		Float64("price", snapshot.CurrentPrice).
		Msg("Fetched pool snapshot")
	return snapshot, nil
}

// GetBins fetches the bins of a pool between lowerBinID and upperBinID, inclusive.
func (c *Client) GetBins(ctx context.Context, pool string, lowerBinID, upperBinID int32) ([]types.Bin, error) {
	if err := ValidateAddress(pool); err != nil {
		return nil, err
	}
	if lowerBinID > upperBinID {
		return nil, fmt.Errorf("%w: bin window [%d, %d]", types.ErrInvalidRange, lowerBinID, upperBinID)
	}

	query := url.Values{}
	query.Set("from", strconv.FormatInt(int64(lowerBinID), 10))
	query.Set("to", strconv.FormatInt(int64(upperBinID), 10))

	var resp binsResponse
	if err := c.getJSON(ctx, "/pools/"+url.PathEscape(pool)+"/bins", query, &resp); err != nil {
		return nil, err
	}

	bins := make([]types.Bin, 0, len(resp.Bins))
	for _, raw := range resp.Bins {
		bin, err := normalizeBin(raw)
		if err != nil {
			return nil, fmt.Errorf("pool %s: %w", pool, err)
		}
		bins = append(bins, bin)
	}

	c.logger.Debug().Str("pool", pool).Int("bins", len(bins)).Msg("Fetched bins")
	return bins, nil
}
