/*
This file is used to fetch historical price data for a pool from the upstream data API.
The series feeds impermanent-loss entry prices and the backtest engine.
*/

package datafetcher

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/lpm-labs/dlmm-lpm/internal/types"
)

type pricesResponse struct {
	Prices []rawPricePoint `json:"prices"`
}

// GetPriceHistory fetches the price of X in Y for a pool between from and to, sorted chronologically.
func (c *Client) GetPriceHistory(ctx context.Context, pool string, from, to time.Time) ([]types.PriceData, error) {
	if err := ValidateAddress(pool); err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: price window ends before it starts", types.ErrInsufficientData)
	}

	query := url.Values{}
	query.Set("from", strconv.FormatInt(from.Unix(), 10))
	query.Set("to", strconv.FormatInt(to.Unix(), 10))

	var resp pricesResponse
	if err := c.getJSON(ctx, "/pools/"+url.PathEscape(pool)+"/prices", query, &resp); err != nil {
		return nil, err
	}

	prices := make([]types.PriceData, 0, len(resp.Prices))
	for _, raw := range resp.Prices {
		point, err := normalizePricePoint(raw)
		if err != nil {
			c.logger.Error().Err(err).Str("pool", pool).Msg("Invalid price point received")
			return nil, fmt.Errorf("pool %s: %w", pool, err)
		}
		prices = append(prices, point)
	}
	sort.Slice(prices, func(i, j int) bool {
		return prices[i].Timestamp.Before(prices[j].Timestamp)
	})

	c.logger.Debug().
		Str("pool", pool).
		Int("points", len(prices)).
		Time("from", from).
		Time("to", to).
		Msg("Fetched price history")
	return prices, nil
}
