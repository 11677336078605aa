package datafetcher

import (
	"context"
	"net/url"

	"github.com/lpm-labs/dlmm-lpm/internal/types"
)

type positionsResponse struct {
	Positions []rawPosition `json:"positions"`
}

// GetPosition fetches and normalizes a single position.
func (c *Client) GetPosition(ctx context.Context, address string) (types.Position, error) {
	if err := ValidateAddress(address); err != nil {
		return types.Position{}, err
	}

	var raw rawPosition
	if err := c.getJSON(ctx, "/positions/"+url.PathEscape(address), nil, &raw); err != nil {
		return types.Position{}, err
	}

	position, err := normalizePosition(raw)
	if err != nil {
		c.logger.Error().Err(err).Str("position", address).Msg("Failed to normalize position")
		return types.Position{}, err
	}
	return position, nil
}

// GetPositionsByOwner fetches every position held by owner. Positions that fail normalization
// are skipped with a warning so one malformed entry does not hide the others.
func (c *Client) GetPositionsByOwner(ctx context.Context, owner string) ([]types.Position, error) {
	if err := ValidateAddress(owner); err != nil {
		return nil, err
	}

	var resp positionsResponse
	if err := c.getJSON(ctx, "/owners/"+url.PathEscape(owner)+"/positions", nil, &resp); err != nil {
		return nil, err
	}

	positions := make([]types.Position, 0, len(resp.Positions))
	for i, raw := range resp.Positions {
		position, err := normalizePosition(raw)
		if err != nil {
			c.logger.Warn().Err(err).Str("owner", owner).Int("index", i).Msg("Skipping malformed position")
			continue
		}
		positions = append(positions, position)
	}

	c.logger.Debug().Str("owner", owner).Int("positions", len(positions)).Msg("Fetched owner positions")
	return positions, nil
}
