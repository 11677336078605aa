/*

This file contains the position comparison: evaluated positions are ranked by a weighted
composite of their health score and fee APR.

*/

package analyzer

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/lpm-labs/dlmm-lpm/internal/logger"
	"github.com/lpm-labs/dlmm-lpm/internal/types"
	"github.com/lpm-labs/dlmm-lpm/internal/utils"
)

var ErrNoPositions = errors.New("no positions provided for ranking")
var ErrInvalidRankingWeights = errors.New("invalid ranking weights")

// maxRankedAPR caps the APR component so a single outlier cannot dominate the ranking.
const maxRankedAPR = 100.0

// RankPositions orders evaluated positions by score, highest first.
// score = (wHealth × healthScore + wAPR × min(APR, 100)) ÷ (wHealth + wAPR)
// Returns error if a report carries a non-finite health score or APR.
func RankPositions(reports []types.PositionReport, weights types.RankingWeights) ([]types.PositionRanking, error) {
	rankingLogger := logger.GetForComponent("position_ranking")
	if len(reports) == 0 {
		rankingLogger.Error().Msg("Input reports slice is empty")
		return nil, ErrNoPositions
	}

	// Validate weights
	if math.IsNaN(weights.Health) || math.IsInf(weights.Health, 0) || math.IsNaN(weights.APR) || math.IsInf(weights.APR, 0) {
		return nil, fmt.Errorf("%w: weights are not finite", ErrInvalidRankingWeights)
	}
	if weights.Health < 0 || weights.APR < 0 {
		return nil, fmt.Errorf("%w: weights cannot be negative", ErrInvalidRankingWeights)
	}
	totalWeight := weights.Health + weights.APR
	if totalWeight <= 0 {
		return nil, fmt.Errorf("%w: weights sum to zero", ErrInvalidRankingWeights)
	}

	rankings := make([]types.PositionRanking, 0, len(reports))
	for _, report := range reports {
		health := report.Health.Score
		apr := report.Metrics.APR
		if err := utils.CheckFinite("health score", health); err != nil {
			rankingLogger.Error().
				Str("position", report.Position.Address).
				Float64("healthScore", health).
				Msg("Position has invalid health score")
			return nil, fmt.Errorf("position %s: %w", report.Position.Address, err)
		}
		if err := utils.CheckFinite("apr", apr); err != nil {
			rankingLogger.Error().
				Str("position", report.Position.Address).
				Float64("apr", apr).
				Msg("Position has invalid APR")
			return nil, fmt.Errorf("position %s: %w", report.Position.Address, err)
		}

		score := (weights.Health*health + weights.APR*utils.Clamp(apr, 0, maxRankedAPR)) / totalWeight
		rankings = append(rankings, types.PositionRanking{
			Address:     report.Position.Address,
			Score:       score,
			HealthScore: health,
			APR:         apr,
			TVL:         report.Metrics.TVL,
		})
	}

	// Sort by score (descending), address breaks ties
	sort.SliceStable(rankings, func(i, j int) bool {
		if rankings[i].Score != rankings[j].Score {
			return rankings[i].Score > rankings[j].Score
		}
		return rankings[i].Address < rankings[j].Address
	})

	for i := range rankings {
		rankings[i].Rank = i + 1
		rankingLogger.Debug().
			Int("rank", rankings[i].Rank).
			Str("position", rankings[i].Address).
			Float64("score", rankings[i].Score).
			Msg("Ranked position")
	}

	return rankings, nil
}
