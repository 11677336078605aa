package analyzer

import (
	"math"

	"github.com/lpm-labs/dlmm-lpm/internal/types"
)

// BinPrice converts a bin id to a price given the price of the active bin.
// price(bin) = basePrice × (1 + binStepFraction)^(bin − activeBin)
func BinPrice(basePrice, binStepFraction float64, binID, activeID int32) float64 {
	return basePrice * math.Pow(1+binStepFraction, float64(binID)-float64(activeID))
}

// BinForPrice returns the bin holding price, rounding to the nearest bin.
func BinForPrice(price, basePrice, binStepFraction float64, activeID int32) int32 {
	if price <= 0 || basePrice <= 0 || binStepFraction <= 0 {
		return activeID
	}
	offset := math.Log(price/basePrice) / math.Log1p(binStepFraction)
	return activeID + int32(math.Round(offset))
}

// binsInRange returns the liquidity of each bin of the position range, indexed from LowerBinID.
// Bins absent from the input count as empty. The range must have passed ValidateRange.
func binsInRange(position types.Position, bins []types.Bin) []float64 {
	liquidity := make([]float64, position.BinCount())
	for _, b := range bins {
		if !position.Contains(b.BinID) {
			continue
		}
		liquidity[b.BinID-position.LowerBinID] += b.Liquidity
	}
	return liquidity
}

func sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}
