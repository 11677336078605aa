/*

This is a custom type for DLMM pools which contains all the state needed for evaluating positions.

*/

package types

import (
	"math"
	"time"

	sdkmath "cosmossdk.io/math"
)

// BasisPointMax is the bin step denominator.
const BasisPointMax = 10000

// Bin ids outside [MinBinID, MaxBinID] price outside what the DLMM program can represent.
const (
	MinBinID = -443636
	MaxBinID = 443636
)

// ValidBinID reports whether id lies in the DLMM bin id domain.
func ValidBinID(id int32) bool {
	return id >= MinBinID && id <= MaxBinID
}

// PoolSnapshot is a read-only view of a DLMM pool at a point in time.
type PoolSnapshot struct {
	Address        string      `json:"address"`
	ActiveID       int32       `json:"active_id"`
	BinStep        uint16      `json:"bin_step"` // Basis points
	ReserveX       sdkmath.Int `json:"reserve_x"`
	ReserveY       sdkmath.Int `json:"reserve_y"`
	TotalLiquidity float64     `json:"total_liquidity"`
	FeesX          sdkmath.Int `json:"fees_x"`
	FeesY          sdkmath.Int `json:"fees_y"`
	TokenXDecimals int         `json:"token_x_decimals"`
	TokenYDecimals int         `json:"token_y_decimals"`
	BaseFeeRate    float64     `json:"base_fee_rate"`
	CurrentPrice   float64     `json:"current_price"` // Price of X in Y, UI units
	FetchedAt      time.Time   `json:"fetched_at"`
}

// BinStepFraction returns the bin step as a fraction (basis points / 10,000).
func (p PoolSnapshot) BinStepFraction() float64 {
	return float64(p.BinStep) / BasisPointMax
}

// ActiveBinPrice derives the price of the active bin from the bin step and token decimals.
func (p PoolSnapshot) ActiveBinPrice() float64 {
	raw := math.Pow(1+p.BinStepFraction(), float64(p.ActiveID))
	return raw * math.Pow10(p.TokenXDecimals-p.TokenYDecimals)
}

// Bin is the liquidity held at one price tick.
type Bin struct {
	BinID     int32   `json:"bin_id"`
	Liquidity float64 `json:"liquidity"`
	AmountX   float64 `json:"amount_x"`
	AmountY   float64 `json:"amount_y"`
	Volume24h float64 `json:"volume_24h,omitempty"`
	Fees      float64 `json:"fees,omitempty"`
}

// PriceData holds historical price info
type PriceData struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
}
