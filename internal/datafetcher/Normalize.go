/*
This file contains the raw upstream shapes and the single normalization function per entity.
Upstream fields are optional pointers; required ones missing from a payload fail normalization
with types.ErrInsufficientData instead of silently defaulting.
*/

package datafetcher

import (
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
	"github.com/lpm-labs/dlmm-lpm/internal/types"
	"github.com/lpm-labs/dlmm-lpm/internal/utils"
	"github.com/shopspring/decimal"
)

type rawPool struct {
	Address        *string          `json:"address"`
	ActiveID       *int32           `json:"activeId"`
	BinStep        *uint16          `json:"binStep"`
	ReserveX       *decimal.Decimal `json:"reserveX"`
	ReserveY       *decimal.Decimal `json:"reserveY"`
	TotalLiquidity *decimal.Decimal `json:"totalLiquidity"`
	FeesX          *decimal.Decimal `json:"feesX"`
	FeesY          *decimal.Decimal `json:"feesY"`
	TokenXDecimals *int             `json:"tokenXDecimals"`
	TokenYDecimals *int             `json:"tokenYDecimals"`
	BaseFeeRate    *decimal.Decimal `json:"baseFeeRate"`
	Price          *decimal.Decimal `json:"price"`
}

type rawBin struct {
	BinID     *int32           `json:"binId"`
	Liquidity *decimal.Decimal `json:"liquidity"`
	AmountX   *decimal.Decimal `json:"amountX"`
	AmountY   *decimal.Decimal `json:"amountY"`
	Volume24h *decimal.Decimal `json:"volume24h"`
	Fees      *decimal.Decimal `json:"fees"`
}

type rawPosition struct {
	Address         *string          `json:"address"`
	Owner           *string          `json:"owner"`
	Pool            *string          `json:"pool"`
	LowerBinID      *int32           `json:"lowerBinId"`
	UpperBinID      *int32           `json:"upperBinId"`
	TokenXDeposited *decimal.Decimal `json:"tokenXDeposited"`
	TokenYDeposited *decimal.Decimal `json:"tokenYDeposited"`
	FeesEarnedX     *decimal.Decimal `json:"feesEarnedX"`
	FeesEarnedY     *decimal.Decimal `json:"feesEarnedY"`
	LastUpdatedAt   *int64           `json:"lastUpdatedAt"` // Unix seconds
	OpenedAt        *int64           `json:"openedAt"`      // Unix seconds
	HealthFactor    *float64         `json:"healthFactor"`
}

type rawPricePoint struct {
	Timestamp *int64           `json:"timestamp"` // Unix seconds
	Price     *decimal.Decimal `json:"price"`
}

func normalizePool(raw rawPool, fetchedAt time.Time) (types.PoolSnapshot, error) {
	address, err := requireAddress("pool address", raw.Address)
	if err != nil {
		return types.PoolSnapshot{}, err
	}
	if raw.ActiveID == nil {
		return types.PoolSnapshot{}, missing("pool %s: activeId", address)
	}
	if !types.ValidBinID(*raw.ActiveID) {
		return types.PoolSnapshot{}, fmt.Errorf("%w: pool %s: active bin %d outside [%d, %d]",
			types.ErrInvalidRange, address, *raw.ActiveID, types.MinBinID, types.MaxBinID)
	}
	if raw.BinStep == nil || *raw.BinStep == 0 {
		return types.PoolSnapshot{}, missing("pool %s: binStep", address)
	}

	pool := types.PoolSnapshot{
		Address:        address,
		ActiveID:       *raw.ActiveID,
		BinStep:        *raw.BinStep,
		TokenXDecimals: intOrZero(raw.TokenXDecimals),
		TokenYDecimals: intOrZero(raw.TokenYDecimals),
		BaseFeeRate:    floatOrZero(raw.BaseFeeRate),
		TotalLiquidity: floatOrZero(raw.TotalLiquidity),
		FetchedAt:      fetchedAt,
	}

	amounts := []struct {
		name string
		raw  *decimal.Decimal
		dst  *sdkmath.Int
	}{
		{"reserveX", raw.ReserveX, &pool.ReserveX},
		{"reserveY", raw.ReserveY, &pool.ReserveY},
		{"feesX", raw.FeesX, &pool.FeesX},
		{"feesY", raw.FeesY, &pool.FeesY},
	}
	for _, a := range amounts {
		if *a.dst, err = amountOrZero(a.raw); err != nil {
			return types.PoolSnapshot{}, fmt.Errorf("%w: pool %s: %s: %w", types.ErrInsufficientData, address, a.name, err)
		}
	}

	if raw.Price != nil && raw.Price.IsPositive() {
		pool.CurrentPrice = raw.Price.InexactFloat64()
	} else {
		pool.CurrentPrice = pool.ActiveBinPrice()
	}
	if err := utils.CheckFinite("pool price", pool.CurrentPrice); err != nil || pool.CurrentPrice <= 0 {
		return types.PoolSnapshot{}, missing("pool %s: usable price", address)
	}

	return pool, nil
}

func normalizeBin(raw rawBin) (types.Bin, error) {
	if raw.BinID == nil {
		return types.Bin{}, missing("bin: binId")
	}
	bin := types.Bin{
		BinID:     *raw.BinID,
		Liquidity: floatOrZero(raw.Liquidity),
		AmountX:   floatOrZero(raw.AmountX),
		AmountY:   floatOrZero(raw.AmountY),
		Volume24h: floatOrZero(raw.Volume24h),
		Fees:      floatOrZero(raw.Fees),
	}
	if bin.Liquidity < 0 || bin.AmountX < 0 || bin.AmountY < 0 {
		return types.Bin{}, fmt.Errorf("%w: bin %d has negative amounts", types.ErrInsufficientData, bin.BinID)
	}
	return bin, nil
}

func normalizePosition(raw rawPosition) (types.Position, error) {
	address, err := requireAddress("position address", raw.Address)
	if err != nil {
		return types.Position{}, err
	}
	owner, err := requireAddress("position owner", raw.Owner)
	if err != nil {
		return types.Position{}, err
	}
	pool, err := requireAddress("position pool", raw.Pool)
	if err != nil {
		return types.Position{}, err
	}
	if raw.LowerBinID == nil || raw.UpperBinID == nil {
		return types.Position{}, missing("position %s: bin range", address)
	}

	position := types.Position{
		Address:    address,
		Owner:      owner,
		Pool:       pool,
		LowerBinID: *raw.LowerBinID,
		UpperBinID: *raw.UpperBinID,
	}
	if raw.HealthFactor != nil {
		position.HealthFactor = *raw.HealthFactor
	}
	if raw.LastUpdatedAt != nil {
		position.LastUpdatedAt = time.Unix(*raw.LastUpdatedAt, 0).UTC()
	}
	if raw.OpenedAt != nil && *raw.OpenedAt > 0 {
		position.OpenedAt = time.Unix(*raw.OpenedAt, 0).UTC()
	}

	amounts := []struct {
		name string
		raw  *decimal.Decimal
		dst  *sdkmath.Int
	}{
		{"tokenXDeposited", raw.TokenXDeposited, &position.TokenXDeposited},
		{"tokenYDeposited", raw.TokenYDeposited, &position.TokenYDeposited},
		{"feesEarnedX", raw.FeesEarnedX, &position.FeesEarnedX},
		{"feesEarnedY", raw.FeesEarnedY, &position.FeesEarnedY},
	}
	for _, a := range amounts {
		if *a.dst, err = amountOrZero(a.raw); err != nil {
			return types.Position{}, fmt.Errorf("%w: position %s: %s: %w", types.ErrInsufficientData, address, a.name, err)
		}
	}

	if err := position.ValidateRange(); err != nil {
		return types.Position{}, err
	}
	return position, nil
}

func normalizePricePoint(raw rawPricePoint) (types.PriceData, error) {
	if raw.Timestamp == nil || *raw.Timestamp <= 0 {
		return types.PriceData{}, missing("price point: timestamp")
	}
	if raw.Price == nil || !raw.Price.IsPositive() {
		return types.PriceData{}, fmt.Errorf("%w: price point at %d: price must be positive", types.ErrInsufficientData, *raw.Timestamp)
	}
	return types.PriceData{
		Timestamp: time.Unix(*raw.Timestamp, 0).UTC(),
		Price:     raw.Price.InexactFloat64(),
	}, nil
}

// ValidateAddress checks that s is a base58 Solana account address.
func ValidateAddress(s string) error {
	if _, err := solana.PublicKeyFromBase58(s); err != nil {
		return fmt.Errorf("%w: invalid address %q: %w", types.ErrInsufficientData, s, err)
	}
	return nil
}

func requireAddress(name string, value *string) (string, error) {
	if value == nil || *value == "" {
		return "", missing("%s", name)
	}
	if err := ValidateAddress(*value); err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return *value, nil
}

func missing(format string, args ...any) error {
	return fmt.Errorf("%w: missing %s", types.ErrInsufficientData, fmt.Sprintf(format, args...))
}

func amountOrZero(d *decimal.Decimal) (sdkmath.Int, error) {
	if d == nil {
		return sdkmath.ZeroInt(), nil
	}
	return utils.DecimalToTokenAmount(*d)
}

func floatOrZero(d *decimal.Decimal) float64 {
	if d == nil {
		return 0
	}
	return d.InexactFloat64()
}

func intOrZero(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
