/*
This file contains common utility functions for converting between different types,
particularly for token amounts and precision handling.
*/

package utils

import (
	"errors"
	"fmt"
	"math"

	sdkmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidPrecision = errors.New("precision is invalid")
	ErrAmountNil        = errors.New("amount is nil")
	ErrAmountNegative   = errors.New("amount is negative")
	ErrNotFinite        = errors.New("value is not finite")
	ErrConversionFailed = errors.New("conversion failed")
)

const maxPrecision = 18

// TokenAmountToFloat64 converts a raw token amount to UI units using the token decimals.
func TokenAmountToFloat64(amount sdkmath.Int, precision int) (float64, error) {
	if precision < 0 || precision > maxPrecision {
		return 0, fmt.Errorf("%w: %d (must be between 0 and %d)", ErrInvalidPrecision, precision, maxPrecision)
	}
	if amount.IsNil() {
		return 0, ErrAmountNil
	}
	if amount.IsNegative() {
		return 0, ErrAmountNegative
	}

	decAmount := sdkmath.LegacyNewDecFromInt(amount)
	factor := sdkmath.LegacyNewDec(10).Power(uint64(precision))

	result := decAmount.Quo(factor)
	resultFloat, err := result.Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}

	if err := CheckFinite("amount", resultFloat); err != nil {
		return 0, err
	}

	return resultFloat, nil
}

// DecimalToTokenAmount converts an upstream decimal (already in raw units) to a token amount.
// Fractional dust is truncated; negative values are rejected.
func DecimalToTokenAmount(d decimal.Decimal) (sdkmath.Int, error) {
	if d.IsNegative() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s", ErrAmountNegative, d.String())
	}
	return sdkmath.NewIntFromBigInt(d.Truncate(0).BigInt()), nil
}

// CheckFinite rejects NaN and infinite values.
func CheckFinite(name string, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("%w: %s is %f", ErrNotFinite, name, value)
	}
	return nil
}

// Clamp bounds value to [lo, hi].
func Clamp(value, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, value))
}
