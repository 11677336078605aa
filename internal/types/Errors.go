/*

This file contains the error taxonomy shared by the calculators, the planner and the backtest engine.
Callers test for these with errors.Is; every component wraps them with context rather than
returning zero-valued metrics.

*/

package types

import "errors"

var (
	// ErrInvalidRange indicates degenerate bin bounds (lower >= upper).
	ErrInvalidRange = errors.New("invalid bin range")
	// ErrInsufficientData indicates too few price points or missing snapshot fields.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrUpstreamFetch indicates the upstream collaborator could not provide the data.
	ErrUpstreamFetch = errors.New("upstream fetch failed")
	// ErrInvalidStrategyConfig indicates a rebalance strategy that cannot be evaluated.
	ErrInvalidStrategyConfig = errors.New("invalid strategy config")
)
