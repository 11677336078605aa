package types

import "time"

// BacktestSnapshot is the simulated position after one replay step.
type BacktestSnapshot struct {
	Timestamp     time.Time `json:"timestamp"`
	Price         float64   `json:"price"`
	PositionValue float64   `json:"position_value"`
	FeesEarned    float64   `json:"fees_earned"`
	LowerPrice    float64   `json:"lower_price"`
	UpperPrice    float64   `json:"upper_price"`
	Rebalanced    bool      `json:"rebalanced"`
}

// BacktestMetricPoint is one point of the charting series.
type BacktestMetricPoint struct {
	Timestamp        time.Time `json:"timestamp"`
	Value            float64   `json:"value"`
	CumulativeReturn float64   `json:"cumulative_return"` // Percent
	Drawdown         float64   `json:"drawdown"`          // Percent from running max
}

// BacktestResult summarises a replay.
type BacktestResult struct {
	ID               string                `json:"id,omitempty"`
	StrategyName     string                `json:"strategy_name,omitempty"`
	Returns          float64               `json:"returns"` // Percent
	APR              float64               `json:"apr"`
	ImpermanentLoss  float64               `json:"impermanent_loss"` // Percent
	FeesEarned       float64               `json:"fees_earned"`
	TotalTrades      int                   `json:"total_trades"`
	SuccessfulTrades int                   `json:"successful_trades"`
	MaxDrawdown      float64               `json:"max_drawdown"`
	Volatility       float64               `json:"volatility"`       // Annualized percent, of the simulated position
	PriceVolatility  float64               `json:"price_volatility"` // Annualized percent, of the price series
	SharpeRatio      float64               `json:"sharpe_ratio"`
	FinalValue       float64               `json:"final_value"`
	StartTime        time.Time             `json:"start_time"`
	EndTime          time.Time             `json:"end_time"`
	Snapshots        []BacktestSnapshot    `json:"snapshots"`
	Metrics          []BacktestMetricPoint `json:"metrics"`
}
