package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/lpm-labs/dlmm-lpm/internal/config"
	"github.com/lpm-labs/dlmm-lpm/internal/simulations"
	"github.com/lpm-labs/dlmm-lpm/internal/state"
	"github.com/lpm-labs/dlmm-lpm/internal/types"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Backtest command flags
var (
	backtestPricesFile string
	backtestPool       string
	backtestFrom       string
	backtestTo         string
	backtestStrategy   string
	backtestBinStep    uint16
	backtestLiquidity  float64
	backtestSwapFee    float64
	backtestHostFee    float64
	backtestCost       float64
	backtestRangePct   float64
	backtestSave       bool
	backtestFull       bool
)

// backtestCmd replays a strategy against historical prices
var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay a rebalancing strategy against historical prices",
	Long: `Replay a strategy against a price series read from a CSV file (timestamp,price)
or fetched from the data API for a pool, and print the summary as JSON.

Examples:
  lpm backtest --prices sol-usdc.csv --liquidity 10000 --swap-fee 0.003
  lpm backtest --pool <pool> --from 2025-01-01T00:00:00Z --to 2025-03-01T00:00:00Z --strategy balanced --bin-step 25`,
	RunE: runBacktest,
}

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVar(&backtestPricesFile, "prices", "", "CSV file with timestamp,price rows")
	backtestCmd.Flags().StringVar(&backtestPool, "pool", "", "Pool address to fetch prices for when --prices is not set")
	backtestCmd.Flags().StringVar(&backtestFrom, "from", "", "Window start (RFC3339)")
	backtestCmd.Flags().StringVar(&backtestTo, "to", "", "Window end (RFC3339)")
	backtestCmd.Flags().StringVar(&backtestStrategy, "strategy", simulations.RangeExitStrategyName, "range_exit or a strategy preset name")
	backtestCmd.Flags().Uint16Var(&backtestBinStep, "bin-step", 0, "Bin step in basis points, required for preset strategies")
	backtestCmd.Flags().Float64Var(&backtestLiquidity, "liquidity", 10000, "Initial position value")
	backtestCmd.Flags().Float64Var(&backtestSwapFee, "swap-fee", 0.003, "Swap fee as a fraction of volume")
	backtestCmd.Flags().Float64Var(&backtestHostFee, "host-fee", 0, "Share of the swap fee kept by the protocol")
	backtestCmd.Flags().Float64Var(&backtestCost, "rebalance-cost", config.DefaultRebalanceCost, "Fraction of value lost per rebalance")
	backtestCmd.Flags().Float64Var(&backtestRangePct, "range-pct", config.DefaultRebalanceRangePct, "Half width of the range set by a rebalance")
	backtestCmd.Flags().BoolVar(&backtestSave, "save", false, "Store the result in the database (DB_DRIVER, DB_DSN)")
	backtestCmd.Flags().BoolVar(&backtestFull, "full", false, "Include per-step snapshots and metrics in the output")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	from, err := parseTimeFlag("from", backtestFrom)
	if err != nil {
		return err
	}
	to, err := parseTimeFlag("to", backtestTo)
	if err != nil {
		return err
	}

	prices, err := loadBacktestPrices(cmd, from, to)
	if err != nil {
		return err
	}

	presets, _, err := loadPresets(config.StrategyFile)
	if err != nil {
		return err
	}
	strategy, err := simulations.StrategyFor(backtestStrategy, presets, backtestBinStep)
	if err != nil {
		return err
	}

	result, err := simulations.RunBacktest(simulations.BacktestParams{
		Prices:            prices,
		From:              from,
		To:                to,
		InitialLiquidity:  backtestLiquidity,
		SwapFee:           backtestSwapFee,
		HostFee:           backtestHostFee,
		Strategy:          strategy,
		StrategyName:      backtestStrategy,
		RebalanceCost:     &backtestCost,
		RebalanceRangePct: &backtestRangePct,
	})
	if err != nil {
		return err
	}

	if backtestSave {
		if result.ID, err = saveBacktest(cmd, result); err != nil {
			return err
		}
	}

	if !backtestFull {
		result.Snapshots = nil
		result.Metrics = nil
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func loadBacktestPrices(cmd *cobra.Command, from, to time.Time) ([]types.PriceData, error) {
	if backtestPricesFile != "" {
		file, err := os.Open(backtestPricesFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open price file: %w", err)
		}
		defer file.Close()
		return simulations.ReadPricesCSV(file)
	}

	if backtestPool == "" {
		return nil, fmt.Errorf("either --prices or --pool is required")
	}
	if err := config.LoadClientConfig(); err != nil {
		return nil, err
	}
	return newDataClient().GetPriceHistory(cmd.Context(), backtestPool, from, to)
}

func saveBacktest(cmd *cobra.Command, result types.BacktestResult) (string, error) {
	if err := config.LoadDatabaseConfig(); err != nil {
		return "", err
	}
	store, err := state.Open(cmd.Context(), config.DBDriver, config.DBDSN)
	if err != nil {
		return "", err
	}
	defer store.Close()
	if err := store.EnsureSchema(cmd.Context()); err != nil {
		return "", err
	}

	id, err := store.SaveBacktestRun(cmd.Context(), result)
	if err != nil {
		return "", err
	}
	log.Info().Str("run_id", id).Msg("Backtest saved")
	return id, nil
}

func parseTimeFlag(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s %q: %w", name, value, err)
	}
	return t, nil
}
