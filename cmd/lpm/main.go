package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/lpm-labs/dlmm-lpm/internal/config"
	"github.com/lpm-labs/dlmm-lpm/internal/datafetcher"
	"github.com/lpm-labs/dlmm-lpm/internal/logger"
	"github.com/lpm-labs/dlmm-lpm/internal/types"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// rootCmd is the base command for the LP manager CLI
var rootCmd = &cobra.Command{
	Use:   "lpm",
	Short: "DLMM liquidity position manager",
	Long: `lpm evaluates DLMM liquidity positions: metrics, health score and rebalance
decisions, and replays rebalancing strategies against historical prices.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil {
			log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
		}
		config.LoadLocalConfig()

		var extra []io.Writer
		if config.LogFile != "" {
			w, err := logger.FileWriter(config.LogFile)
			if err != nil {
				return fmt.Errorf("failed to open log file: %w", err)
			}
			extra = append(extra, w)
		}
		logger.Initialize(config.LogLevel, extra...)
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newDataClient builds the upstream client from the endpoint configuration.
func newDataClient() *datafetcher.Client {
	return datafetcher.NewClient(datafetcher.ClientConfig{
		BaseURL:           config.DataAPI,
		RequestsPerSecond: config.DataAPIRequestsPerSecond,
		MaxRetries:        int(config.DataAPIMaxRetries),
		Timeout:           config.DataAPITimeout,
	})
}

// loadPresets reads the strategy file. A missing file falls back to the built-in preset and
// default thresholds.
func loadPresets(path string) ([]types.RebalanceStrategy, types.HealthThresholds, error) {
	presets, thresholds, err := config.LoadStrategies(path)
	if err == nil {
		return presets, thresholds, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		log.Warn().Str("path", path).Msg("Strategy file not found, using built-in preset")
		return []types.RebalanceStrategy{config.DefaultStrategyPreset}, config.DefaultHealthThresholds, nil
	}
	return nil, types.HealthThresholds{}, err
}
