package main

import (
	"encoding/json"
	"os"

	"github.com/lpm-labs/dlmm-lpm/internal/config"
	"github.com/lpm-labs/dlmm-lpm/internal/monitor"
	"github.com/spf13/cobra"
)

var checkStrategy string

// checkCmd prints a one-shot report of a position
var checkCmd = &cobra.Command{
	Use:   "check <position-address>",
	Short: "Evaluate a position once and print the report as JSON",
	Long: `Fetch a position, compute its metrics, health score and rebalance decision and
print the report. Nothing is persisted and no rebalance is submitted.

Examples:
  lpm check 7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU
  lpm check 7xKX...AsU --strategy tight`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVar(&checkStrategy, "strategy", "", "Strategy preset used for the rebalance decision (default DEFAULT_STRATEGY)")
}

func runCheck(cmd *cobra.Command, args []string) error {
	if err := config.LoadClientConfig(); err != nil {
		return err
	}

	presets, thresholds, err := loadPresets(config.StrategyFile)
	if err != nil {
		return err
	}
	name := checkStrategy
	if name == "" {
		name = config.DefaultStrategy
	}
	strategy, err := config.FindStrategy(presets, name)
	if err != nil {
		return err
	}

	mon, err := monitor.New(monitor.Config{
		Fetcher:    newDataClient(),
		Thresholds: thresholds,
		Strategy:   strategy,
	})
	if err != nil {
		return err
	}

	report, err := mon.Evaluate(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}
