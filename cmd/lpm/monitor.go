package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/lpm-labs/dlmm-lpm/internal/config"
	"github.com/lpm-labs/dlmm-lpm/internal/monitor"
	"github.com/lpm-labs/dlmm-lpm/internal/planner"
	"github.com/lpm-labs/dlmm-lpm/internal/state"
	"github.com/lpm-labs/dlmm-lpm/internal/types"
	"github.com/lpm-labs/dlmm-lpm/internal/vault"
	"github.com/lpm-labs/dlmm-lpm/internal/web"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// monitorCmd runs the position monitor and the HTTP API
var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run the position monitor service",
	Long: `Evaluate the tracked positions every MONITOR_INTERVAL, persist the reports and
serve the HTTP API. Rebalances are only planned (dry run) and are submitted when
AUTO_REBALANCE is enabled.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	// --- 1. Initialization Phase ---
	if err := config.LoadConfig(); err != nil {
		return err
	}
	log.Info().Msg("LP manager monitor starting...")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := state.Open(ctx, config.DBDriver, config.DBDSN)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	presets, thresholds, err := loadPresets(config.StrategyFile)
	if err != nil {
		return err
	}
	strategy, err := activeStrategy(ctx, store, presets)
	if err != nil {
		return err
	}
	log.Info().Str("strategy", strategy.Name).Int("presets", len(presets)).Msg("Strategy loaded")

	// --- 2. Collaborators ---
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	fetcher := newDataClient()
	manager := vault.NewDryRunManager()
	defer manager.Close()

	mon, err := monitor.New(monitor.Config{
		Fetcher:       fetcher,
		Store:         store,
		Planner:       planner.New(manager),
		Metrics:       monitor.NewMetrics(registry),
		Thresholds:    thresholds,
		Strategy:      strategy,
		Tracked:       config.TrackedPositions,
		Owners:        config.TrackedOwners,
		AutoRebalance: config.AutoRebalance,
	})
	if err != nil {
		return err
	}

	// --- 3. Web server ---
	webServer := web.NewWebServer(web.Config{
		Port:       config.WebPort,
		Monitor:    mon,
		Store:      store,
		Prices:     fetcher,
		Strategies: presets,
		Gatherer:   registry,
	})
	go func() {
		log.Info().Str("port", config.WebPort).Str("url", "http://localhost:"+config.WebPort).Msg("Starting LP manager API")
		if err := webServer.Start(ctx); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	// --- 4. Main loop ---
	mon.RunLoop(ctx, config.MonitorInterval)
	log.Info().Msg("LP manager monitor stopped")
	return nil
}

// activeStrategy prefers the strategy stored as active, then the configured default preset.
func activeStrategy(ctx context.Context, store *state.Store, presets []types.RebalanceStrategy) (types.RebalanceStrategy, error) {
	stored, err := store.LoadActiveStrategy(ctx)
	if err == nil {
		if err := config.ValidateStrategy(stored); err == nil {
			return stored, nil
		}
		log.Warn().Str("strategy", stored.Name).Msg("Stored strategy is invalid, falling back to default preset")
	} else if !errors.Is(err, state.ErrNotFound) {
		return types.RebalanceStrategy{}, err
	}

	strategy, err := config.FindStrategy(presets, config.DefaultStrategy)
	if err != nil {
		return types.RebalanceStrategy{}, err
	}
	if err := store.SaveStrategy(ctx, strategy, true); err != nil {
		return types.RebalanceStrategy{}, err
	}
	return strategy, nil
}
