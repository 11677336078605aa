package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/lpm-labs/dlmm-lpm/internal/types"
	"gopkg.in/yaml.v3"
)

// ErrStrategyNotFound is returned when a named preset is absent from the strategy file.
var ErrStrategyNotFound = errors.New("strategy not found")

// StrategyFileContents is the layout of the strategy YAML file.
type StrategyFileContents struct {
	Strategies []types.RebalanceStrategy `yaml:"strategies"`
	Health     types.HealthThresholds    `yaml:"health,omitempty"`
}

// LoadStrategies reads the strategy presets (and optional health thresholds) from a YAML file.
// Every preset is validated; threshold keys absent from the file keep their DefaultHealthThresholds value.
func LoadStrategies(path string) ([]types.RebalanceStrategy, types.HealthThresholds, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.HealthThresholds{}, fmt.Errorf("failed to read strategy file %s: %w", path, err)
	}
	return ParseStrategies(data)
}

// ParseStrategies decodes the strategy YAML document.
func ParseStrategies(data []byte) ([]types.RebalanceStrategy, types.HealthThresholds, error) {
	contents := StrategyFileContents{Health: DefaultHealthThresholds}
	if err := yaml.Unmarshal(data, &contents); err != nil {
		return nil, types.HealthThresholds{}, fmt.Errorf("failed to parse strategy file: %w", err)
	}
	if len(contents.Strategies) == 0 {
		return nil, types.HealthThresholds{}, fmt.Errorf("%w: strategy file defines no strategies", types.ErrInvalidStrategyConfig)
	}

	seen := make(map[string]bool, len(contents.Strategies))
	for _, s := range contents.Strategies {
		if err := ValidateStrategy(s); err != nil {
			return nil, types.HealthThresholds{}, err
		}
		if seen[s.Name] {
			return nil, types.HealthThresholds{}, fmt.Errorf("%w: duplicate strategy name %q", types.ErrInvalidStrategyConfig, s.Name)
		}
		seen[s.Name] = true
	}

	return contents.Strategies, contents.Health, nil
}

// FindStrategy returns the preset with the given name.
func FindStrategy(strategies []types.RebalanceStrategy, name string) (types.RebalanceStrategy, error) {
	for _, s := range strategies {
		if s.Name == name {
			return s, nil
		}
	}
	return types.RebalanceStrategy{}, fmt.Errorf("%w: %q", ErrStrategyNotFound, name)
}

// ValidateStrategy checks the static constraints of a strategy configuration.
func ValidateStrategy(s types.RebalanceStrategy) error {
	if s.Name == "" {
		return fmt.Errorf("%w: strategy name is empty", types.ErrInvalidStrategyConfig)
	}
	switch s.Type {
	case types.StrategySymmetric, types.StrategyDynamic:
	case types.StrategyConcentrated:
		if s.ConcentrationFactor <= 0 {
			return fmt.Errorf("%w: strategy %q: concentrated strategy needs a positive concentration factor",
				types.ErrInvalidStrategyConfig, s.Name)
		}
	default:
		return fmt.Errorf("%w: strategy %q: unknown type %q", types.ErrInvalidStrategyConfig, s.Name, s.Type)
	}
	if s.MinBinSpread < 1 {
		return fmt.Errorf("%w: strategy %q: min bin spread must be at least 1, got %d",
			types.ErrInvalidStrategyConfig, s.Name, s.MinBinSpread)
	}
	if s.MaxBinSpread < s.MinBinSpread {
		return fmt.Errorf("%w: strategy %q: max bin spread %d is below min bin spread %d",
			types.ErrInvalidStrategyConfig, s.Name, s.MaxBinSpread, s.MinBinSpread)
	}
	if s.RebalanceThreshold < 0 {
		return fmt.Errorf("%w: strategy %q: negative rebalance threshold", types.ErrInvalidStrategyConfig, s.Name)
	}
	if s.SpreadTolerance != nil && *s.SpreadTolerance < 0 {
		return fmt.Errorf("%w: strategy %q: negative spread tolerance", types.ErrInvalidStrategyConfig, s.Name)
	}
	return nil
}
