package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// TrackedPositions are the position addresses the monitor evaluates every cycle.
	TrackedPositions []string
	// TrackedOwners are wallets whose positions are discovered and evaluated every cycle.
	TrackedOwners []string

	// DBDriver is the sqlx driver name ("postgres" or "sqlite").
	DBDriver string
	// DBDSN is the data source name for DBDriver.
	DBDSN string

	// MonitorInterval is the delay between two monitor cycles.
	MonitorInterval time.Duration
	// AutoRebalance enables execution of rebalance decisions through the position manager.
	AutoRebalance bool

	// StrategyFile is the YAML file holding the strategy presets.
	StrategyFile string
	// DefaultStrategy is the name of the preset used when no active strategy is stored.
	DefaultStrategy string

	// WebPort is the port of the HTTP API.
	WebPort string

	// LogLevel is the zerolog level name.
	LogLevel string
	// LogFile optionally mirrors logs to a file.
	LogFile string
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// LPM_API_URL, DB_DRIVER, DB_DSN and at least one of LPM_TRACKED_POSITIONS or LPM_TRACKED_OWNERS
// are required; the rest fall back to defaults.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	TrackedPositions = splitList(getEnvOrDefault("LPM_TRACKED_POSITIONS", ""))
	TrackedOwners = splitList(getEnvOrDefault("LPM_TRACKED_OWNERS", ""))
	if len(TrackedPositions) == 0 && len(TrackedOwners) == 0 {
		return errors.New("environment variable LPM_TRACKED_POSITIONS or LPM_TRACKED_OWNERS must be set")
	}
	var err error

	if err := LoadDatabaseConfig(); err != nil {
		return err
	}

	MonitorInterval, err = getEnvAsDuration("MONITOR_INTERVAL", 5*time.Minute)
	if err != nil {
		return err
	}

	AutoRebalance, err = getEnvAsBool("AUTO_REBALANCE", false)
	if err != nil {
		return err
	}

	WebPort = getEnvOrDefault("WEB_PORT", "8080")

	if err := LoadClientConfig(); err != nil {
		return err
	}

	log.Debug().
		Int("trackedPositions", len(TrackedPositions)).
		Int("trackedOwners", len(TrackedOwners)).
		Str("dbDriver", DBDriver).
		Dur("monitorInterval", MonitorInterval).
		Bool("autoRebalance", AutoRebalance).
		Str("defaultStrategy", DefaultStrategy).
		Msg("Configuration loaded successfully.")

	return nil
}

// LoadClientConfig loads what one-shot commands need: the data API endpoint, the strategy file
// and logging. It does not require the monitor or database settings.
func LoadClientConfig() error {
	LoadLocalConfig()
	return loadEndpointConfig()
}

// LoadLocalConfig loads the settings that have defaults and need no external service.
func LoadLocalConfig() {
	StrategyFile = getEnvOrDefault("STRATEGY_FILE", "config/strategies.yaml")
	DefaultStrategy = getEnvOrDefault("DEFAULT_STRATEGY", DefaultStrategyPreset.Name)
	LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	LogFile = getEnvOrDefault("LOG_FILE", "")
}

// LoadDatabaseConfig loads DB_DRIVER and DB_DSN.
func LoadDatabaseConfig() error {
	var err error

	DBDriver, err = getEnv("DB_DRIVER")
	if err != nil {
		return err
	}
	if DBDriver != "postgres" && DBDriver != "sqlite" {
		return errors.New("environment variable DB_DRIVER must be postgres or sqlite, got: " + DBDriver)
	}

	DBDSN, err = getEnv("DB_DSN")
	return err
}

func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvOrDefault retrieves a string environment variable, falling back to def when unset or empty.
func getEnvOrDefault(key, def string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return def
}

// getEnvAsUint64 retrieves an environment variable as a uint64. Returns error if not set or invalid.
func getEnvAsUint64(key string) (uint64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsFloat64 retrieves an environment variable as a float64. Returns error if not set or invalid.
func getEnvAsFloat64(key string) (float64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid float64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsDuration retrieves an optional duration ("30s", "5m").
func getEnvAsDuration(key string, def time.Duration) (time.Duration, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return def, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil || value <= 0 {
		return 0, errors.New("environment variable " + key + " must be a positive duration, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsBool retrieves an optional boolean.
func getEnvAsBool(key string, def bool) (bool, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return def, nil
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return false, errors.New("environment variable " + key + " must be a valid bool, got: " + valueStr)
	}
	return value, nil
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
