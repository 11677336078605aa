package config

import (
	"time"

	"github.com/rs/zerolog/log"
)

// Endpoint configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// DataAPI is the base URL of the upstream DLMM data API.
	DataAPI string
	// DataAPIRequestsPerSecond caps the request rate against DataAPI.
	DataAPIRequestsPerSecond float64
	// DataAPIMaxRetries is the number of attempts per upstream request.
	DataAPIMaxRetries uint64
	// DataAPITimeout bounds a single upstream request.
	DataAPITimeout time.Duration
)

// loadEndpointConfig loads endpoint configuration from environment variables.
// This function is called by LoadConfig() in General.go.
func loadEndpointConfig() error {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	var err error

	DataAPI, err = getEnv("LPM_API_URL")
	if err != nil {
		return err
	}

	DataAPIRequestsPerSecond = 5
	if getEnvOrDefault("LPM_API_RPS", "") != "" {
		if DataAPIRequestsPerSecond, err = getEnvAsFloat64("LPM_API_RPS"); err != nil {
			return err
		}
	}

	DataAPIMaxRetries = 3
	if getEnvOrDefault("LPM_API_MAX_RETRIES", "") != "" {
		if DataAPIMaxRetries, err = getEnvAsUint64("LPM_API_MAX_RETRIES"); err != nil {
			return err
		}
	}

	DataAPITimeout, err = getEnvAsDuration("LPM_API_TIMEOUT", 15*time.Second)
	if err != nil {
		return err
	}

	log.Debug().
		Str("DataAPI", DataAPI).
		Float64("DataAPIRequestsPerSecond", DataAPIRequestsPerSecond).
		Uint64("DataAPIMaxRetries", DataAPIMaxRetries).
		Msg("Endpoint configuration loaded successfully.")

	return nil
}
