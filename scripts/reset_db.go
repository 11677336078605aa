package main

import (
	"context"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/lpm-labs/dlmm-lpm/internal/config"
	"github.com/lpm-labs/dlmm-lpm/internal/logger"
	"github.com/lpm-labs/dlmm-lpm/internal/state"
	"github.com/rs/zerolog/log"
)

func main() {
	// Initialize logger
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logger.Initialize(logLevel)
	log.Info().Msg("Starting database reset script...")

	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found or error loading .env file. Relying on OS environment variables.")
	}

	if err := config.LoadDatabaseConfig(); err != nil {
		log.Fatal().Err(err).Msg("Database configuration is incomplete")
	}

	log.Info().Str("driver", config.DBDriver).Msg("Connecting to database")

	ctx := context.Background()
	store, err := state.Open(ctx, config.DBDriver, config.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database connection")
	}
	defer store.Close()

	// RESET_CYCLE_NUMBER only rewinds the cycle counter and keeps the stored data
	if raw := os.Getenv("RESET_CYCLE_NUMBER"); raw != "" {
		cycle, err := strconv.Atoi(raw)
		if err != nil {
			log.Fatal().Err(err).Str("value", raw).Msg("Invalid RESET_CYCLE_NUMBER")
		}
		if err := store.ResetCycleNumber(ctx, cycle); err != nil {
			log.Fatal().Err(err).Msg("Failed to reset cycle counter")
		}
		log.Info().Int("cycleNumber", cycle).Msg("Cycle counter reset complete!")
		return
	}

	log.Info().Msg("Connected to database. Attempting to drop all tables...")

	// Drop all tables - this is the "reset" part
	if err := store.DropSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to drop tables")
	}
	log.Info().Msg("Successfully dropped all tables")

	// Recreate the schema
	log.Info().Msg("Recreating database schema...")
	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to recreate database schema")
	}
	log.Info().Msg("Database schema successfully recreated")

	log.Info().Msg("Database reset complete!")
}
