package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/lpm-labs/dlmm-lpm/internal/logger"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // SQLite driver for local runs and tests
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("record not found")

// Store persists evaluation snapshots, backtest runs, strategies and the cycle counter.
type Store struct {
	db     *sqlx.DB
	logger zerolog.Logger
}

// Open connects to the database. driver is "postgres" or "sqlite".
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	if driver != "postgres" && driver != "sqlite" {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if driver == "sqlite" {
		// A single connection keeps ":memory:" databases shared and serialises writers
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	store := NewStore(db)
	if err := store.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}

	store.logger.Info().Str("driver", driver).Msg("Successfully connected to the database")
	return store, nil
}

// NewStore wraps an existing connection pool.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db, logger: logger.GetForComponent("state")}
}

// Close closes the database connection pool.
func (s *Store) Close() error {
	s.logger.Info().Msg("Closing database connection...")
	return s.db.Close()
}

// Ping tests if the database connection is healthy.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// The schema sticks to types both PostgreSQL and SQLite accept. Timestamps are unix seconds and
// JSON documents are stored as text.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS position_snapshots (
		snapshot_id TEXT PRIMARY KEY,
		cycle_number INTEGER NOT NULL,
		position_address TEXT NOT NULL,
		pool_address TEXT NOT NULL,
		evaluated_at BIGINT NOT NULL,
		current_price DOUBLE PRECISION NOT NULL,
		initial_price DOUBLE PRECISION NOT NULL,
		tvl DOUBLE PRECISION NOT NULL,
		apr DOUBLE PRECISION NOT NULL,
		health_score DOUBLE PRECISION NOT NULL,
		health_status TEXT NOT NULL,
		rebalance_needed INTEGER NOT NULL,
		report TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_position_snapshots_address_time ON position_snapshots(position_address, evaluated_at DESC)`,

	`CREATE TABLE IF NOT EXISTS backtest_runs (
		run_id TEXT PRIMARY KEY,
		strategy_name TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		returns DOUBLE PRECISION NOT NULL,
		sharpe_ratio DOUBLE PRECISION NOT NULL,
		result TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_backtest_runs_created ON backtest_runs(created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS strategies (
		name TEXT PRIMARY KEY,
		config TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 0,
		updated_at BIGINT NOT NULL
	)`,

	// Cycle counter table for persistent global cycle tracking
	`CREATE TABLE IF NOT EXISTS cycle_counter (
		id INTEGER PRIMARY KEY DEFAULT 1,
		current_cycle INTEGER NOT NULL DEFAULT 0,
		updated_at BIGINT NOT NULL DEFAULT 0,
		CONSTRAINT single_row_check CHECK (id = 1)
	)`,
	`INSERT INTO cycle_counter (id, current_cycle) VALUES (1, 0) ON CONFLICT (id) DO NOTHING`,
}

var dropStatements = []string{
	`DROP TABLE IF EXISTS position_snapshots`,
	`DROP TABLE IF EXISTS backtest_runs`,
	`DROP TABLE IF EXISTS strategies`,
	`DROP TABLE IF EXISTS cycle_counter`,
}

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema DDL: %w", err)
		}
	}
	s.logger.Info().Msg("Database schema ensured")
	return nil
}

// DropSchema removes every table owned by the store.
func (s *Store) DropSchema(ctx context.Context) error {
	for _, stmt := range dropStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to drop schema: %w", err)
		}
	}
	s.logger.Warn().Msg("Database schema dropped")
	return nil
}
