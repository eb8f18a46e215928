// Package database owns the PostgreSQL connection pool and schema
// migrations for the signal ledger, review queue and action outbox.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"mt5-signal-bot/config"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
	log  zerolog.Logger
}

// NewDB creates a new database connection
func NewDB(cfg config.DatabaseConfig, logger zerolog.Logger) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	logger.Info().Str("database", cfg.Database).Msg("Connected to PostgreSQL")

	return &DB{Pool: pool, log: logger}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.log.Info().Msg("Database connection closed")
	}
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	db.log.Info().Msg("Running database migrations...")

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS signal_groups (
			group_key VARCHAR(64) PRIMARY KEY,
			source_msg_id BIGINT NOT NULL,
			chat_id BIGINT NOT NULL,
			symbol VARCHAR(32) NOT NULL,
			side VARCHAR(8) NOT NULL,
			closed BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS group_legs (
			group_key VARCHAR(64) NOT NULL REFERENCES signal_groups(group_key) ON DELETE CASCADE,
			leg_index INT NOT NULL,
			symbol VARCHAR(32) NOT NULL,
			side VARCHAR(8) NOT NULL,
			volume DOUBLE PRECISION NOT NULL,
			entry DOUBLE PRECISION NOT NULL,
			stop_loss DOUBLE PRECISION NOT NULL DEFAULT 0,
			take_profit DOUBLE PRECISION NOT NULL DEFAULT 0,
			ticket BIGINT NOT NULL DEFAULT 0,
			status VARCHAR(16) NOT NULL DEFAULT 'pending',
			PRIMARY KEY (group_key, leg_index)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_group_legs_ticket ON group_legs(ticket) WHERE ticket <> 0`,
		`CREATE TABLE IF NOT EXISTS review_queue (
			id UUID PRIMARY KEY,
			chat_id BIGINT NOT NULL,
			source_msg_id BIGINT NOT NULL,
			reason VARCHAR(32) NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			raw_text TEXT NOT NULL,
			resolved BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_review_queue_unresolved ON review_queue(created_at) WHERE NOT resolved`,
		`CREATE TABLE IF NOT EXISTS action_outbox (
			action_id VARCHAR(64) PRIMARY KEY,
			action_type VARCHAR(16) NOT NULL,
			group_key VARCHAR(64) NOT NULL,
			source_msg_id BIGINT NOT NULL,
			payload JSONB NOT NULL,
			emitted_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_action_outbox_group ON action_outbox(group_key)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	db.log.Info().Int("count", len(migrations)).Msg("Database migrations completed")
	return nil
}
