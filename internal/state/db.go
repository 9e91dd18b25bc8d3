// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	var err error
	DB, err = sql.Open("postgres", psqlInfo)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// SchemaSQL creates the manager and receipt tables. It is safe to run multiple times.
const SchemaSQL = `
	CREATE TABLE IF NOT EXISTS managers (
		manager_id VARCHAR(44) PRIMARY KEY,
		principal VARCHAR(44) NOT NULL,
		executor VARCHAR(44) NOT NULL,
		custodian VARCHAR(44) NOT NULL,
		pool VARCHAR(44) NOT NULL,
		mint_a VARCHAR(44) NOT NULL,
		mint_b VARCHAR(44) NOT NULL,
		vault_a VARCHAR(44) NOT NULL,
		vault_b VARCHAR(44) NOT NULL,
		lower_tick INTEGER NOT NULL,
		upper_tick INTEGER NOT NULL,
		liquidity NUMERIC(39, 0) NOT NULL DEFAULT 0,
		position VARCHAR(44) NOT NULL DEFAULT '',
		position_state VARCHAR(20) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT ck_managers_range CHECK (lower_tick < upper_tick),
		CONSTRAINT ck_managers_roles CHECK (principal <> executor)
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_managers_pool ON managers(pool);

	CREATE TABLE IF NOT EXISTS operation_receipts (
		receipt_id SERIAL PRIMARY KEY,
		operation_id UUID NOT NULL,
		manager_id VARCHAR(44) NOT NULL,
		operation VARCHAR(32) NOT NULL,
		caller VARCHAR(44) NOT NULL,
		success BOOLEAN NOT NULL,
		message TEXT,
		tx_reference TEXT,
		liquidity NUMERIC(39, 0),
		amount_a NUMERIC(20, 0) NOT NULL DEFAULT 0,
		amount_b NUMERIC(20, 0) NOT NULL DEFAULT 0,
		aux_accounts INTEGER NOT NULL DEFAULT 0,
		receipt_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_operation_receipts_manager_timestamp ON operation_receipts(manager_id, receipt_timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_operation_receipts_operation ON operation_receipts(operation);
`

// DropSchemaSQL removes every table created by SchemaSQL.
const DropSchemaSQL = `
	DROP TABLE IF EXISTS operation_receipts CASCADE;
	DROP TABLE IF EXISTS managers CASCADE;
`

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	if _, err := DB.Exec(SchemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured (managers, operation_receipts).")
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	// Use a short timeout context for health checks
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := DB.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}
