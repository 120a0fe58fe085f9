package postgres

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// DB wraps the database connection
type DB struct {
	*sql.DB
}

// NewDB creates a new database connection and runs migrations.
// connectionString should be in the format: "host=localhost port=5432 user=postgres password=postgres dbname=vaultcore sslmode=disable"
func NewDB(connectionString string) (*DB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	wrapped := &DB{DB: db}
	if err := wrapped.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return wrapped, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}

func (db *DB) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS receipts (
			id               UUID PRIMARY KEY,
			owner_principal  TEXT NOT NULL,
			asset            TEXT NOT NULL,
			principal        NUMERIC NOT NULL,
			entry_value_usd6 NUMERIC NOT NULL,
			shares           NUMERIC NOT NULL,
			lock_until       TIMESTAMPTZ NOT NULL,
			withdrawn        BOOLEAN NOT NULL DEFAULT FALSE,
			created_at       TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS credits (
			seq             BIGSERIAL,
			id              UUID PRIMARY KEY,
			owner_principal TEXT NOT NULL,
			amount_usd6     NUMERIC NOT NULL,
			unlock_at       TIMESTAMPTZ NOT NULL,
			claimed         BOOLEAN NOT NULL DEFAULT FALSE,
			created_at      TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS batches (
			id                    BIGSERIAL PRIMARY KEY,
			status                TEXT NOT NULL,
			start_time            TIMESTAMPTZ NOT NULL,
			end_time              TIMESTAMPTZ,
			total_collateral_usd6 NUMERIC NOT NULL,
			total_shares          NUMERIC NOT NULL,
			final_nav_per_share   NUMERIC NOT NULL,
			user_profit_usd6      NUMERIC NOT NULL DEFAULT 0,
			distribution_cursor   INTEGER NOT NULL DEFAULT 0,
			funds_deployed        BOOLEAN NOT NULL DEFAULT FALSE,
			distributed           BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS batch_members (
			seq          BIGSERIAL,
			batch_id     BIGINT NOT NULL,
			receipt_id   UUID NOT NULL,
			share_amount NUMERIC NOT NULL,
			distributed  BOOLEAN NOT NULL DEFAULT FALSE,
			PRIMARY KEY (batch_id, receipt_id)
		)`,
		`CREATE TABLE IF NOT EXISTS pools (
			name    TEXT PRIMARY KEY,
			balance NUMERIC NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS collateralizations (
			receipt_id  UUID PRIMARY KEY,
			status      TEXT NOT NULL,
			amount_usd6 NUMERIC NOT NULL,
			registered  BOOLEAN NOT NULL DEFAULT FALSE,
			attempts    INTEGER NOT NULL DEFAULT 0,
			updated_at  TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS audit_records (
			seq       BIGSERIAL,
			id        UUID PRIMARY KEY,
			operation TEXT NOT NULL,
			batch_id  BIGINT NOT NULL DEFAULT 0,
			actor     TEXT NOT NULL,
			detail    TEXT NOT NULL DEFAULT '',
			at        TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
