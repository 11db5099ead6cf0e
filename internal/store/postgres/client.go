package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"parkease-api-go/internal/config"
)

// Client wraps the Postgres connection pool
type Client struct {
	db *sqlx.DB
}

// NewClient opens the pool described by cfg and verifies it is reachable
func NewClient(ctx context.Context, cfg *config.Config) (*Client, error) {
	db, err := sqlx.Open("postgres", cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.PostgresMaxOpenConns)
	db.SetMaxIdleConns(cfg.PostgresMaxIdleConns)
	db.SetConnMaxLifetime(cfg.PostgresConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return &Client{db: db}, nil
}

// Ping checks if Postgres is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes the Postgres connection pool
func (c *Client) Close() error {
	return c.db.Close()
}

// Migrate creates the schema if it does not exist
func (c *Client) Migrate(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// bookings.pool_id carries no foreign key: deleting a pool keeps its
// terminal bookings as history.
const schema = `
CREATE TABLE IF NOT EXISTS pools (
    id              TEXT PRIMARY KEY,
    owner_id        TEXT NOT NULL,
    name            TEXT NOT NULL,
    address         TEXT NOT NULL,
    latitude        DOUBLE PRECISION NOT NULL DEFAULT 0,
    longitude       DOUBLE PRECISION NOT NULL DEFAULT 0,
    price_per_hour  DOUBLE PRECISION NOT NULL,
    description     TEXT NOT NULL DEFAULT '',
    total_units     INTEGER NOT NULL CHECK (total_units >= 0),
    available_units INTEGER NOT NULL CHECK (available_units >= 0 AND available_units <= total_units),
    is_active       BOOLEAN NOT NULL DEFAULT TRUE,
    created_at      TIMESTAMPTZ NOT NULL,
    updated_at      TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS pools_owner_idx ON pools (owner_id);

CREATE TABLE IF NOT EXISTS bookings (
    id           TEXT PRIMARY KEY,
    requester_id TEXT NOT NULL,
    pool_id      TEXT NOT NULL,
    start_time   TIMESTAMPTZ NOT NULL,
    end_time     TIMESTAMPTZ NOT NULL CHECK (end_time > start_time),
    vehicle_id   TEXT NOT NULL,
    total_cost   DOUBLE PRECISION NOT NULL,
    status       TEXT NOT NULL CHECK (status IN ('confirmed', 'cancelled', 'completed')),
    created_at   TIMESTAMPTZ NOT NULL,
    updated_at   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS bookings_pool_status_idx ON bookings (pool_id, status);
CREATE INDEX IF NOT EXISTS bookings_vehicle_status_idx ON bookings (vehicle_id, status);
CREATE INDEX IF NOT EXISTS bookings_requester_idx ON bookings (requester_id);
CREATE INDEX IF NOT EXISTS bookings_status_end_idx ON bookings (status, end_time);
`
