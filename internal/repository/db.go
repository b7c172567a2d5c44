package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps the shared connection pool.
type DB struct {
	Pool *pgxpool.Pool
}

// New connects to Postgres and verifies the connection.
func New(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close shuts down the pool.
func (db *DB) Close() {
	db.Pool.Close()
}

// Migrate applies the schema. Every statement is idempotent, so running
// it on each startup is safe.
func (db *DB) Migrate(ctx context.Context) error {
	migrations := []string{
		migrationCreateCars,
		migrationCreatePositions,
		migrationCreateRemoteCommands,
	}

	for _, m := range migrations {
		if _, err := db.Pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}

	return nil
}

const migrationCreateCars = `
CREATE TABLE IF NOT EXISTS cars (
    id BIGSERIAL PRIMARY KEY,
    vin VARCHAR(17) NOT NULL UNIQUE,
    name VARCHAR(255),
    model VARCHAR(100),
    brand VARCHAR(100),
    tbox_version VARCHAR(50),
    image_url TEXT,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_cars_vin ON cars(vin);
`

// recorded_at is the vehicle's own GPS timestamp; the unique constraint
// makes re-polled identical fixes a no-op.
const migrationCreatePositions = `
CREATE TABLE IF NOT EXISTS positions (
    id BIGSERIAL PRIMARY KEY,
    car_id BIGINT NOT NULL REFERENCES cars(id),
    latitude DOUBLE PRECISION NOT NULL,
    longitude DOUBLE PRECISION NOT NULL,
    speed DOUBLE PRECISION,
    heading DOUBLE PRECISION,
    battery_level DOUBLE PRECISION,
    recorded_at TIMESTAMP WITH TIME ZONE NOT NULL,
    UNIQUE (car_id, recorded_at)
);
CREATE INDEX IF NOT EXISTS idx_positions_car_id ON positions(car_id);
CREATE INDEX IF NOT EXISTS idx_positions_recorded_at ON positions(recorded_at);
`

const migrationCreateRemoteCommands = `
CREATE TABLE IF NOT EXISTS remote_commands (
    id BIGSERIAL PRIMARY KEY,
    car_id BIGINT NOT NULL REFERENCES cars(id),
    command VARCHAR(50) NOT NULL,
    success BOOLEAN NOT NULL DEFAULT false,
    soft_rejected BOOLEAN NOT NULL DEFAULT false,
    control_state INT,
    request_serial VARCHAR(100),
    error_kind VARCHAR(50),
    error_message TEXT,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_remote_commands_car_id ON remote_commands(car_id);
CREATE INDEX IF NOT EXISTS idx_remote_commands_created_at ON remote_commands(created_at);
`
