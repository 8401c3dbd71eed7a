package database

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stwalsh4118/broker/internal/config"
)

// Database wraps the pgx connection pool and provides database operations.
type Database struct {
	Pool *pgxpool.Pool
}

// schema creates the tables read by the postgres market repository.
const schema = `
CREATE TABLE IF NOT EXISTS properties (
	id                      TEXT PRIMARY KEY,
	address                 TEXT NOT NULL DEFAULT '',
	zipcode                 CHAR(5) NOT NULL,
	sqft                    INTEGER,
	property_type           TEXT NOT NULL DEFAULT '',
	last_sale_price         DOUBLE PRECISION,
	last_sale_date          DATE,
	current_estimated_value DOUBLE PRECISION,
	estimated_monthly_rent  DOUBLE PRECISION
);
CREATE INDEX IF NOT EXISTS idx_properties_zipcode ON properties (zipcode);
CREATE INDEX IF NOT EXISTS idx_properties_address ON properties (lower(address));

CREATE TABLE IF NOT EXISTS market_stats (
	zipcode         CHAR(5) NOT NULL,
	month           DATE NOT NULL,
	median_price    DOUBLE PRECISION NOT NULL,
	median_rent     DOUBLE PRECISION NOT NULL,
	inventory_count DOUBLE PRECISION,
	days_on_market  DOUBLE PRECISION,
	median_income   DOUBLE PRECISION,
	vacancy_rate    DOUBLE PRECISION
);
CREATE INDEX IF NOT EXISTS idx_market_stats_zip_month ON market_stats (zipcode, month);

CREATE TABLE IF NOT EXISTS comps (
	comp_id        TEXT NOT NULL,
	property_id    TEXT NOT NULL REFERENCES properties (id),
	address        TEXT NOT NULL DEFAULT '',
	sale_price     DOUBLE PRECISION NOT NULL,
	sale_date      DATE NOT NULL,
	sqft           INTEGER,
	distance_miles DOUBLE PRECISION,
	PRIMARY KEY (property_id, comp_id)
);
`

// ConnString builds the pgx connection string for cfg.
func ConnString(cfg config.DatabaseConfig) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     cfg.Host + ":" + cfg.Port,
		Path:     "/" + cfg.Name,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// NewPostgresPool creates a new PostgreSQL connection pool using pgx.
// It configures the pool based on the provided database configuration,
// tests the connection, and returns a Database instance.
func NewPostgresPool(ctx context.Context, cfg config.DatabaseConfig) (*Database, error) {
	poolConfig, err := pgxpool.ParseConfig(ConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MinConns = int32(cfg.PoolMin)
	poolConfig.MaxConns = int32(cfg.PoolMax)

	poolConfig.ConnConfig.ConnectTimeout = 5 * time.Second
	poolConfig.MaxConnIdleTime = 30 * time.Second
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test the connection immediately
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Database{Pool: pool}, nil
}

// EnsureSchema creates the market data tables if they do not exist.
func (db *Database) EnsureSchema(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Ping checks if the database connection is alive.
func (db *Database) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// Close gracefully closes the database connection pool.
// It waits for all connections to be returned to the pool before closing.
func (db *Database) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// Stats returns statistics about the connection pool.
func (db *Database) Stats() *pgxpool.Stat {
	if db.Pool == nil {
		return nil
	}
	return db.Pool.Stat()
}
