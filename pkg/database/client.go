// Package database provides the connection to the analytical store, the
// read-only SQL executor, and the embedded demo-dataset migrations. The same
// client serves PostgreSQL (via pgx) and SQLite (via the embedded driver),
// selected by the store URL scheme.
package database

import (
	"context"
	stdsql "database/sql"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver for database/sql
	_ "modernc.org/sqlite"             // register sqlite driver for database/sql
)

// Client bundles the raw connection pool with the ent SQL driver used for
// composed queries.
type Client struct {
	db     *stdsql.DB
	drv    *entsql.Driver
	engine Engine
}

// Open connects to the store described by cfg.URL and verifies the
// connection.
func Open(ctx context.Context, cfg Config) (*Client, error) {
	engine, driverName, dsn, err := ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	db, err := stdsql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Bridge the pool into an ent driver so summary queries can be composed
	// with the dialect/sql builder.
	drv := entsql.OpenDB(engine.Dialect(), db)

	return &Client{
		db:     db,
		drv:    drv,
		engine: engine,
	}, nil
}

// DB returns the underlying connection pool for health checks and direct
// queries.
func (c *Client) DB() *stdsql.DB {
	return c.db
}

// Driver returns the ent SQL driver for builder-composed queries.
func (c *Client) Driver() *entsql.Driver {
	return c.drv
}

// Engine reports which SQL engine the client is connected to.
func (c *Client) Engine() Engine {
	return c.engine
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.drv.Close()
}
