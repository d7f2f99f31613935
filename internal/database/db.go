package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"propdata/internal/config"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
)

// Pool sizes the connection pool for one process.
type Pool struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// PoolFor returns the pool settings for a component. The loader writes from a
// single goroutine inside one transaction at a time, so it keeps a small pool.
func PoolFor(component string) Pool {
	if component == "loader" {
		return Pool{MaxOpen: 4, MaxIdle: 2, MaxLifetime: 30 * time.Minute, MaxIdleTime: 10 * time.Minute}
	}
	return Pool{MaxOpen: 25, MaxIdle: 10, MaxLifetime: 5 * time.Minute, MaxIdleTime: 10 * time.Minute}
}

// sessionParams are SET by the driver on every new connection, so the whole
// pool carries them rather than only the connection a one-off SET ran on.
// They replace any extra parameters given in the DSN query string.
func sessionParams(component string) map[string]interface{} {
	params := map[string]interface{}{
		"idle_in_transaction_session_timeout": "180s",
	}
	// a full chunk insert can outlast an API query budget by a lot
	if component == "loader" {
		params["statement_timeout"] = "0"
	} else {
		params["statement_timeout"] = "120s"
	}
	return params
}

// New connects to Postgres and returns a Bun DB handle for the named
// component ("api" or "loader").
func New(dsn string, cfg *config.Config, component string) (*bun.DB, error) {
	// ✅ Create connector with increased timeouts
	connector := pgdriver.NewConnector(
		pgdriver.WithDSN(dsn),
		pgdriver.WithApplicationName("propdata-"+component),
		pgdriver.WithConnParams(sessionParams(component)),
		pgdriver.WithTimeout(120*time.Second),      // Overall connection timeout (2 min)
		pgdriver.WithDialTimeout(15*time.Second),   // Connection establishment timeout
		pgdriver.WithReadTimeout(120*time.Second),  // Read operation timeout (2 min)
		pgdriver.WithWriteTimeout(120*time.Second), // Write operation timeout (2 min)
	)

	sqldb := sql.OpenDB(connector)
	db := bun.NewDB(sqldb, pgdialect.New())

	// Configure connection pool
	pool := PoolFor(component)
	sqldb.SetMaxOpenConns(pool.MaxOpen)        // Max concurrent connections
	sqldb.SetMaxIdleConns(pool.MaxIdle)        // Kept warm between requests
	sqldb.SetConnMaxLifetime(pool.MaxLifetime) // Max connection lifetime
	sqldb.SetConnMaxIdleTime(pool.MaxIdleTime) // Max idle time

	// Optional query logging
	if cfg.BunDebug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	// Create context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Verify connection first
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}
