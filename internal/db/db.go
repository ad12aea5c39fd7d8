// Package db wraps a pgxpool.Pool with the schema bootstrap, row access,
// and LISTEN/NOTIFY plumbing the pipeline services share.
package db

import (
	_ "embed"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

//go:embed schema.sql
var schemaSQL string

// DB wraps a connection pool with the operations the pipeline needs.
type DB struct {
	Pool *pgxpool.Pool
	log  zerolog.Logger
}

// Connect opens a pool against dsn, retrying a handful of times so a
// service can start before Postgres has finished coming up in compose.
func Connect(ctx context.Context, dsn string, log zerolog.Logger) (*DB, error) {
	log = log.With().Str("component", "db").Logger()

	const attempts = 5
	var pool *pgxpool.Pool
	var lastErr error
	for i := 0; i < attempts; i++ {
		p, err := pgxpool.New(ctx, dsn)
		if err == nil {
			if pingErr := p.Ping(ctx); pingErr == nil {
				pool = p
				break
			} else {
				lastErr = pingErr
				p.Close()
			}
		} else {
			lastErr = err
		}
		log.Warn().Err(lastErr).Str("dsn", maskDSN(dsn)).Int("attempt", i+1).Msg("database not ready, retrying")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(i+1) * 500 * time.Millisecond):
		}
	}
	if pool == nil {
		return nil, fmt.Errorf("connect to database after %d attempts: %w", attempts, lastErr)
	}

	return &DB{Pool: pool, log: log}, nil
}

// maskDSN redacts credentials from a DSN before it is logged.
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// InitSchema applies schema.sql. Every statement in it is idempotent
// (CREATE TABLE/INDEX IF NOT EXISTS, guarded trigger creation), so this
// is safe to call on every service startup rather than requiring a
// separate migration step. The file contains multiple statements in one
// string with no arguments, which pgx executes over the simple query
// protocol rather than attempting to prepare it as one statement.
func (d *DB) InitSchema(ctx context.Context) error {
	if _, err := d.Pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// HealthCheck reports whether the pool can reach Postgres.
func (d *DB) HealthCheck(ctx context.Context) error {
	return d.Pool.Ping(ctx)
}

// Close releases the pool.
func (d *DB) Close() {
	d.Pool.Close()
}
