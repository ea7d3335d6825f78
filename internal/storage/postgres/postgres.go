// Package postgres mirrors game results into PostgreSQL using pgx v5.
// The database is optional; the server runs on the text result log alone
// when it is disabled.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/harmony/internal/config"
)

// ErrSchemaMissing is returned when the game_results table has not been migrated.
var ErrSchemaMissing = errors.New("game_results table missing, run cmd/migrate")

// resultsTable is the relation ResultRepository reads and writes.
const resultsTable = "public.game_results"

// Pool is the connection pool behind ResultRepository.
type Pool struct {
	pool *pgxpool.Pool
}

// NewPool connects to the database described by cfg and pings it.
//
// Precondition: cfg.Enabled is true and cfg passed validation.
// Postcondition: Returns a reachable Pool or a non-nil error with nothing left open.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*Pool, error) {
	poolCfg, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return &Pool{pool: pool}, nil
}

func poolConfig(cfg config.DatabaseConfig) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	return poolCfg, nil
}

// CheckSchema reports whether the results table exists.
//
// Postcondition: Returns nil when game_results exists, an error wrapping
// ErrSchemaMissing when it does not, or the query error.
func (p *Pool) CheckSchema(ctx context.Context) error {
	var table *string
	if err := p.pool.QueryRow(ctx, "SELECT to_regclass($1)::text", resultsTable).Scan(&table); err != nil {
		return fmt.Errorf("looking up %s: %w", resultsTable, err)
	}
	if table == nil {
		return ErrSchemaMissing
	}
	return nil
}

// Health checks within timeout that the database answers and still holds
// the results table.
func (p *Pool) Health(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.CheckSchema(ctx)
}

// Close releases all connections.
func (p *Pool) Close() {
	p.pool.Close()
}

// DB returns the underlying pgxpool.Pool for ResultRepository.
func (p *Pool) DB() *pgxpool.Pool {
	return p.pool
}
