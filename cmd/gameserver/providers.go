package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/harmony/internal/config"
	"github.com/cory-johannsen/harmony/internal/storage/postgres"
	"github.com/cory-johannsen/harmony/internal/storage/results"
)

// providePool connects to PostgreSQL when the database is enabled. A nil pool
// means results are kept in the text log only.
func providePool(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*postgres.Pool, func(), error) {
	if !cfg.Enabled {
		return nil, func() {}, nil
	}
	start := time.Now()
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.CheckSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("checking database schema: %w", err)
	}
	logger.Info("database connected",
		zap.String("host", cfg.Host),
		zap.Duration("elapsed", time.Since(start)),
	)
	return pool, pool.Close, nil
}

func provideFileLog(cfg config.ResultsConfig) (*results.FileLog, error) {
	fl, err := results.NewFileLog(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("opening result log: %w", err)
	}
	return fl, nil
}

// provideResultSink always writes the text log and mirrors records into
// PostgreSQL when a pool is available.
func provideResultSink(fl *results.FileLog, pool *postgres.Pool) results.Sink {
	if pool == nil {
		return fl
	}
	return results.Multi{fl, postgres.NewResultRepository(pool.DB())}
}
