// Package main applies the game_results schema to the optional results
// database, using the same configuration file and HARMONY_ overrides as the
// coordination server.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"

	"github.com/cory-johannsen/harmony/internal/config"
	"github.com/cory-johannsen/harmony/internal/observability"
)

// errDatabaseDisabled stops a migration against a server that keeps results in the text log only.
var errDatabaseDisabled = errors.New("database.enabled is false; nothing to migrate")

type options struct {
	direction string
	steps     int
	dir       string
}

func (o options) validate() error {
	if o.direction != "up" && o.direction != "down" {
		return fmt.Errorf("invalid direction %q: must be up or down", o.direction)
	}
	if o.steps < 0 {
		return fmt.Errorf("invalid steps %d: must be >= 0", o.steps)
	}
	return nil
}

func main() {
	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	direction := flag.String("direction", "up", "migration direction: up or down")
	steps := flag.Int("steps", 0, "number of steps (0 = all)")
	dir := flag.String("migrations", "migrations", "directory holding the SQL migrations")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	opts := options{direction: *direction, steps: *steps, dir: *dir}
	if err := run(cfg.Database, opts, logger); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}
}

// run migrates the results database described by db.
//
// Postcondition: Returns nil when the schema moved or was already current.
func run(db config.DatabaseConfig, opts options, logger *zap.Logger) error {
	if err := opts.validate(); err != nil {
		return err
	}
	if !db.Enabled {
		return errDatabaseDisabled
	}

	start := time.Now()
	m, err := migrate.New("file://"+opts.dir, db.DSN())
	if err != nil {
		return fmt.Errorf("creating migrator for %s:%d/%s: %w", db.Host, db.Port, db.Name, err)
	}
	defer m.Close()
	m.Log = migrateLogger{logger: logger}

	n := opts.steps
	if opts.direction == "down" {
		n = -n
	}
	switch {
	case n != 0:
		err = m.Steps(n)
	case opts.direction == "up":
		err = m.Up()
	default:
		err = m.Down()
	}
	noChange := errors.Is(err, migrate.ErrNoChange)
	if err != nil && !noChange {
		return fmt.Errorf("migrating %s: %w", opts.direction, err)
	}

	version, dirty, verr := m.Version()
	if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
		return fmt.Errorf("reading schema version: %w", verr)
	}
	logger.Info("migration finished",
		zap.String("direction", opts.direction),
		zap.Bool("changed", !noChange),
		zap.Uint("version", version),
		zap.Bool("dirty", dirty),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// migrateLogger forwards golang-migrate progress to zap.
type migrateLogger struct {
	logger *zap.Logger
}

func (l migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...))
}

func (l migrateLogger) Verbose() bool {
	return l.logger.Core().Enabled(zap.DebugLevel)
}
