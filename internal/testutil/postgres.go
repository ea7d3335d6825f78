// Package testutil provides test helpers: a disposable PostgreSQL container
// and a JSON line client for the TCP transport.
package testutil

import (
	"context"
	"errors"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cory-johannsen/harmony/internal/config"
	"github.com/cory-johannsen/harmony/internal/storage/postgres"
)

const postgresImage = "postgres:16-alpine"

// PostgresContainer is a running PostgreSQL container with a connected pool.
type PostgresContainer struct {
	container testcontainers.Container
	Pool      *postgres.Pool
	RawPool   *pgxpool.Pool
	Config    config.DatabaseConfig
}

// NewPostgresContainer starts PostgreSQL with the server's default database
// credentials and connects to it. The test is skipped under -short.
//
// Precondition: Docker must be available.
// Postcondition: Returns a connected container torn down at test cleanup, or fails the test.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres container tests skipped in -short mode")
	}
	ctx := context.Background()
	start := time.Now()

	defaults, err := config.Default()
	if err != nil {
		t.Fatalf("loading default config: %v", err)
	}
	dbCfg := defaults.Database
	dbCfg.Enabled = true

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        postgresImage,
			ExposedPorts: []string{strconv.Itoa(dbCfg.Port) + "/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     dbCfg.User,
				"POSTGRES_PASSWORD": dbCfg.Password,
				"POSTGRES_DB":       dbCfg.Name,
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("starting postgres container: %v [%s]", err, time.Since(start))
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	if dbCfg.Host, err = container.Host(ctx); err != nil {
		t.Fatalf("getting container host: %v", err)
	}
	mapped, err := container.MappedPort(ctx, nat.Port(strconv.Itoa(dbCfg.Port)))
	if err != nil {
		t.Fatalf("getting mapped port: %v", err)
	}
	dbCfg.Port = mapped.Int()

	pool, err := postgres.NewPool(ctx, dbCfg)
	if err != nil {
		t.Fatalf("connecting to test postgres: %v [%s]", err, time.Since(start))
	}
	t.Cleanup(pool.Close)
	t.Logf("postgres container started [%s]", time.Since(start))

	return &PostgresContainer{
		container: container,
		Pool:      pool,
		RawPool:   pool.DB(),
		Config:    dbCfg,
	}
}

// ApplyMigrations runs the repository's migrations/ directory against the
// container, exactly as cmd/migrate does.
//
// Postcondition: The schema is at the latest migration, or the test has failed.
func (pc *PostgresContainer) ApplyMigrations(t *testing.T) {
	t.Helper()
	start := time.Now()

	m, err := migrate.New("file://"+MigrationsDir(), pc.Config.DSN())
	if err != nil {
		t.Fatalf("creating migrator: %v", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		t.Fatalf("applying migrations: %v", err)
	}
	t.Logf("migrations applied [%s]", time.Since(start))
}

// MigrationsDir returns the absolute path of the repository's migrations/ directory.
func MigrationsDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "migrations")
}
