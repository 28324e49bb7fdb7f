// Package testutil runs a throwaway Postgres for integration tests. The
// storage layer needs a real server: list partitioning and LISTEN/NOTIFY
// cannot be faked.
//
//	func TestMain(m *testing.M) {
//	    tc := testutil.MustStartPostgres()
//	    db, err := tc.NewTestDB(context.Background(), testutil.TestLogger())
//	    ...
//	    code := m.Run()
//	    tc.Terminate()
//	    os.Exit(code)
//	}
package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kubikal7/ski-jumping-management/internal/storage"
	"github.com/kubikal7/ski-jumping-management/migrations"
)

// PostgresImage is the server version the schema targets.
const PostgresImage = "postgres:17-alpine"

const (
	pgUser     = "skijump"
	pgPassword = "skijump"
	pgAdminDB  = "postgres"
)

// TestContainer is a running Postgres server. Every NewTestDB call gets its
// own database on it, so season partitions created by one caller are
// invisible to the next.
type TestContainer struct {
	Container testcontainers.Container
	host      string
	port      string
	created   atomic.Int64
}

// MustStartPostgres starts the container or exits the process; it is meant
// for TestMain.
func MustStartPostgres() *TestContainer {
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        PostgresImage,
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     pgUser,
				"POSTGRES_PASSWORD": pgPassword,
				"POSTGRES_DB":       pgAdminDB,
			},
			// The entrypoint restarts the server once after initdb.
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		fail("start postgres container", err)
	}

	tc := &TestContainer{Container: container}
	if tc.host, err = container.Host(ctx); err != nil {
		fail("container host", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		fail("container port", err)
	}
	tc.port = port.Port()
	return tc
}

func fail(what string, err error) {
	fmt.Fprintf(os.Stderr, "testutil: %s: %v\n", what, err)
	os.Exit(1)
}

// DSN returns a connection string for database name on the container.
func (tc *TestContainer) DSN(name string) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", pgUser, pgPassword, tc.host, tc.port, name)
}

// NewTestDB creates an empty database, opens a storage.DB on it with a
// notify connection and applies the embedded migrations.
func (tc *TestContainer) NewTestDB(ctx context.Context, logger *slog.Logger) (*storage.DB, error) {
	name := fmt.Sprintf("skijump_%d_%s", tc.created.Add(1), strings.ReplaceAll(uuid.NewString()[:8], "-", ""))

	admin, err := pgx.Connect(ctx, tc.DSN(pgAdminDB))
	if err != nil {
		return nil, fmt.Errorf("testutil: connect admin db: %w", err)
	}
	_, err = admin.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{name}.Sanitize())
	_ = admin.Close(ctx)
	if err != nil {
		return nil, fmt.Errorf("testutil: create database %s: %w", name, err)
	}

	dsn := tc.DSN(name)
	db, err := storage.New(ctx, dsn, dsn, logger)
	if err != nil {
		return nil, fmt.Errorf("testutil: open %s: %w", name, err)
	}
	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		db.Close(ctx)
		return nil, fmt.Errorf("testutil: migrate %s: %w", name, err)
	}
	return db, nil
}

// Terminate removes the container and every database on it.
func (tc *TestContainer) Terminate() {
	_ = tc.Container.Terminate(context.Background())
}

// TestLogger logs warnings and errors to stderr, keeping passing runs quiet.
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}
