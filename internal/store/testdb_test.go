package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	containerOnce sync.Once
	containerDSN  string
	containerErr  error
)

// openTestDB returns a connection to a disposable Postgres. It uses
// WISDOM_TEST_DATABASE_URL when set, or starts a container when
// WISDOM_TEST_CONTAINERS=1, and skips otherwise.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	dsn := getTestDatabaseURL(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := OpenWithRetry(ctx, dsn, 30*time.Second)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// openMigratedStore resets the schema and applies all migrations.
func openMigratedStore(t *testing.T) *PostgresStore {
	t.Helper()
	db := openTestDB(t)
	ctx := context.Background()
	if err := resetPublicSchema(ctx, db); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	migrations, err := Migrations("")
	if err != nil {
		t.Fatalf("open migrations: %v", err)
	}
	if err := ApplyMigrations(ctx, db, migrations); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return NewPostgresStore(db)
}

func getTestDatabaseURL(t *testing.T) string {
	t.Helper()

	if url := strings.TrimSpace(getenv("WISDOM_TEST_DATABASE_URL", "")); url != "" {
		return url
	}
	if getenv("WISDOM_TEST_CONTAINERS", "") != "1" {
		t.Skip("WISDOM_TEST_DATABASE_URL is not set and WISDOM_TEST_CONTAINERS is not 1")
	}

	containerOnce.Do(func() {
		containerDSN, containerErr = startPostgresContainer(context.Background())
	})
	if containerErr != nil {
		t.Fatalf("start postgres container: %v", containerErr)
	}
	return containerDSN
}

func startPostgresContainer(ctx context.Context) (string, error) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "wisdom",
			"POSTGRES_PASSWORD": "wisdom",
			"POSTGRES_DB":       "wisdom_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to start postgres container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return "", fmt.Errorf("failed to get container port: %w", err)
	}
	return fmt.Sprintf("postgres://wisdom:wisdom@%s:%s/wisdom_test?sslmode=disable", host, port.Port()), nil
}

func getenv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
