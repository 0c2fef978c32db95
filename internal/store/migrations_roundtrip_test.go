package store

import (
	"context"
	"database/sql"
	"testing"
	"time"
)

func TestMigrationsRoundTripPostgres(t *testing.T) {
	db := openTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := resetPublicSchema(ctx, db); err != nil {
		t.Fatalf("reset schema: %v", err)
	}

	migrations, err := Migrations("")
	if err != nil {
		t.Fatalf("open migrations: %v", err)
	}

	if err := ApplyMigrations(ctx, db, migrations); err != nil {
		t.Fatalf("apply up migrations (pass 1): %v", err)
	}
	if err := ApplyMigrations(ctx, db, migrations); err != nil {
		t.Fatalf("apply up migrations should be idempotent: %v", err)
	}

	if err := RollbackMigrations(ctx, db, migrations); err != nil {
		t.Fatalf("apply down migrations: %v", err)
	}

	var remaining int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&remaining); err != nil {
		t.Fatalf("count schema_migrations: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected schema_migrations to be empty after rollback, got %d", remaining)
	}

	if err := ApplyMigrations(ctx, db, migrations); err != nil {
		t.Fatalf("apply up migrations (pass 2): %v", err)
	}
}

func resetPublicSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`)
	return err
}
