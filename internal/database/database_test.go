package database

import (
	"context"
	"os"
	"testing"
)

func openTestDB(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping PostgreSQL test")
	}
	return dsn
}

func TestMigrations_Embedded(t *testing.T) {
	for _, name := range []string{"migrations/0001_init.up.sql", "migrations/0001_init.down.sql"} {
		data, err := migrations.ReadFile(name)
		if err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
		if len(data) == 0 {
			t.Errorf("%s is empty", name)
		}
	}
}

func TestMigrate_UpIsIdempotent(t *testing.T) {
	dsn := openTestDB(t)
	db, err := Open(context.Background(), dsn, DefaultPoolConfig())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if err := Migrate(db); err != nil {
		t.Fatalf("first Migrate: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}

	for _, table := range []string{"users", "matches", "messages"} {
		var exists bool
		err := db.QueryRow(`SELECT to_regclass($1) IS NOT NULL`, "public."+table).Scan(&exists)
		if err != nil {
			t.Fatalf("check %s: %v", table, err)
		}
		if !exists {
			t.Errorf("table %s missing after Migrate", table)
		}
	}
}

func TestOpen_BadDSN(t *testing.T) {
	_, err := Open(context.Background(), "postgres://nobody@127.0.0.1:1/none?sslmode=disable&connect_timeout=1", DefaultPoolConfig())
	if err == nil {
		t.Fatal("expected an error connecting to a closed port")
	}
}
