package db

import (
	"io/fs"
	"strings"
	"testing"
)

func TestMigrationsEmbedded(t *testing.T) {
	files, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		t.Fatalf("glob failed: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("expected embedded migrations")
	}

	body, err := fs.ReadFile(migrations, files[0])
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	for _, table := range []string{"users", "products", "carts", "cart_items", "orders", "order_items"} {
		if !strings.Contains(string(body), "CREATE TABLE IF NOT EXISTS "+table+" (") {
			t.Errorf("initial migration is missing table %s", table)
		}
	}
	if !strings.Contains(string(body), "-- +goose Down") {
		t.Error("initial migration has no down section")
	}
}

func TestInitDB_InvalidDSN(t *testing.T) {
	if _, err := InitDB("not a dsn"); err == nil {
		t.Fatal("expected error for malformed DSN")
	}
}
