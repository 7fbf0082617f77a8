//go:build integration

package testhelpers

import (
	"context"
	"testing"
)

func TestTestDBConnection(t *testing.T) {
	testDB := GetTestDB(t)

	ctx := context.Background()

	var one int
	if err := testDB.Pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		t.Fatalf("failed to query test database: %v", err)
	}
	if one != 1 {
		t.Errorf("expected 1, got %d", one)
	}
}

func TestLogicalDatabaseEntry(t *testing.T) {
	testDB := GetTestDB(t)

	db := testDB.LogicalDatabase("it_pg")
	if db.Host == "" || db.Port == 0 {
		t.Errorf("expected populated host/port, got %q:%d", db.Host, db.Port)
	}
	if db.Password == "" {
		t.Error("expected a password on the catalog entry")
	}
}
