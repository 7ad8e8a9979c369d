package db_test

import (
	"path/filepath"
	"testing"
	"time"

	"depictor/pkg/db"
)

func TestDB(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "db_test.db")

	d, err := db.Init(path)
	if err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	if d == nil {
		t.Fatal("Init() returned nil DB")
	}
	defer d.Close()

	// Migrations must be idempotent
	d2, err := db.Init(path)
	if err != nil {
		t.Fatalf("second Init() failed: %v", err)
	}
	d2.Close()
}

func TestPruneCache(t *testing.T) {
	tempDir := t.TempDir()
	d, err := db.Init(filepath.Join(tempDir, "prune_test.db"))
	if err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	defer d.Close()

	old := time.Now().Add(-48 * time.Hour).UTC().Format("2006-01-02 15:04:05")
	if _, err := d.Exec("INSERT INTO cache (key, value, created_at) VALUES (?, ?, ?)", "stale", []byte("x"), old); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Exec("INSERT INTO cache (key, value) VALUES (?, ?)", "fresh", []byte("y")); err != nil {
		t.Fatal(err)
	}

	if err := d.PruneCache(24 * time.Hour); err != nil {
		t.Fatalf("PruneCache failed: %v", err)
	}

	var n int
	if err := d.QueryRow("SELECT COUNT(*) FROM cache").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 cache row after prune, got %d", n)
	}
}
