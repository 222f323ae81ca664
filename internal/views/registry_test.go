package views

import (
	"context"
	"testing"

	"github.com/dirscansync/dirscansync/internal/store"
)

func TestEnsureScanViewsCreatesDesignDocs(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	if err := mem.CreateDB(ctx, "scandb-1"); err != nil {
		t.Fatalf("CreateDB: %v", err)
	}
	if err := EnsureScanViews(ctx, mem, "scandb-1"); err != nil {
		t.Fatalf("EnsureScanViews: %v", err)
	}

	var version versionDoc
	if err := mem.Get(ctx, "scandb-1", "scanversion", &version); err != nil {
		t.Fatalf("Get scanversion: %v", err)
	}
	if version.Current != scanVersion {
		t.Fatalf("Current = %d, want %d", version.Current, scanVersion)
	}

	var doc designDoc
	if err := mem.Get(ctx, "scandb-1", "_design/sync", &doc); err != nil {
		t.Fatalf("Get _design/sync: %v", err)
	}
	if _, ok := doc.Views["check_for_delete"]; !ok {
		t.Fatalf("expected check_for_delete view in _design/sync")
	}
}

func TestEnsureScanViewsIdempotent(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	mem.CreateDB(ctx, "scandb-1")
	if err := EnsureScanViews(ctx, mem, "scandb-1"); err != nil {
		t.Fatalf("first EnsureScanViews: %v", err)
	}
	if err := EnsureScanViews(ctx, mem, "scandb-1"); err != nil {
		t.Fatalf("second EnsureScanViews: %v", err)
	}

	var version versionDoc
	mem.Get(ctx, "scandb-1", "scanversion", &version)
	if len(version.History) != 0 {
		t.Fatalf("expected no history entries from a no-op re-run, got %v", version.History)
	}
}

func TestEnsureViewsMigratesDriftedSource(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	mem.CreateDB(ctx, "scandb-1")

	stale := &designDoc{ID: "_design/sync", Views: map[string]viewSource{
		"check_for_delete": {Map: "function(doc) { /* old */ }"},
	}}
	mem.Put(ctx, "scandb-1", stale)

	if err := EnsureScanViews(ctx, mem, "scandb-1"); err != nil {
		t.Fatalf("EnsureScanViews: %v", err)
	}

	var doc designDoc
	mem.Get(ctx, "scandb-1", "_design/sync", &doc)
	if doc.Views["check_for_delete"].Map == "function(doc) { /* old */ }" {
		t.Fatalf("expected drifted view source to be migrated")
	}
}
