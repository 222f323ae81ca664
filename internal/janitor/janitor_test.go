package janitor

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/dirscansync/dirscansync/internal/store"
	"github.com/dirscansync/dirscansync/internal/views"
)

func withRecentScansView(mem *store.Memory) {
	mem.RegisterView(mainDB, "runs", "recent_scans", store.View{
		Map: func(doc map[string]interface{}) (interface{}, interface{}, bool) {
			return nil, nil, false
		},
	})
}

func TestRunDeletesOldEmptyDatabase(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	mem.CreateDB(ctx, mainDB)
	withRecentScansView(mem)

	old := time.Now().Add(-48 * time.Hour).Unix()
	dbName := "scandb-" + strconv.FormatInt(old, 10)
	mem.CreateDB(ctx, dbName)
	if err := views.EnsureScanViews(ctx, mem, dbName); err != nil {
		t.Fatalf("EnsureScanViews: %v", err)
	}

	j := New(mem, nil)
	deleted, err := j.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}
	if exists, _ := mem.Exists(ctx, dbName); exists {
		t.Fatalf("expected %q to be deleted", dbName)
	}
}

func TestRunLeavesRecentEmptyDatabaseAlone(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	mem.CreateDB(ctx, mainDB)
	withRecentScansView(mem)

	recent := time.Now().Add(-1 * time.Hour).Unix()
	dbName := "scandb-" + strconv.FormatInt(recent, 10)
	mem.CreateDB(ctx, dbName)
	if err := views.EnsureScanViews(ctx, mem, dbName); err != nil {
		t.Fatalf("EnsureScanViews: %v", err)
	}

	j := New(mem, nil)
	deleted, err := j.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if deleted != 0 {
		t.Fatalf("deleted = %d, want 0", deleted)
	}
}

// TestRunLeavesDatabaseWithFileRecordsAlone guards against the empty-database
// predicate mistaking "only the seeded design and version documents" for
// "genuinely empty" versus "has file records but is merely old": a scan
// database with real file records, past both age thresholds but still
// referenced, must survive.
func TestRunLeavesDatabaseWithFileRecordsAlone(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	mem.CreateDB(ctx, mainDB)

	old := time.Now().Add(-240 * time.Hour).Unix()
	dbName := "scandb-" + strconv.FormatInt(old, 10)
	mem.CreateDB(ctx, dbName)
	if err := views.EnsureScanViews(ctx, mem, dbName); err != nil {
		t.Fatalf("EnsureScanViews: %v", err)
	}
	mem.Put(ctx, dbName, map[string]interface{}{"_id": "file1"})

	mem.RegisterView(mainDB, "runs", "recent_scans", store.View{
		Map: func(doc map[string]interface{}) (interface{}, interface{}, bool) {
			return nil, dbName, true
		},
	})
	mem.Put(ctx, mainDB, map[string]interface{}{"_id": "run1", "type": "scan"})

	j := New(mem, nil)
	deleted, err := j.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if deleted != 0 {
		t.Fatalf("deleted = %d, want 0 (database has file records and is still referenced)", deleted)
	}
	if exists, _ := mem.Exists(ctx, dbName); !exists {
		t.Fatalf("expected %q to survive", dbName)
	}
}
