package scandb

import (
	"context"
	"testing"

	"github.com/dirscansync/dirscansync/internal/store"
)

func withRecentScansView(mem *store.Memory) {
	mem.RegisterView(mainDB, "runs", "recent_scans", store.View{
		Map: func(doc map[string]interface{}) (interface{}, interface{}, bool) {
			if doc["type"] != "scan" {
				return nil, nil, false
			}
			hostID, _ := doc["hostID"].(string)
			success, _ := doc["success"].(bool)
			started, _ := doc["started"].(float64)
			return []interface{}{hostID, success, started}, doc["database"], true
		},
	})
}

func seedRun(t *testing.T, ctx context.Context, mem *store.Memory, hostID, relationship, database string, success bool) {
	t.Helper()
	doc := map[string]interface{}{
		"type":         "scan",
		"hostID":       hostID,
		"relationship": relationship,
		"database":     database,
		"success":      success,
		"started":      float64(1000),
	}
	if _, err := mem.Put(ctx, mainDB, doc); err != nil {
		t.Fatalf("seed run: %v", err)
	}
}

func TestSelectReusesPeerDatabase(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	mem.CreateDB(ctx, mainDB)
	withRecentScansView(mem)
	mem.CreateDB(ctx, "scandb-peer")
	seedRun(t, ctx, mem, "peer-host", "rel-1", "scandb-peer", true)

	sel, err := Select(ctx, mem, "this-host", "peer-host", "rel-1")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if sel.Database != "scandb-peer" || sel.Created {
		t.Fatalf("got %+v, want reuse of scandb-peer", sel)
	}
}

func TestSelectRollsOverWhenNothingToReuse(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	mem.CreateDB(ctx, mainDB)
	withRecentScansView(mem)

	sel, err := Select(ctx, mem, "this-host", "peer-host", "rel-1")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if !sel.Created {
		t.Fatalf("expected a freshly created database, got %+v", sel)
	}
	exists, _ := mem.Exists(ctx, sel.Database)
	if !exists {
		t.Fatalf("rolled-over database %q does not exist", sel.Database)
	}
}
