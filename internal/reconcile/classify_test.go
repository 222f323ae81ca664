package reconcile

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dirscansync/dirscansync/internal/model"
	"github.com/dirscansync/dirscansync/internal/store"
)

func withClassifyViews(mem *store.Memory, db string) {
	mem.RegisterView(db, "sync", "source_files", store.View{
		Map: func(doc map[string]interface{}) (interface{}, interface{}, bool) {
			source, _ := doc["source"].(bool)
			good, _ := doc["goodscan"].(bool)
			if !source || !good {
				return nil, nil, false
			}
			return doc["IDprefix"], doc["datemodified"], true
		},
	})
	mem.RegisterView(db, "sync", "sync", store.View{
		Map: func(doc map[string]interface{}) (interface{}, interface{}, bool) {
			return []interface{}{doc["IDprefix"], doc["syncIDprefix"]}, doc["datemodified"], true
		},
	})
	mem.RegisterView(db, "problems", "problem_files", store.View{
		Map:    func(doc map[string]interface{}) (interface{}, interface{}, bool) { return nil, nil, false },
		Reduce: func(values []interface{}) interface{} { return float64(len(values)) },
	})
	mem.RegisterView(db, "rollups", "missing_files", store.View{
		Map:    func(doc map[string]interface{}) (interface{}, interface{}, bool) { return nil, nil, false },
		Reduce: func(values []interface{}) interface{} { return float64(len(values)) },
	})
}

func TestClassifyMatchesConvergedFiles(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	mem.CreateDB(ctx, "source-db")
	mem.CreateDB(ctx, "target-db")
	withClassifyViews(mem, "source-db")
	withClassifyViews(mem, "target-db")

	mem.Put(ctx, "source-db", &model.File{
		ID: "src1", IDPrefix: "prefixA", Source: true, GoodScan: true,
		Status: model.FileStatus{State: model.FileStatusOK},
	})
	mem.Put(ctx, "target-db", &model.File{
		ID: "tgt1", IDPrefix: "prefixB", SyncIDPrefix: "prefixA",
		Status: model.FileStatus{State: model.FileStatusOK},
	})

	got, err := Classify(ctx, mem, "source-db", "target-db")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	want := got
	want.InSync = 1
	want.Stale = nil
	want.Orphaned = nil

	if diff := cmp.Diff(want.InSync, got.InSync); diff != "" {
		t.Fatalf("InSync mismatch (-want +got):\n%s", diff)
	}
	if len(got.Stale) != 0 || len(got.Orphaned) != 0 {
		t.Fatalf("got %+v, want no stale/orphaned files", got)
	}
}

func TestClassifyReportsStaleWhenNoTargetMatch(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	mem.CreateDB(ctx, "source-db")
	mem.CreateDB(ctx, "target-db")
	withClassifyViews(mem, "source-db")
	withClassifyViews(mem, "target-db")

	mem.Put(ctx, "source-db", &model.File{
		ID: "src1", IDPrefix: "prefixA", Source: true, GoodScan: true,
		Status: model.FileStatus{State: model.FileStatusOK},
	})

	got, err := Classify(ctx, mem, "source-db", "target-db")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if got.InSync != 0 {
		t.Fatalf("InSync = %d, want 0", got.InSync)
	}
	if len(got.Stale) != 1 || got.Stale[0].SyncIDPrefix != "prefixA" {
		t.Fatalf("Stale = %+v, want one entry for prefixA", got.Stale)
	}
}
