package reconcile

import (
	"context"
	"testing"

	"github.com/dirscansync/dirscansync/internal/model"
	"github.com/dirscansync/dirscansync/internal/store"
)

func withSyncViews(mem *store.Memory, db string) {
	mem.RegisterView(db, "sync", "check_for_delete", store.View{
		Map: func(doc map[string]interface{}) (interface{}, interface{}, bool) {
			status, _ := doc["status"].(map[string]interface{})
			if status == nil || status["state"] != "ok" {
				return nil, nil, false
			}
			return []interface{}{doc["host"], doc["path"], doc["name"]}, doc["datemodified"], true
		},
	})
	mem.RegisterView(db, "sync", "duplicate_files", store.View{
		Map: func(doc map[string]interface{}) (interface{}, interface{}, bool) {
			status, _ := doc["status"].(map[string]interface{})
			if status == nil || status["state"] != "ok" {
				return nil, nil, false
			}
			return []interface{}{doc["name"], doc["datemodified"], doc["checksum"], doc["size"], doc["host"]}, doc["path"], true
		},
	})
}

func TestResolveMarksDeletedWhenNoDuplicateFound(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	mem.CreateDB(ctx, "scandb-1")
	withSyncViews(mem, "scandb-1")

	file := &model.File{
		ID: "abc123", Host: "host-a", Path: "docs", Name: "a.txt",
		DateModified: 1000, Size: 5, Checksum: "deadbeef",
		Status: model.FileStatus{State: model.FileStatusOK},
	}
	mem.Put(ctx, "scandb-1", file)

	r := New(mem, "scandb-1")
	if err := r.Resolve(ctx, "host-a", []string{"docs/a.txt"}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	var reloaded model.File
	if err := mem.Get(ctx, "scandb-1", "abc123", &reloaded); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if reloaded.Status.State != model.FileStatusDeleted {
		t.Fatalf("Status.State = %q, want deleted", reloaded.Status.State)
	}
}

func TestResolveMarksMovedWhenDuplicateFound(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	mem.CreateDB(ctx, "scandb-1")
	withSyncViews(mem, "scandb-1")

	missing := &model.File{
		ID: "missing1", Host: "host-a", Path: "docs", Name: "a.txt",
		DateModified: 1000, Size: 5, Checksum: "deadbeef",
		Status: model.FileStatus{State: model.FileStatusOK},
	}
	mem.Put(ctx, "scandb-1", missing)

	movedTo := &model.File{
		ID: "movedto1", Host: "host-a", Path: "archive", Name: "a.txt",
		DateModified: 1000, Size: 5, Checksum: "deadbeef",
		Status: model.FileStatus{State: model.FileStatusOK},
	}
	mem.Put(ctx, "scandb-1", movedTo)

	r := New(mem, "scandb-1")
	if err := r.Resolve(ctx, "host-a", []string{"docs/a.txt"}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	var reloaded model.File
	mem.Get(ctx, "scandb-1", "missing1", &reloaded)
	if reloaded.Status.State != model.FileStatusMoved {
		t.Fatalf("Status.State = %q, want moved", reloaded.Status.State)
	}
	if reloaded.Status.Detail != "movedto1" {
		t.Fatalf("Status.Detail = %q, want movedto1 (the new document's id)", reloaded.Status.Detail)
	}
}
