// Package reconcile implements the Reconciler (spec §4.7): resolving each
// file the Scanner reported missing from a directory into either "moved"
// (a file of the same name/size/checksum/datemodified reappeared elsewhere
// under the same host) or "deleted" (no such file exists), and the
// dashboard's read-only cross-host Classify operation (spec §4.9).
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/dirscansync/dirscansync/internal/model"
	"github.com/dirscansync/dirscansync/internal/store"
)

// Reconciler resolves missing-file reports against one scan database.
type Reconciler struct {
	client store.Client
	db     string
}

// New creates a Reconciler operating against db via client.
func New(client store.Client, db string) *Reconciler {
	return &Reconciler{client: client, db: db}
}

// Resolve classifies each missing path (relative to the scan root) reported
// for host, writing a "moved" or "deleted" FileStatus onto the corresponding
// File document. missing entries are join keys, not ids: the document to
// update is looked up by its directory+name using the check_for_delete view
// (the same view the Scanner used to detect the absence), since the File
// document's own id already encodes the now-stale mtime.
func (r *Reconciler) Resolve(ctx context.Context, host string, missing []string) error {
	for _, path := range missing {
		dir, name := splitPath(path)
		rows, err := r.client.View(ctx, r.db, "sync", "check_for_delete", store.ViewQuery{
			StartKey: []interface{}{host, dir, name},
			EndKey:   []interface{}{host, dir, name},
		})
		if err != nil {
			return fmt.Errorf("unable to look up missing file %q: %w", path, err)
		}
		if len(rows) == 0 {
			continue
		}

		var file model.File
		doc, err := r.client.AllByIDs(ctx, r.db, []string{rows[0].ID})
		if err != nil {
			return fmt.Errorf("unable to load missing file %q: %w", path, err)
		}
		raw, ok := doc[rows[0].ID]
		if !ok {
			continue
		}
		if err := decode(raw, &file); err != nil {
			return fmt.Errorf("unable to decode file document %q: %w", rows[0].ID, err)
		}

		status, err := r.classifyMissing(ctx, &file)
		if err != nil {
			return fmt.Errorf("unable to classify %q: %w", path, err)
		}
		file.Status = status
		if _, err := r.client.Put(ctx, r.db, &file); err != nil {
			return fmt.Errorf("unable to save resolution for %q: %w", path, err)
		}
	}
	return nil
}

// classifyMissing implements spec §4.7's resolution rule: search
// duplicate_files, keyed by [name, datemodified, checksum, size, host], for
// any other document sharing file's name, mtime, checksum, size, and host.
// A match elsewhere is a move, recorded with the matching document's id as
// its detail; no match is a deletion.
func (r *Reconciler) classifyMissing(ctx context.Context, file *model.File) (model.FileStatus, error) {
	key := []interface{}{file.Name, float64(file.DateModified), file.Checksum, float64(file.Size), file.Host}
	rows, err := r.client.View(ctx, r.db, "sync", "duplicate_files", store.ViewQuery{
		StartKey: key,
		EndKey:   key,
	})
	if err != nil {
		return model.FileStatus{}, err
	}

	for _, row := range rows {
		if row.ID == file.ID {
			continue
		}
		return model.FileStatus{State: model.FileStatusMoved, Detail: row.ID}, nil
	}

	return model.FileStatus{State: model.FileStatusDeleted, Detail: fmt.Sprintf("%d", time.Now().Unix())}, nil
}

func splitPath(path string) (dir, name string) {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i], path[i+1:]
		}
	}
	return "", path
}

func decode(m map[string]interface{}, out *model.File) error {
	return mapToFile(m, out)
}
