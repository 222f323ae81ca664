// This file implements the dashboard read path described in SPEC_FULL.md
// §4.9: a read-only, view-driven cross-host classification, superseding the
// row-by-row legacy approach the distilled spec left as an open question.
package reconcile

import (
	"context"
	"fmt"

	"github.com/dirscansync/dirscansync/internal/store"
)

// Classification buckets a relationship's files by sync state as of one
// source run and one target run, per spec §4.9.
type Classification struct {
	InSync   int
	Stale    []StaleFile
	Orphaned []OrphanedFile
	Moved    int
	Problems int
}

// StaleFile is present at the source with no target file whose syncIDprefix
// matches its IDprefix. datemodified is not compared, so a target copy with
// an older datemodified than its source counts as in sync, not stale.
type StaleFile struct {
	SyncIDPrefix string
	SourcePath   string
}

// OrphanedFile exists at the target with no corresponding source file under
// the current relationship. Target documents of every status, including
// ones the Reconciler marked moved or deleted, take part in this check.
type OrphanedFile struct {
	SyncIDPrefix string
	TargetPath   string
}

// Classify computes a Classification for one source scan database and one
// target scan database, both already reconciled. source_files keys each
// source file on its own IDprefix; targetSyncPrefixes keys each target file
// on its syncIDprefix. Per invariant 3 those two quantities are equal for a
// converged file, so set membership between them is the cross-host join.
func Classify(ctx context.Context, client store.Client, sourceDB, targetDB string) (Classification, error) {
	sourceRows, err := client.View(ctx, sourceDB, "sync", "source_files", store.ViewQuery{})
	if err != nil {
		return Classification{}, fmt.Errorf("unable to query source files: %w", err)
	}

	targetPrefixes, err := targetSyncPrefixes(ctx, client, targetDB)
	if err != nil {
		return Classification{}, fmt.Errorf("unable to query target files: %w", err)
	}

	var result Classification
	sourcePrefixes := make(map[string]bool, len(sourceRows))

	for _, row := range sourceRows {
		srcIDPrefix, _ := row.Key.(string)
		sourcePrefixes[srcIDPrefix] = true

		if targetPrefixes[srcIDPrefix] {
			result.InSync++
		} else {
			result.Stale = append(result.Stale, StaleFile{SyncIDPrefix: srcIDPrefix})
		}
	}

	for prefix := range targetPrefixes {
		if !sourcePrefixes[prefix] {
			result.Orphaned = append(result.Orphaned, OrphanedFile{SyncIDPrefix: prefix})
		}
	}

	problemRows, err := client.View(ctx, sourceDB, "problems", "problem_files", store.ViewQuery{Reduce: true})
	if err == nil && len(problemRows) > 0 {
		if count, ok := problemRows[0].Value.(float64); ok {
			result.Problems = int(count)
		}
	}

	movedRows, err := client.View(ctx, sourceDB, "rollups", "missing_files", store.ViewQuery{
		StartKey: "moved", EndKey: "moved", Reduce: true, GroupLevel: 1,
	})
	if err == nil && len(movedRows) > 0 {
		if count, ok := movedRows[0].Value.(float64); ok {
			result.Moved = int(count)
		}
	}

	return result, nil
}

// targetSyncPrefixes returns the set of syncIDprefix values recorded for
// files in a target scan database. Per invariant 3, a target file's
// syncIDprefix equals its source counterpart's IDprefix, so this is exactly
// the set a source file's IDprefix must appear in to count as converged. The
// sync view's map emits [IDprefix, syncIDprefix]; the matching value is
// key[1], not the target's own IDprefix at key[0].
func targetSyncPrefixes(ctx context.Context, client store.Client, targetDB string) (map[string]bool, error) {
	rows, err := client.View(ctx, targetDB, "sync", "sync", store.ViewQuery{})
	if err != nil {
		return nil, err
	}
	prefixes := make(map[string]bool, len(rows))
	for _, row := range rows {
		key, ok := row.Key.([]interface{})
		if !ok || len(key) != 2 {
			continue
		}
		if syncIDPrefix, ok := key[1].(string); ok {
			prefixes[syncIDPrefix] = true
		}
	}
	return prefixes, nil
}
