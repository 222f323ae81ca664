// Package janitor implements the Janitor (spec §4.8): periodic cleanup of
// scan databases that have outlived their usefulness. Adapted from the
// teacher's age-threshold enumerate-and-delete housekeeping idiom, applied
// here to scan databases instead of session checkpoints.
package janitor

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dirscansync/dirscansync/internal/store"
	"github.com/dirscansync/dirscansync/internal/views"
	"github.com/dirscansync/dirscansync/pkg/logging"
)

const (
	// EmptyDatabaseAge is the minimum age of an empty scan database before
	// the Janitor will delete it, per spec §4.8.
	EmptyDatabaseAge = 24 * time.Hour
	// UnreferencedDatabaseAge is the minimum age of a scan database no
	// longer referenced by any Run document before the Janitor will delete
	// it, per spec §4.8.
	UnreferencedDatabaseAge = 7 * 24 * time.Hour

	mainDB        = "dirscansync"
	scanDBPrefix  = "scandb-"
)

// Janitor removes scan databases that are empty or unreferenced past their
// respective age thresholds.
type Janitor struct {
	client store.Client
	logger *logging.Logger
	now    func() time.Time
}

// New creates a Janitor operating against client.
func New(client store.Client, logger *logging.Logger) *Janitor {
	return &Janitor{client: client, logger: logger, now: time.Now}
}

// Run performs one cleanup pass and returns the number of databases deleted.
func (j *Janitor) Run(ctx context.Context) (int, error) {
	names, err := j.client.ListDBs(ctx)
	if err != nil {
		return 0, fmt.Errorf("unable to list databases: %w", err)
	}

	referenced, err := j.referencedDatabases(ctx)
	if err != nil {
		return 0, fmt.Errorf("unable to determine referenced databases: %w", err)
	}

	deleted := 0
	for _, name := range names {
		if !strings.HasPrefix(name, scanDBPrefix) {
			continue
		}

		age, ok := j.age(name)
		if !ok {
			continue
		}

		count, err := j.client.Count(ctx, name)
		if err != nil {
			j.logger.Warnf("unable to count documents in %q: %v", name, err)
			continue
		}

		switch {
		case count <= views.SeededScanDocumentCount() && age >= EmptyDatabaseAge:
			j.logger.Infof("deleting empty scan database %q (age %s)", name, age)
		case !referenced[name] && age >= UnreferencedDatabaseAge:
			j.logger.Infof("deleting unreferenced scan database %q (age %s)", name, age)
		default:
			continue
		}

		if err := j.client.DeleteDB(ctx, name); err != nil {
			j.logger.Errorf("unable to delete database %q: %v", name, err)
			continue
		}
		deleted++
	}

	return deleted, nil
}

// age parses the unix-seconds timestamp embedded in a scandb-<seconds> name
// and returns how long ago that was.
func (j *Janitor) age(name string) (time.Duration, bool) {
	seconds, err := strconv.ParseInt(strings.TrimPrefix(name, scanDBPrefix), 10, 64)
	if err != nil {
		return 0, false
	}
	return j.now().Sub(time.Unix(seconds, 0)), true
}

// referencedDatabases returns the set of scan database names named by any
// Run document in the main database, via the recent_scans view. That view
// indexes every Run document whatever its success flag, so a database
// referenced only by a failed run still counts as referenced.
func (j *Janitor) referencedDatabases(ctx context.Context) (map[string]bool, error) {
	rows, err := j.client.View(ctx, mainDB, "runs", "recent_scans", store.ViewQuery{IncludeDocs: true})
	if err != nil {
		return nil, err
	}
	referenced := make(map[string]bool, len(rows))
	for _, row := range rows {
		if database, ok := row.Value.(string); ok && database != "" {
			referenced[database] = true
		}
	}
	return referenced, nil
}
