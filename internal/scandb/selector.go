// Package scandb implements the ScanDBSelector (spec §4.5): the logic a
// scan uses to decide which scan database to write its File documents into
// before it starts walking.
package scandb

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/dirscansync/dirscansync/internal/model"
	"github.com/dirscansync/dirscansync/internal/store"
	"github.com/dirscansync/dirscansync/internal/views"
)

const mainDB = "dirscansync"

// Selection is the outcome of choosing a scan database: its name and
// whether it was newly created by this call. A newly created database has
// already been confirmed visible and had its views seeded by Select.
type Selection struct {
	Database string
	Created  bool
}

// Select implements the three-way choice from spec §4.5: reuse the peer
// host's most recent database for this relationship if one exists and is
// still open, else reuse this host's own previous database for the same
// relationship, else roll over to a freshly named database.
//
// hostID identifies the host performing this scan; peerHostID is the other
// side of the relationship; relationship is the relationship id both scans
// share.
func Select(ctx context.Context, client store.Client, hostID, peerHostID, relationship string) (Selection, error) {
	if db, ok, err := mostRecentDatabase(ctx, client, peerHostID, relationship); err != nil {
		return Selection{}, err
	} else if ok {
		return Selection{Database: db}, nil
	}

	if db, ok, err := mostRecentDatabase(ctx, client, hostID, relationship); err != nil {
		return Selection{}, err
	} else if ok {
		return Selection{Database: db}, nil
	}

	return rollover(ctx, client)
}

// mostRecentDatabase returns the database named by the most recent scan run
// belonging to hostID/relationship, per the recent_scans view (keyed by
// [hostID, success, started]). Only successful runs are eligible for reuse:
// a failed run may have left its database in an inconsistent state.
func mostRecentDatabase(ctx context.Context, client store.Client, hostID, relationship string) (string, bool, error) {
	rows, err := client.View(ctx, mainDB, "runs", "recent_scans", store.ViewQuery{
		StartKey:   []interface{}{hostID, true, store.HighKey},
		EndKey:     []interface{}{hostID, true, nil},
		Descending: true,
		Limit:      1,
		IncludeDocs: true,
	})
	if err != nil {
		return "", false, fmt.Errorf("unable to query recent scans: %w", err)
	}
	if len(rows) == 0 {
		return "", false, nil
	}

	database, _ := rows[0].Value.(string)
	if database == "" {
		return "", false, nil
	}

	var doc model.Run
	if rows[0].Doc != nil {
		data, _ := toRun(rows[0].Doc)
		doc = data
	}
	if doc.Relationship != "" && doc.Relationship != relationship {
		return "", false, nil
	}

	exists, err := client.Exists(ctx, database)
	if err != nil {
		return "", false, fmt.Errorf("unable to check database existence: %w", err)
	}
	if !exists {
		return "", false, nil
	}

	return database, true, nil
}

func toRun(doc map[string]interface{}) (model.Run, error) {
	var run model.Run
	relationship, _ := doc["relationship"].(string)
	run.Relationship = relationship
	return run, nil
}

// creationPollTimeout bounds how long rollover waits for a freshly created
// database to become visible to subsequent reads, per spec §4.5 ("poll,
// bounded, for the new database to become visible before returning").
const creationPollTimeout = 30 * time.Second

// rollover creates a new scan database named for the current time and polls
// until the store confirms it exists, then seeds its views.
func rollover(ctx context.Context, client store.Client) (Selection, error) {
	name := fmt.Sprintf("scandb-%d", nowUnix())
	if err := client.CreateDB(ctx, name); err != nil {
		return Selection{}, fmt.Errorf("unable to create scan database %q: %w", name, err)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 20),
		ctx,
	)

	confirmed := false
	operation := func() error {
		exists, err := client.Exists(ctx, name)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("database %q not yet visible", name)
		}
		confirmed = true
		return nil
	}

	pollCtx, cancel := context.WithTimeout(ctx, creationPollTimeout)
	defer cancel()
	if err := backoff.Retry(operation, backoff.WithContext(policy, pollCtx)); err != nil && !confirmed {
		return Selection{}, fmt.Errorf("timed out waiting for database %q to become visible: %w", name, err)
	}

	if err := views.EnsureScanViews(ctx, client, name); err != nil {
		return Selection{}, fmt.Errorf("unable to seed views in %q: %w", name, err)
	}

	return Selection{Database: name, Created: true}, nil
}

// nowUnix is overridden in tests to keep database names deterministic.
var nowUnix = func() int64 { return time.Now().Unix() }
