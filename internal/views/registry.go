// Package views declares the design documents (map/reduce view definitions)
// the Scanner and Reconciler depend upon, as data rather than as scattered
// literal strings, per spec §9 ("View definitions embedded as source. Keep
// them in the ViewRegistry as data"). EnsureViews compares the registry
// against what is deployed and migrates in place.
package views

import (
	"context"
	"fmt"

	"github.com/dirscansync/dirscansync/internal/store"
)

// Definition is one view within one design document: a name, the
// design-document it belongs to, and its map/reduce source (as the real
// store's query engine would interpret it).
type Definition struct {
	DesignDoc string
	View      string
	Map       string
	Reduce    string
}

// scanVersion is the current version stamp for the scan-database view set.
// Bump this whenever a Definition's Map or Reduce source changes; EnsureViews
// uses it to decide whether an already-deployed scanversion document is
// stale (§8 testable property 8).
const scanVersion = 4

// mainVersion is the current version stamp for the main-database view set.
const mainVersion = 1

// MainViews are the design documents that live in the MAIN database.
var MainViews = []Definition{
	{
		DesignDoc: "runs",
		View:      "recent_scans",
		Map:       `function(doc) { if (doc.type === "scan") { emit([doc.hostID, doc.success, doc.started], doc.database); } }`,
	},
}

// ScanViews are the design documents that live in each scan database.
var ScanViews = []Definition{
	{
		DesignDoc: "problems",
		View:      "problem_files",
		Map:       `function(doc) { if (doc.status && doc.status.state === "error") { emit([doc.scanID, doc.path, doc.name], doc.status.detail); } }`,
		Reduce:    "_count",
	},
	{
		DesignDoc: "sync",
		View:      "source_files",
		Map:       `function(doc) { if (doc.source && doc.goodscan) { emit(doc.IDprefix, doc.datemodified); } }`,
	},
	{
		DesignDoc: "sync",
		View:      "check_for_delete",
		Map:       `function(doc) { if (doc.status && doc.status.state === "ok") { emit([doc.host, doc.path, doc.name], doc.datemodified); } }`,
	},
	{
		DesignDoc: "sync",
		View:      "duplicate_files",
		Map:       `function(doc) { if (doc.status && doc.status.state === "ok" && doc.checksum) { emit([doc.name, doc.datemodified, doc.checksum, doc.size, doc.host], doc.path); } }`,
	},
	{
		DesignDoc: "sync",
		View:      "sync",
		Map:       `function(doc) { emit([doc.IDprefix, doc.syncIDprefix], doc.datemodified); }`,
	},
	{
		DesignDoc: "rollups",
		View:      "file_statuses",
		Map:       `function(doc) { if (doc.status) { emit(doc.status.state, 1); } }`,
		Reduce:    "_count",
	},
	{
		DesignDoc: "rollups",
		View:      "file_types",
		Map:       `function(doc) { var i = doc.name.lastIndexOf("."); emit(i === -1 ? "" : doc.name.substring(i+1), 1); }`,
		Reduce:    "_count",
	},
	{
		DesignDoc: "rollups",
		View:      "missing_files",
		Map:       `function(doc) { if (doc.status && (doc.status.state === "moved" || doc.status.state === "deleted")) { emit(doc.status.state, 1); } }`,
		Reduce:    "_count",
	},
}

// versionDoc is the scanversion/mainversion document recording the deployed
// view version and its upgrade history.
type versionDoc struct {
	ID      string `json:"_id,omitempty"`
	Rev     string `json:"_rev,omitempty"`
	Current int    `json:"current"`
	History []int  `json:"history"`
}

func (v *versionDoc) SetID(id string)   { v.ID = id }
func (v *versionDoc) SetRev(rev string) { v.Rev = rev }

// designDoc is the JSON shape of a CouchDB-style design document: one
// document per DesignDoc name, with one entry in Views per Definition that
// shares that name.
type designDoc struct {
	ID    string                `json:"_id,omitempty"`
	Rev   string                `json:"_rev,omitempty"`
	Views map[string]viewSource `json:"views"`
}

func (d *designDoc) SetID(id string)   { d.ID = id }
func (d *designDoc) SetRev(rev string) { d.Rev = rev }

type viewSource struct {
	Map    string `json:"map"`
	Reduce string `json:"reduce,omitempty"`
}

// group partitions definitions by design document name.
func group(defs []Definition) map[string][]Definition {
	byDoc := make(map[string][]Definition)
	for _, d := range defs {
		byDoc[d.DesignDoc] = append(byDoc[d.DesignDoc], d)
	}
	return byDoc
}

// EnsureViews ensures that every design document named by defs exists in db
// and matches the registry's current map/reduce source, bumping the
// version-tag document (named versionDocID) when an upgrade is performed.
// Unknown design documents are created; known ones with drifted source are
// updated in place. It never aborts an in-progress scan over a drift finding
// (§7: "Upgrade in place; do not abort scans in progress").
func EnsureViews(ctx context.Context, client store.Client, db, versionDocID string, version int, defs []Definition) error {
	var deployed versionDoc
	err := client.Get(ctx, db, versionDocID, &deployed)
	if err != nil && err != store.ErrNotFound {
		return fmt.Errorf("unable to load version document: %w", err)
	}

	upgraded := false
	for name, group := range group(defs) {
		want := &designDoc{ID: "_design/" + name, Views: make(map[string]viewSource)}
		for _, d := range group {
			want.Views[d.View] = viewSource{Map: d.Map, Reduce: d.Reduce}
		}

		var existing designDoc
		getErr := client.Get(ctx, db, want.ID, &existing)
		if getErr == store.ErrNotFound {
			if _, err := client.Put(ctx, db, want); err != nil {
				return fmt.Errorf("unable to create design document %q: %w", name, err)
			}
			upgraded = true
			continue
		} else if getErr != nil {
			return fmt.Errorf("unable to load design document %q: %w", name, getErr)
		}

		if !viewsEqual(existing.Views, want.Views) {
			want.Rev = existing.Rev
			want.ID = existing.ID
			if _, err := client.Put(ctx, db, want); err != nil {
				return fmt.Errorf("unable to update design document %q: %w", name, err)
			}
			upgraded = true
		}
	}

	if deployed.Current < version {
		if deployed.ID == "" {
			// No version document was deployed, so there is no old value to
			// record in History.
			deployed.ID = versionDocID
		} else {
			deployed.History = append(deployed.History, deployed.Current)
		}
		deployed.Current = version
		if _, err := client.Put(ctx, db, &deployed); err != nil {
			return fmt.Errorf("unable to update version document: %w", err)
		}
		upgraded = true
	}

	_ = upgraded
	return nil
}

func viewsEqual(a, b map[string]viewSource) bool {
	if len(a) != len(b) {
		return false
	}
	for name, av := range a {
		bv, ok := b[name]
		if !ok || av.Map != bv.Map || av.Reduce != bv.Reduce {
			return false
		}
	}
	return true
}

// EnsureMainViews ensures the main database's design documents and version
// stamp are up to date.
func EnsureMainViews(ctx context.Context, client store.Client, mainDB string) error {
	return EnsureViews(ctx, client, mainDB, "mainversion", mainVersion, MainViews)
}

// EnsureScanViews ensures a scan database's design documents and version
// stamp are up to date.
func EnsureScanViews(ctx context.Context, client store.Client, scanDB string) error {
	return EnsureViews(ctx, client, scanDB, "scanversion", scanVersion, ScanViews)
}

// SeededScanDocumentCount is the number of documents EnsureScanViews seeds
// into a freshly created scan database: one design document per distinct
// DesignDoc name in ScanViews, plus the scanversion document itself. A scan
// database holding no more than this many documents holds no file records.
func SeededScanDocumentCount() int {
	return len(group(ScanViews)) + 1
}
