// Package store abstracts the JSON document store per spec §4.3 and §9
// ("Polymorphism over the store"): the core depends only on the Client
// interface defined here, never on a concrete wire protocol, so that tests
// can substitute an in-memory implementation and the real backend (package
// couchkit) is a single adapter.
package store

import "context"

// ErrNotFound is returned by Get when no document with the given id exists.
var ErrNotFound = errorString("document not found")

type errorString string

func (e errorString) Error() string { return string(e) }

// BulkResult reports the per-document outcome of a Bulk call.
type BulkResult struct {
	ID    string
	Rev   string
	OK    bool
	Error string
}

// ViewQuery describes a map/reduce view query with CouchDB-style range
// semantics: StartKey/EndKey bound a (possibly composite) key range,
// Reduce/GroupLevel control aggregation, Limit bounds result size,
// Descending reverses iteration order, and IncludeDocs inlines full
// documents alongside each row.
type ViewQuery struct {
	StartKey     interface{}
	EndKey       interface{}
	Reduce       bool
	GroupLevel   int
	Limit        int
	Descending   bool
	IncludeDocs  bool
}

// ViewRow is one row of a view query result. Key and Value are arbitrary
// JSON-compatible values (the view's emitted key/value); Doc is populated
// only when IncludeDocs was requested.
type ViewRow struct {
	Key   interface{}
	Value interface{}
	ID    string
	Doc   map[string]interface{}
}

// HighKey is the sentinel CouchDB/Cloudant object greater than any
// string or number, used to terminate open-ended view ranges (spec §4.3:
// "the sentinel {} ... terminates open ranges").
var HighKey = map[string]interface{}{}

// Client is the contract the core assumes of the document store.
type Client interface {
	// Get fetches one document by id from db. It returns ErrNotFound if no
	// such document exists.
	Get(ctx context.Context, db, id string, out interface{}) error

	// Put creates or updates a document by its _id, returning the new
	// revision.
	Put(ctx context.Context, db string, doc interface{}) (rev string, err error)

	// Bulk performs an atomic per-document create/update of docs, returning
	// one BulkResult per input document in the same order. Partial failure
	// is reported per element, never as a single all-or-nothing error.
	Bulk(ctx context.Context, db string, docs []interface{}) ([]BulkResult, error)

	// AllByIDs performs a batched lookup of the given ids, returning only
	// the documents that were found (missing ids are simply absent from the
	// result, not reported as errors).
	AllByIDs(ctx context.Context, db string, ids []string) (map[string]map[string]interface{}, error)

	// View queries a predefined map/reduce view.
	View(ctx context.Context, db, designDoc, view string, query ViewQuery) ([]ViewRow, error)

	// CreateDB creates a new database. It returns nil if the database
	// already exists (the spec's "attempting to create an already-existing
	// scan database reuses it").
	CreateDB(ctx context.Context, name string) error

	// DeleteDB deletes a database.
	DeleteDB(ctx context.Context, name string) error

	// ListDBs lists all database names.
	ListDBs(ctx context.Context) ([]string, error)

	// Exists reports whether a database exists.
	Exists(ctx context.Context, db string) (bool, error)

	// Count returns the number of documents in a database, used by the
	// Janitor to decide whether a scan database "contains no file records".
	Count(ctx context.Context, db string) (int, error)
}
