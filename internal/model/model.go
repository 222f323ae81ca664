// Package model defines the JSON document shapes that make up the data
// contract described in spec §3: Host and Relationship and Run documents
// (which live in the MAIN database) and File documents (which live in a scan
// database). Field names and JSON tags are part of the wire contract between
// both hosts and the dashboard and must not be renamed casually.
package model

import "strconv"

// DocType discriminates documents sharing a database, since the store is a
// generic JSON document store rather than one with native schemas or
// per-type collections.
type DocType string

const (
	// DocTypeHost marks a Host document.
	DocTypeHost DocType = "host"
	// DocTypeRelationship marks a Relationship document.
	DocTypeRelationship DocType = "relationship"
	// DocTypeScan marks a Run document.
	DocTypeScan DocType = "scan"
)

// Host identifies one side of a relationship. Its store-assigned _id is
// immutable after creation.
type Host struct {
	ID       string  `json:"_id,omitempty"`
	Rev      string  `json:"_rev,omitempty"`
	Type     DocType `json:"type"`
	Hostname string  `json:"hostname"`
	IPv4     string  `json:"ip4"`
	IPv6     string  `json:"ip6"`
}

// Relationship configures a one-directional sync between a source and target
// directory. It is created by setup (out of scope) and referenced, never
// mutated, by scans.
type Relationship struct {
	ID            string   `json:"_id,omitempty"`
	Rev           string   `json:"_rev,omitempty"`
	Type          DocType  `json:"type"`
	Name          string   `json:"name"`
	Active        bool     `json:"active"`
	SourceHost    string   `json:"sourcehost"`
	TargetHost    string   `json:"targethost"`
	SourceDir     string   `json:"sourcedir"`
	TargetDir     string   `json:"targetdir"`
	RsyncFlags    []string `json:"rsyncflags"`
	ExcludedFiles []string `json:"excludedfiles"`
}

// Run records one complete walk performed by one host at one time. Its _id
// is the run id. Ended is zero and Success is false until the scan
// finishes (invariant 5: Success true implies Ended > 0 and ErrorCount 0).
type Run struct {
	ID             string  `json:"_id,omitempty"`
	Rev            string  `json:"_rev,omitempty"`
	Type           DocType `json:"type"`
	HostID         string  `json:"hostID"`
	Relationship   string  `json:"relationship"`
	Source         bool    `json:"source"`
	Started        int64   `json:"started"`
	Ended          int64   `json:"ended"`
	Success        bool    `json:"success"`
	ErrorCount     int     `json:"errorcount"`
	FileCount      int     `json:"filecount"`
	DirectorySize  int64   `json:"directorysize"`
	Directory      string  `json:"directory"`
	Database       string  `json:"database"`
	PreviousScanID string  `json:"previousscanID"`
	FirstScan      bool    `json:"firstscan"`
	DeepScan       bool    `json:"deepscan"`
}

// FileStatusState enumerates the lifecycle states of a File document's
// status field.
type FileStatusState string

const (
	// FileStatusOK indicates the file matches the filesystem as of the last
	// scan that touched it.
	FileStatusOK FileStatusState = "ok"
	// FileStatusError indicates a stat or encoding failure.
	FileStatusError FileStatusState = "error"
	// FileStatusMoved indicates the Reconciler resolved a missing file to a
	// new location.
	FileStatusMoved FileStatusState = "moved"
	// FileStatusDeleted indicates the Reconciler could not find a new
	// location for a missing file.
	FileStatusDeleted FileStatusState = "deleted"
)

// FileStatus carries the classification state of a File document plus
// state-specific detail: the id of the document found at the new location
// for moved, an epoch stamp for deleted,
// or a human string (e.g. "possibly corrupted") otherwise.
type FileStatus struct {
	State  FileStatusState `json:"state"`
	Detail string          `json:"detail"`
}

// File is the atomic unit of reconciliation: one document per file seen by
// one host's scan at one mtime.
type File struct {
	ID           string `json:"_id"`
	Rev          string `json:"_rev,omitempty"`
	IDPrefix     string `json:"IDprefix"`
	SyncIDPrefix string `json:"syncIDprefix"`
	SyncPath     string `json:"syncpath"`

	Host         string `json:"host"`
	Relationship string `json:"relationship"`
	ScanID       string `json:"scanID"`
	Source       bool   `json:"source"`

	Path            string `json:"path"`
	Name            string `json:"name"`
	DateScanned     int64  `json:"datescanned"`
	Size            int64  `json:"size"`
	PermissionsUNIX uint32 `json:"permissionsUNIX"`
	DateModified    int64  `json:"datemodified"`
	Owner           uint32 `json:"owner"`
	Group           uint32 `json:"group"`

	GoodScan bool       `json:"goodscan"`
	Checksum string     `json:"checksum,omitempty"`
	Status   FileStatus `json:"status"`
}

// DriftField selects which field is compared during the Scanner's
// compare-and-insert pass to detect in-place corruption: the checksum under
// deep scan, otherwise size (§4.6 step 4).
func (f *File) DriftField(deepScan bool) string {
	if deepScan {
		return f.Checksum
	}
	return strconv.FormatInt(f.Size, 10)
}

// SetID and SetRev let store.Client populate a document's assigned id and
// revision in place after a Put or Bulk call.

func (h *Host) SetID(id string)  { h.ID = id }
func (h *Host) SetRev(rev string) { h.Rev = rev }

func (r *Relationship) SetID(id string)  { r.ID = id }
func (r *Relationship) SetRev(rev string) { r.Rev = rev }

func (r *Run) SetID(id string)  { r.ID = id }
func (r *Run) SetRev(rev string) { r.Rev = rev }

func (f *File) SetID(id string)  { f.ID = id }
func (f *File) SetRev(rev string) { f.Rev = rev }
