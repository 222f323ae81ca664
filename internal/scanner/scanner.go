// Package scanner implements the Scanner component (spec §4.6): a
// depth-first, bottom-up walk of one directory tree that records a File
// document per entry into a scan database, flags files whose metadata
// drifted since the previous scan with unchanged identity as possibly
// corrupted, and detects files present in the previous scan of the same
// directory but absent from this one.
package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/dirscansync/dirscansync/internal/identity"
	"github.com/dirscansync/dirscansync/internal/model"
	"github.com/dirscansync/dirscansync/internal/probe"
	"github.com/dirscansync/dirscansync/internal/store"
	"github.com/dirscansync/dirscansync/pkg/logging"
)

// DefaultBatchThreshold is the number of pending File documents the Scanner
// accumulates before flushing a batch, per spec §4.6 ("Threshold default
// 2000, configurable").
const DefaultBatchThreshold = 2000

// Config configures one Scanner run.
type Config struct {
	// Host is this host's identifier, stamped onto every File document.
	Host string
	// Relationship is the relationship id this scan belongs to.
	Relationship string
	// Source indicates whether this host is the relationship's source (vs.
	// target) side.
	Source bool
	// PeerHost is the other side of the relationship, used to compute
	// SyncIDPrefix for cross-host joins.
	PeerHost string
	// Root is the absolute path of the directory to walk.
	Root string
	// Excludes is a list of substrings; any path containing one is skipped
	// entirely (directories are pruned, files are omitted), per §4.6 step 1.
	Excludes []string
	// DeepScan enables content checksumming (and checksum-based drift
	// detection) instead of size-based drift detection.
	DeepScan bool
	// FirstScan, when true, skips the compare-and-insert pipeline entirely
	// and unconditionally bulk-inserts every File document (§4.6 step 3:
	// "On a first scan, skip comparison; every file is new.").
	FirstScan bool
	// PreviousScanID is the prior Run id for this host+relationship. When it
	// is empty the missing-file check is skipped; its value is not used to
	// scope the check_for_delete queries, which cover every "ok" document
	// for the host and directory in the scan database.
	PreviousScanID string
	// BatchThreshold overrides DefaultBatchThreshold when positive.
	BatchThreshold int
}

// Result summarizes a completed scan, the fields folded back into the Run
// document by the caller.
type Result struct {
	FileCount     int
	ErrorCount    int
	DirectorySize int64
	MissingPaths  []string
}

// Scanner walks one directory tree and records File documents into db via
// client.
type Scanner struct {
	client store.Client
	db     string
	config Config
	logger *logging.Logger

	pending []interface{}
	result  Result

	// seenInDir tracks, per directory, the set of names found in this pass,
	// so that after finishing a directory its previous-scan membership can be
	// diffed against it (§4.6 step 5).
	seenInDir map[string]map[string]bool
}

// New creates a Scanner that will write into db via client.
func New(client store.Client, db string, config Config, logger *logging.Logger) *Scanner {
	if config.BatchThreshold <= 0 {
		config.BatchThreshold = DefaultBatchThreshold
	}
	return &Scanner{
		client:    client,
		db:        db,
		config:    config,
		logger:    logger,
		seenInDir: make(map[string]map[string]bool),
	}
}

// Run performs the walk to completion, flushing any remaining batch, and
// returns the accumulated Result.
func (s *Scanner) Run(ctx context.Context) (Result, error) {
	if err := s.walk(ctx, s.config.Root); err != nil {
		return s.result, err
	}
	if err := s.flush(ctx); err != nil {
		return s.result, err
	}
	if !s.config.FirstScan {
		if err := s.detectMissing(ctx, s.config.Root); err != nil {
			return s.result, err
		}
	}
	return s.result, nil
}

// excluded reports whether path should be skipped entirely, per the
// substring-match semantics of spec §4.6 step 1 ("excludedfiles ... any path
// containing one of these substrings is skipped").
func (s *Scanner) excluded(path string) bool {
	for _, substr := range s.config.Excludes {
		if substr != "" && strings.Contains(path, substr) {
			return true
		}
	}
	return false
}

// walk recursively visits dir bottom-up: subdirectories are fully processed
// before dir's own files are recorded, matching the teacher's depth-first
// traversal idiom. walk does no missing-file detection itself; it records
// each directory's file names in seenInDir, and detectMissing checks every
// visited directory once the whole walk has finished.
func (s *Scanner) walk(ctx context.Context, dir string) error {
	if s.excluded(dir) {
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		s.logger.Errorf("unable to read directory %q: %v", dir, err)
		s.result.ErrorCount++
		return nil
	}

	names := make(map[string]bool, len(entries))
	var files []string

	for _, entry := range entries {
		full := filepath.Join(dir, entry.Name())
		if s.excluded(full) {
			continue
		}

		if entry.IsDir() {
			if err := s.walk(ctx, full); err != nil {
				return err
			}
			continue
		}

		files = append(files, entry.Name())
	}

	for _, name := range files {
		names[name] = true
		if err := s.visit(ctx, filepath.Join(dir, name)); err != nil {
			return err
		}
	}

	s.seenInDir[dir] = names
	return nil
}

// visit probes one file and stages it into the current batch.
func (s *Scanner) visit(ctx context.Context, path string) error {
	relative := s.relativePath(path)
	normalized := norm.NFC.String(relative)

	stat, statErr := probe.Stat(path)
	if statErr != nil {
		s.logger.Warnf("unable to stat %q: %s", path, statErr.Message)
		s.stageError(path, normalized, statErr.Message)
		return s.flushIfFull(ctx)
	}

	mtimeValid := true
	id := identity.FileID(s.config.Host, normalized, stat.Mtime, mtimeValid)
	syncPrefix := identity.Prefix(s.config.PeerHost, normalized)

	file := &model.File{
		ID:              id,
		IDPrefix:        identity.Prefix(s.config.Host, normalized),
		SyncIDPrefix:    syncPrefix,
		SyncPath:        normalized,
		Host:            s.config.Host,
		Relationship:    s.config.Relationship,
		Source:          s.config.Source,
		Path:            filepath.Dir(normalized),
		Name:            filepath.Base(normalized),
		DateScanned:     time.Now().Unix(),
		Size:            stat.Size,
		PermissionsUNIX: uint32(stat.Mode.Perm()),
		DateModified:    stat.Mtime,
		Owner:           stat.UID,
		Group:           stat.GID,
		GoodScan:        true,
		Status:          model.FileStatus{State: model.FileStatusOK},
	}

	if !identity.IsPathEncodable(relative) {
		file.GoodScan = false
		file.Status = model.FileStatus{State: model.FileStatusError, Detail: "path is not valid UTF-8"}
		s.result.ErrorCount++
	}

	if s.config.DeepScan && file.GoodScan {
		digest, err := probe.Digest(path, nil)
		if err != nil {
			s.logger.Warnf("unable to digest %q: %v", path, err)
			file.GoodScan = false
			file.Status = model.FileStatus{State: model.FileStatusError, Detail: err.Error()}
			s.result.ErrorCount++
		} else {
			file.Checksum = digest
		}
	}

	s.result.DirectorySize += stat.Size
	s.stage(file)
	return s.flushIfFull(ctx)
}

// stageError records a probe failure as its own File document (still
// identifiable by path, even without valid metadata) rather than silently
// dropping the entry, per §4.6's treatment of per-file errors as non-fatal.
func (s *Scanner) stageError(path, relative, detail string) {
	s.result.ErrorCount++
	id := identity.FileID(s.config.Host, relative, 0, false)
	file := &model.File{
		ID:           id,
		IDPrefix:     identity.Prefix(s.config.Host, relative),
		SyncIDPrefix: identity.Prefix(s.config.PeerHost, relative),
		Host:         s.config.Host,
		Relationship: s.config.Relationship,
		Source:       s.config.Source,
		Path:         filepath.Dir(relative),
		Name:         filepath.Base(relative),
		DateScanned:  time.Now().Unix(),
		GoodScan:     false,
		Status:       model.FileStatus{State: model.FileStatusError, Detail: detail},
	}
	s.stage(file)
}

func (s *Scanner) relativePath(path string) string {
	rel, err := filepath.Rel(s.config.Root, path)
	if err != nil {
		return path
	}
	return rel
}

// stage adds a File document to the pending batch. It never flushes; callers
// follow it with flushIfFull, which flushes once the configured batch
// threshold is reached.
func (s *Scanner) stage(file *model.File) {
	s.pending = append(s.pending, file)
}

// flush runs the pending batch through the compare-and-insert pipeline (or a
// bare bulk insert for a first scan) and clears it.
func (s *Scanner) flush(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}
	batch := s.pending
	s.pending = nil

	if s.config.FirstScan {
		return s.bulkInsert(ctx, batch)
	}
	return s.compareAndInsert(ctx, batch)
}

// flushIfFull flushes the pending batch once it reaches the configured
// threshold, bounding memory use across very large trees.
func (s *Scanner) flushIfFull(ctx context.Context) error {
	if len(s.pending) >= s.config.BatchThreshold {
		return s.flush(ctx)
	}
	return nil
}

func (s *Scanner) bulkInsert(ctx context.Context, batch []interface{}) error {
	results, err := s.client.Bulk(ctx, s.db, batch)
	if err != nil {
		return fmt.Errorf("unable to insert batch: %w", err)
	}
	s.tallyBulkResults(results)
	return nil
}

// compareAndInsert looks up each document's previous revision by id (an
// unchanged id across scans means unchanged identity: same host, path, and
// mtime) and flags drift in its DriftField as a possible corruption. A hit
// that is not corrupted already has an up-to-date document in the store and
// needs no re-insert; only corrupted hits and genuinely new ids are
// bulk-written, per §4.6 step 4.
func (s *Scanner) compareAndInsert(ctx context.Context, batch []interface{}) error {
	ids := make([]string, len(batch))
	for i, doc := range batch {
		ids[i] = doc.(*model.File).ID
	}

	existing, err := s.client.AllByIDs(ctx, s.db, ids)
	if err != nil {
		return fmt.Errorf("unable to look up existing documents: %w", err)
	}

	toInsert := batch[:0]
	for _, doc := range batch {
		file := doc.(*model.File)
		prior, ok := existing[file.ID]
		if !ok {
			toInsert = append(toInsert, doc)
			continue
		}
		if s.flagIfCorrupted(file, prior) {
			file.Rev, _ = prior["_rev"].(string)
			toInsert = append(toInsert, doc)
		} else {
			s.result.FileCount++
		}
	}

	return s.bulkInsert(ctx, toInsert)
}

// flagIfCorrupted compares file against its previously-recorded document
// sharing the same id. Two documents sharing an id already agree on host,
// path, and mtime (the id is derived from exactly those); if their drift
// field (size, or checksum under deep scan) disagrees, the file changed
// content without its mtime changing, so it is flagged as a possible
// corruption rather than silently overwritten. Reports whether it flagged
// the file, so the caller knows whether the document needs re-inserting.
func (s *Scanner) flagIfCorrupted(file *model.File, prior map[string]interface{}) bool {
	priorSize, _ := prior["size"].(float64)
	priorChecksum, _ := prior["checksum"].(string)

	var priorDrift string
	if s.config.DeepScan {
		priorDrift = priorChecksum
	} else {
		priorDrift = fmt.Sprintf("%d", int64(priorSize))
	}

	if priorDrift != "" && priorDrift != file.DriftField(s.config.DeepScan) {
		file.Status = model.FileStatus{
			State:  model.FileStatusOK,
			Detail: "possibly corrupted",
		}
		return true
	}
	return false
}

func (s *Scanner) tallyBulkResults(results []store.BulkResult) {
	for _, r := range results {
		if r.OK {
			s.result.FileCount++
		} else {
			s.logger.Errorf("unable to insert document %q: %s", r.ID, r.Error)
			s.result.ErrorCount++
		}
	}
}

// detectMissing compares, for each directory visited, the names found in
// this pass against the names recorded as "ok" for this host and that same
// directory in the scan database via the check_for_delete view, per §4.6
// step 5. It runs only when PreviousScanID is non-empty. Any name
// present before and absent now is reported as missing so the Reconciler can
// resolve it to moved or deleted.
func (s *Scanner) detectMissing(ctx context.Context, root string) error {
	if s.config.PreviousScanID == "" {
		return nil
	}

	for dir, seen := range s.seenInDir {
		relative := s.relativePath(dir)
		rows, err := s.client.View(ctx, s.db, "sync", "check_for_delete", store.ViewQuery{
			StartKey: []interface{}{s.config.Host, relative, ""},
			EndKey:   []interface{}{s.config.Host, relative, store.HighKey},
		})
		if err != nil {
			return fmt.Errorf("unable to query check_for_delete for %q: %w", relative, err)
		}

		for _, row := range rows {
			key, ok := row.Key.([]interface{})
			if !ok || len(key) != 3 {
				continue
			}
			name, _ := key[2].(string)
			if name == "" || seen[name] {
				continue
			}
			s.result.MissingPaths = append(s.result.MissingPaths, filepath.Join(relative, name))
		}
	}

	return nil
}
