// Command dirscan walks one side of a configured relationship's directory
// tree, recording what it finds into the shared document store, and
// resolves files it can no longer find into moved or deleted, per spec §4.6
// and §4.7.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/dirscansync/dirscansync/cmd"
	"github.com/dirscansync/dirscansync/internal/config"
	"github.com/dirscansync/dirscansync/internal/janitor"
	"github.com/dirscansync/dirscansync/internal/model"
	"github.com/dirscansync/dirscansync/internal/reconcile"
	"github.com/dirscansync/dirscansync/internal/scandb"
	"github.com/dirscansync/dirscansync/internal/scanner"
	"github.com/dirscansync/dirscansync/internal/store"
	"github.com/dirscansync/dirscansync/internal/store/couchkit"
	"github.com/dirscansync/dirscansync/internal/views"
	"github.com/dirscansync/dirscansync/pkg/identifier"
	"github.com/dirscansync/dirscansync/pkg/logging"
)

// exitConfigError is the exit code for a configuration or I/O error
// encountered before any store I/O (spec §6).
const exitConfigError = 2

const mainDB = "dirscansync"

var rootConfiguration struct {
	configPath    string
	excludesPath  string
	logLevel      string
	verbose       bool
	deep          bool
	check         bool
	flush         bool
}

var rootCommand = &cobra.Command{
	Use:          "dirscan",
	Short:        "Scan a directory tree and record it for cross-host convergence checking",
	SilenceUsage: true,
	Run:          cmd.Mainify(runMain),
}

func init() {
	flags := rootCommand.Flags()
	flags.StringVarP(&rootConfiguration.configPath, "config", "c", "./dirscansync.json", "Path to the configuration file")
	flags.StringVarP(&rootConfiguration.excludesPath, "excludes", "x", "", "Path to an initial-setup exclusions file, one pattern per line")
	flags.StringVarP(&rootConfiguration.logLevel, "log-level", "l", "WARNING", "Logging level: CRITICAL, ERROR, WARNING, INFO, DEBUG")
	flags.BoolVarP(&rootConfiguration.verbose, "verbose", "v", false, "Print progress to standard output")
	flags.BoolVar(&rootConfiguration.deep, "deep", false, "Enable content digesting")
	flags.BoolVar(&rootConfiguration.check, "check", false, "Ensure and upgrade all views, then exit")
	flags.BoolVar(&rootConfiguration.flush, "flush", false, "Run the janitor and exit")
}

func runMain(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(rootConfiguration.configPath)
	if err != nil {
		cmd.FatalWithCode(err, exitConfigError)
	}

	excludes, err := loadExcludes(rootConfiguration.excludesPath)
	if err != nil {
		cmd.FatalWithCode(err, exitConfigError)
	}

	level, ok := logging.NameToLevel(rootConfiguration.logLevel)
	if !ok {
		cmd.FatalWithCode(fmt.Errorf("unrecognized log level %q", rootConfiguration.logLevel), exitConfigError)
	}
	logger := logging.New(level)

	logFile, err := logging.ToFile(logging.DefaultLogFileName, rootConfiguration.verbose)
	if err != nil {
		cmd.FatalWithCode(fmt.Errorf("unable to open log file: %w", err), exitConfigError)
	}
	defer logFile.Close()

	creds, err := config.ResolveCredentials("cloudantNoSQLDB", "vcap-local.json")
	if err != nil {
		cmd.FatalWithCode(fmt.Errorf("unable to resolve store credentials: %w", err), exitConfigError)
	}
	client := couchkit.New(creds.URL, cfg.CloudantUser, cfg.CloudantAuth)

	ctx := context.Background()

	if rootConfiguration.check {
		return runCheck(ctx, client)
	}
	if rootConfiguration.flush {
		return runFlush(ctx, client, logger)
	}

	return runScan(ctx, client, cfg, excludes, logger)
}

func runCheck(ctx context.Context, client store.Client) error {
	if err := views.EnsureMainViews(ctx, client, mainDB); err != nil {
		return fmt.Errorf("unable to ensure main views: %w", err)
	}
	names, err := client.ListDBs(ctx)
	if err != nil {
		return fmt.Errorf("unable to list databases: %w", err)
	}
	for _, name := range names {
		if !strings.HasPrefix(name, "scandb-") {
			continue
		}
		if err := views.EnsureScanViews(ctx, client, name); err != nil {
			return fmt.Errorf("unable to ensure scan views in %q: %w", name, err)
		}
	}
	fmt.Println("Views are up to date.")
	return nil
}

func runFlush(ctx context.Context, client store.Client, logger *logging.Logger) error {
	j := janitor.New(client, logger)
	deleted, err := j.Run(ctx)
	if err != nil {
		return fmt.Errorf("janitor run failed: %w", err)
	}
	fmt.Printf("Deleted %d scan database(s).\n", deleted)
	return nil
}

// runScan performs one full scan-and-reconcile pass for the host named in
// cfg, printing the single final status line required by spec §7.
func runScan(ctx context.Context, client store.Client, cfg *config.Config, excludes []string, logger *logging.Logger) error {
	if err := views.EnsureMainViews(ctx, client, mainDB); err != nil {
		return fmt.Errorf("unable to ensure main views: %w", err)
	}

	var relationship model.Relationship
	if err := client.Get(ctx, mainDB, cfg.Relationship, &relationship); err != nil {
		return fmt.Errorf("unable to load relationship %q: %w", cfg.Relationship, err)
	}

	isSource := relationship.SourceHost == cfg.HostID
	var directory string
	var peerHost string
	if isSource {
		directory, peerHost = relationship.SourceDir, relationship.TargetHost
	} else {
		directory, peerHost = relationship.TargetDir, relationship.SourceHost
	}

	selection, err := scandb.Select(ctx, client, cfg.HostID, peerHost, cfg.Relationship)
	if err != nil {
		return fmt.Errorf("unable to select scan database: %w", err)
	}
	if !selection.Created {
		if err := views.EnsureScanViews(ctx, client, selection.Database); err != nil {
			return fmt.Errorf("unable to ensure scan views: %w", err)
		}
	}

	previousScanID, firstScan := previousRun(ctx, client, cfg.HostID, cfg.Relationship)

	runID, err := identifier.New(identifier.PrefixRun)
	if err != nil {
		return fmt.Errorf("unable to mint run identifier: %w", err)
	}

	run := &model.Run{
		ID:             runID,
		Type:           model.DocTypeScan,
		HostID:         cfg.HostID,
		Relationship:   cfg.Relationship,
		Source:         isSource,
		Started:        time.Now().Unix(),
		Directory:      directory,
		Database:       selection.Database,
		PreviousScanID: previousScanID,
		FirstScan:      firstScan,
		DeepScan:       rootConfiguration.deep,
	}
	if _, err := client.Put(ctx, mainDB, run); err != nil {
		return fmt.Errorf("unable to create run record: %w", err)
	}

	progress := newProgressPrinter(rootConfiguration.verbose)

	s := scanner.New(client, selection.Database, scanner.Config{
		Host:           cfg.HostID,
		Relationship:   cfg.Relationship,
		Source:         isSource,
		PeerHost:       peerHost,
		Root:           directory,
		Excludes:       append(excludes, relationship.ExcludedFiles...),
		DeepScan:       rootConfiguration.deep,
		FirstScan:      firstScan,
		PreviousScanID: previousScanID,
		BatchThreshold: cfg.Threshold,
	}, logger)

	result, scanErr := s.Run(ctx)
	if scanErr == nil && len(result.MissingPaths) > 0 {
		r := reconcile.New(client, selection.Database)
		scanErr = r.Resolve(ctx, cfg.HostID, result.MissingPaths)
	}

	run.Ended = time.Now().Unix()
	run.FileCount = result.FileCount
	run.ErrorCount = result.ErrorCount
	run.DirectorySize = result.DirectorySize
	run.Success = scanErr == nil && result.ErrorCount == 0
	if _, err := client.Put(ctx, mainDB, run); err != nil {
		logger.Errorf("unable to close run record: %v", err)
	}

	progress.finish(result.FileCount, result.DirectorySize)

	if scanErr != nil {
		fmt.Fprintf(os.Stderr, "Scan failed: %v\n", scanErr)
		return scanErr
	}

	fmt.Printf("Scan completed at %s on %d files\n", time.Unix(run.Ended, 0).Format(time.RFC3339), result.FileCount)
	return nil
}

// previousRun looks up the most recent successful run for host/relationship
// so the scan can stamp FirstScan and PreviousScanID correctly. Only the
// host's single most recent successful run is examined; if it belongs to
// another relationship, the scan is treated as a first scan.
func previousRun(ctx context.Context, client store.Client, hostID, relationship string) (previousScanID string, firstScan bool) {
	rows, err := client.View(ctx, mainDB, "runs", "recent_scans", store.ViewQuery{
		StartKey:    []interface{}{hostID, true, store.HighKey},
		EndKey:      []interface{}{hostID, true, nil},
		Descending:  true,
		Limit:       1,
		IncludeDocs: true,
	})
	if err != nil || len(rows) == 0 {
		return "", true
	}
	if rel, _ := rows[0].Doc["relationship"].(string); rel != "" && rel != relationship {
		return "", true
	}
	return rows[0].ID, false
}

func loadExcludes(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open exclusions file %q: %w", path, err)
	}
	defer file.Close()

	var patterns []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			patterns = append(patterns, line)
		}
	}
	return patterns, scanner.Err()
}

// progressPrinter prints a human-readable running total to stdout when
// verbose mode is requested and stdout is a terminal, using go-isatty to
// decide whether to bother.
type progressPrinter struct {
	enabled bool
}

func newProgressPrinter(verbose bool) *progressPrinter {
	return &progressPrinter{enabled: verbose && isatty.IsTerminal(os.Stdout.Fd())}
}

func (p *progressPrinter) finish(files int, size int64) {
	if !p.enabled {
		return
	}
	fmt.Printf("Scanned %d files, %s total\n", files, humanize.Bytes(uint64(size)))
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		os.Exit(1)
	}
}
