// Command dirscan-status reports the convergence state of a relationship:
// how many files are in sync, which are stale, which are orphaned, and how
// many scan errors are outstanding, per spec §4.9 and §6.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang/groupcache/lru"
	"github.com/spf13/cobra"

	"github.com/dirscansync/dirscansync/cmd"
	"github.com/dirscansync/dirscansync/internal/config"
	"github.com/dirscansync/dirscansync/internal/model"
	"github.com/dirscansync/dirscansync/internal/reconcile"
	"github.com/dirscansync/dirscansync/internal/store"
	"github.com/dirscansync/dirscansync/internal/store/couchkit"
)

const (
	exitConfigError = 2
	mainDB          = "dirscansync"
)

var rootConfiguration struct {
	configPath  string
	repeatEvery int
	detailChars string
}

var rootCommand = &cobra.Command{
	Use:          "dirscan-status",
	Short:        "Report the convergence state of a relationship",
	SilenceUsage: true,
	Run:          cmd.Mainify(runMain),
}

func init() {
	flags := rootCommand.Flags()
	flags.StringVarP(&rootConfiguration.configPath, "config", "c", "./dirscansync.json", "Path to the configuration file")
	flags.IntVarP(&rootConfiguration.repeatEvery, "repeat", "r", 0, "Poll repeatedly, this many minutes apart (0 prints once)")
	flags.StringVar(&rootConfiguration.detailChars, "detail", "", "Detail listing, a subset of {s,o,m,e} (stale, orphaned, missing, error)")
}

// classificationCache memoizes Classify results per relationship. Under -r
// the entry is removed after every report, so each poll queries the store
// afresh and a cached result is never served across polls. Grounded on the
// teacher's use of github.com/golang/groupcache/lru for bounded in-process
// caches.
var classificationCache = lru.New(64)

func runMain(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(rootConfiguration.configPath)
	if err != nil {
		cmd.FatalWithCode(err, exitConfigError)
	}

	creds, err := config.ResolveCredentials("cloudantNoSQLDB", "vcap-local.json")
	if err != nil {
		cmd.FatalWithCode(fmt.Errorf("unable to resolve store credentials: %w", err), exitConfigError)
	}
	client := couchkit.New(creds.URL, cfg.CloudantUser, cfg.CloudantAuth)

	ctx := context.Background()

	if rootConfiguration.repeatEvery <= 0 {
		return report(ctx, client, cfg.Relationship)
	}

	interval := time.Duration(rootConfiguration.repeatEvery) * time.Minute
	for {
		if err := report(ctx, client, cfg.Relationship); err != nil {
			return err
		}
		classificationCache.Remove(cfg.Relationship)
		time.Sleep(interval)
	}
}

func report(ctx context.Context, client store.Client, relationshipID string) error {
	var relationship model.Relationship
	if err := client.Get(ctx, mainDB, relationshipID, &relationship); err != nil {
		return fmt.Errorf("unable to load relationship %q: %w", relationshipID, err)
	}

	sourceDB, err := latestDatabase(ctx, client, relationship.SourceHost)
	if err != nil {
		return err
	}
	targetDB, err := latestDatabase(ctx, client, relationship.TargetHost)
	if err != nil {
		return err
	}

	classification, err := classify(ctx, client, relationshipID, sourceDB, targetDB)
	if err != nil {
		return fmt.Errorf("unable to classify relationship %q: %w", relationshipID, err)
	}

	fmt.Printf("In sync: %d  Stale: %d  Orphaned: %d  Problems: %d\n",
		classification.InSync, len(classification.Stale), len(classification.Orphaned), classification.Problems)

	printDetail(classification)
	return nil
}

// classify consults classificationCache before querying the store and
// stores the fresh result there on a miss.
func classify(ctx context.Context, client store.Client, relationshipID, sourceDB, targetDB string) (reconcile.Classification, error) {
	if cached, ok := classificationCache.Get(relationshipID); ok {
		return cached.(reconcile.Classification), nil
	}

	classification, err := reconcile.Classify(ctx, client, sourceDB, targetDB)
	if err != nil {
		return reconcile.Classification{}, err
	}
	classificationCache.Add(relationshipID, classification)
	return classification, nil
}

// latestDatabase returns the scan database of hostID's most recent
// successful run, via the recent_scans view.
func latestDatabase(ctx context.Context, client store.Client, hostID string) (string, error) {
	rows, err := client.View(ctx, mainDB, "runs", "recent_scans", store.ViewQuery{
		StartKey:   []interface{}{hostID, true, store.HighKey},
		EndKey:     []interface{}{hostID, true, nil},
		Descending: true,
		Limit:      1,
	})
	if err != nil {
		return "", fmt.Errorf("unable to query recent scans for %q: %w", hostID, err)
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("no completed scans found for host %q", hostID)
	}
	database, _ := rows[0].Value.(string)
	return database, nil
}

func printDetail(c reconcile.Classification) {
	if rootConfiguration.detailChars == "" {
		return
	}
	if strings.ContainsRune(rootConfiguration.detailChars, 's') {
		for _, f := range c.Stale {
			fmt.Printf("stale: %s\n", f.SourcePath)
		}
	}
	if strings.ContainsRune(rootConfiguration.detailChars, 'o') {
		for _, f := range c.Orphaned {
			fmt.Printf("orphaned: %s\n", f.TargetPath)
		}
	}
	if strings.ContainsRune(rootConfiguration.detailChars, 'm') {
		fmt.Printf("moved: %d\n", c.Moved)
	}
	if strings.ContainsRune(rootConfiguration.detailChars, 'e') {
		fmt.Printf("problems: %d\n", c.Problems)
	}
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		os.Exit(1)
	}
}
