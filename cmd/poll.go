package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/storewatch/storewatch/internal/utils"
	"github.com/storewatch/storewatch/pkg/diff"
	"github.com/storewatch/storewatch/pkg/report"
	"github.com/storewatch/storewatch/pkg/retailers"
	"github.com/storewatch/storewatch/pkg/snapshot"
	"github.com/storewatch/storewatch/pkg/storage"
)

// pollCmd implements: storewatch poll
//
// For every retailer configured in ~/.storewatch.yaml, fetch the current
// store list, diff it against the last persisted snapshot, print the
// changes, and persist the new snapshot plus a dated history entry.
var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Fetch retailer store lists and detect changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			return fmt.Errorf("unknown command: '%s'. See 'storewatch poll --help'", args[0])
		}

		var cfgs []retailers.Config
		if err := viper.UnmarshalKey("retailers", &cfgs); err != nil {
			return fmt.Errorf("invalid retailers config: %w", err)
		}
		only, _ := cmd.Flags().GetString("retailer")

		var sources []retailers.Source
		for _, cfg := range cfgs {
			src, err := retailers.New(cfg)
			if err != nil {
				utils.Log.Warnf("Skipping retailer: %v", err)
				continue
			}
			if only != "" && src.Name() != only {
				continue
			}
			sources = append(sources, src)
		}
		if len(sources) == 0 {
			utils.Log.Info("No retailers to poll. Configure them in ~/.storewatch.yaml")
			return nil
		}

		return runPollWithSources(cmd, sources)
	},
}

func init() {
	rootCmd.AddCommand(pollCmd)

	pollCmd.Flags().String("retailer", "", "Only poll the retailer with this name")
	pollCmd.Flags().String("data-dir", "", "Snapshot/history directory (default: data_dir from config)")
	pollCmd.Flags().Bool("db", false, "Also record changes into the SQLite database")
	pollCmd.Flags().String("dbpath", "", "Path to SQLite DB file (default: storewatch.sqlite in CWD)")
}

// runPollWithSources executes the polling flow using the provided sources.
func runPollWithSources(cmd *cobra.Command, sources []retailers.Source) error {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	if dataDir == "" {
		dataDir = viper.GetString("data_dir")
	}
	useDB, _ := cmd.Flags().GetBool("db")
	dbPath, _ := cmd.Flags().GetString("dbpath")
	if dbPath == "" {
		dbPath = "storewatch.sqlite"
	}

	lock, err := utils.NewDataLock(dataDir)
	if err != nil {
		return err
	}
	if err := lock.Lock(); err != nil {
		return err
	}
	defer lock.Unlock()

	var db *storage.DB
	if useDB {
		db, err = storage.Open(dbPath)
		if err != nil {
			return err
		}
		defer db.Close()
	}

	store := snapshot.NewFileStore(dataDir, viper.GetInt("history_keep"))
	detector := diff.NewDetector(diff.DefaultSchema())
	ctx := context.Background()

	for _, src := range sources {
		name := src.Name()
		records, err := src.Fetch(ctx)
		if err != nil {
			// A failed fetch must not touch the persisted snapshots:
			// the last-known-good state stays intact for the next run.
			utils.Log.Errorf("Failed to fetch %s: %v", name, err)
			continue
		}

		previous, err := store.LoadPrevious(name)
		if err != nil {
			utils.Log.Errorf("Cannot read previous snapshot for %s, skipping (not treating as first run): %v", name, err)
			continue
		}
		isFirstRun := previous == nil

		// RETAILER-LEVEL SAFETY CHECK: a source returning 0 stores while
		// the previous snapshot has many usually means the source broke,
		// not that the chain shut down overnight. Abort this retailer to
		// avoid reporting a mass closure and wiping the snapshot.
		if len(records) == 0 && len(previous) > 10 {
			utils.Log.Errorf("Source for %s returned 0 stores, but previous snapshot has %d. Aborting sync for this retailer to prevent data loss.", name, len(previous))
			continue
		}

		rep, err := detector.Detect(previous, records)
		if err != nil {
			utils.Log.Errorf("Change detection failed for %s: %v (snapshots left untouched)", name, err)
			continue
		}
		if rep.CurrentCollisions > 0 {
			utils.Log.Warnf("%s: %d records share a store key with another record (multi-tenant addresses or upstream data quality)", name, rep.CurrentCollisions)
		}

		if err := store.SaveCurrent(name, records); err != nil {
			return fmt.Errorf("persist snapshot for %s: %w", name, err)
		}
		if err := store.AppendHistory(name, rep); err != nil {
			return fmt.Errorf("persist history for %s: %w", name, err)
		}
		if useDB {
			if err := db.RecordReport(ctx, name, len(records), rep); err != nil {
				return fmt.Errorf("record changes for %s: %w", name, err)
			}
		}

		if isFirstRun {
			fmt.Printf("✨ First poll for %s, recorded %d stores.\n", name, len(records))
			continue
		}
		report.Print(os.Stdout, name, rep)
		fmt.Printf("%s: %s (%d stores)\n", name, report.Summary(rep), len(records))
	}
	return nil
}
