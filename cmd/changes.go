package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/storewatch/storewatch/pkg/storage"
)

var changesCmd = &cobra.Command{
	Use:   "changes",
	Short: "Show recent store changes (default 50)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		dbPath, _ := cmd.Flags().GetString("dbpath")
		limit, _ := cmd.Flags().GetInt("limit")
		if dbPath == "" {
			dbPath = "storewatch.sqlite"
		}
		if _, err := os.Stat(dbPath); err != nil {
			return fmt.Errorf("database not found: %s", dbPath)
		}
		db, err := storage.Open(dbPath)
		if err != nil {
			return err
		}
		defer db.Close()
		changes, err := db.ListRecentChanges(context.Background(), limit)
		if err != nil {
			return err
		}
		for _, c := range changes {
			ts := c.OccurredAt.Format("2006-01-02 15:04:05")
			if c.ChangeType == "modified" {
				fmt.Printf("%s  %-8s  %s  %s  %s: %q -> %q\n", ts, c.ChangeType, c.Retailer, c.StoreKey, c.Field, c.OldValue, c.NewValue)
				continue
			}
			fmt.Printf("%s  %-8s  %s  %s\n", ts, c.ChangeType, c.Retailer, c.StoreKey)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(changesCmd)
	changesCmd.Flags().String("dbpath", "", "Path to SQLite DB file (default: storewatch.sqlite in CWD)")
	changesCmd.Flags().Int("limit", 50, "Number of recent changes to show")
}
