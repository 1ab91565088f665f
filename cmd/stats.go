package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/storewatch/storewatch/pkg/storage"
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Prints statistics about the retailers and stores in the database.",
	Long:  "Prints statistics about the retailers and stores in the database.",
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, _ := cmd.Flags().GetString("dbpath")
		if dbPath == "" {
			dbPath = "storewatch.sqlite"
		}

		db, err := storage.Open(dbPath)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("database file not found: %s", dbPath)
			}
			return err
		}
		defer db.Close()

		stats, err := db.GetStats(context.Background())
		if err != nil {
			return err
		}

		if len(stats) == 0 {
			fmt.Println("No data in the database to generate stats.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight)
		fmt.Fprintln(w, "RETAILER\tRUNS\tSTORES\tNEW\tCLOSED\tMODIFIED\tLAST RUN\t")

		var totalStores, totalNew, totalClosed, totalModified int
		for _, s := range stats {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%s\t\n",
				s.Retailer, s.Runs, s.StoreCount, s.NewTotal, s.ClosedTotal, s.ModifiedTotal,
				s.LastRun.Format("2006-01-02 15:04"))
			totalStores += s.StoreCount
			totalNew += s.NewTotal
			totalClosed += s.ClosedTotal
			totalModified += s.ModifiedTotal
		}

		fmt.Fprintln(w, " \t \t \t \t \t \t \t")
		fmt.Fprintf(w, "TOTAL\t \t%d\t%d\t%d\t%d\t \t\n", totalStores, totalNew, totalClosed, totalModified)

		w.Flush()

		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().String("dbpath", "", "Path to SQLite DB file (default: storewatch.sqlite in CWD)")
}
