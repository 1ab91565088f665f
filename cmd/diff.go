package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/storewatch/storewatch/pkg/diff"
	"github.com/storewatch/storewatch/pkg/report"
	"github.com/storewatch/storewatch/pkg/snapshot"
)

// diffCmd compares two snapshot files without touching any persisted state.
// Useful for replaying old snapshots and for debugging key assignment.
var diffCmd = &cobra.Command{
	Use:   "diff <previous.json> <current.json>",
	Short: "Diff two snapshot files",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		previous, err := snapshot.LoadFile(args[0])
		if err != nil {
			return err
		}
		if previous == nil {
			return fmt.Errorf("snapshot not found: %s", args[0])
		}
		current, err := snapshot.LoadFile(args[1])
		if err != nil {
			return err
		}
		if current == nil {
			return fmt.Errorf("snapshot not found: %s", args[1])
		}

		rep, err := diff.NewDetector(diff.DefaultSchema()).Detect(previous, current)
		if err != nil {
			return err
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		}
		report.Print(os.Stdout, "diff", rep)
		fmt.Println(report.Summary(rep))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(diffCmd)
	diffCmd.Flags().Bool("json", false, "Emit the raw change report as JSON")
}
