package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"packfetch/internal/state"
)

var historyLimit int

// historyCmd lists recent pipeline runs from the journal.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent package runs",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		defer state.CloseDB()

		if noJournal {
			fmt.Fprintln(os.Stderr, "Error: --no-journal disables history")
			os.Exit(1)
		}

		records, err := state.History(historyLimit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading journal: %v\n", err)
			os.Exit(1)
		}
		if len(records) == 0 {
			fmt.Println("No runs recorded yet.")
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "WHEN\tPACKAGE\tSTATUS\tFILES\tFAILED\tPRIMARY")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
				r.StartedAt.Format(time.DateTime), r.Package, r.Status,
				r.FilesTotal, r.FilesFailed, r.PrimaryAsset)
		}
		w.Flush()
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum runs to list")
}
