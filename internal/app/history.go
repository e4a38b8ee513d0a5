package app

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/output"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded updates, reverts and backups",
	Long: `List the operations recorded for this installation, newest first.

Changes made to the installation outside of themeupdater are recorded as
"drift" while 'themeupdater serve --watch' is running.`,
	Example: `  themeupdater history
  themeupdater history --limit 50 --json`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of operations to show (0 for all)")

	RootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	if historyLimit < 0 {
		return fmt.Errorf("--limit must not be negative")
	}

	u, err := openUpdater()
	if err != nil {
		return err
	}
	defer closeUpdater(u)

	ops, err := u.History(historyLimit)
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}

	if jsonOutput {
		return printJSON(map[string]any{"operations": ops})
	}
	fmt.Print(output.RenderHistoryTable(ops, time.Now()))
	return nil
}
