package app

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/output"
	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/watcher"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the installed version, backup and last check",
	Long: `Display the current state of the theme installation.

Shows:
  • Installed version and installation directory
  • Latest version from the most recent check (no network access)
  • Component versions of the latest release
  • Backup slot and number of safety copies
  • Whether an update or revert is running
  • Whether the API server (serve) is running

A reminder is shown when no update check ran in the last 24 hours.`,
	Example: `  # Check status
  themeupdater status

  # Machine-readable status
  themeupdater status --json`,
	RunE: runStatus,
}

func init() {
	// Register with root command
	RootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	u, err := openUpdater()
	if err != nil {
		return err
	}
	defer closeUpdater(u)

	st, err := u.Status()
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(st)
	}

	fmt.Print(output.RenderStatus(st, time.Now()))

	running, err := watcher.IsDaemonRunning(u.Config().PIDFile())
	if err == nil && running {
		fmt.Println()
		fmt.Println("API server running (stop with 'themeupdater serve --stop')")
	}
	return nil
}
