package app

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/engine"
	appErrors "github.com/abhishekdudeja804/floorspace-theme-updater/internal/errors"
	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/output"
	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/updater"
)

var updateFlagYes bool

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Install the latest version from the repository",
	Long: `Download the configured branch and replace the installed theme with it.

The current installation is backed up first, replacing the previous
backup. The new tree is staged next to the installation and swapped in
only when it is complete, so a failed download or a missing theme
directory leaves the installation untouched.`,
	Example: `  themeupdater update          # Ask before updating
  themeupdater update --yes    # Update without confirmation`,
	RunE: runUpdate,
}

func init() {
	updateCmd.Flags().BoolVar(&updateFlagYes, "yes", false, "Skip confirmation prompt")

	RootCmd.AddCommand(updateCmd)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	u, err := openUpdater()
	if err != nil {
		return err
	}
	defer closeUpdater(u)

	if err := u.Config().RequireInstallRoot(); err != nil {
		return err
	}

	if !jsonOutput {
		ctx, cancel := operationContext(u)
		st, err := u.Check(ctx)
		cancel()
		if err != nil {
			return err
		}
		fmt.Println(st.Message())
		if !st.UpdateAvailable {
			fmt.Println("The latest version will be reinstalled.")
		}
		fmt.Println()
	}

	if !updateFlagYes && !jsonOutput {
		if !confirm("Back up the current theme and install the latest version?") {
			fmt.Println("Update cancelled.")
			return nil
		}
	}

	return runOperation(u, "Downloading and installing update", u.Update)
}

// runOperation runs one engine operation under the operation timeout and
// prints its result. Failed operations are returned as errors.
func runOperation(u *updater.Updater, message string, op func(context.Context) engine.Result) error {
	ctx, cancel := operationContext(u)
	defer cancel()

	var spinner *output.Spinner
	if !jsonOutput {
		spinner = output.NewSpinner(message)
		if deadline, ok := ctx.Deadline(); ok {
			spinner.WithDeadline(deadline)
		}
		spinner.Start()
	}
	start := time.Now()
	res := op(ctx)
	if spinner != nil {
		spinner.Stop()
	}

	switch {
	case jsonOutput:
		if err := printJSON(res); err != nil {
			return err
		}
	case res.Success:
		fmt.Print(output.RenderResult(res))
		fmt.Printf("  took %s\n", time.Since(start).Round(100*time.Millisecond))
	default:
		for _, w := range res.Warnings {
			fmt.Printf("⚠ %s\n", w)
		}
	}

	if !res.Success {
		// main prints the message
		return appErrors.New(res.Code, res.Message, nil)
	}
	return nil
}
