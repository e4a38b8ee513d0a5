package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/output"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the repository for a newer version",
	Long: `Compare the installed version with the latest version on the
configured branch.

The remote lookup is cached for cache_ttl (default 5m). The time of the
check is recorded and shown by 'themeupdater status'.`,
	Example: `  themeupdater check
  themeupdater check --json`,
	RunE: runCheck,
}

func init() {
	RootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	u, err := openUpdater()
	if err != nil {
		return err
	}
	defer closeUpdater(u)

	ctx, cancel := operationContext(u)
	defer cancel()

	var spinner *output.Spinner
	if !jsonOutput {
		spinner = output.NewSpinner("Checking for updates")
		spinner.Start()
	}
	st, err := u.Check(ctx)
	if spinner != nil {
		spinner.Stop()
	}
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(map[string]any{
			"current":          st.Current,
			"latest":           st.Latest,
			"update_available": st.UpdateAvailable,
			"message":          st.Message(),
		})
	}

	fmt.Println(st.Message())
	if components := u.Versions().Components(ctx); len(components) > 0 {
		fmt.Println()
		fmt.Println("Component versions:")
		fmt.Print(output.RenderComponentTable(components))
	}
	if st.UpdateAvailable {
		fmt.Println()
		fmt.Println("Run 'themeupdater changelog' to see what changed.")
		fmt.Println("Run 'themeupdater update' to install it.")
	}
	return nil
}
