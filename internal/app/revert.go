package app

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/output"
)

var revertFlagYes bool

var revertCmd = &cobra.Command{
	Use:   "revert",
	Short: "Restore the theme from the backup",
	Long: `Restore the installation from the backup slot.

The backup is created automatically before every update and can be
refreshed with 'themeupdater backup create'. Before the restore, the
current installation is saved as a safety copy so a revert can itself be
undone with 'themeupdater backup safety'.`,
	Example: `  themeupdater revert          # Show the backup and ask
  themeupdater revert --yes    # Restore without confirmation`,
	RunE: runRevert,
}

func init() {
	revertCmd.Flags().BoolVar(&revertFlagYes, "yes", false, "Skip confirmation prompt")

	RootCmd.AddCommand(revertCmd)
}

func runRevert(cmd *cobra.Command, args []string) error {
	u, err := openUpdater()
	if err != nil {
		return err
	}
	defer closeUpdater(u)

	if err := u.Config().RequireInstallRoot(); err != nil {
		return err
	}

	b, ok := u.Backups().Latest()
	if !ok && !jsonOutput {
		fmt.Println("No backup available.")
		fmt.Println("\nA backup is created automatically before every update.")
		fmt.Println("Use 'themeupdater backup create' to create one now.")
	}

	if ok && !jsonOutput {
		fmt.Printf("\nBackup Details:\n")
		fmt.Printf("  Version: %s\n", b.Version)
		fmt.Printf("  Created: %s\n", b.DateLabel())
		fmt.Printf("  Size: %s\n", b.SizeLabel)
		fmt.Printf("  Installed: %s\n", u.Versions().Current(u.Config().InstallRoot))
		fmt.Println()

		if !revertFlagYes && !confirm(fmt.Sprintf("Restore version %s?", b.Version)) {
			fmt.Println("Revert cancelled.")
			return nil
		}
	}

	if err := runOperation(u, "Restoring theme from backup", u.Revert); err != nil {
		return err
	}

	if !jsonOutput {
		if copies, err := u.Backups().ListSafetyCopies(); err == nil && len(copies) > 0 {
			fmt.Println()
			fmt.Println("The replaced installation was saved as a safety copy:")
			fmt.Print(output.RenderSafetyCopyTable(copies[:1], time.Now()))
		}
	}
	return nil
}
