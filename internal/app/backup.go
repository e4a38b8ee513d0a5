package app

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/output"
)

var (
	backupDeleteYes   bool
	backupSafetyPrune time.Duration

	backupCmd = &cobra.Command{
		Use:   "backup",
		Short: "Manage the theme backup",
		Long: `Show and manage the backup slot.

There is exactly one backup. It is replaced before every update and can be
refreshed manually with 'backup create'. Safety copies of the installation
taken before each revert are kept separately and listed with 'backup safety'.`,
		Example: `  themeupdater backup                    # Show the backup
  themeupdater backup create             # Back up the current installation
  themeupdater backup export ~/Desktop   # Copy the backup archive
  themeupdater backup safety --prune 720h`,
		RunE: runBackupShow,
	}

	backupListCmd = &cobra.Command{
		Use:   "list",
		Short: "Show the backup and safety copies",
		RunE:  runBackupShow,
	}

	backupCreateCmd = &cobra.Command{
		Use:   "create",
		Short: "Back up the current installation, replacing the existing backup",
		RunE:  runBackupCreate,
	}

	backupDeleteCmd = &cobra.Command{
		Use:   "delete",
		Short: "Delete the backup",
		RunE:  runBackupDelete,
	}

	backupExportCmd = &cobra.Command{
		Use:   "export <path>",
		Short: "Copy the backup archive to a file or directory",
		Args:  cobra.ExactArgs(1),
		RunE:  runBackupExport,
	}

	backupSafetyCmd = &cobra.Command{
		Use:   "safety",
		Short: "List or prune pre-revert safety copies",
		RunE:  runBackupSafety,
	}
)

func init() {
	backupDeleteCmd.Flags().BoolVar(&backupDeleteYes, "yes", false, "Skip confirmation prompt")
	backupSafetyCmd.Flags().DurationVar(&backupSafetyPrune, "prune", 0, "remove safety copies older than this (e.g. 720h)")

	backupCmd.AddCommand(backupListCmd, backupCreateCmd, backupDeleteCmd, backupExportCmd, backupSafetyCmd)
	RootCmd.AddCommand(backupCmd)
}

func runBackupShow(cmd *cobra.Command, args []string) error {
	u, err := openUpdater()
	if err != nil {
		return err
	}
	defer closeUpdater(u)

	b, ok := u.Backups().Latest()
	copies, err := u.Backups().ListSafetyCopies()
	if err != nil {
		return err
	}

	if jsonOutput {
		out := map[string]any{"safety_copies": copies}
		if ok {
			out["backup"] = b
		}
		return printJSON(out)
	}

	now := time.Now()
	if !ok {
		fmt.Print(output.RenderBackup(nil, now))
		fmt.Println("A backup is created automatically before every update.")
	} else {
		fmt.Print(output.RenderBackup(b, now))
		if err := u.Backups().Verify(b); err != nil {
			fmt.Printf("⚠ %v\n", err)
		}
	}

	if len(copies) > 0 {
		fmt.Printf("\nSafety copies (%d):\n\n", len(copies))
		fmt.Print(output.RenderSafetyCopyTable(copies, now))
	}
	return nil
}

func runBackupCreate(cmd *cobra.Command, args []string) error {
	u, err := openUpdater()
	if err != nil {
		return err
	}
	defer closeUpdater(u)

	if err := u.Config().RequireInstallRoot(); err != nil {
		return err
	}
	return runOperation(u, "Creating backup", u.Backup)
}

func runBackupDelete(cmd *cobra.Command, args []string) error {
	u, err := openUpdater()
	if err != nil {
		return err
	}
	defer closeUpdater(u)

	if err := u.Config().RequireInstallRoot(); err != nil {
		return err
	}

	if b, ok := u.Backups().Latest(); ok && !backupDeleteYes && !jsonOutput {
		if !confirm(fmt.Sprintf("Delete the backup of version %s? Revert will not be possible.", b.Version)) {
			fmt.Println("Delete cancelled.")
			return nil
		}
	}
	return runOperation(u, "Deleting backup", u.DeleteBackup)
}

func runBackupExport(cmd *cobra.Command, args []string) error {
	u, err := openUpdater()
	if err != nil {
		return err
	}
	defer closeUpdater(u)

	path, err := u.Backups().Export(args[0])
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(map[string]string{"path": path})
	}
	fmt.Printf("✓ Backup exported to %s\n", path)
	return nil
}

func runBackupSafety(cmd *cobra.Command, args []string) error {
	u, err := openUpdater()
	if err != nil {
		return err
	}
	defer closeUpdater(u)

	if backupSafetyPrune > 0 {
		n, err := u.Backups().PruneSafetyCopies(backupSafetyPrune)
		if err != nil {
			return err
		}
		if !jsonOutput {
			fmt.Printf("✓ Removed %d safety cop%s older than %s\n\n", n, pluralY(n), backupSafetyPrune)
		}
	}

	copies, err := u.Backups().ListSafetyCopies()
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(map[string]any{"safety_copies": copies})
	}
	fmt.Print(output.RenderSafetyCopyTable(copies, time.Now()))
	return nil
}

func pluralY(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
