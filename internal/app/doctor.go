package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/output"
	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/updater"
	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/version"
	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/watcher"
)

// exitFunc is replaced in tests.
var exitFunc = os.Exit

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose common issues with the installation and configuration",
	Long: `Runs diagnostic checks on your themeupdater setup.

Checks:
  • Configuration file is valid
  • Installation directory exists and declares a version
  • Data directory and database are usable
  • Backup exists and matches its recorded checksum
  • Repository is reachable
  • No stale operation lock
  • API server (serve) status

Exits 1 on critical issues and 2 when only warnings were found.`,
	RunE: runDoctor,
}

func init() {
	RootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	fmt.Println("Running themeupdater diagnostics...")
	fmt.Println()

	// Critical issues make updates impossible; warnings reduce safety.
	criticalIssues := 0
	warningIssues := 0

	// Check 1: Configuration
	cfg, err := loadConfig()
	if err != nil {
		fmt.Println("✗ Configuration error:", err)
		fmt.Println("  Action: Fix the config file or THEMEUPDATER_* variables")
		fmt.Println()
		fmt.Println("Found 1 critical issue(s) and 0 warning(s).")
		return fmt.Errorf("diagnostics failed")
	}
	if cfg.File != "" {
		fmt.Println("✓ Config loaded:", cfg.File)
	} else {
		fmt.Println("✓ Using default configuration (no config file)")
	}
	fmt.Printf("✓ Repository: %s@%s (%s)\n", cfg.Repo, cfg.Branch, cfg.ComponentPath)

	// Check 2: Installation directory
	installOK := false
	if err := cfg.RequireInstallRoot(); err != nil {
		fmt.Println("✗ Installation directory not configured")
		fmt.Println("  Action: Set install_root in the config file or pass --install-root")
		criticalIssues++
	} else if info, err := os.Stat(cfg.InstallRoot); err != nil || !info.IsDir() {
		fmt.Println("✗ Installation directory not found:", cfg.InstallRoot)
		criticalIssues++
	} else {
		fmt.Println("✓ Installation directory:", cfg.InstallRoot)
		installOK = true
	}

	// Check 3: Data directory and database
	u, err := openUpdater()
	if err != nil {
		fmt.Println("✗ Cannot open data directory:", err)
		fmt.Println("  Action: Check permissions of", cfg.DataDir)
		criticalIssues++
	} else {
		defer closeUpdater(u)
		fmt.Println("✓ Database is accessible:", u.Config().DatabasePath())

		c, w := doctorChecks(u, installOK)
		criticalIssues += c
		warningIssues += w
	}

	// Check 8: API server, informational only
	if running, err := watcher.IsDaemonRunning(cfg.PIDFile()); err == nil && running {
		fmt.Println("✓ API server running")
	} else {
		fmt.Println("○ API server not running (optional: themeupdater serve --daemon)")
	}

	fmt.Println()
	if criticalIssues == 0 && warningIssues == 0 {
		fmt.Println("✓ All checks passed!")
		fmt.Println()
		fmt.Println("Next steps:")
		fmt.Println("  • Check for updates: themeupdater check")
		fmt.Println("  • Read release notes: themeupdater changelog")
		return nil
	}

	if criticalIssues > 0 {
		fmt.Printf("Found %d critical issue(s) and %d warning(s).\n", criticalIssues, warningIssues)
		return fmt.Errorf("diagnostics failed")
	}

	// Exit directly so main does not print an error for a functional setup.
	fmt.Printf("Found %d warning(s). Updates work but are not fully protected.\n", warningIssues)
	exitFunc(2)
	return nil
}

// doctorChecks runs the checks that need an open updater.
func doctorChecks(u *updater.Updater, installOK bool) (critical, warnings int) {
	cfg := u.Config()

	// Check 4: Installed version
	if installOK {
		header := filepath.Join(cfg.InstallRoot, cfg.HeaderFile)
		if _, ok := version.ParseHeader(readFileOrNil(header)); !ok {
			fmt.Printf("⚠ No Version: header in %s (assuming %s)\n", header, version.Default)
			warnings++
		} else {
			fmt.Println("✓ Installed version:", u.Versions().Current(cfg.InstallRoot))
		}
	}

	// Check 5: Backup
	if b, ok := u.Backups().Latest(); !ok {
		fmt.Println("⚠ No backup available — revert is not possible")
		fmt.Println("  Action: Run 'themeupdater backup create'")
		warnings++
	} else if err := u.Backups().Verify(b); err != nil {
		fmt.Println("⚠ Backup is damaged:", err)
		fmt.Println("  Action: Run 'themeupdater backup create' to replace it")
		warnings++
	} else {
		fmt.Printf("✓ Backup of version %s (%s)\n", b.Version, b.SizeLabel)
	}

	// Check 6: Repository reachable
	timeout := cfg.Timeout
	if timeout <= 0 || timeout > 30*time.Second {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	spinner := output.NewSpinner("Contacting repository...")
	spinner.Start()
	start := time.Now()
	err := u.Ping(ctx)
	elapsed := time.Since(start).Round(time.Millisecond)
	if err != nil {
		spinner.StopWithMessage(fmt.Sprintf("✗ Repository not reachable (%v)", elapsed))
		fmt.Printf("  %v\n", err)
		fmt.Println("  Action: Check network access, repo, branch and token")
		critical++
	} else {
		spinner.StopWithMessage(fmt.Sprintf("✓ Repository reachable (%v)", elapsed))
	}

	// Check 7: Operation lock
	if u.Locked() {
		fmt.Println("⚠ An update or revert is running (or its lock was left behind)")
		warnings++
	} else {
		fmt.Println("✓ No operation in progress")
	}
	return critical, warnings
}

func readFileOrNil(path string) []byte {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	return data
}
