package app

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/config"
	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/logging"
	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/updater"
)

var (
	cfgFile     string
	installRoot string
	dataDir     string
	logLevel    string
	logFormat   string
	jsonOutput  bool

	// stdin is read by confirmation prompts.
	stdin io.Reader = os.Stdin

	// RootCmd is the root command for themeupdater
	RootCmd = &cobra.Command{
		Use:   "themeupdater",
		Short: "Self-service updates for the FloorSpace theme with backup and revert",
		Long: `themeupdater keeps a deployed FloorSpace theme in sync with its GitHub
repository. Every update and revert is preceded by a backup, so the
previous version can always be restored with one command.

Quick Start:
  1. themeupdater check
  2. themeupdater changelog
  3. themeupdater update

Features:
  • Version check against the repository branch
  • Changelog browsing with security releases highlighted
  • Automatic backup before every update
  • One-command revert with a safety copy of the current tree
  • HTTP API, Prometheus metrics and drift detection (serve)

Examples:
  # Show the installed and latest versions
  themeupdater status

  # Check the repository for a new release
  themeupdater check

  # Update without a confirmation prompt
  themeupdater update --yes

  # Restore the previous version
  themeupdater revert`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("themeupdater: self-service theme updates with backup and revert")
			fmt.Println()
			if installRoot == "" && os.Getenv("THEMEUPDATER_INSTALL_ROOT") == "" {
				fmt.Println("Tip: Set install_root in the config file or pass --install-root.")
			}
			fmt.Println("Run 'themeupdater status' to see the installed version.")
			fmt.Println("Run 'themeupdater --help' for all commands.")
			return nil
		},
	}
)

func init() {
	// Global flags
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/themeupdater/config.yaml)")
	RootCmd.PersistentFlags().StringVar(&installRoot, "install-root", "", "theme installation directory")
	RootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (default: ~/.themeupdater)")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	RootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: console or json")
	RootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print machine-readable JSON")

	// Enable cobra's built-in suggestion feature for unknown subcommands
	RootCmd.SuggestionsMinimumDistance = 2
}

// Execute runs the root command
func Execute() error {
	return RootCmd.Execute()
}

// loadConfig resolves the configuration with command-line flags applied on top.
func loadConfig(extra ...config.Option) (*config.Config, error) {
	opts := []config.Option{
		config.WithConfigFile(cfgFile),
		config.WithOverrides(map[string]any{
			config.KeyInstallRoot: installRoot,
			config.KeyDataDir:     dataDir,
			config.KeyLogLevel:    logLevel,
			config.KeyLogFormat:   logFormat,
		}),
	}
	return config.Load(append(opts, extra...)...)
}

// openUpdater loads the configuration and opens the updater. Callers must
// Close it.
func openUpdater(extra ...config.Option) (*updater.Updater, error) {
	cfg, err := loadConfig(extra...)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		return nil, err
	}
	u, err := updater.New(cfg, updater.WithLogger(logger))
	if err != nil {
		logger.Sync()
		return nil, fmt.Errorf("failed to open updater: %w", err)
	}
	return u, nil
}

func closeUpdater(u *updater.Updater) {
	if err := u.Close(); err != nil {
		u.Logger().Warn("close failed", zap.Error(err))
	}
	u.Logger().Sync()
}

// operationContext bounds an operation by the configured timeout and
// cancels it on SIGINT or SIGTERM.
func operationContext(u *updater.Updater) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	timeout := u.Config().Timeout
	if timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// confirm prompts the user and reports whether they answered yes.
func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)

	reader := bufio.NewReader(stdin)
	response, err := reader.ReadString('\n')
	if err != nil && response == "" {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
