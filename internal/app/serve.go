package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/config"
	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/output"
	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/server"
	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/store"
	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/updater"
	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/watcher"
)

var (
	serveAddr        string
	serveWatch       bool
	serveDaemon      bool
	serveDaemonChild bool
	servePIDFile     string
	serveLogFile     string
	serveStop        bool

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and optional drift watcher",
		Long: `Serve the JSON API under /api/v1 and Prometheus metrics under /metrics.

The API offers the same operations as the CLI: status, check, changelog,
update, revert, backup and history. Operations started over HTTP and from
the CLI are serialized by the same per-installation lock.

With --watch, changes to the installation made outside of themeupdater
(manual edits, deploys, other plugins) are recorded in the history as
"drift" and published to NATS when nats_url is configured.

Serve modes:
  • Foreground (default): Run in current terminal with Ctrl+C to stop
  • Daemon: Run as background process
  • Stop: Stop a running daemon

Logs are JSON at info level unless configured otherwise.`,
		Example: `  # Run in foreground (Ctrl+C to stop)
  themeupdater serve --watch

  # Run as background daemon
  themeupdater serve --daemon --watch

  # Stop running daemon
  themeupdater serve --stop

  # Listen on another address
  themeupdater serve --addr 0.0.0.0:9000`,
		RunE: runServe,
	}
)

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: listen_addr from config)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "record changes made to the installation outside of themeupdater")
	serveCmd.Flags().BoolVar(&serveDaemon, "daemon", false, "run as background daemon")
	serveCmd.Flags().BoolVar(&serveDaemonChild, "daemon-child", false, "internal flag for daemon child process")
	serveCmd.Flags().StringVar(&servePIDFile, "pid-file", "", "PID file path (default: ~/.themeupdater/serve.pid)")
	serveCmd.Flags().StringVar(&serveLogFile, "log-file", "", "log file path (default: ~/.themeupdater/serve.log)")
	serveCmd.Flags().BoolVar(&serveStop, "stop", false, "stop running daemon")

	// Hide the internal daemon-child flag from help
	serveCmd.Flags().MarkHidden("daemon-child")

	RootCmd.AddCommand(serveCmd)
}

// serveDefaults makes the server log JSON at info level unless the config
// file, environment or flags say otherwise.
var serveDefaults = config.WithDefaults(map[string]any{
	config.KeyLogFormat: "json",
	config.KeyLogLevel:  "info",
})

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(serveDefaults)
	if err != nil {
		return err
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return err
	}

	pidFile := servePIDFile
	if pidFile == "" {
		pidFile = cfg.PIDFile()
	}
	logFile := serveLogFile
	if logFile == "" {
		logFile = filepath.Join(cfg.DataDir, "serve.log")
	}

	// Handle stop command
	if serveStop {
		return stopServeDaemon(pidFile)
	}

	// Handle daemon mode
	if serveDaemon {
		return startServeDaemon(pidFile, logFile)
	}

	u, err := openUpdater(serveDefaults)
	if err != nil {
		return err
	}
	defer closeUpdater(u)

	if serveDaemonChild {
		// The parent already wrote the PID; write it again so a child
		// started by hand is still stoppable.
		if err := watcher.WritePIDFile(pidFile, os.Getpid()); err != nil {
			return err
		}
		defer watcher.RemovePIDFile(pidFile)
	} else {
		fmt.Println("Starting themeupdater API (press Ctrl+C to stop)...")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return serve(ctx, u)
}

// serve runs the API, and the drift watcher when enabled, until ctx ends.
func serve(ctx context.Context, u *updater.Updater) error {
	logger := u.Logger()

	if serveWatch {
		w, err := newDriftWatcher(u)
		if err != nil {
			return err
		}
		if err := w.Start(); err != nil {
			return fmt.Errorf("failed to start watcher: %w", err)
		}
		defer w.Stop()
		logger.Info("watching installation for drift", zap.String("root", u.Config().InstallRoot))
	}

	addr := serveAddr
	if addr == "" {
		addr = u.Config().ListenAddr
	}
	if err := server.New(u).Run(ctx, addr); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func newDriftWatcher(u *updater.Updater) (*watcher.Watcher, error) {
	cfg := u.Config()
	if err := cfg.RequireInstallRoot(); err != nil {
		return nil, err
	}
	logger := u.Logger().Named("watcher")

	return watcher.New(cfg.InstallRoot, u.Versions().Current, u.Store(),
		watcher.WithLockCheck(u.Locked),
		watcher.WithLogger(logger),
		watcher.WithOnDrift(func(op *store.Operation) {
			u.Metrics().Observe(context.Background(), op)
			u.Notify(op)
		}),
	)
}

func stopServeDaemon(pidFile string) error {
	// Check if daemon is running
	running, err := watcher.IsDaemonRunning(pidFile)
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}

	if !running {
		fmt.Println("Daemon is not running")
		return nil
	}

	spinner := output.NewSpinner("Stopping daemon...")
	if err := watcher.StopDaemon(pidFile); err != nil {
		spinner.Stop()
		return fmt.Errorf("failed to stop daemon: %w", err)
	}
	spinner.StopWithMessage("✓ Daemon stopped")

	return nil
}

func startServeDaemon(pidFile, logFile string) error {
	spinner := output.NewSpinner("Starting daemon...")
	pid, err := watcher.StartDaemon(pidFile, logFile, daemonArgs(pidFile, logFile)...)
	if err != nil {
		spinner.Stop()
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	spinner.StopWithMessage("✓ Daemon started")

	fmt.Printf("\nAPI daemon started (PID %d)\n", pid)
	fmt.Printf("  PID file: %s\n", pidFile)
	fmt.Printf("  Log file: %s\n", logFile)
	fmt.Printf("\nTo stop: themeupdater serve --stop\n")

	return nil
}

// daemonArgs rebuilds the command line for the daemon child.
func daemonArgs(pidFile, logFile string) []string {
	args := []string{"serve", "--daemon-child", "--pid-file", pidFile, "--log-file", logFile}
	if serveWatch {
		args = append(args, "--watch")
	}
	if serveAddr != "" {
		args = append(args, "--addr", serveAddr)
	}

	flags := []struct{ name, value string }{
		{"config", cfgFile},
		{"install-root", installRoot},
		{"data-dir", dataDir},
		{"log-level", logLevel},
		{"log-format", logFormat},
	}
	for _, f := range flags {
		if f.value != "" {
			args = append(args, "--"+f.name, f.value)
		}
	}
	return args
}
