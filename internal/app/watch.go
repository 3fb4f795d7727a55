package app

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/pkgup/internal/output"
	"github.com/blackwell-systems/pkgup/internal/watcher"
)

var (
	watchDaemon      bool
	watchDaemonChild bool
	watchPIDFile     string
	watchLogFile     string
	watchStop        bool

	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Watch the search roots and keep the inventory cache fresh",
		Long: `Watch the configured search roots for package metadata changes. When a
manifest or installer record is written, moved, or deleted, the cached
inventory is flagged stale so the next command rescans automatically.

Watch modes:
  • Foreground (default): run in the current terminal, Ctrl+C to stop
  • Daemon: run as a detached background process
  • Stop: stop a running daemon`,
		Example: `  # Run in foreground (Ctrl+C to stop)
  pkgup watch

  # Run as background daemon
  pkgup watch --daemon

  # Stop running daemon
  pkgup watch --stop

  # Use custom PID and log files
  pkgup watch --daemon --pid-file /tmp/watch.pid --log-file /tmp/watch.log`,
		RunE: runWatch,
	}
)

func init() {
	watchCmd.Flags().BoolVar(&watchDaemon, "daemon", false, "run as background daemon")
	watchCmd.Flags().BoolVar(&watchDaemonChild, "daemon-child", false, "internal flag for daemon child process")
	watchCmd.Flags().StringVar(&watchPIDFile, "pid-file", "", "PID file path (default: $XDG_STATE_HOME/pkgup/watch.pid)")
	watchCmd.Flags().StringVar(&watchLogFile, "log-file", "", "log file path (default: $XDG_STATE_HOME/pkgup/watch.log)")
	watchCmd.Flags().BoolVar(&watchStop, "stop", false, "stop running daemon")

	// Hide the internal daemon-child flag from help
	watchCmd.Flags().MarkHidden("daemon-child")
}

func runWatch(cmd *cobra.Command, args []string) error {
	if watchPIDFile == "" {
		defaultPID, err := getDefaultPIDFile()
		if err != nil {
			return fmt.Errorf("failed to get default PID file path: %w", err)
		}
		watchPIDFile = defaultPID
	}

	if watchLogFile == "" {
		defaultLog, err := getDefaultLogFile()
		if err != nil {
			return fmt.Errorf("failed to get default log file path: %w", err)
		}
		watchLogFile = defaultLog
	}

	if watchStop {
		return stopWatchDaemon()
	}

	// The daemon parent only forks; it does not need the database.
	if watchDaemon {
		return startWatchDaemon()
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	w, err := watcher.New(db)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	if watchDaemonChild {
		// Runs as the daemon child; stdout/stderr go to the log file.
		return w.RunDaemon(watchPIDFile, cfg.Roots)
	}

	return runWatchForeground(w, cfg.Roots)
}

func stopWatchDaemon() error {
	running, err := watcher.IsDaemonRunning(watchPIDFile)
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}

	if !running {
		fmt.Println("Daemon is not running")
		return nil
	}

	spinner := output.NewSpinner("Stopping daemon")
	spinner.Start()
	if err := watcher.StopDaemon(watchPIDFile); err != nil {
		spinner.Stop()
		return fmt.Errorf("failed to stop daemon: %w", err)
	}
	spinner.StopWithMessage("✓ Daemon stopped")

	return nil
}

func startWatchDaemon() error {
	running, err := watcher.IsDaemonRunning(watchPIDFile)
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}

	if running {
		return fmt.Errorf("daemon already running (PID file: %s)", watchPIDFile)
	}

	if err := watcher.StartDaemon(watchPIDFile, watchLogFile); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	fmt.Println("✓ Daemon started")
	fmt.Printf("  PID file: %s\n", watchPIDFile)
	fmt.Printf("  Log file: %s\n", watchLogFile)
	fmt.Printf("\nTo stop: pkgup watch --stop\n")

	return nil
}

func runWatchForeground(w *watcher.Watcher, roots []string) error {
	if err := w.Start(roots); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	fmt.Println("Watching search roots for package changes. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigCh
	fmt.Printf("\nReceived signal %v, shutting down...\n", sig)

	if err := w.Stop(); err != nil {
		return fmt.Errorf("failed to stop watcher: %w", err)
	}

	return nil
}
