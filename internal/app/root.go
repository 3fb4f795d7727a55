package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/pkgup/internal/logging"
)

var (
	dbPath    string
	cfgPath   string
	verbosity int

	// RootCmd is the root command for pkgup
	RootCmd = &cobra.Command{
		Use:   "pkgup",
		Short: "Local package inventory and update resolution",
		Long: `pkgup scans the configured search roots for installed packages, resolves
which of them have newer versions available in the configured repositories,
and installs updates at every location a package is found.

Quick Start:
  1. pkgup scan        # index the search roots
  2. pkgup outdated    # see what has updates available
  3. pkgup update      # install them

Examples:
  # Show the cached inventory
  pkgup list

  # Check for updates, including pre-releases
  pkgup outdated --prerelease

  # Update everything without prompting and clean superseded versions
  pkgup update --yes --clean

  # Keep the inventory cache fresh in the background
  pkgup watch --daemon`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Setup(verbosity)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("pkgup: local package inventory and update resolution")
			fmt.Println()
			fmt.Println("Run 'pkgup scan' to index your search roots.")
			fmt.Println("Run 'pkgup --help' for the full reference.")
			return nil
		},
	}
)

func init() {
	// Global flags
	RootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (default: $XDG_DATA_HOME/pkgup/pkgup.db)")
	RootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default: $XDG_CONFIG_HOME/pkgup/config.toml)")
	RootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity (-v, -vv, -vvv)")

	// Enable cobra's built-in suggestion feature for unknown subcommands
	RootCmd.SuggestionsMinimumDistance = 2

	// Register subcommands
	RootCmd.AddCommand(scanCmd)
	RootCmd.AddCommand(listCmd)
	RootCmd.AddCommand(outdatedCmd)
	RootCmd.AddCommand(updateCmd)
	RootCmd.AddCommand(statusCmd)
	RootCmd.AddCommand(watchCmd)
}

// Execute runs the root command
func Execute() error {
	return RootCmd.Execute()
}

// getDBPath returns the database path, using the flag value or default
func getDBPath() (string, error) {
	if dbPath != "" {
		return dbPath, nil
	}

	path := filepath.Join(xdg.DataHome, "pkgup", "pkgup.db")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return path, nil
}

// getDefaultPIDFile returns the default PID file path
func getDefaultPIDFile() (string, error) {
	path := filepath.Join(xdg.StateHome, "pkgup", "watch.pid")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create state directory: %w", err)
	}
	return path, nil
}

// getDefaultLogFile returns the default daemon log file path
func getDefaultLogFile() (string, error) {
	path := filepath.Join(xdg.StateHome, "pkgup", "watch.log")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create state directory: %w", err)
	}
	return path, nil
}
