package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/pkgup/internal/output"
	"github.com/blackwell-systems/pkgup/internal/watcher"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cache freshness, backends, and recent runs",
	Example: `  # Show overall status
  pkgup status`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	stale, err := db.IsStale()
	if err != nil {
		return err
	}
	if stale {
		fmt.Println("Inventory cache: stale (run 'pkgup scan')")
	} else {
		inv, err := db.LoadInventory()
		if err != nil {
			return err
		}
		fmt.Printf("Inventory cache: fresh (%d packages)\n", inv.Len())
	}

	fmt.Printf("Repositories:    %d configured\n", len(cfg.Repositories))

	if lm := legacyManager(cfg); lm != nil && lm.Available() {
		fmt.Printf("Legacy manager:  %s (available)\n", cfg.LegacyManager)
	} else if cfg.LegacyManager != "" {
		fmt.Printf("Legacy manager:  %s (not found on PATH)\n", cfg.LegacyManager)
	} else {
		fmt.Println("Legacy manager:  none")
	}

	if pidFile, err := getDefaultPIDFile(); err == nil {
		if running, _ := watcher.IsDaemonRunning(pidFile); running {
			fmt.Println("Watch daemon:    running")
		} else {
			fmt.Println("Watch daemon:    stopped")
		}
	}

	runs, err := db.ListRuns(5)
	if err != nil {
		return err
	}
	if len(runs) > 0 {
		fmt.Println()
		fmt.Print(output.RenderRunTable(runs))
	}

	return nil
}
