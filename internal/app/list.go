package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/pkgup/internal/output"
)

var (
	listRescan bool

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "Show the package inventory",
		Long: `Show the cached package inventory: every package found under the search
roots with its locations and versions.

Uses the cache from the last scan when it is still fresh; rescans
automatically when the cache is stale or empty.`,
		Example: `  # Show the inventory
  pkgup list

  # Force a fresh scan first
  pkgup list --rescan`,
		RunE: runList,
	}
)

func init() {
	listCmd.Flags().BoolVar(&listRescan, "rescan", false, "rescan the search roots before listing")
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	inv, err := currentInventory(cfg, db, listRescan, true)
	if err != nil {
		return err
	}

	fmt.Print(output.RenderInventoryTable(inv))
	return nil
}
