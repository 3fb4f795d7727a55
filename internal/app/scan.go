package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/pkgup/internal/output"
)

var (
	scanQuiet bool

	scanCmd = &cobra.Command{
		Use:   "scan",
		Short: "Scan the search roots and index installed packages",
		Long: `Scan every configured search root for package manifests and installer
records, and cache the resulting inventory in the database.

A package may be installed at several locations with several versions side
by side; the scan records all of them. Localization resources and ignored
directories are skipped.

The scan command should be run:
  • After installing pkgup for the first time
  • After installing or removing packages by hand
  • Whenever 'pkgup status' reports the cache as stale`,
		Example: `  # Scan all configured roots
  pkgup scan

  # Scan quietly (suppress output)
  pkgup scan --quiet`,
		RunE: runScan,
	}
)

func init() {
	scanCmd.Flags().BoolVar(&scanQuiet, "quiet", false, "suppress output")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	inv, err := scanToStore(cfg, db, scanQuiet)
	if err != nil {
		return err
	}

	if !scanQuiet {
		fmt.Println()
		fmt.Print(output.RenderInventoryTable(inv))
	}
	return nil
}
