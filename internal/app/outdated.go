package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/pkgup/internal/config"
	"github.com/blackwell-systems/pkgup/internal/output"
	"github.com/blackwell-systems/pkgup/internal/resolver"
	"github.com/blackwell-systems/pkgup/internal/scanner"
)

var (
	outdatedPrerelease bool
	outdatedCached     bool

	outdatedCmd = &cobra.Command{
		Use:   "outdated",
		Short: "Show packages with updates available",
		Long: `Query the configured repositories for the latest version of every
inventoried package and show the ones that are outdated at one or more
locations.

Repositories are consulted in configuration order; the first one that knows
a package wins. Blacklisted packages are skipped per the config.`,
		Example: `  # Check for updates
  pkgup outdated

  # Include pre-release versions
  pkgup outdated --prerelease

  # Use the cached inventory even if stale
  pkgup outdated --cached`,
		RunE: runOutdated,
	}
)

func init() {
	outdatedCmd.Flags().BoolVar(&outdatedPrerelease, "prerelease", false, "consider pre-release versions")
	outdatedCmd.Flags().BoolVar(&outdatedCached, "cached", false, "use the cached inventory without rescanning")
}

func runOutdated(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(cfg.Repositories) == 0 {
		return fmt.Errorf("no repositories configured")
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	var inv *scanner.Inventory
	if outdatedCached {
		inv, err = db.LoadInventory()
	} else {
		inv, err = currentInventory(cfg, db, false, true)
	}
	if err != nil {
		return err
	}

	decisions := resolveUpdates(cfg, inv, outdatedPrerelease)

	fmt.Print(output.RenderDecisionTable(decisions))
	return nil
}

// resolveUpdates runs the resolver over the inventory with a spinner bound
// to the batch ceiling.
func resolveUpdates(cfg *config.Config, inv *scanner.Inventory, allowPre bool) []resolver.Decision {
	policy := resolverPolicy(cfg, allowPre)

	spinner := output.NewSpinner(fmt.Sprintf("Querying %d repositories", len(cfg.Repositories))).
		WithTimeout(policy.BatchCeiling)
	spinner.Start()

	r := resolver.New(buildRepositories(cfg), policy)
	decisions := r.Resolve(context.Background(), inv)

	if len(decisions) == 0 {
		spinner.StopWithMessage("✓ Everything is up to date")
	} else {
		spinner.StopWithMessage(fmt.Sprintf("✓ %d update(s) available", len(decisions)))
	}
	return decisions
}
