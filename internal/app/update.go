package app

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/pkgup/internal/output"
	"github.com/blackwell-systems/pkgup/internal/pipeline"
)

var (
	updateYes        bool
	updateClean      bool
	updateDryRun     bool
	updatePrerelease bool

	updateCmd = &cobra.Command{
		Use:   "update",
		Short: "Install available updates at every location",
		Long: `Resolve which packages have newer versions available and install the
target version at every location where the package is outdated. A package
installed at three locations is brought to the same version at all three.

Each install is verified before the location counts as updated. When a
repository cannot serve a location directly, the default install root and
the legacy manager are tried as fallbacks.

With --clean, superseded version directories are removed after a package
updates successfully at every location. Packages on the do_not_clean list
keep their old versions.`,
		Example: `  # Review and confirm each update
  pkgup update

  # Update everything without prompting
  pkgup update --yes

  # Update and remove superseded versions
  pkgup update --yes --clean

  # Show what would be updated without touching anything
  pkgup update --dry-run`,
		RunE: runUpdate,
	}
)

func init() {
	updateCmd.Flags().BoolVarP(&updateYes, "yes", "y", false, "apply all updates without prompting")
	updateCmd.Flags().BoolVar(&updateClean, "clean", false, "remove superseded versions after a successful update")
	updateCmd.Flags().BoolVar(&updateDryRun, "dry-run", false, "resolve and report, but install nothing")
	updateCmd.Flags().BoolVar(&updatePrerelease, "prerelease", false, "consider pre-release versions")
}

func runUpdate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(cfg.Repositories) == 0 && cfg.LegacyManager == "" {
		return fmt.Errorf("no repositories or legacy manager configured")
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	// Always scan fresh before mutating the filesystem.
	inv, err := scanToStore(cfg, db, false)
	if err != nil {
		return err
	}

	decisions := resolveUpdates(cfg, inv, updatePrerelease)
	if len(decisions) == 0 {
		return nil
	}

	fmt.Println()
	fmt.Print(output.RenderDecisionTable(decisions))
	fmt.Println()

	if updateDryRun {
		fmt.Println("Dry run: nothing installed.")
		return nil
	}

	repos := buildRepositories(cfg)

	p := pipeline.New()
	p.Repos = repositoryMap(repos)
	p.Legacy = legacyManager(cfg)
	p.DefaultInstallRoot = cfg.DefaultInstallRoot
	p.DoNotClean = cfg.DoNotClean
	p.Clean = updateClean
	if !updateYes {
		p.Confirm = confirmDecision
	}

	progress := output.NewProgress(len(decisions), "Installing updates")
	p.OnProgress = func(completed, total int, eta time.Duration) {
		progress.Observe(completed, total, eta)
	}

	started := time.Now()
	runID, err := db.BeginRun(started)
	if err != nil {
		return err
	}

	outcomes, err := p.Run(context.Background(), decisions)
	progress.Finish()
	if err != nil {
		return err
	}

	if err := db.FinishRun(runID, time.Now(), outcomes); err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}

	// The filesystem changed under the cache; next command rescans.
	if err := db.MarkStale(); err != nil {
		return err
	}

	fmt.Println()
	fmt.Print(output.RenderOutcomeTable(outcomes))
	fmt.Println()
	fmt.Println(output.RenderSummary(outcomes))
	return nil
}
