package app

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/blackwell-systems/pkgup/internal/config"
	"github.com/blackwell-systems/pkgup/internal/output"
	"github.com/blackwell-systems/pkgup/internal/repo"
	"github.com/blackwell-systems/pkgup/internal/resolver"
	"github.com/blackwell-systems/pkgup/internal/scanner"
	"github.com/blackwell-systems/pkgup/internal/store"
)

// loadConfig loads the config file named by --config, or the default path.
func loadConfig() (*config.Config, error) {
	path := cfgPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// openStore opens the database and ensures the schema exists. The caller
// owns the returned store and must Close it.
func openStore() (*store.Store, error) {
	path, err := getDBPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get database path: %w", err)
	}

	db, err := store.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.CreateSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create database schema: %w", err)
	}
	return db, nil
}

// buildRepositories constructs the configured repositories in priority order.
func buildRepositories(cfg *config.Config) []repo.Repository {
	repos := make([]repo.Repository, 0, len(cfg.Repositories))
	for _, rc := range cfg.Repositories {
		repos = append(repos, repo.NewHTTP(rc.Name, rc.URL))
	}
	return repos
}

// repositoryMap indexes repositories by name for the pipeline.
func repositoryMap(repos []repo.Repository) map[string]repo.Repository {
	m := make(map[string]repo.Repository, len(repos))
	for _, r := range repos {
		m[r.Name()] = r
	}
	return m
}

// resolverPolicy translates the config into a resolver policy. allowPre
// overrides the configured pre-release setting when true.
func resolverPolicy(cfg *config.Config, allowPre bool) resolver.Policy {
	return resolver.Policy{
		MatchAuthor:       cfg.Policy.MatchAuthor,
		AllowPrerelease:   cfg.Policy.AllowPrerelease || allowPre,
		Blacklist:         cfg.Blacklist,
		QueryTimeout:      cfg.Policy.QueryTimeout.Std(),
		BatchCeiling:      cfg.Policy.BatchCeiling.Std(),
		StragglerFraction: cfg.Policy.StragglerFraction,
	}
}

// legacyManager returns the configured external manager, or nil.
func legacyManager(cfg *config.Config) *repo.LegacyManager {
	if cfg.LegacyManager == "" {
		return nil
	}
	return repo.NewLegacyManager(cfg.LegacyManager)
}

// scanToStore runs a filesystem scan and persists the result.
func scanToStore(cfg *config.Config, db *store.Store, quiet bool) (*scanner.Inventory, error) {
	var spinner *output.Spinner
	if !quiet {
		spinner = output.NewSpinner("Scanning search roots")
		spinner.Start()
	}

	inv := scanner.New().Scan(cfg.Roots, cfg.Ignore)
	if err := db.SaveInventory(inv); err != nil {
		if spinner != nil {
			spinner.Stop()
		}
		return nil, fmt.Errorf("failed to cache inventory: %w", err)
	}

	if spinner != nil {
		spinner.StopWithMessage(fmt.Sprintf("✓ %d packages indexed", inv.Len()))
	}
	return inv, nil
}

// currentInventory returns the cached inventory when it is fresh, otherwise
// rescans. forceScan always rescans.
func currentInventory(cfg *config.Config, db *store.Store, forceScan, quiet bool) (*scanner.Inventory, error) {
	if !forceScan {
		stale, err := db.IsStale()
		if err != nil {
			return nil, err
		}
		if !stale {
			return db.LoadInventory()
		}
	}
	return scanToStore(cfg, db, quiet)
}

// confirmDecision prompts on stdin for a single update decision.
func confirmDecision(d resolver.Decision) bool {
	fmt.Printf("Update %s to %s at %d location(s)? [y/N] ", d.Name, d.Target.String(), len(d.OutdatedLocations))

	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
