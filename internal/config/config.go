// Package config loads the pkgup run configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/pelletier/go-toml/v2"
)

// SelfPackageName is pkgup's own package name. It is always on the
// do-not-clean list so a cleanup pass can never remove the engine's own
// install.
const SelfPackageName = "pkgup"

// Duration wraps time.Duration so TOML can carry values like "30s".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// RepositoryConfig names one repository endpoint. List order defines query
// priority.
type RepositoryConfig struct {
	Name string `toml:"name"`
	URL  string `toml:"url"`
}

// PolicyConfig holds the update-decision policy knobs.
type PolicyConfig struct {
	// MatchAuthor requires the remote author to match the locally recorded
	// author (normalized) before an update is taken.
	MatchAuthor bool `toml:"match_author"`

	// AllowPrerelease enables pre-release candidates when selecting the
	// latest available version.
	AllowPrerelease bool `toml:"allow_prerelease"`

	// QueryTimeout bounds each repository query.
	QueryTimeout Duration `toml:"query_timeout"`

	// BatchCeiling is the hard wall-clock bound on a whole query batch.
	BatchCeiling Duration `toml:"batch_ceiling"`

	// StragglerFraction is the fraction of outstanding queries the batch is
	// allowed to abandon once the rest have finished (0 waits for all).
	StragglerFraction float64 `toml:"straggler_fraction"`
}

// Config is the full run configuration.
type Config struct {
	// Roots are the search roots scanned for installed packages, in order.
	Roots []string `toml:"roots"`

	// Ignore lists package names excluded from the inventory entirely.
	Ignore []string `toml:"ignore"`

	// Repositories are queried in list order.
	Repositories []RepositoryConfig `toml:"repositories"`

	// Blacklist maps a package name to the repositories it must not be
	// queried from. An empty list blacklists the package everywhere.
	Blacklist map[string][]string `toml:"blacklist"`

	// DoNotClean lists packages whose superseded versions are never removed.
	DoNotClean []string `toml:"do_not_clean"`

	// LegacyManager is the external package-manager binary used as the last
	// install fallback and for managed uninstalls. Empty disables it.
	LegacyManager string `toml:"legacy_manager"`

	// DefaultInstallRoot is the scope-wide destination used when direct
	// placement into an outdated location fails.
	DefaultInstallRoot string `toml:"default_install_root"`

	Policy PolicyConfig `toml:"policy"`
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, "pkgup", "config.toml")
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Roots:              []string{filepath.Join(xdg.DataHome, "pkgup", "packages")},
		DoNotClean:         []string{SelfPackageName},
		DefaultInstallRoot: filepath.Join(xdg.DataHome, "pkgup", "packages"),
		Policy: PolicyConfig{
			QueryTimeout:      Duration(30 * time.Second),
			BatchCeiling:      Duration(5 * time.Minute),
			StragglerFraction: 0.1,
		},
	}
}

// Load reads the config file at path, applying defaults for anything unset.
// A missing file yields the defaults without an error; a malformed file is an
// error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	applyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	def := Default()
	if len(cfg.Roots) == 0 {
		cfg.Roots = def.Roots
	}
	if cfg.DefaultInstallRoot == "" {
		cfg.DefaultInstallRoot = def.DefaultInstallRoot
	}
	if cfg.Policy.QueryTimeout <= 0 {
		cfg.Policy.QueryTimeout = def.Policy.QueryTimeout
	}
	if cfg.Policy.BatchCeiling <= 0 {
		cfg.Policy.BatchCeiling = def.Policy.BatchCeiling
	}
	if cfg.Policy.StragglerFraction < 0 || cfg.Policy.StragglerFraction >= 1 {
		cfg.Policy.StragglerFraction = def.Policy.StragglerFraction
	}

	// The engine's own package is always protected from cleanup.
	if !containsFold(cfg.DoNotClean, SelfPackageName) {
		cfg.DoNotClean = append(cfg.DoNotClean, SelfPackageName)
	}
}

// Validate checks the configuration for contradictions.
func Validate(cfg *Config) error {
	seen := make(map[string]struct{})
	for _, r := range cfg.Repositories {
		if strings.TrimSpace(r.Name) == "" {
			return fmt.Errorf("repository with url %q has no name", r.URL)
		}
		if strings.TrimSpace(r.URL) == "" {
			return fmt.Errorf("repository %q has no url", r.Name)
		}
		key := strings.ToLower(r.Name)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate repository name %q", r.Name)
		}
		seen[key] = struct{}{}
	}

	for pkg, repos := range cfg.Blacklist {
		for _, name := range repos {
			if _, known := seen[strings.ToLower(name)]; !known {
				return fmt.Errorf("blacklist for %q names unknown repository %q", pkg, name)
			}
		}
	}

	return nil
}

func containsFold(list []string, want string) bool {
	for _, s := range list {
		if strings.EqualFold(s, want) {
			return true
		}
	}
	return false
}
