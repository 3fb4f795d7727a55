package scanner

import (
	"sort"
	"strings"

	"github.com/blackwell-systems/pkgup/internal/version"
)

// Location is one installed copy of a package: a root install directory plus
// the version found there. Version is nil when only a raw, unparsable version
// string was recoverable from the metadata.
type Location struct {
	BasePath   string
	Version    *version.Version
	RawVersion string
	Author     string
	Repository string
}

// Package is all installed locations of one package, ordered by
// (BasePath, Version ascending).
type Package struct {
	Name      string
	Locations []Location
}

// Highest returns the highest installed version across all locations.
// Locations with unparsable versions never win. ok is false when no location
// carries a parsed version.
func (p *Package) Highest() (version.Version, bool) {
	var best version.Version
	found := false
	for _, loc := range p.Locations {
		if loc.Version == nil {
			continue
		}
		if !found || version.IsNewer(best, *loc.Version) {
			best = *loc.Version
			found = true
		}
	}
	return best, found
}

// HasVersion reports whether any location under basePath holds the given
// version string.
func (p *Package) HasVersion(basePath, ver string) bool {
	for _, loc := range p.Locations {
		if loc.BasePath != basePath {
			continue
		}
		if loc.RawVersion == ver {
			return true
		}
		if loc.Version != nil && loc.Version.String() == ver {
			return true
		}
	}
	return false
}

// BasePaths returns the distinct base paths of the package, sorted.
func (p *Package) BasePaths() []string {
	seen := make(map[string]struct{})
	var paths []string
	for _, loc := range p.Locations {
		if _, dup := seen[loc.BasePath]; dup {
			continue
		}
		seen[loc.BasePath] = struct{}{}
		paths = append(paths, loc.BasePath)
	}
	sort.Strings(paths)
	return paths
}

// Author returns the first non-empty author recorded across locations.
func (p *Package) Author() string {
	for _, loc := range p.Locations {
		if loc.Author != "" {
			return loc.Author
		}
	}
	return ""
}

// Inventory is the result of one scan: every discovered package with its
// installed locations. Read-only after the scan completes.
type Inventory struct {
	Packages []Package
}

// Get returns the package with the given name (case-insensitive).
func (inv *Inventory) Get(name string) (*Package, bool) {
	for i := range inv.Packages {
		if strings.EqualFold(inv.Packages[i].Name, name) {
			return &inv.Packages[i], true
		}
	}
	return nil, false
}

// Len returns the number of distinct packages.
func (inv *Inventory) Len() int {
	return len(inv.Packages)
}
