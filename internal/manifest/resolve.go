package manifest

import (
	"os"
	"path/filepath"
	"regexp"

	"github.com/pelletier/go-toml/v2"

	"github.com/blackwell-systems/pkgup/internal/version"
)

// Lookup returns an authoritative version for a package at a base path when
// one is independently known (typically from an installer-written metadata
// record at the same location).
type Lookup func(name, basePath string) (version.Version, bool)

// Resolver infers package identity from metadata file paths.
type Resolver struct {
	// Registered, when non-nil, is consulted after path/content resolution
	// to replace a missing or string-only version with an authoritative one
	// recorded at the same location.
	Registered Lookup
}

// declarativeManifest is the subset of a .pkg.toml document the resolver
// cares about.
type declarativeManifest struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
	Author  string `toml:"author"`
}

// versionAssignment matches a version assignment line inside a manifest whose
// document as a whole failed to parse.
var versionAssignment = regexp.MustCompile(`(?m)^\s*version\s*=\s*"([^"]+)"`)

// Resolve infers the package name, root install directory, version and author
// for the metadata file at path. ok is false when the path is a resource
// payload or no package name could be determined.
//
// Strategies are tried in order, first success wins:
//  1. structural path match: .../<root>/<name>/<version>/... extracts all
//     parts directly;
//  2. heuristic directory walk: the containing directory is the base path
//     candidate unless its own name parses as a version, in which case the
//     grandparent is the true root;
//  3. content fallback: a declarative manifest's version field.
func (r *Resolver) Resolve(path string) (Info, bool) {
	if IsResourcePath(path) {
		return Info{}, false
	}

	info, found := resolveFromPath(path)
	if !found {
		return Info{}, false
	}

	// Content inspection fills in what the path did not carry, and is the
	// only source for the author.
	if Classify(path) == KindManifest {
		if doc, ok := readManifest(path); ok {
			if info.RawVersion == "" && doc.Version != "" {
				info.RawVersion = doc.Version
				if v, ok := version.Parse(doc.Version); ok {
					info.Version = &v
				}
			}
			info.Author = doc.Author
		}
	}

	// A manifest whose version is missing or malformed trusts the
	// authoritative registered version at the same location, when one exists.
	if info.Version == nil && r.Registered != nil {
		if v, ok := r.Registered(info.Name, info.BasePath); ok {
			vv := v
			info.Version = &vv
			info.RawVersion = v.Raw
		}
	}

	if info.RawVersion == "" && info.Version == nil {
		return Info{}, false
	}

	return info, true
}

// resolveFromPath applies the structural and heuristic path strategies.
func resolveFromPath(path string) (Info, bool) {
	dir := filepath.Dir(path)
	leaf := filepath.Base(dir)
	if leaf == "." || leaf == string(filepath.Separator) {
		return Info{}, false
	}

	// A version-named containing directory means the layout is
	// <root>/<name>/<version>/<file>: step up one level for the true root.
	if v, ok := version.Parse(leaf); ok {
		parent := filepath.Dir(dir)
		name := filepath.Base(parent)
		if name == "." || name == string(filepath.Separator) {
			return Info{}, false
		}
		return Info{
			Name:       name,
			BasePath:   parent,
			Version:    &v,
			RawVersion: leaf,
		}, true
	}

	// Walk the remaining ancestors looking for a version segment deeper
	// nesting may have pushed further up (<root>/<name>/<version>/sub/dir/).
	probe := filepath.Dir(dir)
	for {
		segment := filepath.Base(probe)
		parent := filepath.Dir(probe)
		if parent == probe {
			break
		}
		if v, ok := version.Parse(segment); ok {
			return Info{
				Name:       filepath.Base(parent),
				BasePath:   parent,
				Version:    &v,
				RawVersion: segment,
			}, true
		}
		probe = parent
	}

	// No version anywhere on the path: the containing directory is the base
	// path and its name the package name. Version must come from content.
	return Info{
		Name:     leaf,
		BasePath: dir,
	}, true
}

// readManifest parses a declarative manifest, tolerating malformed documents
// by regex-scanning for a version assignment as a last resort.
func readManifest(path string) (declarativeManifest, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return declarativeManifest{}, false
	}

	var doc declarativeManifest
	if err := toml.Unmarshal(data, &doc); err == nil {
		return doc, true
	}

	if m := versionAssignment.FindSubmatch(data); m != nil {
		return declarativeManifest{Version: string(m[1])}, true
	}

	return declarativeManifest{}, false
}
