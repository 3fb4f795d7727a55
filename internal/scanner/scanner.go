// Package scanner discovers installed packages across a set of search roots
// and aggregates them into a canonical inventory.
//
// A scan runs in three phases: a sequential filesystem walk that enumerates
// metadata files, a bounded parallel extraction phase that routes each file to
// the right parser, and a sequential aggregation phase that deduplicates,
// normalizes base paths and orders the result deterministically.
package scanner

import (
	"io/fs"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/blackwell-systems/pkgup/internal/logging"
	"github.com/blackwell-systems/pkgup/internal/manifest"
	"github.com/blackwell-systems/pkgup/internal/version"
)

// Scanner discovers package metadata under search roots.
type Scanner struct {
	log zerolog.Logger

	// Workers bounds the parallel extraction phase. Zero means one worker
	// per available CPU.
	Workers int
}

// New creates a Scanner.
func New() *Scanner {
	return &Scanner{log: logging.GetLogger("scanner")}
}

// candidate is one enumerated metadata file awaiting extraction.
type candidate struct {
	path string
	kind manifest.Kind
}

// Scan walks roots, extracts metadata in parallel and returns the aggregated
// inventory. Packages whose name appears in ignore are dropped. Unreadable
// files and malformed metadata are logged and skipped; they never abort the
// scan.
func (s *Scanner) Scan(roots []string, ignore []string) *Inventory {
	candidates := s.enumerate(roots)

	// Records are extracted before manifests so that manifest resolution can
	// prefer the authoritative installer-written version at the same
	// location over a raw manifest string.
	var records []candidate
	var manifests []candidate
	for _, c := range candidates {
		if c.kind == manifest.KindRecord {
			records = append(records, c)
		} else {
			manifests = append(manifests, c)
		}
	}

	var recordInfos []manifest.Info
	s.extract(records, nil, &recordInfos)

	registered := make(map[string]version.Version, len(recordInfos))
	for _, info := range recordInfos {
		if info.Version != nil {
			registered[registryKey(info.Name, info.BasePath)] = *info.Version
		}
	}
	lookup := func(name, basePath string) (version.Version, bool) {
		v, ok := registered[registryKey(name, basePath)]
		return v, ok
	}

	var manifestInfos []manifest.Info
	s.extract(manifests, lookup, &manifestInfos)

	return s.aggregate(append(recordInfos, manifestInfos...), ignore)
}

// enumerate is the sequential walk phase: it lists every metadata-like file
// under the given roots.
func (s *Scanner) enumerate(roots []string) []candidate {
	var candidates []candidate
	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				s.log.Debug().Err(err).Str("path", path).Msg("skipping unreadable entry")
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return nil
			}
			if kind := manifest.Classify(path); kind != manifest.KindUnknown {
				candidates = append(candidates, candidate{path: path, kind: kind})
			}
			return nil
		})
		if err != nil {
			s.log.Warn().Err(err).Str("root", root).Msg("search root walk failed")
		}
	}
	return candidates
}

// extract is the parallel phase: a bounded worker pool parses each candidate
// and appends successful results to out. The resource filter runs before any
// parsing so localization payloads are skipped cheaply.
func (s *Scanner) extract(candidates []candidate, lookup manifest.Lookup, out *[]manifest.Info) {
	if len(candidates) == 0 {
		return
	}

	workers := s.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(candidates) {
		workers = len(candidates)
	}

	resolver := &manifest.Resolver{Registered: lookup}

	var mu sync.Mutex
	var wg sync.WaitGroup
	work := make(chan candidate)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range work {
				info, ok := s.extractOne(resolver, c)
				if !ok {
					continue
				}
				mu.Lock()
				*out = append(*out, info)
				mu.Unlock()
			}
		}()
	}

	for _, c := range candidates {
		work <- c
	}
	close(work)
	wg.Wait()
}

// extractOne routes a single candidate to its parser.
func (s *Scanner) extractOne(resolver *manifest.Resolver, c candidate) (manifest.Info, bool) {
	if manifest.IsResourcePath(c.path) {
		return manifest.Info{}, false
	}

	switch c.kind {
	case manifest.KindRecord:
		info, err := manifest.ParseRecord(c.path)
		if err != nil {
			s.log.Debug().Err(err).Str("path", c.path).Msg("skipping metadata record")
			return manifest.Info{}, false
		}
		return info, true
	case manifest.KindManifest:
		info, ok := resolver.Resolve(c.path)
		if !ok {
			s.log.Debug().Str("path", c.path).Msg("manifest did not resolve to a package")
			return manifest.Info{}, false
		}
		return info, true
	default:
		return manifest.Info{}, false
	}
}

// aggregate is the sequential phase that turns raw extraction results into a
// deduplicated, normalized, deterministically ordered inventory.
func (s *Scanner) aggregate(infos []manifest.Info, ignore []string) *Inventory {
	ignored := make(map[string]struct{}, len(ignore))
	for _, name := range ignore {
		ignored[strings.ToLower(name)] = struct{}{}
	}

	// Dedupe by (name, base path, raw version string).
	type entryKey struct {
		name string
		base string
		ver  string
	}
	seen := make(map[entryKey]struct{})

	// Group by (name, normalized base path); within a group, collapse
	// duplicate version identifiers preferring structurally validated
	// versions over string-only ones.
	type groupKey struct {
		name string
		base string
	}
	groups := make(map[groupKey]map[string]Location)
	displayName := make(map[string]string)

	for _, info := range infos {
		base := normalizeBasePath(info.BasePath)
		nameKey := strings.ToLower(info.Name)
		if _, drop := ignored[nameKey]; drop {
			continue
		}
		if _, exists := displayName[nameKey]; !exists {
			displayName[nameKey] = info.Name
		}

		ek := entryKey{name: nameKey, base: base, ver: info.RawVersion}
		if _, dup := seen[ek]; dup {
			continue
		}
		seen[ek] = struct{}{}

		gk := groupKey{name: nameKey, base: base}
		if groups[gk] == nil {
			groups[gk] = make(map[string]Location)
		}

		loc := Location{
			BasePath:   base,
			Version:    info.Version,
			RawVersion: info.RawVersion,
			Author:     info.Author,
			Repository: info.Repository,
		}
		verKey := loc.RawVersion
		if loc.Version != nil {
			verKey = loc.Version.String()
		}

		existing, found := groups[gk][verKey]
		if !found {
			groups[gk][verKey] = loc
			continue
		}
		// Collapse duplicates: a validated version wins over a string-only
		// one; otherwise keep the first entry but fill in a missing author.
		if existing.Version == nil && loc.Version != nil {
			if loc.Author == "" {
				loc.Author = existing.Author
			}
			groups[gk][verKey] = loc
		} else if existing.Author == "" && loc.Author != "" {
			existing.Author = loc.Author
			groups[gk][verKey] = existing
		}
	}

	// Rebuild per-package location lists.
	byName := make(map[string][]Location)
	for gk, versions := range groups {
		for _, loc := range versions {
			byName[gk.name] = append(byName[gk.name], loc)
		}
	}

	inv := &Inventory{}
	for nameKey, locs := range byName {
		sort.Slice(locs, func(i, j int) bool {
			if locs[i].BasePath != locs[j].BasePath {
				return locs[i].BasePath < locs[j].BasePath
			}
			vi, vj := locs[i].Version, locs[j].Version
			switch {
			case vi == nil && vj == nil:
				return locs[i].RawVersion < locs[j].RawVersion
			case vi == nil:
				return true
			case vj == nil:
				return false
			default:
				// Ascending: i sorts first when j is the newer of the two.
				return version.IsNewer(*vi, *vj)
			}
		})
		inv.Packages = append(inv.Packages, Package{Name: displayName[nameKey], Locations: locs})
	}

	sort.Slice(inv.Packages, func(i, j int) bool {
		return strings.ToLower(inv.Packages[i].Name) < strings.ToLower(inv.Packages[j].Name)
	})

	s.log.Info().Int("packages", len(inv.Packages)).Msg("scan aggregated")
	return inv
}

// normalizeBasePath rewrites a base path whose leaf is itself a version
// directory to its parent — the true package root.
func normalizeBasePath(base string) string {
	clean := filepath.Clean(base)
	if _, ok := version.Parse(filepath.Base(clean)); ok {
		return filepath.Dir(clean)
	}
	return clean
}

func registryKey(name, basePath string) string {
	return strings.ToLower(name) + "\x00" + filepath.Clean(basePath)
}
