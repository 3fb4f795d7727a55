// Package manifest locates and interprets on-disk package metadata.
//
// Two metadata kinds are recognized:
//   - Declarative manifests: <name>.pkg.toml files shipped inside a package,
//     carrying at least a name and version.
//   - Metadata records: .pkginfo.json files written next to an installed
//     version by the installer, carrying name, version, author and the
//     repository the version came from.
//
// Resolve infers the owning package, its root install directory and its
// version from a metadata file path, falling back to content inspection when
// the path alone is not conclusive.
package manifest

import (
	"path/filepath"
	"strings"

	"github.com/blackwell-systems/pkgup/internal/version"
)

// Kind classifies a metadata file.
type Kind int

const (
	KindUnknown Kind = iota
	KindManifest
	KindRecord
)

const (
	// ManifestSuffix marks declarative manifests.
	ManifestSuffix = ".pkg.toml"

	// RecordName is the fixed filename of installer-written metadata records.
	RecordName = ".pkginfo.json"
)

// Info is the result of interpreting one metadata file. Version and Author
// are optional: a nil Version means only RawVersion (possibly empty) was
// recoverable.
type Info struct {
	Name       string
	BasePath   string
	Version    *version.Version
	RawVersion string
	Author     string
	Repository string
}

// Classify returns the metadata kind of a filename.
func Classify(path string) Kind {
	base := filepath.Base(path)
	switch {
	case base == RecordName:
		return KindRecord
	case strings.HasSuffix(base, ManifestSuffix):
		return KindManifest
	default:
		return KindUnknown
	}
}

// Localization directory names that never hold a package's primary manifest.
var localizationDirs = map[string]struct{}{
	"locale":       {},
	"locales":      {},
	"i18n":         {},
	"lang":         {},
	"translations": {},
}

// Filename suffixes of localized resource payloads.
var resourceSuffixes = []string{
	".strings.toml",
	".resources.toml",
	".resources.json",
}

// IsResourcePath reports whether path looks like a localization or resource
// payload rather than a primary metadata file. Such files are filtered out
// before any extraction work is spent on them.
func IsResourcePath(path string) bool {
	base := filepath.Base(path)
	lower := strings.ToLower(base)
	for _, suffix := range resourceSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}

	dir := filepath.Dir(path)
	for {
		leaf := filepath.Base(dir)
		if _, found := localizationDirs[strings.ToLower(leaf)]; found {
			return true
		}
		if isCultureCode(leaf) {
			return true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return false
}

// isCultureCode matches culture directory segments: "en", "fr", "en-US",
// "pt-BR" and the like.
func isCultureCode(segment string) bool {
	lang := segment
	region := ""
	if idx := strings.IndexByte(segment, '-'); idx >= 0 {
		lang = segment[:idx]
		region = segment[idx+1:]
	}

	if len(lang) != 2 || !isAlphaLower(lang) {
		return false
	}
	if region == "" {
		// Bare two-letter segments are only treated as culture codes when
		// lowercase; "Go" or "UI" style names stay eligible.
		return segment == lang
	}
	return len(region) == 2 && isAlphaUpper(region)
}

func isAlphaLower(s string) bool {
	for _, r := range s {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}

func isAlphaUpper(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
