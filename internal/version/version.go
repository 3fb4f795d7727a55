// Package version parses and orders package version strings.
//
// A version string has the shape <N.N[.N[.N]]>[-<label>] where the base is a
// dot-separated sequence of 2-4 non-negative integers and the optional label
// is a SemVer-style pre-release suffix (dot-separated alphanumeric/hyphen
// tokens). Ordering follows the engine's update policy, which deliberately
// deviates from SemVer: a pre-release with the same base as a stable release
// is considered newer than the stable release. See Compare for details.
package version

import (
	"strconv"
	"strings"
)

// Version is an immutable parsed package version.
type Version struct {
	// Base holds up to 4 numeric components. Missing trailing components
	// are zero-valued and compare as 0.
	Base [4]int

	// Parts is how many base components the raw string actually carried (2-4).
	Parts int

	// PreRelease is the label after the first hyphen, empty for stable versions.
	PreRelease string

	// Raw is the original unmodified input string.
	Raw string
}

// IsPreRelease reports whether the version carries a pre-release label.
func (v Version) IsPreRelease() bool {
	return v.PreRelease != ""
}

// String reconstructs the canonical form: base components joined by dots,
// followed by -label when present. This is the definitive target string the
// pipeline hands to repositories.
func (v Version) String() string {
	parts := make([]string, v.Parts)
	for i := 0; i < v.Parts; i++ {
		parts[i] = strconv.Itoa(v.Base[i])
	}
	s := strings.Join(parts, ".")
	if v.PreRelease != "" {
		s += "-" + v.PreRelease
	}
	return s
}

// Parse parses raw into a Version. ok is false when the base portion is not a
// dot-separated sequence of 2-4 non-negative integers. A failed parse yields
// no version, never a zero version.
func Parse(raw string) (Version, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Version{}, false
	}

	base := s
	label := ""
	if idx := strings.IndexByte(s, '-'); idx >= 0 {
		base = s[:idx]
		label = s[idx+1:]
		if label == "" || !validLabel(label) {
			return Version{}, false
		}
	}

	fields := strings.Split(base, ".")
	if len(fields) < 2 || len(fields) > 4 {
		return Version{}, false
	}

	v := Version{Parts: len(fields), PreRelease: label, Raw: raw}
	for i, f := range fields {
		if !allDigits(f) {
			return Version{}, false
		}
		n, err := strconv.Atoi(f)
		if err != nil {
			return Version{}, false
		}
		v.Base[i] = n
	}

	return v, true
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// validLabel checks the SemVer pre-release grammar: one or more dot-separated
// tokens of alphanumerics and hyphens.
func validLabel(label string) bool {
	for _, tok := range strings.Split(label, ".") {
		if tok == "" {
			return false
		}
		for _, r := range tok {
			switch {
			case r >= '0' && r <= '9':
			case r >= 'a' && r <= 'z':
			case r >= 'A' && r <= 'Z':
			case r == '-':
			default:
				return false
			}
		}
	}
	return true
}
