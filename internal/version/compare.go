package version

import (
	"strconv"
	"strings"
)

// Pre-release label types ranked by how fresh a build they denote. A higher
// rank is considered newer than a lower one regardless of any numeric suffix:
// 1.0.0-alpha10 is newer than 1.0.0-beta3 because alpha outranks beta.
var labelRank = map[string]int{
	"dev":     5,
	"alpha":   4,
	"beta":    3,
	"preview": 2,
	"rc":      1,
}

// IsNewer reports whether b is strictly newer than a.
//
// Base versions are compared component-wise first and decide the ordering
// outright when they differ. When the bases are equal, a version carrying a
// pre-release label is considered newer than the stable release of the same
// base. This inverts SemVer precedence on purpose: the engine treats a
// same-base pre-release as a build published after the stable release, so an
// opted-in pre-release user is moved onto it.
func IsNewer(a, b Version) bool {
	// Unparsed zero values never decide a comparison.
	if a.Raw == "" || b.Raw == "" {
		return false
	}

	for i := 0; i < 4; i++ {
		if b.Base[i] != a.Base[i] {
			return b.Base[i] > a.Base[i]
		}
	}

	// Equal bases from here on.
	switch {
	case a.PreRelease == "" && b.PreRelease == "":
		return false
	case a.PreRelease == "" && b.PreRelease != "":
		return true
	case a.PreRelease != "" && b.PreRelease == "":
		return false
	}

	return preReleaseNewer(a.PreRelease, b.PreRelease)
}

// IsNewerRaw parses both strings and compares them. Either side failing to
// parse yields false.
func IsNewerRaw(a, b string) bool {
	va, ok := Parse(a)
	if !ok {
		return false
	}
	vb, ok := Parse(b)
	if !ok {
		return false
	}
	return IsNewer(va, vb)
}

// preReleaseNewer reports whether label b denotes a newer build than label a.
func preReleaseNewer(a, b string) bool {
	ra, aKnown := labelRank[labelType(a)]
	rb, bKnown := labelRank[labelType(b)]

	if !aKnown || !bKnown {
		// Unrecognized label types: fall back to ordering the full label text.
		return strings.ToLower(b) > strings.ToLower(a)
	}

	if rb != ra {
		return rb > ra
	}

	return labelNumber(b) > labelNumber(a)
}

// labelType extracts the alphabetic type of a label's leading token:
// "beta3" -> "beta", "rc.1" -> "rc".
func labelType(label string) string {
	tok := label
	if idx := strings.IndexByte(tok, '.'); idx >= 0 {
		tok = tok[:idx]
	}
	end := len(tok)
	for end > 0 && tok[end-1] >= '0' && tok[end-1] <= '9' {
		end--
	}
	return strings.ToLower(tok[:end])
}

// labelNumber extracts the trailing numeric suffix of a label ("beta3" -> 3,
// "rc.2" -> 2). A label without a numeric suffix, or one too large for an
// int, counts as 0.
func labelNumber(label string) int {
	start := len(label)
	for start > 0 && label[start-1] >= '0' && label[start-1] <= '9' {
		start--
	}
	n, err := strconv.Atoi(label[start:])
	if err != nil {
		return 0
	}
	return n
}
