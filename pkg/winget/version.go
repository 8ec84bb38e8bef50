package winget

import (
	"regexp"
	"strconv"
)

var digitRuns = regexp.MustCompile(`\d+`)

// ParseVersion extracts the numeric components of a version string, padded to at
// least major.minor.patch. "v2.1" parses as [2 1 0]; non-numeric text is ignored.
func ParseVersion(version string) []int {
	runs := digitRuns.FindAllString(version, -1)
	parts := make([]int, 0, max(len(runs), 3))
	for _, run := range runs {
		n, err := strconv.Atoi(run)
		if err != nil {
			// overflowing runs compare as the largest value
			n = int(^uint(0) >> 1)
		}
		parts = append(parts, n)
	}
	for len(parts) < 3 {
		parts = append(parts, 0)
	}
	return parts
}

// CompareVersions returns -1, 0 or 1 as a is older than, equal to or newer than b
func CompareVersions(a, b string) int {
	pa, pb := ParseVersion(a), ParseVersion(b)
	for i := 0; i < max(len(pa), len(pb)); i++ {
		var x, y int
		if i < len(pa) {
			x = pa[i]
		}
		if i < len(pb) {
			y = pb[i]
		}
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	}
	return 0
}

// IsNewer reports whether candidate is a strictly higher version than current
func IsNewer(current, candidate string) bool {
	return CompareVersions(candidate, current) > 0
}
