// Savora - Recipe Recommendation and Model Monitoring Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/savora

package registry

import (
	"fmt"
	"strconv"
	"strings"
)

// InitialVersion is assigned to the first version of a model lineage created
// by retraining.
const InitialVersion = "0.1.0"

// parseVersion splits a "major.minor.patch" string into its components.
func parseVersion(v string) (major, minor, patch int, ok bool) {
	parts := strings.Split(v, ".")
	if len(parts) != 3 {
		return 0, 0, 0, false
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || (len(p) > 1 && p[0] == '0') {
			return 0, 0, 0, false
		}
		nums[i] = n
	}
	return nums[0], nums[1], nums[2], true
}

// IsValidVersion reports whether v is a plain "major.minor.patch" semantic
// version. Pre-release and build suffixes are not used by this service.
func IsValidVersion(v string) bool {
	_, _, _, ok := parseVersion(v)
	return ok
}

// CompareVersions orders two valid versions: -1, 0, or 1 as a is lower,
// equal, or higher than b. Invalid versions sort lowest.
func CompareVersions(a, b string) int {
	aMaj, aMin, aPat, aOK := parseVersion(a)
	bMaj, bMin, bPat, bOK := parseVersion(b)
	if !aOK || !bOK {
		switch {
		case aOK:
			return 1
		case bOK:
			return -1
		default:
			return 0
		}
	}
	av := [3]int{aMaj, aMin, aPat}
	bv := [3]int{bMaj, bMin, bPat}
	for i := range av {
		if av[i] != bv[i] {
			if av[i] < bv[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// HighestVersion returns the highest valid version in versions, or "" when
// none is valid.
func HighestVersion(versions []string) string {
	best := ""
	for _, v := range versions {
		if !IsValidVersion(v) {
			continue
		}
		if best == "" || CompareVersions(v, best) > 0 {
			best = v
		}
	}
	return best
}

// BumpMinor increments the minor component and resets patch: "1.2.3" →
// "1.3.0". Retraining uses this to derive candidate versions.
func BumpMinor(v string) (string, error) {
	major, minor, _, ok := parseVersion(v)
	if !ok {
		return "", fmt.Errorf("%w: version %q is not a semantic version", ErrInvalidMetadata, v)
	}
	return fmt.Sprintf("%d.%d.0", major, minor+1), nil
}
