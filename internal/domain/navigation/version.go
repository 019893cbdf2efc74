package navigation

import "strings"

// parseVersion reads up to three numeric components. Non-digits inside a
// component are ignored and missing components count as zero, so "1.2"
// equals "1.2.0" and "v1.4.0-beta" reads as 1.4.0.
func parseVersion(v string) [3]int {
	var out [3]int
	parts := strings.Split(strings.TrimSpace(v), ".")
	for i := 0; i < len(parts) && i < 3; i++ {
		n := 0
		for _, r := range parts[i] {
			if r >= '0' && r <= '9' {
				n = n*10 + int(r-'0')
			}
		}
		out[i] = n
	}
	return out
}

// CompareVersions returns -1, 0 or 1 as a is older than, equal to or newer than b.
func CompareVersions(a, b string) int {
	pa, pb := parseVersion(a), parseVersion(b)
	for i := range pa {
		switch {
		case pa[i] < pb[i]:
			return -1
		case pa[i] > pb[i]:
			return 1
		}
	}
	return 0
}
