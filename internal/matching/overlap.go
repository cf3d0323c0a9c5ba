package matching

import (
	"sort"
	"strings"
)

// SlotOverlap intersects two participants' declared availability options.
// Slot identifiers are opaque strings; empty and whitespace-only entries
// are discarded. When the sets intersect, the lexicographically smallest
// common slot is returned so repeated passes pick the same representative.
func SlotOverlap(a, b []string) (string, bool) {
	set := make(map[string]bool, MaxTimeSlots)
	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" {
			set[s] = true
		}
	}

	var common []string
	seen := make(map[string]bool, MaxTimeSlots)
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		if set[s] {
			common = append(common, s)
		}
	}

	if len(common) == 0 {
		return "", false
	}
	sort.Strings(common)
	return common[0], true
}
