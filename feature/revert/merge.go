package revert

import (
	"sort"

	"osm-revert/core/osm"
)

// MergeAndSortDiffs combines per-changeset reconstructions into one diff
// with the newest edits first, so the inversion walks history backwards.
func MergeAndSortDiffs(diffs []osm.Diff) osm.Diff {
	result := osm.NewDiff()

	for _, diff := range diffs {
		for t, entries := range diff {
			result[t] = append(result[t], entries...)
		}
	}

	for t, entries := range result {
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].Timestamp > entries[j].Timestamp
		})
		result[t] = entries
	}

	return result
}
