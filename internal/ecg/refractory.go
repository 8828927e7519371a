package ecg

import "sort"

// EnforceRefractory thins candidate peak indices so consecutive kept peaks
// are at least minDist samples apart. The scan is greedy from the left: the
// first index is kept and each later one survives only if it is far enough
// past the last kept index. A taller peak just inside the refractory window
// is therefore dropped in favour of the earlier one; the result is stable
// and needs no lookahead. minDist below 1 is treated as 1, which removes
// duplicates. The input is not modified.
func EnforceRefractory(idx []int, minDist int) []int {
	if len(idx) == 0 {
		return []int{}
	}
	if minDist < 1 {
		minDist = 1
	}

	sorted := idx
	if !sort.IntsAreSorted(idx) {
		sorted = make([]int, len(idx))
		copy(sorted, idx)
		sort.Ints(sorted)
	}

	keep := []int{sorted[0]}
	for _, k := range sorted[1:] {
		if k-keep[len(keep)-1] >= minDist {
			keep = append(keep, k)
		}
	}
	return keep
}
