package coordinator

import "sort"

// Assign splits partitions across members as evenly as possible, keeping
// existing placements wherever the new balance allows so a membership change
// moves the minimum number of partitions. Deterministic: identical inputs
// produce an identical assignment.
func Assign(partitions []int32, members []string, current map[string][]int32) map[string][]int32 {
	next := make(map[string][]int32, len(members))
	if len(members) == 0 || len(partitions) == 0 {
		for _, m := range members {
			next[m] = nil
		}
		return next
	}

	sortedMembers := append([]string(nil), members...)
	sort.Strings(sortedMembers)

	sortedParts := append([]int32(nil), partitions...)
	sort.Slice(sortedParts, func(i, j int) bool { return sortedParts[i] < sortedParts[j] })

	known := make(map[int32]struct{}, len(sortedParts))
	for _, p := range sortedParts {
		known[p] = struct{}{}
	}

	// Members earlier in sort order absorb the remainder.
	quota := make(map[string]int, len(sortedMembers))
	base, extra := len(sortedParts)/len(sortedMembers), len(sortedParts)%len(sortedMembers)
	for i, m := range sortedMembers {
		quota[m] = base
		if i < extra {
			quota[m]++
		}
	}

	// Sticky phase: keep current placements up to each member's quota.
	placed := make(map[int32]struct{}, len(sortedParts))
	for _, m := range sortedMembers {
		kept := append([]int32(nil), current[m]...)
		sort.Slice(kept, func(i, j int) bool { return kept[i] < kept[j] })

		for _, p := range kept {
			if len(next[m]) >= quota[m] {
				break
			}
			if _, ok := known[p]; !ok {
				continue
			}
			if _, dup := placed[p]; dup {
				continue
			}
			next[m] = append(next[m], p)
			placed[p] = struct{}{}
		}
	}

	// Fill phase: orphaned partitions go to members with room, in order.
	for _, p := range sortedParts {
		if _, ok := placed[p]; ok {
			continue
		}
		for _, m := range sortedMembers {
			if len(next[m]) < quota[m] {
				next[m] = append(next[m], p)
				placed[p] = struct{}{}
				break
			}
		}
	}

	for _, m := range sortedMembers {
		if _, ok := next[m]; !ok {
			next[m] = nil
		}
		sort.Slice(next[m], func(i, j int) bool { return next[m][i] < next[m][j] })
	}

	return next
}
