package per

import "math"

// Top returns the slots of the k entries with the highest sampling priority,
// from highest to lowest. Fewer slots are returned if the buffer holds less
// than k entries.
func (b *Buffer[V]) Top(k int) []int {
	k = max(0, min(k, b.tree.Len()))
	if k == 0 {
		return []int{}
	}

	// The ranking is a min-heap, priorities are negated to rank by decreasing
	// priority.
	slot := 0
	for _, p := range b.tree.All() {
		b.ranking.Put(slot, -p)
		slot++
	}

	top := make([]int, 0, k)
	for len(top) < k {
		entry := b.ranking.Min()
		top = append(top, entry.Elem)
		b.ranking.Put(entry.Elem, math.Inf(1)) // sink selected slots
	}
	return top
}
