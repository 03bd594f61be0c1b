// Package sumtree provides a fixed-capacity circular buffer whose entries are
// stored in the leaves of a sum tree. Each leaf carries a priority and every
// internal node caches the sum of the priorities below it, which allows
// O(log N) updates and O(log N) priority-proportional lookups.
package sumtree

import (
	"errors"
	"fmt"
	"iter"
	"math/bits"
	"strings"
)

var (
	// ErrInvalidCapacity is returned when a tree is created with a capacity
	// that is not strictly positive.
	ErrInvalidCapacity = errors.New("invalid capacity")

	// ErrIndexOutOfRange is returned when a slot index is negative or not
	// lower than the number of entries currently stored.
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrLengthMismatch is returned when parallel slices passed to a batch
	// operation do not have the same length.
	ErrLengthMismatch = errors.New("length mismatch")
)

// SumTree is a circular buffer of capacity slots. Once full, each insertion
// overwrites the oldest written slot regardless of its priority.
type SumTree[V any] struct {
	capacity int
	size     int
	cursor   int // next slot to write

	// firstLeaf is the array index of slot 0.
	firstLeaf int

	// tree represents a complete binary tree whose leaves start at firstLeaf.
	// The root is at index 0 and the children of the node at index i are at
	// 2i+1 and 2i+2. The priority of a parent is the sum of the priorities of
	// its children.
	tree   []float64
	values []V
}

// New returns an empty tree that can hold up to capacity entries.
func New[V any](capacity int) (*SumTree[V], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("capacity must be greater than 0, got %d: %w", capacity, ErrInvalidCapacity)
	}
	leaves := nextPower2(capacity)
	return &SumTree[V]{
		capacity:  capacity,
		firstLeaf: leaves - 1,
		tree:      make([]float64, 2*leaves-1),
		values:    make([]V, capacity),
	}, nil
}

// nextPower2 returns the smallest power of 2 greater or equal to n (n > 0).
func nextPower2(n int) int {
	return 1 << bits.Len(uint(n-1))
}

// Total returns the sum of all the priorities in the tree.
func (st *SumTree[V]) Total() float64 {
	return st.tree[0]
}

// Len returns the number of entries currently stored.
func (st *SumTree[V]) Len() int {
	return st.size
}

// Cap returns the maximum number of entries the tree can hold.
func (st *SumTree[V]) Cap() int {
	return st.capacity
}

// Cursor returns the slot that will be written by the next call to Insert.
func (st *SumTree[V]) Cursor() int {
	return st.cursor
}

// Insert writes value with the given priority in the slot at the cursor and
// advances the cursor. If the tree was full, the overwritten entry and its
// priority are returned with ok set to true.
func (st *SumTree[V]) Insert(value V, priority float64) (evicted V, evictedPriority float64, ok bool) {
	slot := st.cursor
	if st.size == st.capacity {
		evicted = st.values[slot]
		evictedPriority = st.tree[st.firstLeaf+slot]
		ok = true
	} else {
		st.size++
	}

	st.values[slot] = value
	st.set(slot, priority)
	st.cursor = (st.cursor + 1) % st.capacity
	return evicted, evictedPriority, ok
}

// Update sets the priority of the entry in the given slot.
func (st *SumTree[V]) Update(index int, priority float64) error {
	if err := st.checkIndex(index); err != nil {
		return err
	}
	st.set(index, priority)
	return nil
}

// Replace overwrites both the payload and the priority of the entry in the
// given slot.
func (st *SumTree[V]) Replace(index int, value V, priority float64) error {
	if err := st.checkIndex(index); err != nil {
		return err
	}
	st.values[index] = value
	st.set(index, priority)
	return nil
}

// BatchUpdate applies Update (or Replace) to each (index, priority) pair in
// order, so that the last write wins for duplicated indices. If values is not
// nil, it must have the same length as indices; a nil element keeps the
// current payload of the corresponding slot.
//
// All the arguments are validated before the tree is modified.
func (st *SumTree[V]) BatchUpdate(indices []int, priorities []float64, values []*V) error {
	if len(indices) != len(priorities) {
		return fmt.Errorf("got %d indices and %d priorities: %w", len(indices), len(priorities), ErrLengthMismatch)
	}
	if values != nil && len(values) != len(indices) {
		return fmt.Errorf("got %d indices and %d values: %w", len(indices), len(values), ErrLengthMismatch)
	}
	for _, i := range indices {
		if err := st.checkIndex(i); err != nil {
			return err
		}
	}

	for k, i := range indices {
		if values != nil && values[k] != nil {
			st.values[i] = *values[k]
		}
		st.set(i, priorities[k])
	}
	return nil
}

// Transform replaces the payload and priority of every stored entry with the
// values returned by f, then rebuilds the sums of the whole tree. This is done
// in O(N) rather than O(N log N) for N calls to Replace.
func (st *SumTree[V]) Transform(f func(slot int, value V, priority float64) (V, float64)) {
	for k := 0; k < st.size; k++ {
		i := st.firstLeaf + k
		st.values[k], st.tree[i] = f(k, st.values[k], st.tree[i])
	}
	for p := st.firstLeaf - 1; p >= 0; p-- {
		l := 2*p + 1
		st.tree[p] = st.tree[l] + st.tree[l+1]
	}
}

// Priority returns the priority of the entry in the given slot.
func (st *SumTree[V]) Priority(index int) (float64, error) {
	if err := st.checkIndex(index); err != nil {
		return 0, err
	}
	return st.tree[st.firstLeaf+index], nil
}

// Value returns the payload of the entry in the given slot.
func (st *SumTree[V]) Value(index int) (V, error) {
	if err := st.checkIndex(index); err != nil {
		var zero V
		return zero, err
	}
	return st.values[index], nil
}

// Get returns the slot, payload and priority of the entry whose cumulative
// priority interval contains mass. If percentage is true, mass is a fraction
// in [0, 1] of the total priority. Get returns slot -1 if the tree is empty.
//
// The search descends left whenever the remaining mass is lower or equal to
// the left child's sum, otherwise it subtracts that sum and descends right.
// Subtrees without any priority are only entered if their sibling has none
// either. In particular, Get(0, true) returns the first slot with a positive
// priority and Get(1, true) the last one.
//
// Lookups assume non-negative priorities. A subtree with a negative sum is
// treated like an empty one.
func (st *SumTree[V]) Get(mass float64, percentage bool) (slot int, value V, priority float64) {
	if st.size == 0 {
		return -1, value, 0
	}
	if percentage {
		mass *= st.tree[0]
	}

	i := 0
	for i < st.firstLeaf {
		l := 2*i + 1
		r := l + 1
		if st.tree[r] <= 0 || (mass <= st.tree[l] && st.tree[l] > 0) {
			i = l
		} else {
			mass -= st.tree[l]
			i = r
		}
	}

	slot = i - st.firstLeaf
	return slot, st.values[slot], st.tree[i]
}

// All returns an iterator over the payload and priority of each stored entry,
// in slot order.
func (st *SumTree[V]) All() iter.Seq2[V, float64] {
	return func(yield func(V, float64) bool) {
		for k := 0; k < st.size; k++ {
			if !yield(st.values[k], st.tree[st.firstLeaf+k]) {
				return
			}
		}
	}
}

// Priorities returns the priorities of the stored entries in slot order.
func (st *SumTree[V]) Priorities() []float64 {
	p := make([]float64, st.size)
	copy(p, st.tree[st.firstLeaf:st.firstLeaf+st.size])
	return p
}

// Values returns the payloads of the stored entries in slot order.
func (st *SumTree[V]) Values() []V {
	v := make([]V, st.size)
	copy(v, st.values[:st.size])
	return v
}

// String returns the priority array of the tree with one line per level,
// starting with the root.
func (st *SumTree[V]) String() string {
	sb := strings.Builder{}
	for first := 0; first < len(st.tree); first = 2*first + 1 {
		last := 2 * first // last index of the level
		for i := first; i <= last; i++ {
			sb.WriteString(fmt.Sprintf("%f", st.tree[i]))
			if i < last {
				sb.WriteByte(' ')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func (st *SumTree[V]) checkIndex(index int) error {
	if index < 0 || st.size <= index {
		return fmt.Errorf("index %d out of bounds for %d entries: %w", index, st.size, ErrIndexOutOfRange)
	}
	return nil
}

// set sets the priority of a slot and recomputes the sums of its ancestors.
func (st *SumTree[V]) set(slot int, priority float64) {
	i := st.firstLeaf + slot
	st.tree[i] = priority
	for i > 0 {
		i = (i - 1) / 2
		l := 2*i + 1
		st.tree[i] = st.tree[l] + st.tree[l+1]
	}
}
