package per

import (
	"github.com/rhartert/per/sumtree"
	"github.com/rhartert/sparsesets"
)

// maskState is a reversible structure which temporarily removes entries from
// a sum tree by setting their priority to zero. It keeps track of the masked
// slots and their original priorities so that all of them can be restored
// at once.
type maskState[E any] struct {
	tree *sumtree.SumTree[E]

	// Stack of masked slots and their priority before masking. Both slices
	// are kept aligned so that they can be passed to a batch update as is.
	slots      []int
	priorities []float64

	// Set of masked slots. The set is allocated once for the capacity of the
	// tree and reused by every batch.
	masked *sparsesets.Set
}

func newMaskState[E any](tree *sumtree.SumTree[E]) *maskState[E] {
	return &maskState[E]{
		tree:   tree,
		masked: sparsesets.New(tree.Cap()),
	}
}

// Len returns the number of currently masked slots.
func (m *maskState[E]) Len() int {
	return len(m.slots)
}

// Masked returns true if the slot is currently masked.
func (m *maskState[E]) Masked(slot int) bool {
	return m.masked.Contains(slot)
}

// Mask sets the priority of the slot to zero. The change is registered so
// that it can be undone by Restore. Masking an already masked slot is a no-op.
func (m *maskState[E]) Mask(slot int, priority float64) error {
	if m.masked.Contains(slot) {
		return nil
	}
	if err := m.tree.Update(slot, 0); err != nil {
		return err
	}
	m.slots = append(m.slots, slot)
	m.priorities = append(m.priorities, priority)
	m.masked.Insert(slot)
	return nil
}

// Restore puts back the original priority of every masked slot with a single
// batch update and clears the mask.
func (m *maskState[E]) Restore() error {
	err := m.tree.BatchUpdate(m.slots, m.priorities, nil)
	m.slots = m.slots[:0]
	m.priorities = m.priorities[:0]
	m.masked.Clear()
	return err
}
