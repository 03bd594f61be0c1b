package per

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rhartert/per/sumtree"
)

func newMaskedTree(t *testing.T, priorities []float64) (*sumtree.SumTree[int], *maskState[int]) {
	t.Helper()
	tree, err := sumtree.New[int](len(priorities))
	if err != nil {
		t.Fatalf("sumtree.New(): %s", err)
	}
	for i, p := range priorities {
		tree.Insert(i, p)
	}
	return tree, newMaskState(tree)
}

func TestMaskState_Mask(t *testing.T) {
	tree, mask := newMaskedTree(t, []float64{1, 2, 3, 4})

	if err := mask.Mask(1, 2); err != nil {
		t.Fatalf("Mask(1): %s", err)
	}
	if err := mask.Mask(3, 4); err != nil {
		t.Fatalf("Mask(3): %s", err)
	}

	if diff := cmp.Diff([]float64{1, 0, 3, 0}, tree.Priorities()); diff != "" {
		t.Errorf("Priorities(): mismatch (-want +got):\n%s", diff)
	}
	if got := tree.Total(); got != 4 {
		t.Errorf("Total(): want 4, got %f", got)
	}
	if got := mask.Len(); got != 2 {
		t.Errorf("Len(): want 2, got %d", got)
	}
	for slot, want := range []bool{false, true, false, true} {
		if got := mask.Masked(slot); got != want {
			t.Errorf("Masked(%d): want %t, got %t", slot, want, got)
		}
	}
}

func TestMaskState_Mask_twice(t *testing.T) {
	tree, mask := newMaskedTree(t, []float64{1, 2})

	mask.Mask(0, 1)
	mask.Mask(0, 0) // already masked, the original priority is kept

	if got := mask.Len(); got != 1 {
		t.Errorf("Len(): want 1, got %d", got)
	}
	if err := mask.Restore(); err != nil {
		t.Fatalf("Restore(): %s", err)
	}
	if diff := cmp.Diff([]float64{1, 2}, tree.Priorities()); diff != "" {
		t.Errorf("Priorities(): mismatch (-want +got):\n%s", diff)
	}
}

func TestMaskState_Mask_outOfRange(t *testing.T) {
	tree, err := sumtree.New[int](4)
	if err != nil {
		t.Fatalf("sumtree.New(): %s", err)
	}
	tree.Insert(0, 1)
	mask := newMaskState(tree)

	if err := mask.Mask(2, 1); err == nil {
		t.Errorf("Mask(2): want error, got nil")
	}
	if mask.Masked(2) || mask.Len() != 0 {
		t.Errorf("Mask(2): failed mask must not be registered")
	}
}

func TestMaskState_Restore(t *testing.T) {
	want := []float64{0.5, 2, 0, 7, 1}
	tree, mask := newMaskedTree(t, want)
	wantTotal := tree.Total()

	for _, slot := range []int{3, 0, 4} {
		p, _ := tree.Priority(slot)
		mask.Mask(slot, p)
	}
	if err := mask.Restore(); err != nil {
		t.Fatalf("Restore(): %s", err)
	}

	if diff := cmp.Diff(want, tree.Priorities()); diff != "" {
		t.Errorf("Priorities(): mismatch (-want +got):\n%s", diff)
	}
	if got := tree.Total(); got != wantTotal {
		t.Errorf("Total(): want %f, got %f", wantTotal, got)
	}
	if got := mask.Len(); got != 0 {
		t.Errorf("Len(): want 0 after restore, got %d", got)
	}
	for slot := range want {
		if mask.Masked(slot) {
			t.Errorf("Masked(%d): want false after restore", slot)
		}
	}
}
