// Package per contains a prioritized buffer for prioritized experience
// replay. Entries are kept in a fixed-capacity circular buffer and sampled
// with a probability proportional to their priority raised to the power of
// alpha. Each entry also carries an importance weight, controlled by beta,
// that can be used to correct for the bias of non-uniform sampling.
//
// A Buffer is not safe for concurrent use.
package per

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/rhartert/per/sumtree"
	"github.com/rhartert/yagh"
)

// Errors returned by the buffer. The first three are shared with package
// sumtree so that errors.Is works regardless of which layer reported them.
var (
	ErrInvalidCapacity = sumtree.ErrInvalidCapacity
	ErrIndexOutOfRange = sumtree.ErrIndexOutOfRange
	ErrLengthMismatch  = sumtree.ErrLengthMismatch

	// ErrDegenerateExponent is returned when alpha or beta is not strictly
	// positive. Rescaling stored priorities and weights divides by the
	// previous exponent, which must therefore never be zero.
	ErrDegenerateExponent = errors.New("degenerate exponent")
)

// maxEpsilon is the tolerance used to decide whether an entry holds the
// cached maximum priority or weight.
const maxEpsilon = 1e-16

// Entry is the payload stored in each leaf of the buffer's sum tree.
type Entry[V any] struct {
	Value  V
	Weight float64 // importance weight
}

// Buffer is a prioritized circular buffer. Once full, each new entry
// overwrites the oldest one.
type Buffer[V any] struct {
	capacity int
	alpha    float64
	beta     float64
	rng      *rand.Rand

	// Cached maxima over the resident entries. They are only recomputed when
	// the entry holding the maximum is overwritten (see recomputeMaxPriority
	// and recomputeMaxWeight) which keeps pushes and updates O(log N) in the
	// common case. A cache that is never recomputed would keep the priority
	// of entries that are long gone.
	maxPriority float64
	maxWeight   float64

	// The priority of each leaf is the sampling priority |p|^alpha of its
	// entry.
	tree *sumtree.SumTree[Entry[V]]

	// Pre-allocated structures reused by Sample and Top.
	mask    *maskState[Entry[V]]
	ranking *yagh.IntMap[float64]
}

// New returns an empty buffer that can hold up to capacity entries.
func New[V any](capacity int, opts ...Option) (*Buffer[V], error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.alpha <= 0 {
		return nil, fmt.Errorf("alpha must be greater than 0, got %f: %w", cfg.alpha, ErrDegenerateExponent)
	}
	if cfg.beta <= 0 {
		return nil, fmt.Errorf("beta must be greater than 0, got %f: %w", cfg.beta, ErrDegenerateExponent)
	}

	tree, err := sumtree.New[Entry[V]](capacity)
	if err != nil {
		return nil, err
	}

	return &Buffer[V]{
		capacity:    capacity,
		alpha:       cfg.alpha,
		beta:        cfg.beta,
		rng:         rand.New(rand.NewSource(cfg.seed)),
		maxPriority: 1,
		maxWeight:   1,
		tree:        tree,
		mask:        newMaskState(tree),
		ranking:     yagh.New[float64](capacity),
	}, nil
}

// Alpha returns the priority exponent.
func (b *Buffer[V]) Alpha() float64 {
	return b.alpha
}

// Beta returns the importance weight exponent.
func (b *Buffer[V]) Beta() float64 {
	return b.beta
}

// Capacity returns the maximum number of entries in the buffer.
func (b *Buffer[V]) Capacity() int {
	return b.capacity
}

// Len returns the number of entries in the buffer.
func (b *Buffer[V]) Len() int {
	return b.tree.Len()
}

// MaxPriority returns the cached maximum priority. New entries are pushed
// with that priority.
func (b *Buffer[V]) MaxPriority() float64 {
	return b.maxPriority
}

// MaxWeight returns the cached maximum importance weight.
func (b *Buffer[V]) MaxWeight() float64 {
	return b.maxWeight
}

// Push adds a value to the buffer, overwriting the oldest entry if the buffer
// is full. The value is given the current maximum priority so that it is
// likely to be sampled at least once.
func (b *Buffer[V]) Push(value V) {
	weight := 0.0
	if total := b.tree.Total(); total > 0 {
		weight = math.Pow(b.maxPriority/total*float64(b.capacity), b.beta)
	}

	evicted, evictedPriority, ok := b.tree.Insert(Entry[V]{value, weight}, b.maxPriority)
	b.maxWeight = max(b.maxWeight, weight)
	if !ok {
		return
	}

	log.Tracef("Evicted entry with priority %v and weight %v", evictedPriority, evicted.Weight)
	if isMax(evicted.Weight, b.maxWeight) {
		b.recomputeMaxWeight()
	}
	// The scan runs after the insert and includes the new entry, which is
	// seeded with maxPriority. A recompute triggered by a push can therefore
	// never lower maxPriority, only Update can.
	if isMax(evictedPriority, b.maxPriority) {
		b.recomputeMaxPriority()
	}
}

// PushBatch pushes each value in order.
func (b *Buffer[V]) PushBatch(values []V) {
	for _, v := range values {
		b.Push(v)
	}
}

// Update sets the priority of the entries in the given slots. The sampling
// priority of an entry is the absolute value of its priority raised to the
// power of alpha so that signed errors can be used as priorities directly.
//
// The arguments are validated before any entry is modified.
func (b *Buffer[V]) Update(indices []int, priorities []float64) error {
	if len(indices) != len(priorities) {
		return fmt.Errorf("got %d indices and %d priorities: %w", len(indices), len(priorities), ErrLengthMismatch)
	}

	touchedMax := false
	sampling := make([]float64, len(priorities))
	for k, i := range indices {
		old, err := b.tree.Priority(i)
		if err != nil {
			return err
		}
		touchedMax = touchedMax || isMax(old, b.maxPriority)
		sampling[k] = math.Pow(math.Abs(priorities[k]), b.alpha)
	}

	if err := b.tree.BatchUpdate(indices, sampling, nil); err != nil {
		return err
	}
	if touchedMax {
		b.recomputeMaxPriority()
	}
	// The recompute above scans stored priorities (|p|^alpha) while this
	// compares raw magnitudes. New entries are seeded with the larger of both.
	for _, p := range priorities {
		b.maxPriority = max(b.maxPriority, math.Abs(p))
	}
	return nil
}

// Sample draws min(n, Len()) distinct entries. Entries are drawn one at a
// time, with a probability proportional to their sampling priority among
// the entries not drawn yet. The i-th value, weight and slot index returned
// correspond to the i-th draw. Weights are returned as stored, they are not
// normalized over the batch.
func (b *Buffer[V]) Sample(n int) (values []V, weights []float64, indices []int) {
	m := max(0, min(n, b.tree.Len()))
	values = make([]V, 0, m)
	weights = make([]float64, 0, m)
	indices = make([]int, 0, m)

	for len(indices) < m {
		slot, entry, priority := b.tree.Get(b.rng.Float64(), true)

		// Only reachable if all the remaining entries have a zero priority.
		if b.tree.Total() <= 0 || b.mask.Masked(slot) {
			slot = b.uniformUnmasked()
			entry, _ = b.tree.Value(slot)
			priority, _ = b.tree.Priority(slot)
		}

		values = append(values, entry.Value)
		weights = append(weights, entry.Weight)
		indices = append(indices, slot)

		// The slot comes from the tree and cannot be out of range.
		_ = b.mask.Mask(slot, priority)
	}

	_ = b.mask.Restore()
	return values, weights, indices
}

// uniformUnmasked returns a slot chosen uniformly at random among the slots
// that are not masked. There must be at least one such slot.
func (b *Buffer[V]) uniformUnmasked() int {
	r := b.rng.Intn(b.tree.Len() - b.mask.Len())
	for slot := 0; ; slot++ {
		if b.mask.Masked(slot) {
			continue
		}
		if r == 0 {
			return slot
		}
		r--
	}
}

// SetAlpha changes the priority exponent and rescales the sampling priority
// of every entry accordingly. Since sampling priorities are stored as
// p^alpha, raising them to the power of newAlpha/alpha yields p^newAlpha.
// This operation is done in O(N).
func (b *Buffer[V]) SetAlpha(alpha float64) error {
	if alpha <= 0 {
		return fmt.Errorf("alpha must be greater than 0, got %f: %w", alpha, ErrDegenerateExponent)
	}

	ratio := alpha / b.alpha
	b.tree.Transform(func(_ int, e Entry[V], p float64) (Entry[V], float64) {
		return e, math.Pow(p, ratio)
	})
	b.maxPriority = math.Pow(b.maxPriority, ratio)
	b.alpha = alpha
	return nil
}

// SetBeta changes the importance weight exponent and rescales the weight of
// every entry accordingly. Each weight is normalized by the cached maximum
// weight, raised to the power of newBeta/beta, and re-normalized by the
// rescaled maximum. Weights that are at most 1 remain at most 1. This
// operation is done in O(N).
func (b *Buffer[V]) SetBeta(beta float64) error {
	if beta <= 0 {
		return fmt.Errorf("beta must be greater than 0, got %f: %w", beta, ErrDegenerateExponent)
	}

	ratio := beta / b.beta
	maxWeight := b.maxWeight
	scaledMax := math.Pow(maxWeight, ratio)
	b.tree.Transform(func(_ int, e Entry[V], p float64) (Entry[V], float64) {
		e.Weight = math.Pow(e.Weight/maxWeight, ratio) * scaledMax
		return e, p
	})
	b.maxWeight = scaledMax
	b.beta = beta
	return nil
}

// Priority returns the sampling priority of the entry in the given slot.
func (b *Buffer[V]) Priority(index int) (float64, error) {
	return b.tree.Priority(index)
}

// Priorities returns the sampling priority of every entry in slot order.
func (b *Buffer[V]) Priorities() []float64 {
	return b.tree.Priorities()
}

// Weights returns the importance weight of every entry in slot order.
func (b *Buffer[V]) Weights() []float64 {
	w := make([]float64, 0, b.tree.Len())
	for e := range b.tree.All() {
		w = append(w, e.Weight)
	}
	return w
}

// Values returns the value of every entry in slot order.
func (b *Buffer[V]) Values() []V {
	v := make([]V, 0, b.tree.Len())
	for e := range b.tree.All() {
		v = append(v, e.Value)
	}
	return v
}

// String returns the priority tree of the buffer with one line per level.
func (b *Buffer[V]) String() string {
	return b.tree.String()
}

// recomputeMaxPriority scans all the entries to find the maximum priority.
// If no entry has a positive priority, the cache is reset to 1 so that new
// entries can still be sampled.
func (b *Buffer[V]) recomputeMaxPriority() {
	m := 0.0
	for _, p := range b.tree.All() {
		m = max(m, p)
	}
	if m <= 0 {
		m = 1
	}
	log.Debugf("Recomputed max priority: %v -> %v", b.maxPriority, m)
	b.maxPriority = m
}

// recomputeMaxWeight scans all the entries to find the maximum weight. If no
// entry has a positive weight, the cache is reset to 1.
func (b *Buffer[V]) recomputeMaxWeight() {
	m := 0.0
	for e := range b.tree.All() {
		m = max(m, e.Weight)
	}
	if m <= 0 {
		m = 1
	}
	log.Debugf("Recomputed max weight: %v -> %v", b.maxWeight, m)
	b.maxWeight = m
}

func isMax(v float64, cached float64) bool {
	return math.Abs(v-cached) < maxEpsilon
}
