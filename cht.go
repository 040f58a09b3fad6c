// Package cht implements a concurrent, lock-free, segmented hash map: many
// goroutines may call Get, Insert, RemoveIf, Modify, and
// InsertWithOrModify on the same Map simultaneously without any of them
// taking a mutex. Growth (rehashing) happens incrementally and
// cooperatively: whichever goroutine trips the load-factor threshold
// starts it, and any goroutine that runs into a slot mid-migration helps
// finish that slot before retrying.
//
// The design is a Go port of the segmented, epoch-reclaimed hash map
// described by moka-rs/moka-cht (itself inspired by Java's
// ConcurrentHashMap), adapted to Go's precise garbage collector: instead
// of stealing tag bits from a raw pointer, each slot holds a small boxed
// struct carrying an explicit tag next to the bucket pointer.
package cht

import (
	"sync/atomic"

	"github.com/listr0ng/cht/internal/reclaim"
)

// Map is a concurrent hash map from K to V. The zero value is not usable;
// construct one with New or NewWithHasher. Grounded on the teacher's
// ConcurrentMap (concurrentmap.go): the segment table, segmentFor
// dispatch, and aggregate counter are carried over directly, with the
// per-segment body replaced by the lock-free open-addressed engine
// SPEC_FULL.md requires.
type Map[K comparable, V any] struct {
	segments     []*segment[K, V]
	segmentShift uint
	hasher       func(K) uint64
	total        atomic.Int64
	domain       *reclaim.Domain
}

// New constructs a Map using the default xxhash-based hasher (hash.go).
func New[K comparable, V any](opts ...Option) *Map[K, V] {
	return newMap[K, V](defaultHasher[K](), opts)
}

// NewWithHasher constructs a Map using a caller-supplied hash function.
// hasher must be consistent with K's equality: equal keys must hash
// equal (spec.md §6).
func NewWithHasher[K comparable, V any](hasher func(K) uint64, opts ...Option) *Map[K, V] {
	return newMap[K, V](hasher, opts)
}

func newMap[K comparable, V any](hasher func(K) uint64, opts []Option) *Map[K, V] {
	c := resolveConfig(opts)
	if c.numSegments <= 0 {
		panic(ErrZeroSegments)
	}
	if c.loadFactor <= 0 || c.loadFactor >= 1 {
		panic(ErrInvalidLoadFactor)
	}

	numSegments := nextPowerOfTwo(c.numSegments)
	shift := uint(64 - log2(numSegments))

	m := &Map[K, V]{
		hasher:       hasher,
		segmentShift: shift,
		domain:       reclaim.NewDomain(),
	}

	perSegmentCapacity := 0
	if c.capacity > 0 {
		perSegmentCapacity = (c.capacity + numSegments - 1) / numSegments
	}

	m.segments = make([]*segment[K, V], numSegments)
	for i := range m.segments {
		m.segments[i] = newSegment[K, V](perSegmentCapacity, c.loadFactor, &m.total)
	}
	return m
}

func log2(n int) int {
	p := 0
	for (1 << uint(p)) < n {
		p++
	}
	return p
}

// SegmentIndex reports which segment key routes to (spec.md §6
// diagnostics).
func (m *Map[K, V]) SegmentIndex(key K) int {
	return int(m.hasher(key) >> m.segmentShift)
}

func (m *Map[K, V]) segmentFor(hash uint64) *segment[K, V] {
	return m.segments[hash>>m.segmentShift]
}

func (m *Map[K, V]) ref(seg *segment[K, V]) bucketArrayRef[K, V] {
	return bucketArrayRef[K, V]{seg: seg}
}

// Get returns the value mapped to key, if any (spec.md §6 "get").
func (m *Map[K, V]) Get(key K) (V, bool) {
	v, ok := m.GetAnd(key, func(_ K, v V) V { return v })
	return v, ok
}

// GetAnd projects (key, value) through project while the bucket is still
// protected by the epoch guard, matching spec.md §6/§9's "returns a clone
// of the previous value ... obtained through projection while the bucket
// is still protected."
func (m *Map[K, V]) GetAnd(key K, project func(K, V) V) (V, bool) {
	hash := m.hasher(key)
	seg := m.segmentFor(hash)
	ref := m.ref(seg)

	g := m.domain.Pin()
	defer g.Unpin()

	res := ref.find(g, key, hash)
	switch res.kind {
	case findFound:
		return project(res.bucket.key, res.bucket.value), true
	default:
		var zero V
		return zero, false
	}
}

// Insert installs value for key, returning the previous value if any
// (spec.md §6 "insert").
func (m *Map[K, V]) Insert(key K, value V) (V, bool) {
	hash := m.hasher(key)
	seg := m.segmentFor(hash)
	ref := m.ref(seg)

	g := m.domain.Pin()
	defer g.Unpin()

	res := ref.insert(g, key, hash, value)
	switch res.kind {
	case insertReplaced:
		return res.old.value, true
	default:
		var zero V
		return zero, false
	}
}

// RemoveIf removes key's mapping iff pred(key, value) holds, returning the
// removed value (spec.md §6 "remove_if"). pred may be invoked more than
// once under CAS contention.
func (m *Map[K, V]) RemoveIf(key K, pred func(K, V) bool) (V, bool) {
	hash := m.hasher(key)
	seg := m.segmentFor(hash)
	ref := m.ref(seg)

	g := m.domain.Pin()
	defer g.Unpin()

	res := ref.removeIf(g, key, hash, pred)
	switch res.kind {
	case removeRemoved:
		return res.old.value, true
	default:
		var zero V
		return zero, false
	}
}

// Remove unconditionally removes key's mapping, returning the removed
// value.
func (m *Map[K, V]) Remove(key K) (V, bool) {
	return m.RemoveIf(key, func(K, V) bool { return true })
}

// Modify updates key's mapping to fn(key, oldValue) only if key is already
// present (spec.md §6 "modify"); it never inserts.
func (m *Map[K, V]) Modify(key K, fn func(K, V) V) (V, bool) {
	hash := m.hasher(key)
	seg := m.segmentFor(hash)
	ref := m.ref(seg)

	g := m.domain.Pin()
	defer g.Unpin()

	res := ref.modify(g, key, hash, fn)
	switch res.kind {
	case modifyModified:
		return res.old.value, true
	default:
		var zero V
		return zero, false
	}
}

// InsertWithOrModify installs init() if key is absent, or modify(key, old)
// if present (spec.md §6 "insert_with_or_modify"). init and modify may
// each run more than once under retry, and init may run even when the
// final outcome is a modify; see bucketArray.insertWithOrModify for why.
// The boolean result reports whether key was already present.
func (m *Map[K, V]) InsertWithOrModify(key K, init func() V, modify func(K, V) V) (V, bool) {
	hash := m.hasher(key)
	seg := m.segmentFor(hash)
	ref := m.ref(seg)

	g := m.domain.Pin()
	defer g.Unpin()

	res := ref.insertWithOrModify(g, key, hash, init, modify)
	switch res.kind {
	case iomModified:
		return res.old.value, true
	default:
		var zero V
		return zero, false
	}
}

// Len returns the advisory aggregate length (spec.md §4.4): eventually
// consistent under concurrent mutation, exact at any quiescent point.
func (m *Map[K, V]) Len() int {
	return int(m.total.Load())
}

// IsEmpty reports whether Len() == 0 at the moment of the call.
func (m *Map[K, V]) IsEmpty() bool {
	return m.Len() == 0
}

// NumSegments returns the number of segments the map was constructed
// with.
func (m *Map[K, V]) NumSegments() int {
	return len(m.segments)
}

// SegmentCapacity returns the usable capacity of segment i's current tail
// array.
func (m *Map[K, V]) SegmentCapacity(i int) int {
	return m.segments[i].capacity()
}

// Capacity returns an advisory capacity estimate: the minimum across
// segments of that segment's current tail-array capacity minus its live
// count (spec.md §4.4 "used primarily for capacity reporting (minimum
// across segments)"; §9 "capacity vs occupancy"). Like Len, this is never
// used for correctness.
func (m *Map[K, V]) Capacity() int {
	min := -1
	for _, seg := range m.segments {
		segCap := seg.capacity()
		live := int(seg.len.Load())
		avail := segCap - live
		if avail < 0 {
			avail = 0
		}
		if min == -1 || avail < min {
			min = avail
		}
	}
	if min == -1 {
		return 0
	}
	return min
}

// Close releases every bucket and bucket array still reachable from the
// map (spec.md §5 "On map destruction the entire chain is walked under an
// unprotected epoch guard"). Calling any other method concurrently with
// or after Close is a programming error.
func (m *Map[K, V]) Close() {
	g := m.domain.Unprotected()
	for _, seg := range m.segments {
		for arr := seg.array.Load(); arr != nil; {
			next := arr.next.Load()
			destroyArray(g, arr)
			arr = next
		}
	}
	m.domain.DestroyAll()
}

// destroyArray retires every live or tombstoned bucket still referenced by
// arr. Sentineled slots in a non-tail array were already migrated or
// retired when they were sentineled, so they are skipped here, matching
// spec.md §5's "tombstoned buckets in non-tail arrays are not
// re-destroyed."
func destroyArray[K comparable, V any](g *reclaim.Guard, arr *bucketArray[K, V]) {
	for i := range arr.slots {
		s := arr.slots[i].Load()
		if s != nil && !s.isSentinel() {
			b := s.bucket
			g.Retire(func() { _ = b })
		}
	}
}
