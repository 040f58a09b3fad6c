package cht

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// segment is one independent shard (spec.md §3 "Segment"): an atomic
// pointer to the current head of its bucket-array chain, plus a length
// counter. Grounded on the teacher's Segment struct
// (pTable/count/pSumCount in concurrentmap.go), generalized from a
// mutex-guarded chained table to a lock-free open-addressed one.
//
// CacheLinePad keeps adjacent segments' counters on separate cache lines;
// segments exist specifically to isolate contention between shards, and an
// unpadded []segment would let false sharing reintroduce exactly the
// contention the sharding is meant to remove.
type segment[K comparable, V any] struct {
	array atomic.Pointer[bucketArray[K, V]]
	len   atomic.Int64

	// total points at the map's aggregate counter, mirroring the
	// teacher's pSumCount field: every successful insert/remove updates
	// both the segment-local and the map-wide count in one place.
	total      *atomic.Int64
	loadFactor float64

	_ cpu.CacheLinePad
}

func newSegment[K comparable, V any](initialCapacity int, loadFactor float64, total *atomic.Int64) *segment[K, V] {
	s := &segment[K, V]{total: total, loadFactor: loadFactor}
	if initialCapacity > 0 {
		s.array.Store(newBucketArray[K, V](initialCapacity, loadFactor))
	}
	return s
}

// ensureArray lazily allocates the segment's first bucket array on the
// first insert when the map was constructed with capacity 0 (spec.md §6,
// "0 defers allocation until first insert").
func (s *segment[K, V]) ensureArray(loadFactor float64) *bucketArray[K, V] {
	if arr := s.array.Load(); arr != nil {
		return arr
	}
	candidate := newBucketArray[K, V](1, loadFactor)
	if s.array.CompareAndSwap(nil, candidate) {
		return candidate
	}
	return s.array.Load()
}

func (s *segment[K, V]) addLen(delta int64) {
	s.len.Add(delta)
	s.total.Add(delta)
}

// capacity reports the usable capacity of the segment's current tail
// array, for SegmentCapacity/Capacity diagnostics (spec.md §4.4).
func (s *segment[K, V]) capacity() int {
	arr := s.array.Load()
	if arr == nil {
		return 0
	}
	return tailFrom(arr).capacity()
}
