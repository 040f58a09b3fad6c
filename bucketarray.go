package cht

import (
	"sync/atomic"

	"github.com/listr0ng/cht/internal/reclaim"
)

// findKind enumerates the outcomes of bucketArray.find (spec.md §4.1).
type findKind uint8

const (
	findNull findKind = iota
	findMigrating
	findFound
	findFoundTombstone
)

type findResult[K comparable, V any] struct {
	kind   findKind
	bucket *bucketRecord[K, V]
}

type insertKind uint8

const (
	insertInserted insertKind = iota
	insertReplaced
	insertMigrationRequired
)

type insertResult[K comparable, V any] struct {
	kind insertKind
	old  *bucketRecord[K, V]
}

type removeKind uint8

const (
	removeAbsent removeKind = iota
	removeRemoved
	removeMigrationRequired
)

type removeResult[K comparable, V any] struct {
	kind removeKind
	old  *bucketRecord[K, V]
}

type modifyKind uint8

const (
	modifyAbsent modifyKind = iota
	modifyModified
	modifyMigrationRequired
)

type modifyResult[K comparable, V any] struct {
	kind modifyKind
	old  *bucketRecord[K, V]
}

// bucketArray is a power-of-two-length, open-addressed slot array plus a
// forward pointer to its successor once a rehash has begun. It is
// immutable with respect to size: growth always allocates a brand new
// bucketArray and publishes it through next (spec.md §3).
type bucketArray[K comparable, V any] struct {
	slots      []atomic.Pointer[slot[K, V]]
	mask       uint64
	loadFactor float64
	filled     atomic.Int64 // slots filled, including tombstones

	next atomic.Pointer[bucketArray[K, V]]
}

func newBucketArray[K comparable, V any](capacity int, loadFactor float64) *bucketArray[K, V] {
	capacity = nextPowerOfTwo(capacity)
	if capacity < 1 {
		capacity = 1
	}
	return &bucketArray[K, V]{
		slots:      make([]atomic.Pointer[slot[K, V]], capacity),
		mask:       uint64(capacity - 1),
		loadFactor: loadFactor,
	}
}

func (a *bucketArray[K, V]) capacity() int {
	return len(a.slots)
}

// needsRehash reports whether this array has crossed its occupancy
// threshold and a grow should be started (spec.md §4.1 "Rehash trigger").
func (a *bucketArray[K, V]) needsRehash() bool {
	return float64(a.filled.Load()) > float64(len(a.slots))*a.loadFactor
}

func (a *bucketArray[K, V]) probeStart(hash uint64) uint64 {
	return hash & a.mask
}

// find locates key within this array only; callers are responsible for
// following findMigrating to the successor array.
func (a *bucketArray[K, V]) find(_ *reclaim.Guard, key K, hash uint64) findResult[K, V] {
	start := a.probeStart(hash)
	n := uint64(len(a.slots))
	for i := uint64(0); i < n; i++ {
		cur := a.slots[(start+i)&a.mask].Load()
		switch {
		case cur == nil:
			return findResult[K, V]{kind: findNull}
		case cur.isSentinel():
			return findResult[K, V]{kind: findMigrating}
		case cur.isTombstone():
			if cur.bucket.hash == hash && cur.bucket.key == key {
				return findResult[K, V]{kind: findFoundTombstone, bucket: cur.bucket}
			}
		default: // live
			if cur.bucket.hash == hash && cur.bucket.key == key {
				return findResult[K, V]{kind: findFound, bucket: cur.bucket}
			}
		}
	}
	return findResult[K, V]{kind: findNull}
}

// insert probes for a live or tombstoned slot matching b.key, or else the
// first null slot, installing b via CAS (spec.md §4.1 "insert").
// Tombstones of other keys are probed past, not reused.
func (a *bucketArray[K, V]) insert(g *reclaim.Guard, b *bucketRecord[K, V], hash uint64) insertResult[K, V] {
	start := a.probeStart(hash)
	n := uint64(len(a.slots))

probe:
	for i := uint64(0); i < n; i++ {
		slotPtr := &a.slots[(start+i)&a.mask]
		for {
			cur := slotPtr.Load()
			switch {
			case cur == nil:
				next := liveSlot(b)
				if slotPtr.CompareAndSwap(nil, next) {
					a.filled.Add(1)
					return insertResult[K, V]{kind: insertInserted}
				}
				continue
			case cur.isSentinel():
				return insertResult[K, V]{kind: insertMigrationRequired}
			case cur.isTombstone():
				if cur.bucket.hash != hash || cur.bucket.key != b.key {
					continue probe
				}
				next := liveSlot(b)
				if slotPtr.CompareAndSwap(cur, next) {
					return insertResult[K, V]{kind: insertInserted}
				}
				continue
			default: // live
				if cur.bucket.hash != hash || cur.bucket.key != b.key {
					continue probe
				}
				next := liveSlot(b)
				if slotPtr.CompareAndSwap(cur, next) {
					old := cur.bucket
					g.Retire(func() { _ = old })
					return insertResult[K, V]{kind: insertReplaced, old: old}
				}
				continue
			}
		}
	}
	panic("cht: bucket array probed fully without an open slot; rehash threshold invariant was violated")
}

// removeIf probes for a live bucket matching key, tombstones it if pred
// holds (spec.md §4.1 "remove_if").
func (a *bucketArray[K, V]) removeIf(_ *reclaim.Guard, key K, hash uint64, pred func(K, V) bool) removeResult[K, V] {
	start := a.probeStart(hash)
	n := uint64(len(a.slots))

probe:
	for i := uint64(0); i < n; i++ {
		slotPtr := &a.slots[(start+i)&a.mask]
		for {
			cur := slotPtr.Load()
			switch {
			case cur == nil:
				return removeResult[K, V]{kind: removeAbsent}
			case cur.isSentinel():
				return removeResult[K, V]{kind: removeMigrationRequired}
			case cur.isTombstone():
				if cur.bucket.hash == hash && cur.bucket.key == key {
					return removeResult[K, V]{kind: removeAbsent}
				}
				continue probe
			default: // live
				if cur.bucket.hash != hash || cur.bucket.key != key {
					continue probe
				}
				if !pred(cur.bucket.key, cur.bucket.value) {
					return removeResult[K, V]{kind: removeAbsent}
				}
				next := tombstoneSlot(cur.bucket)
				if slotPtr.CompareAndSwap(cur, next) {
					return removeResult[K, V]{kind: removeRemoved, old: cur.bucket}
				}
				continue
			}
		}
	}
	return removeResult[K, V]{kind: removeAbsent}
}

// modify probes for a live bucket matching key and installs fn(key, old)
// via CAS; it never inserts (spec.md §4.1 "modify").
func (a *bucketArray[K, V]) modify(g *reclaim.Guard, key K, hash uint64, fn func(K, V) V) modifyResult[K, V] {
	start := a.probeStart(hash)
	n := uint64(len(a.slots))

probe:
	for i := uint64(0); i < n; i++ {
		slotPtr := &a.slots[(start+i)&a.mask]
		for {
			cur := slotPtr.Load()
			switch {
			case cur == nil:
				return modifyResult[K, V]{kind: modifyAbsent}
			case cur.isSentinel():
				return modifyResult[K, V]{kind: modifyMigrationRequired}
			case cur.isTombstone():
				if cur.bucket.hash == hash && cur.bucket.key == key {
					return modifyResult[K, V]{kind: modifyAbsent}
				}
				continue probe
			default: // live
				if cur.bucket.hash != hash || cur.bucket.key != key {
					continue probe
				}
				newValue := fn(cur.bucket.key, cur.bucket.value)
				newBkt := newBucket(hash, key, newValue)
				next := liveSlot(newBkt)
				if slotPtr.CompareAndSwap(cur, next) {
					old := cur.bucket
					g.Retire(func() { _ = old })
					return modifyResult[K, V]{kind: modifyModified, old: old}
				}
				continue
			}
		}
	}
	return modifyResult[K, V]{kind: modifyAbsent}
}

type insertOrModifyKind uint8

const (
	iomInserted insertOrModifyKind = iota
	iomModified
	iomMigrationRequired
)

type insertOrModifyResult[K comparable, V any] struct {
	kind insertOrModifyKind
	old  *bucketRecord[K, V]
}

// insertWithOrModify is a single probe that installs initFn()'s result if
// key is absent, or modifyFn(key, old)'s result if it is present (spec.md
// §6 "insert_with_or_modify"). Folding both cases into one CAS attempt per
// slot is what lets initFn "run more than once under retry" and still be
// skipped in favor of modifyFn if a concurrent insert wins the race for the
// same slot in between, exactly as spec.md documents.
func (a *bucketArray[K, V]) insertWithOrModify(g *reclaim.Guard, key K, hash uint64, initFn func() V, modifyFn func(K, V) V) insertOrModifyResult[K, V] {
	start := a.probeStart(hash)
	n := uint64(len(a.slots))

probe:
	for i := uint64(0); i < n; i++ {
		slotPtr := &a.slots[(start+i)&a.mask]
		for {
			cur := slotPtr.Load()
			switch {
			case cur == nil:
				b := newBucket(hash, key, initFn())
				if slotPtr.CompareAndSwap(nil, liveSlot(b)) {
					a.filled.Add(1)
					return insertOrModifyResult[K, V]{kind: iomInserted}
				}
				continue
			case cur.isSentinel():
				return insertOrModifyResult[K, V]{kind: iomMigrationRequired}
			case cur.isTombstone():
				if cur.bucket.hash != hash || cur.bucket.key != key {
					continue probe
				}
				b := newBucket(hash, key, initFn())
				if slotPtr.CompareAndSwap(cur, liveSlot(b)) {
					return insertOrModifyResult[K, V]{kind: iomInserted}
				}
				continue
			default: // live
				if cur.bucket.hash != hash || cur.bucket.key != key {
					continue probe
				}
				newValue := modifyFn(cur.bucket.key, cur.bucket.value)
				b := newBucket(hash, key, newValue)
				if slotPtr.CompareAndSwap(cur, liveSlot(b)) {
					old := cur.bucket
					g.Retire(func() { _ = old })
					return insertOrModifyResult[K, V]{kind: iomModified, old: old}
				}
				continue
			}
		}
	}
	panic("cht: bucket array probed fully without an open slot; rehash threshold invariant was violated")
}

// migrateInsertKind enumerates the outcomes of migrateInsert (rehash.go),
// the restricted insert a migrator uses to move a live bucket into the
// successor array. Unlike a normal insert, a migrator must never clobber a
// value that a concurrent writer already installed for the same key.
type migrateInsertKind uint8

const (
	migrateInsertInstalled migrateInsertKind = iota
	migrateInsertAlreadyPresent
	migrateInsertMigrationRequired
)

// migrateInsert probes for b's key and installs b only if the slot is
// empty or tombstoned. If a live bucket for the key is already present, it
// is left untouched and migrateInsertAlreadyPresent is returned — the
// migrator is carrying a value read before the migration began, so a live
// entry already in the successor is necessarily newer (spec.md §4.2: a
// migrator must not undo a write that raced ahead of it into the successor
// array).
func (a *bucketArray[K, V]) migrateInsert(b *bucketRecord[K, V], hash uint64) migrateInsertKind {
	start := a.probeStart(hash)
	n := uint64(len(a.slots))

probe:
	for i := uint64(0); i < n; i++ {
		slotPtr := &a.slots[(start+i)&a.mask]
		for {
			cur := slotPtr.Load()
			switch {
			case cur == nil:
				if slotPtr.CompareAndSwap(nil, liveSlot(b)) {
					a.filled.Add(1)
					return migrateInsertInstalled
				}
				continue
			case cur.isSentinel():
				return migrateInsertMigrationRequired
			case cur.isTombstone():
				if cur.bucket.hash != hash || cur.bucket.key != b.key {
					continue probe
				}
				if slotPtr.CompareAndSwap(cur, liveSlot(b)) {
					return migrateInsertInstalled
				}
				continue
			default: // live
				if cur.bucket.hash != hash || cur.bucket.key != b.key {
					continue probe
				}
				return migrateInsertAlreadyPresent
			}
		}
	}
	panic("cht: bucket array probed fully without an open slot; rehash threshold invariant was violated")
}

func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
