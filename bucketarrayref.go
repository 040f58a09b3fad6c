package cht

import "github.com/listr0ng/cht/internal/reclaim"

// bucketArrayRef is the per-operation seam described in spec.md §4.5: it
// knows about the segment's atomic array pointer and the chain of
// successor arrays growth may have produced, and it is the only place that
// translates a bucket-level Migrating/MigrationRequired into "assist, then
// advance one array." Operations always start at the segment's current head
// array and hop forward to `next` one array at a time as they encounter a
// sentinel — they never jump straight to the chain's tail, so a key still
// live in an un-migrated array is found and mutated there directly instead
// of being missed in favor of an emptier successor (spec.md's "in older
// arrays null means 'never written here — check the next array'").
// bucketArray primitives themselves never see more than one array.
type bucketArrayRef[K comparable, V any] struct {
	seg *segment[K, V]
}

// head returns the segment's current head array, or nil if the segment has
// never been allocated into — callers must treat nil as "key absent"
// without allocating (spec.md §6, capacity 0 defers allocation).
func (ref *bucketArrayRef[K, V]) head() *bucketArray[K, V] {
	return ref.seg.array.Load()
}

// headForWrite lazily allocates the segment's first array if needed, then
// returns it.
func (ref *bucketArrayRef[K, V]) headForWrite() *bucketArray[K, V] {
	return ref.seg.ensureArray(ref.seg.loadFactor)
}

func (ref *bucketArrayRef[K, V]) find(g *reclaim.Guard, key K, hash uint64) findResult[K, V] {
	arr := ref.head()
	if arr == nil {
		return findResult[K, V]{kind: findNull}
	}
	for {
		res := arr.find(g, key, hash)
		if res.kind == findMigrating {
			arr = arr.next.Load()
			continue
		}
		return res
	}
}

func (ref *bucketArrayRef[K, V]) insert(g *reclaim.Guard, key K, hash uint64, value V) insertResult[K, V] {
	b := newBucket(hash, key, value)
	arr := ref.headForWrite()
	for {
		res := arr.insert(g, b, hash)
		if res.kind == insertMigrationRequired {
			arr.assistOneSlot(g, hash)
			arr = arr.next.Load()
			continue
		}
		if res.kind == insertInserted {
			ref.seg.addLen(1)
		}
		if arr.needsRehash() {
			arr.maybeStartRehash(g, int(arr.filled.Load()))
		}
		return res
	}
}

func (ref *bucketArrayRef[K, V]) removeIf(g *reclaim.Guard, key K, hash uint64, pred func(K, V) bool) removeResult[K, V] {
	arr := ref.head()
	if arr == nil {
		return removeResult[K, V]{kind: removeAbsent}
	}
	for {
		res := arr.removeIf(g, key, hash, pred)
		if res.kind == removeMigrationRequired {
			arr.assistOneSlot(g, hash)
			arr = arr.next.Load()
			continue
		}
		if res.kind == removeRemoved {
			ref.seg.addLen(-1)
		}
		return res
	}
}

func (ref *bucketArrayRef[K, V]) modify(g *reclaim.Guard, key K, hash uint64, fn func(K, V) V) modifyResult[K, V] {
	arr := ref.head()
	if arr == nil {
		return modifyResult[K, V]{kind: modifyAbsent}
	}
	for {
		res := arr.modify(g, key, hash, fn)
		if res.kind == modifyMigrationRequired {
			arr.assistOneSlot(g, hash)
			arr = arr.next.Load()
			continue
		}
		return res
	}
}

func (ref *bucketArrayRef[K, V]) insertWithOrModify(g *reclaim.Guard, key K, hash uint64, initFn func() V, modifyFn func(K, V) V) insertOrModifyResult[K, V] {
	arr := ref.headForWrite()
	for {
		res := arr.insertWithOrModify(g, key, hash, initFn, modifyFn)
		if res.kind == iomMigrationRequired {
			arr.assistOneSlot(g, hash)
			arr = arr.next.Load()
			continue
		}
		if res.kind == iomInserted {
			ref.seg.addLen(1)
		}
		if arr.needsRehash() {
			arr.maybeStartRehash(g, int(arr.filled.Load()))
		}
		return res
	}
}
