package cht

import (
	"github.com/aristanetworks/glog"
	"github.com/listr0ng/cht/internal/reclaim"
)

// tailFrom walks the next-chain starting at start until it finds an array
// with no successor yet. Used only for advisory diagnostics (segment.go's
// capacity reporting) — the operation paths in bucketArrayRef deliberately
// do not use this: they must start at the segment's head array and hop
// forward one array at a time so a key still live in an un-migrated array
// is found there rather than skipped in favor of an emptier successor.
func tailFrom[K comparable, V any](start *bucketArray[K, V]) *bucketArray[K, V] {
	cur := start
	for {
		n := cur.next.Load()
		if n == nil {
			return cur
		}
		cur = n
	}
}

// maybeStartRehash begins a rehash if this array has crossed its load
// factor and none is already underway. The winner of the CAS that installs
// `next` performs the full migration pass itself; every other accessor
// keeps making progress by assisting one slot at a time whenever it
// observes a sentinel (assistOneSlot) — both paths are safe to run
// concurrently because every per-slot transition is idempotent under CAS.
func (a *bucketArray[K, V]) maybeStartRehash(g *reclaim.Guard, liveHint int) *bucketArray[K, V] {
	if !a.needsRehash() {
		return nil
	}
	return a.startRehash(g, liveHint)
}

func (a *bucketArray[K, V]) startRehash(g *reclaim.Guard, liveHint int) *bucketArray[K, V] {
	if existing := a.next.Load(); existing != nil {
		return existing
	}

	newCap := nextPowerOfTwo(maxInt(liveHint*2, len(a.slots)*2))
	candidate := newBucketArray[K, V](newCap, a.loadFactor)

	if !a.next.CompareAndSwap(nil, candidate) {
		// Lost the race to install a successor; the candidate we built is
		// simply left for the garbage collector, and we proceed with the
		// winner's array.
		return a.next.Load()
	}

	glog.V(2).Infof("cht: rehash start old_capacity=%d new_capacity=%d", len(a.slots), newCap)
	a.migrateAll(g)
	glog.V(2).Infof("cht: rehash done old_capacity=%d new_capacity=%d", len(a.slots), newCap)
	return candidate
}

// migrateAll visits every slot once. It is only ever invoked by the single
// thread that won the CAS installing `next`, so no two migrateAll passes
// race on the same array — concurrent assistOneSlot calls from other
// operations may still race with it, which is why migrateSlotAt is written
// to be idempotent under retry.
func (a *bucketArray[K, V]) migrateAll(g *reclaim.Guard) {
	n := uint64(len(a.slots))
	for pos := uint64(0); pos < n; pos++ {
		a.migrateSlotAt(g, pos)
		if pos%256 == 0 {
			g.Repin()
		}
	}
}

// assistOneSlot migrates the first slot of hash's probe sequence in this
// array (spec.md §4.2 step 3) after an operation observed
// MigrationRequired. The sentinel slot the operation stopped at may lie
// further along the probe sequence; that slot is already migrated.
func (a *bucketArray[K, V]) assistOneSlot(g *reclaim.Guard, hash uint64) {
	a.migrateSlotAt(g, a.probeStart(hash))
}

// migrateSlotAt moves the content of slot `pos` forward to the successor
// array (spec.md §4.2 step 2). It is safe to call redundantly from many
// goroutines: every transition it makes is a CAS from the exact value it
// observed, so a goroutine that loses the race simply reloads and either
// finds the work already done (sentinel) or a newer value to process.
func (a *bucketArray[K, V]) migrateSlotAt(g *reclaim.Guard, pos uint64) {
	slotPtr := &a.slots[pos]
	for {
		cur := slotPtr.Load()
		switch {
		case cur == nil:
			if slotPtr.CompareAndSwap(nil, sentinelSlot[K, V](nil)) {
				return
			}
		case cur.isSentinel():
			return
		case cur.isTombstone():
			if slotPtr.CompareAndSwap(cur, sentinelSlot(cur.bucket)) {
				g.Retire(func() { _ = cur.bucket })
				return
			}
		default: // live
			target := a.next.Load()
			stale := false
			for {
				kind := target.migrateInsert(cur.bucket, cur.bucket.hash)
				if kind == migrateInsertMigrationRequired {
					// target is itself mid-rehash; help it along and
					// advance one array at a time, the same incremental
					// discipline bucketArrayRef uses for ordinary
					// operations.
					target.assistOneSlot(g, cur.bucket.hash)
					target = target.next.Load()
					continue
				}
				stale = kind == migrateInsertAlreadyPresent
				break
			}
			if slotPtr.CompareAndSwap(cur, sentinelSlot(cur.bucket)) {
				if stale {
					old := cur.bucket
					g.Retire(func() { _ = old })
				}
				return
			}
		}
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
