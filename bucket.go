package cht

// slotTag identifies which state of the per-slot state machine a slot box
// represents (spec.md §3's "tagged bucket pointer").
type slotTag uint8

const (
	// tagLive means the slot holds a live, readable mapping.
	tagLive slotTag = iota
	// tagTombstone means the key at this slot was deleted but the bucket
	// is kept around so probes that walked past it still terminate
	// correctly.
	tagTombstone
	// tagSentinel means this slot has been migrated to the array's
	// successor and must not be used further here.
	tagSentinel
)

// bucketRecord is an immutable key/value record. Once allocated its fields
// never change; an update always installs a brand new bucketRecord and
// retires the old one through the epoch reclaimer.
type bucketRecord[K comparable, V any] struct {
	hash  uint64
	key   K
	value V
}

// slot is the boxed stand-in for spec.md's tagged pointer: Go's precise
// garbage collector cannot tolerate stolen low bits on a real pointer, so
// the tag travels alongside the bucket pointer in a small immutable struct
// that is itself what gets CASed into an array slot. A nil *slot is the
// null state ("never written"); see SPEC_FULL.md §3 for the full rationale.
type slot[K comparable, V any] struct {
	tag    slotTag
	bucket *bucketRecord[K, V]
}

func newBucket[K comparable, V any](hash uint64, key K, value V) *bucketRecord[K, V] {
	return &bucketRecord[K, V]{hash: hash, key: key, value: value}
}

func liveSlot[K comparable, V any](b *bucketRecord[K, V]) *slot[K, V] {
	return &slot[K, V]{tag: tagLive, bucket: b}
}

func tombstoneSlot[K comparable, V any](b *bucketRecord[K, V]) *slot[K, V] {
	return &slot[K, V]{tag: tagTombstone, bucket: b}
}

func sentinelSlot[K comparable, V any](b *bucketRecord[K, V]) *slot[K, V] {
	return &slot[K, V]{tag: tagSentinel, bucket: b}
}

func (s *slot[K, V]) isLive() bool {
	return s != nil && s.tag == tagLive
}

func (s *slot[K, V]) isTombstone() bool {
	return s != nil && s.tag == tagTombstone
}

func (s *slot[K, V]) isSentinel() bool {
	return s != nil && s.tag == tagSentinel
}
