package cht

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"

	"github.com/cespare/xxhash/v2"
)

// defaultHasher returns the built-in hash builder used when a map is
// constructed without an explicit one (spec.md §6's "hash_builder: any
// function from key to a uniformly distributed 64-bit integer"). The
// encode-to-bytes-then-hash structure mirrors
// aristanetworks-goarista/key/hash.go's Hash function; xxhash.Sum64 is used
// in place of that file's hash/maphash since xxhash is already a
// third-party dependency of the wider example pack and gives a faster,
// still well-distributed hash for the small fixed-width keys most callers
// use.
func defaultHasher[K comparable]() func(K) uint64 {
	return hashAny[K]
}

func hashAny[K comparable](key K) uint64 {
	var buf [8]byte
	switch v := any(key).(type) {
	case string:
		return xxhash.Sum64String(v)
	case []byte:
		return xxhash.Sum64(v)
	case int:
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		return xxhash.Sum64(buf[:])
	case int8:
		return xxhash.Sum64(append(buf[:0], byte(v)))
	case int16:
		binary.LittleEndian.PutUint16(buf[:2], uint16(v))
		return xxhash.Sum64(buf[:2])
	case int32:
		binary.LittleEndian.PutUint32(buf[:4], uint32(v))
		return xxhash.Sum64(buf[:4])
	case int64:
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		return xxhash.Sum64(buf[:])
	case uint:
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		return xxhash.Sum64(buf[:])
	case uint8:
		return xxhash.Sum64(append(buf[:0], v))
	case uint16:
		binary.LittleEndian.PutUint16(buf[:2], v)
		return xxhash.Sum64(buf[:2])
	case uint32:
		binary.LittleEndian.PutUint32(buf[:4], v)
		return xxhash.Sum64(buf[:4])
	case uint64:
		binary.LittleEndian.PutUint64(buf[:], v)
		return xxhash.Sum64(buf[:])
	case uintptr:
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		return xxhash.Sum64(buf[:])
	case float32:
		binary.LittleEndian.PutUint32(buf[:4], math.Float32bits(v))
		return xxhash.Sum64(buf[:4])
	case float64:
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		return xxhash.Sum64(buf[:])
	case bool:
		if v {
			buf[0] = 1
		}
		return xxhash.Sum64(buf[:1])
	default:
		// K is some other comparable type (a struct of comparable
		// fields, a pointer, an array, ...). A pointer is hashed by its
		// address, matching pointer equality. For the rest, the %#v
		// representation is deterministic for any such type that
		// contains no maps or function values, which comparable already
		// excludes, so this stays consistent with key equality.
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer {
			binary.LittleEndian.PutUint64(buf[:], uint64(rv.Pointer()))
			return xxhash.Sum64(buf[:])
		}
		return xxhash.Sum64String(fmt.Sprintf("%#v", v))
	}
}
