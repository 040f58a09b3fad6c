package cht

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPanicsOnZeroSegments(t *testing.T) {
	t.Parallel()
	assert.PanicsWithValue(t, ErrZeroSegments, func() {
		New[string, int](WithNumSegments(0))
	})
}

func TestNewPanicsOnInvalidLoadFactor(t *testing.T) {
	t.Parallel()
	assert.PanicsWithValue(t, ErrInvalidLoadFactor, func() {
		New[string, int](WithLoadFactor(0))
	})
	assert.PanicsWithValue(t, ErrInvalidLoadFactor, func() {
		New[string, int](WithLoadFactor(1))
	})
}

func TestGetOnEmptyMapIsAbsent(t *testing.T) {
	t.Parallel()
	m := New[string, int](WithNumSegments(1))

	_, ok := m.Get("nope")
	assert.False(t, ok)
}

func TestInsertThenGet(t *testing.T) {
	t.Parallel()
	m := New[string, int](WithNumSegments(4))

	_, existed := m.Insert("a", 1)
	assert.False(t, existed)

	v, ok := m.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestInsertReplacesAndReturnsPrevious(t *testing.T) {
	t.Parallel()
	m := New[string, int](WithNumSegments(4))

	m.Insert("a", 1)
	old, existed := m.Insert("a", 2)
	require.True(t, existed)
	assert.Equal(t, 1, old)

	v, _ := m.Get("a")
	assert.Equal(t, 2, v)
}

func TestRemoveUnconditional(t *testing.T) {
	t.Parallel()
	m := New[string, int](WithNumSegments(4))

	m.Insert("a", 1)
	old, removed := m.Remove("a")
	require.True(t, removed)
	assert.Equal(t, 1, old)

	_, ok := m.Get("a")
	assert.False(t, ok)
}

func TestRemoveIfPredicateRejectsRemoval(t *testing.T) {
	t.Parallel()
	m := New[string, int](WithNumSegments(4))

	m.Insert("a", 1)
	_, removed := m.RemoveIf("a", func(_ string, v int) bool { return v > 1 })
	assert.False(t, removed)

	v, ok := m.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestModifyOnAbsentKeyNeverInserts(t *testing.T) {
	t.Parallel()
	m := New[string, int](WithNumSegments(4))

	_, existed := m.Modify("ghost", func(_ string, v int) int { return v + 1 })
	assert.False(t, existed)

	_, ok := m.Get("ghost")
	assert.False(t, ok)
	assert.Equal(t, 0, m.Len())
}

func TestModifyOnPresentKeyUpdates(t *testing.T) {
	t.Parallel()
	m := New[string, int](WithNumSegments(4))

	m.Insert("a", 10)
	old, existed := m.Modify("a", func(_ string, v int) int { return v * 2 })
	require.True(t, existed)
	assert.Equal(t, 10, old)

	v, _ := m.Get("a")
	assert.Equal(t, 20, v)
}

func TestInsertWithOrModifyInsertsOnFirstCall(t *testing.T) {
	t.Parallel()
	m := New[string, int](WithNumSegments(4))

	_, existed := m.InsertWithOrModify("a",
		func() int { return 1 },
		func(_ string, v int) int { return v + 1 },
	)
	assert.False(t, existed)

	v, ok := m.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestInsertWithOrModifyModifiesOnSubsequentCalls(t *testing.T) {
	t.Parallel()
	m := New[string, int](WithNumSegments(4))

	m.InsertWithOrModify("a", func() int { return 1 }, func(_ string, v int) int { return v + 1 })
	_, existed := m.InsertWithOrModify("a", func() int { return 1 }, func(_ string, v int) int { return v + 1 })
	assert.True(t, existed)

	v, _ := m.Get("a")
	assert.Equal(t, 2, v)
}

func TestGetAndProjectsUnderGuard(t *testing.T) {
	t.Parallel()
	m := New[string, string](WithNumSegments(4))

	m.Insert("a", "hello")
	v, ok := m.GetAnd("a", func(k, v string) string { return k + ":" + v })
	require.True(t, ok)
	assert.Equal(t, "a:hello", v)
}

func TestZeroCapacityDefersAllocationUntilFirstInsert(t *testing.T) {
	t.Parallel()
	m := New[string, int](WithNumSegments(1), WithCapacity(0))

	assert.Equal(t, 0, m.SegmentCapacity(0))

	_, ok := m.Get("anything")
	assert.False(t, ok)
	assert.Equal(t, 0, m.SegmentCapacity(0), "a pure read must never allocate a bucket array")

	m.Insert("a", 1)
	assert.Greater(t, m.SegmentCapacity(0), 0)
}

func TestSingleSegmentRoutesEveryKeyToSegmentZero(t *testing.T) {
	t.Parallel()
	m := New[string, int](WithNumSegments(1))

	for _, k := range []string{"a", "b", "c", "d", "e"} {
		assert.Equal(t, 0, m.SegmentIndex(k))
	}
	assert.Equal(t, 1, m.NumSegments())
}

func TestLenTracksInsertsAndRemoves(t *testing.T) {
	t.Parallel()
	m := New[string, int](WithNumSegments(4))

	assert.Equal(t, 0, m.Len())
	assert.True(t, m.IsEmpty())

	m.Insert("a", 1)
	m.Insert("b", 2)
	assert.Equal(t, 2, m.Len())

	m.Remove("a")
	assert.Equal(t, 1, m.Len())
	assert.False(t, m.IsEmpty())
}

func TestSequentialInsertsTriggerMultipleRehashes(t *testing.T) {
	t.Parallel()
	m := New[int, int](WithNumSegments(1), WithCapacity(4))

	const n = 1000
	for i := 0; i < n; i++ {
		_, existed := m.Insert(i, i*i)
		assert.False(t, existed)
	}

	assert.Equal(t, n, m.Len())
	for i := 0; i < n; i++ {
		v, ok := m.Get(i)
		require.True(t, ok, "key %d must survive repeated rehashing", i)
		assert.Equal(t, i*i, v)
	}
}

func TestCustomHasherIsUsed(t *testing.T) {
	t.Parallel()
	calls := 0
	hasher := func(k string) uint64 {
		calls++
		return uint64(len(k))
	}
	m := NewWithHasher[string, int](hasher, WithNumSegments(2))

	m.Insert("ab", 1)
	assert.Greater(t, calls, 0)

	v, ok := m.Get("ab")
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestCloseReleasesAllBuckets(t *testing.T) {
	t.Parallel()
	m := New[string, int](WithNumSegments(4))

	for i := 0; i < 50; i++ {
		m.Insert(string(rune('a'+i%26))+string(rune('A'+i%26)), i)
	}

	assert.NotPanics(t, func() { m.Close() })
}
