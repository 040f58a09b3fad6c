package cht

import "runtime"

const defaultLoadFactor = 0.5

// config accumulates constructor options before New resolves them into a
// Map. Grounded on the teacher's variadic NewConcurrentMap(paras
// ...interface{}) constructor and on the functional-options idiom shown by
// other_examples/496d0714_dustinxie-lockfree__hashmap-hmap.go.go's
// Option func(*hmap); the teacher's interface{}-param-list approach isn't
// type-safe and doesn't fit a generic Map[K, V], so the functional-options
// shape is used instead.
type config struct {
	numSegments int
	capacity    int
	loadFactor  float64
}

// Option configures a Map at construction time (spec.md §6 "Construction
// options").
type Option func(*config)

// WithNumSegments sets the number of segments. It is rounded up to a power
// of two; requesting 0 panics with ErrZeroSegments at construction
// (spec.md §7.1, §8).
func WithNumSegments(n int) Option {
	return func(c *config) { c.numSegments = n }
}

// WithCapacity sets the initial per-map capacity, split evenly across
// segments. 0 (the default) defers all bucket-array allocation until the
// first insert into each segment (spec.md §6).
func WithCapacity(n int) Option {
	return func(c *config) { c.capacity = n }
}

// WithLoadFactor overrides the default 50% occupancy rehash threshold
// (spec.md §4.1, §9). Must be strictly between 0 and 1.
func WithLoadFactor(f float64) Option {
	return func(c *config) { c.loadFactor = f }
}

func resolveConfig(opts []Option) config {
	c := config{
		numSegments: 2 * runtime.NumCPU(),
		capacity:    0,
		loadFactor:  defaultLoadFactor,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
