package cht

import "errors"

// Errors that construction panics with. Modeled on the teacher's package-level
// sentinel errors (NilKeyError, IllegalArgError in concurrentmap.go);
// programming errors that spec.md §7.1 says must "fail loudly and
// immediately" are panics instead, matching the teacher's
// panic(IllegalArgError) for constructor misuse.
var (
	// ErrZeroSegments is the panic value when WithNumSegments(0) is requested;
	// spec.md §8 requires construction with zero segments to fail.
	ErrZeroSegments = errors.New("cht: num_segments must be at least 1")

	// ErrInvalidLoadFactor is the panic value when WithLoadFactor is given a
	// value outside (0, 1), violating spec.md §9's "must remain strictly
	// < 1.0 and > 0 to guarantee progress."
	ErrInvalidLoadFactor = errors.New("cht: load factor must be strictly between 0 and 1")
)
