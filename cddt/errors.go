package cddt

import "errors"

var (
	// ErrFormat is returned when a loaded document does not have the expected
	// structure. No partial Table is produced.
	ErrFormat = errors.New("incorrectly formatted CDDT data")

	// ErrDegenerateSlice is returned by Bounds, Dims and Reconstruct when
	// every bin of a slice is empty. Callers should treat it as "nothing to
	// display" for that slice only.
	ErrDegenerateSlice = errors.New("empty slice, nothing to visualize")

	// ErrIndexOutOfRange is returned by bounds-checked slice lookups.
	ErrIndexOutOfRange = errors.New("slice index out of range")
)
