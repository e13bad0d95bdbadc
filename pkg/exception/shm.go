package exception

import "errors"

// Shared-memory bus errors
var (
	// ErrRingFull is returned when a reliable ring has no free slot.
	ErrRingFull = errors.New("shm: ring full")

	// ErrRingEmpty names a reliable ring with no pending frame. The rings'
	// Pop methods do not return it; they report an empty ring as (false, nil).
	ErrRingEmpty = errors.New("shm: ring empty")

	// ErrRingUnderflow is returned when read_idx overtakes write_idx. It is a bug, never backpressure.
	ErrRingUnderflow = errors.New("shm: ring index underflow")

	ErrBusSize    = errors.New("shm: mapped region smaller than bus")
	ErrBusNotOpen = errors.New("shm: bus not open")
	ErrShortFrame = errors.New("shm: buffer smaller than frame")
)
