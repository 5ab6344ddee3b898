package decoder

import "errors"

var (
	// ErrNoFrame reports that input was consumed but no frame is ready
	// yet. It is not a failure.
	ErrNoFrame = errors.New("decoder: no frame available")

	// ErrHardFailure reports that the family cannot process the bitstream.
	// The worker swaps to the next candidate family and replays the unit.
	ErrHardFailure = errors.New("decoder: hard decode failure")

	// ErrInitFailure reports that a family instance could not be created.
	ErrInitFailure = errors.New("decoder: init failure")

	// ErrDeviceLost reports that the instance's underlying device went away
	// while units were in flight. The same family is recreated and the
	// in-flight units are replayed.
	ErrDeviceLost = errors.New("decoder: device lost")

	// ErrFamiliesExhausted is terminal: no candidate family could decode
	// the stream.
	ErrFamiliesExhausted = errors.New("decoder: all decoder families failed")
)
