package ballistics

import "errors"

var (
	// ErrOutOfRange means no ballistic arc reaches the target at the given speed.
	ErrOutOfRange = errors.New("target out of range")
	// ErrDegenerateGeometry means the target is directly above or below the
	// muzzle, where the closed-form solution divides by zero.
	ErrDegenerateGeometry = errors.New("degenerate geometry: zero horizontal distance")
	// ErrInvalidInput covers non-positive speed or gravity and non-finite vectors.
	ErrInvalidInput = errors.New("invalid shot request")
)
