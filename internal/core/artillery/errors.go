package artillery

import "errors"

var (
	ErrNoTarget      = errors.New("artillery: no target assigned")
	ErrNotReady      = errors.New("artillery: gun is still cycling")
	ErrNoAmmo        = errors.New("artillery: out of ammunition")
	ErrInvalidConfig = errors.New("artillery: invalid unit config")
	ErrMissingSolver = errors.New("artillery: solver is required")
)
