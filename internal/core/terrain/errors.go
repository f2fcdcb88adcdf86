package terrain

import "errors"

var (
	ErrEmptyHeightmap  = errors.New("heightmap has no samples")
	ErrRaggedHeightmap = errors.New("heightmap rows differ in length")
	ErrInvalidCellSize = errors.New("heightmap cell size must be positive")
	ErrInvertedBox     = errors.New("obstacle min corner exceeds max corner")
)
