package ballistics

import (
	"math"

	"github.com/zeusync/salvo/internal/core/systems/physics"
)

// ClearanceQuery is the caller's view of the world: obstacle geometry and
// terrain height. The solver never owns the data behind it.
type ClearanceQuery interface {
	// IsBlocked reports whether the straight segment from -> to intersects
	// obstacle geometry.
	IsBlocked(from, to Vec3) bool
	physics.HeightField
}

// ClearanceFuncs adapts two plain functions to ClearanceQuery. A nil Blocked
// never blocks; a nil Height means there is no terrain.
type ClearanceFuncs struct {
	Blocked func(from, to Vec3) bool
	Height  func(x, z float64) float64
}

func (c ClearanceFuncs) IsBlocked(from, to Vec3) bool {
	return c.Blocked != nil && c.Blocked(from, to)
}

func (c ClearanceFuncs) HeightAt(x, z float64) float64 {
	if c.Height == nil {
		return math.Inf(-1)
	}
	return c.Height(x, z)
}

// FlatGround is an obstacle-free plane at height Y.
type FlatGround struct {
	Y float64
}

func (FlatGround) IsBlocked(_, _ Vec3) bool        { return false }
func (g FlatGround) HeightAt(_, _ float64) float64 { return g.Y }
