package physics

// Positioned is anything with a world-space position. Battery ranking and
// sensors only need this much of a unit.
type Positioned interface {
	Position() Vec3
}

// HeightField reports ground elevation at a horizontal coordinate.
type HeightField interface {
	HeightAt(x, z float64) float64
}

// RangeTo is the straight-line distance from x to p.
func RangeTo(x Positioned, p Vec3) float64 { return Distance(x.Position(), p) }
