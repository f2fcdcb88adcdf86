package physics

import "math"

const (
	Deg2Rad = math.Pi / 180
	Rad2Deg = 180 / math.Pi
)

// Vec3 is a y-up world vector. The ground plane is XZ.
type Vec3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

var (
	Zero = Vec3{}
	Up   = Vec3{Y: 1}
)

func V3(x, y, z float64) Vec3 { return Vec3{X: x, Y: y, Z: z} }

func (v Vec3) Add(o Vec3) Vec3      { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3      { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vec3) Scale(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }
func (v Vec3) Dot(o Vec3) float64   { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }
func (v Vec3) Len() float64         { return math.Sqrt(v.Dot(v)) }
func (v Vec3) LenSq() float64       { return v.Dot(v) }
func (v Vec3) Flat() Vec3           { return Vec3{X: v.X, Z: v.Z} }
func (v Vec3) FlatLen() float64     { return math.Hypot(v.X, v.Z) }
func (v Vec3) IsZero() bool         { return v.X == 0 && v.Y == 0 && v.Z == 0 }
func (v Vec3) Lerp(o Vec3, t float64) Vec3 {
	return v.Add(o.Sub(v).Scale(t))
}

// Normalize returns the unit vector, or Zero for a zero-length input.
func (v Vec3) Normalize() Vec3 {
	l := v.Len()
	if l == 0 {
		return Zero
	}
	return v.Scale(1 / l)
}

// IsFinite reports whether every component is a real number.
func (v Vec3) IsFinite() bool {
	return isFinite(v.X) && isFinite(v.Y) && isFinite(v.Z)
}

// Distance computes Euclidean distance between two points.
func Distance(a, b Vec3) float64 { return b.Sub(a).Len() }

// FlatDistance is the distance between a and b projected onto the ground plane.
func FlatDistance(a, b Vec3) float64 { return b.Sub(a).FlatLen() }

// Yaw returns the heading of the horizontal direction from a to b in degrees.
// 0 points along +Z, 90 along +X.
func Yaw(a, b Vec3) float64 {
	d := b.Sub(a)
	return math.Atan2(d.X, d.Z) * Rad2Deg
}

// DeltaAngle returns the shortest signed difference between two headings in
// degrees, in (-180, 180].
func DeltaAngle(from, to float64) float64 {
	d := math.Mod(to-from, 360)
	if d > 180 {
		d -= 360
	} else if d <= -180 {
		d += 360
	}
	return d
}

// MoveTowardsAngle rotates current toward target by at most maxDelta degrees,
// taking the short way around.
func MoveTowardsAngle(current, target, maxDelta float64) float64 {
	d := DeltaAngle(current, target)
	if math.Abs(d) <= maxDelta {
		return target
	}
	return current + math.Copysign(maxDelta, d)
}

// Clamp limits value to [lo, hi].
func Clamp(value, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, value))
}

func isFinite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
