package ballistics

import (
	"fmt"
	"math"

	"github.com/zeusync/salvo/internal/core/systems/physics"
)

type Vec3 = physics.Vec3

// degenerateDistance is the horizontal distance below which the target counts
// as straight above or below the muzzle.
const degenerateDistance = 1e-9

// ShotRequest is one shot to solve. It is a value; solving never mutates it.
type ShotRequest struct {
	Origin      Vec3    `json:"origin" yaml:"origin"`
	Target      Vec3    `json:"target" yaml:"target"`
	MuzzleSpeed float64 `json:"muzzle_speed" yaml:"muzzle_speed"`
	Gravity     float64 `json:"gravity" yaml:"gravity"`
}

// Geometry returns the horizontal distance and signed height difference from
// origin to target.
func (r ShotRequest) Geometry() (xz, y float64) {
	d := r.Target.Sub(r.Origin)
	return d.FlatLen(), d.Y
}

// AimDirection is the unit vector from origin toward target in the ground
// plane, or Zero when the target is straight above or below.
func (r ShotRequest) AimDirection() Vec3 {
	return r.Target.Sub(r.Origin).Flat().Normalize()
}

// Validate reports ErrInvalidInput when the request cannot be traced: a
// non-finite endpoint or geometry, or a speed or gravity that is not a
// positive finite number.
func (r ShotRequest) Validate() error {
	if !r.Origin.IsFinite() || !r.Target.IsFinite() {
		return fmt.Errorf("%w: non-finite endpoint", ErrInvalidInput)
	}
	if xz, y := r.Geometry(); !finite(xz, y) {
		return fmt.Errorf("%w: geometry overflows", ErrInvalidInput)
	}
	if !finite(r.MuzzleSpeed, r.Gravity) || r.MuzzleSpeed <= 0 || r.Gravity <= 0 {
		return fmt.Errorf("%w: speed %g gravity %g", ErrInvalidInput, r.MuzzleSpeed, r.Gravity)
	}
	return nil
}

// Key is a canonical text form of the request, stable across calls.
func (r ShotRequest) Key() string {
	return fmt.Sprintf("%g,%g,%g>%g,%g,%g@%g/%g",
		r.Origin.X, r.Origin.Y, r.Origin.Z,
		r.Target.X, r.Target.Y, r.Target.Z,
		r.MuzzleSpeed, r.Gravity)
}

// Status explains a FiringSolution.
type Status uint8

const (
	StatusOK Status = iota
	StatusOutOfRange
	StatusDegenerateGeometry
	StatusInvalidInput
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusOutOfRange:
		return "out_of_range"
	case StatusDegenerateGeometry:
		return "degenerate_geometry"
	case StatusInvalidInput:
		return "invalid_input"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// FiringSolution holds both launch angles that land a drag-free projectile on
// the target. When Feasible, LowAngleDeg <= HighAngleDeg and both lie in
// [-90, 90].
type FiringSolution struct {
	LowAngleDeg  float64 `json:"low_angle_deg"`
	HighAngleDeg float64 `json:"high_angle_deg"`
	Feasible     bool    `json:"feasible"`
	Status       Status  `json:"status"`
	Distance     float64 `json:"distance"`
	Height       float64 `json:"height"`
}

// Err returns the sentinel matching Status, or nil for a feasible solution.
func (s FiringSolution) Err() error {
	switch s.Status {
	case StatusOK:
		return nil
	case StatusOutOfRange:
		return ErrOutOfRange
	case StatusDegenerateGeometry:
		return ErrDegenerateGeometry
	default:
		return ErrInvalidInput
	}
}

// Angle returns the solved angle for an arc.
func (s FiringSolution) Angle(arc Arc) float64 {
	if arc == ArcHigh {
		return s.HighAngleDeg
	}
	return s.LowAngleDeg
}

// SolveAngles solves the projectile range equation for launch angle.
// xz is the horizontal distance, y the target height relative to the muzzle,
// v the muzzle speed and g the gravity magnitude.
func SolveAngles(xz, y, v, g float64) FiringSolution {
	sol := FiringSolution{Distance: xz, Height: y}
	if !finite(xz, y, v, g) || xz < 0 || v <= 0 || g <= 0 {
		sol.Status = StatusInvalidInput
		return sol
	}
	if xz <= degenerateDistance {
		sol.Status = StatusDegenerateGeometry
		return sol
	}

	v2 := v * v
	disc := v2*v2 - g*(g*xz*xz+2*y*v2)
	if math.IsInf(v2*v2, 0) || math.IsNaN(disc) || math.IsInf(disc, 1) {
		// The discriminant overflowed; the angles would be meaningless.
		sol.Status = StatusInvalidInput
		return sol
	}
	if !(disc >= 0) {
		sol.Status = StatusOutOfRange
		return sol
	}

	sq := math.Sqrt(disc)
	low := math.Atan((v2-sq)/(g*xz)) * physics.Rad2Deg
	high := math.Atan((v2+sq)/(g*xz)) * physics.Rad2Deg
	if !finite(low, high) {
		sol.Status = StatusInvalidInput
		return sol
	}
	sol.LowAngleDeg, sol.HighAngleDeg = low, high
	sol.Feasible = true
	sol.Status = StatusOK
	return sol
}

// Solve computes the firing solution for a shot request.
func Solve(req ShotRequest) FiringSolution {
	if !req.Origin.IsFinite() || !req.Target.IsFinite() {
		return FiringSolution{Status: StatusInvalidInput}
	}
	xz, y := req.Geometry()
	return SolveAngles(xz, y, req.MuzzleSpeed, req.Gravity)
}

// MaxRange is the flat-ground range reached at 45 degrees.
func MaxRange(v, g float64) float64 {
	if g <= 0 {
		return math.Inf(1)
	}
	return v * v / g
}

// TimeOfFlight is the time a shell launched at angleDeg needs to cover the
// horizontal distance xz. It is +Inf for vertical shots.
func TimeOfFlight(xz, v, angleDeg float64) float64 {
	horizontal := v * math.Cos(angleDeg*physics.Deg2Rad)
	if horizontal <= 0 {
		return math.Inf(1)
	}
	return xz / horizontal
}

// ImpactRadius is the dispersion radius at distance for the widest spread
// angle in degrees.
func ImpactRadius(distance, minSpreadDeg, maxSpreadDeg float64) float64 {
	spread := math.Max(minSpreadDeg, maxSpreadDeg)
	return distance * math.Tan(spread*physics.Deg2Rad)
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
