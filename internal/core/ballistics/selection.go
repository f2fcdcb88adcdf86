package ballistics

import "github.com/zeusync/salvo/internal/core/systems/physics"

// Arc names one of the two solutions.
type Arc uint8

const (
	ArcLow Arc = iota
	ArcHigh
)

func (a Arc) String() string {
	if a == ArcHigh {
		return "high"
	}
	return "low"
}

func (a Arc) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// ElevationBounds are the mechanical pitch limits of a gun in degrees.
type ElevationBounds struct {
	MinDeg float64 `json:"min_deg" yaml:"min_deg"`
	MaxDeg float64 `json:"max_deg" yaml:"max_deg"`
}

func (b ElevationBounds) Clamp(angleDeg float64) float64 {
	return physics.Clamp(angleDeg, b.MinDeg, b.MaxDeg)
}

func (b ElevationBounds) Contains(angleDeg float64) bool {
	return angleDeg >= b.MinDeg && angleDeg <= b.MaxDeg
}

// ClearanceCheck reports whether the arc launched at angleDeg is clear.
type ClearanceCheck func(angleDeg float64) bool

// Selection is the angle actually commanded to the elevation actuator.
type Selection struct {
	OK        bool    `json:"ok"`
	AngleDeg  float64 `json:"angle_deg"`
	SolvedDeg float64 `json:"solved_deg"`
	Arc       Arc     `json:"arc"`
	// LowBlocked is set when the low arc failed its check and the high arc
	// was taken unchecked.
	LowBlocked bool `json:"low_blocked"`
	Clamped    bool `json:"clamped"`
}

// SelectAngle picks the low arc when check reports it clear and the high arc
// otherwise. The high arc is not checked. The chosen angle is clamped to
// bounds only after the choice is made. A nil check treats the low arc as
// clear.
func SelectAngle(sol FiringSolution, check ClearanceCheck, bounds ElevationBounds) Selection {
	if !sol.Feasible {
		return Selection{}
	}

	sel := Selection{OK: true, Arc: ArcLow}
	if check != nil && !check(sol.LowAngleDeg) {
		sel.Arc = ArcHigh
		sel.LowBlocked = true
	}

	sel.SolvedDeg = sol.Angle(sel.Arc)
	sel.AngleDeg = bounds.Clamp(sel.SolvedDeg)
	sel.Clamped = sel.AngleDeg != sel.SolvedDeg
	return sel
}
