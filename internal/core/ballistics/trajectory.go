package ballistics

import (
	"math"

	"github.com/zeusync/salvo/internal/core/systems/physics"
	"github.com/zeusync/salvo/pkg/sequence"
)

// Termination says why an integrated flight ended.
type Termination uint8

const (
	// TerminationNone marks a segment that ended in free flight.
	TerminationNone Termination = iota
	TerminationGround
	TerminationObstacle
	// TerminationStepLimit is a soft failure: the shell was still airborne
	// after MaxSteps and the path is assumed clear up to that point.
	TerminationStepLimit
)

func (t Termination) String() string {
	switch t {
	case TerminationNone:
		return "none"
	case TerminationGround:
		return "ground"
	case TerminationObstacle:
		return "obstacle"
	case TerminationStepLimit:
		return "step_limit"
	default:
		return "unknown"
	}
}

func (t Termination) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// TrajectoryParams fully determine an integrated flight.
type TrajectoryParams struct {
	Origin   Vec3
	AngleDeg float64
	// AimDir is the horizontal launch direction. It is flattened and
	// normalized before use.
	AimDir   Vec3
	Speed    float64
	Gravity  float64
	TimeStep float64
	MaxSteps int
	// SurfaceOffset lifts the terrain surface used for ground contact.
	SurfaceOffset float64
}

// Segment is one integration step.
type Segment struct {
	Index   int
	From    Vec3
	To      Vec3
	Time    float64
	Contact Termination
}

// Sample integrates the flight lazily. Every range over the returned iterator
// restarts the integration from params, so the sequence can be consumed any
// number of times. It ends after MaxSteps segments or right after the first
// segment that touches an obstacle or the terrain. A nil query disables both
// checks.
func Sample(p TrajectoryParams, q ClearanceQuery) *sequence.Iterator[Segment] {
	return sequence.New(func(yield func(Segment) bool) {
		if p.TimeStep <= 0 || p.MaxSteps <= 0 {
			return
		}

		dt := p.TimeStep
		a := p.AngleDeg * physics.Deg2Rad
		dir := p.AimDir.Flat().Normalize()
		gravity := physics.Vec3{Y: -p.Gravity}
		halfGdt2 := gravity.Scale(0.5 * dt * dt)
		gdt := gravity.Scale(dt)

		pos := p.Origin
		vel := dir.Scale(p.Speed * math.Cos(a)).Add(physics.Up.Scale(p.Speed * math.Sin(a)))

		for i := 0; i < p.MaxSteps; i++ {
			next := pos.Add(vel.Scale(dt)).Add(halfGdt2)

			contact := TerminationNone
			if q != nil {
				if q.IsBlocked(pos, next) {
					contact = TerminationObstacle
				} else if next.Y < q.HeightAt(next.X, next.Z)+p.SurfaceOffset {
					contact = TerminationGround
				}
			}

			seg := Segment{Index: i, From: pos, To: next, Time: float64(i+1) * dt, Contact: contact}
			if !yield(seg) || contact != TerminationNone {
				return
			}

			vel = vel.Add(gdt)
			pos = next
		}
	})
}

// Trajectory is a fully drained Sample.
type Trajectory struct {
	Points      []Vec3      `json:"points"`
	Termination Termination `json:"termination"`
	Steps       int         `json:"steps"`
	FlightTime  float64     `json:"flight_time"`
}

// Impact returns the last integrated position.
func (t Trajectory) Impact() (Vec3, bool) {
	if len(t.Points) == 0 {
		return Vec3{}, false
	}
	return t.Points[len(t.Points)-1], true
}

// Trace drains Sample into a Trajectory that starts at the origin.
func Trace(p TrajectoryParams, q ClearanceQuery) Trajectory {
	t := Trajectory{Points: []Vec3{p.Origin}}
	for seg := range Sample(p, q).Seq() {
		t.Points = append(t.Points, seg.To)
		t.Steps++
		t.FlightTime = seg.Time
		t.Termination = seg.Contact
	}
	if t.Termination == TerminationNone && t.Steps > 0 && t.Steps == p.MaxSteps {
		t.Termination = TerminationStepLimit
	}
	return t
}
