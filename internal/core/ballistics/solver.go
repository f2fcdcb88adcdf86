package ballistics

import (
	"math"

	"github.com/zeusync/salvo/internal/core/observability/log"
	"github.com/zeusync/salvo/internal/core/systems/physics"
)

// Config tunes the integrator and the selection policy.
type Config struct {
	Gravity       float64 `json:"gravity" yaml:"gravity"`
	TimeStep      float64 `json:"time_step" yaml:"time_step"`
	MaxSteps      int     `json:"max_steps" yaml:"max_steps"`
	SurfaceOffset float64 `json:"surface_offset" yaml:"surface_offset"`
	// ArrivalTolerance is how far short of the target, horizontally, a first
	// contact may be and still count as arrival. Ground contact also gets one
	// integration step of slack. See ArcClearance.
	ArrivalTolerance float64         `json:"arrival_tolerance" yaml:"arrival_tolerance"`
	Elevation        ElevationBounds `json:"elevation" yaml:"elevation"`
}

func DefaultConfig() Config {
	return Config{
		Gravity:          9.81,
		TimeStep:         0.05,
		MaxSteps:         500,
		SurfaceOffset:    0.1,
		ArrivalTolerance: 2,
		Elevation:        ElevationBounds{MinDeg: -4, MaxDeg: 85},
	}
}

// Solver runs solve, select and clamp against a clearance query. It holds
// only immutable configuration and is safe for concurrent use.
type Solver struct {
	cfg    Config
	logger log.Log
}

func NewSolver(cfg Config, logger log.Log) *Solver {
	if logger == nil {
		logger = log.Nop()
	}
	return &Solver{cfg: cfg, logger: logger.With(log.String("component", "ballistics"))}
}

func (s *Solver) Config() Config { return s.cfg }

// Request builds a ShotRequest using the configured gravity.
func (s *Solver) Request(origin, target Vec3, muzzleSpeed float64) ShotRequest {
	return ShotRequest{Origin: origin, Target: target, MuzzleSpeed: muzzleSpeed, Gravity: s.cfg.Gravity}
}

// Params returns the integrator parameters for req fired at angleDeg.
func (s *Solver) Params(req ShotRequest, angleDeg float64) TrajectoryParams {
	return TrajectoryParams{
		Origin:        req.Origin,
		AngleDeg:      angleDeg,
		AimDir:        req.AimDirection(),
		Speed:         req.MuzzleSpeed,
		Gravity:       req.Gravity,
		TimeStep:      s.cfg.TimeStep,
		MaxSteps:      s.cfg.MaxSteps,
		SurfaceOffset: s.cfg.SurfaceOffset,
	}
}

// ArcClearance returns the check SelectAngle uses in production. Running out
// of steps counts as clear. Otherwise the first contact decides:
//
// Ground contact counts as arrival when it happens within one integration
// step plus ArrivalTolerance short of the target's horizontal distance, since
// a descending shell meets the surface at the target itself.
//
// Obstacle contact is located on the segment where the shell first enters
// the obstacle, and counts as arrival only when that entry point lies within
// ArrivalTolerance of the target's horizontal distance. A wall standing
// further short of the target blocks the arc.
func (s *Solver) ArcClearance(req ShotRequest, q ClearanceQuery) ClearanceCheck {
	xz, _ := req.Geometry()
	return func(angleDeg float64) bool {
		step := math.Abs(req.MuzzleSpeed * math.Cos(angleDeg*physics.Deg2Rad) * s.cfg.TimeStep)

		for seg := range Sample(s.Params(req, angleDeg), q).Seq() {
			switch seg.Contact {
			case TerminationNone:
				continue
			case TerminationObstacle:
				entry := obstacleEntry(seg, q)
				return entry.Sub(req.Origin).FlatLen() >= xz-s.cfg.ArrivalTolerance
			default:
				return seg.To.Sub(req.Origin).FlatLen() >= xz-step-s.cfg.ArrivalTolerance
			}
		}
		return true
	}
}

// entrySearchSteps halves the contact segment this many times.
const entrySearchSteps = 24

// obstacleEntry bisects a blocked segment for the first blocked point.
func obstacleEntry(seg Segment, q ClearanceQuery) Vec3 {
	lo, hi := 0.0, 1.0
	for range entrySearchSteps {
		mid := (lo + hi) / 2
		if q.IsBlocked(seg.From, seg.From.Lerp(seg.To, mid)) {
			hi = mid
		} else {
			lo = mid
		}
	}
	return seg.From.Lerp(seg.To, hi)
}

// Aim is the complete answer for one shot.
type Aim struct {
	Request    ShotRequest    `json:"request"`
	Solution   FiringSolution `json:"solution"`
	Selection  Selection      `json:"selection"`
	AimDir     Vec3           `json:"aim_dir"`
	TimeToHit  float64        `json:"time_to_hit"`
	Trajectory Trajectory     `json:"trajectory"`
}

func (a Aim) OK() bool { return a.Selection.OK }

// Aim solves req, selects an arc against q, clamps it and traces the chosen
// angle for display.
func (s *Solver) Aim(req ShotRequest, q ClearanceQuery) Aim {
	sol := Solve(req)
	aim := Aim{Request: req, Solution: sol, AimDir: req.AimDirection()}
	if !sol.Feasible {
		s.logger.Debug("no firing solution",
			log.Stringer("status", sol.Status),
			log.Float64("distance", sol.Distance),
			log.Float64("height", sol.Height))
		return aim
	}

	aim.Selection = SelectAngle(sol, s.ArcClearance(req, q), s.cfg.Elevation)
	if aim.Selection.LowBlocked {
		s.logger.Debug("low arc blocked, using high arc",
			log.Float64("low_deg", sol.LowAngleDeg),
			log.Float64("high_deg", sol.HighAngleDeg))
	}
	aim.TimeToHit = TimeOfFlight(sol.Distance, req.MuzzleSpeed, aim.Selection.AngleDeg)
	aim.Trajectory = Trace(s.Params(req, aim.Selection.AngleDeg), q)
	return aim
}

// Trajectory traces req at an explicit angle.
func (s *Solver) Trajectory(req ShotRequest, angleDeg float64, q ClearanceQuery) Trajectory {
	return Trace(s.Params(req, angleDeg), q)
}
