package artillery

import (
	"math"
	"math/rand/v2"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/zeusync/salvo/internal/core/ballistics"
	"github.com/zeusync/salvo/internal/core/events/bus"
	"github.com/zeusync/salvo/internal/core/observability/log"
	"github.com/zeusync/salvo/internal/core/system"
	"github.com/zeusync/salvo/internal/core/systems/physics"
)

// Random yields uniform values in [0, 1). *rand.Rand satisfies it.
type Random interface {
	Float64() float64
}

// Deps are the collaborators a unit needs. Solver is required; a nil
// Clearance means open flat ground at y=0, a nil Bus disables events.
type Deps struct {
	Solver    *ballistics.Solver
	Clearance ballistics.ClearanceQuery
	Bus       bus.EventBus
	Logger    log.Log
	Rand      Random
}

// Unit is one self-propelled gun. It is not safe for concurrent use: the
// owner serializes Tick, SetTarget and Fire.
type Unit struct {
	id     string
	cfg    UnitConfig
	solver *ballistics.Solver
	query  ballistics.ClearanceQuery
	bus    bus.EventBus
	logger log.Log
	rng    Random

	status    Status
	target    physics.Vec3
	hasTarget bool

	yaw   actuator
	pitch actuator

	aim         ballistics.Aim
	aimed       bool
	unreachable bool

	ammo     int
	reload   system.Timer
	cadence  system.Timer
	cooldown system.Timer
}

func NewUnit(cfg UnitConfig, deps Deps) (*Unit, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Solver == nil {
		return nil, ErrMissingSolver
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if deps.Clearance == nil {
		deps.Clearance = ballistics.FlatGround{}
	}
	if deps.Logger == nil {
		deps.Logger = log.Nop()
	}
	if deps.Rand == nil {
		deps.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	return &Unit{
		id:     cfg.ID,
		cfg:    cfg,
		solver: deps.Solver,
		query:  deps.Clearance,
		bus:    deps.Bus,
		logger: deps.Logger.With(log.String("unit_id", cfg.ID)),
		rng:    deps.Rand,
		status: StatusIdle,
		yaw:    actuator{angle: cfg.InitialYawDeg, rate: cfg.TraverseRate, wrap: true},
		pitch:  actuator{rate: cfg.ElevationRate},
		ammo:   cfg.MaxAmmo,
	}, nil
}

func (u *Unit) ID() string             { return u.id }
func (u *Unit) Config() UnitConfig     { return u.cfg }
func (u *Unit) Position() physics.Vec3 { return u.cfg.Position }
func (u *Unit) Status() Status         { return u.status }
func (u *Unit) Ammo() int              { return u.ammo }
func (u *Unit) IsAimed() bool          { return u.aimed }
func (u *Unit) Ready() bool            { return !u.cadence.Active() && u.ammo > 0 }

// Origin is the shoot point.
func (u *Unit) Origin() physics.Vec3 {
	return u.cfg.Position.Add(physics.Up.Scale(u.cfg.MuzzleHeight))
}

func (u *Unit) Target() (physics.Vec3, bool) { return u.target, u.hasTarget }

// LastAim is the most recent solver answer for the current target.
func (u *Unit) LastAim() ballistics.Aim { return u.aim }

// SetTarget replaces the target and restarts aiming from the current barrel
// position.
func (u *Unit) SetTarget(p physics.Vec3) {
	u.target = p
	u.hasTarget = true
	u.aimed = false
	u.unreachable = false
	u.aim = ballistics.Aim{}
	u.cooldown.Stop()
	u.setStatus(StatusAiming)
}

// Tick advances timers and actuators by dt seconds. Without a target it does
// nothing.
func (u *Unit) Tick(dt float64) {
	if !u.hasTarget {
		return
	}

	u.cadence.Tick(dt)
	u.tickReload(dt)
	if u.cooldown.Tick(dt) && u.status == StatusFired {
		u.setStatus(StatusIdle)
	}
	u.tickAim(dt)
}

func (u *Unit) tickReload(dt float64) {
	if u.ammo > 0 {
		return
	}
	if !u.reload.Active() {
		u.reload.Start(u.cfg.ReloadTime)
	}
	if u.reload.Tick(dt) {
		u.ammo = u.cfg.MaxAmmo
		u.logger.Debug("Reloaded", log.Int("ammo", u.ammo))
	}
}

func (u *Unit) tickAim(dt float64) {
	wantYaw := physics.Yaw(u.cfg.Position, u.target)
	u.yaw.step(wantYaw, dt)

	u.aim = u.solver.Aim(u.solver.Request(u.Origin(), u.target, u.cfg.MuzzleSpeed), u.query)
	if !u.aim.OK() {
		if !u.unreachable {
			u.unreachable = true
			u.logger.Warn("Target unreachable",
				log.Stringer("status", u.aim.Solution.Status),
				log.Float64("distance", u.aim.Solution.Distance))
			u.publish(EventUnreachable, Unreachable{UnitID: u.id, Target: u.target, Status: u.aim.Solution.Status})
		}
		return
	}

	wantPitch := u.aim.Selection.AngleDeg
	u.pitch.step(wantPitch, dt)

	if !u.aimed && u.yaw.within(wantYaw, u.cfg.AimThreshold) && u.pitch.within(wantPitch, u.cfg.AimThreshold) {
		u.aimed = true
		u.setStatus(StatusAimed)
		u.publish(EventAimed, Aimed{
			UnitID:       u.id,
			Target:       u.target,
			AngleDeg:     wantPitch,
			YawDeg:       wantYaw,
			Arc:          u.aim.Selection.Arc,
			ImpactRadius: u.ImpactRadius(),
			TimeToHit:    u.aim.TimeToHit,
		})
	}
}

// Fire launches one round along the current barrel direction with random
// spread. It needs a target, a cycled gun and ammunition; it does not wait
// for Aimed.
func (u *Unit) Fire() (Shell, error) {
	switch {
	case !u.hasTarget:
		return Shell{}, ErrNoTarget
	case u.cadence.Active():
		return Shell{}, errors.Wrapf(ErrNotReady, "%.2fs left", u.cadence.Remaining())
	case u.ammo <= 0:
		return Shell{}, ErrNoAmmo
	}

	if u.cfg.ShootInterval > 0 {
		u.cadence.Start(u.cfg.ShootInterval)
	}
	u.ammo--
	u.setStatus(StatusFired)

	yaw, pitch := u.yaw.angle, u.pitch.angle
	if u.cfg.MinSpreadDeg != 0 || u.cfg.MaxSpreadDeg != 0 {
		spread := u.uniform(u.cfg.MinSpreadDeg, u.cfg.MaxSpreadDeg)
		yaw += u.uniform(-spread, spread)
		pitch += u.uniform(-spread, spread)
	}

	shell := u.launch(yaw, pitch)
	u.cooldown.Start(u.cfg.CooldownDelay)

	u.logger.Info("Fired",
		log.Float64("yaw_deg", yaw),
		log.Float64("pitch_deg", pitch),
		log.Int("ammo", u.ammo))
	u.publish(EventFired, shell)
	return shell, nil
}

func (u *Unit) launch(yawDeg, pitchDeg float64) Shell {
	heading := physics.V3(math.Sin(yawDeg*physics.Deg2Rad), 0, math.Cos(yawDeg*physics.Deg2Rad))
	p := pitchDeg * physics.Deg2Rad
	speed := u.cfg.MuzzleSpeed
	velocity := heading.Scale(speed * math.Cos(p)).Add(physics.Up.Scale(speed * math.Sin(p)))

	req := u.solver.Request(u.Origin(), u.Origin().Add(heading), speed)
	flight := u.solver.Trajectory(req, pitchDeg, u.query)
	impact, _ := flight.Impact()

	return Shell{
		UnitID:      u.id,
		Origin:      u.Origin(),
		Velocity:    velocity,
		Speed:       speed,
		YawDeg:      yawDeg,
		PitchDeg:    pitchDeg,
		Target:      u.target,
		Impact:      impact,
		FlightTime:  flight.FlightTime,
		Termination: flight.Termination,
	}
}

// ImpactRadius is the worst-case miss distance from spread, or 0 without a
// target.
func (u *Unit) ImpactRadius() float64 {
	if !u.hasTarget {
		return 0
	}
	return ballistics.ImpactRadius(physics.Distance(u.Origin(), u.target), u.cfg.MinSpreadDeg, u.cfg.MaxSpreadDeg)
}

func (u *Unit) uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*u.rng.Float64()
}

func (u *Unit) setStatus(s Status) {
	if u.status == s {
		return
	}
	prev := u.status
	u.status = s
	u.logger.Debug("Status changed", log.Stringer("from", prev), log.Stringer("to", s))
	u.publish(EventStatusChanged, StatusChange{UnitID: u.id, From: prev, To: s})
}

func (u *Unit) publish(eventType string, data any) {
	if u.bus == nil {
		return
	}
	if err := u.bus.Publish(bus.NewEvent(eventType, u.id, data, 0, nil)); err != nil {
		u.logger.Warn("Event handler failed", log.String("event", eventType), log.Error(err))
	}
}

// Snapshot is a read-only view of a unit.
type Snapshot struct {
	ID           string          `json:"id"`
	Status       Status          `json:"status"`
	Position     physics.Vec3    `json:"position"`
	Target       *physics.Vec3   `json:"target,omitempty"`
	YawDeg       float64         `json:"yaw_deg"`
	PitchDeg     float64         `json:"pitch_deg"`
	Ammo         int             `json:"ammo"`
	Reloading    bool            `json:"reloading"`
	Ready        bool            `json:"ready"`
	Aimed        bool            `json:"aimed"`
	ImpactRadius float64         `json:"impact_radius"`
	TimeToHit    float64         `json:"time_to_hit,omitempty"`
	Solution     *ballistics.Aim `json:"solution,omitempty"`
}

func (u *Unit) Snapshot() Snapshot {
	s := Snapshot{
		ID:           u.id,
		Status:       u.status,
		Position:     u.cfg.Position,
		YawDeg:       u.yaw.angle,
		PitchDeg:     u.pitch.angle,
		Ammo:         u.ammo,
		Reloading:    u.reload.Active(),
		Ready:        u.Ready(),
		Aimed:        u.aimed,
		ImpactRadius: u.ImpactRadius(),
	}
	if u.hasTarget {
		t := u.target
		s.Target = &t
	}
	if u.aim.OK() {
		aim := u.aim
		aim.Trajectory = ballistics.Trajectory{}
		s.TimeToHit = aim.TimeToHit
		s.Solution = &aim
	}
	return s
}
