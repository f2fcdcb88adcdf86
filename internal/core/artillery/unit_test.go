package artillery

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeusync/salvo/internal/core/ballistics"
	"github.com/zeusync/salvo/internal/core/events/bus"
	"github.com/zeusync/salvo/internal/core/systems/physics"
)

type fixedRand float64

func (r fixedRand) Float64() float64 { return float64(r) }

type recorder struct {
	events []bus.Event
}

func (r *recorder) of(eventType string) []bus.Event {
	var out []bus.Event
	for _, e := range r.events {
		if e.Type() == eventType {
			out = append(out, e)
		}
	}
	return out
}

func newTestUnit(t *testing.T, mutate func(*UnitConfig)) (*Unit, *recorder) {
	t.Helper()
	cfg := DefaultUnitConfig()
	cfg.ID = "gun-1"
	cfg.MuzzleSpeed = 50
	if mutate != nil {
		mutate(&cfg)
	}

	b := bus.New()
	rec := &recorder{}
	_, err := b.Subscribe(bus.AnyEvent, func(e bus.Event) error {
		rec.events = append(rec.events, e)
		return nil
	})
	require.NoError(t, err)

	u, err := NewUnit(cfg, Deps{
		Solver:    ballistics.NewSolver(ballistics.DefaultConfig(), nil),
		Clearance: ballistics.FlatGround{},
		Bus:       b,
		Rand:      fixedRand(0.5),
	})
	require.NoError(t, err)
	return u, rec
}

func tickUntil(u *Unit, dt float64, limit int, done func() bool) int {
	for i := 1; i <= limit; i++ {
		u.Tick(dt)
		if done() {
			return i
		}
	}
	return -1
}

func TestUnitAimsAtTarget(t *testing.T) {
	u, rec := newTestUnit(t, nil)
	u.SetTarget(physics.V3(100, 0, 0))
	assert.Equal(t, StatusAiming, u.Status())

	ticks := tickUntil(u, 0.05, 400, u.IsAimed)
	require.Positive(t, ticks, "unit never aimed")
	assert.Equal(t, StatusAimed, u.Status())
	// traversing 90 degrees at 12 deg/s dominates
	assert.InDelta(t, 89.0/12.0, float64(ticks)*0.05, 0.1)

	aimed := rec.of(EventAimed)
	require.Len(t, aimed, 1)
	payload := aimed[0].Data().(Aimed)
	assert.Equal(t, "gun-1", aimed[0].Source())
	assert.Equal(t, ballistics.ArcLow, payload.Arc)
	assert.InDelta(t, 11.552, payload.AngleDeg, 0.01)
	assert.InDelta(t, 100*math.Tan(2*physics.Deg2Rad), payload.ImpactRadius, 1e-6)

	changes := rec.of(EventStatusChanged)
	require.Len(t, changes, 2)
	assert.Equal(t, StatusChange{UnitID: "gun-1", From: StatusIdle, To: StatusAiming}, changes[0].Data())
	assert.Equal(t, StatusChange{UnitID: "gun-1", From: StatusAiming, To: StatusAimed}, changes[1].Data())

	// further ticks do not re-announce
	tickUntil(u, 0.05, 20, func() bool { return false })
	assert.Len(t, rec.of(EventAimed), 1)
}

func TestUnitIdleWithoutTarget(t *testing.T) {
	u, rec := newTestUnit(t, nil)
	u.Tick(1)
	assert.Equal(t, StatusIdle, u.Status())
	assert.Zero(t, u.ImpactRadius())
	assert.Empty(t, rec.events)

	_, err := u.Fire()
	assert.ErrorIs(t, err, ErrNoTarget)
}

func TestUnitFireCadenceAndCooldown(t *testing.T) {
	u, rec := newTestUnit(t, nil)
	u.SetTarget(physics.V3(100, 0, 0))

	shell, err := u.Fire()
	require.NoError(t, err)
	assert.Equal(t, StatusFired, u.Status())
	assert.Equal(t, 9, u.Ammo())
	assert.Equal(t, "gun-1", shell.UnitID)
	assert.InDelta(t, 50, shell.Velocity.Len(), 1e-9)
	require.Len(t, rec.of(EventFired), 1)

	_, err = u.Fire()
	assert.ErrorIs(t, err, ErrNotReady)

	tickUntil(u, 0.25, 7, func() bool { return false })
	assert.Equal(t, StatusFired, u.Status())
	u.Tick(0.25)
	assert.Equal(t, StatusIdle, u.Status(), "cooldown returns to idle after 2s")

	tickUntil(u, 0.25, 3, func() bool { return false })
	_, err = u.Fire()
	assert.ErrorIs(t, err, ErrNotReady)
	u.Tick(0.25)
	_, err = u.Fire()
	assert.NoError(t, err, "ready again after the 3s interval")
}

func TestUnitReloadsOnlyWhenEmpty(t *testing.T) {
	u, _ := newTestUnit(t, func(c *UnitConfig) {
		c.MaxAmmo = 2
		c.ShootInterval = 0
	})
	u.SetTarget(physics.V3(100, 0, 0))

	_, err := u.Fire()
	require.NoError(t, err)
	u.Tick(5)
	assert.Equal(t, 1, u.Ammo(), "partial magazine is not reloaded")

	_, err = u.Fire()
	require.NoError(t, err)
	_, err = u.Fire()
	assert.ErrorIs(t, err, ErrNoAmmo)

	tickUntil(u, 0.25, 7, func() bool { return false })
	assert.Zero(t, u.Ammo())
	assert.True(t, u.Snapshot().Reloading)
	u.Tick(0.25)
	assert.Equal(t, 2, u.Ammo())
	assert.True(t, u.Ready())
}

func TestUnitShellLandsNearTarget(t *testing.T) {
	u, rec := newTestUnit(t, func(c *UnitConfig) {
		c.TraverseRate = 360
		c.ElevationRate = 90
	})
	target := physics.V3(100, 0, 0)
	u.SetTarget(target)
	require.Positive(t, tickUntil(u, 0.05, 100, u.IsAimed))
	tickUntil(u, 0.05, 10, func() bool { return false })

	shell, err := u.Fire()
	require.NoError(t, err)
	assert.Equal(t, ballistics.TerminationGround, shell.Termination)
	assert.InDelta(t, 90, shell.YawDeg, 1e-9)
	assert.Less(t, physics.FlatDistance(target, shell.Impact), 3.0)

	fired := rec.of(EventFired)
	require.Len(t, fired, 1)
	assert.Equal(t, shell, fired[0].Data())
}

func TestUnitSpreadBounds(t *testing.T) {
	u, _ := newTestUnit(t, nil)
	u.rng = fixedRand(0.999)
	u.SetTarget(physics.V3(0, 0, 100))

	shell, err := u.Fire()
	require.NoError(t, err)
	// spread ~2 degrees, then both axes at the top of [-2, 2]
	assert.InDelta(t, 2, shell.YawDeg, 0.01)
	assert.InDelta(t, 2, shell.PitchDeg, 0.01)
}

func TestUnitUnreachableReportedOnce(t *testing.T) {
	u, rec := newTestUnit(t, nil)
	u.SetTarget(physics.V3(5000, 0, 0))
	tickUntil(u, 0.05, 10, func() bool { return false })

	assert.Equal(t, StatusAiming, u.Status())
	assert.False(t, u.IsAimed())
	events := rec.of(EventUnreachable)
	require.Len(t, events, 1)
	assert.Equal(t, ballistics.StatusOutOfRange, events[0].Data().(Unreachable).Status)

	u.SetTarget(physics.V3(6000, 0, 0))
	u.Tick(0.05)
	assert.Len(t, rec.of(EventUnreachable), 2)
}

func TestUnitRetargetDiscardsAim(t *testing.T) {
	u, _ := newTestUnit(t, func(c *UnitConfig) { c.TraverseRate = 360 })
	u.SetTarget(physics.V3(100, 0, 0))
	require.Positive(t, tickUntil(u, 0.05, 100, u.IsAimed))

	u.SetTarget(physics.V3(-100, 0, 0))
	assert.False(t, u.IsAimed())
	assert.Equal(t, StatusAiming, u.Status())
	assert.Nil(t, u.Snapshot().Solution)
}

func TestUnitRetargetAfterFireKeepsAiming(t *testing.T) {
	u, _ := newTestUnit(t, func(c *UnitConfig) { c.TraverseRate = 10 })
	u.SetTarget(physics.V3(100, 0, 0))
	_, err := u.Fire()
	require.NoError(t, err)

	u.Tick(0.5)
	u.SetTarget(physics.V3(-100, 0, 0))
	tickUntil(u, 0.25, 8, func() bool { return false })

	assert.Equal(t, StatusAiming, u.Status(), "cooldown from the previous shot must not idle a retargeted gun")
	assert.False(t, u.IsAimed())
}

func TestUnitSnapshot(t *testing.T) {
	u, _ := newTestUnit(t, func(c *UnitConfig) { c.MuzzleHeight = 2 })
	assert.Equal(t, physics.V3(0, 2, 0), u.Origin())

	s := u.Snapshot()
	assert.Equal(t, "gun-1", s.ID)
	assert.Nil(t, s.Target)
	assert.Equal(t, 10, s.Ammo)

	u.SetTarget(physics.V3(0, 0, 120))
	u.Tick(0.05)
	s = u.Snapshot()
	require.NotNil(t, s.Target)
	require.NotNil(t, s.Solution)
	assert.Empty(t, s.Solution.Trajectory.Points)
	assert.Positive(t, s.TimeToHit)
}

func TestUnitConfigValidation(t *testing.T) {
	require.NoError(t, DefaultUnitConfig().Validate())

	bad := []func(*UnitConfig){
		func(c *UnitConfig) { c.MuzzleSpeed = 0 },
		func(c *UnitConfig) { c.MaxAmmo = 0 },
		func(c *UnitConfig) { c.MinSpreadDeg = 3 },
		func(c *UnitConfig) { c.TraverseRate = 0 },
		func(c *UnitConfig) { c.AimThreshold = 0 },
		func(c *UnitConfig) { c.Position = physics.V3(math.NaN(), 0, 0) },
	}
	for _, mutate := range bad {
		cfg := DefaultUnitConfig()
		mutate(&cfg)
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
	}

	_, err := NewUnit(DefaultUnitConfig(), Deps{})
	assert.ErrorIs(t, err, ErrMissingSolver)
}

func TestNewUnitAssignsID(t *testing.T) {
	u, err := NewUnit(DefaultUnitConfig(), Deps{Solver: ballistics.NewSolver(ballistics.DefaultConfig(), nil)})
	require.NoError(t, err)
	assert.Len(t, u.ID(), 36)
}
