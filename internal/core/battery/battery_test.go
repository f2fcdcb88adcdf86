package battery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeusync/salvo/internal/core/artillery"
	"github.com/zeusync/salvo/internal/core/ballistics"
	"github.com/zeusync/salvo/internal/core/events/bus"
	"github.com/zeusync/salvo/internal/core/systems/physics"
)

type fixedRand float64

func (r fixedRand) Float64() float64 { return float64(r) }

type harness struct {
	bus     bus.EventBus
	battery *Battery
	solver  *ballistics.Solver
	events  []bus.Event
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{bus: bus.New(), solver: ballistics.NewSolver(ballistics.DefaultConfig(), nil)}
	_, err := h.bus.Subscribe(bus.AnyEvent, func(e bus.Event) error {
		h.events = append(h.events, e)
		return nil
	})
	require.NoError(t, err)

	h.battery, err = New(cfg, h.bus, nil)
	require.NoError(t, err)
	return h
}

func (h *harness) addUnit(t *testing.T, id string, pos physics.Vec3, mutate func(*artillery.UnitConfig)) *artillery.Unit {
	t.Helper()
	cfg := artillery.DefaultUnitConfig()
	cfg.ID = id
	cfg.Position = pos
	cfg.TraverseRate = 360
	cfg.ElevationRate = 90
	if mutate != nil {
		mutate(&cfg)
	}
	u, err := artillery.NewUnit(cfg, artillery.Deps{Solver: h.solver, Bus: h.bus, Rand: fixedRand(0.5)})
	require.NoError(t, err)
	require.NoError(t, h.battery.Register(u))
	return u
}

func (h *harness) of(eventType string) []bus.Event {
	var out []bus.Event
	for _, e := range h.events {
		if e.Type() == eventType {
			out = append(out, e)
		}
	}
	return out
}

func TestFoldStatus(t *testing.T) {
	const (
		idle   = artillery.StatusIdle
		aiming = artillery.StatusAiming
		aimed  = artillery.StatusAimed
		fired  = artillery.StatusFired
	)
	tests := []struct {
		name string
		in   []artillery.Status
		want artillery.Status
	}{
		{"empty", nil, idle},
		{"all idle", []artillery.Status{idle, idle}, idle},
		{"any fired wins", []artillery.Status{aimed, fired, aiming}, fired},
		{"all aimed", []artillery.Status{aimed, aimed}, aimed},
		{"partly aimed", []artillery.Status{aimed, aiming}, aiming},
		{"aimed and idle", []artillery.Status{aimed, idle}, idle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, foldStatus(tt.in))
		})
	}
}

func TestRegisterIsIdempotent(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	u := h.addUnit(t, "a", physics.Zero, nil)
	require.NoError(t, h.battery.Register(u))

	assert.Len(t, h.battery.Units(), 1)
	registered := h.of(EventUnitRegistered)
	require.Len(t, registered, 1)
	assert.Equal(t, UnitRegistered{UnitID: "a", Position: physics.Zero}, registered[0].Data())
	assert.Equal(t, artillery.StatusIdle, h.battery.Status())

	got, ok := h.battery.Unit("a")
	assert.True(t, ok)
	assert.Same(t, u, got)
}

func TestMarkTargetSelectsNearestInRange(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	for i, x := range []float64{300, 0, 2000, 200, 100} {
		h.addUnit(t, string(rune('a'+i)), physics.V3(x, 0, 0), nil)
	}

	ids, err := h.battery.MarkTarget(physics.V3(0, 0, 500))
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "e", "d"}, ids)
	assert.Equal(t, artillery.StatusAiming, h.battery.Status())

	for _, id := range ids {
		u, _ := h.battery.Unit(id)
		assert.Equal(t, artillery.StatusAiming, u.Status())
	}
	far, _ := h.battery.Unit("c")
	assert.Equal(t, artillery.StatusIdle, far.Status())

	changes := h.of(EventStatusChanged)
	require.Len(t, changes, 1)
	assert.Equal(t, StatusChange{From: artillery.StatusIdle, To: artillery.StatusAiming}, changes[0].Data())
}

func TestMarkTargetOutOfRange(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.addUnit(t, "a", physics.Zero, nil)

	_, err := h.battery.MarkTarget(physics.V3(5000, 0, 0))
	assert.ErrorIs(t, err, ErrNoUnitsAvailable)
	assert.ErrorIs(t, h.battery.ConfirmFire(), ErrNoUnitsSelected)

	_, hasTarget := h.battery.Target()
	assert.True(t, hasTarget)
}

func TestConfirmFireRequiresTarget(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.addUnit(t, "a", physics.Zero, nil)
	assert.ErrorIs(t, h.battery.ConfirmFire(), ErrNoTarget)

	_, err := h.battery.MarkTarget(physics.V3(0, 0, 400))
	require.NoError(t, err)
	require.NoError(t, h.battery.ConfirmFire())
	assert.ErrorIs(t, h.battery.ConfirmFire(), ErrSalvoInProgress)
}

func TestSalvoFiresEverySelectedUnit(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	a := h.addUnit(t, "a", physics.Zero, nil)
	b := h.addUnit(t, "b", physics.V3(10, 0, 0), nil)

	_, err := h.battery.MarkTarget(physics.V3(0, 0, 400))
	require.NoError(t, err)
	require.NoError(t, h.battery.ConfirmFire())
	require.Len(t, h.of(EventSalvoStarted), 1)

	sawFired := false
	for i := 0; i < 200 && h.battery.SalvoActive(); i++ {
		h.battery.Tick(0.05)
		if h.battery.Status() == artillery.StatusFired {
			sawFired = true
		}
	}
	require.False(t, h.battery.SalvoActive(), "salvo never completed")
	assert.True(t, sawFired)

	assert.Equal(t, 9, a.Ammo())
	assert.Equal(t, 9, b.Ammo())

	completed := h.of(EventSalvoCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, Salvo{Target: physics.V3(0, 0, 400), Units: []string{"a", "b"}, Fired: 2}, completed[0].Data())

	zones := h.of(EventImpactZone)
	require.Len(t, zones, 4)
	shown := zones[0].Data().(ImpactZone)
	assert.True(t, shown.Visible)
	assert.Equal(t, physics.V3(0, 0, 400), shown.Target)
	assert.InDelta(t, a.ImpactRadius(), shown.Radius, 1e-9)

	var hidden int
	for _, z := range zones {
		if !z.Data().(ImpactZone).Visible {
			hidden++
		}
	}
	assert.Equal(t, 2, hidden)
}

func TestSalvoTimesOutWaitingForAim(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	u := h.addUnit(t, "slow", physics.Zero, func(c *artillery.UnitConfig) {
		c.TraverseRate = 0.1
		c.InitialYawDeg = 180
	})

	_, err := h.battery.MarkTarget(physics.V3(0, 0, 400))
	require.NoError(t, err)
	require.NoError(t, h.battery.ConfirmFire())

	// 0.5s aim delay, then 1s of waiting
	for i := 0; i < 5; i++ {
		h.battery.Tick(0.25)
	}
	assert.Equal(t, 10, u.Ammo())
	h.battery.Tick(0.25)
	assert.Equal(t, 9, u.Ammo(), "fires once the aim wait times out")
	assert.False(t, u.IsAimed())

	h.battery.Tick(0.25)
	assert.True(t, h.battery.SalvoActive())
	h.battery.Tick(0.25)
	assert.False(t, h.battery.SalvoActive())
}

func TestResetDropsUnitsAndSubscriptions(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	u := h.addUnit(t, "a", physics.Zero, nil)
	_, err := h.battery.MarkTarget(physics.V3(0, 0, 400))
	require.NoError(t, err)

	require.NoError(t, h.battery.Reset())
	assert.Empty(t, h.battery.Units())
	assert.Empty(t, h.battery.Selected())
	assert.Equal(t, artillery.StatusIdle, h.battery.Status())
	assert.Zero(t, h.battery.scope.Len())

	_, err = u.Fire()
	require.NoError(t, err)
	assert.Empty(t, h.of(EventImpactZone), "detached unit no longer reaches the battery")
}

func TestCloseRejectsFurtherUse(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.addUnit(t, "a", physics.Zero, nil)
	require.NoError(t, h.battery.Close())
	require.NoError(t, h.battery.Close())

	assert.Zero(t, h.battery.scope.Len())
	_, err := h.battery.MarkTarget(physics.Zero)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, h.battery.ConfirmFire(), ErrClosed)
}

func TestSnapshot(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.addUnit(t, "a", physics.Zero, nil)
	_, err := h.battery.MarkTarget(physics.V3(0, 0, 400))
	require.NoError(t, err)
	require.NoError(t, h.battery.ConfirmFire())
	h.battery.Tick(0.05)

	s := h.battery.Snapshot()
	require.NotNil(t, s.Target)
	assert.Equal(t, []string{"a"}, s.Selected)
	require.Len(t, s.Units, 1)
	require.NotNil(t, s.Salvo)
	assert.Equal(t, "aim_delay", s.Salvo.Phase)
	assert.Equal(t, 1, s.Salvo.Total)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.MaxUnits = 0
	cfg.AimDelay = -1
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_units")
	assert.Contains(t, err.Error(), "delays")

	_, err = New(cfg, nil, nil)
	assert.Error(t, err)
}
