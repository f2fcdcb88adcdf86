package battery

import (
	"errors"

	pkgerrors "github.com/pkg/errors"
	"github.com/zeusync/salvo/internal/core/artillery"
	"github.com/zeusync/salvo/internal/core/events/bus"
	"github.com/zeusync/salvo/internal/core/observability/log"
	"github.com/zeusync/salvo/internal/core/systems/physics"
	"github.com/zeusync/salvo/pkg/sequence"
)

var (
	ErrNoTarget         = errors.New("battery: no target marked")
	ErrNoUnitsSelected  = errors.New("battery: no units selected")
	ErrNoUnitsAvailable = errors.New("battery: no units within range")
	ErrSalvoInProgress  = errors.New("battery: salvo already in progress")
	ErrClosed           = errors.New("battery: closed")
)

// Battery coordinates a group of units against one marked target. It is not
// safe for concurrent use; callers serialize access.
type Battery struct {
	cfg    Config
	bus    bus.EventBus
	scope  *bus.Scope
	logger log.Log

	units    []*artillery.Unit
	byID     map[string]*artillery.Unit
	selected []*artillery.Unit

	target    physics.Vec3
	hasTarget bool

	status artillery.Status
	salvo  *salvo
	closed bool
}

func New(cfg Config, b bus.EventBus, logger log.Log) (*Battery, error) {
	if err := cfg.Validate(); err != nil {
		return nil, pkgerrors.Wrap(err, "battery config")
	}
	if b == nil {
		b = bus.New()
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Battery{
		cfg:    cfg,
		bus:    b,
		scope:  bus.NewScope(b),
		logger: logger.With(log.String("component", "battery")),
		byID:   make(map[string]*artillery.Unit),
		status: artillery.StatusIdle,
	}, nil
}

// Register adds u to the battery. Registering the same unit twice is a no-op.
func (b *Battery) Register(u *artillery.Unit) error {
	if b.closed {
		return ErrClosed
	}
	if _, ok := b.byID[u.ID()]; ok {
		return nil
	}

	id := u.ID()
	handlers := map[string]bus.EventHandler{
		artillery.EventStatusChanged: func(bus.Event) error {
			b.evaluate()
			return nil
		},
		artillery.EventAimed: func(e bus.Event) error {
			aimed, _ := e.Data().(artillery.Aimed)
			return b.publish(EventImpactZone, ImpactZone{
				Visible: true,
				UnitID:  id,
				Target:  aimed.Target,
				Radius:  aimed.ImpactRadius,
			})
		},
		artillery.EventFired: func(bus.Event) error {
			return b.publish(EventImpactZone, ImpactZone{UnitID: id})
		},
	}
	for eventType, h := range handlers {
		if _, err := b.scope.Subscribe(eventType, fromUnit(id, h)); err != nil {
			return pkgerrors.Wrapf(err, "subscribe %s for unit %s", eventType, id)
		}
	}

	b.units = append(b.units, u)
	b.byID[id] = u
	b.logger.Info("Unit registered", log.String("unit_id", id), log.Int("units", len(b.units)))
	_ = b.publish(EventUnitRegistered, UnitRegistered{UnitID: id, Position: u.Position()})
	b.evaluate()
	return nil
}

func fromUnit(id string, h bus.EventHandler) bus.EventHandler {
	return func(e bus.Event) error {
		if e.Source() != id {
			return nil
		}
		return h(e)
	}
}

func (b *Battery) Units() []*artillery.Unit {
	out := make([]*artillery.Unit, len(b.units))
	copy(out, b.units)
	return out
}

func (b *Battery) Unit(id string) (*artillery.Unit, bool) {
	u, ok := b.byID[id]
	return u, ok
}

func (b *Battery) Selected() []*artillery.Unit {
	out := make([]*artillery.Unit, len(b.selected))
	copy(out, b.selected)
	return out
}

func (b *Battery) Status() artillery.Status { return b.status }

func (b *Battery) Target() (physics.Vec3, bool) { return b.target, b.hasTarget }

// MarkTarget remembers p and points the nearest units within range at it.
func (b *Battery) MarkTarget(p physics.Vec3) ([]string, error) {
	if b.closed {
		return nil, ErrClosed
	}
	b.target = p
	b.hasTarget = true

	distance := func(u *artillery.Unit) float64 { return physics.RangeTo(u, p) }
	b.selected = sequence.From(b.units).
		Filter(func(u *artillery.Unit) bool {
			return b.cfg.MaxRange == 0 || distance(u) <= b.cfg.MaxRange
		}).
		Sort(func(x, y *artillery.Unit) bool { return distance(x) < distance(y) }).
		Take(b.cfg.MaxUnits).
		Collect()

	if len(b.selected) == 0 {
		b.logger.Warn("No units available for mark", log.Any("target", p))
		return nil, ErrNoUnitsAvailable
	}

	ids := make([]string, len(b.selected))
	for i, u := range b.selected {
		u.SetTarget(p)
		ids[i] = u.ID()
	}
	b.logger.Info("Target marked", log.Any("target", p), log.Int("units", len(ids)))
	return ids, nil
}

// ConfirmFire starts a salvo of the selected units against the marked target.
// The salvo runs on subsequent Tick calls.
func (b *Battery) ConfirmFire() error {
	switch {
	case b.closed:
		return ErrClosed
	case !b.hasTarget:
		return ErrNoTarget
	case len(b.selected) == 0:
		return ErrNoUnitsSelected
	case b.salvo != nil:
		return ErrSalvoInProgress
	}

	b.salvo = newSalvo(b.target, b.Selected(), b.cfg)
	b.logger.Info("Fire confirmed", log.Any("target", b.target), log.Int("units", len(b.selected)))
	_ = b.publish(EventSalvoStarted, b.salvo.event())
	return nil
}

// SalvoActive reports whether a salvo is still running.
func (b *Battery) SalvoActive() bool { return b.salvo != nil }

// Tick advances every unit, then the running salvo.
func (b *Battery) Tick(dt float64) {
	for _, u := range b.units {
		u.Tick(dt)
	}
	if b.salvo == nil {
		return
	}
	if b.salvo.advance(dt, b.fire) {
		done := b.salvo.event()
		b.salvo = nil
		b.logger.Info("Salvo completed", log.Int("fired", done.Fired), log.Int("units", len(done.Units)))
		_ = b.publish(EventSalvoCompleted, done)
	}
}

func (b *Battery) fire(u *artillery.Unit, timedOut bool) bool {
	logger := b.logger.With(log.String("unit_id", u.ID()))
	if timedOut {
		logger.Debug("Aim wait timed out, firing anyway")
	}
	if _, err := u.Fire(); err != nil {
		logger.Warn("Unit could not fire", log.Error(err))
		return false
	}
	return true
}

// Reset drops every unit and the selection and aborts any salvo. The marked
// target is kept.
func (b *Battery) Reset() error {
	err := b.scope.Reset()
	b.units = nil
	b.selected = nil
	b.byID = make(map[string]*artillery.Unit)
	b.salvo = nil
	b.setStatus(artillery.StatusIdle, true)
	b.logger.Info("Battery reset")
	return err
}

// Close releases every subscription. The battery is unusable afterwards.
func (b *Battery) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	b.salvo = nil
	return b.scope.Close()
}

func (b *Battery) evaluate() {
	b.setStatus(groupStatus(b.units), false)
}

func groupStatus(units []*artillery.Unit) artillery.Status {
	statuses := sequence.Map(sequence.From(units), func(u *artillery.Unit) artillery.Status { return u.Status() })
	return foldStatus(statuses.Collect())
}

// foldStatus combines unit states: any Fired wins, then all Aimed, then any
// Aiming. An empty group is Idle.
func foldStatus(statuses []artillery.Status) artillery.Status {
	if len(statuses) == 0 {
		return artillery.StatusIdle
	}
	it := sequence.From(statuses)
	is := func(want artillery.Status) func(artillery.Status) bool {
		return func(s artillery.Status) bool { return s == want }
	}
	switch {
	case it.Any(is(artillery.StatusFired)):
		return artillery.StatusFired
	case it.All(is(artillery.StatusAimed)):
		return artillery.StatusAimed
	case it.Any(is(artillery.StatusAiming)):
		return artillery.StatusAiming
	}
	return artillery.StatusIdle
}

func (b *Battery) setStatus(s artillery.Status, force bool) {
	if s == b.status && !force {
		return
	}
	prev := b.status
	b.status = s
	b.logger.Debug("Group status changed", log.Stringer("from", prev), log.Stringer("to", s))
	_ = b.publish(EventStatusChanged, StatusChange{From: prev, To: s})
}

func (b *Battery) publish(eventType string, data any) error {
	err := b.bus.Publish(bus.NewEvent(eventType, Source, data, 0, nil))
	if err != nil {
		b.logger.Warn("Event handler failed", log.String("event", eventType), log.Error(err))
	}
	return err
}

// Snapshot is a read-only view of the battery.
type Snapshot struct {
	Status   artillery.Status     `json:"status"`
	Target   *physics.Vec3        `json:"target,omitempty"`
	Selected []string             `json:"selected"`
	Salvo    *SalvoState          `json:"salvo,omitempty"`
	Units    []artillery.Snapshot `json:"units"`
}

type SalvoState struct {
	Phase string `json:"phase"`
	Next  int    `json:"next"`
	Fired int    `json:"fired"`
	Total int    `json:"total"`
}

func (b *Battery) Snapshot() Snapshot {
	s := Snapshot{
		Status:   b.status,
		Selected: make([]string, len(b.selected)),
		Units:    make([]artillery.Snapshot, len(b.units)),
	}
	if b.hasTarget {
		t := b.target
		s.Target = &t
	}
	for i, u := range b.selected {
		s.Selected[i] = u.ID()
	}
	for i, u := range b.units {
		s.Units[i] = u.Snapshot()
	}
	if b.salvo != nil {
		s.Salvo = &SalvoState{
			Phase: b.salvo.phase.String(),
			Next:  b.salvo.next,
			Fired: b.salvo.fired,
			Total: len(b.salvo.units),
		}
	}
	return s
}
