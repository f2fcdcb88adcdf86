package battery

import (
	"github.com/zeusync/salvo/internal/core/artillery"
	"github.com/zeusync/salvo/internal/core/system"
	"github.com/zeusync/salvo/internal/core/systems/physics"
)

type salvoPhase uint8

const (
	phaseAimDelay salvoPhase = iota
	phaseAwaitAim
	phaseInterval
	phaseDone
)

func (p salvoPhase) String() string {
	switch p {
	case phaseAimDelay:
		return "aim_delay"
	case phaseAwaitAim:
		return "await_aim"
	case phaseInterval:
		return "interval"
	default:
		return "done"
	}
}

// salvo fires units one after another: an initial delay, then for each unit
// a bounded wait for Aimed followed by the shot and the inter-gun interval.
type salvo struct {
	target   physics.Vec3
	units    []*artillery.Unit
	next     int
	fired    int
	phase    salvoPhase
	timer    system.Timer
	waited   float64
	timeout  float64
	interval float64
}

func newSalvo(target physics.Vec3, units []*artillery.Unit, cfg Config) *salvo {
	s := &salvo{
		target:   target,
		units:    units,
		timeout:  cfg.AimTimeout,
		interval: cfg.FireInterval,
	}
	s.timer.Start(cfg.AimDelay)
	return s
}

// advance consumes dt and runs every phase transition it unlocks. fire is
// called once per unit; timedOut is set when the unit never reported Aimed.
func (s *salvo) advance(dt float64, fire func(u *artillery.Unit, timedOut bool) bool) bool {
	for {
		switch s.phase {
		case phaseAimDelay:
			if !s.timer.Tick(dt) {
				return false
			}
			s.enterAwait()
		case phaseAwaitAim:
			u := s.units[s.next]
			if !u.IsAimed() {
				s.waited += dt
				if s.waited < s.timeout {
					return false
				}
			}
			if fire(u, !u.IsAimed()) {
				s.fired++
			}
			s.timer.Start(s.interval)
			s.phase = phaseInterval
		case phaseInterval:
			if !s.timer.Tick(dt) {
				return false
			}
			s.next++
			if s.next >= len(s.units) {
				s.phase = phaseDone
				return true
			}
			s.enterAwait()
		case phaseDone:
			return true
		}
		dt = 0
	}
}

func (s *salvo) enterAwait() {
	s.phase = phaseAwaitAim
	s.waited = 0
}

func (s *salvo) event() Salvo {
	ids := make([]string, len(s.units))
	for i, u := range s.units {
		ids[i] = u.ID()
	}
	return Salvo{Target: s.target, Units: ids, Fired: s.fired}
}
