package artillery

import (
	"math"

	"github.com/zeusync/salvo/internal/core/systems/physics"
)

// actuator turns one axis toward a goal at a bounded rate. Headings wrap
// around 360 degrees; elevations do not.
type actuator struct {
	angle float64
	rate  float64
	wrap  bool
}

func (a *actuator) step(goal, dt float64) {
	maxDelta := a.rate * dt
	if a.wrap {
		a.angle = physics.MoveTowardsAngle(a.angle, goal, maxDelta)
		return
	}
	d := goal - a.angle
	if math.Abs(d) <= maxDelta {
		a.angle = goal
		return
	}
	a.angle += math.Copysign(maxDelta, d)
}

func (a *actuator) within(goal, threshold float64) bool {
	if a.wrap {
		return math.Abs(physics.DeltaAngle(a.angle, goal)) < threshold
	}
	return math.Abs(goal-a.angle) < threshold
}
