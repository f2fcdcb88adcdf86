package artillery

import (
	"github.com/zeusync/salvo/internal/core/ballistics"
	"github.com/zeusync/salvo/internal/core/systems/physics"
)

// Event types published by units. The event source is the unit ID.
const (
	EventStatusChanged = "unit.status_changed"
	EventAimed         = "unit.aimed"
	EventFired         = "unit.fired"
	EventUnreachable   = "unit.unreachable"
)

type StatusChange struct {
	UnitID string `json:"unit_id"`
	From   Status `json:"from"`
	To     Status `json:"to"`
}

type Aimed struct {
	UnitID       string         `json:"unit_id"`
	Target       physics.Vec3   `json:"target"`
	AngleDeg     float64        `json:"angle_deg"`
	YawDeg       float64        `json:"yaw_deg"`
	Arc          ballistics.Arc `json:"arc"`
	ImpactRadius float64        `json:"impact_radius"`
	TimeToHit    float64        `json:"time_to_hit"`
}

type Unreachable struct {
	UnitID string            `json:"unit_id"`
	Target physics.Vec3      `json:"target"`
	Status ballistics.Status `json:"status"`
}

// Shell is a fired round. Impact and FlightTime come from tracing the shell's
// actual launch direction, spread included.
type Shell struct {
	UnitID      string                 `json:"unit_id"`
	Origin      physics.Vec3           `json:"origin"`
	Velocity    physics.Vec3           `json:"velocity"`
	Speed       float64                `json:"speed"`
	YawDeg      float64                `json:"yaw_deg"`
	PitchDeg    float64                `json:"pitch_deg"`
	Target      physics.Vec3           `json:"target"`
	Impact      physics.Vec3           `json:"impact"`
	FlightTime  float64                `json:"flight_time"`
	Termination ballistics.Termination `json:"termination"`
}
