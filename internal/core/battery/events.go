package battery

import (
	"github.com/zeusync/salvo/internal/core/artillery"
	"github.com/zeusync/salvo/internal/core/systems/physics"
)

// Event types published by the battery. The event source is Source.
const (
	Source = "battery"

	EventUnitRegistered = "battery.unit_registered"
	EventStatusChanged  = "battery.status_changed"
	EventImpactZone     = "battery.impact_zone"
	EventSalvoStarted   = "battery.salvo_started"
	EventSalvoCompleted = "battery.salvo_completed"
)

type UnitRegistered struct {
	UnitID   string       `json:"unit_id"`
	Position physics.Vec3 `json:"position"`
}

type StatusChange struct {
	From artillery.Status `json:"from"`
	To   artillery.Status `json:"to"`
}

// ImpactZone shows or hides the expected impact circle on the map.
type ImpactZone struct {
	Visible bool         `json:"visible"`
	UnitID  string       `json:"unit_id"`
	Target  physics.Vec3 `json:"target"`
	Radius  float64      `json:"radius"`
}

type Salvo struct {
	Target physics.Vec3 `json:"target"`
	Units  []string     `json:"units"`
	Fired  int          `json:"fired"`
}
