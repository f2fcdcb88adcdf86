package artillery

// Status is a unit's position in the Idle -> Aiming -> Aimed -> Fired -> Idle
// cycle.
type Status uint8

const (
	StatusIdle Status = iota
	StatusAiming
	StatusAimed
	StatusFired
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusAiming:
		return "aiming"
	case StatusAimed:
		return "aimed"
	case StatusFired:
		return "fired"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
