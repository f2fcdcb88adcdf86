package system

// Timer is a countdown advanced by simulation ticks. The zero value is an
// idle timer.
type Timer struct {
	duration  float64
	remaining float64
	active    bool
}

// Start arms the timer for d seconds, restarting it if already running. A
// non-positive d expires on the next Tick.
func (t *Timer) Start(d float64) {
	t.duration = max(d, 0)
	t.remaining = t.duration
	t.active = true
}

// Tick advances the timer and reports whether it expired during this call.
func (t *Timer) Tick(dt float64) bool {
	if !t.active {
		return false
	}
	t.remaining -= dt
	if t.remaining <= 0 {
		t.remaining = 0
		t.active = false
		return true
	}
	return false
}

func (t *Timer) Stop() {
	t.active = false
	t.remaining = 0
}

func (t *Timer) Active() bool { return t.active }

func (t *Timer) Remaining() float64 { return t.remaining }

// Progress is 0 when started and 1 once expired.
func (t *Timer) Progress() float64 {
	if t.duration == 0 {
		if t.active {
			return 0
		}
		return 1
	}
	return 1 - t.remaining/t.duration
}
