package timer

import "time"

// State of a question countdown.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateExpired   State = "expired"
	StateCancelled State = "cancelled"
)

// Countdown is the per-question timer. It is driven by explicit Tick calls
// and reports expiry exactly once per run.
type Countdown struct {
	state     State
	duration  time.Duration
	remaining time.Duration
}

func (c *Countdown) State() State {
	if c.state == "" {
		return StateIdle
	}
	return c.state
}

func (c *Countdown) Remaining() time.Duration {
	return c.remaining
}

func (c *Countdown) Duration() time.Duration {
	return c.duration
}

// Start begins a countdown from Idle or Expired. It returns false and leaves
// the countdown untouched from any other state.
func (c *Countdown) Start(d time.Duration) bool {
	switch c.State() {
	case StateIdle, StateExpired:
		c.run(d)
		return true
	}
	return false
}

// Reset restarts the countdown from any state.
func (c *Countdown) Reset(d time.Duration) {
	c.run(d)
}

// Cancel stops a running countdown so it never expires.
func (c *Countdown) Cancel() {
	if c.State() == StateRunning {
		c.state = StateCancelled
	}
}

// Tick advances a running countdown by delta and returns true only on the
// tick that takes it to zero.
func (c *Countdown) Tick(delta time.Duration) bool {
	if c.State() != StateRunning {
		return false
	}
	c.remaining -= delta
	if c.remaining > 0 {
		return false
	}
	c.remaining = 0
	c.state = StateExpired
	return true
}

func (c *Countdown) run(d time.Duration) {
	if d < 0 {
		d = 0
	}
	c.state = StateRunning
	c.duration = d
	c.remaining = d
}
