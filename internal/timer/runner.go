package timer

import (
	"sync"
	"time"
)

// Ticker is the subset of time.Ticker the runner needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type Config struct {
	Interval      time.Duration
	NewTickerFunc func(d time.Duration) Ticker
}

// Status is a read-only view of the countdown for clients.
type Status struct {
	State       State  `json:"state"`
	DurationMs  int64  `json:"durationMs"`
	RemainingMs int64  `json:"remainingMs"`
	Generation  uint64 `json:"generation"`
}

// Runner drives a Countdown from a ticker. Every Arm or Disarm bumps the
// generation, and a ticking goroutine exits as soon as it sees a newer one,
// so a cancelled or replaced countdown can never report a timeout.
type Runner struct {
	interval  time.Duration
	newTicker func(d time.Duration) Ticker

	mu        sync.Mutex
	countdown Countdown
	gen       uint64
	stop      chan struct{}
}

func NewRunner(c Config) *Runner {
	if c.Interval <= 0 {
		c.Interval = time.Second
	}
	if c.NewTickerFunc == nil {
		c.NewTickerFunc = newTimeTicker
	}
	return &Runner{interval: c.Interval, newTicker: c.NewTickerFunc}
}

// Arm (re)starts the countdown for d. onTimeout is called at most once, from
// the ticking goroutine, with the generation returned here.
func (r *Runner) Arm(d time.Duration, onTimeout func(gen uint64)) uint64 {
	r.mu.Lock()
	r.stopLocked()
	r.gen++
	gen := r.gen
	r.countdown.Reset(d)
	stop := make(chan struct{})
	r.stop = stop
	t := r.newTicker(r.interval)
	r.mu.Unlock()

	go r.loop(gen, t, stop, onTimeout)
	return gen
}

// Disarm cancels the running countdown, if any.
func (r *Runner) Disarm() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
	r.gen++
	r.countdown.Cancel()
}

// Clear returns the runner to Idle.
func (r *Runner) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
	r.gen++
	r.countdown = Countdown{}
}

// Current reports whether gen is still the live generation.
func (r *Runner) Current(gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gen == gen
}

func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Status{
		State:       r.countdown.State(),
		DurationMs:  r.countdown.Duration().Milliseconds(),
		RemainingMs: r.countdown.Remaining().Milliseconds(),
		Generation:  r.gen,
	}
}

func (r *Runner) loop(gen uint64, t Ticker, stop <-chan struct{}, onTimeout func(uint64)) {
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C():
			r.mu.Lock()
			if r.gen != gen {
				r.mu.Unlock()
				return
			}
			expired := r.countdown.Tick(r.interval)
			r.mu.Unlock()
			if expired {
				if onTimeout != nil {
					onTimeout(gen)
				}
				return
			}
		}
	}
}

func (r *Runner) stopLocked() {
	if r.stop != nil {
		close(r.stop)
		r.stop = nil
	}
}

type timeTicker struct {
	t *time.Ticker
}

func newTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop() { t.t.Stop() }
