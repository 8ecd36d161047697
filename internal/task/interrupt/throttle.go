package interrupt

import (
	"time"

	"golang.org/x/time/rate"
)

// Throttler lets an action through at most once per interval.
// Task bodies use it for "tap somewhere harmless" fallbacks inside polling loops.
type Throttler struct {
	lim *rate.Limiter
}

func NewThrottler(every time.Duration) *Throttler {
	if every <= 0 {
		every = time.Second
	}
	return &Throttler{lim: rate.NewLimiter(rate.Every(every), 1)}
}

// Request reports whether the action may run now.
func (t *Throttler) Request() bool {
	return t.lim.Allow()
}

// Countdown reports expiry a fixed time after Start. A zero duration expires
// immediately once started.
type Countdown struct {
	d       time.Duration
	started time.Time
}

func NewCountdown(d time.Duration) *Countdown { return &Countdown{d: d} }

// Start begins the countdown. Starting an already running countdown keeps the
// original start time.
func (c *Countdown) Start() {
	if c.started.IsZero() {
		c.started = time.Now()
	}
}

func (c *Countdown) Reset() { c.started = time.Time{} }

func (c *Countdown) Expired() bool {
	return !c.started.IsZero() && time.Since(c.started) >= c.d
}
