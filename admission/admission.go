// Package admission throttles costed operations per caller identity using
// a fixed-window counter. It is independent of entitlement: a caller with
// a perfectly valid access record is still bounded here.
package admission

import (
	"sync"
	"time"
)

const (
	DefaultWindow  = time.Hour
	DefaultCeiling = 100
)

// Decision is the outcome of one admission check.
type Decision struct {
	Admitted bool

	// RetryAfter is how long until the window resets. Meaningful on
	// rejection; zero when admitted.
	RetryAfter time.Duration

	// Limit, Remaining and Reset feed rate-limit response headers.
	Limit     int
	Remaining int
	Reset     time.Time
}

type window struct {
	count   int
	resetAt time.Time
}

// Controller is the shared admission state. It is created once at process
// start, injected into the gateway, and never torn down mid-process;
// tests construct their own instances.
//
// Every check increments the window counter, rejected checks included:
// hammering a closed gate keeps consuming budget.
type Controller struct {
	mu      sync.Mutex
	windows map[string]*window
	length  time.Duration
	ceiling int
}

// New constructs a controller. Non-positive arguments fall back to the
// defaults (1 hour, 100 requests).
func New(length time.Duration, ceiling int) *Controller {
	if length <= 0 {
		length = DefaultWindow
	}
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	return &Controller{
		windows: make(map[string]*window),
		length:  length,
		ceiling: ceiling,
	}
}

// Check records one request for identity and decides admission.
func (c *Controller) Check(identity string) Decision {
	return c.checkAt(identity, time.Now())
}

// checkAt is the testable core of Check with an explicit clock.
func (c *Controller) checkAt(identity string, now time.Time) Decision {
	c.mu.Lock()
	defer c.mu.Unlock()

	w, ok := c.windows[identity]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(c.length)}
		c.windows[identity] = w
	}
	w.count++

	d := Decision{
		Admitted:  w.count <= c.ceiling,
		Limit:     c.ceiling,
		Remaining: max(0, c.ceiling-w.count),
		Reset:     w.resetAt,
	}
	if !d.Admitted {
		d.RetryAfter = w.resetAt.Sub(now)
	}
	return d
}

// Reset drops all windows. Useful for tests.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.windows = make(map[string]*window)
}
