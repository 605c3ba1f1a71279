// Package keepalive folds heartbeat scheduling and pong-timeout accounting
// into the connection worker loop. The tracker owns no goroutine; the
// worker consults it once per receive slice, so ping emission and pong
// bookkeeping never race on the transport.
package keepalive

import (
	"time"
)

type Tracker struct {
	interval time.Duration
	timeout  time.Duration
	lastPing time.Time
	deadline time.Time // zero while no pong is owed
}

// New creates a tracker. A zero interval disables heartbeats; a zero
// timeout disables pong-expiry detection.
func New(interval, timeout time.Duration) *Tracker {
	return &Tracker{
		interval: interval,
		timeout:  timeout,
		lastPing: time.Now(),
	}
}

// ShouldPing reports whether the heartbeat interval has elapsed.
func (t *Tracker) ShouldPing(now time.Time) bool {
	return t.interval > 0 && now.Sub(t.lastPing) >= t.interval
}

// PingSent restarts the interval and arms the pong deadline unless a pong
// is already owed.
func (t *Tracker) PingSent(now time.Time) {
	t.lastPing = now
	if t.timeout > 0 && t.deadline.IsZero() {
		t.deadline = now.Add(t.timeout)
	}
}

// PongReceived clears the pending deadline.
func (t *Tracker) PongReceived() {
	t.deadline = time.Time{}
}

// Expired reports whether an owed pong is overdue.
func (t *Tracker) Expired(now time.Time) bool {
	return !t.deadline.IsZero() && now.After(t.deadline)
}
