package navigation

import (
	"time"

	"github.com/teslashibe/go-follower/pkg/robot"
)

// Debouncer gates the physical steering state behind two dwell timers: a
// new turn must be requested continuously for the engage dwell, and a
// return to neutral for the release dwell, before the output flips.
type Debouncer struct {
	engage  time.Duration
	release time.Duration

	applied      robot.Steering
	pending      robot.Steering
	pendingSince time.Time
	hasPending   bool
}

// NewDebouncer creates a debouncer starting at neutral.
func NewDebouncer(engage, release time.Duration) *Debouncer {
	return &Debouncer{engage: engage, release: release}
}

// Update feeds the requested steering and returns the steering to apply.
func (d *Debouncer) Update(req robot.Steering, now time.Time) robot.Steering {
	if req == d.applied {
		d.hasPending = false
		return d.applied
	}
	if !d.hasPending || req != d.pending {
		d.pending = req
		d.pendingSince = now
		d.hasPending = true
	}

	dwell := d.engage
	if req == robot.SteerNeutral {
		dwell = d.release
	}
	if now.Sub(d.pendingSince) >= dwell {
		d.applied = req
		d.hasPending = false
	}
	return d.applied
}

// Force sets the output immediately, discarding any pending change.
func (d *Debouncer) Force(s robot.Steering) {
	d.applied = s
	d.hasPending = false
}

// Applied returns the current output.
func (d *Debouncer) Applied() robot.Steering {
	return d.applied
}

// SetDwell changes the timers. Takes effect on the next Update.
func (d *Debouncer) SetDwell(engage, release time.Duration) {
	d.engage = engage
	d.release = release
}
