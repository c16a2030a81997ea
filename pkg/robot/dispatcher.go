package robot

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-follower/internal/log"
)

// DispatchStats are the dispatcher diagnostics.
type DispatchStats struct {
	Applied  uint64    `json:"applied"`  // Apply calls
	Sent     uint64    `json:"sent"`     // Device writes
	Skipped  uint64    `json:"skipped"`  // Writes avoided because nothing changed
	Errors   uint64    `json:"errors"`   // Failed device writes
	LastSent Command   `json:"last_sent"`
	LastErr  string    `json:"last_error,omitempty"`
	LastAt   time.Time `json:"last_at"`
}

// Dispatcher forwards each cycle's command to the chassis, skipping writes
// that would not change anything. All commands flow through here so the
// drive and steering never receive conflicting orders.
type Dispatcher struct {
	chassis Chassis
	logger  *slog.Logger
	now     func() time.Time

	mu sync.Mutex

	// Dead-zone filtering: what the chassis is known to be doing
	synced      bool
	lastSent    Command
	steerSentAt time.Time

	// Diagnostics
	stats         DispatchStats
	lastErrorTime time.Time // Last error log (avoid spam)
}

// NewDispatcher creates a dispatcher for chassis.
func NewDispatcher(chassis Chassis) *Dispatcher {
	return &Dispatcher{
		chassis: chassis,
		logger:  log.Component("robot.dispatch"),
		now:     time.Now,
	}
}

// SetLogger replaces the component logger.
func (d *Dispatcher) SetLogger(l *slog.Logger) {
	if l != nil {
		d.logger = l
	}
}

// SetClock replaces the time source used for turn hold expiry.
func (d *Dispatcher) SetClock(now func() time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if now != nil {
		d.now = now
	}
}

// Apply sends cmd. Drive is written when the motion changes; steering when
// it changes or a held turn has run out. After any failure the next Apply
// rewrites everything.
func (d *Dispatcher) Apply(cmd Command) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stats.Applied++
	now := d.now()

	sendDrive := !d.synced || cmd.Motion != d.lastSent.Motion
	sendSteer := !d.synced || cmd.Steering != d.lastSent.Steering ||
		(cmd.Steering != SteerNeutral && d.lastSent.Hold > 0 && now.Sub(d.steerSentAt) >= d.lastSent.Hold)

	if !sendDrive && !sendSteer {
		d.stats.Skipped++
		return nil
	}

	var errs []error
	if sendDrive {
		d.stats.Sent++
		if err := d.chassis.Drive(cmd.Motion); err != nil {
			errs = append(errs, wrapDispatch("drive", cmd.Motion.String(), err))
		}
	}
	if sendSteer {
		d.stats.Sent++
		if err := d.chassis.Steer(cmd.Steering, cmd.Hold); err != nil {
			errs = append(errs, wrapDispatch("steer", cmd.Steering.String(), err))
		} else {
			d.steerSentAt = now
		}
	}

	return d.finish(cmd, now, errs)
}

// Halt unconditionally stops the drive and centers the steering.
func (d *Dispatcher) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	var errs []error
	d.stats.Sent += 2
	if err := d.chassis.Drive(MotionStop); err != nil {
		errs = append(errs, wrapDispatch("drive", MotionStop.String(), err))
	}
	if err := d.chassis.Steer(SteerNeutral, 0); err != nil {
		errs = append(errs, wrapDispatch("steer", SteerNeutral.String(), err))
	}
	return d.finish(Halt, now, errs)
}

// Stats returns a copy of the diagnostics.
func (d *Dispatcher) Stats() DispatchStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

func (d *Dispatcher) finish(cmd Command, now time.Time, errs []error) error {
	if len(errs) == 0 {
		d.synced = true
		d.lastSent = cmd
		d.stats.LastSent = cmd
		d.stats.LastErr = ""
		d.stats.LastAt = now
		return nil
	}

	// Chassis state unknown, rewrite everything next time
	d.synced = false
	d.stats.Errors++
	err := errors.Join(errs...)
	d.stats.LastErr = err.Error()

	// Log errors (but don't spam - max once per 5 seconds)
	if d.lastErrorTime.IsZero() || now.Sub(d.lastErrorTime) > 5*time.Second {
		d.logger.Error("dispatch failed", "error", err, "total_errors", d.stats.Errors)
		d.lastErrorTime = now
	}
	return err
}

func wrapDispatch(op, command string, err error) error {
	var de *DispatchError
	if errors.As(err, &de) {
		return err
	}
	return &DispatchError{Op: op, Command: command, Err: err}
}
