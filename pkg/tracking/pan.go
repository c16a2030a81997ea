package tracking

import (
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/teslashibe/go-follower/internal/log"
)

// Direction is the pan tracker's verdict on where the target sits.
type Direction int

const (
	DirectionNone Direction = iota
	DirectionLeft
	DirectionRight
	DirectionCentered
	DirectionLimitLeft
	DirectionLimitRight
)

func (d Direction) String() string {
	switch d {
	case DirectionLeft:
		return "left"
	case DirectionRight:
		return "right"
	case DirectionCentered:
		return "centered"
	case DirectionLimitLeft:
		return "limit_left"
	case DirectionLimitRight:
		return "limit_right"
	default:
		return "none"
	}
}

// AtLimit reports whether the servo has run out of travel.
func (d Direction) AtLimit() bool {
	return d == DirectionLimitLeft || d == DirectionLimitRight
}

// MarshalText encodes the direction by name.
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText decodes a direction name.
func (d *Direction) UnmarshalText(b []byte) error {
	for v := DirectionNone; v <= DirectionLimitRight; v++ {
		if v.String() == string(b) {
			*d = v
			return nil
		}
	}
	return fmt.Errorf("unknown direction %q", b)
}

// Actuator moves the physical pan servo. Satisfied by robot.PanController.
type Actuator interface {
	SetPan(position float64) error
}

// PanTracker turns the target's horizontal frame offset into small,
// hysteresis-protected pan steps.
type PanTracker struct {
	mu       sync.RWMutex
	cfg      PanConfig
	position float64
	last     Direction

	actuator Actuator
	lastErr  error
	commits  uint64
	logger   *slog.Logger
}

// NewPanTracker creates a tracker at the center position.
// actuator may be nil when the servo is driven elsewhere.
func NewPanTracker(cfg PanConfig, actuator Actuator) *PanTracker {
	if cfg.MinPosition == 0 && cfg.MaxPosition == 0 {
		cfg.MinPosition, cfg.MaxPosition = -1, 1
	}
	return &PanTracker{
		cfg:      cfg,
		actuator: actuator,
		logger:   log.Component("tracking.pan"),
	}
}

// SetLogger replaces the component logger.
func (t *PanTracker) SetLogger(l *slog.Logger) {
	if l != nil {
		t.logger = l
	}
}

// Update consumes one offset (0 = left edge, 0.5 = center, 1 = right edge)
// and returns the resulting angle and direction.
func (t *PanTracker) Update(offset float64) (float64, Direction) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cfg := t.cfg
	var (
		target float64
		dir    Direction
	)

	switch {
	case offset > 0.5+cfg.Deadband:
		target = clamp(t.position-cfg.Step, cfg.MinPosition, cfg.MaxPosition)
		dir = DirectionLeft
		if t.position <= cfg.MinPosition {
			dir = DirectionLimitLeft
		}
	case offset < 0.5-cfg.Deadband:
		target = clamp(t.position+cfg.Step, cfg.MinPosition, cfg.MaxPosition)
		dir = DirectionRight
		if t.position >= cfg.MaxPosition {
			dir = DirectionLimitRight
		}
	default:
		target = 0
		dir = DirectionCentered
	}

	if math.Abs(target-t.position) >= cfg.ChangeThreshold {
		t.commit(target)
	}
	t.last = dir

	return PositionToAngle(t.position), dir
}

// Center returns the servo to straight ahead.
func (t *PanTracker) Center() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.commit(0)
	t.last = DirectionNone
	return t.lastErr
}

// Position returns the committed servo position in [-1, 1].
func (t *PanTracker) Position() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.position
}

// Angle returns the committed servo angle in degrees.
func (t *PanTracker) Angle() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return PositionToAngle(t.position)
}

// Direction returns the direction reported by the last Update.
func (t *PanTracker) Direction() Direction {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.last
}

// Err returns the error from the most recent servo dispatch, if any.
func (t *PanTracker) Err() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastErr
}

// Commits returns how many position changes have been committed.
func (t *PanTracker) Commits() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.commits
}

// Config returns the active configuration.
func (t *PanTracker) Config() PanConfig {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cfg
}

// commit records the new position and forwards it to the servo.
// A failed dispatch keeps the new position; the next commit retries.
func (t *PanTracker) commit(position float64) {
	t.position = clamp(roundPosition(position), t.cfg.MinPosition, t.cfg.MaxPosition)
	t.commits++

	if t.actuator == nil {
		t.lastErr = nil
		return
	}
	t.lastErr = t.actuator.SetPan(t.position)
	if t.lastErr != nil {
		t.logger.Warn("pan dispatch failed", "position", t.position, "error", t.lastErr)
	}
}
