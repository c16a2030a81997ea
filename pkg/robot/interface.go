// Package robot provides interfaces and implementations for the follower chassis.
//
// This package follows the Interface Segregation Principle (ISP) by defining
// small, focused interfaces that can be composed as needed. Consumers should
// depend only on the interfaces they actually use.
package robot

import (
	"fmt"
	"time"
)

// Motion is a discrete drive command.
type Motion int

const (
	MotionStop Motion = iota
	MotionForward
	MotionBackward
)

func (m Motion) String() string {
	switch m {
	case MotionForward:
		return "forward"
	case MotionBackward:
		return "backward"
	default:
		return "stop"
	}
}

// MarshalText encodes the motion by name.
func (m Motion) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText decodes a motion name.
func (m *Motion) UnmarshalText(b []byte) error {
	for _, v := range []Motion{MotionStop, MotionForward, MotionBackward} {
		if v.String() == string(b) {
			*m = v
			return nil
		}
	}
	return fmt.Errorf("unknown motion %q", b)
}

// Steering is a discrete steering command.
type Steering int

const (
	SteerNeutral Steering = iota
	SteerLeft
	SteerRight
)

func (s Steering) String() string {
	switch s {
	case SteerLeft:
		return "left"
	case SteerRight:
		return "right"
	default:
		return "neutral"
	}
}

// MarshalText encodes the steering by name.
func (s Steering) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a steering name.
func (s *Steering) UnmarshalText(b []byte) error {
	for _, v := range []Steering{SteerNeutral, SteerLeft, SteerRight} {
		if v.String() == string(b) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown steering %q", b)
}

// Command is one cycle's actuator output.
type Command struct {
	Motion   Motion        `json:"motion"`
	Steering Steering      `json:"steering"`
	Hold     time.Duration `json:"hold"` // How long a turn should be held before releasing
}

// Halt is the safe command: stopped, wheels straight.
var Halt = Command{Motion: MotionStop, Steering: SteerNeutral}

// DriveController drives the rear wheels.
type DriveController interface {
	Drive(m Motion) error
}

// SteeringController turns the front wheels. A non-neutral command is held
// for at most hold before the chassis releases it on its own; zero means
// hold until told otherwise.
type SteeringController interface {
	Steer(s Steering, hold time.Duration) error
}

// PanController positions the camera pan servo, -1 (full left) to 1 (full right).
type PanController interface {
	SetPan(position float64) error
}

// Chassis combines drive and steering.
// Use this when a single device handles both, as the motor bridge does.
type Chassis interface {
	DriveController
	SteeringController
}

// Controller is the composite interface for full robot control.
type Controller interface {
	Chassis
	PanController
}

// Ensure implementations satisfy their interfaces
var (
	_ Controller    = (*SerialBridge)(nil)
	_ Controller    = (*Recorder)(nil)
	_ PanController = (*FeetechPan)(nil)
)
