package robot

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when a device has been closed or never opened.
	ErrNotConnected = errors.New("robot: not connected")

	// ErrNoAck is returned when the motor bridge doesn't confirm a command.
	ErrNoAck = errors.New("robot: no acknowledgement")
)

// DispatchError wraps a failed actuator command.
type DispatchError struct {
	Op      string // "drive", "steer" or "pan"
	Command string
	Err     error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("robot: %s %s: %v", e.Op, e.Command, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// DeviceError is a refusal reported by the device itself.
type DeviceError struct {
	Message string
}

func (e *DeviceError) Error() string {
	return "robot: device error: " + e.Message
}
