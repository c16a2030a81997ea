// Package tracking keeps the camera pan servo pointed at the followed person.
// This file defines the position/angle conventions shared with the chassis.
package tracking

import "math"

// Servo conventions. Position -1 is full left (0°), +1 full right (180°).
const (
	// CenterAngle is straight ahead.
	CenterAngle = 90.0

	// MaxAngle is the servo's mechanical travel.
	MaxAngle = 180.0
)

// positionResolution is the grid committed positions are rounded to, so
// repeated steps land exactly on the bounds instead of drifting past them.
const positionResolution = 1e-9

// PositionToAngle converts a servo position in [-1, 1] to degrees in [0, 180].
func PositionToAngle(position float64) float64 {
	return (clamp(position, -1, 1) + 1) * CenterAngle
}

// AngleToPosition converts degrees in [0, 180] to a servo position in [-1, 1].
func AngleToPosition(angle float64) float64 {
	return clamp(angle, 0, MaxAngle)/CenterAngle - 1
}

// Degrees converts radians to degrees for logging/display.
func Degrees(radians float64) float64 {
	return radians * 180.0 / math.Pi
}

// Radians converts degrees to radians.
func Radians(degrees float64) float64 {
	return degrees * math.Pi / 180.0
}

func roundPosition(p float64) float64 {
	return math.Round(p/positionResolution) * positionResolution
}

// clamp restricts value to the range [min, max].
func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
