package ranging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var (
	// ErrSensorTimeout is returned when no echo arrives in time.
	ErrSensorTimeout = errors.New("ranging: sensor timeout")

	// ErrBadReading is returned when the device reply can't be parsed.
	ErrBadReading = errors.New("ranging: bad reading")
)

// Sensor produces raw distance readings in centimeters.
type Sensor interface {
	Read(ctx context.Context) (float64, error)
}

// SensorFunc adapts a function to the Sensor interface.
type SensorFunc func(ctx context.Context) (float64, error)

// Read calls f.
func (f SensorFunc) Read(ctx context.Context) (float64, error) {
	return f(ctx)
}

// Sample reads s with a deadline. Any failure reads as maxCM, which the
// filter then treats like a missing echo.
func Sample(ctx context.Context, s Sensor, timeout time.Duration, maxCM float64, logger *slog.Logger) float64 {
	if s == nil {
		return maxCM
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cm, err := s.Read(ctx)
	if err != nil {
		if logger != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				err = fmt.Errorf("%w: %v", ErrSensorTimeout, err)
			}
			logger.Debug("range read failed, using max range", "error", err)
		}
		return maxCM
	}
	return cm
}
