package ranging

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/teslashibe/go-follower/internal/serialport"
)

// SerialSensor talks to the ranger MCU. Each Read sends "R" and waits for a
// reply line holding centimeters, e.g. "D 87.4" or "87.4". "D -1" means no echo.
type SerialSensor struct {
	conn *serialport.LineConn
}

// NewSerialSensor wraps an open port.
func NewSerialSensor(port serialport.Port) *SerialSensor {
	return &SerialSensor{conn: serialport.NewLineConn(port)}
}

// OpenSerialSensor opens the ranger device.
func OpenSerialSensor(opts serialport.PortOptions) (*SerialSensor, error) {
	port, err := serialport.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("ranger: %w", err)
	}
	return NewSerialSensor(port), nil
}

// Read requests one measurement.
func (s *SerialSensor) Read(ctx context.Context) (float64, error) {
	line, err := s.conn.Exchange(ctx, "R")
	if err != nil {
		return 0, fmt.Errorf("ranger: %w", err)
	}
	return parseReading(line)
}

// Close releases the port.
func (s *SerialSensor) Close() error {
	return s.conn.Close()
}

func parseReading(line string) (float64, error) {
	line = strings.TrimSpace(strings.TrimPrefix(line, "D"))
	v, err := strconv.ParseFloat(line, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadReading, line)
	}
	if v < 0 {
		return 0, ErrSensorTimeout
	}
	return v, nil
}
