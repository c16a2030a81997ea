package robot

import (
	"context"
	"fmt"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
)

// PanCalibration maps pan positions onto raw servo ticks.
type PanCalibration struct {
	ID       int  `json:"id"`
	RangeMin int  `json:"range_min"` // Raw ticks at full left
	RangeMax int  `json:"range_max"` // Raw ticks at full right
	Inverted bool `json:"inverted"`  // Servo mounted upside down
}

// DefaultPanCalibration covers a 180° sweep on an STS3215 (4096 ticks per turn).
func DefaultPanCalibration() PanCalibration {
	return PanCalibration{ID: 1, RangeMin: 1024, RangeMax: 3072}
}

// Denormalize converts a position in [-1, 1] to raw ticks.
func (c PanCalibration) Denormalize(position float64) int {
	position = clampUnit(position)
	if c.Inverted {
		position = -position
	}
	rangeSize := float64(c.RangeMax - c.RangeMin)
	return int((position+1)/2*rangeSize+0.5) + c.RangeMin
}

// Normalize converts raw ticks to a position in [-1, 1].
func (c PanCalibration) Normalize(raw int) float64 {
	rangeSize := float64(c.RangeMax - c.RangeMin)
	if rangeSize == 0 {
		return 0
	}
	position := clampUnit(float64(raw-c.RangeMin)/rangeSize*2 - 1)
	if c.Inverted {
		position = -position
	}
	return position
}

// servoGroup is the part of feetech.ServoGroup the pan driver uses.
type servoGroup interface {
	SetPositions(ctx context.Context, positions feetech.PositionMap) error
	EnableAll(ctx context.Context) error
	DisableAll(ctx context.Context) error
}

// FeetechPan drives a pan servo on a Feetech STS bus.
type FeetechPan struct {
	bus     *feetech.Bus
	group   servoGroup
	cal     PanCalibration
	timeout time.Duration
}

// OpenFeetechPan opens the servo bus and enables torque on the pan servo.
func OpenFeetechPan(port string, cal PanCalibration) (*FeetechPan, error) {
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: 1_000_000,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("open bus: %w", err)
	}

	p := newFeetechPan(feetech.NewServoGroupByIDs(bus, cal.ID), cal)
	p.bus = bus

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.group.EnableAll(ctx); err != nil {
		bus.Close()
		return nil, fmt.Errorf("enable torque: %w", err)
	}
	return p, nil
}

func newFeetechPan(group servoGroup, cal PanCalibration) *FeetechPan {
	return &FeetechPan{group: group, cal: cal, timeout: 100 * time.Millisecond}
}

// SetPan moves the servo to position.
func (p *FeetechPan) SetPan(position float64) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	raw := p.cal.Denormalize(position)
	if err := p.group.SetPositions(ctx, feetech.PositionMap{p.cal.ID: raw}); err != nil {
		return &DispatchError{Op: "pan", Command: fmt.Sprintf("%d", raw), Err: err}
	}
	return nil
}

// Close disables torque and closes the bus.
func (p *FeetechPan) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := p.group.DisableAll(ctx)
	if p.bus != nil {
		if cerr := p.bus.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func clampUnit(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
