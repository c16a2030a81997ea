package robot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/go-follower/internal/serialport"
)

// DefaultAckTimeout bounds each motor bridge exchange.
const DefaultAckTimeout = 50 * time.Millisecond

// SerialBridge drives the motor bridge MCU over a UART line protocol:
//
//	DRIVE F|B|S
//	STEER L|R|N <hold-ms>
//	PAN <position>
//
// The bridge answers each line with "OK" or "ERR <reason>".
type SerialBridge struct {
	mu         sync.Mutex
	conn       *serialport.LineConn
	ackTimeout time.Duration
}

// NewSerialBridge wraps an open port.
func NewSerialBridge(port serialport.Port, ackTimeout time.Duration) *SerialBridge {
	if ackTimeout <= 0 {
		ackTimeout = DefaultAckTimeout
	}
	return &SerialBridge{
		conn:       serialport.NewLineConn(port),
		ackTimeout: ackTimeout,
	}
}

// OpenSerialBridge opens the bridge device.
func OpenSerialBridge(opts serialport.PortOptions, ackTimeout time.Duration) (*SerialBridge, error) {
	port, err := serialport.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("motor bridge: %w", err)
	}
	return NewSerialBridge(port, ackTimeout), nil
}

// Drive sets the rear wheel motion.
func (b *SerialBridge) Drive(m Motion) error {
	code := "S"
	switch m {
	case MotionForward:
		code = "F"
	case MotionBackward:
		code = "B"
	}
	return b.send("drive", "DRIVE "+code)
}

// Steer sets the front wheel direction.
func (b *SerialBridge) Steer(s Steering, hold time.Duration) error {
	code := "N"
	switch s {
	case SteerLeft:
		code = "L"
	case SteerRight:
		code = "R"
	}
	return b.send("steer", fmt.Sprintf("STEER %s %d", code, hold.Milliseconds()))
}

// SetPan positions the pan servo when it hangs off the bridge.
func (b *SerialBridge) SetPan(position float64) error {
	return b.send("pan", fmt.Sprintf("PAN %.3f", position))
}

// Close releases the port.
func (b *SerialBridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return nil
	}
	err := b.conn.Close()
	b.conn = nil
	return err
}

func (b *SerialBridge) send(op, line string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return &DispatchError{Op: op, Command: line, Err: ErrNotConnected}
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.ackTimeout)
	defer cancel()

	reply, err := b.conn.Exchange(ctx, line)
	if err != nil {
		if ctx.Err() != nil {
			err = ErrNoAck
		}
		return &DispatchError{Op: op, Command: line, Err: err}
	}

	switch {
	case reply == "OK":
		return nil
	case strings.HasPrefix(reply, "ERR"):
		msg := strings.TrimSpace(strings.TrimPrefix(reply, "ERR"))
		return &DispatchError{Op: op, Command: line, Err: &DeviceError{Message: msg}}
	default:
		return &DispatchError{Op: op, Command: line, Err: fmt.Errorf("unexpected reply %q", reply)}
	}
}
