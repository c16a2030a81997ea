package robot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bridgePort acknowledges each line with reply, or stays silent if reply is empty.
type bridgePort struct {
	mu     sync.Mutex
	reply  string
	lines  []string
	in     []byte
	closed bool
}

func (p *bridgePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lines = append(p.lines, string(b))
	if p.reply != "" {
		p.in = append(p.in, p.reply+"\n"...)
	}
	return len(b), nil
}

func (p *bridgePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := copy(b, p.in)
	p.in = p.in[n:]
	return n, nil
}

func (p *bridgePort) Close() error {
	p.closed = true
	return nil
}

func TestSerialBridge_Protocol(t *testing.T) {
	port := &bridgePort{reply: "OK"}
	b := NewSerialBridge(port, 0)

	require.NoError(t, b.Drive(MotionForward))
	require.NoError(t, b.Drive(MotionBackward))
	require.NoError(t, b.Drive(MotionStop))
	require.NoError(t, b.Steer(SteerLeft, 900*time.Millisecond))
	require.NoError(t, b.Steer(SteerNeutral, 0))
	require.NoError(t, b.SetPan(-0.25))

	assert.Equal(t, []string{
		"DRIVE F\n",
		"DRIVE B\n",
		"DRIVE S\n",
		"STEER L 900\n",
		"STEER N 0\n",
		"PAN -0.250\n",
	}, port.lines)
}

func TestSerialBridge_DeviceError(t *testing.T) {
	b := NewSerialBridge(&bridgePort{reply: "ERR overcurrent"}, 0)
	err := b.Drive(MotionForward)

	var devErr *DeviceError
	require.ErrorAs(t, err, &devErr)
	assert.Equal(t, "overcurrent", devErr.Message)
}

func TestSerialBridge_NoAck(t *testing.T) {
	b := NewSerialBridge(&bridgePort{}, 5*time.Millisecond)
	err := b.Steer(SteerRight, 100*time.Millisecond)
	assert.ErrorIs(t, err, ErrNoAck)
}

func TestSerialBridge_Closed(t *testing.T) {
	port := &bridgePort{reply: "OK"}
	b := NewSerialBridge(port, 0)
	require.NoError(t, b.Close())
	assert.True(t, port.closed)
	assert.ErrorIs(t, b.Drive(MotionStop), ErrNotConnected)
}

type fakeGroup struct {
	positions []feetech.PositionMap
	enabled   bool
	err       error
}

func (g *fakeGroup) SetPositions(_ context.Context, p feetech.PositionMap) error {
	if g.err != nil {
		return g.err
	}
	g.positions = append(g.positions, p)
	return nil
}

func (g *fakeGroup) EnableAll(context.Context) error  { g.enabled = true; return nil }
func (g *fakeGroup) DisableAll(context.Context) error { g.enabled = false; return nil }

func TestPanCalibration(t *testing.T) {
	cal := DefaultPanCalibration()
	assert.Equal(t, 1024, cal.Denormalize(-1))
	assert.Equal(t, 2048, cal.Denormalize(0))
	assert.Equal(t, 3072, cal.Denormalize(1))
	assert.Equal(t, 3072, cal.Denormalize(5))
	assert.InDelta(t, 0.5, cal.Normalize(2560), 1e-9)

	cal.Inverted = true
	assert.Equal(t, 3072, cal.Denormalize(-1))
	assert.InDelta(t, -0.5, cal.Normalize(2560), 1e-9)
}

func TestFeetechPan_SetPan(t *testing.T) {
	g := &fakeGroup{enabled: true}
	p := newFeetechPan(g, DefaultPanCalibration())

	require.NoError(t, p.SetPan(0.5))
	require.Len(t, g.positions, 1)
	assert.Equal(t, feetech.PositionMap{1: 2560}, g.positions[0])

	g.err = errors.New("checksum")
	err := p.SetPan(0)
	var de *DispatchError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "pan", de.Op)

	require.NoError(t, p.Close())
	assert.False(t, g.enabled)
}
