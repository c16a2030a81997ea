package robot

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-follower/internal/log"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestDispatcher(rec *Recorder) (*Dispatcher, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	d := NewDispatcher(rec)
	d.now = clock.now
	d.SetLogger(log.Discard())
	return d, clock
}

func TestDispatcher_SkipsUnchangedCommands(t *testing.T) {
	rec := NewRecorder(0)
	d, clock := newTestDispatcher(rec)

	fwd := Command{Motion: MotionForward, Steering: SteerNeutral}
	for i := 0; i < 5; i++ {
		require.NoError(t, d.Apply(fwd))
		clock.advance(100 * time.Millisecond)
	}

	want := []Call{
		{Op: "drive", Motion: MotionForward},
		{Op: "steer", Steering: SteerNeutral},
	}
	if diff := cmp.Diff(want, rec.Calls()); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}

	s := d.Stats()
	assert.Equal(t, uint64(5), s.Applied)
	assert.Equal(t, uint64(4), s.Skipped)
	assert.Equal(t, fwd, s.LastSent)
}

func TestDispatcher_OnlyChangedAxisWritten(t *testing.T) {
	rec := NewRecorder(0)
	d, _ := newTestDispatcher(rec)

	require.NoError(t, d.Apply(Command{Motion: MotionForward}))
	rec.Reset()

	require.NoError(t, d.Apply(Command{Motion: MotionForward, Steering: SteerLeft, Hold: 300 * time.Millisecond}))
	want := []Call{{Op: "steer", Steering: SteerLeft, Hold: 300 * time.Millisecond}}
	if diff := cmp.Diff(want, rec.Calls()); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestDispatcher_RefreshesExpiredTurn(t *testing.T) {
	rec := NewRecorder(0)
	d, clock := newTestDispatcher(rec)
	turn := Command{Motion: MotionForward, Steering: SteerRight, Hold: 200 * time.Millisecond}

	require.NoError(t, d.Apply(turn))
	rec.Reset()

	clock.advance(100 * time.Millisecond)
	require.NoError(t, d.Apply(turn))
	assert.Empty(t, rec.Calls(), "turn still held, nothing to send")

	clock.advance(100 * time.Millisecond)
	require.NoError(t, d.Apply(turn))
	assert.Equal(t, []Call{{Op: "steer", Steering: SteerRight, Hold: 200 * time.Millisecond}}, rec.Calls())
}

func TestDispatcher_FailureForcesFullRewrite(t *testing.T) {
	rec := NewRecorder(0)
	d, _ := newTestDispatcher(rec)
	boom := errors.New("uart gone")

	require.NoError(t, d.Apply(Halt))
	rec.FailWith(boom)

	err := d.Apply(Command{Motion: MotionForward})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var de *DispatchError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "drive", de.Op)

	rec.FailWith(nil)
	rec.Reset()

	// Same command as before the failure, but the chassis state is unknown.
	require.NoError(t, d.Apply(Halt))
	assert.Len(t, rec.Calls(), 2)

	s := d.Stats()
	assert.Equal(t, uint64(1), s.Errors)
	assert.Empty(t, s.LastErr)
}

func TestDispatcher_HaltAlwaysWrites(t *testing.T) {
	rec := NewRecorder(0)
	d, _ := newTestDispatcher(rec)

	require.NoError(t, d.Halt())
	require.NoError(t, d.Halt())
	assert.Len(t, rec.Calls(), 4)

	m, s, _ := rec.State()
	assert.Equal(t, MotionStop, m)
	assert.Equal(t, SteerNeutral, s)
}

func TestRecorder_Limit(t *testing.T) {
	rec := NewRecorder(3)
	for i := 0; i < 5; i++ {
		require.NoError(t, rec.SetPan(float64(i)))
	}
	calls := rec.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, 2.0, calls[0].Pan)
	_, _, pan := rec.State()
	assert.Equal(t, 4.0, pan)
}

func TestCommandStrings(t *testing.T) {
	assert.Equal(t, "forward", MotionForward.String())
	assert.Equal(t, "backward", MotionBackward.String())
	assert.Equal(t, "stop", MotionStop.String())
	assert.Equal(t, "left", SteerLeft.String())
	assert.Equal(t, "right", SteerRight.String())
	assert.Equal(t, "neutral", SteerNeutral.String())
}
