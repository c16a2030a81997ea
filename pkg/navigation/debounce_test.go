package navigation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/teslashibe/go-follower/pkg/robot"
)

func TestDebouncer_EngageAndRelease(t *testing.T) {
	d := NewDebouncer(50*time.Millisecond, 80*time.Millisecond)
	at := func(ms int) time.Time { return t0.Add(time.Duration(ms) * time.Millisecond) }

	assert.Equal(t, robot.SteerNeutral, d.Update(robot.SteerLeft, at(0)))
	assert.Equal(t, robot.SteerNeutral, d.Update(robot.SteerLeft, at(40)))
	assert.Equal(t, robot.SteerLeft, d.Update(robot.SteerLeft, at(50)))

	// Release uses its own, longer timer.
	assert.Equal(t, robot.SteerLeft, d.Update(robot.SteerNeutral, at(100)))
	assert.Equal(t, robot.SteerLeft, d.Update(robot.SteerNeutral, at(170)))
	assert.Equal(t, robot.SteerNeutral, d.Update(robot.SteerNeutral, at(180)))
}

func TestDebouncer_FlickerNeverEngages(t *testing.T) {
	d := NewDebouncer(50*time.Millisecond, 50*time.Millisecond)
	reqs := []robot.Steering{robot.SteerLeft, robot.SteerNeutral, robot.SteerLeft, robot.SteerRight, robot.SteerLeft}
	for i, r := range reqs {
		got := d.Update(r, t0.Add(time.Duration(i)*30*time.Millisecond))
		assert.Equal(t, robot.SteerNeutral, got, "step %d", i)
	}
}

func TestDebouncer_ChangeOfMindRestartsTimer(t *testing.T) {
	d := NewDebouncer(50*time.Millisecond, 50*time.Millisecond)
	d.Update(robot.SteerLeft, t0)
	assert.Equal(t, robot.SteerNeutral, d.Update(robot.SteerRight, t0.Add(40*time.Millisecond)))
	assert.Equal(t, robot.SteerNeutral, d.Update(robot.SteerRight, t0.Add(80*time.Millisecond)))
	assert.Equal(t, robot.SteerRight, d.Update(robot.SteerRight, t0.Add(90*time.Millisecond)))
}

func TestDebouncer_ZeroDwellIsImmediate(t *testing.T) {
	d := NewDebouncer(0, 0)
	assert.Equal(t, robot.SteerRight, d.Update(robot.SteerRight, t0))
	assert.Equal(t, robot.SteerNeutral, d.Update(robot.SteerNeutral, t0))
}

func TestDebouncer_Force(t *testing.T) {
	d := NewDebouncer(time.Hour, time.Hour)
	d.Force(robot.SteerLeft)
	assert.Equal(t, robot.SteerLeft, d.Applied())
	assert.Equal(t, robot.SteerLeft, d.Update(robot.SteerLeft, t0))
}
