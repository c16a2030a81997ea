package navigation

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-follower/pkg/robot"
	"github.com/teslashibe/go-follower/pkg/tracking"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func person(height, angle float64, dir tracking.Direction) *PersonObservation {
	return &PersonObservation{Height: height, Angle: angle, Direction: dir}
}

func TestStep_Scenarios(t *testing.T) {
	tests := []struct {
		name     string
		in       Input
		state    State
		reason   string
		motion   robot.Motion
		steering robot.Steering
	}{
		{
			name:   "obstacle preempts approach",
			in:     Input{Person: person(0.3, 90, tracking.DirectionCentered), Obstacle: true, DistanceCM: 150},
			state:  StateAvoiding,
			reason: ReasonObstacle,
			motion: robot.MotionStop,
		},
		{
			name:   "short range in band",
			in:     Input{Person: person(0.5, 90, tracking.DirectionCentered), DistanceCM: 35},
			state:  StateAvoiding,
			reason: ReasonUltrasonic,
			motion: robot.MotionStop,
		},
		{
			name:   "exactly safe distance stops",
			in:     Input{Person: person(0.3, 90, tracking.DirectionCentered), DistanceCM: 40},
			state:  StateAvoiding,
			reason: ReasonUltrasonic,
			motion: robot.MotionStop,
		},
		{
			name:   "both triggers",
			in:     Input{Obstacle: true, DistanceCM: 10},
			state:  StateAvoiding,
			reason: ReasonObstacleUltrasonic,
			motion: robot.MotionStop,
		},
		{
			name:   "nobody in view",
			in:     Input{DistanceCM: 100},
			state:  StateSearching,
			reason: ReasonSearching,
			motion: robot.MotionStop,
		},
		{
			name:   "perception failed",
			in:     Input{Person: person(0.3, 90, tracking.DirectionCentered), PerceptionDown: true, DistanceCM: 100},
			state:  StateSearching,
			reason: ReasonPerceptionDown,
			motion: robot.MotionStop,
		},
		{
			name:     "centered within tolerance",
			in:       Input{Person: person(0.3, 95, tracking.DirectionCentered), DistanceCM: 100},
			state:    StateApproaching,
			reason:   ReasonTooFar,
			motion:   robot.MotionForward,
			steering: robot.SteerNeutral,
		},
		{
			name:     "centered off to the right",
			in:       Input{Person: person(0.3, 110, tracking.DirectionCentered), DistanceCM: 100},
			state:    StateApproaching,
			reason:   ReasonTooFar,
			motion:   robot.MotionForward,
			steering: robot.SteerRight,
		},
		{
			name:     "centered off to the left",
			in:       Input{Person: person(0.3, 70, tracking.DirectionCentered), DistanceCM: 100},
			state:    StateApproaching,
			reason:   ReasonTooFar,
			motion:   robot.MotionForward,
			steering: robot.SteerLeft,
		},
		{
			name:     "servo pinned left",
			in:       Input{Person: person(0.3, 0, tracking.DirectionLimitLeft), DistanceCM: 100},
			state:    StateApproaching,
			reason:   ReasonTooFar,
			motion:   robot.MotionForward,
			steering: robot.SteerLeft,
		},
		{
			name:     "servo pinned right",
			in:       Input{Person: person(0.3, 180, tracking.DirectionLimitRight), DistanceCM: 100},
			state:    StateApproaching,
			reason:   ReasonTooFar,
			motion:   robot.MotionForward,
			steering: robot.SteerRight,
		},
		{
			name:     "servo still moving",
			in:       Input{Person: person(0.3, 60, tracking.DirectionLeft), DistanceCM: 100},
			state:    StateApproaching,
			reason:   ReasonTooFar,
			motion:   robot.MotionForward,
			steering: robot.SteerNeutral,
		},
		{
			name:   "too close",
			in:     Input{Person: person(0.75, 150, tracking.DirectionLimitRight), DistanceCM: 100},
			state:  StateRetreating,
			reason: ReasonTooClose,
			motion: robot.MotionBackward,
		},
		{
			name:   "in band",
			in:     Input{Person: person(0.5, 90, tracking.DirectionCentered), DistanceCM: 100},
			state:  StateHolding,
			reason: ReasonInRange,
			motion: robot.MotionStop,
		},
		{
			name:   "band edges are inclusive",
			in:     Input{Person: person(0.6, 90, tracking.DirectionCentered), DistanceCM: 100},
			state:  StateHolding,
			reason: ReasonInRange,
			motion: robot.MotionStop,
		},
		{
			name:     "holding corrects heading",
			in:       Input{Person: person(0.45, 75, tracking.DirectionCentered), DistanceCM: 100},
			state:    StateHolding,
			reason:   ReasonInRange,
			motion:   robot.MotionStop,
			steering: robot.SteerLeft,
		},
		{
			name:   "holding ignores limits",
			in:     Input{Person: person(0.5, 0, tracking.DirectionLimitLeft), DistanceCM: 100},
			state:  StateHolding,
			reason: ReasonInRange,
			motion: robot.MotionStop,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewController(DefaultConfig())
			tt.in.Now = t0
			d := c.Step(tt.in)

			assert.Equal(t, tt.state, d.State)
			assert.Equal(t, tt.reason, d.Reason)
			assert.Equal(t, tt.motion, d.Motion)
			assert.Equal(t, tt.steering, d.Steering)
			assert.Equal(t, tt.state.String()+": "+tt.reason, d.Status())
		})
	}
}

func TestStep_DebouncedTurn(t *testing.T) {
	c := NewController(DefaultConfig())
	in := Input{Person: person(0.3, 120, tracking.DirectionCentered), DistanceCM: 100}

	in.Now = t0
	d := c.Step(in)
	assert.Equal(t, robot.SteerRight, d.Steering)
	assert.Equal(t, robot.SteerNeutral, d.Applied, "turn must dwell before engaging")
	assert.Equal(t, robot.Halt.Steering, d.Command().Steering)

	in.Now = t0.Add(100 * time.Millisecond)
	d = c.Step(in)
	assert.Equal(t, robot.SteerRight, d.Applied)
	assert.Equal(t, 300*time.Millisecond, d.Hold, "30° off center at 10ms/°")

	want := robot.Command{Motion: robot.MotionForward, Steering: robot.SteerRight, Hold: 300 * time.Millisecond}
	if diff := cmp.Diff(want, d.Command()); diff != "" {
		t.Errorf("command mismatch (-want +got):\n%s", diff)
	}
}

func TestStep_AvoidingReleasesSteeringAtOnce(t *testing.T) {
	c := NewController(DefaultConfig())
	turn := Input{Person: person(0.3, 130, tracking.DirectionCentered), DistanceCM: 100}

	turn.Now = t0
	c.Step(turn)
	turn.Now = t0.Add(100 * time.Millisecond)
	require.Equal(t, robot.SteerRight, c.Step(turn).Applied)

	d := c.Step(Input{Obstacle: true, DistanceCM: 100, Now: t0.Add(200 * time.Millisecond)})
	assert.Equal(t, robot.SteerNeutral, d.Applied)
	assert.Equal(t, robot.Halt, d.Command())
}

func TestStep_AvoidBackoff(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AvoidBackoff = 250 * time.Millisecond
	c := NewController(cfg)

	var motions []robot.Motion
	for i := 0; i < 5; i++ {
		d := c.Step(Input{DistanceCM: 20, Now: t0.Add(time.Duration(i) * 100 * time.Millisecond)})
		motions = append(motions, d.Motion)
	}
	want := []robot.Motion{robot.MotionBackward, robot.MotionBackward, robot.MotionBackward, robot.MotionStop, robot.MotionStop}
	assert.Equal(t, want, motions)

	// Leaving and re-entering Avoiding restarts the backoff.
	c.Step(Input{DistanceCM: 100, Now: t0.Add(600 * time.Millisecond)})
	d := c.Step(Input{DistanceCM: 20, Now: t0.Add(700 * time.Millisecond)})
	assert.Equal(t, robot.MotionBackward, d.Motion)
}

func TestStep_LimitAwayAndMirror(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LimitPolicy = LimitAway
	c := NewController(cfg)
	d := c.Step(Input{Person: person(0.3, 0, tracking.DirectionLimitLeft), DistanceCM: 100, Now: t0})
	assert.Equal(t, robot.SteerRight, d.Steering)

	cfg = DefaultConfig()
	cfg.MirrorHeading = true
	c = NewController(cfg)
	d = c.Step(Input{Person: person(0.3, 70, tracking.DirectionCentered), DistanceCM: 100, Now: t0})
	assert.Equal(t, robot.SteerRight, d.Steering)
}

func TestStep_Transitions(t *testing.T) {
	c := NewController(DefaultConfig())
	c.Step(Input{DistanceCM: 100, Now: t0})
	c.Step(Input{DistanceCM: 100, Now: t0.Add(time.Second)})
	c.Step(Input{DistanceCM: 10, Now: t0.Add(2 * time.Second)})
	c.Step(Input{DistanceCM: 100, Now: t0.Add(3 * time.Second)})

	assert.Equal(t, StateSearching, c.State())
	assert.Equal(t, map[State]uint64{StateSearching: 2, StateAvoiding: 1}, c.Transitions())

	c.Reset()
	assert.Equal(t, StateIdle, c.State())
}

func TestDecision_JSON(t *testing.T) {
	c := NewController(DefaultConfig())
	d := c.Step(Input{Person: person(0.3, 95, tracking.DirectionCentered), DistanceCM: 80, Now: t0})

	data, err := json.Marshal(d)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	want := map[string]any{
		"state":       "Approaching",
		"reason":      "too far",
		"motion":      "forward",
		"steering":    "neutral",
		"applied":     "neutral",
		"distance_cm": 80.0,
		"height":      0.3,
		"angle":       95.0,
	}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreMapEntries(func(k string, _ any) bool {
		return k == "at" || k == "hold"
	})); diff != "" {
		t.Errorf("json mismatch (-want +got):\n%s", diff)
	}
}

func TestConfig_PresetsAndValidate(t *testing.T) {
	for name, cfg := range map[string]Config{
		"default":  DefaultConfig(),
		"cautious": CautiousConfig(),
		"agile":    AgileConfig(),
	} {
		assert.NoError(t, cfg.Validate(), name)
	}

	bad := DefaultConfig()
	bad.TargetMinHeight = 0.7
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.LimitPolicy = "sideways"
	assert.Error(t, bad.Validate())
}

func TestConfig_UnmarshalDurations(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, json.Unmarshal([]byte(`{"safe_distance_cm": 55, "engage_dwell": "80ms", "avoid_backoff": 1000000}`), &cfg))
	assert.Equal(t, 55.0, cfg.SafeDistanceCM)
	assert.Equal(t, 80*time.Millisecond, cfg.EngageDwell)
	assert.Equal(t, time.Millisecond, cfg.AvoidBackoff)
	assert.Equal(t, 50*time.Millisecond, cfg.ReleaseDwell, "untouched fields keep defaults")
	assert.Equal(t, 0.45, cfg.TargetMinHeight)
}

func TestTuningParams(t *testing.T) {
	c := NewController(DefaultConfig())
	c.SetTuningParams(TuningParams{SafeDistanceCM: 60, TargetMinHeight: 0.7})

	got := c.GetTuningParams()
	assert.Equal(t, 60.0, got.SafeDistanceCM)
	assert.Equal(t, 0.45, got.TargetMinHeight, "inverted band rejected")

	c.SetTuningParams(TuningParams{TargetMinHeight: 0.3, TargetMaxHeight: 0.5, LimitPolicy: LimitAway})
	got = c.GetTuningParams()
	assert.Equal(t, 0.3, got.TargetMinHeight)
	assert.Equal(t, 0.5, got.TargetMaxHeight)
	assert.Equal(t, LimitAway, got.LimitPolicy)

	d := c.Step(Input{Person: person(0.5, 90, tracking.DirectionCentered), DistanceCM: 55, Now: t0})
	assert.Equal(t, StateAvoiding, d.State, "55 cm is inside the new safe distance")
}
