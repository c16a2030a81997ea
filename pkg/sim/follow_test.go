package sim

import (
	"context"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-follower/internal/log"
	"github.com/teslashibe/go-follower/pkg/follower"
	"github.com/teslashibe/go-follower/pkg/navigation"
	"github.com/teslashibe/go-follower/pkg/tracking"
)

// runFollower drives the real control loop against the scene for n cycles.
func runFollower(t *testing.T, cfg Config, n int, extra ...follower.Option) (*Scene, follower.Report) {
	t.Helper()
	fcfg := follower.DefaultConfig()
	s, err := New(cfg, fcfg.Perception)
	require.NoError(t, err)
	s.SetLogger(log.Discard())
	clk := newTestClock()
	s.SetClock(clk.now)

	loopOpts := append([]follower.Option{
		follower.WithClock(clk.now, clk.sleep),
		follower.WithLogger(log.Discard()),
	}, extra...)
	loop, err := follower.NewLoop(fcfg, follower.Devices{
		Source:  s,
		Sensor:  s,
		Chassis: s,
		Pan:     s,
	}, loopOpts...)
	require.NoError(t, err)

	var last follower.Report
	for i := 0; i < n; i++ {
		last, err = loop.Cycle(context.Background())
		require.NoError(t, err)
		clk.advance(fcfg.Loop.ControlPeriod)
	}
	return s, last
}

func TestFollow_ApproachesAndHolds(t *testing.T) {
	s, last := runFollower(t, DefaultConfig(), 60)

	st := s.State()
	assert.Equal(t, navigation.StateHolding, last.Decision.State, last.Status)
	assert.InDelta(t, 113.0, st.PersonRangeCM, 6)
	assert.Greater(t, st.ClosestCM, 40.0)
	assert.InDelta(t, 0.0, st.Robot.HeadingDeg, 1e-9)
}

func TestFollow_PansTowardPersonOnTheLeft(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Person.Start = Point{X: 195.6, Y: 41.6} // 12° left, 2 m

	var reports []follower.Report
	s, _ := runFollower(t, cfg, 40, follower.WithObserver(func(r follower.Report) {
		reports = append(reports, r)
	}))
	require.Len(t, reports, 40)

	first := reports[0]
	require.NotNil(t, first.Frame.Person)
	assert.Equal(t, tracking.DirectionLeft, first.PanDirection)
	assert.Less(t, first.PanPosition, 0.0)

	centered := lo.ContainsBy(reports, func(r follower.Report) bool {
		return r.PanDirection == tracking.DirectionCentered
	})
	assert.True(t, centered, "camera settles on the person")
	assert.Greater(t, s.State().ClosestCM, 40.0)
}

func TestFollow_SearchesWithoutPerson(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Person.Hidden = true
	s, last := runFollower(t, cfg, 10)

	assert.Equal(t, navigation.StateSearching, last.Decision.State)
	st := s.State()
	assert.Equal(t, Point{}, st.Robot.At)
	assert.InDelta(t, 0.0, st.Pan, 1e-9)
}

func TestFollow_StopsAtWall(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Person.Start = Point{X: 400}
	cfg.WallX = 150
	cfg.WallSightCM = 0
	s, last := runFollower(t, cfg, 80)

	// The wall blocks the beam long before the person is in range.
	assert.Equal(t, navigation.StateAvoiding, last.Decision.State, last.Status)
	st := s.State()
	assert.Less(t, st.Robot.At.X, 150.0-25)
	assert.Greater(t, st.Robot.At.X, 150.0-follower.DefaultConfig().Navigation.SafeDistanceCM-10)
}
