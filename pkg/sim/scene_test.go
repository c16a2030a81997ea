package sim

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"github.com/teslashibe/go-follower/internal/log"
	"github.com/teslashibe/go-follower/pkg/perception"
	"github.com/teslashibe/go-follower/pkg/robot"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func (c *testClock) sleep(ctx context.Context, d time.Duration) error {
	c.advance(d)
	return ctx.Err()
}

func newScene(t *testing.T, cfg Config) (*Scene, *testClock) {
	t.Helper()
	s, err := New(cfg, perception.DefaultConfig())
	require.NoError(t, err)
	clk := newTestClock()
	s.SetClock(clk.now)
	s.SetLogger(log.Discard())
	return s, clk
}

func TestScene_Kinematics(t *testing.T) {
	s, clk := newScene(t, DefaultConfig())

	require.NoError(t, s.Drive(robot.MotionForward))
	clk.advance(time.Second)
	st := s.State()
	assert.InDelta(t, 30.0, st.Robot.At.X, 1e-6)
	assert.InDelta(t, 0.0, st.Robot.HeadingDeg, 1e-9)

	require.NoError(t, s.Steer(robot.SteerLeft, 500*time.Millisecond))
	clk.advance(time.Second)
	st = s.State()
	assert.InDelta(t, 30.0, st.Robot.HeadingDeg, 1e-6)
	assert.Equal(t, robot.SteerNeutral, st.Steering, "held turn releases")
	assert.Greater(t, st.Robot.At.Y, 0.0)

	require.NoError(t, s.Drive(robot.MotionStop))
	require.NoError(t, s.Steer(robot.SteerRight, 0))
	clk.advance(time.Second)
	st = s.State()
	assert.InDelta(t, 30.0, st.Robot.HeadingDeg, 1e-6, "no yaw while stopped")
	assert.Equal(t, robot.SteerRight, st.Steering, "zero hold keeps the turn")

	require.NoError(t, s.Drive(robot.MotionBackward))
	clk.advance(500 * time.Millisecond)
	st = s.State()
	assert.InDelta(t, 60.0, st.Robot.HeadingDeg, 1e-6, "reversing right swings the nose left")
}

func TestScene_RangerSeesPersonAhead(t *testing.T) {
	s, _ := newScene(t, DefaultConfig())

	cm, err := s.Read(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 190.0, cm, 1e-9)

	s.MovePerson(Point{X: 100})
	cm, err = s.Read(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 90.0, cm, 1e-9)

	s.MovePerson(Point{X: 0, Y: 100})
	cm, err = s.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 200.0, cm, "outside the beam reads as no echo")

	s.MovePerson(Point{X: 100})
	s.SetPersonVisible(false)
	cm, err = s.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 200.0, cm)
}

func TestScene_PollPerson(t *testing.T) {
	s, _ := newScene(t, DefaultConfig())

	f, err := s.Poll(context.Background())
	require.NoError(t, err)
	require.NotNil(t, f.Person)
	assert.InDelta(t, 0.5, f.Person.Offset, 1e-9)
	assert.InDelta(t, 0.26, f.Person.Height, 1e-9)
	assert.False(t, f.Obstacle)
	assert.Equal(t, uint64(1), f.Seq)
	assert.False(t, f.ReceivedAt.IsZero())

	// 20° to the robot's left lands right of center in the mirrored image.
	y := 100 * math.Tan(20*math.Pi/180)
	s.MovePerson(Point{X: 100, Y: y})
	f, err = s.Poll(context.Background())
	require.NoError(t, err)
	require.NotNil(t, f.Person)
	assert.InDelta(t, 0.5+20.0/62, f.Person.Offset, 1e-9)
	assert.InDelta(t, 0.52*100/math.Hypot(100, y), f.Person.Height, 1e-9)

	s.MovePerson(Point{X: 0, Y: 100})
	f, err = s.Poll(context.Background())
	require.NoError(t, err)
	assert.Nil(t, f.Person, "outside the field of view")

	// Position -1 points the camera 90° left.
	require.NoError(t, s.SetPan(-1))
	f, err = s.Poll(context.Background())
	require.NoError(t, err)
	require.NotNil(t, f.Person)
	assert.InDelta(t, 0.5, f.Person.Offset, 1e-9)

	s.SetPersonVisible(false)
	f, err = s.Poll(context.Background())
	require.NoError(t, err)
	assert.Nil(t, f.Person)
}

func TestScene_Obstacles(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Person.Hidden = true
	cfg.Obstacles = []Obstacle{{Label: "chair", At: Point{X: 100}, RadiusCM: 20}}
	s, _ := newScene(t, cfg)

	f, err := s.Poll(context.Background())
	require.NoError(t, err)
	assert.True(t, f.Obstacle)
	assert.Equal(t, "chair", f.ObstacleLabel)
	assert.Nil(t, f.Person)

	cm, err := s.Read(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 80.0, cm, 1e-9)
}

func TestScene_Wall(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Person.Hidden = true
	cfg.WallX = 70
	s, _ := newScene(t, cfg)

	cm, err := s.Read(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 70.0, cm, 1e-9)

	f, err := s.Poll(context.Background())
	require.NoError(t, err)
	assert.True(t, f.Obstacle)
	assert.Equal(t, "wall", f.ObstacleLabel)
}

func TestScene_PersonWalksWaypoints(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Person.Waypoints = []Point{{X: 200, Y: 40}, {X: 240, Y: 40}}
	s, clk := newScene(t, cfg)

	s.State()
	clk.advance(time.Second)
	assert.InDelta(t, 40.0, s.State().Person.Y, 1e-6)
	assert.InDelta(t, 200.0, s.State().Person.X, 1e-6)

	clk.advance(2 * time.Second)
	assert.Equal(t, Point{X: 240, Y: 40}, s.State().Person)
}

func TestScene_Noise(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NoiseCM = 2
	cfg.Person.Start = Point{X: 100}
	s, _ := newScene(t, cfg)

	readings := make([]float64, 200)
	for i := range readings {
		cm, err := s.Read(context.Background())
		require.NoError(t, err)
		readings[i] = cm
	}
	mean, std := stat.MeanStdDev(readings, nil)
	assert.InDelta(t, 90.0, mean, 1.0)
	assert.InDelta(t, 2.0, std, 0.6)
}

func TestScene_SpikesAndDropouts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SpikeRate = 1
	cfg.DropoutRate = 1
	s, _ := newScene(t, cfg)

	for i := 0; i < 20; i++ {
		cm, err := s.Read(context.Background())
		require.NoError(t, err)
		assert.GreaterOrEqual(t, cm, 0.0)
		assert.LessOrEqual(t, cm, 200.0)
	}

	_, err := s.Poll(context.Background())
	assert.ErrorIs(t, err, perception.ErrNotConnected)
}

func TestScene_SeedIsDeterministic(t *testing.T) {
	a, _ := newScene(t, NoisyConfig())
	b, _ := newScene(t, NoisyConfig())

	for i := 0; i < 50; i++ {
		ra, _ := a.Read(context.Background())
		rb, _ := b.Read(context.Background())
		require.Equal(t, ra, rb, "reading %d", i)
	}
}

func TestScene_CanceledContext(t *testing.T) {
	s, _ := newScene(t, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Read(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = s.Poll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	require.NoError(t, NoisyConfig().Validate())

	bad := DefaultConfig()
	bad.FOVDeg = 0
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.SpikeRate = 1.5
	assert.Error(t, bad.Validate())

	_, err := New(bad, perception.DefaultConfig())
	assert.Error(t, err)
}
