package sim

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/teslashibe/go-follower/internal/log"
	"github.com/teslashibe/go-follower/pkg/perception"
	"github.com/teslashibe/go-follower/pkg/ranging"
	"github.com/teslashibe/go-follower/pkg/robot"
	"github.com/teslashibe/go-follower/pkg/tracking"
)

// personRadiusCM is how far in front of the person's center the echo returns.
const personRadiusCM = 10

// Pose is the robot's position and heading.
type Pose struct {
	At         Point   `json:"at"`
	HeadingDeg float64 `json:"heading_deg"` // Counterclockwise from +x
}

// State is a snapshot of the scene.
type State struct {
	At               time.Time      `json:"at"`
	Robot            Pose           `json:"robot"`
	Person           Point          `json:"person"`
	PersonVisible    bool           `json:"person_visible"`
	PersonRangeCM    float64        `json:"person_range_cm"`
	PersonBearingDeg float64        `json:"person_bearing_deg"` // Relative to the chassis, positive left
	CameraYawDeg     float64        `json:"camera_yaw_deg"`     // Relative to the chassis, positive left
	Motion           robot.Motion   `json:"motion"`
	Steering         robot.Steering `json:"steering"`
	Pan              float64        `json:"pan"`
	ClosestCM        float64        `json:"closest_cm"` // Closest approach to the person so far
}

// Scene is the simulated world and every simulated device. Time advances
// lazily: each device call first integrates the kinematics up to now.
// Safe for concurrent use.
type Scene struct {
	cfg    Config
	pcfg   perception.Config
	now    func() time.Time
	logger *slog.Logger

	mu         sync.Mutex
	last       time.Time
	robot      Pose
	person     Point
	waypoint   int
	visible    bool
	motion     robot.Motion
	steering   robot.Steering
	steerUntil time.Time
	pan        float64
	closest    float64
	polls      uint64

	noise      distuv.Normal
	spike      distuv.Bernoulli
	spikeValue distuv.Uniform
	dropout    distuv.Bernoulli
}

var (
	_ robot.Controller  = (*Scene)(nil)
	_ ranging.Sensor    = (*Scene)(nil)
	_ perception.Source = (*Scene)(nil)
)

// New creates a scene. Detections are interpreted with pcfg, exactly as
// frames from the real detector are.
func New(cfg Config, pcfg perception.Config) (*Scene, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("sim: %w", err)
	}
	if err := pcfg.Validate(); err != nil {
		return nil, fmt.Errorf("sim: %w", err)
	}

	src := rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)
	s := &Scene{
		cfg:     cfg,
		pcfg:    pcfg,
		now:     time.Now,
		logger:  log.Component("sim"),
		person:  cfg.Person.Start,
		visible: !cfg.Person.Hidden,
		closest: cfg.Person.Start.Norm(),

		noise:      distuv.Normal{Mu: 0, Sigma: cfg.NoiseCM, Src: src},
		spike:      distuv.Bernoulli{P: cfg.SpikeRate, Src: src},
		spikeValue: distuv.Uniform{Min: 0, Max: cfg.MaxRangeCM, Src: src},
		dropout:    distuv.Bernoulli{P: cfg.DropoutRate, Src: src},
	}
	return s, nil
}

// SetLogger replaces the component logger.
func (s *Scene) SetLogger(l *slog.Logger) {
	if l != nil {
		s.logger = l
	}
}

// SetClock replaces the time source. The scene restarts its integration
// from the new clock's current time.
func (s *Scene) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now != nil {
		s.now = now
		s.last = time.Time{}
	}
}

// SetPersonVisible adds or removes the person from the scene.
func (s *Scene) SetPersonVisible(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance(s.now())
	s.visible = v
}

// MovePerson teleports the person and drops any remaining waypoints.
func (s *Scene) MovePerson(p Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance(s.now())
	s.person = p
	s.waypoint = len(s.cfg.Person.Waypoints)
}

// State returns a snapshot at the current time.
func (s *Scene) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.advance(now)

	rel := s.person.Sub(s.robot.At)
	return State{
		At:               now,
		Robot:            s.robot,
		Person:           s.person,
		PersonVisible:    s.visible,
		PersonRangeCM:    rel.Norm(),
		PersonBearingDeg: s.bearing(s.person),
		CameraYawDeg:     cameraYaw(s.pan),
		Motion:           s.motion,
		Steering:         s.steering,
		Pan:              s.pan,
		ClosestCM:        s.closest,
	}
}

// Drive sets the rear wheel motion.
func (s *Scene) Drive(m robot.Motion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance(s.now())
	s.motion = m
	return nil
}

// Steer turns the front wheels. A non-neutral turn releases after hold.
func (s *Scene) Steer(st robot.Steering, hold time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.advance(now)
	s.steering = st
	s.steerUntil = time.Time{}
	if st != robot.SteerNeutral && hold > 0 {
		s.steerUntil = now.Add(hold)
	}
	return nil
}

// SetPan moves the camera servo. The simulated servo is instantaneous.
func (s *Scene) SetPan(position float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance(s.now())
	s.pan = math.Max(-1, math.Min(1, position))
	return nil
}

// Read returns one ultrasonic reading in centimeters.
func (s *Scene) Read(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance(s.now())

	if s.spike.Rand() == 1 {
		v := s.spikeValue.Rand()
		s.logger.Debug("ultrasonic spike", "cm", v)
		return v, nil
	}
	cm := s.echo()
	if cm >= s.cfg.MaxRangeCM {
		return s.cfg.MaxRangeCM, nil
	}
	return math.Max(0, cm+s.noise.Rand()), nil
}

// Poll returns the detector's view of the scene right now.
func (s *Scene) Poll(ctx context.Context) (perception.Frame, error) {
	if err := ctx.Err(); err != nil {
		return perception.Frame{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.advance(now)

	if s.dropout.Rand() == 1 {
		s.logger.Debug("perception dropout")
		return perception.Frame{}, fmt.Errorf("sim: %w", perception.ErrNotConnected)
	}

	dets := s.detections()
	f := perception.Interpret(dets, s.pcfg)
	s.polls++
	f.Seq = s.polls
	f.CapturedAt = now
	f.ReceivedAt = now
	return f, nil
}

// Detections returns what the detector sees right now, before interpretation.
func (s *Scene) Detections() []perception.Detection {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance(s.now())
	return s.detections()
}

// advance integrates the scene up to now in fixed steps.
func (s *Scene) advance(now time.Time) {
	if s.last.IsZero() {
		s.last = now
		return
	}
	for s.last.Before(now) {
		h := s.cfg.Step
		if rem := now.Sub(s.last); rem < h {
			h = rem
		}
		s.step(s.last, h.Seconds())
		s.last = s.last.Add(h)
	}
}

// step moves the robot and the person by dt seconds starting at t.
func (s *Scene) step(t time.Time, dt float64) {
	if s.steering != robot.SteerNeutral && !s.steerUntil.IsZero() && !t.Before(s.steerUntil) {
		s.steering = robot.SteerNeutral
		s.steerUntil = time.Time{}
	}

	var v float64
	switch s.motion {
	case robot.MotionForward:
		v = s.cfg.ForwardSpeedCMS
	case robot.MotionBackward:
		v = -s.cfg.BackwardSpeedCMS
	}
	if v != 0 {
		yaw := 0.0
		switch s.steering {
		case robot.SteerLeft:
			yaw = s.cfg.TurnRateDegS
		case robot.SteerRight:
			yaw = -s.cfg.TurnRateDegS
		}
		// Reversing with the wheels turned swings the nose the other way.
		if v < 0 {
			yaw = -yaw
		}
		s.robot.HeadingDeg = normalizeDeg(s.robot.HeadingDeg + yaw*dt)
		rad := tracking.Radians(s.robot.HeadingDeg)
		s.robot.At.X += v * math.Cos(rad) * dt
		s.robot.At.Y += v * math.Sin(rad) * dt
	}

	if wps := s.cfg.Person.Waypoints; s.waypoint < len(wps) && s.cfg.Person.SpeedCMS > 0 {
		d := wps[s.waypoint].Sub(s.person)
		stride := s.cfg.Person.SpeedCMS * dt
		if dist := d.Norm(); dist <= stride {
			s.person = wps[s.waypoint]
			s.waypoint++
		} else {
			s.person.X += d.X / dist * stride
			s.person.Y += d.Y / dist * stride
		}
	}

	if s.visible {
		s.closest = math.Min(s.closest, s.person.Sub(s.robot.At).Norm())
	}
}

// echo is the noiseless ultrasonic range: the nearest surface inside the
// beam, or MaxRangeCM when nothing reflects.
func (s *Scene) echo() float64 {
	hits := []float64{s.cfg.MaxRangeCM}

	if s.visible {
		if r, ok := s.inBeam(s.person, personRadiusCM); ok {
			hits = append(hits, r)
		}
	}
	for _, o := range s.cfg.Obstacles {
		if r, ok := s.inBeam(o.At, o.RadiusCM); ok {
			hits = append(hits, r)
		}
	}
	if d, ok := s.wallDistance(); ok {
		hits = append(hits, d)
	}
	return lo.Min(hits)
}

// inBeam reports the range to the surface of a round object if any part of
// it falls inside the ultrasonic cone.
func (s *Scene) inBeam(at Point, radius float64) (float64, bool) {
	dist := at.Sub(s.robot.At).Norm()
	if dist <= radius {
		return 0, true
	}
	halfWidth := tracking.Degrees(math.Asin(radius / dist))
	if math.Abs(s.bearing(at)) > s.cfg.BeamHalfAngleDeg+halfWidth {
		return 0, false
	}
	return dist - radius, true
}

// wallDistance is the range to the wall straight along the heading.
func (s *Scene) wallDistance() (float64, bool) {
	if s.cfg.WallX <= 0 {
		return 0, false
	}
	c := math.Cos(tracking.Radians(s.robot.HeadingDeg))
	if c <= 0.1 {
		return 0, false
	}
	return math.Max(0, (s.cfg.WallX-s.robot.At.X)/c), true
}

// detections renders the camera view as detector output in normalized
// top-left box coordinates.
func (s *Scene) detections() []perception.Detection {
	var dets []perception.Detection
	camYaw := cameraYaw(s.pan)
	half := s.cfg.FOVDeg / 2

	if s.visible {
		rel := s.bearing(s.person) - camYaw
		r := s.person.Sub(s.robot.At).Norm()
		if math.Abs(rel) < half && r > 0 && r <= s.cfg.SightRangeCM {
			h := math.Min(1, s.cfg.HeightAt1M*100/r)
			w := h * 0.4
			dets = append(dets, perception.Detection{
				Label:      s.pcfg.PersonLabel,
				Confidence: s.cfg.PersonConfidence,
				X:          s.imageX(rel) - w/2,
				Y:          math.Max(0, 0.5-h/2),
				W:          w,
				H:          h,
			})
		}
	}

	for _, o := range s.cfg.Obstacles {
		rel := s.bearing(o.At) - camYaw
		dist := o.At.Sub(s.robot.At).Norm()
		if math.Abs(rel) >= half || dist <= o.RadiusCM || dist > s.cfg.SightRangeCM {
			continue
		}
		w := math.Min(1, 2*tracking.Degrees(math.Atan(o.RadiusCM/dist))/s.cfg.FOVDeg)
		dets = append(dets, perception.Detection{
			Label:      o.Label,
			Confidence: 0.8,
			X:          s.imageX(rel) - w/2,
			Y:          math.Max(0, 0.6-w/2),
			W:          w,
			H:          w,
		})
	}

	if d, ok := s.wallDistance(); ok && d < s.cfg.WallSightCM {
		dets = append(dets, perception.Detection{
			Label: "wall", Confidence: 0.8, X: 0, Y: 0.2, W: 1, H: 0.6,
		})
	}
	return dets
}

// imageX maps a bearing relative to the camera axis to a mirrored image
// column: positive (left) bearings land right of center.
func (s *Scene) imageX(relDeg float64) float64 {
	return 0.5 + relDeg/s.cfg.FOVDeg
}

// bearing is the direction to p relative to the chassis heading.
func (s *Scene) bearing(p Point) float64 {
	d := p.Sub(s.robot.At)
	if d.X == 0 && d.Y == 0 {
		return 0
	}
	return normalizeDeg(tracking.Degrees(math.Atan2(d.Y, d.X)) - s.robot.HeadingDeg)
}

// cameraYaw converts a servo position to the camera direction relative to
// the chassis: position -1 looks 90° left, +1 looks 90° right.
func cameraYaw(pan float64) float64 {
	return -pan * (tracking.MaxAngle - tracking.CenterAngle)
}

// normalizeDeg wraps an angle into (-180, 180].
func normalizeDeg(a float64) float64 {
	a = math.Mod(a, 360)
	if a > 180 {
		a -= 360
	} else if a <= -180 {
		a += 360
	}
	return a
}
