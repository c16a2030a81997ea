// Package sim is a kinematic stand-in for the follower hardware. One Scene
// plays the ultrasonic ranger, the detection stream, the motor bridge and
// the pan servo, so the control loop can run end to end without a robot.
//
// World frame: x forward from the robot's start pose, y to the left,
// headings counterclockwise in degrees. The simulated camera delivers a
// horizontally mirrored image, as the robot's camera does: a person on the
// robot's left shows up right of frame center.
package sim

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/teslashibe/go-follower/internal/config"
)

// Point is a position in centimeters.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Norm is the distance from the origin.
func (p Point) Norm() float64 {
	return math.Hypot(p.X, p.Y)
}

// Obstacle is a round object the detector labels and the ranger can hit.
type Obstacle struct {
	Label    string  `json:"label"`
	At       Point   `json:"at"`
	RadiusCM float64 `json:"radius_cm"`
}

// PersonScript places the followed person and walks them through waypoints.
type PersonScript struct {
	Start     Point   `json:"start"`
	SpeedCMS  float64 `json:"speed_cm_s"` // Walking speed between waypoints
	Waypoints []Point `json:"waypoints"`
	Hidden    bool    `json:"hidden"` // Start out of the detector's sight
}

// Config describes the scene and the simulated devices.
type Config struct {
	Seed uint64 `json:"seed"`

	// Chassis
	ForwardSpeedCMS  float64 `json:"forward_speed_cm_s"`
	BackwardSpeedCMS float64 `json:"backward_speed_cm_s"`
	TurnRateDegS     float64 `json:"turn_rate_deg_s"` // Yaw rate with the wheels turned, while moving

	// Camera and detector
	FOVDeg           float64 `json:"fov_deg"`
	HeightAt1M       float64 `json:"height_at_1m"` // Person box height / frame height at 100 cm
	SightRangeCM     float64 `json:"sight_range_cm"`
	WallSightCM      float64 `json:"wall_sight_cm"` // Wall detected by vision inside this range
	DropoutRate      float64 `json:"dropout_rate"`  // Probability a Poll fails
	PersonConfidence float64 `json:"person_confidence"`

	// Ultrasonic ranger
	BeamHalfAngleDeg float64 `json:"beam_half_angle_deg"`
	MaxRangeCM       float64 `json:"max_range_cm"`
	NoiseCM          float64 `json:"noise_cm"`   // Gaussian noise stddev
	SpikeRate        float64 `json:"spike_rate"` // Probability of a random reading

	// Scene
	WallX     float64      `json:"wall_x"` // Wall across the x axis at this distance; 0 means none
	Person    PersonScript `json:"person"`
	Obstacles []Obstacle   `json:"obstacles"`

	Step time.Duration `json:"step"` // Integration step
}

// DefaultConfig returns a quiet room with the person standing 2 m ahead.
func DefaultConfig() Config {
	return Config{
		Seed:             1,
		ForwardSpeedCMS:  30,
		BackwardSpeedCMS: 20,
		TurnRateDegS:     60,

		FOVDeg:           62,
		HeightAt1M:       0.52,
		SightRangeCM:     600,
		WallSightCM:      80,
		PersonConfidence: 0.9,

		BeamHalfAngleDeg: 15,
		MaxRangeCM:       200,

		Person: PersonScript{Start: Point{X: 200}, SpeedCMS: 40},
		Step:   10 * time.Millisecond,
	}
}

// NoisyConfig adds sensor noise, ultrasonic spikes, perception dropouts
// and a person who walks off to the left and back.
func NoisyConfig() Config {
	cfg := DefaultConfig()
	cfg.NoiseCM = 1.5
	cfg.SpikeRate = 0.05
	cfg.DropoutRate = 0.02
	cfg.WallX = 600
	cfg.Person.Waypoints = []Point{{X: 320, Y: 120}, {X: 420, Y: -60}, {X: 300, Y: 0}}
	cfg.Obstacles = []Obstacle{{Label: "chair", At: Point{X: 150, Y: 90}, RadiusCM: 25}}
	return cfg
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.ForwardSpeedCMS <= 0 || c.BackwardSpeedCMS <= 0:
		return fmt.Errorf("drive speeds must be positive")
	case c.TurnRateDegS < 0:
		return fmt.Errorf("turn_rate_deg_s must not be negative, got %v", c.TurnRateDegS)
	case c.FOVDeg <= 0 || c.FOVDeg >= 180:
		return fmt.Errorf("fov_deg must be in (0, 180), got %v", c.FOVDeg)
	case c.HeightAt1M <= 0:
		return fmt.Errorf("height_at_1m must be positive, got %v", c.HeightAt1M)
	case c.MaxRangeCM <= 0:
		return fmt.Errorf("max_range_cm must be positive, got %v", c.MaxRangeCM)
	case c.NoiseCM < 0:
		return fmt.Errorf("noise_cm must not be negative, got %v", c.NoiseCM)
	case c.SpikeRate < 0 || c.SpikeRate > 1 || c.DropoutRate < 0 || c.DropoutRate > 1:
		return fmt.Errorf("rates must be in [0, 1]")
	case c.Step <= 0:
		return fmt.Errorf("step must be positive, got %v", c.Step)
	}
	return nil
}

// UnmarshalJSON accepts the step as a duration string ("10ms") or nanoseconds.
func (c *Config) UnmarshalJSON(data []byte) error {
	type plain Config
	aux := struct {
		*plain
		Step config.Duration `json:"step"`
	}{
		plain: (*plain)(c),
		Step:  config.Duration(c.Step),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	c.Step = time.Duration(aux.Step)
	return nil
}
