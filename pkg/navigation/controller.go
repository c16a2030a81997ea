// Package navigation decides, once per control cycle, what the chassis should do.
//
// Rules are evaluated in strict priority order and the first match wins:
// obstacles and short range stop the robot, a missing person stops it,
// otherwise the person's apparent height picks approach, retreat or hold.
// Steering output passes through a Debouncer so the front wheels don't
// chatter between cycles.
package navigation

import (
	"fmt"
	"math"
	"time"

	"github.com/teslashibe/go-follower/pkg/robot"
	"github.com/teslashibe/go-follower/pkg/tracking"
)

// State is the navigation state chosen for a cycle.
type State int

const (
	StateIdle State = iota
	StateAvoiding
	StateSearching
	StateApproaching
	StateRetreating
	StateHolding
)

func (s State) String() string {
	switch s {
	case StateAvoiding:
		return "Avoiding"
	case StateSearching:
		return "Searching"
	case StateApproaching:
		return "Approaching"
	case StateRetreating:
		return "Retreating"
	case StateHolding:
		return "Holding"
	default:
		return "Idle"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(b []byte) error {
	for v := StateIdle; v <= StateHolding; v++ {
		if v.String() == string(b) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", b)
}

// Reasons attached to decisions.
const (
	ReasonObstacle           = "obstacle"
	ReasonUltrasonic         = "ultrasonic"
	ReasonObstacleUltrasonic = "obstacle+ultrasonic"
	ReasonSearching          = "searching"
	ReasonPerceptionDown     = "perception unavailable"
	ReasonTooFar             = "too far"
	ReasonTooClose           = "too close"
	ReasonInRange            = "in range"
)

// PersonObservation is what the camera and pan servo report about the
// followed person this cycle.
type PersonObservation struct {
	Height    float64            `json:"height"`    // Bounding box height / frame height
	Angle     float64            `json:"angle"`     // Pan servo angle, 90 = straight ahead
	Direction tracking.Direction `json:"direction"` // Pan tracker verdict
}

// Input is everything the controller looks at in one cycle.
type Input struct {
	Person         *PersonObservation // nil when nobody is in view
	Obstacle       bool               // Vision saw a large obstacle
	DistanceCM     float64            // Filtered ultrasonic range
	PerceptionDown bool               // The perception source failed this cycle
	Now            time.Time
}

// Decision is the controller's output for one cycle.
type Decision struct {
	State      State          `json:"state"`
	Reason     string         `json:"reason"`
	Motion     robot.Motion   `json:"motion"`
	Steering   robot.Steering `json:"steering"` // What this cycle asked for
	Applied    robot.Steering `json:"applied"`  // What the wheels get after debouncing
	Hold       time.Duration  `json:"hold"`
	DistanceCM float64        `json:"distance_cm"`
	Height     float64        `json:"height,omitempty"`
	Angle      float64        `json:"angle,omitempty"`
	At         time.Time      `json:"at"`
}

// Status is the one-line summary, e.g. "Avoiding: ultrasonic".
func (d Decision) Status() string {
	return fmt.Sprintf("%s: %s", d.State, d.Reason)
}

// Command converts the decision into an actuator command.
func (d Decision) Command() robot.Command {
	hold := time.Duration(0)
	if d.Applied != robot.SteerNeutral {
		hold = d.Hold
	}
	return robot.Command{Motion: d.Motion, Steering: d.Applied, Hold: hold}
}

// Controller carries the only state navigation needs between cycles: the
// steering debounce timers and when Avoiding was entered.
// Not safe for concurrent use; the control loop owns it.
type Controller struct {
	cfg      Config
	debounce *Debouncer

	last        State
	avoidSince  time.Time
	transitions map[State]uint64
}

// NewController creates a controller.
func NewController(cfg Config) *Controller {
	if cfg.LimitPolicy == "" {
		cfg.LimitPolicy = LimitToward
	}
	return &Controller{
		cfg:         cfg,
		debounce:    NewDebouncer(cfg.EngageDwell, cfg.ReleaseDwell),
		transitions: make(map[State]uint64),
	}
}

// Config returns the active configuration.
func (c *Controller) Config() Config {
	return c.cfg
}

// State returns the state chosen on the previous cycle.
func (c *Controller) State() State {
	return c.last
}

// Transitions counts how many times each state has been entered.
func (c *Controller) Transitions() map[State]uint64 {
	out := make(map[State]uint64, len(c.transitions))
	for k, v := range c.transitions {
		out[k] = v
	}
	return out
}

// Reset forgets timers and returns to Idle with neutral steering.
func (c *Controller) Reset() {
	c.debounce.Force(robot.SteerNeutral)
	c.last = StateIdle
	c.avoidSince = time.Time{}
}

// Step evaluates one cycle. It never fails: anything it can't use reads as
// "no person" and the robot stops.
func (c *Controller) Step(in Input) Decision {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	d := Decision{
		DistanceCM: in.DistanceCM,
		At:         now,
	}
	if in.Person != nil {
		d.Height = in.Person.Height
		d.Angle = in.Person.Angle
	}

	rangeBlocked := in.DistanceCM <= c.cfg.SafeDistanceCM
	switch {
	case in.Obstacle || rangeBlocked:
		d.State = StateAvoiding
		switch {
		case in.Obstacle && rangeBlocked:
			d.Reason = ReasonObstacleUltrasonic
		case in.Obstacle:
			d.Reason = ReasonObstacle
		default:
			d.Reason = ReasonUltrasonic
		}
		if c.last != StateAvoiding {
			c.avoidSince = now
		}
		d.Motion = robot.MotionStop
		if c.cfg.AvoidBackoff > 0 && now.Sub(c.avoidSince) < c.cfg.AvoidBackoff {
			d.Motion = robot.MotionBackward
		}

	case in.Person == nil || in.PerceptionDown:
		d.State = StateSearching
		d.Reason = ReasonSearching
		if in.PerceptionDown {
			d.Reason = ReasonPerceptionDown
		}
		d.Motion = robot.MotionStop

	case in.Person.Height < c.cfg.TargetMinHeight:
		d.State = StateApproaching
		d.Reason = ReasonTooFar
		d.Motion = robot.MotionForward
		d.Steering = c.heading(*in.Person, true)

	case in.Person.Height > c.cfg.TargetMaxHeight:
		d.State = StateRetreating
		d.Reason = ReasonTooClose
		d.Motion = robot.MotionBackward

	default:
		d.State = StateHolding
		d.Reason = ReasonInRange
		d.Motion = robot.MotionStop
		d.Steering = c.heading(*in.Person, false)
	}

	if d.State == StateAvoiding {
		// Safety stop releases the wheels at once.
		c.debounce.Force(robot.SteerNeutral)
		d.Applied = robot.SteerNeutral
	} else {
		d.Applied = c.debounce.Update(d.Steering, now)
	}
	if d.Applied != robot.SteerNeutral && in.Person != nil {
		d.Hold = c.turnHold(in.Person.Angle)
	}

	if d.State != c.last {
		c.transitions[d.State]++
	}
	c.last = d.State
	return d
}

// heading picks the steering correction for a visible person. Limit
// handling only applies while approaching.
func (c *Controller) heading(p PersonObservation, allowLimit bool) robot.Steering {
	switch p.Direction {
	case tracking.DirectionCentered:
		offset := p.Angle - tracking.CenterAngle
		if math.Abs(offset) <= c.cfg.OffsetToleranceDeg {
			return robot.SteerNeutral
		}
		if offset < 0 {
			return c.side(robot.SteerLeft)
		}
		return c.side(robot.SteerRight)

	case tracking.DirectionLimitLeft, tracking.DirectionLimitRight:
		if !allowLimit {
			return robot.SteerNeutral
		}
		toward := robot.SteerLeft
		if p.Direction == tracking.DirectionLimitRight {
			toward = robot.SteerRight
		}
		if c.cfg.LimitPolicy == LimitAway {
			toward = opposite(toward)
		}
		return c.side(toward)
	}
	return robot.SteerNeutral
}

// side applies the servo mounting.
func (c *Controller) side(s robot.Steering) robot.Steering {
	if c.cfg.MirrorHeading {
		return opposite(s)
	}
	return s
}

// turnHold scales the turn with how far off center the camera points.
func (c *Controller) turnHold(angle float64) time.Duration {
	deg := math.Abs(angle - tracking.CenterAngle)
	return time.Duration(deg * float64(c.cfg.TurnTimePerDegree))
}

func opposite(s robot.Steering) robot.Steering {
	switch s {
	case robot.SteerLeft:
		return robot.SteerRight
	case robot.SteerRight:
		return robot.SteerLeft
	default:
		return s
	}
}
