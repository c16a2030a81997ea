package perception

import (
	"math"
	"time"

	"github.com/samber/lo"
)

// Person is the followed person as seen in one frame.
type Person struct {
	Offset     float64   `json:"offset"` // Box center x: 0 left edge, 0.5 center, 1 right edge
	Height     float64   `json:"height"` // Box height / frame height
	Confidence float64   `json:"confidence"`
	Box        Detection `json:"box"`
}

// Frame is one interpreted detection result.
type Frame struct {
	Seq           uint64    `json:"seq"`
	Person        *Person   `json:"person,omitempty"`
	Obstacle      bool      `json:"obstacle"`
	ObstacleLabel string    `json:"obstacle_label,omitempty"`
	Detections    int       `json:"detections"`
	CapturedAt    time.Time `json:"captured_at"` // Camera clock
	ReceivedAt    time.Time `json:"received_at"` // Local clock, used for staleness
}

// Age returns how old the frame is by the local clock.
func (f Frame) Age(now time.Time) time.Duration {
	if f.ReceivedAt.IsZero() {
		return time.Duration(math.MaxInt64)
	}
	return now.Sub(f.ReceivedAt)
}

// Interpret picks the person to follow and the largest obstacle.
func Interpret(dets []Detection, cfg Config) Frame {
	confident := lo.Filter(dets, func(d Detection, _ int) bool {
		return d.Confidence >= cfg.MinConfidence
	})

	f := Frame{Detections: len(dets)}

	people := lo.Filter(confident, func(d Detection, _ int) bool {
		return d.Label == cfg.PersonLabel
	})
	if best := SelectBest(people); best != nil {
		cx, _ := best.Center()
		f.Person = &Person{
			Offset:     clamp01(cx),
			Height:     clamp01(best.H),
			Confidence: best.Confidence,
			Box:        *best,
		}
	}

	obstacles := lo.Filter(confident, func(d Detection, _ int) bool {
		return lo.Contains(cfg.ObstacleLabels, d.Label) && d.Area() > cfg.MinObstacleArea
	})
	if len(obstacles) > 0 {
		largest := lo.MaxBy(obstacles, func(a, b Detection) bool {
			return a.Area() > b.Area()
		})
		f.Obstacle = true
		f.ObstacleLabel = largest.Label
	}
	return f
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
