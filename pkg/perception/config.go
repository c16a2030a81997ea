package perception

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/teslashibe/go-follower/internal/config"
)

// DefaultObstacleLabels are the detector classes treated as obstacles.
var DefaultObstacleLabels = []string{
	"chair", "couch", "bed", "bench", "table", "tv", "potted plant",
	"car", "truck", "bottle", "vase", "wall", "refrigerator", "microwave",
}

// Config holds detection interpretation and transport settings.
type Config struct {
	URL       string `json:"url"`       // ws://, wss://, http:// or https:// detection endpoint
	Transport string `json:"transport"` // "ws" or "http"; inferred from URL when empty

	PersonLabel     string   `json:"person_label"`
	MinConfidence   float64  `json:"min_confidence"`    // Drop detections below this score
	ObstacleLabels  []string `json:"obstacle_labels"`
	MinObstacleArea float64  `json:"min_obstacle_area"` // Normalized box area; 0.03 ≈ 10000 px² at 640x480

	MaxFrameAge time.Duration `json:"max_frame_age"` // Older frames read as "nobody in view"
	PollTimeout time.Duration `json:"poll_timeout"`  // Bound on one Poll call
}

// DefaultConfig returns the defaults for the IMX500 nanodet pipeline.
func DefaultConfig() Config {
	return Config{
		URL:             config.DefaultPerceptionURL,
		PersonLabel:     "person",
		MinConfidence:   0.55,
		ObstacleLabels:  append([]string(nil), DefaultObstacleLabels...),
		MinObstacleArea: 0.03,
		MaxFrameAge:     500 * time.Millisecond,
		PollTimeout:     50 * time.Millisecond,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.PersonLabel == "":
		return fmt.Errorf("person_label must be set")
	case c.MinConfidence < 0 || c.MinConfidence > 1:
		return fmt.Errorf("min_confidence must be in [0, 1], got %v", c.MinConfidence)
	case c.MinObstacleArea < 0 || c.MinObstacleArea > 1:
		return fmt.Errorf("min_obstacle_area must be in [0, 1], got %v", c.MinObstacleArea)
	case c.MaxFrameAge <= 0:
		return fmt.Errorf("max_frame_age must be positive, got %v", c.MaxFrameAge)
	case c.Transport != "" && c.Transport != "ws" && c.Transport != "http":
		return fmt.Errorf("transport must be \"ws\" or \"http\", got %q", c.Transport)
	}
	return nil
}

// UnmarshalJSON accepts durations as strings ("500ms") or nanoseconds.
func (c *Config) UnmarshalJSON(data []byte) error {
	type plain Config
	aux := struct {
		*plain
		MaxFrameAge config.Duration `json:"max_frame_age"`
		PollTimeout config.Duration `json:"poll_timeout"`
	}{
		plain:       (*plain)(c),
		MaxFrameAge: config.Duration(c.MaxFrameAge),
		PollTimeout: config.Duration(c.PollTimeout),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	c.MaxFrameAge = time.Duration(aux.MaxFrameAge)
	c.PollTimeout = time.Duration(aux.PollTimeout)
	return nil
}
