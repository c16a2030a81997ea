package navigation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/teslashibe/go-follower/internal/config"
)

// LimitPolicy decides which way the chassis turns when the pan servo runs
// out of travel.
type LimitPolicy string

const (
	// LimitToward turns toward the side the servo is pinned to, so the
	// chassis catches up with the camera.
	LimitToward LimitPolicy = "toward"
	// LimitAway turns the other way.
	LimitAway LimitPolicy = "away"
)

// Config holds the navigation thresholds.
type Config struct {
	SafeDistanceCM     float64 `json:"safe_distance_cm"`     // Stop at or below this range
	TargetMinHeight    float64 `json:"target_min_height"`    // Person smaller than this: approach
	TargetMaxHeight    float64 `json:"target_max_height"`    // Person taller than this: retreat
	OffsetToleranceDeg float64 `json:"offset_tolerance_deg"` // Allowed camera angle off center before steering

	TurnTimePerDegree time.Duration `json:"turn_time_per_degree"` // Turn hold per degree off center
	LimitPolicy       LimitPolicy   `json:"limit_policy"`
	MirrorHeading     bool          `json:"mirror_heading"` // Servo mounted mirrored: swap turn sides

	AvoidBackoff time.Duration `json:"avoid_backoff"` // Reverse this long on entering Avoiding (0 = just stop)
	EngageDwell  time.Duration `json:"engage_dwell"`  // A new turn must persist this long
	ReleaseDwell time.Duration `json:"release_dwell"` // Return to neutral must persist this long
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		SafeDistanceCM:     40,
		TargetMinHeight:    0.45,
		TargetMaxHeight:    0.6,
		OffsetToleranceDeg: 10,

		TurnTimePerDegree: 10 * time.Millisecond, // 0.9 s for a full 90°
		LimitPolicy:       LimitToward,

		EngageDwell:  50 * time.Millisecond,
		ReleaseDwell: 50 * time.Millisecond,
	}
}

// CautiousConfig keeps more distance and reacts later.
func CautiousConfig() Config {
	cfg := DefaultConfig()
	cfg.SafeDistanceCM = 60
	cfg.TargetMaxHeight = 0.5
	cfg.TargetMinHeight = 0.35
	cfg.AvoidBackoff = 300 * time.Millisecond
	cfg.EngageDwell = 100 * time.Millisecond
	return cfg
}

// AgileConfig follows closely and corrects heading eagerly.
func AgileConfig() Config {
	cfg := DefaultConfig()
	cfg.SafeDistanceCM = 30
	cfg.OffsetToleranceDeg = 6
	cfg.EngageDwell = 0
	cfg.ReleaseDwell = 30 * time.Millisecond
	return cfg
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.SafeDistanceCM < 0:
		return fmt.Errorf("safe_distance_cm must not be negative, got %v", c.SafeDistanceCM)
	case c.TargetMinHeight <= 0 || c.TargetMaxHeight > 1 || c.TargetMinHeight > c.TargetMaxHeight:
		return fmt.Errorf("target height band must satisfy 0 < min <= max <= 1, got [%v, %v]", c.TargetMinHeight, c.TargetMaxHeight)
	case c.OffsetToleranceDeg < 0 || c.OffsetToleranceDeg >= 90:
		return fmt.Errorf("offset_tolerance_deg must be in [0, 90), got %v", c.OffsetToleranceDeg)
	case c.TurnTimePerDegree < 0:
		return fmt.Errorf("turn_time_per_degree must not be negative, got %v", c.TurnTimePerDegree)
	case c.LimitPolicy != LimitToward && c.LimitPolicy != LimitAway:
		return fmt.Errorf("limit_policy must be %q or %q, got %q", LimitToward, LimitAway, c.LimitPolicy)
	case c.AvoidBackoff < 0 || c.EngageDwell < 0 || c.ReleaseDwell < 0:
		return fmt.Errorf("durations must not be negative")
	}
	return nil
}

// UnmarshalJSON accepts durations as Go duration strings ("50ms") or nanoseconds.
func (c *Config) UnmarshalJSON(data []byte) error {
	type plain Config
	aux := struct {
		*plain
		TurnTimePerDegree config.Duration `json:"turn_time_per_degree"`
		AvoidBackoff      config.Duration `json:"avoid_backoff"`
		EngageDwell       config.Duration `json:"engage_dwell"`
		ReleaseDwell      config.Duration `json:"release_dwell"`
	}{
		plain:             (*plain)(c),
		TurnTimePerDegree: config.Duration(c.TurnTimePerDegree),
		AvoidBackoff:      config.Duration(c.AvoidBackoff),
		EngageDwell:       config.Duration(c.EngageDwell),
		ReleaseDwell:      config.Duration(c.ReleaseDwell),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	c.TurnTimePerDegree = time.Duration(aux.TurnTimePerDegree)
	c.AvoidBackoff = time.Duration(aux.AvoidBackoff)
	c.EngageDwell = time.Duration(aux.EngageDwell)
	c.ReleaseDwell = time.Duration(aux.ReleaseDwell)
	return nil
}
