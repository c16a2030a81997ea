package navigation

import (
	"encoding/json"
	"time"

	"github.com/teslashibe/go-follower/internal/config"
)

// TuningParams holds the real-time adjustable navigation thresholds.
type TuningParams struct {
	SafeDistanceCM     float64       `json:"safe_distance_cm"`
	TargetMinHeight    float64       `json:"target_min_height"`
	TargetMaxHeight    float64       `json:"target_max_height"`
	OffsetToleranceDeg float64       `json:"offset_tolerance_deg"`
	EngageDwell        time.Duration `json:"engage_dwell"`
	ReleaseDwell       time.Duration `json:"release_dwell"`
	LimitPolicy        LimitPolicy   `json:"limit_policy,omitempty"`
}

// GetTuningParams returns the current thresholds.
func (c *Controller) GetTuningParams() TuningParams {
	return TuningParams{
		SafeDistanceCM:     c.cfg.SafeDistanceCM,
		TargetMinHeight:    c.cfg.TargetMinHeight,
		TargetMaxHeight:    c.cfg.TargetMaxHeight,
		OffsetToleranceDeg: c.cfg.OffsetToleranceDeg,
		EngageDwell:        c.cfg.EngageDwell,
		ReleaseDwell:       c.cfg.ReleaseDwell,
		LimitPolicy:        c.cfg.LimitPolicy,
	}
}

// SetTuningParams updates thresholds at runtime.
// Only non-zero values are applied; a height band that would invert is ignored.
func (c *Controller) SetTuningParams(p TuningParams) {
	if p.SafeDistanceCM > 0 {
		c.cfg.SafeDistanceCM = p.SafeDistanceCM
	}

	lo, hi := c.cfg.TargetMinHeight, c.cfg.TargetMaxHeight
	if p.TargetMinHeight > 0 {
		lo = p.TargetMinHeight
	}
	if p.TargetMaxHeight > 0 {
		hi = p.TargetMaxHeight
	}
	if lo <= hi && hi <= 1 {
		c.cfg.TargetMinHeight, c.cfg.TargetMaxHeight = lo, hi
	}

	if p.OffsetToleranceDeg > 0 && p.OffsetToleranceDeg < 90 {
		c.cfg.OffsetToleranceDeg = p.OffsetToleranceDeg
	}
	if p.EngageDwell > 0 {
		c.cfg.EngageDwell = p.EngageDwell
	}
	if p.ReleaseDwell > 0 {
		c.cfg.ReleaseDwell = p.ReleaseDwell
	}
	if p.LimitPolicy == LimitToward || p.LimitPolicy == LimitAway {
		c.cfg.LimitPolicy = p.LimitPolicy
	}
	c.debounce.SetDwell(c.cfg.EngageDwell, c.cfg.ReleaseDwell)
}

// UnmarshalJSON accepts dwell times as duration strings ("80ms") or nanoseconds.
func (p *TuningParams) UnmarshalJSON(data []byte) error {
	type plain TuningParams
	aux := struct {
		*plain
		EngageDwell  config.Duration `json:"engage_dwell"`
		ReleaseDwell config.Duration `json:"release_dwell"`
	}{
		plain:        (*plain)(p),
		EngageDwell:  config.Duration(p.EngageDwell),
		ReleaseDwell: config.Duration(p.ReleaseDwell),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	p.EngageDwell = time.Duration(aux.EngageDwell)
	p.ReleaseDwell = time.Duration(aux.ReleaseDwell)
	return nil
}
