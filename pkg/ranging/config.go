package ranging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/teslashibe/go-follower/internal/config"
)

// FilterConfig holds the tunable parameters of the distance filter.
type FilterConfig struct {
	MaxDistanceCM    float64       `json:"max_distance_cm"`    // Sensor ceiling, also the "no echo" value
	BufferSize       int           `json:"buffer_size"`        // Median window length
	SpikeThresholdCM float64       `json:"spike_threshold_cm"` // Max deviation from the median to accept
	StalenessTimeout time.Duration `json:"staleness_timeout"`  // How long a held value stays usable
}

// DefaultFilterConfig returns the settings tuned for the HC-SR04 style ranger.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		MaxDistanceCM:    200,
		BufferSize:       7,
		SpikeThresholdCM: 40,
		StalenessTimeout: time.Second,
	}
}

// Validate reports the first invalid field.
func (c FilterConfig) Validate() error {
	switch {
	case c.MaxDistanceCM <= 0:
		return fmt.Errorf("max_distance_cm must be positive, got %v", c.MaxDistanceCM)
	case c.BufferSize < 1:
		return fmt.Errorf("buffer_size must be at least 1, got %d", c.BufferSize)
	case c.SpikeThresholdCM <= 0:
		return fmt.Errorf("spike_threshold_cm must be positive, got %v", c.SpikeThresholdCM)
	case c.StalenessTimeout <= 0:
		return fmt.Errorf("staleness_timeout must be positive, got %v", c.StalenessTimeout)
	}
	return nil
}

// UnmarshalJSON accepts the staleness timeout as a duration string ("1s") or nanoseconds.
func (c *FilterConfig) UnmarshalJSON(data []byte) error {
	type plain FilterConfig
	aux := struct {
		*plain
		StalenessTimeout config.Duration `json:"staleness_timeout"`
	}{
		plain:            (*plain)(c),
		StalenessTimeout: config.Duration(c.StalenessTimeout),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	c.StalenessTimeout = time.Duration(aux.StalenessTimeout)
	return nil
}
