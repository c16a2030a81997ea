package tracking

import "fmt"

// PanConfig holds all tunable parameters for pan tracking
type PanConfig struct {
	Deadband        float64 `json:"deadband"`         // Offset band around 0.5 treated as centered
	Step            float64 `json:"step"`             // Position change per cycle while off-center
	ChangeThreshold float64 `json:"change_threshold"` // Skip commits smaller than this
	MinPosition     float64 `json:"min_position"`     // Full left
	MaxPosition     float64 `json:"max_position"`     // Full right
}

// DefaultPanConfig returns the recommended configuration
func DefaultPanConfig() PanConfig {
	return PanConfig{
		Deadband:        0.07, // ±7% of frame width
		Step:            0.05, // 4.5° per cycle
		ChangeThreshold: 0.01, // ignore sub-degree jitter
		MinPosition:     -1,
		MaxPosition:     1,
	}
}

// SmoothPanConfig returns a configuration for slower, calmer panning
func SmoothPanConfig() PanConfig {
	cfg := DefaultPanConfig()
	cfg.Deadband = 0.10
	cfg.Step = 0.03
	return cfg
}

// AggressivePanConfig returns a configuration for fast target reacquisition
func AggressivePanConfig() PanConfig {
	cfg := DefaultPanConfig()
	cfg.Deadband = 0.05
	cfg.Step = 0.08
	return cfg
}

// Validate reports the first invalid field.
func (c PanConfig) Validate() error {
	switch {
	case c.Deadband < 0 || c.Deadband >= 0.5:
		return fmt.Errorf("deadband must be in [0, 0.5), got %v", c.Deadband)
	case c.Step <= 0:
		return fmt.Errorf("step must be positive, got %v", c.Step)
	case c.ChangeThreshold < 0:
		return fmt.Errorf("change_threshold must not be negative, got %v", c.ChangeThreshold)
	case c.ChangeThreshold >= c.Step:
		return fmt.Errorf("change_threshold must be below step %v, got %v", c.Step, c.ChangeThreshold)
	case c.MinPosition < -1 || c.MaxPosition > 1 || c.MinPosition >= c.MaxPosition:
		return fmt.Errorf("position bounds must satisfy -1 <= min < max <= 1, got [%v, %v]", c.MinPosition, c.MaxPosition)
	}
	return nil
}
