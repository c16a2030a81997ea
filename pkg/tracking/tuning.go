package tracking

// TuningParams holds the real-time adjustable pan parameters.
// These can be modified via the tuning API without restarting the follower.
type TuningParams struct {
	Deadband        float64 `json:"deadband"`         // Centered band half-width (0-0.5)
	Step            float64 `json:"step"`             // Position change per cycle
	ChangeThreshold float64 `json:"change_threshold"` // Minimum committed change
}

// GetTuningParams returns current tuning parameters from the tracker.
func (t *PanTracker) GetTuningParams() TuningParams {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return TuningParams{
		Deadband:        t.cfg.Deadband,
		Step:            t.cfg.Step,
		ChangeThreshold: t.cfg.ChangeThreshold,
	}
}

// SetTuningParams updates tuning parameters at runtime.
// Only non-zero values are applied; a change threshold that would reach the
// step is ignored together with the step.
func (t *PanTracker) SetTuningParams(params TuningParams) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if params.Deadband > 0 {
		t.cfg.Deadband = clamp(params.Deadband, 0, 0.49)
	}

	step, threshold := t.cfg.Step, t.cfg.ChangeThreshold
	if params.Step > 0 {
		step = clamp(params.Step, 0.001, 1)
	}
	if params.ChangeThreshold > 0 {
		threshold = clamp(params.ChangeThreshold, 0, 0.5)
	}
	if threshold < step {
		t.cfg.Step, t.cfg.ChangeThreshold = step, threshold
	}
}
