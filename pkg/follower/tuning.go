package follower

import (
	"encoding/json"
	"time"

	"github.com/teslashibe/go-follower/internal/config"
	"github.com/teslashibe/go-follower/pkg/navigation"
	"github.com/teslashibe/go-follower/pkg/tracking"
)

// FilterTuning holds the adjustable range filter parameters.
type FilterTuning struct {
	SpikeThresholdCM float64       `json:"spike_threshold_cm"`
	StalenessTimeout time.Duration `json:"staleness_timeout"`
}

// UnmarshalJSON accepts the timeout as a string ("1s") or nanoseconds.
func (f *FilterTuning) UnmarshalJSON(data []byte) error {
	type plain FilterTuning
	aux := struct {
		*plain
		StalenessTimeout config.Duration `json:"staleness_timeout"`
	}{
		plain:            (*plain)(f),
		StalenessTimeout: config.Duration(f.StalenessTimeout),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	f.StalenessTimeout = time.Duration(aux.StalenessTimeout)
	return nil
}

// TuningParams holds every parameter that can change while the loop runs.
// Only non-zero values are applied.
type TuningParams struct {
	Navigation navigation.TuningParams `json:"navigation"`
	Pan        tracking.TuningParams   `json:"pan"`
	Filter     FilterTuning            `json:"filter"`
}

// Tuning returns the parameters in effect. Safe to call from any goroutine.
func (l *Loop) Tuning() TuningParams {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tuning
}

// SetTuning queues p for the start of the next cycle, replacing any
// update still pending. Safe to call from any goroutine.
func (l *Loop) SetTuning(p TuningParams) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = &p
}

func (l *Loop) applyPendingTuning() {
	l.mu.Lock()
	p := l.pending
	l.pending = nil
	l.mu.Unlock()

	if p == nil {
		return
	}

	nav := p.Navigation
	if maxCM := l.filter.Config().MaxDistanceCM; nav.SafeDistanceCM >= maxCM {
		l.logger.Warn("tuning rejected: safe distance at or beyond sensor range",
			"safe_distance_cm", nav.SafeDistanceCM,
			"max_distance_cm", maxCM)
		nav.SafeDistanceCM = 0
	}
	l.nav.SetTuningParams(nav)
	l.pan.SetTuningParams(p.Pan)
	if p.Filter.SpikeThresholdCM > 0 {
		l.filter.SetSpikeThreshold(p.Filter.SpikeThresholdCM)
	}
	if p.Filter.StalenessTimeout > 0 {
		l.filter.SetStalenessTimeout(p.Filter.StalenessTimeout)
	}

	current := l.readTuning()
	l.mu.Lock()
	l.tuning = current
	l.mu.Unlock()

	l.logger.Info("tuning updated",
		"safe_distance_cm", current.Navigation.SafeDistanceCM,
		"height_band", []float64{current.Navigation.TargetMinHeight, current.Navigation.TargetMaxHeight},
		"deadband", current.Pan.Deadband,
		"step", current.Pan.Step,
		"spike_threshold_cm", current.Filter.SpikeThresholdCM)
}

func (l *Loop) readTuning() TuningParams {
	fc := l.filter.Config()
	return TuningParams{
		Navigation: l.nav.GetTuningParams(),
		Pan:        l.pan.GetTuningParams(),
		Filter: FilterTuning{
			SpikeThresholdCM: fc.SpikeThresholdCM,
			StalenessTimeout: fc.StalenessTimeout,
		},
	}
}
