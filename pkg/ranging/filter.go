// Package ranging turns raw ultrasonic readings into a stable distance estimate.
//
// The Filter keeps a short window of accepted samples and reports its median.
// Readings far from the median are treated as echo artifacts and held off
// until the last good value goes stale, or until the readings since the
// disagreement began have settled on a new level for long enough that the
// scene itself must have changed.
package ranging

import (
	"math"
	"slices"
	"time"

	"github.com/samber/lo"
)

// Outcome describes how the last reading was handled.
type Outcome int

const (
	OutcomeNone           Outcome = iota
	OutcomeAccepted               // Agreed with the median, pushed into the window
	OutcomeHeld                   // Spike rejected, previous value returned
	OutcomeAdmitted               // Sustained disagreement, window reseeded
	OutcomeFallbackMedian         // Nothing fresh, median returned
	OutcomeFallbackRaw            // Nothing fresh and window at max range, raw returned
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeHeld:
		return "held"
	case OutcomeAdmitted:
		return "admitted"
	case OutcomeFallbackMedian:
		return "fallback-median"
	case OutcomeFallbackRaw:
		return "fallback-raw"
	default:
		return "none"
	}
}

// Stats counts how readings have been handled since creation.
type Stats struct {
	Readings  uint64 `json:"readings"`
	Accepted  uint64 `json:"accepted"`
	Rejected  uint64 `json:"rejected"`
	Admitted  uint64 `json:"admitted"`
	Fallbacks uint64 `json:"fallbacks"`
}

// Filter is a median filter with spike rejection. Not safe for concurrent use;
// the control loop owns it.
type Filter struct {
	cfg FilterConfig

	buf  []float64
	next int

	lastGood   float64
	lastGoodAt time.Time
	spikeSince time.Time
	recent     []float64 // readings since spikeSince, newest last
	agreeRun   int

	outcome Outcome
	stats   Stats
	now     func() time.Time
}

// NewFilter creates a filter with its window pre-seeded at max range.
// Invalid fields fall back to the defaults.
func NewFilter(cfg FilterConfig) *Filter {
	def := DefaultFilterConfig()
	if cfg.MaxDistanceCM <= 0 {
		cfg.MaxDistanceCM = def.MaxDistanceCM
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.SpikeThresholdCM <= 0 {
		cfg.SpikeThresholdCM = def.SpikeThresholdCM
	}
	if cfg.StalenessTimeout <= 0 {
		cfg.StalenessTimeout = def.StalenessTimeout
	}

	f := &Filter{
		cfg: cfg,
		buf:    make([]float64, cfg.BufferSize),
		recent: make([]float64, 0, cfg.BufferSize),
		now:    time.Now,
	}
	f.fill(cfg.MaxDistanceCM)
	return f
}

// Config returns the active configuration.
func (f *Filter) Config() FilterConfig {
	return f.cfg
}

// SetSpikeThreshold changes the rejection threshold at runtime.
func (f *Filter) SetSpikeThreshold(cm float64) {
	if cm > 0 {
		f.cfg.SpikeThresholdCM = cm
	}
}

// SetStalenessTimeout changes how long a held value stays usable.
func (f *Filter) SetStalenessTimeout(d time.Duration) {
	if d > 0 {
		f.cfg.StalenessTimeout = d
	}
}

// Ingest feeds one raw reading and returns the filtered distance.
func (f *Filter) Ingest(raw float64) float64 {
	return f.IngestAt(raw, f.now())
}

// IngestAt is Ingest with an explicit timestamp.
func (f *Filter) IngestAt(raw float64, now time.Time) float64 {
	raw = f.sanitize(raw)
	f.stats.Readings++

	med := median(f.buf)
	if math.Abs(raw-med) <= f.cfg.SpikeThresholdCM {
		f.push(raw)
		if !f.spikeSince.IsZero() {
			f.remember(raw)
			f.agreeRun++
			if f.agreeRun >= f.settleRun() {
				f.clearSpike()
			}
		}
		f.accept(median(f.buf), now, OutcomeAccepted)
		f.stats.Accepted++
		return f.lastGood
	}

	if f.spikeSince.IsZero() {
		f.spikeSince = now
	}
	f.agreeRun = 0
	f.remember(raw)

	// The scene changed for real: a wall appeared or the person stepped away.
	if now.Sub(f.spikeSince) > f.cfg.StalenessTimeout {
		if level, ok := f.newLevel(med); ok {
			f.fill(level)
			f.clearSpike()
			f.accept(level, now, OutcomeAdmitted)
			f.stats.Admitted++
			return f.lastGood
		}
	}

	if f.fresh(now) {
		f.outcome = OutcomeHeld
		f.stats.Rejected++
		return f.lastGood
	}

	f.stats.Fallbacks++
	if med < f.cfg.MaxDistanceCM-1 {
		f.accept(med, now, OutcomeFallbackMedian)
	} else {
		f.accept(raw, now, OutcomeFallbackRaw)
	}
	return f.lastGood
}

// Value returns the last accepted distance, or max range if none yet.
func (f *Filter) Value() float64 {
	if f.lastGoodAt.IsZero() {
		return f.cfg.MaxDistanceCM
	}
	return f.lastGood
}

// Age returns how long ago the last value was accepted.
// It is negative if nothing has been accepted yet.
func (f *Filter) Age(now time.Time) time.Duration {
	if f.lastGoodAt.IsZero() {
		return -1
	}
	return now.Sub(f.lastGoodAt)
}

// Median returns the median of the current window.
func (f *Filter) Median() float64 {
	return median(f.buf)
}

// Outcome reports how the most recent reading was handled.
func (f *Filter) Outcome() Outcome {
	return f.outcome
}

// Stats returns a copy of the counters.
func (f *Filter) Stats() Stats {
	return f.stats
}

// Reset clears history and reseeds the window at max range.
func (f *Filter) Reset() {
	f.fill(f.cfg.MaxDistanceCM)
	f.lastGood = 0
	f.lastGoodAt = time.Time{}
	f.clearSpike()
	f.outcome = OutcomeNone
}

// remember keeps the last window's worth of readings since the disagreement began.
func (f *Filter) remember(v float64) {
	if len(f.recent) == len(f.buf) {
		f.recent = append(f.recent[:0], f.recent[1:]...)
	}
	f.recent = append(f.recent, v)
}

// newLevel returns the level the recent readings agree on, if a majority of
// them do and it differs from the window median.
func (f *Filter) newLevel(med float64) (float64, bool) {
	level := median(f.recent)
	if math.Abs(level-med) <= f.cfg.SpikeThresholdCM {
		return 0, false
	}
	n := lo.CountBy(f.recent, func(v float64) bool {
		return math.Abs(v-level) <= f.cfg.SpikeThresholdCM
	})
	return level, n >= 2 && 2*n > len(f.recent)
}

// settleRun is how many agreeing readings in a row end a disagreement.
func (f *Filter) settleRun() int {
	return max(2, len(f.buf)/2)
}

func (f *Filter) clearSpike() {
	f.spikeSince = time.Time{}
	f.recent = f.recent[:0]
	f.agreeRun = 0
}

func (f *Filter) fresh(now time.Time) bool {
	return !f.lastGoodAt.IsZero() && now.Sub(f.lastGoodAt) <= f.cfg.StalenessTimeout
}

func (f *Filter) accept(v float64, now time.Time, o Outcome) {
	f.lastGood = v
	f.lastGoodAt = now
	f.outcome = o
}

func (f *Filter) push(v float64) {
	f.buf[f.next] = v
	f.next = (f.next + 1) % len(f.buf)
}

func (f *Filter) fill(v float64) {
	for i := range f.buf {
		f.buf[i] = v
	}
	f.next = 0
}

// sanitize clamps into [0, max]. NaN reads as "no echo".
func (f *Filter) sanitize(raw float64) float64 {
	if math.IsNaN(raw) || math.IsInf(raw, 1) {
		return f.cfg.MaxDistanceCM
	}
	return clamp(raw, 0, f.cfg.MaxDistanceCM)
}

// median of a window. The windows are a handful of samples, so sorting a copy is fine.
func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// clamp restricts v to the range [min, max].
func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
