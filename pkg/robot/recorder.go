package robot

import (
	"sync"
	"time"
)

// Call is one recorded actuator call.
type Call struct {
	Op       string        `json:"op"`
	Motion   Motion        `json:"motion,omitempty"`
	Steering Steering      `json:"steering,omitempty"`
	Hold     time.Duration `json:"hold,omitempty"`
	Pan      float64       `json:"pan,omitempty"`
}

// Recorder is an in-memory Controller. It keeps the current actuator state
// and a bounded call history, and can be told to fail. Used for dry runs
// and tests.
type Recorder struct {
	mu       sync.Mutex
	motion   Motion
	steering Steering
	hold     time.Duration
	pan      float64
	calls    []Call
	limit    int
	fail     error
}

// NewRecorder creates a recorder keeping at most limit calls (0 = unbounded).
func NewRecorder(limit int) *Recorder {
	return &Recorder{limit: limit}
}

// Drive records a drive command.
func (r *Recorder) Drive(m Motion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.motion = m
	r.record(Call{Op: "drive", Motion: m})
	return nil
}

// Steer records a steering command.
func (r *Recorder) Steer(s Steering, hold time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.steering = s
	r.hold = hold
	r.record(Call{Op: "steer", Steering: s, Hold: hold})
	return nil
}

// SetPan records a pan command.
func (r *Recorder) SetPan(position float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.pan = position
	r.record(Call{Op: "pan", Pan: position})
	return nil
}

// FailWith makes every subsequent call return err. nil restores normal operation.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	r.fail = err
	r.mu.Unlock()
}

// State returns the current actuator state.
func (r *Recorder) State() (Motion, Steering, float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.motion, r.steering, r.pan
}

// Calls returns a copy of the call history.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Reset clears the history.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.calls = nil
	r.mu.Unlock()
}

func (r *Recorder) record(c Call) {
	r.calls = append(r.calls, c)
	if r.limit > 0 && len(r.calls) > r.limit {
		r.calls = r.calls[len(r.calls)-r.limit:]
	}
}
