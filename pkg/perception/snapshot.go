package perception

import (
	"sync/atomic"
	"time"
)

// Snapshot hands the latest frame from a producer goroutine to the control
// loop. Publish and Load never block each other.
type Snapshot struct {
	frame     atomic.Pointer[Frame]
	published atomic.Uint64
}

// Publish replaces the current frame. Seq is assigned here.
func (s *Snapshot) Publish(f Frame) {
	f.Seq = s.published.Add(1)
	if f.ReceivedAt.IsZero() {
		f.ReceivedAt = time.Now()
	}
	s.frame.Store(&f)
}

// Load returns the latest frame, if any has been published.
func (s *Snapshot) Load() (Frame, bool) {
	p := s.frame.Load()
	if p == nil {
		return Frame{}, false
	}
	return *p, true
}

// Fresh returns the latest frame if it is no older than maxAge.
func (s *Snapshot) Fresh(now time.Time, maxAge time.Duration) (Frame, bool) {
	f, ok := s.Load()
	if !ok || f.Age(now) > maxAge {
		return Frame{}, false
	}
	return f, true
}

// Published returns how many frames have been published.
func (s *Snapshot) Published() uint64 {
	return s.published.Load()
}
