package follower

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/teslashibe/go-follower/pkg/navigation"
	"github.com/teslashibe/go-follower/pkg/ranging"
	"github.com/teslashibe/go-follower/pkg/robot"
)

// Stats is a point-in-time copy of the loop diagnostics.
type Stats struct {
	Cycles          uint64                      `json:"cycles"`
	Overruns        uint64                      `json:"overruns"`
	DispatchErrors  uint64                      `json:"dispatch_errors"`
	PerceptionDown  uint64                      `json:"perception_down"`
	MeanCycle       time.Duration               `json:"mean_cycle"` // Work time, excluding sleep
	StdDevCycle     time.Duration               `json:"stddev_cycle"`
	MaxCycle        time.Duration               `json:"max_cycle"`
	Filter          ranging.Stats               `json:"filter"`
	Dispatch        robot.DispatchStats         `json:"dispatch"`
	PanCommits      uint64                      `json:"pan_commits"`
	States          map[navigation.State]uint64 `json:"states"`
	LastDecisionAt  time.Time                   `json:"last_decision_at"`
	SafeStopPending bool                        `json:"safe_stop_pending"` // Halting until a dispatch succeeds
}

// CycleStats keeps the work time of the most recent cycles in a ring.
type CycleStats struct {
	mu      sync.Mutex
	samples []float64
	next    int
	full    bool
	max     time.Duration
}

// NewCycleStats creates a window of size cycles.
func NewCycleStats(size int) *CycleStats {
	if size < 1 {
		size = 1
	}
	return &CycleStats{samples: make([]float64, size)}
}

// Add records one cycle's work time.
func (c *CycleStats) Add(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.samples[c.next] = float64(d)
	c.next = (c.next + 1) % len(c.samples)
	if c.next == 0 {
		c.full = true
	}
	if d > c.max {
		c.max = d
	}
}

// Summary returns mean, standard deviation and maximum over the window.
func (c *CycleStats) Summary() (mean, stddev, max time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.next
	if c.full {
		n = len(c.samples)
	}
	switch n {
	case 0:
		return 0, 0, 0
	case 1:
		return time.Duration(c.samples[0]), 0, c.max
	}

	m, s := stat.MeanStdDev(c.samples[:n], nil)
	return time.Duration(m), time.Duration(s), c.max
}

// Len returns how many samples are in the window.
func (c *CycleStats) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return len(c.samples)
	}
	return c.next
}
