package follower

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-follower/internal/log"
	"github.com/teslashibe/go-follower/pkg/navigation"
	"github.com/teslashibe/go-follower/pkg/perception"
	"github.com/teslashibe/go-follower/pkg/ranging"
	"github.com/teslashibe/go-follower/pkg/robot"
	"github.com/teslashibe/go-follower/pkg/tracking"
)

var (
	// ErrMissingDevice is returned by NewLoop when a dependency is nil.
	ErrMissingDevice = errors.New("follower: missing device")

	// ErrPanic is returned by Run when a cycle panicked.
	ErrPanic = errors.New("follower: cycle panicked")
)

// Devices are the capabilities the loop drives.
type Devices struct {
	Source  perception.Source
	Sensor  ranging.Sensor
	Chassis robot.Chassis
	Pan     robot.PanController
}

// Report describes one completed cycle.
type Report struct {
	RunID         string              `json:"run_id"`
	Cycle         uint64              `json:"cycle"`
	Decision      navigation.Decision `json:"decision"`
	Status        string              `json:"status"`
	Frame         perception.Frame    `json:"frame"`
	RawDistanceCM float64             `json:"raw_distance_cm"`
	FilterOutcome string              `json:"filter_outcome"`
	PanPosition   float64             `json:"pan_position"`
	PanAngle      float64             `json:"pan_angle"`
	PanDirection  tracking.Direction  `json:"pan_direction"`
	Work          time.Duration       `json:"work"`
	Overrun       bool                `json:"overrun"`
	DispatchErr   string              `json:"dispatch_error,omitempty"`
}

// Observer receives every cycle report on the loop goroutine. It must not block.
type Observer func(Report)

// Option configures a Loop.
type Option func(*Loop)

// WithClock replaces the time source and the between-cycle sleep.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(l *Loop) {
		if now != nil {
			l.now = now
		}
		if sleep != nil {
			l.sleep = sleep
		}
	}
}

// WithLogger replaces the component logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithObserver adds a cycle observer.
func WithObserver(obs Observer) Option {
	return func(l *Loop) {
		l.Observe(obs)
	}
}

// WithRunID sets the run identifier instead of generating one.
func WithRunID(id string) Option {
	return func(l *Loop) {
		if id != "" {
			l.runID = id
		}
	}
}

// Loop owns the filter, the pan tracker and the navigation controller and
// runs them once per control period.
type Loop struct {
	cfg    Config
	logger *slog.Logger
	runID  string

	source     perception.Source
	sensor     ranging.Sensor
	filter     *ranging.Filter
	pan        *tracking.PanTracker
	nav        *navigation.Controller
	dispatcher *robot.Dispatcher

	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
	observers []Observer

	// Loop goroutine only
	cycle          uint64
	safeStop       bool
	perceptionDown bool

	cycleStats *CycleStats

	mu       sync.Mutex
	pending  *TuningParams
	tuning   TuningParams
	last     Report
	counters Stats
}

// NewLoop wires the devices into a loop. The configuration is validated first.
func NewLoop(cfg Config, dev Devices, opts ...Option) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch {
	case dev.Source == nil:
		return nil, fmt.Errorf("%w: perception source", ErrMissingDevice)
	case dev.Sensor == nil:
		return nil, fmt.Errorf("%w: range sensor", ErrMissingDevice)
	case dev.Chassis == nil:
		return nil, fmt.Errorf("%w: chassis", ErrMissingDevice)
	case dev.Pan == nil:
		return nil, fmt.Errorf("%w: pan servo", ErrMissingDevice)
	}

	l := &Loop{
		cfg:        cfg,
		logger:     log.Component("follower"),
		runID:      uuid.NewString(),
		source:     dev.Source,
		sensor:     dev.Sensor,
		filter:     ranging.NewFilter(cfg.Filter),
		pan:        tracking.NewPanTracker(cfg.Pan, dev.Pan),
		nav:        navigation.NewController(cfg.Navigation),
		dispatcher: robot.NewDispatcher(dev.Chassis),
		now:        time.Now,
		sleep:      sleepContext,
		cycleStats: NewCycleStats(cfg.Loop.StatsWindow),
	}
	for _, opt := range opts {
		opt(l)
	}

	l.dispatcher.SetClock(l.now)
	l.dispatcher.SetLogger(l.logger)
	l.pan.SetLogger(l.logger)
	l.tuning = l.readTuning()
	return l, nil
}

// Observe adds a cycle observer. Observers are called from the loop
// goroutine; add them before Run.
func (l *Loop) Observe(obs Observer) {
	if obs != nil {
		l.observers = append(l.observers, obs)
	}
}

// RunID identifies this loop instance in logs and the decision log.
func (l *Loop) RunID() string {
	return l.runID
}

// Config returns the configuration the loop was built with.
func (l *Loop) Config() Config {
	return l.cfg
}

// Run executes cycles until ctx is cancelled. On every exit path, including
// a panic inside a cycle, the chassis is halted and the pan servo recentred.
func (l *Loop) Run(ctx context.Context) (err error) {
	l.logger.Info("follower started",
		"run_id", l.runID,
		"period", l.cfg.Loop.ControlPeriod,
		"safe_distance_cm", l.cfg.Navigation.SafeDistanceCM)

	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("cycle panicked", "panic", r, "cycle", l.cycle)
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
		l.shutdown()
	}()

	period := l.cfg.Loop.ControlPeriod
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		report, cycleErr := l.Cycle(ctx)
		if cycleErr != nil {
			l.logger.Warn("cycle dispatch failed",
				"cycle", report.Cycle,
				"status", report.Status,
				"error", cycleErr)
		}

		if report.Overrun {
			l.logger.Warn("control cycle overran",
				"cycle", report.Cycle,
				"work", report.Work,
				"period", period)
			continue
		}
		if err := l.sleep(ctx, period-report.Work); err != nil {
			return err
		}
	}
}

// Cycle runs one perceive, decide, act step. The returned error is the
// dispatch failure, if any; everything else degrades into the decision.
func (l *Loop) Cycle(ctx context.Context) (Report, error) {
	start := l.now()
	l.applyPendingTuning()
	l.cycle++

	frame, perceptionDown := l.perceive(ctx, start)

	raw := ranging.Sample(ctx, l.sensor, l.cfg.Loop.SensorTimeout, l.cfg.Filter.MaxDistanceCM, l.logger)
	distance := l.filter.IngestAt(raw, start)

	var person *navigation.PersonObservation
	if frame.Person != nil {
		angle, dir := l.pan.Update(frame.Person.Offset)
		person = &navigation.PersonObservation{
			Height:    frame.Person.Height,
			Angle:     angle,
			Direction: dir,
		}
	}

	decision := l.nav.Step(navigation.Input{
		Person:         person,
		Obstacle:       frame.Obstacle,
		DistanceCM:     distance,
		PerceptionDown: perceptionDown,
		Now:            start,
	})

	dispatchErr := l.dispatch(decision)

	report := Report{
		RunID:         l.runID,
		Cycle:         l.cycle,
		Decision:      decision,
		Status:        decision.Status(),
		Frame:         frame,
		RawDistanceCM: raw,
		FilterOutcome: l.filter.Outcome().String(),
		PanPosition:   l.pan.Position(),
		PanAngle:      l.pan.Angle(),
		PanDirection:  l.pan.Direction(),
	}
	if dispatchErr != nil {
		report.DispatchErr = dispatchErr.Error()
	}

	report.Work = l.now().Sub(start)
	report.Overrun = report.Work > l.cfg.Loop.ControlPeriod
	l.cycleStats.Add(report.Work)
	l.record(report, perceptionDown, dispatchErr != nil)

	l.logger.Debug("cycle",
		"cycle", report.Cycle,
		"status", report.Status,
		"motion", decision.Motion,
		"steering", decision.Applied,
		"distance_cm", distance,
		"raw_cm", raw,
		"pan_angle", report.PanAngle)

	for _, obs := range l.observers {
		obs(report)
	}
	return report, dispatchErr
}

// perceive polls the source with a deadline. Stale frames read as empty.
func (l *Loop) perceive(ctx context.Context, now time.Time) (perception.Frame, bool) {
	pctx, cancel := context.WithTimeout(ctx, l.cfg.Loop.PerceptionTimeout)
	defer cancel()

	frame, err := l.source.Poll(pctx)
	if err != nil {
		if !l.perceptionDown {
			l.logger.Warn("perception unavailable", "error", err)
		}
		l.perceptionDown = true
		return perception.Frame{}, true
	}
	if l.perceptionDown {
		l.logger.Info("perception recovered")
		l.perceptionDown = false
	}

	if !frame.ReceivedAt.IsZero() && frame.Age(now) > l.cfg.Perception.MaxFrameAge {
		return perception.Frame{Seq: frame.Seq, ReceivedAt: frame.ReceivedAt}, false
	}
	return frame, false
}

// dispatch sends the decision, or a halt while a previous dispatch failure
// has not been cleared by a successful write.
func (l *Loop) dispatch(d navigation.Decision) error {
	if l.safeStop {
		if err := l.dispatcher.Halt(); err != nil {
			return err
		}
		l.safeStop = false
		l.logger.Info("chassis responding again, resuming")
		return nil
	}

	err := l.dispatcher.Apply(d.Command())
	if err == nil {
		return nil
	}

	l.safeStop = true
	if herr := l.dispatcher.Halt(); herr == nil {
		l.safeStop = false
	}
	return err
}

func (l *Loop) record(r Report, perceptionDown, dispatchFailed bool) {
	filterStats := l.filter.Stats()
	states := l.nav.Transitions()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.last = r
	l.counters.Cycles++
	if r.Overrun {
		l.counters.Overruns++
	}
	if perceptionDown {
		l.counters.PerceptionDown++
	}
	if dispatchFailed {
		l.counters.DispatchErrors++
	}
	l.counters.Filter = filterStats
	l.counters.States = states
	l.counters.LastDecisionAt = r.Decision.At
	l.counters.SafeStopPending = l.safeStop
}

// Last returns the most recent cycle report.
func (l *Loop) Last() (Report, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last, l.counters.Cycles > 0
}

// Stats returns the loop diagnostics. Safe to call from any goroutine.
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	s := l.counters
	s.States = maps.Clone(l.counters.States)
	l.mu.Unlock()

	s.MeanCycle, s.StdDevCycle, s.MaxCycle = l.cycleStats.Summary()
	s.Dispatch = l.dispatcher.Stats()
	s.PanCommits = l.pan.Commits()
	return s
}

// shutdown leaves the robot safe: stopped, wheels straight, camera forward.
func (l *Loop) shutdown() {
	if err := l.dispatcher.Halt(); err != nil {
		l.logger.Error("final halt failed, retrying", "error", err)
		if err := l.dispatcher.Halt(); err != nil {
			l.logger.Error("final halt failed", "error", err)
		}
	}
	if err := l.pan.Center(); err != nil {
		l.logger.Warn("failed to recenter pan", "error", err)
	}
	l.logger.Info("follower stopped", "run_id", l.runID, "cycles", l.cycle)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
