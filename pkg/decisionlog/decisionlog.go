// Package decisionlog appends one human-readable line per navigation
// decision to a file, for reviewing a run after the fact:
//
//	2026-03-01T12:00:00.100Z run=3f9c.. #12 Approaching: too far | forward neutral | 87.4cm h=0.31 pan=90.0°
package decisionlog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-follower/pkg/follower"
)

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// Writer appends decision lines. Safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	w      *bufio.Writer
	closer io.Closer
	runID  string

	// ChangesOnly skips cycles whose status, motion and steering match the
	// previous line.
	ChangesOnly bool

	lastKey string
	lines   uint64
	skipped uint64
	err     error
}

// Open appends to path, creating it and its directory if needed. An empty
// runID gets a fresh one.
func Open(path, runID string) (*Writer, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open decision log: %w", err)
	}

	w := New(f, runID)
	w.closer = f
	return w, nil
}

// New writes to w. The caller keeps ownership of w.
func New(w io.Writer, runID string) *Writer {
	if runID == "" {
		runID = uuid.NewString()
	}
	return &Writer{
		w:           bufio.NewWriter(w),
		runID:       runID,
		ChangesOnly: true,
	}
}

// RunID returns the identifier stamped on every line.
func (w *Writer) RunID() string {
	return w.runID
}

// Start writes the run header.
func (w *Writer) Start(at time.Time, cfg follower.Config) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.printf("# %s run=%s started period=%v safe=%.0fcm band=%.2f-%.2f filter=%d/%.0fcm/%v\n",
		at.UTC().Format(timeLayout), w.runID,
		cfg.Loop.ControlPeriod,
		cfg.Navigation.SafeDistanceCM,
		cfg.Navigation.TargetMinHeight, cfg.Navigation.TargetMaxHeight,
		cfg.Filter.BufferSize, cfg.Filter.SpikeThresholdCM, cfg.Filter.StalenessTimeout)
	return w.flush()
}

// Record appends r unless ChangesOnly is set and nothing changed.
func (w *Writer) Record(r follower.Report) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	d := r.Decision
	key := fmt.Sprintf("%s|%s|%s|%s", r.Status, d.Motion, d.Applied, r.DispatchErr)
	if w.ChangesOnly && key == w.lastKey {
		w.skipped++
		return w.err
	}
	w.lastKey = key

	var b strings.Builder
	fmt.Fprintf(&b, "%s run=%s #%d %s | %s %s",
		d.At.UTC().Format(timeLayout), shortID(w.runID), r.Cycle, r.Status, d.Motion, d.Applied)
	if d.Hold > 0 {
		fmt.Fprintf(&b, " %v", d.Hold)
	}
	fmt.Fprintf(&b, " | %.1fcm", d.DistanceCM)
	if r.Frame.Person != nil {
		fmt.Fprintf(&b, " h=%.2f", d.Height)
	}
	fmt.Fprintf(&b, " pan=%.1f°", r.PanAngle)
	if r.Frame.ObstacleLabel != "" {
		fmt.Fprintf(&b, " obstacle=%s", r.Frame.ObstacleLabel)
	}
	if r.Overrun {
		fmt.Fprintf(&b, " overrun=%v", r.Work)
	}
	if r.DispatchErr != "" {
		fmt.Fprintf(&b, " dispatch_error=%q", r.DispatchErr)
	}
	b.WriteByte('\n')

	w.printf("%s", b.String())
	w.lines++
	return w.flush()
}

// Observer adapts the writer to the loop's observer hook. Write errors are
// kept and returned by Err and Close.
func (w *Writer) Observer() follower.Observer {
	return func(r follower.Report) {
		_ = w.Record(r)
	}
}

// Lines returns how many decision lines were written.
func (w *Writer) Lines() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lines
}

// Err returns the first write error.
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Close writes the run footer and closes the file if Open created it.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.printf("# run=%s stopped lines=%d skipped=%d\n", w.runID, w.lines, w.skipped)
	err := w.flush()
	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil {
			err = cerr
		}
		w.closer = nil
	}
	return err
}

func (w *Writer) printf(format string, args ...any) {
	if w.err != nil {
		return
	}
	if _, err := fmt.Fprintf(w.w, format, args...); err != nil {
		w.err = err
	}
}

func (w *Writer) flush() error {
	if w.err == nil {
		w.err = w.w.Flush()
	}
	return w.err
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
