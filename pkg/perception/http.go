package perception

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-follower/internal/httpc"
)

// HTTPSource polls a detection endpoint that serves the latest Message as
// JSON. Each Poll is one GET bounded by PollTimeout.
type HTTPSource struct {
	cfg    Config
	client *http.Client
	now    func() time.Time

	snapshot Snapshot
}

var _ Source = (*HTTPSource)(nil)

// NewHTTPSource creates a polling source for cfg.URL.
func NewHTTPSource(cfg Config) *HTTPSource {
	return &HTTPSource{
		cfg:    cfg,
		client: httpc.NewClient(cfg.PollTimeout),
		now:    time.Now,
	}
}

// Poll fetches and interprets the current detections.
func (h *HTTPSource) Poll(ctx context.Context) (Frame, error) {
	if h.cfg.PollTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.PollTimeout)
		defer cancel()
	}

	body, err := httpc.Get(ctx, h.client, h.cfg.URL)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrNotConnected, err)
	}

	dets, captured, err := DecodeMessage(body)
	if err != nil {
		return Frame{}, err
	}

	f := Interpret(dets, h.cfg)
	f.CapturedAt = captured
	f.ReceivedAt = h.now()
	h.snapshot.Publish(f)

	latest, _ := h.snapshot.Load()
	return latest, nil
}

// Latest returns the most recent frame regardless of age.
func (h *HTTPSource) Latest() (Frame, bool) {
	return h.snapshot.Load()
}

// NewSource picks the transport for cfg: an explicit Transport wins,
// otherwise http(s) URLs poll and everything else streams.
func NewSource(cfg Config) Source {
	transport := cfg.Transport
	if transport == "" {
		transport = "ws"
		if strings.HasPrefix(cfg.URL, "http") {
			transport = "http"
		}
	}
	if transport == "http" {
		return NewHTTPSource(cfg)
	}
	return NewWSSource(cfg)
}
