package perception

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-follower/internal/log"
)

const (
	keepaliveInterval  = 30 * time.Second
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 30 * time.Second
)

// WSSource subscribes to the camera pipeline's detection stream and keeps
// the latest interpreted frame in a Snapshot for the control loop.
type WSSource struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	snapshot Snapshot

	conn      *websocket.Conn
	connMu    sync.Mutex
	connected bool

	// Callbacks
	OnFrame      func(Frame) // Called for each decoded frame, from the read goroutine
	OnConnected  func()
	OnDisconnect func()

	ctx          context.Context
	cancel       context.CancelFunc
	closeCh      chan struct{}
	closeOnce    sync.Once
	reconnecting bool
	dropped      uint64
}

var _ Source = (*WSSource)(nil)

// NewWSSource creates a detection stream client. Call Connect to start it.
func NewWSSource(cfg Config) *WSSource {
	return &WSSource{
		cfg:     cfg,
		logger:  log.Component("perception.ws"),
		now:     time.Now,
		closeCh: make(chan struct{}),
	}
}

// SetLogger replaces the component logger.
func (w *WSSource) SetLogger(l *slog.Logger) {
	w.logger = l
}

// Connect dials the stream and starts the background goroutines. When the
// first dial fails the error is returned and reconnection continues in the
// background, so Poll reports ErrNotConnected until the stream comes up.
func (w *WSSource) Connect(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	err := w.dial()
	if err != nil {
		w.logger.Warn("detection stream unavailable, retrying in background", "url", w.cfg.URL, "error", err)
		w.handleDisconnect(nil)
	}

	go w.readLoop()
	go w.keepaliveLoop()

	return err
}

func (w *WSSource) dial() error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, resp, err := dialer.DialContext(w.ctx, w.cfg.URL, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("websocket dial failed: %w", err)
	}

	w.connMu.Lock()
	w.conn = conn
	w.connected = true
	w.connMu.Unlock()

	w.logger.Info("detection stream connected", "url", w.cfg.URL)
	if w.OnConnected != nil {
		w.OnConnected()
	}
	return nil
}

// Poll returns the latest frame. A frame older than MaxFrameAge reads as an
// empty frame while connected and as ErrNotConnected while disconnected.
func (w *WSSource) Poll(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if f, ok := w.snapshot.Fresh(w.now(), w.cfg.MaxFrameAge); ok {
		return f, nil
	}
	if !w.IsConnected() {
		return Frame{}, ErrNotConnected
	}
	return Frame{}, nil
}

// Latest returns the most recent frame regardless of age.
func (w *WSSource) Latest() (Frame, bool) {
	return w.snapshot.Load()
}

func (w *WSSource) readLoop() {
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.closeCh:
			return
		default:
		}

		w.connMu.Lock()
		conn := w.conn
		w.connMu.Unlock()

		if conn == nil {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				w.logger.Error("websocket read error", "error", err)
			}
			w.handleDisconnect(conn)
			continue
		}

		dets, captured, err := DecodeMessage(message)
		if err != nil {
			w.dropped++
			w.logger.Warn("failed to parse detections", "error", err, "dropped", w.dropped)
			continue
		}

		f := Interpret(dets, w.cfg)
		f.CapturedAt = captured
		f.ReceivedAt = w.now()
		w.snapshot.Publish(f)

		if w.OnFrame != nil {
			latest, _ := w.snapshot.Load()
			w.OnFrame(latest)
		}
	}
}

func (w *WSSource) keepaliveLoop() {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.closeCh:
			return
		case <-ticker.C:
			w.connMu.Lock()
			conn := w.conn
			connected := w.connected
			w.connMu.Unlock()

			if !connected || conn == nil {
				continue
			}
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
				w.logger.Warn("keepalive ping failed", "error", err)
				w.handleDisconnect(conn)
			}
		}
	}
}

// handleDisconnect drops conn and starts at most one reconnect loop. A conn
// that a reconnect has already replaced is only closed.
func (w *WSSource) handleDisconnect(conn *websocket.Conn) {
	w.connMu.Lock()
	if conn != w.conn {
		w.connMu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
	wasConnected := w.connected
	w.connected = false
	wasReconnecting := w.reconnecting
	w.reconnecting = true
	w.connMu.Unlock()

	if wasConnected && w.OnDisconnect != nil {
		w.OnDisconnect()
	}

	if !wasReconnecting {
		go w.reconnectLoop()
	}
}

func (w *WSSource) reconnectLoop() {
	delay := reconnectBaseDelay

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.closeCh:
			return
		case <-time.After(delay):
		}

		if err := w.dial(); err != nil {
			w.logger.Debug("reconnect failed", "error", err, "next_delay", delay)
			delay *= 2
			if delay > reconnectMaxDelay {
				delay = reconnectMaxDelay
			}
			continue
		}

		w.connMu.Lock()
		w.reconnecting = false
		w.connMu.Unlock()

		w.logger.Info("reconnected successfully")
		return
	}
}

// IsConnected returns true if the stream is connected.
func (w *WSSource) IsConnected() bool {
	w.connMu.Lock()
	defer w.connMu.Unlock()
	return w.connected
}

// Close terminates the connection and stops the background goroutines.
func (w *WSSource) Close() error {
	if w.cancel != nil {
		w.cancel()
	}
	w.closeOnce.Do(func() { close(w.closeCh) })

	w.connMu.Lock()
	defer w.connMu.Unlock()

	if w.conn != nil {
		w.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		w.conn.Close()
		w.conn = nil
	}
	w.connected = false
	return nil
}
