// Package web provides a real-time dashboard for the follower: current
// decision, loop statistics, runtime tuning and a live decision stream.
package web

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-follower/internal/log"
	"github.com/teslashibe/go-follower/pkg/follower"
	"github.com/teslashibe/go-follower/pkg/hub"
)

// maxLogEntries bounds the decision history kept for /api/logs.
const maxLogEntries = 500

// Follower is the part of the control loop the dashboard reads and tunes.
type Follower interface {
	RunID() string
	Config() follower.Config
	Last() (follower.Report, bool)
	Stats() follower.Stats
	Tuning() follower.TuningParams
	SetTuning(follower.TuningParams)
}

var _ Follower = (*follower.Loop)(nil)

// LogEntry is one status change shown on the dashboard.
type LogEntry struct {
	Time     string `json:"time"`
	Cycle    uint64 `json:"cycle"`
	Status   string `json:"status"`
	Motion   string `json:"motion"`
	Steering string `json:"steering"`
	Error    string `json:"error,omitempty"`
}

// Status is the /api/status payload.
type Status struct {
	RunID      string           `json:"run_id"`
	Uptime     string           `json:"uptime"`
	Running    bool             `json:"running"`
	Stream     hub.Stats        `json:"stream"`
	Status     string           `json:"status"`
	DistanceCM float64          `json:"distance_cm"`
	PanAngle   float64          `json:"pan_angle"`
	Person     bool             `json:"person"`
	Obstacle   bool             `json:"obstacle"`
	Last       *follower.Report `json:"last,omitempty"`
}

// Server is the web dashboard server
type Server struct {
	app      *fiber.App
	addr     string
	logger   *slog.Logger
	follower Follower
	started  time.Time

	// Log buffer (last maxLogEntries status changes)
	logs       []LogEntry
	lastStatus string
	logsMu     sync.RWMutex

	// Hub for websocket broadcast
	decisionHub *hub.Hub
	hubCtx      context.Context
	hubCancel   context.CancelFunc
}

// NewServer creates a dashboard for f listening on addr (e.g. ":8080").
func NewServer(addr string, f Follower) *Server {
	s := &Server{
		addr:        addr,
		logger:      log.Component("web"),
		follower:    f,
		started:     time.Now(),
		logs:        make([]LogEntry, 0, maxLogEntries),
		decisionHub: hub.New("decisions"),
	}
	s.hubCtx, s.hubCancel = context.WithCancel(context.Background())

	app := fiber.New(fiber.Config{
		AppName:               "Follower Dashboard",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	// API routes
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/stats", s.handleStats)
	api.Get("/config", s.handleConfig)
	api.Get("/tuning", s.handleGetTuning)
	api.Post("/tuning", s.handleSetTuning)
	api.Get("/logs", s.handleGetLogs)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/decisions", websocket.New(s.handleDecisionsWS))

	s.app = app
	return s
}

// SetLogger replaces the component logger.
func (s *Server) SetLogger(l *slog.Logger) {
	s.logger = l
	s.decisionHub.SetLogger(l)
}

// Start runs the hub and serves until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("web dashboard listening", "addr", s.addr)

	go s.decisionHub.Run(s.hubCtx)

	return s.app.Listen(s.addr)
}

// StartAsync starts the web server in a goroutine
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			s.logger.Warn("web server error", "error", err)
		}
	}()
}

// Observer feeds cycle reports to the dashboard: every report goes to
// websocket clients, status changes go to the log buffer.
func (s *Server) Observer() follower.Observer {
	return func(r follower.Report) {
		s.addLog(r)
		if s.decisionHub.ClientCount() > 0 {
			if err := s.decisionHub.PublishJSON(r); err != nil {
				s.logger.Warn("encode report", "error", err)
			}
		}
	}
}

func (s *Server) addLog(r follower.Report) {
	s.logsMu.Lock()
	defer s.logsMu.Unlock()

	if r.Status == s.lastStatus && r.DispatchErr == "" {
		return
	}
	s.lastStatus = r.Status

	s.logs = append(s.logs, LogEntry{
		Time:     r.Decision.At.Format("15:04:05.000"),
		Cycle:    r.Cycle,
		Status:   r.Status,
		Motion:   r.Decision.Motion.String(),
		Steering: r.Decision.Applied.String(),
		Error:    r.DispatchErr,
	})
	if len(s.logs) > maxLogEntries {
		s.logs = s.logs[1:]
	}
}

// Shutdown gracefully stops the web server
func (s *Server) Shutdown() error {
	s.hubCancel()
	return s.app.Shutdown()
}
