package web

import (
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-follower/pkg/follower"
	"github.com/teslashibe/go-follower/pkg/hub"
)

// handleStatus returns the latest decision
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.status())
}

func (s *Server) status() Status {
	st := Status{
		RunID:  s.follower.RunID(),
		Uptime: time.Since(s.started).Round(time.Second).String(),
		Stream: s.decisionHub.Stats(),
		Status: "Idle: starting",
	}
	if last, ok := s.follower.Last(); ok {
		st.Running = true
		st.Status = last.Status
		st.DistanceCM = last.Decision.DistanceCM
		st.PanAngle = last.PanAngle
		st.Person = last.Frame.Person != nil
		st.Obstacle = last.Frame.Obstacle
		st.Last = &last
	}
	return st
}

// handleStats returns loop diagnostics
func (s *Server) handleStats(c *fiber.Ctx) error {
	return c.JSON(s.follower.Stats())
}

// handleConfig returns the startup configuration
func (s *Server) handleConfig(c *fiber.Ctx) error {
	return c.JSON(s.follower.Config())
}

// handleGetTuning returns the parameters in effect
func (s *Server) handleGetTuning(c *fiber.Ctx) error {
	return c.JSON(s.follower.Tuning())
}

// handleSetTuning queues new parameters for the next cycle
func (s *Server) handleSetTuning(c *fiber.Ctx) error {
	var p follower.TuningParams
	if err := json.Unmarshal(c.Body(), &p); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid tuning parameters: " + err.Error(),
		})
	}

	s.follower.SetTuning(p)
	s.logger.Info("tuning queued", "remote", c.IP())

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status": "queued",
		"tuning": p,
	})
}

// handleGetLogs returns recent status changes
func (s *Server) handleGetLogs(c *fiber.Ctx) error {
	s.logsMu.RLock()
	logs := make([]LogEntry, len(s.logs))
	copy(logs, s.logs)
	s.logsMu.RUnlock()

	if n := c.QueryInt("limit", 0); n > 0 && n < len(logs) {
		logs = logs[len(logs)-n:]
	}
	return c.JSON(logs)
}

// handleDecisionsWS streams cycle reports, starting with the current status
func (s *Server) handleDecisionsWS(c *websocket.Conn) {
	var greeting []hub.Message
	if data, err := json.Marshal(s.status()); err == nil {
		greeting = append(greeting, data)
	}

	hub.NewClient(s.decisionHub, c, greeting...).Run()
}
