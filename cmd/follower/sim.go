package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/teslashibe/go-follower/internal/log"
	"github.com/teslashibe/go-follower/pkg/follower"
	"github.com/teslashibe/go-follower/pkg/sim"
)

type SimCommand struct {
	OutputOptions

	Scenario string        `long:"scenario" default:"quiet" choice:"quiet" choice:"noisy" description:"Built-in scene"`
	Scene    string        `long:"scene" description:"JSON scene file layered over the scenario"`
	Seed     uint64        `long:"seed" description:"Random seed for sensor noise (overrides scene)"`
	Duration time.Duration `long:"duration" description:"Stop after this long; 0 runs until interrupted"`
	Every    time.Duration `long:"every" default:"1s" description:"How often to log the scene state"`
}

func (c *SimCommand) Execute(args []string) error {
	log.Init(opts.LogLevel)
	logger := log.Component("cmd")

	cfg, err := loadConfig(c.OutputOptions)
	if err != nil {
		return err
	}

	scfg, err := c.sceneConfig()
	if err != nil {
		return err
	}
	scene, err := sim.New(scfg, cfg.Perception)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	if c.Duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.Duration)
		defer cancel()
	}

	go reportScene(ctx, scene, c.Every, log.Component("sim"))

	logger.Info("simulation", "scenario", c.Scenario, "seed", scfg.Seed)
	err = runLoop(ctx, cfg, follower.Devices{
		Source:  scene,
		Sensor:  scene,
		Chassis: scene,
		Pan:     scene,
	}, logger)
	if errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}

	st := scene.State()
	logger.Info("final scene",
		"person_range_cm", fmt.Sprintf("%.1f", st.PersonRangeCM),
		"closest_cm", fmt.Sprintf("%.1f", st.ClosestCM),
		"heading_deg", fmt.Sprintf("%.1f", st.Robot.HeadingDeg))
	return err
}

func (c *SimCommand) sceneConfig() (sim.Config, error) {
	cfg := sim.DefaultConfig()
	if c.Scenario == "noisy" {
		cfg = sim.NoisyConfig()
	}
	if c.Scene != "" {
		data, err := os.ReadFile(c.Scene)
		if err != nil {
			return cfg, fmt.Errorf("read scene: %w", err)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse scene %s: %w", c.Scene, err)
		}
	}
	if c.Seed != 0 {
		cfg.Seed = c.Seed
	}
	return cfg, nil
}

// reportScene logs where everything is until ctx ends.
func reportScene(ctx context.Context, scene *sim.Scene, every time.Duration, logger *slog.Logger) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := scene.State()
			logger.Info("scene",
				"x", fmt.Sprintf("%.0f", st.Robot.At.X),
				"y", fmt.Sprintf("%.0f", st.Robot.At.Y),
				"heading", fmt.Sprintf("%.1f", st.Robot.HeadingDeg),
				"person_cm", fmt.Sprintf("%.0f", st.PersonRangeCM),
				"person_deg", fmt.Sprintf("%.1f", st.PersonBearingDeg),
				"camera_deg", fmt.Sprintf("%.1f", st.CameraYawDeg),
				"motion", st.Motion,
				"steering", st.Steering)
		}
	}
}
