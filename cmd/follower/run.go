package main

import (
	"fmt"
	"io"

	"github.com/teslashibe/go-follower/internal/log"
	"github.com/teslashibe/go-follower/pkg/follower"
	"github.com/teslashibe/go-follower/pkg/perception"
	"github.com/teslashibe/go-follower/pkg/ranging"
	"github.com/teslashibe/go-follower/pkg/robot"
)

type RunCommand struct {
	OutputOptions

	Bridge        string `long:"bridge" description:"Motor bridge serial port (overrides config)"`
	Ranger        string `long:"ranger" description:"Ultrasonic ranger serial port (overrides config)"`
	PanPort       string `long:"pan-port" description:"Feetech bus for the pan servo; empty uses the motor bridge"`
	PerceptionURL string `long:"perception" description:"Detection stream URL, ws:// or http:// (overrides config)"`
}

func (c *RunCommand) Execute(args []string) error {
	log.Init(opts.LogLevel)
	logger := log.Component("cmd")

	cfg, err := loadConfig(c.OutputOptions)
	if err != nil {
		return err
	}
	if c.Bridge != "" {
		cfg.Hardware.Bridge.Path = c.Bridge
	}
	if c.Ranger != "" {
		cfg.Hardware.Ranger.Path = c.Ranger
	}
	if c.PanPort != "" {
		cfg.Hardware.PanPort = c.PanPort
	}
	if c.PerceptionURL != "" {
		cfg.Perception.URL = c.PerceptionURL
		cfg.Perception.Transport = ""
	}

	ctx, cancel := signalContext()
	defer cancel()

	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				logger.Warn("close device", "error", err)
			}
		}
	}()

	bridge, err := robot.OpenSerialBridge(cfg.Hardware.Bridge, cfg.Hardware.AckTimeout)
	if err != nil {
		return fmt.Errorf("motor bridge: %w", err)
	}
	closers = append(closers, bridge)
	logger.Info("motor bridge connected", "port", cfg.Hardware.Bridge.Path)

	sensor, err := ranging.OpenSerialSensor(cfg.Hardware.Ranger)
	if err != nil {
		return fmt.Errorf("ranger: %w", err)
	}
	closers = append(closers, sensor)
	logger.Info("ranger connected", "port", cfg.Hardware.Ranger.Path)

	var pan robot.PanController = bridge
	if cfg.Hardware.PanPort != "" {
		fp, err := robot.OpenFeetechPan(cfg.Hardware.PanPort, cfg.Hardware.PanCalibration)
		if err != nil {
			return fmt.Errorf("pan servo: %w", err)
		}
		closers = append(closers, fp)
		pan = fp
		logger.Info("pan servo connected", "port", cfg.Hardware.PanPort, "id", cfg.Hardware.PanCalibration.ID)
	}

	source := perception.NewSource(cfg.Perception)
	if ws, ok := source.(*perception.WSSource); ok {
		// A failed first dial keeps retrying; the loop searches meanwhile.
		_ = ws.Connect(ctx)
		closers = append(closers, ws)
	}
	logger.Info("perception", "url", cfg.Perception.URL)

	return runLoop(ctx, cfg, follower.Devices{
		Source:  source,
		Sensor:  sensor,
		Chassis: bridge,
		Pan:     pan,
	}, logger)
}
