// Package follower runs the person-following control loop: it polls
// perception, samples the ultrasonic ranger, steps the pan tracker and the
// navigation controller, and dispatches the result to the chassis on a fixed
// period. Every exit path leaves the chassis stopped with the wheels straight.
package follower

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/teslashibe/go-follower/internal/config"
	"github.com/teslashibe/go-follower/internal/serialport"
	"github.com/teslashibe/go-follower/pkg/navigation"
	"github.com/teslashibe/go-follower/pkg/perception"
	"github.com/teslashibe/go-follower/pkg/ranging"
	"github.com/teslashibe/go-follower/pkg/robot"
	"github.com/teslashibe/go-follower/pkg/tracking"
)

// Control period bounds.
const (
	MinControlPeriod = 100 * time.Millisecond
	MaxControlPeriod = 200 * time.Millisecond
)

// LoopConfig holds the scheduler timing.
type LoopConfig struct {
	ControlPeriod     time.Duration `json:"control_period"`
	SensorTimeout     time.Duration `json:"sensor_timeout"`     // Bound on one ranger read
	PerceptionTimeout time.Duration `json:"perception_timeout"` // Bound on one perception poll
	StatsWindow       int           `json:"stats_window"`       // Cycles kept for timing statistics
}

// UnmarshalJSON accepts durations as strings ("100ms") or nanoseconds.
func (c *LoopConfig) UnmarshalJSON(data []byte) error {
	type plain LoopConfig
	aux := struct {
		*plain
		ControlPeriod     config.Duration `json:"control_period"`
		SensorTimeout     config.Duration `json:"sensor_timeout"`
		PerceptionTimeout config.Duration `json:"perception_timeout"`
	}{
		plain:             (*plain)(c),
		ControlPeriod:     config.Duration(c.ControlPeriod),
		SensorTimeout:     config.Duration(c.SensorTimeout),
		PerceptionTimeout: config.Duration(c.PerceptionTimeout),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	c.ControlPeriod = time.Duration(aux.ControlPeriod)
	c.SensorTimeout = time.Duration(aux.SensorTimeout)
	c.PerceptionTimeout = time.Duration(aux.PerceptionTimeout)
	return nil
}

// HardwareConfig names the serial devices.
type HardwareConfig struct {
	Bridge     serialport.PortOptions `json:"bridge"` // Motor bridge MCU (drive + steering)
	Ranger     serialport.PortOptions `json:"ranger"` // Ultrasonic ranger MCU
	AckTimeout time.Duration          `json:"ack_timeout"`

	// PanPort is the Feetech bus for the pan servo. Empty routes pan
	// commands through the motor bridge instead.
	PanPort        string               `json:"pan_port,omitempty"`
	PanCalibration robot.PanCalibration `json:"pan_calibration"`
}

// UnmarshalJSON accepts the ack timeout as a string ("50ms") or nanoseconds.
func (c *HardwareConfig) UnmarshalJSON(data []byte) error {
	type plain HardwareConfig
	aux := struct {
		*plain
		AckTimeout config.Duration `json:"ack_timeout"`
	}{
		plain:      (*plain)(c),
		AckTimeout: config.Duration(c.AckTimeout),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	c.AckTimeout = time.Duration(aux.AckTimeout)
	return nil
}

// DashboardConfig controls the web dashboard.
type DashboardConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

// Config is the complete follower configuration.
type Config struct {
	Loop       LoopConfig           `json:"loop"`
	Filter     ranging.FilterConfig `json:"filter"`
	Pan        tracking.PanConfig   `json:"pan"`
	Navigation navigation.Config    `json:"navigation"`
	Perception perception.Config    `json:"perception"`
	Hardware   HardwareConfig       `json:"hardware"`
	Dashboard  DashboardConfig      `json:"dashboard"`

	// DecisionLog is the append-only decision log path. Empty disables it.
	DecisionLog string `json:"decision_log,omitempty"`
}

// DefaultConfig returns the standard follower configuration.
func DefaultConfig() Config {
	return Config{
		Loop: LoopConfig{
			ControlPeriod:     100 * time.Millisecond,
			SensorTimeout:     30 * time.Millisecond,
			PerceptionTimeout: 20 * time.Millisecond,
			StatsWindow:       100,
		},
		Filter:     ranging.DefaultFilterConfig(),
		Pan:        tracking.DefaultPanConfig(),
		Navigation: navigation.DefaultConfig(),
		Perception: perception.DefaultConfig(),
		Hardware: HardwareConfig{
			Bridge:         serialport.PortOptions{Path: "/dev/ttyUSB0", BaudRate: serialport.DefaultBaudRate},
			Ranger:         serialport.PortOptions{Path: "/dev/ttyUSB1", BaudRate: serialport.DefaultBaudRate},
			AckTimeout:     50 * time.Millisecond,
			PanCalibration: robot.DefaultPanCalibration(),
		},
		Dashboard: DashboardConfig{
			Enabled: true,
			Addr:    config.DefaultDashboardAddr,
		},
	}
}

// CautiousConfig keeps more distance, tracks smoothly and runs slower.
func CautiousConfig() Config {
	cfg := DefaultConfig()
	cfg.Loop.ControlPeriod = 150 * time.Millisecond
	cfg.Pan = tracking.SmoothPanConfig()
	cfg.Navigation = navigation.CautiousConfig()
	return cfg
}

// AgileConfig follows closer and reacts faster.
func AgileConfig() Config {
	cfg := DefaultConfig()
	cfg.Pan = tracking.AggressivePanConfig()
	cfg.Navigation = navigation.AgileConfig()
	cfg.Filter.SpikeThresholdCM = 50
	return cfg
}

// Preset returns a named configuration: "default", "cautious" or "agile".
func Preset(name string) (Config, error) {
	switch name {
	case "", "default":
		return DefaultConfig(), nil
	case "cautious":
		return CautiousConfig(), nil
	case "agile":
		return AgileConfig(), nil
	}
	return Config{}, &ConfigError{Field: "preset", Message: fmt.Sprintf("unknown preset %q", name)}
}

// LoadConfig reads a JSON file over base. Fields absent from the file keep
// their base values.
func LoadConfig(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg := base
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadEnv overrides fields from FOLLOWER_* environment variables.
func (c *Config) LoadEnv() {
	c.Hardware.Bridge.Path = config.GetString(config.EnvBridgePort, c.Hardware.Bridge.Path)
	c.Hardware.Ranger.Path = config.GetString(config.EnvRangerPort, c.Hardware.Ranger.Path)
	c.Hardware.PanPort = config.GetString(config.EnvPanPort, c.Hardware.PanPort)
	c.Perception.URL = config.GetString(config.EnvPerceptionURL, c.Perception.URL)
	c.Dashboard.Addr = config.GetString(config.EnvDashboardAddr, c.Dashboard.Addr)
	c.DecisionLog = config.GetString(config.EnvDecisionLog, c.DecisionLog)
	c.Loop.ControlPeriod = config.GetDuration(config.EnvControlPeriod, c.Loop.ControlPeriod)
	c.Navigation.SafeDistanceCM = config.GetFloat(config.EnvSafeDistanceCM, c.Navigation.SafeDistanceCM)
}

// Validate checks the whole configuration. The error is a *ConfigError
// naming the offending section.
func (c Config) Validate() error {
	if c.Loop.ControlPeriod < MinControlPeriod || c.Loop.ControlPeriod > MaxControlPeriod {
		return &ConfigError{
			Field:   "loop.control_period",
			Message: fmt.Sprintf("control period must be between %v and %v, got %v", MinControlPeriod, MaxControlPeriod, c.Loop.ControlPeriod),
		}
	}
	if c.Loop.SensorTimeout <= 0 || c.Loop.PerceptionTimeout <= 0 {
		return &ConfigError{Field: "loop", Message: "sensor and perception timeouts must be positive"}
	}
	if c.Loop.SensorTimeout+c.Loop.PerceptionTimeout >= c.Loop.ControlPeriod {
		return &ConfigError{Field: "loop", Message: "sensor and perception timeouts must fit inside the control period"}
	}

	sections := []struct {
		field string
		err   error
	}{
		{"filter", c.Filter.Validate()},
		{"pan", c.Pan.Validate()},
		{"navigation", c.Navigation.Validate()},
		{"perception", c.Perception.Validate()},
	}
	for _, s := range sections {
		if s.err != nil {
			return &ConfigError{Field: s.field, Message: s.err.Error(), Err: s.err}
		}
	}

	if c.Navigation.SafeDistanceCM >= c.Filter.MaxDistanceCM {
		return &ConfigError{Field: "navigation.safe_distance_cm", Message: "safe distance must be below the ranger's max distance"}
	}
	if c.Dashboard.Enabled && c.Dashboard.Addr == "" {
		return &ConfigError{Field: "dashboard.addr", Message: "dashboard address is required when enabled"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// IsConfigError reports whether err is a configuration error.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
