// Package config provides environment helpers for go-follower commands.
package config

import (
	"os"
	"strconv"
	"time"
)

// Environment variable names.
const (
	EnvBridgePort     = "FOLLOWER_BRIDGE_PORT"
	EnvRangerPort     = "FOLLOWER_RANGER_PORT"
	EnvPanPort        = "FOLLOWER_PAN_PORT"
	EnvPerceptionURL  = "FOLLOWER_PERCEPTION_URL"
	EnvDashboardAddr  = "FOLLOWER_DASHBOARD_ADDR"
	EnvLogLevel       = "FOLLOWER_LOG_LEVEL"
	EnvDecisionLog    = "FOLLOWER_DECISION_LOG"
	EnvControlPeriod  = "FOLLOWER_CONTROL_PERIOD"
	EnvSafeDistanceCM = "FOLLOWER_SAFE_DISTANCE_CM"
)

// Defaults used when nothing is configured.
const (
	DefaultPerceptionURL = "ws://127.0.0.1:8765/detections"
	DefaultDashboardAddr = ":8080"
)

// GetString returns the value of key, or def if unset or empty.
func GetString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// GetFloat returns key parsed as a float, or def if unset or malformed.
func GetFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// GetDuration returns key parsed with time.ParseDuration, or def if unset or malformed.
func GetDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// BridgePort returns the motor bridge serial device.
func BridgePort() string {
	return os.Getenv(EnvBridgePort)
}

// RangerPort returns the ultrasonic ranger serial device.
func RangerPort() string {
	return os.Getenv(EnvRangerPort)
}

// PanPort returns the pan servo bus device.
func PanPort() string {
	return os.Getenv(EnvPanPort)
}

// PerceptionURL returns the detection stream URL.
func PerceptionURL() string {
	return GetString(EnvPerceptionURL, DefaultPerceptionURL)
}

// DashboardAddr returns the dashboard listen address.
func DashboardAddr() string {
	return GetString(EnvDashboardAddr, DefaultDashboardAddr)
}

// LogLevel returns the configured log level, "info" if unset.
func LogLevel() string {
	return GetString(EnvLogLevel, "info")
}
