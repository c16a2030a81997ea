package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-follower/internal/log"
	"github.com/teslashibe/go-follower/pkg/decisionlog"
	"github.com/teslashibe/go-follower/pkg/follower"
	"github.com/teslashibe/go-follower/pkg/web"
)

// OutputOptions are shared by the commands that run the loop.
type OutputOptions struct {
	DashboardAddr string  `long:"dashboard" description:"Dashboard listen address (overrides config)"`
	NoDashboard   bool    `long:"no-dashboard" description:"Disable the web dashboard"`
	DecisionLog   string  `long:"decision-log" description:"Append decisions to this file (overrides config)"`
	SafeDistance  float64 `long:"safe-distance" description:"Safety stop distance in cm (overrides config)"`
}

// loadConfig layers preset, file, environment and flags, then validates.
func loadConfig(out OutputOptions) (follower.Config, error) {
	cfg, err := follower.Preset(opts.Preset)
	if err != nil {
		return cfg, err
	}
	if opts.Config != "" {
		if cfg, err = follower.LoadConfig(opts.Config, cfg); err != nil {
			return cfg, err
		}
	}
	cfg.LoadEnv()

	if out.DashboardAddr != "" {
		cfg.Dashboard.Addr = out.DashboardAddr
	}
	if out.NoDashboard {
		cfg.Dashboard.Enabled = false
	}
	if out.DecisionLog != "" {
		cfg.DecisionLog = out.DecisionLog
	}
	if out.SafeDistance > 0 {
		cfg.Navigation.SafeDistanceCM = out.SafeDistance
	}
	return cfg, cfg.Validate()
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// runLoop wires the decision log and dashboard around the loop and runs it
// until ctx is cancelled.
func runLoop(ctx context.Context, cfg follower.Config, dev follower.Devices, logger *slog.Logger, extra ...follower.Option) error {
	runID := uuid.NewString()
	loopOpts := append([]follower.Option{
		follower.WithRunID(runID),
		follower.WithLogger(log.Component("follower")),
	}, extra...)

	loop, err := follower.NewLoop(cfg, dev, loopOpts...)
	if err != nil {
		return err
	}

	if cfg.DecisionLog != "" {
		dl, err := decisionlog.Open(cfg.DecisionLog, runID)
		if err != nil {
			return err
		}
		defer func() {
			if err := dl.Close(); err != nil {
				logger.Warn("close decision log", "error", err)
			}
		}()
		if err := dl.Start(time.Now(), cfg); err != nil {
			return err
		}
		loop.Observe(dl.Observer())
		logger.Info("decision log", "path", cfg.DecisionLog)
	}

	if cfg.Dashboard.Enabled {
		dash := web.NewServer(cfg.Dashboard.Addr, loop)
		loop.Observe(dash.Observer())
		dash.StartAsync()
		defer func() {
			if err := dash.Shutdown(); err != nil {
				logger.Warn("dashboard shutdown", "error", err)
			}
		}()
		logger.Info("dashboard", "url", fmt.Sprintf("http://localhost%s", cfg.Dashboard.Addr))
	}

	err = loop.Run(ctx)
	st := loop.Stats()
	logger.Info("follower stopped",
		"run_id", runID,
		"cycles", st.Cycles,
		"overruns", st.Overruns,
		"dispatch_errors", st.DispatchErrors,
		"mean_cycle", st.MeanCycle)

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
