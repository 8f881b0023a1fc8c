package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/signalsfoundry/switchgear-simulator/core"
	"github.com/signalsfoundry/switchgear-simulator/internal/api"
	"github.com/signalsfoundry/switchgear-simulator/internal/config"
	"github.com/signalsfoundry/switchgear-simulator/internal/logging"
	"github.com/signalsfoundry/switchgear-simulator/internal/observability"
	"github.com/signalsfoundry/switchgear-simulator/internal/sim/state"
	"github.com/signalsfoundry/switchgear-simulator/internal/sim/timer"
	"github.com/signalsfoundry/switchgear-simulator/timectrl"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var configPath string

	cmd := &cobra.Command{
		Use:           "switchgear-server",
		Short:         "Serve a live switchgear simulation over HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, configPath)
			if err != nil {
				return err
			}
			log := logging.New(cfg.Log)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			lis, err := net.Listen("tcp", cfg.Server.Addr)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", cfg.Server.Addr, err)
			}
			return run(ctx, cfg, log, lis)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	flags.String("addr", "", "HTTP listen address")
	flags.String("network", "", "network document (JSON or YAML) loaded at start")
	flags.String("mode", "", "clock mode: realtime or accelerated")
	flags.Int("speed", 0, "simulation ticks per wall tick in accelerated mode")
	flags.Int64("seed", 0, "random seed; 0 picks one from the clock")
	flags.String("log-level", "", "debug, info, warn or error")
	for key, name := range map[string]string{
		"server.addr": "addr",
		"sim.network": "network",
		"sim.mode":    "mode",
		"sim.speed":   "speed",
		"sim.seed":    "seed",
		"log.level":   "log-level",
	} {
		_ = v.BindPFlag(key, flags.Lookup(name))
	}
	return cmd
}

// run serves the API on lis until ctx is cancelled.
func run(ctx context.Context, cfg config.Config, log logging.Logger, lis net.Listener) error {
	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	simMetrics, err := observability.NewSimCollector(reg)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	httpMetrics, err := observability.NewHTTPCollector(reg)
	if err != nil {
		return fmt.Errorf("init http metrics: %w", err)
	}

	tc := timectrl.NewTimeController(time.Now().UTC(), cfg.Sim.Tick, cfg.TimeMode())
	tc.Speed = cfg.Sim.Speed
	timers := timer.NewEventScheduler(tc)

	opts := append(cfg.SimulationOptions(cfg.Seed(time.Now())), state.WithMetricsRecorder(simMetrics))
	sim := state.NewSimulation(timers, log, opts...)

	if cfg.Sim.Network != "" {
		doc, err := core.ReadDocumentFile(cfg.Sim.Network)
		if err != nil {
			return fmt.Errorf("read network: %w", err)
		}
		if err := sim.LoadDocument(ctx, doc); err != nil {
			return fmt.Errorf("load network %s: %w", cfg.Sim.Network, err)
		}
	}

	srv := &http.Server{
		Handler: api.New(api.Config{
			Sim:            sim,
			Log:            log,
			Metrics:        httpMetrics,
			MetricsHandler: simMetrics.Handler(),
			MetricsPath:    cfg.Server.MetricsPath,
			Tracing:        cfg.Tracing.Enabled,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		runSimLoop(loopCtx, tc, sim, log)
	}()

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "serving switchgear API",
			logging.String("addr", lis.Addr().String()),
			logging.String("mode", cfg.TimeMode().String()),
			logging.Int("speed", cfg.Sim.Speed),
		)
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	log.Info(context.Background(), "shutting down switchgear server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = err
	}
	stopLoop()
	<-loopDone
	return serveErr
}

// timerDriver fires due simulation timers.
type timerDriver interface {
	RunDue()
}

// runSimLoop advances the clock and fires due timers after every tick until
// ctx is done.
func runSimLoop(ctx context.Context, tc *timectrl.TimeController, sim timerDriver, log logging.Logger) {
	if log == nil {
		log = logging.Noop()
	}
	tc.AddListener(func(time.Time) { sim.RunDue() })
	log.Debug(ctx, "simulation clock started",
		logging.Duration("tick", tc.Tick),
		logging.String("mode", tc.Mode.String()),
	)
	<-tc.Start(ctx, 0)
	log.Debug(context.Background(), "simulation clock stopped", logging.SimTime(tc.Now()))
}
