package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"tsat-adcs/internal/adcs"
	"tsat-adcs/internal/config"
	"tsat-adcs/internal/detumble"
	"tsat-adcs/internal/logging"
	"tsat-adcs/internal/metrics"
	"tsat-adcs/internal/trace"
	"tsat-adcs/internal/web"
)

var openHardware = adcs.OpenHardware

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the detumble controller on hardware",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runHardware(ctx, cfg, cmd.ErrOrStderr())
		},
	}
}

func runHardware(ctx context.Context, cfg config.Config, stderr io.Writer) error {
	level, _ := logging.ParseLevel(cfg.Log.Level)
	logs := web.NewLogBuffer(2000)
	log := logging.NewWithWriter(io.MultiWriter(stderr, logs), level)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return err
	}

	hw, err := openHardware(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := hw.Close(); err != nil {
			log.Warn("hardware close", "error", err)
		}
	}()

	sink, closeSink, err := traceSink(cfg, log)
	if err != nil {
		return err
	}
	defer closeSink()

	status := web.NewStatus()
	status.SetStatic("hardware", map[string]any{
		"alpha":            cfg.Controller.Alpha,
		"gain":             cfg.Controller.Gain,
		"threshold":        *cfg.Controller.Threshold,
		"sample_duration":  cfg.Controller.SampleDuration.String(),
		"actuate_duration": cfg.Controller.ActuateDuration.String(),
		"decay_duration":   cfg.Controller.DecayDuration.String(),
		"gyro":             cfg.Gyro.Enable,
	})

	deps := hw.Deps()
	deps.Trace = sink
	deps.Hooks = m.Hooks()
	deps.Log = log
	var lastRate time.Time
	deps.Publish = func(snap adcs.Snapshot) {
		status.SetController(snap.UpdatedAt, snap.Controller)
		if r := snap.Rate; !r.UpdatedAt.IsZero() && r.UpdatedAt != lastRate {
			lastRate = r.UpdatedAt
			status.SetRate(r.UpdatedAt, web.RateStatus{Valid: r.Valid, RateDPS: r.DPS, NormDPS: r.NormDPS, LastError: r.LastError})
			if r.Valid {
				m.ObserveBodyRate(r.DPS, r.NormDPS)
			}
		}
	}

	svc, err := adcs.New(adcs.ServiceConfig(cfg), deps)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Close()

	errCh := make(chan error, 1)
	if cfg.Web.Enable {
		h := web.Handler(web.Options{Status: status, Logs: logs, Gatherer: reg})
		go func() {
			log.Info("web listening", "addr", cfg.Web.Listen)
			errCh <- web.Serve(ctx, cfg.Web.Listen, h)
		}()
	}

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("web: %w", err)
		}
	case <-svc.Done():
	}
	return nil
}

func traceSink(cfg config.Config, log *slog.Logger) (detumble.TraceSink, func(), error) {
	if !cfg.Controller.Trace {
		return nil, func() {}, nil
	}
	switch cfg.Trace.Sink {
	case "serial":
		s, err := trace.OpenSerial(cfg.Trace.SerialPort, cfg.Trace.Baud)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return trace.LogSink{Log: log}, func() {}, nil
	}
}
