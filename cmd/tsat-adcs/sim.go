package main

import (
	"fmt"
	"math"
	"time"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/spatial/r3"

	"tsat-adcs/internal/adcs"
	"tsat-adcs/internal/config"
	"tsat-adcs/internal/logging"
	"tsat-adcs/internal/sim"
	"tsat-adcs/internal/telemetry"
	"tsat-adcs/internal/trace"
)

func newSimCmd() *cobra.Command {
	var (
		duration time.Duration
		record   string
	)
	cmd := &cobra.Command{
		Use:   "sim",
		Short: "Detumble a simulated spacecraft",
		Long:  `Runs the controller against a rigid-body model in virtual time and reports the body rate before and after.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if duration > 0 {
				cfg.Sim.Duration = duration
			}
			if record != "" {
				cfg.Sim.Record = record
			}
			return runSim(cmd, cfg)
		},
	}
	cmd.Flags().DurationVar(&duration, "duration", 0, "Simulated time (overrides sim.duration)")
	cmd.Flags().StringVar(&record, "record", "", "Write a telemetry log to this path (overrides sim.record)")
	return cmd
}

func simParams(s config.SimConfig) sim.Params {
	rad := math.Pi / 180
	return sim.Params{
		InitialRate: r3.Vec{X: s.InitialRateDPS[0] * rad, Y: s.InitialRateDPS[1] * rad, Z: s.InitialRateDPS[2] * rad},
		Inertia:     r3.Vec{X: s.Inertia[0], Y: s.Inertia[1], Z: s.Inertia[2]},
		Field:       r3.Vec{X: s.FieldTesla[0], Y: s.FieldTesla[1], Z: s.FieldTesla[2]},
		OrbitPeriod: s.OrbitPeriod,
		MaxMoment:   s.MaxMoment,
		NoiseCounts: s.NoiseCounts,
		Seed:        s.Seed,
	}
}

func runSim(cmd *cobra.Command, cfg config.Config) error {
	level, _ := logging.ParseLevel(cfg.Log.Level)
	log := logging.NewWithWriter(cmd.ErrOrStderr(), level)

	sc, err := sim.NewSpacecraft(simParams(cfg.Sim))
	if err != nil {
		return err
	}
	ctlCfg := adcs.ControllerConfig(cfg.Controller)
	ctlCfg.Gain = cfg.Sim.Gain

	run := sim.RunConfig{
		Controller: ctlCfg,
		Step:       cfg.Sim.Step,
		Duration:   cfg.Sim.Duration,
	}
	if cfg.Controller.Trace {
		run.Trace = trace.LogSink{Log: log}
	}
	var w *telemetry.Writer
	if cfg.Sim.Record != "" {
		w, err = telemetry.CreateWriter(cfg.Sim.Record)
		if err != nil {
			return fmt.Errorf("create record: %w", err)
		}
		defer w.Close()
		run.Recorder = w
	}

	log.Info("sim starting", "duration", cfg.Sim.Duration, "step", cfg.Sim.Step, "gain", ctlCfg.Gain)
	res, err := sim.Run(cmd.Context(), sc, run)
	if err != nil {
		return err
	}
	if w != nil {
		if err := w.Close(); err != nil {
			return fmt.Errorf("close record: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "simulated: %s (%d steps)\n", res.Elapsed, res.Steps)
	fmt.Fprintf(out, "cycles: %d\n", res.Controller.Cycles)
	fmt.Fprintf(out, "rate: %.3f -> %.3f deg/s\n", res.InitialRateDPS, res.FinalRateDPS)
	if cfg.Sim.Record != "" {
		fmt.Fprintf(out, "record: %s\n", cfg.Sim.Record)
	}
	return nil
}
