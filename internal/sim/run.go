package sim

import (
	"context"
	"fmt"
	"time"

	"tsat-adcs/internal/detumble"
	"tsat-adcs/internal/telemetry"
)

type Recorder interface {
	Write(telemetry.Record) error
}

type RunConfig struct {
	Controller detumble.Config
	// Step is the physics and controller tick, a whole number of ms.
	Step     time.Duration
	Duration time.Duration
	Hooks    detumble.Hooks
	Trace    detumble.TraceSink
	// Recorder, if set, gets a record on every phase change.
	Recorder Recorder
}

type Result struct {
	Steps          int
	Elapsed        time.Duration
	InitialRateDPS float64
	FinalRateDPS   float64
	Controller     detumble.Snapshot
}

// Run steps sc and a fresh controller together for cfg.Duration of virtual
// time. It honors ctx between steps.
func Run(ctx context.Context, sc *Spacecraft, cfg RunConfig) (Result, error) {
	if sc == nil {
		return Result{}, fmt.Errorf("sim: spacecraft is nil")
	}
	if cfg.Step < time.Millisecond || cfg.Step%time.Millisecond != 0 {
		return Result{}, fmt.Errorf("sim: step must be a whole number of milliseconds, got %s", cfg.Step)
	}
	if cfg.Duration <= 0 {
		return Result{}, fmt.Errorf("sim: duration must be > 0")
	}
	ctl, err := detumble.New(cfg.Controller, detumble.Deps{
		Magnetometer: sc,
		Actuators:    sc,
		Clock:        sc,
		Trace:        cfg.Trace,
		Hooks:        cfg.Hooks,
	})
	if err != nil {
		return Result{}, fmt.Errorf("sim: %w", err)
	}

	res := Result{InitialRateDPS: sc.RateDPS()}
	ctl.Init()
	prev := ctl.State()
	if err := record(cfg.Recorder, sc, ctl); err != nil {
		return res, err
	}

	end := sc.Elapsed() + cfg.Duration
	for sc.Elapsed() < end {
		if res.Steps%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return finish(res, sc, ctl), err
			}
		}
		sc.Step(cfg.Step)
		st := ctl.Tick()
		res.Steps++
		if st != prev {
			if err := record(cfg.Recorder, sc, ctl); err != nil {
				return finish(res, sc, ctl), err
			}
			prev = st
		}
	}
	ctl.ForceOff()
	return finish(res, sc, ctl), nil
}

func finish(res Result, sc *Spacecraft, ctl *detumble.Controller) Result {
	res.Elapsed = sc.Elapsed()
	res.FinalRateDPS = sc.RateDPS()
	res.Controller = ctl.Snapshot()
	return res
}

func record(r Recorder, sc *Spacecraft, ctl *detumble.Controller) error {
	if r == nil {
		return nil
	}
	snap := ctl.Snapshot()
	if err := r.Write(telemetry.Record{
		AtMs:    snap.NowMs,
		State:   snap.State,
		Field:   snap.Filtered,
		Moment:  snap.LastMoment,
		RateDPS: sc.RateDPS(),
	}); err != nil {
		return fmt.Errorf("sim: record: %w", err)
	}
	return nil
}
