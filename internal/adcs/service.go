// Package adcs hosts a detumble controller: it owns the tick loop, polls the
// rate gyro and publishes snapshots for status and metrics.
package adcs

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"tsat-adcs/internal/detumble"
	"tsat-adcs/internal/logging"
)

// RateSensor reports body angular rate in degrees per second.
type RateSensor interface {
	ReadRateDPS() ([3]float64, error)
}

type Config struct {
	Controller   detumble.Config
	PollInterval time.Duration
	GyroInterval time.Duration
}

type Deps struct {
	Magnetometer detumble.Magnetometer
	Actuators    detumble.Actuators
	// Clock defaults to a monotonic clock started at New.
	Clock detumble.Clock
	Trace detumble.TraceSink
	// Gyro is optional.
	Gyro RateSensor
	// Hooks are chained after the service's logging hooks.
	Hooks detumble.Hooks
	Log   *slog.Logger
	// Publish, if set, receives every snapshot on the loop goroutine.
	Publish func(Snapshot)
}

type Rate struct {
	Valid     bool
	DPS       [3]float64
	NormDPS   float64
	UpdatedAt time.Time
	LastError string
}

type Snapshot struct {
	Running    bool
	Controller detumble.Snapshot
	Rate       Rate
	UpdatedAt  time.Time
}

type Service struct {
	cfg  Config
	deps Deps
	log  *slog.Logger
	ctl  *detumble.Controller

	hooks      detumble.Hooks
	lastErrLog map[string]time.Time

	mu      sync.RWMutex
	snap    Snapshot
	started bool

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// errLogEvery bounds how often a repeating adapter error is logged.
const errLogEvery = time.Second

func New(cfg Config, deps Deps) (*Service, error) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Millisecond
	}
	if cfg.GyroInterval <= 0 {
		cfg.GyroInterval = 200 * time.Millisecond
	}
	if deps.Clock == nil {
		deps.Clock = detumble.NewMonotonicClock()
	}
	if deps.Log == nil {
		deps.Log = logging.NewNop()
	}
	s := &Service{
		cfg:        cfg,
		deps:       deps,
		log:        deps.Log,
		lastErrLog: map[string]time.Time{},
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
	s.hooks = detumble.ChainHooks(s.logHooks(), deps.Hooks)
	ctl, err := detumble.New(cfg.Controller, detumble.Deps{
		Magnetometer: deps.Magnetometer,
		Actuators:    deps.Actuators,
		Clock:        deps.Clock,
		Trace:        deps.Trace,
		Hooks:        s.hooks,
	})
	if err != nil {
		return nil, fmt.Errorf("adcs: %w", err)
	}
	s.ctl = ctl
	return s, nil
}

func (s *Service) logHooks() detumble.Hooks {
	return detumble.Hooks{
		OnTransition: func(from, to detumble.State, nowMs uint32) {
			s.log.Debug("phase", "from", from, "to", to, "t_ms", nowMs)
		},
		OnCommand: func(moment [3]float64, cmds [3]detumble.Direction) {
			s.log.Debug("actuate", "moment", moment, "x", cmds[0], "y", cmds[1], "z", cmds[2])
		},
		OnError: func(op string, err error) {
			now := time.Now()
			if last, ok := s.lastErrLog[op]; ok && now.Sub(last) < errLogEvery {
				return
			}
			s.lastErrLog[op] = now
			s.log.Warn("adapter error", "op", op, "error", err)
		},
		OnFault: func(msg string) {
			s.log.Error("controller fault", "msg", msg)
		},
	}
}

// Start initializes the controller and runs the tick loop until ctx is done
// or Close is called.
func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("adcs: service is nil")
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("adcs: already started")
	}
	s.started = true
	s.mu.Unlock()

	s.ctl.Init()
	s.publish(true, time.Now().UTC())
	s.log.Info("detumble started",
		"sample", s.cfg.Controller.SampleDuration,
		"actuate", s.cfg.Controller.ActuateDuration,
		"decay", s.cfg.Controller.DecayDuration,
		"poll", s.cfg.PollInterval,
		"gyro", s.deps.Gyro != nil,
	)

	go s.run(ctx)
	return nil
}

func (s *Service) run(ctx context.Context) {
	defer close(s.doneCh)

	pollTick := time.NewTicker(s.cfg.PollInterval)
	defer pollTick.Stop()

	var gyroC <-chan time.Time
	if s.deps.Gyro != nil {
		gyroTick := time.NewTicker(s.cfg.GyroInterval)
		defer gyroTick.Stop()
		gyroC = gyroTick.C
		s.pollGyro()
	}

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return
		case <-s.stopCh:
			s.shutdown()
			return
		case <-pollTick.C:
			s.ctl.Tick()
			s.publish(true, time.Now().UTC())
		case <-gyroC:
			s.pollGyro()
		}
	}
}

func (s *Service) shutdown() {
	s.ctl.ForceOff()
	s.publish(false, time.Now().UTC())
	snap := s.ctl.Snapshot()
	s.log.Info("detumble stopped", "cycles", snap.Cycles, "sensor_errors", snap.SensorErrors, "actuator_errors", snap.ActuatorErrors)
}

func (s *Service) pollGyro() {
	dps, err := s.deps.Gyro.ReadRateDPS()
	now := time.Now().UTC()
	s.mu.Lock()
	if err != nil {
		s.snap.Rate.Valid = false
		s.snap.Rate.LastError = err.Error()
	} else {
		s.snap.Rate = Rate{
			Valid:     true,
			DPS:       dps,
			NormDPS:   math.Sqrt(dps[0]*dps[0] + dps[1]*dps[1] + dps[2]*dps[2]),
			UpdatedAt: now,
		}
	}
	s.mu.Unlock()
	if err != nil {
		s.hooks.OnError("read_rate", err)
	}
}

func (s *Service) publish(running bool, now time.Time) {
	s.mu.Lock()
	s.snap.Running = running
	s.snap.Controller = s.ctl.Snapshot()
	s.snap.UpdatedAt = now
	snap := s.snap
	s.mu.Unlock()
	if s.deps.Publish != nil {
		s.deps.Publish(snap)
	}
}

func (s *Service) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Done is closed once the loop has exited and the torquers are off.
func (s *Service) Done() <-chan struct{} {
	return s.doneCh
}

// Close stops the loop and waits for it to turn the torquers off.
func (s *Service) Close() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()
	if started {
		<-s.doneCh
	}
}
