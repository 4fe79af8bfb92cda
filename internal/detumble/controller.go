package detumble

import (
	"errors"
	"fmt"
)

// Hooks are optional observers of controller events. They run synchronously
// on the Tick call path and must return promptly.
type Hooks struct {
	OnTransition   func(from, to State, nowMs uint32)
	OnFilterUpdate func(result UpdateResult, filtered [3]float64)
	OnCommand      func(moment [3]float64, cmds [3]Direction)
	OnError        func(op string, err error)
	// OnFault reports conditions that correct transition logic and a sane
	// clock never produce.
	OnFault func(msg string)
}

// Deps are the collaborators a Controller drives.
type Deps struct {
	Magnetometer Magnetometer
	Actuators    Actuators
	Clock        Clock
	// Trace is optional.
	Trace TraceSink
	Hooks Hooks
}

// Snapshot is a copy of the controller's observable state.
type Snapshot struct {
	State     State
	EnteredMs uint32
	NowMs     uint32

	FilterSeeded    bool
	Filtered        [3]float64
	Derivative      [3]float64
	DerivativeValid bool

	HaveSample bool
	LastSample FieldSample

	// MomentValid is true when the most recent Actuate tick produced a
	// command. LastMoment is kept for observability only.
	MomentValid bool
	LastMoment  [3]float64
	Commands    [3]Direction

	Cycles         uint64
	Accepted       uint64
	Skipped        uint64
	SensorErrors   uint64
	ActuatorErrors uint64
	Faults         uint64
}

// Controller is the detumble scheduler. It owns the field filter and the
// phase state; callers own the Controller.
//
// Tick never blocks. Not safe for concurrent use.
type Controller struct {
	cfg   Config
	mag   Magnetometer
	act   Actuators
	clock Clock
	trace TraceSink
	hooks Hooks

	filter *Filter

	state     State
	enteredMs uint32
	nowMs     uint32

	haveSampleTick bool
	lastSampleMs   uint32
	lastSample     FieldSample

	momentValid bool
	lastMoment  [3]float64
	commands    [3]Direction

	cycles         uint64
	accepted       uint64
	skipped        uint64
	sensorErrors   uint64
	actuatorErrors uint64
	faults         uint64
}

func New(cfg Config, deps Deps) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Magnetometer == nil {
		return nil, errors.New("detumble: magnetometer is nil")
	}
	if deps.Actuators == nil {
		return nil, errors.New("detumble: actuators is nil")
	}
	if deps.Clock == nil {
		return nil, errors.New("detumble: clock is nil")
	}
	return &Controller{
		cfg:    cfg,
		mag:    deps.Magnetometer,
		act:    deps.Actuators,
		clock:  deps.Clock,
		trace:  deps.Trace,
		hooks:  deps.Hooks,
		filter: NewFilter(cfg.Alpha),
		state:  StateSample,
	}, nil
}

// Config returns the tuning the controller was built with.
func (c *Controller) Config() Config { return c.cfg }

// Init forces all torquers off, takes the seed sample that cold-starts the
// filter and enters Sample. A failed seed read is reported through hooks;
// the first Sample tick then seeds the filter instead.
func (c *Controller) Init() {
	now := c.clock.NowMillis()
	c.nowMs = now
	c.allOff()
	c.sample(now)
	c.state = StateSample
	c.enteredMs = now
}

// Tick evaluates the state machine once and returns the state after the
// evaluation.
func (c *Controller) Tick() State {
	now := c.clock.NowMillis()
	c.nowMs = now

	switch c.state {
	case StateSample:
		c.allOff()
		c.sample(now)
	case StateActuate:
		c.actuate()
	case StateDecay:
		c.allOff()
	default:
		c.fault(fmt.Sprintf("unknown state %d; resetting to sample", int(c.state)))
		c.enter(StateSample, now)
		return c.state
	}

	if c.phaseExpired(now) {
		c.enter(next(c.state), now)
	}
	return c.state
}

// State returns the current phase.
func (c *Controller) State() State { return c.state }

// Snapshot returns a copy of the observable state.
func (c *Controller) Snapshot() Snapshot {
	filtered, seeded := c.filter.Filtered()
	deriv, derivOK := c.filter.Derivative()
	return Snapshot{
		State:           c.state,
		EnteredMs:       c.enteredMs,
		NowMs:           c.nowMs,
		FilterSeeded:    seeded,
		Filtered:        filtered,
		Derivative:      deriv,
		DerivativeValid: derivOK,
		HaveSample:      c.haveSampleTick,
		LastSample:      c.lastSample,
		MomentValid:     c.momentValid,
		LastMoment:      c.lastMoment,
		Commands:        c.commands,
		Cycles:          c.cycles,
		Accepted:        c.accepted,
		Skipped:         c.skipped,
		SensorErrors:    c.sensorErrors,
		ActuatorErrors:  c.actuatorErrors,
		Faults:          c.faults,
	}
}

func next(s State) State {
	switch s {
	case StateSample:
		return StateActuate
	case StateActuate:
		return StateDecay
	default:
		return StateSample
	}
}

// phaseExpired compares elapsed ticks against the phase duration. A
// difference that is negative as int32 means the clock stepped backward; it
// counts as expired so the loop cannot stall.
func (c *Controller) phaseExpired(now uint32) bool {
	d := int32(now - c.enteredMs)
	if d < 0 {
		c.fault(fmt.Sprintf("clock stepped backward (entered=%d now=%d)", c.enteredMs, now))
		return true
	}
	return uint32(d) >= c.cfg.phaseMillis(c.state)
}

func (c *Controller) enter(s State, now uint32) {
	from := c.state
	c.state = s
	c.enteredMs = now
	switch s {
	case StateActuate:
		c.momentValid = false
	case StateDecay:
		c.allOff()
	case StateSample:
		if from == StateDecay {
			c.cycles++
		}
	}
	if c.hooks.OnTransition != nil {
		c.hooks.OnTransition(from, s, now)
	}
}

func (c *Controller) sample(now uint32) {
	// One sample per tick value: repeated ticks at the same time do not
	// re-poll the sensor or feed the filter a zero delta.
	if c.haveSampleTick && now == c.lastSampleMs {
		return
	}

	raw, err := c.mag.ReadRaw()
	if err != nil {
		c.sensorErrors++
		c.filter.Invalidate()
		c.reportErr("read_field", err)
		return
	}
	s := FieldSample{Raw: raw, Tesla: c.mag.CountsToTesla(raw)}
	c.lastSample = s
	c.lastSampleMs = now
	c.haveSampleTick = true

	filtered, _, res := c.filter.Update(s.Tesla, now)
	switch res {
	case UpdateAccepted:
		c.accepted++
	case UpdateSkipped:
		c.skipped++
	}
	if c.hooks.OnFilterUpdate != nil {
		c.hooks.OnFilterUpdate(res, filtered)
	}
	if c.trace != nil {
		c.trace.TraceField(now, s, filtered)
	}
}

func (c *Controller) actuate() {
	deriv, ok := c.filter.Derivative()
	if !ok {
		c.momentValid = false
		return
	}
	m := Estimate(c.cfg.Gain, deriv)
	cmds := Commands(m, c.cfg.Threshold)
	for i, ax := range Axes {
		c.drive(ax, cmds[i])
	}
	c.lastMoment = m
	c.momentValid = true
	if c.hooks.OnCommand != nil {
		c.hooks.OnCommand(m, cmds)
	}
}

// ForceOff commands every axis off without changing the phase. Hosts call it
// when they stop ticking the controller.
func (c *Controller) ForceOff() {
	c.allOff()
}

func (c *Controller) allOff() {
	for _, ax := range Axes {
		c.drive(ax, Off)
	}
}

func (c *Controller) drive(ax Axis, dir Direction) {
	if err := c.act.SetAxis(ax, dir, PowerFull); err != nil {
		c.actuatorErrors++
		c.reportErr("set_axis", fmt.Errorf("axis %s %s: %w", ax, dir, err))
		return
	}
	c.commands[ax-1] = dir
}

func (c *Controller) reportErr(op string, err error) {
	if c.hooks.OnError != nil {
		c.hooks.OnError(op, err)
	}
}

func (c *Controller) fault(msg string) {
	c.faults++
	if c.hooks.OnFault != nil {
		c.hooks.OnFault(msg)
	}
}

// ChainHooks returns Hooks that call each non-nil hook of hs in order.
func ChainHooks(hs ...Hooks) Hooks {
	return Hooks{
		OnTransition: func(from, to State, nowMs uint32) {
			for _, h := range hs {
				if h.OnTransition != nil {
					h.OnTransition(from, to, nowMs)
				}
			}
		},
		OnFilterUpdate: func(result UpdateResult, filtered [3]float64) {
			for _, h := range hs {
				if h.OnFilterUpdate != nil {
					h.OnFilterUpdate(result, filtered)
				}
			}
		},
		OnCommand: func(moment [3]float64, cmds [3]Direction) {
			for _, h := range hs {
				if h.OnCommand != nil {
					h.OnCommand(moment, cmds)
				}
			}
		},
		OnError: func(op string, err error) {
			for _, h := range hs {
				if h.OnError != nil {
					h.OnError(op, err)
				}
			}
		},
		OnFault: func(msg string) {
			for _, h := range hs {
				if h.OnFault != nil {
					h.OnFault(msg)
				}
			}
		},
	}
}
