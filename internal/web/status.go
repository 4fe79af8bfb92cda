package web

import (
	"runtime"
	"runtime/debug"
	"sync/atomic"
	"time"

	"tsat-adcs/internal/detumble"
)

const serviceName = "tsat-adcs"

type Status struct {
	startUnixNano int64
	ticks         uint64
	lastTickNano  int64
	mode          atomic.Value // string
	config        atomic.Value // map[string]any
	controller    atomic.Value // ControllerStatus
	rate          atomic.Value // RateStatus
}

func NewStatus() *Status {
	s := &Status{}
	now := time.Now().UTC()
	atomic.StoreInt64(&s.startUnixNano, now.UnixNano())
	s.mode.Store("")
	s.config.Store(map[string]any{})
	s.controller.Store(ControllerStatus{})
	s.rate.Store(RateStatus{})
	return s
}

// ControllerStatus is the JSON view of a detumble.Snapshot.
type ControllerStatus struct {
	State          string      `json:"state"`
	NowMs          uint32      `json:"now_ms"`
	PhaseElapsedMs uint32      `json:"phase_elapsed_ms"`
	Cycles         uint64      `json:"cycles"`
	FilterSeeded   bool        `json:"filter_seeded"`
	FilteredTesla  [3]float64  `json:"filtered_tesla"`
	DerivativeTPS  *[3]float64 `json:"derivative_tesla_per_s,omitempty"`
	LastRaw        *[3]int16   `json:"last_raw,omitempty"`
	Moment         *[3]float64 `json:"moment,omitempty"`
	Commands       [3]string   `json:"commands"`
	Accepted       uint64      `json:"filter_accepted"`
	Skipped        uint64      `json:"filter_skipped"`
	SensorErrors   uint64      `json:"sensor_errors"`
	ActuatorErrors uint64      `json:"actuator_errors"`
	Faults         uint64      `json:"faults"`
}

func ControllerStatusFrom(s detumble.Snapshot) ControllerStatus {
	out := ControllerStatus{
		State:          s.State.String(),
		NowMs:          s.NowMs,
		PhaseElapsedMs: s.NowMs - s.EnteredMs,
		Cycles:         s.Cycles,
		FilterSeeded:   s.FilterSeeded,
		FilteredTesla:  s.Filtered,
		Accepted:       s.Accepted,
		Skipped:        s.Skipped,
		SensorErrors:   s.SensorErrors,
		ActuatorErrors: s.ActuatorErrors,
		Faults:         s.Faults,
	}
	if s.DerivativeValid {
		d := s.Derivative
		out.DerivativeTPS = &d
	}
	if s.HaveSample {
		r := s.LastSample.Raw
		out.LastRaw = &r
	}
	if s.MomentValid {
		m := s.LastMoment
		out.Moment = &m
	}
	for i, c := range s.Commands {
		out.Commands[i] = c.String()
	}
	return out
}

// RateStatus is the latest gyro body-rate reading in degrees per second.
type RateStatus struct {
	Valid         bool       `json:"valid"`
	RateDPS       [3]float64 `json:"rate_dps"`
	NormDPS       float64    `json:"norm_dps"`
	LastUpdateUTC string     `json:"last_update_utc,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
}

func (s *Status) SetStatic(mode string, config map[string]any) {
	if mode != "" {
		s.mode.Store(mode)
	}
	if config != nil {
		s.config.Store(config)
	}
}

func (s *Status) SetController(nowUTC time.Time, snap detumble.Snapshot) {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	s.controller.Store(ControllerStatusFrom(snap))
	atomic.StoreInt64(&s.lastTickNano, nowUTC.UnixNano())
	atomic.AddUint64(&s.ticks, 1)
}

func (s *Status) SetRate(nowUTC time.Time, rate RateStatus) {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	rate.LastUpdateUTC = nowUTC.UTC().Format(time.RFC3339Nano)
	s.rate.Store(rate)
}

// LastTick returns when the controller last published, or zero.
func (s *Status) LastTick() time.Time {
	n := atomic.LoadInt64(&s.lastTickNano)
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

type StatusSnapshot struct {
	Service     string           `json:"service"`
	NowUTC      string           `json:"now_utc"`
	UptimeSec   int64            `json:"uptime_sec"`
	Mode        string           `json:"mode"`
	TicksTotal  uint64           `json:"ticks_total"`
	LastTickUTC string           `json:"last_tick_utc,omitempty"`
	Config      map[string]any   `json:"config"`
	Controller  ControllerStatus `json:"controller"`
	BodyRate    RateStatus       `json:"body_rate"`
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()
	uptime := nowUTC.Sub(start)

	snap := StatusSnapshot{
		Service:    serviceName,
		NowUTC:     nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec:  int64(uptime.Seconds()),
		Mode:       s.mode.Load().(string),
		TicksTotal: atomic.LoadUint64(&s.ticks),
		Config:     s.config.Load().(map[string]any),
		Controller: s.controller.Load().(ControllerStatus),
		BodyRate:   s.rate.Load().(RateStatus),
	}
	if t := s.LastTick(); !t.IsZero() {
		snap.LastTickUTC = t.Format(time.RFC3339Nano)
	}
	return snap
}

// BuildInfo identifies the flight binary: module version, VCS revision and
// the Go toolchain it was built with.
type BuildInfo struct {
	GoVersion string `json:"go_version"`
	Version   string `json:"version,omitempty"`
	Revision  string `json:"revision,omitempty"`
	Modified  bool   `json:"modified,omitempty"`
}

var readBuildInfo = debug.ReadBuildInfo

func currentBuild() BuildInfo {
	b := BuildInfo{GoVersion: runtime.Version()}
	bi, ok := readBuildInfo()
	if !ok || bi == nil {
		return b
	}
	b.Version = bi.Main.Version
	for _, kv := range bi.Settings {
		switch kv.Key {
		case "vcs.revision":
			b.Revision = kv.Value
		case "vcs.modified":
			b.Modified = kv.Value == "true"
		}
	}
	return b
}

// AboutSnapshot is what /api/about returns: the binary and the controller
// parameters it runs with, without any live state.
type AboutSnapshot struct {
	Service string         `json:"service"`
	Mode    string         `json:"mode"`
	Build   BuildInfo      `json:"build"`
	Config  map[string]any `json:"config"`
}

func (s *Status) About() AboutSnapshot {
	return AboutSnapshot{
		Service: serviceName,
		Mode:    s.mode.Load().(string),
		Build:   currentBuild(),
		Config:  s.config.Load().(map[string]any),
	}
}
