// Package metrics exports detumble controller activity as Prometheus
// collectors.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"tsat-adcs/internal/detumble"
)

const namespace = "tsat_adcs"

type Metrics struct {
	transitions   *prometheus.CounterVec
	filterUpdates *prometheus.CounterVec
	commands      *prometheus.CounterVec
	errors        *prometheus.CounterVec
	faults        prometheus.Counter
	field         *prometheus.GaugeVec
	moment        *prometheus.GaugeVec
	bodyRate      *prometheus.GaugeVec
	bodyRateNorm  prometheus.Gauge
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Scheduler phase transitions.",
		}, []string{"from", "to"}),
		filterUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "filter_updates_total",
			Help:      "Field filter updates by result.",
		}, []string{"result"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "axis_commands_total",
			Help:      "Magnetorquer commands issued during actuation.",
		}, []string{"axis", "direction"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "adapter_errors_total",
			Help:      "Sensor and actuator adapter errors.",
		}, []string{"op"}),
		faults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "faults_total",
			Help:      "Scheduler faults (unknown state, clock anomalies).",
		}),
		field: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "filtered_field_tesla",
			Help:      "Low-pass filtered magnetic field.",
		}, []string{"axis"}),
		moment: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dipole_moment",
			Help:      "Last B-dot dipole estimate.",
		}, []string{"axis"}),
		bodyRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "body_rate_dps",
			Help:      "Measured body angular rate.",
		}, []string{"axis"}),
		bodyRateNorm: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "body_rate_norm_dps",
			Help:      "Magnitude of the measured body angular rate.",
		}),
	}
	for _, c := range []prometheus.Collector{
		m.transitions, m.filterUpdates, m.commands, m.errors, m.faults,
		m.field, m.moment, m.bodyRate, m.bodyRateNorm,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("metrics: register: %w", err)
		}
	}
	return m, nil
}

// Hooks returns controller hooks that update the collectors.
func (m *Metrics) Hooks() detumble.Hooks {
	return detumble.Hooks{
		OnTransition: func(from, to detumble.State, _ uint32) {
			m.transitions.WithLabelValues(from.String(), to.String()).Inc()
		},
		OnFilterUpdate: func(result detumble.UpdateResult, filtered [3]float64) {
			m.filterUpdates.WithLabelValues(result.String()).Inc()
			if result == detumble.UpdateSkipped {
				return
			}
			for i, ax := range detumble.Axes {
				m.field.WithLabelValues(ax.String()).Set(filtered[i])
			}
		},
		OnCommand: func(moment [3]float64, cmds [3]detumble.Direction) {
			for i, ax := range detumble.Axes {
				m.moment.WithLabelValues(ax.String()).Set(moment[i])
				m.commands.WithLabelValues(ax.String(), cmds[i].String()).Inc()
			}
		},
		OnError: func(op string, _ error) {
			m.errors.WithLabelValues(op).Inc()
		},
		OnFault: func(string) {
			m.faults.Inc()
		},
	}
}

// ObserveBodyRate records a gyro reading in degrees per second.
func (m *Metrics) ObserveBodyRate(dps [3]float64, norm float64) {
	for i, ax := range detumble.Axes {
		m.bodyRate.WithLabelValues(ax.String()).Set(dps[i])
	}
	m.bodyRateNorm.Set(norm)
}

// ObserveError counts an adapter error outside the controller, e.g. a gyro
// read.
func (m *Metrics) ObserveError(op string) {
	m.errors.WithLabelValues(op).Inc()
}
