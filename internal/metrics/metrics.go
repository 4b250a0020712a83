package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cradle",
			Subsystem: "container",
			Name:      "state_transitions_total",
			Help:      "Number of lifecycle transitions between container states.",
		}, []string{"name", "from", "to"},
	)
	invalidTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cradle",
			Subsystem: "container",
			Name:      "invalid_transitions_total",
			Help:      "Number of rejected lifecycle transition requests.",
		}, []string{"name"},
	)
	restarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cradle",
			Subsystem: "container",
			Name:      "restarts_total",
			Help:      "Number of policy-authorized restarts.",
		}, []string{"name"},
	)
	probeFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cradle",
			Subsystem: "probe",
			Name:      "failures_total",
			Help:      "Number of failed health probes, including timeouts.",
		}, []string{"container"},
	)
	unhealthy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "cradle",
			Subsystem: "container",
			Name:      "unhealthy",
			Help:      "Whether a container is currently marked unhealthy (1) or not (0).",
		}, []string{"name"},
	)
	currentStates = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "cradle",
			Subsystem: "container",
			Name:      "current_state",
			Help:      "Current state of containers (1 = active state, 0 = inactive).",
		}, []string{"name", "state"},
	)
	trackedContainers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "cradle",
			Subsystem: "container",
			Name:      "tracked",
			Help:      "Number of containers currently tracked by the registry.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		stateTransitions, invalidTransitions, restarts,
		probeFailures, unhealthy, currentStates, trackedContainers,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the
// DefaultGatherer. The caller wires the route and the HTTP server.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func RecordStateTransition(name, from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(name, from, to).Inc()
	}
}

func IncInvalidTransition(name string) {
	if regOK.Load() {
		invalidTransitions.WithLabelValues(name).Inc()
	}
}

func IncRestart(name string) {
	if regOK.Load() {
		restarts.WithLabelValues(name).Inc()
	}
}

func IncProbeFailure(container string) {
	if regOK.Load() {
		probeFailures.WithLabelValues(container).Inc()
	}
}

func SetUnhealthy(name string, v bool) {
	if regOK.Load() {
		var f float64
		if v {
			f = 1
		}
		unhealthy.WithLabelValues(name).Set(f)
	}
}

func SetCurrentState(name, state string, active bool) {
	if regOK.Load() {
		var value float64
		if active {
			value = 1
		}
		currentStates.WithLabelValues(name, state).Set(value)
	}
}

func SetTracked(n int) {
	if regOK.Load() {
		trackedContainers.Set(float64(n))
	}
}
