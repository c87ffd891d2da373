// Package metrics exposes Prometheus counters for token refresh cycles and
// classified request failures.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "authclient"

// Metrics is safe to use through a nil pointer, which records nothing.
type Metrics struct {
	refreshes      *prometheus.CounterVec
	refreshWaiters prometheus.Counter
	requestErrors  *prometheus.CounterVec
}

// New creates the collectors and registers them on reg when it is non-nil.
// Collectors already registered by another client are reused.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refresh_total",
			Help:      "Token refresh cycles by outcome.",
		}, []string{"outcome"}),
		refreshWaiters: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refresh_shared_total",
			Help:      "Unauthorized requests that joined an in-flight or settled refresh cycle.",
		}),
		requestErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_errors_total",
			Help:      "Failed requests by classified error kind.",
		}, []string{"kind"}),
	}
	if reg != nil {
		m.refreshes = register(reg, m.refreshes)
		m.refreshWaiters = register(reg, m.refreshWaiters)
		m.requestErrors = register(reg, m.requestErrors)
	}
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// RefreshDone records the outcome of one refresh cycle
func (m *Metrics) RefreshDone(err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.refreshes.WithLabelValues(outcome).Inc()
}

// RefreshShared records a request that reused another request's refresh
func (m *Metrics) RefreshShared() {
	if m == nil {
		return
	}
	m.refreshWaiters.Inc()
}

// RequestFailed records a failed request by error kind name
func (m *Metrics) RequestFailed(kind string) {
	if m == nil {
		return
	}
	m.requestErrors.WithLabelValues(kind).Inc()
}
