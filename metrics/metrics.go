// Package metrics defines the Prometheus collectors of the lookup client and the
// stub enclave server, and a small server exposing them.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cdsi"

// LookupMetrics tracks lookups performed by the client. A nil *LookupMetrics is
// valid and records nothing.
type LookupMetrics struct {
	lookups       *prometheus.CounterVec
	phaseDuration *prometheus.HistogramVec
}

// NewLookupMetrics creates and registers the client collectors.
func NewLookupMetrics(reg prometheus.Registerer) *LookupMetrics {
	m := &LookupMetrics{
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookups_total",
			Help:      "Lookups by connect strategy and outcome.",
		}, []string{"strategy", "outcome"}),
		phaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lookup_phase_duration_seconds",
			Help:      "Time spent waiting on each lookup phase.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"phase"}),
	}
	reg.MustRegister(m.lookups, m.phaseDuration)
	return m
}

// ObserveLookup counts a finished lookup by connect strategy and outcome.
func (m *LookupMetrics) ObserveLookup(strategy, outcome string) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(strategy, outcome).Inc()
}

// ObservePhase records how long a lookup phase took, including cancelled phases.
func (m *LookupMetrics) ObservePhase(phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// ServerMetrics tracks sessions handled by the stub enclave server. A nil
// *ServerMetrics is valid and records nothing.
type ServerMetrics struct {
	sessions    *prometheus.CounterVec
	permitsUsed prometheus.Counter
}

// NewServerMetrics creates and registers the server collectors.
func NewServerMetrics(reg prometheus.Registerer) *ServerMetrics {
	m := &ServerMetrics{
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "server_sessions_total",
			Help:      "Session lifecycle events.",
		}, []string{"event"}),
		permitsUsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "server_permits_used_total",
			Help:      "Rate limit permits charged to lookups.",
		}),
	}
	reg.MustRegister(m.sessions, m.permitsUsed)
	return m
}

// SessionEvent counts a session lifecycle event such as "attested" or "expired".
func (m *ServerMetrics) SessionEvent(event string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(event).Inc()
}

// PermitsUsed adds the permits charged to an accepted lookup request.
func (m *ServerMetrics) PermitsUsed(n int) {
	if m == nil {
		return
	}
	m.permitsUsed.Add(float64(n))
}

// MetricsServer serves /metrics for a gatherer.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server for gatherer on addr. It does not start listening.
func New(addr string, gatherer prometheus.Gatherer) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return &MetricsServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// ListenAndServe blocks serving /metrics until Shutdown is called.
func (s *MetricsServer) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

// Shutdown gracefully stops the metrics server.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
