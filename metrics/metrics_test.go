package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestLookupMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLookupMetrics(reg)

	m.ObserveLookup("legacy", "success")
	m.ObserveLookup("legacy", "success")
	m.ObserveLookup("routes", "cancelled")
	m.ObservePhase("connect", 10*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.lookups.WithLabelValues("legacy", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lookups.WithLabelValues("routes", "cancelled")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.phaseDuration))
}

func TestServerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewServerMetrics(reg)

	m.SessionEvent("attested")
	m.PermitsUsed(3)
	m.PermitsUsed(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessions.WithLabelValues("attested")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.permitsUsed))
}

func TestNilMetrics(t *testing.T) {
	var lm *LookupMetrics
	lm.ObserveLookup("legacy", "success")
	lm.ObservePhase("connect", time.Second)

	var sm *ServerMetrics
	sm.SessionEvent("attested")
	sm.PermitsUsed(1)
}
