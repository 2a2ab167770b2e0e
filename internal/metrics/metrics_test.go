package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheus_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewPrometheus(reg)
	require.NoError(t, err)

	m.IncEventReceived("storer/change_mode")
	m.IncEventReceived("storer/change_mode")
	m.IncEventDropped("storer/bogus", "decode")
	m.IncFetch("event", "applied")
	m.ObserveFetchLatency("event", 20*time.Millisecond)
	m.IncRebuild("canceled")
	m.IncPruned(3)
	m.SetCacheSize(12)
	m.IncCorrelationMiss("uploader/job")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.eventsReceived.WithLabelValues("storer/change_mode")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsDropped.WithLabelValues("storer/bogus", "decode")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fetches.WithLabelValues("event", "applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rebuilds.WithLabelValues("canceled")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.pruned))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.cacheSize))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.correlationMiss.WithLabelValues("uploader/job")))
}

func TestPrometheus_DoubleRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewPrometheus(reg)
	require.NoError(t, err)
	_, err = NewPrometheus(reg)
	assert.Error(t, err)
}

func TestNoopMetrics(t *testing.T) {
	var m Metrics = NoopMetrics{}
	m.IncEventReceived("x")
	m.IncFetch("x", "y")
	m.SetCacheSize(1)
}
