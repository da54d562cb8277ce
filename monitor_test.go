package destiny

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerformanceMetrics(t *testing.T) {
	metrics := &PerformanceMetrics{}
	assert.Zero(t, metrics.AverageDrawTime())
	assert.Zero(t, metrics.FallbackRate())

	metrics.TotalDraws = 4
	metrics.TotalDrawTime = int64(8 * time.Millisecond)
	metrics.ReadingsDelivered = 3
	metrics.ReadingsFallback = 1

	assert.Equal(t, 2*time.Millisecond, metrics.AverageDrawTime())
	assert.InDelta(t, 25.0, metrics.FallbackRate(), 0.001)
}

func TestPerformanceMonitor(t *testing.T) {
	pm := NewPerformanceMonitor()

	pm.RecordDraw(time.Millisecond)
	pm.RecordDraw(3 * time.Millisecond)
	pm.RecordRejectedDraw("complete")
	pm.RecordRejectedDraw("in_progress")
	pm.RecordCompletion()
	pm.RecordReset()
	pm.RecordReading(false)
	pm.RecordReading(true)
	pm.RecordStaleReading()
	pm.RecordCacheLookup(true)
	pm.RecordCacheLookup(false)

	metrics := pm.GetMetrics()
	assert.Equal(t, int64(2), metrics.TotalDraws)
	assert.Equal(t, 2*time.Millisecond, metrics.AverageDrawTime())
	assert.Equal(t, int64(2), metrics.RejectedDraws)
	assert.Equal(t, int64(1), metrics.Completions)
	assert.Equal(t, int64(1), metrics.Resets)
	assert.Equal(t, int64(1), metrics.ReadingsDelivered)
	assert.Equal(t, int64(1), metrics.ReadingsFallback)
	assert.Equal(t, int64(1), metrics.ReadingsStale)
	assert.Equal(t, int64(1), metrics.CacheHits)
	assert.Equal(t, int64(1), metrics.CacheMisses)
	assert.GreaterOrEqual(t, metrics.LastUpdateTime, metrics.StartTime)

	t.Run("prometheus_export", func(t *testing.T) {
		assert.Equal(t, 2.0, testutil.ToFloat64(pm.drawsTotal.WithLabelValues("ok")))
		assert.Equal(t, 1.0, testutil.ToFloat64(pm.drawsTotal.WithLabelValues("complete")))
		assert.Equal(t, 1.0, testutil.ToFloat64(pm.readings.WithLabelValues("stale")))

		expected := `
# HELP destiny_ticket_completions_total Tickets that reached the complete state
# TYPE destiny_ticket_completions_total counter
destiny_ticket_completions_total 1
`
		require.NoError(t, testutil.GatherAndCompare(pm.Registry(), strings.NewReader(expected), "destiny_ticket_completions_total"))
	})

	t.Run("reset_metrics", func(t *testing.T) {
		pm.ResetMetrics()
		metrics := pm.GetMetrics()
		assert.Zero(t, metrics.TotalDraws)
		assert.Zero(t, metrics.ReadingsStale)
		// Prometheus 计数器不受影响
		assert.Equal(t, 2.0, testutil.ToFloat64(pm.drawsTotal.WithLabelValues("ok")))
	})
}

func TestPerformanceMonitoringControl(t *testing.T) {
	pm := NewPerformanceMonitor()
	assert.True(t, pm.IsEnabled())

	pm.Disable()
	assert.False(t, pm.IsEnabled())
	pm.RecordDraw(time.Millisecond)
	pm.RecordCompletion()
	assert.Zero(t, pm.GetMetrics().TotalDraws)
	assert.Zero(t, pm.GetMetrics().Completions)

	pm.Enable()
	pm.RecordDraw(time.Millisecond)
	assert.Equal(t, int64(1), pm.GetMetrics().TotalDraws)
}

func TestPerformanceMonitor_IndependentRegistries(t *testing.T) {
	a := NewPerformanceMonitor()
	b := NewPerformanceMonitor()

	a.RecordCompletion()
	assert.Equal(t, 1, testutil.CollectAndCount(a.completions))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.completions))
}
