package monitoring

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenfeed/hftorch/internal/clock"
)

func TestLatencyMetricsPercentilesOverKnownDistribution(t *testing.T) {
	lm := NewLatencyMetrics("test_stage_a", 1000, prometheus.NewRegistry())
	for i := int64(1); i <= 100; i++ {
		lm.Record(i * 1000)
	}

	stats := lm.ToStats()
	require.Equal(t, int64(100), stats.Count)
	assert.InDelta(t, 50500, stats.AvgNS, 1)
	assert.InDelta(t, 50000, stats.P50NS, 2000)
	assert.Greater(t, stats.P99NS, stats.P50NS)
}

func TestLatencyMetricsWindowEvictsOldestSample(t *testing.T) {
	lm := NewLatencyMetrics("test_stage_b", 3, prometheus.NewRegistry())
	lm.Record(10)
	lm.Record(20)
	lm.Record(30)
	lm.Record(40) // evicts the 10ns sample

	lm.mu.Lock()
	samples := append([]float64(nil), lm.samples...)
	lm.mu.Unlock()
	assert.Equal(t, []float64{20, 30, 40}, samples)
	assert.Equal(t, int64(4), lm.Count()) // cumulative count survives eviction
}

func TestCollectorRecordEventTracksThroughput(t *testing.T) {
	c := NewCollector(clock.New(), 1000, 100, 500, prometheus.NewRegistry())
	c.RecordEvent(true, false)
	c.RecordEvent(true, true)
	c.RecordEvent(false, false)

	summary := c.GetSummary()
	assert.Equal(t, int64(3), summary.EventCounts["events"])
	assert.Equal(t, int64(2), summary.EventCounts["orders"])
	assert.Equal(t, int64(1), summary.EventCounts["fills"])
	assert.Equal(t, float64(3), summary.EventsPerSecond)
}

func TestCheckAlertsRaisesLatencyP99Breach(t *testing.T) {
	c := NewCollector(clock.New(), 1000, 100, 50, prometheus.NewRegistry()) // 50us threshold
	for i := 0; i < 200; i++ {
		c.TickToTrade.Record(100_000) // 100us, well above threshold
	}

	c.CheckAlerts()
	summary := c.GetSummary()
	require.NotEmpty(t, summary.RecentAlerts)
	assert.Equal(t, "LATENCY_P99", summary.RecentAlerts[len(summary.RecentAlerts)-1].Type)
}

func TestCheckAlertsStaysQuietBelowThreshold(t *testing.T) {
	c := NewCollector(clock.New(), 1000, 100, 500, prometheus.NewRegistry())
	for i := 0; i < 50; i++ {
		c.TickToTrade.Record(1_000) // 1us, far below a 500us threshold
	}

	c.CheckAlerts()
	summary := c.GetSummary()
	assert.Empty(t, summary.RecentAlerts)
}
