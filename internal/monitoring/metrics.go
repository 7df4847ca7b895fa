// Package monitoring collects latency/throughput metrics from every HFT
// subsystem, exposes them as Prometheus series, and aggregates them into
// a single dashboard snapshot for WebSocket broadcast.
package monitoring

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gonum.org/v1/gonum/stat"

	"github.com/lumenfeed/hftorch/internal/clock"
)

// LatencyMetrics accumulates a bounded window of nanosecond samples for
// one measured operation and serves percentile queries over them.
type LatencyMetrics struct {
	name      string
	maxSamples int

	mu        sync.Mutex
	samples   []float64 // nanoseconds, insertion order, bounded to maxSamples
	sorted    []float64
	dirty     bool
	count     int64
	sum       float64

	hist prometheus.Histogram
}

// NewLatencyMetrics builds a named tracker bounded to maxSamples, with a
// Prometheus histogram registered under hft_latency_<name>_nanoseconds
// against reg. Each Orchestrator owns its own registry (see Collector),
// so two instances never collide on the same metric name.
func NewLatencyMetrics(name string, maxSamples int, reg prometheus.Registerer) *LatencyMetrics {
	return &LatencyMetrics{
		name:       name,
		maxSamples: maxSamples,
		samples:    make([]float64, 0, maxSamples),
		hist: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "hft_latency_" + name + "_nanoseconds",
			Help:    "Latency distribution for " + name + " in nanoseconds",
			Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000, 25000, 50000, 100000, 250000, 500000, 1000000},
		}),
	}
}

// Record appends a new latency sample, evicting the oldest once the
// tracker's capacity is reached (a sliding window, not a reservoir).
func (l *LatencyMetrics) Record(latencyNS int64) {
	v := float64(latencyNS)
	l.hist.Observe(v)

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.samples) >= l.maxSamples {
		l.samples = l.samples[1:]
	}
	l.samples = append(l.samples, v)
	l.count++
	l.sum += v
	l.dirty = true
}

// rebuildSortedLocked refreshes the sorted-sample cache used for
// percentile lookups. Must be called with l.mu held.
func (l *LatencyMetrics) rebuildSortedLocked() {
	if !l.dirty {
		return
	}
	l.sorted = append(l.sorted[:0], l.samples...)
	sort.Float64s(l.sorted)
	l.dirty = false
}

// Percentile returns the p-th percentile (0-100) of the current window
// using gonum's empirical CDF (nearest rank, no interpolation: the result
// is always one of the recorded samples).
func (l *LatencyMetrics) Percentile(p float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.samples) == 0 {
		return 0
	}
	l.rebuildSortedLocked()
	return stat.Quantile(p/100.0, stat.Empirical, l.sorted, nil)
}

// Avg returns the mean of every sample ever recorded (not just the
// current window), matching the original's cumulative average.
func (l *LatencyMetrics) Avg() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.count == 0 {
		return 0
	}
	return l.sum / float64(l.count)
}

// Count returns the number of samples ever recorded.
func (l *LatencyMetrics) Count() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// LatencyStats is a point-in-time percentile/average snapshot.
type LatencyStats struct {
	AvgNS  float64
	P50NS  float64
	P95NS  float64
	P99NS  float64
	P999NS float64
	AvgUS  float64
	P50US  float64
	P95US  float64
	P99US  float64
	P999US float64
	Count  int64
}

// ToStats reports every percentile in both nanosecond and microsecond
// units, matching the original's to_dict "_ns"/"_us" field pairing.
func (l *LatencyMetrics) ToStats() LatencyStats {
	avg := l.Avg()
	p50 := l.Percentile(50)
	p95 := l.Percentile(95)
	p99 := l.Percentile(99)
	p999 := l.Percentile(99.9)

	return LatencyStats{
		AvgNS: avg, P50NS: p50, P95NS: p95, P99NS: p99, P999NS: p999,
		AvgUS: avg / 1000.0, P50US: p50 / 1000.0, P95US: p95 / 1000.0, P99US: p99 / 1000.0, P999US: p999 / 1000.0,
		Count: l.Count(),
	}
}

// throughputSample is a single event's arrival time, held only long
// enough to compute a trailing per-second rate.
type throughputSample struct {
	atNS      int64
	isOrder   bool
	isFill    bool
}

// Alert is a raised threshold breach, e.g. a tick-to-trade p99 blowout.
type Alert struct {
	Type        string
	Message     string
	TimestampNS int64
}

// Collector owns the seven named latency stages measured end to end,
// plus a sliding throughput window and a bounded alert log.
type Collector struct {
	clock *clock.Clock

	TickToTrade        *LatencyMetrics
	FeedHandler        *LatencyMetrics
	BookUpdate         *LatencyMetrics
	FPGAPipeline       *LatencyMetrics
	RiskCheck          *LatencyMetrics
	OrderRouting       *LatencyMetrics
	ExchangeRoundTrip  *LatencyMetrics

	alertTickToTradeUS    int64
	alert99thPercentileUS int64

	mu              sync.Mutex
	startedAtNS     int64
	throughput      []throughputSample
	eventCounts     map[string]int64
	alerts          []Alert

	eventsGauge  prometheus.Gauge
	ordersGauge  prometheus.Gauge
}

// NewCollector wires all seven stage trackers and the Prometheus
// throughput gauges, bounding each stage to maxSamples latency samples.
// reg is a fresh *prometheus.Registry per Collector (see Orchestrator.New
// and Orchestrator.Registry) rather than the global default registerer,
// so that multiple Collectors can coexist in one process — notably in
// tests, which build several orchestrators in a single binary.
func NewCollector(clk *clock.Clock, maxSamples int, alertTickToTradeUS, alert99thPercentileUS int64, reg prometheus.Registerer) *Collector {
	return &Collector{
		clock:                 clk,
		TickToTrade:           NewLatencyMetrics("tick_to_trade", maxSamples, reg),
		FeedHandler:           NewLatencyMetrics("feed_handler", maxSamples, reg),
		BookUpdate:            NewLatencyMetrics("book_update", maxSamples, reg),
		FPGAPipeline:          NewLatencyMetrics("fpga_pipeline", maxSamples, reg),
		RiskCheck:             NewLatencyMetrics("risk_check", maxSamples, reg),
		OrderRouting:          NewLatencyMetrics("order_routing", maxSamples, reg),
		ExchangeRoundTrip:     NewLatencyMetrics("exchange_round_trip", maxSamples, reg),
		alertTickToTradeUS:    alertTickToTradeUS,
		alert99thPercentileUS: alert99thPercentileUS,
		startedAtNS:           clk.Now().EpochNS,
		eventCounts:           make(map[string]int64),
		eventsGauge: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "hft_events_per_second",
			Help: "Trailing one-second event throughput",
		}),
		ordersGauge: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "hft_orders_per_second",
			Help: "Trailing one-second order throughput",
		}),
	}
}

// RecordEvent folds one event into the sliding throughput window,
// trimming samples older than one second on every call.
func (c *Collector) RecordEvent(isOrder, isFill bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now().EpochNS
	c.throughput = append(c.throughput, throughputSample{atNS: now, isOrder: isOrder, isFill: isFill})
	c.eventCounts["events"]++
	if isOrder {
		c.eventCounts["orders"]++
	}
	if isFill {
		c.eventCounts["fills"]++
	}

	cutoff := now - int64(time.Second)
	i := 0
	for i < len(c.throughput) && c.throughput[i].atNS < cutoff {
		i++
	}
	if i > 0 {
		c.throughput = c.throughput[i:]
	}

	var events, orders, fills float64
	for _, s := range c.throughput {
		events++
		if s.isOrder {
			orders++
		}
		if s.isFill {
			fills++
		}
	}
	c.eventsGauge.Set(events)
	c.ordersGauge.Set(orders)
	_ = fills
}

// CheckAlerts evaluates the tick-to-trade p99 against the configured
// threshold and appends a LATENCY_P99 alert when it is breached.
func (c *Collector) CheckAlerts() {
	p99US := c.TickToTrade.Percentile(99) / 1000.0
	if int64(p99US) <= c.alert99thPercentileUS {
		return
	}
	c.addAlert(Alert{
		Type:        "LATENCY_P99",
		Message:     "tick-to-trade p99 exceeded threshold",
		TimestampNS: c.clock.Now().EpochNS,
	})
}

// addAlert appends to the bounded alert log, trimming to the last 50
// entries once the log exceeds 100.
func (c *Collector) addAlert(a Alert) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.alerts = append(c.alerts, a)
	if len(c.alerts) > 100 {
		c.alerts = c.alerts[len(c.alerts)-50:]
	}
}

// Summary is the aggregated view returned by GetSummary.
type Summary struct {
	UptimeSeconds     float64
	EventsPerSecond   float64
	OrdersPerSecond   float64
	FillsPerSecond    float64
	Latencies         map[string]LatencyStats
	EventCounts       map[string]int64
	RecentAlerts      []Alert
}

// GetSummary aggregates uptime, current throughput, every stage's
// latency stats, cumulative event counts, and the last 10 alerts.
func (c *Collector) GetSummary() Summary {
	c.mu.Lock()
	uptimeNS := c.clock.Now().EpochNS - c.startedAtNS
	var events, orders, fills float64
	for _, s := range c.throughput {
		events++
		if s.isOrder {
			orders++
		}
		if s.isFill {
			fills++
		}
	}
	counts := make(map[string]int64, len(c.eventCounts))
	for k, v := range c.eventCounts {
		counts[k] = v
	}
	recent := c.alerts
	if len(recent) > 10 {
		recent = recent[len(recent)-10:]
	}
	alertsCopy := append([]Alert(nil), recent...)
	c.mu.Unlock()

	return Summary{
		UptimeSeconds:   float64(uptimeNS) / 1e9,
		EventsPerSecond: events,
		OrdersPerSecond: orders,
		FillsPerSecond:  fills,
		Latencies: map[string]LatencyStats{
			"tick_to_trade":        c.TickToTrade.ToStats(),
			"feed_handler":         c.FeedHandler.ToStats(),
			"book_update":          c.BookUpdate.ToStats(),
			"fpga_pipeline":        c.FPGAPipeline.ToStats(),
			"risk_check":           c.RiskCheck.ToStats(),
			"order_routing":        c.OrderRouting.ToStats(),
			"exchange_round_trip":  c.ExchangeRoundTrip.ToStats(),
		},
		EventCounts:  counts,
		RecentAlerts: alertsCopy,
	}
}
