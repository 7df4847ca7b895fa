// Package eventqueue implements the bounded single-producer/
// single-consumer queue that carries market data events between the
// feed handler and the decision pipeline. A real deployment would use
// a memory-mapped, cache-line-aligned ring buffer; this simulates the
// same semantics (bounded capacity, drop-oldest overflow, latency
// tracking) with a slice-backed ring guarded by a mutex, matching the
// original's deque-based simulation of lock-free behavior.
package eventqueue

import (
	"sync"

	"github.com/lumenfeed/hftorch/internal/clock"
	"github.com/lumenfeed/hftorch/internal/marketdata"
)

// entry pairs an enqueued event with its enqueue timestamp, for
// dequeue-side latency tracking.
type entry struct {
	ts    clock.Timestamp
	event *marketdata.MarketDataEvent
}

// Queue is a bounded ring buffer of *marketdata.MarketDataEvent.
type Queue struct {
	name     string
	capacity int
	clock    *clock.Clock

	mu   sync.Mutex
	buf  []entry
	head int
	size int

	enqueueCount  uint64
	dequeueCount  uint64
	overflowCount uint64
	totalLatency  int64
	maxLatency    int64
}

// New creates a queue with the given capacity, named for logging/stats.
func New(name string, capacity int, clk *clock.Clock) *Queue {
	if capacity <= 0 {
		capacity = 65536
	}
	return &Queue{
		name:     name,
		capacity: capacity,
		clock:    clk,
		buf:      make([]entry, capacity),
	}
}

// Publish enqueues event, dropping the oldest entry if the queue is
// full, and returns the enqueue timestamp.
func (q *Queue) Publish(event *marketdata.MarketDataEvent) clock.Timestamp {
	ts := q.clock.Now()

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size >= q.capacity {
		q.overflowCount++
		q.head = (q.head + 1) % q.capacity
		q.size--
	}

	tail := (q.head + q.size) % q.capacity
	q.buf[tail] = entry{ts: ts, event: event}
	q.size++
	q.enqueueCount++

	return ts
}

// Consume pops the oldest event, or returns nil if the queue is empty.
func (q *Queue) Consume() *marketdata.MarketDataEvent {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size == 0 {
		return nil
	}

	e := q.buf[q.head]
	q.buf[q.head] = entry{}
	q.head = (q.head + 1) % q.capacity
	q.size--
	q.dequeueCount++

	dequeueNS := q.clock.Now().EpochNS
	latency := dequeueNS - e.ts.EpochNS
	q.totalLatency += latency
	if latency > q.maxLatency {
		q.maxLatency = latency
	}

	return e.event
}

// ConsumeBatch pops up to maxItems events in FIFO order.
func (q *Queue) ConsumeBatch(maxItems int) []*marketdata.MarketDataEvent {
	batch := make([]*marketdata.MarketDataEvent, 0, maxItems)
	for i := 0; i < maxItems; i++ {
		item := q.Consume()
		if item == nil {
			break
		}
		batch = append(batch, item)
	}
	return batch
}

// Depth returns the current number of buffered events.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// IsEmpty reports whether the queue currently holds no events.
func (q *Queue) IsEmpty() bool {
	return q.Depth() == 0
}

// Stats is a point-in-time snapshot of queue counters.
type Stats struct {
	Name          string
	Capacity      int
	Depth         int
	EnqueueCount  uint64
	DequeueCount  uint64
	OverflowCount uint64
	AvgLatencyNS  float64
	MaxLatencyNS  int64
	AvgLatencyUS  float64
}

// GetStats returns a snapshot of the queue's counters.
func (q *Queue) GetStats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	var avgLatency float64
	if q.dequeueCount > 0 {
		avgLatency = float64(q.totalLatency) / float64(q.dequeueCount)
	}

	return Stats{
		Name:          q.name,
		Capacity:      q.capacity,
		Depth:         q.size,
		EnqueueCount:  q.enqueueCount,
		DequeueCount:  q.dequeueCount,
		OverflowCount: q.overflowCount,
		AvgLatencyNS:  avgLatency,
		MaxLatencyNS:  q.maxLatency,
		AvgLatencyUS:  avgLatency / 1_000.0,
	}
}

// ResetStats zeroes the counters without touching buffered events.
func (q *Queue) ResetStats() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueueCount = 0
	q.dequeueCount = 0
	q.overflowCount = 0
	q.totalLatency = 0
	q.maxLatency = 0
}
