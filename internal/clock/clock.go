// Package clock provides the nanosecond-precision, sequence-numbered
// clock used across the HFT core for tick-to-trade measurement.
package clock

import (
	"sync/atomic"
	"time"
)

// Timestamp is an immutable monotonic reading: epoch_ns plus a
// per-clock sequence number that strictly increases across calls to
// Now on the same clock.
type Timestamp struct {
	EpochNS int64
	Seq     uint64
}

// EpochUS returns the timestamp in microseconds.
func (t Timestamp) EpochUS() int64 { return t.EpochNS / 1_000 }

// EpochMS returns the timestamp in milliseconds.
func (t Timestamp) EpochMS() int64 { return t.EpochNS / 1_000_000 }

// ElapsedNS returns ns elapsed from t to other.
func (t Timestamp) ElapsedNS(other Timestamp) int64 { return other.EpochNS - t.EpochNS }

// Clock produces monotonically non-decreasing nanosecond timestamps
// with a strictly increasing sequence number. Safe for concurrent use;
// Now never returns a value lower than the previous call even if the
// underlying wall clock regresses.
type Clock struct {
	baseNS  int64
	lastNS  int64
	seq     uint64
	started time.Time
}

// New creates a clock anchored to the current wall-clock time.
func New() *Clock {
	now := time.Now().UnixNano()
	return &Clock{baseNS: now, lastNS: now, started: time.Now()}
}

// Now returns the next timestamp. It is safe for a single goroutine
// (the clock is meant to be owned by one producer, matching the SPSC
// ownership model of the rest of the core) but uses atomics so reads
// from other goroutines (e.g. dashboard snapshotting "time since
// start") remain race-free.
func (c *Clock) Now() Timestamp {
	n := time.Now().UnixNano()
	for {
		last := atomic.LoadInt64(&c.lastNS)
		next := n
		if next <= last {
			next = last + 1 // clamp: never emit a value <= the prior one
		}
		if atomic.CompareAndSwapInt64(&c.lastNS, last, next) {
			seq := atomic.AddUint64(&c.seq, 1)
			return Timestamp{EpochNS: next, Seq: seq}
		}
	}
}

// Uptime returns elapsed wall-clock time since the clock was created.
func (c *Clock) Uptime() time.Duration {
	return time.Since(c.started)
}

// Measurement is a scoped latency measurement: call Clock.Measure to begin
// and ElapsedNS (or ElapsedUS) to read the duration. Unlike a context manager
// this is a plain struct so it survives suspension boundaries (gateway
// round-trips, loop pacing sleeps) without any special handling.
type Measurement struct {
	clock   *Clock
	startNS int64
}

// Measure begins a scoped measurement against this clock.
func (c *Clock) Measure() Measurement {
	return Measurement{clock: c, startNS: c.Now().EpochNS}
}

// ElapsedNS returns the nanoseconds elapsed since the measurement began.
func (m Measurement) ElapsedNS() int64 {
	return m.clock.Now().EpochNS - m.startNS
}

// ElapsedUS returns the microseconds elapsed since the measurement began.
func (m Measurement) ElapsedUS() float64 {
	return float64(m.ElapsedNS()) / 1_000.0
}
