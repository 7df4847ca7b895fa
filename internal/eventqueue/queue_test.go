package eventqueue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenfeed/hftorch/internal/clock"
	"github.com/lumenfeed/hftorch/internal/marketdata"
)

func TestPublishConsumeFIFO(t *testing.T) {
	q := New("test", 4, clock.New())

	for i := 0; i < 3; i++ {
		q.Publish(&marketdata.MarketDataEvent{Symbol: "AAPL", Sequence: uint64(i)})
	}

	require.Equal(t, 3, q.Depth())

	for i := 0; i < 3; i++ {
		e := q.Consume()
		require.NotNil(t, e)
		assert.Equal(t, uint64(i), e.Sequence)
	}
	assert.True(t, q.IsEmpty())
}

func TestPublishOverflowDropsOldest(t *testing.T) {
	q := New("test", 2, clock.New())

	q.Publish(&marketdata.MarketDataEvent{Sequence: 1})
	q.Publish(&marketdata.MarketDataEvent{Sequence: 2})
	q.Publish(&marketdata.MarketDataEvent{Sequence: 3}) // drops seq 1

	stats := q.GetStats()
	assert.Equal(t, uint64(1), stats.OverflowCount)

	first := q.Consume()
	require.NotNil(t, first)
	assert.Equal(t, uint64(2), first.Sequence)
}

func TestConsumeEmptyReturnsNil(t *testing.T) {
	q := New("test", 4, clock.New())
	assert.Nil(t, q.Consume())
}

func TestConsumeBatchRespectsLimit(t *testing.T) {
	q := New("test", 16, clock.New())
	for i := 0; i < 10; i++ {
		q.Publish(&marketdata.MarketDataEvent{Sequence: uint64(i)})
	}
	batch := q.ConsumeBatch(4)
	assert.Len(t, batch, 4)
	assert.Equal(t, 6, q.Depth())
}

func TestStatsTrackLatency(t *testing.T) {
	q := New("test", 4, clock.New())
	q.Publish(&marketdata.MarketDataEvent{Sequence: 1})
	q.Consume()
	stats := q.GetStats()
	assert.Equal(t, uint64(1), stats.EnqueueCount)
	assert.Equal(t, uint64(1), stats.DequeueCount)
	assert.GreaterOrEqual(t, stats.MaxLatencyNS, int64(0))
}
