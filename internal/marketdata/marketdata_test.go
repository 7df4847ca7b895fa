package marketdata

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/lumenfeed/hftorch/internal/clock"
	"github.com/lumenfeed/hftorch/internal/eventqueue"
)

func TestMarketDataEventDerivedFields(t *testing.T) {
	e := &MarketDataEvent{BidPrice: 99.5, AskPrice: 100.5}
	assert.Equal(t, 100.0, e.MidPrice())
	assert.Equal(t, 1.0, e.Spread())
	assert.InDelta(t, 100.0, e.SpreadBPS(), 0.01)
}

func TestMarketDataEventMidPriceFallback(t *testing.T) {
	e := &MarketDataEvent{TradePrice: 50.0}
	assert.Equal(t, 50.0, e.MidPrice())
	assert.Equal(t, 0.0, e.Spread())
}

func TestFeedHandlerGeneratesTicksIntoQueue(t *testing.T) {
	logger := zap.NewNop()
	q := eventqueue.New("feed", 1024, clock.New())
	rng := rand.New(rand.NewSource(42))
	fh := NewFeedHandler(logger, q, []string{"AAPL", "MSFT"}, map[string]float64{"AAPL": 150, "MSFT": 300}, clock.New(), rng, true, false)

	event := fh.generateTick("AAPL", "NASDAQ")
	assert.Equal(t, "AAPL", event.Symbol)
	assert.Equal(t, "NASDAQ", event.Venue)
	assert.Greater(t, event.Sequence, uint64(0))
}

func TestFeedHandlerInjectPriceShock(t *testing.T) {
	logger := zap.NewNop()
	q := eventqueue.New("feed", 1024, clock.New())
	rng := rand.New(rand.NewSource(1))
	fh := NewFeedHandler(logger, q, []string{"AAPL"}, map[string]float64{"AAPL": 100}, clock.New(), rng, true, false)

	before := fh.prices["AAPL"].last
	fh.InjectPriceShock("AAPL", 5.0)
	after := fh.prices["AAPL"].last
	assert.Greater(t, after, before)
}

func TestFeedHandlerDoesNotCountGapsOnMonotonicSequence(t *testing.T) {
	logger := zap.NewNop()
	q := eventqueue.New("feed", 1024, clock.New())
	rng := rand.New(rand.NewSource(7))
	fh := NewFeedHandler(logger, q, []string{"AAPL"}, map[string]float64{"AAPL": 150}, clock.New(), rng, true, false)

	for i := 0; i < 50; i++ {
		fh.generateTick("AAPL", "NASDAQ")
	}

	assert.Equal(t, int64(0), fh.GetStats().GapsDetected)
}

func TestFeedHandlerCountsOneGapOnSkippedSequence(t *testing.T) {
	logger := zap.NewNop()
	q := eventqueue.New("feed", 1024, clock.New())
	rng := rand.New(rand.NewSource(7))
	fh := NewFeedHandler(logger, q, []string{"AAPL"}, map[string]float64{"AAPL": 150}, clock.New(), rng, true, false)

	fh.generateTick("AAPL", "NASDAQ") // seq 1, lastSeq -> 1
	fh.sequences["AAPL"]++            // simulate a dropped message: generator skips to seq 3
	fh.generateTick("AAPL", "NASDAQ") // seq 3, prev was 1 -> gap

	assert.Equal(t, int64(1), fh.GetStats().GapsDetected)
}

func TestFeedHandlerPublishesThroughMulticastWhenSet(t *testing.T) {
	logger := zap.NewNop()
	q := eventqueue.New("feed", 1024, clock.New())
	rng := rand.New(rand.NewSource(3))
	fh := NewFeedHandler(logger, q, []string{"AAPL", "MSFT"}, map[string]float64{"AAPL": 150, "MSFT": 300}, clock.New(), rng, true, false)

	d := NewMulticastDistributor(logger)
	d.CreateGroup("239.1.1.1", []string{"AAPL"})
	d.CreateGroup("239.1.1.2", []string{"MSFT"})
	d.Subscribe("239.1.1.1", func(e *MarketDataEvent) { q.Publish(e) })
	d.Subscribe("239.1.1.2", func(e *MarketDataEvent) { q.Publish(e) })
	fh.SetMulticast(d)

	fh.publish(fh.generateTick("AAPL", "NASDAQ"))
	fh.publish(fh.generateTick("MSFT", "NASDAQ"))

	assert.Equal(t, int64(2), d.GetStats().TotalDistributed)
	assert.Equal(t, 2, q.Depth())
}

func TestMulticastDistributorRoutesBySymbol(t *testing.T) {
	logger := zap.NewNop()
	d := NewMulticastDistributor(logger)
	d.CreateGroup("239.1.1.1", []string{"AAPL"})
	d.CreateGroup("239.1.1.2", []string{"MSFT"})

	var receivedAAPL, receivedMSFT int
	d.Subscribe("239.1.1.1", func(e *MarketDataEvent) { receivedAAPL++ })
	d.Subscribe("239.1.1.2", func(e *MarketDataEvent) { receivedMSFT++ })

	d.Distribute(&MarketDataEvent{Symbol: "AAPL"})
	d.Distribute(&MarketDataEvent{Symbol: "MSFT"})
	d.Distribute(&MarketDataEvent{Symbol: "AAPL"})

	assert.Equal(t, 2, receivedAAPL)
	assert.Equal(t, 1, receivedMSFT)

	stats := d.GetStats()
	assert.Equal(t, int64(3), stats.TotalDistributed)
}

func TestMulticastAssignGroupsSpreadsSymbols(t *testing.T) {
	logger := zap.NewNop()
	d := NewMulticastDistributor(logger)
	symbols := []string{"A", "B", "C", "D"}
	d.AssignGroups(symbols, 2)

	stats := d.GetStats()
	assert.Equal(t, 2, stats.TotalGroups)
	assert.Equal(t, 4, stats.TotalSymbols)
}
