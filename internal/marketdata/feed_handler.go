package marketdata

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lumenfeed/hftorch/internal/clock"
	"github.com/lumenfeed/hftorch/internal/eventqueue"
)

var defaultVenues = []string{"NASDAQ", "NYSE", "BATS", "ARCA"}

type symbolPrices struct {
	bid  float64
	ask  float64
	last float64
}

// FeedStats is a point-in-time snapshot of feed handler counters.
type FeedStats struct {
	MessagesReceived   int64
	MessagesPerSecond  float64
	BytesReceived      int64
	ParseErrors        int64
	GapsDetected       int64
	SymbolsTracked     int
	TickCount          int64
	QueueDepth         int
	KernelBypass       bool
	DPDKEnabled        bool
}

// FeedHandler simulates an ultra-low-latency market data feed:
// timestamps each synthetic tick at "NIC arrival" and publishes
// normalized MarketDataEvents to the output queue.
type FeedHandler struct {
	logger   *zap.Logger
	output   *eventqueue.Queue
	symbols  []string
	clock    *clock.Clock
	rng      *rand.Rand
	kernelBypass bool
	dpdkEnabled  bool

	// multicast, when set via SetMulticast, receives every generated
	// tick instead of it going straight to output: it fans the tick out
	// to whichever group's listeners cover that symbol, the way real
	// exchange multicast feeds split symbols across UDP groups. Nil by
	// default, so a bare FeedHandler (as built by tests) still publishes
	// directly to output.
	multicast *MulticastDistributor

	mu            sync.Mutex
	sequences     map[string]int64
	lastSeq       map[string]int64
	prices        map[string]*symbolPrices
	tickCount     int64
	messagesRecv  int64
	bytesRecv     int64
	parseErrors   int64
	gapsDetected  int64
	windowStart   time.Time
	windowCount   int64
	msgsPerSecond float64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewFeedHandler builds a feed handler for the given symbols, seeded
// with basePrices (defaulting to 100.0 for any symbol not present).
// rng should be seeded by the caller for reproducible simulations.
func NewFeedHandler(logger *zap.Logger, output *eventqueue.Queue, symbols []string, basePrices map[string]float64, clk *clock.Clock, rng *rand.Rand, kernelBypass, dpdkEnabled bool) *FeedHandler {
	f := &FeedHandler{
		logger:       logger,
		output:       output,
		symbols:      symbols,
		clock:        clk,
		rng:          rng,
		kernelBypass: kernelBypass,
		dpdkEnabled:  dpdkEnabled,
		sequences:    make(map[string]int64, len(symbols)),
		lastSeq:      make(map[string]int64, len(symbols)),
		prices:       make(map[string]*symbolPrices, len(symbols)),
		windowStart:  time.Now(),
	}

	for _, sym := range symbols {
		base := 100.0
		if b, ok := basePrices[sym]; ok {
			base = b
		}
		f.prices[sym] = &symbolPrices{
			bid:  round2(base - uniform(rng, 0.005, 0.02)),
			ask:  round2(base + uniform(rng, 0.005, 0.02)),
			last: base,
		}
	}

	return f
}

// SetMulticast routes every subsequently generated tick through d
// instead of publishing it straight to the output queue. d's own
// subscribers are expected to publish into that same queue (see
// Orchestrator.New), so this only changes the fan-out path, not the
// final destination.
func (f *FeedHandler) SetMulticast(d *MulticastDistributor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.multicast = d
}

// Start launches the background feed loop.
func (f *FeedHandler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.wg.Add(1)
	go f.feedLoop(ctx)
	f.logger.Info("feed handler started", zap.Int("symbols", len(f.symbols)), zap.Int("venues", len(defaultVenues)))
}

// Stop signals the feed loop to exit and waits for it to finish.
func (f *FeedHandler) Stop() {
	if f.cancel != nil {
		f.cancel()
	}
	f.wg.Wait()
	f.logger.Info("feed handler stopped", zap.Int64("messages_processed", f.messagesRecv))
}

func (f *FeedHandler) feedLoop(ctx context.Context) {
	defer f.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		batchSize := 5 + f.rng.Intn(16) // [5,20]
		for i := 0; i < batchSize; i++ {
			symbol := f.symbols[f.rng.Intn(len(f.symbols))]
			venue := defaultVenues[f.rng.Intn(len(defaultVenues))]
			event := f.generateTick(symbol, venue)
			f.publish(event)
			f.mu.Lock()
			f.tickCount++
			f.mu.Unlock()
		}

		sleepMS := uniform(f.rng, 0.5, 5.0)
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(sleepMS * float64(time.Millisecond))):
		}
	}
}

// publish routes event through the multicast distributor if one has
// been set, falling back to publishing straight to the output queue.
func (f *FeedHandler) publish(event *MarketDataEvent) {
	f.mu.Lock()
	d := f.multicast
	f.mu.Unlock()

	if d != nil {
		d.Distribute(event)
		return
	}
	f.output.Publish(event)
}

func (f *FeedHandler) generateTick(symbol, venue string) *MarketDataEvent {
	receiveTS := f.clock.Now()

	f.mu.Lock()
	prices := f.prices[symbol]
	f.sequences[symbol]++
	seq := f.sequences[symbol]
	f.mu.Unlock()

	mid := (prices.bid + prices.ask) / 2.0
	volatility := mid * 0.0001

	var event *MarketDataEvent
	if f.rng.Float64() < 0.6 {
		drift := gauss(f.rng, 0, volatility)
		newBid := round2(maxFloat(0.01, prices.bid+drift))
		newAsk := round2(maxFloat(newBid+0.01, prices.ask+drift))
		f.mu.Lock()
		prices.bid, prices.ask = newBid, newAsk
		f.mu.Unlock()

		event = &MarketDataEvent{
			EventType:   EventMarketDataL1,
			Symbol:      symbol,
			Venue:       venue,
			TimestampNS: f.clock.Now().EpochNS,
			ReceiveNS:   receiveTS.EpochNS,
			BidPrice:    newBid,
			BidSize:     int64(100 + f.rng.Intn(4901)),
			AskPrice:    newAsk,
			AskSize:     int64(100 + f.rng.Intn(4901)),
			Sequence:    uint64(seq),
		}
	} else {
		tradePrice := round2(prices.bid + f.rng.Float64()*(prices.ask-prices.bid))
		f.mu.Lock()
		prices.last = tradePrice
		f.mu.Unlock()

		tradeSizes := []int64{100, 200, 300, 500, 1000}
		event = &MarketDataEvent{
			EventType:   EventMarketDataTrade,
			Symbol:      symbol,
			Venue:       venue,
			TimestampNS: f.clock.Now().EpochNS,
			ReceiveNS:   receiveTS.EpochNS,
			BidPrice:    prices.bid,
			BidSize:     int64(100 + f.rng.Intn(4901)),
			AskPrice:    prices.ask,
			AskSize:     int64(100 + f.rng.Intn(4901)),
			TradePrice:  tradePrice,
			TradeSize:   tradeSizes[f.rng.Intn(len(tradeSizes))],
			Sequence:    uint64(seq),
		}
	}

	f.recordMessage(symbol, seq)
	return event
}

func (f *FeedHandler) recordMessage(symbol string, seq int64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.messagesRecv++
	f.bytesRecv += 64
	f.windowCount++

	prev, ok := f.lastSeq[symbol]
	if !ok {
		prev = seq - 1
	}
	if seq != prev+1 {
		f.gapsDetected++
	}
	f.lastSeq[symbol] = seq

	elapsed := time.Since(f.windowStart)
	if elapsed >= time.Second {
		f.msgsPerSecond = float64(f.windowCount) / elapsed.Seconds()
		f.windowStart = time.Now()
		f.windowCount = 0
	}
}

// InjectPriceShock applies an instantaneous percentage move to symbol's
// price, used to exercise the latency-arbitrage engine.
func (f *FeedHandler) InjectPriceShock(symbol string, magnitudePct float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.prices[symbol]
	if !ok {
		return
	}
	move := p.last * (magnitudePct / 100)
	p.bid = round2(p.bid + move)
	p.ask = round2(p.ask + move)
	p.last = round2(p.last + move)
	f.logger.Info("price shock injected", zap.String("symbol", symbol), zap.Float64("magnitude_pct", magnitudePct))
}

// GetStats returns a snapshot of feed handler counters.
func (f *FeedHandler) GetStats() FeedStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return FeedStats{
		MessagesReceived:  f.messagesRecv,
		MessagesPerSecond: f.msgsPerSecond,
		BytesReceived:     f.bytesRecv,
		ParseErrors:       f.parseErrors,
		GapsDetected:      f.gapsDetected,
		SymbolsTracked:    len(f.sequences),
		TickCount:         f.tickCount,
		QueueDepth:        f.output.Depth(),
		KernelBypass:      f.kernelBypass,
		DPDKEnabled:       f.dpdkEnabled,
	}
}

func round2(v float64) float64 {
	return float64(int64(v*100+sign(v)*0.5)) / 100
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

func gauss(rng *rand.Rand, mean, stddev float64) float64 {
	return mean + rng.NormFloat64()*stddev
}
