// Package arbitrage implements the latency-arbitrage engine: a
// per-symbol, per-venue price matrix that fires a signal whenever a
// cross-venue spread exceeds a configured threshold. Unlike the
// original implementation, stale quotes (older than
// arb_staleness_threshold_us) are excluded from the best-bid/best-ask
// scan rather than merely flagged — an arbitrage signal built on a
// quote that's already out of date isn't a real opportunity.
package arbitrage

import (
	"sync"

	"github.com/lumenfeed/hftorch/internal/clock"
	"github.com/lumenfeed/hftorch/internal/config"
	"github.com/lumenfeed/hftorch/internal/marketdata"
)

// venueQuote is the last quote seen for one symbol on one venue.
type venueQuote struct {
	venue       string
	bid, ask    float64
	bidSize     int64
	askSize     int64
	timestampNS int64
	stale       bool
}

// Signal is a detected cross-venue arbitrage opportunity.
type Signal struct {
	Symbol              string
	BuyVenue            string
	BuyPrice            float64
	SellVenue           string
	SellPrice           float64
	SpreadBPS           float64
	Quantity            int64
	EstimatedProfit     float64
	LatencyAdvantageUS  float64
	TimestampNS         int64
}

// Engine maintains the venue-price matrix and detects opportunities.
type Engine struct {
	cfg        config.StrategyConfig
	clock      *clock.Clock
	strategyID string

	mu                   sync.Mutex
	venueQuotes          map[string]map[string]*venueQuote
	signals              []Signal
	opportunitiesDetected int64
	totalTheoreticalProfit float64
	ticksEvaluated       int64
}

// NewEngine builds an arbitrage engine from cfg.
func NewEngine(cfg config.StrategyConfig, clk *clock.Clock) *Engine {
	return &Engine{
		cfg:         cfg,
		clock:       clk,
		strategyID:  "ARB-CORE",
		venueQuotes: make(map[string]map[string]*venueQuote),
	}
}

// Evaluate folds event into the venue-price matrix and returns a
// signal if a cross-venue arbitrage opportunity is found among
// non-stale quotes.
func (e *Engine) Evaluate(event *marketdata.MarketDataEvent) *marketdata.StrategySignal {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.ticksEvaluated++

	if _, ok := e.venueQuotes[event.Symbol]; !ok {
		e.venueQuotes[event.Symbol] = make(map[string]*venueQuote)
	}
	e.venueQuotes[event.Symbol][event.Venue] = &venueQuote{
		venue:       event.Venue,
		bid:         event.BidPrice,
		ask:         event.AskPrice,
		bidSize:     event.BidSize,
		askSize:     event.AskSize,
		timestampNS: event.TimestampNS,
	}

	e.markStale(event.Symbol, event.TimestampNS)

	arb := e.scanForArb(event.Symbol)
	if arb == nil {
		return nil
	}

	return &marketdata.StrategySignal{
		EventType:   marketdata.EventStrategySignal,
		StrategyID:  e.strategyID,
		Symbol:      arb.Symbol,
		Side:        marketdata.SideBuy,
		TargetPrice: arb.BuyPrice,
		TargetQty:   arb.Quantity,
		Urgency:     0.95,
		SignalType:  "latency_arbitrage",
		TimestampNS: arb.TimestampNS,
		Metadata: map[string]interface{}{
			"buy_venue":            arb.BuyVenue,
			"sell_venue":           arb.SellVenue,
			"sell_price":           arb.SellPrice,
			"spread_bps":           arb.SpreadBPS,
			"estimated_profit":     arb.EstimatedProfit,
			"latency_advantage_us": arb.LatencyAdvantageUS,
		},
	}
}

func (e *Engine) markStale(symbol string, currentNS int64) {
	thresholdNS := e.cfg.ArbStalenessThresholdUS * 1_000
	for _, q := range e.venueQuotes[symbol] {
		age := currentNS - q.timestampNS
		q.stale = age > thresholdNS
	}
}

// scanForArb finds the best non-stale bid and ask across venues for
// symbol and builds a Signal if the spread clears the configured
// minimum. Must be called with e.mu held.
func (e *Engine) scanForArb(symbol string) *Signal {
	venues := e.venueQuotes[symbol]
	if len(venues) < 2 {
		return nil
	}

	var bestBidVenue, bestAskVenue string
	var bestBidQuote, bestAskQuote *venueQuote
	bestBid := 0.0
	bestAsk := float64(1) << 62

	for venue, q := range venues {
		if q.stale {
			continue
		}
		if q.bid > bestBid {
			bestBid = q.bid
			bestBidVenue = venue
			bestBidQuote = q
		}
		if q.ask < bestAsk {
			bestAsk = q.ask
			bestAskVenue = venue
			bestAskQuote = q
		}
	}

	if bestBidVenue == "" || bestAskVenue == "" || bestBidVenue == bestAskVenue || bestBid <= bestAsk {
		return nil
	}

	mid := (bestBid + bestAsk) / 2.0
	spreadBPS := ((bestBid - bestAsk) / mid) * 10_000

	if spreadBPS < e.cfg.ArbMinProfitBPS {
		return nil
	}

	qty := minInt64(bestBidQuote.bidSize, bestAskQuote.askSize, 1000)
	profit := (bestBid - bestAsk) * float64(qty)
	latencyAdvNS := absInt64(bestBidQuote.timestampNS - bestAskQuote.timestampNS)

	sig := Signal{
		Symbol:             symbol,
		BuyVenue:           bestAskVenue,
		BuyPrice:           bestAsk,
		SellVenue:          bestBidVenue,
		SellPrice:          bestBid,
		SpreadBPS:          roundN(spreadBPS, 2),
		Quantity:           qty,
		EstimatedProfit:    roundN(profit, 2),
		LatencyAdvantageUS: roundN(float64(latencyAdvNS)/1_000, 2),
		TimestampNS:        e.clock.Now().EpochNS,
	}

	e.signals = append(e.signals, sig)
	if len(e.signals) > 500 {
		e.signals = e.signals[len(e.signals)-250:]
	}
	e.opportunitiesDetected++
	e.totalTheoreticalProfit += profit

	return &sig
}

// Stats is a point-in-time rollup of the engine's counters.
type Stats struct {
	StrategyID              string
	Enabled                 bool
	TicksEvaluated          int64
	OpportunitiesDetected   int64
	TotalTheoreticalProfit  float64
	HitRatePct              float64
	RecentSignals           []Signal
}

// GetStats returns a snapshot of the engine's counters.
func (e *Engine) GetStats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	hitRate := 0.0
	if e.ticksEvaluated > 0 {
		hitRate = roundN(float64(e.opportunitiesDetected)/float64(e.ticksEvaluated)*100, 4)
	}

	recent := e.signals
	if len(recent) > 10 {
		recent = recent[len(recent)-10:]
	}

	return Stats{
		StrategyID:             e.strategyID,
		Enabled:                e.cfg.ArbitrageEnabled,
		TicksEvaluated:         e.ticksEvaluated,
		OpportunitiesDetected:  e.opportunitiesDetected,
		TotalTheoreticalProfit: roundN(e.totalTheoreticalProfit, 2),
		HitRatePct:             hitRate,
		RecentSignals:          append([]Signal(nil), recent...),
	}
}

func roundN(v float64, n int) float64 {
	mult := 1.0
	for i := 0; i < n; i++ {
		mult *= 10
	}
	s := 1.0
	if v < 0 {
		s = -1
	}
	return float64(int64(v*mult+s*0.5)) / mult
}

func minInt64(vals ...int64) int64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
