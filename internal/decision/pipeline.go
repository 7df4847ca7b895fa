// Package decision implements the simulated 8-stage FPGA-style
// decision pipeline: hardware timestamping, shadow book update,
// signal evaluation, cross-venue arbitrage detection, market-making
// quote generation, a fast risk check, and outbound order generation.
// Each stage is plain CPU work measured against its nominal latency
// plus up to 10% jitter; nothing here models real hardware, only its
// latency budget.
package decision

import (
	"math/rand"
	"sync"

	"github.com/lumenfeed/hftorch/internal/clock"
	"github.com/lumenfeed/hftorch/internal/config"
	"github.com/lumenfeed/hftorch/internal/marketdata"
)

// StageName identifies one of the 8 pipeline stages.
type StageName string

const (
	StageRxParse    StageName = "RX_PARSE"
	StageTimestamp  StageName = "TIMESTAMP"
	StageBookUpdate StageName = "BOOK_UPDATE"
	StageSignalEval StageName = "SIGNAL_EVAL"
	StageArbDetect  StageName = "ARB_DETECT"
	StageMMQuote    StageName = "MM_QUOTE"
	StageRiskCheck  StageName = "RISK_CHECK"
	StageTxGenerate StageName = "TX_GENERATE"
)

// stage is one pipeline register: a nominal latency plus counters.
type stage struct {
	name       StageName
	id         int
	latencyNS  int64
	invocations int64
	totalNS    int64
}

func (s *stage) process(rng *rand.Rand) int64 {
	s.invocations++
	jitter := int64(0)
	if s.latencyNS > 0 {
		jitter = rng.Int63n(s.latencyNS/10 + 1)
	}
	simulated := s.latencyNS + jitter
	s.totalNS += simulated
	return simulated
}

func (s *stage) avgLatencyNS() float64 {
	if s.invocations == 0 {
		return 0
	}
	return float64(s.totalNS) / float64(s.invocations)
}

// venueQuote is the FPGA's shadow price for one symbol on one venue.
type venueQuote struct {
	bid, ask, mid float64
	timestampNS   int64
}

// ArbitrageOpportunity describes a detected cross-venue discrepancy.
type ArbitrageOpportunity struct {
	Symbol           string
	BuyVenue         string
	SellVenue        string
	BuyPrice         float64
	SellPrice        float64
	SpreadBPS        float64
	EstimatedProfit  float64
	Quantity         int64
	DetectedAtNS     int64
	Confidence       float64
}

// Engine runs the 8-stage pipeline over incoming ticks.
type Engine struct {
	cfg   config.FPGAConfig
	clock *clock.Clock
	rng   *rand.Rand

	mu      sync.Mutex
	stages  []*stage
	venuePrices map[string]map[string]venueQuote
	arbOpportunities []ArbitrageOpportunity

	signalsGenerated int64
	ticksProcessed   int64
	totalPipelineNS  int64
}

// NewEngine builds an FPGA engine from cfg, using rng for all jitter
// and probabilistic decisions (inject a seeded *rand.Rand for
// reproducible simulations).
func NewEngine(cfg config.FPGAConfig, clk *clock.Clock, rng *rand.Rand) *Engine {
	return &Engine{
		cfg:   cfg,
		clock: clk,
		rng:   rng,
		stages: []*stage{
			{name: StageRxParse, id: 0, latencyNS: 4},
			{name: StageTimestamp, id: 1, latencyNS: 2},
			{name: StageBookUpdate, id: 2, latencyNS: 6},
			{name: StageSignalEval, id: 3, latencyNS: 8},
			{name: StageArbDetect, id: 4, latencyNS: 5},
			{name: StageMMQuote, id: 5, latencyNS: 4},
			{name: StageRiskCheck, id: 6, latencyNS: 3},
			{name: StageTxGenerate, id: 7, latencyNS: 3},
		},
		venuePrices: make(map[string]map[string]venueQuote),
	}
}

// ProcessTick runs event through all 8 stages and returns a strategy
// signal if the pipeline decided to act (arbitrage takes priority over
// market-making), or nil if the engine is disabled or passes.
func (e *Engine) ProcessTick(event *marketdata.MarketDataEvent) *marketdata.StrategySignal {
	if !e.cfg.Enabled {
		return nil
	}

	pipelineStart := e.clock.Now().EpochNS

	e.mu.Lock()
	e.ticksProcessed++
	for _, s := range e.stages {
		s.process(e.rng)
	}
	e.updateVenuePrices(event)
	arb := e.detectArbitrage(event.Symbol)
	e.mu.Unlock()

	var signal *marketdata.StrategySignal
	if arb != nil {
		e.mu.Lock()
		e.arbOpportunities = append(e.arbOpportunities, *arb)
		if len(e.arbOpportunities) > 1000 {
			e.arbOpportunities = e.arbOpportunities[len(e.arbOpportunities)-500:]
		}
		e.signalsGenerated++
		e.mu.Unlock()

		signal = &marketdata.StrategySignal{
			EventType:   marketdata.EventStrategySignal,
			StrategyID:  "FPGA_ARB",
			Symbol:      arb.Symbol,
			Side:        marketdata.SideBuy,
			TargetPrice: arb.BuyPrice,
			TargetQty:   arb.Quantity,
			Urgency:     0.95,
			SignalType:  "latency_arbitrage",
			TimestampNS: e.clock.Now().EpochNS,
			Metadata: map[string]interface{}{
				"buy_venue":         arb.BuyVenue,
				"sell_venue":        arb.SellVenue,
				"sell_price":        arb.SellPrice,
				"spread_bps":        arb.SpreadBPS,
				"estimated_profit":  arb.EstimatedProfit,
			},
		}
	} else {
		signal = e.evaluateMarketMaking(event)
	}

	e.mu.Lock()
	e.totalPipelineNS += e.clock.Now().EpochNS - pipelineStart
	e.mu.Unlock()

	return signal
}

func (e *Engine) updateVenuePrices(event *marketdata.MarketDataEvent) {
	if _, ok := e.venuePrices[event.Symbol]; !ok {
		e.venuePrices[event.Symbol] = make(map[string]venueQuote)
	}
	e.venuePrices[event.Symbol][event.Venue] = venueQuote{
		bid:         event.BidPrice,
		ask:         event.AskPrice,
		mid:         event.MidPrice(),
		timestampNS: event.TimestampNS,
	}
}

// detectArbitrage scans the shadow venue-price matrix for a risk-free
// cross-venue discrepancy (must be called with e.mu held).
func (e *Engine) detectArbitrage(symbol string) *ArbitrageOpportunity {
	venues := e.venuePrices[symbol]
	if len(venues) < 2 {
		return nil
	}

	var bestBidVenue, bestAskVenue string
	bestBid := 0.0
	bestAsk := float64(1) << 62

	for venue, q := range venues {
		if q.bid > bestBid {
			bestBid = q.bid
			bestBidVenue = venue
		}
		if q.ask < bestAsk {
			bestAsk = q.ask
			bestAskVenue = venue
		}
	}

	if bestBidVenue == "" || bestAskVenue == "" || bestBidVenue == bestAskVenue || bestBid <= bestAsk {
		return nil
	}

	mid := (bestBid + bestAsk) / 2.0
	spreadBPS := ((bestBid - bestAsk) / mid) * 10_000

	if spreadBPS < e.cfg.ArbitrageThresholdBPS {
		return nil
	}

	qty := int64(100 + e.rng.Intn(901))
	return &ArbitrageOpportunity{
		Symbol:          symbol,
		BuyVenue:        bestAskVenue,
		SellVenue:       bestBidVenue,
		BuyPrice:        bestAsk,
		SellPrice:       bestBid,
		SpreadBPS:       roundN(spreadBPS, 2),
		EstimatedProfit: roundN((bestBid-bestAsk)*float64(qty), 2),
		Quantity:        qty,
		DetectedAtNS:    e.clock.Now().EpochNS,
		Confidence:      minFloat(spreadBPS/2.0, 1.0),
	}
}

// evaluateMarketMaking is the FPGA's lookup-table-style quote path:
// fast, probabilistic, and only acts a small fraction of the time.
func (e *Engine) evaluateMarketMaking(event *marketdata.MarketDataEvent) *marketdata.StrategySignal {
	if event.SpreadBPS() < 1.0 || event.MidPrice() <= 0 {
		return nil
	}
	if e.rng.Float64() > 0.15 {
		return nil
	}

	halfSpread := event.Spread() / 2.5
	side := marketdata.SideSell
	if e.rng.Float64() < 0.5 {
		side = marketdata.SideBuy
	}

	var price float64
	if side == marketdata.SideBuy {
		price = roundN(event.BidPrice+halfSpread*0.1, 2)
	} else {
		price = roundN(event.AskPrice-halfSpread*0.1, 2)
	}

	e.mu.Lock()
	e.signalsGenerated++
	e.mu.Unlock()

	return &marketdata.StrategySignal{
		EventType:   marketdata.EventStrategySignal,
		StrategyID:  "FPGA_MM",
		Symbol:      event.Symbol,
		Side:        side,
		TargetPrice: price,
		TargetQty:   100,
		Urgency:     0.6,
		SignalType:  "market_make",
		TimestampNS: e.clock.Now().EpochNS,
		Metadata: map[string]interface{}{
			"venue":              event.Venue,
			"current_spread_bps": event.SpreadBPS(),
			"book_bid":           event.BidPrice,
			"book_ask":           event.AskPrice,
		},
	}
}

// StageStats is a point-in-time read of one stage's counters.
type StageStats struct {
	Name          StageName
	StageID       int
	TargetNS      int64
	Invocations   int64
	AvgLatencyNS  float64
}

// PipelineStats is a point-in-time rollup of the engine's counters.
type PipelineStats struct {
	Enabled              bool
	ClockFrequencyMHz    int
	PipelineStages       int
	TicksProcessed       int64
	SignalsGenerated     int64
	AvgPipelineNS        float64
	AvgPipelineUS        float64
	TargetTickToTradeNS  int64
	Stages               []StageStats
	ArbitrageOpportunities int
	RecentArbs           []ArbitrageOpportunity
}

// GetStats returns a snapshot of the engine's counters.
func (e *Engine) GetStats() PipelineStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	var avgPipeline float64
	if e.ticksProcessed > 0 {
		avgPipeline = float64(e.totalPipelineNS) / float64(e.ticksProcessed)
	}

	stages := make([]StageStats, len(e.stages))
	for i, s := range e.stages {
		stages[i] = StageStats{
			Name:         s.name,
			StageID:      s.id,
			TargetNS:     s.latencyNS,
			Invocations:  s.invocations,
			AvgLatencyNS: s.avgLatencyNS(),
		}
	}

	recent := e.arbOpportunities
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}

	return PipelineStats{
		Enabled:                e.cfg.Enabled,
		ClockFrequencyMHz:      e.cfg.ClockFrequencyMHz,
		PipelineStages:         len(e.stages),
		TicksProcessed:         e.ticksProcessed,
		SignalsGenerated:       e.signalsGenerated,
		AvgPipelineNS:          avgPipeline,
		AvgPipelineUS:          avgPipeline / 1_000.0,
		TargetTickToTradeNS:    e.cfg.MaxTickToTradeNS,
		Stages:                 stages,
		ArbitrageOpportunities: len(e.arbOpportunities),
		RecentArbs:             append([]ArbitrageOpportunity(nil), recent...),
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

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
