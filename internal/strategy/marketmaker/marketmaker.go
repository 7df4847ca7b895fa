// Package marketmaker implements the continuous two-sided quoting
// engine: inventory-aware spread skewing, volatility-adaptive spread
// widening (via a rolling stddev of mid price), and position-limit
// throttling of quote size.
package marketmaker

import (
	"sync"

	"github.com/markcheno/go-talib"

	"github.com/lumenfeed/hftorch/internal/clock"
	"github.com/lumenfeed/hftorch/internal/config"
	"github.com/lumenfeed/hftorch/internal/marketdata"
	"github.com/lumenfeed/hftorch/internal/orderbook"
)

// QuotePair is the engine's record of the last quote it posted for a symbol.
type QuotePair struct {
	Symbol     string
	BidPrice   float64
	AskPrice   float64
	Quantity   int64
	PostedAtNS int64
	SpreadBPS  float64
}

// mmBook is the market maker's own cost-basis P&L view — distinct from
// the shared risk/PositionTracker, which remains the fund's single
// source of truth for position state. This is the strategy's internal
// bookkeeping for its own get_stats/spread_earned reporting.
type mmBook struct {
	symbol        string
	netPosition   int64
	longQty       int64
	shortQty      int64
	realizedPnL   float64
	unrealizedPnL float64
	tradesCount   int64
	totalVolume   int64
	avgEntryPrice float64
	costBasis     float64
}

func (p *mmBook) applyFill(side marketdata.Side, price float64, qty int64) {
	p.tradesCount++
	p.totalVolume += qty

	if side == marketdata.SideBuy {
		if p.netPosition >= 0 {
			p.costBasis += price * float64(qty)
			p.longQty += qty
		} else {
			closed := minInt64(qty, absInt64(p.netPosition))
			denom := p.longQty + absInt64(p.netPosition)
			avg := price
			if denom > 0 {
				avg = p.costBasis / float64(maxInt64(denom, 1))
			}
			p.realizedPnL += (avg - price) * float64(closed)
			p.shortQty -= closed
			p.costBasis -= avg * float64(closed)
			if opened := qty - closed; opened > 0 {
				p.costBasis += price * float64(opened)
				p.longQty += opened
			}
		}
		p.netPosition += qty
	} else {
		if p.netPosition <= 0 {
			p.costBasis += price * float64(qty)
			p.shortQty += qty
		} else {
			closed := minInt64(qty, p.netPosition)
			avg := price
			if p.longQty > 0 {
				avg = p.costBasis / float64(maxInt64(p.longQty, 1))
			}
			p.realizedPnL += (price - avg) * float64(closed)
			p.longQty -= closed
			p.costBasis -= avg * float64(closed)
			if opened := qty - closed; opened > 0 {
				p.costBasis += price * float64(opened)
				p.shortQty += opened
			}
		}
		p.netPosition -= qty
	}

	if p.netPosition != 0 {
		p.avgEntryPrice = absFloat(p.costBasis / float64(maxInt64(absInt64(p.netPosition), 1)))
	}
}

func (p *mmBook) updateUnrealized(currentPrice float64) {
	switch {
	case p.netPosition > 0:
		p.unrealizedPnL = (currentPrice - p.avgEntryPrice) * float64(p.netPosition)
	case p.netPosition < 0:
		p.unrealizedPnL = (p.avgEntryPrice - currentPrice) * float64(absInt64(p.netPosition))
	default:
		p.unrealizedPnL = 0.0
	}
}

func (p *mmBook) totalPnL() float64 {
	return p.realizedPnL + p.unrealizedPnL
}

// Engine generates continuous two-sided quotes with inventory management.
type Engine struct {
	cfg        config.StrategyConfig
	clock      *clock.Clock
	strategyID string

	mu                sync.Mutex
	positions         map[string]*mmBook
	activeQuotes      map[string]QuotePair
	midHistory        map[string][]float64
	signalsGenerated  int64
	quotesRefreshed   int64
	totalSpreadEarned float64
}

// NewEngine builds a market-making engine from cfg.
func NewEngine(cfg config.StrategyConfig, clk *clock.Clock) *Engine {
	return &Engine{
		cfg:          cfg,
		clock:        clk,
		strategyID:   "MM-CORE",
		positions:    make(map[string]*mmBook),
		activeQuotes: make(map[string]QuotePair),
		midHistory:   make(map[string][]float64),
	}
}

const midHistoryWindow = 20

// GenerateQuotes produces a bid/ask StrategySignal pair for symbol
// given the current book state and the engine's inventory position.
func (e *Engine) GenerateQuotes(symbol string, book *orderbook.OrderBook) []*marketdata.StrategySignal {
	mid := book.MidPrice()
	if mid <= 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	position := e.getPositionLocked(symbol)
	e.recordMidLocked(symbol, mid)

	baseSpreadPct := e.cfg.DefaultSpreadBPS / 10_000
	volAdjustment := minFloat(e.volatilityPctLocked(symbol)/100, 0.002)
	spreadPct := baseSpreadPct + volAdjustment

	inventorySkew := 0.0
	if position.netPosition != 0 {
		maxPos := float64(e.cfg.MaxPositionShares)
		inventoryRatio := float64(position.netPosition) / maxPos
		inventorySkew = inventoryRatio * e.cfg.InventorySkewFactor * spreadPct
	}

	halfSpread := mid * spreadPct / 2

	bidPrice := roundN(mid-halfSpread+inventorySkew, 2)
	askPrice := roundN(mid+halfSpread+inventorySkew, 2)
	if askPrice <= bidPrice {
		askPrice = roundN(bidPrice+0.01, 2)
	}

	qty := e.cfg.QuoteSizeShares
	if absInt64(position.netPosition) > int64(float64(e.cfg.MaxPositionShares)*0.8) {
		qty = qty / 2
	}

	spreadBPS := roundN((askPrice-bidPrice)/mid*10_000, 2)

	bidSignal := &marketdata.StrategySignal{
		EventType:   marketdata.EventStrategySignal,
		StrategyID:  e.strategyID,
		Symbol:      symbol,
		Side:        marketdata.SideBuy,
		TargetPrice: bidPrice,
		TargetQty:   qty,
		Urgency:     0.5,
		SignalType:  "market_make_bid",
		TimestampNS: e.clock.Now().EpochNS,
		Metadata: map[string]interface{}{
			"mid_price":      mid,
			"spread_bps":     spreadBPS,
			"inventory":      position.netPosition,
			"inventory_skew": roundN(inventorySkew, 6),
		},
	}
	askSignal := &marketdata.StrategySignal{
		EventType:   marketdata.EventStrategySignal,
		StrategyID:  e.strategyID,
		Symbol:      symbol,
		Side:        marketdata.SideSell,
		TargetPrice: askPrice,
		TargetQty:   qty,
		Urgency:     0.5,
		SignalType:  "market_make_ask",
		TimestampNS: e.clock.Now().EpochNS,
		Metadata: map[string]interface{}{
			"mid_price":      mid,
			"spread_bps":     spreadBPS,
			"inventory":      position.netPosition,
			"inventory_skew": roundN(inventorySkew, 6),
		},
	}

	e.activeQuotes[symbol] = QuotePair{
		Symbol:     symbol,
		BidPrice:   bidPrice,
		AskPrice:   askPrice,
		Quantity:   qty,
		PostedAtNS: e.clock.Now().EpochNS,
		SpreadBPS:  spreadBPS,
	}

	e.signalsGenerated += 2
	e.quotesRefreshed++

	return []*marketdata.StrategySignal{bidSignal, askSignal}
}

// recordMidLocked appends mid to symbol's rolling window, trimming to
// midHistoryWindow entries.
func (e *Engine) recordMidLocked(symbol string, mid float64) {
	hist := append(e.midHistory[symbol], mid)
	if len(hist) > midHistoryWindow {
		hist = hist[len(hist)-midHistoryWindow:]
	}
	e.midHistory[symbol] = hist
}

// volatilityPctLocked returns the rolling stddev of mid price as a
// percentage of the latest mid, using go-talib's StdDev over the
// window (replacing a hand-rolled stddev calculation).
func (e *Engine) volatilityPctLocked(symbol string) float64 {
	hist := e.midHistory[symbol]
	if len(hist) < 2 {
		return 0
	}
	stddevs := talib.StdDev(hist, len(hist), 1.0)
	stddev := stddevs[len(stddevs)-1]
	mid := hist[len(hist)-1]
	if mid <= 0 {
		return 0
	}
	return (stddev / mid) * 100
}

// OnFill folds a fill into this symbol's internal P&L view.
func (e *Engine) OnFill(fill *marketdata.FillEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	position := e.getPositionLocked(fill.Symbol)
	position.applyFill(fill.Side, fill.FillPrice, fill.FillQty)

	if fill.Liquidity == "MAKER" && fill.Fee < 0 {
		e.totalSpreadEarned += absFloat(fill.Fee)
	}
}

func (e *Engine) getPositionLocked(symbol string) *mmBook {
	if p, ok := e.positions[symbol]; ok {
		return p
	}
	p := &mmBook{symbol: symbol}
	e.positions[symbol] = p
	return p
}

// PositionView is a read-only snapshot of one symbol's internal P&L view.
type PositionView struct {
	NetPosition   int64
	RealizedPnL   float64
	UnrealizedPnL float64
	TotalPnL      float64
	Trades        int64
	Volume        int64
}

// GetPositions returns a snapshot of every tracked symbol's internal P&L view.
func (e *Engine) GetPositions() map[string]PositionView {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]PositionView, len(e.positions))
	for sym, p := range e.positions {
		out[sym] = PositionView{
			NetPosition:   p.netPosition,
			RealizedPnL:   roundN(p.realizedPnL, 2),
			UnrealizedPnL: roundN(p.unrealizedPnL, 2),
			TotalPnL:      roundN(p.totalPnL(), 2),
			Trades:        p.tradesCount,
			Volume:        p.totalVolume,
		}
	}
	return out
}

// UpdateUnrealized marks symbol's position to currentPrice.
func (e *Engine) UpdateUnrealized(symbol string, currentPrice float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.getPositionLocked(symbol).updateUnrealized(currentPrice)
}

// Stats is a point-in-time rollup of the engine's counters.
type Stats struct {
	StrategyID       string
	Enabled          bool
	SignalsGenerated int64
	QuotesRefreshed  int64
	ActiveQuotes     int
	Positions        int
	TotalPnL         float64
	TotalTrades      int64
	TotalVolume      int64
	SpreadEarned     float64
	ActiveSymbols    []string
}

// GetStats returns a snapshot of the engine's counters.
func (e *Engine) GetStats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	var totalPnL float64
	var totalTrades, totalVolume int64
	for _, p := range e.positions {
		totalPnL += p.totalPnL()
		totalTrades += p.tradesCount
		totalVolume += p.totalVolume
	}

	symbols := make([]string, 0, len(e.activeQuotes))
	for sym := range e.activeQuotes {
		symbols = append(symbols, sym)
	}

	return Stats{
		StrategyID:       e.strategyID,
		Enabled:          e.cfg.MarketMakingEnabled,
		SignalsGenerated: e.signalsGenerated,
		QuotesRefreshed:  e.quotesRefreshed,
		ActiveQuotes:     len(e.activeQuotes),
		Positions:        len(e.positions),
		TotalPnL:         roundN(totalPnL, 2),
		TotalTrades:      totalTrades,
		TotalVolume:      totalVolume,
		SpreadEarned:     roundN(e.totalSpreadEarned, 2),
		ActiveSymbols:    symbols,
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

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
