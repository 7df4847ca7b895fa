// Package risk tracks real-time positions and gates every order
// through the pre-trade risk checks before it reaches a venue.
package risk

import (
	"sync"

	"github.com/lumenfeed/hftorch/internal/marketdata"
)

// SymbolPosition is the fund's single source of truth for one symbol's
// exposure, realized/unrealized P&L, and fill history.
type SymbolPosition struct {
	Symbol        string
	NetQty        int64
	LongQty       int64
	ShortQty      int64
	AvgLongPrice  float64
	AvgShortPrice float64
	RealizedPnL   float64
	UnrealizedPnL float64
	TotalBuys     int64
	TotalSells    int64
	TotalBuyValue float64
	TotalSellValue float64
	LastFillNS    int64
}

// TotalPnL is realized plus unrealized.
func (p *SymbolPosition) TotalPnL() float64 {
	return p.RealizedPnL + p.UnrealizedPnL
}

// NetValue is the absolute notional of the current net position, priced
// at the relevant side's average.
func (p *SymbolPosition) NetValue() float64 {
	price := p.AvgShortPrice
	if p.NetQty > 0 {
		price = p.AvgLongPrice
	}
	return absFloat(float64(p.NetQty) * price)
}

// PositionTracker maintains a microsecond-accurate view of positions
// across all symbols, updated on every fill.
type PositionTracker struct {
	mu                sync.RWMutex
	positions         map[string]*SymbolPosition
	lastPrices        map[string]float64
	totalRealizedPnL  float64
	fillsProcessed    int64
}

// NewPositionTracker creates an empty tracker.
func NewPositionTracker() *PositionTracker {
	return &PositionTracker{
		positions:  make(map[string]*SymbolPosition),
		lastPrices: make(map[string]float64),
	}
}

// ApplyFill folds a fill into the symbol's position, realizing P&L on
// any position-closing portion and recomputing the average entry price
// of the remaining (possibly new) side.
//
// avg_long_price/avg_short_price are recomputed only AFTER net_qty and
// long_qty/short_qty have been updated for this fill — a buy that flips
// a short position first closes the short at the old average, then
// folds the newly-opened long quantity and price into a fresh average
// computed from the post-update long_qty, not the pre-update one.
func (t *PositionTracker) ApplyFill(fill *marketdata.FillEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pos := t.getOrCreateLocked(fill.Symbol)
	t.fillsProcessed++
	pos.LastFillNS = fill.TimestampNS

	value := fill.FillPrice * float64(fill.FillQty)

	if fill.Side == marketdata.SideBuy {
		pos.TotalBuys += fill.FillQty
		pos.TotalBuyValue += value

		if pos.NetQty < 0 {
			closed := minInt64(fill.FillQty, absInt64(pos.NetQty))
			pnl := (pos.AvgShortPrice - fill.FillPrice) * float64(closed)
			pos.RealizedPnL += pnl
			t.totalRealizedPnL += pnl
			pos.ShortQty -= closed
		}

		pos.NetQty += fill.FillQty
		if pos.NetQty > 0 {
			prevLong := pos.LongQty
			pos.LongQty = pos.NetQty
			opened := pos.LongQty - prevLong
			totalCost := pos.AvgLongPrice*float64(prevLong) + fill.FillPrice*float64(opened)
			pos.AvgLongPrice = totalCost / float64(pos.LongQty)
		}
	} else {
		pos.TotalSells += fill.FillQty
		pos.TotalSellValue += value

		if pos.NetQty > 0 {
			closed := minInt64(fill.FillQty, pos.NetQty)
			pnl := (fill.FillPrice - pos.AvgLongPrice) * float64(closed)
			pos.RealizedPnL += pnl
			t.totalRealizedPnL += pnl
			pos.LongQty -= closed
		}

		pos.NetQty -= fill.FillQty
		if pos.NetQty < 0 {
			prevShort := pos.ShortQty
			pos.ShortQty = absInt64(pos.NetQty)
			opened := pos.ShortQty - prevShort
			totalCost := pos.AvgShortPrice*float64(prevShort) + fill.FillPrice*float64(opened)
			pos.AvgShortPrice = totalCost / float64(pos.ShortQty)
		}
	}

	t.lastPrices[fill.Symbol] = fill.FillPrice
	t.updateUnrealizedLocked(fill.Symbol, fill.FillPrice)
}

// UpdateMarkPrice marks symbol to price without a fill, refreshing unrealized P&L.
func (t *PositionTracker) UpdateMarkPrice(symbol string, price float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastPrices[symbol] = price
	t.updateUnrealizedLocked(symbol, price)
}

func (t *PositionTracker) updateUnrealizedLocked(symbol string, price float64) {
	pos, ok := t.positions[symbol]
	if !ok {
		return
	}
	switch {
	case pos.NetQty > 0:
		pos.UnrealizedPnL = (price - pos.AvgLongPrice) * float64(pos.NetQty)
	case pos.NetQty < 0:
		pos.UnrealizedPnL = (pos.AvgShortPrice - price) * float64(absInt64(pos.NetQty))
	default:
		pos.UnrealizedPnL = 0
	}
}

// GetPositionQty returns the current net quantity for symbol, or 0 if untracked.
func (t *PositionTracker) GetPositionQty(symbol string) int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if pos, ok := t.positions[symbol]; ok {
		return pos.NetQty
	}
	return 0
}

// GetPosition returns a copy of symbol's position, or nil if untracked.
func (t *PositionTracker) GetPosition(symbol string) *SymbolPosition {
	t.mu.RLock()
	defer t.mu.RUnlock()
	pos, ok := t.positions[symbol]
	if !ok {
		return nil
	}
	cp := *pos
	return &cp
}

func (t *PositionTracker) getOrCreateLocked(symbol string) *SymbolPosition {
	if pos, ok := t.positions[symbol]; ok {
		return pos
	}
	pos := &SymbolPosition{Symbol: symbol}
	t.positions[symbol] = pos
	return pos
}

// PortfolioSummary is a point-in-time rollup across every tracked symbol.
type PortfolioSummary struct {
	TotalPositions    int
	ActivePositions   int
	TotalRealizedPnL  float64
	TotalUnrealizedPnL float64
	TotalPnL          float64
	NetExposure       float64
	GrossExposure     float64
	FillsProcessed    int64
}

// GetPortfolioSummary aggregates P&L and exposure across all symbols.
func (t *PositionTracker) GetPortfolioSummary() PortfolioSummary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var totalUnrealized, netExposure, grossExposure float64
	active := 0
	for _, pos := range t.positions {
		totalUnrealized += pos.UnrealizedPnL
		if pos.NetQty != 0 {
			active++
		}
		last := t.lastPrices[pos.Symbol]
		netExposure += float64(pos.NetQty) * last
		grossExposure += absFloat(float64(pos.NetQty)) * last
	}

	return PortfolioSummary{
		TotalPositions:     len(t.positions),
		ActivePositions:    active,
		TotalRealizedPnL:   roundN(t.totalRealizedPnL, 2),
		TotalUnrealizedPnL: roundN(totalUnrealized, 2),
		TotalPnL:           roundN(t.totalRealizedPnL+totalUnrealized, 2),
		NetExposure:        roundN(netExposure, 2),
		GrossExposure:      roundN(grossExposure, 2),
		FillsProcessed:     t.fillsProcessed,
	}
}

// GetAllPositions returns a snapshot of every tracked symbol's position.
func (t *PositionTracker) GetAllPositions() map[string]SymbolPosition {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]SymbolPosition, len(t.positions))
	for sym, pos := range t.positions {
		out[sym] = *pos
	}
	return out
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

func minInt64(a, b int64) int64 {
	if a < b {
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
