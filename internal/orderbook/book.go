// Package orderbook maintains a replicated, per-symbol portrait of
// top-of-book market intent: bid/ask price ladders, VWAP, imbalance,
// and a snapshot checksum used to detect replica divergence on failover.
package orderbook

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/lumenfeed/hftorch/internal/clock"
	"github.com/lumenfeed/hftorch/internal/marketdata"
)

// PriceLevel is one price point on a side of the book.
type PriceLevel struct {
	Price         float64
	IsBid         bool
	TotalQuantity int64
	OrderCount    int
	LastUpdateNS  int64
}

// OrderBook is a single-symbol bid/ask ladder with VWAP and imbalance
// derived incrementally as updates arrive.
type OrderBook struct {
	Symbol string
	clock  *clock.Clock

	bidPrices []float64 // ascending; best bid is the last element
	askPrices []float64 // ascending; best ask is the first element
	bidLevels map[float64]*PriceLevel
	askLevels map[float64]*PriceLevel

	updateCount   int64
	lastTradePrice float64
	lastTradeSize  int64
	totalVolume    int64
	vwapNumerator  float64
	lastUpdateNS   int64
}

// NewOrderBook creates an empty book for symbol.
func NewOrderBook(symbol string, clk *clock.Clock) *OrderBook {
	return &OrderBook{
		Symbol:    symbol,
		clock:     clk,
		bidLevels: make(map[float64]*PriceLevel),
		askLevels: make(map[float64]*PriceLevel),
	}
}

// ApplyL1Update applies a top-of-book update from the feed handler.
func (b *OrderBook) ApplyL1Update(event *marketdata.MarketDataEvent) {
	ts := b.clock.Now().EpochNS

	if event.BidPrice > 0 {
		b.updateBidLevel(event.BidPrice, event.BidSize, ts)
	}
	if event.AskPrice > 0 {
		b.updateAskLevel(event.AskPrice, event.AskSize, ts)
	}

	b.updateCount++
	b.lastUpdateNS = ts
}

// ApplyTrade folds a trade print into VWAP and last-trade state.
func (b *OrderBook) ApplyTrade(event *marketdata.MarketDataEvent) {
	if event.TradePrice <= 0 {
		return
	}
	b.lastTradePrice = event.TradePrice
	b.lastTradeSize = event.TradeSize
	b.totalVolume += event.TradeSize
	b.vwapNumerator += event.TradePrice * float64(event.TradeSize)
	b.updateCount++
	b.lastUpdateNS = b.clock.Now().EpochNS
}

func (b *OrderBook) updateBidLevel(price float64, size int64, ts int64) {
	if level, ok := b.bidLevels[price]; ok {
		level.TotalQuantity = size
		level.LastUpdateNS = ts
	} else {
		b.bidLevels[price] = &PriceLevel{Price: price, IsBid: true, TotalQuantity: size, OrderCount: 1, LastUpdateNS: ts}
		b.bidPrices = insortFloat(b.bidPrices, price)
	}
	if size == 0 {
		b.removeBidLevel(price)
	}
}

func (b *OrderBook) updateAskLevel(price float64, size int64, ts int64) {
	if level, ok := b.askLevels[price]; ok {
		level.TotalQuantity = size
		level.LastUpdateNS = ts
	} else {
		b.askLevels[price] = &PriceLevel{Price: price, IsBid: false, TotalQuantity: size, OrderCount: 1, LastUpdateNS: ts}
		b.askPrices = insortFloat(b.askPrices, price)
	}
	if size == 0 {
		b.removeAskLevel(price)
	}
}

func (b *OrderBook) removeBidLevel(price float64) {
	if _, ok := b.bidLevels[price]; ok {
		delete(b.bidLevels, price)
		b.bidPrices = removeFloat(b.bidPrices, price)
	}
}

func (b *OrderBook) removeAskLevel(price float64) {
	if _, ok := b.askLevels[price]; ok {
		delete(b.askLevels, price)
		b.askPrices = removeFloat(b.askPrices, price)
	}
}

// BestBid returns the highest resting bid price, or 0 if none.
func (b *OrderBook) BestBid() float64 {
	if len(b.bidPrices) == 0 {
		return 0
	}
	return b.bidPrices[len(b.bidPrices)-1]
}

// BestAsk returns the lowest resting ask price, or 0 if none.
func (b *OrderBook) BestAsk() float64 {
	if len(b.askPrices) == 0 {
		return 0
	}
	return b.askPrices[0]
}

// MidPrice returns the bid/ask mid, falling back to whichever side exists.
func (b *OrderBook) MidPrice() float64 {
	bb, ba := b.BestBid(), b.BestAsk()
	if bb > 0 && ba > 0 {
		return (bb + ba) / 2.0
	}
	if bb > 0 {
		return bb
	}
	return ba
}

// Spread returns best ask minus best bid, or 0 if either is missing.
func (b *OrderBook) Spread() float64 {
	bb, ba := b.BestBid(), b.BestAsk()
	if bb > 0 && ba > 0 {
		return ba - bb
	}
	return 0.0
}

// SpreadBPS returns the spread in basis points of the mid.
func (b *OrderBook) SpreadBPS() float64 {
	mid := b.MidPrice()
	if mid > 0 {
		return (b.Spread() / mid) * 10_000
	}
	return 0.0
}

// VWAP returns the volume-weighted average trade price seen so far.
func (b *OrderBook) VWAP() float64 {
	if b.totalVolume > 0 {
		return b.vwapNumerator / float64(b.totalVolume)
	}
	return b.lastTradePrice
}

// BidDepth returns up to levels price levels from the top of the bid side.
func (b *OrderBook) BidDepth(levels int) []PriceLevel {
	var result []PriceLevel
	start := len(b.bidPrices) - levels
	if start < 0 {
		start = 0
	}
	for i := len(b.bidPrices) - 1; i >= start; i-- {
		if lvl, ok := b.bidLevels[b.bidPrices[i]]; ok {
			result = append(result, *lvl)
		}
	}
	return result
}

// AskDepth returns up to levels price levels from the top of the ask side.
func (b *OrderBook) AskDepth(levels int) []PriceLevel {
	var result []PriceLevel
	end := levels
	if end > len(b.askPrices) {
		end = len(b.askPrices)
	}
	for i := 0; i < end; i++ {
		if lvl, ok := b.askLevels[b.askPrices[i]]; ok {
			result = append(result, *lvl)
		}
	}
	return result
}

// Imbalance returns (bid_qty - ask_qty) / (bid_qty + ask_qty), in [-1, 1].
func (b *OrderBook) Imbalance() float64 {
	var bidQty, askQty int64
	for _, l := range b.bidLevels {
		bidQty += l.TotalQuantity
	}
	for _, l := range b.askLevels {
		askQty += l.TotalQuantity
	}
	total := bidQty + askQty
	if total == 0 {
		return 0.0
	}
	return float64(bidQty-askQty) / float64(total)
}

// Snapshot is a point-in-time, checksummed read of the book.
type Snapshot struct {
	Symbol         string
	BestBid        float64
	BestAsk        float64
	MidPrice       float64
	Spread         float64
	SpreadBPS      float64
	VWAP           float64
	LastTrade      float64
	LastTradeSize  int64
	TotalVolume    int64
	BidDepth       []PriceLevel
	AskDepth       []PriceLevel
	Imbalance      float64
	UpdateCount    int64
	BidLevels      int
	AskLevels      int
	Checksum       [16]byte
}

// GetSnapshot builds a Snapshot including its blake2b-128 checksum over
// the serialized bid/ask ladders and last-trade state, used by
// OrderBookManager.Failover to detect replica divergence.
func (b *OrderBook) GetSnapshot() Snapshot {
	s := Snapshot{
		Symbol:        b.Symbol,
		BestBid:       b.BestBid(),
		BestAsk:       b.BestAsk(),
		MidPrice:      b.MidPrice(),
		Spread:        roundN(b.Spread(), 4),
		SpreadBPS:     roundN(b.SpreadBPS(), 2),
		VWAP:          roundN(b.VWAP(), 4),
		LastTrade:     b.lastTradePrice,
		LastTradeSize: b.lastTradeSize,
		TotalVolume:   b.totalVolume,
		BidDepth:      b.BidDepth(5),
		AskDepth:      b.AskDepth(5),
		Imbalance:     roundN(b.Imbalance(), 4),
		UpdateCount:   b.updateCount,
		BidLevels:     len(b.bidPrices),
		AskLevels:     len(b.askPrices),
	}
	s.Checksum = checksum(s)
	return s
}

// checksum computes a blake2b-128 digest over a deterministic textual
// serialization of the book's ladders and last-trade state.
func checksum(s Snapshot) [16]byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s|%.4f|%.4f|%d|%d", s.Symbol, s.LastTrade, s.VWAP, s.LastTradeSize, s.TotalVolume)
	for _, l := range s.BidDepth {
		fmt.Fprintf(&sb, "|B%.4f:%d", l.Price, l.TotalQuantity)
	}
	for _, l := range s.AskDepth {
		fmt.Fprintf(&sb, "|A%.4f:%d", l.Price, l.TotalQuantity)
	}
	h, _ := blake2b.New(16, nil) // blake2b-128: cheap enough to run per snapshot, wide enough to catch replica drift
	h.Write([]byte(sb.String()))
	var out [16]byte
	copy(out[:], h.Sum(nil))
	return out
}

func roundN(v float64, n int) float64 {
	mult := 1.0
	for i := 0; i < n; i++ {
		mult *= 10
	}
	return float64(int64(v*mult+sign(v)*0.5)) / mult
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

func insortFloat(s []float64, v float64) []float64 {
	i := sort.SearchFloat64s(s, v)
	s = append(s, 0)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

func removeFloat(s []float64, v float64) []float64 {
	i := sort.SearchFloat64s(s, v)
	if i < len(s) && s[i] == v {
		return append(s[:i], s[i+1:]...)
	}
	return s
}
