package marketmaker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenfeed/hftorch/internal/clock"
	"github.com/lumenfeed/hftorch/internal/config"
	"github.com/lumenfeed/hftorch/internal/marketdata"
	"github.com/lumenfeed/hftorch/internal/orderbook"
)

func bookWithQuote(t *testing.T, symbol string, bid, ask float64) *orderbook.OrderBook {
	t.Helper()
	b := orderbook.NewOrderBook(symbol, clock.New())
	b.ApplyL1Update(&marketdata.MarketDataEvent{
		Symbol: symbol, Venue: "NASDAQ",
		BidPrice: bid, BidSize: 1000,
		AskPrice: ask, AskSize: 1000,
	})
	return b
}

func TestGenerateQuotesStraddlesTheMid(t *testing.T) {
	cfg := config.DefaultHFTConfig().Strategy
	e := NewEngine(cfg, clock.New())
	book := bookWithQuote(t, "AAPL", 99.98, 100.02)

	signals := e.GenerateQuotes("AAPL", book)
	require.Len(t, signals, 2)

	bidSig, askSig := signals[0], signals[1]
	assert.Equal(t, marketdata.SideBuy, bidSig.Side)
	assert.Equal(t, marketdata.SideSell, askSig.Side)
	assert.Less(t, bidSig.TargetPrice, askSig.TargetPrice)
	assert.Equal(t, "MM-CORE", bidSig.StrategyID)
}

func TestGenerateQuotesNilOnZeroMid(t *testing.T) {
	cfg := config.DefaultHFTConfig().Strategy
	e := NewEngine(cfg, clock.New())
	book := orderbook.NewOrderBook("AAPL", clock.New())

	assert.Nil(t, e.GenerateQuotes("AAPL", book))
}

func TestGenerateQuotesSkewsAwayFromLongInventory(t *testing.T) {
	cfg := config.DefaultHFTConfig().Strategy
	e := NewEngine(cfg, clock.New())
	book := bookWithQuote(t, "AAPL", 99.98, 100.02)

	e.OnFill(&marketdata.FillEvent{Symbol: "AAPL", Side: marketdata.SideBuy, FillPrice: 100.0, FillQty: 5000})

	signals := e.GenerateQuotes("AAPL", book)
	require.Len(t, signals, 2)

	// Long inventory should skew both quotes down relative to a flat book.
	flatEngine := NewEngine(cfg, clock.New())
	flatBook := bookWithQuote(t, "AAPL", 99.98, 100.02)
	flatSignals := flatEngine.GenerateQuotes("AAPL", flatBook)

	assert.Less(t, signals[0].TargetPrice, flatSignals[0].TargetPrice)
}

func TestGenerateQuotesHalvesSizeNearPositionLimit(t *testing.T) {
	cfg := config.DefaultHFTConfig().Strategy
	cfg.MaxPositionShares = 1000
	cfg.QuoteSizeShares = 100
	e := NewEngine(cfg, clock.New())
	book := bookWithQuote(t, "AAPL", 99.98, 100.02)

	e.OnFill(&marketdata.FillEvent{Symbol: "AAPL", Side: marketdata.SideBuy, FillPrice: 100.0, FillQty: 900})

	signals := e.GenerateQuotes("AAPL", book)
	require.Len(t, signals, 2)
	assert.Equal(t, int64(50), signals[0].TargetQty)
}

func TestApplyFillTracksRealizedPnLOnPositionFlip(t *testing.T) {
	p := &mmBook{symbol: "AAPL"}

	p.applyFill(marketdata.SideBuy, 100.0, 100) // net_position: +100, cost_basis 10000
	assert.Equal(t, int64(100), p.netPosition)
	assert.Equal(t, 0.0, p.realizedPnL)

	p.applyFill(marketdata.SideSell, 105.0, 150) // closes 100 long at avg 100, flips short 50
	assert.Equal(t, int64(-50), p.netPosition)
	assert.InDelta(t, 500.0, p.realizedPnL, 0.001)
}

func TestUpdateUnrealizedTracksMarkToMarket(t *testing.T) {
	p := &mmBook{symbol: "AAPL"}
	p.applyFill(marketdata.SideBuy, 100.0, 100)
	p.updateUnrealized(105.0)
	assert.InDelta(t, 500.0, p.unrealizedPnL, 0.001)
}

func TestOnFillAccumulatesSpreadEarnedFromMakerFees(t *testing.T) {
	cfg := config.DefaultHFTConfig().Strategy
	e := NewEngine(cfg, clock.New())

	e.OnFill(&marketdata.FillEvent{Symbol: "AAPL", Side: marketdata.SideBuy, FillPrice: 100.0, FillQty: 100, Liquidity: "MAKER", Fee: -0.3})

	stats := e.GetStats()
	assert.InDelta(t, 0.3, stats.SpreadEarned, 0.001)
}

func TestGetPositionsReflectsFills(t *testing.T) {
	cfg := config.DefaultHFTConfig().Strategy
	e := NewEngine(cfg, clock.New())
	e.OnFill(&marketdata.FillEvent{Symbol: "AAPL", Side: marketdata.SideBuy, FillPrice: 100.0, FillQty: 200})

	positions := e.GetPositions()
	require.Contains(t, positions, "AAPL")
	assert.Equal(t, int64(200), positions["AAPL"].NetPosition)
}
