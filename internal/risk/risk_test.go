package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lumenfeed/hftorch/internal/clock"
	"github.com/lumenfeed/hftorch/internal/config"
	"github.com/lumenfeed/hftorch/internal/marketdata"
)

func TestApplyFillRecomputesAvgLongPriceAfterQtyUpdate(t *testing.T) {
	tracker := NewPositionTracker()

	tracker.ApplyFill(&marketdata.FillEvent{Symbol: "AAPL", Side: marketdata.SideBuy, FillPrice: 100.0, FillQty: 100})
	tracker.ApplyFill(&marketdata.FillEvent{Symbol: "AAPL", Side: marketdata.SideBuy, FillPrice: 110.0, FillQty: 100})

	pos := tracker.GetPosition("AAPL")
	require.NotNil(t, pos)
	assert.Equal(t, int64(200), pos.NetQty)
	assert.InDelta(t, 105.0, pos.AvgLongPrice, 0.001)
}

func TestApplyFillFlipsShortToLongAndRealizesPnL(t *testing.T) {
	tracker := NewPositionTracker()

	tracker.ApplyFill(&marketdata.FillEvent{Symbol: "AAPL", Side: marketdata.SideSell, FillPrice: 100.0, FillQty: 100}) // short 100 @ 100
	tracker.ApplyFill(&marketdata.FillEvent{Symbol: "AAPL", Side: marketdata.SideBuy, FillPrice: 95.0, FillQty: 150})  // closes short, flips long 50 @ 95

	pos := tracker.GetPosition("AAPL")
	require.NotNil(t, pos)
	assert.Equal(t, int64(50), pos.NetQty)
	assert.InDelta(t, 500.0, pos.RealizedPnL, 0.001) // (100-95)*100
	assert.InDelta(t, 95.0, pos.AvgLongPrice, 0.001)
}

func TestPortfolioSummaryAggregatesAcrossSymbols(t *testing.T) {
	tracker := NewPositionTracker()
	tracker.ApplyFill(&marketdata.FillEvent{Symbol: "AAPL", Side: marketdata.SideBuy, FillPrice: 100.0, FillQty: 100})
	tracker.ApplyFill(&marketdata.FillEvent{Symbol: "MSFT", Side: marketdata.SideBuy, FillPrice: 200.0, FillQty: 50})

	summary := tracker.GetPortfolioSummary()
	assert.Equal(t, 2, summary.TotalPositions)
	assert.Equal(t, 2, summary.ActivePositions)
	assert.Equal(t, int64(2), summary.FillsProcessed)
}

func newTestGate(t *testing.T) (*Gate, *PositionTracker) {
	t.Helper()
	tracker := NewPositionTracker()
	cfg := config.DefaultHFTConfig().Risk
	g := NewGate(zap.NewNop(), cfg, clock.New(), tracker)
	return g, tracker
}

func TestCheckOrderApprovesCleanOrder(t *testing.T) {
	g, _ := newTestGate(t)
	decision := g.CheckOrder(&marketdata.OrderEvent{OrderID: "ord-1", Symbol: "AAPL", Side: marketdata.SideBuy, Price: 100.0, Quantity: 100})

	assert.True(t, decision.Approved)
	assert.Equal(t, 7, decision.ChecksTotal)
	assert.Equal(t, 7, decision.ChecksPassed)
}

func TestCheckOrderRejectsFatFinger(t *testing.T) {
	g, _ := newTestGate(t)
	g.CheckOrder(&marketdata.OrderEvent{OrderID: "ord-1", Symbol: "AAPL", Side: marketdata.SideBuy, Price: 100.0, Quantity: 100})
	decision := g.CheckOrder(&marketdata.OrderEvent{OrderID: "ord-2", Symbol: "AAPL", Side: marketdata.SideBuy, Price: 500.0, Quantity: 100})

	assert.False(t, decision.Approved)
	assert.Contains(t, decision.Reason, "FAT_FINGER")
}

func TestCheckOrderRejectsDuplicateOrderID(t *testing.T) {
	g, _ := newTestGate(t)
	g.CheckOrder(&marketdata.OrderEvent{OrderID: "ord-1", Symbol: "AAPL", Side: marketdata.SideBuy, Price: 100.0, Quantity: 100})
	decision := g.CheckOrder(&marketdata.OrderEvent{OrderID: "ord-1", Symbol: "AAPL", Side: marketdata.SideBuy, Price: 100.0, Quantity: 100})

	assert.False(t, decision.Approved)
	assert.Contains(t, decision.Reason, "DUPLICATE_ORDER")
}

func TestCheckOrderRejectsPositionLimitBreach(t *testing.T) {
	g, _ := newTestGate(t)
	g.cfg.PositionLimitPerSymbol = 50
	decision := g.CheckOrder(&marketdata.OrderEvent{OrderID: "ord-1", Symbol: "AAPL", Side: marketdata.SideBuy, Price: 100.0, Quantity: 100})

	assert.False(t, decision.Approved)
	assert.Contains(t, decision.Reason, "POSITION_LIMIT")
}

func TestDailyLossLimitTripsCircuitBreaker(t *testing.T) {
	g, _ := newTestGate(t)
	g.UpdateDailyPnL(-g.cfg.MaxDailyLoss - 1)

	decision := g.CheckOrder(&marketdata.OrderEvent{OrderID: "ord-1", Symbol: "AAPL", Side: marketdata.SideBuy, Price: 100.0, Quantity: 100})
	assert.False(t, decision.Approved)
	assert.Contains(t, decision.Reason, "DAILY_LOSS_LIMIT")

	// Once tripped, the breaker short-circuits every subsequent order.
	decision2 := g.CheckOrder(&marketdata.OrderEvent{OrderID: "ord-2", Symbol: "AAPL", Side: marketdata.SideBuy, Price: 100.0, Quantity: 100})
	assert.Equal(t, "CIRCUIT_BREAKER_ACTIVE", decision2.Reason)

	g.ResetDaily()
	decision3 := g.CheckOrder(&marketdata.OrderEvent{OrderID: "ord-3", Symbol: "AAPL", Side: marketdata.SideBuy, Price: 100.0, Quantity: 100})
	assert.True(t, decision3.Approved)
}

func TestGetStatsTracksPassRate(t *testing.T) {
	g, _ := newTestGate(t)
	g.CheckOrder(&marketdata.OrderEvent{OrderID: "ord-1", Symbol: "AAPL", Side: marketdata.SideBuy, Price: 100.0, Quantity: 100})
	g.CheckOrder(&marketdata.OrderEvent{OrderID: "ord-1", Symbol: "AAPL", Side: marketdata.SideBuy, Price: 100.0, Quantity: 100})

	stats := g.GetStats()
	assert.Equal(t, int64(2), stats.ChecksRun)
	assert.Equal(t, int64(1), stats.ChecksPassed)
	assert.Equal(t, int64(1), stats.ChecksFailed)
}
