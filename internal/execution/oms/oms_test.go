package oms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lumenfeed/hftorch/internal/clock"
	"github.com/lumenfeed/hftorch/internal/marketdata"
)

func newTestOMS() *OMS {
	return New(zap.NewNop(), clock.New(), 100)
}

func TestCreateOrderStartsPending(t *testing.T) {
	o := newTestOMS()
	order := o.CreateOrder("AAPL", marketdata.SideBuy, marketdata.OrderTypeLimit, 100.0, 100, "NASDAQ", "MM-CORE", "")

	assert.Equal(t, marketdata.OrderStatusPending, order.Status)
	assert.Equal(t, int64(100), order.RemainingQty)
	assert.NotEmpty(t, order.OrderID)
	assert.NotEmpty(t, order.ClientOrderID)
}

func TestApplyFillUpdatesRemainingAndAvgPrice(t *testing.T) {
	o := newTestOMS()
	order := o.CreateOrder("AAPL", marketdata.SideBuy, marketdata.OrderTypeLimit, 100.0, 100, "NASDAQ", "MM-CORE", "")

	err := o.ApplyFill(&marketdata.FillEvent{OrderID: order.OrderID, Symbol: "AAPL", Side: marketdata.SideBuy, FillPrice: 99.5, FillQty: 60})
	require.NoError(t, err)

	got := o.GetOrder(order.OrderID)
	require.NotNil(t, got)
	assert.Equal(t, marketdata.OrderStatusPartiallyFilled, got.Status)
	assert.Equal(t, int64(40), got.RemainingQty)
	assert.InDelta(t, 99.5, got.AvgFillPrice, 0.001)
}

func TestApplyFillMarksFilledOnFinalFill(t *testing.T) {
	o := newTestOMS()
	order := o.CreateOrder("AAPL", marketdata.SideBuy, marketdata.OrderTypeLimit, 100.0, 100, "NASDAQ", "MM-CORE", "")

	err := o.ApplyFill(&marketdata.FillEvent{OrderID: order.OrderID, Symbol: "AAPL", FillPrice: 100.0, FillQty: 100, IsFinal: true})
	require.NoError(t, err)

	got := o.GetOrder(order.OrderID)
	assert.Equal(t, marketdata.OrderStatusFilled, got.Status)
	assert.Equal(t, int64(0), got.RemainingQty)
}

func TestApplyFillRejectsOverfill(t *testing.T) {
	o := newTestOMS()
	order := o.CreateOrder("AAPL", marketdata.SideBuy, marketdata.OrderTypeLimit, 100.0, 100, "NASDAQ", "MM-CORE", "")

	err := o.ApplyFill(&marketdata.FillEvent{OrderID: order.OrderID, Symbol: "AAPL", FillPrice: 100.0, FillQty: 150})
	require.Error(t, err)

	// The rejected fill must not have touched the order's state.
	got := o.GetOrder(order.OrderID)
	assert.Equal(t, int64(100), got.RemainingQty)
	assert.Equal(t, int64(0), got.FilledQty)
	assert.Equal(t, marketdata.OrderStatusPending, got.Status)

	stats := o.GetStats()
	assert.Equal(t, int64(1), stats.OverfillsRejected)
}

func TestApplyFillUnknownOrderReturnsError(t *testing.T) {
	o := newTestOMS()
	err := o.ApplyFill(&marketdata.FillEvent{OrderID: "missing", FillQty: 10})
	assert.Error(t, err)
}

func TestGetActiveOrdersFiltersTerminalStatuses(t *testing.T) {
	o := newTestOMS()
	order1 := o.CreateOrder("AAPL", marketdata.SideBuy, marketdata.OrderTypeLimit, 100.0, 100, "NASDAQ", "MM-CORE", "")
	order2 := o.CreateOrder("MSFT", marketdata.SideBuy, marketdata.OrderTypeLimit, 200.0, 50, "NYSE", "MM-CORE", "")

	require.NoError(t, o.ApplyFill(&marketdata.FillEvent{OrderID: order2.OrderID, Symbol: "MSFT", FillPrice: 200.0, FillQty: 50, IsFinal: true}))

	active := o.GetActiveOrders("")
	require.Len(t, active, 1)
	assert.Equal(t, order1.OrderID, active[0].OrderID)
}

func TestGetRecentFillsRespectsLimit(t *testing.T) {
	o := newTestOMS()
	order := o.CreateOrder("AAPL", marketdata.SideBuy, marketdata.OrderTypeLimit, 100.0, 300, "NASDAQ", "MM-CORE", "")

	for i := 0; i < 3; i++ {
		require.NoError(t, o.ApplyFill(&marketdata.FillEvent{OrderID: order.OrderID, Symbol: "AAPL", FillPrice: 100.0, FillQty: 100}))
	}

	fills := o.GetRecentFills(2)
	assert.Len(t, fills, 2)
}
