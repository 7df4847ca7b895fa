package gateway

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lumenfeed/hftorch/internal/clock"
	"github.com/lumenfeed/hftorch/internal/config"
	"github.com/lumenfeed/hftorch/internal/marketdata"
)

func newTestGateway(seed int64) *Gateway {
	cfg := config.DefaultHFTConfig().Execution
	return New(zap.NewNop(), cfg, clock.New(), rand.New(rand.NewSource(seed)))
}

func TestSubmitOrderAcksOrRejects(t *testing.T) {
	g := newTestGateway(1)
	order := &marketdata.OrderEvent{OrderID: "ord-1", Symbol: "AAPL", Venue: "NASDAQ", OrderType: marketdata.OrderTypeLimit, Price: 100.0, Quantity: 100}

	got, err := g.SubmitOrder(context.Background(), order)
	require.NoError(t, err)
	assert.Contains(t, []marketdata.OrderStatus{marketdata.OrderStatusAcked, marketdata.OrderStatusRejected}, got.Status)
}

func TestSubmitOrderUnknownVenueRejects(t *testing.T) {
	g := newTestGateway(1)
	order := &marketdata.OrderEvent{OrderID: "ord-1", Symbol: "AAPL", Venue: "MOONX", OrderType: marketdata.OrderTypeLimit, Price: 100.0, Quantity: 100}

	got, err := g.SubmitOrder(context.Background(), order)
	require.Error(t, err)
	assert.Equal(t, marketdata.OrderStatusRejected, got.Status)
}

func TestSimulateFillsSumToOrderQuantity(t *testing.T) {
	g := newTestGateway(42)
	order := &marketdata.OrderEvent{OrderID: "ord-1", Symbol: "AAPL", Venue: "NASDAQ", OrderType: marketdata.OrderTypeLimit, Price: 100.0, Quantity: 500, Status: marketdata.OrderStatusAcked}

	fills := g.GetFills(order)
	var total int64
	for _, f := range fills {
		total += f.FillQty
		assert.Equal(t, "MAKER", f.Liquidity)
	}
	assert.Equal(t, order.Quantity, total)
	assert.Greater(t, total, int64(0))
}

func TestSimulateFillsReturnsNoneForUnackedOrder(t *testing.T) {
	g := newTestGateway(1)
	order := &marketdata.OrderEvent{OrderID: "ord-1", Symbol: "AAPL", Venue: "NASDAQ", Quantity: 100, Status: marketdata.OrderStatusPending}
	assert.Nil(t, g.GetFills(order))
}

func TestGetVenueStatsTracksSubmissions(t *testing.T) {
	g := newTestGateway(1)
	order := &marketdata.OrderEvent{OrderID: "ord-1", Symbol: "AAPL", Venue: "NASDAQ", OrderType: marketdata.OrderTypeLimit, Price: 100.0, Quantity: 100}
	g.SubmitOrder(context.Background(), order)

	stats := g.GetVenueStats()
	require.Contains(t, stats, "NASDAQ")
	assert.Equal(t, int64(1), stats["NASDAQ"].OrdersSent)
}
