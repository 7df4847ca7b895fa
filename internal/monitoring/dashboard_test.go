package monitoring

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lumenfeed/hftorch/internal/clock"
	"github.com/lumenfeed/hftorch/internal/decision"
	"github.com/lumenfeed/hftorch/internal/execution/gateway"
	"github.com/lumenfeed/hftorch/internal/execution/oms"
	"github.com/lumenfeed/hftorch/internal/execution/router"
	"github.com/lumenfeed/hftorch/internal/marketdata"
	"github.com/lumenfeed/hftorch/internal/orderbook"
	"github.com/lumenfeed/hftorch/internal/risk"
	"github.com/lumenfeed/hftorch/internal/strategy/arbitrage"
	"github.com/lumenfeed/hftorch/internal/strategy/marketmaker"
)

func TestBuildSnapshotAggregatesSubsystemStats(t *testing.T) {
	clk := clock.New()
	collector := NewCollector(clk, 1000, 100, 500, prometheus.NewRegistry())
	collector.TickToTrade.Record(42_000)

	bookSnapshots := map[string]orderbook.Snapshot{
		"AAPL": {Symbol: "AAPL", BestBid: 99.98, BestAsk: 100.02, SpreadBPS: 4.0},
	}
	mmPositions := map[string]marketmaker.PositionView{
		"AAPL": {NetPosition: 100, TotalPnL: 12.5, Trades: 3, Volume: 300},
	}

	snap := BuildSnapshot(
		clk, 1,
		marketdata.FeedStats{MessagesReceived: 1000, MessagesPerSecond: 50, KernelBypass: true},
		bookSnapshots,
		decision.PipelineStats{Enabled: true, TicksProcessed: 10},
		marketmaker.Stats{TotalPnL: 12.5, TotalTrades: 3},
		mmPositions,
		arbitrage.Stats{OpportunitiesDetected: 2},
		risk.Stats{ChecksRun: 5, CircuitBreakerActive: false},
		risk.PortfolioSummary{TotalPnL: 12.5},
		map[string]risk.SymbolPosition{"AAPL": {Symbol: "AAPL", NetQty: 100}},
		oms.Stats{TotalOrders: 4},
		nil,
		router.Stats{RoutesEvaluated: 4},
		map[string]gateway.VenueStats{"NASDAQ": {OrdersSent: 4}},
		collector.GetSummary(),
		7,
	)

	assert.Equal(t, "hft_dashboard", snap.Type)
	assert.Equal(t, "ACTIVE", snap.SystemHealth.Status)
	assert.Equal(t, 7, snap.Network.QueueDepth)
	require.Contains(t, snap.OrderBooks, "AAPL")
	assert.Equal(t, 99.98, snap.OrderBooks["AAPL"].BestBid)
	require.Contains(t, snap.MarketMakingPnL, "AAPL")
	assert.Equal(t, 0.04, snap.MarketMakingPnL["AAPL"].Spread)
	assert.Equal(t, int64(3), snap.MarketMakingPnL["AAPL"].TradesExecuted)
}

func TestBuildSnapshotReportsHaltedWhenBreakerActive(t *testing.T) {
	clk := clock.New()
	snap := BuildSnapshot(
		clk, 1,
		marketdata.FeedStats{},
		map[string]orderbook.Snapshot{},
		decision.PipelineStats{},
		marketmaker.Stats{},
		map[string]marketmaker.PositionView{},
		arbitrage.Stats{},
		risk.Stats{CircuitBreakerActive: true},
		risk.PortfolioSummary{},
		map[string]risk.SymbolPosition{},
		oms.Stats{},
		nil,
		router.Stats{},
		map[string]gateway.VenueStats{},
		Summary{Latencies: map[string]LatencyStats{}},
		0,
	)
	assert.Equal(t, "HALTED", snap.SystemHealth.Status)
}

func TestHubBroadcastWithNoClientsIsANoop(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, "hft.dashboard")
	err := hub.Broadcast(DashboardSnapshot{Type: "hft_dashboard", SnapshotID: 1})
	require.NoError(t, err)
	assert.Equal(t, 0, hub.ClientCount())
}
