package arbitrage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenfeed/hftorch/internal/clock"
	"github.com/lumenfeed/hftorch/internal/config"
	"github.com/lumenfeed/hftorch/internal/marketdata"
)

func TestEvaluateDetectsCrossVenueOpportunity(t *testing.T) {
	cfg := config.DefaultHFTConfig().Strategy
	e := NewEngine(cfg, clock.New())

	e.Evaluate(&marketdata.MarketDataEvent{Symbol: "AAPL", Venue: "NASDAQ", BidPrice: 99.0, AskPrice: 99.2, BidSize: 500, AskSize: 500, TimestampNS: 1000})
	sig := e.Evaluate(&marketdata.MarketDataEvent{Symbol: "AAPL", Venue: "NYSE", BidPrice: 100.0, AskPrice: 100.2, BidSize: 500, AskSize: 500, TimestampNS: 1100})

	require.NotNil(t, sig)
	assert.Equal(t, "latency_arbitrage", sig.SignalType)
	assert.Equal(t, "ARB-CORE", sig.StrategyID)
}

func TestEvaluateIgnoresStaleQuotes(t *testing.T) {
	cfg := config.DefaultHFTConfig().Strategy
	cfg.ArbStalenessThresholdUS = 100 // 100us
	e := NewEngine(cfg, clock.New())

	// NASDAQ's quote at ts=0 goes stale by the time NYSE quotes 1ms later.
	e.Evaluate(&marketdata.MarketDataEvent{Symbol: "AAPL", Venue: "NASDAQ", BidPrice: 99.0, AskPrice: 99.2, BidSize: 500, AskSize: 500, TimestampNS: 0})
	sig := e.Evaluate(&marketdata.MarketDataEvent{Symbol: "AAPL", Venue: "NYSE", BidPrice: 100.0, AskPrice: 100.2, BidSize: 500, AskSize: 500, TimestampNS: 1_000_000})

	assert.Nil(t, sig, "a stale NASDAQ quote must not be used to manufacture an arbitrage signal")
}

func TestEvaluateNoOpportunityWithOneVenue(t *testing.T) {
	cfg := config.DefaultHFTConfig().Strategy
	e := NewEngine(cfg, clock.New())
	sig := e.Evaluate(&marketdata.MarketDataEvent{Symbol: "AAPL", Venue: "NASDAQ", BidPrice: 99, AskPrice: 100})
	assert.Nil(t, sig)
}

func TestGetStatsHitRate(t *testing.T) {
	cfg := config.DefaultHFTConfig().Strategy
	e := NewEngine(cfg, clock.New())
	e.Evaluate(&marketdata.MarketDataEvent{Symbol: "AAPL", Venue: "NASDAQ", BidPrice: 99.0, AskPrice: 99.2, BidSize: 500, AskSize: 500, TimestampNS: 1000})
	e.Evaluate(&marketdata.MarketDataEvent{Symbol: "AAPL", Venue: "NYSE", BidPrice: 100.0, AskPrice: 100.2, BidSize: 500, AskSize: 500, TimestampNS: 1100})

	stats := e.GetStats()
	assert.Equal(t, int64(2), stats.TicksEvaluated)
	assert.GreaterOrEqual(t, stats.OpportunitiesDetected, int64(1))
}
