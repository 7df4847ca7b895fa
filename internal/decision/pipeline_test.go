package decision

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenfeed/hftorch/internal/clock"
	"github.com/lumenfeed/hftorch/internal/config"
	"github.com/lumenfeed/hftorch/internal/marketdata"
)

func TestProcessTickDisabledReturnsNil(t *testing.T) {
	cfg := config.FPGAConfig{Enabled: false}
	e := NewEngine(cfg, clock.New(), rand.New(rand.NewSource(1)))
	sig := e.ProcessTick(&marketdata.MarketDataEvent{Symbol: "AAPL", Venue: "NASDAQ", BidPrice: 99, AskPrice: 100})
	assert.Nil(t, sig)
}

func TestDetectArbitrageAcrossVenues(t *testing.T) {
	cfg := config.DefaultHFTConfig().FPGA
	e := NewEngine(cfg, clock.New(), rand.New(rand.NewSource(7)))

	// NASDAQ quotes a low ask; NYSE quotes a high bid -> arbitrage.
	e.ProcessTick(&marketdata.MarketDataEvent{Symbol: "AAPL", Venue: "NASDAQ", BidPrice: 99.0, AskPrice: 99.5})
	sig := e.ProcessTick(&marketdata.MarketDataEvent{Symbol: "AAPL", Venue: "NYSE", BidPrice: 101.0, AskPrice: 101.5})

	require.NotNil(t, sig)
	assert.Equal(t, "FPGA_ARB", sig.StrategyID)
	assert.Equal(t, "latency_arbitrage", sig.SignalType)
}

func TestGetStatsTracksStageInvocations(t *testing.T) {
	cfg := config.DefaultHFTConfig().FPGA
	e := NewEngine(cfg, clock.New(), rand.New(rand.NewSource(3)))
	e.ProcessTick(&marketdata.MarketDataEvent{Symbol: "AAPL", Venue: "NASDAQ", BidPrice: 99, AskPrice: 100})

	stats := e.GetStats()
	assert.Equal(t, int64(1), stats.TicksProcessed)
	assert.Len(t, stats.Stages, 8)
	for _, s := range stats.Stages {
		assert.Equal(t, int64(1), s.Invocations)
	}
}
