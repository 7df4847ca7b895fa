package orchestrator

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lumenfeed/hftorch/internal/config"
)

func testConfig() *config.HFTConfig {
	cfg := config.DefaultHFTConfig()
	cfg.Strategy.QuoteRefreshIntervalMS = 20
	cfg.Monitoring.MetricsPublishIntervalMS = 20
	return cfg
}

func TestNewOrchestratorWiresEveryComponent(t *testing.T) {
	o, err := New(testConfig(), []string{"AAPL", "MSFT"}, map[string]float64{"AAPL": 150, "MSFT": 300}, zap.NewNop(), rand.New(rand.NewSource(1)), nil)
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.False(t, o.IsRunning())
}

func TestStartStopLifecycle(t *testing.T) {
	o, err := New(testConfig(), []string{"AAPL", "MSFT"}, map[string]float64{"AAPL": 150, "MSFT": 300}, zap.NewNop(), rand.New(rand.NewSource(1)), nil)
	require.NoError(t, err)

	o.Start(context.Background())
	assert.True(t, o.IsRunning())

	time.Sleep(150 * time.Millisecond)
	o.Stop()
	assert.False(t, o.IsRunning())
}

func TestStartIsIdempotent(t *testing.T) {
	o, err := New(testConfig(), []string{"AAPL"}, map[string]float64{"AAPL": 150}, zap.NewNop(), rand.New(rand.NewSource(1)), nil)
	require.NoError(t, err)

	o.Start(context.Background())
	o.Start(context.Background()) // second call must be a no-op, not a double-start panic
	assert.True(t, o.IsRunning())
	o.Stop()
}

func TestGetDashboardReflectsActivity(t *testing.T) {
	o, err := New(testConfig(), []string{"AAPL", "MSFT"}, map[string]float64{"AAPL": 150, "MSFT": 300}, zap.NewNop(), rand.New(rand.NewSource(7)), nil)
	require.NoError(t, err)

	o.Start(context.Background())
	time.Sleep(200 * time.Millisecond)
	o.Stop()

	snap := o.GetDashboard()
	assert.Equal(t, "hft_dashboard", snap.Type)
	assert.Len(t, snap.OrderBooks, 2)
	assert.Contains(t, snap.OrderBooks, "AAPL")
}

func TestGetSystemStatusReportsConfiguredIdentity(t *testing.T) {
	o, err := New(testConfig(), []string{"AAPL"}, map[string]float64{"AAPL": 150}, zap.NewNop(), rand.New(rand.NewSource(1)), nil)
	require.NoError(t, err)

	status := o.GetSystemStatus()
	assert.Equal(t, "NY5", status.CoLocation)
	assert.Equal(t, "HFT-CORE-001", status.SystemID)
	assert.True(t, status.SimulationMode)
	assert.Equal(t, 5, status.Venues)
	assert.False(t, status.Running)
}

func TestInjectPriceShockDoesNotPanicBeforeStart(t *testing.T) {
	o, err := New(testConfig(), []string{"AAPL"}, map[string]float64{"AAPL": 150}, zap.NewNop(), rand.New(rand.NewSource(1)), nil)
	require.NoError(t, err)
	o.InjectPriceShock("AAPL", 0.05)
}
