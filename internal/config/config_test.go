package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultHFTConfigValid(t *testing.T) {
	cfg := DefaultHFTConfig()
	require.NoError(t, cfg.Validate())
	assert.Len(t, cfg.Execution.Venues, 5)
	assert.Equal(t, 4096, cfg.Network.RxRingSize)
	assert.Equal(t, int64(800), cfg.FPGA.MaxTickToTradeNS)
}

func TestValidateSchemaVersion(t *testing.T) {
	assert.NoError(t, ValidateSchemaVersion("1.0.0"))
	assert.NoError(t, ValidateSchemaVersion("1.9.9"))
	assert.Error(t, ValidateSchemaVersion("2.0.0"))
	assert.Error(t, ValidateSchemaVersion("not-a-version"))
}

func TestValidateRejectsInconsistentSpread(t *testing.T) {
	cfg := DefaultHFTConfig()
	cfg.Strategy.MinSpreadBPS = 20.0
	cfg.Strategy.MaxSpreadBPS = 5.0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsEmptyVenues(t *testing.T) {
	cfg := DefaultHFTConfig()
	cfg.Execution.Venues = nil
	assert.Error(t, cfg.Validate())
}
