// Package config defines the nested configuration tree for the HFT
// core and its defaults. Every knob that sizes a preallocated structure
// (ring buffers, price-level arrays, replica slots) lives in a section
// that is loaded once at startup; only Risk and Strategy are eligible
// for hot reload (see manager.go), since resizing a running ring buffer
// or order book ladder mid-flight isn't worth the complexity.
package config

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// NetworkConfig sizes the feed handler and its ring buffers.
type NetworkConfig struct {
	RxRingSize          int  `yaml:"rx_ring_size" default:"4096"`
	KernelBypassEnabled bool `yaml:"kernel_bypass_enabled" default:"true"`
	DPDKEnabled         bool `yaml:"dpdk_enabled" default:"false"`
	MulticastGroups     int  `yaml:"multicast_groups" default:"2"`
}

// OrderBookConfig sizes the order book manager's preallocated ladders and replicas.
type OrderBookConfig struct {
	MaxPriceLevels int `yaml:"max_price_levels" default:"10000"`
	ReplicaCount   int `yaml:"replica_count" default:"2"`
	MaxSymbols     int `yaml:"max_symbols" default:"500"`
}

// FPGAConfig describes the simulated 8-stage decision pipeline.
type FPGAConfig struct {
	Enabled               bool    `yaml:"enabled" default:"true"`
	ClockFrequencyMHz     int     `yaml:"clock_frequency_mhz" default:"250"`
	PipelineStages        int     `yaml:"pipeline_stages" default:"8"`
	MaxTickToTradeNS      int64   `yaml:"max_tick_to_trade_ns" default:"800"`
	ArbitrageThresholdBPS float64 `yaml:"arbitrage_threshold_bps" default:"0.5"`
}

// StrategyConfig tunes the market-making and arbitrage engines. Hot-reloadable.
type StrategyConfig struct {
	MarketMakingEnabled     bool    `yaml:"market_making_enabled" default:"true"`
	ArbitrageEnabled        bool    `yaml:"arbitrage_enabled" default:"true"`
	DefaultSpreadBPS        float64 `yaml:"default_spread_bps" default:"2.0"`
	MinSpreadBPS            float64 `yaml:"min_spread_bps" default:"1.0"`
	MaxSpreadBPS            float64 `yaml:"max_spread_bps" default:"10.0"`
	QuoteSizeShares         int64   `yaml:"quote_size_shares" default:"100"`
	MaxPositionShares       int64   `yaml:"max_position_shares" default:"10000"`
	InventorySkewFactor     float64 `yaml:"inventory_skew_factor" default:"0.3"`
	QuoteRefreshIntervalMS  float64 `yaml:"quote_refresh_interval_ms" default:"50.0"`
	ArbMinProfitBPS         float64 `yaml:"arb_min_profit_bps" default:"0.3"`
	ArbStalenessThresholdUS int64   `yaml:"arb_staleness_threshold_us" default:"500"`
}

// RiskConfig tunes the pre-trade risk gate and daily-loss breaker. Hot-reloadable.
type RiskConfig struct {
	MaxOrderValue          float64 `yaml:"max_order_value" default:"500000.0"`
	MaxPositionValue       float64 `yaml:"max_position_value" default:"1000000.0"`
	MaxDailyLoss           float64 `yaml:"max_daily_loss" default:"100000.0"`
	MaxOrdersPerSecond     int     `yaml:"max_orders_per_second" default:"5000"`
	MaxNotionalPerSecond   float64 `yaml:"max_notional_per_second" default:"2000000.0"`
	FatFingerThresholdPct  float64 `yaml:"fat_finger_threshold_pct" default:"5.0"`
	PositionLimitPerSymbol int64   `yaml:"position_limit_per_symbol" default:"50000"`
}

// VenueConfig describes one execution venue's simulated cost/latency profile.
type VenueConfig struct {
	Name                string  `yaml:"name"`
	WireLatencyUS       float64 `yaml:"wire_latency_us"`
	MakerRebatePerShare float64 `yaml:"maker_rebate_per_share"`
	TakerFeePerShare    float64 `yaml:"taker_fee_per_share"`
	MaxOrderRate        int     `yaml:"max_order_rate"`
}

// ExecutionConfig describes the OMS/router/gateway's venue set and defaults.
type ExecutionConfig struct {
	Venues              []VenueConfig `yaml:"venues"`
	MaxSliceSize        int64         `yaml:"max_slice_size" default:"500"`
	DefaultOrderType    string        `yaml:"default_order_type" default:"LIMIT"`
	SmartRoutingEnabled bool          `yaml:"smart_routing_enabled" default:"true"`
}

// MonitoringConfig tunes the metrics collector and dashboard publisher.
type MonitoringConfig struct {
	MetricsPublishIntervalMS float64 `yaml:"metrics_publish_interval_ms" default:"1000.0"`
	AlertTickToTradeUS       int64   `yaml:"alert_tick_to_trade_us" default:"100"`
	Alert99thPercentileUS    int64   `yaml:"alert_99th_percentile_us" default:"500"`
	MaxLatencySamples        int     `yaml:"max_latency_samples" default:"100000"`
	NATSUrl                  string  `yaml:"nats_url"`
	DashboardCacheTTLMS      int64   `yaml:"dashboard_cache_ttl_ms" default:"250"`
}

// HFTConfig is the complete, versioned configuration tree for the core.
type HFTConfig struct {
	SchemaVersion  string          `yaml:"schema_version" default:"1.0.0"`
	CoLocation     string          `yaml:"co_location" default:"NY5"`
	SystemID       string          `yaml:"system_id" default:"HFT-CORE-001"`
	SimulationMode bool            `yaml:"simulation_mode" default:"true"`
	Network       NetworkConfig   `yaml:"network"`
	OrderBook     OrderBookConfig `yaml:"order_book"`
	FPGA          FPGAConfig      `yaml:"fpga"`
	Strategy      StrategyConfig  `yaml:"strategy"`
	Risk          RiskConfig      `yaml:"risk"`
	Execution     ExecutionConfig `yaml:"execution"`
	Monitoring    MonitoringConfig `yaml:"monitoring"`
}

// SupportedSchemaRange is the semver constraint accepted at load time.
const SupportedSchemaRange = ">= 1.0.0, < 2.0.0"

// DefaultHFTConfig returns the literal defaults transcribed from the
// original Python config module's constants.
func DefaultHFTConfig() *HFTConfig {
	return &HFTConfig{
		SchemaVersion:  "1.0.0",
		CoLocation:     "NY5",
		SystemID:       "HFT-CORE-001",
		SimulationMode: true,
		Network: NetworkConfig{
			RxRingSize:          4096,
			KernelBypassEnabled: true,
			DPDKEnabled:         false,
			MulticastGroups:     2,
		},
		OrderBook: OrderBookConfig{
			MaxPriceLevels: 10000,
			ReplicaCount:   2,
			MaxSymbols:     500,
		},
		FPGA: FPGAConfig{
			Enabled:               true,
			ClockFrequencyMHz:     250,
			PipelineStages:        8,
			MaxTickToTradeNS:      800,
			ArbitrageThresholdBPS: 0.5,
		},
		Strategy: StrategyConfig{
			MarketMakingEnabled:     true,
			ArbitrageEnabled:        true,
			DefaultSpreadBPS:        2.0,
			MinSpreadBPS:            1.0,
			MaxSpreadBPS:            10.0,
			QuoteSizeShares:         100,
			MaxPositionShares:       10000,
			InventorySkewFactor:     0.3,
			QuoteRefreshIntervalMS:  50.0,
			ArbMinProfitBPS:         0.3,
			ArbStalenessThresholdUS: 500,
		},
		Risk: RiskConfig{
			MaxOrderValue:          500000.0,
			MaxPositionValue:       1000000.0,
			MaxDailyLoss:           100000.0,
			MaxOrdersPerSecond:     5000,
			MaxNotionalPerSecond:   2000000.0,
			FatFingerThresholdPct:  5.0,
			PositionLimitPerSymbol: 50000,
		},
		Execution: ExecutionConfig{
			Venues: []VenueConfig{
				{Name: "NASDAQ", WireLatencyUS: 45, MakerRebatePerShare: -0.0032, TakerFeePerShare: 0.0030, MaxOrderRate: 15000},
				{Name: "NYSE", WireLatencyUS: 52, MakerRebatePerShare: -0.0025, TakerFeePerShare: 0.0030, MaxOrderRate: 10000},
				{Name: "BATS", WireLatencyUS: 38, MakerRebatePerShare: -0.0030, TakerFeePerShare: 0.0028, MaxOrderRate: 20000},
				{Name: "IEX", WireLatencyUS: 350, MakerRebatePerShare: -0.0009, TakerFeePerShare: 0.0009, MaxOrderRate: 5000},
				{Name: "ARCA", WireLatencyUS: 48, MakerRebatePerShare: -0.0028, TakerFeePerShare: 0.0030, MaxOrderRate: 12000},
			},
			MaxSliceSize:        500,
			DefaultOrderType:    "LIMIT",
			SmartRoutingEnabled: true,
		},
		Monitoring: MonitoringConfig{
			MetricsPublishIntervalMS: 1000.0,
			AlertTickToTradeUS:       100,
			Alert99thPercentileUS:    500,
			MaxLatencySamples:        100000,
			DashboardCacheTTLMS:      250,
		},
	}
}

// ValidateSchemaVersion checks version against SupportedSchemaRange.
func ValidateSchemaVersion(version string) error {
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("invalid schema_version %q: %w", version, err)
	}
	c, err := semver.NewConstraint(SupportedSchemaRange)
	if err != nil {
		return fmt.Errorf("invalid schema constraint: %w", err)
	}
	if !c.Check(v) {
		return fmt.Errorf("schema_version %s is outside supported range %s", version, SupportedSchemaRange)
	}
	return nil
}

// Validate checks the config tree for internally-inconsistent values
// that would violate an invariant elsewhere in the core.
func (c *HFTConfig) Validate() error {
	if err := ValidateSchemaVersion(c.SchemaVersion); err != nil {
		return err
	}
	if c.Strategy.MinSpreadBPS > c.Strategy.MaxSpreadBPS {
		return fmt.Errorf("strategy.min_spread_bps (%v) exceeds strategy.max_spread_bps (%v)", c.Strategy.MinSpreadBPS, c.Strategy.MaxSpreadBPS)
	}
	if c.OrderBook.ReplicaCount < 1 {
		return fmt.Errorf("order_book.replica_count must be >= 1, got %d", c.OrderBook.ReplicaCount)
	}
	if len(c.Execution.Venues) == 0 {
		return fmt.Errorf("execution.venues must not be empty")
	}
	for _, v := range c.Execution.Venues {
		if v.MaxOrderRate <= 0 {
			return fmt.Errorf("venue %s: max_order_rate must be positive", v.Name)
		}
	}
	return nil
}
