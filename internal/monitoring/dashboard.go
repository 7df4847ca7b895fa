package monitoring

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzip"
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

// SystemHealth is the top-of-dashboard status line.
type SystemHealth struct {
	Status          string
	UptimeSeconds   float64
	EventsPerSecond float64
	OrdersPerSecond float64
}

// TickToTrade reports the headline latency percentiles in microseconds.
type TickToTrade struct {
	AvgUS  float64
	P50US  float64
	P95US  float64
	P99US  float64
	P999US float64
}

// NetworkSnapshot summarizes feed-handler wire statistics.
type NetworkSnapshot struct {
	MessagesPerSecond float64
	MessagesTotal     int64
	GapsDetected      int64
	KernelBypass      bool
	QueueDepth        int
}

// BookSnapshot is the dashboard-facing view of one symbol's order book.
type BookSnapshot struct {
	Symbol      string
	BestBid     float64
	BestAsk     float64
	MidPrice    float64
	Spread      float64
	SpreadBPS   float64
	VWAP        float64
	LastTrade   float64
	TotalVolume int64
	Imbalance   float64
	BidLevels   int
	AskLevels   int
}

func toBookSnapshot(s orderbook.Snapshot) BookSnapshot {
	return BookSnapshot{
		Symbol: s.Symbol, BestBid: s.BestBid, BestAsk: s.BestAsk, MidPrice: s.MidPrice,
		Spread: s.Spread, SpreadBPS: s.SpreadBPS, VWAP: s.VWAP, LastTrade: s.LastTrade,
		TotalVolume: s.TotalVolume, Imbalance: s.Imbalance, BidLevels: s.BidLevels, AskLevels: s.AskLevels,
	}
}

// FPGASnapshot mirrors the decision pipeline's stage-by-stage counters.
type FPGASnapshot struct {
	Enabled                bool
	TicksProcessed         int64
	SignalsGenerated       int64
	AvgPipelineNS          float64
	Stages                 []StageSnapshot
	ArbitrageOpportunities int
}

// StageSnapshot is one pipeline stage's invocation/latency counters.
type StageSnapshot struct {
	Name         string
	AvgLatencyNS float64
	Invocations  int64
}

// MarketMakingSnapshot is the market-making strategy's aggregate view.
type MarketMakingSnapshot struct {
	TotalPnL     float64
	TotalTrades  int64
	TotalVolume  int64
	ActiveQuotes int
	SpreadEarned float64
}

// ArbitrageSnapshot is the arbitrage strategy's aggregate view.
type ArbitrageSnapshot struct {
	Opportunities      int64
	TheoreticalProfit  float64
	HitRatePct         float64
}

// StrategiesSnapshot groups both strategy engines' rollups.
type StrategiesSnapshot struct {
	MarketMaking MarketMakingSnapshot
	Arbitrage    ArbitrageSnapshot
}

// SymbolPnLRow is one row of the market-making P&L table: Stock | Buy
// Price | Sell Price | Spread | Trades Executed | Profit.
type SymbolPnLRow struct {
	Stock          string
	BuyPrice       float64
	SellPrice      float64
	Spread         float64
	SpreadBPS      float64
	TradesExecuted int64
	Volume         int64
	Profit         float64
	NetPosition    int64
}

// RiskSnapshot is the risk gate's aggregate view.
type RiskSnapshot struct {
	ChecksRun         int64
	PassRate          float64
	BreakerActive     bool
	DailyPnL          float64
	AvgCheckLatencyUS float64
	RejectionReasons  map[string]int64
}

// PositionsSnapshot is the fund-wide position view.
type PositionsSnapshot struct {
	Portfolio risk.PortfolioSummary
	BySymbol  map[string]risk.SymbolPosition
}

// ExecutionSnapshot groups OMS, routing, venue, and recent-fill state.
type ExecutionSnapshot struct {
	OMS          oms.Stats
	Routing      router.Stats
	Venues       map[string]gateway.VenueStats
	RecentFills  []oms.FillRecord
}

// DashboardSnapshot is the complete, versioned payload broadcast to
// every connected dashboard client. Closed struct, not a map, so every
// field is part of a stable wire contract.
type DashboardSnapshot struct {
	Type        string
	SnapshotID  int64
	TimestampNS int64

	SystemHealth    SystemHealth
	TickToTrade     TickToTrade
	Network         NetworkSnapshot
	OrderBooks      map[string]BookSnapshot
	FPGA            FPGASnapshot
	Strategies      StrategiesSnapshot
	MarketMakingPnL map[string]SymbolPnLRow
	Risk            RiskSnapshot
	Positions       PositionsSnapshot
	Execution       ExecutionSnapshot
	LatencyBuckets  map[string]LatencyStats
}

// BuildSnapshot aggregates every subsystem's point-in-time stats into a
// single dashboard snapshot, mirroring HFTDashboardProvider.build_dashboard.
func BuildSnapshot(
	clk *clock.Clock,
	snapshotID int64,
	feedStats marketdata.FeedStats,
	bookSnapshots map[string]orderbook.Snapshot,
	fpgaStats decision.PipelineStats,
	mmStats marketmaker.Stats,
	mmPositions map[string]marketmaker.PositionView,
	arbStats arbitrage.Stats,
	riskStats risk.Stats,
	positionSummary risk.PortfolioSummary,
	allPositions map[string]risk.SymbolPosition,
	omsStats oms.Stats,
	recentFills []oms.FillRecord,
	routerStats router.Stats,
	venueStats map[string]gateway.VenueStats,
	metricsSummary Summary,
	queueDepth int,
) DashboardSnapshot {
	books := make(map[string]BookSnapshot, len(bookSnapshots))
	for symbol, snap := range bookSnapshots {
		books[symbol] = toBookSnapshot(snap)
	}

	stages := make([]StageSnapshot, len(fpgaStats.Stages))
	for i, s := range fpgaStats.Stages {
		stages[i] = StageSnapshot{Name: string(s.Name), AvgLatencyNS: s.AvgLatencyNS, Invocations: s.Invocations}
	}

	status := "ACTIVE"
	if riskStats.CircuitBreakerActive {
		status = "HALTED"
	}

	tt := metricsSummary.Latencies["tick_to_trade"]

	return DashboardSnapshot{
		Type:        "hft_dashboard",
		SnapshotID:  snapshotID,
		TimestampNS: clk.Now().EpochNS,
		SystemHealth: SystemHealth{
			Status:          status,
			UptimeSeconds:   metricsSummary.UptimeSeconds,
			EventsPerSecond: metricsSummary.EventsPerSecond,
			OrdersPerSecond: metricsSummary.OrdersPerSecond,
		},
		TickToTrade: TickToTrade{AvgUS: tt.AvgUS, P50US: tt.P50US, P95US: tt.P95US, P99US: tt.P99US, P999US: tt.P999US},
		Network: NetworkSnapshot{
			MessagesPerSecond: feedStats.MessagesPerSecond,
			MessagesTotal:     feedStats.MessagesReceived,
			GapsDetected:      feedStats.GapsDetected,
			KernelBypass:      feedStats.KernelBypass,
			QueueDepth:        queueDepth,
		},
		OrderBooks: books,
		FPGA: FPGASnapshot{
			Enabled:                fpgaStats.Enabled,
			TicksProcessed:         fpgaStats.TicksProcessed,
			SignalsGenerated:       fpgaStats.SignalsGenerated,
			AvgPipelineNS:          fpgaStats.AvgPipelineNS,
			Stages:                 stages,
			ArbitrageOpportunities: fpgaStats.ArbitrageOpportunities,
		},
		Strategies: StrategiesSnapshot{
			MarketMaking: MarketMakingSnapshot{
				TotalPnL: mmStats.TotalPnL, TotalTrades: mmStats.TotalTrades, TotalVolume: mmStats.TotalVolume,
				ActiveQuotes: mmStats.ActiveQuotes, SpreadEarned: mmStats.SpreadEarned,
			},
			Arbitrage: ArbitrageSnapshot{
				Opportunities: arbStats.OpportunitiesDetected, TheoreticalProfit: arbStats.TotalTheoreticalProfit, HitRatePct: arbStats.HitRatePct,
			},
		},
		MarketMakingPnL: buildMMTable(bookSnapshots, mmPositions),
		Risk: RiskSnapshot{
			ChecksRun: riskStats.ChecksRun, PassRate: riskStats.PassRatePct, BreakerActive: riskStats.CircuitBreakerActive,
			DailyPnL: riskStats.DailyPnL, AvgCheckLatencyUS: riskStats.AvgCheckLatencyUS, RejectionReasons: riskStats.RejectionReasons,
		},
		Positions: PositionsSnapshot{Portfolio: positionSummary, BySymbol: allPositions},
		Execution: ExecutionSnapshot{OMS: omsStats, Routing: routerStats, Venues: venueStats, RecentFills: lastN(recentFills, 20)},
		LatencyBuckets: map[string]LatencyStats{
			"feed_handler":        metricsSummary.Latencies["feed_handler"],
			"book_update":         metricsSummary.Latencies["book_update"],
			"fpga_pipeline":       metricsSummary.Latencies["fpga_pipeline"],
			"risk_check":          metricsSummary.Latencies["risk_check"],
			"order_routing":       metricsSummary.Latencies["order_routing"],
			"exchange_round_trip": metricsSummary.Latencies["exchange_round_trip"],
		},
	}
}

func buildMMTable(bookSnapshots map[string]orderbook.Snapshot, mmPositions map[string]marketmaker.PositionView) map[string]SymbolPnLRow {
	table := make(map[string]SymbolPnLRow, len(bookSnapshots))
	for symbol, snap := range bookSnapshots {
		pos := mmPositions[symbol]
		var spread float64
		if snap.BestBid > 0 && snap.BestAsk > 0 {
			spread = roundN(snap.BestAsk-snap.BestBid, 2)
		}
		table[symbol] = SymbolPnLRow{
			Stock: symbol, BuyPrice: snap.BestBid, SellPrice: snap.BestAsk, Spread: spread, SpreadBPS: snap.SpreadBPS,
			TradesExecuted: pos.Trades, Volume: pos.Volume, Profit: pos.TotalPnL, NetPosition: pos.NetPosition,
		}
	}
	return table
}

func lastN[T any](s []T, n int) []T {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func roundN(v float64, n int) float64 {
	mult := 1.0
	for i := 0; i < n; i++ {
		mult *= 10
	}
	sign := 1.0
	if v < 0 {
		sign = -1
	}
	return float64(int64(v*mult+sign*0.5)) / mult
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans out gzip-compressed dashboard snapshots to every connected
// WebSocket client and, when configured, republishes them to NATS.
type Hub struct {
	logger    *zap.Logger
	publisher message.Publisher
	topic     string

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewHub builds a broadcast hub. publisher may be nil to skip the
// NATS republish path (e.g. in tests or when no broker is configured).
func NewHub(logger *zap.Logger, publisher message.Publisher, topic string) *Hub {
	return &Hub{logger: logger, publisher: publisher, topic: topic, clients: make(map[*websocket.Conn]struct{})}
}

// NewNATSPublisher connects a watermill-nats publisher to natsURL.
func NewNATSPublisher(natsURL string, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return nats.NewPublisher(nats.PublisherConfig{
		URL:         natsURL,
		Marshaler:   &nats.GobMarshaler{},
		NatsOptions: nil,
	}, logger)
}

// ServeWS upgrades an HTTP request to a WebSocket connection and
// registers it as a broadcast recipient.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()
	return nil
}

// Broadcast gzip-compresses the snapshot's JSON encoding and pushes it
// to every connected client, dropping (and unregistering) any client
// whose write fails, and republishes the same payload to NATS if a
// publisher is configured.
func (h *Hub) Broadcast(snapshot DashboardSnapshot) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(raw); err != nil {
		return err
	}
	if err := gw.Close(); err != nil {
		return err
	}
	payload := buf.Bytes()

	h.mu.Lock()
	for conn := range h.clients {
		if err := conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
			h.logger.Warn("dropping dashboard client", zap.Error(err))
			conn.Close()
			delete(h.clients, conn)
		}
	}
	h.mu.Unlock()

	if h.publisher != nil {
		msg := message.NewMessage(watermill.NewUUID(), raw)
		if err := h.publisher.Publish(h.topic, msg); err != nil {
			h.logger.Warn("dashboard nats publish failed", zap.Error(err))
		}
	}
	return nil
}

// ClientCount returns the number of currently connected dashboard clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
