// Package orchestrator wires every HFT subsystem together and drives
// the tick-to-trade pipeline, the market-making quote-refresh loop, and
// the monitoring/dashboard loop as three concurrent goroutines.
package orchestrator

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/lumenfeed/hftorch/internal/clock"
	"github.com/lumenfeed/hftorch/internal/config"
	"github.com/lumenfeed/hftorch/internal/decision"
	"github.com/lumenfeed/hftorch/internal/eventqueue"
	"github.com/lumenfeed/hftorch/internal/execution/gateway"
	"github.com/lumenfeed/hftorch/internal/execution/oms"
	"github.com/lumenfeed/hftorch/internal/execution/router"
	"github.com/lumenfeed/hftorch/internal/marketdata"
	"github.com/lumenfeed/hftorch/internal/monitoring"
	"github.com/lumenfeed/hftorch/internal/orderbook"
	"github.com/lumenfeed/hftorch/internal/risk"
	"github.com/lumenfeed/hftorch/internal/strategy/arbitrage"
	"github.com/lumenfeed/hftorch/internal/strategy/marketmaker"
)

// pipelineBatchSize is the max number of market data events drained
// from the event queue per pipeline iteration.
const pipelineBatchSize = 16

// mmFanoutWorkers bounds the per-symbol quote-refresh worker pool.
const mmFanoutWorkers = 32

// Orchestrator is the master conductor of the tick-to-trade pipeline:
// feed handler → event queue → order book → FPGA/arbitrage → router →
// risk → gateway → OMS → position tracker → monitoring.
type Orchestrator struct {
	cfg        *config.HFTConfig
	symbols    []string
	logger     *zap.Logger
	clock      *clock.Clock

	eventQueue *eventqueue.Queue
	multicast  *marketdata.MulticastDistributor
	feed       *marketdata.FeedHandler

	books     *orderbook.Manager
	fpga      *decision.Engine
	marketMaker *marketmaker.Engine
	arb       *arbitrage.Engine

	positions *risk.PositionTracker
	riskGate  *risk.Gate

	oms    *oms.OMS
	gw     *gateway.Gateway
	router *router.Router

	metrics  *monitoring.Collector
	registry *prometheus.Registry
	hub      *monitoring.Hub
	mmPool   *ants.Pool

	mu                    sync.Mutex
	running               bool
	cancel                context.CancelFunc
	wg                    sync.WaitGroup
	pipelineCycles        int64
	totalSignalsProcessed int64
	totalOrdersExecuted   int64
	snapshotSeq           int64
}

// New wires every subsystem from cfg and returns a stopped orchestrator.
// hub may be nil to skip dashboard broadcasting entirely.
func New(cfg *config.HFTConfig, symbols []string, basePrices map[string]float64, logger *zap.Logger, rng *rand.Rand, hub *monitoring.Hub) (*Orchestrator, error) {
	clk := clock.New()

	eventQueue := eventqueue.New("market_data", 65536, clk)
	feed := marketdata.NewFeedHandler(logger, eventQueue, symbols, basePrices, clk, rng, cfg.Network.KernelBypassEnabled, cfg.Network.DPDKEnabled)

	multicast := marketdata.NewMulticastDistributor(logger)
	half := len(symbols) / 2
	multicast.CreateGroup("239.1.1.1", symbols[:half])
	multicast.CreateGroup("239.1.1.2", symbols[half:])
	// Every group's only listener funnels back into the same SPSC queue:
	// multicast fans ticks out across groups, it never creates a second
	// sink, matching the single tick-to-trade pipeline.
	enqueue := func(event *marketdata.MarketDataEvent) { eventQueue.Publish(event) }
	multicast.Subscribe("239.1.1.1", enqueue)
	multicast.Subscribe("239.1.1.2", enqueue)
	feed.SetMulticast(multicast)

	books := orderbook.NewManager(logger, clk, cfg.OrderBook.ReplicaCount)
	for _, sym := range symbols {
		books.RegisterSymbol(sym)
	}

	fpga := decision.NewEngine(cfg.FPGA, clk, rng)
	mm := marketmaker.NewEngine(cfg.Strategy, clk)
	arb := arbitrage.NewEngine(cfg.Strategy, clk)

	positions := risk.NewPositionTracker()
	riskGate := risk.NewGate(logger, cfg.Risk, clk, positions)

	o := oms.New(logger, clk, 10000)
	gw := gateway.New(logger, cfg.Execution, clk, rng)
	rt := router.New(cfg.Execution, clk, o)

	registry := prometheus.NewRegistry()
	metrics := monitoring.NewCollector(clk, cfg.Monitoring.MaxLatencySamples, cfg.Monitoring.AlertTickToTradeUS, cfg.Monitoring.Alert99thPercentileUS, registry)

	mmPool, err := ants.NewPool(mmFanoutWorkers)
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		cfg: cfg, symbols: symbols, logger: logger, clock: clk,
		eventQueue: eventQueue, multicast: multicast, feed: feed,
		books: books, fpga: fpga, marketMaker: mm, arb: arb,
		positions: positions, riskGate: riskGate,
		oms: o, gw: gw, router: rt,
		metrics: metrics, registry: registry, hub: hub, mmPool: mmPool,
	}, nil
}

// Registry returns this orchestrator's private Prometheus registry, for
// mounting a /metrics endpoint. Each orchestrator owns its own registry
// rather than registering against the global default, so that more than
// one can coexist in a process (notably in tests).
func (o *Orchestrator) Registry() *prometheus.Registry {
	return o.registry
}

// Start launches the feed handler and the three background loops. A
// second call while already running is a no-op.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return
	}
	o.running = true
	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.mu.Unlock()

	o.logger.Info("starting orchestrator",
		zap.Int("symbols", len(o.symbols)),
		zap.String("co_location", o.cfg.CoLocation),
		zap.String("system_id", o.cfg.SystemID),
	)

	o.feed.Start(ctx)

	o.wg.Add(3)
	go o.pipelineLoop(ctx)
	go o.marketMakingLoop(ctx)
	go o.monitoringLoop(ctx)

	o.logger.Info("all pipeline components running")
}

// Stop cancels every background loop and waits for them to exit.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	cancel := o.cancel
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	o.feed.Stop()
	o.wg.Wait()
	o.mmPool.Release()

	o.logger.Info("orchestrator stopped",
		zap.Int64("pipeline_cycles", o.pipelineCycles),
		zap.Int64("orders_executed", o.totalOrdersExecuted),
	)
}

// IsRunning reports whether the orchestrator's loops are active.
func (o *Orchestrator) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// pipelineLoop drains the event queue in batches and drives every
// event through order book update, FPGA decision, arbitrage scan, and
// (for any produced signal) the full execution path.
func (o *Orchestrator) pipelineLoop(ctx context.Context) {
	defer o.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		events := o.eventQueue.ConsumeBatch(pipelineBatchSize)
		if len(events) == 0 {
			time.Sleep(50 * time.Millisecond)
			continue
		}

		for _, event := range events {
			tick := o.clock.Measure()

			bookUpdate := o.clock.Measure()
			o.books.ApplyEvent(event)
			o.metrics.BookUpdate.Record(bookUpdate.ElapsedNS())

			fpgaStart := o.clock.Measure()
			fpgaSignal := o.fpga.ProcessTick(event)
			o.metrics.FPGAPipeline.Record(fpgaStart.ElapsedNS())

			arbSignal := o.arb.Evaluate(event)

			var signals []*marketdata.StrategySignal
			if fpgaSignal != nil {
				signals = append(signals, fpgaSignal)
			}
			if arbSignal != nil {
				signals = append(signals, arbSignal)
			}

			for _, signal := range signals {
				o.executeSignal(ctx, signal)
			}

			if len(signals) > 0 {
				o.metrics.TickToTrade.Record(tick.ElapsedNS())
			}
			o.metrics.RecordEvent(false, false)
		}

		o.mu.Lock()
		o.pipelineCycles++
		o.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
}

// marketMakingLoop periodically refreshes two-sided quotes for every
// symbol, fanning the per-symbol quote generation out across a bounded
// worker pool since each symbol's book read/quote-generate is independent.
func (o *Orchestrator) marketMakingLoop(ctx context.Context) {
	defer o.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var wg sync.WaitGroup
		for _, symbol := range o.symbols {
			symbol := symbol
			wg.Add(1)
			err := o.mmPool.Submit(func() {
				defer wg.Done()
				book := o.books.GetBook(symbol)
				if book == nil || book.MidPrice() == 0 {
					return
				}
				signals := o.marketMaker.GenerateQuotes(symbol, book)
				for _, signal := range signals {
					o.executeSignal(ctx, signal)
				}
			})
			if err != nil {
				wg.Done()
				o.logger.Warn("market-making fan-out rejected", zap.String("symbol", symbol), zap.Error(err))
			}
		}
		wg.Wait()

		interval := time.Duration(o.cfg.Strategy.QuoteRefreshIntervalMS) * time.Millisecond
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// monitoringLoop periodically checks alert thresholds and, when a hub
// is configured, builds and broadcasts a dashboard snapshot.
func (o *Orchestrator) monitoringLoop(ctx context.Context) {
	defer o.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		o.metrics.CheckAlerts()

		if o.hub != nil {
			snap := o.GetDashboard()
			if err := o.hub.Broadcast(snap); err != nil {
				o.logger.Warn("dashboard broadcast failed", zap.Error(err))
			}
		}

		interval := time.Duration(o.cfg.Monitoring.MetricsPublishIntervalMS) * time.Millisecond
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// executeSignal runs the full execution path for one strategy signal:
// route → risk check → submit → fill → position/P&L update.
func (o *Orchestrator) executeSignal(ctx context.Context, signal *marketdata.StrategySignal) {
	o.mu.Lock()
	o.totalSignalsProcessed++
	o.mu.Unlock()

	routeStart := o.clock.Measure()
	orders := o.router.RouteSignal(signal)
	o.metrics.OrderRouting.Record(routeStart.ElapsedNS())

	for _, order := range orders {
		verdict := o.riskGate.CheckOrder(order)
		o.metrics.RiskCheck.Record(verdict.LatencyNS)

		if !verdict.Approved {
			o.oms.UpdateStatus(order.OrderID, marketdata.OrderStatusRejected)
			continue
		}

		exchangeStart := o.clock.Measure()
		acked, _ := o.gw.SubmitOrder(ctx, order)
		o.oms.UpdateStatus(acked.OrderID, acked.Status)

		if acked.Status == marketdata.OrderStatusAcked {
			fills := o.gw.GetFills(acked)
			for _, fill := range fills {
				o.oms.ApplyFill(fill)
				o.positions.ApplyFill(fill)
				o.marketMaker.OnFill(fill)

				sign := -1.0
				if fill.Side == marketdata.SideSell {
					sign = 1.0
				}
				o.riskGate.UpdateDailyPnL(fill.FillPrice * float64(fill.FillQty) * sign * 0.001)

				o.metrics.RecordEvent(false, true)
				o.mu.Lock()
				o.totalOrdersExecuted++
				o.mu.Unlock()
			}
			o.router.UpdateVenueScore(acked.Venue, true)
		} else {
			o.router.UpdateVenueScore(acked.Venue, false)
		}

		o.metrics.ExchangeRoundTrip.Record(exchangeStart.ElapsedNS())
		o.metrics.RecordEvent(true, false)
	}
}

// GetDashboard builds a complete dashboard snapshot from every
// subsystem's current stats.
func (o *Orchestrator) GetDashboard() monitoring.DashboardSnapshot {
	o.mu.Lock()
	o.snapshotSeq++
	seq := o.snapshotSeq
	o.mu.Unlock()

	bookSnapshots := o.books.AllSnapshots()

	return monitoring.BuildSnapshot(
		o.clock, seq,
		o.feed.GetStats(),
		bookSnapshots,
		o.fpga.GetStats(),
		o.marketMaker.GetStats(),
		o.marketMaker.GetPositions(),
		o.arb.GetStats(),
		o.riskGate.GetStats(),
		o.positions.GetPortfolioSummary(),
		o.positions.GetAllPositions(),
		o.oms.GetStats(),
		o.oms.GetRecentFills(50),
		o.router.GetStats(),
		o.gw.GetVenueStats(),
		o.metrics.GetSummary(),
		o.eventQueue.Depth(),
	)
}

// GetOrderBookSnapshot returns one symbol's current book snapshot, or
// false if the symbol isn't tracked.
func (o *Orchestrator) GetOrderBookSnapshot(symbol string) (orderbook.Snapshot, bool) {
	book := o.books.GetBook(symbol)
	if book == nil {
		return orderbook.Snapshot{}, false
	}
	return book.GetSnapshot(), true
}

// GetAllOrderBooks returns every tracked symbol's current book snapshot.
func (o *Orchestrator) GetAllOrderBooks() map[string]orderbook.Snapshot {
	return o.books.AllSnapshots()
}

// InjectPriceShock forces a sudden repricing of symbol for fault-injection testing.
func (o *Orchestrator) InjectPriceShock(symbol string, magnitudePct float64) {
	o.feed.InjectPriceShock(symbol, magnitudePct)
}

// Status is a point-in-time summary of the orchestrator's run state.
type Status struct {
	Running            bool
	CoLocation         string
	SystemID           string
	SimulationMode     bool
	Symbols            []string
	PipelineCycles     int64
	SignalsProcessed   int64
	OrdersExecuted     int64
	RiskBreakerActive  bool
	Venues             int
}

// GetSystemStatus reports the orchestrator's run state, configured
// identity, activity counters, and the risk circuit-breaker state.
func (o *Orchestrator) GetSystemStatus() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	return Status{
		Running:           o.running,
		CoLocation:        o.cfg.CoLocation,
		SystemID:          o.cfg.SystemID,
		SimulationMode:    o.cfg.SimulationMode,
		Symbols:           o.symbols,
		PipelineCycles:    o.pipelineCycles,
		SignalsProcessed:  o.totalSignalsProcessed,
		OrdersExecuted:    o.totalOrdersExecuted,
		RiskBreakerActive: o.riskGate.GetStats().CircuitBreakerActive,
		Venues:            len(o.cfg.Execution.Venues),
	}
}
