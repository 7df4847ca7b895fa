package risk

import (
	"sync"

	"go.uber.org/zap"

	"github.com/lumenfeed/hftorch/internal/clock"
	"github.com/lumenfeed/hftorch/internal/config"
	hfterrors "github.com/lumenfeed/hftorch/internal/common/errors"
	"github.com/lumenfeed/hftorch/internal/marketdata"
)

const checksTotal = 7

// orderStamp is one entry in the order-rate sliding window.
type orderStamp struct {
	atNS int64
}

// notionalStamp is one entry in the notional-per-second sliding window.
type notionalStamp struct {
	atNS     int64
	notional float64
}

// Gate runs every order through the seven pre-trade risk checks:
// fat-finger, position limit, order rate, notional limit, daily loss,
// duplicate detection, and self-trade prevention (the last is a stub —
// the core has no cross-strategy order book visibility to check
// against, so it always passes, matching the original's accounting).
type Gate struct {
	logger    *zap.Logger
	cfg       config.RiskConfig
	clock     *clock.Clock
	positions *PositionTracker

	mu               sync.Mutex
	orderTimestamps  []orderStamp
	notionalWindow   []notionalStamp
	recentOrderIDs   map[string]struct{}
	lastPrices       map[string]float64
	dailyPnL         float64
	circuitBreaker   bool

	checksRun        int64
	checksPassed     int64
	checksFailed     int64
	totalLatencyNS   int64
	rejectionReasons map[string]int64
}

// NewGate builds a risk gate bound to cfg and the shared position tracker.
func NewGate(logger *zap.Logger, cfg config.RiskConfig, clk *clock.Clock, positions *PositionTracker) *Gate {
	return &Gate{
		logger:           logger,
		cfg:              cfg,
		clock:            clk,
		positions:        positions,
		recentOrderIDs:   make(map[string]struct{}),
		lastPrices:       make(map[string]float64),
		rejectionReasons: make(map[string]int64),
	}
}

// CheckOrder runs all seven pre-trade risk checks against order.
func (g *Gate) CheckOrder(order *marketdata.OrderEvent) *marketdata.RiskDecision {
	start := g.clock.Measure()

	g.mu.Lock()
	defer g.mu.Unlock()

	g.checksRun++

	if g.circuitBreaker {
		return g.rejectLocked(order, "CIRCUIT_BREAKER_ACTIVE", start.ElapsedNS(), 0)
	}

	var failures []string
	checksPassed := 0

	if g.checkFatFingerLocked(order) {
		checksPassed++
	} else {
		failures = append(failures, "FAT_FINGER")
	}

	if g.checkPositionLimitLocked(order) {
		checksPassed++
	} else {
		failures = append(failures, "POSITION_LIMIT")
	}

	if g.checkOrderRateLocked() {
		checksPassed++
	} else {
		failures = append(failures, "ORDER_RATE_LIMIT")
	}

	if g.checkNotionalLimitLocked(order) {
		checksPassed++
	} else {
		failures = append(failures, "NOTIONAL_LIMIT")
	}

	if g.checkDailyLossLocked() {
		checksPassed++
	} else {
		failures = append(failures, "DAILY_LOSS_LIMIT")
	}

	if g.checkDuplicateLocked(order) {
		checksPassed++
	} else {
		failures = append(failures, "DUPLICATE_ORDER")
	}

	// Self-trade prevention: always passes, no cross-strategy book visibility.
	checksPassed++

	latencyNS := start.ElapsedNS()
	g.totalLatencyNS += latencyNS

	if len(failures) > 0 {
		for _, reason := range failures {
			g.rejectionReasons[reason]++
		}
		g.checksFailed++
		return &marketdata.RiskDecision{
			EventType:    marketdata.EventRiskRejected,
			OrderID:      order.OrderID,
			Approved:     false,
			Reason:       joinReasons(failures),
			TimestampNS:  g.clock.Now().EpochNS,
			ChecksPassed: checksPassed,
			ChecksTotal:  checksTotal,
			LatencyNS:    latencyNS,
		}
	}

	g.checksPassed++
	g.recentOrderIDs[order.OrderID] = struct{}{}
	now := g.clock.Now().EpochNS
	g.orderTimestamps = append(g.orderTimestamps, orderStamp{atNS: now})
	g.notionalWindow = append(g.notionalWindow, notionalStamp{atNS: now, notional: order.Price * float64(order.Quantity)})

	return &marketdata.RiskDecision{
		EventType:    marketdata.EventRiskApproved,
		OrderID:      order.OrderID,
		Approved:     true,
		Reason:       "ALL_CHECKS_PASSED",
		TimestampNS:  now,
		ChecksPassed: checksPassed,
		ChecksTotal:  checksTotal,
		LatencyNS:    latencyNS,
	}
}

func (g *Gate) rejectLocked(order *marketdata.OrderEvent, reason string, latencyNS int64, checksPassed int) *marketdata.RiskDecision {
	g.totalLatencyNS += latencyNS
	g.checksFailed++
	g.rejectionReasons[reason]++
	return &marketdata.RiskDecision{
		EventType:    marketdata.EventRiskRejected,
		OrderID:      order.OrderID,
		Approved:     false,
		Reason:       reason,
		TimestampNS:  g.clock.Now().EpochNS,
		ChecksPassed: checksPassed,
		ChecksTotal:  checksTotal,
		LatencyNS:    latencyNS,
	}
}

func (g *Gate) checkFatFingerLocked(order *marketdata.OrderEvent) bool {
	last, ok := g.lastPrices[order.Symbol]
	if !ok {
		g.lastPrices[order.Symbol] = order.Price
		return true
	}

	pctDiff := absFloat(order.Price-last) / last * 100
	if pctDiff > g.cfg.FatFingerThresholdPct {
		return false
	}
	g.lastPrices[order.Symbol] = order.Price
	return true
}

func (g *Gate) checkPositionLimitLocked(order *marketdata.OrderEvent) bool {
	current := g.positions.GetPositionQty(order.Symbol)
	projected := current - order.Quantity
	if order.Side == marketdata.SideBuy {
		projected = current + order.Quantity
	}
	return absInt64(projected) <= g.cfg.PositionLimitPerSymbol
}

func (g *Gate) checkOrderRateLocked() bool {
	now := g.clock.Now().EpochNS
	cutoff := now - 1_000_000_000

	i := 0
	for i < len(g.orderTimestamps) && g.orderTimestamps[i].atNS < cutoff {
		i++
	}
	if i > 0 {
		g.orderTimestamps = g.orderTimestamps[i:]
	}
	return len(g.orderTimestamps) < g.cfg.MaxOrdersPerSecond
}

func (g *Gate) checkNotionalLimitLocked(order *marketdata.OrderEvent) bool {
	notional := order.Price * float64(order.Quantity)
	if notional > g.cfg.MaxOrderValue {
		return false
	}

	now := g.clock.Now().EpochNS
	cutoff := now - 1_000_000_000

	i := 0
	for i < len(g.notionalWindow) && g.notionalWindow[i].atNS < cutoff {
		i++
	}
	if i > 0 {
		g.notionalWindow = g.notionalWindow[i:]
	}

	windowNotional := notional
	for _, n := range g.notionalWindow {
		windowNotional += n.notional
	}
	return windowNotional <= g.cfg.MaxNotionalPerSecond
}

func (g *Gate) checkDailyLossLocked() bool {
	if absFloat(g.dailyPnL) > g.cfg.MaxDailyLoss && g.dailyPnL < 0 {
		g.circuitBreaker = true
		g.logger.Error("risk circuit breaker activated on daily loss limit",
			zap.Error(hfterrors.New(hfterrors.CodeCircuitBreakerActive, "daily loss limit exceeded").WithDetail("daily_pnl", g.dailyPnL)))
		return false
	}
	return true
}

func (g *Gate) checkDuplicateLocked(order *marketdata.OrderEvent) bool {
	_, seen := g.recentOrderIDs[order.OrderID]
	return !seen
}

// UpdateDailyPnL adjusts the running daily P&L used by the loss-limit check.
func (g *Gate) UpdateDailyPnL(delta float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dailyPnL += delta
}

// ResetDaily clears the daily P&L, circuit breaker, and duplicate-ID set.
func (g *Gate) ResetDaily() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dailyPnL = 0
	g.circuitBreaker = false
	g.recentOrderIDs = make(map[string]struct{})
	g.logger.Info("daily risk counters reset")
}

// Limits mirrors the configured thresholds for dashboard reporting.
type Limits struct {
	MaxOrderValue      float64
	MaxPositionValue   float64
	MaxDailyLoss       float64
	MaxOrdersPerSecond int
	FatFingerPct       float64
	PositionLimit      int64
}

// Stats is a point-in-time rollup of the gate's counters.
type Stats struct {
	ChecksRun            int64
	ChecksPassed         int64
	ChecksFailed         int64
	PassRatePct          float64
	AvgCheckLatencyNS    float64
	AvgCheckLatencyUS    float64
	CircuitBreakerActive bool
	DailyPnL             float64
	RejectionReasons     map[string]int64
	Limits               Limits
}

// GetStats returns a snapshot of the gate's counters.
func (g *Gate) GetStats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()

	avgLatency := 0.0
	if g.checksRun > 0 {
		avgLatency = float64(g.totalLatencyNS) / float64(g.checksRun)
	}
	passRate := 0.0
	if g.checksRun > 0 {
		passRate = roundN(float64(g.checksPassed)/float64(g.checksRun)*100, 2)
	}

	reasons := make(map[string]int64, len(g.rejectionReasons))
	for k, v := range g.rejectionReasons {
		reasons[k] = v
	}

	return Stats{
		ChecksRun:            g.checksRun,
		ChecksPassed:         g.checksPassed,
		ChecksFailed:         g.checksFailed,
		PassRatePct:          passRate,
		AvgCheckLatencyNS:    roundN(avgLatency, 0),
		AvgCheckLatencyUS:    roundN(avgLatency/1_000, 2),
		CircuitBreakerActive: g.circuitBreaker,
		DailyPnL:             roundN(g.dailyPnL, 2),
		RejectionReasons:     reasons,
		Limits: Limits{
			MaxOrderValue:      g.cfg.MaxOrderValue,
			MaxPositionValue:   g.cfg.MaxPositionValue,
			MaxDailyLoss:       g.cfg.MaxDailyLoss,
			MaxOrdersPerSecond: g.cfg.MaxOrdersPerSecond,
			FatFingerPct:       g.cfg.FatFingerThresholdPct,
			PositionLimit:      g.cfg.PositionLimitPerSymbol,
		},
	}
}

func joinReasons(reasons []string) string {
	out := reasons[0]
	for _, r := range reasons[1:] {
		out += "; " + r
	}
	return out
}
