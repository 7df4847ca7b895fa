// Package gateway simulates per-venue exchange connectivity: order
// submission with wire-latency jitter and a small reject probability,
// guarded by a circuit breaker per venue, and realistic (possibly
// partial) fill generation.
package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/lumenfeed/hftorch/internal/clock"
	"github.com/lumenfeed/hftorch/internal/config"
	"github.com/lumenfeed/hftorch/internal/marketdata"
)

const rejectProbability = 0.02

// venueStats accumulates a single venue's execution counters.
type venueStats struct {
	ordersSent     int64
	ordersAcked    int64
	ordersRejected int64
	ordersFilled   int64
	partialFills   int64
	totalFillQty   int64
	totalNotional  float64
	totalFees      float64
	latencySumUS   float64
}

func (s *venueStats) recordLatency(latencyUS float64) {
	s.latencySumUS += latencyUS
}

func (s *venueStats) avgLatencyUS() float64 {
	total := s.ordersAcked + s.ordersRejected
	if total == 0 {
		return 0
	}
	return s.latencySumUS / float64(total)
}

// simulator is one venue's matching engine simulation: wire latency,
// rejects, and fill generation, rate-limited and circuit-broken.
type simulator struct {
	cfg     config.VenueConfig
	clock   *clock.Clock
	rng     *rand.Rand
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker

	mu    sync.Mutex
	stats venueStats
}

func newSimulator(cfg config.VenueConfig, clk *clock.Clock, rng *rand.Rand) *simulator {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.5
		},
	}

	return &simulator{
		cfg:     cfg,
		clock:   clk,
		rng:     rng,
		limiter: rate.NewLimiter(rate.Limit(cfg.MaxOrderRate), cfg.MaxOrderRate),
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// submitOrder simulates wire-latency jitter then acks or rejects order.
func (s *simulator) submitOrder(ctx context.Context, order *marketdata.OrderEvent) (*marketdata.OrderEvent, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return order, err
	}

	result, err := s.breaker.Execute(func() (interface{}, error) {
		s.mu.Lock()
		s.stats.ordersSent++
		s.mu.Unlock()

		latencyUS := float64(s.cfg.WireLatencyUS) + uniform(s.rng, -5, 15)
		time.Sleep(time.Duration(latencyUS * float64(time.Microsecond)))

		s.mu.Lock()
		defer s.mu.Unlock()

		if s.rng.Float64() < rejectProbability {
			order.Status = marketdata.OrderStatusRejected
			s.stats.ordersRejected++
			s.stats.recordLatency(latencyUS)
			return order, fmt.Errorf("venue %s rejected order %s", s.cfg.Name, order.OrderID)
		}

		order.Status = marketdata.OrderStatusAcked
		order.RemainingQty = order.Quantity
		s.stats.ordersAcked++
		s.stats.recordLatency(latencyUS)
		return order, nil
	})

	if result == nil {
		return order, err
	}
	return result.(*marketdata.OrderEvent), err
}

// simulateFills generates one or more fills for an acked order whose
// cumulative qty equals order.Quantity. An IOC order may stop early (30%
// chance after each non-final fill), leaving the rest unfilled.
func (s *simulator) simulateFills(order *marketdata.OrderEvent) []*marketdata.FillEvent {
	if order.Status != marketdata.OrderStatusAcked {
		return nil
	}

	var fills []*marketdata.FillEvent
	remaining := order.Quantity

	for remaining > 0 {
		fillRatio := uniform(s.rng, 0.5, 1.0)
		if order.OrderType == marketdata.OrderTypeIOC {
			fillRatio = uniform(s.rng, 0.3, 1.0)
		}

		fillQty := maxInt64(1, int64(float64(remaining)*fillRatio))
		fillQty = minInt64(fillQty, remaining)

		slippage := uniform(s.rng, -0.005, 0.005)
		fillPrice := roundN(order.Price*(1+slippage), 2)

		isMaker := order.OrderType == marketdata.OrderTypeLimit || order.OrderType == marketdata.OrderTypePostOnly
		var fee float64
		if isMaker {
			fee = s.cfg.MakerRebatePerShare * float64(fillQty)
		} else {
			fee = s.cfg.TakerFeePerShare * float64(fillQty)
		}

		remaining -= fillQty
		isFinal := remaining == 0

		liquidity := "TAKER"
		eventType := marketdata.EventPartialFill
		if isMaker {
			liquidity = "MAKER"
		}
		if isFinal {
			eventType = marketdata.EventFill
		}

		fill := &marketdata.FillEvent{
			EventType:    eventType,
			OrderID:      order.OrderID,
			Symbol:       order.Symbol,
			Side:         order.Side,
			FillPrice:    fillPrice,
			FillQty:      fillQty,
			Venue:        order.Venue,
			Liquidity:    liquidity,
			Fee:          roundN(fee, 4),
			RemainingQty: remaining,
			IsFinal:      isFinal,
			TimestampNS:  s.clock.Now().EpochNS,
		}
		fills = append(fills, fill)

		s.mu.Lock()
		s.stats.totalFillQty += fillQty
		s.stats.totalNotional += fillPrice * float64(fillQty)
		s.stats.totalFees += fee
		if isFinal {
			s.stats.ordersFilled++
		} else {
			s.stats.partialFills++
		}
		s.mu.Unlock()

		if remaining > 0 && order.OrderType == marketdata.OrderTypeIOC && s.rng.Float64() < 0.3 {
			break
		}
	}

	return fills
}

// Gateway manages simulated connections to every configured venue.
type Gateway struct {
	logger     *zap.Logger
	simulators map[string]*simulator
}

// New builds a gateway with one simulator per configured venue.
func New(logger *zap.Logger, cfg config.ExecutionConfig, clk *clock.Clock, rng *rand.Rand) *Gateway {
	sims := make(map[string]*simulator, len(cfg.Venues))
	for _, vc := range cfg.Venues {
		sims[vc.Name] = newSimulator(vc, clk, rng)
	}
	return &Gateway{logger: logger, simulators: sims}
}

// SubmitOrder routes order to its venue's simulator.
func (g *Gateway) SubmitOrder(ctx context.Context, order *marketdata.OrderEvent) (*marketdata.OrderEvent, error) {
	sim, ok := g.simulators[order.Venue]
	if !ok {
		order.Status = marketdata.OrderStatusRejected
		return order, fmt.Errorf("no simulator configured for venue %s", order.Venue)
	}
	return sim.submitOrder(ctx, order)
}

// GetFills returns the simulated fills for an acked order.
func (g *Gateway) GetFills(order *marketdata.OrderEvent) []*marketdata.FillEvent {
	sim, ok := g.simulators[order.Venue]
	if !ok {
		return nil
	}
	return sim.simulateFills(order)
}

// VenueStats is a point-in-time rollup of one venue's execution counters.
type VenueStats struct {
	OrdersSent     int64
	OrdersAcked    int64
	OrdersFilled   int64
	OrdersRejected int64
	PartialFills   int64
	TotalFillQty   int64
	TotalNotional  float64
	TotalFees      float64
	AvgLatencyUS   float64
	MakerRebate    float64
	TakerFee       float64
	WireLatencyUS  float64
}

// GetVenueStats returns a snapshot of every venue's execution counters.
func (g *Gateway) GetVenueStats() map[string]VenueStats {
	out := make(map[string]VenueStats, len(g.simulators))
	for name, sim := range g.simulators {
		sim.mu.Lock()
		out[name] = VenueStats{
			OrdersSent:     sim.stats.ordersSent,
			OrdersAcked:    sim.stats.ordersAcked,
			OrdersFilled:   sim.stats.ordersFilled,
			OrdersRejected: sim.stats.ordersRejected,
			PartialFills:   sim.stats.partialFills,
			TotalFillQty:   sim.stats.totalFillQty,
			TotalNotional:  roundN(sim.stats.totalNotional, 2),
			TotalFees:      roundN(sim.stats.totalFees, 4),
			AvgLatencyUS:   roundN(sim.stats.avgLatencyUS(), 1),
			MakerRebate:    sim.cfg.MakerRebatePerShare,
			TakerFee:       sim.cfg.TakerFeePerShare,
			WireLatencyUS:  sim.cfg.WireLatencyUS,
		}
		sim.mu.Unlock()
	}
	return out
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

func roundN(v float64, n int) float64 {
	mult := 1.0
	for i := 0; i < n; i++ {
		mult *= 10
	}
	s := 1.0
	if v < 0 {
		s = -1
	}
	return float64(int64(v*mult+s*0.5)) / mult
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
