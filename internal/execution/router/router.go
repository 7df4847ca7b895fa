// Package router implements the smart order router: single-venue
// selection by weighted score, and proportional order splitting with
// fill-rate/reputation feedback from realized outcomes.
package router

import (
	"fmt"
	"sort"
	"sync"

	"github.com/lumenfeed/hftorch/internal/clock"
	"github.com/lumenfeed/hftorch/internal/config"
	"github.com/lumenfeed/hftorch/internal/execution/oms"
	"github.com/lumenfeed/hftorch/internal/marketdata"
)

const (
	initialFillRate  = 0.85
	initialRepScore  = 1.0
	maxVenueScore    = 2.0
	minVenueScore    = 0.1
	maxFillRate      = 1.0
	minFillRate      = 0.1
	scoreUpFactor    = 1.01
	scoreDownFactor  = 0.95
	fillUpFactor     = 1.005
	fillDownFactor   = 0.98
)

var makerIntents = map[string]struct{}{
	"market_make_bid": {},
	"market_make_ask": {},
	"market_make":     {},
}

// Router routes strategy signals to venues based on real-time scoring,
// splitting orders across venues when the target quantity exceeds the
// configured slice size.
type Router struct {
	cfg   config.ExecutionConfig
	clock *clock.Clock
	oms   *oms.OMS

	venueByName map[string]config.VenueConfig

	mu              sync.Mutex
	venueScores     map[string]float64
	venueFillRates  map[string]float64
	routesEvaluated int64
	ordersRouted    int64
	splitsCreated   int64
}

// New builds a router bound to cfg's venue set.
func New(cfg config.ExecutionConfig, clk *clock.Clock, o *oms.OMS) *Router {
	byName := make(map[string]config.VenueConfig, len(cfg.Venues))
	scores := make(map[string]float64, len(cfg.Venues))
	fillRates := make(map[string]float64, len(cfg.Venues))
	for _, v := range cfg.Venues {
		byName[v.Name] = v
		scores[v.Name] = initialRepScore
		fillRates[v.Name] = initialFillRate
	}

	return &Router{
		cfg:            cfg,
		clock:          clk,
		oms:            o,
		venueByName:    byName,
		venueScores:    scores,
		venueFillRates: fillRates,
	}
}

// RouteSignal converts a strategy signal into one or more routed orders.
func (r *Router) RouteSignal(signal *marketdata.StrategySignal) []*marketdata.OrderEvent {
	r.mu.Lock()
	r.routesEvaluated++
	r.mu.Unlock()

	if signal.TargetQty <= r.cfg.MaxSliceSize {
		venue := r.selectBestVenue(signal)
		order := r.oms.CreateOrder(signal.Symbol, signal.Side, marketdata.OrderType(r.cfg.DefaultOrderType), signal.TargetPrice, signal.TargetQty, venue, signal.StrategyID, "")

		r.mu.Lock()
		r.ordersRouted++
		r.mu.Unlock()

		return []*marketdata.OrderEvent{order}
	}

	return r.splitOrder(signal)
}

// selectBestVenue scores every configured venue for signal and returns
// the argmax venue name.
func (r *Router) selectBestVenue(signal *marketdata.StrategySignal) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var bestVenue string
	bestScore := -1.0

	for name, vc := range r.venueByName {
		score := r.scoreVenueLocked(name, vc, signal)
		if bestVenue == "" || score > bestScore {
			bestVenue = name
			bestScore = score
		}
	}

	if bestVenue == "" && len(r.cfg.Venues) > 0 {
		return r.cfg.Venues[0].Name
	}
	return bestVenue
}

// scoreVenueLocked computes the single-venue-selection weighted score:
// 0.3·(1+urgency·0.67)·latency + 0.3·fee + 0.2·fill + 0.2·reputation.
// Must be called with r.mu held.
func (r *Router) scoreVenueLocked(name string, vc config.VenueConfig, signal *marketdata.StrategySignal) float64 {
	latencyScore := 1.0 / (vc.WireLatencyUS / 100.0)

	var feeScore float64
	if _, isMaker := makerIntents[signal.SignalType]; isMaker {
		feeScore = absFloat(vc.MakerRebatePerShare) * 1000
	} else {
		feeScore = 1.0 / (vc.TakerFeePerShare*1000 + 0.1)
	}

	fillScore := r.venueFillRates[name]
	reputation := r.venueScores[name]

	return 0.3*(1+signal.Urgency*0.67)*latencyScore + 0.3*feeScore + 0.2*fillScore + 0.2*reputation
}

// splitOrder slices a large order across multiple venues proportional
// to each venue's allocation weight, with any residual quantity going
// to the highest-scored venue's slice (not simply the last slice
// created, since sorted-descending iteration processes the highest
// score first).
func (r *Router) splitOrder(signal *marketdata.StrategySignal) []*marketdata.OrderEvent {
	remaining := signal.TargetQty
	var orders []*marketdata.OrderEvent
	parentID := fmt.Sprintf("PARENT-%d", r.clock.Now().Seq)

	weights := r.getVenueWeights(signal)
	type venueWeight struct {
		venue  string
		weight float64
	}
	sorted := make([]venueWeight, 0, len(weights))
	for v, w := range weights {
		sorted = append(sorted, venueWeight{v, w})
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].weight > sorted[j].weight })

	var highestScoredOrder *marketdata.OrderEvent

	for i, vw := range sorted {
		if remaining <= 0 {
			break
		}

		sliceQty := maxInt64(1, int64(float64(signal.TargetQty)*vw.weight))
		sliceQty = minInt64(sliceQty, remaining, r.cfg.MaxSliceSize)

		order := r.oms.CreateOrder(signal.Symbol, signal.Side, marketdata.OrderType(r.cfg.DefaultOrderType), signal.TargetPrice, sliceQty, vw.venue, signal.StrategyID, parentID)
		orders = append(orders, order)
		if i == 0 {
			highestScoredOrder = order
		}
		remaining -= sliceQty

		r.mu.Lock()
		r.splitsCreated++
		r.mu.Unlock()
	}

	if remaining > 0 && highestScoredOrder != nil {
		highestScoredOrder.Quantity += remaining
		highestScoredOrder.RemainingQty += remaining
	}

	r.mu.Lock()
	r.ordersRouted += int64(len(orders))
	r.mu.Unlock()

	return orders
}

// getVenueWeights computes proportional allocation weights for order
// splitting: fill_rate·0.4 + latency·0.3 + reputation·0.3, normalized
// to sum to 1.
func (r *Router) getVenueWeights(signal *marketdata.StrategySignal) map[string]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	raw := make(map[string]float64, len(r.venueByName))
	var total float64
	for name, vc := range r.venueByName {
		latencyScore := 1.0 / (vc.WireLatencyUS / 100.0)
		score := r.venueFillRates[name]*0.4 + latencyScore*0.3 + r.venueScores[name]*0.3
		raw[name] = score
		total += score
	}
	if total == 0 {
		total = 1.0
	}
	for name := range raw {
		raw[name] /= total
	}
	return raw
}

// UpdateVenueScore folds a fill outcome into the venue's reputation and
// fill-rate estimate, used by the next route_signal call's scoring.
func (r *Router) UpdateVenueScore(venue string, fillSuccess bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.venueScores[venue]
	if current == 0 {
		current = initialRepScore
	}
	fr := r.venueFillRates[venue]
	if fr == 0 {
		fr = initialFillRate
	}

	if fillSuccess {
		r.venueScores[venue] = minFloat(maxVenueScore, current*scoreUpFactor)
		r.venueFillRates[venue] = minFloat(maxFillRate, fr*fillUpFactor)
	} else {
		r.venueScores[venue] = maxFloat(minVenueScore, current*scoreDownFactor)
		r.venueFillRates[venue] = maxFloat(minFillRate, fr*fillDownFactor)
	}
}

// Stats is a point-in-time rollup of the router's counters.
type Stats struct {
	SmartRoutingEnabled bool
	RoutesEvaluated     int64
	OrdersRouted        int64
	SplitsCreated       int64
	VenueScores         map[string]float64
	VenueFillRates      map[string]float64
	Venues              []string
	MaxSliceSize        int64
}

// GetStats returns a snapshot of the router's counters.
func (r *Router) GetStats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	scores := make(map[string]float64, len(r.venueScores))
	for k, v := range r.venueScores {
		scores[k] = roundN(v, 3)
	}
	fillRates := make(map[string]float64, len(r.venueFillRates))
	for k, v := range r.venueFillRates {
		fillRates[k] = roundN(v, 3)
	}

	venues := make([]string, 0, len(r.cfg.Venues))
	for _, v := range r.cfg.Venues {
		venues = append(venues, v.Name)
	}

	return Stats{
		SmartRoutingEnabled: r.cfg.SmartRoutingEnabled,
		RoutesEvaluated:     r.routesEvaluated,
		OrdersRouted:        r.ordersRouted,
		SplitsCreated:       r.splitsCreated,
		VenueScores:         scores,
		VenueFillRates:      fillRates,
		Venues:              venues,
		MaxSliceSize:        r.cfg.MaxSliceSize,
	}
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

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minInt64(vals ...int64) int64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
