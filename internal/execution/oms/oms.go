// Package oms is the order management system: it owns the full
// lifecycle of every order from creation through fill, cancel, or
// rejection, and is the audit trail the monitoring dashboard reads
// from.
package oms

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	hfterrors "github.com/lumenfeed/hftorch/internal/common/errors"
	"github.com/lumenfeed/hftorch/internal/clock"
	"github.com/lumenfeed/hftorch/internal/marketdata"
)

var activeStatuses = map[marketdata.OrderStatus]struct{}{
	marketdata.OrderStatusPending:         {},
	marketdata.OrderStatusSent:            {},
	marketdata.OrderStatusAcked:           {},
	marketdata.OrderStatusPartiallyFilled: {},
}

// FillRecord is one audit-trail entry appended to the bounded order history.
type FillRecord struct {
	OrderID     string
	Symbol      string
	Side        marketdata.Side
	FillPrice   float64
	FillQty     int64
	Venue       string
	Liquidity   string
	Fee         float64
	TimestampNS int64
}

// OMS tracks every order's lifecycle and the fills applied against it.
type OMS struct {
	logger     *zap.Logger
	clock      *clock.Clock
	maxHistory int

	mu              sync.RWMutex
	orders          map[string]*marketdata.OrderEvent
	fills           map[string][]*marketdata.FillEvent
	orderHistory    []FillRecord
	totalOrders     int64
	totalFills      int64
	totalValueTraded float64
	totalFees       float64
	ordersByStatus  map[marketdata.OrderStatus]int64
	overfillsRejected int64
}

// New builds an OMS bound to clk, retaining at most maxHistory audit entries.
func New(logger *zap.Logger, clk *clock.Clock, maxHistory int) *OMS {
	return &OMS{
		logger:         logger,
		clock:          clk,
		maxHistory:     maxHistory,
		orders:         make(map[string]*marketdata.OrderEvent),
		fills:          make(map[string][]*marketdata.FillEvent),
		ordersByStatus: make(map[marketdata.OrderStatus]int64),
	}
}

// CreateOrder registers a new order in PENDING state with a ksuid-derived
// order ID and a uuid-derived client order ID.
func (o *OMS) CreateOrder(symbol string, side marketdata.Side, orderType marketdata.OrderType, price float64, quantity int64, venue, strategyID, parentOrderID string) *marketdata.OrderEvent {
	orderID := fmt.Sprintf("ORD-%s", strings.ToUpper(ksuid.New().String()[:12]))
	clientOrderID := fmt.Sprintf("CL-%s", uuid.New().String()[:8])

	order := &marketdata.OrderEvent{
		EventType:     marketdata.EventOrderNew,
		OrderID:       orderID,
		Symbol:        symbol,
		Side:          side,
		OrderType:     orderType,
		Price:         price,
		Quantity:      quantity,
		Venue:         venue,
		StrategyID:    strategyID,
		Status:        marketdata.OrderStatusPending,
		RemainingQty:  quantity,
		ClientOrderID: clientOrderID,
		ParentOrderID: parentOrderID,
		TimestampNS:   o.clock.Now().EpochNS,
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.orders[orderID] = order
	o.totalOrders++
	o.ordersByStatus[marketdata.OrderStatusPending]++

	return order
}

// UpdateStatus transitions order_id to newStatus, maintaining the
// per-status counters used by get_stats.
func (o *OMS) UpdateStatus(orderID string, newStatus marketdata.OrderStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.updateStatusLocked(orderID, newStatus)
}

func (o *OMS) updateStatusLocked(orderID string, newStatus marketdata.OrderStatus) {
	order, ok := o.orders[orderID]
	if !ok {
		return
	}
	oldStatus := order.Status
	order.Status = newStatus

	if o.ordersByStatus[oldStatus] > 0 {
		o.ordersByStatus[oldStatus]--
	}
	o.ordersByStatus[newStatus]++
}

// ApplyFill folds a fill into its order's lifecycle state. A fill that
// would carry the order's filled quantity past its original quantity
// is rejected and dropped — the wire-level discrepancy (a venue
// reporting more shares filled than it was sent) is a hard bookkeeping
// error, not something to silently clamp away.
func (o *OMS) ApplyFill(fill *marketdata.FillEvent) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	order, ok := o.orders[fill.OrderID]
	if !ok {
		return hfterrors.Newf(hfterrors.CodeGatewayReject, "fill for unknown order %s", fill.OrderID)
	}

	if fill.FillQty > order.RemainingQty {
		o.overfillsRejected++
		err := hfterrors.Newf(hfterrors.CodeGatewayReject, "fill qty %d exceeds remaining qty %d for order %s", fill.FillQty, order.RemainingQty, fill.OrderID).
			WithDetail("order_id", fill.OrderID).
			WithDetail("fill_qty", fill.FillQty).
			WithDetail("remaining_qty", order.RemainingQty)
		o.logger.Warn("dropping over-fill", zap.Error(err))
		return err
	}

	o.fills[fill.OrderID] = append(o.fills[fill.OrderID], fill)
	order.FilledQty += fill.FillQty
	order.RemainingQty = maxInt64(0, order.Quantity-order.FilledQty)
	order.AvgFillPrice = o.calcAvgPriceLocked(fill.OrderID)

	if fill.IsFinal {
		o.updateStatusLocked(fill.OrderID, marketdata.OrderStatusFilled)
	} else {
		o.updateStatusLocked(fill.OrderID, marketdata.OrderStatusPartiallyFilled)
	}

	o.totalFills++
	o.totalValueTraded += fill.FillPrice * float64(fill.FillQty)
	o.totalFees += fill.Fee

	o.orderHistory = append(o.orderHistory, FillRecord{
		OrderID:     fill.OrderID,
		Symbol:      fill.Symbol,
		Side:        fill.Side,
		FillPrice:   fill.FillPrice,
		FillQty:     fill.FillQty,
		Venue:       fill.Venue,
		Liquidity:   fill.Liquidity,
		Fee:         fill.Fee,
		TimestampNS: fill.TimestampNS,
	})
	if len(o.orderHistory) > o.maxHistory {
		o.orderHistory = o.orderHistory[len(o.orderHistory)-o.maxHistory:]
	}

	return nil
}

func (o *OMS) calcAvgPriceLocked(orderID string) float64 {
	fills := o.fills[orderID]
	if len(fills) == 0 {
		return 0
	}
	var totalQty int64
	var totalValue float64
	for _, f := range fills {
		totalQty += f.FillQty
		totalValue += f.FillPrice * float64(f.FillQty)
	}
	if totalQty == 0 {
		return 0
	}
	return totalValue / float64(totalQty)
}

// GetOrder returns order_id's current state, or nil if unknown.
func (o *OMS) GetOrder(orderID string) *marketdata.OrderEvent {
	o.mu.RLock()
	defer o.mu.RUnlock()
	order, ok := o.orders[orderID]
	if !ok {
		return nil
	}
	cp := *order
	return &cp
}

// GetActiveOrders returns every order still in a non-terminal state,
// optionally filtered to one symbol.
func (o *OMS) GetActiveOrders(symbol string) []*marketdata.OrderEvent {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var out []*marketdata.OrderEvent
	for _, order := range o.orders {
		if _, active := activeStatuses[order.Status]; !active {
			continue
		}
		if symbol != "" && order.Symbol != symbol {
			continue
		}
		cp := *order
		out = append(out, &cp)
	}
	return out
}

// GetRecentFills returns at most limit of the most recent audit-trail entries.
func (o *OMS) GetRecentFills(limit int) []FillRecord {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if limit > len(o.orderHistory) {
		limit = len(o.orderHistory)
	}
	return append([]FillRecord(nil), o.orderHistory[len(o.orderHistory)-limit:]...)
}

// Stats is a point-in-time rollup of the OMS's counters.
type Stats struct {
	TotalOrders       int64
	TotalFills        int64
	TotalValueTraded  float64
	TotalFees         float64
	ActiveOrders      int
	OrdersByStatus    map[marketdata.OrderStatus]int64
	FillRatePct       float64
	OverfillsRejected int64
}

// GetStats returns a snapshot of the OMS's counters.
func (o *OMS) GetStats() Stats {
	o.mu.RLock()
	defer o.mu.RUnlock()

	active := 0
	for _, order := range o.orders {
		if _, ok := activeStatuses[order.Status]; ok {
			active++
		}
	}

	byStatus := make(map[marketdata.OrderStatus]int64, len(o.ordersByStatus))
	for k, v := range o.ordersByStatus {
		byStatus[k] = v
	}

	fillRate := 0.0
	if o.totalOrders > 0 {
		fillRate = roundN(float64(o.totalFills)/float64(o.totalOrders)*100, 1)
	}

	return Stats{
		TotalOrders:       o.totalOrders,
		TotalFills:        o.totalFills,
		TotalValueTraded:  roundN(o.totalValueTraded, 2),
		TotalFees:         roundN(o.totalFees, 4),
		ActiveOrders:      active,
		OrdersByStatus:    byStatus,
		FillRatePct:       fillRate,
		OverfillsRejected: o.overfillsRejected,
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

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
