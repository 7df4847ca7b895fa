// Package marketdata defines the event atoms that flow through the
// tick-to-trade pipeline and the simulated feed that produces them.
package marketdata

// EventType identifies the kind of event flowing through the pipeline.
type EventType int

const (
	EventMarketDataL1   EventType = 1
	EventMarketDataL2   EventType = 2
	EventMarketDataTrade EventType = 3
	EventOrderNew       EventType = 10
	EventOrderCancel    EventType = 11
	EventOrderReplace   EventType = 12
	EventOrderAck       EventType = 13
	EventOrderReject    EventType = 14
	EventFill           EventType = 20
	EventPartialFill    EventType = 21
	EventStrategySignal EventType = 30
	EventRiskCheck      EventType = 40
	EventRiskApproved   EventType = 41
	EventRiskRejected   EventType = 42
	EventHeartbeat      EventType = 99
)

// Side is the direction of an order or fill.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType is the execution style requested for an order.
type OrderType string

const (
	OrderTypeLimit    OrderType = "LIMIT"
	OrderTypeMarket   OrderType = "MARKET"
	OrderTypeIOC      OrderType = "IOC"
	OrderTypeFOK      OrderType = "FOK"
	OrderTypePostOnly OrderType = "POST_ONLY"
)

// OrderStatus is the OMS lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending          OrderStatus = "PENDING"
	OrderStatusSent             OrderStatus = "SENT"
	OrderStatusAcked            OrderStatus = "ACKED"
	OrderStatusPartiallyFilled  OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled           OrderStatus = "FILLED"
	OrderStatusCancelled        OrderStatus = "CANCELLED"
	OrderStatusRejected         OrderStatus = "REJECTED"
)

// MarketDataEvent is one tick: an L1/L2 quote update or a trade print.
type MarketDataEvent struct {
	EventType  EventType
	Symbol     string
	Venue      string
	TimestampNS int64
	ReceiveNS  int64

	BidPrice float64
	BidSize  int64
	AskPrice float64
	AskSize  int64

	TradePrice float64
	TradeSize  int64

	Sequence uint64
}

// Reset zeroes the event for pool reuse.
func (e *MarketDataEvent) Reset() {
	*e = MarketDataEvent{}
}

// MidPrice is the mid of bid/ask, falling back to trade/bid/ask if one side is missing.
func (e *MarketDataEvent) MidPrice() float64 {
	if e.BidPrice > 0 && e.AskPrice > 0 {
		return (e.BidPrice + e.AskPrice) / 2.0
	}
	if e.TradePrice > 0 {
		return e.TradePrice
	}
	if e.BidPrice > 0 {
		return e.BidPrice
	}
	return e.AskPrice
}

// Spread is ask - bid, or 0 if either side is missing.
func (e *MarketDataEvent) Spread() float64 {
	if e.BidPrice > 0 && e.AskPrice > 0 {
		return e.AskPrice - e.BidPrice
	}
	return 0.0
}

// SpreadBPS is the spread expressed in basis points of the mid.
func (e *MarketDataEvent) SpreadBPS() float64 {
	mid := e.MidPrice()
	if mid > 0 {
		return (e.Spread() / mid) * 10_000
	}
	return 0.0
}

// OrderEvent describes an order lifecycle transition.
type OrderEvent struct {
	EventType     EventType
	OrderID       string
	Symbol        string
	Side          Side
	OrderType     OrderType
	Price         float64
	Quantity      int64
	Venue         string
	StrategyID    string
	TimestampNS   int64
	Status        OrderStatus
	FilledQty     int64
	RemainingQty  int64
	AvgFillPrice  float64
	ClientOrderID string
	ParentOrderID string
}

// FillEvent describes one fill against a resting or aggressing order.
type FillEvent struct {
	EventType    EventType
	OrderID      string
	Symbol       string
	Side         Side
	FillPrice    float64
	FillQty      int64
	Venue        string
	TimestampNS  int64
	Liquidity    string // "MAKER" or "TAKER"
	Fee          float64
	RemainingQty int64
	IsFinal      bool
}

// StrategySignal is a trading intent produced by a strategy engine.
type StrategySignal struct {
	EventType   EventType
	StrategyID  string
	Symbol      string
	Side        Side
	TargetPrice float64
	TargetQty   int64
	Urgency     float64
	TimestampNS int64
	SignalType  string
	Metadata    map[string]interface{}
}

// RiskDecision is the risk gate's verdict on an order.
type RiskDecision struct {
	EventType    EventType
	OrderID      string
	Approved     bool
	Reason       string
	TimestampNS  int64
	ChecksPassed int
	ChecksTotal  int
	LatencyNS    int64
}
