package orderbook

import (
	"sync"

	"go.uber.org/zap"

	"github.com/lumenfeed/hftorch/internal/clock"
	hfterrors "github.com/lumenfeed/hftorch/internal/common/errors"
	"github.com/lumenfeed/hftorch/internal/marketdata"
)

// Manager owns replicated order books across all tracked symbols,
// replicaCount copies each, and supports failover between replicas.
type Manager struct {
	logger       *zap.Logger
	clock        *clock.Clock
	replicaCount int

	mu      sync.RWMutex
	books   map[string][]*OrderBook
	primary map[string]int
}

// NewManager creates a manager that maintains replicaCount replicas per symbol.
func NewManager(logger *zap.Logger, clk *clock.Clock, replicaCount int) *Manager {
	if replicaCount < 1 {
		replicaCount = 1
	}
	return &Manager{
		logger:       logger,
		clock:        clk,
		replicaCount: replicaCount,
		books:        make(map[string][]*OrderBook),
		primary:      make(map[string]int),
	}
}

// RegisterSymbol allocates replicaCount fresh books for symbol if it
// isn't already tracked.
func (m *Manager) RegisterSymbol(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registerSymbolLocked(symbol)
}

func (m *Manager) registerSymbolLocked(symbol string) {
	if _, ok := m.books[symbol]; ok {
		return
	}
	replicas := make([]*OrderBook, m.replicaCount)
	for i := range replicas {
		replicas[i] = NewOrderBook(symbol, m.clock)
	}
	m.books[symbol] = replicas
	m.primary[symbol] = 0
}

// ApplyEvent routes event to every replica of its symbol's book.
func (m *Manager) ApplyEvent(event *marketdata.MarketDataEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.registerSymbolLocked(event.Symbol)

	for _, book := range m.books[event.Symbol] {
		switch event.EventType {
		case marketdata.EventMarketDataL1, marketdata.EventMarketDataL2:
			book.ApplyL1Update(event)
		case marketdata.EventMarketDataTrade:
			book.ApplyTrade(event)
			book.ApplyL1Update(event)
		}
	}
}

// GetBook returns the current primary replica for symbol, or nil.
func (m *Manager) GetBook(symbol string) *OrderBook {
	m.mu.RLock()
	defer m.mu.RUnlock()
	replicas, ok := m.books[symbol]
	if !ok {
		return nil
	}
	idx := m.primary[symbol]
	return replicas[idx]
}

// Failover advances symbol's primary index to the next replica.
// Before switching it compares the outgoing primary's snapshot
// checksum against every other replica's; a mismatch is logged as a
// book invariant violation (replicas should never diverge since they
// receive an identical event stream, so disagreement indicates a bug
// in ApplyEvent or a specific replica's state).
func (m *Manager) Failover(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	replicas, ok := m.books[symbol]
	if !ok || len(replicas) < 2 {
		return
	}

	current := m.primary[symbol]
	currentSum := replicas[current].GetSnapshot().Checksum

	for i, r := range replicas {
		if i == current {
			continue
		}
		if r.GetSnapshot().Checksum != currentSum {
			err := hfterrors.New(hfterrors.CodeBookInvariantViolation, "order book replica checksum mismatch on failover").
				WithDetail("symbol", symbol).
				WithDetail("primary_replica", current).
				WithDetail("divergent_replica", i)
			m.logger.Warn(err.Error(), zap.String("symbol", symbol), zap.Int("primary", current), zap.Int("divergent", i))
		}
	}

	next := (current + 1) % len(replicas)
	m.primary[symbol] = next
	m.logger.Warn("order book failover", zap.String("symbol", symbol), zap.Int("from_replica", current), zap.Int("to_replica", next))
}

// AllSnapshots returns every tracked symbol's primary-replica snapshot.
func (m *Manager) AllSnapshots() map[string]Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Snapshot, len(m.books))
	for symbol, replicas := range m.books {
		idx := m.primary[symbol]
		out[symbol] = replicas[idx].GetSnapshot()
	}
	return out
}

// ManagerStats is a point-in-time rollup across all tracked books.
type ManagerStats struct {
	SymbolsTracked int
	ReplicaCount   int
	TotalUpdates   int64
}

// GetStats summarizes the manager's tracked books.
func (m *Manager) GetStats() ManagerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total int64
	for symbol, replicas := range m.books {
		idx := m.primary[symbol]
		total += replicas[idx].updateCount
	}
	return ManagerStats{
		SymbolsTracked: len(m.books),
		ReplicaCount:   m.replicaCount,
		TotalUpdates:   total,
	}
}
