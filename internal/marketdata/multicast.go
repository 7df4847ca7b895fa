package marketdata

import (
	"strconv"
	"sync"

	"go.uber.org/zap"
)

// Listener receives distributed market data events.
type Listener func(*MarketDataEvent)

// multicastGroup fans events for a fixed symbol set out to its listeners.
type multicastGroup struct {
	address   string
	symbols   map[string]struct{}
	listeners []Listener
	messages  int64
}

func (g *multicastGroup) distribute(event *MarketDataEvent) {
	if _, ok := g.symbols[event.Symbol]; !ok {
		return
	}
	for _, l := range g.listeners {
		l(event)
	}
	g.messages++
}

// MulticastDistributor routes market data events to the group
// responsible for a symbol, the way exchange multicast feeds split
// symbols across UDP groups. Grouping has no effect on pipeline
// semantics — every event still reaches the same downstream queue —
// it only changes which listeners see which symbols.
type MulticastDistributor struct {
	logger *zap.Logger

	mu             sync.RWMutex
	groups         map[string]*multicastGroup
	symbolToGroup  map[string]string
	totalDistributed int64
}

// NewMulticastDistributor creates an empty distributor.
func NewMulticastDistributor(logger *zap.Logger) *MulticastDistributor {
	return &MulticastDistributor{
		logger:        logger,
		groups:        make(map[string]*multicastGroup),
		symbolToGroup: make(map[string]string),
	}
}

// CreateGroup registers a multicast group address covering symbols.
func (d *MulticastDistributor) CreateGroup(address string, symbols []string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	set := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		set[s] = struct{}{}
		d.symbolToGroup[s] = address
	}
	d.groups[address] = &multicastGroup{address: address, symbols: set}
	d.logger.Info("multicast group created", zap.String("address", address), zap.Int("symbols", len(symbols)))
}

// Subscribe registers listener against a group address.
func (d *MulticastDistributor) Subscribe(address string, listener Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if g, ok := d.groups[address]; ok {
		g.listeners = append(g.listeners, listener)
	}
}

// Distribute routes event to the group owning its symbol, if any.
func (d *MulticastDistributor) Distribute(event *MarketDataEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	addr, ok := d.symbolToGroup[event.Symbol]
	if !ok {
		return
	}
	if g, ok := d.groups[addr]; ok {
		g.distribute(event)
		d.totalDistributed++
	}
}

// GroupStats describes one multicast group's load.
type GroupStats struct {
	Symbols   int
	Listeners int
	Messages  int64
}

// DistributorStats is a point-in-time snapshot of distributor counters.
type DistributorStats struct {
	TotalGroups      int
	TotalSymbols     int
	TotalDistributed int64
	Groups           map[string]GroupStats
}

// GetStats returns a snapshot of distributor counters.
func (d *MulticastDistributor) GetStats() DistributorStats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	groups := make(map[string]GroupStats, len(d.groups))
	for addr, g := range d.groups {
		groups[addr] = GroupStats{
			Symbols:   len(g.symbols),
			Listeners: len(g.listeners),
			Messages:  g.messages,
		}
	}

	return DistributorStats{
		TotalGroups:      len(d.groups),
		TotalSymbols:     len(d.symbolToGroup),
		TotalDistributed: d.totalDistributed,
		Groups:           groups,
	}
}

// AssignGroups deterministically spreads symbols across n multicast
// groups (network.multicast_groups) and registers them, the way the
// feed handler's symbol universe is partitioned at startup.
func (d *MulticastDistributor) AssignGroups(symbols []string, n int) {
	if n <= 0 {
		n = 1
	}
	buckets := make([][]string, n)
	for i, sym := range symbols {
		idx := i % n
		buckets[idx] = append(buckets[idx], sym)
	}
	for i, bucket := range buckets {
		if len(bucket) == 0 {
			continue
		}
		d.CreateGroup(groupAddress(i), bucket)
	}
}

func groupAddress(i int) string {
	return "239.1.1." + strconv.Itoa(i+1)
}
