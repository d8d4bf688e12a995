package blotter

import (
	"context"
	"sort"
	"strings"
	"sync"

	"order-probe-bot/internal/market"
)

// Exchange is the balance source kept per exchange.
type Exchange interface {
	Name() string
	Balances(ctx context.Context) (market.Balances, error)
}

type entry struct {
	order market.Order
	seq   uint64
}

// Blotter tracks the orders placed by the algorithm. Orders placed outside
// the algorithm never enter it.
type Blotter struct {
	mu        sync.RWMutex
	exchanges map[string]Exchange
	open      map[string]map[string]*entry
	byClient  map[string]string
	seq       uint64
}

func New(exchanges ...Exchange) *Blotter {
	b := &Blotter{
		exchanges: make(map[string]Exchange),
		open:      make(map[string]map[string]*entry),
		byClient:  make(map[string]string),
	}
	for _, ex := range exchanges {
		b.exchanges[ex.Name()] = ex
	}
	return b
}

func bucketKey(exchange, pair string) string {
	return strings.ToLower(exchange) + ":" + strings.ToLower(pair)
}

func (b *Blotter) Exchange(name string) (Exchange, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ex, ok := b.exchanges[name]
	return ex, ok
}

func (b *Blotter) Exchanges() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.exchanges))
	for name := range b.exchanges {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Track records a freshly placed order. Terminal orders are ignored.
func (b *Blotter) Track(order market.Order) {
	if order.ID == "" || order.Status.Terminal() {
		return
	}
	if order.Status == "" {
		order.Status = market.StatusNew
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	key := bucketKey(order.Exchange, order.Pair)
	bucket, ok := b.open[key]
	if !ok {
		bucket = make(map[string]*entry)
		b.open[key] = bucket
	}
	if existing, ok := bucket[order.ID]; ok {
		existing.order = order
		return
	}
	b.seq++
	bucket[order.ID] = &entry{order: order, seq: b.seq}
	if order.ClientID != "" {
		b.byClient[order.ClientID] = order.ID
	}
}

// Apply merges a stream update into a tracked order. Updates for unknown
// orders report changed=false. Terminal orders leave the blotter.
func (b *Blotter) Apply(update market.OrderUpdate) (market.Order, bool) {
	incoming := update.Order
	b.mu.Lock()
	defer b.mu.Unlock()
	bucket := b.open[bucketKey(incoming.Exchange, incoming.Pair)]
	if bucket == nil {
		return incoming, false
	}
	id := incoming.ID
	if _, ok := bucket[id]; !ok && incoming.ClientID != "" {
		id = b.byClient[incoming.ClientID]
	}
	current, ok := bucket[id]
	if !ok {
		return incoming, false
	}
	merged := current.order
	if incoming.Status != "" {
		merged.Status = incoming.Status
	}
	if !incoming.Filled.IsZero() {
		merged.Filled = incoming.Filled
	}
	if !incoming.UpdatedAt.IsZero() {
		merged.UpdatedAt = incoming.UpdatedAt
	}
	changed := merged.Status != current.order.Status || !merged.Filled.Equal(current.order.Filled)
	if merged.Status.Terminal() {
		b.removeLocked(bucket, id)
		return merged, true
	}
	current.order = merged
	return merged, changed
}

// Cancel drops an order the venue accepted a cancel for.
func (b *Blotter) Cancel(order market.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if bucket := b.open[bucketKey(order.Exchange, order.Pair)]; bucket != nil {
		b.removeLocked(bucket, order.ID)
	}
}

func (b *Blotter) removeLocked(bucket map[string]*entry, id string) {
	if e, ok := bucket[id]; ok {
		delete(b.byClient, e.order.ClientID)
		delete(bucket, id)
	}
}

// OpenOrders returns a copy of the open orders for asset in placement order.
func (b *Blotter) OpenOrders(asset market.Asset) []market.Order {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bucket := b.open[bucketKey(asset.Exchange, asset.Pair)]
	entries := make([]*entry, 0, len(bucket))
	for _, e := range bucket {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	orders := make([]market.Order, len(entries))
	for i, e := range entries {
		orders[i] = e.order
	}
	return orders
}
