package venue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"order-probe-bot/internal/config"
	"order-probe-bot/internal/event"
	"order-probe-bot/internal/market"
	"order-probe-bot/internal/metrics"
	"order-probe-bot/internal/state"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrUnknownExchange = errors.New("unknown exchange")

// Exchange is the venue surface the runtime trades through.
type Exchange interface {
	Name() string
	// Symbol resolves pair against venue metadata.
	Symbol(ctx context.Context, pair string) (market.Asset, error)
	LatestPrice(ctx context.Context, asset market.Asset) (decimal.Decimal, error)
	Balances(ctx context.Context) (market.Balances, error)
	OpenOrders(ctx context.Context, asset market.Asset) ([]market.Order, error)
	PlaceOrder(ctx context.Context, req market.OrderRequest) (string, error)
	CancelOrder(ctx context.Context, asset market.Asset, orderID string) error
	BookSnapshot(ctx context.Context, asset market.Asset) (market.BookUpdate, error)
	// Subscribe streams book and user order events for asset into sink
	// until ctx is done. ready is called once the stream is connected and
	// user order updates will be delivered.
	Subscribe(ctx context.Context, asset market.Asset, sink event.Sink, ready func()) error
}

type Deps struct {
	Config  config.Config
	Log     *zap.Logger
	Store   state.Store
	Metrics *metrics.Metrics
}

type Factory func(deps Deps) (Exchange, error)

type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

func (r *Registry) New(name string, deps Deps) (Exchange, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownExchange, name)
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNoop()
	}
	return factory(deps)
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
