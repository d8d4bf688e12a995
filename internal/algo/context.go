package algo

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"order-probe-bot/internal/blotter"
	"order-probe-bot/internal/config"
	"order-probe-bot/internal/exec"
	"order-probe-bot/internal/market"
	"order-probe-bot/internal/metrics"
	"order-probe-bot/internal/venue"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrInterrupted = errors.New("algorithm interrupted")

// OrderRouter submits and cancels orders on behalf of the algorithm.
// exec.Executor satisfies it.
type OrderRouter interface {
	PlaceOrder(ctx context.Context, req market.OrderRequest) (string, error)
	CancelOrder(ctx context.Context, asset market.Asset, orderID string) error
}

// Context is the API an algorithm trades through. It is safe for use by the
// dispatch goroutine and the control server at the same time.
type Context struct {
	cfg     config.AlgoConfig
	venue   venue.Exchange
	router  OrderRouter
	blotter *blotter.Blotter
	books   *market.Books
	log     *zap.Logger
	metrics *metrics.Metrics

	mu          sync.RWMutex
	assets      map[string]market.Asset
	order       []string
	benchmark   *market.Asset
	interrupted bool
	reason      string
	cancel      context.CancelFunc
}

func NewContext(cfg config.AlgoConfig, ex venue.Exchange, router OrderRouter, log *zap.Logger, m *metrics.Metrics) *Context {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Context{
		cfg:     cfg,
		venue:   ex,
		router:  router,
		blotter: blotter.New(ex),
		books:   market.NewBooks(),
		log:     log,
		metrics: m,
		assets:  make(map[string]market.Asset),
	}
}

func (c *Context) Logger() *zap.Logger {
	return c.log
}

func (c *Context) Blotter() *blotter.Blotter {
	return c.blotter
}

func (c *Context) StartingCapital() decimal.Decimal {
	return c.cfg.StartingCapital
}

func (c *Context) checkExchange(exchange string) error {
	if exchange != c.venue.Name() {
		return fmt.Errorf("%w: %s", venue.ErrUnknownExchange, exchange)
	}
	return nil
}

// Symbol resolves pair on exchange and registers it for streaming.
func (c *Context) Symbol(ctx context.Context, pair, exchange string) (market.Asset, error) {
	if err := c.checkExchange(exchange); err != nil {
		return market.Asset{}, err
	}
	c.mu.RLock()
	asset, ok := c.assets[pair]
	c.mu.RUnlock()
	if ok {
		return asset, nil
	}
	asset, err := c.venue.Symbol(ctx, pair)
	if err != nil {
		return market.Asset{}, err
	}
	c.mu.Lock()
	if _, ok := c.assets[pair]; !ok {
		c.assets[pair] = asset
		c.order = append(c.order, pair)
	}
	c.mu.Unlock()
	return asset, nil
}

// Assets returns the registered assets in registration order.
func (c *Context) Assets() []market.Asset {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]market.Asset, 0, len(c.order))
	for _, pair := range c.order {
		out = append(out, c.assets[pair])
	}
	return out
}

func (c *Context) SetBenchmark(asset market.Asset) {
	c.mu.Lock()
	c.benchmark = &asset
	c.mu.Unlock()
}

func (c *Context) Benchmark() (market.Asset, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.benchmark == nil {
		return market.Asset{}, false
	}
	return *c.benchmark, true
}

// Order places a limit order. A positive amount buys, a negative amount sells.
func (c *Context) Order(ctx context.Context, asset market.Asset, amount, limitPrice decimal.Decimal) (string, error) {
	if amount.IsZero() {
		return "", errors.New("order amount must be non-zero")
	}
	side := market.Buy
	if amount.IsNegative() {
		side = market.Sell
		amount = amount.Neg()
	}
	req := market.OrderRequest{
		Asset:      asset,
		Side:       side,
		Amount:     amount,
		LimitPrice: limitPrice,
		ClientID:   exec.NewClientID(),
	}
	orderID, err := c.router.PlaceOrder(ctx, req)
	if err != nil {
		return "", err
	}
	c.blotter.Track(market.Order{
		ID:         orderID,
		ClientID:   req.ClientID,
		Exchange:   asset.Exchange,
		Pair:       asset.Pair,
		Side:       side,
		Amount:     amount,
		LimitPrice: limitPrice,
		Status:     market.StatusNew,
	})
	return orderID, nil
}

// CancelOrder cancels order and drops it from the blotter once the venue
// accepts the request.
func (c *Context) CancelOrder(ctx context.Context, order market.Order, asset market.Asset) error {
	if err := c.router.CancelOrder(ctx, asset, order.ID); err != nil {
		return err
	}
	c.blotter.Cancel(order)
	return nil
}

func (c *Context) Balances(ctx context.Context, exchange string) (market.Balances, error) {
	ex, ok := c.blotter.Exchange(exchange)
	if !ok {
		return nil, fmt.Errorf("%w: %s", venue.ErrUnknownExchange, exchange)
	}
	return ex.Balances(ctx)
}

func (c *Context) LatestPrice(ctx context.Context, exchange, pair string) (decimal.Decimal, error) {
	asset, err := c.Symbol(ctx, pair, exchange)
	if err != nil {
		return decimal.Zero, err
	}
	return c.venue.LatestPrice(ctx, asset)
}

func (c *Context) SetBookSnapshot(exchange string, update market.BookUpdate) {
	c.books.Ensure(exchange, update.Symbol).ApplySnapshot(update)
}

// UpdateBook merges a delta. A book that lost sequence stays unsynced until
// the venue delivers the next snapshot.
func (c *Context) UpdateBook(exchange string, update market.BookUpdate) {
	if err := c.books.Ensure(exchange, update.Symbol).ApplyDelta(update); err != nil {
		c.log.Warn("book delta not applied", zap.String("exchange", exchange), zap.String("symbol", update.Symbol), zap.Error(err))
	}
}

func (c *Context) BestBidAsk(asset market.Asset) (market.Level, market.Level, bool) {
	book, ok := c.books.Get(asset.Exchange, asset.VenueSymbol)
	if !ok {
		return market.Level{}, market.Level{}, false
	}
	return book.BestBidAsk()
}

func (c *Context) Depth(asset market.Asset, n int) ([]market.Level, []market.Level, bool) {
	book, ok := c.books.Get(asset.Exchange, asset.VenueSymbol)
	if !ok {
		return nil, nil, false
	}
	bids, asks := book.Depth(n)
	return bids, asks, true
}

// InterruptAlgorithm stops the run. Only the first reason is kept.
func (c *Context) InterruptAlgorithm(reason string) {
	c.mu.Lock()
	if c.interrupted {
		c.mu.Unlock()
		return
	}
	c.interrupted = true
	c.reason = reason
	cancel := c.cancel
	c.mu.Unlock()
	c.metrics.AlgoInterrupted.Inc()
	c.log.Warn("algorithm interrupted", zap.String("reason", reason))
	if cancel != nil {
		cancel()
	}
}

func (c *Context) Interrupted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.interrupted
}

func (c *Context) InterruptReason() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reason
}

func (c *Context) bind(cancel context.CancelFunc) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancel = cancel
	return c.interrupted
}
