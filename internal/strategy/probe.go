package strategy

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"order-probe-bot/internal/algo"
	"order-probe-bot/internal/config"
	"order-probe-bot/internal/event"
	"order-probe-bot/internal/market"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Probe places one limit buy after the streams are up and cancels its own
// open orders whenever an order update arrives. Any order failure stops the
// algorithm for good.
type Probe struct {
	cfg config.AlgoConfig
	log *zap.Logger

	exited           atomic.Bool
	placingOrder     atomic.Bool
	cancellingOrders atomic.Bool
	ordersPlaced     atomic.Int64
	ordersCancelled  atomic.Int64

	mu             sync.RWMutex
	normalizedPair string
	asset          market.Asset
	lastOrderID    string
	stopReason     string
}

type Status struct {
	Exchange         string `json:"exchange"`
	Pair             string `json:"pair"`
	Symbol           string `json:"symbol"`
	OrderAmount      string `json:"order_amount"`
	OrderPrice       string `json:"order_price"`
	Exited           bool   `json:"exited"`
	PlacingOrder     bool   `json:"placing_order"`
	CancellingOrders bool   `json:"cancelling_orders"`
	OrdersPlaced     int64  `json:"orders_placed"`
	OrdersCancelled  int64  `json:"orders_cancelled"`
	LastOrderID      string `json:"last_order_id,omitempty"`
	StopReason       string `json:"stop_reason,omitempty"`
}

func NewProbe(cfg config.AlgoConfig, log *zap.Logger) *Probe {
	if log == nil {
		log = zap.NewNop()
	}
	return &Probe{cfg: cfg, log: log.Named("probe")}
}

func (p *Probe) Initialize(ctx context.Context, c *algo.Context) error {
	normalized := market.NormalizePair(p.cfg.Pair)
	p.log.Info("initializing algo", zap.String("market", fmt.Sprintf("%s @ %s", normalized, p.cfg.Exchange)))
	asset, err := c.Symbol(ctx, p.cfg.Pair, p.cfg.Exchange)
	if err != nil {
		return err
	}
	c.SetBenchmark(asset)

	p.mu.Lock()
	p.normalizedPair = normalized
	p.asset = asset
	p.mu.Unlock()
	p.exited.Store(false)
	p.placingOrder.Store(false)
	p.cancellingOrders.Store(false)
	return nil
}

func (p *Probe) InitializeHandleEvents(ctx context.Context, c *algo.Context) {
	price, err := c.LatestPrice(ctx, p.cfg.Exchange, p.cfg.Pair)
	if err != nil {
		p.log.Warn("latest price unavailable", zap.String("pair", p.cfg.Pair), zap.Error(err))
	} else {
		p.log.Info("last price", zap.String("pair", p.cfg.Pair), zap.String("price", price.String()))
	}
	if !p.placingOrder.Load() {
		p.placeOrder(ctx, c)
	}
}

func (p *Probe) HandleEvents(ctx context.Context, c *algo.Context, ev event.Event) {
	if p.exited.Load() {
		return
	}
	switch ev.Kind {
	case event.OrderBookSnapshot:
		if ev.Book != nil {
			c.SetBookSnapshot(ev.Exchange, *ev.Book)
		}
	case event.OrderBookDelta:
		if ev.Book != nil {
			c.UpdateBook(ev.Exchange, *ev.Book)
		}
		if p.cfg.LogBestBidAsk {
			if bid, ask, ok := c.BestBidAsk(p.currentAsset()); ok {
				p.log.Info("best bid/ask",
					zap.String("bid", bid.Price.String()),
					zap.String("bid_size", bid.Size.String()),
					zap.String("ask", ask.Price.String()),
					zap.String("ask_size", ask.Size.String()),
				)
			}
		}
	case event.UserOrder:
		p.log.Info("order update received", zap.Any("event", ev.Attributes()))
		open := c.Blotter().OpenOrders(p.currentAsset())
		if len(open) > 0 && !p.cancellingOrders.Load() {
			p.cancelAllOrders(ctx, c)
		}
	case event.Schedule:
		p.log.Info("schedule event fired")
	}
}

func (p *Probe) currentAsset() market.Asset {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.asset
}

func (p *Probe) orderTotal() decimal.Decimal {
	return p.cfg.OrderAmount.Mul(p.cfg.OrderPrice)
}

func (p *Probe) validateBalances(ctx context.Context, c *algo.Context) (bool, error) {
	balances, err := c.Balances(ctx, p.cfg.Exchange)
	if err != nil {
		return false, err
	}
	asset := p.currentAsset()
	free := balances.Get(asset.Quote).Free
	total := p.orderTotal()
	if free.LessThan(total) {
		p.log.Error("insufficient balance to place buy order",
			zap.String("currency", asset.Quote),
			zap.String("balance", free.String()),
			zap.String("required", total.String()),
		)
		return false, nil
	}
	return true, nil
}

func (p *Probe) placeOrder(ctx context.Context, c *algo.Context) {
	if !p.placingOrder.CompareAndSwap(false, true) {
		return
	}
	ok, err := p.validateBalances(ctx, c)
	if err != nil {
		p.log.Error("failed to read balances", zap.Error(err))
		p.finalize(c, fmt.Sprintf("balance lookup failed: %v", err))
		return
	}
	if !ok {
		p.placingOrder.Store(false)
		return
	}
	orderID, err := c.Order(ctx, p.currentAsset(), p.cfg.OrderAmount, p.cfg.OrderPrice)
	if err != nil {
		p.log.Error("failed to place order", zap.Error(err))
		p.finalize(c, fmt.Sprintf("order placement failed: %v", err))
		return
	}
	p.ordersPlaced.Add(1)
	p.mu.Lock()
	p.lastOrderID = orderID
	p.mu.Unlock()
	p.log.Info("placed order",
		zap.String("order", fmt.Sprintf("%s@%s", p.cfg.OrderAmount, p.cfg.OrderPrice)),
		zap.String("order_id", orderID),
	)
	p.placingOrder.Store(false)
}

// cancelAllOrders cancels the orders this algorithm placed; orders placed
// elsewhere on the account are left alone. A failed cancel stops the
// algorithm but the remaining orders are still cancelled.
func (p *Probe) cancelAllOrders(ctx context.Context, c *algo.Context) {
	if !p.cancellingOrders.CompareAndSwap(false, true) {
		return
	}
	defer p.cancellingOrders.Store(false)
	// finalize cancels the run context.
	ctx = context.WithoutCancel(ctx)
	asset := p.currentAsset()
	for _, o := range c.Blotter().OpenOrders(asset) {
		p.log.Info("cancelling order", zap.String("order_id", o.ID))
		if err := c.CancelOrder(ctx, o, asset); err != nil {
			p.log.Error("failed to cancel order", zap.String("order_id", o.ID), zap.Error(err))
			p.finalize(c, fmt.Sprintf("cancel of order %s failed: %v", o.ID, err))
			continue
		}
		p.ordersCancelled.Add(1)
	}
}

func (p *Probe) finalize(c *algo.Context, reason string) {
	if !p.exited.CompareAndSwap(false, true) {
		return
	}
	p.mu.Lock()
	p.stopReason = reason
	p.mu.Unlock()
	p.log.Info("stopping bot", zap.String("reason", reason))
	c.InterruptAlgorithm(reason)
}

func (p *Probe) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Status{
		Exchange:         p.cfg.Exchange,
		Pair:             p.cfg.Pair,
		Symbol:           p.normalizedPair,
		OrderAmount:      p.cfg.OrderAmount.String(),
		OrderPrice:       p.cfg.OrderPrice.String(),
		Exited:           p.exited.Load(),
		PlacingOrder:     p.placingOrder.Load(),
		CancellingOrders: p.cancellingOrders.Load(),
		OrdersPlaced:     p.ordersPlaced.Load(),
		OrdersCancelled:  p.ordersCancelled.Load(),
		LastOrderID:      p.lastOrderID,
		StopReason:       p.stopReason,
	}
}

// Stop ends the algorithm on operator request through the same path as a
// failed order.
func (p *Probe) Stop(c *algo.Context, reason string) {
	p.finalize(c, reason)
}
