package binance

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"order-probe-bot/internal/config"
	"order-probe-bot/internal/event"
	"order-probe-bot/internal/market"
	"order-probe-bot/internal/metrics"
	"order-probe-bot/internal/venue"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const Name = config.ExchangeBinance

type Exchange struct {
	rest    *Client
	stream  streamConfig
	log     *zap.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	assets map[string]market.Asset
}

// New builds the binance venue. It is registered as a venue.Factory.
func New(deps venue.Deps) (venue.Exchange, error) {
	cfg := deps.Config
	return &Exchange{
		rest: NewClient(cfg.Binance),
		stream: streamConfig{
			URL:            cfg.Binance.StreamURL,
			ReconnectDelay: cfg.WS.ReconnectDelay,
			PingInterval:   cfg.WS.PingInterval,
			KeepAlive:      cfg.Binance.KeepAlive,
			DepthLimit:     cfg.Binance.DepthLimit,
		},
		log:     deps.Log.Named("binance"),
		metrics: deps.Metrics,
		assets:  make(map[string]market.Asset),
	}, nil
}

func (e *Exchange) Name() string {
	return Name
}

func (e *Exchange) Symbol(ctx context.Context, pair string) (market.Asset, error) {
	e.mu.RLock()
	asset, ok := e.assets[pair]
	e.mu.RUnlock()
	if ok {
		return asset, nil
	}
	base, quote, err := market.ParsePair(pair)
	if err != nil {
		return market.Asset{}, err
	}
	symbol := base + quote
	info, err := e.rest.ExchangeInfo(ctx, symbol)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == 400 {
			return market.Asset{}, fmt.Errorf("%w: %s on %s", market.ErrUnknownSymbol, pair, Name)
		}
		return market.Asset{}, err
	}
	var found *SymbolInfo
	for i := range info.Symbols {
		if info.Symbols[i].Symbol == symbol {
			found = &info.Symbols[i]
			break
		}
	}
	if found == nil {
		return market.Asset{}, fmt.Errorf("%w: %s on %s", market.ErrUnknownSymbol, pair, Name)
	}
	if found.Status != "" && found.Status != "TRADING" {
		e.log.Warn("symbol is not trading", zap.String("symbol", symbol), zap.String("status", found.Status))
	}
	asset = market.Asset{
		Exchange:    Name,
		Pair:        pair,
		Base:        found.BaseAsset,
		Quote:       found.QuoteAsset,
		VenueSymbol: found.Symbol,
	}
	if f, ok := found.filter("PRICE_FILTER"); ok {
		asset.PriceTick = f.TickSize
	}
	if f, ok := found.filter("LOT_SIZE"); ok {
		asset.SizeStep = f.StepSize
	}
	e.mu.Lock()
	e.assets[pair] = asset
	e.mu.Unlock()
	return asset, nil
}

func (e *Exchange) LatestPrice(ctx context.Context, asset market.Asset) (decimal.Decimal, error) {
	ticker, err := e.rest.TickerPrice(ctx, asset.VenueSymbol)
	if err != nil {
		return decimal.Zero, err
	}
	return ticker.Price, nil
}

func (e *Exchange) Balances(ctx context.Context) (market.Balances, error) {
	account, err := e.rest.Account(ctx)
	if err != nil {
		return nil, err
	}
	balances := make(market.Balances, len(account.Balances))
	for _, b := range account.Balances {
		balances[b.Asset] = market.Balance{Free: b.Free, Locked: b.Locked}
	}
	return balances, nil
}

func (e *Exchange) OpenOrders(ctx context.Context, asset market.Asset) ([]market.Order, error) {
	resp, err := e.rest.OpenOrders(ctx, asset.VenueSymbol)
	if err != nil {
		return nil, err
	}
	orders := make([]market.Order, 0, len(resp))
	for _, o := range resp {
		orders = append(orders, orderFromResponse(o, asset.Pair))
	}
	return orders, nil
}

func (e *Exchange) PlaceOrder(ctx context.Context, req market.OrderRequest) (string, error) {
	side := req.Side
	if side == "" {
		side = market.Buy
	}
	qty := req.Asset.RoundSize(req.Amount)
	if !qty.IsPositive() {
		return "", fmt.Errorf("order amount %s rounds to zero for %s", req.Amount, req.Asset.VenueSymbol)
	}
	price := req.Asset.RoundPrice(req.LimitPrice)
	if !price.IsPositive() {
		return "", fmt.Errorf("limit price %s rounds to zero for %s", req.LimitPrice, req.Asset.VenueSymbol)
	}
	resp, err := e.rest.PlaceLimitOrder(ctx, NewOrder{
		Symbol:        req.Asset.VenueSymbol,
		Side:          string(side),
		Quantity:      qty.String(),
		Price:         price.String(),
		ClientOrderID: req.ClientID,
	})
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(resp.OrderID, 10), nil
}

func (e *Exchange) CancelOrder(ctx context.Context, asset market.Asset, orderID string) error {
	_, err := e.rest.CancelOrder(ctx, asset.VenueSymbol, orderID)
	return err
}

func (e *Exchange) BookSnapshot(ctx context.Context, asset market.Asset) (market.BookUpdate, error) {
	snapshot, err := e.rest.Depth(ctx, asset.VenueSymbol, e.stream.DepthLimit)
	if err != nil {
		return market.BookUpdate{}, err
	}
	return snapshot.BookUpdate(asset.VenueSymbol, time.Now().UTC()), nil
}

func (e *Exchange) Subscribe(ctx context.Context, asset market.Asset, sink event.Sink, ready func()) error {
	return newStream(e.stream, e.rest, asset, sink, e.log, e.metrics).run(ctx, ready)
}
