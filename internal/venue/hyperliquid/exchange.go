package hyperliquid

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"order-probe-bot/internal/config"
	"order-probe-bot/internal/market"
	"order-probe-bot/internal/venue"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	Name = config.ExchangeHyperliquid

	spotAssetOffset = 10000
)

var (
	ErrNoSigner  = errors.New("hyperliquid private key is required for trading")
	ErrNoAccount = errors.New("hyperliquid account address is required")
)

type Exchange struct {
	info     *InfoClient
	exchange *ExchangeClient
	account  string
	log      *zap.Logger

	wsURL          string
	reconnectDelay time.Duration
	pingInterval   time.Duration

	mu     sync.RWMutex
	assets map[string]market.Asset
}

// New builds the hyperliquid spot venue. It is registered as a venue.Factory.
func New(deps venue.Deps) (venue.Exchange, error) {
	cfg := deps.Config
	log := deps.Log.Named("hyperliquid")
	ex := &Exchange{
		info:           NewInfoClient(cfg.HL.BaseURL, cfg.HL.Timeout),
		account:        cfg.HL.AccountAddress,
		log:            log,
		wsURL:          cfg.HL.WSURL,
		reconnectDelay: cfg.WS.ReconnectDelay,
		pingInterval:   cfg.WS.PingInterval,
		assets:         make(map[string]market.Asset),
	}
	if strings.TrimSpace(cfg.HL.PrivateKey) == "" {
		log.Warn("hyperliquid private key missing; trading disabled")
		return ex, nil
	}
	signer, err := NewSigner(cfg.HL.PrivateKey, !strings.Contains(cfg.HL.BaseURL, "testnet"))
	if err != nil {
		return nil, err
	}
	if ex.account == "" {
		ex.account = signer.Address().Hex()
	}
	n := newNonces(log)
	if err := n.attach(context.Background(), deps.Store, nonceKey(signer.Address().Hex(), cfg.HL.VaultAddress)); err != nil {
		return nil, fmt.Errorf("seed hyperliquid nonce: %w", err)
	}
	ex.exchange, err = NewExchangeClient(cfg.HL.BaseURL, cfg.HL.Timeout, signer, cfg.HL.VaultAddress, n)
	if err != nil {
		return nil, err
	}
	return ex, nil
}

func (e *Exchange) Name() string {
	return Name
}

// Symbol resolves pair against spot metadata. Canonical pairs keep their
// name ("PURR/USDC"); the rest trade under "@<index>".
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
	meta, err := e.info.SpotMeta(ctx)
	if err != nil {
		return market.Asset{}, err
	}
	tokens := make(map[int]SpotToken, len(meta.Tokens))
	for _, tok := range meta.Tokens {
		tokens[tok.Index] = tok
	}
	for _, p := range meta.Universe {
		b, okBase := tokens[p.Tokens[0]]
		q, okQuote := tokens[p.Tokens[1]]
		if !okBase || !okQuote {
			continue
		}
		if !strings.EqualFold(b.Name, base) || !strings.EqualFold(q.Name, quote) {
			continue
		}
		coin := p.Name
		if coin == "" || !strings.Contains(coin, "/") {
			coin = "@" + strconv.Itoa(p.Index)
		}
		asset = market.Asset{
			Exchange:     Name,
			Pair:         pair,
			Base:         strings.ToUpper(b.Name),
			Quote:        strings.ToUpper(q.Name),
			VenueSymbol:  coin,
			VenueID:      spotAssetOffset + p.Index,
			SizeDecimals: b.SzDecimals,
		}
		e.mu.Lock()
		e.assets[pair] = asset
		e.mu.Unlock()
		return asset, nil
	}
	return market.Asset{}, fmt.Errorf("%w: %s on %s", market.ErrUnknownSymbol, pair, Name)
}

func (e *Exchange) LatestPrice(ctx context.Context, asset market.Asset) (decimal.Decimal, error) {
	mids, err := e.info.AllMids(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	mid, ok := mids[asset.VenueSymbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: no mid for %s", market.ErrUnknownSymbol, asset.VenueSymbol)
	}
	return mid, nil
}

func (e *Exchange) Balances(ctx context.Context) (market.Balances, error) {
	if e.account == "" {
		return nil, ErrNoAccount
	}
	raw, err := e.info.SpotBalances(ctx, e.account)
	if err != nil {
		return nil, err
	}
	balances := make(market.Balances, len(raw))
	for _, b := range raw {
		balances[strings.ToUpper(b.Coin)] = market.Balance{Free: b.Total.Sub(b.Hold), Locked: b.Hold}
	}
	return balances, nil
}

func (e *Exchange) OpenOrders(ctx context.Context, asset market.Asset) ([]market.Order, error) {
	if e.account == "" {
		return nil, ErrNoAccount
	}
	raw, err := e.info.OpenOrders(ctx, e.account)
	if err != nil {
		return nil, err
	}
	var orders []market.Order
	for _, o := range raw {
		if o.Coin != asset.VenueSymbol {
			continue
		}
		orders = append(orders, orderFromWire(o, asset.Pair, "open"))
	}
	return orders, nil
}

func (e *Exchange) PlaceOrder(ctx context.Context, req market.OrderRequest) (string, error) {
	if e.exchange == nil {
		return "", ErrNoSigner
	}
	price, err := priceToWire(req.LimitPrice, req.Asset.SizeDecimals)
	if err != nil {
		return "", err
	}
	size, err := sizeToWire(req.Amount, req.Asset.SizeDecimals)
	if err != nil {
		return "", err
	}
	oid, err := e.exchange.PlaceOrder(ctx, orderWire{
		Asset: req.Asset.VenueID,
		IsBuy: req.Side != market.Sell,
		Price: price,
		Size:  size,
		Type:  orderType{Limit: limitTIF{Tif: tifGtc}},
		Cloid: cloidFor(req.ClientID),
	})
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(oid, 10), nil
}

func (e *Exchange) CancelOrder(ctx context.Context, asset market.Asset, orderID string) error {
	if e.exchange == nil {
		return ErrNoSigner
	}
	oid, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid hyperliquid order id %q: %w", orderID, err)
	}
	return e.exchange.CancelOrder(ctx, asset.VenueID, oid)
}

func (e *Exchange) BookSnapshot(ctx context.Context, asset market.Asset) (market.BookUpdate, error) {
	book, err := e.info.L2Book(ctx, asset.VenueSymbol)
	if err != nil {
		return market.BookUpdate{}, err
	}
	return bookUpdate(book), nil
}

func msTime(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
