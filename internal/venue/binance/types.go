package binance

import (
	"time"

	"order-probe-bot/internal/market"

	"github.com/shopspring/decimal"
)

type ExchangeInfo struct {
	Symbols []SymbolInfo `json:"symbols"`
}

type SymbolInfo struct {
	Symbol     string         `json:"symbol"`
	Status     string         `json:"status"`
	BaseAsset  string         `json:"baseAsset"`
	QuoteAsset string         `json:"quoteAsset"`
	Filters    []SymbolFilter `json:"filters"`
}

type SymbolFilter struct {
	FilterType string          `json:"filterType"`
	TickSize   decimal.Decimal `json:"tickSize"`
	StepSize   decimal.Decimal `json:"stepSize"`
}

func (s SymbolInfo) filter(kind string) (SymbolFilter, bool) {
	for _, f := range s.Filters {
		if f.FilterType == kind {
			return f, true
		}
	}
	return SymbolFilter{}, false
}

type TickerPrice struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

type DepthSnapshot struct {
	LastUpdateID int64                `json:"lastUpdateId"`
	Bids         [][2]decimal.Decimal `json:"bids"`
	Asks         [][2]decimal.Decimal `json:"asks"`
}

func (d DepthSnapshot) BookUpdate(symbol string, at time.Time) market.BookUpdate {
	return market.BookUpdate{
		Symbol:   symbol,
		FirstSeq: d.LastUpdateID,
		LastSeq:  d.LastUpdateID,
		Bids:     toLevels(d.Bids),
		Asks:     toLevels(d.Asks),
		Time:     at,
	}
}

type Account struct {
	Balances []AccountBalance `json:"balances"`
}

type AccountBalance struct {
	Asset  string          `json:"asset"`
	Free   decimal.Decimal `json:"free"`
	Locked decimal.Decimal `json:"locked"`
}

type OrderResponse struct {
	Symbol        string          `json:"symbol"`
	OrderID       int64           `json:"orderId"`
	ClientOrderID string          `json:"clientOrderId"`
	Price         decimal.Decimal `json:"price"`
	OrigQty       decimal.Decimal `json:"origQty"`
	ExecutedQty   decimal.Decimal `json:"executedQty"`
	Status        string          `json:"status"`
	Side          string          `json:"side"`
	Time          int64           `json:"time"`
	TransactTime  int64           `json:"transactTime"`
	UpdateTime    int64           `json:"updateTime"`
}

func toLevels(raw [][2]decimal.Decimal) []market.Level {
	levels := make([]market.Level, 0, len(raw))
	for _, lvl := range raw {
		levels = append(levels, market.Level{Price: lvl[0], Size: lvl[1]})
	}
	return levels
}

func orderStatus(raw string) market.OrderStatus {
	switch raw {
	case "NEW", "PENDING_NEW", "PENDING_CANCEL":
		return market.StatusNew
	case "PARTIALLY_FILLED":
		return market.StatusPartiallyFilled
	case "FILLED":
		return market.StatusFilled
	case "CANCELED":
		return market.StatusCanceled
	case "REJECTED":
		return market.StatusRejected
	case "EXPIRED", "EXPIRED_IN_MATCH":
		return market.StatusExpired
	default:
		return market.OrderStatus(raw)
	}
}

func msTime(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
