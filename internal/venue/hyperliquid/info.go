package hyperliquid

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// InfoClient wraps the public /info endpoint.
type InfoClient struct {
	http *resty.Client
}

func NewInfoClient(baseURL string, timeout time.Duration) *InfoClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &InfoClient{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
	}
}

type infoRequest struct {
	Type string `json:"type"`
	User string `json:"user,omitempty"`
	Coin string `json:"coin,omitempty"`
}

func (c *InfoClient) info(ctx context.Context, req infoRequest, out any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(out).
		Post("/info")
	if err != nil {
		return fmt.Errorf("hyperliquid info %s: %w", req.Type, err)
	}
	if resp.IsError() {
		return &HTTPError{Status: resp.StatusCode(), Body: truncate(string(resp.Body()), 2048)}
	}
	return nil
}

type SpotMeta struct {
	Universe []SpotPair  `json:"universe"`
	Tokens   []SpotToken `json:"tokens"`
}

type SpotPair struct {
	Name   string `json:"name"`
	Tokens [2]int `json:"tokens"`
	Index  int    `json:"index"`
}

type SpotToken struct {
	Name       string `json:"name"`
	SzDecimals int32  `json:"szDecimals"`
	Index      int    `json:"index"`
}

func (c *InfoClient) SpotMeta(ctx context.Context) (SpotMeta, error) {
	var meta SpotMeta
	err := c.info(ctx, infoRequest{Type: "spotMeta"}, &meta)
	return meta, err
}

func (c *InfoClient) AllMids(ctx context.Context) (map[string]decimal.Decimal, error) {
	mids := make(map[string]decimal.Decimal)
	err := c.info(ctx, infoRequest{Type: "allMids"}, &mids)
	return mids, err
}

type SpotBalance struct {
	Coin  string          `json:"coin"`
	Token int             `json:"token"`
	Hold  decimal.Decimal `json:"hold"`
	Total decimal.Decimal `json:"total"`
}

type spotState struct {
	Balances []SpotBalance `json:"balances"`
}

func (c *InfoClient) SpotBalances(ctx context.Context, user string) ([]SpotBalance, error) {
	var state spotState
	err := c.info(ctx, infoRequest{Type: "spotClearinghouseState", User: user}, &state)
	return state.Balances, err
}

type OpenOrder struct {
	Coin      string          `json:"coin"`
	Side      string          `json:"side"`
	LimitPx   decimal.Decimal `json:"limitPx"`
	Sz        decimal.Decimal `json:"sz"`
	OrigSz    decimal.Decimal `json:"origSz"`
	Oid       int64           `json:"oid"`
	Timestamp int64           `json:"timestamp"`
	Cloid     string          `json:"cloid"`
}

func (c *InfoClient) OpenOrders(ctx context.Context, user string) ([]OpenOrder, error) {
	var orders []OpenOrder
	err := c.info(ctx, infoRequest{Type: "frontendOpenOrders", User: user}, &orders)
	return orders, err
}

type BookLevel struct {
	Px decimal.Decimal `json:"px"`
	Sz decimal.Decimal `json:"sz"`
	N  int             `json:"n"`
}

type L2Book struct {
	Coin   string         `json:"coin"`
	Time   int64          `json:"time"`
	Levels [2][]BookLevel `json:"levels"`
}

func (c *InfoClient) L2Book(ctx context.Context, coin string) (L2Book, error) {
	var book L2Book
	err := c.info(ctx, infoRequest{Type: "l2Book", Coin: coin}, &book)
	return book, err
}

type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("hyperliquid http %d: %s", e.Status, e.Body)
}

func (e *HTTPError) Temporary() bool {
	return e.Status == 429 || e.Status >= 500
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
