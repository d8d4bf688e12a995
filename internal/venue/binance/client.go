package binance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"order-probe-bot/internal/config"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

var ErrMissingCredentials = errors.New("binance api key and secret are required")

type security int

const (
	public security = iota
	apiKeyOnly
	signed
)

// APIError is the error payload Binance returns with non-2xx responses.
type APIError struct {
	Status int    `json:"-"`
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance api error: status=%d code=%d msg=%s", e.Status, e.Code, e.Msg)
}

// Temporary reports whether the request may succeed if retried.
func (e *APIError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= http.StatusInternalServerError
}

type Client struct {
	http       *resty.Client
	limiter    *rate.Limiter
	apiKey     string
	secret     string
	recvWindow time.Duration
	now        func() time.Time
}

func NewClient(cfg config.BinanceConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		burst = int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
	}
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &Client{
		http:       httpClient,
		limiter:    rate.NewLimiter(limit, burst),
		apiKey:     cfg.APIKey,
		secret:     cfg.APISecret,
		recvWindow: cfg.RecvWindow,
		now:        time.Now,
	}
}

func (c *Client) HasCredentials() bool {
	return c.apiKey != "" && c.secret != ""
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, sec security, out any) error {
	if sec != public && c.apiKey == "" {
		return ErrMissingCredentials
	}
	if sec == signed && c.secret == "" {
		return ErrMissingCredentials
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if params == nil {
		params = url.Values{}
	}
	query := params.Encode()
	if sec == signed {
		if c.recvWindow > 0 {
			params.Set("recvWindow", strconv.FormatInt(c.recvWindow.Milliseconds(), 10))
		}
		params.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
		query = params.Encode()
		query += "&signature=" + sign(c.secret, query)
	}

	// The query is placed on the URL verbatim; resty would re-encode and
	// reorder QueryParam values, which breaks the signature.
	target := path
	if query != "" {
		target += "?" + query
	}
	apiErr := &APIError{}
	req := c.http.R().
		SetContext(ctx).
		SetError(apiErr)
	if sec != public {
		req.SetHeader("X-MBX-APIKEY", c.apiKey)
	}
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Execute(method, target)
	if err != nil {
		return fmt.Errorf("binance %s %s: %w", method, path, err)
	}
	if resp.IsError() {
		apiErr.Status = resp.StatusCode()
		if apiErr.Msg == "" {
			apiErr.Msg = strings.TrimSpace(string(resp.Body()))
		}
		return apiErr
	}
	return nil
}

func (c *Client) ExchangeInfo(ctx context.Context, symbol string) (ExchangeInfo, error) {
	var info ExchangeInfo
	err := c.do(ctx, http.MethodGet, "/api/v3/exchangeInfo", url.Values{"symbol": {symbol}}, public, &info)
	return info, err
}

func (c *Client) TickerPrice(ctx context.Context, symbol string) (TickerPrice, error) {
	var ticker TickerPrice
	err := c.do(ctx, http.MethodGet, "/api/v3/ticker/price", url.Values{"symbol": {symbol}}, public, &ticker)
	return ticker, err
}

func (c *Client) Depth(ctx context.Context, symbol string, limit int) (DepthSnapshot, error) {
	params := url.Values{"symbol": {symbol}}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var snapshot DepthSnapshot
	err := c.do(ctx, http.MethodGet, "/api/v3/depth", params, public, &snapshot)
	return snapshot, err
}

func (c *Client) Account(ctx context.Context) (Account, error) {
	var account Account
	err := c.do(ctx, http.MethodGet, "/api/v3/account", url.Values{"omitZeroBalances": {"true"}}, signed, &account)
	return account, err
}

func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]OrderResponse, error) {
	var orders []OrderResponse
	err := c.do(ctx, http.MethodGet, "/api/v3/openOrders", url.Values{"symbol": {symbol}}, signed, &orders)
	return orders, err
}

type NewOrder struct {
	Symbol        string
	Side          string
	Quantity      string
	Price         string
	ClientOrderID string
}

func (c *Client) PlaceLimitOrder(ctx context.Context, order NewOrder) (OrderResponse, error) {
	params := url.Values{
		"symbol":           {order.Symbol},
		"side":             {order.Side},
		"type":             {"LIMIT"},
		"timeInForce":      {"GTC"},
		"quantity":         {order.Quantity},
		"price":            {order.Price},
		"newOrderRespType": {"RESULT"},
	}
	if order.ClientOrderID != "" {
		params.Set("newClientOrderId", order.ClientOrderID)
	}
	var resp OrderResponse
	err := c.do(ctx, http.MethodPost, "/api/v3/order", params, signed, &resp)
	return resp, err
}

func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) (OrderResponse, error) {
	params := url.Values{"symbol": {symbol}, "orderId": {orderID}}
	var resp OrderResponse
	err := c.do(ctx, http.MethodDelete, "/api/v3/order", params, signed, &resp)
	return resp, err
}

func (c *Client) CreateListenKey(ctx context.Context) (string, error) {
	var resp struct {
		ListenKey string `json:"listenKey"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v3/userDataStream", nil, apiKeyOnly, &resp); err != nil {
		return "", err
	}
	if resp.ListenKey == "" {
		return "", errors.New("binance returned an empty listen key")
	}
	return resp.ListenKey, nil
}

func (c *Client) KeepAliveListenKey(ctx context.Context, listenKey string) error {
	return c.do(ctx, http.MethodPut, "/api/v3/userDataStream", url.Values{"listenKey": {listenKey}}, apiKeyOnly, nil)
}

func (c *Client) CloseListenKey(ctx context.Context, listenKey string) error {
	return c.do(ctx, http.MethodDelete, "/api/v3/userDataStream", url.Values{"listenKey": {listenKey}}, apiKeyOnly, nil)
}
