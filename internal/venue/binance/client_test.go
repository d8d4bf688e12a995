package binance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"order-probe-bot/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := NewClient(config.BinanceConfig{
		BaseURL:    server.URL,
		Timeout:    time.Second,
		RecvWindow: 5 * time.Second,
		APIKey:     "key",
		APISecret:  "secret",
	})
	client.now = func() time.Time { return time.UnixMilli(1499827319559) }
	return client
}

func TestPlaceLimitOrderSignsQuery(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v3/order" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("X-MBX-APIKEY"); got != "key" {
			t.Errorf("unexpected api key header %q", got)
		}
		raw := r.URL.RawQuery
		idx := strings.LastIndex(raw, "&signature=")
		if idx < 0 {
			t.Errorf("missing signature in %s", raw)
			return
		}
		if sig := raw[idx+len("&signature="):]; sig != sign("secret", raw[:idx]) {
			t.Errorf("signature mismatch for %s", raw)
		}
		q := r.URL.Query()
		if q.Get("timestamp") != "1499827319559" || q.Get("recvWindow") != "5000" {
			t.Errorf("unexpected timing params %v", q)
		}
		if q.Get("type") != "LIMIT" || q.Get("timeInForce") != "GTC" || q.Get("newClientOrderId") != "probe-1" {
			t.Errorf("unexpected order params %v", q)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","orderId":28,"clientOrderId":"probe-1","price":"1000.00","origQty":"0.01","executedQty":"0","status":"NEW","side":"BUY","transactTime":1507725176595}`))
	})

	resp, err := client.PlaceLimitOrder(context.Background(), NewOrder{
		Symbol:        "BTCUSDT",
		Side:          "BUY",
		Quantity:      "0.01",
		Price:         "1000",
		ClientOrderID: "probe-1",
	})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if resp.OrderID != 28 || resp.Status != "NEW" || resp.Price.String() != "1000" {
		t.Fatalf("unexpected response %#v", resp)
	}
}

func TestAPIErrorIsDecoded(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-2010,"msg":"Account has insufficient balance for requested action."}`))
	})
	_, err := client.PlaceLimitOrder(context.Background(), NewOrder{Symbol: "BTCUSDT", Side: "BUY", Quantity: "1", Price: "1"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusBadRequest || apiErr.Code != -2010 {
		t.Fatalf("unexpected api error %#v", apiErr)
	}
	if apiErr.Temporary() {
		t.Fatalf("400 must not be temporary")
	}
}

func TestRateLimitedErrorIsTemporary(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	})
	_, err := client.TickerPrice(context.Background(), "BTCUSDT")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || !apiErr.Temporary() {
		t.Fatalf("expected temporary APIError, got %v", err)
	}
	if apiErr.Msg != "slow down" {
		t.Fatalf("expected raw body as message, got %q", apiErr.Msg)
	}
}

func TestSignedRequestWithoutCredentials(t *testing.T) {
	client := NewClient(config.BinanceConfig{BaseURL: "http://127.0.0.1:1"})
	if _, err := client.Account(context.Background()); !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("expected ErrMissingCredentials, got %v", err)
	}
	if _, err := client.CreateListenKey(context.Background()); !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("expected ErrMissingCredentials for listen key, got %v", err)
	}
}

func TestPublicRequestOmitsSignature(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("signature") || r.Header.Get("X-MBX-APIKEY") != "" {
			t.Errorf("public request must not be signed: %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","price":"43000.10000000"}`))
	})
	ticker, err := client.TickerPrice(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("ticker: %v", err)
	}
	if ticker.Price.String() != "43000.1" {
		t.Fatalf("unexpected price %s", ticker.Price)
	}
}
