package hyperliquid

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"order-probe-bot/internal/config"
	"order-probe-bot/internal/market"
	"order-probe-bot/internal/metrics"
	"order-probe-bot/internal/state/sqlite"
	"order-probe-bot/internal/venue"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const spotMetaBody = `{"universe":[{"name":"PURR/USDC","tokens":[1,0],"index":0},{"name":"@107","tokens":[150,0],"index":107}],
"tokens":[{"name":"USDC","szDecimals":8,"index":0},{"name":"PURR","szDecimals":0,"index":1},{"name":"HYPE","szDecimals":2,"index":150}]}`

type fakeVenue struct {
	t        *testing.T
	actions  []map[string]any
	exchange func(action map[string]any) string
}

func (f *fakeVenue) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		switch req["type"] {
		case "spotMeta":
			_, _ = io.WriteString(w, spotMetaBody)
		case "allMids":
			_, _ = io.WriteString(w, `{"@107":"25.125","PURR/USDC":"0.2"}`)
		case "spotClearinghouseState":
			if req["user"] != "0x00000000000000000000000000000000000000aa" {
				f.t.Errorf("unexpected user %v", req["user"])
			}
			_, _ = io.WriteString(w, `{"balances":[{"coin":"USDC","token":0,"hold":"5.0","total":"20.5"}]}`)
		case "frontendOpenOrders":
			_, _ = io.WriteString(w, `[{"coin":"@107","side":"B","limitPx":"20.0","sz":"0.5","origSz":"1.0","oid":91,"timestamp":1700000000000,"cloid":"0xabc"},{"coin":"PURR/USDC","side":"A","limitPx":"1","sz":"1","origSz":"1","oid":92,"timestamp":1}]`)
		case "l2Book":
			_, _ = io.WriteString(w, `{"coin":"@107","time":1700000000000,"levels":[[{"px":"25.1","sz":"3","n":1}],[{"px":"25.2","sz":"4","n":2}]]}`)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})
	mux.HandleFunc("/exchange", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		action, _ := body["action"].(map[string]any)
		f.actions = append(f.actions, body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, f.exchange(action))
	})
	return mux
}

func newTestExchange(t *testing.T, f *fakeVenue, withKey bool) *Exchange {
	t.Helper()
	server := httptest.NewServer(f.handler())
	t.Cleanup(server.Close)
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	cfg := config.Config{HL: config.HLConfig{
		BaseURL:        server.URL,
		Timeout:        time.Second,
		AccountAddress: "0x00000000000000000000000000000000000000aa",
	}}
	if withKey {
		cfg.HL.PrivateKey = testKey
	}
	ex, err := New(venue.Deps{Config: cfg, Log: zap.NewNop(), Store: store, Metrics: metrics.NewNoop()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return ex.(*Exchange)
}

func TestSymbolResolvesSpotAssets(t *testing.T) {
	ex := newTestExchange(t, &fakeVenue{t: t}, false)
	ctx := context.Background()

	hype, err := ex.Symbol(ctx, "hype_usdc")
	if err != nil {
		t.Fatalf("symbol: %v", err)
	}
	if hype.VenueSymbol != "@107" || hype.VenueID != 10107 || hype.SizeDecimals != 2 || hype.Base != "HYPE" || hype.Quote != "USDC" {
		t.Fatalf("unexpected asset %#v", hype)
	}
	purr, err := ex.Symbol(ctx, "purr_usdc")
	if err != nil {
		t.Fatalf("symbol: %v", err)
	}
	if purr.VenueSymbol != "PURR/USDC" || purr.VenueID != 10000 {
		t.Fatalf("unexpected canonical asset %#v", purr)
	}
	if _, err := ex.Symbol(ctx, "btc_usdt"); !errors.Is(err, market.ErrUnknownSymbol) {
		t.Fatalf("expected ErrUnknownSymbol, got %v", err)
	}
}

func TestReadEndpoints(t *testing.T) {
	ex := newTestExchange(t, &fakeVenue{t: t}, false)
	ctx := context.Background()
	asset := market.Asset{Exchange: Name, Pair: "hype_usdc", VenueSymbol: "@107", VenueID: 10107, SizeDecimals: 2}

	price, err := ex.LatestPrice(ctx, asset)
	if err != nil || !price.Equal(decimal.RequireFromString("25.125")) {
		t.Fatalf("unexpected price %s err=%v", price, err)
	}

	balances, err := ex.Balances(ctx)
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	usdc := balances.Get("USDC")
	if !usdc.Free.Equal(decimal.RequireFromString("15.5")) || !usdc.Locked.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("unexpected usdc balance %#v", usdc)
	}

	orders, err := ex.OpenOrders(ctx, asset)
	if err != nil {
		t.Fatalf("open orders: %v", err)
	}
	if len(orders) != 1 || orders[0].ID != "91" || orders[0].Status != market.StatusPartiallyFilled || !orders[0].Filled.Equal(decimal.RequireFromString("0.5")) {
		t.Fatalf("unexpected orders %#v", orders)
	}

	book, err := ex.BookSnapshot(ctx, asset)
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if len(book.Bids) != 1 || len(book.Asks) != 1 || !book.Asks[0].Price.Equal(decimal.RequireFromString("25.2")) {
		t.Fatalf("unexpected book %#v", book)
	}
}

func TestPlaceAndCancelOrder(t *testing.T) {
	f := &fakeVenue{t: t, exchange: func(action map[string]any) string {
		if action["type"] == "cancel" {
			return `{"status":"ok","response":{"type":"cancel","data":{"statuses":["success"]}}}`
		}
		return `{"status":"ok","response":{"type":"order","data":{"statuses":[{"resting":{"oid":77738308}}]}}}`
	}}
	ex := newTestExchange(t, f, true)
	ctx := context.Background()
	asset := market.Asset{Exchange: Name, Pair: "hype_usdc", VenueSymbol: "@107", VenueID: 10107, SizeDecimals: 2}

	id, err := ex.PlaceOrder(ctx, market.OrderRequest{
		Asset:      asset,
		Side:       market.Buy,
		Amount:     decimal.RequireFromString("0.499"),
		LimitPrice: decimal.RequireFromString("20"),
		ClientID:   "6ba7b810-9dad-11d1-80b4-00c04fd430c8",
	})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if id != "77738308" {
		t.Fatalf("unexpected id %s", id)
	}
	if err := ex.CancelOrder(ctx, asset, id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if len(f.actions) != 2 {
		t.Fatalf("expected two actions, got %d", len(f.actions))
	}
	order := f.actions[0]["action"].(map[string]any)["orders"].([]any)[0].(map[string]any)
	if order["a"] != float64(10107) || order["b"] != true || order["p"] != "20" || order["s"] != "0.49" {
		t.Fatalf("unexpected order wire %v", order)
	}
	if order["c"] != "0x6ba7b8109dad11d180b400c04fd430c8" {
		t.Fatalf("unexpected cloid %v", order["c"])
	}
	firstNonce := f.actions[0]["nonce"].(float64)
	if secondNonce := f.actions[1]["nonce"].(float64); secondNonce <= firstNonce {
		t.Fatalf("expected increasing nonces, got %v then %v", firstNonce, secondNonce)
	}
	if _, ok := f.actions[0]["signature"].(map[string]any)["r"]; !ok {
		t.Fatalf("expected signature in payload")
	}
}

func TestPlaceOrderRejected(t *testing.T) {
	f := &fakeVenue{t: t, exchange: func(map[string]any) string {
		return `{"status":"ok","response":{"type":"order","data":{"statuses":[{"error":"Insufficient spot balance asset=10107"}]}}}`
	}}
	ex := newTestExchange(t, f, true)
	asset := market.Asset{Exchange: Name, VenueSymbol: "@107", VenueID: 10107, SizeDecimals: 2}
	_, err := ex.PlaceOrder(context.Background(), market.OrderRequest{Asset: asset, Amount: decimal.NewFromInt(1), LimitPrice: decimal.NewFromInt(1)})
	var rejected *RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected RejectedError, got %v", err)
	}

	f.exchange = func(map[string]any) string { return `{"status":"err","response":"User or API Wallet does not exist."}` }
	_, err = ex.PlaceOrder(context.Background(), market.OrderRequest{Asset: asset, Amount: decimal.NewFromInt(1), LimitPrice: decimal.NewFromInt(1)})
	if !errors.As(err, &rejected) || rejected.Reason != "User or API Wallet does not exist." {
		t.Fatalf("expected top level rejection, got %v", err)
	}
}

func TestTradingRequiresKey(t *testing.T) {
	ex := newTestExchange(t, &fakeVenue{t: t}, false)
	if _, err := ex.PlaceOrder(context.Background(), market.OrderRequest{}); !errors.Is(err, ErrNoSigner) {
		t.Fatalf("expected ErrNoSigner, got %v", err)
	}
	if err := ex.CancelOrder(context.Background(), market.Asset{}, "1"); !errors.Is(err, ErrNoSigner) {
		t.Fatalf("expected ErrNoSigner, got %v", err)
	}
}
