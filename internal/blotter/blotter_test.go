package blotter

import (
	"context"
	"testing"

	"order-probe-bot/internal/market"

	"github.com/shopspring/decimal"
)

type fakeExchange struct{ name string }

func (f fakeExchange) Name() string { return f.name }

func (f fakeExchange) Balances(context.Context) (market.Balances, error) {
	return market.Balances{"USDT": {Free: decimal.NewFromInt(100)}}, nil
}

var btc = market.Asset{Exchange: "binance", Pair: "btc_usdt", VenueSymbol: "BTCUSDT"}

func order(id, clientID string) market.Order {
	return market.Order{
		ID:       id,
		ClientID: clientID,
		Exchange: "binance",
		Pair:     "btc_usdt",
		Side:     market.Buy,
		Amount:   decimal.RequireFromString("0.01"),
		Status:   market.StatusNew,
	}
}

func TestOpenOrdersInPlacementOrder(t *testing.T) {
	b := New()
	b.Track(order("3", "c3"))
	b.Track(order("1", "c1"))
	b.Track(order("2", "c2"))

	open := b.OpenOrders(btc)
	if len(open) != 3 {
		t.Fatalf("expected 3 open orders, got %d", len(open))
	}
	for i, want := range []string{"3", "1", "2"} {
		if open[i].ID != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, open[i].ID)
		}
	}
	open[0].ID = "mutated"
	if b.OpenOrders(btc)[0].ID != "3" {
		t.Fatalf("OpenOrders must return a copy")
	}
	other := market.Asset{Exchange: "binance", Pair: "eth_usdt"}
	if len(b.OpenOrders(other)) != 0 {
		t.Fatalf("expected no orders for another pair")
	}
}

func TestApplyRemovesTerminalOrders(t *testing.T) {
	b := New()
	b.Track(order("1", "c1"))

	partial := order("1", "c1")
	partial.Status = market.StatusPartiallyFilled
	partial.Filled = decimal.RequireFromString("0.005")
	got, changed := b.Apply(market.OrderUpdate{Order: partial})
	if !changed || got.Status != market.StatusPartiallyFilled {
		t.Fatalf("expected partial fill applied, got %+v changed=%v", got, changed)
	}
	if len(b.OpenOrders(btc)) != 1 {
		t.Fatalf("partially filled order must stay open")
	}

	if _, changed := b.Apply(market.OrderUpdate{Order: partial}); changed {
		t.Fatalf("repeated update should not report a change")
	}

	canceled := order("1", "")
	canceled.Status = market.StatusCanceled
	if _, changed := b.Apply(market.OrderUpdate{Order: canceled}); !changed {
		t.Fatalf("expected terminal update to change the order")
	}
	if len(b.OpenOrders(btc)) != 0 {
		t.Fatalf("terminal order should be removed")
	}
}

func TestApplyMatchesByClientID(t *testing.T) {
	b := New()
	b.Track(order("1", "client-1"))
	filled := order("", "client-1")
	filled.Status = market.StatusFilled
	got, changed := b.Apply(market.OrderUpdate{Order: filled})
	if !changed || got.ID != "1" {
		t.Fatalf("expected client id match, got %+v changed=%v", got, changed)
	}
	if len(b.OpenOrders(btc)) != 0 {
		t.Fatalf("filled order should be removed")
	}
}

func TestApplyIgnoresForeignOrders(t *testing.T) {
	b := New()
	b.Track(order("1", "c1"))
	foreign := order("99", "manual")
	foreign.Status = market.StatusCanceled
	if _, changed := b.Apply(market.OrderUpdate{Order: foreign}); changed {
		t.Fatalf("foreign order must not change the blotter")
	}
	if len(b.OpenOrders(btc)) != 1 {
		t.Fatalf("tracked order must survive foreign update")
	}
}

func TestCancelAndTrackTerminal(t *testing.T) {
	b := New()
	b.Track(order("1", "c1"))
	b.Cancel(order("1", "c1"))
	if len(b.OpenOrders(btc)) != 0 {
		t.Fatalf("cancelled order should be removed")
	}
	filled := order("2", "c2")
	filled.Status = market.StatusFilled
	b.Track(filled)
	if len(b.OpenOrders(btc)) != 0 {
		t.Fatalf("terminal order should not be tracked")
	}
}

func TestExchanges(t *testing.T) {
	b := New(fakeExchange{name: "hyperliquid"}, fakeExchange{name: "binance"})
	names := b.Exchanges()
	if len(names) != 2 || names[0] != "binance" || names[1] != "hyperliquid" {
		t.Fatalf("unexpected exchanges %v", names)
	}
	ex, ok := b.Exchange("binance")
	if !ok {
		t.Fatalf("expected binance exchange")
	}
	balances, err := ex.Balances(context.Background())
	if err != nil || !balances.Get("usdt").Free.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("unexpected balances %v err=%v", balances, err)
	}
	if _, ok := b.Exchange("kraken"); ok {
		t.Fatalf("unexpected exchange")
	}
}
