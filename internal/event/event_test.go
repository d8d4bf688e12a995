package event

import (
	"testing"
	"time"

	"order-probe-bot/internal/market"

	"github.com/shopspring/decimal"
)

func TestAttributesForBookEvent(t *testing.T) {
	ev := Event{
		Kind:     OrderBookDelta,
		Exchange: "binance",
		Symbol:   "BTCUSDT",
		Time:     time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Book: &market.BookUpdate{
			FirstSeq: 10,
			LastSeq:  12,
			Bids:     []market.Level{{Price: decimal.NewFromInt(1), Size: decimal.NewFromInt(1)}},
		},
	}
	attrs := ev.Attributes()
	if attrs["kind"] != "ORDER_BOOK_DELTA" || attrs["symbol"] != "BTCUSDT" {
		t.Fatalf("unexpected attrs %v", attrs)
	}
	if attrs["first_seq"] != int64(10) || attrs["bids"] != 1 || attrs["asks"] != 0 {
		t.Fatalf("unexpected book attrs %v", attrs)
	}
	if attrs["time"] != "2024-01-02T03:04:05Z" {
		t.Fatalf("unexpected time %v", attrs["time"])
	}
	if _, ok := attrs["order_id"]; ok {
		t.Fatalf("book event must not carry order attrs")
	}
}

func TestAttributesForOrderEvent(t *testing.T) {
	ev := Event{
		Kind:     UserOrder,
		Exchange: "binance",
		Symbol:   "BTCUSDT",
		Order: &market.OrderUpdate{
			Execution: "NEW",
			Order: market.Order{
				ID:         "28",
				ClientID:   "probe-1",
				Side:       market.Buy,
				Status:     market.StatusNew,
				Amount:     decimal.RequireFromString("0.01"),
				LimitPrice: decimal.NewFromInt(1000),
			},
		},
	}
	attrs := ev.Attributes()
	if attrs["order_id"] != "28" || attrs["status"] != "NEW" || attrs["amount"] != "0.01" || attrs["price"] != "1000" {
		t.Fatalf("unexpected order attrs %v", attrs)
	}
	if attrs["execution"] != "NEW" {
		t.Fatalf("expected execution attr, got %v", attrs)
	}
	if _, ok := attrs["time"]; ok {
		t.Fatalf("zero time should be omitted")
	}
}
