package timescale

import (
	"context"
	"testing"
	"time"

	"order-probe-bot/internal/config"

	"go.uber.org/zap"
)

func TestNewDisabledReturnsNilWriter(t *testing.T) {
	w, err := New(config.TimescaleConfig{Enabled: false}, zap.NewNop())
	if err != nil || w != nil {
		t.Fatalf("expected nil writer, got %v err=%v", w, err)
	}
	if w.EnqueueBookTop(BookTop{}) {
		t.Fatalf("nil writer must not queue")
	}
	w.EnqueueOrder(OrderEvent{})
	w.Start(context.Background())
	if err := w.Close(); err != nil {
		t.Fatalf("close nil writer: %v", err)
	}
}

func TestNewRequiresDSN(t *testing.T) {
	if _, err := New(config.TimescaleConfig{Enabled: true}, zap.NewNop()); err == nil {
		t.Fatalf("expected dsn error")
	}
}

func TestBookTopsThrottledPerSymbol(t *testing.T) {
	w := newWriter(nil, config.TimescaleConfig{BookInterval: time.Second, QueueSize: 8}, zap.NewNop())
	base := time.Unix(1700000000, 0)
	cases := []struct {
		top  BookTop
		want bool
	}{
		{BookTop{Time: base, Exchange: "binance", Symbol: "BTCUSDT"}, true},
		{BookTop{Time: base.Add(500 * time.Millisecond), Exchange: "binance", Symbol: "BTCUSDT"}, false},
		{BookTop{Time: base.Add(500 * time.Millisecond), Exchange: "binance", Symbol: "ETHUSDT"}, true},
		{BookTop{Time: base.Add(time.Second), Exchange: "binance", Symbol: "BTCUSDT"}, true},
		{BookTop{Time: base.Add(time.Second), Exchange: "hyperliquid", Symbol: "BTCUSDT"}, true},
	}
	for i, tc := range cases {
		if got := w.EnqueueBookTop(tc.top); got != tc.want {
			t.Fatalf("case %d: expected %v, got %v", i, tc.want, got)
		}
	}
	if len(w.books) != 4 {
		t.Fatalf("expected 4 queued rows, got %d", len(w.books))
	}
}

func TestQueuesDropWhenFull(t *testing.T) {
	w := newWriter(nil, config.TimescaleConfig{QueueSize: 1}, zap.NewNop())
	w.EnqueueOrder(OrderEvent{OrderID: "1"})
	w.EnqueueOrder(OrderEvent{OrderID: "2"})
	if len(w.orders) != 1 || w.dropOrder.Load() != 1 {
		t.Fatalf("expected one queued and one dropped order, got %d/%d", len(w.orders), w.dropOrder.Load())
	}
	base := time.Unix(1700000000, 0)
	w.EnqueueBookTop(BookTop{Time: base, Exchange: "binance", Symbol: "A"})
	if w.EnqueueBookTop(BookTop{Time: base, Exchange: "binance", Symbol: "B"}) {
		t.Fatalf("expected full book queue to drop")
	}
	if w.dropBook.Load() != 1 {
		t.Fatalf("expected one dropped book row, got %d", w.dropBook.Load())
	}
}
