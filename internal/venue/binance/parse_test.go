package binance

import (
	"encoding/json"
	"testing"

	"order-probe-bot/internal/market"
)

func TestParseExecutionReportKeepsCaseSensitiveKeys(t *testing.T) {
	raw := json.RawMessage(`{
		"e":"executionReport","E":1499405658658,"s":"BTCUSDT","c":"cancel-req","S":"BUY",
		"o":"LIMIT","f":"GTC","q":"0.01000000","p":"1000.00000000","P":"0.00000000",
		"F":"0.00000000","g":-1,"C":"probe-1","x":"CANCELED","X":"CANCELED","r":"NONE",
		"i":4293153,"l":"0.00000000","z":"0.00000000","L":"0.00000000","n":"0","N":null,
		"T":1499405658657,"t":-1,"I":8641984,"w":false,"m":false,"M":false,
		"O":1499405658000,"Z":"0.00000000","Y":"0.00000000","Q":"0.00000000"
	}`)
	p, err := decodePayload(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	update := parseExecutionReport(p)
	o := update.Order
	if o.ID != "4293153" || o.ClientID != "probe-1" {
		t.Fatalf("unexpected ids %s/%s", o.ID, o.ClientID)
	}
	if o.Status != market.StatusCanceled || update.Execution != "CANCELED" {
		t.Fatalf("unexpected status %s/%s", o.Status, update.Execution)
	}
	if o.Side != market.Buy || o.Amount.String() != "0.01" || o.LimitPrice.String() != "1000" {
		t.Fatalf("unexpected order fields %#v", o)
	}
	if o.CreatedAt.UnixMilli() != 1499405658000 || o.UpdatedAt.UnixMilli() != 1499405658658 {
		t.Fatalf("unexpected times %s %s", o.CreatedAt, o.UpdatedAt)
	}
}

func TestParseExecutionReportNewOrderKeepsClientID(t *testing.T) {
	p, err := decodePayload(json.RawMessage(`{"e":"executionReport","s":"BTCUSDT","c":"probe-2","C":"","x":"NEW","X":"NEW","i":5,"q":"1","p":"2","z":"0","S":"BUY"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	update := parseExecutionReport(p)
	if update.Order.ClientID != "probe-2" || update.Order.Status != market.StatusNew {
		t.Fatalf("unexpected update %#v", update)
	}
}

func TestParseDepthUpdate(t *testing.T) {
	p, err := decodePayload(json.RawMessage(`{"e":"depthUpdate","E":123456789,"s":"BTCUSDT","U":157,"u":160,"b":[["0.0024","10"]],"a":[["0.0026","100"],["0.0027","0"]]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	update := parseDepthUpdate(p)
	if update.FirstSeq != 157 || update.LastSeq != 160 || update.Symbol != "BTCUSDT" {
		t.Fatalf("unexpected sequence fields %#v", update)
	}
	if len(update.Bids) != 1 || len(update.Asks) != 2 || !update.Asks[1].Size.IsZero() {
		t.Fatalf("unexpected levels %#v", update)
	}
}

func TestOrderStatusMapping(t *testing.T) {
	cases := map[string]market.OrderStatus{
		"NEW":              market.StatusNew,
		"PENDING_CANCEL":   market.StatusNew,
		"PARTIALLY_FILLED": market.StatusPartiallyFilled,
		"FILLED":           market.StatusFilled,
		"CANCELED":         market.StatusCanceled,
		"REJECTED":         market.StatusRejected,
		"EXPIRED_IN_MATCH": market.StatusExpired,
	}
	for raw, want := range cases {
		if got := orderStatus(raw); got != want {
			t.Fatalf("%s: expected %s, got %s", raw, want, got)
		}
	}
}
