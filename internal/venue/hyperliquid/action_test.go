package hyperliquid

import (
	"bytes"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"
)

// manualOrderBytes packs an order action key by key, mirroring the
// exchange's reference encoding.
func manualOrderBytes(t *testing.T, o orderWire) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	must := func(err error) {
		if err != nil {
			t.Fatalf("manual encode: %v", err)
		}
	}
	must(enc.EncodeMapLen(3))
	must(enc.EncodeString("type"))
	must(enc.EncodeString("order"))
	must(enc.EncodeString("orders"))
	must(enc.EncodeArrayLen(1))
	fields := 6
	if o.Cloid != "" {
		fields++
	}
	must(enc.EncodeMapLen(fields))
	must(enc.EncodeString("a"))
	must(enc.EncodeInt(int64(o.Asset)))
	must(enc.EncodeString("b"))
	must(enc.EncodeBool(o.IsBuy))
	must(enc.EncodeString("p"))
	must(enc.EncodeString(o.Price))
	must(enc.EncodeString("s"))
	must(enc.EncodeString(o.Size))
	must(enc.EncodeString("r"))
	must(enc.EncodeBool(o.ReduceOnly))
	must(enc.EncodeString("t"))
	must(enc.EncodeMapLen(1))
	must(enc.EncodeString("limit"))
	must(enc.EncodeMapLen(1))
	must(enc.EncodeString("tif"))
	must(enc.EncodeString(o.Type.Limit.Tif))
	if o.Cloid != "" {
		must(enc.EncodeString("c"))
		must(enc.EncodeString(o.Cloid))
	}
	must(enc.EncodeString("grouping"))
	must(enc.EncodeString("na"))
	return buf.Bytes()
}

func TestEncodeOrderActionMatchesKeyOrder(t *testing.T) {
	for _, cloid := range []string{"", "0x1234567890abcdef1234567890abcdef"} {
		order := orderWire{
			Asset: 10107,
			IsBuy: true,
			Price: "1000",
			Size:  "0.01",
			Type:  orderType{Limit: limitTIF{Tif: tifGtc}},
			Cloid: cloid,
		}
		got, err := encodeAction(newOrderAction(order))
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		if want := manualOrderBytes(t, order); !bytes.Equal(got, want) {
			t.Fatalf("encoding mismatch (cloid=%q)\n got %x\nwant %x", cloid, got, want)
		}
	}
}

func TestEncodeCancelAction(t *testing.T) {
	got, err := encodeAction(newCancelAction(10107, 77738308))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var decoded map[string]any
	if err := msgpack.Unmarshal(got, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["type"] != "cancel" {
		t.Fatalf("unexpected type %v", decoded["type"])
	}
	cancels, ok := decoded["cancels"].([]any)
	if !ok || len(cancels) != 1 {
		t.Fatalf("unexpected cancels %v", decoded["cancels"])
	}
	if _, err := encodeAction(cancelAction{Type: "cancel"}); err == nil {
		t.Fatalf("expected error for empty cancel action")
	}
	if _, err := encodeAction("order"); err == nil {
		t.Fatalf("expected error for unsupported action")
	}
}

func TestPriceToWire(t *testing.T) {
	cases := []struct {
		price string
		sz    int32
		want  string
	}{
		{"1000", 2, "1000"},
		{"1000.019", 2, "1000"},
		{"12.3456", 2, "12.346"},
		{"123456.7", 0, "123457"},
		{"0.0123456789", 2, "0.012346"},
	}
	for _, tc := range cases {
		got, err := priceToWire(decimal.RequireFromString(tc.price), tc.sz)
		if err != nil {
			t.Fatalf("%s: %v", tc.price, err)
		}
		if got != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.price, tc.want, got)
		}
	}
	if got, err := priceToWire(decimal.RequireFromString("0.0000123456"), 4); err == nil {
		t.Fatalf("expected rounding to zero error, got %s", got)
	}
	if _, err := priceToWire(decimal.Zero, 2); err == nil {
		t.Fatalf("expected error for zero price")
	}
}

func TestSizeToWire(t *testing.T) {
	got, err := sizeToWire(decimal.RequireFromString("1.239"), 2)
	if err != nil || got != "1.23" {
		t.Fatalf("unexpected size %s err=%v", got, err)
	}
	if _, err := sizeToWire(decimal.RequireFromString("0.001"), 2); err == nil {
		t.Fatalf("expected error for size rounding to zero")
	}
}

func TestCloidFor(t *testing.T) {
	if got := cloidFor("6ba7b810-9dad-11d1-80b4-00c04fd430c8"); got != "0x6ba7b8109dad11d180b400c04fd430c8" {
		t.Fatalf("unexpected cloid %s", got)
	}
	hashed := cloidFor("probe-1")
	if len(hashed) != 34 || hashed != cloidFor("probe-1") {
		t.Fatalf("expected deterministic 16 byte cloid, got %s", hashed)
	}
	if cloidFor("") != "" {
		t.Fatalf("empty client id must not produce a cloid")
	}
}

func TestClientIDFromCloid(t *testing.T) {
	id := "6ba7b810-9dad-11d1-80b4-00c04fd430c8"
	if got := clientIDFromCloid(cloidFor(id)); got != id {
		t.Fatalf("expected %s back, got %s", id, got)
	}
	for _, cloid := range []string{"", "0xabc", "not-hex"} {
		if got := clientIDFromCloid(cloid); got != cloid {
			t.Fatalf("expected %q unchanged, got %q", cloid, got)
		}
	}
}
