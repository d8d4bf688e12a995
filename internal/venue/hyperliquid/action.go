package hyperliquid

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"
)

// Field order in these structs is the signed msgpack key order; do not reorder.

type limitTIF struct {
	Tif string `msgpack:"tif" json:"tif"`
}

type orderType struct {
	Limit limitTIF `msgpack:"limit" json:"limit"`
}

type orderWire struct {
	Asset      int       `msgpack:"a" json:"a"`
	IsBuy      bool      `msgpack:"b" json:"b"`
	Price      string    `msgpack:"p" json:"p"`
	Size       string    `msgpack:"s" json:"s"`
	ReduceOnly bool      `msgpack:"r" json:"r"`
	Type       orderType `msgpack:"t" json:"t"`
	Cloid      string    `msgpack:"c,omitempty" json:"c,omitempty"`
}

type orderAction struct {
	Type     string      `msgpack:"type" json:"type"`
	Orders   []orderWire `msgpack:"orders" json:"orders"`
	Grouping string      `msgpack:"grouping" json:"grouping"`
}

type cancelWire struct {
	Asset   int   `msgpack:"a" json:"a"`
	OrderID int64 `msgpack:"o" json:"o"`
}

type cancelAction struct {
	Type    string       `msgpack:"type" json:"type"`
	Cancels []cancelWire `msgpack:"cancels" json:"cancels"`
}

const tifGtc = "Gtc"

func newOrderAction(order orderWire) orderAction {
	return orderAction{Type: "order", Orders: []orderWire{order}, Grouping: "na"}
}

func newCancelAction(asset int, oid int64) cancelAction {
	return cancelAction{Type: "cancel", Cancels: []cancelWire{{Asset: asset, OrderID: oid}}}
}

// encodeAction packs an action the way the exchange hashes it: maps in
// declaration order with the smallest integer encodings.
func encodeAction(action any) ([]byte, error) {
	switch a := action.(type) {
	case orderAction:
		if len(a.Orders) == 0 {
			return nil, errors.New("order action has no orders")
		}
	case cancelAction:
		if len(a.Cancels) == 0 {
			return nil, errors.New("cancel action has no cancels")
		}
	default:
		return nil, fmt.Errorf("unsupported action %T", action)
	}
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.UseCompactInts(true)
	if err := enc.Encode(action); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

const (
	maxPriceSigFigs = 5
	maxSpotDecimals = 8
)

// priceToWire rounds a spot price to five significant figures and at most
// 8 - szDecimals decimals. Integer prices are always allowed.
func priceToWire(price decimal.Decimal, szDecimals int32) (string, error) {
	if !price.IsPositive() {
		return "", fmt.Errorf("price must be positive: %s", price)
	}
	decimals := int32(maxSpotDecimals) - szDecimals
	if decimals < 0 {
		decimals = 0
	}
	if sig := sigFigDecimals(price); sig < decimals {
		decimals = sig
	}
	if decimals < 0 {
		decimals = 0
	}
	rounded := price.Round(decimals)
	if !rounded.IsPositive() {
		return "", fmt.Errorf("price %s rounds to zero", price)
	}
	return rounded.String(), nil
}

// sigFigDecimals is the number of decimals that keeps maxPriceSigFigs
// significant figures.
func sigFigDecimals(price decimal.Decimal) int32 {
	if price.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return int32(maxPriceSigFigs) - int32(len(price.Truncate(0).String()))
	}
	tenth := decimal.New(1, -1)
	zeros := int32(0)
	for x := price; x.LessThan(tenth); x = x.Shift(1) {
		zeros++
	}
	return int32(maxPriceSigFigs) + zeros
}

// sizeToWire floors size to szDecimals. A size that floors to zero is an error.
func sizeToWire(size decimal.Decimal, szDecimals int32) (string, error) {
	truncated := size.Truncate(szDecimals)
	if !truncated.IsPositive() {
		return "", fmt.Errorf("size %s rounds to zero with %d decimals", size, szDecimals)
	}
	return truncated.String(), nil
}

// cloidFor maps a client order id to the 16 byte hex cloid the exchange
// accepts. UUIDs are used verbatim; anything else is hashed into one.
func cloidFor(clientID string) string {
	if clientID == "" {
		return ""
	}
	id, err := uuid.Parse(clientID)
	if err != nil {
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(clientID))
	}
	return "0x" + hex.EncodeToString(id[:])
}

// clientIDFromCloid reverses cloidFor for uuid client ids so stream updates
// carry the id the order was placed with. Other cloids are returned as is.
func clientIDFromCloid(cloid string) string {
	raw, err := hex.DecodeString(strings.TrimPrefix(cloid, "0x"))
	if err != nil {
		return cloid
	}
	id, err := uuid.FromBytes(raw)
	if err != nil {
		return cloid
	}
	return id.String()
}
