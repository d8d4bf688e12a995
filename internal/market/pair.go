package market

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidPair   = errors.New("invalid trading pair")
	ErrUnknownSymbol = errors.New("unknown symbol")
)

// ParsePair splits a lowercase snake case pair such as "btc_usdt" into its
// upper-case base and quote currencies.
func ParsePair(pair string) (string, string, error) {
	if pair == "" || pair != strings.ToLower(pair) || strings.TrimSpace(pair) != pair {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPair, pair)
	}
	parts := strings.Split(pair, "_")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPair, pair)
	}
	return strings.ToUpper(parts[0]), strings.ToUpper(parts[1]), nil
}

// NormalizePair converts "btc_usdt" into the display symbol "BTC/USDT".
func NormalizePair(pair string) string {
	return strings.ReplaceAll(strings.ToUpper(pair), "_", "/")
}

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Asset is a pair registered on one exchange, resolved against venue metadata.
type Asset struct {
	Exchange     string
	Pair         string
	Base         string
	Quote        string
	VenueSymbol  string
	VenueID      int
	PriceTick    decimal.Decimal
	SizeStep     decimal.Decimal
	SizeDecimals int32
}

func (a Asset) Symbol() string {
	return NormalizePair(a.Pair)
}

func (a Asset) Key() string {
	return BookKey(a.Exchange, a.VenueSymbol)
}

func (a Asset) String() string {
	return a.Symbol() + " @ " + a.Exchange
}

// RoundPrice floors price to the asset tick size when one is known.
func (a Asset) RoundPrice(price decimal.Decimal) decimal.Decimal {
	return floorToStep(price, a.PriceTick)
}

// RoundSize floors size to the lot step, or to SizeDecimals when no step is known.
func (a Asset) RoundSize(size decimal.Decimal) decimal.Decimal {
	if a.SizeStep.IsPositive() {
		return floorToStep(size, a.SizeStep)
	}
	if a.SizeDecimals > 0 {
		return size.Truncate(a.SizeDecimals)
	}
	return size
}

func floorToStep(value, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		return value
	}
	return value.Div(step).Floor().Mul(step)
}
