package market

import (
	"strings"

	"github.com/shopspring/decimal"
)

type Balance struct {
	Free   decimal.Decimal
	Locked decimal.Decimal
}

func (b Balance) Total() decimal.Decimal {
	return b.Free.Add(b.Locked)
}

// Balances is keyed by upper-case currency code.
type Balances map[string]Balance

func (b Balances) Get(currency string) Balance {
	if b == nil {
		return Balance{}
	}
	return b[strings.ToUpper(currency)]
}
