package market

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusNew             OrderStatus = "NEW"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCanceled        OrderStatus = "CANCELED"
	StatusRejected        OrderStatus = "REJECTED"
	StatusExpired         OrderStatus = "EXPIRED"
)

func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusRejected, StatusExpired:
		return true
	default:
		return false
	}
}

type OrderRequest struct {
	Asset      Asset
	Side       Side
	Amount     decimal.Decimal
	LimitPrice decimal.Decimal
	ClientID   string
}

type Order struct {
	ID         string
	ClientID   string
	Exchange   string
	Pair       string
	Side       Side
	Amount     decimal.Decimal
	Filled     decimal.Decimal
	LimitPrice decimal.Decimal
	Status     OrderStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (o Order) Open() bool {
	return !o.Status.Terminal()
}

// OrderUpdate is an order snapshot pushed by a venue stream. Execution carries
// the venue's own event label (e.g. TRADE, canceled) for logging.
type OrderUpdate struct {
	Order     Order
	Execution string
}
