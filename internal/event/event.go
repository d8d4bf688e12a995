package event

import (
	"time"

	"order-probe-bot/internal/market"
)

type Kind string

const (
	OrderBookSnapshot Kind = "ORDER_BOOK_SNAPSHOT"
	OrderBookDelta    Kind = "ORDER_BOOK_DELTA"
	UserOrder         Kind = "USER_ORDER"
	Schedule          Kind = "SCHEDULE"
)

// Event is delivered to the algorithm one at a time. Book is set for the
// order book kinds, Order for USER_ORDER.
type Event struct {
	Kind     Kind
	Exchange string
	Symbol   string
	Time     time.Time
	Book     *market.BookUpdate
	Order    *market.OrderUpdate
}

// Sink receives events pushed by a venue stream.
type Sink func(Event)

// Attributes flattens the payload into loggable key/values.
func (e Event) Attributes() map[string]any {
	attrs := map[string]any{
		"kind":     string(e.Kind),
		"exchange": e.Exchange,
		"symbol":   e.Symbol,
	}
	if !e.Time.IsZero() {
		attrs["time"] = e.Time.UTC().Format(time.RFC3339Nano)
	}
	if e.Book != nil {
		attrs["first_seq"] = e.Book.FirstSeq
		attrs["last_seq"] = e.Book.LastSeq
		attrs["bids"] = len(e.Book.Bids)
		attrs["asks"] = len(e.Book.Asks)
	}
	if e.Order != nil {
		o := e.Order.Order
		attrs["order_id"] = o.ID
		attrs["client_id"] = o.ClientID
		attrs["side"] = string(o.Side)
		attrs["status"] = string(o.Status)
		attrs["amount"] = o.Amount.String()
		attrs["filled"] = o.Filled.String()
		attrs["price"] = o.LimitPrice.String()
		if e.Order.Execution != "" {
			attrs["execution"] = e.Order.Execution
		}
	}
	return attrs
}
