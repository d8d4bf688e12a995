package binance

import (
	"encoding/json"
	"strconv"
	"strings"

	"order-probe-bot/internal/market"

	"github.com/shopspring/decimal"
)

type combinedMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// Binance payloads use single letter keys that differ only by case, so they
// are decoded into raw maps instead of structs.
type payload map[string]json.RawMessage

func decodePayload(raw json.RawMessage) (payload, error) {
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return p, nil
}

func (p payload) str(key string) string {
	raw, ok := p[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return strings.Trim(string(raw), `"`)
	}
	return s
}

func (p payload) i64(key string) int64 {
	raw, ok := p[key]
	if !ok {
		return 0
	}
	v, err := strconv.ParseInt(strings.Trim(string(raw), `"`), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func (p payload) dec(key string) decimal.Decimal {
	d, err := decimal.NewFromString(p.str(key))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (p payload) levels(key string) []market.Level {
	raw, ok := p[key]
	if !ok {
		return nil
	}
	var levels [][2]decimal.Decimal
	if err := json.Unmarshal(raw, &levels); err != nil {
		return nil
	}
	return toLevels(levels)
}

func parseDepthUpdate(p payload) market.BookUpdate {
	return market.BookUpdate{
		Symbol:   p.str("s"),
		FirstSeq: p.i64("U"),
		LastSeq:  p.i64("u"),
		Bids:     p.levels("b"),
		Asks:     p.levels("a"),
		Time:     msTime(p.i64("E")),
	}
}

func parseExecutionReport(p payload) market.OrderUpdate {
	status := orderStatus(p.str("X"))
	clientID := p.str("c")
	// Cancels carry the cancel request id in "c" and the original id in "C".
	if orig := p.str("C"); orig != "" && status == market.StatusCanceled {
		clientID = orig
	}
	return market.OrderUpdate{
		Execution: p.str("x"),
		Order: market.Order{
			ID:         strconv.FormatInt(p.i64("i"), 10),
			ClientID:   clientID,
			Exchange:   "binance",
			Side:       market.Side(p.str("S")),
			Amount:     p.dec("q"),
			Filled:     p.dec("z"),
			LimitPrice: p.dec("p"),
			Status:     status,
			CreatedAt:  msTime(p.i64("O")),
			UpdatedAt:  msTime(p.i64("E")),
		},
	}
}

func orderFromResponse(resp OrderResponse, pair string) market.Order {
	created := resp.Time
	if created == 0 {
		created = resp.TransactTime
	}
	updated := resp.UpdateTime
	if updated == 0 {
		updated = created
	}
	return market.Order{
		ID:         strconv.FormatInt(resp.OrderID, 10),
		ClientID:   resp.ClientOrderID,
		Exchange:   "binance",
		Pair:       pair,
		Side:       market.Side(resp.Side),
		Amount:     resp.OrigQty,
		Filled:     resp.ExecutedQty,
		LimitPrice: resp.Price,
		Status:     orderStatus(resp.Status),
		CreatedAt:  msTime(created),
		UpdatedAt:  msTime(updated),
	}
}
