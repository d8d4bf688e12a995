package hyperliquid

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"order-probe-bot/internal/event"
	"order-probe-bot/internal/market"
	"order-probe-bot/internal/ws"

	"go.uber.org/zap"
)

type wsMessage struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

type wsOrderUpdate struct {
	Order           OpenOrder `json:"order"`
	Status          string    `json:"status"`
	StatusTimestamp int64     `json:"statusTimestamp"`
}

func subscription(kind string, fields map[string]string) map[string]any {
	sub := map[string]any{"type": kind}
	for k, v := range fields {
		sub[k] = v
	}
	return map[string]any{"method": "subscribe", "subscription": sub}
}

func (e *Exchange) Subscribe(ctx context.Context, asset market.Asset, sink event.Sink, ready func()) error {
	client := ws.New(ws.Options{
		URL:            e.wsURL,
		ReconnectDelay: e.reconnectDelay,
		PingInterval:   e.pingInterval,
		PingPayload:    map[string]any{"method": "ping"},
	}, e.log)
	if err := client.Connect(ctx); err != nil {
		return err
	}
	if err := client.Subscribe(ctx, subscription("l2Book", map[string]string{"coin": asset.VenueSymbol})); err != nil {
		return err
	}
	if e.account != "" {
		if err := client.Subscribe(ctx, subscription("orderUpdates", map[string]string{"user": e.account})); err != nil {
			return err
		}
	} else {
		e.log.Warn("hyperliquid account address missing; user order updates disabled")
	}
	if ready != nil {
		ready()
	}
	err := client.Run(ctx, func(raw json.RawMessage) {
		e.handleMessage(asset, sink, raw)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (e *Exchange) handleMessage(asset market.Asset, sink event.Sink, raw json.RawMessage) {
	var msg wsMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	switch msg.Channel {
	case "l2Book":
		var book L2Book
		if err := json.Unmarshal(msg.Data, &book); err != nil {
			e.log.Debug("l2Book decode failed", zap.Error(err))
			return
		}
		if book.Coin != asset.VenueSymbol {
			return
		}
		update := bookUpdate(book)
		sink(event.Event{
			Kind:     event.OrderBookSnapshot,
			Exchange: asset.Exchange,
			Symbol:   asset.VenueSymbol,
			Time:     update.Time,
			Book:     &update,
		})
	case "orderUpdates":
		var updates []wsOrderUpdate
		if err := json.Unmarshal(msg.Data, &updates); err != nil {
			e.log.Debug("orderUpdates decode failed", zap.Error(err))
			return
		}
		for _, u := range updates {
			if u.Order.Coin != asset.VenueSymbol {
				continue
			}
			order := orderFromWire(u.Order, asset.Pair, u.Status)
			if u.StatusTimestamp > 0 {
				order.UpdatedAt = msTime(u.StatusTimestamp)
			}
			update := market.OrderUpdate{Order: order, Execution: u.Status}
			sink(event.Event{
				Kind:     event.UserOrder,
				Exchange: asset.Exchange,
				Symbol:   asset.VenueSymbol,
				Time:     order.UpdatedAt,
				Order:    &update,
			})
		}
	}
}

func bookUpdate(book L2Book) market.BookUpdate {
	convert := func(levels []BookLevel) []market.Level {
		out := make([]market.Level, 0, len(levels))
		for _, lvl := range levels {
			out = append(out, market.Level{Price: lvl.Px, Size: lvl.Sz})
		}
		return out
	}
	return market.BookUpdate{
		Symbol: book.Coin,
		Bids:   convert(book.Levels[0]),
		Asks:   convert(book.Levels[1]),
		Time:   msTime(book.Time),
	}
}

func orderFromWire(o OpenOrder, pair, status string) market.Order {
	side := market.Buy
	if o.Side == "A" {
		side = market.Sell
	}
	amount := o.OrigSz
	if amount.IsZero() {
		amount = o.Sz
	}
	st := orderStatus(status)
	if st == market.StatusNew && o.Sz.LessThan(amount) {
		st = market.StatusPartiallyFilled
	}
	return market.Order{
		ID:         strconv.FormatInt(o.Oid, 10),
		ClientID:   clientIDFromCloid(o.Cloid),
		Exchange:   Name,
		Pair:       pair,
		Side:       side,
		Amount:     amount,
		Filled:     amount.Sub(o.Sz),
		LimitPrice: o.LimitPx,
		Status:     st,
		CreatedAt:  msTime(o.Timestamp),
		UpdatedAt:  msTime(o.Timestamp),
	}
}

func orderStatus(raw string) market.OrderStatus {
	switch {
	case raw == "" || raw == "open" || raw == "triggered":
		return market.StatusNew
	case raw == "filled":
		return market.StatusFilled
	case strings.HasSuffix(raw, "anceled"):
		return market.StatusCanceled
	case strings.HasSuffix(raw, "ejected"):
		return market.StatusRejected
	default:
		return market.OrderStatus(strings.ToUpper(raw))
	}
}
