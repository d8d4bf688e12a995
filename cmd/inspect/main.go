package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"order-probe-bot/internal/app"
	"order-probe-bot/internal/config"
	"order-probe-bot/internal/logging"
	"order-probe-bot/internal/market"
	"order-probe-bot/internal/state"
	"order-probe-bot/internal/venue"

	"go.uber.org/zap"
)

const defaultInspectTimeout = 15 * time.Second

type report struct {
	Exchange   string             `json:"exchange"`
	Pair       string             `json:"pair"`
	Symbol     string             `json:"symbol"`
	LastPrice  string             `json:"last_price,omitempty"`
	BestBid    *level             `json:"best_bid,omitempty"`
	BestAsk    *level             `json:"best_ask,omitempty"`
	Bids       []level            `json:"bids,omitempty"`
	Asks       []level            `json:"asks,omitempty"`
	Balances   map[string]balance `json:"balances,omitempty"`
	OpenOrders []market.Order     `json:"open_orders,omitempty"`
	Errors     []string           `json:"errors,omitempty"`
}

type level struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type balance struct {
	Free   string `json:"free"`
	Locked string `json:"locked"`
}

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to config file")
	exchange := flag.String("exchange", "", "override algo.exchange")
	pair := flag.String("pair", "", "override algo.pair")
	depth := flag.Int("depth", 5, "order book levels per side to print")
	runs := flag.Bool("runs", false, "print persisted run snapshots and exit")
	flag.Parse()

	if err := config.LoadEnv(".env"); err != nil {
		fatal(err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}
	if *exchange != "" {
		cfg.Algo.Exchange = *exchange
	}
	if *pair != "" {
		cfg.Algo.Pair = *pair
	}
	log := logging.New(cfg.Log)
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), defaultInspectTimeout)
	defer cancel()

	if *runs {
		printRuns(ctx, cfg)
		return
	}

	ex, err := app.Registry().New(cfg.Algo.Exchange, venue.Deps{Config: *cfg, Log: log})
	if err != nil {
		fatal(err)
	}
	out := inspect(ctx, ex, cfg.Algo.Pair, *depth, log)
	printJSON(out)
}

func inspect(ctx context.Context, ex venue.Exchange, pair string, depth int, log *zap.Logger) report {
	out := report{Exchange: ex.Name(), Pair: pair, Symbol: market.NormalizePair(pair)}
	asset, err := ex.Symbol(ctx, pair)
	if err != nil {
		fatal(err)
	}
	if price, err := ex.LatestPrice(ctx, asset); err != nil {
		out.Errors = append(out.Errors, fmt.Sprintf("latest price: %v", err))
	} else {
		out.LastPrice = price.String()
	}

	if snap, err := ex.BookSnapshot(ctx, asset); err != nil {
		out.Errors = append(out.Errors, fmt.Sprintf("book snapshot: %v", err))
	} else {
		book := market.NewBook(asset.VenueSymbol)
		book.ApplySnapshot(snap)
		if bid, ask, ok := book.BestBidAsk(); ok {
			out.BestBid = &level{Price: bid.Price.String(), Size: bid.Size.String()}
			out.BestAsk = &level{Price: ask.Price.String(), Size: ask.Size.String()}
		}
		bids, asks := book.Depth(depth)
		out.Bids = levels(bids)
		out.Asks = levels(asks)
	}

	if balances, err := ex.Balances(ctx); err != nil {
		log.Warn("balances unavailable", zap.Error(err))
		out.Errors = append(out.Errors, fmt.Sprintf("balances: %v", err))
	} else {
		out.Balances = make(map[string]balance, len(balances))
		for currency, b := range balances {
			if b.Total().IsZero() {
				continue
			}
			out.Balances[currency] = balance{Free: b.Free.String(), Locked: b.Locked.String()}
		}
	}

	if orders, err := ex.OpenOrders(ctx, asset); err != nil {
		log.Warn("open orders unavailable", zap.Error(err))
		out.Errors = append(out.Errors, fmt.Sprintf("open orders: %v", err))
	} else {
		out.OpenOrders = orders
	}
	return out
}

func levels(in []market.Level) []level {
	out := make([]level, len(in))
	for i, l := range in {
		out[i] = level{Price: l.Price.String(), Size: l.Size.String()}
	}
	return out
}

func printRuns(ctx context.Context, cfg *config.Config) {
	store, err := state.Open(cfg.State)
	if err != nil {
		fatal(err)
	}
	defer store.Close()
	snaps, err := state.ListRunSnapshots(ctx, store)
	if err != nil {
		fatal(err)
	}
	printJSON(snaps)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
