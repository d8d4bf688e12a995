package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"order-probe-bot/internal/algo"
	"order-probe-bot/internal/alerts"
	"order-probe-bot/internal/config"
	"order-probe-bot/internal/control"
	"order-probe-bot/internal/event"
	"order-probe-bot/internal/exec"
	"order-probe-bot/internal/market"
	"order-probe-bot/internal/metrics"
	"order-probe-bot/internal/state"
	"order-probe-bot/internal/strategy"
	"order-probe-bot/internal/timescale"
	"order-probe-bot/internal/venue"
	"order-probe-bot/internal/venue/binance"
	"order-probe-bot/internal/venue/hyperliquid"

	"go.uber.org/zap"
)

type App struct {
	cfg       *config.Config
	log       *zap.Logger
	store     state.Store
	exchange  venue.Exchange
	executor  *exec.Executor
	runner    *algo.Runner
	probe     *strategy.Probe
	metrics   *metrics.Prometheus
	alerts    alerts.Notifier
	timescale *timescale.Writer
	control   *control.Server

	mu       sync.Mutex
	snapshot state.RunSnapshot
	alertWG  sync.WaitGroup
	now      func() time.Time
}

// Registry returns the venues the bot can trade on.
func Registry() *venue.Registry {
	r := venue.NewRegistry()
	r.Register(binance.Name, binance.New)
	r.Register(hyperliquid.Name, hyperliquid.New)
	return r
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	store, err := state.Open(cfg.State)
	if err != nil {
		return nil, err
	}
	prom := metrics.NewPrometheus()
	ex, err := Registry().New(cfg.Algo.Exchange, venue.Deps{
		Config:  *cfg,
		Log:     log,
		Store:   store,
		Metrics: prom.Metrics,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	writer, err := timescale.New(cfg.Timescale, log.Named("timescale"))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("timescale: %w", err)
	}
	return assemble(cfg, log, store, ex, prom, alerts.NewTelegram(cfg.Telegram, log), writer), nil
}

func assemble(cfg *config.Config, log *zap.Logger, store state.Store, ex venue.Exchange, prom *metrics.Prometheus, notifier alerts.Notifier, writer *timescale.Writer) *App {
	executor := exec.New(ex, store, exec.Config{
		MaxAttempts:    cfg.Exec.MaxAttempts,
		InitialBackoff: cfg.Exec.InitialBackoff,
	}, log.Named("exec"), prom.Metrics)
	probe := strategy.NewProbe(cfg.Algo, log)
	runner := algo.NewRunner(cfg.Algo, probe, ex, executor, log, prom.Metrics)
	a := &App{
		cfg:       cfg,
		log:       log,
		store:     store,
		exchange:  ex,
		executor:  executor,
		runner:    runner,
		probe:     probe,
		metrics:   prom,
		alerts:    notifier,
		timescale: writer,
		now:       time.Now,
	}
	if cfg.Control.EnabledValue() {
		a.control = control.New(cfg.Control, control.Deps{
			Runtime:  runner,
			Strategy: probe,
			Stop:     a.Stop,
			Store:    store,
			Exchange: cfg.Algo.Exchange,
			Pair:     cfg.Algo.Pair,
			Metrics:  prom.Handler(),
			Log:      log,
		})
	}
	runner.Observe(a.observe)
	return a
}

// Stop ends the algorithm the same way a failed order does.
func (a *App) Stop(reason string) {
	a.probe.Stop(a.runner.Context(), reason)
}

func (a *App) Run(ctx context.Context) error {
	defer a.store.Close()
	defer a.timescale.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.timescale.Start(ctx)
	if a.control != nil {
		go func() {
			if err := a.control.Run(ctx); err != nil {
				a.log.Error("control server failed", zap.Error(err))
			}
		}()
	}

	if prev, ok, err := state.LoadRunSnapshot(ctx, a.store, a.cfg.Algo.Exchange, a.cfg.Algo.Pair); err != nil {
		a.log.Warn("previous run snapshot unreadable", zap.Error(err))
	} else if ok {
		a.log.Info("previous run",
			zap.String("status", prev.Status),
			zap.String("reason", prev.Reason),
			zap.Int("orders_placed", prev.OrdersPlaced),
			zap.String("last_order_id", prev.LastOrderID),
		)
	}
	a.logVenueOpenOrders(ctx)

	now := a.now().UnixMilli()
	a.mu.Lock()
	a.snapshot = state.RunSnapshot{
		Exchange:        a.cfg.Algo.Exchange,
		Pair:            a.cfg.Algo.Pair,
		Symbol:          market.NormalizePair(a.cfg.Algo.Pair),
		Status:          state.RunStatusRunning,
		StartingCapital: a.cfg.Algo.StartingCapital,
		StartedAtMS:     now,
		UpdatedAtMS:     now,
	}
	a.mu.Unlock()
	a.saveSnapshot(ctx)

	err := a.runner.Run(ctx)

	final := context.WithoutCancel(ctx)
	status, reason := state.RunStatusStopped, ""
	if errors.Is(err, algo.ErrInterrupted) {
		status, reason = state.RunStatusInterrupted, a.runner.Context().InterruptReason()
	}
	a.mu.Lock()
	a.snapshot.Status = status
	a.snapshot.Reason = reason
	a.mu.Unlock()
	a.saveSnapshot(final)
	if status == state.RunStatusInterrupted {
		a.log.Info("algorithm stopped", zap.String("reason", reason))
		a.alert(final, alerts.StopMessage(a.cfg.Algo.Exchange, a.cfg.Algo.Pair, reason))
	}
	a.alertWG.Wait()
	return err
}

// logVenueOpenOrders reports orders resting on the venue before the run.
// They are not managed by the algorithm.
func (a *App) logVenueOpenOrders(ctx context.Context) {
	asset, err := a.exchange.Symbol(ctx, a.cfg.Algo.Pair)
	if err != nil {
		a.log.Warn("symbol lookup failed", zap.Error(err))
		return
	}
	orders, err := a.exchange.OpenOrders(ctx, asset)
	if err != nil {
		a.log.Warn("open orders lookup failed", zap.Error(err))
		return
	}
	if len(orders) > 0 {
		a.log.Info("venue has open orders not managed by this run", zap.Int("count", len(orders)), zap.String("asset", asset.String()))
	}
}

func (a *App) observe(ctx context.Context, ev event.Event) {
	switch ev.Kind {
	case event.OrderBookSnapshot, event.OrderBookDelta:
		a.recordBookTop(ev)
	case event.UserOrder:
		if ev.Order == nil {
			return
		}
		order := ev.Order.Order
		a.timescale.EnqueueOrder(timescale.OrderEvent{
			Time:      a.eventTime(ev),
			Exchange:  order.Exchange,
			Pair:      order.Pair,
			OrderID:   order.ID,
			ClientID:  order.ClientID,
			Side:      string(order.Side),
			Status:    string(order.Status),
			Execution: ev.Order.Execution,
			Amount:    order.Amount,
			Filled:    order.Filled,
			Price:     order.LimitPrice,
		})
		if order.Status.Terminal() {
			a.alert(ctx, alerts.OrderMessage(order))
		}
		a.mu.Lock()
		if order.ClientID != "" {
			a.snapshot.LastClientID = order.ClientID
		}
		a.mu.Unlock()
		a.saveSnapshot(ctx)
	}
}

func (a *App) recordBookTop(ev event.Event) {
	if a.timescale == nil {
		return
	}
	asset, ok := a.runner.Context().Benchmark()
	if !ok || asset.VenueSymbol != ev.Symbol {
		return
	}
	bid, ask, ok := a.runner.Context().BestBidAsk(asset)
	if !ok {
		return
	}
	a.timescale.EnqueueBookTop(timescale.BookTop{
		Time:     a.eventTime(ev),
		Exchange: ev.Exchange,
		Symbol:   ev.Symbol,
		BidPrice: bid.Price,
		BidSize:  bid.Size,
		AskPrice: ask.Price,
		AskSize:  ask.Size,
	})
}

func (a *App) eventTime(ev event.Event) time.Time {
	if ev.Time.IsZero() {
		return a.now().UTC()
	}
	return ev.Time.UTC()
}

func (a *App) saveSnapshot(ctx context.Context) {
	st := a.probe.Status()
	a.mu.Lock()
	a.snapshot.OrdersPlaced = int(st.OrdersPlaced)
	a.snapshot.OrdersCancelled = int(st.OrdersCancelled)
	if st.LastOrderID != "" {
		a.snapshot.LastOrderID = st.LastOrderID
	}
	a.snapshot.UpdatedAtMS = a.now().UnixMilli()
	snap := a.snapshot
	a.mu.Unlock()
	if err := state.SaveRunSnapshot(ctx, a.store, snap); err != nil {
		a.log.Warn("run snapshot save failed", zap.Error(err))
	}
}

func (a *App) alert(ctx context.Context, message string) {
	if a.alerts == nil {
		return
	}
	a.alertWG.Add(1)
	go func() {
		defer a.alertWG.Done()
		if err := a.alerts.Send(ctx, message); err != nil {
			a.log.Warn("alert send failed", zap.Error(err))
		}
	}()
}
