package algo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"order-probe-bot/internal/config"
	"order-probe-bot/internal/event"
	"order-probe-bot/internal/market"
	"order-probe-bot/internal/metrics"
	"order-probe-bot/internal/venue"

	"go.uber.org/zap"
)

// Algorithm is driven by the Runner. All three callbacks run on the single
// dispatch goroutine, never concurrently.
type Algorithm interface {
	Initialize(ctx context.Context, c *Context) error
	InitializeHandleEvents(ctx context.Context, c *Context)
	HandleEvents(ctx context.Context, c *Context, ev event.Event)
}

// Observer sees every event after the algorithm handled it.
type Observer func(ctx context.Context, ev event.Event)

type Status struct {
	Exchange         string     `json:"exchange"`
	Symbols          []string   `json:"symbols"`
	Running          bool       `json:"running"`
	EventsDispatched int64      `json:"events_dispatched"`
	LastEventAt      *time.Time `json:"last_event_at,omitempty"`
	Interrupted      bool       `json:"interrupted"`
	Reason           string     `json:"reason,omitempty"`
	BestBid          *BookLevel `json:"best_bid,omitempty"`
	BestAsk          *BookLevel `json:"best_ask,omitempty"`
}

type BookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

func newBookLevel(l market.Level) *BookLevel {
	return &BookLevel{Price: l.Price.String(), Size: l.Size.String()}
}

type Runner struct {
	cfg     config.AlgoConfig
	algo    Algorithm
	ctx     *Context
	venue   venue.Exchange
	log     *zap.Logger
	metrics *metrics.Metrics

	mu        sync.Mutex
	observers []Observer

	running    atomic.Bool
	dispatched atomic.Int64
	lastEvent  atomic.Int64
}

func NewRunner(cfg config.AlgoConfig, alg Algorithm, ex venue.Exchange, router OrderRouter, log *zap.Logger, m *metrics.Metrics) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Runner{
		cfg:     cfg,
		algo:    alg,
		ctx:     NewContext(cfg, ex, router, log.Named("algo"), m),
		venue:   ex,
		log:     log,
		metrics: m,
	}
}

func (r *Runner) Context() *Context {
	return r.ctx
}

func (r *Runner) Observe(o Observer) {
	r.mu.Lock()
	r.observers = append(r.observers, o)
	r.mu.Unlock()
}

// Run initializes the algorithm, subscribes every registered asset and
// dispatches events until ctx is done or the algorithm is interrupted.
func (r *Runner) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if r.ctx.bind(cancel) {
		return r.interruptedErr()
	}
	r.running.Store(true)
	defer r.running.Store(false)

	if err := r.algo.Initialize(runCtx, r.ctx); err != nil {
		return fmt.Errorf("initialize algorithm: %w", err)
	}
	assets := r.ctx.Assets()
	if len(assets) == 0 {
		return errors.New("no symbols registered during initialize")
	}

	buffer := r.cfg.EventBuffer
	if buffer <= 0 {
		buffer = 1024
	}
	events := make(chan event.Event, buffer)
	sink := func(ev event.Event) {
		select {
		case events <- ev:
		case <-runCtx.Done():
		}
	}

	var wg, ready sync.WaitGroup
	ready.Add(len(assets))
	for _, asset := range assets {
		wg.Add(1)
		markReady := sync.OnceFunc(ready.Done)
		go func(asset market.Asset) {
			defer wg.Done()
			// A stream that ends before connecting must not block startup.
			defer markReady()
			r.log.Info("subscribing", zap.String("asset", asset.String()))
			err := r.venue.Subscribe(runCtx, asset, sink, markReady)
			if err != nil && runCtx.Err() == nil {
				r.log.Error("subscription failed", zap.String("asset", asset.String()), zap.Error(err))
				r.ctx.InterruptAlgorithm(fmt.Sprintf("subscription for %s failed: %v", asset, err))
			}
		}(asset)
	}

	subscribed := make(chan struct{})
	go func() {
		ready.Wait()
		close(subscribed)
	}()
	select {
	case <-subscribed:
		if runCtx.Err() == nil {
			r.log.Info("streams subscribed", zap.Int("assets", len(assets)))
			r.algo.InitializeHandleEvents(runCtx, r.ctx)
		}
	case <-runCtx.Done():
	}

	var tick <-chan time.Time
	if r.cfg.ScheduleInterval > 0 {
		ticker := time.NewTicker(r.cfg.ScheduleInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-runCtx.Done():
			cancel()
			wg.Wait()
			if r.ctx.Interrupted() {
				return r.interruptedErr()
			}
			return ctx.Err()
		case ev := <-events:
			r.dispatch(runCtx, ev)
		case now := <-tick:
			r.dispatch(runCtx, event.Event{
				Kind:     event.Schedule,
				Exchange: r.venue.Name(),
				Time:     now,
			})
		}
	}
}

func (r *Runner) interruptedErr() error {
	return fmt.Errorf("%w: %s", ErrInterrupted, r.ctx.InterruptReason())
}

func (r *Runner) dispatch(ctx context.Context, ev event.Event) {
	if ev.Kind == event.UserOrder && ev.Order != nil {
		r.ctx.blotter.Apply(*ev.Order)
	}
	r.algo.HandleEvents(ctx, r.ctx, ev)
	r.dispatched.Add(1)
	r.lastEvent.Store(time.Now().UnixMilli())
	r.metrics.EventsDispatched.Inc()

	r.mu.Lock()
	observers := append([]Observer(nil), r.observers...)
	r.mu.Unlock()
	for _, o := range observers {
		o(ctx, ev)
	}
}

func (r *Runner) Status() Status {
	st := Status{
		Exchange:         r.venue.Name(),
		Running:          r.running.Load(),
		EventsDispatched: r.dispatched.Load(),
		Interrupted:      r.ctx.Interrupted(),
		Reason:           r.ctx.InterruptReason(),
	}
	for _, asset := range r.ctx.Assets() {
		st.Symbols = append(st.Symbols, asset.Symbol())
	}
	if ms := r.lastEvent.Load(); ms > 0 {
		at := time.UnixMilli(ms).UTC()
		st.LastEventAt = &at
	}
	if asset, ok := r.ctx.Benchmark(); ok {
		if bid, ask, ok := r.ctx.BestBidAsk(asset); ok {
			st.BestBid = newBookLevel(bid)
			st.BestAsk = newBookLevel(ask)
		}
	}
	return st
}

// BookDepth returns up to n levels per side of the benchmark book.
func (r *Runner) BookDepth(n int) (market.Asset, []market.Level, []market.Level, bool) {
	asset, ok := r.ctx.Benchmark()
	if !ok {
		return market.Asset{}, nil, nil, false
	}
	bids, asks, ok := r.ctx.Depth(asset, n)
	return asset, bids, asks, ok
}
