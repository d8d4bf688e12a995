package exec

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"order-probe-bot/internal/market"
	"order-probe-bot/internal/metrics"
	"order-probe-bot/internal/state"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Venue is the order entry surface the executor drives.
type Venue interface {
	PlaceOrder(ctx context.Context, req market.OrderRequest) (string, error)
	CancelOrder(ctx context.Context, asset market.Asset, orderID string) error
}

type Config struct {
	MaxAttempts    int
	InitialBackoff time.Duration
}

type Executor struct {
	venue   Venue
	store   state.Store
	log     *zap.Logger
	metrics *metrics.Metrics
	cfg     Config

	mu    sync.Mutex
	cache map[string]string
}

func New(venue Venue, store state.Store, cfg Config, log *zap.Logger, m *metrics.Metrics) *Executor {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Executor{
		venue:   venue,
		store:   store,
		log:     log,
		metrics: m,
		cfg:     cfg,
		cache:   make(map[string]string),
	}
}

func NewClientID() string {
	return uuid.NewString()
}

func orderKey(exchange, clientID string) string {
	return fmt.Sprintf("exec:order:%s:%s", exchange, clientID)
}

// PlaceOrder submits req once per client id. A missing client id is
// generated so retries of the same request stay idempotent.
func (e *Executor) PlaceOrder(ctx context.Context, req market.OrderRequest) (string, error) {
	if req.ClientID == "" {
		req.ClientID = NewClientID()
	}
	key := orderKey(req.Asset.Exchange, req.ClientID)
	e.mu.Lock()
	if oid, ok := e.cache[key]; ok {
		e.mu.Unlock()
		return oid, nil
	}
	e.mu.Unlock()
	if e.store != nil {
		if oid, ok, err := e.store.Get(ctx, key); err != nil {
			return "", err
		} else if ok {
			e.remember(key, oid)
			return oid, nil
		}
	}

	var orderID string
	err := e.retry(ctx, "place order", func() error {
		var err error
		orderID, err = e.venue.PlaceOrder(ctx, req)
		return err
	})
	if err == nil && orderID == "" {
		err = errors.New("empty order id")
	}
	if err != nil {
		e.metrics.OrdersFailed.Inc()
		return "", err
	}
	e.metrics.OrdersPlaced.Inc()
	if e.store != nil {
		if err := e.store.Set(ctx, key, orderID); err != nil {
			e.log.Warn("failed to persist order id", zap.String("client_id", req.ClientID), zap.Error(err))
		}
	}
	e.remember(key, orderID)
	return orderID, nil
}

func (e *Executor) CancelOrder(ctx context.Context, asset market.Asset, orderID string) error {
	err := e.retry(ctx, "cancel order", func() error {
		return e.venue.CancelOrder(ctx, asset, orderID)
	})
	if err != nil {
		e.metrics.CancelsFailed.Inc()
		return err
	}
	e.metrics.OrdersCancelled.Inc()
	return nil
}

func (e *Executor) remember(key, orderID string) {
	e.mu.Lock()
	e.cache[key] = orderID
	e.mu.Unlock()
}

// retry re-runs fn on transport and throttling failures with exponential
// backoff. Venue rejections are returned immediately.
func (e *Executor) retry(ctx context.Context, op string, fn func() error) error {
	backoff := e.cfg.InitialBackoff
	var err error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !retryable(err) || attempt == e.cfg.MaxAttempts {
			break
		}
		e.log.Warn("retrying", zap.String("op", op), zap.Int("attempt", attempt), zap.Duration("backoff", backoff), zap.Error(err))
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}
	return fmt.Errorf("%s: %w", op, err)
}

func retryable(err error) bool {
	var temp interface{ Temporary() bool }
	if errors.As(err, &temp) && temp.Temporary() {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
