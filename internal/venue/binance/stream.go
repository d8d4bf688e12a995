package binance

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"order-probe-bot/internal/event"
	"order-probe-bot/internal/market"
	"order-probe-bot/internal/metrics"
	"order-probe-bot/internal/ws"

	"go.uber.org/zap"
)

type streamConfig struct {
	URL            string
	ReconnectDelay time.Duration
	PingInterval   time.Duration
	KeepAlive      time.Duration
	DepthLimit     int
}

// stream runs one combined websocket for an asset: the diff depth channel
// plus, when credentials are present, the user data stream.
type stream struct {
	cfg     streamConfig
	rest    *Client
	asset   market.Asset
	sink    event.Sink
	log     *zap.Logger
	metrics *metrics.Metrics

	depth     *depthSync
	resync    chan struct{}
	renew     chan struct{}
	emitMu    sync.Mutex
	client    *ws.Client
	keyMu     sync.Mutex
	listenKey string
}

func newStream(cfg streamConfig, rest *Client, asset market.Asset, sink event.Sink, log *zap.Logger, m *metrics.Metrics) *stream {
	s := &stream{
		cfg:     cfg,
		rest:    rest,
		asset:   asset,
		sink:    sink,
		log:     log,
		metrics: m,
		resync:  make(chan struct{}, 1),
		renew:   make(chan struct{}, 1),
	}
	s.depth = newDepthSync(func() {
		s.metrics.BookResyncs.Inc()
		s.requestSnapshot()
	})
	return s
}

func (s *stream) run(ctx context.Context, ready func()) error {
	if s.rest.HasCredentials() {
		key, err := s.rest.CreateListenKey(ctx)
		if err != nil {
			return err
		}
		s.setListenKey(key)
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.rest.CloseListenKey(closeCtx, s.currentListenKey()); err != nil {
				s.log.Debug("close listen key failed", zap.Error(err))
			}
		}()
	} else {
		s.log.Warn("binance credentials missing; user order updates disabled", zap.String("symbol", s.asset.VenueSymbol))
	}

	s.client = ws.New(ws.Options{
		URL:            s.streamURL(),
		ReconnectDelay: s.cfg.ReconnectDelay,
		PingInterval:   s.cfg.PingInterval,
		OnReconnect: func(context.Context) {
			s.log.Info("binance stream reconnected; resyncing book", zap.String("symbol", s.asset.VenueSymbol))
			s.depth.Reset()
			s.requestSnapshot()
		},
	}, s.log)
	if err := s.client.Connect(ctx); err != nil {
		return err
	}
	if s.currentListenKey() != "" {
		go s.keepAliveLoop(ctx)
	}
	if ready != nil {
		ready()
	}

	s.requestSnapshot()
	go s.snapshotLoop(ctx)
	err := s.client.Run(ctx, s.handle)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *stream) streamURL() string {
	streams := strings.ToLower(s.asset.VenueSymbol) + "@depth@100ms"
	if key := s.currentListenKey(); key != "" {
		streams += "/" + key
	}
	return strings.TrimRight(s.cfg.URL, "/") + "/stream?streams=" + streams
}

func (s *stream) setListenKey(key string) {
	s.keyMu.Lock()
	s.listenKey = key
	s.keyMu.Unlock()
}

func (s *stream) currentListenKey() string {
	s.keyMu.Lock()
	defer s.keyMu.Unlock()
	return s.listenKey
}

func (s *stream) requestSnapshot() {
	select {
	case s.resync <- struct{}{}:
	default:
	}
}

func (s *stream) snapshotLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.resync:
		}
		for {
			snapshot, err := s.rest.Depth(ctx, s.asset.VenueSymbol, s.cfg.DepthLimit)
			if err == nil {
				s.installSnapshot(snapshot)
				break
			}
			if ctx.Err() != nil {
				return
			}
			s.log.Warn("binance depth snapshot failed", zap.String("symbol", s.asset.VenueSymbol), zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.retryDelay()):
			}
		}
	}
}

func (s *stream) retryDelay() time.Duration {
	if s.cfg.ReconnectDelay > 0 {
		return s.cfg.ReconnectDelay
	}
	return time.Second
}

func (s *stream) installSnapshot(snapshot DepthSnapshot) {
	update := snapshot.BookUpdate(s.asset.VenueSymbol, time.Now().UTC())
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	ready := s.depth.Snapshot(update)
	s.emitBook(event.OrderBookSnapshot, update)
	for _, delta := range ready {
		s.emitBook(event.OrderBookDelta, delta)
	}
}

func (s *stream) keepAliveLoop(ctx context.Context) {
	interval := s.cfg.KeepAlive
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.renew:
			s.renewListenKey(ctx)
		case <-ticker.C:
			if err := s.rest.KeepAliveListenKey(ctx, s.currentListenKey()); err != nil {
				s.log.Warn("listen key keepalive failed", zap.Error(err))
				s.renewListenKey(ctx)
			}
		}
	}
}

func (s *stream) renewListenKey(ctx context.Context) {
	key, err := s.rest.CreateListenKey(ctx)
	if err != nil {
		s.log.Warn("listen key renewal failed", zap.Error(err))
		return
	}
	s.setListenKey(key)
	s.client.SetURL(s.streamURL())
	s.client.Close()
}

func (s *stream) handle(raw json.RawMessage) {
	var msg combinedMessage
	if err := json.Unmarshal(raw, &msg); err != nil || len(msg.Data) == 0 {
		return
	}
	p, err := decodePayload(msg.Data)
	if err != nil {
		s.log.Debug("binance payload decode failed", zap.Error(err))
		return
	}
	switch p.str("e") {
	case "depthUpdate":
		update := parseDepthUpdate(p)
		if update.Symbol != "" && update.Symbol != s.asset.VenueSymbol {
			return
		}
		update.Symbol = s.asset.VenueSymbol
		s.emitMu.Lock()
		for _, delta := range s.depth.Delta(update) {
			s.emitBook(event.OrderBookDelta, delta)
		}
		s.emitMu.Unlock()
	case "executionReport":
		if p.str("s") != s.asset.VenueSymbol {
			return
		}
		update := parseExecutionReport(p)
		update.Order.Pair = s.asset.Pair
		s.sink(event.Event{
			Kind:     event.UserOrder,
			Exchange: s.asset.Exchange,
			Symbol:   s.asset.VenueSymbol,
			Time:     update.Order.UpdatedAt,
			Order:    &update,
		})
	case "listenKeyExpired":
		s.log.Warn("binance listen key expired; renewing")
		select {
		case s.renew <- struct{}{}:
		default:
		}
	}
}

func (s *stream) emitBook(kind event.Kind, update market.BookUpdate) {
	u := update
	s.sink(event.Event{
		Kind:     kind,
		Exchange: s.asset.Exchange,
		Symbol:   s.asset.VenueSymbol,
		Time:     u.Time,
		Book:     &u,
	})
}
