package timescale

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"order-probe-bot/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

type BookTop struct {
	Time     time.Time
	Exchange string
	Symbol   string
	BidPrice decimal.Decimal
	BidSize  decimal.Decimal
	AskPrice decimal.Decimal
	AskSize  decimal.Decimal
}

type OrderEvent struct {
	Time      time.Time
	Exchange  string
	Pair      string
	OrderID   string
	ClientID  string
	Side      string
	Status    string
	Execution string
	Amount    decimal.Decimal
	Filled    decimal.Decimal
	Price     decimal.Decimal
}

type Writer struct {
	db           *sql.DB
	log          *zap.Logger
	schema       string
	bookInterval time.Duration
	books        chan BookTop
	orders       chan OrderEvent
	started      atomic.Bool
	dropBook     atomic.Uint64
	dropOrder    atomic.Uint64

	mu       sync.Mutex
	lastBook map[string]time.Time
}

// New returns a nil writer when timescale is disabled; a nil writer accepts
// and discards every record.
func New(cfg config.TimescaleConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("timescale dsn is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	writer := newWriter(db, cfg, log)
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func newWriter(db *sql.DB, cfg config.TimescaleConfig, log *zap.Logger) *Writer {
	if log == nil {
		log = zap.NewNop()
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Writer{
		db:           db,
		log:          log,
		schema:       schema,
		bookInterval: cfg.BookInterval,
		books:        make(chan BookTop, queueSize),
		orders:       make(chan OrderEvent, queueSize),
		lastBook:     make(map[string]time.Time),
	}
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

// EnqueueBookTop queues at most one row per exchange and symbol every
// book interval. It reports whether the row was queued.
func (w *Writer) EnqueueBookTop(top BookTop) bool {
	if w == nil {
		return false
	}
	key := top.Exchange + ":" + top.Symbol
	w.mu.Lock()
	if last, ok := w.lastBook[key]; ok && top.Time.Sub(last) < w.bookInterval {
		w.mu.Unlock()
		return false
	}
	w.lastBook[key] = top.Time
	w.mu.Unlock()
	select {
	case w.books <- top:
		return true
	default:
		if w.dropBook.Add(1) == 1 {
			w.log.Warn("timescale book queue full")
		}
		return false
	}
}

func (w *Writer) EnqueueOrder(ev OrderEvent) {
	if w == nil {
		return
	}
	select {
	case w.orders <- ev:
	default:
		if w.dropOrder.Add(1) == 1 {
			w.log.Warn("timescale order queue full")
		}
	}
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case top := <-w.books:
			w.writeBookTop(ctx, top)
		case ev := <-w.orders:
			w.writeOrder(ctx, ev)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("timescale db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		exchange TEXT NOT NULL,
		symbol TEXT NOT NULL,
		bid_price NUMERIC NOT NULL,
		bid_size NUMERIC NOT NULL,
		ask_price NUMERIC NOT NULL,
		ask_size NUMERIC NOT NULL
	)`, w.table("book_tops"))); err != nil {
		return err
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		exchange TEXT NOT NULL,
		pair TEXT NOT NULL,
		order_id TEXT NOT NULL,
		client_id TEXT NOT NULL,
		side TEXT NOT NULL,
		status TEXT NOT NULL,
		execution TEXT NOT NULL,
		amount NUMERIC NOT NULL,
		filled NUMERIC NOT NULL,
		price NUMERIC NOT NULL
	)`, w.table("order_events"))); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		w.log.Warn("timescale extension ensure failed", zap.Error(err))
		return nil
	}
	for _, name := range []string{"book_tops", "order_events"} {
		if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table(name))); err != nil {
			w.log.Warn("timescale hypertable create failed", zap.String("table", name), zap.Error(err))
		}
	}
	return nil
}

func (w *Writer) writeBookTop(ctx context.Context, top BookTop) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, exchange, symbol, bid_price, bid_size, ask_price, ask_size
	) VALUES ($1,$2,$3,$4,$5,$6,$7)`, w.table("book_tops"))
	if _, err := w.db.ExecContext(ctx, query,
		top.Time,
		top.Exchange,
		top.Symbol,
		top.BidPrice,
		top.BidSize,
		top.AskPrice,
		top.AskSize,
	); err != nil {
		w.log.Warn("timescale book top insert failed", zap.Error(err))
	}
}

func (w *Writer) writeOrder(ctx context.Context, ev OrderEvent) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, exchange, pair, order_id, client_id, side, status, execution, amount, filled, price
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`, w.table("order_events"))
	if _, err := w.db.ExecContext(ctx, query,
		ev.Time,
		ev.Exchange,
		ev.Pair,
		ev.OrderID,
		ev.ClientID,
		ev.Side,
		ev.Status,
		ev.Execution,
		ev.Amount,
		ev.Filled,
		ev.Price,
	); err != nil {
		w.log.Warn("timescale order event insert failed", zap.Error(err))
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}
