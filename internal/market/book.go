package market

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

var ErrSequenceGap = errors.New("order book sequence gap")

type Level struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// BookUpdate is either a full snapshot or an incremental delta. Sequence
// numbers are optional; zero disables gap detection.
type BookUpdate struct {
	Symbol   string
	FirstSeq int64
	LastSeq  int64
	Bids     []Level
	Asks     []Level
	Time     time.Time
}

type Book struct {
	mu      sync.RWMutex
	symbol  string
	bids    map[string]Level
	asks    map[string]Level
	lastSeq int64
	synced  bool
	updated time.Time
}

func NewBook(symbol string) *Book {
	return &Book{
		symbol: symbol,
		bids:   make(map[string]Level),
		asks:   make(map[string]Level),
	}
}

func (b *Book) Symbol() string {
	return b.symbol
}

func (b *Book) ApplySnapshot(update BookUpdate) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bids = make(map[string]Level, len(update.Bids))
	b.asks = make(map[string]Level, len(update.Asks))
	upsertLevels(b.bids, update.Bids)
	upsertLevels(b.asks, update.Asks)
	b.lastSeq = update.LastSeq
	b.synced = true
	b.updated = update.Time
}

// ApplyDelta merges update into the book. A level with zero size is removed.
// Deltas entirely older than the book are ignored; a delta that skips
// sequence numbers leaves the book unsynced until the next snapshot.
func (b *Book) ApplyDelta(update BookUpdate) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.synced {
		return fmt.Errorf("%w: %s awaiting snapshot", ErrSequenceGap, b.symbol)
	}
	if update.LastSeq != 0 && b.lastSeq != 0 {
		if update.LastSeq <= b.lastSeq {
			return nil
		}
		if update.FirstSeq > b.lastSeq+1 {
			b.synced = false
			return fmt.Errorf("%w: %s expected %d got %d", ErrSequenceGap, b.symbol, b.lastSeq+1, update.FirstSeq)
		}
	}
	upsertLevels(b.bids, update.Bids)
	upsertLevels(b.asks, update.Asks)
	if update.LastSeq != 0 {
		b.lastSeq = update.LastSeq
	}
	b.updated = update.Time
	return nil
}

func (b *Book) Synced() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.synced
}

func (b *Book) LastSeq() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastSeq
}

func (b *Book) UpdatedAt() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.updated
}

// BestBidAsk returns the highest bid and the lowest ask. ok is false when
// either side is empty.
func (b *Book) BestBidAsk() (Level, Level, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var bid, ask Level
	haveBid, haveAsk := false, false
	for _, lvl := range b.bids {
		if !haveBid || lvl.Price.GreaterThan(bid.Price) {
			bid, haveBid = lvl, true
		}
	}
	for _, lvl := range b.asks {
		if !haveAsk || lvl.Price.LessThan(ask.Price) {
			ask, haveAsk = lvl, true
		}
	}
	return bid, ask, haveBid && haveAsk
}

// Depth returns up to n levels per side, best first. n <= 0 returns everything.
func (b *Book) Depth(n int) ([]Level, []Level) {
	b.mu.RLock()
	bids := collect(b.bids)
	asks := collect(b.asks)
	b.mu.RUnlock()
	sort.Slice(bids, func(i, j int) bool { return bids[i].Price.GreaterThan(bids[j].Price) })
	sort.Slice(asks, func(i, j int) bool { return asks[i].Price.LessThan(asks[j].Price) })
	if n > 0 {
		if len(bids) > n {
			bids = bids[:n]
		}
		if len(asks) > n {
			asks = asks[:n]
		}
	}
	return bids, asks
}

func upsertLevels(side map[string]Level, levels []Level) {
	for _, lvl := range levels {
		key := lvl.Price.String()
		if lvl.Size.IsZero() {
			delete(side, key)
			continue
		}
		side[key] = lvl
	}
}

func collect(side map[string]Level) []Level {
	out := make([]Level, 0, len(side))
	for _, lvl := range side {
		out = append(out, lvl)
	}
	return out
}

func BookKey(exchange, symbol string) string {
	return exchange + ":" + symbol
}

// Books holds one book per exchange and venue symbol.
type Books struct {
	mu    sync.RWMutex
	books map[string]*Book
}

func NewBooks() *Books {
	return &Books{books: make(map[string]*Book)}
}

func (b *Books) Get(exchange, symbol string) (*Book, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	book, ok := b.books[BookKey(exchange, symbol)]
	return book, ok
}

func (b *Books) Ensure(exchange, symbol string) *Book {
	key := BookKey(exchange, symbol)
	b.mu.Lock()
	defer b.mu.Unlock()
	book, ok := b.books[key]
	if !ok {
		book = NewBook(symbol)
		b.books[key] = book
	}
	return book
}
