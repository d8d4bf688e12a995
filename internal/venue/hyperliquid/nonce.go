package hyperliquid

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"order-probe-bot/internal/state"

	"go.uber.org/zap"
)

// nonces hands out strictly increasing millisecond nonces and persists the
// high-water mark so a restart never reuses one.
type nonces struct {
	last      atomic.Uint64
	persisted atomic.Uint64
	now       func() time.Time

	store  state.Store
	key    string
	log    *zap.Logger
	mu     sync.Mutex
	warned atomic.Bool
}

func nonceKey(signer, vault string) string {
	if vault == "" {
		vault = "none"
	}
	return fmt.Sprintf("hl:nonce:%s:%s", strings.ToLower(signer), strings.ToLower(vault))
}

func newNonces(log *zap.Logger) *nonces {
	return &nonces{now: time.Now, log: log}
}

// attach seeds the counter from store. A stored value ahead of the clock wins.
func (n *nonces) attach(ctx context.Context, store state.Store, key string) error {
	if store == nil {
		return nil
	}
	seed := uint64(n.now().UnixMilli())
	raw, ok, err := store.Get(ctx, key)
	if err != nil {
		return err
	}
	if ok {
		stored, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid stored nonce %q: %w", raw, err)
		}
		if stored > seed {
			seed = stored
		}
	}
	if current := n.last.Load(); current > seed {
		seed = current
	}
	n.store = store
	n.key = key
	n.last.Store(seed)
	n.persisted.Store(seed)
	return nil
}

func (n *nonces) next() uint64 {
	now := uint64(n.now().UnixMilli())
	for {
		prev := n.last.Load()
		candidate := now
		if prev >= candidate {
			candidate = prev + 1
		}
		if n.last.CompareAndSwap(prev, candidate) {
			n.persist(candidate)
			return candidate
		}
	}
}

func (n *nonces) persist(nonce uint64) {
	if n.store == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if nonce <= n.persisted.Load() {
		return
	}
	if err := n.store.Set(context.Background(), n.key, strconv.FormatUint(nonce, 10)); err != nil {
		if n.log != nil && n.warned.CompareAndSwap(false, true) {
			n.log.Warn("nonce persistence failed", zap.String("key", n.key), zap.Error(err))
		}
		return
	}
	n.persisted.Store(nonce)
	n.warned.Store(false)
}
