package binance

import (
	"sync"

	"order-probe-bot/internal/market"
)

const maxBufferedDeltas = 1000

// depthSync bridges the REST depth snapshot with the diff stream. Deltas
// received before the snapshot are buffered; a delta that skips update ids
// marks the book unsynced and requests a new snapshot.
type depthSync struct {
	mu       sync.Mutex
	synced   bool
	lastSeq  int64
	buffer   []market.BookUpdate
	onResync func()
}

func newDepthSync(onResync func()) *depthSync {
	return &depthSync{onResync: onResync}
}

// Delta returns the deltas that may be applied now, in order.
func (d *depthSync) Delta(update market.BookUpdate) []market.BookUpdate {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.synced {
		d.bufferLocked(update)
		return nil
	}
	if update.LastSeq <= d.lastSeq {
		return nil
	}
	if update.FirstSeq > d.lastSeq+1 {
		d.resyncLocked()
		d.bufferLocked(update)
		return nil
	}
	d.lastSeq = update.LastSeq
	return []market.BookUpdate{update}
}

// Snapshot installs snapshot and returns the buffered deltas that bridge it.
func (d *depthSync) Snapshot(snapshot market.BookUpdate) []market.BookUpdate {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.synced = true
	d.lastSeq = snapshot.LastSeq
	pending := d.buffer
	d.buffer = nil
	var ready []market.BookUpdate
	for i, update := range pending {
		if update.LastSeq <= d.lastSeq {
			continue
		}
		if update.FirstSeq > d.lastSeq+1 {
			d.resyncLocked()
			d.buffer = append(d.buffer, pending[i:]...)
			return ready
		}
		d.lastSeq = update.LastSeq
		ready = append(ready, update)
	}
	return ready
}

// Reset drops sync state, e.g. after the stream reconnects.
func (d *depthSync) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.synced {
		d.resyncLocked()
	}
	d.buffer = nil
}

func (d *depthSync) Synced() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.synced
}

func (d *depthSync) resyncLocked() {
	d.synced = false
	if d.onResync != nil {
		d.onResync()
	}
}

func (d *depthSync) bufferLocked(update market.BookUpdate) {
	if len(d.buffer) >= maxBufferedDeltas {
		d.buffer = d.buffer[1:]
	}
	d.buffer = append(d.buffer, update)
}
