package state

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const RunSnapshotPrefix = "algo:run:"

const (
	RunStatusRunning     = "running"
	RunStatusInterrupted = "interrupted"
	RunStatusStopped     = "stopped"
)

// RunSnapshot is the persisted summary of one algorithm run.
type RunSnapshot struct {
	Exchange        string          `json:"exchange"`
	Pair            string          `json:"pair"`
	Symbol          string          `json:"symbol"`
	Status          string          `json:"status"`
	Reason          string          `json:"reason,omitempty"`
	StartingCapital decimal.Decimal `json:"starting_capital"`
	OrdersPlaced    int             `json:"orders_placed"`
	OrdersCancelled int             `json:"orders_cancelled"`
	LastOrderID     string          `json:"last_order_id,omitempty"`
	LastClientID    string          `json:"last_client_id,omitempty"`
	StartedAtMS     int64           `json:"started_at_ms"`
	UpdatedAtMS     int64           `json:"updated_at_ms"`
}

func RunSnapshotKey(exchange, pair string) string {
	return fmt.Sprintf("%s%s:%s", RunSnapshotPrefix, strings.ToLower(exchange), strings.ToLower(pair))
}

func LoadRunSnapshot(ctx context.Context, store Store, exchange, pair string) (RunSnapshot, bool, error) {
	if store == nil {
		return RunSnapshot{}, false, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	raw, ok, err := store.Get(ctx, RunSnapshotKey(exchange, pair))
	if err != nil {
		return RunSnapshot{}, false, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return RunSnapshot{}, false, nil
	}
	var snapshot RunSnapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return RunSnapshot{}, false, fmt.Errorf("decode run snapshot: %w", err)
	}
	return snapshot, true, nil
}

func SaveRunSnapshot(ctx context.Context, store Store, snapshot RunSnapshot) error {
	if store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return store.Set(ctx, RunSnapshotKey(snapshot.Exchange, snapshot.Pair), string(payload))
}

// ListRunSnapshots returns every stored run, skipping entries that fail to decode.
func ListRunSnapshots(ctx context.Context, store Store) ([]RunSnapshot, error) {
	if store == nil {
		return nil, nil
	}
	keys, err := store.Keys(ctx, RunSnapshotPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]RunSnapshot, 0, len(keys))
	for _, key := range keys {
		raw, ok, err := store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		var snapshot RunSnapshot
		if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
			continue
		}
		out = append(out, snapshot)
	}
	return out, nil
}
