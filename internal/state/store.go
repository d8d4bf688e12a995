package state

import "context"

// Store is a small string key/value store used for run bookkeeping and
// venue nonces. Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}
