package state

import (
	"fmt"

	"order-probe-bot/internal/config"
	"order-probe-bot/internal/state/badger"
	"order-probe-bot/internal/state/sqlite"
)

// Open returns the store selected by cfg.Backend.
func Open(cfg config.StateConfig) (Store, error) {
	switch cfg.Backend {
	case config.BackendSQLite, "":
		return sqlite.New(cfg.SQLitePath)
	case config.BackendBadger:
		return badger.New(cfg.BadgerPath)
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.Backend)
	}
}
