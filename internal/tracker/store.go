package tracker

import (
	"errors"

	"github.com/asteroid-belt/prepsync/internal/db"
	"github.com/asteroid-belt/prepsync/internal/log"
)

// OpenStore opens the persistent store at cfg.Path. When persistent storage
// is unavailable it falls back to an in-memory store and reports degraded.
func OpenStore(cfg db.Config, logger *log.Logger) (*db.DB, bool, error) {
	if logger == nil {
		logger = log.Default()
	}

	store, err := db.New(cfg)
	if err == nil {
		return store, false, nil
	}
	if !errors.Is(err, db.ErrStorageUnavailable) {
		return nil, false, err
	}

	logger.Warnf("%v; continuing in memory", err)
	mem, merr := db.NewMemory()
	if merr != nil {
		return nil, false, merr
	}
	return mem, true, nil
}
