// Package badgerdb opens the embedded Badger key-value store shared by the
// document store and the frequency index when no external database is
// configured.
package badgerdb

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/config"
)

// maxConflictRetries bounds how often Update re-runs a transaction that lost
// an optimistic concurrency race.
const maxConflictRetries = 64

// DB wraps a Badger instance.
type DB struct {
	db     *badger.DB
	logger *slog.Logger
}

type slogAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*slogAdapter)(nil)

func (a *slogAdapter) Errorf(msg string, items ...any) {
	a.logger.Error(fmt.Sprintf(msg, items...))
}

func (a *slogAdapter) Warningf(msg string, items ...any) {
	a.logger.Warn(fmt.Sprintf(msg, items...))
}

func (a *slogAdapter) Infof(msg string, items ...any) {
	a.logger.Debug(fmt.Sprintf(msg, items...))
}

func (a *slogAdapter) Debugf(msg string, items ...any) {
	a.logger.Debug(fmt.Sprintf(msg, items...))
}

// Open opens the store described by cfg, creating the directory if needed.
func Open(cfg config.BadgerConfig) (*DB, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating badger dir %s: %w", cfg.Dir, err)
		}
		opts = badger.DefaultOptions(cfg.Dir)
	}
	logger := slog.Default().With("component", "badger")
	opts = opts.WithLogger(&slogAdapter{logger: logger})
	// Document text is already zstd-compressed by the codec package.
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger: %w", err)
	}
	return &DB{db: db, logger: logger}, nil
}

// OpenInMemory is a shorthand for tests and the standalone binary.
func OpenInMemory() (*DB, error) {
	return Open(config.BadgerConfig{InMemory: true})
}

// View runs fn in a read-only transaction.
func (d *DB) View(fn func(txn *badger.Txn) error) error {
	return d.db.View(fn)
}

// Update runs fn in a read-write transaction, re-running it when the commit
// reports a conflict with a concurrent writer.
func (d *DB) Update(fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = d.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		d.logger.Debug("transaction conflict, retrying", "attempt", attempt+1)
	}
	return fmt.Errorf("giving up after %d conflicting attempts: %w", maxConflictRetries, err)
}

// Ping reports whether the store is open.
func (d *DB) Ping() error {
	if d.db.IsClosed() {
		return errors.New("badger is closed")
	}
	return nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// IsNotFound reports whether err is Badger's missing-key error.
func IsNotFound(err error) bool {
	return errors.Is(err, badger.ErrKeyNotFound)
}
