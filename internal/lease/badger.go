// VitalSync - Wearable Health Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitalsync

package lease

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/vitalsync/internal/logging"
)

const keyPrefix = "lease:"

// DefaultGCInterval is how often Serve runs value log garbage collection.
const DefaultGCInterval = 10 * time.Minute

// BadgerConfig configures a BadgerLocker.
type BadgerConfig struct {
	Path       string
	InMemory   bool
	GCInterval time.Duration
}

// BadgerLocker persists leases in a local BadgerDB directory. Badger locks
// the directory to a single process, so this is a restart-safe guard for
// one instance: a lease left by a crashed run outlives the crash and keeps
// a restarted process with another holder ID out until its TTL passes.
// Entries carry a Badger TTL equal to the lease, so abandoned leases
// disappear without cleanup.
type BadgerLocker struct {
	db         *badger.DB
	gcInterval time.Duration
	logger     zerolog.Logger
	now        func() time.Time

	mu     sync.RWMutex
	closed bool
}

// OpenBadger opens (or creates) a lease store.
func OpenBadger(cfg BadgerConfig) (*BadgerLocker, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	interval := cfg.GCInterval
	if interval <= 0 {
		interval = DefaultGCInterval
	}

	return &BadgerLocker{
		db:         db,
		gcInterval: interval,
		logger:     logging.WithComponent("lease"),
		now:        time.Now,
	}, nil
}

// Acquire implements Locker.
func (b *BadgerLocker) Acquire(_ context.Context, name, holder string, ttl time.Duration) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return false, ErrClosed
	}

	now := b.now()
	key := []byte(keyPrefix + name)
	var acquired bool

	err := b.db.Update(func(txn *badger.Txn) error {
		cur, err := getRecord(txn, key)
		if err != nil {
			return err
		}

		if cur.activeAt(now) && cur.Holder != holder {
			b.logger.Trace().
				Str("lease", name).
				Str("lease_holder", cur.Holder).
				Time("lease_expiry", cur.Expiry).
				Msg("Lease held by another holder")
			return nil
		}

		next := record{Holder: holder, Expiry: now.Add(ttl), AcquiredAt: now}
		if cur.activeAt(now) {
			next.AcquiredAt = cur.AcquiredAt
		}
		data, err := json.Marshal(&next)
		if err != nil {
			return fmt.Errorf("marshal lease: %w", err)
		}
		if err := txn.SetEntry(badger.NewEntry(key, data).WithTTL(ttl)); err != nil {
			return fmt.Errorf("set lease: %w", err)
		}
		acquired = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if acquired {
		b.logger.Debug().
			Str("lease", name).
			Str("lease_holder", holder).
			Dur("ttl", ttl).
			Msg("Acquired lease")
	}
	return acquired, nil
}

// Release implements Locker.
func (b *BadgerLocker) Release(_ context.Context, name, holder string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	key := []byte(keyPrefix + name)
	return b.db.Update(func(txn *badger.Txn) error {
		cur, err := getRecord(txn, key)
		if err != nil {
			return err
		}
		if cur == nil || cur.Holder != holder {
			return nil
		}
		if err := txn.Delete(key); err != nil {
			return fmt.Errorf("delete lease: %w", err)
		}
		return nil
	})
}

// getRecord returns nil, nil when the key does not exist.
func getRecord(txn *badger.Txn, key []byte) (*record, error) {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get lease: %w", err)
	}
	var r record
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &r)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal lease: %w", err)
	}
	return &r, nil
}

// Serve runs periodic value log garbage collection until ctx is canceled.
// It satisfies suture.Service.
func (b *BadgerLocker) Serve(ctx context.Context) error {
	ticker := time.NewTicker(b.gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			b.runGC()
		}
	}
}

func (b *BadgerLocker) runGC() {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	err := b.db.RunValueLogGC(0.5)
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		b.logger.Warn().Err(err).Msg("Lease store GC failed")
	}
}

// String returns the service name for supervisor logs.
func (b *BadgerLocker) String() string {
	return "lease-store"
}

// Close closes the underlying database. It is safe to call more than once.
func (b *BadgerLocker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.db.Close()
}

var (
	_ Locker = (*BadgerLocker)(nil)
	_ Locker = (*MemoryLocker)(nil)
)
