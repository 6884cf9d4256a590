// VitalSync - Wearable Health Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitalsync

// Package lease provides named, time-limited locks used to keep queue runs
// from overlapping.
//
// A lease is held by a named holder until it expires or is released. The
// current holder may re-acquire to extend it. A holder that crashes simply
// lets the lease expire.
//
// Both lockers here are scoped to one process: MemoryLocker to its
// instance, BadgerLocker to the process holding the Badger directory lock.
// Excluding several service instances needs a Locker over a shared store.
package lease

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned after the locker has been closed.
var ErrClosed = errors.New("lease store closed")

// Locker acquires and releases leases.
type Locker interface {
	// Acquire returns (true, nil) when holder now owns the lease,
	// (false, nil) when another holder's lease is still active.
	Acquire(ctx context.Context, name, holder string, ttl time.Duration) (bool, error)

	// Release drops the lease if holder owns it. Releasing a lease held by
	// someone else, or one that no longer exists, is a no-op.
	Release(ctx context.Context, name, holder string) error
}

// record is the stored state of one lease.
type record struct {
	Holder     string    `json:"holder"`
	Expiry     time.Time `json:"expiry"`
	AcquiredAt time.Time `json:"acquired_at"`
}

func (r *record) activeAt(now time.Time) bool {
	return r != nil && now.Before(r.Expiry)
}

// MemoryLocker is an in-process Locker. It only excludes callers that
// share the same instance.
type MemoryLocker struct {
	mu     sync.Mutex
	leases map[string]record
	now    func() time.Time
}

// NewMemoryLocker creates an empty MemoryLocker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		leases: make(map[string]record),
		now:    time.Now,
	}
}

// Acquire implements Locker.
func (m *MemoryLocker) Acquire(_ context.Context, name, holder string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if cur, ok := m.leases[name]; ok && cur.activeAt(now) && cur.Holder != holder {
		return false, nil
	}
	m.leases[name] = record{Holder: holder, Expiry: now.Add(ttl), AcquiredAt: now}
	return true, nil
}

// Release implements Locker.
func (m *MemoryLocker) Release(_ context.Context, name, holder string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.leases[name]; ok && cur.Holder == holder {
		delete(m.leases, name)
	}
	return nil
}
