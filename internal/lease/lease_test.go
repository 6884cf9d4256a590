// VitalSync - Wearable Health Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitalsync

package lease

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
)

func openTestBadger(t *testing.T) *BadgerLocker {
	t.Helper()
	l, err := OpenBadger(BadgerConfig{InMemory: true})
	if err != nil {
		t.Fatalf("OpenBadger() error = %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func lockers(t *testing.T) map[string]struct {
	locker  Locker
	setTime func(time.Time)
} {
	t.Helper()

	mem := NewMemoryLocker()
	bdg := openTestBadger(t)

	return map[string]struct {
		locker  Locker
		setTime func(time.Time)
	}{
		"memory": {mem, func(now time.Time) { mem.now = func() time.Time { return now } }},
		"badger": {bdg, func(now time.Time) { bdg.now = func() time.Time { return now } }},
	}
}

func TestLocker_ExclusiveUntilExpiry(t *testing.T) {
	for name, tc := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Now()
			tc.setTime(base)

			ok, err := tc.locker.Acquire(ctx, "tick", "node-a", time.Minute)
			if err != nil || !ok {
				t.Fatalf("node-a Acquire() = %v, %v", ok, err)
			}

			ok, err = tc.locker.Acquire(ctx, "tick", "node-b", time.Minute)
			if err != nil || ok {
				t.Fatalf("node-b should not acquire active lease: %v, %v", ok, err)
			}

			ok, err = tc.locker.Acquire(ctx, "tick", "node-a", time.Minute)
			if err != nil || !ok {
				t.Fatalf("holder should be able to extend: %v, %v", ok, err)
			}

			tc.setTime(base.Add(2 * time.Minute))
			ok, err = tc.locker.Acquire(ctx, "tick", "node-b", time.Minute)
			if err != nil || !ok {
				t.Fatalf("node-b should acquire expired lease: %v, %v", ok, err)
			}
		})
	}
}

func TestLocker_Release(t *testing.T) {
	for name, tc := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			tc.setTime(time.Now())

			if ok, _ := tc.locker.Acquire(ctx, "tick", "node-a", time.Minute); !ok {
				t.Fatal("expected acquire")
			}
			if err := tc.locker.Release(ctx, "tick", "node-b"); err != nil {
				t.Fatalf("Release by non-holder error = %v", err)
			}
			if ok, _ := tc.locker.Acquire(ctx, "tick", "node-b", time.Minute); ok {
				t.Fatal("non-holder release must not drop the lease")
			}
			if err := tc.locker.Release(ctx, "tick", "node-a"); err != nil {
				t.Fatalf("Release() error = %v", err)
			}
			if ok, _ := tc.locker.Acquire(ctx, "tick", "node-b", time.Minute); !ok {
				t.Fatal("expected acquire after release")
			}
			if err := tc.locker.Release(ctx, "missing", "node-a"); err != nil {
				t.Fatalf("Release of missing lease error = %v", err)
			}
		})
	}
}

func TestBadgerLocker_ConcurrentAcquire(t *testing.T) {
	l := openTestBadger(t)
	ctx := context.Background()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			holder := "node-" + string(rune('a'+i))
			for {
				ok, err := l.Acquire(ctx, "tick", holder, time.Minute)
				if errors.Is(err, badger.ErrConflict) {
					continue
				}
				if err != nil {
					t.Errorf("Acquire() error = %v", err)
					return
				}
				if ok {
					wins.Add(1)
				}
				return
			}
		}(i)
	}
	wg.Wait()

	if got := wins.Load(); got != 1 {
		t.Errorf("expected exactly one winner, got %d", got)
	}
}

func TestBadgerLocker_Closed(t *testing.T) {
	l, err := OpenBadger(BadgerConfig{InMemory: true})
	if err != nil {
		t.Fatalf("OpenBadger() error = %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if _, err := l.Acquire(context.Background(), "tick", "a", time.Minute); !errors.Is(err, ErrClosed) {
		t.Errorf("Acquire after close error = %v, want ErrClosed", err)
	}
}

func TestBadgerLocker_ServeStopsOnCancel(t *testing.T) {
	l, err := OpenBadger(BadgerConfig{InMemory: true, GCInterval: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("OpenBadger() error = %v", err)
	}
	defer l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Serve(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
