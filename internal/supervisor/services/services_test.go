// VitalSync - Wearable Health Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitalsync

package services

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"
)

type mockHTTPServer struct {
	listenErr     error
	shutdownErr   error
	listenCalls   atomic.Int32
	shutdownCalls atomic.Int32
	done          chan struct{}
}

func newMockHTTPServer() *mockHTTPServer {
	return &mockHTTPServer{done: make(chan struct{})}
}

func (m *mockHTTPServer) ListenAndServe() error {
	m.listenCalls.Add(1)
	if m.listenErr != nil {
		return m.listenErr
	}
	<-m.done
	return http.ErrServerClosed
}

func (m *mockHTTPServer) Shutdown(context.Context) error {
	m.shutdownCalls.Add(1)
	close(m.done)
	return m.shutdownErr
}

func TestHTTPServerService_GracefulShutdown(t *testing.T) {
	srv := newMockHTTPServer()
	svc := NewHTTPServerService(srv, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
	if srv.shutdownCalls.Load() != 1 {
		t.Errorf("Shutdown called %d times, want 1", srv.shutdownCalls.Load())
	}
}

func TestHTTPServerService_ListenFailure(t *testing.T) {
	srv := newMockHTTPServer()
	srv.listenErr = errors.New("address in use")
	svc := NewHTTPServerService(srv, 0)

	err := svc.Serve(context.Background())
	if err == nil || !errors.Is(err, srv.listenErr) {
		t.Errorf("Serve() = %v, want wrapped listen error", err)
	}
	if svc.shutdownTimeout != 10*time.Second {
		t.Errorf("default shutdown timeout = %v", svc.shutdownTimeout)
	}
	if svc.String() != "http-server" {
		t.Errorf("String() = %q", svc.String())
	}
}

type mockScheduler struct {
	startErr error
	starts   atomic.Int32
	stops    atomic.Int32
}

func (m *mockScheduler) Start(context.Context) error {
	m.starts.Add(1)
	return m.startErr
}

func (m *mockScheduler) Stop() error {
	m.stops.Add(1)
	return nil
}

func TestSchedulerService_Lifecycle(t *testing.T) {
	mgr := &mockScheduler{}
	svc := NewSchedulerService(mgr)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() = %v, want context.Canceled", err)
	}
	if mgr.starts.Load() != 1 || mgr.stops.Load() != 1 {
		t.Errorf("starts=%d stops=%d, want 1/1", mgr.starts.Load(), mgr.stops.Load())
	}
}

func TestSchedulerService_StartFailure(t *testing.T) {
	mgr := &mockScheduler{startErr: errors.New("already running")}
	svc := NewSchedulerService(mgr)

	err := svc.Serve(context.Background())
	if !errors.Is(err, mgr.startErr) {
		t.Errorf("Serve() = %v, want wrapped start error", err)
	}
	if mgr.stops.Load() != 0 {
		t.Error("Stop should not be called after a failed Start")
	}
}

type countingCheckpointer struct {
	calls atomic.Int32
	err   error
}

func (c *countingCheckpointer) Checkpoint(context.Context) error {
	c.calls.Add(1)
	return c.err
}

func TestCheckpointService_TicksAndFinalFlush(t *testing.T) {
	db := &countingCheckpointer{err: errors.New("busy")}
	svc := NewCheckpointService(db, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for db.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	before := db.calls.Load()
	if before < 2 {
		t.Fatalf("checkpoint called %d times, want >= 2", before)
	}

	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() = %v", err)
	}
	if db.calls.Load() <= before {
		t.Error("expected a final checkpoint on shutdown")
	}
}

func TestNewCheckpointService_DefaultInterval(t *testing.T) {
	svc := NewCheckpointService(&countingCheckpointer{}, 0)
	if svc.interval != 5*time.Minute {
		t.Errorf("interval = %v, want 5m", svc.interval)
	}
}
