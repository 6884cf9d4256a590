// VitalSync - Wearable Health Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitalsync

package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
)

// errMockFailure is returned by MockService while failures remain.
var errMockFailure = errors.New("mock service failure")

// MockService is a configurable suture.Service for tests.
type MockService struct {
	name       string
	started    atomic.Int32
	stopped    atomic.Int32
	failsLeft  atomic.Int32
	panicsLeft atomic.Int32
}

// NewMockService creates a service that runs until canceled.
func NewMockService(name string) *MockService {
	return &MockService{name: name}
}

// FailTimes makes the next n runs return an error immediately.
func (m *MockService) FailTimes(n int32) *MockService {
	m.failsLeft.Store(n)
	return m
}

// PanicTimes makes the next n runs panic.
func (m *MockService) PanicTimes(n int32) *MockService {
	m.panicsLeft.Store(n)
	return m
}

// Serve implements suture.Service.
func (m *MockService) Serve(ctx context.Context) error {
	m.started.Add(1)
	defer m.stopped.Add(1)

	if m.panicsLeft.Load() > 0 {
		m.panicsLeft.Add(-1)
		panic("mock service panic")
	}
	if m.failsLeft.Load() > 0 {
		m.failsLeft.Add(-1)
		return errMockFailure
	}

	<-ctx.Done()
	return ctx.Err()
}

// StartCount is the number of times Serve was entered.
func (m *MockService) StartCount() int32 { return m.started.Load() }

// StopCount is the number of times Serve returned.
func (m *MockService) StopCount() int32 { return m.stopped.Load() }

func (m *MockService) String() string { return m.name }
