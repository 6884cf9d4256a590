// VitalSync - Wearable Health Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitalsync

package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorClassification(t *testing.T) {
	t.Parallel()

	revoked := fmt.Errorf("sync fitbit: %w", NewPermanentError("refresh rejected", ErrCredentialsRevoked))
	if !IsPermanentError(revoked) {
		t.Error("expected wrapped PermanentError to be permanent")
	}
	if !errors.Is(revoked, ErrCredentialsRevoked) {
		t.Error("expected errors.Is to reach ErrCredentialsRevoked")
	}
	if Category(revoked) != ErrorCategoryCredentials {
		t.Errorf("category = %v", Category(revoked))
	}

	transient := NewRetryableError("fetch failed", errors.New("connection reset by peer"))
	if IsPermanentError(transient) || !IsRetryableError(transient) {
		t.Error("retryable error misclassified")
	}
	if transient.Error() != "fetch failed: connection reset by peer" {
		t.Errorf("Error() = %q", transient.Error())
	}
}

func TestCategorize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		msg  string
		want ErrorCategory
	}{
		{"gateway returned 429", ErrorCategoryRateLimit},
		{"request timed out", ErrorCategoryTimeout},
		{"dial tcp: connection refused", ErrorCategoryConnection},
		{"malformed payload", ErrorCategoryValidation},
		{"HTTP 401 Unauthorized", ErrorCategoryCredentials},
		{"something odd", ErrorCategoryUnknown},
	}
	for _, tt := range tests {
		if got := Category(errors.New(tt.msg)); got != tt.want {
			t.Errorf("Category(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}

	if Category(context.DeadlineExceeded) != ErrorCategoryTimeout {
		t.Error("deadline exceeded should be a timeout")
	}
	if NewPermanentError("account gone", nil).Category != ErrorCategoryValidation {
		t.Error("uncategorised permanent errors default to validation")
	}
}
