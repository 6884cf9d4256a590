// VitalSync - Wearable Health Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitalsync

package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/vitalsync/internal/models"
	"github.com/tomtom215/vitalsync/internal/queue"
)

// maxPayloadBytes caps a single provider payload.
const maxPayloadBytes = 32 << 20

// ErrPayloadTooLarge is wrapped in the PermanentError returned for a
// payload over the fetcher's limit. The payload is rejected, not truncated.
var ErrPayloadTooLarge = errors.New("provider payload too large")

// Fetcher returns a provider's raw payload for a user covering [since, now].
type Fetcher interface {
	Fetch(ctx context.Context, userID string, provider models.Provider, since time.Time) ([]byte, error)
}

// HTTPFetcher reads payloads from the provider gateway, which owns OAuth
// tokens and provider-specific API calls:
//
//	GET {baseURL}/v1/providers/{provider}/users/{user_id}/data?since=RFC3339
type HTTPFetcher struct {
	baseURL        string
	client         *http.Client
	maxPayload     int64
	maxRetries     int           // Maximum retries for rate limiting
	retryBaseDelay time.Duration // Base delay for exponential backoff
}

// NewHTTPFetcher creates a fetcher against baseURL.
func NewHTTPFetcher(baseURL string, timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPFetcher{
		baseURL:        strings.TrimRight(baseURL, "/"),
		client:         &http.Client{Timeout: timeout},
		maxPayload:     maxPayloadBytes,
		maxRetries:     3,
		retryBaseDelay: time.Second,
	}
}

// Fetch implements Fetcher. Credential and not-found responses and
// oversized payloads are returned as *queue.PermanentError, everything
// else as retryable.
func (f *HTTPFetcher) Fetch(ctx context.Context, userID string, provider models.Provider, since time.Time) ([]byte, error) {
	reqURL := fmt.Sprintf("%s/v1/providers/%s/users/%s/data?since=%s",
		f.baseURL,
		url.PathEscape(string(provider)),
		url.PathEscape(userID),
		url.QueryEscape(since.UTC().Format(time.RFC3339)))

	resp, err := f.doRequestWithRateLimit(ctx, reqURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxPayload+1))
		if err != nil {
			return nil, queue.NewRetryableError("read provider payload", err)
		}
		if int64(len(body)) > f.maxPayload {
			return nil, queue.NewPermanentError(fmt.Sprintf("%s payload exceeds %d bytes", provider, f.maxPayload), ErrPayloadTooLarge)
		}
		return body, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, queue.NewPermanentError(fmt.Sprintf("gateway returned %d for %s", resp.StatusCode, provider), queue.ErrCredentialsRevoked)
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, queue.NewPermanentError(fmt.Sprintf("provider account not found (HTTP %d)", resp.StatusCode), nil)
	case resp.StatusCode >= 500:
		return nil, queue.NewRetryableError(fmt.Sprintf("gateway returned %d: %s", resp.StatusCode, readBodyForError(resp.Body)), nil)
	default:
		return nil, queue.NewPermanentError(fmt.Sprintf("gateway rejected request with %d: %s", resp.StatusCode, readBodyForError(resp.Body)), nil)
	}
}

// doRequestWithRateLimit performs a GET, retrying HTTP 429 with
// exponential backoff or the server's Retry-After.
func (f *HTTPFetcher) doRequestWithRateLimit(ctx context.Context, reqURL string) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return nil, queue.NewRetryableError("fetch canceled", ctx.Err())
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
		if err != nil {
			return nil, queue.NewPermanentError("build gateway request", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := f.client.Do(req)
		if err != nil {
			return nil, queue.NewRetryableError("gateway request failed", err)
		}
		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}
		_ = resp.Body.Close()

		if attempt == f.maxRetries {
			return nil, queue.NewRetryableError(fmt.Sprintf("rate limit exceeded after %d retries (HTTP 429)", f.maxRetries), nil)
		}

		delay := f.retryBaseDelay * time.Duration(1<<uint(attempt))
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs >= 0 {
			delay = time.Duration(secs) * time.Second
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, queue.NewRetryableError("fetch canceled", ctx.Err())
		}
	}
}

func readBodyForError(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(b))
}
