// VitalSync - Wearable Health Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitalsync

// Package events publishes sync job outcomes over Watermill.
//
// The default transport is an in-process GoChannel. Building with
// -tags=nats adds a NATS transport, optionally backed by an embedded
// server for single-instance deployments.
package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/vitalsync/internal/config"
	"github.com/tomtom215/vitalsync/internal/logging"
	"github.com/tomtom215/vitalsync/internal/metrics"
	"github.com/tomtom215/vitalsync/internal/models"
)

// DefaultTopicPrefix is used when the config leaves the prefix empty.
const DefaultTopicPrefix = "vitalsync"

// ErrPublisherClosed is returned by Publish after Close.
var ErrPublisherClosed = errors.New("publisher is closed")

// SyncOutcome is the payload of a sync completed or failed event.
type SyncOutcome struct {
	EventID        string           `json:"event_id"`
	JobID          string           `json:"job_id"`
	UserID         string           `json:"user_id"`
	Provider       models.Provider  `json:"provider"`
	SyncType       models.SyncType  `json:"sync_type"`
	Status         models.JobStatus `json:"status"`
	RetryCount     int              `json:"retry_count"`
	MetricsSynced  int              `json:"metrics_synced"`
	MetricsDropped int              `json:"metrics_dropped"`
	DurationMS     int64            `json:"duration_ms"`
	Error          string           `json:"error,omitempty"`
	OccurredAt     time.Time        `json:"occurred_at"`
}

// Topics names the outcome topics under a prefix.
type Topics struct {
	Completed string
	Failed    string
}

// TopicsFor returns the topics for prefix, or DefaultTopicPrefix when empty.
func TopicsFor(prefix string) Topics {
	prefix = strings.TrimSuffix(prefix, ".")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{
		Completed: prefix + ".sync.completed",
		Failed:    prefix + ".sync.failed",
	}
}

// Publisher sends sync outcomes to a Watermill publisher through a circuit
// breaker. It implements queue.EventPublisher.
type Publisher struct {
	publisher message.Publisher
	topics    Topics
	breaker   *gobreaker.CircuitBreaker[any]
	now       func() time.Time

	mu     sync.RWMutex
	closed bool
}

// NewPublisher wraps pub. The returned Publisher owns pub and closes it.
func NewPublisher(pub message.Publisher, topicPrefix string) *Publisher {
	return &Publisher{
		publisher: pub,
		topics:    TopicsFor(topicPrefix),
		breaker:   newPublishBreaker("events-publisher"),
		now:       time.Now,
	}
}

// Topics returns the topics this publisher writes to.
func (p *Publisher) Topics() Topics {
	return p.topics
}

// PublishSyncOutcome publishes a finished job to the completed or failed topic.
func (p *Publisher) PublishSyncOutcome(ctx context.Context, job *models.SyncJob) error {
	if job == nil {
		return nil
	}
	topic := p.topics.Completed
	if job.Status != models.JobStatusCompleted {
		topic = p.topics.Failed
	}

	event := SyncOutcome{
		EventID:    uuid.NewString(),
		JobID:      job.ID,
		UserID:     job.UserID,
		Provider:   job.Provider,
		SyncType:   job.SyncType,
		Status:     job.Status,
		RetryCount: job.RetryCount,
		Error:      job.ErrorMessage,
		OccurredAt: p.now().UTC(),
	}
	if job.CompletedAt != nil {
		event.OccurredAt = job.CompletedAt.UTC()
	}
	if job.Result != nil {
		event.MetricsSynced = job.Result.MetricsSynced
		event.MetricsDropped = job.Result.MetricsDropped
		event.DurationMS = job.Result.DurationMS
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("serialize sync outcome: %w", err)
	}

	msg := message.NewMessage(event.EventID, data)
	msg.SetContext(ctx)
	msg.Metadata.Set("user_id", job.UserID)
	msg.Metadata.Set("provider", string(job.Provider))
	msg.Metadata.Set("status", string(job.Status))
	if id := logging.CorrelationIDFromContext(ctx); id != "" {
		msg.Metadata.Set("correlation_id", id)
	}

	err = p.Publish(topic, msg)
	metrics.RecordEventPublish(topic, err)
	return err
}

// Publish sends msg to topic with circuit breaker protection.
func (p *Publisher) Publish(topic string, msg *message.Message) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}

	_, err := p.breaker.Execute(func() (any, error) {
		return nil, p.publisher.Publish(topic, msg)
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Close closes the underlying publisher. It is safe to call more than once.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.publisher.Close()
}

func newPublishBreaker(name string) *gobreaker.CircuitBreaker[any] {
	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 10 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Event publisher circuit breaker state changed")
		},
	})
}

// NewGoChannel returns an in-process pub/sub. Subscribers only receive
// messages published after they subscribe.
func NewGoChannel(logger watermill.LoggerAdapter) *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 256,
	}, logger)
}

// Transport is an opened event backend.
type Transport struct {
	Publisher *Publisher

	// Subscriber is set for backends that can be consumed in-process.
	Subscriber message.Subscriber

	shutdown func(ctx context.Context) error
}

// Close closes the publisher and stops any embedded server.
func (t *Transport) Close(ctx context.Context) error {
	var errs []error
	if t.Publisher != nil {
		if err := t.Publisher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if t.shutdown != nil {
		if err := t.shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Open creates the transport named by cfg.Backend.
func Open(cfg config.EventsConfig) (*Transport, error) {
	logger := logging.NewWatermillAdapter(logging.WithComponent("events"))

	switch cfg.Backend {
	case "", "gochannel":
		ch := NewGoChannel(logger)
		return &Transport{
			Publisher:  NewPublisher(ch, cfg.TopicPrefix),
			Subscriber: ch,
		}, nil
	case "nats":
		return openNATS(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown events backend %q", cfg.Backend)
	}
}
