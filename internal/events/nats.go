// VitalSync - Wearable Health Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitalsync

//go:build nats

package events

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/nats-io/nats-server/v2/server"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/vitalsync/internal/config"
)

// EmbeddedServer is an in-process NATS server. JetStream is off; outcome
// events are fire-and-forget.
type EmbeddedServer struct {
	server *server.Server
}

// StartEmbeddedServer starts a NATS server on a random local port.
func StartEmbeddedServer() (*EmbeddedServer, error) {
	ns, err := server.NewServer(&server.Options{
		ServerName: "vitalsync-events",
		Host:       "127.0.0.1",
		Port:       server.RANDOM_PORT,
		NoSigs:     true,
		MaxPayload: 1024 * 1024,
	})
	if err != nil {
		return nil, fmt.Errorf("create NATS server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(10 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("NATS server not ready within timeout")
	}
	return &EmbeddedServer{server: ns}, nil
}

// ClientURL returns the connection URL for clients.
func (s *EmbeddedServer) ClientURL() string {
	return s.server.ClientURL()
}

// Shutdown stops the server and waits for it to exit.
func (s *EmbeddedServer) Shutdown(ctx context.Context) error {
	s.server.Shutdown()
	done := make(chan struct{})
	go func() {
		s.server.WaitForShutdown()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func natsOptions(logger watermill.LoggerAdapter) []natsgo.Option {
	return []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}
}

func openNATS(cfg config.EventsConfig, logger watermill.LoggerAdapter) (*Transport, error) {
	url := cfg.NATSURL
	var embedded *EmbeddedServer
	if cfg.EmbeddedServer {
		var err error
		if embedded, err = StartEmbeddedServer(); err != nil {
			return nil, err
		}
		url = embedded.ClientURL()
	}
	if url == "" {
		url = natsgo.DefaultURL
	}

	opts := natsOptions(logger)
	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: opts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		if embedded != nil {
			_ = embedded.Shutdown(context.Background())
		}
		return nil, fmt.Errorf("create NATS publisher: %w", err)
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              url,
		NatsOptions:      opts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		SubscribersCount: 1,
		JetStream:        wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		_ = pub.Close()
		if embedded != nil {
			_ = embedded.Shutdown(context.Background())
		}
		return nil, fmt.Errorf("create NATS subscriber: %w", err)
	}

	t := &Transport{
		Publisher:  NewPublisher(pub, cfg.TopicPrefix),
		Subscriber: sub,
	}
	t.shutdown = func(ctx context.Context) error {
		err := sub.Close()
		if embedded != nil {
			if sErr := embedded.Shutdown(ctx); sErr != nil && err == nil {
				err = sErr
			}
		}
		return err
	}
	return t, nil
}
