// VitalSync - Wearable Health Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitalsync

//go:build !nats

package events

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/tomtom215/vitalsync/internal/config"
)

// openNATS is unavailable without the nats build tag.
func openNATS(_ config.EventsConfig, _ watermill.LoggerAdapter) (*Transport, error) {
	return nil, fmt.Errorf("NATS events backend not available: build with -tags=nats")
}
