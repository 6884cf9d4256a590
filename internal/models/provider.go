// VitalSync - Wearable Health Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitalsync

package models

import "time"

// Provider identifies a third-party wearable or health data platform.
type Provider string

const (
	ProviderFitbit      Provider = "fitbit"
	ProviderOura        Provider = "oura"
	ProviderDexcom      Provider = "dexcom"
	ProviderWithings    Provider = "withings"
	ProviderGarmin      Provider = "garmin"
	ProviderAppleHealth Provider = "apple_health"
)

// KnownProviders lists every provider the service can schedule and normalize.
func KnownProviders() []Provider {
	return []Provider{
		ProviderFitbit,
		ProviderOura,
		ProviderDexcom,
		ProviderWithings,
		ProviderGarmin,
		ProviderAppleHealth,
	}
}

// Valid reports whether p is one of KnownProviders.
func (p Provider) Valid() bool {
	for _, known := range KnownProviders() {
		if p == known {
			return true
		}
	}
	return false
}

// AccountStatus is the lifecycle state of a user's connection to a provider.
type AccountStatus string

const (
	AccountStatusActive   AccountStatus = "active"
	AccountStatusInactive AccountStatus = "inactive"
	// AccountStatusRevoked means the provider rejected the stored credentials.
	// Revoked accounts are never scheduled until reconnected.
	AccountStatusRevoked AccountStatus = "revoked"
)

// ProviderAccount is a user's connection to one provider. Credentials are
// owned by the OAuth collaborator and never pass through this service.
type ProviderAccount struct {
	UserID     string        `json:"user_id"`
	Provider   Provider      `json:"provider"`
	Status     AccountStatus `json:"status"`
	LastSyncAt *time.Time    `json:"last_sync_at,omitempty"`
}
