// Copyright 2025 StoreForge
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the platform service configuration from the
// environment exactly once, at startup. Components receive explicit
// values; nothing reads the environment after Load returns.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"
)

// Config is the full service configuration.
type Config struct {
	// ListenAddr is the ops HTTP listen address.
	ListenAddr string

	// PlatformDatabaseDSN points at the central database holding tenant
	// connection descriptors.
	PlatformDatabaseDSN string

	// CredentialKey is the 32-byte AES key sealing tenant credentials.
	CredentialKey []byte

	// ManagementAPIURL and ManagementAPIToken configure the remote
	// management channel for tenants without a direct connection.
	ManagementAPIURL   string
	ManagementAPIToken string

	// PlatformHost serves platform-hosted storefront paths (sitemaps).
	PlatformHost string

	SchemaTimeout time.Duration
	SeedTimeout   time.Duration

	ShutdownTimeout time.Duration
}

// Load reads configuration from the environment. The credential key is
// required; everything else has a development default.
func Load() (*Config, error) {
	keyHex := os.Getenv("CREDENTIAL_KEY")
	if keyHex == "" {
		return nil, fmt.Errorf("CREDENTIAL_KEY is required")
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("CREDENTIAL_KEY must be hex-encoded: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("CREDENTIAL_KEY must decode to 32 bytes, got %d", len(key))
	}

	schemaTimeout, err := getDuration("SCHEMA_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	seedTimeout, err := getDuration("SEED_TIMEOUT", 3*time.Minute)
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := getDuration("SHUTDOWN_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}

	return &Config{
		ListenAddr:          ":" + getEnv("PORT", "8080"),
		PlatformDatabaseDSN: getEnv("PLATFORM_DATABASE_URL", "postgres://localhost:5432/storeforge?sslmode=disable"),
		CredentialKey:       key,
		ManagementAPIURL:    os.Getenv("MANAGEMENT_API_URL"),
		ManagementAPIToken:  os.Getenv("MANAGEMENT_API_TOKEN"),
		PlatformHost:        getEnv("PLATFORM_HOST", "shops.storeforge.dev"),
		SchemaTimeout:       schemaTimeout,
		SeedTimeout:         seedTimeout,
		ShutdownTimeout:     shutdownTimeout,
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
