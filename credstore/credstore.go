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

package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storeforge/platform/adapters/base"
)

// ErrNotFound is returned when a store has no connection descriptor.
var ErrNotFound = errors.New("credstore: descriptor not found")

// Descriptor is one store's database connection registration. At most one
// descriptor per store is active; disconnecting or migrating backends
// deactivates the old descriptor rather than deleting it.
type Descriptor struct {
	StoreID              string
	Backend              base.Kind
	EncryptedCredentials []byte
	Active               bool

	// Diagnostic only; never gates resolution.
	LastVerifiedAt     time.Time
	VerificationStatus string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store is the read/write interface over the central credential registry.
// The resolver consumes it read-only; onboarding and disconnect flows use
// the write side.
type Store interface {
	// GetDescriptor returns the store's descriptor, preferring the active
	// one. ErrNotFound when the store was never linked to a database.
	GetDescriptor(ctx context.Context, storeID string) (*Descriptor, error)

	// SaveDescriptor registers a new descriptor and deactivates any prior
	// active descriptor for the same store, preserving the at-most-one-
	// active invariant.
	SaveDescriptor(ctx context.Context, d *Descriptor) error

	// Deactivate marks the store's active descriptor inactive.
	Deactivate(ctx context.Context, storeID string) error

	// MarkVerified records the outcome of a connectivity probe. Purely
	// diagnostic.
	MarkVerified(ctx context.Context, storeID, status string) error
}

// Credentials is the decrypted connection payload. The REST-query backend
// uses BaseURL/ServiceKey; the direct-SQL backends use the host fields.
type Credentials struct {
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	Database string `json:"database,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	TLS      bool   `json:"tls,omitempty"`

	BaseURL    string `json:"base_url,omitempty"`
	ServiceKey string `json:"service_key,omitempty"`
}

// ToConfig shapes the credentials into an adapter config.
func (c *Credentials) ToConfig(storeID string, kind base.Kind) *base.Config {
	return &base.Config{
		StoreID:    storeID,
		Kind:       kind,
		Host:       c.Host,
		Port:       c.Port,
		Database:   c.Database,
		Username:   c.Username,
		Password:   c.Password,
		TLS:        c.TLS,
		BaseURL:    c.BaseURL,
		ServiceKey: c.ServiceKey,
	}
}

// DecryptCredentials opens a descriptor's ciphertext with the platform
// cipher and parses the payload. Decryption never partially succeeds: any
// failure returns an error and no credentials.
func DecryptCredentials(cipher Cipher, d *Descriptor) (*Credentials, error) {
	plaintext, err := cipher.Decrypt(d.EncryptedCredentials)
	if err != nil {
		return nil, fmt.Errorf("decrypt credentials for %s: %w", d.StoreID, err)
	}

	var creds Credentials
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		return nil, fmt.Errorf("parse credentials for %s: %w", d.StoreID, err)
	}
	return &creds, nil
}

// EncryptCredentials seals a credentials payload for storage.
func EncryptCredentials(cipher Cipher, creds *Credentials) ([]byte, error) {
	plaintext, err := json.Marshal(creds)
	if err != nil {
		return nil, fmt.Errorf("marshal credentials: %w", err)
	}
	return cipher.Encrypt(plaintext)
}
