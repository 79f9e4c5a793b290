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

package resolver

import (
	"errors"
	"fmt"

	"storeforge/platform/adapters/base"
)

// NotConfiguredError means the store has no database registration at all.
type NotConfiguredError struct {
	StoreID string
}

func (e *NotConfiguredError) Error() string {
	return fmt.Sprintf("store %s has no database configured", e.StoreID)
}

// InactiveError means a registration exists but has been deactivated.
// The resolver refuses inactive descriptors before touching credentials.
type InactiveError struct {
	StoreID string
}

func (e *InactiveError) Error() string {
	return fmt.Sprintf("database connection for store %s is inactive", e.StoreID)
}

// CredentialError means the stored credentials could not be decrypted or
// parsed. Usually a key rotation or corrupted registration.
type CredentialError struct {
	StoreID string
	Err     error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("credentials for store %s unusable: %v", e.StoreID, e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }

// ConfigurationError means the decrypted credentials are incomplete or the
// registered backend kind is not supported.
type ConfigurationError struct {
	StoreID string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid database configuration for store %s: %s", e.StoreID, e.Reason)
}

// ConnectionError means the adapter was built but the backend did not
// answer the connectivity probe.
type ConnectionError struct {
	StoreID string
	Kind    base.Kind
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("cannot reach %s database for store %s: %v", e.Kind, e.StoreID, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// IsNotConfigured reports whether err means the store was never linked to
// a database.
func IsNotConfigured(err error) bool {
	var nc *NotConfiguredError
	return errors.As(err, &nc)
}

// IsConnectionError reports whether err came from a failed connectivity
// probe.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}
