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

package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresCredentialKey(t *testing.T) {
	t.Setenv("CREDENTIAL_KEY", "")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsBadKey(t *testing.T) {
	t.Setenv("CREDENTIAL_KEY", "not hex")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("CREDENTIAL_KEY", "deadbeef")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "32 bytes")
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CREDENTIAL_KEY", strings.Repeat("ab", 32))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Len(t, cfg.CredentialKey, 32)
	assert.Equal(t, 30*time.Second, cfg.SchemaTimeout)
	assert.Equal(t, 3*time.Minute, cfg.SeedTimeout)
	assert.Equal(t, "shops.storeforge.dev", cfg.PlatformHost)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CREDENTIAL_KEY", strings.Repeat("ab", 32))
	t.Setenv("PORT", "9090")
	t.Setenv("SCHEMA_TIMEOUT", "45s")
	t.Setenv("MANAGEMENT_API_URL", "https://mgmt.example.com")
	t.Setenv("MANAGEMENT_API_TOKEN", "tok")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, 45*time.Second, cfg.SchemaTimeout)
	assert.Equal(t, "https://mgmt.example.com", cfg.ManagementAPIURL)
	assert.Equal(t, "tok", cfg.ManagementAPIToken)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("CREDENTIAL_KEY", strings.Repeat("ab", 32))
	t.Setenv("SEED_TIMEOUT", "soon")
	_, err := Load()
	assert.Error(t, err)
}
