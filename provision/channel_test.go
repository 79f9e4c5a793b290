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

package provision

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManagementChannel(t *testing.T, handler http.HandlerFunc) *ManagementChannel {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	ch, err := NewManagementChannel(ManagementConfig{
		BaseURL: srv.URL,
		Token:   "mgmt-token",
		Logger:  log.New(io.Discard, "", 0),
	})
	require.NoError(t, err)
	return ch
}

func TestManagementChannelSubmitsBatch(t *testing.T) {
	var gotAuth, gotPath, gotQuery string
	ch := newTestManagementChannel(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path

		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotQuery = body["query"]

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"n": 1}]`))
	})

	rows, err := ch.Exec(context.Background(), "SELECT COUNT(*) AS n FROM stores", 5*time.Second)
	require.NoError(t, err)

	assert.Equal(t, "Bearer mgmt-token", gotAuth)
	assert.Equal(t, "/v1/database/query", gotPath)
	assert.Equal(t, "SELECT COUNT(*) AS n FROM stores", gotQuery)
	require.Len(t, rows, 1)
	assert.Equal(t, float64(1), rows[0]["n"])
}

func TestManagementChannelEmptyResponse(t *testing.T) {
	ch := newTestManagementChannel(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rows, err := ch.Exec(context.Background(), "CREATE TABLE t (id INT)", 5*time.Second)
	require.NoError(t, err)
	assert.Nil(t, rows)
}

func TestManagementChannelErrorSurfacesBody(t *testing.T) {
	ch := newTestManagementChannel(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"relation \"stores\" does not exist"}`, http.StatusBadRequest)
	})

	_, err := ch.Exec(context.Background(), "SELECT 1 FROM stores", 5*time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "does not exist")
	assert.True(t, isMissingTableErr(err))
}

func TestManagementChannelPayloadCap(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	t.Cleanup(srv.Close)

	ch, err := NewManagementChannel(ManagementConfig{
		BaseURL:         srv.URL,
		Token:           "mgmt-token",
		MaxPayloadBytes: 64,
		Logger:          log.New(io.Discard, "", 0),
	})
	require.NoError(t, err)

	_, err = ch.Exec(context.Background(), strings.Repeat("x", 65), 5*time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request cap")
	assert.False(t, called, "oversized batch must never leave the process")
}

func TestManagementChannelRequiresConfig(t *testing.T) {
	_, err := NewManagementChannel(ManagementConfig{Token: "t"})
	assert.Error(t, err)

	_, err = NewManagementChannel(ManagementConfig{BaseURL: "https://api.example.com"})
	assert.Error(t, err)
}

func TestManagementChannelTimeout(t *testing.T) {
	ch := newTestManagementChannel(t, func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server starts its background read; without
		// it the client disconnect is never noticed and r.Context() never
		// cancels, deadlocking srv.Close in cleanup.
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	})

	_, err := ch.Exec(context.Background(), "SELECT 1", 50*time.Millisecond)
	assert.Error(t, err)
}
