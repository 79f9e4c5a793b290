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

package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storeforge/platform/health"
	"storeforge/platform/provision"
)

type stubChecker struct {
	report *health.Report
}

func (c *stubChecker) CheckHealth(ctx context.Context, storeID string) *health.Report {
	r := *c.report
	r.StoreID = storeID
	return &r
}

type stubCache struct {
	cleared []string
	all     bool
	count   int
}

func (c *stubCache) ClearCache(storeID string) { c.cleared = append(c.cleared, storeID) }
func (c *stubCache) ClearAll()                 { c.all = true }
func (c *stubCache) Count() int                { return c.count }

func newTestServer(checker HealthChecker, cache CacheControl, fn ProvisionFunc) *httptest.Server {
	s := NewServer(Options{Checker: checker, Cache: cache, Provision: fn})
	return httptest.NewServer(s.Handler())
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestHealthzReportsCacheSize(t *testing.T) {
	srv := newTestServer(&stubChecker{report: &health.Report{}}, &stubCache{count: 3}, nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(3), body["cached_adapters"])
}

func TestTenantHealthEndpoint(t *testing.T) {
	checker := &stubChecker{report: &health.Report{
		Status:             health.StatusPartial,
		MissingTables:      []string{"layouts"},
		RecommendedActions: []string{"re-run provisioning to create the missing tables"},
	}}
	srv := newTestServer(checker, &stubCache{}, nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/tenants/store-1/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	body := decodeBody(t, resp)
	assert.Equal(t, "store-1", body["store_id"])
	assert.Equal(t, "partial", body["status"])
}

func TestTenantHealthErrorStatusMapsTo500(t *testing.T) {
	checker := &stubChecker{report: &health.Report{Status: health.StatusError}}
	srv := newTestServer(checker, &stubCache{}, nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/tenants/store-1/health")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestProvisionEndpoint(t *testing.T) {
	var gotReq provision.Request
	fn := func(ctx context.Context, req provision.Request) *provision.Result {
		gotReq = req
		return &provision.Result{StoreID: req.StoreID, Success: true, TablesCreated: []string{"stores"}}
	}
	srv := newTestServer(&stubChecker{report: &health.Report{}}, &stubCache{}, fn)
	defer srv.Close()

	payload := `{"store_name":"Acme Store","admin_email":"owner@acme.test","theme_preset":"warm"}`
	resp, err := http.Post(srv.URL+"/tenants/store-1/provision", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "store-1", gotReq.StoreID)
	assert.Equal(t, "Acme Store", gotReq.StoreName)
	assert.Equal(t, "warm", gotReq.ThemePreset)
	assert.False(t, gotReq.Force)

	body := decodeBody(t, resp)
	assert.Equal(t, true, body["success"])
}

func TestReprovisionForcesRerun(t *testing.T) {
	var gotReq provision.Request
	fn := func(ctx context.Context, req provision.Request) *provision.Result {
		gotReq = req
		return &provision.Result{StoreID: req.StoreID, Success: true}
	}
	srv := newTestServer(&stubChecker{report: &health.Report{}}, &stubCache{}, fn)
	defer srv.Close()

	payload := `{"store_name":"Acme Store"}`
	resp, err := http.Post(srv.URL+"/tenants/store-1/reprovision", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, gotReq.Force)
}

func TestProvisionValidatesBody(t *testing.T) {
	srv := newTestServer(&stubChecker{report: &health.Report{}}, &stubCache{}, nil)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/tenants/store-1/provision", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestProvisionFailureMapsTo422(t *testing.T) {
	fn := func(ctx context.Context, req provision.Request) *provision.Result {
		return &provision.Result{
			StoreID: req.StoreID,
			Errors:  []provision.StepError{{Step: provision.StepMigrations, Err: errors.New("permission denied")}},
		}
	}
	srv := newTestServer(&stubChecker{report: &health.Report{}}, &stubCache{}, fn)
	defer srv.Close()

	payload := `{"store_name":"Acme Store"}`
	resp, err := http.Post(srv.URL+"/tenants/store-1/provision", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	body := decodeBody(t, resp)
	errs, ok := body["errors"].([]interface{})
	require.True(t, ok)
	require.Len(t, errs, 1)
	first := errs[0].(map[string]interface{})
	assert.Equal(t, "migrations", first["step"])
}

func TestCacheEndpoints(t *testing.T) {
	cache := &stubCache{count: 2}
	srv := newTestServer(&stubChecker{report: &health.Report{}}, cache, nil)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/cache/store-1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"store-1"}, cache.cleared)

	req, err = http.NewRequest(http.MethodDelete, srv.URL+"/cache", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, cache.all)
}
