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

package restql

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"storeforge/platform/adapters/base"
)

const (
	// DefaultTimeout is the default request timeout
	DefaultTimeout = 30 * time.Second
	// DefaultMaxResponseSize is the maximum response body size (10MB)
	DefaultMaxResponseSize = 10 * 1024 * 1024
	// DefaultMaxRetries is the default number of retry attempts for reads
	DefaultMaxRetries = 3
	// DefaultRetryDelay is the initial delay between retries
	DefaultRetryDelay = 100 * time.Millisecond
	// MaxRetryDelay is the maximum delay between retries
	MaxRetryDelay = 5 * time.Second

	// restPathPrefix is where the managed service exposes the row API.
	restPathPrefix = "/rest/v1/"
)

// Adapter implements base.Adapter for the REST-query managed backend. The
// service exposes tables over a row-oriented HTTP API; there is no channel
// for arbitrary statements, so ExecRaw always fails with UnsupportedError.
type Adapter struct {
	cfg             *base.Config
	client          *http.Client
	baseURL         string
	serviceKey      string
	logger          *log.Logger
	maxResponseSize int64
	maxRetries      int
	retryDelay      time.Duration
}

// New constructs a REST-query adapter from decrypted connection settings.
func New(cfg *base.Config) (*Adapter, error) {
	if cfg.BaseURL == "" || cfg.ServiceKey == "" {
		return nil, fmt.Errorf("restql adapter for %s: base URL and service key are required", cfg.StoreID)
	}

	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("restql adapter for %s: invalid base URL: %w", cfg.StoreID, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("restql adapter for %s: base URL must use http or https", cfg.StoreID)
	}

	timeout := DefaultTimeout
	if cfg.Timeout > 0 {
		timeout = cfg.Timeout
	}

	maxRetries := DefaultMaxRetries
	if val, ok := cfg.Options["max_retries"].(int); ok {
		maxRetries = val
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
		MaxIdleConns:    100,
		MaxConnsPerHost: 10,
		IdleConnTimeout: 90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &Adapter{
		cfg:             cfg,
		client:          &http.Client{Timeout: timeout, Transport: transport},
		baseURL:         strings.TrimSuffix(cfg.BaseURL, "/"),
		serviceKey:      cfg.ServiceKey,
		logger:          log.New(os.Stdout, "[RESTQL_ADAPTER] ", log.LstdFlags),
		maxResponseSize: DefaultMaxResponseSize,
		maxRetries:      maxRetries,
		retryDelay:      DefaultRetryDelay,
	}, nil
}

// Kind reports the backend kind.
func (a *Adapter) Kind() base.Kind {
	return base.KindRESTQL
}

// Table begins a lazy query against one table.
func (a *Adapter) Table(name string) *base.QueryBuilder {
	return base.NewQuery(a, name)
}

// RunQuery executes a built QuerySpec as a filtered GET.
func (a *Adapter) RunQuery(ctx context.Context, spec *base.QuerySpec) ([]base.Row, error) {
	reqURL, err := a.specURL(spec)
	if err != nil {
		return nil, base.NewQueryError(base.KindRESTQL, "Query", "", err.Error(), base.ClassOther, err)
	}

	rows, _, err := a.doRead(ctx, reqURL, nil)
	return rows, err
}

// CountQuery asks the service for an exact count via the Prefer header and
// reads it back from Content-Range.
func (a *Adapter) CountQuery(ctx context.Context, spec *base.QuerySpec) (int, error) {
	counted := *spec
	counted.CountOnly = false
	counted.Columns = []string{"*"}
	counted.Limit = 1

	reqURL, err := a.specURL(&counted)
	if err != nil {
		return 0, base.NewQueryError(base.KindRESTQL, "Count", "", err.Error(), base.ClassOther, err)
	}

	rows, resp, err := a.doRead(ctx, reqURL, map[string]string{"Prefer": "count=exact"})
	if err != nil {
		return 0, err
	}

	// Content-Range arrives as "0-0/17"; the part after the slash is the
	// exact total.
	if resp != nil {
		if cr := resp.Header.Get("Content-Range"); cr != "" {
			if idx := strings.LastIndex(cr, "/"); idx >= 0 {
				if n, convErr := strconv.Atoi(cr[idx+1:]); convErr == nil {
					return n, nil
				}
			}
		}
	}
	return len(rows), nil
}

// Insert creates rows and returns the created representations.
func (a *Adapter) Insert(ctx context.Context, table string, rows []base.Row) ([]base.Row, error) {
	if len(rows) == 0 {
		return nil, base.NewQueryError(base.KindRESTQL, "Insert", "", "no rows", base.ClassOther, nil)
	}

	created, err := a.doWrite(ctx, http.MethodPost, a.tableURL(table), rows, nil)
	if err != nil {
		return nil, err
	}
	a.logger.Printf("Inserted %d rows into %s", len(created), table)
	return created, nil
}

// Update patches matching rows and returns the new representations.
func (a *Adapter) Update(ctx context.Context, table string, patch base.Row, filters ...base.Filter) ([]base.Row, error) {
	reqURL, err := a.filterURL(table, filters)
	if err != nil {
		return nil, base.NewQueryError(base.KindRESTQL, "Update", "", err.Error(), base.ClassOther, err)
	}
	return a.doWrite(ctx, http.MethodPatch, reqURL, patch, nil)
}

// Delete removes matching rows.
func (a *Adapter) Delete(ctx context.Context, table string, filters ...base.Filter) (bool, error) {
	reqURL, err := a.filterURL(table, filters)
	if err != nil {
		return false, base.NewQueryError(base.KindRESTQL, "Delete", "", err.Error(), base.ClassOther, err)
	}
	if _, err := a.doWrite(ctx, http.MethodDelete, reqURL, nil, nil); err != nil {
		return false, err
	}
	return true, nil
}

// ExecRaw is rejected: the row API has no arbitrary-statement channel.
// Provisioning this backend kind goes through the management API instead.
func (a *Adapter) ExecRaw(ctx context.Context, statement string, params ...interface{}) ([]base.Row, error) {
	return nil, &base.UnsupportedError{Backend: base.KindRESTQL, Operation: "ExecRaw"}
}

// TestConnection probes the well-known table. A 404 with the service's
// missing-relation code still counts as reachable.
func (a *Adapter) TestConnection(ctx context.Context) (bool, error) {
	spec := &base.QuerySpec{Table: base.ProbeTable, Limit: 1}
	_, err := a.RunQuery(ctx, spec)
	if err == nil {
		return true, nil
	}
	if base.IsMissingTable(err) {
		return true, nil
	}
	return false, err
}

// Close drops idle connections. Safe to call more than once.
func (a *Adapter) Close() error {
	if a.client != nil {
		if transport, ok := a.client.Transport.(*http.Transport); ok {
			transport.CloseIdleConnections()
		}
	}
	return nil
}

// tableURL returns the row-API endpoint for a table.
func (a *Adapter) tableURL(table string) string {
	return a.baseURL + restPathPrefix + url.PathEscape(table)
}

// filterURL builds a table endpoint with filter predicates encoded as
// query parameters.
func (a *Adapter) filterURL(table string, filters []base.Filter) (string, error) {
	params := url.Values{}
	if err := encodeFilters(params, filters); err != nil {
		return "", err
	}
	u := a.tableURL(table)
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u, nil
}

// specURL encodes a full QuerySpec into the row-API query form.
func (a *Adapter) specURL(spec *base.QuerySpec) (string, error) {
	params := url.Values{}

	if len(spec.Columns) > 0 {
		params.Set("select", strings.Join(spec.Columns, ","))
	}
	if err := encodeFilters(params, spec.Filters); err != nil {
		return "", err
	}
	for _, o := range spec.Order {
		dir := "asc"
		if o.Desc {
			dir = "desc"
		}
		params.Add("order", o.Column+"."+dir)
	}
	if spec.Limit > 0 {
		params.Set("limit", strconv.Itoa(spec.Limit))
	}
	if spec.Offset > 0 {
		params.Set("offset", strconv.Itoa(spec.Offset))
	}

	u := a.tableURL(spec.Table)
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u, nil
}

// encodeFilters maps the generic operators onto the row API's
// column=op.value form.
func encodeFilters(params url.Values, filters []base.Filter) error {
	for _, f := range filters {
		switch f.Op {
		case base.OpEq:
			params.Add(f.Column, "eq."+formatValue(f.Value))
		case base.OpNeq:
			params.Add(f.Column, "neq."+formatValue(f.Value))
		case base.OpGt:
			params.Add(f.Column, "gt."+formatValue(f.Value))
		case base.OpGte:
			params.Add(f.Column, "gte."+formatValue(f.Value))
		case base.OpLt:
			params.Add(f.Column, "lt."+formatValue(f.Value))
		case base.OpLte:
			params.Add(f.Column, "lte."+formatValue(f.Value))
		case base.OpLike:
			// The row API uses * as its wildcard.
			params.Add(f.Column, "like."+strings.ReplaceAll(formatValue(f.Value), "%", "*"))
		case base.OpIn:
			values, ok := f.Value.([]interface{})
			if !ok || len(values) == 0 {
				return fmt.Errorf("filter on %s: IN requires a non-empty value list", f.Column)
			}
			parts := make([]string, len(values))
			for i, v := range values {
				parts[i] = formatValue(v)
			}
			params.Add(f.Column, "in.("+strings.Join(parts, ",")+")")
		case base.OpIsNull:
			params.Add(f.Column, "is.null")
		default:
			return fmt.Errorf("filter on %s: unsupported operator %q", f.Column, f.Op)
		}
	}
	return nil
}

func formatValue(v interface{}) string {
	return fmt.Sprintf("%v", v)
}

// doRead performs a GET with retry on retryable statuses and returns the
// decoded rows plus the final response (for header inspection).
func (a *Adapter) doRead(ctx context.Context, reqURL string, headers map[string]string) ([]base.Row, *http.Response, error) {
	var lastErr error
	var resp *http.Response

	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		if attempt > 0 {
			delay := a.backoff(attempt)
			select {
			case <-ctx.Done():
				return nil, nil, base.NewQueryError(base.KindRESTQL, "Query", "", "context cancelled during retry", base.ClassConnection, ctx.Err())
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, nil, base.NewQueryError(base.KindRESTQL, "Query", "", "failed to create request", base.ClassOther, err)
		}
		a.applyHeaders(req, headers)

		resp, lastErr = a.client.Do(req)
		if lastErr == nil && !retryableStatus(resp.StatusCode) {
			break
		}
		if resp != nil {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
			_ = resp.Body.Close()
		}
		if lastErr == nil {
			lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)
		}
	}

	if lastErr != nil {
		return nil, nil, base.NewQueryError(base.KindRESTQL, "Query", "", lastErr.Error(), base.ClassConnection, lastErr)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := a.readBody(resp)
	if err != nil {
		return nil, nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, a.apiError("Query", resp.StatusCode, body)
	}

	rows, err := decodeRows(body)
	if err != nil {
		return nil, nil, base.NewQueryError(base.KindRESTQL, "Query", "", "failed to decode response", base.ClassOther, err)
	}
	return rows, resp, nil
}

// doWrite performs a mutating request, asking the service to return the
// affected representations.
func (a *Adapter) doWrite(ctx context.Context, method, reqURL string, payload interface{}, headers map[string]string) ([]base.Row, error) {
	var bodyReader io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, base.NewQueryError(base.KindRESTQL, method, "", "failed to marshal body", base.ClassOther, err)
		}
		bodyReader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return nil, base.NewQueryError(base.KindRESTQL, method, "", "failed to create request", base.ClassOther, err)
	}
	a.applyHeaders(req, headers)
	req.Header.Set("Prefer", "return=representation")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, base.NewQueryError(base.KindRESTQL, method, "", err.Error(), base.ClassConnection, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := a.readBody(resp)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, a.apiError(method, resp.StatusCode, body)
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return []base.Row{}, nil
	}
	rows, err := decodeRows(body)
	if err != nil {
		return nil, base.NewQueryError(base.KindRESTQL, method, "", "failed to decode response", base.ClassOther, err)
	}
	return rows, nil
}

// readBody reads a response with the size ceiling applied.
func (a *Adapter) readBody(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, a.maxResponseSize+1))
	if err != nil {
		return nil, base.NewQueryError(base.KindRESTQL, "Read", "", "failed to read response", base.ClassConnection, err)
	}
	if int64(len(body)) > a.maxResponseSize {
		return nil, base.NewQueryError(base.KindRESTQL, "Read", "",
			fmt.Sprintf("response size exceeds limit of %d bytes", a.maxResponseSize), base.ClassOther, nil)
	}
	return body, nil
}

// apiErrorBody is the service's structured error payload. The code field
// carries either a forwarded SQLSTATE or a service-prefixed code.
type apiErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
}

// apiError classifies a non-2xx response into the uniform QueryError.
func (a *Adapter) apiError(operation string, status int, body []byte) error {
	var parsed apiErrorBody
	_ = json.Unmarshal(body, &parsed)

	message := parsed.Message
	if message == "" {
		message = strings.TrimSpace(string(body))
		if len(message) > 200 {
			message = message[:200] + "..."
		}
		if message == "" {
			message = fmt.Sprintf("HTTP %d", status)
		}
	}

	class := base.ClassOther
	switch {
	case parsed.Code == "42P01" || parsed.Code == "PGRST205":
		class = base.ClassMissingTable
	case status == http.StatusNotFound && parsed.Code == "":
		// An unrouted table path: the relation is not there yet.
		class = base.ClassMissingTable
	case parsed.Code == "23505":
		class = base.ClassDuplicate
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		class = base.ClassConnection
	}

	return base.NewQueryError(base.KindRESTQL, operation, parsed.Code, message, class, nil)
}

// decodeRows parses the row API's JSON (array of objects, or one object).
func decodeRows(body []byte) ([]base.Row, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return []base.Row{}, nil
	}

	var list []base.Row
	if err := json.Unmarshal(trimmed, &list); err == nil {
		return list, nil
	}

	var single base.Row
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return nil, err
	}
	return []base.Row{single}, nil
}

// applyHeaders sets the service auth headers plus any extras.
func (a *Adapter) applyHeaders(req *http.Request, extra map[string]string) {
	req.Header.Set("apikey", a.serviceKey)
	req.Header.Set("Authorization", "Bearer "+a.serviceKey)
	req.Header.Set("Accept", "application/json")
	for k, v := range extra {
		req.Header.Set(k, v)
	}
}

// backoff calculates exponential backoff delay.
func (a *Adapter) backoff(attempt int) time.Duration {
	delay := a.retryDelay * time.Duration(1<<uint(attempt-1))
	if delay > MaxRetryDelay {
		delay = MaxRetryDelay
	}
	return delay
}

// retryableStatus returns true if the status code indicates a transient
// failure worth retrying.
func retryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
