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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"storeforge/platform/adapters/base"
)

// Channel executes SQL against a tenant database. Provisioning runs
// identically over a live adapter or a remote management API; both
// channels must leave the database in the same end state.
type Channel interface {
	Name() string
	Exec(ctx context.Context, script string, timeout time.Duration) ([]base.Row, error)
}

// AdapterChannel executes through a live adapter connection.
type AdapterChannel struct {
	adapter base.Adapter
}

// NewAdapterChannel wraps an adapter as an execution channel.
func NewAdapterChannel(a base.Adapter) *AdapterChannel {
	return &AdapterChannel{adapter: a}
}

func (c *AdapterChannel) Name() string { return "adapter:" + string(c.adapter.Kind()) }

func (c *AdapterChannel) Exec(ctx context.Context, script string, timeout time.Duration) ([]base.Row, error) {
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.adapter.ExecRaw(execCtx, script)
}

// ManagementConfig holds remote management endpoint settings.
type ManagementConfig struct {
	BaseURL string
	Token   string

	// MaxPayloadBytes caps a single batched request. Seed batches run to
	// tens of thousands of characters; the default tolerates hundreds of KB.
	MaxPayloadBytes int

	HTTPClient *http.Client
	Logger     *log.Logger
}

// DefaultMaxPayloadBytes is the default batched-request size cap.
const DefaultMaxPayloadBytes = 512 * 1024

// ManagementChannel submits each SQL batch as one request to the remote
// management endpoint, authenticated with a bearer token. Used when the
// tenant database is not directly reachable from this process.
type ManagementChannel struct {
	baseURL    string
	token      string
	maxPayload int
	client     *http.Client
	logger     *log.Logger
}

// NewManagementChannel creates a management-API channel.
func NewManagementChannel(cfg ManagementConfig) (*ManagementChannel, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("management channel requires a base URL")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("management channel requires an access token")
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	maxPayload := cfg.MaxPayloadBytes
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayloadBytes
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[MGMT_CHANNEL] ", log.LstdFlags)
	}

	return &ManagementChannel{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		maxPayload: maxPayload,
		client:     client,
		logger:     logger,
	}, nil
}

func (c *ManagementChannel) Name() string { return "management" }

func (c *ManagementChannel) Exec(ctx context.Context, script string, timeout time.Duration) ([]base.Row, error) {
	if len(script) > c.maxPayload {
		return nil, fmt.Errorf("batch of %d bytes exceeds the %d byte request cap", len(script), c.maxPayload)
	}

	body, err := json.Marshal(map[string]string{"query": script})
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(execCtx, http.MethodPost, c.baseURL+"/v1/database/query", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build management request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("management request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read management response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("management API returned %d: %s", resp.StatusCode, snippet(raw))
	}

	c.logger.Printf("Batch of %d bytes executed in %v", len(script), time.Since(start).Round(time.Millisecond))

	// The endpoint answers a JSON array of result rows; statements that
	// return nothing answer an empty array or empty body.
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var rows []base.Row
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, nil
	}
	return rows, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
