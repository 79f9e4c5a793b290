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

// Package health diagnoses one store's database end to end: registration,
// activation, connectivity, schema completeness and the store's own
// bootstrap row. CheckHealth always returns a report; it never propagates
// an error, because the report is the error channel.
package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storeforge/platform/adapters/base"
	"storeforge/platform/credstore"
	"storeforge/platform/internal/metrics"
	"storeforge/platform/resolver"
	"storeforge/platform/shared/logger"
)

// Status is the diagnosed condition of a store's database.
type Status string

const (
	StatusNotFound           Status = "not_found"
	StatusNoDatabase         Status = "no_database"
	StatusDatabaseInactive   Status = "database_inactive"
	StatusConnectionFailed   Status = "connection_failed"
	StatusEmpty              Status = "empty"
	StatusPartial            Status = "partial"
	StatusMissingStoreRecord Status = "missing_store_record"
	StatusHealthy            Status = "healthy"
	StatusError              Status = "error"
)

// RequiredTables is the schema subset a store cannot operate without.
var RequiredTables = []string{
	"stores",
	"users",
	"products",
	"categories",
	"orders",
	"layouts",
	"seo_documents",
	"settings",
}

// recommendedActions maps each status to the fixed remediation guidance
// operational tooling consumes. This component never executes them.
var recommendedActions = map[Status][]string{
	StatusNotFound:           {"verify the store ID", "remove stale references to the store"},
	StatusNoDatabase:         {"link a database to the store", "run provisioning after linking"},
	StatusDatabaseInactive:   {"reactivate the store's database registration", "or remove the store if retired"},
	StatusConnectionFailed:   {"update the stored credentials", "check backend availability and network path"},
	StatusEmpty:              {"run provisioning"},
	StatusPartial:            {"re-run provisioning to create the missing tables"},
	StatusMissingStoreRecord: {"re-run provisioning to restore the store record"},
	StatusHealthy:            {},
	StatusError:              {"inspect platform logs", "retry the health check"},
}

// Report is the structured outcome of one health check.
type Report struct {
	StoreID            string    `json:"store_id"`
	Status             Status    `json:"status"`
	Detail             string    `json:"detail,omitempty"`
	MissingTables      []string  `json:"missing_tables,omitempty"`
	RecommendedActions []string  `json:"recommended_actions"`
	CheckedAt          time.Time `json:"checked_at"`
}

// AdapterSource supplies a fresh, uncached adapter. Health checks must
// observe the database as it is now, not as the cache remembers it.
type AdapterSource interface {
	ResolveBypassCache(ctx context.Context, storeID string) (base.Adapter, error)
}

// StoreLookup reports whether a store exists at the platform level at
// all, independent of any database registration. Optional.
type StoreLookup func(ctx context.Context, storeID string) (bool, error)

// Checker runs store database diagnostics.
type Checker struct {
	descriptors credstore.Store
	adapters    AdapterSource
	lookup      StoreLookup
	logger      *logger.Logger
}

// Options configures a Checker.
type Options struct {
	Descriptors credstore.Store
	Adapters    AdapterSource
	Lookup      StoreLookup
	Logger      *logger.Logger
}

// New creates a Checker.
func New(opts Options) *Checker {
	lg := opts.Logger
	if lg == nil {
		lg = logger.New("health")
	}
	return &Checker{
		descriptors: opts.Descriptors,
		adapters:    opts.Adapters,
		lookup:      opts.Lookup,
		logger:      lg,
	}
}

// CheckHealth diagnoses the store's database. It always returns a
// report; unexpected failures surface as StatusError.
func (c *Checker) CheckHealth(ctx context.Context, storeID string) (report *Report) {
	defer func() {
		if r := recover(); r != nil {
			report = c.finish(storeID, StatusError, fmt.Sprintf("health check panicked: %v", r), nil)
		}
	}()

	if c.lookup != nil {
		exists, err := c.lookup(ctx, storeID)
		if err != nil {
			return c.finish(storeID, StatusError, "store lookup failed: "+err.Error(), nil)
		}
		if !exists {
			return c.finish(storeID, StatusNotFound, "", nil)
		}
	}

	d, err := c.descriptors.GetDescriptor(ctx, storeID)
	if errors.Is(err, credstore.ErrNotFound) {
		return c.finish(storeID, StatusNoDatabase, "", nil)
	}
	if err != nil {
		return c.finish(storeID, StatusError, "descriptor lookup failed: "+err.Error(), nil)
	}

	if !d.Active {
		return c.finish(storeID, StatusDatabaseInactive, "", nil)
	}

	adapter, err := c.adapters.ResolveBypassCache(ctx, storeID)
	if err != nil {
		if resolver.IsConnectionError(err) {
			return c.finish(storeID, StatusConnectionFailed, err.Error(), nil)
		}
		var inactive *resolver.InactiveError
		if errors.As(err, &inactive) {
			return c.finish(storeID, StatusDatabaseInactive, "", nil)
		}
		if resolver.IsNotConfigured(err) {
			return c.finish(storeID, StatusNoDatabase, "", nil)
		}
		return c.finish(storeID, StatusError, "adapter construction failed: "+err.Error(), nil)
	}
	defer func() { _ = adapter.Close() }()

	missing, probeErr := c.probeTables(ctx, adapter)
	if probeErr != nil {
		if base.IsConnectionFailure(probeErr) {
			return c.finish(storeID, StatusConnectionFailed, probeErr.Error(), nil)
		}
		return c.finish(storeID, StatusError, "table probe failed: "+probeErr.Error(), nil)
	}
	switch {
	case len(missing) == len(RequiredTables):
		return c.finish(storeID, StatusEmpty, "", missing)
	case len(missing) > 0:
		return c.finish(storeID, StatusPartial, "", missing)
	}

	row, err := adapter.Table("stores").Where(base.Eq("id", storeID)).First(ctx)
	if err != nil {
		return c.finish(storeID, StatusError, "store record probe failed: "+err.Error(), nil)
	}
	if row == nil {
		return c.finish(storeID, StatusMissingStoreRecord, "", nil)
	}

	return c.finish(storeID, StatusHealthy, "", nil)
}

// probeTables checks each required table individually. Empty-but-present
// is fine; only a missing-table classification counts against the store.
// Any other probe failure aborts the walk: a table that cannot be probed
// must never pass as present.
func (c *Checker) probeTables(ctx context.Context, adapter base.Adapter) ([]string, error) {
	var missing []string
	for _, table := range RequiredTables {
		_, err := adapter.Table(table).Limit(1).Run(ctx)
		if err == nil {
			continue
		}
		if base.IsMissingTable(err) {
			missing = append(missing, table)
			continue
		}
		return nil, fmt.Errorf("probe %s: %w", table, err)
	}
	return missing, nil
}

func (c *Checker) finish(storeID string, status Status, detail string, missing []string) *Report {
	metrics.HealthChecks.WithLabelValues(string(status)).Inc()
	if status != StatusHealthy {
		c.logger.Warn(storeID, "", "Store database is not healthy", map[string]interface{}{
			"status": string(status),
			"detail": detail,
		})
	}
	return &Report{
		StoreID:            storeID,
		Status:             status,
		Detail:             detail,
		MissingTables:      missing,
		RecommendedActions: recommendedActions[status],
		CheckedAt:          time.Now().UTC(),
	}
}
