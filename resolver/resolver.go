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
	"context"
	"errors"
	"log"
	"os"
	"sync"
	"time"

	"storeforge/platform/adapters/base"
	"storeforge/platform/credstore"
	"storeforge/platform/internal/metrics"
)

// Resolver routes each store to its own database. Resolution walks the
// credential registry, decrypts the connection payload, builds the
// backend adapter and probes it once; the resulting adapter is cached
// until explicitly invalidated. There is no TTL: registrations change
// through onboarding and disconnect flows, which invalidate explicitly.
type Resolver struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry

	store   credstore.Store
	cipher  credstore.Cipher
	factory AdapterFactory
	logger  *log.Logger

	stats Stats
}

// cacheEntry memoizes one store's adapter construction. Concurrent
// resolves for the same store share the entry, so the backend sees a
// single connection attempt. Failed constructions are evicted so the
// next resolve retries.
type cacheEntry struct {
	once    sync.Once
	adapter base.Adapter
	err     error
}

// Stats tracks resolver cache performance.
type Stats struct {
	mu               sync.Mutex
	Hits             int64
	Misses           int64
	Bypasses         int64
	Evictions        int64
	FactoryFailures  int64
	ConnectionErrors int64
	LastEviction     time.Time
}

// Options holds dependencies for creating a Resolver.
type Options struct {
	Store   credstore.Store
	Cipher  credstore.Cipher
	Factory AdapterFactory
	Logger  *log.Logger
}

// New creates a Resolver. Factory defaults to DefaultFactory.
func New(opts Options) *Resolver {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[STORE_RESOLVER] ", log.LstdFlags)
	}

	factory := opts.Factory
	if factory == nil {
		factory = DefaultFactory
	}

	return &Resolver{
		entries: make(map[string]*cacheEntry),
		store:   opts.Store,
		cipher:  opts.Cipher,
		factory: factory,
		logger:  logger,
	}
}

// Resolve returns the store's adapter, building and caching it on first
// use. Concurrent first resolves for the same store construct exactly one
// adapter; waiters share the outcome.
func (r *Resolver) Resolve(ctx context.Context, storeID string) (base.Adapter, error) {
	start := time.Now()

	r.mu.Lock()
	entry, cached := r.entries[storeID]
	if !cached {
		entry = &cacheEntry{}
		r.entries[storeID] = entry
	}
	r.mu.Unlock()

	entry.once.Do(func() {
		entry.adapter, entry.err = r.build(ctx, storeID)
	})

	if entry.err != nil {
		r.evictFailed(storeID, entry)
		metrics.ResolveTotal.WithLabelValues("error").Inc()
		return nil, entry.err
	}

	if cached {
		r.recordHit()
		metrics.ResolveTotal.WithLabelValues("hit").Inc()
	} else {
		r.recordMiss()
		metrics.ResolveTotal.WithLabelValues("miss").Inc()
		metrics.CachedAdapters.Inc()
	}
	metrics.ResolveDuration.Observe(time.Since(start).Seconds())

	return entry.adapter, nil
}

// ResolveBypassCache builds a fresh adapter without consulting or
// populating the cache. The caller owns the adapter and must Close it.
// Used by health checks and post-provisioning verification, which need a
// live probe rather than a possibly stale cached handle.
func (r *Resolver) ResolveBypassCache(ctx context.Context, storeID string) (base.Adapter, error) {
	r.stats.mu.Lock()
	r.stats.Bypasses++
	r.stats.mu.Unlock()
	metrics.ResolveTotal.WithLabelValues("bypass").Inc()

	return r.build(ctx, storeID)
}

// build runs the full resolution pipeline for one store.
func (r *Resolver) build(ctx context.Context, storeID string) (base.Adapter, error) {
	d, err := r.store.GetDescriptor(ctx, storeID)
	if errors.Is(err, credstore.ErrNotFound) {
		return nil, &NotConfiguredError{StoreID: storeID}
	}
	if err != nil {
		return nil, &CredentialError{StoreID: storeID, Err: err}
	}

	// Inactive registrations are refused before any decryption work.
	if !d.Active {
		return nil, &InactiveError{StoreID: storeID}
	}

	if !IsSupportedKind(d.Backend) {
		return nil, &ConfigurationError{StoreID: storeID, Reason: "unsupported backend kind: " + string(d.Backend)}
	}

	creds, err := credstore.DecryptCredentials(r.cipher, d)
	if err != nil {
		r.logger.Printf("Failed to decrypt credentials for store %s: %v", storeID, err)
		return nil, &CredentialError{StoreID: storeID, Err: err}
	}

	adapter, err := r.factory(creds.ToConfig(storeID, d.Backend))
	if err != nil {
		r.recordFactoryFailure()
		return nil, &ConfigurationError{StoreID: storeID, Reason: err.Error()}
	}

	ok, probeErr := adapter.TestConnection(ctx)
	if probeErr != nil || !ok {
		r.recordConnectionError()
		_ = adapter.Close()
		if probeErr == nil {
			probeErr = errors.New("connectivity probe failed")
		}
		r.logger.Printf("Connectivity probe failed for store %s (%s): %v", storeID, d.Backend, probeErr)
		r.markVerified(storeID, "unreachable")
		return nil, &ConnectionError{StoreID: storeID, Kind: d.Backend, Err: probeErr}
	}

	r.markVerified(storeID, "ok")
	r.logger.Printf("Resolved store %s to %s backend", storeID, d.Backend)
	return adapter, nil
}

// markVerified records the probe outcome. Diagnostic only, so failures
// are logged and swallowed.
func (r *Resolver) markVerified(storeID, status string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.store.MarkVerified(ctx, storeID, status); err != nil {
		r.logger.Printf("Warning: failed to record verification for store %s: %v", storeID, err)
	}
}

// evictFailed removes a failed construction so the next resolve retries.
func (r *Resolver) evictFailed(storeID string, failed *cacheEntry) {
	r.mu.Lock()
	if r.entries[storeID] == failed {
		delete(r.entries, storeID)
	}
	r.mu.Unlock()
}

// ClearCache closes and evicts the store's cached adapter. Safe to call
// when nothing is cached.
func (r *Resolver) ClearCache(storeID string) {
	r.mu.Lock()
	entry, exists := r.entries[storeID]
	if exists {
		delete(r.entries, storeID)
	}
	r.mu.Unlock()

	if !exists {
		return
	}

	// Close outside the lock; adapter construction may be in flight.
	entry.once.Do(func() {})
	if entry.adapter != nil {
		if err := entry.adapter.Close(); err != nil {
			r.logger.Printf("Warning: failed to close adapter for store %s: %v", storeID, err)
		}
		metrics.CachedAdapters.Dec()
	}

	r.recordEviction()
	r.logger.Printf("Evicted cached adapter for store %s", storeID)
}

// ClearAll closes and evicts every cached adapter.
func (r *Resolver) ClearAll() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*cacheEntry)
	r.mu.Unlock()

	for storeID, entry := range entries {
		entry.once.Do(func() {})
		if entry.adapter != nil {
			if err := entry.adapter.Close(); err != nil {
				r.logger.Printf("Warning: failed to close adapter for store %s: %v", storeID, err)
			}
			metrics.CachedAdapters.Dec()
		}
		r.recordEviction()
	}

	if len(entries) > 0 {
		r.logger.Printf("Evicted all %d cached adapters", len(entries))
	}
}

// CloseAll is ClearAll for graceful shutdown.
func (r *Resolver) CloseAll() {
	r.ClearAll()
}

// Count returns the number of cached adapters.
func (r *Resolver) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// GetStats returns a copy of cache performance statistics.
func (r *Resolver) GetStats() Stats {
	r.stats.mu.Lock()
	defer r.stats.mu.Unlock()

	return Stats{
		Hits:             r.stats.Hits,
		Misses:           r.stats.Misses,
		Bypasses:         r.stats.Bypasses,
		Evictions:        r.stats.Evictions,
		FactoryFailures:  r.stats.FactoryFailures,
		ConnectionErrors: r.stats.ConnectionErrors,
		LastEviction:     r.stats.LastEviction,
	}
}

func (r *Resolver) recordHit() {
	r.stats.mu.Lock()
	r.stats.Hits++
	r.stats.mu.Unlock()
}

func (r *Resolver) recordMiss() {
	r.stats.mu.Lock()
	r.stats.Misses++
	r.stats.mu.Unlock()
}

func (r *Resolver) recordEviction() {
	r.stats.mu.Lock()
	r.stats.Evictions++
	r.stats.LastEviction = time.Now()
	r.stats.mu.Unlock()
}

func (r *Resolver) recordFactoryFailure() {
	r.stats.mu.Lock()
	r.stats.FactoryFailures++
	r.stats.mu.Unlock()
}

func (r *Resolver) recordConnectionError() {
	r.stats.mu.Lock()
	r.stats.ConnectionErrors++
	r.stats.mu.Unlock()
}
