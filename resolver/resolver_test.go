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
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storeforge/platform/adapters/base"
	"storeforge/platform/credstore"
)

// fakeAdapter satisfies base.Adapter and records probe and close calls.
type fakeAdapter struct {
	kind     base.Kind
	probes   atomic.Int64
	closed   atomic.Bool
	probeOK  bool
	probeErr error
}

func (a *fakeAdapter) Kind() base.Kind                  { return a.kind }
func (a *fakeAdapter) Table(name string) *base.QueryBuilder { return base.NewQuery(a, name) }

func (a *fakeAdapter) RunQuery(ctx context.Context, spec *base.QuerySpec) ([]base.Row, error) {
	return nil, nil
}

func (a *fakeAdapter) CountQuery(ctx context.Context, spec *base.QuerySpec) (int, error) {
	return 0, nil
}

func (a *fakeAdapter) Insert(ctx context.Context, table string, rows []base.Row) ([]base.Row, error) {
	return rows, nil
}

func (a *fakeAdapter) Update(ctx context.Context, table string, patch base.Row, filters ...base.Filter) ([]base.Row, error) {
	return nil, nil
}

func (a *fakeAdapter) Delete(ctx context.Context, table string, filters ...base.Filter) (bool, error) {
	return false, nil
}

func (a *fakeAdapter) ExecRaw(ctx context.Context, statement string, params ...interface{}) ([]base.Row, error) {
	return nil, nil
}

func (a *fakeAdapter) TestConnection(ctx context.Context) (bool, error) {
	a.probes.Add(1)
	return a.probeOK, a.probeErr
}

func (a *fakeAdapter) Close() error {
	a.closed.Store(true)
	return nil
}

// plainCipher stores credentials unencrypted for tests.
type plainCipher struct{}

func (plainCipher) Encrypt(p []byte) ([]byte, error) { return p, nil }
func (plainCipher) Decrypt(c []byte) ([]byte, error) { return c, nil }

// tripwireCipher fails the test if decryption is ever attempted.
type tripwireCipher struct{ t *testing.T }

func (c tripwireCipher) Encrypt(p []byte) ([]byte, error) { return p, nil }
func (c tripwireCipher) Decrypt(b []byte) ([]byte, error) {
	c.t.Fatal("credentials were decrypted for an inactive registration")
	return nil, nil
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func registerStore(t *testing.T, store credstore.Store, storeID string, kind base.Kind, active bool) {
	t.Helper()
	sealed, err := credstore.EncryptCredentials(plainCipher{}, &credstore.Credentials{
		Host: "db.internal", Port: 5432, Database: "store", Username: "app", Password: "pw",
	})
	require.NoError(t, err)
	require.NoError(t, store.SaveDescriptor(context.Background(), &credstore.Descriptor{
		StoreID:              storeID,
		Backend:              kind,
		EncryptedCredentials: sealed,
		Active:               active,
	}))
}

func TestResolveNotConfigured(t *testing.T) {
	r := New(Options{Store: credstore.NewMemoryStore(), Cipher: plainCipher{}, Logger: quietLogger()})

	_, err := r.Resolve(context.Background(), "ghost")
	var nc *NotConfiguredError
	require.ErrorAs(t, err, &nc)
	assert.Equal(t, "ghost", nc.StoreID)
	assert.True(t, IsNotConfigured(err))
}

func TestResolveInactiveRefusedBeforeDecrypt(t *testing.T) {
	store := credstore.NewMemoryStore()
	registerStore(t, store, "store-1", base.KindPostgres, false)

	r := New(Options{Store: store, Cipher: tripwireCipher{t: t}, Logger: quietLogger()})

	_, err := r.Resolve(context.Background(), "store-1")
	var inactive *InactiveError
	require.ErrorAs(t, err, &inactive)
}

func TestResolveUnsupportedKind(t *testing.T) {
	store := credstore.NewMemoryStore()
	registerStore(t, store, "store-1", base.Kind("oracle"), true)

	r := New(Options{Store: store, Cipher: plainCipher{}, Logger: quietLogger()})

	_, err := r.Resolve(context.Background(), "store-1")
	var cfg *ConfigurationError
	require.ErrorAs(t, err, &cfg)
}

func TestResolveCachesAdapter(t *testing.T) {
	store := credstore.NewMemoryStore()
	registerStore(t, store, "store-1", base.KindPostgres, true)

	adapter := &fakeAdapter{kind: base.KindPostgres, probeOK: true}
	var constructions atomic.Int64
	factory := func(cfg *base.Config) (base.Adapter, error) {
		constructions.Add(1)
		return adapter, nil
	}

	r := New(Options{Store: store, Cipher: plainCipher{}, Factory: factory, Logger: quietLogger()})

	first, err := r.Resolve(context.Background(), "store-1")
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), "store-1")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int64(1), constructions.Load())
	assert.Equal(t, int64(1), adapter.probes.Load())

	stats := r.GetStats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, r.Count())
}

func TestResolveBypassCacheProbesEveryTime(t *testing.T) {
	store := credstore.NewMemoryStore()
	registerStore(t, store, "store-1", base.KindMySQL, true)

	var constructions atomic.Int64
	factory := func(cfg *base.Config) (base.Adapter, error) {
		constructions.Add(1)
		return &fakeAdapter{kind: base.KindMySQL, probeOK: true}, nil
	}

	r := New(Options{Store: store, Cipher: plainCipher{}, Factory: factory, Logger: quietLogger()})

	a1, err := r.ResolveBypassCache(context.Background(), "store-1")
	require.NoError(t, err)
	a2, err := r.ResolveBypassCache(context.Background(), "store-1")
	require.NoError(t, err)

	assert.NotSame(t, a1, a2)
	assert.Equal(t, int64(2), constructions.Load())
	assert.Equal(t, 0, r.Count())
}

func TestResolveProbeFailureNotCached(t *testing.T) {
	store := credstore.NewMemoryStore()
	registerStore(t, store, "store-1", base.KindPostgres, true)

	var constructions atomic.Int64
	failing := &fakeAdapter{kind: base.KindPostgres, probeOK: false, probeErr: errors.New("refused")}
	working := &fakeAdapter{kind: base.KindPostgres, probeOK: true}
	factory := func(cfg *base.Config) (base.Adapter, error) {
		if constructions.Add(1) == 1 {
			return failing, nil
		}
		return working, nil
	}

	r := New(Options{Store: store, Cipher: plainCipher{}, Factory: factory, Logger: quietLogger()})

	_, err := r.Resolve(context.Background(), "store-1")
	var conn *ConnectionError
	require.ErrorAs(t, err, &conn)
	assert.True(t, IsConnectionError(err))
	assert.True(t, failing.closed.Load())
	assert.Equal(t, 0, r.Count())

	// Next resolve retries construction instead of replaying the failure.
	got, err := r.Resolve(context.Background(), "store-1")
	require.NoError(t, err)
	assert.Same(t, base.Adapter(working), got)
	assert.Equal(t, int64(2), constructions.Load())
}

func TestResolveConcurrentSingleConstruction(t *testing.T) {
	store := credstore.NewMemoryStore()
	registerStore(t, store, "store-1", base.KindPostgres, true)

	adapter := &fakeAdapter{kind: base.KindPostgres, probeOK: true}
	var constructions atomic.Int64
	factory := func(cfg *base.Config) (base.Adapter, error) {
		constructions.Add(1)
		return adapter, nil
	}

	r := New(Options{Store: store, Cipher: plainCipher{}, Factory: factory, Logger: quietLogger()})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := r.Resolve(context.Background(), "store-1")
			assert.NoError(t, err)
			assert.Same(t, base.Adapter(adapter), got)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), constructions.Load())
	assert.Equal(t, int64(1), adapter.probes.Load())
}

func TestClearCacheClosesAdapter(t *testing.T) {
	store := credstore.NewMemoryStore()
	registerStore(t, store, "store-1", base.KindPostgres, true)

	adapter := &fakeAdapter{kind: base.KindPostgres, probeOK: true}
	factory := func(cfg *base.Config) (base.Adapter, error) { return adapter, nil }

	r := New(Options{Store: store, Cipher: plainCipher{}, Factory: factory, Logger: quietLogger()})

	_, err := r.Resolve(context.Background(), "store-1")
	require.NoError(t, err)

	r.ClearCache("store-1")
	assert.True(t, adapter.closed.Load())
	assert.Equal(t, 0, r.Count())

	// Clearing an empty cache is a no-op.
	r.ClearCache("store-1")
}

func TestClearAllClosesEveryAdapter(t *testing.T) {
	store := credstore.NewMemoryStore()
	registerStore(t, store, "store-1", base.KindPostgres, true)
	registerStore(t, store, "store-2", base.KindPostgres, true)

	adapters := map[string]*fakeAdapter{}
	var mu sync.Mutex
	factory := func(cfg *base.Config) (base.Adapter, error) {
		a := &fakeAdapter{kind: base.KindPostgres, probeOK: true}
		mu.Lock()
		adapters[cfg.StoreID] = a
		mu.Unlock()
		return a, nil
	}

	r := New(Options{Store: store, Cipher: plainCipher{}, Factory: factory, Logger: quietLogger()})

	_, err := r.Resolve(context.Background(), "store-1")
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), "store-2")
	require.NoError(t, err)

	r.ClearAll()
	assert.Equal(t, 0, r.Count())
	for id, a := range adapters {
		assert.True(t, a.closed.Load(), "adapter for %s not closed", id)
	}
}

func TestResolveMarksVerification(t *testing.T) {
	store := credstore.NewMemoryStore()
	registerStore(t, store, "store-1", base.KindPostgres, true)

	factory := func(cfg *base.Config) (base.Adapter, error) {
		return &fakeAdapter{kind: base.KindPostgres, probeOK: true}, nil
	}

	var buf bytes.Buffer
	r := New(Options{Store: store, Cipher: plainCipher{}, Factory: factory, Logger: log.New(&buf, "", 0)})

	_, err := r.Resolve(context.Background(), "store-1")
	require.NoError(t, err)

	d, err := store.GetDescriptor(context.Background(), "store-1")
	require.NoError(t, err)
	assert.Equal(t, "ok", d.VerificationStatus)
	assert.False(t, d.LastVerifiedAt.IsZero())
}
