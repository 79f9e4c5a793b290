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
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"storeforge/platform/adapters/base"
	"storeforge/platform/config"
	"storeforge/platform/credstore"
	"storeforge/platform/health"
	"storeforge/platform/provision"
	"storeforge/platform/resolver"
	"storeforge/platform/shared/logger"
)

// Run wires the platform together and serves the ops surface until
// SIGINT/SIGTERM. It is the single place that reads configuration and
// owns component lifecycles.
func Run() error {
	lg := logger.New("storeforged")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cipher, err := credstore.NewAESCipher(cfg.CredentialKey)
	if err != nil {
		return fmt.Errorf("initialize credential cipher: %w", err)
	}

	descriptors, err := credstore.NewPostgresStore(ctx, cfg.PlatformDatabaseDSN)
	if err != nil {
		return fmt.Errorf("connect platform database: %w", err)
	}
	defer func() { _ = descriptors.Close() }()

	res := resolver.New(resolver.Options{
		Store:  descriptors,
		Cipher: cipher,
	})
	defer res.CloseAll()

	checker := health.New(health.Options{
		Descriptors: descriptors,
		Adapters:    res,
	})

	// One Provisioner for the process lifetime: its per-store run
	// registry is what serializes concurrent requests for one store.
	provisioner := provision.New(provision.Options{
		PlatformHost:  cfg.PlatformHost,
		SchemaTimeout: cfg.SchemaTimeout,
		SeedTimeout:   cfg.SeedTimeout,
		Logger:        lg,
	})

	provisionFn := buildProvisionFunc(cfg, res, provisioner)

	server := NewServer(Options{
		Checker:   checker,
		Cache:     res,
		Provision: provisionFn,
		Logger:    lg,
	})

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		lg.Info("", "", "Ops server listening", map[string]interface{}{"addr": cfg.ListenAddr})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("ops server failed: %w", err)
	case <-ctx.Done():
	}

	lg.Info("", "", "Shutting down", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		lg.ErrorWithCause("", "", "Ops server shutdown failed", err, nil)
	}
	return nil
}

// buildProvisionFunc picks the execution channel per store: a live
// adapter connection when the backend accepts raw SQL, the remote
// management API otherwise. The Provisioner is shared so its per-store
// serialization spans concurrent requests.
func buildProvisionFunc(cfg *config.Config, res *resolver.Resolver, p *provision.Provisioner) ProvisionFunc {
	return func(ctx context.Context, req provision.Request) *provision.Result {
		channel, cleanup, err := channelForStore(ctx, cfg, res, req.StoreID)
		if err != nil {
			return &provision.Result{
				StoreID: req.StoreID,
				Errors:  []provision.StepError{{Step: provision.StepMigrations, Err: err}},
			}
		}
		defer cleanup()

		result := p.Provision(ctx, channel, req)
		// A successful run changes the database; cached handles from
		// before provisioning must not outlive it.
		if result.Success && !result.AlreadyProvisioned {
			res.ClearCache(req.StoreID)
		}
		return result
	}
}

func channelForStore(ctx context.Context, cfg *config.Config, res *resolver.Resolver, storeID string) (provision.Channel, func(), error) {
	adapter, err := res.ResolveBypassCache(ctx, storeID)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve store database: %w", err)
	}

	// The REST-query backend forbids raw SQL; its DDL must travel over
	// the management API.
	if adapter.Kind() == base.KindRESTQL {
		_ = adapter.Close()
		if cfg.ManagementAPIURL == "" || cfg.ManagementAPIToken == "" {
			return nil, nil, fmt.Errorf("store %s requires the management API, which is not configured", storeID)
		}
		ch, err := provision.NewManagementChannel(provision.ManagementConfig{
			BaseURL: cfg.ManagementAPIURL,
			Token:   cfg.ManagementAPIToken,
		})
		if err != nil {
			return nil, nil, err
		}
		return ch, func() {}, nil
	}

	return provision.NewAdapterChannel(adapter), func() { _ = adapter.Close() }, nil
}

// Fail prints a startup error and exits nonzero. Split from Run so main
// stays a one-liner.
func Fail(err error) {
	fmt.Fprintf(os.Stderr, "storeforged: %v\n", err)
	os.Exit(1)
}
