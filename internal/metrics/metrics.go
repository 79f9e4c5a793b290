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

// Package metrics holds the Prometheus instruments shared across the
// platform. Collectors register on the default registry so promhttp
// serves them without extra wiring.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ResolveTotal counts resolutions by outcome (hit, miss, bypass, error).
	ResolveTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storeforge_resolver_resolutions_total",
		Help: "Store database resolutions by outcome",
	}, []string{"outcome"})

	// ResolveDuration observes end-to-end resolution latency.
	ResolveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "storeforge_resolver_resolution_seconds",
		Help:    "Store database resolution latency",
		Buckets: prometheus.DefBuckets,
	})

	// CachedAdapters tracks the number of live cached adapters.
	CachedAdapters = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storeforge_resolver_cached_adapters",
		Help: "Number of adapters currently cached",
	})

	// ProvisionTotal counts provisioning runs by result
	// (success, partial, failed, already_provisioned).
	ProvisionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storeforge_provision_runs_total",
		Help: "Provisioning runs by result",
	}, []string{"result"})

	// ProvisionStepErrors counts soft step failures by step name.
	ProvisionStepErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storeforge_provision_step_errors_total",
		Help: "Provisioning step failures by step",
	}, []string{"step"})

	// ProvisionDuration observes full provisioning latency.
	ProvisionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "storeforge_provision_seconds",
		Help:    "Provisioning run latency",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 240},
	})

	// HealthChecks counts health diagnoses by status.
	HealthChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storeforge_health_checks_total",
		Help: "Store health checks by resulting status",
	}, []string{"status"})
)
