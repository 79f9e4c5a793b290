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

// Package ops exposes the operational HTTP surface: service health,
// Prometheus metrics, per-store diagnostics, provisioning triggers and
// cache administration. It is a thin translation layer; all behavior
// lives in the packages it fronts.
package ops

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"storeforge/platform/health"
	"storeforge/platform/provision"
	"storeforge/platform/shared/logger"
)

// HealthChecker diagnoses one store's database.
type HealthChecker interface {
	CheckHealth(ctx context.Context, storeID string) *health.Report
}

// CacheControl administers the resolver's adapter cache.
type CacheControl interface {
	ClearCache(storeID string)
	ClearAll()
	Count() int
}

// ProvisionFunc runs provisioning for one store. The wiring layer picks
// the execution channel per store; this surface only forwards requests.
type ProvisionFunc func(ctx context.Context, req provision.Request) *provision.Result

// Server is the operational HTTP server.
type Server struct {
	router    *mux.Router
	checker   HealthChecker
	cache     CacheControl
	provision ProvisionFunc
	logger    *logger.Logger
}

// Options holds Server dependencies.
type Options struct {
	Checker   HealthChecker
	Cache     CacheControl
	Provision ProvisionFunc
	Logger    *logger.Logger
}

// NewServer creates the ops server and registers its routes.
func NewServer(opts Options) *Server {
	lg := opts.Logger
	if lg == nil {
		lg = logger.New("ops")
	}

	s := &Server{
		router:    mux.NewRouter(),
		checker:   opts.Checker,
		cache:     opts.Cache,
		provision: opts.Provision,
		logger:    lg,
	}

	s.router.HandleFunc("/healthz", s.handleHealthz).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	s.router.HandleFunc("/tenants/{id}/health", s.handleTenantHealth).Methods("GET")
	s.router.HandleFunc("/tenants/{id}/provision", s.handleProvision(false)).Methods("POST")
	s.router.HandleFunc("/tenants/{id}/reprovision", s.handleProvision(true)).Methods("POST")
	s.router.HandleFunc("/cache", s.handleClearAll).Methods("DELETE")
	s.router.HandleFunc("/cache/{id}", s.handleClearOne).Methods("DELETE")

	return s
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "ok",
		"cached_adapters": s.cache.Count(),
	})
}

func (s *Server) handleTenantHealth(w http.ResponseWriter, r *http.Request) {
	storeID := mux.Vars(r)["id"]
	requestID := requestID(r)

	report := s.checker.CheckHealth(r.Context(), storeID)

	s.logger.Info(storeID, requestID, "Health check served", map[string]interface{}{
		"status": string(report.Status),
	})

	code := http.StatusOK
	if report.Status == health.StatusError {
		code = http.StatusInternalServerError
	}
	w.Header().Set("X-Request-ID", requestID)
	s.writeJSON(w, code, report)
}

// provisionRequest is the JSON body for provisioning triggers.
type provisionRequest struct {
	StoreName     string                 `json:"store_name"`
	AdminEmail    string                 `json:"admin_email"`
	AdminName     string                 `json:"admin_name"`
	Currency      string                 `json:"currency"`
	Timezone      string                 `json:"timezone"`
	CustomDomain  string                 `json:"custom_domain"`
	ThemePreset   string                 `json:"theme_preset"`
	ThemeOverride map[string]interface{} `json:"theme_override"`
}

func (s *Server) handleProvision(force bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeID := mux.Vars(r)["id"]
		requestID := requestID(r)

		var body provisionRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if body.StoreName == "" {
			s.writeError(w, http.StatusBadRequest, "store_name is required")
			return
		}

		req := provision.Request{
			StoreID:       storeID,
			StoreName:     body.StoreName,
			AdminEmail:    body.AdminEmail,
			AdminName:     body.AdminName,
			Currency:      body.Currency,
			Timezone:      body.Timezone,
			CustomDomain:  body.CustomDomain,
			ThemePreset:   body.ThemePreset,
			ThemeOverride: body.ThemeOverride,
			Force:         force,
		}

		res := s.provision(r.Context(), req)

		s.logger.Info(storeID, requestID, "Provisioning run served", map[string]interface{}{
			"success":             res.Success,
			"already_provisioned": res.AlreadyProvisioned,
			"errors":              len(res.Errors),
		})

		code := http.StatusOK
		if !res.Success {
			code = http.StatusUnprocessableEntity
		}
		w.Header().Set("X-Request-ID", requestID)
		s.writeJSON(w, code, provisionResponse(res))
	}
}

// provisionResponse flattens a Result for the wire; step errors become
// strings so the caller never needs our error types.
func provisionResponse(res *provision.Result) map[string]interface{} {
	errs := make([]map[string]string, len(res.Errors))
	for i, e := range res.Errors {
		errs[i] = map[string]string{"step": e.Step, "error": e.Err.Error()}
	}
	return map[string]interface{}{
		"store_id":            res.StoreID,
		"success":             res.Success,
		"already_provisioned": res.AlreadyProvisioned,
		"tables_created":      res.TablesCreated,
		"data_seeded":         res.DataSeeded,
		"errors":              errs,
		"duration_ms":         res.Duration.Milliseconds(),
	}
}

func (s *Server) handleClearAll(w http.ResponseWriter, r *http.Request) {
	before := s.cache.Count()
	s.cache.ClearAll()
	s.logger.Info("", requestID(r), "Adapter cache cleared", map[string]interface{}{
		"evicted": before,
	})
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"evicted": before})
}

func (s *Server) handleClearOne(w http.ResponseWriter, r *http.Request) {
	storeID := mux.Vars(r)["id"]
	s.cache.ClearCache(storeID)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"store_id": storeID})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.ErrorWithCause("", "", "Failed to encode response", err, nil)
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, map[string]string{"error": msg})
}

func requestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	return uuid.NewString()
}
