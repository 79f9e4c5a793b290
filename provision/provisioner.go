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
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"storeforge/platform/internal/metrics"
	"storeforge/platform/shared/logger"
)

// Step names recorded in Result.Errors.
const (
	StepMigrations  = "migrations"
	StepForeignKeys = "foreign_keys"
	StepSeed        = "seed"
	StepCreateStore = "create_store"
	StepCreateAdmin = "create_admin"
	StepSeedLayouts = "seed_layouts"
	StepSeedRobots  = "seed_robots"
)

// StepError records one failed provisioning step. Recorded, never
// thrown: only the migrations step aborts a run.
type StepError struct {
	Step string
	Err  error
}

func (e StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e StepError) Unwrap() error { return e.Err }

// Result is the structured outcome of one provisioning run. TablesCreated
// and DataSeeded are append-only progress logs; duplicates across retried
// runs are meaningful.
type Result struct {
	StoreID            string
	TablesCreated      []string
	DataSeeded         []string
	Errors             []StepError
	Success            bool
	AlreadyProvisioned bool
	Duration           time.Duration
}

// Request describes the tenant to provision.
type Request struct {
	StoreID      string
	StoreName    string
	AdminEmail   string
	AdminName    string
	Currency     string
	Timezone     string
	CustomDomain string

	// ThemePreset names an embedded preset; ThemeOverride keys win on
	// conflict with the preset.
	ThemePreset   string
	ThemeOverride map[string]interface{}

	// Force reruns schema and seed even when the database already holds
	// a populated marker table.
	Force bool
}

// Options configures a Provisioner.
type Options struct {
	PlatformHost string

	SchemaTimeout time.Duration // default 30s
	SeedTimeout   time.Duration // default 3m
	ProbeTimeout  time.Duration // default 10s

	Logger *logger.Logger
}

// Provisioner applies schema, seed data and bootstrap rows to tenant
// databases. The execution channel is supplied per run because each
// store resolves to its own connection, but the Provisioner itself is
// long-lived: the per-store serialization registry must outlive any
// single run. Runs for the same store are serialized; runs for
// different stores proceed in parallel.
type Provisioner struct {
	platformHost string

	schemaTimeout time.Duration
	seedTimeout   time.Duration
	probeTimeout  time.Duration

	logger *logger.Logger

	mu      sync.Mutex
	running map[string]*sync.Mutex
}

// New creates a Provisioner.
func New(opts Options) *Provisioner {
	schemaTimeout := opts.SchemaTimeout
	if schemaTimeout <= 0 {
		schemaTimeout = 30 * time.Second
	}
	seedTimeout := opts.SeedTimeout
	if seedTimeout <= 0 {
		seedTimeout = 3 * time.Minute
	}
	probeTimeout := opts.ProbeTimeout
	if probeTimeout <= 0 {
		probeTimeout = 10 * time.Second
	}

	lg := opts.Logger
	if lg == nil {
		lg = logger.New("provisioner")
	}

	return &Provisioner{
		platformHost:  opts.PlatformHost,
		schemaTimeout: schemaTimeout,
		seedTimeout:   seedTimeout,
		probeTimeout:  probeTimeout,
		logger:        lg,
		running:       make(map[string]*sync.Mutex),
	}
}

// storeMutex returns the serialization lock for one store.
func (p *Provisioner) storeMutex(storeID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.running[storeID]
	if !ok {
		m = &sync.Mutex{}
		p.running[storeID] = m
	}
	return m
}

// Provision runs the full provisioning sequence over the given channel.
// It always returns a Result; Success is false only when schema
// application or the default seed failed. All other step failures are
// recorded in Errors while the run continues.
func (p *Provisioner) Provision(ctx context.Context, ch Channel, req Request) *Result {
	lock := p.storeMutex(req.StoreID)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	res := &Result{StoreID: req.StoreID}
	defer func() {
		res.Duration = time.Since(start)
		metrics.ProvisionDuration.Observe(res.Duration.Seconds())
		metrics.ProvisionTotal.WithLabelValues(resultLabel(res)).Inc()
	}()

	if ch == nil {
		p.recordStep(res, StepMigrations, fmt.Errorf("no execution channel for store"))
		return res
	}

	p.logger.Info(req.StoreID, "", "Provisioning started", map[string]interface{}{
		"channel": ch.Name(),
		"force":   req.Force,
	})

	if !req.Force && p.checkProvisioned(ctx, ch, req.StoreID) {
		res.AlreadyProvisioned = true
		res.Success = true
		// Shortcut still repairs the rows operational incidents lose.
		p.ensureLayouts(ctx, ch, req, res)
		p.ensureStoreRecord(ctx, ch, req, res)
		p.logger.Info(req.StoreID, "", "Already provisioned, repairs applied", map[string]interface{}{
			"errors": len(res.Errors),
		})
		return res
	}

	arts, err := SchemaArtifacts()
	if err != nil {
		p.recordStep(res, StepMigrations, err)
		return res
	}

	// Tables pass. The one fatal step: without tables nothing else can
	// possibly succeed, so the run short-circuits.
	if _, err := ch.Exec(ctx, arts.Tables, p.schemaTimeout); err != nil {
		p.recordStep(res, StepMigrations, err)
		p.logger.ErrorWithCause(req.StoreID, "", "Schema application failed, aborting run", err, nil)
		return res
	}
	res.TablesCreated = append(res.TablesCreated, arts.TableNames...)

	// Constraint pass. Tables stay usable without referential
	// constraints, so failures here are soft.
	if _, err := ch.Exec(ctx, arts.Constraints, p.schemaTimeout); err != nil {
		p.recordStep(res, StepForeignKeys, err)
	}

	seedOK := p.runSeed(ctx, ch, req, res)

	p.createStoreRecord(ctx, ch, req, res)
	p.createAdminUser(ctx, ch, req, res)
	p.seedLayouts(ctx, ch, req, res)
	p.seedRobots(ctx, ch, req, res)

	res.Success = seedOK

	p.logger.InfoWithDuration(req.StoreID, "", "Provisioning finished",
		float64(time.Since(start).Milliseconds()), map[string]interface{}{
			"success": res.Success,
			"tables":  len(res.TablesCreated),
			"errors":  len(res.Errors),
		})
	return res
}

// checkProvisioned probes whether the marker table exists and holds the
// store's row. Any probe failure counts as not provisioned; a full run
// will surface the real problem.
func (p *Provisioner) checkProvisioned(ctx context.Context, ch Channel, storeID string) bool {
	rows, err := ch.Exec(ctx,
		fmt.Sprintf("SELECT COUNT(*) AS n FROM stores WHERE id = %s", sqlLiteral(storeID)),
		p.probeTimeout)
	if err != nil {
		return false
	}
	return countFromRows(rows) > 0
}

// runSeed applies the default-data batch. Reported in Success because a
// store without its default settings rows is not minimally usable.
func (p *Provisioner) runSeed(ctx context.Context, ch Channel, req Request, res *Result) bool {
	seed := renderSeed(req.StoreID)
	if _, err := ch.Exec(ctx, seed, p.seedTimeout); err != nil {
		if !isDuplicateErr(err) {
			p.recordStep(res, StepSeed, err)
			return false
		}
	}
	res.DataSeeded = append(res.DataSeeded, "defaults")
	return true
}

// createStoreRecord inserts the store's own row with slug, currency,
// timezone and merged theme settings. A duplicate means a prior partial
// run already created it, which is success.
func (p *Provisioner) createStoreRecord(ctx context.Context, ch Channel, req Request, res *Result) {
	settings, err := storeSettings(req)
	if err != nil {
		p.recordStep(res, StepCreateStore, err)
		return
	}

	row := map[string]interface{}{
		"id":       req.StoreID,
		"name":     req.StoreName,
		"slug":     Slugify(req.StoreName),
		"currency": defaultString(req.Currency, "USD"),
		"timezone": defaultString(req.Timezone, "UTC"),
		"settings": settings,
	}
	if req.CustomDomain != "" {
		row["custom_domain"] = req.CustomDomain
	}

	if _, err := ch.Exec(ctx, insertSQL("stores", row), p.probeTimeout); err != nil && !isDuplicateErr(err) {
		p.recordStep(res, StepCreateStore, err)
		return
	}
	res.DataSeeded = append(res.DataSeeded, "store_record")
}

// createAdminUser inserts the administrative user. Create-if-absent: the
// row may survive a prior partial run, so a unique conflict is success.
func (p *Provisioner) createAdminUser(ctx context.Context, ch Channel, req Request, res *Result) {
	if req.AdminEmail == "" {
		p.recordStep(res, StepCreateAdmin, fmt.Errorf("admin email is required"))
		return
	}

	row := map[string]interface{}{
		"id":       uuid.NewString(),
		"store_id": req.StoreID,
		"email":    req.AdminEmail,
		"name":     defaultString(req.AdminName, req.AdminEmail),
		"role":     "owner",
	}

	if _, err := ch.Exec(ctx, insertSQL("users", row), p.probeTimeout); err != nil && !isDuplicateErr(err) {
		p.recordStep(res, StepCreateAdmin, err)
		return
	}
	res.DataSeeded = append(res.DataSeeded, "admin_user")
}

// seedLayouts inserts one published and one draft layout row per page
// type, content loaded from the embedded definitions.
func (p *Provisioner) seedLayouts(ctx context.Context, ch Channel, req Request, res *Result) {
	types, err := PageTypes()
	if err != nil {
		p.recordStep(res, StepSeedLayouts, err)
		return
	}

	for _, pageType := range types {
		if err := p.insertLayoutPair(ctx, ch, req.StoreID, pageType); err != nil {
			p.recordStep(res, StepSeedLayouts, fmt.Errorf("page type %s: %w", pageType, err))
			continue
		}
		res.DataSeeded = append(res.DataSeeded, "layout:"+pageType)
	}
}

func (p *Provisioner) insertLayoutPair(ctx context.Context, ch Channel, storeID, pageType string) error {
	def, err := LayoutFor(pageType)
	if err != nil {
		return err
	}
	content, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("encode layout: %w", err)
	}

	for _, status := range []string{"published", "draft"} {
		row := map[string]interface{}{
			"id":        uuid.NewString(),
			"store_id":  storeID,
			"page_type": pageType,
			"status":    status,
			"content":   string(content),
		}
		if _, err := ch.Exec(ctx, insertSQL("layouts", row), p.probeTimeout); err != nil && !isDuplicateErr(err) {
			return err
		}
	}
	return nil
}

// seedRobots writes the default crawler-directive document with the
// store's computed sitemap URL.
func (p *Provisioner) seedRobots(ctx context.Context, ch Channel, req Request, res *Result) {
	row := map[string]interface{}{
		"id":       uuid.NewString(),
		"store_id": req.StoreID,
		"doc_type": "robots",
		"content":  robotsContent(p.sitemapURL(req)),
	}

	if _, err := ch.Exec(ctx, insertSQL("seo_documents", row), p.probeTimeout); err != nil && !isDuplicateErr(err) {
		p.recordStep(res, StepSeedRobots, err)
		return
	}
	res.DataSeeded = append(res.DataSeeded, "robots")
}

// ensureLayouts verifies the layout rows exist and reseeds any missing
// page type. Runs on the already-provisioned shortcut.
func (p *Provisioner) ensureLayouts(ctx context.Context, ch Channel, req Request, res *Result) {
	types, err := PageTypes()
	if err != nil {
		p.recordStep(res, StepSeedLayouts, err)
		return
	}

	for _, pageType := range types {
		rows, err := ch.Exec(ctx,
			fmt.Sprintf("SELECT COUNT(*) AS n FROM layouts WHERE store_id = %s AND page_type = %s",
				sqlLiteral(req.StoreID), sqlLiteral(pageType)),
			p.probeTimeout)
		if err != nil {
			p.recordStep(res, StepSeedLayouts, fmt.Errorf("page type %s: %w", pageType, err))
			continue
		}
		if countFromRows(rows) > 0 {
			continue
		}
		if err := p.insertLayoutPair(ctx, ch, req.StoreID, pageType); err != nil {
			p.recordStep(res, StepSeedLayouts, fmt.Errorf("page type %s: %w", pageType, err))
			continue
		}
		res.DataSeeded = append(res.DataSeeded, "layout:"+pageType)
	}
}

// ensureStoreRecord verifies the store's own row exists with non-empty
// theme settings, creating or patching it as needed. Runs on the
// already-provisioned shortcut.
func (p *Provisioner) ensureStoreRecord(ctx context.Context, ch Channel, req Request, res *Result) {
	rows, err := ch.Exec(ctx,
		fmt.Sprintf("SELECT settings FROM stores WHERE id = %s", sqlLiteral(req.StoreID)),
		p.probeTimeout)
	if err != nil {
		p.recordStep(res, StepCreateStore, err)
		return
	}

	if len(rows) == 0 {
		p.createStoreRecord(ctx, ch, req, res)
		return
	}

	if themeIsEmpty(rows[0]["settings"]) {
		settings, err := storeSettings(req)
		if err != nil {
			p.recordStep(res, StepCreateStore, err)
			return
		}
		update := fmt.Sprintf("UPDATE stores SET settings = %s WHERE id = %s",
			sqlLiteral(settings), sqlLiteral(req.StoreID))
		if _, err := ch.Exec(ctx, update, p.probeTimeout); err != nil {
			p.recordStep(res, StepCreateStore, err)
			return
		}
		res.DataSeeded = append(res.DataSeeded, "store_record")
	}
}

func (p *Provisioner) recordStep(res *Result, step string, err error) {
	res.Errors = append(res.Errors, StepError{Step: step, Err: err})
	metrics.ProvisionStepErrors.WithLabelValues(step).Inc()
	p.logger.ErrorWithCause(res.StoreID, "", "Provisioning step failed", err, map[string]interface{}{
		"step": step,
	})
}

// sitemapURL prefers a registered custom domain, falling back to a
// platform-hosted path keyed by slug.
func (p *Provisioner) sitemapURL(req Request) string {
	if req.CustomDomain != "" {
		return "https://" + req.CustomDomain + "/sitemap.xml"
	}
	return "https://" + p.platformHost + "/" + Slugify(req.StoreName) + "/sitemap.xml"
}

func robotsContent(sitemapURL string) string {
	return "User-agent: *\n" +
		"Allow: /\n" +
		"Disallow: /admin/\n" +
		"Disallow: /cart\n" +
		"Disallow: /checkout\n" +
		"\n" +
		"Sitemap: " + sitemapURL + "\n"
}

// storeSettings builds the settings JSON with the merged theme.
func storeSettings(req Request) (string, error) {
	theme := MergeTheme(defaultString(req.ThemePreset, "default"), req.ThemeOverride)
	b, err := json.Marshal(map[string]interface{}{"theme": theme})
	if err != nil {
		return "", fmt.Errorf("encode store settings: %w", err)
	}
	return string(b), nil
}

// themeIsEmpty reports whether a stored settings payload lacks any theme
// keys.
func themeIsEmpty(settings interface{}) bool {
	var raw string
	switch v := settings.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return true
	}
	if raw == "" {
		return true
	}

	var parsed struct {
		Theme map[string]interface{} `json:"theme"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return true
	}
	return len(parsed.Theme) == 0
}

// renderSeed binds the default-data batch to one store.
func renderSeed(storeID string) string {
	escaped := strings.ReplaceAll(storeID, "'", "''")
	return strings.ReplaceAll(seedSQL, "__STORE_ID__", escaped)
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func resultLabel(res *Result) string {
	switch {
	case res.AlreadyProvisioned:
		return "already_provisioned"
	case !res.Success:
		return "failed"
	case len(res.Errors) > 0:
		return "partial"
	default:
		return "success"
	}
}
