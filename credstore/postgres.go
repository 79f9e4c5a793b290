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

package credstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/lib/pq" // platform database driver

	"storeforge/platform/adapters/base"
)

// PostgresStore keeps descriptors in the platform database's
// tenant_databases table.
type PostgresStore struct {
	db     *sql.DB
	logger *log.Logger
}

// NewPostgresStore opens the platform database and verifies it answers.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open platform database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping platform database: %w", err)
	}

	return &PostgresStore{
		db:     db,
		logger: log.New(os.Stdout, "[CREDSTORE] ", log.LstdFlags),
	}, nil
}

const descriptorColumns = `store_id, backend_kind, encrypted_credentials, is_active,
	COALESCE(last_verified_at, to_timestamp(0)), COALESCE(verification_status, ''),
	created_at, updated_at`

// GetDescriptor returns the store's descriptor, preferring the active one
// so an inactive leftover never shadows a live registration.
func (s *PostgresStore) GetDescriptor(ctx context.Context, storeID string) (*Descriptor, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+descriptorColumns+`
		 FROM tenant_databases
		 WHERE store_id = $1
		 ORDER BY is_active DESC, updated_at DESC
		 LIMIT 1`, storeID)

	var d Descriptor
	var kind string
	err := row.Scan(&d.StoreID, &kind, &d.EncryptedCredentials, &d.Active,
		&d.LastVerifiedAt, &d.VerificationStatus, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read descriptor for %s: %w", storeID, err)
	}

	d.Backend = base.Kind(kind)
	return &d, nil
}

// SaveDescriptor registers a descriptor, deactivating any prior active one
// in the same transaction so at most one stays active.
func (s *PostgresStore) SaveDescriptor(ctx context.Context, d *Descriptor) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save descriptor: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`UPDATE tenant_databases SET is_active = false, updated_at = now()
		 WHERE store_id = $1 AND is_active`, d.StoreID); err != nil {
		return fmt.Errorf("deactivate prior descriptor for %s: %w", d.StoreID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO tenant_databases
		 (store_id, backend_kind, encrypted_credentials, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, now(), now())`,
		d.StoreID, string(d.Backend), d.EncryptedCredentials, d.Active); err != nil {
		return fmt.Errorf("insert descriptor for %s: %w", d.StoreID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit descriptor for %s: %w", d.StoreID, err)
	}

	s.logger.Printf("Saved descriptor for store %s (backend=%s, active=%v)", d.StoreID, d.Backend, d.Active)
	return nil
}

// Deactivate marks the store's active descriptor inactive. Missing rows
// are not an error: disconnect is idempotent.
func (s *PostgresStore) Deactivate(ctx context.Context, storeID string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE tenant_databases SET is_active = false, updated_at = now()
		 WHERE store_id = $1 AND is_active`, storeID); err != nil {
		return fmt.Errorf("deactivate descriptor for %s: %w", storeID, err)
	}
	return nil
}

// MarkVerified records the latest probe outcome.
func (s *PostgresStore) MarkVerified(ctx context.Context, storeID, status string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE tenant_databases
		 SET last_verified_at = now(), verification_status = $2, updated_at = now()
		 WHERE store_id = $1 AND is_active`, storeID, status); err != nil {
		return fmt.Errorf("mark verified for %s: %w", storeID, err)
	}
	return nil
}

// Close releases the platform database pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
