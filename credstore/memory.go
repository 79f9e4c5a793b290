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
	"sync"
	"time"
)

// MemoryStore is an in-process Store for tests and local development.
type MemoryStore struct {
	mu          sync.RWMutex
	descriptors map[string][]*Descriptor
}

// NewMemoryStore creates an empty in-memory registry.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{descriptors: make(map[string][]*Descriptor)}
}

// GetDescriptor returns the store's descriptor, preferring the active one.
func (s *MemoryStore) GetDescriptor(ctx context.Context, storeID string) (*Descriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.descriptors[storeID]
	if len(list) == 0 {
		return nil, ErrNotFound
	}

	var latest *Descriptor
	for _, d := range list {
		if d.Active {
			copied := *d
			return &copied, nil
		}
		if latest == nil || d.UpdatedAt.After(latest.UpdatedAt) {
			latest = d
		}
	}
	copied := *latest
	return &copied, nil
}

// SaveDescriptor registers a descriptor, deactivating any prior active one.
func (s *MemoryStore) SaveDescriptor(ctx context.Context, d *Descriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, existing := range s.descriptors[d.StoreID] {
		if existing.Active {
			existing.Active = false
			existing.UpdatedAt = now
		}
	}

	copied := *d
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = now
	}
	copied.UpdatedAt = now
	s.descriptors[d.StoreID] = append(s.descriptors[d.StoreID], &copied)
	return nil
}

// Deactivate marks the store's active descriptor inactive.
func (s *MemoryStore) Deactivate(ctx context.Context, storeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range s.descriptors[storeID] {
		if d.Active {
			d.Active = false
			d.UpdatedAt = time.Now()
		}
	}
	return nil
}

// MarkVerified records the latest probe outcome on the active descriptor.
func (s *MemoryStore) MarkVerified(ctx context.Context, storeID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range s.descriptors[storeID] {
		if d.Active {
			d.LastVerifiedAt = time.Now()
			d.VerificationStatus = status
		}
	}
	return nil
}
