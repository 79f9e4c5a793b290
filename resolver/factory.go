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
	"fmt"

	"storeforge/platform/adapters/base"
	"storeforge/platform/adapters/mysql"
	"storeforge/platform/adapters/postgres"
	"storeforge/platform/adapters/restql"
)

// AdapterFactory builds an adapter for a backend kind from a store's
// decrypted configuration. Tests substitute fakes.
type AdapterFactory func(cfg *base.Config) (base.Adapter, error)

// SupportedKinds is the list of backend kinds the resolver can route to.
var SupportedKinds = []base.Kind{
	base.KindPostgres,
	base.KindMySQL,
	base.KindRESTQL,
}

// IsSupportedKind checks if the given backend kind has an adapter.
func IsSupportedKind(kind base.Kind) bool {
	for _, k := range SupportedKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// DefaultFactory dispatches on the backend kind recorded in the store's
// registration. The kind is fixed at construction: a cached adapter never
// changes backend.
func DefaultFactory(cfg *base.Config) (base.Adapter, error) {
	switch cfg.Kind {
	case base.KindPostgres:
		return postgres.New(cfg)
	case base.KindMySQL:
		return mysql.New(cfg)
	case base.KindRESTQL:
		return restql.New(cfg)
	default:
		return nil, fmt.Errorf("unsupported backend kind: %s", cfg.Kind)
	}
}
