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

/*
Package resolver turns a store ID into a live database adapter.

Each store owns exactly one active database registration; the resolver
reads it, decrypts the credentials, constructs the adapter for the
registered backend kind and probes connectivity once. Adapters are cached
per store with no TTL and evicted only on explicit invalidation (store
disconnect, credential rotation, operator request) or shutdown.

Typed errors distinguish the failure stages so callers can tell "never
configured" from "deactivated" from "unreachable" without string
matching.
*/
package resolver
