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
Package provision sets up a brand-new tenant database: full table schema,
referential constraints, default seed data and the bootstrap rows (store
record, admin user, robots document, per-page-type layout rows) a store
needs to be usable.

Schema lands in two passes. The embedded DDL is parsed once per process
into a tables-only script and a constraints-only script, so every table
exists before any foreign key is applied regardless of definition order.
Constraint failures are tolerated: a store runs without referential
constraints, at the cost of weaker integrity.

Execution flows through a Channel: a live adapter connection when the
tenant database is directly reachable, or a remote management API
accepting batched SQL when it is not. Both channels produce the same end
state.

Reruns are safe. A populated marker table short-circuits the run, which
then only repairs layout rows and the store record. Only schema
application aborts a run; every other step records its failure and lets
the rest proceed.
*/
package provision
