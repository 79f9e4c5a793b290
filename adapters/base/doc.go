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
Package base defines the uniform Adapter interface over one store database,
the lazy table-scoped QueryBuilder, and the error taxonomy shared by the
three backend implementations (postgres, mysql, restql).

Every component above the adapters is backend-agnostic: it selects an
implementation once at construction time and never branches on backend kind
again. Failures surface as *QueryError carrying the backend's native code
plus a classification, never as driver-specific error types.
*/
package base
