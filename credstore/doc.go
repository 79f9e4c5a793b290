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
Package credstore holds each store's database connection descriptor: which
backend kind it uses, its encrypted credentials, and whether the link is
active. Credentials are sealed with a platform-wide AES-256-GCM key behind
the Cipher boundary.

The production registry lives in the platform database (PostgresStore); a
MemoryStore backs tests and local development.
*/
package credstore
