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

// Package main is the entry point for the StoreForge platform service.
//
// storeforged resolves each store's database, provisions new tenant
// databases and serves the operational HTTP surface.
//
// Environment Variables:
//
//	PORT - HTTP server port (default: 8080)
//	PLATFORM_DATABASE_URL - PostgreSQL connection string for the platform database
//	CREDENTIAL_KEY - hex-encoded 32-byte key sealing tenant credentials (required)
//	MANAGEMENT_API_URL - remote management endpoint for indirect tenants
//	MANAGEMENT_API_TOKEN - bearer token for the management endpoint
//	PLATFORM_HOST - host serving platform storefront paths (default: shops.storeforge.dev)
package main

import (
	"storeforge/platform/ops"
)

func main() {
	if err := ops.Run(); err != nil {
		ops.Fail(err)
	}
}
