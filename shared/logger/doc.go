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
Package logger provides structured JSON logging with per-store context for
StoreForge components.

Each log entry is a single JSON line on stdout carrying the timestamp,
level, component, instance/container identity, the store the entry relates
to, an optional request ID for correlation, and free-form fields.

Create a logger for your component:

	log := logger.New("resolver")

Log messages with store and request context:

	log.Info("store-123", "req-456", "Connection resolved", map[string]interface{}{
	    "backend": "postgres",
	})

Logger instances are safe for concurrent use from multiple goroutines.
*/
package logger
