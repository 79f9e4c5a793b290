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

import _ "embed"

//go:embed assets/schema.sql
var schemaSQL string

//go:embed assets/seed.sql
var seedSQL string

//go:embed assets/layouts.yaml
var layoutsYAML []byte

//go:embed assets/themes.yaml
var themesYAML []byte
