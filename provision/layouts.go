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

import (
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// Slot is one named region of a page layout.
type Slot struct {
	Name      string                 `yaml:"name" json:"name"`
	Component string                 `yaml:"component" json:"component"`
	Props     map[string]interface{} `yaml:"props" json:"props"`
}

// LayoutDefinition is the static structural definition for one page type.
type LayoutDefinition struct {
	Slots []Slot `yaml:"slots" json:"slots"`
}

type layoutFile struct {
	PageTypes map[string]LayoutDefinition `yaml:"page_types"`
}

type themeFile struct {
	Presets map[string]map[string]interface{} `yaml:"presets"`
}

var (
	assetsOnce  sync.Once
	layoutDefs  map[string]LayoutDefinition
	themeDefs   map[string]map[string]interface{}
	assetsError error
)

func loadAssets() error {
	assetsOnce.Do(func() {
		var lf layoutFile
		if err := yaml.Unmarshal(layoutsYAML, &lf); err != nil {
			assetsError = fmt.Errorf("parse layout definitions: %w", err)
			return
		}
		var tf themeFile
		if err := yaml.Unmarshal(themesYAML, &tf); err != nil {
			assetsError = fmt.Errorf("parse theme presets: %w", err)
			return
		}
		layoutDefs = lf.PageTypes
		themeDefs = tf.Presets
	})
	return assetsError
}

// PageTypes returns the supported page types in deterministic order.
func PageTypes() ([]string, error) {
	if err := loadAssets(); err != nil {
		return nil, err
	}
	types := make([]string, 0, len(layoutDefs))
	for t := range layoutDefs {
		types = append(types, t)
	}
	sort.Strings(types)
	return types, nil
}

// LayoutFor returns the static layout definition for a page type.
func LayoutFor(pageType string) (LayoutDefinition, error) {
	if err := loadAssets(); err != nil {
		return LayoutDefinition{}, err
	}
	def, ok := layoutDefs[pageType]
	if !ok {
		return LayoutDefinition{}, fmt.Errorf("no layout definition for page type %q", pageType)
	}
	return def, nil
}

// ThemeFor returns a copy of the named preset's settings. An unknown
// preset degrades to an empty map rather than failing; provisioning must
// never abort over a missing theme.
func ThemeFor(preset string) map[string]interface{} {
	if err := loadAssets(); err != nil {
		return map[string]interface{}{}
	}
	src, ok := themeDefs[preset]
	if !ok {
		return map[string]interface{}{}
	}
	theme := make(map[string]interface{}, len(src))
	for k, v := range src {
		theme[k] = v
	}
	return theme
}

// MergeTheme unions a preset with a caller override; override keys win.
func MergeTheme(preset string, override map[string]interface{}) map[string]interface{} {
	theme := ThemeFor(preset)
	for k, v := range override {
		theme[k] = v
	}
	return theme
}
