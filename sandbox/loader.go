// Copyright 2026 The Cask Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Fragment is one untyped configuration source after loading, with
// environment references already substituted. Fragments only exist
// between loading and merging.
type Fragment = map[string]any

// EnvLookup resolves an environment variable name during substitution.
// An unset variable must resolve to the empty string; that lossy
// behavior is part of the observable output.
type EnvLookup func(name string) string

// LoadSources reads the given configuration sources in order and
// returns one fragment per source. Sources ending in .json or .jsonc
// are parsed as JSON with comments and trailing commas allowed;
// everything else is parsed as YAML. Every string value has
// ${NAME}/$NAME tokens replaced through lookup.
func LoadSources(paths []string, lookup EnvLookup) ([]Fragment, error) {
	if lookup == nil {
		lookup = os.Getenv
	}
	fragments := make([]Fragment, 0, len(paths))
	for _, path := range paths {
		fragment, err := loadSource(path, lookup)
		if err != nil {
			return nil, err
		}
		fragments = append(fragments, fragment)
	}
	return fragments, nil
}

func loadSource(path string, lookup EnvLookup) (Fragment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &SourceNotFoundError{Path: path, Err: err}
	}

	var raw map[string]any
	switch filepath.Ext(path) {
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), &raw); err != nil {
			return nil, &SyntaxError{Path: path, Err: err}
		}
	default:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, &SyntaxError{Path: path, Err: err}
		}
	}

	if raw == nil {
		raw = Fragment{}
	}
	return expandValue(raw, lookup).(Fragment), nil
}

// expandValue walks a loaded value, substituting environment references
// in strings and normalizing JSON's float64 integers so YAML and JSON
// fragments merge and validate identically.
func expandValue(v any, lookup EnvLookup) any {
	switch val := v.(type) {
	case string:
		return os.Expand(val, lookup)
	case float64:
		if float64(int(val)) == val {
			return int(val)
		}
		return val
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = expandValue(item, lookup)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = expandValue(item, lookup)
		}
		return out
	default:
		return v
	}
}
