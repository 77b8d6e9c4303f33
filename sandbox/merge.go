// Copyright 2026 The Cask Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"reflect"
)

// MergeFragments left-folds the ordered fragments into one merged tree.
// Source order is precedence: later fragments override earlier ones.
// The fold is associative, so fold([A,B,C]) == merge(merge(A,B),C) ==
// merge(A, merge(B,C)); multi-source configuration depends on that
// property. The merge is a pure data transform and performs no I/O;
// malformed shapes pass through for the validator to reject.
func MergeFragments(fragments []Fragment) Fragment {
	merged := Fragment{}
	for _, fragment := range fragments {
		merged = mergeMaps(nil, merged, fragment)
	}
	return merged
}

func mergeMaps(path []string, dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		out[k] = mergeValue(append(path, k), out[k], v)
	}
	return out
}

// mergeValue applies the per-key merge strategy. dst may be nil (key
// absent so far); lists still pass through their strategy so that a
// single fragment is normalized the same way as a folded pair.
func mergeValue(path []string, dst, src any) any {
	switch srcVal := src.(type) {
	case map[string]any:
		dstMap, ok := dst.(map[string]any)
		if !ok {
			dstMap = nil
		}
		return mergeMaps(path, dstMap, srcVal)
	case []any:
		dstList, _ := dst.([]any)
		return mergeLists(path, dstList, srcVal)
	default:
		// Scalars, booleans and numbers: later value replaces earlier.
		return src
	}
}

func mergeLists(path []string, dst, src []any) []any {
	switch {
	case isDestKeyed(path):
		return mergeByDest(dst, src)
	case isReplaceList(path):
		return append([]any(nil), src...)
	default:
		return concatDedup(dst, src)
	}
}

// isDestKeyed reports whether the list at path merges by destination:
// every list under mounts, plus the top-level overlays and file_ops.
func isDestKeyed(path []string) bool {
	if len(path) == 0 {
		return false
	}
	if path[0] == "mounts" {
		return true
	}
	return len(path) == 1 && (path[0] == "overlays" || path[0] == "file_ops")
}

// isReplaceList reports whether a later list fully replaces an earlier
// one instead of merging. Only env.unset behaves this way; env.clear is
// a scalar and env.set is a map union.
func isReplaceList(path []string) bool {
	return len(path) == 2 && path[0] == "env" && path[1] == "unset"
}

// mergeByDest merges an incoming list into an existing one keyed by the
// "dest" field. An incoming entry whose dest matches an existing entry
// replaces it in place, keeping the earlier entry's position. Entries
// without a dest are always appended, duplicates included; call sites
// depend on that documented behavior.
func mergeByDest(dst, src []any) []any {
	out := make([]any, 0, len(dst)+len(src))
	index := make(map[string]int)
	add := func(entry any) {
		if dest, ok := entryDest(entry); ok {
			if at, seen := index[dest]; seen {
				out[at] = entry
				return
			}
			index[dest] = len(out)
		}
		out = append(out, entry)
	}
	for _, entry := range dst {
		add(entry)
	}
	for _, entry := range src {
		add(entry)
	}
	return out
}

func entryDest(entry any) (string, bool) {
	m, ok := entry.(map[string]any)
	if !ok {
		return "", false
	}
	dest, ok := m["dest"].(string)
	return dest, ok
}

// concatDedup concatenates two lists and drops duplicates, preserving
// first-seen order. Applies to namespace sets, seccomp sources,
// capability lists, lock files and any other plain list.
func concatDedup(dst, src []any) []any {
	out := make([]any, 0, len(dst)+len(src))
	for _, list := range [][]any{dst, src} {
		for _, entry := range list {
			if !containsDeep(out, entry) {
				out = append(out, entry)
			}
		}
	}
	return out
}

func containsDeep(list []any, entry any) bool {
	for _, have := range list {
		if reflect.DeepEqual(have, entry) {
			return true
		}
	}
	return false
}
