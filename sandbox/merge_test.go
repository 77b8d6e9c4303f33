// Copyright 2026 The Cask Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"reflect"
	"testing"
)

func TestMergeDestinationKeyed(t *testing.T) {
	base := Fragment{
		"mounts": map[string]any{
			"binds": []any{
				map[string]any{"type": "ro", "src": "/lib", "dest": "/lib"},
				map[string]any{"type": "ro", "src": "/usr", "dest": "/usr"},
			},
		},
	}
	override := Fragment{
		"mounts": map[string]any{
			"binds": []any{
				map[string]any{"type": "rbind", "src": "/usr/lib", "dest": "/lib"},
				map[string]any{"type": "ro", "src": "/etc", "dest": "/etc"},
			},
		},
	}

	merged := MergeFragments([]Fragment{base, override})
	binds := merged["mounts"].(map[string]any)["binds"].([]any)

	if len(binds) != 3 {
		t.Fatalf("got %d binds, want 3: %v", len(binds), binds)
	}

	// The /lib override keeps the earlier entry's position.
	first := binds[0].(map[string]any)
	if first["dest"] != "/lib" || first["type"] != "rbind" || first["src"] != "/usr/lib" {
		t.Errorf("binds[0] = %v, want rbind /usr/lib -> /lib", first)
	}
	if binds[1].(map[string]any)["dest"] != "/usr" {
		t.Errorf("binds[1] = %v, want /usr", binds[1])
	}
	// The new destination is appended.
	if binds[2].(map[string]any)["dest"] != "/etc" {
		t.Errorf("binds[2] = %v, want /etc", binds[2])
	}
}

func TestMergeAssociative(t *testing.T) {
	a := Fragment{
		"chdir": "/a",
		"namespaces": map[string]any{
			"unshare": []any{"ipc", "net"},
		},
		"mounts": map[string]any{
			"binds": []any{
				map[string]any{"type": "ro", "src": "/lib", "dest": "/lib"},
			},
		},
		"env": map[string]any{
			"set":   map[string]any{"PATH": "/bin", "HOME": "/a"},
			"unset": []any{"TMPDIR"},
		},
	}
	b := Fragment{
		"chdir": "/b",
		"namespaces": map[string]any{
			"unshare": []any{"net", "pid"},
		},
		"mounts": map[string]any{
			"binds": []any{
				map[string]any{"type": "rbind", "src": "/x", "dest": "/lib"},
			},
		},
		"env": map[string]any{
			"set": map[string]any{"HOME": "/b"},
		},
	}
	c := Fragment{
		"namespaces": map[string]any{
			"unshare": []any{"user"},
		},
		"env": map[string]any{
			"unset": []any{"LANG"},
		},
		"security": map[string]any{
			"caps_drop": []any{"CAP_SYS_ADMIN"},
		},
	}

	merge := func(x, y Fragment) Fragment {
		return MergeFragments([]Fragment{x, y})
	}

	fold := MergeFragments([]Fragment{a, b, c})
	left := merge(merge(a, b), c)
	right := merge(a, merge(b, c))

	if !reflect.DeepEqual(fold, left) {
		t.Errorf("fold([A,B,C]) != merge(merge(A,B),C):\n%v\n%v", fold, left)
	}
	if !reflect.DeepEqual(fold, right) {
		t.Errorf("fold([A,B,C]) != merge(A,merge(B,C)):\n%v\n%v", fold, right)
	}
}

func TestMergeScalarsLaterWins(t *testing.T) {
	merged := MergeFragments([]Fragment{
		{"chdir": "/a", "perms": "0755"},
		{"chdir": "/b"},
	})
	if merged["chdir"] != "/b" {
		t.Errorf("chdir = %v, want /b", merged["chdir"])
	}
	if merged["perms"] != "0755" {
		t.Errorf("perms = %v, want 0755", merged["perms"])
	}
}

func TestMergeEnvSetUnion(t *testing.T) {
	merged := MergeFragments([]Fragment{
		{"env": map[string]any{"set": map[string]any{"A": "1", "B": "2"}}},
		{"env": map[string]any{"set": map[string]any{"B": "3", "C": "4"}}},
	})
	set := merged["env"].(map[string]any)["set"].(map[string]any)
	want := map[string]any{"A": "1", "B": "3", "C": "4"}
	if !reflect.DeepEqual(set, want) {
		t.Errorf("env.set = %v, want %v", set, want)
	}
}

func TestMergeEnvUnsetReplaces(t *testing.T) {
	merged := MergeFragments([]Fragment{
		{"env": map[string]any{"unset": []any{"A", "B"}, "clear": true}},
		{"env": map[string]any{"unset": []any{"C"}, "clear": false}},
	})
	env := merged["env"].(map[string]any)
	if !reflect.DeepEqual(env["unset"], []any{"C"}) {
		t.Errorf("env.unset = %v, want [C]", env["unset"])
	}
	if env["clear"] != false {
		t.Errorf("env.clear = %v, want false", env["clear"])
	}
}

func TestMergeConcatDedup(t *testing.T) {
	merged := MergeFragments([]Fragment{
		{"namespaces": map[string]any{"unshare": []any{"ipc", "net"}}},
		{"namespaces": map[string]any{"unshare": []any{"net", "pid", "ipc"}}},
	})
	unshare := merged["namespaces"].(map[string]any)["unshare"].([]any)
	want := []any{"ipc", "net", "pid"}
	if !reflect.DeepEqual(unshare, want) {
		t.Errorf("unshare = %v, want %v", unshare, want)
	}
}

func TestMergeEntriesWithoutDestAlwaysAppend(t *testing.T) {
	// tmpfs entries are plain strings with no dest key; the
	// destination-keyed merge appends them unconditionally, duplicates
	// included.
	merged := MergeFragments([]Fragment{
		{"mounts": map[string]any{"tmpfs": []any{"/tmp"}}},
		{"mounts": map[string]any{"tmpfs": []any{"/tmp", "/run"}}},
	})
	tmpfs := merged["mounts"].(map[string]any)["tmpfs"].([]any)
	want := []any{"/tmp", "/tmp", "/run"}
	if !reflect.DeepEqual(tmpfs, want) {
		t.Errorf("tmpfs = %v, want %v", tmpfs, want)
	}
}

func TestMergeSingleFragmentDedupsDestinations(t *testing.T) {
	// A duplicate destination inside one fragment is a merge conflict,
	// resolved the same way as across fragments: the later entry wins
	// and keeps the earlier position.
	merged := MergeFragments([]Fragment{
		{"mounts": map[string]any{
			"binds": []any{
				map[string]any{"type": "ro", "src": "/a", "dest": "/d"},
				map[string]any{"type": "", "src": "/b", "dest": "/d"},
			},
		}},
	})
	binds := merged["mounts"].(map[string]any)["binds"].([]any)
	if len(binds) != 1 {
		t.Fatalf("got %d binds, want 1: %v", len(binds), binds)
	}
	if binds[0].(map[string]any)["src"] != "/b" {
		t.Errorf("binds[0] = %v, want src /b", binds[0])
	}
}
