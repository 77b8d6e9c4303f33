// Copyright 2026 The Cask Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writePolicy(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCompileSeccompPolicy(t *testing.T) {
	path := writePolicy(t, `
default_action: errno
syscalls:
  - action: allow
    names: [read, write, close, exit_group]
  - action: kill_process
    names: [ptrace]
`)
	program, err := CompileSeccompPolicy(path)
	if err != nil {
		t.Fatalf("CompileSeccompPolicy failed: %v", err)
	}
	// sock_filter is 8 bytes; a valid program is a whole number of them.
	if len(program) == 0 || len(program)%8 != 0 {
		t.Errorf("program is %d bytes, want a positive multiple of 8", len(program))
	}
}

func TestCompileSeccompPolicyDeterministic(t *testing.T) {
	path := writePolicy(t, `
default_action: allow
syscalls:
  - action: errno
    names: [socket, connect]
`)
	first, err := CompileSeccompPolicy(path)
	if err != nil {
		t.Fatalf("CompileSeccompPolicy failed: %v", err)
	}
	again, err := CompileSeccompPolicy(path)
	if err != nil {
		t.Fatalf("CompileSeccompPolicy failed: %v", err)
	}
	if !bytes.Equal(first, again) {
		t.Error("compiling the same policy twice produced different programs")
	}
}

func TestCompileSeccompPolicyErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bad yaml", "default_action: [\n", ""},
		{"unknown default action", "default_action: deny\n", "deny"},
		{
			"unknown group action",
			"default_action: allow\nsyscalls:\n  - action: reject\n    names: [read]\n",
			"reject",
		},
		{
			"empty names",
			"default_action: allow\nsyscalls:\n  - action: errno\n    names: []\n",
			"names",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writePolicy(t, tt.content)
			_, err := CompileSeccompPolicy(path)
			var syntax *SyntaxError
			if !errors.As(err, &syntax) {
				t.Fatalf("got %v, want SyntaxError", err)
			}
			if tt.want != "" && !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}
}

func TestCompileSeccompPolicyNotFound(t *testing.T) {
	_, err := CompileSeccompPolicy("/nonexistent/policy.yaml")
	var notFound *SourceNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("got %v, want SourceNotFoundError", err)
	}
}
