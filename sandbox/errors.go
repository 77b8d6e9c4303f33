// Copyright 2026 The Cask Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"
	"strings"
)

// SourceNotFoundError indicates a configuration source could not be read.
type SourceNotFoundError struct {
	Path string
	Err  error
}

func (e *SourceNotFoundError) Error() string {
	return fmt.Sprintf("configuration source %q is unreadable: %v", e.Path, e.Err)
}

func (e *SourceNotFoundError) Unwrap() error { return e.Err }

// SyntaxError indicates a configuration source contains malformed
// structured text.
type SyntaxError struct {
	Path string
	Err  error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("configuration source %q is malformed: %v", e.Path, e.Err)
}

func (e *SyntaxError) Unwrap() error { return e.Err }

// SchemaError aggregates every field-level violation found while
// converting a merged tree into a typed configuration. All violations
// are reported together, not just the first.
type SchemaError struct {
	Violations []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("configuration schema validation failed:\n  %s",
		strings.Join(e.Violations, "\n  "))
}

// InvariantError names a violated cross-field rule.
type InvariantError struct {
	Rule   string
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("configuration invariant %s violated: %s", e.Rule, e.Detail)
}

// DescriptorOpenError indicates a path-valued descriptor source could
// not be opened.
type DescriptorOpenError struct {
	Path string
	Err  error
}

func (e *DescriptorOpenError) Error() string {
	return fmt.Sprintf("cannot open descriptor source %q: %v", e.Path, e.Err)
}

func (e *DescriptorOpenError) Unwrap() error { return e.Err }

// ExitError represents a non-zero exit from the sandboxed command. The
// code is the child engine's exit status, propagated unchanged.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command exited with code %d", e.Code)
}

// IsExitError checks if an error is an ExitError and returns the code.
func IsExitError(err error) (int, bool) {
	if exitErr, ok := err.(*ExitError); ok {
		return exitErr.Code, true
	}
	return 0, false
}
