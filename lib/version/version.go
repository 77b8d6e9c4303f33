// Copyright 2026 The Cask Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports the build version of Cask binaries.
package version

import "fmt"

// Version is the build version, overridden at link time via
// -ldflags "-X github.com/cask-sandbox/cask/lib/version.Version=...".
var Version = "dev"

// Info returns the version string.
func Info() string {
	return Version
}

// Print writes "<binary> <version>" to stdout.
func Print(binary string) {
	fmt.Printf("%s %s\n", binary, Info())
}
