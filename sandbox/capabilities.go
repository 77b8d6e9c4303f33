// Copyright 2026 The Cask Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Capabilities describes what sandbox features are available on this
// system.
type Capabilities struct {
	// EngineAvailable is true if the sandboxing engine is installed.
	EngineAvailable bool

	// EnginePath is the path to the engine if available.
	EnginePath string

	// EngineVersion is the engine's version string.
	EngineVersion string

	// UserNamespacesEnabled is true if unprivileged user namespaces
	// work.
	UserNamespacesEnabled bool
}

// DetectCapabilities checks what sandbox features are available.
func DetectCapabilities() *Capabilities {
	caps := &Capabilities{}

	if path, err := EnginePath(); err == nil {
		caps.EngineAvailable = true
		caps.EnginePath = path

		if out, err := exec.Command(path, "--version").Output(); err == nil {
			caps.EngineVersion = strings.TrimSpace(string(out))
		}
	}

	caps.UserNamespacesEnabled = checkUserNamespaces()
	return caps
}

// CanRun returns true if basic sandbox execution is possible.
func (c *Capabilities) CanRun() bool {
	return c.EngineAvailable && c.UserNamespacesEnabled
}

// SkipReason returns a human-readable reason why sandboxing isn't
// available, or empty string if it is available.
func (c *Capabilities) SkipReason() string {
	if !c.EngineAvailable {
		return "bubblewrap not installed"
	}
	if !c.UserNamespacesEnabled {
		return "unprivileged user namespaces not enabled (set kernel.unprivileged_userns_clone=1)"
	}
	return ""
}

// EnginePath returns the path to the bwrap executable.
func EnginePath() (string, error) {
	// Check common locations.
	paths := []string{
		"/usr/bin/bwrap",
		"/usr/local/bin/bwrap",
		"/bin/bwrap",
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	// Fall back to PATH lookup.
	if path, err := exec.LookPath("bwrap"); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("bwrap not found in standard locations")
}

// checkUserNamespaces tests if unprivileged user namespaces work.
func checkUserNamespaces() bool {
	// First check the sysctl.
	data, err := os.ReadFile("/proc/sys/kernel/unprivileged_userns_clone")
	if err == nil {
		if strings.TrimSpace(string(data)) == "0" {
			return false
		}
	}
	// File not existing usually means userns is allowed.

	enginePath, err := EnginePath()
	if err != nil {
		return false
	}

	// Simple test: run true in a new user namespace.
	cmd := exec.Command(enginePath,
		"--unshare-user",
		"--ro-bind", "/", "/",
		"--",
		"true",
	)
	return cmd.Run() == nil
}
