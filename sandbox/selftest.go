// Copyright 2026 The Cask Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"time"
)

// Probe is one isolation check meant to run inside a sandbox. A probe
// passes when the isolation holds and fails with a detail string
// describing the hole when it does not.
type Probe struct {
	Name        string
	Description string
	Category    string // "network", "filesystem", "process"
	Run         func(ctx context.Context) error
}

// ProbeResult is the outcome of one probe.
type ProbeResult struct {
	Probe  *Probe
	Passed bool
	Detail string
}

const probeTimeout = 10 * time.Second

// Probes are the built-in isolation checks, in run order.
var Probes = []Probe{
	{
		Name:        "network-external",
		Description: "external TCP connectivity",
		Category:    "network",
		Run: func(ctx context.Context) error {
			var d net.Dialer
			conn, err := d.DialContext(ctx, "tcp", "1.1.1.1:80")
			if err != nil {
				return nil
			}
			conn.Close()
			return fmt.Errorf("connected to 1.1.1.1:80")
		},
	},
	{
		Name:        "network-loopback",
		Description: "host loopback connectivity",
		Category:    "network",
		Run: func(ctx context.Context) error {
			var d net.Dialer
			for _, port := range []string{"22", "80", "8080"} {
				dialCtx, cancel := context.WithTimeout(ctx, time.Second)
				conn, err := d.DialContext(dialCtx, "tcp", "127.0.0.1:"+port)
				cancel()
				if err == nil {
					conn.Close()
					return fmt.Errorf("connected to 127.0.0.1:%s", port)
				}
			}
			return nil
		},
	},
	{
		Name:        "network-dns",
		Description: "host DNS resolution",
		Category:    "network",
		Run: func(ctx context.Context) error {
			var r net.Resolver
			if _, err := r.LookupHost(ctx, "example.com"); err != nil {
				return nil
			}
			return fmt.Errorf("resolved example.com")
		},
	},
	{
		Name:        "filesystem-shadow",
		Description: "host credential files",
		Category:    "filesystem",
		Run: func(ctx context.Context) error {
			if _, err := os.ReadFile("/etc/shadow"); err != nil {
				return nil
			}
			return fmt.Errorf("read /etc/shadow")
		},
	},
	{
		Name:        "filesystem-home",
		Description: "host home directories",
		Category:    "filesystem",
		Run: func(ctx context.Context) error {
			for _, root := range []string{"/home", "/root"} {
				entries, err := os.ReadDir(root)
				if err != nil {
					continue
				}
				for _, entry := range entries {
					private := root + "/" + entry.Name() + "/.ssh"
					if _, err := os.Stat(private); err == nil {
						return fmt.Errorf("host path accessible: %s", private)
					}
				}
			}
			return nil
		},
	},
	{
		Name:        "filesystem-write",
		Description: "writes to system paths",
		Category:    "filesystem",
		Run: func(ctx context.Context) error {
			for _, path := range []string{"/etc/cask-probe", "/usr/cask-probe"} {
				f, err := os.Create(path)
				if err != nil {
					continue
				}
				f.Close()
				os.Remove(path)
				return fmt.Errorf("created %s", path)
			}
			return nil
		},
	},
	{
		Name:        "process-host-pids",
		Description: "host process visibility",
		Category:    "process",
		Run: func(ctx context.Context) error {
			entries, err := os.ReadDir("/proc")
			if err != nil {
				return nil
			}
			count := 0
			for _, entry := range entries {
				if entry.IsDir() && isNumeric(entry.Name()) {
					count++
				}
			}
			// A pid-namespaced process sees only its own small tree.
			if count > 20 {
				return fmt.Errorf("%d processes visible in /proc", count)
			}
			return nil
		},
	},
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// RunProbes runs every built-in probe and returns one result per probe.
func RunProbes(ctx context.Context) []ProbeResult {
	results := make([]ProbeResult, 0, len(Probes))
	for i := range Probes {
		probe := &Probes[i]
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := probe.Run(probeCtx)
		cancel()

		result := ProbeResult{Probe: probe, Passed: err == nil}
		if err != nil {
			result.Detail = err.Error()
		}
		results = append(results, result)
	}
	return results
}

// PrintProbeResults writes a human-readable report and returns the
// number of failed probes.
func PrintProbeResults(w io.Writer, results []ProbeResult) int {
	failed := 0
	for _, result := range results {
		status := "pass"
		if !result.Passed {
			status = "FAIL"
			failed++
		}
		fmt.Fprintf(w, "%s  %-18s %s\n", status, result.Probe.Name, result.Probe.Description)
		if !result.Passed {
			fmt.Fprintf(w, "      %s\n", result.Detail)
		}
	}
	fmt.Fprintf(w, "%d/%d probes passed\n", len(results)-failed, len(results))
	return failed
}
