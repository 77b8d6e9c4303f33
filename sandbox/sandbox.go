// Copyright 2026 The Cask Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
)

// Runner drives one sandbox run: load, merge, validate, resolve
// descriptors, translate, invoke. Each run builds a fresh merged tree,
// configuration and descriptor set; nothing is cached or shared across
// runs.
type Runner struct {
	// Sources are the configuration sources in precedence order
	// (later overrides earlier).
	Sources []string

	// Engine is the path to the sandboxing engine executable. Empty
	// means probe the standard locations.
	Engine string

	// Lookup resolves environment references during loading. Nil
	// means the process environment.
	Lookup EnvLookup

	// OnTokens, when set, receives the full token sequence (engine
	// path included) before the engine is spawned. The sequence is
	// handed over unaltered.
	OnTokens func(tokens []string)

	// Logger for run diagnostics. Nil means slog.Default().
	Logger *slog.Logger
}

// Run executes the command inside the configured sandbox and blocks
// until the engine exits. A non-zero child exit is returned as
// *ExitError carrying the exact code. Descriptors opened for this run
// are closed before Run returns, on every path.
func (r *Runner) Run(ctx context.Context, command []string) error {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	fragments, err := LoadSources(r.Sources, r.Lookup)
	if err != nil {
		return err
	}
	cfg, err := Validate(MergeFragments(fragments))
	if err != nil {
		return err
	}

	engine := r.Engine
	if engine == "" {
		engine, err = EnginePath()
		if err != nil {
			return err
		}
	}

	fds, err := ResolveDescriptors(cfg)
	if err != nil {
		return err
	}
	defer fds.Close()

	args := BuildArgs(cfg, fds, command)
	if r.OnTokens != nil {
		r.OnTokens(append([]string{engine}, args...))
	}

	logger.Debug("running sandboxed command",
		"engine", engine,
		"sources", len(fragments),
		"inherited_fds", len(fds.ExtraFiles()),
		"command", command,
	)

	cmd := exec.CommandContext(ctx, engine, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	// The child inherits the standard streams plus exactly the
	// resolved descriptor set, nothing else.
	cmd.ExtraFiles = fds.ExtraFiles()

	// Set process group for clean shutdown.
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}

	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return &ExitError{Code: exitErr.ExitCode()}
		}
		return fmt.Errorf("engine invocation failed: %w", err)
	}
	return nil
}

// Tokens resolves the configuration and returns the token sequence
// that Run would hand to the engine, without spawning it. Descriptors
// are opened to obtain their child-side numbers and closed again
// before returning.
func (r *Runner) Tokens(command []string) ([]string, error) {
	fragments, err := LoadSources(r.Sources, r.Lookup)
	if err != nil {
		return nil, err
	}
	cfg, err := Validate(MergeFragments(fragments))
	if err != nil {
		return nil, err
	}

	engine := r.Engine
	if engine == "" {
		engine, err = EnginePath()
		if err != nil {
			return nil, err
		}
	}

	fds, err := ResolveDescriptors(cfg)
	if err != nil {
		return nil, err
	}
	defer fds.Close()

	return append([]string{engine}, BuildArgs(cfg, fds, command)...), nil
}
