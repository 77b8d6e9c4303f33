// Copyright 2026 The Cask Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/cask-sandbox/cask/lib/process"
	"github.com/cask-sandbox/cask/lib/version"
	"github.com/cask-sandbox/cask/sandbox"
)

func main() {
	if err := run(); err != nil {
		// A sandboxed command's exit code is propagated unchanged.
		if code, ok := sandbox.IsExitError(err); ok {
			os.Exit(code)
		}
		process.Fatal(err)
	}
}

func run() error {
	var configs []string
	var engine string
	var verbose, check, selftest bool

	flagSet := pflag.NewFlagSet("cask", pflag.ContinueOnError)
	flagSet.StringArrayVarP(&configs, "config", "c", nil, "configuration source, repeatable; later sources override earlier ones")
	flagSet.StringVar(&engine, "engine", "", "path to the bwrap executable (default: probe standard locations)")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "print the generated engine invocation to stderr")
	flagSet.BoolVar(&check, "check", false, "probe host sandbox capabilities and exit")
	flagSet.BoolVar(&selftest, "selftest", false, "run isolation probes in the current environment and exit")
	flagSet.BoolP("help", "h", false, "show help")

	// Handle --version before flag parsing to match other Cask binaries.
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("cask")
		return nil
	}

	// Everything after the separator belongs to the sandboxed command
	// and is never interpreted as flags.
	flagArgs, command := splitCommand(os.Args[1:])

	if err := flagSet.Parse(flagArgs); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	// Set up logging.
	logLevel := slog.LevelInfo
	if os.Getenv("CASK_DEBUG") != "" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	if check {
		return runCheck()
	}
	if selftest {
		return runSelftest()
	}

	if len(configs) == 0 {
		return fmt.Errorf("at least one --config source is required")
	}
	if len(command) == 0 {
		return fmt.Errorf("no command given (pass it after the -- separator)")
	}

	runner := &sandbox.Runner{
		Sources: configs,
		Engine:  engine,
		Logger:  logger,
	}
	if verbose {
		runner.OnTokens = printTokens
	}
	return runner.Run(context.Background(), command)
}

// splitCommand separates flag arguments from the trailing command
// tokens at the first "--".
func splitCommand(args []string) (flagArgs, command []string) {
	for i, arg := range args {
		if arg == "--" {
			return args[:i], args[i+1:]
		}
	}
	return args, nil
}

// printTokens emits the generated token sequence to stderr: one token
// per line when stderr is a terminal, a single shell-style line
// otherwise (so pipes get something greppable).
func printTokens(tokens []string) {
	if term.IsTerminal(int(os.Stderr.Fd())) {
		fmt.Fprintln(os.Stderr, "generated engine invocation:")
		for _, token := range tokens {
			fmt.Fprintf(os.Stderr, "  %s\n", token)
		}
		return
	}
	fmt.Fprintln(os.Stderr, strings.Join(tokens, " "))
}

func runCheck() error {
	caps := sandbox.DetectCapabilities()
	fmt.Printf("engine available: %v\n", caps.EngineAvailable)
	if caps.EngineAvailable {
		fmt.Printf("engine path:      %s\n", caps.EnginePath)
		fmt.Printf("engine version:   %s\n", caps.EngineVersion)
	}
	fmt.Printf("user namespaces:  %v\n", caps.UserNamespacesEnabled)
	if !caps.CanRun() {
		return fmt.Errorf("sandboxing unavailable: %s", caps.SkipReason())
	}
	return nil
}

// runSelftest checks isolation from inside a sandbox:
//
//	cask --config base.yaml -- cask --selftest
func runSelftest() error {
	results := sandbox.RunProbes(context.Background())
	if failed := sandbox.PrintProbeResults(os.Stdout, results); failed > 0 {
		return fmt.Errorf("%d isolation probes failed", failed)
	}
	return nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Print(`cask - Run commands in isolated bubblewrap sandboxes

USAGE
    cask --config FILE [--config FILE ...] [flags] -- <command> [args...]

FLAGS
`)
	flagSet.PrintDefaults()
	fmt.Print(`
EXAMPLES
    # Run a shell in the sandbox described by base.yaml
    cask --config base.yaml -- bash

    # Layer a project fragment over the base (later overrides earlier)
    cask --config base.yaml --config project.yaml -- make test

    # Show the bwrap invocation without hunting through strace
    cask --config base.yaml --verbose -- true

    # Verify isolation from inside the sandbox
    cask --config base.yaml -- cask --selftest

ENVIRONMENT
    CASK_DEBUG    Enable debug logging

Configuration sources are YAML by default; files ending in .json or
.jsonc are parsed as JSON with comments allowed. String values may
reference environment variables as ${NAME} or $NAME.
`)
}
