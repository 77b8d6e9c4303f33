// Copyright 2026 The Cask Authors
// SPDX-License-Identifier: Apache-2.0

// Cask runs commands in isolated bubblewrap (bwrap) sandboxes described
// by declarative configuration fragments. Fragments given via repeated
// --config flags are merged in order (later overrides earlier),
// validated, and translated into one deterministic bwrap invocation;
// everything after the -- separator is passed to the sandboxed command
// verbatim.
package main
