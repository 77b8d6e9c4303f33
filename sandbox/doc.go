// Copyright 2026 The Cask Authors
// SPDX-License-Identifier: Apache-2.0

// Package sandbox turns declarative configuration fragments into a single
// deterministic invocation of bubblewrap (bwrap), the external engine that
// actually creates namespaces and mounts.
//
// A run is a synchronous pipeline. [LoadSources] reads each YAML or JSONC
// fragment and substitutes ${NAME}/$NAME environment references in string
// values. [MergeFragments] left-folds the fragments into one untyped tree,
// applying per-key strategies: scalars replace, nested maps merge
// recursively, mount/overlay/file-op lists merge by destination, and plain
// lists concatenate with first-seen deduplication. [Validate] converts the
// merged tree into an immutable [Config], aggregating every field-level
// violation into a [SchemaError] and naming cross-field rule violations in
// an [InvariantError]. Nothing touches the filesystem or a process before
// validation succeeds.
//
// [ResolveDescriptors] then scans the validated configuration for every
// value that denotes a file descriptor. Filesystem paths are opened
// read-only and owned by the resulting [FDSet]; already-numeric descriptors
// are duplicated for inheritance and the originals left untouched. Seccomp
// policies written as YAML ([CompileSeccompPolicy]) are compiled to BPF
// filter programs and staged in memory-backed descriptors. [BuildArgs] maps
// the configuration and descriptor set into the engine's ordered token
// grammar; identical inputs always produce an identical token sequence.
//
// [Runner] drives the pipeline and spawns the engine with exactly the
// inherited descriptor set plus the standard streams, blocking until the
// child exits. A non-zero child exit surfaces as [ExitError] with the
// child's code unchanged. Descriptors the run opened are closed exactly
// once on every exit path.
package sandbox
