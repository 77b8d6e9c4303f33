// Copyright 2026 The Cask Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"sort"
	"strconv"
)

// BuildArgs translates a validated configuration, its resolved
// descriptor set and the user-supplied command into the engine's
// ordered token sequence. The section order is fixed and matches the
// engine's documented semantics: later flags of the same kind modify
// the immediately preceding ones, so ordering is a correctness
// requirement. Identical inputs always produce an identical sequence.
//
// The trailing command tokens pass through after the "--" separator
// byte-for-byte; they are never reinterpreted, reordered or escaped.
func BuildArgs(cfg *Config, fds *FDSet, command []string) []string {
	b := &argBuilder{cfg: cfg, fds: fds}

	b.addGeneral()
	b.addNamespaces()
	b.addIDMappings()
	b.addChdirAndEnv()
	b.addMonitor()
	b.addBinds()
	b.addDevAndTmpfs()
	b.addOverlays()
	b.addFileOps()
	b.addSecurity()

	b.args = append(b.args, "--")
	b.args = append(b.args, command...)
	return b.args
}

type argBuilder struct {
	cfg  *Config
	fds  *FDSet
	args []string
}

func (b *argBuilder) add(tokens ...string) {
	b.args = append(b.args, tokens...)
}

func (b *argBuilder) addFD(flag string, childFD int) {
	if childFD >= 0 {
		b.add(flag, strconv.Itoa(childFD))
	}
}

func (b *argBuilder) addGeneral() {
	g := b.cfg.General
	b.addFD("--args", b.fds.ArgsFD)
	if g.Argv0 != "" {
		b.add("--argv0", g.Argv0)
	}
	if g.LevelPrefix {
		b.add("--level-prefix")
	}
}

func (b *argBuilder) addNamespaces() {
	ns := b.cfg.Namespaces

	// The "all" sentinel expands to the engine's exclusive unshare-all
	// flag and is never combined with individual unshare flags.
	if containsString(ns.Unshare, NamespaceAll) {
		b.add("--unshare-all")
	} else {
		for _, kind := range ns.Unshare {
			b.add("--unshare-" + kind)
		}
	}
	for _, kind := range ns.Share {
		b.add("--share-" + kind)
	}

	b.addFD("--userns", b.fds.UserNSFD)
	b.addFD("--userns2", b.fds.UserNS2FD)
	b.addFD("--pidns", b.fds.PidNSFD)

	if ns.DisableUserNS {
		b.add("--disable-userns")
	}
	if ns.AssertUserNSDisabled {
		b.add("--assert-userns-disabled")
	}
	if ns.Hostname != "" {
		b.add("--hostname", ns.Hostname)
	}
}

func (b *argBuilder) addIDMappings() {
	for _, m := range b.cfg.IDMappings.UID {
		b.add("--map-uid", strconv.Itoa(m.Host)+":"+strconv.Itoa(m.Container))
	}
	for _, m := range b.cfg.IDMappings.GID {
		b.add("--map-gid", strconv.Itoa(m.Host)+":"+strconv.Itoa(m.Container))
	}
}

func (b *argBuilder) addChdirAndEnv() {
	if b.cfg.Chdir != "" {
		b.add("--chdir", b.cfg.Chdir)
	}

	env := b.cfg.Env
	if env.Clear {
		b.add("--clearenv")
	}
	// Sort keys for deterministic output.
	keys := make([]string, 0, len(env.Set))
	for key := range env.Set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		b.add("--setenv", key, env.Set[key])
	}
	for _, key := range env.Unset {
		b.add("--unsetenv", key)
	}
}

func (b *argBuilder) addMonitor() {
	for _, path := range b.cfg.Monitor.LockFiles {
		b.add("--lock-file", path)
	}
	b.addFD("--sync-fd", b.fds.SyncFD)
}

// addPending emits the global perms/size context flags. The engine
// applies the most-recently-seen context flag to the next mount, so
// they must directly precede the flag they modify.
func (b *argBuilder) addPending() {
	if b.cfg.Perms != "" {
		b.add("--perms", b.cfg.Perms)
	}
	if b.cfg.Size > 0 {
		b.add("--size", strconv.FormatInt(b.cfg.Size, 10))
	}
}

func (b *argBuilder) addBinds() {
	for _, bind := range b.cfg.Mounts.Binds {
		switch bind.Type {
		case BindDefault:
			b.add("--bind", bind.Src, bind.Dest)
		case BindRO:
			b.add("--ro-bind", bind.Src, bind.Dest)
		case BindDev:
			b.add("--dev-bind", bind.Src, bind.Dest)
		case BindProc:
			b.add("--proc", bind.Dest)
		case BindRecursive:
			b.add("--rbind", bind.Src, bind.Dest)
		case BindTmpfs:
			b.addPending()
			b.add("--tmpfs", bind.Dest)
		case BindTry:
			b.add("--bind-try", bind.Src, bind.Dest)
		case BindDevTry:
			b.add("--dev-bind-try", bind.Src, bind.Dest)
		case BindROTry:
			b.add("--ro-bind-try", bind.Src, bind.Dest)
		case BindRemountRO:
			b.add("--remount-ro", bind.Dest)
		case BindMqueue:
			b.add("--mqueue", bind.Dest)
		}
	}
}

func (b *argBuilder) addDevAndTmpfs() {
	for _, path := range b.cfg.Mounts.Dev {
		b.add("--dev", path)
	}
	for _, path := range b.cfg.Mounts.Tmpfs {
		b.addPending()
		b.add("--tmpfs", path)
	}
}

func (b *argBuilder) addOverlays() {
	for _, overlay := range b.cfg.Overlays {
		for _, src := range overlay.Sources {
			b.add("--overlay-src", src)
		}
		switch overlay.Type {
		case OverlayReadWrite:
			b.add("--overlay", overlay.RWSource, overlay.Workdir, overlay.Dest)
		case OverlayTmp:
			b.add("--tmp-overlay", overlay.Dest)
		case OverlayReadOnly:
			b.add("--ro-overlay", overlay.Dest)
		}
	}
}

func (b *argBuilder) addFileOps() {
	for i, op := range b.cfg.FileOps {
		// Explicit per-operation mode takes precedence over the
		// global default.
		mode := op.Mode
		if mode == "" {
			mode = b.cfg.Perms
		}

		switch op.Type {
		case FileOpFile:
			b.addDataOp("--file", i, mode, op.Dest)
		case FileOpBindData:
			b.addDataOp("--bind-data", i, mode, op.Dest)
		case FileOpROBindData:
			b.addDataOp("--ro-bind-data", i, mode, op.Dest)
		case FileOpSymlink:
			b.add("--symlink", op.Src.Path, op.Dest)
		case FileOpChmod:
			b.add("--chmod", op.Mode, op.Dest)
		case FileOpDir:
			b.addPerms(mode)
			b.add("--dir", op.Dest)
		}
	}
}

func (b *argBuilder) addPerms(mode string) {
	if mode != "" {
		b.add("--perms", mode)
	}
}

// addDataOp emits a data-carrying file operation whose content arrives
// through an inherited descriptor.
func (b *argBuilder) addDataOp(flag string, index int, mode, dest string) {
	childFD, ok := b.fds.FileOpFDs[index]
	if !ok {
		return
	}
	b.addPerms(mode)
	b.add(flag, strconv.Itoa(childFD), dest)
}

func (b *argBuilder) addSecurity() {
	sec := b.cfg.Security

	for _, childFD := range b.fds.SeccompFDs {
		b.addFD("--seccomp", childFD)
	}
	for _, childFD := range b.fds.AddSeccompFDs {
		b.addFD("--add-seccomp-fd", childFD)
	}
	for _, childFD := range b.fds.PolicyFDs {
		b.addFD("--add-seccomp-fd", childFD)
	}

	if sec.ExecLabel != "" {
		b.add("--exec-label", sec.ExecLabel)
	}
	if sec.FileLabel != "" {
		b.add("--file-label", sec.FileLabel)
	}

	b.addFD("--block-fd", b.fds.BlockFD)
	b.addFD("--userns-block-fd", b.fds.UserNSBlockFD)
	b.addFD("--info-fd", b.fds.InfoFD)
	b.addFD("--json-status-fd", b.fds.JSONStatusFD)

	if sec.NewSession {
		b.add("--new-session")
	}
	if sec.DieWithParent {
		b.add("--die-with-parent")
	}
	if sec.AsPid1 {
		b.add("--as-pid-1")
	}

	for _, cap := range sec.CapsAdd {
		b.add("--cap-add", cap)
	}
	for _, cap := range sec.CapsDrop {
		b.add("--cap-drop", cap)
	}
}

func containsString(list []string, want string) bool {
	for _, have := range list {
		if have == want {
			return true
		}
	}
	return false
}
