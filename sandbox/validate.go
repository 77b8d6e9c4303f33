// Copyright 2026 The Cask Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"
)

var namespaceKinds = map[string]bool{
	NamespaceUser:   true,
	NamespaceIPC:    true,
	NamespacePID:    true,
	NamespaceNet:    true,
	NamespaceUTS:    true,
	NamespaceCgroup: true,
	NamespaceAll:    true,
}

var bindTypes = map[BindType]bool{
	BindDefault:   true,
	BindRO:        true,
	BindDev:       true,
	BindProc:      true,
	BindRecursive: true,
	BindTmpfs:     true,
	BindTry:       true,
	BindDevTry:    true,
	BindROTry:     true,
	BindRemountRO: true,
	BindMqueue:    true,
}

var overlayTypes = map[OverlayType]bool{
	OverlayReadWrite: true,
	OverlayTmp:       true,
	OverlayReadOnly:  true,
}

var fileOpTypes = map[FileOpType]bool{
	FileOpFile:       true,
	FileOpBindData:   true,
	FileOpROBindData: true,
	FileOpSymlink:    true,
	FileOpChmod:      true,
	FileOpDir:        true,
}

var capNamePattern = regexp.MustCompile(`^CAP_[A-Z0-9_]+$`)

// Validate converts a merged tree into a typed Config. Field-level
// violations are aggregated into a single SchemaError; cross-field
// rule violations surface as an InvariantError naming the rule. This
// is the single gate before any descriptor is opened or process
// spawned.
func Validate(tree Fragment) (*Config, error) {
	cfg, err := decodeTree(tree)
	if err != nil {
		return nil, err
	}

	v := &schemaChecker{}
	v.checkGeneral(&cfg.General)
	v.checkNamespaces(&cfg.Namespaces)
	v.checkMounts(&cfg.Mounts)
	v.checkOverlays(cfg.Overlays)
	v.checkFileOps(cfg.FileOps)
	v.checkSecurity(&cfg.Security)
	v.checkMonitor(&cfg.Monitor)
	v.checkOctal("perms", cfg.Perms)
	if cfg.Size < 0 {
		v.fail("size: must be >= 0")
	}
	if len(v.violations) > 0 {
		return nil, &SchemaError{Violations: v.violations}
	}

	if err := checkInvariants(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decodeTree round-trips the untyped tree through YAML into the typed
// configuration. yaml.v3 collects every type mismatch and unknown
// field into one TypeError, which maps directly onto SchemaError.
func decodeTree(tree Fragment) (*Config, error) {
	data, err := yaml.Marshal(tree)
	if err != nil {
		return nil, &SchemaError{Violations: []string{err.Error()}}
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		var typeErr *yaml.TypeError
		if errors.As(err, &typeErr) {
			return nil, &SchemaError{Violations: typeErr.Errors}
		}
		return nil, &SchemaError{Violations: []string{err.Error()}}
	}
	return &cfg, nil
}

// schemaChecker accumulates field-level violations so they can all be
// reported at once.
type schemaChecker struct {
	violations []string
}

func (v *schemaChecker) fail(format string, args ...any) {
	v.violations = append(v.violations, fmt.Sprintf(format, args...))
}

func (v *schemaChecker) checkFD(field string, fd *int) {
	if fd != nil && *fd < 0 {
		v.fail("%s: descriptor number must be >= 0, got %d", field, *fd)
	}
}

func (v *schemaChecker) checkOctal(field, mode string) {
	if mode == "" {
		return
	}
	if _, err := strconv.ParseUint(mode, 8, 32); err != nil {
		v.fail("%s: %q is not an octal mode", field, mode)
	}
}

func (v *schemaChecker) checkGeneral(g *GeneralConfig) {
	v.checkFD("general.args_fd", g.ArgsFD)
}

func (v *schemaChecker) checkNamespaces(ns *NamespaceConfig) {
	for _, set := range []struct {
		field string
		kinds []string
	}{
		{"namespaces.unshare", ns.Unshare},
		{"namespaces.share", ns.Share},
	} {
		for _, kind := range set.kinds {
			if !namespaceKinds[kind] {
				v.fail("%s: unknown namespace kind %q", set.field, kind)
			}
		}
	}
	v.checkFD("namespaces.userns", ns.UserNS)
	v.checkFD("namespaces.userns2", ns.UserNS2)
	v.checkFD("namespaces.pidns", ns.PidNS)
}

func (v *schemaChecker) checkMounts(m *MountConfig) {
	for i, bind := range m.Binds {
		if !bindTypes[bind.Type] {
			v.fail("mounts.binds[%d]: unknown bind type %q", i, bind.Type)
		}
		if bind.Dest == "" {
			v.fail("mounts.binds[%d]: dest is required", i)
		}
	}
	for i, path := range m.Tmpfs {
		if path == "" {
			v.fail("mounts.tmpfs[%d]: path is required", i)
		}
	}
	for i, path := range m.Dev {
		if path == "" {
			v.fail("mounts.dev[%d]: path is required", i)
		}
	}
}

func (v *schemaChecker) checkOverlays(overlays []Overlay) {
	for i, overlay := range overlays {
		if !overlayTypes[overlay.Type] {
			v.fail("overlays[%d]: unknown overlay type %q", i, overlay.Type)
		}
		if overlay.Dest == "" {
			v.fail("overlays[%d]: dest is required", i)
		}
		if len(overlay.Sources) == 0 {
			v.fail("overlays[%d]: at least one source is required", i)
		}
	}
}

func (v *schemaChecker) checkFileOps(ops []FileOp) {
	for i, op := range ops {
		if !fileOpTypes[op.Type] {
			v.fail("file_ops[%d]: unknown file operation type %q", i, op.Type)
			continue
		}
		if op.Dest == "" {
			v.fail("file_ops[%d]: dest is required", i)
		}
		v.checkOctal(fmt.Sprintf("file_ops[%d].mode", i), op.Mode)

		switch op.Type {
		case FileOpFile, FileOpBindData, FileOpROBindData:
			if op.Src.IsZero() {
				v.fail("file_ops[%d]: src (path or descriptor) is required for %s", i, op.Type)
			} else if op.Src.IsFD && op.Src.FD < 0 {
				v.fail("file_ops[%d]: descriptor number must be >= 0, got %d", i, op.Src.FD)
			}
		case FileOpSymlink:
			if op.Src.IsFD {
				v.fail("file_ops[%d]: symlink src must be a path, not a descriptor", i)
			} else if op.Src.Path == "" {
				v.fail("file_ops[%d]: src (link target) is required for symlink", i)
			}
		case FileOpChmod:
			if op.Mode == "" {
				v.fail("file_ops[%d]: mode is required for chmod", i)
			}
			if !op.Src.IsZero() {
				v.fail("file_ops[%d]: chmod takes no src", i)
			}
		case FileOpDir:
			if !op.Src.IsZero() {
				v.fail("file_ops[%d]: dir takes no src", i)
			}
		}
	}
}

func (v *schemaChecker) checkSecurity(sec *SecurityConfig) {
	for i, src := range sec.Seccomp {
		if src.IsZero() {
			v.fail("security.seccomp[%d]: path or descriptor is required", i)
		} else if src.IsFD && src.FD < 0 {
			v.fail("security.seccomp[%d]: descriptor number must be >= 0, got %d", i, src.FD)
		}
	}
	for i, fd := range sec.AddSeccompFD {
		if fd < 0 {
			v.fail("security.add_seccomp_fd[%d]: descriptor number must be >= 0, got %d", i, fd)
		}
	}
	for i, path := range sec.SeccompPolicy {
		if path == "" {
			v.fail("security.seccomp_policy[%d]: path is required", i)
		}
	}
	for _, caps := range []struct {
		field string
		names []string
	}{
		{"security.caps_add", sec.CapsAdd},
		{"security.caps_drop", sec.CapsDrop},
	} {
		for _, name := range caps.names {
			if !capNamePattern.MatchString(name) {
				v.fail("%s: %q is not a capability name (expected CAP_*)", caps.field, name)
			}
		}
	}
	v.checkFD("security.block_fd", sec.BlockFD)
	v.checkFD("security.userns_block_fd", sec.UserNSBlockFD)
	v.checkFD("security.info_fd", sec.InfoFD)
	v.checkFD("security.json_status_fd", sec.JSONStatusFD)
}

func (v *schemaChecker) checkMonitor(m *MonitorConfig) {
	for i, path := range m.LockFiles {
		if path == "" {
			v.fail("monitor.lock_files[%d]: path is required", i)
		}
	}
	v.checkFD("monitor.sync_fd", m.SyncFD)
}

// checkInvariants enforces the cross-field rules. Destination
// uniqueness within the mount, overlay and file-op lists is not
// checked here: the destination-keyed merge resolves duplicates before
// validation ever sees them.
func checkInvariants(cfg *Config) error {
	for i, bind := range cfg.Mounts.Binds {
		switch bind.Type {
		case BindTmpfs:
			if bind.Src != "" {
				return &InvariantError{
					Rule:   "tmpfs-bind-no-source",
					Detail: fmt.Sprintf("mounts.binds[%d] (%s): tmpfs mounts don't use src", i, bind.Dest),
				}
			}
		case BindTry, BindDevTry, BindROTry:
			if bind.Src == "" {
				return &InvariantError{
					Rule:   "try-bind-needs-source",
					Detail: fmt.Sprintf("mounts.binds[%d] (%s): %s mounts require src", i, bind.Dest, bind.Type),
				}
			}
		}
	}

	if cfg.Namespaces.DisableUserNS && !unsharesUser(cfg.Namespaces.Unshare) {
		return &InvariantError{
			Rule:   "disable-userns-needs-unshare-user",
			Detail: "disable_userns requires \"user\" in namespaces.unshare",
		}
	}

	for i, overlay := range cfg.Overlays {
		switch overlay.Type {
		case OverlayReadWrite:
			if overlay.RWSource == "" || overlay.Workdir == "" {
				return &InvariantError{
					Rule:   "overlay-needs-rwsrc-workdir",
					Detail: fmt.Sprintf("overlays[%d] (%s): overlay requires both rwsrc and workdir", i, overlay.Dest),
				}
			}
		case OverlayReadOnly:
			if len(overlay.Sources) < 2 {
				return &InvariantError{
					Rule:   "ro-overlay-needs-two-sources",
					Detail: fmt.Sprintf("overlays[%d] (%s): ro-overlay requires at least two sources", i, overlay.Dest),
				}
			}
		}
	}

	return nil
}

// unsharesUser reports whether the unshare set creates a user
// namespace, either explicitly or through the "all" sentinel.
func unsharesUser(unshare []string) bool {
	for _, kind := range unshare {
		if kind == NamespaceUser || kind == NamespaceAll {
			return true
		}
	}
	return false
}
