// Copyright 2026 The Cask Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Config is the validated, typed sandbox configuration. It is produced
// by [Validate] and is read-only for the remainder of the run.
type Config struct {
	General    GeneralConfig   `yaml:"general,omitempty"`
	Namespaces NamespaceConfig `yaml:"namespaces,omitempty"`
	IDMappings IDMappingConfig `yaml:"id_mappings,omitempty"`
	Mounts     MountConfig     `yaml:"mounts,omitempty"`
	Overlays   []Overlay       `yaml:"overlays,omitempty"`
	FileOps    []FileOp        `yaml:"file_ops,omitempty"`
	Env        EnvConfig       `yaml:"env,omitempty"`
	Security   SecurityConfig  `yaml:"security,omitempty"`
	Monitor    MonitorConfig   `yaml:"monitor,omitempty"`

	// Perms is the default octal mode applied to tmpfs mounts and
	// file operations that carry no explicit mode.
	Perms string `yaml:"perms,omitempty"`

	// Size is the size in bytes applied to tmpfs mounts.
	Size int64 `yaml:"size,omitempty"`

	// Chdir is the working directory inside the sandbox.
	Chdir string `yaml:"chdir,omitempty"`
}

// GeneralConfig holds engine-level options.
type GeneralConfig struct {
	// ArgsFD is a descriptor the engine reads additional arguments from.
	ArgsFD *int `yaml:"args_fd,omitempty"`

	// Argv0 overrides the name the command sees as its argv[0].
	Argv0 string `yaml:"argv0,omitempty"`

	// LevelPrefix prefixes engine diagnostics with a severity level.
	LevelPrefix bool `yaml:"level_prefix,omitempty"`
}

// Namespace kinds accepted in unshare/share sets.
const (
	NamespaceUser   = "user"
	NamespaceIPC    = "ipc"
	NamespacePID    = "pid"
	NamespaceNet    = "net"
	NamespaceUTS    = "uts"
	NamespaceCgroup = "cgroup"

	// NamespaceAll expands to the engine's exclusive "unshare
	// everything" flag and is never combined with individual kinds.
	NamespaceAll = "all"
)

// NamespaceConfig defines which namespaces to unshare or share.
type NamespaceConfig struct {
	Unshare []string `yaml:"unshare,omitempty"`
	Share   []string `yaml:"share,omitempty"`

	// UserNS, UserNS2 and PidNS are descriptors of existing namespaces
	// the engine should join instead of creating new ones.
	UserNS  *int `yaml:"userns,omitempty"`
	UserNS2 *int `yaml:"userns2,omitempty"`
	PidNS   *int `yaml:"pidns,omitempty"`

	// DisableUserNS disables further user namespace creation inside
	// the sandbox. Requires "user" in Unshare.
	DisableUserNS bool `yaml:"disable_userns,omitempty"`

	// AssertUserNSDisabled fails unless user namespace creation is
	// already impossible inside the sandbox.
	AssertUserNSDisabled bool `yaml:"assert_userns_disabled,omitempty"`

	Hostname string `yaml:"hostname,omitempty"`
}

// IDMap maps one host uid/gid to a container uid/gid.
type IDMap struct {
	Host      int `yaml:"host"`
	Container int `yaml:"container"`
}

// IDMappingConfig holds ordered uid and gid mappings.
type IDMappingConfig struct {
	UID []IDMap `yaml:"uid,omitempty"`
	GID []IDMap `yaml:"gid,omitempty"`
}

// BindType discriminates bind mount records. The translator switches
// exhaustively over these; there is no fallback path.
type BindType string

// Bind mount types and the engine flags they map to.
const (
	BindDefault   BindType = ""           // --bind
	BindRO        BindType = "ro"         // --ro-bind
	BindDev       BindType = "dev"        // --dev-bind
	BindProc      BindType = "proc"       // --proc (dest only)
	BindRecursive BindType = "rbind"      // --rbind
	BindTmpfs     BindType = "tmpfs"      // --tmpfs (dest only)
	BindTry       BindType = "try"        // --bind-try
	BindDevTry    BindType = "dev-try"    // --dev-bind-try
	BindROTry     BindType = "ro-try"     // --ro-bind-try
	BindRemountRO BindType = "remount-ro" // --remount-ro (dest only)
	BindMqueue    BindType = "mqueue"     // --mqueue (dest only)
)

// Bind defines one bind mount in the sandbox.
type Bind struct {
	Type BindType `yaml:"type,omitempty"`
	Src  string   `yaml:"src,omitempty"`
	Dest string   `yaml:"dest"`
}

// MountConfig groups the mount lists.
type MountConfig struct {
	Binds []Bind   `yaml:"binds,omitempty"`
	Tmpfs []string `yaml:"tmpfs,omitempty"`
	Dev   []string `yaml:"dev,omitempty"`
}

// OverlayType discriminates overlay records.
type OverlayType string

// Overlay types and the engine flags that consume them.
const (
	OverlayReadWrite OverlayType = "overlay"     // --overlay rwsrc workdir dest
	OverlayTmp       OverlayType = "tmp-overlay" // --tmp-overlay dest
	OverlayReadOnly  OverlayType = "ro-overlay"  // --ro-overlay dest
)

// Overlay defines one overlay mount. Sources become --overlay-src
// flags emitted immediately before the consuming flag.
type Overlay struct {
	Type     OverlayType `yaml:"type"`
	Sources  []string    `yaml:"sources,omitempty"`
	RWSource string      `yaml:"rwsrc,omitempty"`
	Workdir  string      `yaml:"workdir,omitempty"`
	Dest     string      `yaml:"dest"`
}

// FileOpType discriminates file operation records.
type FileOpType string

// File operation types.
const (
	FileOpFile       FileOpType = "file"         // --file fd dest
	FileOpBindData   FileOpType = "bind-data"    // --bind-data fd dest
	FileOpROBindData FileOpType = "ro-bind-data" // --ro-bind-data fd dest
	FileOpSymlink    FileOpType = "symlink"      // --symlink target dest
	FileOpChmod      FileOpType = "chmod"        // --chmod mode dest
	FileOpDir        FileOpType = "dir"          // --dir dest
)

// FileOp defines one file operation inside the sandbox. For the
// data-carrying types (file, bind-data, ro-bind-data) Src is either a
// filesystem path opened read-only or an already-open descriptor
// number. For symlink, Src is the link target.
type FileOp struct {
	Type FileOpType `yaml:"type"`
	Src  FDSource   `yaml:"src,omitempty"`
	Dest string     `yaml:"dest"`
	Mode string     `yaml:"mode,omitempty"`
}

// EnvConfig describes the child environment.
type EnvConfig struct {
	Set   map[string]string `yaml:"set,omitempty"`
	Unset []string          `yaml:"unset,omitempty"`
	Clear bool              `yaml:"clear,omitempty"`
}

// SecurityConfig holds seccomp, capability, label and control
// descriptor settings.
type SecurityConfig struct {
	// Seccomp entries are compiled BPF programs, given either as
	// filesystem paths (opened read-only) or descriptor numbers.
	Seccomp []FDSource `yaml:"seccomp,omitempty"`

	// AddSeccompFD entries are additional compiled programs, always
	// given as already-open descriptor numbers.
	AddSeccompFD []int `yaml:"add_seccomp_fd,omitempty"`

	// SeccompPolicy entries are YAML policy files compiled with
	// CompileSeccompPolicy and handed to the engine as descriptors.
	SeccompPolicy []string `yaml:"seccomp_policy,omitempty"`

	CapsAdd  []string `yaml:"caps_add,omitempty"`
	CapsDrop []string `yaml:"caps_drop,omitempty"`

	ExecLabel string `yaml:"exec_label,omitempty"`
	FileLabel string `yaml:"file_label,omitempty"`

	BlockFD       *int `yaml:"block_fd,omitempty"`
	UserNSBlockFD *int `yaml:"userns_block_fd,omitempty"`
	InfoFD        *int `yaml:"info_fd,omitempty"`
	JSONStatusFD  *int `yaml:"json_status_fd,omitempty"`

	NewSession    bool `yaml:"new_session,omitempty"`
	DieWithParent bool `yaml:"die_with_parent,omitempty"`
	AsPid1        bool `yaml:"as_pid_1,omitempty"`
}

// MonitorConfig holds lock file paths and the sync descriptor.
type MonitorConfig struct {
	LockFiles []string `yaml:"lock_files,omitempty"`
	SyncFD    *int     `yaml:"sync_fd,omitempty"`
}

// FDSource is a value that denotes a file descriptor: either a
// filesystem path the run opens itself, or the number of a descriptor
// already open in this process.
type FDSource struct {
	Path string
	FD   int
	IsFD bool
}

// UnmarshalYAML accepts either an integer (descriptor number) or a
// string (path).
func (s *FDSource) UnmarshalYAML(value *yaml.Node) error {
	var n int
	if err := value.Decode(&n); err == nil {
		*s = FDSource{FD: n, IsFD: true}
		return nil
	}
	var p string
	if err := value.Decode(&p); err != nil {
		return fmt.Errorf("must be a path or a descriptor number")
	}
	*s = FDSource{Path: p}
	return nil
}

// MarshalYAML emits the form the source was given in.
func (s FDSource) MarshalYAML() (any, error) {
	if s.IsFD {
		return s.FD, nil
	}
	return s.Path, nil
}

// IsZero reports whether the source is unset. Used by yaml omitempty.
func (s FDSource) IsZero() bool {
	return !s.IsFD && s.Path == ""
}

func (s FDSource) String() string {
	if s.IsFD {
		return fmt.Sprintf("fd %d", s.FD)
	}
	return s.Path
}
