// Copyright 2026 The Cask Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"reflect"
	"strings"
	"testing"
)

func buildArgs(t *testing.T, cfg *Config, command ...string) []string {
	t.Helper()
	return BuildArgs(cfg, newFDSet(), command)
}

func indexOf(args []string, token string) int {
	for i, arg := range args {
		if arg == token {
			return i
		}
	}
	return -1
}

func TestBuildArgs(t *testing.T) {
	cfg := &Config{
		Namespaces: NamespaceConfig{
			Unshare:  []string{"pid", "net", "ipc"},
			Hostname: "cask",
		},
		Mounts: MountConfig{
			Binds: []Bind{
				{Type: BindDefault, Src: "/workspace", Dest: "/workspace"},
				{Type: BindRO, Src: "/usr", Dest: "/usr"},
				{Type: BindTmpfs, Dest: "/tmp"},
			},
		},
		Env: EnvConfig{
			Clear: true,
			Set:   map[string]string{"PATH": "/usr/bin", "HOME": "/workspace"},
			Unset: []string{"TMPDIR"},
		},
		Security: SecurityConfig{
			NewSession:    true,
			DieWithParent: true,
		},
	}

	args := buildArgs(t, cfg, "/bin/bash")
	argStr := strings.Join(args, " ")

	for _, want := range []string{
		"--unshare-pid",
		"--unshare-net",
		"--unshare-ipc",
		"--hostname cask",
		"--bind /workspace /workspace",
		"--ro-bind /usr /usr",
		"--tmpfs /tmp",
		"--clearenv",
		"--setenv HOME /workspace",
		"--setenv PATH /usr/bin",
		"--unsetenv TMPDIR",
		"--new-session",
		"--die-with-parent",
		"-- /bin/bash",
	} {
		if !strings.Contains(argStr, want) {
			t.Errorf("missing %q in: %s", want, argStr)
		}
	}
}

func TestBuildArgsDeterministic(t *testing.T) {
	cfg := &Config{
		Env: EnvConfig{
			Set: map[string]string{"C": "3", "A": "1", "B": "2", "D": "4"},
		},
		Security: SecurityConfig{
			CapsAdd:  []string{"CAP_NET_ADMIN"},
			CapsDrop: []string{"CAP_SYS_ADMIN"},
		},
	}

	first := buildArgs(t, cfg, "true")
	for i := 0; i < 10; i++ {
		if again := buildArgs(t, cfg, "true"); !reflect.DeepEqual(first, again) {
			t.Fatalf("translation not deterministic:\n%v\n%v", first, again)
		}
	}

	// Map iteration must not leak into the output: keys are sorted.
	argStr := strings.Join(first, " ")
	if !strings.Contains(argStr, "--setenv A 1 --setenv B 2 --setenv C 3 --setenv D 4") {
		t.Errorf("setenv keys not sorted: %s", argStr)
	}
}

func TestBuildArgsUnshareAllExclusive(t *testing.T) {
	cfg := &Config{
		Namespaces: NamespaceConfig{
			Unshare: []string{"pid", "all", "net"},
		},
	}
	args := buildArgs(t, cfg, "true")
	argStr := strings.Join(args, " ")

	if !strings.Contains(argStr, "--unshare-all") {
		t.Error("missing --unshare-all")
	}
	if strings.Contains(argStr, "--unshare-pid") || strings.Contains(argStr, "--unshare-net") {
		t.Errorf("individual unshare flags combined with --unshare-all: %s", argStr)
	}
}

func TestBuildArgsSectionOrder(t *testing.T) {
	cfg := &Config{
		General:    GeneralConfig{Argv0: "app"},
		Namespaces: NamespaceConfig{Unshare: []string{"pid"}},
		IDMappings: IDMappingConfig{
			UID: []IDMap{{Host: 1000, Container: 0}},
		},
		Chdir: "/work",
		Env:   EnvConfig{Set: map[string]string{"A": "1"}},
		Monitor: MonitorConfig{
			LockFiles: []string{"/run/lock"},
		},
		Mounts: MountConfig{
			Binds: []Bind{{Type: BindRO, Src: "/usr", Dest: "/usr"}},
			Dev:   []string{"/dev"},
			Tmpfs: []string{"/tmp"},
		},
		Overlays: []Overlay{
			{Type: OverlayTmp, Sources: []string{"/lower"}, Dest: "/merged"},
		},
		FileOps: []FileOp{
			{Type: FileOpDir, Dest: "/scratch"},
		},
		Security: SecurityConfig{
			CapsDrop: []string{"CAP_SYS_ADMIN"},
		},
	}

	args := buildArgs(t, cfg, "true")

	// Sections must appear in the engine's fixed order.
	sections := []string{
		"--argv0",
		"--unshare-pid",
		"--map-uid",
		"--chdir",
		"--setenv",
		"--lock-file",
		"--ro-bind",
		"--dev",
		"--tmpfs",
		"--overlay-src",
		"--tmp-overlay",
		"--dir",
		"--cap-drop",
		"--",
	}
	last := -1
	for _, section := range sections {
		at := indexOf(args, section)
		if at < 0 {
			t.Fatalf("missing %q in: %v", section, args)
		}
		if at < last {
			t.Errorf("%q out of order at %d (previous section at %d): %v", section, at, last, args)
		}
		last = at
	}
}

func TestBuildArgsBindTypeTable(t *testing.T) {
	tests := []struct {
		bind Bind
		want []string
	}{
		{Bind{Type: BindDefault, Src: "/s", Dest: "/d"}, []string{"--bind", "/s", "/d"}},
		{Bind{Type: BindRO, Src: "/s", Dest: "/d"}, []string{"--ro-bind", "/s", "/d"}},
		{Bind{Type: BindDev, Src: "/s", Dest: "/d"}, []string{"--dev-bind", "/s", "/d"}},
		{Bind{Type: BindProc, Dest: "/d"}, []string{"--proc", "/d"}},
		{Bind{Type: BindRecursive, Src: "/s", Dest: "/d"}, []string{"--rbind", "/s", "/d"}},
		{Bind{Type: BindTmpfs, Dest: "/d"}, []string{"--tmpfs", "/d"}},
		{Bind{Type: BindTry, Src: "/s", Dest: "/d"}, []string{"--bind-try", "/s", "/d"}},
		{Bind{Type: BindDevTry, Src: "/s", Dest: "/d"}, []string{"--dev-bind-try", "/s", "/d"}},
		{Bind{Type: BindROTry, Src: "/s", Dest: "/d"}, []string{"--ro-bind-try", "/s", "/d"}},
		{Bind{Type: BindRemountRO, Dest: "/d"}, []string{"--remount-ro", "/d"}},
		{Bind{Type: BindMqueue, Dest: "/d"}, []string{"--mqueue", "/d"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.bind.Type), func(t *testing.T) {
			cfg := &Config{Mounts: MountConfig{Binds: []Bind{tt.bind}}}
			args := buildArgs(t, cfg, "true")
			argStr := strings.Join(args, " ")
			if !strings.Contains(argStr, strings.Join(tt.want, " ")) {
				t.Errorf("missing %v in: %s", tt.want, argStr)
			}
		})
	}
}

func TestBuildArgsOverlaySourcesPrecedeConsumer(t *testing.T) {
	cfg := &Config{
		Overlays: []Overlay{
			{
				Type:     OverlayReadWrite,
				Sources:  []string{"/lower1", "/lower2"},
				RWSource: "/upper",
				Workdir:  "/work",
				Dest:     "/merged",
			},
			{Type: OverlayReadOnly, Sources: []string{"/a", "/b"}, Dest: "/ro"},
		},
	}
	args := buildArgs(t, cfg, "true")
	argStr := strings.Join(args, " ")

	if !strings.Contains(argStr,
		"--overlay-src /lower1 --overlay-src /lower2 --overlay /upper /work /merged") {
		t.Errorf("overlay sources must directly precede --overlay: %s", argStr)
	}
	if !strings.Contains(argStr,
		"--overlay-src /a --overlay-src /b --ro-overlay /ro") {
		t.Errorf("ro-overlay sources must directly precede --ro-overlay: %s", argStr)
	}
}

func TestBuildArgsPermsAndSizeContext(t *testing.T) {
	cfg := &Config{
		Perms: "0700",
		Size:  1048576,
		Mounts: MountConfig{
			Tmpfs: []string{"/tmp"},
		},
		FileOps: []FileOp{
			{Type: FileOpDir, Dest: "/a"},
			// Explicit per-operation mode overrides the global default.
			{Type: FileOpDir, Dest: "/b", Mode: "0755"},
		},
	}
	args := buildArgs(t, cfg, "true")
	argStr := strings.Join(args, " ")

	if !strings.Contains(argStr, "--perms 0700 --size 1048576 --tmpfs /tmp") {
		t.Errorf("tmpfs missing its context flags: %s", argStr)
	}
	if !strings.Contains(argStr, "--perms 0700 --dir /a") {
		t.Errorf("dir /a should inherit the global perms: %s", argStr)
	}
	if !strings.Contains(argStr, "--perms 0755 --dir /b") {
		t.Errorf("dir /b should use its own mode: %s", argStr)
	}
}

func TestBuildArgsSecuritySection(t *testing.T) {
	three, four := 3, 4
	cfg := &Config{
		Security: SecurityConfig{
			ExecLabel:     "exec_t",
			FileLabel:     "file_t",
			BlockFD:       &three,
			JSONStatusFD:  &four,
			NewSession:    true,
			DieWithParent: true,
			AsPid1:        true,
			CapsAdd:       []string{"CAP_NET_ADMIN"},
			CapsDrop:      []string{"CAP_SYS_ADMIN", "CAP_SYS_PTRACE"},
		},
	}
	fds := newFDSet()
	fds.BlockFD = 3
	fds.JSONStatusFD = 4

	args := BuildArgs(cfg, fds, []string{"true"})
	argStr := strings.Join(args, " ")

	for _, want := range []string{
		"--exec-label exec_t",
		"--file-label file_t",
		"--block-fd 3",
		"--json-status-fd 4",
		"--new-session",
		"--die-with-parent",
		"--as-pid-1",
		"--cap-add CAP_NET_ADMIN",
		"--cap-drop CAP_SYS_ADMIN --cap-drop CAP_SYS_PTRACE",
	} {
		if !strings.Contains(argStr, want) {
			t.Errorf("missing %q in: %s", want, argStr)
		}
	}

	// Capability adds come before drops.
	if indexOf(args, "--cap-add") > indexOf(args, "--cap-drop") {
		t.Errorf("--cap-add must precede --cap-drop: %s", argStr)
	}
}

func TestBuildArgsCommandVerbatim(t *testing.T) {
	cfg := &Config{}
	command := []string{"sh", "-c", "echo ${HOME} 'a b' | wc -l", "--", "--unshare-all"}

	args := buildArgs(t, cfg, command...)

	at := indexOf(args, "--")
	if at < 0 {
		t.Fatal("missing separator")
	}
	if !reflect.DeepEqual(args[at+1:], command) {
		t.Errorf("command altered: got %v, want %v", args[at+1:], command)
	}
}
