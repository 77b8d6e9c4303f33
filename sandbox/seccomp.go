// Copyright 2026 The Cask Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	seccomp "github.com/elastic/go-seccomp-bpf"
	"golang.org/x/net/bpf"
	"gopkg.in/yaml.v3"
)

// seccompPolicyDoc is the on-disk shape of a YAML seccomp policy.
//
//	default_action: errno
//	syscalls:
//	  - action: allow
//	    names: [read, write, exit_group]
type seccompPolicyDoc struct {
	DefaultAction string `yaml:"default_action"`
	Syscalls      []struct {
		Action string   `yaml:"action"`
		Names  []string `yaml:"names"`
	} `yaml:"syscalls"`
}

var seccompActions = map[string]seccomp.Action{
	"allow":        seccomp.ActionAllow,
	"errno":        seccomp.ActionErrno,
	"trap":         seccomp.ActionTrap,
	"trace":        seccomp.ActionTrace,
	"log":          seccomp.ActionLog,
	"kill_thread":  seccomp.ActionKillThread,
	"kill_process": seccomp.ActionKillProcess,
}

// CompileSeccompPolicy reads a YAML seccomp policy and compiles it into
// a raw BPF filter program in the binary form the engine expects: an
// array of 8-byte sock_filter structs in native byte order. Syscall
// names are resolved for the runtime architecture by the policy
// assembler.
func CompileSeccompPolicy(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &SourceNotFoundError{Path: path, Err: err}
	}

	var doc seccompPolicyDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &SyntaxError{Path: path, Err: err}
	}

	policy, err := policyFromDoc(&doc)
	if err != nil {
		return nil, &SyntaxError{Path: path, Err: err}
	}

	insts, err := policy.Assemble()
	if err != nil {
		return nil, fmt.Errorf("cannot assemble seccomp policy %q: %w", path, err)
	}
	raw, err := bpf.Assemble(insts)
	if err != nil {
		return nil, fmt.Errorf("cannot assemble seccomp policy %q: %w", path, err)
	}

	var buf bytes.Buffer
	for _, inst := range raw {
		if err := binary.Write(&buf, binary.NativeEndian, inst); err != nil {
			return nil, fmt.Errorf("cannot encode seccomp policy %q: %w", path, err)
		}
	}
	return buf.Bytes(), nil
}

func policyFromDoc(doc *seccompPolicyDoc) (*seccomp.Policy, error) {
	defaultAction, ok := seccompActions[doc.DefaultAction]
	if !ok {
		return nil, fmt.Errorf("unknown default_action %q", doc.DefaultAction)
	}
	policy := &seccomp.Policy{DefaultAction: defaultAction}
	for i, group := range doc.Syscalls {
		action, ok := seccompActions[group.Action]
		if !ok {
			return nil, fmt.Errorf("syscalls[%d]: unknown action %q", i, group.Action)
		}
		if len(group.Names) == 0 {
			return nil, fmt.Errorf("syscalls[%d]: names is required", i)
		}
		policy.Syscalls = append(policy.Syscalls, seccomp.SyscallGroup{
			Action: action,
			Names:  group.Names,
		})
	}
	return policy, nil
}
