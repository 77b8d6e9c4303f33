// Copyright 2026 The Cask Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// FDSet is the resolved set of descriptors the child engine inherits.
// Fields hold child-side descriptor numbers (what the translated argv
// refers to), or -1 when the corresponding configuration value is
// unset. Inherited descriptors start at 3 and follow discovery order.
//
// Path-valued sources are opened read-only and owned by the set.
// Already-numeric sources are duplicated for inheritance; the caller's
// original descriptors are never touched or closed.
type FDSet struct {
	ArgsFD int

	UserNSFD  int
	UserNS2FD int
	PidNSFD   int

	// FileOpFDs maps a file_ops index to the child descriptor carrying
	// its data. Only data-carrying operations have entries.
	FileOpFDs map[int]int

	SeccompFDs    []int
	AddSeccompFDs []int
	PolicyFDs     []int

	BlockFD       int
	UserNSBlockFD int
	InfoFD        int
	JSONStatusFD  int

	SyncFD int

	files  []*os.File
	closed bool
}

// ResolveDescriptors scans the validated configuration for every value
// that denotes a file descriptor and produces the inherited set. The
// scan follows the schema's declaration order: general, namespaces,
// file operations, security, monitor. On error, every descriptor
// opened so far is closed before returning.
func ResolveDescriptors(cfg *Config) (*FDSet, error) {
	s := newFDSet()
	if err := s.resolve(cfg); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func newFDSet() *FDSet {
	return &FDSet{
		ArgsFD:        -1,
		UserNSFD:      -1,
		UserNS2FD:     -1,
		PidNSFD:       -1,
		FileOpFDs:     make(map[int]int),
		BlockFD:       -1,
		UserNSBlockFD: -1,
		InfoFD:        -1,
		JSONStatusFD:  -1,
		SyncFD:        -1,
	}
}

func (s *FDSet) resolve(cfg *Config) error {
	var err error
	if s.ArgsFD, err = s.borrowOptional(cfg.General.ArgsFD, "args"); err != nil {
		return err
	}

	if s.UserNSFD, err = s.borrowOptional(cfg.Namespaces.UserNS, "userns"); err != nil {
		return err
	}
	if s.UserNS2FD, err = s.borrowOptional(cfg.Namespaces.UserNS2, "userns2"); err != nil {
		return err
	}
	if s.PidNSFD, err = s.borrowOptional(cfg.Namespaces.PidNS, "pidns"); err != nil {
		return err
	}

	for i, op := range cfg.FileOps {
		switch op.Type {
		case FileOpFile, FileOpBindData, FileOpROBindData:
			childFD, err := s.fromSource(op.Src)
			if err != nil {
				return err
			}
			s.FileOpFDs[i] = childFD
		}
	}

	for _, src := range cfg.Security.Seccomp {
		childFD, err := s.fromSource(src)
		if err != nil {
			return err
		}
		s.SeccompFDs = append(s.SeccompFDs, childFD)
	}
	for _, fd := range cfg.Security.AddSeccompFD {
		childFD, err := s.borrow(fd, "add-seccomp")
		if err != nil {
			return err
		}
		s.AddSeccompFDs = append(s.AddSeccompFDs, childFD)
	}
	for _, path := range cfg.Security.SeccompPolicy {
		program, err := CompileSeccompPolicy(path)
		if err != nil {
			return err
		}
		childFD, err := s.stage("cask-seccomp", program)
		if err != nil {
			return err
		}
		s.PolicyFDs = append(s.PolicyFDs, childFD)
	}
	if s.BlockFD, err = s.borrowOptional(cfg.Security.BlockFD, "block"); err != nil {
		return err
	}
	if s.UserNSBlockFD, err = s.borrowOptional(cfg.Security.UserNSBlockFD, "userns-block"); err != nil {
		return err
	}
	if s.InfoFD, err = s.borrowOptional(cfg.Security.InfoFD, "info"); err != nil {
		return err
	}
	if s.JSONStatusFD, err = s.borrowOptional(cfg.Security.JSONStatusFD, "json-status"); err != nil {
		return err
	}

	if s.SyncFD, err = s.borrowOptional(cfg.Monitor.SyncFD, "sync"); err != nil {
		return err
	}
	return nil
}

// add takes ownership of a file and returns the descriptor number it
// will have in the child: inherited files land at 3, 4, 5... in order.
func (s *FDSet) add(f *os.File) int {
	s.files = append(s.files, f)
	return 3 + len(s.files) - 1
}

// open opens a path-valued descriptor source read-only. The set owns
// the resulting descriptor.
func (s *FDSet) open(path string) (int, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return -1, &DescriptorOpenError{Path: path, Err: err}
	}
	return s.add(os.NewFile(uintptr(fd), path)), nil
}

// borrow duplicates an already-open descriptor for inheritance. The
// set owns only the duplicate; the original stays with the caller.
func (s *FDSet) borrow(fd int, name string) (int, error) {
	dup, err := unix.Dup(fd)
	if err != nil {
		return -1, &DescriptorOpenError{Path: fmt.Sprintf("fd %d", fd), Err: err}
	}
	unix.CloseOnExec(dup)
	return s.add(os.NewFile(uintptr(dup), name)), nil
}

func (s *FDSet) borrowOptional(fd *int, name string) (int, error) {
	if fd == nil {
		return -1, nil
	}
	return s.borrow(*fd, name)
}

func (s *FDSet) fromSource(src FDSource) (int, error) {
	if src.IsFD {
		return s.borrow(src.FD, "seccomp")
	}
	return s.open(src.Path)
}

// stage writes data into an anonymous memory-backed descriptor and
// rewinds it so the engine reads the full content.
func (s *FDSet) stage(name string, data []byte) (int, error) {
	fd, err := unix.MemfdCreate(name, unix.MFD_CLOEXEC)
	if err != nil {
		return -1, &DescriptorOpenError{Path: name, Err: err}
	}
	f := os.NewFile(uintptr(fd), name)
	if _, err := f.Write(data); err != nil {
		f.Close()
		return -1, &DescriptorOpenError{Path: name, Err: err}
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return -1, &DescriptorOpenError{Path: name, Err: err}
	}
	return s.add(f), nil
}

// ExtraFiles returns the inherited files in discovery order, matching
// the child descriptor numbers handed out by add.
func (s *FDSet) ExtraFiles() []*os.File {
	return s.files
}

// Close closes every descriptor the set owns, exactly once. Safe to
// call multiple times; later calls are no-ops.
func (s *FDSet) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	var firstErr error
	for _, f := range s.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
