// Copyright 2026 The Yatfs Authors
// SPDX-License-Identifier: Apache-2.0

package inodedb

import (
	"errors"
	"fmt"
)

var (
	// ErrPathConflict means a non-directory occupies a path component
	// that MkdirP needs to be a directory.
	ErrPathConflict = errors.New("path conflict")

	// ErrAlreadyExists means the target name is taken.
	ErrAlreadyExists = errors.New("already exists")

	// ErrNoSuchParent means the directory that should contain a new
	// entry does not exist.
	ErrNoSuchParent = errors.New("no such parent directory")

	// ErrNoSuchInode means an inode number is not in the store.
	ErrNoSuchInode = errors.New("no such inode")

	// ErrNoSuchEntry means a name lookup found nothing.
	ErrNoSuchEntry = errors.New("no such entry")

	// ErrNotDirectory means a directory operation hit a non-directory.
	ErrNotDirectory = errors.New("not a directory")

	// ErrIsDirectory means a file operation hit a directory.
	ErrIsDirectory = errors.New("is a directory")

	// ErrNotEmpty means Rmdir was asked to remove a directory that
	// still has entries.
	ErrNotEmpty = errors.New("directory not empty")

	// ErrInvalidName means a name is empty, "." or "..", or contains a
	// slash.
	ErrInvalidName = errors.New("invalid name")

	// ErrReadOnly means a write was attempted inside View.
	ErrReadOnly = errors.New("write in read-only transaction")

	// ErrStoreInconsistency is wrapped by every [InconsistencyError].
	ErrStoreInconsistency = errors.New("inode store inconsistency")
)

// InconsistencyError describes the first problem Fsck found.
type InconsistencyError struct {
	// Ino is the offending inode, or 0 when the problem is not tied to
	// one row.
	Ino uint64

	// Problem is a human-readable description.
	Problem string
}

func (e *InconsistencyError) Error() string {
	if e.Ino == 0 {
		return fmt.Sprintf("%s: %s", ErrStoreInconsistency, e.Problem)
	}
	return fmt.Sprintf("%s: inode %d: %s", ErrStoreInconsistency, e.Ino, e.Problem)
}

func (e *InconsistencyError) Unwrap() error { return ErrStoreInconsistency }

func inconsistent(ino uint64, format string, args ...any) error {
	return &InconsistencyError{Ino: ino, Problem: fmt.Sprintf(format, args...)}
}
