// Copyright 2026 The Yatfs Authors
// SPDX-License-Identifier: Apache-2.0

package fuse

import (
	"context"
	"errors"
	"syscall"

	"github.com/yatfs/yatfs/lib/inodedb"
)

// toErrno translates store and routine errors for the kernel. Anything
// unrecognised, including fetch failures and read timeouts, is EIO.
func toErrno(err error) syscall.Errno {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, inodedb.ErrNoSuchEntry),
		errors.Is(err, inodedb.ErrNoSuchInode),
		errors.Is(err, inodedb.ErrNoSuchParent):
		return syscall.ENOENT
	case errors.Is(err, inodedb.ErrNotDirectory),
		errors.Is(err, inodedb.ErrPathConflict):
		return syscall.ENOTDIR
	case errors.Is(err, inodedb.ErrIsDirectory):
		return syscall.EISDIR
	case errors.Is(err, inodedb.ErrAlreadyExists):
		return syscall.EEXIST
	case errors.Is(err, inodedb.ErrNotEmpty):
		return syscall.ENOTEMPTY
	case errors.Is(err, inodedb.ErrInvalidName):
		return syscall.EINVAL
	case errors.Is(err, inodedb.ErrReadOnly):
		return syscall.EROFS
	case errors.Is(err, context.Canceled):
		return syscall.EINTR
	default:
		return syscall.EIO
	}
}
