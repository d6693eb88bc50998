// Copyright 2026 The Yatfs Authors
// SPDX-License-Identifier: Apache-2.0

package inodedb

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/yatfs/yatfs/lib/torrent"
)

// RootIno is the inode number of the filesystem root. Its parent is
// the sentinel 0 and its name is empty.
const RootIno uint64 = 1

// ContentRef locates a regular file's payload: file Index of the
// torrent identified by Hash.
type ContentRef struct {
	Hash  torrent.Hash
	Index int
}

// Inode is one row of the store.
type Inode struct {
	Ino    uint64
	Parent uint64
	Name   string

	// Mode holds both the file type (S_IFDIR, S_IFREG) and the
	// permission bits.
	Mode uint32
	UID  uint32
	GID  uint32

	// Size is the byte length of a regular file. Directories store 0;
	// their reported size is the entry count.
	Size int64

	Ctime time.Time
	Mtime time.Time

	// Content is set only on torrent-backed regular files.
	Content *ContentRef
}

// IsDir reports whether the inode is a directory.
func (i *Inode) IsDir() bool { return i.Mode&unix.S_IFMT == unix.S_IFDIR }

// IsRegular reports whether the inode is a regular file.
func (i *Inode) IsRegular() bool { return i.Mode&unix.S_IFMT == unix.S_IFREG }

// Attrs are the caller-chosen attributes of a new inode.
type Attrs struct {
	// Perm is the permission part of the mode. Type bits are ignored.
	Perm uint32
	UID  uint32
	GID  uint32

	// Time sets ctime and mtime. The zero value means the store's
	// clock.
	Time time.Time
}

// SetAttr lists the mutable attributes SetattrIno may change. Nil
// fields are left alone.
type SetAttr struct {
	Ctime *time.Time
	Mtime *time.Time
}
