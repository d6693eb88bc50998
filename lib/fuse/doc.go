// Copyright 2026 The Yatfs Authors
// SPDX-License-Identifier: Apache-2.0

// Package fuse exposes an inode store as a FUSE filesystem.
//
// Every kernel inode is a store inode with the same number. Directory
// structure, ownership and timestamps come straight from the store, so
// stat, readdir and open work before any payload is present. Reads go
// through [routine.Controller.ReadFile] and block until the covering
// pieces are fetched or the read timeout expires, which surfaces as
// EIO.
//
// The mount is read-only for file data. Directories can be created
// and removed, files unlinked, and timestamps changed; all of those
// are store operations.
package fuse
