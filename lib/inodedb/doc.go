// Copyright 2026 The Yatfs Authors
// SPDX-License-Identifier: Apache-2.0

// Package inodedb is the persistent inode table behind a yatfs mount.
//
// Every filesystem entry is one row keyed by its inode number. Rows link
// to their parent directory by inode and carry their name under that
// parent, so resolving a path is a walk from the root (ino 1) by
// successive (parent, name) lookups. Regular files backed by torrent
// payload carry a [ContentRef] naming the torrent's info hash and the
// file's position in the torrent's file list. The payload itself never
// enters the store.
//
// The table lives in SQLite (through lib/sqlitepool) in WAL mode. All
// writes go through [Store.Update], which runs one IMMEDIATE transaction
// per call: either every operation inside the callback is committed or
// none is. Readers use [Store.View] and see a consistent snapshot even
// while a writer is committing, so a torrent registered by
// add_torrent_file is never observed half-created.
//
// [Store.Fsck] walks the whole table checking the structural
// invariants (single root, no orphans, no duplicate names, no cycles)
// and, given a descriptor source, that each content reference points at
// an existing file of the right size.
package inodedb
