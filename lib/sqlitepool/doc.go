// Copyright 2026 The Yatfs Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens zombiezen.com/go/sqlite connection pools
// with the pragmas the inode database depends on.
//
// Every connection runs in WAL mode, so a reader that begins a
// transaction keeps seeing the snapshot it started with while a
// writer commits. This is what lets FUSE lookups proceed while
// add_torrent_file is registering a torrent without ever observing a
// half-registered one.
//
// Connections are not safe for concurrent use. Take one per goroutine
// and Put it back:
//
//	conn, err := pool.Take(ctx)
//	if err != nil {
//	    return err
//	}
//	defer pool.Put(conn)
//
// Transactions are managed with sqlitex.ImmediateTransaction (writers)
// and sqlitex.Transaction (snapshot readers).
package sqlitepool
