// Copyright 2026 The Yatfs Authors
// SPDX-License-Identifier: Apache-2.0

// Package routine binds the inode store to torrent payload for one
// mount.
//
// A [Controller] owns the store handle, the descriptor [torrent.Resolver]
// and the background [Routine]. It is built once by the mount command
// and passed to the filesystem adapter; nothing here is global.
//
// [AddTorrentFile] registers every file of a torrent in one store
// transaction. [Controller.ReadFile] maps a file byte range to pieces
// and blocks until the routine has them, bounded by the configured read
// timeout.
//
// The Routine is an actor. One goroutine owns the table of pending
// fetches and the piece cache; readers talk to it only through
// channels. Each piece is fetched at most once at a time no matter how
// many readers want it, foreground reads jump ahead of readahead, and a
// bounded pool of goroutines runs the [Fetcher]. Failed fetches are
// retried with exponential backoff. [Routine.StopLoop] cancels
// in-flight fetches and returns once they have all finished, or with
// [ErrStopTimeout] when its context expires first.
package routine
