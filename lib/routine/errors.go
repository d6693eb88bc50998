// Copyright 2026 The Yatfs Authors
// SPDX-License-Identifier: Apache-2.0

package routine

import "errors"

var (
	// ErrStopped is returned to readers when the routine is not
	// running or stops while they wait.
	ErrStopped = errors.New("routine stopped")

	// ErrStopTimeout means StopLoop gave up waiting for in-flight
	// fetches. The loop still finishes on its own.
	ErrStopTimeout = errors.New("timed out waiting for routine to stop")

	// ErrPieceUnavailable means the backend does not have the piece
	// yet. Fetches failing with it are retried.
	ErrPieceUnavailable = errors.New("piece not available")

	// ErrCorruptPiece means fetched data failed its SHA-1 check.
	ErrCorruptPiece = errors.New("piece failed hash check")

	// ErrBadContentRef means an inode's content reference does not
	// fit its torrent.
	ErrBadContentRef = errors.New("content reference does not match torrent")
)
