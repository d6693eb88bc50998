// Copyright 2026 The Yatfs Authors
// SPDX-License-Identifier: Apache-2.0

package torrent

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means no source produced metainfo for a hash.
	ErrNotFound = errors.New("torrent data not found")

	// ErrMalformedTorrent means metainfo bytes could not be decoded
	// into a usable descriptor.
	ErrMalformedTorrent = errors.New("malformed torrent")

	// ErrHashMismatch means a source returned metainfo for a different
	// torrent than the one requested. It wraps ErrMalformedTorrent.
	ErrHashMismatch = fmt.Errorf("%w: info hash mismatch", ErrMalformedTorrent)
)
