// Copyright 2026 The Yatfs Authors
// SPDX-License-Identifier: Apache-2.0

package torrent

import (
	"encoding/hex"
	"fmt"
)

// HashSize is the length of an info hash in bytes.
const HashSize = 20

// Hash is a v1 BitTorrent info hash: the SHA-1 of the bencoded info
// dictionary.
type Hash [HashSize]byte

// ParseHash parses a 40-character hex string. Both cases are accepted.
func ParseHash(s string) (Hash, error) {
	var h Hash
	if len(s) != 2*HashSize {
		return h, fmt.Errorf("info hash %q: want %d hex characters, got %d", s, 2*HashSize, len(s))
	}
	if _, err := hex.Decode(h[:], []byte(s)); err != nil {
		return h, fmt.Errorf("info hash %q: %w", s, err)
	}
	return h, nil
}

// HashFromBytes copies a 20-byte slice into a Hash.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return h, fmt.Errorf("info hash: want %d bytes, got %d", HashSize, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// String returns the lowercase hex form used in file names and paths.
func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool { return h == Hash{} }
