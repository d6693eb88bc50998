// Copyright 2026 The Yatfs Authors
// SPDX-License-Identifier: Apache-2.0

package routine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/yatfs/yatfs/lib/torrent"
)

// Fetcher makes piece bytes available. FetchPiece returns the whole
// piece or an error; the routine verifies the hash, so implementations
// need not. Implementations must return promptly once ctx is done and
// be safe for concurrent use.
type Fetcher interface {
	FetchPiece(ctx context.Context, descriptor *torrent.Descriptor, piece int) ([]byte, error)
	Close() error
}

// LocalFetcher reads pieces from payload files under a data directory,
// laid out as <data_dir>/<name>/<path...> for multi-file torrents and
// <data_dir>/<name> for single-file ones. Missing or short files yield
// ErrPieceUnavailable, so pieces being written by another program are
// retried until complete.
type LocalFetcher struct {
	dataDir string
}

// NewLocalFetcher returns a fetcher reading from dataDir.
func NewLocalFetcher(dataDir string) *LocalFetcher {
	return &LocalFetcher{dataDir: dataDir}
}

// FetchPiece implements Fetcher.
func (f *LocalFetcher) FetchPiece(ctx context.Context, descriptor *torrent.Descriptor, piece int) ([]byte, error) {
	if piece < 0 || piece >= descriptor.NumPieces() {
		return nil, fmt.Errorf("piece %d out of range [0, %d)", piece, descriptor.NumPieces())
	}
	start := descriptor.PieceOffset(piece)
	buffer := make([]byte, descriptor.PieceSize(piece))
	end := start + int64(len(buffer))

	for index, file := range descriptor.Files {
		fileEnd := file.Offset + file.Length
		if fileEnd <= start || file.Offset >= end || file.Length == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		from := max(start, file.Offset)
		to := min(end, fileEnd)
		segments := append([]string{f.dataDir}, descriptor.StoragePath(index)...)
		if err := readRange(filepath.Join(segments...), from-file.Offset, buffer[from-start:to-start]); err != nil {
			return nil, fmt.Errorf("torrent %s piece %d: %w", descriptor.InfoHash, piece, err)
		}
	}
	return buffer, nil
}

func readRange(path string, offset int64, dest []byte) error {
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", path, ErrPieceUnavailable)
	}
	if err != nil {
		return err
	}
	defer file.Close()

	if _, err := file.ReadAt(dest, offset); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%s: short file: %w", path, ErrPieceUnavailable)
		}
		return err
	}
	return nil
}

// Close implements Fetcher.
func (f *LocalFetcher) Close() error { return nil }
