// Copyright 2026 The Yatfs Authors
// SPDX-License-Identifier: Apache-2.0

package torrent

import (
	"bytes"
	"crypto/sha1"
	"fmt"
	"strings"

	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"
)

// File is one entry of a torrent's file list.
type File struct {
	// Path holds the segments below the torrent's top-level name. A
	// single-file torrent has one entry whose Path is [Name].
	Path []string

	Length int64

	// Offset is the file's first byte within the concatenated
	// torrent payload.
	Offset int64
}

// Descriptor is the decoded form of one torrent's metainfo.
type Descriptor struct {
	InfoHash    Hash
	Name        string
	PieceLength int64

	// Files is in metainfo order; content references index into it.
	Files []File

	// TotalLength is the sum of all file lengths.
	TotalLength int64

	// MultiFile is true when the info dictionary has a files list.
	MultiFile bool

	pieces []byte
	raw    []byte
}

// Decode parses bencoded metainfo. The info hash is the SHA-1 of the
// canonical bencoding of the info dictionary (keys sorted), so two
// encodings of the same dictionary yield the same hash.
func Decode(raw []byte) (*Descriptor, error) {
	var mi metainfo.MetaInfo
	if err := bencode.Unmarshal(raw, &mi); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTorrent, err)
	}
	if len(mi.InfoBytes) == 0 {
		return nil, fmt.Errorf("%w: no info dictionary", ErrMalformedTorrent)
	}

	info, err := mi.UnmarshalInfo()
	if err != nil {
		return nil, fmt.Errorf("%w: info dictionary: %v", ErrMalformedTorrent, err)
	}
	hash, err := canonicalInfoHash(mi.InfoBytes)
	if err != nil {
		return nil, err
	}

	name := info.Name
	if name == "" {
		name = info.NameUtf8
	}
	if err := checkSegment(name); err != nil {
		return nil, fmt.Errorf("%w: name: %v", ErrMalformedTorrent, err)
	}
	if info.PieceLength <= 0 {
		return nil, fmt.Errorf("%w: piece length %d", ErrMalformedTorrent, info.PieceLength)
	}
	if len(info.Pieces)%HashSize != 0 {
		return nil, fmt.Errorf("%w: pieces field is %d bytes, not a multiple of %d",
			ErrMalformedTorrent, len(info.Pieces), HashSize)
	}

	descriptor := &Descriptor{
		InfoHash:    hash,
		Name:        name,
		PieceLength: info.PieceLength,
		MultiFile:   len(info.Files) > 0,
		pieces:      info.Pieces,
		raw:         raw,
	}

	if descriptor.MultiFile {
		for i, entry := range info.Files {
			segments := entry.Path
			if len(segments) == 0 {
				segments = entry.PathUtf8
			}
			if len(segments) == 0 {
				return nil, fmt.Errorf("%w: file %d has an empty path", ErrMalformedTorrent, i)
			}
			for _, segment := range segments {
				if err := checkSegment(segment); err != nil {
					return nil, fmt.Errorf("%w: file %d: %v", ErrMalformedTorrent, i, err)
				}
			}
			if entry.Length < 0 {
				return nil, fmt.Errorf("%w: file %d has negative length", ErrMalformedTorrent, i)
			}
			descriptor.Files = append(descriptor.Files, File{
				Path:   append([]string(nil), segments...),
				Length: entry.Length,
				Offset: descriptor.TotalLength,
			})
			descriptor.TotalLength += entry.Length
		}
	} else {
		if info.Length < 0 {
			return nil, fmt.Errorf("%w: negative length", ErrMalformedTorrent)
		}
		descriptor.Files = []File{{Path: []string{name}, Length: info.Length}}
		descriptor.TotalLength = info.Length
	}

	wantPieces := (descriptor.TotalLength + info.PieceLength - 1) / info.PieceLength
	if int64(descriptor.NumPieces()) != wantPieces {
		return nil, fmt.Errorf("%w: %d piece hashes for %d bytes at piece length %d (want %d)",
			ErrMalformedTorrent, descriptor.NumPieces(), descriptor.TotalLength, info.PieceLength, wantPieces)
	}
	return descriptor, nil
}

// canonicalInfoHash re-encodes the info dictionary with bencode's
// sorted-key rules before hashing.
func canonicalInfoHash(infoBytes []byte) (Hash, error) {
	var generic any
	if err := bencode.Unmarshal(infoBytes, &generic); err != nil {
		return Hash{}, fmt.Errorf("%w: info dictionary: %v", ErrMalformedTorrent, err)
	}
	canonical, err := bencode.Marshal(generic)
	if err != nil {
		return Hash{}, fmt.Errorf("%w: re-encoding info dictionary: %v", ErrMalformedTorrent, err)
	}
	return sha1.Sum(canonical), nil
}

func checkSegment(segment string) error {
	switch {
	case segment == "":
		return fmt.Errorf("empty path segment")
	case segment == "." || segment == "..":
		return fmt.Errorf("path segment %q", segment)
	case strings.ContainsAny(segment, "/\x00"):
		return fmt.Errorf("path segment %q contains a separator", segment)
	}
	return nil
}

// NumPieces returns the number of pieces.
func (d *Descriptor) NumPieces() int { return len(d.pieces) / HashSize }

// PieceHash returns the SHA-1 of piece.
func (d *Descriptor) PieceHash(piece int) [HashSize]byte {
	var hash [HashSize]byte
	copy(hash[:], d.pieces[piece*HashSize:])
	return hash
}

// PieceOffset returns the payload offset of the first byte of piece.
func (d *Descriptor) PieceOffset(piece int) int64 {
	return int64(piece) * d.PieceLength
}

// PieceSize returns the length of piece. Every piece but the last is
// PieceLength long.
func (d *Descriptor) PieceSize(piece int) int64 {
	start := d.PieceOffset(piece)
	return min(d.PieceLength, d.TotalLength-start)
}

// FileOffset returns the payload offset of file index.
func (d *Descriptor) FileOffset(index int) (int64, error) {
	if index < 0 || index >= len(d.Files) {
		return 0, fmt.Errorf("torrent %s: file index %d out of range [0, %d)", d.InfoHash, index, len(d.Files))
	}
	return d.Files[index].Offset, nil
}

// PieceRange returns the pieces covering n bytes at off within file
// index. The range is clipped to the file's end; count is 0 when
// nothing remains.
func (d *Descriptor) PieceRange(index int, off, n int64) (first, count int, err error) {
	fileOffset, err := d.FileOffset(index)
	if err != nil {
		return 0, 0, err
	}
	length := d.Files[index].Length
	if off < 0 || n < 0 {
		return 0, 0, fmt.Errorf("negative range %d+%d", off, n)
	}
	if off >= length || n == 0 {
		return 0, 0, nil
	}
	end := min(off+n, length)
	start := fileOffset + off
	last := fileOffset + end - 1
	first = int(start / d.PieceLength)
	return first, int(last/d.PieceLength) - first + 1, nil
}

// StoragePath returns the on-disk path segments of file index relative
// to a payload directory, as BitTorrent clients lay them out.
func (d *Descriptor) StoragePath(index int) []string {
	if !d.MultiFile {
		return []string{d.Name}
	}
	return append([]string{d.Name}, d.Files[index].Path...)
}

// Raw returns the metainfo bytes the descriptor was decoded from.
func (d *Descriptor) Raw() []byte { return d.raw }

// MetaInfo re-parses the raw bytes for handing to a torrent client.
func (d *Descriptor) MetaInfo() (*metainfo.MetaInfo, error) {
	return metainfo.Load(bytes.NewReader(d.raw))
}
