// Copyright 2026 The Yatfs Authors
// SPDX-License-Identifier: Apache-2.0

// Package torrenttest builds small in-memory torrents for tests.
package torrenttest

import (
	"crypto/sha1"
	"os"
	"path/filepath"
	"testing"

	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"

	"github.com/yatfs/yatfs/lib/torrent"
)

// File is one payload file. Path is below the torrent name.
type File struct {
	Path []string
	Data []byte
}

// Spec describes the torrent to build. With Single set, Files must hold
// exactly one entry whose Path is ignored.
type Spec struct {
	Name        string
	PieceLength int64
	Files       []File
	Single      bool
}

// Torrent is a built torrent and its payload.
type Torrent struct {
	Spec    Spec
	Raw     []byte
	Hash    torrent.Hash
	Payload []byte
}

// Build encodes spec as metainfo with correct piece hashes.
func Build(t testing.TB, spec Spec) *Torrent {
	t.Helper()
	if spec.PieceLength == 0 {
		spec.PieceLength = 16
	}

	var payload []byte
	info := metainfo.Info{
		Name:        spec.Name,
		PieceLength: spec.PieceLength,
	}
	if spec.Single {
		if len(spec.Files) != 1 {
			t.Fatalf("torrenttest: single-file torrent needs one file, got %d", len(spec.Files))
		}
		payload = spec.Files[0].Data
		info.Length = int64(len(payload))
	} else {
		for _, file := range spec.Files {
			info.Files = append(info.Files, metainfo.FileInfo{
				Path:   file.Path,
				Length: int64(len(file.Data)),
			})
			payload = append(payload, file.Data...)
		}
	}
	for start := int64(0); start < int64(len(payload)); start += spec.PieceLength {
		end := min(start+spec.PieceLength, int64(len(payload)))
		sum := sha1.Sum(payload[start:end])
		info.Pieces = append(info.Pieces, sum[:]...)
	}

	infoBytes, err := bencode.Marshal(info)
	if err != nil {
		t.Fatalf("torrenttest: encoding info: %v", err)
	}
	raw, err := bencode.Marshal(metainfo.MetaInfo{
		InfoBytes: infoBytes,
		Announce:  "http://tracker.invalid/announce",
	})
	if err != nil {
		t.Fatalf("torrenttest: encoding metainfo: %v", err)
	}

	return &Torrent{
		Spec:    spec,
		Raw:     raw,
		Hash:    sha1.Sum(infoBytes),
		Payload: payload,
	}
}

// Data returns n deterministic bytes that differ per seed.
func Data(n int, seed byte) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = seed + byte(i*7)
	}
	return data
}

// WritePayload lays the payload out under dataDir the way a
// BitTorrent client stores it.
func (tt *Torrent) WritePayload(t testing.TB, dataDir string) {
	t.Helper()
	if tt.Spec.Single {
		writeFile(t, filepath.Join(dataDir, tt.Spec.Name), tt.Spec.Files[0].Data)
		return
	}
	for _, file := range tt.Spec.Files {
		segments := append([]string{dataDir, tt.Spec.Name}, file.Path...)
		writeFile(t, filepath.Join(segments...), file.Data)
	}
}

// WriteMetainfo saves Raw as "<hex hash>.torrent" in dir.
func (tt *Torrent) WriteMetainfo(t testing.TB, dir string) {
	t.Helper()
	writeFile(t, filepath.Join(dir, tt.Hash.String()+".torrent"), tt.Raw)
}

func writeFile(t testing.TB, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("torrenttest: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("torrenttest: %v", err)
	}
}
