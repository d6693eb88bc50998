// Copyright 2026 The Yatfs Authors
// SPDX-License-Identifier: Apache-2.0

package torrent_test

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"

	"github.com/yatfs/yatfs/lib/torrent"
	"github.com/yatfs/yatfs/lib/torrent/torrenttest"
)

func twoFileTorrent(t *testing.T) *torrenttest.Torrent {
	t.Helper()
	return torrenttest.Build(t, torrenttest.Spec{
		Name:        "sample",
		PieceLength: 64,
		Files: []torrenttest.File{
			{Path: []string{"a.txt"}, Data: torrenttest.Data(100, 1)},
			{Path: []string{"dir", "b.txt"}, Data: torrenttest.Data(200, 2)},
		},
	})
}

func TestDecodeMultiFile(t *testing.T) {
	built := twoFileTorrent(t)

	descriptor, err := torrent.Decode(built.Raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if descriptor.InfoHash != built.Hash {
		t.Errorf("InfoHash = %s, want %s", descriptor.InfoHash, built.Hash)
	}
	if descriptor.Name != "sample" || !descriptor.MultiFile {
		t.Errorf("Name = %q, MultiFile = %v", descriptor.Name, descriptor.MultiFile)
	}
	want := []torrent.File{
		{Path: []string{"a.txt"}, Length: 100, Offset: 0},
		{Path: []string{"dir", "b.txt"}, Length: 200, Offset: 100},
	}
	if !reflect.DeepEqual(descriptor.Files, want) {
		t.Errorf("Files = %+v, want %+v", descriptor.Files, want)
	}
	if descriptor.TotalLength != 300 {
		t.Errorf("TotalLength = %d, want 300", descriptor.TotalLength)
	}
	// 300 bytes at 64 per piece.
	if descriptor.NumPieces() != 5 {
		t.Errorf("NumPieces = %d, want 5", descriptor.NumPieces())
	}
	if got := descriptor.PieceSize(4); got != 44 {
		t.Errorf("PieceSize(4) = %d, want 44", got)
	}
}

func TestDecodeSingleFile(t *testing.T) {
	built := torrenttest.Build(t, torrenttest.Spec{
		Name:   "movie.mkv",
		Single: true,
		Files:  []torrenttest.File{{Data: torrenttest.Data(40, 9)}},
	})

	descriptor, err := torrent.Decode(built.Raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := []torrent.File{{Path: []string{"movie.mkv"}, Length: 40}}
	if !reflect.DeepEqual(descriptor.Files, want) {
		t.Errorf("Files = %+v, want %+v", descriptor.Files, want)
	}
	if got := descriptor.StoragePath(0); !reflect.DeepEqual(got, []string{"movie.mkv"}) {
		t.Errorf("StoragePath = %v", got)
	}
}

func TestDecodeIsDeterministic(t *testing.T) {
	built := twoFileTorrent(t)

	first, err := torrent.Decode(built.Raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	for range 5 {
		again, err := torrent.Decode(append([]byte(nil), built.Raw...))
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if again.InfoHash != first.InfoHash {
			t.Fatalf("hash changed: %s then %s", first.InfoHash, again.InfoHash)
		}
		if !reflect.DeepEqual(again.Files, first.Files) {
			t.Fatalf("files changed: %+v then %+v", first.Files, again.Files)
		}
	}
}

func TestDecodeHashesCanonicalInfo(t *testing.T) {
	built := twoFileTorrent(t)
	descriptor, err := torrent.Decode(built.Raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	// Reorder the info dictionary's keys by hand: "name" first.
	var mi metainfo.MetaInfo
	if err := bencode.Unmarshal(built.Raw, &mi); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	info := string(mi.InfoBytes)
	nameEntry := "4:name6:sample"
	if !strings.Contains(info, nameEntry) {
		t.Fatalf("info %q lacks %q", info, nameEntry)
	}
	reordered := "d" + nameEntry + strings.Replace(info[1:], nameEntry, "", 1)
	mi.InfoBytes = []byte(reordered)
	raw, err := bencode.Marshal(mi)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	again, err := torrent.Decode(raw)
	if err != nil {
		t.Fatalf("Decode reordered: %v", err)
	}
	if again.InfoHash != descriptor.InfoHash {
		t.Errorf("reordered keys changed hash: %s vs %s", again.InfoHash, descriptor.InfoHash)
	}
}

func TestDecodeMalformed(t *testing.T) {
	encodeInfo := func(t *testing.T, info metainfo.Info) []byte {
		t.Helper()
		infoBytes, err := bencode.Marshal(info)
		if err != nil {
			t.Fatalf("Marshal info: %v", err)
		}
		raw, err := bencode.Marshal(metainfo.MetaInfo{InfoBytes: infoBytes})
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		return raw
	}
	onePiece := make([]byte, 20)

	tests := []struct {
		name string
		raw  func(t *testing.T) []byte
	}{
		{"garbage", func(*testing.T) []byte { return []byte("not bencode") }},
		{"trailing bytes", func(t *testing.T) []byte { return append(twoFileTorrent(t).Raw, 'x') }},
		{"no info", func(*testing.T) []byte { return []byte("d8:announce3:urle") }},
		{"no name", func(t *testing.T) []byte {
			return encodeInfo(t, metainfo.Info{PieceLength: 16, Length: 10, Pieces: onePiece})
		}},
		{"zero piece length", func(t *testing.T) []byte {
			return encodeInfo(t, metainfo.Info{Name: "x", Length: 10, Pieces: onePiece})
		}},
		{"short pieces", func(t *testing.T) []byte {
			return encodeInfo(t, metainfo.Info{Name: "x", PieceLength: 16, Length: 10, Pieces: onePiece[:7]})
		}},
		{"wrong piece count", func(t *testing.T) []byte {
			return encodeInfo(t, metainfo.Info{Name: "x", PieceLength: 4, Length: 10, Pieces: onePiece})
		}},
		{"dotdot segment", func(t *testing.T) []byte {
			return encodeInfo(t, metainfo.Info{
				Name: "x", PieceLength: 16, Pieces: onePiece,
				Files: []metainfo.FileInfo{{Path: []string{"..", "etc"}, Length: 10}},
			})
		}},
		{"slash in segment", func(t *testing.T) []byte {
			return encodeInfo(t, metainfo.Info{
				Name: "x", PieceLength: 16, Pieces: onePiece,
				Files: []metainfo.FileInfo{{Path: []string{"a/b"}, Length: 10}},
			})
		}},
		{"empty path", func(t *testing.T) []byte {
			return encodeInfo(t, metainfo.Info{
				Name: "x", PieceLength: 16, Pieces: onePiece,
				Files: []metainfo.FileInfo{{Length: 10}},
			})
		}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := torrent.Decode(test.raw(t))
			if !errors.Is(err, torrent.ErrMalformedTorrent) {
				t.Fatalf("Decode error = %v, want ErrMalformedTorrent", err)
			}
		})
	}
}

func TestPieceRange(t *testing.T) {
	descriptor, err := torrent.Decode(twoFileTorrent(t).Raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	tests := []struct {
		name      string
		index     int
		off, n    int64
		wantFirst int
		wantCount int
	}{
		{"first file whole", 0, 0, 100, 0, 2},
		{"second file start", 1, 0, 1, 1, 1},
		{"second file tail", 1, 190, 10, 4, 1},
		{"clipped at end", 1, 150, 1000, 3, 2},
		{"past end", 1, 200, 10, 0, 0},
		{"empty", 0, 10, 0, 0, 0},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			first, count, err := descriptor.PieceRange(test.index, test.off, test.n)
			if err != nil {
				t.Fatalf("PieceRange: %v", err)
			}
			if count != test.wantCount || (count > 0 && first != test.wantFirst) {
				t.Errorf("PieceRange = (%d, %d), want (%d, %d)", first, count, test.wantFirst, test.wantCount)
			}
		})
	}

	if _, _, err := descriptor.PieceRange(2, 0, 1); err == nil {
		t.Error("PieceRange accepted an out-of-range file index")
	}
}
