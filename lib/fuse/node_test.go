// Copyright 2026 The Yatfs Authors
// SPDX-License-Identifier: Apache-2.0

package fuse

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/yatfs/yatfs/lib/clock"
	"github.com/yatfs/yatfs/lib/config"
	"github.com/yatfs/yatfs/lib/inodedb"
	"github.com/yatfs/yatfs/lib/routine"
	"github.com/yatfs/yatfs/lib/torrent"
	"github.com/yatfs/yatfs/lib/torrent/torrenttest"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	fs      *Filesystem
	root    *node
	store   *inodedb.Store
	torrent *torrenttest.Torrent
	dataDir string
}

// newFixture registers a two-file torrent under /sample and attaches
// the root node to an unmounted bridge, so node methods can be called
// directly.
func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()
	root := t.TempDir()
	uid, gid := uint32(1000), uint32(1000)
	store, err := inodedb.Open(inodedb.Config{
		Path:    filepath.Join(root, "inodes.db"),
		RootUID: &uid,
		RootGID: &gid,
		Clock:   clock.Fake(testEpoch),
	})
	if err != nil {
		t.Fatalf("inodedb.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := config.Default()
	cfg.Routine.DataDir = filepath.Join(root, "data")
	cfg.Routine.Readahead = 0
	if mutate != nil {
		mutate(cfg)
	}
	controller, err := routine.New(routine.Options{
		Store:  store,
		Source: torrent.DirSource{Dir: filepath.Join(root, "torrents")},
		Config: cfg,
	})
	if err != nil {
		t.Fatalf("routine.New: %v", err)
	}
	t.Cleanup(func() { controller.Close() })

	built := torrenttest.Build(t, torrenttest.Spec{
		Name:        "sample",
		PieceLength: 64,
		Files: []torrenttest.File{
			{Path: []string{"a.txt"}, Data: torrenttest.Data(100, 1)},
			{Path: []string{"dir", "b.txt"}, Data: torrenttest.Data(200, 2)},
		},
	})
	stamp := testEpoch.Add(-time.Hour)
	if _, err := controller.AddTorrentFile(context.Background(), built.Raw, routine.AddOptions{
		Dir:   "/sample",
		UID:   1000,
		GID:   1000,
		Umask: 0o022,
		Time:  &stamp,
	}); err != nil {
		t.Fatalf("AddTorrentFile: %v", err)
	}

	filesystem, err := New(Options{
		Mountpoint: filepath.Join(root, "mnt"),
		Controller: controller,
		Clock:      clock.Fake(testEpoch),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rootNode := filesystem.Root().(*node)
	gofuse.NewNodeFS(rootNode, &gofuse.Options{RootStableAttr: &gofuse.StableAttr{Ino: inodedb.RootIno}})
	controller.RunLoopInBackground()

	return &fixture{
		fs:      filesystem,
		root:    rootNode,
		store:   store,
		torrent: built,
		dataDir: cfg.Routine.DataDir,
	}
}

// walk looks up each name in turn from the root.
func (f *fixture) walk(t *testing.T, names ...string) (*node, fuse.EntryOut) {
	t.Helper()
	current := f.root
	var out fuse.EntryOut
	for _, name := range names {
		out = fuse.EntryOut{}
		child, errno := current.Lookup(context.Background(), name, &out)
		if errno != 0 {
			t.Fatalf("Lookup(%q): %v", name, errno)
		}
		current = child.Operations().(*node)
	}
	return current, out
}

func TestLookupAndGetattr(t *testing.T) {
	f := newFixture(t, nil)

	dir, out := f.walk(t, "sample")
	if out.Mode != syscall.S_IFDIR|0o755 {
		t.Errorf("sample mode = %o, want %o", out.Mode, syscall.S_IFDIR|0o755)
	}
	// a.txt and dir.
	if out.Size != 2 {
		t.Errorf("sample size = %d, want 2 entries", out.Size)
	}
	stored, err := f.store.LookupPath(context.Background(), "/sample")
	if err != nil {
		t.Fatalf("LookupPath: %v", err)
	}
	if out.Ino != stored.Ino || dir.ino != stored.Ino {
		t.Errorf("ino = %d (node %d), want store ino %d", out.Ino, dir.ino, stored.Ino)
	}

	file, out := f.walk(t, "sample", "dir", "b.txt")
	if out.Mode != syscall.S_IFREG|0o644 || out.Size != 200 {
		t.Errorf("b.txt mode %o size %d, want %o and 200", out.Mode, out.Size, syscall.S_IFREG|0o644)
	}
	if out.Uid != 1000 || out.Gid != 1000 {
		t.Errorf("b.txt owner %d:%d, want 1000:1000", out.Uid, out.Gid)
	}
	wantTime := uint64(testEpoch.Add(-time.Hour).Unix())
	if out.Mtime != wantTime || out.Ctime != wantTime {
		t.Errorf("b.txt mtime %d ctime %d, want %d", out.Mtime, out.Ctime, wantTime)
	}

	var attr fuse.AttrOut
	if errno := file.Getattr(context.Background(), nil, &attr); errno != 0 {
		t.Fatalf("Getattr: %v", errno)
	}
	if attr.Size != 200 || attr.Ino != out.Ino {
		t.Errorf("Getattr size %d ino %d, want 200 and %d", attr.Size, attr.Ino, out.Ino)
	}
}

func TestLookupMissingAndThroughFile(t *testing.T) {
	f := newFixture(t, nil)

	var out fuse.EntryOut
	if _, errno := f.root.Lookup(context.Background(), "nope", &out); errno != syscall.ENOENT {
		t.Errorf("Lookup missing = %v, want ENOENT", errno)
	}
	file, _ := f.walk(t, "sample", "a.txt")
	if _, errno := file.Lookup(context.Background(), "x", &out); errno != syscall.ENOTDIR {
		t.Errorf("Lookup under file = %v, want ENOTDIR", errno)
	}
}

func TestReaddirByName(t *testing.T) {
	f := newFixture(t, nil)
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if _, err := f.store.MkdirP(context.Background(), "/sample/"+name, inodedb.Attrs{Perm: 0o755}); err != nil {
			t.Fatalf("MkdirP: %v", err)
		}
	}
	dir, _ := f.walk(t, "sample")

	stream, errno := dir.Readdir(context.Background())
	if errno != 0 {
		t.Fatalf("Readdir: %v", errno)
	}
	defer stream.Close()
	var names []string
	for stream.HasNext() {
		entry, errno := stream.Next()
		if errno != 0 {
			t.Fatalf("Next: %v", errno)
		}
		names = append(names, entry.Name)
		if entry.Ino == 0 {
			t.Errorf("%s: zero inode number", entry.Name)
		}
	}
	want := []string{"a.txt", "alpha", "dir", "mid", "zeta"}
	if fmt.Sprint(names) != fmt.Sprint(want) {
		t.Errorf("entries = %v, want %v", names, want)
	}
}

func TestOpenIsReadOnly(t *testing.T) {
	f := newFixture(t, nil)
	file, _ := f.walk(t, "sample", "a.txt")

	for _, flags := range []uint32{syscall.O_WRONLY, syscall.O_RDWR, syscall.O_RDONLY | syscall.O_TRUNC} {
		if _, _, errno := file.Open(context.Background(), flags); errno != syscall.EROFS {
			t.Errorf("Open(%#x) = %v, want EROFS", flags, errno)
		}
	}
	_, openFlags, errno := file.Open(context.Background(), syscall.O_RDONLY)
	if errno != 0 {
		t.Fatalf("Open read-only: %v", errno)
	}
	if openFlags&fuse.FOPEN_KEEP_CACHE == 0 {
		t.Error("read-only open does not keep the page cache")
	}
}

func TestReadReturnsPayload(t *testing.T) {
	f := newFixture(t, nil)
	f.torrent.WritePayload(t, f.dataDir)
	file, _ := f.walk(t, "sample", "dir", "b.txt")
	want := f.torrent.Spec.Files[1].Data

	tests := []struct {
		off  int64
		size int
		want []byte
	}{
		{0, 200, want},
		{50, 64, want[50:114]},
		{190, 64, want[190:]},
		{200, 64, nil},
	}
	for _, test := range tests {
		dest := make([]byte, test.size)
		result, errno := file.Read(context.Background(), nil, dest, test.off)
		if errno != 0 {
			t.Fatalf("Read(%d, %d): %v", test.off, test.size, errno)
		}
		got, status := result.Bytes(make([]byte, test.size))
		if !status.Ok() {
			t.Fatalf("Bytes: %v", status)
		}
		if !bytes.Equal(got, test.want) {
			t.Errorf("Read(%d, %d) = %d bytes, want %d matching bytes", test.off, test.size, len(got), len(test.want))
		}
	}
}

func TestReadTimeoutIsEIO(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Routine.ReadTimeout = 100 * time.Millisecond
		cfg.Routine.Retry.Initial = 10 * time.Millisecond
		cfg.Routine.Retry.Max = 10 * time.Millisecond
	})
	// No payload on disk.
	file, _ := f.walk(t, "sample", "a.txt")

	if _, errno := file.Read(context.Background(), nil, make([]byte, 10), 0); errno != syscall.EIO {
		t.Errorf("Read = %v, want EIO", errno)
	}
}

func TestSetattrTimestamps(t *testing.T) {
	f := newFixture(t, nil)
	file, _ := f.walk(t, "sample", "a.txt")

	mtime := time.Date(2020, 5, 6, 7, 8, 9, 0, time.UTC)
	in := &fuse.SetAttrIn{SetAttrInCommon: fuse.SetAttrInCommon{
		Valid: fuse.FATTR_MTIME,
		Mtime: uint64(mtime.Unix()),
	}}
	var out fuse.AttrOut
	if errno := file.Setattr(context.Background(), nil, in, &out); errno != 0 {
		t.Fatalf("Setattr: %v", errno)
	}
	if out.Mtime != uint64(mtime.Unix()) {
		t.Errorf("mtime = %d, want %d", out.Mtime, mtime.Unix())
	}
	if out.Ctime != uint64(testEpoch.Unix()) {
		t.Errorf("ctime = %d, want the clock's %d", out.Ctime, testEpoch.Unix())
	}

	stored, err := f.store.Get(context.Background(), file.ino)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !stored.Mtime.Equal(mtime) {
		t.Errorf("stored mtime = %v, want %v", stored.Mtime, mtime)
	}
}

func TestSetattrRejectsContentChanges(t *testing.T) {
	f := newFixture(t, nil)
	file, _ := f.walk(t, "sample", "a.txt")

	for _, valid := range []uint32{fuse.FATTR_SIZE, fuse.FATTR_MODE, fuse.FATTR_UID, fuse.FATTR_GID} {
		in := &fuse.SetAttrIn{SetAttrInCommon: fuse.SetAttrInCommon{Valid: valid}}
		var out fuse.AttrOut
		if errno := file.Setattr(context.Background(), nil, in, &out); errno != syscall.EROFS {
			t.Errorf("Setattr(valid=%#x) = %v, want EROFS", valid, errno)
		}
	}
}

func TestMkdirUnlinkRmdir(t *testing.T) {
	f := newFixture(t, nil)
	dir, _ := f.walk(t, "sample")
	ctx := fuse.NewContext(context.Background(), &fuse.Caller{Owner: fuse.Owner{Uid: 42, Gid: 43}})

	var out fuse.EntryOut
	created, errno := dir.Mkdir(ctx, "new", 0o750, &out)
	if errno != 0 {
		t.Fatalf("Mkdir: %v", errno)
	}
	if out.Mode != syscall.S_IFDIR|0o750 || out.Uid != 42 || out.Gid != 43 {
		t.Errorf("new dir mode %o owner %d:%d, want %o and 42:43", out.Mode, out.Uid, out.Gid, syscall.S_IFDIR|0o750)
	}
	if created.StableAttr().Ino != out.Ino {
		t.Errorf("kernel ino %d, attr ino %d", created.StableAttr().Ino, out.Ino)
	}
	if _, errno := dir.Mkdir(ctx, "new", 0o750, &out); errno != syscall.EEXIST {
		t.Errorf("second Mkdir = %v, want EEXIST", errno)
	}

	if errno := dir.Rmdir(ctx, "dir"); errno != syscall.ENOTEMPTY {
		t.Errorf("Rmdir non-empty = %v, want ENOTEMPTY", errno)
	}
	if errno := dir.Unlink(ctx, "dir"); errno != syscall.EISDIR {
		t.Errorf("Unlink dir = %v, want EISDIR", errno)
	}
	if errno := dir.Rmdir(ctx, "a.txt"); errno != syscall.ENOTDIR {
		t.Errorf("Rmdir file = %v, want ENOTDIR", errno)
	}
	if errno := dir.Unlink(ctx, "a.txt"); errno != 0 {
		t.Errorf("Unlink: %v", errno)
	}
	if errno := dir.Rmdir(ctx, "new"); errno != 0 {
		t.Errorf("Rmdir: %v", errno)
	}
	if errno := dir.Unlink(ctx, "a.txt"); errno != syscall.ENOENT {
		t.Errorf("Unlink again = %v, want ENOENT", errno)
	}
	if err := f.store.Fsck(context.Background(), inodedb.FsckOptions{}); err != nil {
		t.Errorf("Fsck: %v", err)
	}
}

func TestMkdirWithoutCallerInheritsParentOwner(t *testing.T) {
	f := newFixture(t, nil)
	var out fuse.EntryOut
	if _, errno := f.root.Mkdir(context.Background(), "plain", 0o700, &out); errno != 0 {
		t.Fatalf("Mkdir: %v", errno)
	}
	if out.Uid != 1000 || out.Gid != 1000 {
		t.Errorf("owner %d:%d, want the root's 1000:1000", out.Uid, out.Gid)
	}
}

func TestStatfs(t *testing.T) {
	f := newFixture(t, nil)
	var out fuse.StatfsOut
	if errno := f.root.Statfs(context.Background(), &out); errno != 0 {
		t.Fatalf("Statfs: %v", errno)
	}
	// Root, /sample, /sample/dir and two files.
	if out.Files != 5 {
		t.Errorf("Files = %d, want 5", out.Files)
	}
	if out.Blocks != 1 || out.Bfree != 0 {
		t.Errorf("Blocks %d Bfree %d, want 1 and 0", out.Blocks, out.Bfree)
	}
}

func TestToErrno(t *testing.T) {
	tests := []struct {
		err  error
		want syscall.Errno
	}{
		{nil, 0},
		{fmt.Errorf("x: %w", inodedb.ErrNoSuchEntry), syscall.ENOENT},
		{inodedb.ErrNoSuchInode, syscall.ENOENT},
		{inodedb.ErrNoSuchParent, syscall.ENOENT},
		{inodedb.ErrNotDirectory, syscall.ENOTDIR},
		{inodedb.ErrIsDirectory, syscall.EISDIR},
		{inodedb.ErrAlreadyExists, syscall.EEXIST},
		{inodedb.ErrNotEmpty, syscall.ENOTEMPTY},
		{inodedb.ErrInvalidName, syscall.EINVAL},
		{context.DeadlineExceeded, syscall.EIO},
		{routine.ErrStopped, syscall.EIO},
		{torrent.ErrNotFound, syscall.EIO},
		{errors.New("anything else"), syscall.EIO},
	}
	for _, test := range tests {
		if got := toErrno(test.err); got != test.want {
			t.Errorf("toErrno(%v) = %v, want %v", test.err, got, test.want)
		}
	}
}
