// Copyright 2026 The Yatfs Authors
// SPDX-License-Identifier: Apache-2.0

package fuse

import (
	"context"
	"syscall"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/yatfs/yatfs/lib/inodedb"
)

const blockSize = 4096

// node is one store inode. Kernel inode numbers are store inode
// numbers, so the same file keeps its number across mounts.
type node struct {
	gofuse.Inode
	fs  *Filesystem
	ino uint64
}

var _ gofuse.InodeEmbedder = (*node)(nil)
var _ gofuse.NodeLookuper = (*node)(nil)
var _ gofuse.NodeGetattrer = (*node)(nil)
var _ gofuse.NodeSetattrer = (*node)(nil)
var _ gofuse.NodeReaddirer = (*node)(nil)
var _ gofuse.NodeOpener = (*node)(nil)
var _ gofuse.NodeReader = (*node)(nil)
var _ gofuse.NodeMkdirer = (*node)(nil)
var _ gofuse.NodeUnlinker = (*node)(nil)
var _ gofuse.NodeRmdirer = (*node)(nil)
var _ gofuse.NodeStatfser = (*node)(nil)

// newChild wraps inode in a kernel inode and fills out.
func (n *node) newChild(ctx context.Context, inode *inodedb.Inode, entries int64, out *fuse.EntryOut) *gofuse.Inode {
	fillAttr(inode, entries, &out.Attr)
	child := &node{fs: n.fs, ino: inode.Ino}
	return n.NewInode(ctx, child, gofuse.StableAttr{
		Mode: inode.Mode & syscall.S_IFMT,
		Ino:  inode.Ino,
	})
}

func (n *node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	var inode *inodedb.Inode
	var entries int64
	err := n.fs.store.View(ctx, func(tx *inodedb.Tx) error {
		var err error
		inode, err = tx.Lookup(n.ino, name)
		if err != nil {
			return err
		}
		if inode.IsDir() {
			entries, err = tx.ChildCount(inode.Ino)
		}
		return err
	})
	if err != nil {
		return nil, n.fs.errno("lookup", n.ino, err)
	}
	return n.newChild(ctx, inode, entries, out), 0
}

func (n *node) Getattr(ctx context.Context, _ gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	inode, entries, err := n.fs.store.Stat(ctx, n.ino)
	if err != nil {
		return n.fs.errno("getattr", n.ino, err)
	}
	fillAttr(inode, entries, &out.Attr)
	return 0
}

// Setattr changes timestamps. Size, mode and ownership are fixed by
// the torrent and the store, so those requests fail with EROFS.
func (n *node) Setattr(ctx context.Context, _ gofuse.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if _, ok := in.GetSize(); ok {
		return syscall.EROFS
	}
	if _, ok := in.GetMode(); ok {
		return syscall.EROFS
	}
	if _, ok := in.GetUID(); ok {
		return syscall.EROFS
	}
	if _, ok := in.GetGID(); ok {
		return syscall.EROFS
	}

	var change inodedb.SetAttr
	if mtime, ok := in.GetMTime(); ok {
		change.Mtime = &mtime
		now := n.fs.clock.Now()
		change.Ctime = &now
	}
	if ctime, ok := in.GetCTime(); ok {
		change.Ctime = &ctime
	}
	if change.Mtime != nil || change.Ctime != nil {
		if err := n.fs.store.SetattrIno(ctx, n.ino, change); err != nil {
			return n.fs.errno("setattr", n.ino, err)
		}
	}
	return n.Getattr(ctx, nil, out)
}

func (n *node) Readdir(ctx context.Context) (gofuse.DirStream, syscall.Errno) {
	children, err := n.fs.store.ReadDir(ctx, n.ino)
	if err != nil {
		return nil, n.fs.errno("readdir", n.ino, err)
	}
	entries := make([]fuse.DirEntry, 0, len(children))
	for _, child := range children {
		entries = append(entries, fuse.DirEntry{
			Name: child.Name,
			Mode: child.Mode & syscall.S_IFMT,
			Ino:  child.Ino,
		})
	}
	return &sliceDirStream{entries: entries}, 0
}

// Open allows read-only access. Content never changes once
// registered, so the kernel page cache stays valid.
func (n *node) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR|syscall.O_TRUNC|syscall.O_APPEND) != 0 {
		return nil, 0, syscall.EROFS
	}
	inode, err := n.fs.store.Get(ctx, n.ino)
	if err != nil {
		return nil, 0, n.fs.errno("open", n.ino, err)
	}
	if inode.IsDir() {
		return nil, 0, syscall.EISDIR
	}
	return nil, fuse.FOPEN_KEEP_CACHE, 0
}

// Read blocks until the routine has every piece the range touches, or
// the read timeout expires.
func (n *node) Read(ctx context.Context, _ gofuse.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	inode, err := n.fs.store.Get(ctx, n.ino)
	if err != nil {
		return nil, n.fs.errno("read", n.ino, err)
	}
	if inode.Content == nil {
		n.fs.logger.Error("regular file without content reference", "ino", n.ino)
		return nil, syscall.EIO
	}
	count, err := n.fs.controller.ReadFile(ctx, *inode.Content, inode.Size, dest, off)
	if err != nil {
		n.fs.logger.Error("read failed",
			"ino", n.ino,
			"hash", inode.Content.Hash.String(),
			"index", inode.Content.Index,
			"offset", off,
			"length", len(dest),
			"error", err,
		)
		return nil, toErrno(err)
	}
	return fuse.ReadResultData(dest[:count]), 0
}

// Mkdir creates an empty directory owned by the calling process.
func (n *node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	attrs := inodedb.Attrs{Perm: mode & 0o7777}
	if caller, ok := fuse.FromContext(ctx); ok {
		attrs.UID, attrs.GID = caller.Uid, caller.Gid
	} else {
		parent, err := n.fs.store.Get(ctx, n.ino)
		if err != nil {
			return nil, n.fs.errno("mkdir", n.ino, err)
		}
		attrs.UID, attrs.GID = parent.UID, parent.GID
	}
	inode, err := n.fs.store.Mkdir(ctx, n.ino, name, attrs)
	if err != nil {
		return nil, n.fs.errno("mkdir", n.ino, err)
	}
	return n.newChild(ctx, inode, 0, out), 0
}

func (n *node) Unlink(ctx context.Context, name string) syscall.Errno {
	return n.fs.errno("unlink", n.ino, n.fs.store.Unlink(ctx, n.ino, name))
}

func (n *node) Rmdir(ctx context.Context, name string) syscall.Errno {
	return n.fs.errno("rmdir", n.ino, n.fs.store.Rmdir(ctx, n.ino, name))
}

// Statfs reports the registered files. Nothing can be written, so no
// space is free.
func (n *node) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	inodes, bytes, err := n.fs.store.Counts(ctx)
	if err != nil {
		return n.fs.errno("statfs", n.ino, err)
	}
	out.Bsize = blockSize
	out.Frsize = blockSize
	out.Blocks = uint64((bytes + blockSize - 1) / blockSize)
	out.Files = uint64(inodes)
	out.NameLen = 255
	return 0
}

// fillAttr copies inode into out. Directories report their entry
// count as size.
func fillAttr(inode *inodedb.Inode, entries int64, out *fuse.Attr) {
	out.Ino = inode.Ino
	out.Mode = inode.Mode
	out.Uid = inode.UID
	out.Gid = inode.GID
	out.Nlink = 1
	if inode.IsDir() {
		out.Size = uint64(entries)
		out.Nlink = 2
	} else {
		out.Size = uint64(inode.Size)
	}
	out.Blksize = blockSize
	out.Blocks = (out.Size + 511) / 512
	mtime, ctime := inode.Mtime, inode.Ctime
	out.SetTimes(&mtime, &mtime, &ctime)
}

// sliceDirStream implements fs.DirStream from a slice of entries.
type sliceDirStream struct {
	entries []fuse.DirEntry
	index   int
}

func (s *sliceDirStream) HasNext() bool {
	return s.index < len(s.entries)
}

func (s *sliceDirStream) Next() (fuse.DirEntry, syscall.Errno) {
	if s.index >= len(s.entries) {
		return fuse.DirEntry{}, syscall.EINVAL
	}
	entry := s.entries[s.index]
	s.index++
	return entry, 0
}

func (s *sliceDirStream) Close() {}

