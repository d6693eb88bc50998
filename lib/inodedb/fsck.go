// Copyright 2026 The Yatfs Authors
// SPDX-License-Identifier: Apache-2.0

package inodedb

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/yatfs/yatfs/lib/torrent"
)

// DescriptorResolver looks up decoded torrent descriptors by hash.
// *torrent.Resolver satisfies it.
type DescriptorResolver interface {
	Resolve(ctx context.Context, hash torrent.Hash) (*torrent.Descriptor, error)
}

// FsckOptions controls the optional checks of Fsck.
type FsckOptions struct {
	// Descriptors, when set, enables checking every content reference
	// against its torrent's file list. A torrent the resolver reports
	// as torrent.ErrNotFound is an inconsistency; other resolver errors
	// abort the check.
	Descriptors DescriptorResolver
}

// structuralCheck is one SQL query returning the offending inode in
// column 0 (or nothing), and the problem to report.
type structuralCheck struct {
	query   string
	problem string
}

var structuralChecks = []structuralCheck{
	{
		query: `SELECT parent, name, count(*) FROM inodes WHERE ino != 1
			GROUP BY parent, name HAVING count(*) > 1 LIMIT 1`,
		problem: "directory has a duplicate entry",
	},
	{
		query: `SELECT c.ino FROM inodes c LEFT JOIN inodes p ON p.ino = c.parent
			WHERE c.ino != 1 AND p.ino IS NULL LIMIT 1`,
		problem: "orphaned: parent does not exist",
	},
	{
		query: fmt.Sprintf(`SELECT c.ino FROM inodes c JOIN inodes p ON p.ino = c.parent
			WHERE c.ino != 1 AND (p.mode & %d) != %d LIMIT 1`, unix.S_IFMT, unix.S_IFDIR),
		problem: "parent is not a directory",
	},
	{
		query: `SELECT ino FROM inodes WHERE ino != 1
			AND (name = '' OR name = '.' OR name = '..' OR instr(name, '/') > 0) LIMIT 1`,
		problem: "invalid name",
	},
	{
		query: `WITH RECURSIVE reachable(ino) AS (
				SELECT 1
				UNION
				SELECT i.ino FROM inodes i JOIN reachable r ON i.parent = r.ino WHERE i.ino != 1
			)
			SELECT ino FROM inodes WHERE ino NOT IN (SELECT ino FROM reachable) LIMIT 1`,
		problem: "unreachable from the root (cycle or detached subtree)",
	},
	{
		query: fmt.Sprintf(`SELECT ino FROM inodes WHERE torrent_hash IS NOT NULL
			AND (mode & %d) != %d LIMIT 1`, unix.S_IFMT, unix.S_IFREG),
		problem: "content reference on a non-regular file",
	},
	{
		query: `SELECT ino FROM inodes WHERE (torrent_hash IS NULL) != (file_index IS NULL) LIMIT 1`,
		problem: "half-set content reference",
	},
	{
		query:   `SELECT ino FROM inodes WHERE torrent_hash IS NOT NULL AND length(torrent_hash) != 20 LIMIT 1`,
		problem: "content hash is not 20 bytes",
	},
	{
		query:   `SELECT ino FROM inodes WHERE file_index < 0 OR size < 0 LIMIT 1`,
		problem: "negative file index or size",
	},
}

// Fsck verifies the whole store from one snapshot and returns an
// [*InconsistencyError] for the first problem found. Other errors mean
// the check itself could not run.
func (s *Store) Fsck(ctx context.Context, opts FsckOptions) error {
	return s.View(ctx, func(tx *Tx) error {
		return tx.Fsck(ctx, opts)
	})
}

// Fsck runs the checks of [Store.Fsck] inside this transaction.
func (tx *Tx) Fsck(ctx context.Context, opts FsckOptions) error {
	if err := tx.checkRoot(); err != nil {
		return err
	}

	for _, check := range structuralChecks {
		var ino int64
		var found bool
		var detail string
		err := sqlitex.Execute(tx.conn, check.query, &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				if stmt.ColumnCount() == 3 {
					// Duplicate check: report the shared parent.
					detail = fmt.Sprintf(" %q (%d entries)", stmt.ColumnText(1), stmt.ColumnInt64(2))
				}
				ino = stmt.ColumnInt64(0)
				return nil
			},
		})
		if err != nil {
			return fmt.Errorf("fsck: %w", err)
		}
		if found {
			return inconsistent(uint64(ino), "%s%s", check.problem, detail)
		}
	}

	if opts.Descriptors != nil {
		return tx.checkContent(ctx, opts.Descriptors)
	}
	return nil
}

func (tx *Tx) checkRoot() error {
	root, err := tx.queryOne(`SELECT `+inodeColumns+` FROM inodes WHERE ino = ?`, int64(RootIno))
	if err != nil {
		return fmt.Errorf("fsck: %w", err)
	}
	switch {
	case root == nil:
		return inconsistent(0, "root inode missing")
	case !root.IsDir():
		return inconsistent(RootIno, "root is not a directory")
	case root.Parent != 0 || root.Name != "":
		return inconsistent(RootIno, "root has parent %d and name %q", root.Parent, root.Name)
	case root.Content != nil:
		return inconsistent(RootIno, "root has a content reference")
	}
	return nil
}

// checkContent resolves every referenced torrent once and checks each
// file's index and size against it.
func (tx *Tx) checkContent(ctx context.Context, resolver DescriptorResolver) error {
	var refs []Inode
	err := sqlitex.Execute(tx.conn,
		`SELECT `+inodeColumns+` FROM inodes WHERE torrent_hash IS NOT NULL ORDER BY torrent_hash, file_index`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				refs = append(refs, scanInode(stmt))
				return nil
			},
		})
	if err != nil {
		return fmt.Errorf("fsck: %w", err)
	}

	descriptors := make(map[torrent.Hash]*torrent.Descriptor)
	for i := range refs {
		inode := &refs[i]
		hash := inode.Content.Hash
		descriptor, seen := descriptors[hash]
		if !seen {
			descriptor, err = resolver.Resolve(ctx, hash)
			if errors.Is(err, torrent.ErrNotFound) {
				return inconsistent(inode.Ino, "torrent %s is not available: %v", hash, err)
			}
			if err != nil {
				return fmt.Errorf("fsck: resolving torrent %s: %w", hash, err)
			}
			descriptors[hash] = descriptor
		}

		index := inode.Content.Index
		if index >= len(descriptor.Files) {
			return inconsistent(inode.Ino, "file index %d out of range: torrent %s has %d files",
				index, hash, len(descriptor.Files))
		}
		if want := descriptor.Files[index].Length; inode.Size != want {
			return inconsistent(inode.Ino, "size %d does not match torrent %s file %d length %d",
				inode.Size, hash, index, want)
		}
	}
	return nil
}
