// Copyright 2026 The Yatfs Authors
// SPDX-License-Identifier: Apache-2.0

package inodedb

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"golang.org/x/sys/unix"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/yatfs/yatfs/lib/clock"
	"github.com/yatfs/yatfs/lib/torrent"
)

const inodeColumns = `ino, parent, name, mode, uid, gid, size, ctime, mtime, torrent_hash, file_index`

// Tx is a transaction handle passed to Update and View callbacks. It
// must not be used after the callback returns.
type Tx struct {
	conn     *sqlite.Conn
	clock    clock.Clock
	writable bool
}

// Get returns the inode numbered ino.
func (tx *Tx) Get(ino uint64) (*Inode, error) {
	inode, err := tx.queryOne(`SELECT `+inodeColumns+` FROM inodes WHERE ino = ?`, int64(ino))
	if err != nil {
		return nil, err
	}
	if inode == nil {
		return nil, fmt.Errorf("inode %d: %w", ino, ErrNoSuchInode)
	}
	return inode, nil
}

// Lookup returns the entry called name in directory parent.
func (tx *Tx) Lookup(parent uint64, name string) (*Inode, error) {
	dir, err := tx.Get(parent)
	if err != nil {
		return nil, err
	}
	if !dir.IsDir() {
		return nil, fmt.Errorf("inode %d: %w", parent, ErrNotDirectory)
	}
	child, err := tx.child(parent, name)
	if err != nil {
		return nil, err
	}
	if child == nil {
		return nil, fmt.Errorf("%q in inode %d: %w", name, parent, ErrNoSuchEntry)
	}
	return child, nil
}

// LookupPath resolves an absolute path by walking from the root.
// Relative paths are taken as relative to the root.
func (tx *Tx) LookupPath(p string) (*Inode, error) {
	current, err := tx.Get(RootIno)
	if err != nil {
		return nil, err
	}
	for _, name := range splitPath(p) {
		if !current.IsDir() {
			return nil, fmt.Errorf("%s: %q: %w", p, current.Name, ErrNotDirectory)
		}
		next, err := tx.child(current.Ino, name)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return nil, fmt.Errorf("%s: %w", p, ErrNoSuchEntry)
		}
		current = next
	}
	return current, nil
}

// ReadDir returns the entries of directory ino ordered by name.
func (tx *Tx) ReadDir(ino uint64) ([]Inode, error) {
	dir, err := tx.Get(ino)
	if err != nil {
		return nil, err
	}
	if !dir.IsDir() {
		return nil, fmt.Errorf("inode %d: %w", ino, ErrNotDirectory)
	}

	var entries []Inode
	err = sqlitex.Execute(tx.conn,
		`SELECT `+inodeColumns+` FROM inodes WHERE parent = ? AND ino != ? ORDER BY name`,
		&sqlitex.ExecOptions{
			Args: []any{int64(ino), int64(RootIno)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				entries = append(entries, scanInode(stmt))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("readdir %d: %w", ino, err)
	}
	return entries, nil
}

// ChildCount returns the number of entries in directory ino.
func (tx *Tx) ChildCount(ino uint64) (int64, error) {
	var count int64
	err := sqlitex.Execute(tx.conn, `SELECT count(*) FROM inodes WHERE parent = ? AND ino != ?`,
		&sqlitex.ExecOptions{
			Args: []any{int64(ino), int64(RootIno)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				count = stmt.ColumnInt64(0)
				return nil
			},
		})
	if err != nil {
		return 0, fmt.Errorf("counting entries of %d: %w", ino, err)
	}
	return count, nil
}

// MkdirP makes sure every component of p exists as a directory,
// creating the missing ones with attrs. Existing directories are left
// untouched, so a repeated call changes nothing. Returns the inode of
// the last component.
func (tx *Tx) MkdirP(p string, attrs Attrs) (uint64, error) {
	if !tx.writable {
		return 0, ErrReadOnly
	}
	current := RootIno
	for _, name := range splitPath(p) {
		existing, err := tx.child(current, name)
		if err != nil {
			return 0, err
		}
		if existing != nil {
			if !existing.IsDir() {
				return 0, fmt.Errorf("mkdir -p %s: %q: %w", p, name, ErrPathConflict)
			}
			current = existing.Ino
			continue
		}
		current, err = tx.insert(current, name, unix.S_IFDIR, 0, nil, attrs)
		if err != nil {
			return 0, fmt.Errorf("mkdir -p %s: %w", p, err)
		}
	}
	return current, nil
}

// Mkdir creates a single directory called name in parent.
func (tx *Tx) Mkdir(parent uint64, name string, attrs Attrs) (*Inode, error) {
	if !tx.writable {
		return nil, ErrReadOnly
	}
	if err := checkName(name); err != nil {
		return nil, err
	}
	if err := tx.requireFreeSlot(parent, name); err != nil {
		return nil, err
	}
	ino, err := tx.insert(parent, name, unix.S_IFDIR, 0, nil, attrs)
	if err != nil {
		return nil, err
	}
	return tx.Get(ino)
}

// Mkfile creates a torrent-backed regular file at p. The parent
// directory must already exist. Returns the new inode number.
func (tx *Tx) Mkfile(p string, ref ContentRef, size int64, attrs Attrs) (uint64, error) {
	if !tx.writable {
		return 0, ErrReadOnly
	}
	if ref.Index < 0 {
		return 0, fmt.Errorf("mkfile %s: negative file index %d", p, ref.Index)
	}
	if size < 0 {
		return 0, fmt.Errorf("mkfile %s: negative size %d", p, size)
	}
	segments := splitPath(p)
	if len(segments) == 0 {
		return 0, fmt.Errorf("mkfile %s: %w", p, ErrAlreadyExists)
	}
	dirPath := "/" + strings.Join(segments[:len(segments)-1], "/")
	name := segments[len(segments)-1]

	dir, err := tx.LookupPath(dirPath)
	switch {
	case errors.Is(err, ErrNoSuchEntry):
		return 0, fmt.Errorf("mkfile %s: %w", p, ErrNoSuchParent)
	case err != nil:
		return 0, fmt.Errorf("mkfile %s: %w", p, err)
	case !dir.IsDir():
		return 0, fmt.Errorf("mkfile %s: %s: %w", p, dirPath, ErrNotDirectory)
	}

	if err := tx.requireFreeSlot(dir.Ino, name); err != nil {
		return 0, fmt.Errorf("mkfile %s: %w", p, err)
	}
	ino, err := tx.insert(dir.Ino, name, unix.S_IFREG, size, &ref, attrs)
	if err != nil {
		return 0, fmt.Errorf("mkfile %s: %w", p, err)
	}
	return ino, nil
}

// SetattrIno changes the timestamps of ino in place.
func (tx *Tx) SetattrIno(ino uint64, attr SetAttr) error {
	if !tx.writable {
		return ErrReadOnly
	}
	err := sqlitex.Execute(tx.conn,
		`UPDATE inodes SET ctime = coalesce(?, ctime), mtime = coalesce(?, mtime) WHERE ino = ?`,
		&sqlitex.ExecOptions{
			Args: []any{nanosOrNil(attr.Ctime), nanosOrNil(attr.Mtime), int64(ino)},
		})
	if err != nil {
		return fmt.Errorf("setattr %d: %w", ino, err)
	}
	if tx.conn.Changes() == 0 {
		return fmt.Errorf("setattr %d: %w", ino, ErrNoSuchInode)
	}
	return nil
}

// Unlink removes the non-directory entry name from parent.
func (tx *Tx) Unlink(parent uint64, name string) error {
	child, err := tx.removable(parent, name)
	if err != nil {
		return err
	}
	if child.IsDir() {
		return fmt.Errorf("unlink %q: %w", name, ErrIsDirectory)
	}
	return tx.delete(child.Ino)
}

// Rmdir removes the empty directory name from parent.
func (tx *Tx) Rmdir(parent uint64, name string) error {
	child, err := tx.removable(parent, name)
	if err != nil {
		return err
	}
	if !child.IsDir() {
		return fmt.Errorf("rmdir %q: %w", name, ErrNotDirectory)
	}
	count, err := tx.ChildCount(child.Ino)
	if err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("rmdir %q: %w", name, ErrNotEmpty)
	}
	return tx.delete(child.Ino)
}

// Remove unlinks name from parent whether it is a file or an empty
// directory.
func (tx *Tx) Remove(parent uint64, name string) error {
	child, err := tx.removable(parent, name)
	if err != nil {
		return err
	}
	if child.IsDir() {
		return tx.Rmdir(parent, name)
	}
	return tx.delete(child.Ino)
}

func (tx *Tx) removable(parent uint64, name string) (*Inode, error) {
	if !tx.writable {
		return nil, ErrReadOnly
	}
	return tx.Lookup(parent, name)
}

func (tx *Tx) delete(ino uint64) error {
	err := sqlitex.Execute(tx.conn, `DELETE FROM inodes WHERE ino = ?`,
		&sqlitex.ExecOptions{Args: []any{int64(ino)}})
	if err != nil {
		return fmt.Errorf("deleting inode %d: %w", ino, err)
	}
	return nil
}

// requireFreeSlot checks that parent is a directory without an entry
// called name.
func (tx *Tx) requireFreeSlot(parent uint64, name string) error {
	dir, err := tx.Get(parent)
	if err != nil {
		if errors.Is(err, ErrNoSuchInode) {
			return fmt.Errorf("inode %d: %w", parent, ErrNoSuchParent)
		}
		return err
	}
	if !dir.IsDir() {
		return fmt.Errorf("inode %d: %w", parent, ErrNotDirectory)
	}
	existing, err := tx.child(parent, name)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%q: %w", name, ErrAlreadyExists)
	}
	return nil
}

func (tx *Tx) insert(parent uint64, name string, fileType uint32, size int64, ref *ContentRef, attrs Attrs) (uint64, error) {
	when := attrs.Time
	if when.IsZero() {
		when = tx.clock.Now()
	}
	var hash, index any
	if ref != nil {
		hash = ref.Hash[:]
		index = int64(ref.Index)
	}
	err := sqlitex.Execute(tx.conn, `
		INSERT INTO inodes (parent, name, mode, uid, gid, size, ctime, mtime, torrent_hash, file_index)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				int64(parent), name, int64(fileType | attrs.Perm&0o7777),
				int64(attrs.UID), int64(attrs.GID), size,
				when.UnixNano(), when.UnixNano(), hash, index,
			},
		})
	if err != nil {
		return 0, fmt.Errorf("inserting %q under %d: %w", name, parent, err)
	}
	return uint64(tx.conn.LastInsertRowID()), nil
}

func (tx *Tx) child(parent uint64, name string) (*Inode, error) {
	return tx.queryOne(`SELECT `+inodeColumns+` FROM inodes WHERE parent = ? AND name = ? AND ino != ? LIMIT 1`,
		int64(parent), name, int64(RootIno))
}

func (tx *Tx) queryOne(query string, args ...any) (*Inode, error) {
	var found *Inode
	err := sqlitex.Execute(tx.conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			inode := scanInode(stmt)
			found = &inode
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// scanInode reads a row selected with inodeColumns.
func scanInode(stmt *sqlite.Stmt) Inode {
	inode := Inode{
		Ino:    uint64(stmt.ColumnInt64(0)),
		Parent: uint64(stmt.ColumnInt64(1)),
		Name:   stmt.ColumnText(2),
		Mode:   uint32(stmt.ColumnInt64(3)),
		UID:    uint32(stmt.ColumnInt64(4)),
		GID:    uint32(stmt.ColumnInt64(5)),
		Size:   stmt.ColumnInt64(6),
		Ctime:  time.Unix(0, stmt.ColumnInt64(7)),
		Mtime:  time.Unix(0, stmt.ColumnInt64(8)),
	}
	if stmt.ColumnType(9) != sqlite.TypeNull && stmt.ColumnLen(9) == torrent.HashSize {
		ref := &ContentRef{Index: int(stmt.ColumnInt64(10))}
		stmt.ColumnBytes(9, ref.Hash[:])
		inode.Content = ref
	}
	return inode
}

// splitPath cleans p and returns its components. The root yields none.
func splitPath(p string) []string {
	cleaned := path.Clean("/" + p)
	if cleaned == "/" {
		return nil
	}
	return strings.Split(cleaned[1:], "/")
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.Contains(name, "/") {
		return fmt.Errorf("%q: %w", name, ErrInvalidName)
	}
	return nil
}

func nanosOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}
