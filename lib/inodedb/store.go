// Copyright 2026 The Yatfs Authors
// SPDX-License-Identifier: Apache-2.0

package inodedb

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sys/unix"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/yatfs/yatfs/lib/clock"
	"github.com/yatfs/yatfs/lib/sqlitepool"
)

const schema = `
CREATE TABLE IF NOT EXISTS inodes (
	ino          INTEGER PRIMARY KEY AUTOINCREMENT,
	parent       INTEGER NOT NULL,
	name         TEXT    NOT NULL,
	mode         INTEGER NOT NULL,
	uid          INTEGER NOT NULL,
	gid          INTEGER NOT NULL,
	size         INTEGER NOT NULL DEFAULT 0,
	ctime        INTEGER NOT NULL,
	mtime        INTEGER NOT NULL,
	torrent_hash BLOB,
	file_index   INTEGER
);
CREATE INDEX IF NOT EXISTS inodes_by_parent ON inodes (parent, name);
CREATE INDEX IF NOT EXISTS inodes_by_content ON inodes (torrent_hash, file_index)
	WHERE torrent_hash IS NOT NULL;
`

// Config holds the parameters for opening a Store.
type Config struct {
	// Path is the database file. It is created if missing.
	Path string

	// PoolSize is passed to sqlitepool.
	PoolSize int

	// RootUID, RootGID and RootPerm apply only when the root inode is
	// created on first open. Zero RootPerm means 0755. Root ownership
	// defaults to the current process.
	RootUID  *uint32
	RootGID  *uint32
	RootPerm uint32

	// Clock stamps inodes created without an explicit time. Nil means
	// the real clock.
	Clock clock.Clock

	Logger *slog.Logger
}

// Store is the inode table. It is safe for concurrent use.
type Store struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger
}

// Open opens or creates the store at cfg.Path and ensures the root
// inode exists.
func Open(cfg Config) (*Store, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: cfg.PoolSize,
		Logger:   logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("inodedb: %w", err)
	}

	store := &Store{pool: pool, clock: clk, logger: logger}
	if err := store.ensureRoot(cfg); err != nil {
		pool.Close()
		return nil, fmt.Errorf("inodedb: creating root: %w", err)
	}
	logger.Debug("inode store opened", "path", cfg.Path)
	return store, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

func (s *Store) ensureRoot(cfg Config) error {
	uid := uint32(os.Getuid())
	if cfg.RootUID != nil {
		uid = *cfg.RootUID
	}
	gid := uint32(os.Getgid())
	if cfg.RootGID != nil {
		gid = *cfg.RootGID
	}
	perm := cfg.RootPerm
	if perm == 0 {
		perm = 0o755
	}
	now := s.clock.Now().UnixNano()

	return s.Update(context.Background(), func(tx *Tx) error {
		return sqlitex.Execute(tx.conn, `
			INSERT OR IGNORE INTO inodes (ino, parent, name, mode, uid, gid, size, ctime, mtime)
			VALUES (?, 0, '', ?, ?, ?, 0, ?, ?)`,
			&sqlitex.ExecOptions{
				Args: []any{int64(RootIno), int64(unix.S_IFDIR | perm&0o7777), int64(uid), int64(gid), now, now},
			})
	})
}

// Update runs fn inside one IMMEDIATE transaction. If fn returns an
// error nothing it did is kept.
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error) (err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("inodedb: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("inodedb: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	return fn(&Tx{conn: conn, clock: s.clock, writable: true})
}

// View runs fn inside a read transaction. fn sees one snapshot of the
// store for its whole duration.
func (s *Store) View(ctx context.Context, fn func(tx *Tx) error) (err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("inodedb: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction := sqlitex.Transaction(conn)
	defer endTransaction(&err)

	return fn(&Tx{conn: conn, clock: s.clock})
}

// MkdirP runs [Tx.MkdirP] in its own transaction.
func (s *Store) MkdirP(ctx context.Context, path string, attrs Attrs) (ino uint64, err error) {
	err = s.Update(ctx, func(tx *Tx) error {
		ino, err = tx.MkdirP(path, attrs)
		return err
	})
	return ino, err
}

// Mkfile runs [Tx.Mkfile] in its own transaction.
func (s *Store) Mkfile(ctx context.Context, path string, ref ContentRef, size int64, attrs Attrs) (ino uint64, err error) {
	err = s.Update(ctx, func(tx *Tx) error {
		ino, err = tx.Mkfile(path, ref, size, attrs)
		return err
	})
	return ino, err
}

// SetattrIno runs [Tx.SetattrIno] in its own transaction.
func (s *Store) SetattrIno(ctx context.Context, ino uint64, attr SetAttr) error {
	return s.Update(ctx, func(tx *Tx) error {
		return tx.SetattrIno(ino, attr)
	})
}

// Mkdir runs [Tx.Mkdir] in its own transaction.
func (s *Store) Mkdir(ctx context.Context, parent uint64, name string, attrs Attrs) (inode *Inode, err error) {
	err = s.Update(ctx, func(tx *Tx) error {
		inode, err = tx.Mkdir(parent, name, attrs)
		return err
	})
	return inode, err
}

// Unlink runs [Tx.Unlink] in its own transaction.
func (s *Store) Unlink(ctx context.Context, parent uint64, name string) error {
	return s.Update(ctx, func(tx *Tx) error {
		return tx.Unlink(parent, name)
	})
}

// Rmdir runs [Tx.Rmdir] in its own transaction.
func (s *Store) Rmdir(ctx context.Context, parent uint64, name string) error {
	return s.Update(ctx, func(tx *Tx) error {
		return tx.Rmdir(parent, name)
	})
}

// Get runs [Tx.Get] in a read transaction.
func (s *Store) Get(ctx context.Context, ino uint64) (inode *Inode, err error) {
	err = s.View(ctx, func(tx *Tx) error {
		inode, err = tx.Get(ino)
		return err
	})
	return inode, err
}

// Lookup runs [Tx.Lookup] in a read transaction.
func (s *Store) Lookup(ctx context.Context, parent uint64, name string) (inode *Inode, err error) {
	err = s.View(ctx, func(tx *Tx) error {
		inode, err = tx.Lookup(parent, name)
		return err
	})
	return inode, err
}

// LookupPath runs [Tx.LookupPath] in a read transaction.
func (s *Store) LookupPath(ctx context.Context, path string) (inode *Inode, err error) {
	err = s.View(ctx, func(tx *Tx) error {
		inode, err = tx.LookupPath(path)
		return err
	})
	return inode, err
}

// ReadDir runs [Tx.ReadDir] in a read transaction.
func (s *Store) ReadDir(ctx context.Context, ino uint64) (entries []Inode, err error) {
	err = s.View(ctx, func(tx *Tx) error {
		entries, err = tx.ReadDir(ino)
		return err
	})
	return entries, err
}

// Stat returns the inode and, for directories, its entry count, from
// one snapshot.
func (s *Store) Stat(ctx context.Context, ino uint64) (inode *Inode, entries int64, err error) {
	err = s.View(ctx, func(tx *Tx) error {
		inode, err = tx.Get(ino)
		if err != nil {
			return err
		}
		if inode.IsDir() {
			entries, err = tx.ChildCount(ino)
		}
		return err
	})
	return inode, entries, err
}

// Counts returns the number of inodes and the total size of regular
// files.
func (s *Store) Counts(ctx context.Context) (inodes, bytes int64, err error) {
	err = s.View(ctx, func(tx *Tx) error {
		return sqlitex.Execute(tx.conn, `SELECT count(*), coalesce(sum(size), 0) FROM inodes`,
			&sqlitex.ExecOptions{
				ResultFunc: func(stmt *sqlite.Stmt) error {
					inodes = stmt.ColumnInt64(0)
					bytes = stmt.ColumnInt64(1)
					return nil
				},
			})
	})
	return inodes, bytes, err
}
