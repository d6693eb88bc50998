// Copyright 2026 The Yatfs Authors
// SPDX-License-Identifier: Apache-2.0

package routine

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/yatfs/yatfs/lib/inodedb"
	"github.com/yatfs/yatfs/lib/torrent"
)

// AddOptions controls where and how a torrent's files are registered.
type AddOptions struct {
	// Dir is the store directory the files go under. Empty means
	// /<hex info hash>.
	Dir string

	UID uint32
	GID uint32

	// Umask is cleared from 0666 for files and 0777 for directories.
	Umask uint32

	// Time, when set, stamps every created inode and the base
	// directory instead of the store clock.
	Time *time.Time

	// SaveTo, when set, receives a copy of the metainfo as
	// <hex hash>.torrent so a DirSource can serve it later.
	SaveTo string
}

// AddResult describes a registered torrent.
type AddResult struct {
	Descriptor *torrent.Descriptor

	// Dir is the cleaned base directory.
	Dir string

	// Inodes holds the new file inodes in metainfo order.
	Inodes []uint64
}

// AddTorrentFile decodes raw and creates one regular file per torrent
// file, each referring to (info hash, index). Everything happens in one
// store transaction: on any error nothing from this call is visible.
func AddTorrentFile(ctx context.Context, store *inodedb.Store, raw []byte, opts AddOptions) (*AddResult, error) {
	descriptor, err := torrent.Decode(raw)
	if err != nil {
		return nil, err
	}

	base := opts.Dir
	if base == "" {
		base = descriptor.InfoHash.String()
	}
	base = path.Clean("/" + base)

	dirAttrs := inodedb.Attrs{Perm: 0o777 &^ opts.Umask, UID: opts.UID, GID: opts.GID}
	fileAttrs := inodedb.Attrs{Perm: 0o666 &^ opts.Umask, UID: opts.UID, GID: opts.GID}
	if opts.Time != nil {
		dirAttrs.Time = *opts.Time
		fileAttrs.Time = *opts.Time
	}

	result := &AddResult{Descriptor: descriptor, Dir: base}
	err = store.Update(ctx, func(tx *inodedb.Tx) error {
		baseIno, err := tx.MkdirP(base, dirAttrs)
		if err != nil {
			return err
		}
		for index, file := range descriptor.Files {
			filePath := path.Join(append([]string{base}, file.Path...)...)
			if _, err := tx.MkdirP(path.Dir(filePath), dirAttrs); err != nil {
				return err
			}
			ref := inodedb.ContentRef{Hash: descriptor.InfoHash, Index: index}
			ino, err := tx.Mkfile(filePath, ref, file.Length, fileAttrs)
			if err != nil {
				return fmt.Errorf("file %d (%s): %w", index, filePath, err)
			}
			result.Inodes = append(result.Inodes, ino)
		}
		if opts.Time != nil {
			return tx.SetattrIno(baseIno, inodedb.SetAttr{Ctime: opts.Time, Mtime: opts.Time})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("adding torrent %s: %w", descriptor.InfoHash, err)
	}

	if opts.SaveTo != "" {
		if err := (torrent.DirSource{Dir: opts.SaveTo}).Save(descriptor.InfoHash, raw); err != nil {
			return nil, fmt.Errorf("saving torrent %s: %w", descriptor.InfoHash, err)
		}
	}
	return result, nil
}
