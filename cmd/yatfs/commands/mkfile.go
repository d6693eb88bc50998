// Copyright 2026 The Yatfs Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/yatfs/yatfs/cmd/yatfs/cli"
	"github.com/yatfs/yatfs/lib/inodedb"
	"github.com/yatfs/yatfs/lib/torrent"
)

type mkfileParams struct {
	Path  string `flag:"path" desc:"absolute path of the new file; the parent must exist"`
	Hash  string `flag:"hash" desc:"hex info hash of the torrent holding the content"`
	Index int    `flag:"index" desc:"index of the file within the torrent"`
	Size  int64  `flag:"size" desc:"file size in bytes"`
	Owner ownerFlags
}

func (a *app) mkfileCommand() *cli.Command {
	var params mkfileParams
	return &cli.Command{
		Name:    "mkfile",
		Summary: "Register one torrent-backed file",
		Usage:   "yatfs --db_path <path> mkfile --path <path> --hash <hex> --index <n> --size <bytes> [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("mkfile", &params)
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("unexpected arguments %v", args)
			}
			return a.runMkfile(context.Background(), &params)
		},
	}
}

func (a *app) runMkfile(ctx context.Context, params *mkfileParams) error {
	if params.Path == "" {
		return errors.New("--path is required")
	}
	hash, err := torrent.ParseHash(params.Hash)
	if err != nil {
		return fmt.Errorf("--hash: %w", err)
	}
	if params.Index < 0 {
		return fmt.Errorf("--index must not be negative, got %d", params.Index)
	}
	if params.Size < 0 {
		return fmt.Errorf("--size must not be negative, got %d", params.Size)
	}
	owner, err := params.Owner.resolve()
	if err != nil {
		return err
	}
	logger, err := a.logger("mkfile")
	if err != nil {
		return err
	}

	store, err := a.openStore(logger)
	if err != nil {
		return err
	}
	defer store.Close()

	attrs := inodedb.Attrs{Perm: 0o666 &^ owner.Umask, UID: owner.UID, GID: owner.GID}
	if owner.Time != nil {
		attrs.Time = *owner.Time
	}
	ino, err := store.Mkfile(ctx, params.Path, inodedb.ContentRef{Hash: hash, Index: params.Index}, params.Size, attrs)
	if err != nil {
		return fmt.Errorf("%s: %w", params.Path, err)
	}
	fmt.Fprintf(a.stdout, "%d\n", ino)
	return nil
}
