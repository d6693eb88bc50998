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

type fsckParams struct {
	Sources sourceFlags
}

func (a *app) fsckCommand() *cli.Command {
	var params fsckParams
	return &cli.Command{
		Name:    "fsck",
		Summary: "Check the inode database for inconsistencies",
		Description: `Verify the directory tree. With --torrent_dir or --torrent_callback,
also check every file against its torrent's file list. Prints "ok" and
exits 0 when consistent; prints the first problem and exits 1
otherwise.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("fsck", &params)
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("unexpected arguments %v", args)
			}
			return a.runFsck(context.Background(), &params)
		},
	}
}

func (a *app) runFsck(ctx context.Context, params *fsckParams) error {
	logger, err := a.logger("fsck")
	if err != nil {
		return err
	}
	source, err := params.Sources.source(a.registry)
	if err != nil {
		return err
	}

	store, err := a.openStore(logger)
	if err != nil {
		return err
	}
	defer store.Close()

	var options inodedb.FsckOptions
	if source != nil {
		options.Descriptors = torrent.NewResolver(source, logger)
	}
	err = store.Fsck(ctx, options)
	var inconsistency *inodedb.InconsistencyError
	switch {
	case err == nil:
		fmt.Fprintln(a.stdout, "ok")
		return nil
	case errors.As(err, &inconsistency):
		fmt.Fprintln(a.stdout, inconsistency.Error())
		return &cli.ExitError{Code: 1}
	default:
		return err
	}
}
