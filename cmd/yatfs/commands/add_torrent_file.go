// Copyright 2026 The Yatfs Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/yatfs/yatfs/cmd/yatfs/cli"
	"github.com/yatfs/yatfs/lib/routine"
)

type addTorrentFileParams struct {
	Dir        string `flag:"dir" desc:"directory to register the files under (default: /<hex info hash>)"`
	TorrentDir string `flag:"torrent_dir" desc:"also save the metainfo here as <hex hash>.torrent"`
	Owner      ownerFlags
}

func (a *app) addTorrentFileCommand() *cli.Command {
	var params addTorrentFileParams
	return &cli.Command{
		Name:    "add_torrent_file",
		Summary: "Register every file of a .torrent",
		Description: `Create one regular file per file in the torrent, creating parent
directories as needed. Either every file is registered or none is.`,
		Usage: "yatfs --db_path <path> add_torrent_file [flags] <file.torrent>",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("add_torrent_file", &params)
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one torrent file, got %d arguments", len(args))
			}
			return a.runAddTorrentFile(context.Background(), args[0], &params)
		},
	}
}

func (a *app) runAddTorrentFile(ctx context.Context, path string, params *addTorrentFileParams) error {
	owner, err := params.Owner.resolve()
	if err != nil {
		return err
	}
	logger, err := a.logger("add_torrent_file")
	if err != nil {
		return err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	store, err := a.openStore(logger)
	if err != nil {
		return err
	}
	defer store.Close()

	result, err := routine.AddTorrentFile(ctx, store, raw, routine.AddOptions{
		Dir:    params.Dir,
		UID:    owner.UID,
		GID:    owner.GID,
		Umask:  owner.Umask,
		Time:   owner.Time,
		SaveTo: params.TorrentDir,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	fmt.Fprintf(a.stdout, "%s %s %d\n", result.Descriptor.InfoHash, result.Dir, len(result.Inodes))
	return nil
}
