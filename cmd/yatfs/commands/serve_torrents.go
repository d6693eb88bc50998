// Copyright 2026 The Yatfs Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/yatfs/yatfs/cmd/yatfs/cli"
	"github.com/yatfs/yatfs/lib/service"
	"github.com/yatfs/yatfs/lib/torrent"
)

type serveTorrentsParams struct {
	Socket     string `flag:"socket" desc:"Unix socket to listen on"`
	TorrentDir string `flag:"torrent_dir" desc:"directory of <hex hash>.torrent files"`
}

func (a *app) serveTorrentsCommand() *cli.Command {
	var params serveTorrentsParams
	return &cli.Command{
		Name:    "serve-torrents",
		Summary: "Answer metainfo requests from a directory",
		Description: `Serve the torrent-data socket protocol from a directory of
<hex hash>.torrent files, for use as --torrent_callback unix:<socket>.
Runs until SIGINT or SIGTERM.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("serve-torrents", &params)
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("unexpected arguments %v", args)
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.runServeTorrents(ctx, &params)
		},
	}
}

func (a *app) runServeTorrents(ctx context.Context, params *serveTorrentsParams) error {
	if params.Socket == "" {
		return errors.New("--socket is required")
	}
	if params.TorrentDir == "" {
		return errors.New("--torrent_dir is required")
	}
	logger, err := a.logger("serve-torrents")
	if err != nil {
		return err
	}
	server := service.NewSocketServer(params.Socket, logger)
	server.Handle(torrent.ActionTorrentData, torrent.TorrentDataHandler(torrent.DirSource{Dir: params.TorrentDir}))
	logger.Info("serving torrents", "socket", params.Socket, "dir", params.TorrentDir)
	return server.Serve(ctx)
}
