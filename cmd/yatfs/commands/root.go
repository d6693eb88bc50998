// Copyright 2026 The Yatfs Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the yatfs command tree.
package commands

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/yatfs/yatfs/cmd/yatfs/cli"
	"github.com/yatfs/yatfs/lib/inodedb"
	"github.com/yatfs/yatfs/lib/torrent"
	"github.com/yatfs/yatfs/lib/version"
)

// globalParams are the flags that precede the subcommand.
type globalParams struct {
	DBPath   string `flag:"db_path" desc:"inode database file (created if missing)"`
	LogLevel string `flag:"log_level" desc:"minimum log level: debug, info, warn or error" default:"info"`
}

// app carries what every command shares. Tests build one with their
// own output and logger.
type app struct {
	globals  globalParams
	registry *torrent.Registry
	stdout   io.Writer

	// newLogger is called after flag parsing so --log_level applies.
	newLogger func(level slog.Leveler) *slog.Logger
}

// Root builds the yatfs command tree. Sources in registry can be
// selected with --torrent_callback func:<name>.
func Root(registry *torrent.Registry) *cli.Command {
	return newApp(registry, os.Stdout, cli.NewCommandLogger).root()
}

func newApp(registry *torrent.Registry, stdout io.Writer, newLogger func(slog.Leveler) *slog.Logger) *app {
	if registry == nil {
		registry = torrent.NewRegistry()
	}
	return &app{registry: registry, stdout: stdout, newLogger: newLogger}
}

func (a *app) root() *cli.Command {
	return &cli.Command{
		Name: "yatfs",
		Description: `yatfs: a filesystem of torrent contents.

Files registered from .torrent metainfo are served through FUSE and
read from the torrent payload on demand. The directory tree lives in
an SQLite inode database given by --db_path.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("yatfs", &a.globals)
		},
		Subcommands: []*cli.Command{
			a.mountCommand(),
			a.addTorrentFileCommand(),
			a.mkfileCommand(),
			a.fsckCommand(),
			a.serveTorrentsCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					fmt.Fprintf(a.stdout, "yatfs %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Register a torrent's files under /linux",
				Command:     "yatfs --db_path ~/.local/share/yatfs/inodes.db add_torrent_file --dir /linux --torrent_dir ~/torrents debian.torrent",
			},
			{
				Description: "Mount the filesystem",
				Command:     "yatfs --db_path ~/.local/share/yatfs/inodes.db mount --config yatfs.yaml --torrent_dir ~/torrents /mnt/torrents",
			},
			{
				Description: "Check the inode database against the torrents",
				Command:     "yatfs --db_path ~/.local/share/yatfs/inodes.db fsck --torrent_dir ~/torrents",
			},
		},
	}
}

// logger returns the command logger at the --log_level level, info
// when unset.
func (a *app) logger(command string) (*slog.Logger, error) {
	level := slog.LevelInfo
	if a.globals.LogLevel != "" {
		if err := level.UnmarshalText([]byte(a.globals.LogLevel)); err != nil {
			return nil, fmt.Errorf("--log_level: %w", err)
		}
	}
	return a.newLogger(level).With("command", command), nil
}

// openStore opens the database named by --db_path.
func (a *app) openStore(logger *slog.Logger) (*inodedb.Store, error) {
	if a.globals.DBPath == "" {
		return nil, errors.New("--db_path is required")
	}
	store, err := inodedb.Open(inodedb.Config{Path: a.globals.DBPath, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", a.globals.DBPath, err)
	}
	return store, nil
}
