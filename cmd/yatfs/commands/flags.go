// Copyright 2026 The Yatfs Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"
	"os/user"
	"strconv"
	"time"

	"github.com/spf13/pflag"

	"github.com/yatfs/yatfs/lib/torrent"
)

// ownerFlags are the ownership and timestamp flags of commands that
// create inodes.
type ownerFlags struct {
	User  string
	Group string
	Umask string
	Time  string
}

func (o *ownerFlags) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&o.User, "user", "", "owner, as a name or numeric uid (default: current user)")
	flagSet.StringVar(&o.Group, "group", "", "group, as a name or numeric gid (default: current group)")
	flagSet.StringVar(&o.Umask, "umask", "022", "octal mask cleared from 0666 for files and 0777 for directories")
	flagSet.StringVar(&o.Time, "time", "", "ctime and mtime as Unix seconds (default: now)")
}

// ownership is the resolved form of ownerFlags.
type ownership struct {
	UID   uint32
	GID   uint32
	Umask uint32

	// Time is nil when --time was not given.
	Time *time.Time
}

func (o *ownerFlags) resolve() (ownership, error) {
	var result ownership

	uid, err := resolveID(o.User, os.Getuid(), func(name string) (string, error) {
		account, err := user.Lookup(name)
		if err != nil {
			return "", err
		}
		return account.Uid, nil
	})
	if err != nil {
		return result, fmt.Errorf("--user: %w", err)
	}
	gid, err := resolveID(o.Group, os.Getgid(), func(name string) (string, error) {
		group, err := user.LookupGroup(name)
		if err != nil {
			return "", err
		}
		return group.Gid, nil
	})
	if err != nil {
		return result, fmt.Errorf("--group: %w", err)
	}
	result.UID, result.GID = uid, gid

	umask, err := strconv.ParseUint(o.Umask, 8, 32)
	if err != nil || umask > 0o777 {
		return result, fmt.Errorf("--umask: %q is not an octal mask", o.Umask)
	}
	result.Umask = uint32(umask)

	if o.Time != "" {
		seconds, err := strconv.ParseInt(o.Time, 10, 64)
		if err != nil {
			return result, fmt.Errorf("--time: %q is not Unix seconds", o.Time)
		}
		stamp := time.Unix(seconds, 0)
		result.Time = &stamp
	}
	return result, nil
}

// resolveID accepts a numeric id or a name looked up with lookup. An
// empty value means fallback.
func resolveID(value string, fallback int, lookup func(string) (string, error)) (uint32, error) {
	if value == "" {
		return uint32(fallback), nil
	}
	if id, err := strconv.ParseUint(value, 10, 32); err == nil {
		return uint32(id), nil
	}
	idString, err := lookup(value)
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseUint(idString, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%s has non-numeric id %q", value, idString)
	}
	return uint32(id), nil
}

// sourceFlags select where metainfo for content references comes
// from.
type sourceFlags struct {
	TorrentDir      string
	TorrentCallback string
}

func (s *sourceFlags) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&s.TorrentDir, "torrent_dir", "", "directory of <hex hash>.torrent files")
	flagSet.StringVar(&s.TorrentCallback, "torrent_callback", "", "metainfo helper: unix:<socket> or func:<registered name>")
}

// source builds the configured source. The directory is tried before
// the callback. It returns nil when neither flag is set.
func (s *sourceFlags) source(registry *torrent.Registry) (torrent.Source, error) {
	var sources torrent.Sources
	if s.TorrentDir != "" {
		sources = append(sources, torrent.DirSource{Dir: s.TorrentDir})
	}
	if s.TorrentCallback != "" {
		callback, err := torrent.ParseSourceSpec(s.TorrentCallback, registry)
		if err != nil {
			return nil, fmt.Errorf("--torrent_callback: %w", err)
		}
		sources = append(sources, callback)
	}
	switch len(sources) {
	case 0:
		return nil, nil
	case 1:
		return sources[0], nil
	default:
		return sources, nil
	}
}
