// Copyright 2026 The Yatfs Authors
// SPDX-License-Identifier: Apache-2.0

// Command yatfs mounts torrent contents as a filesystem and manages its
// inode database.
package main

import (
	"fmt"
	"os"

	"github.com/yatfs/yatfs/cmd/yatfs/commands"
	"github.com/yatfs/yatfs/lib/torrent"
)

func main() {
	if err := run(); err != nil {
		// fsck prints its own findings and returns an ExitError with the
		// exit code. Don't print a redundant "error:" line for those.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return commands.Root(torrent.NewRegistry()).Execute(os.Args[1:])
}
