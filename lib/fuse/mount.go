// Copyright 2026 The Yatfs Authors
// SPDX-License-Identifier: Apache-2.0

package fuse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"time"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/yatfs/yatfs/lib/clock"
	"github.com/yatfs/yatfs/lib/inodedb"
	"github.com/yatfs/yatfs/lib/routine"
)

// State is the mount lifecycle: Unmounted, Mounted, Unmounting, and
// back to Unmounted.
type State int

const (
	Unmounted State = iota
	Mounted
	Unmounting
)

func (s State) String() string {
	switch s {
	case Unmounted:
		return "unmounted"
	case Mounted:
		return "mounted"
	case Unmounting:
		return "unmounting"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	// ErrNotMounted is returned by Unmount unless the filesystem is
	// mounted.
	ErrNotMounted = errors.New("filesystem is not mounted")

	// ErrAlreadyMounted is returned by Mount unless the filesystem is
	// unmounted.
	ErrAlreadyMounted = errors.New("filesystem is already mounted")
)

// Options configures a Filesystem.
type Options struct {
	// Mountpoint is created if it does not exist.
	Mountpoint string

	// Controller supplies the store and file content. Required.
	Controller *routine.Controller

	// DefaultPermissions lets the kernel enforce mode bits.
	DefaultPermissions bool

	// AllowOther and AllowRoot open the mount to other users or to
	// root. AllowOther needs user_allow_other in /etc/fuse.conf.
	AllowOther bool
	AllowRoot  bool

	// Debug logs every FUSE request.
	Debug bool

	// Clock stamps ctime on timestamp changes. Nil means the real
	// clock.
	Clock clock.Clock

	// Logger receives diagnostic messages. If nil, a no-op logger is
	// used.
	Logger *slog.Logger
}

// Filesystem serves one inode store through FUSE.
type Filesystem struct {
	options    Options
	controller *routine.Controller
	store      *inodedb.Store
	clock      clock.Clock
	logger     *slog.Logger

	mu     sync.Mutex
	state  State
	server *fuse.Server
}

// New validates options. Nothing is mounted until Mount.
func New(options Options) (*Filesystem, error) {
	if options.Mountpoint == "" {
		return nil, fmt.Errorf("mountpoint is required")
	}
	if options.Controller == nil {
		return nil, fmt.Errorf("controller is required")
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}
	return &Filesystem{
		options:    options,
		controller: options.Controller,
		store:      options.Controller.Store(),
		clock:      options.Clock,
		logger:     options.Logger,
	}, nil
}

// Root returns a node for the store's root directory, for serving
// through a caller-supplied bridge.
func (f *Filesystem) Root() gofuse.InodeEmbedder {
	return &node{fs: f, ino: inodedb.RootIno}
}

// State reports the lifecycle state.
func (f *Filesystem) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Mount starts the fetch routine and mounts the filesystem.
func (f *Filesystem) Mount() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != Unmounted {
		return fmt.Errorf("%w (%s)", ErrAlreadyMounted, f.state)
	}

	if err := os.MkdirAll(f.options.Mountpoint, 0o755); err != nil {
		return fmt.Errorf("creating mountpoint %s: %w", f.options.Mountpoint, err)
	}

	entryTimeout := 1 * time.Second
	attrTimeout := 1 * time.Second
	negativeTimeout := 100 * time.Millisecond

	var extra []string
	if f.options.DefaultPermissions {
		extra = append(extra, "default_permissions")
	}
	if f.options.AllowRoot {
		extra = append(extra, "allow_root")
	}

	f.controller.RunLoopInBackground()
	server, err := gofuse.Mount(f.options.Mountpoint, f.Root(), &gofuse.Options{
		RootStableAttr:  &gofuse.StableAttr{Ino: inodedb.RootIno},
		EntryTimeout:    &entryTimeout,
		AttrTimeout:     &attrTimeout,
		NegativeTimeout: &negativeTimeout,
		MountOptions: fuse.MountOptions{
			FsName:     "yatfs",
			Name:       "yatfs",
			AllowOther: f.options.AllowOther,
			Options:    extra,
			Debug:      f.options.Debug,
		},
	})
	if err != nil {
		stopErr := f.stopRoutine()
		return errors.Join(fmt.Errorf("mounting FUSE filesystem at %s: %w", f.options.Mountpoint, err), stopErr)
	}

	f.server = server
	f.state = Mounted
	f.logger.Info("filesystem mounted", "mountpoint", f.options.Mountpoint)
	return nil
}

// Unmount stops the fetch routine, bounded by the configured stop
// timeout, and then releases the mount. Blocked reads fail with EIO
// once the routine stops, so the kernel can let go of the mount.
func (f *Filesystem) Unmount() error {
	f.mu.Lock()
	if f.state != Mounted {
		state := f.state
		f.mu.Unlock()
		return fmt.Errorf("%w (%s)", ErrNotMounted, state)
	}
	f.state = Unmounting
	server := f.server
	f.mu.Unlock()

	stopErr := f.stopRoutine()
	unmountErr := server.Unmount()

	f.mu.Lock()
	defer f.mu.Unlock()
	if unmountErr != nil {
		// Still mounted; the caller may retry.
		f.state = Mounted
		f.controller.RunLoopInBackground()
		return errors.Join(fmt.Errorf("unmounting %s: %w", f.options.Mountpoint, unmountErr), stopErr)
	}
	f.server = nil
	f.state = Unmounted
	f.logger.Info("filesystem unmounted", "mountpoint", f.options.Mountpoint)
	return stopErr
}

// Wait blocks until the mount is gone, whether through Unmount or an
// external fusermount -u.
func (f *Filesystem) Wait() {
	f.mu.Lock()
	server := f.server
	f.mu.Unlock()
	if server != nil {
		server.Wait()
	}
}

func (f *Filesystem) stopRoutine() error {
	timeout := f.controller.Config().Routine.StopTimeout
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := f.controller.StopLoop(ctx); err != nil {
		f.logger.Warn("fetch routine did not stop cleanly", "timeout", timeout, "error", err)
		return err
	}
	return nil
}

// errno logs err and translates it. Missing entries are routine for
// lookups and only logged at debug level.
func (f *Filesystem) errno(operation string, ino uint64, err error) syscall.Errno {
	errno := toErrno(err)
	switch errno {
	case 0:
	case syscall.EIO:
		f.logger.Error("filesystem operation failed", "operation", operation, "ino", ino, "error", err)
	default:
		f.logger.Debug("filesystem operation refused", "operation", operation, "ino", ino, "error", err)
	}
	return errno
}
