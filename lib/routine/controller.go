// Copyright 2026 The Yatfs Authors
// SPDX-License-Identifier: Apache-2.0

package routine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/yatfs/yatfs/lib/clock"
	"github.com/yatfs/yatfs/lib/config"
	"github.com/yatfs/yatfs/lib/inodedb"
	"github.com/yatfs/yatfs/lib/torrent"
)

// Options configures a Controller.
type Options struct {
	// Store is required. The controller does not close it.
	Store *inodedb.Store

	// Source supplies metainfo for content references. Required
	// unless Resolver is set.
	Source torrent.Source

	// Resolver overrides the resolver built from Source.
	Resolver *torrent.Resolver

	// Config is validated by New. Nil means config.Default().
	Config *config.Config

	// Fetcher overrides the one selected by Config.Routine.Backend.
	Fetcher Fetcher

	Logger *slog.Logger

	// Registerer receives the routine's metrics. Nil leaves them
	// unregistered.
	Registerer prometheus.Registerer

	// Clock drives backoff waits and the status ticker. Nil means the
	// real clock.
	Clock clock.Clock
}

// Controller binds one store to torrent payload for the lifetime of a
// mount.
type Controller struct {
	store    *inodedb.Store
	resolver *torrent.Resolver
	config   *config.Config
	fetcher  Fetcher
	routine  *Routine
	logger   *slog.Logger
	metrics  *metrics
}

// New validates opts and builds a Controller. The routine is not
// started; call RunLoopInBackground.
func New(opts Options) (*Controller, error) {
	if opts.Store == nil {
		return nil, errors.New("routine: Store is required")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}

	resolver := opts.Resolver
	if resolver == nil {
		if opts.Source == nil {
			return nil, errors.New("routine: Source or Resolver is required")
		}
		resolver = torrent.NewResolver(opts.Source, logger)
	}

	fetcher := opts.Fetcher
	if fetcher == nil {
		var err error
		fetcher, err = newFetcher(cfg, logger)
		if err != nil {
			return nil, err
		}
	}

	m := newMetrics(opts.Registerer)
	return &Controller{
		store:    opts.Store,
		resolver: resolver,
		config:   cfg,
		fetcher:  fetcher,
		routine:  newRoutine(fetcher, cfg.Routine, clk, logger.With("component", "routine"), m),
		logger:   logger,
		metrics:  m,
	}, nil
}

func newFetcher(cfg *config.Config, logger *slog.Logger) (Fetcher, error) {
	switch cfg.Routine.Backend {
	case config.BackendLocal:
		return NewLocalFetcher(cfg.Routine.DataDir), nil
	case config.BackendClient:
		return NewClientFetcher(cfg.Routine.DataDir, cfg.Torrent, logger.With("component", "torrent-client"))
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Routine.Backend)
	}
}

// Store returns the inode store.
func (c *Controller) Store() *inodedb.Store { return c.store }

// Resolver returns the descriptor resolver.
func (c *Controller) Resolver() *torrent.Resolver { return c.resolver }

// Config returns the validated configuration.
func (c *Controller) Config() *config.Config { return c.config }

// RunLoopInBackground starts the fetch routine.
func (c *Controller) RunLoopInBackground() { c.routine.RunLoopInBackground() }

// StopLoop stops the fetch routine. See [Routine.StopLoop].
func (c *Controller) StopLoop(ctx context.Context) error { return c.routine.StopLoop(ctx) }

// Running reports whether the fetch routine is running.
func (c *Controller) Running() bool { return c.routine.Running() }

// Close stops the routine, bounded by the configured stop timeout, and
// releases the fetcher.
func (c *Controller) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.Routine.StopTimeout)
	defer cancel()
	return errors.Join(c.StopLoop(ctx), c.fetcher.Close())
}

// AddTorrentFile decodes raw and registers its files in the store. The
// descriptor is kept so reads need not fetch the metainfo again.
func (c *Controller) AddTorrentFile(ctx context.Context, raw []byte, opts AddOptions) (*AddResult, error) {
	result, err := AddTorrentFile(ctx, c.store, raw, opts)
	if err != nil {
		return nil, err
	}
	c.resolver.Add(result.Descriptor)
	c.metrics.torrentsAdded.Inc()
	c.logger.Info("torrent added",
		"hash", result.Descriptor.InfoHash.String(),
		"name", result.Descriptor.Name,
		"dir", result.Dir,
		"files", len(result.Inodes),
	)
	return result, nil
}

// ReadFile fills dest with the bytes of a torrent-backed file starting
// at off and returns how many were read. size is the file's size in
// the store and must match the torrent. Reads at or past the end
// return 0. The whole call is bounded by the configured read timeout.
func (c *Controller) ReadFile(ctx context.Context, ref inodedb.ContentRef, size int64, dest []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	if off >= size || len(dest) == 0 {
		return 0, nil
	}
	n := min(int64(len(dest)), size-off)

	ctx, cancel := context.WithTimeout(ctx, c.config.Routine.ReadTimeout)
	defer cancel()

	read, err := c.readFile(ctx, ref, size, dest[:n], off)
	if err != nil {
		c.metrics.readFailures.Inc()
		return 0, err
	}
	c.metrics.readBytes.Add(float64(read))
	return read, nil
}

func (c *Controller) readFile(ctx context.Context, ref inodedb.ContentRef, size int64, dest []byte, off int64) (int, error) {
	descriptor, err := c.resolver.Resolve(ctx, ref.Hash)
	if err != nil {
		return 0, fmt.Errorf("resolving torrent %s: %w", ref.Hash, err)
	}
	if ref.Index < 0 || ref.Index >= len(descriptor.Files) {
		return 0, fmt.Errorf("torrent %s has %d files, index %d: %w", ref.Hash, len(descriptor.Files), ref.Index, ErrBadContentRef)
	}
	file := descriptor.Files[ref.Index]
	if file.Length != size {
		return 0, fmt.Errorf("torrent %s file %d is %d bytes, inode says %d: %w", ref.Hash, ref.Index, file.Length, size, ErrBadContentRef)
	}

	first, count, err := descriptor.PieceRange(ref.Index, off, int64(len(dest)))
	if err != nil {
		return 0, err
	}
	start := file.Offset + off
	end := start + int64(len(dest))

	group, groupCtx := errgroup.WithContext(ctx)
	for piece := first; piece < first+count; piece++ {
		group.Go(func() error {
			data, err := c.routine.Piece(groupCtx, descriptor, piece)
			if err != nil {
				return fmt.Errorf("torrent %s piece %d: %w", ref.Hash, piece, err)
			}
			pieceStart := descriptor.PieceOffset(piece)
			from := max(start, pieceStart)
			to := min(end, pieceStart+int64(len(data)))
			copy(dest[from-start:to-start], data[from-pieceStart:to-pieceStart])
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return 0, err
	}
	return len(dest), nil
}
