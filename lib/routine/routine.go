// Copyright 2026 The Yatfs Authors
// SPDX-License-Identifier: Apache-2.0

package routine

import (
	"context"
	"crypto/sha1"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/yatfs/yatfs/lib/clock"
	"github.com/yatfs/yatfs/lib/config"
	"github.com/yatfs/yatfs/lib/torrent"
)

// Routine fetches pieces in the background. One loop goroutine owns
// the pending table, the queues and the piece cache; callers reach it
// only through [Routine.Piece]. Methods are safe for concurrent use.
type Routine struct {
	fetcher Fetcher
	config  config.RoutineConfig
	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics

	mu  sync.Mutex
	run *run
}

// run is one start/stop cycle of the loop.
type run struct {
	ctx      context.Context
	cancel   context.CancelFunc
	requests chan request
	done     chan struct{}
}

type request struct {
	descriptor *torrent.Descriptor
	piece      int

	// reply is nil for readahead.
	reply chan pieceResult
}

type pieceResult struct {
	data []byte
	err  error
}

type completion struct {
	key  pieceKey
	data []byte
	err  error
}

// fetchState tracks one piece between its first request and the end of
// its fetch.
type fetchState struct {
	descriptor *torrent.Descriptor
	waiters    []chan pieceResult
	urgent     bool
	started    bool
}

func newRoutine(fetcher Fetcher, cfg config.RoutineConfig, clk clock.Clock, logger *slog.Logger, m *metrics) *Routine {
	return &Routine{
		fetcher: fetcher,
		config:  cfg,
		clock:   clk,
		logger:  logger,
		metrics: m,
	}
}

// RunLoopInBackground starts the loop. It is a no-op while a loop is
// running; after StopLoop it starts a fresh one with an empty cache.
func (r *Routine) RunLoopInBackground() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.run != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	current := &run{
		ctx:      ctx,
		cancel:   cancel,
		requests: make(chan request),
		done:     make(chan struct{}),
	}
	r.run = current
	go r.loop(current)
	r.logger.Info("routine started", "workers", r.config.Workers, "readahead", r.config.Readahead)
}

// StopLoop cancels in-flight fetches and waits for the loop to finish.
// Waiting readers fail with ErrStopped. If ctx ends first StopLoop
// returns ErrStopTimeout; the loop still exits once its fetchers
// return. Stopping a stopped routine returns nil.
func (r *Routine) StopLoop(ctx context.Context) error {
	r.mu.Lock()
	current := r.run
	r.run = nil
	r.mu.Unlock()
	if current == nil {
		return nil
	}

	current.cancel()
	select {
	case <-current.done:
		r.logger.Info("routine stopped")
		return nil
	case <-ctx.Done():
		r.logger.Warn("routine did not stop in time", "error", ctx.Err())
		return fmt.Errorf("%w: %v", ErrStopTimeout, ctx.Err())
	}
}

// Running reports whether the loop is running.
func (r *Routine) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.run != nil
}

// Piece returns the verified bytes of piece, fetching it if needed.
// Concurrent calls for the same piece share one fetch. The call also
// queues readahead of the following pieces.
func (r *Routine) Piece(ctx context.Context, descriptor *torrent.Descriptor, piece int) ([]byte, error) {
	if piece < 0 || piece >= descriptor.NumPieces() {
		return nil, fmt.Errorf("torrent %s: piece %d out of range [0, %d)", descriptor.InfoHash, piece, descriptor.NumPieces())
	}
	r.mu.Lock()
	current := r.run
	r.mu.Unlock()
	if current == nil {
		return nil, ErrStopped
	}

	reply := make(chan pieceResult, 1)
	select {
	case current.requests <- request{descriptor: descriptor, piece: piece, reply: reply}:
	case <-current.ctx.Done():
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case result := <-reply:
		return result.data, result.err
	case <-current.ctx.Done():
		select {
		case result := <-reply:
			return result.data, result.err
		default:
			return nil, ErrStopped
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Routine) loop(current *run) {
	defer close(current.done)

	cache := newPieceCache(r.config.PieceCacheBytes)
	pending := make(map[pieceKey]*fetchState)
	var urgentQueue, readaheadQueue []pieceKey
	completions := make(chan completion)
	running := 0

	var status <-chan time.Time
	if r.config.StatusInterval > 0 {
		ticker := r.clock.NewTicker(r.config.StatusInterval)
		defer ticker.Stop()
		status = ticker.C
	}

	enqueue := func(descriptor *torrent.Descriptor, piece int, reply chan pieceResult) {
		key := pieceKey{hash: descriptor.InfoHash, piece: piece}
		urgent := reply != nil
		if data, ok := cache.get(key); ok {
			if urgent {
				r.metrics.cacheRequests.WithLabelValues("hit").Inc()
				reply <- pieceResult{data: data}
			}
			return
		}
		state, ok := pending[key]
		if !ok {
			state = &fetchState{descriptor: descriptor}
			pending[key] = state
			r.metrics.pending.Set(float64(len(pending)))
		}
		if !urgent {
			if !ok {
				readaheadQueue = append(readaheadQueue, key)
			}
			return
		}
		r.metrics.cacheRequests.WithLabelValues("miss").Inc()
		state.waiters = append(state.waiters, reply)
		if !state.urgent && !state.started {
			state.urgent = true
			urgentQueue = append(urgentQueue, key)
		}
	}

	// next pops the first queued piece that has not been started,
	// foreground requests first.
	next := func() (pieceKey, *fetchState, bool) {
		for _, queue := range []*[]pieceKey{&urgentQueue, &readaheadQueue} {
			for len(*queue) > 0 {
				key := (*queue)[0]
				*queue = (*queue)[1:]
				if state, ok := pending[key]; ok && !state.started {
					return key, state, true
				}
			}
		}
		return pieceKey{}, nil, false
	}

	finish := func(done completion) {
		running--
		r.metrics.inFlight.Set(float64(running))
		state := pending[done.key]
		delete(pending, done.key)
		r.metrics.pending.Set(float64(len(pending)))
		if done.err == nil {
			cache.put(done.key, done.data)
			r.metrics.cacheBytes.Set(float64(cache.bytes()))
		}
		for _, waiter := range state.waiters {
			waiter <- pieceResult{data: done.data, err: done.err}
		}
	}

	for {
		for running < r.config.Workers {
			key, state, ok := next()
			if !ok {
				break
			}
			state.started = true
			running++
			r.metrics.inFlight.Set(float64(running))
			go func() {
				data, err := r.fetch(current.ctx, state.descriptor, key.piece)
				completions <- completion{key: key, data: data, err: err}
			}()
		}

		select {
		case req := <-current.requests:
			enqueue(req.descriptor, req.piece, req.reply)
			for ahead := 1; ahead <= r.config.Readahead; ahead++ {
				piece := req.piece + ahead
				if piece >= req.descriptor.NumPieces() {
					break
				}
				enqueue(req.descriptor, piece, nil)
			}

		case done := <-completions:
			finish(done)

		case <-status:
			r.logger.Info("routine status",
				"pending", len(pending),
				"in_flight", running,
				"cached_pieces", cache.len(),
				"cached_bytes", cache.bytes(),
			)

		case <-current.ctx.Done():
			for running > 0 {
				finish(<-completions)
			}
			for _, state := range pending {
				for _, waiter := range state.waiters {
					waiter <- pieceResult{err: ErrStopped}
				}
			}
			return
		}
	}
}

// fetch retrieves and verifies one piece, retrying failures with
// exponential backoff until success, ctx cancellation, or the retry
// budget runs out.
func (r *Routine) fetch(ctx context.Context, descriptor *torrent.Descriptor, piece int) ([]byte, error) {
	started := r.clock.Now()
	logger := r.logger.With("hash", descriptor.InfoHash.String(), "piece", piece)

	var data []byte
	operation := func() error {
		got, err := r.fetcher.FetchPiece(ctx, descriptor, piece)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		if err := verifyPiece(descriptor, piece, got); err != nil {
			return err
		}
		data = got
		return nil
	}
	notify := func(err error, wait time.Duration) {
		r.metrics.retries.Inc()
		logger.Warn("piece fetch failed, retrying", "error", err, "wait", wait)
	}

	err := backoff.RetryNotifyWithTimer(operation, backoff.WithContext(r.newBackOff(), ctx), notify, &clockTimer{clock: r.clock})
	r.metrics.fetchDuration.Observe(r.clock.Now().Sub(started).Seconds())
	switch {
	case err == nil:
		r.metrics.fetches.WithLabelValues("ok").Inc()
		logger.Debug("piece fetched", "bytes", len(data))
		return data, nil
	case errors.Is(err, context.Canceled):
		r.metrics.fetches.WithLabelValues("cancelled").Inc()
		return nil, ErrStopped
	default:
		r.metrics.fetches.WithLabelValues("error").Inc()
		logger.Error("piece fetch gave up", "error", err)
		return nil, fmt.Errorf("torrent %s piece %d: %w", descriptor.InfoHash, piece, err)
	}
}

func (r *Routine) newBackOff() *backoff.ExponentialBackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.config.Retry.Initial
	policy.MaxInterval = r.config.Retry.Max
	policy.MaxElapsedTime = r.config.Retry.MaxElapsed
	policy.Clock = r.clock
	policy.Reset()
	return policy
}

func verifyPiece(descriptor *torrent.Descriptor, piece int, data []byte) error {
	if want := descriptor.PieceSize(piece); int64(len(data)) != want {
		return fmt.Errorf("piece %d is %d bytes, want %d: %w", piece, len(data), want, ErrCorruptPiece)
	}
	if sha1.Sum(data) != descriptor.PieceHash(piece) {
		return fmt.Errorf("piece %d: %w", piece, ErrCorruptPiece)
	}
	return nil
}

// clockTimer drives backoff waits from a clock.Clock so tests can
// advance them.
type clockTimer struct {
	clock   clock.Clock
	channel <-chan time.Time
}

func (t *clockTimer) Start(duration time.Duration) { t.channel = t.clock.After(duration) }

func (t *clockTimer) Stop() {}

func (t *clockTimer) C() <-chan time.Time { return t.channel }
