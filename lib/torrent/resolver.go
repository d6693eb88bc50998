// Copyright 2026 The Yatfs Authors
// SPDX-License-Identifier: Apache-2.0

package torrent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Resolver decodes torrents on demand and keeps the descriptors.
// Concurrent requests for the same hash share one fetch. It is safe for
// concurrent use.
type Resolver struct {
	source Source
	logger *slog.Logger

	flight singleflight.Group

	mu          sync.RWMutex
	descriptors map[Hash]*Descriptor
}

// NewResolver returns a Resolver reading from source. A nil logger
// discards output.
func NewResolver(source Source, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{
		source:      source,
		logger:      logger,
		descriptors: make(map[Hash]*Descriptor),
	}
}

// Resolve returns the descriptor for hash, fetching and decoding it on
// first use. Metainfo whose info hash differs from hash is rejected
// with ErrHashMismatch.
func (r *Resolver) Resolve(ctx context.Context, hash Hash) (*Descriptor, error) {
	r.mu.RLock()
	descriptor, ok := r.descriptors[hash]
	r.mu.RUnlock()
	if ok {
		return descriptor, nil
	}

	result, err, _ := r.flight.Do(hash.String(), func() (any, error) {
		raw, err := r.source.TorrentData(ctx, hash)
		if err != nil {
			return nil, err
		}
		descriptor, err := Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("torrent %s: %w", hash, err)
		}
		if descriptor.InfoHash != hash {
			return nil, fmt.Errorf("requested %s, got %s: %w", hash, descriptor.InfoHash, ErrHashMismatch)
		}
		r.Add(descriptor)
		r.logger.Debug("torrent resolved",
			"hash", hash.String(),
			"name", descriptor.Name,
			"files", len(descriptor.Files),
			"pieces", descriptor.NumPieces(),
		)
		return descriptor, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Descriptor), nil
}

// Add stores an already-decoded descriptor.
func (r *Resolver) Add(descriptor *Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.descriptors[descriptor.InfoHash] = descriptor
}
