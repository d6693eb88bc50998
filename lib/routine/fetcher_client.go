// Copyright 2026 The Yatfs Authors
// SPDX-License-Identifier: Apache-2.0

package routine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	bittorrent "github.com/anacrolix/torrent"

	"github.com/yatfs/yatfs/lib/config"
	"github.com/yatfs/yatfs/lib/torrent"
)

// ClientFetcher downloads pieces from peers with an embedded
// BitTorrent client. Payload is stored under the data directory in the
// same layout LocalFetcher reads, so a later mount can switch to the
// local backend.
type ClientFetcher struct {
	client *bittorrent.Client
	logger *slog.Logger

	mu       sync.Mutex
	torrents map[torrent.Hash]*bittorrent.Torrent
}

// NewClientFetcher starts a client storing into dataDir.
func NewClientFetcher(dataDir string, settings config.TorrentConfig, logger *slog.Logger) (*ClientFetcher, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clientConfig := bittorrent.NewDefaultClientConfig()
	clientConfig.DataDir = dataDir
	clientConfig.ListenPort = settings.ListenPort
	clientConfig.NoUpload = settings.NoUpload
	clientConfig.Seed = settings.Seed
	clientConfig.NoDHT = settings.DisableDHT

	client, err := bittorrent.NewClient(clientConfig)
	if err != nil {
		return nil, fmt.Errorf("starting torrent client: %w", err)
	}
	logger.Info("torrent client started", "data_dir", dataDir, "listen_port", settings.ListenPort)
	return &ClientFetcher{
		client:   client,
		logger:   logger,
		torrents: make(map[torrent.Hash]*bittorrent.Torrent),
	}, nil
}

// FetchPiece implements Fetcher. The first request for a torrent adds
// it to the client.
func (f *ClientFetcher) FetchPiece(ctx context.Context, descriptor *torrent.Descriptor, piece int) ([]byte, error) {
	handle, err := f.torrentFor(ctx, descriptor)
	if err != nil {
		return nil, err
	}

	reader := handle.NewReader()
	defer reader.Close()
	reader.SetResponsive()
	reader.SetReadahead(0)
	if _, err := reader.Seek(descriptor.PieceOffset(piece), io.SeekStart); err != nil {
		return nil, fmt.Errorf("seeking to piece %d: %w", piece, err)
	}

	buffer := make([]byte, descriptor.PieceSize(piece))
	for filled := 0; filled < len(buffer); {
		n, err := reader.ReadContext(ctx, buffer[filled:])
		filled += n
		if err != nil && filled < len(buffer) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("torrent %s piece %d: %w: %v", descriptor.InfoHash, piece, ErrPieceUnavailable, err)
		}
	}
	return buffer, nil
}

func (f *ClientFetcher) torrentFor(ctx context.Context, descriptor *torrent.Descriptor) (*bittorrent.Torrent, error) {
	f.mu.Lock()
	handle, ok := f.torrents[descriptor.InfoHash]
	if !ok {
		mi, err := descriptor.MetaInfo()
		if err != nil {
			f.mu.Unlock()
			return nil, fmt.Errorf("torrent %s: %w", descriptor.InfoHash, err)
		}
		handle, err = f.client.AddTorrent(mi)
		if err != nil {
			f.mu.Unlock()
			return nil, fmt.Errorf("adding torrent %s to client: %w", descriptor.InfoHash, err)
		}
		f.torrents[descriptor.InfoHash] = handle
		f.logger.Info("torrent added to client", "hash", descriptor.InfoHash.String(), "name", descriptor.Name)
	}
	f.mu.Unlock()

	select {
	case <-handle.GotInfo():
		return handle, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close drops every torrent and shuts the client down.
func (f *ClientFetcher) Close() error {
	f.mu.Lock()
	for hash, handle := range f.torrents {
		handle.Drop()
		delete(f.torrents, hash)
	}
	f.mu.Unlock()
	f.client.Close()
	return nil
}
