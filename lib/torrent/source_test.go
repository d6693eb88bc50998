// Copyright 2026 The Yatfs Authors
// SPDX-License-Identifier: Apache-2.0

package torrent_test

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yatfs/yatfs/lib/codec"
	"github.com/yatfs/yatfs/lib/service"
	"github.com/yatfs/yatfs/lib/testutil"
	"github.com/yatfs/yatfs/lib/torrent"
	"github.com/yatfs/yatfs/lib/torrent/torrenttest"
)

func TestDirSource(t *testing.T) {
	built := twoFileTorrent(t)
	dir := t.TempDir()
	built.WriteMetainfo(t, dir)
	source := torrent.DirSource{Dir: dir}

	data, err := source.TorrentData(context.Background(), built.Hash)
	if err != nil {
		t.Fatalf("TorrentData: %v", err)
	}
	if !bytes.Equal(data, built.Raw) {
		t.Error("TorrentData returned different bytes")
	}

	_, err = source.TorrentData(context.Background(), torrent.Hash{1})
	if !errors.Is(err, torrent.ErrNotFound) {
		t.Errorf("missing hash error = %v, want ErrNotFound", err)
	}
}

func TestDirSourceSave(t *testing.T) {
	built := twoFileTorrent(t)
	source := torrent.DirSource{Dir: filepath.Join(t.TempDir(), "nested", "torrents")}

	if err := source.Save(built.Hash, built.Raw); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err := source.TorrentData(context.Background(), built.Hash)
	if err != nil {
		t.Fatalf("TorrentData: %v", err)
	}
	if !bytes.Equal(data, built.Raw) {
		t.Error("saved bytes differ")
	}
}

func TestFuncSourceEmptyIsNotFound(t *testing.T) {
	source := torrent.FuncSource(func(context.Context, torrent.Hash) ([]byte, error) {
		return nil, nil
	})
	_, err := source.TorrentData(context.Background(), torrent.Hash{})
	if !errors.Is(err, torrent.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestSourcesFallsThrough(t *testing.T) {
	built := twoFileTorrent(t)
	dir := t.TempDir()
	built.WriteMetainfo(t, dir)

	sources := torrent.Sources{
		torrent.DirSource{Dir: t.TempDir()},
		torrent.DirSource{Dir: dir},
	}
	data, err := sources.TorrentData(context.Background(), built.Hash)
	if err != nil {
		t.Fatalf("TorrentData: %v", err)
	}
	if !bytes.Equal(data, built.Raw) {
		t.Error("wrong bytes")
	}

	failing := torrent.Sources{
		torrent.FuncSource(func(context.Context, torrent.Hash) ([]byte, error) {
			return nil, errors.New("helper crashed")
		}),
		torrent.DirSource{Dir: dir},
	}
	if _, err := failing.TorrentData(context.Background(), built.Hash); err == nil || errors.Is(err, torrent.ErrNotFound) {
		t.Errorf("error = %v, want the helper failure", err)
	}
}

// serveTorrents answers the torrent-data action from torrents.
func serveTorrents(t *testing.T, torrents ...*torrenttest.Torrent) string {
	t.Helper()
	socketPath := filepath.Join(testutil.SocketDir(t), "torrents.sock")
	server := service.NewSocketServer(socketPath, nil)
	server.Handle(torrent.ActionTorrentData, func(ctx context.Context, raw []byte) (any, error) {
		var request torrent.TorrentDataRequest
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, err
		}
		for _, built := range torrents {
			if built.Hash.String() == request.Hash {
				return torrent.TorrentDataResponse{Data: built.Raw}, nil
			}
		}
		return nil, service.NotFound("no torrent %s", request.Hash)
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		testutil.RequireReceive(t, done, 5*time.Second, "server shutdown")
	})
	testutil.RequireSocket(t, socketPath, 5*time.Second)
	return socketPath
}

func TestSocketSource(t *testing.T) {
	built := twoFileTorrent(t)
	source := torrent.NewSocketSource(serveTorrents(t, built))

	data, err := source.TorrentData(context.Background(), built.Hash)
	if err != nil {
		t.Fatalf("TorrentData: %v", err)
	}
	if !bytes.Equal(data, built.Raw) {
		t.Error("wrong bytes")
	}

	_, err = source.TorrentData(context.Background(), torrent.Hash{7})
	if !errors.Is(err, torrent.ErrNotFound) {
		t.Errorf("missing hash error = %v, want ErrNotFound", err)
	}
}

func TestParseSourceSpec(t *testing.T) {
	registry := torrent.NewRegistry()
	named := torrent.FuncSource(func(context.Context, torrent.Hash) ([]byte, error) { return []byte("x"), nil })
	if err := registry.Register("builtin", named); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := registry.Register("builtin", named); err == nil {
		t.Error("duplicate Register succeeded")
	}

	for _, spec := range []string{"builtin", "func:builtin"} {
		source, err := torrent.ParseSourceSpec(spec, registry)
		if err != nil {
			t.Fatalf("ParseSourceSpec(%q): %v", spec, err)
		}
		data, err := source.TorrentData(context.Background(), torrent.Hash{})
		if err != nil || string(data) != "x" {
			t.Errorf("ParseSourceSpec(%q) source returned %q, %v", spec, data, err)
		}
	}

	source, err := torrent.ParseSourceSpec("unix:/run/helper.sock", registry)
	if err != nil {
		t.Fatalf("ParseSourceSpec unix: %v", err)
	}
	if _, ok := source.(*torrent.SocketSource); !ok {
		t.Errorf("unix spec gave %T, want *torrent.SocketSource", source)
	}

	for _, bad := range []string{"unix:", "func:missing", "mypackage.mymodule:get_data", "missing"} {
		if _, err := torrent.ParseSourceSpec(bad, registry); err == nil {
			t.Errorf("ParseSourceSpec(%q) succeeded", bad)
		}
	}
}

func TestResolverCachesAndCoalesces(t *testing.T) {
	built := twoFileTorrent(t)
	var calls atomic.Int32
	release := make(chan struct{})
	source := torrent.FuncSource(func(ctx context.Context, hash torrent.Hash) ([]byte, error) {
		calls.Add(1)
		<-release
		return built.Raw, nil
	})
	resolver := torrent.NewResolver(source, nil)

	var wg sync.WaitGroup
	results := make(chan *torrent.Descriptor, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			descriptor, err := resolver.Resolve(context.Background(), built.Hash)
			if err != nil {
				t.Errorf("Resolve: %v", err)
				return
			}
			results <- descriptor
		}()
	}
	// Give the callers time to pile up behind the first fetch.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	for descriptor := range results {
		if descriptor.InfoHash != built.Hash {
			t.Errorf("InfoHash = %s, want %s", descriptor.InfoHash, built.Hash)
		}
	}
	if _, err := resolver.Resolve(context.Background(), built.Hash); err != nil {
		t.Fatalf("cached Resolve: %v", err)
	}
	// Coalescing is best effort for callers that arrive late, the cache
	// is not.
	if got := calls.Load(); got < 1 || got > 8 {
		t.Errorf("source called %d times", got)
	}
	before := calls.Load()
	resolver.Resolve(context.Background(), built.Hash)
	if calls.Load() != before {
		t.Error("cached descriptor fetched again")
	}
}

func TestResolverRejectsWrongTorrent(t *testing.T) {
	built := twoFileTorrent(t)
	source := torrent.FuncSource(func(context.Context, torrent.Hash) ([]byte, error) {
		return built.Raw, nil
	})
	resolver := torrent.NewResolver(source, nil)

	_, err := resolver.Resolve(context.Background(), torrent.Hash{0xaa})
	if !errors.Is(err, torrent.ErrHashMismatch) || !errors.Is(err, torrent.ErrMalformedTorrent) {
		t.Fatalf("error = %v, want ErrHashMismatch", err)
	}
}

func TestParseHash(t *testing.T) {
	built := twoFileTorrent(t)
	parsed, err := torrent.ParseHash(built.Hash.String())
	if err != nil || parsed != built.Hash {
		t.Fatalf("ParseHash(String()) = %s, %v", parsed, err)
	}
	for _, bad := range []string{"", "abc", "zz" + built.Hash.String()[2:]} {
		if _, err := torrent.ParseHash(bad); err == nil {
			t.Errorf("ParseHash(%q) succeeded", bad)
		}
	}
}

func TestTorrentDataHandlerServesDirSource(t *testing.T) {
	built := twoFileTorrent(t)
	dir := t.TempDir()
	built.WriteMetainfo(t, dir)

	socketPath := filepath.Join(testutil.SocketDir(t), "dir.sock")
	server := service.NewSocketServer(socketPath, nil)
	server.Handle(torrent.ActionTorrentData, torrent.TorrentDataHandler(torrent.DirSource{Dir: dir}))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		testutil.RequireReceive(t, done, 5*time.Second, "server shutdown")
	})
	testutil.RequireSocket(t, socketPath, 5*time.Second)

	source := torrent.NewSocketSource(socketPath)
	data, err := source.TorrentData(context.Background(), built.Hash)
	if err != nil {
		t.Fatalf("TorrentData: %v", err)
	}
	if !bytes.Equal(data, built.Raw) {
		t.Error("wrong bytes through the handler")
	}
	if _, err := source.TorrentData(context.Background(), torrent.Hash{9}); !errors.Is(err, torrent.ErrNotFound) {
		t.Errorf("missing hash error = %v, want ErrNotFound", err)
	}
}
